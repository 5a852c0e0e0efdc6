package signer

import (
	"context"
	"sync"

	"privcal/internal/crypto"
	"privcal/internal/domain"
	"privcal/internal/protocol/nip44"
	"privcal/internal/util/memzero"
)

// Local signs and encrypts with an in-memory secret key.
type Local struct {
	mu     sync.RWMutex
	sk     domain.SecretKey
	pub    string
	closed bool
}

// NewLocal returns a signer for sk. The caller may wipe its own copy of sk.
func NewLocal(sk domain.SecretKey) *Local {
	return &Local{sk: sk, pub: crypto.PublicKeyHex(sk)}
}

// FromIdentity returns a signer for a stored identity.
func FromIdentity(id domain.Identity) *Local { return NewLocal(id.SecretKey) }

// Generate returns a signer for a fresh random key.
func Generate() (*Local, error) {
	sk, _, err := crypto.GenerateSecretKey()
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(sk[:])
	return NewLocal(sk), nil
}

// PublicKey returns the hex x-only public key.
func (l *Local) PublicKey(context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return "", ErrClosed
	}
	return l.pub, nil
}

// SignEvent fills PubKey, ID and Sig.
func (l *Local) SignEvent(_ context.Context, ev *domain.Event) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	return crypto.SignEvent(l.sk, ev)
}

// Encrypt produces a NIP-44 payload for peerPubKey.
func (l *Local) Encrypt(_ context.Context, peerPubKey, plaintext string) (string, error) {
	key, err := l.conversationKey(peerPubKey)
	if err != nil {
		return "", err
	}
	defer memzero.Zero(key[:])
	return nip44.Encrypt(plaintext, key)
}

// Decrypt opens a NIP-44 payload from peerPubKey.
func (l *Local) Decrypt(_ context.Context, peerPubKey, ciphertext string) (string, error) {
	key, err := l.conversationKey(peerPubKey)
	if err != nil {
		return "", err
	}
	defer memzero.Zero(key[:])
	return nip44.Decrypt(ciphertext, key)
}

// Close wipes the key. Later calls fail with ErrClosed.
func (l *Local) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	memzero.Zero(l.sk[:])
	l.closed = true
}

func (l *Local) conversationKey(peer string) (nip44.ConversationKey, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nip44.ConversationKey{}, ErrClosed
	}
	return nip44.NewConversationKey(l.sk, peer)
}

var _ domain.SignerCipher = (*Local)(nil)
