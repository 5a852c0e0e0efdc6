package identity

import (
	"errors"
	"fmt"
	"unicode"

	"privcal/internal/crypto"
	"privcal/internal/domain"
	"privcal/internal/signer"
)

const (
	// minPassphraseLength defines the minimum number of characters required for a passphrase.
	minPassphraseLength = 12
)

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)

	// ErrCorruptIdentity is returned when a stored identity does not match its key.
	ErrCorruptIdentity = errors.New("stored identity is corrupt")
)

// Service manages identity key creation and access using a backing store.
//
// The identity is a single secp256k1 key pair. Its x-only public key is the
// pubkey on every event we author; the secret key signs events (BIP-340) and
// derives NIP-44 conversation keys.
type Service struct {
	store domain.IdentityStore
}

// New returns an identity service backed by the given store.
func New(s domain.IdentityStore) *Service { return &Service{store: s} }

// GenerateIdentity creates a new identity, saves it encrypted with the passphrase,
// and returns the identity plus a short fingerprint of the public key.
func (s *Service) GenerateIdentity(
	passphrase string,
) (domain.Identity, domain.Fingerprint, error) {
	if !isSecurePassphrase(passphrase) {
		return domain.Identity{}, "", ErrWeakPassphrase
	}

	sk, pub, err := crypto.GenerateSecretKey()
	if err != nil {
		return domain.Identity{}, "", err
	}
	id := domain.Identity{SecretKey: sk, PublicKey: pub}
	if err := s.store.SaveIdentity(passphrase, id); err != nil {
		return domain.Identity{}, "", err
	}
	return id, crypto.Fingerprint(id.PublicKey), nil
}

// ImportIdentity stores an existing hex secret key under the passphrase.
func (s *Service) ImportIdentity(
	passphrase, secretHex string,
) (domain.Identity, domain.Fingerprint, error) {
	if !isSecurePassphrase(passphrase) {
		return domain.Identity{}, "", ErrWeakPassphrase
	}
	sk, err := crypto.ParseSecretKey(secretHex)
	if err != nil {
		return domain.Identity{}, "", err
	}
	id := domain.Identity{SecretKey: sk, PublicKey: crypto.PublicKeyHex(sk)}
	if err := s.store.SaveIdentity(passphrase, id); err != nil {
		return domain.Identity{}, "", err
	}
	return id, crypto.Fingerprint(id.PublicKey), nil
}

// LoadIdentity decrypts and returns the local identity.
func (s *Service) LoadIdentity(passphrase string) (domain.Identity, error) {
	id, err := s.store.LoadIdentity(passphrase)
	if err != nil {
		return domain.Identity{}, err
	}
	if crypto.PublicKeyHex(id.SecretKey) != id.PublicKey {
		return domain.Identity{}, ErrCorruptIdentity
	}
	return id, nil
}

// LoadSigner decrypts the identity and returns a local signer for it.
// The caller owns the signer and should Close it.
func (s *Service) LoadSigner(passphrase string) (*signer.Local, error) {
	id, err := s.LoadIdentity(passphrase)
	if err != nil {
		return nil, err
	}
	return signer.FromIdentity(id), nil
}

// FingerprintIdentity returns a short fingerprint of the local public key.
func (s *Service) FingerprintIdentity(passphrase string) (domain.Fingerprint, error) {
	id, err := s.LoadIdentity(passphrase)
	if err != nil {
		return "", err
	}
	return crypto.Fingerprint(id.PublicKey), nil
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

// Compile-time assertion that Service implements domain.IdentityService.
var _ domain.IdentityService = (*Service)(nil)
