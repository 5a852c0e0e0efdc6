package interfaces

import (
	"context"

	domaintypes "privcal/internal/domain/types"
)

// Signer is the identity capability. It may be a local key or a proxy to a
// remote signer with variable latency, so every call takes a context.
type Signer interface {
	PublicKey(ctx context.Context) (string, error)
	// SignEvent fills PubKey, ID and Sig of event.
	SignEvent(ctx context.Context, event *domaintypes.Event) error
}

// Cipher is the optional payload-encryption capability of a Signer.
// Payloads follow NIP-44 v2 and are keyed by (own secret, peer pubkey).
type Cipher interface {
	Encrypt(ctx context.Context, peerPubKey, plaintext string) (string, error)
	Decrypt(ctx context.Context, peerPubKey, ciphertext string) (string, error)
}

// SignerCipher is a Signer that also encrypts.
type SignerCipher interface {
	Signer
	Cipher
}
