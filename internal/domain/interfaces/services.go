package interfaces

import (
	"context"

	domaintypes "privcal/internal/domain/types"
)

// IdentityService creates, retrieves, and inspects your identity keys.
type IdentityService interface {
	GenerateIdentity(passphrase string) (domaintypes.Identity, domaintypes.Fingerprint, error)
	LoadIdentity(passphrase string) (domaintypes.Identity, error)
	FingerprintIdentity(passphrase string) (domaintypes.Fingerprint, error)
}

// RelayResolver answers "where does this pubkey read or write".
// Results are never empty.
type RelayResolver interface {
	Resolve(ctx context.Context, pubkey string, purpose domaintypes.Purpose) []domaintypes.RelayPreference
	ReadRelays(ctx context.Context, pubkey string, purpose domaintypes.Purpose) []string
	WriteRelays(ctx context.Context, pubkey string, purpose domaintypes.Purpose) []string
}
