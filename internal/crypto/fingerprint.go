package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"privcal/internal/domain"
)

// Fingerprint returns a short hex fingerprint of a hex public key.
//
// It hashes with SHA-256 and truncates to 10 bytes (20 hex chars).
func Fingerprint(pubkey string) domain.Fingerprint {
	sum := sha256.Sum256([]byte(pubkey))
	return domain.Fingerprint(hex.EncodeToString(sum[:10]))
}
