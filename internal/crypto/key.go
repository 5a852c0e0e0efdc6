package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"privcal/internal/domain"
)

// ErrInvalidKey is returned for malformed hex keys.
var ErrInvalidKey = errors.New("invalid key")

// GenerateSecretKey returns a new secp256k1 secret key and its x-only
// public key in hex.
func GenerateSecretKey() (domain.SecretKey, string, error) {
	var sk domain.SecretKey
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return sk, "", err
	}
	defer priv.Zero()
	copy(sk[:], priv.Serialize())
	return sk, hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey())), nil
}

// PublicKeyHex derives the x-only public key of sk.
func PublicKeyHex(sk domain.SecretKey) string {
	priv, pub := btcec.PrivKeyFromBytes(sk[:])
	defer priv.Zero()
	return hex.EncodeToString(schnorr.SerializePubKey(pub))
}

// ParseSecretKey decodes a 64-char hex secret key.
func ParseSecretKey(s string) (domain.SecretKey, error) {
	var sk domain.SecretKey
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(sk) {
		return sk, fmt.Errorf("%w: secret key must be 32 hex-encoded bytes", ErrInvalidKey)
	}
	copy(sk[:], b)
	return sk, nil
}

// ParsePublicKey decodes a 64-char hex x-only public key.
func ParsePublicKey(s string) (*btcec.PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != schnorr.PubKeyBytesLen {
		return nil, fmt.Errorf("%w: public key %q", ErrInvalidKey, shorten(s))
	}
	pub, err := schnorr.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return pub, nil
}

// ValidPublicKey reports whether s is a usable x-only public key.
func ValidPublicKey(s string) bool {
	_, err := ParsePublicKey(s)
	return err == nil
}

func shorten(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
