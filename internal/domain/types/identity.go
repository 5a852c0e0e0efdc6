package types

// SecretKey is a secp256k1 private scalar.
type SecretKey [32]byte

// Slice returns the key as a []byte.
func (k SecretKey) Slice() []byte { return k[:] }

// Identity is the long-term key pair kept encrypted on disk.
type Identity struct {
	SecretKey SecretKey `json:"secret_key"`
	PublicKey string    `json:"public_key"`
}

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }
