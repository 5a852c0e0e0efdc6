// Package identity manages creation, encryption and loading of the local identity.
//
// It enforces passphrase policy, generates the secp256k1 key pair used for
// signing and payload encryption, and persists it via the domain.IdentityStore.
package identity
