// Package crypto exposes the minimal primitives used by privcal.
//
// Contents
//
//   - secp256k1 key generation and x-only public keys (GenerateSecretKey,
//     PublicKeyHex, ParsePublicKey)
//   - BIP-340 schnorr signing and verification of event ids (SignEvent,
//     VerifyEvent)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//   - Randomized past timestamps for envelopes (RandomPastTimestamp)
//
// # Notes
//
// Secret keys are fixed-size arrays defined in internal/domain. Callers
// should wipe them with memzero.Zero once they are no longer needed.
package crypto
