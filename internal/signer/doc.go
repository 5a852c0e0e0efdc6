// Package signer provides implementations of the identity capability
// (domain.Signer, optionally domain.Cipher).
//
//   - Local holds a secret key in memory and signs and encrypts directly.
//   - PublicOnly hides the cipher capability of another signer.
//   - Throttled rate-limits calls to another signer.
//   - Bunker proxies every call to a NIP-46 remote signer over relays.
//
// Callers discover the cipher capability with a type assertion on
// domain.Cipher. A signer that cannot encrypt makes the envelope codec fail
// with domain.ErrCapabilityUnavailable.
package signer
