package types

import "errors"

var (
	// ErrEnvelopeMalformed means an envelope failed to decrypt or did not
	// have the expected structure once decrypted. On ingest this is the
	// normal outcome for traffic addressed to someone else.
	ErrEnvelopeMalformed = errors.New("envelope malformed")

	// ErrSignatureInvalid means a seal's signature did not verify.
	ErrSignatureInvalid = errors.New("envelope signature invalid")

	// ErrCapabilityUnavailable means the identity cannot perform a required
	// operation, typically payload encryption.
	ErrCapabilityUnavailable = errors.New("identity capability unavailable")
)
