package signer

import "errors"

var (
	// ErrClosed is returned by a signer whose key has been wiped.
	ErrClosed = errors.New("signer: closed")
	// ErrRemote wraps an error string returned by a remote signer.
	ErrRemote = errors.New("signer: remote error")
	// ErrUnexpectedSignature is returned when a remote signer signs with a
	// key other than the one it announced.
	ErrUnexpectedSignature = errors.New("signer: unexpected signature")
)
