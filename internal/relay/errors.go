package relay

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPoolClosed is returned by a Pool after Close.
	ErrPoolClosed = errors.New("relay: pool closed")
	// ErrNoRelays is returned when no usable relay URL was given.
	ErrNoRelays = errors.New("relay: no usable relay urls")
	// ErrInvalidURL is returned by NormalizeURL.
	ErrInvalidURL = errors.New("relay: invalid url")
	// ErrNoAnswer is returned by FetchLatest when no relay completed the
	// query, so absence of the event is unconfirmed.
	ErrNoAnswer = errors.New("relay: no relay answered the query")
	// ErrConnectionLost is reported for requests cut off by a disconnect.
	ErrConnectionLost = errors.New("relay: connection lost")
	// ErrNoSigner is the AuthError cause when no identity is available.
	ErrNoSigner = errors.New("relay: no signer for auth")
)

// PublishError is one relay's refusal or failure to store an event.
type PublishError struct {
	Relay   string
	EventID string
	// Reason is the relay's OK message, empty for transport failures.
	Reason string
	Err    error
}

func (e *PublishError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("publish %s to %s: %s", short(e.EventID), e.Relay, e.Reason)
	}
	return fmt.Sprintf("publish %s to %s: %v", short(e.EventID), e.Relay, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// AuthRequired reports whether the relay asked for authentication.
func (e *PublishError) AuthRequired() bool { return strings.HasPrefix(e.Reason, PrefixAuthRequired) }

// AuthError is a failed NIP-42 exchange with one relay. It invalidates
// only that relay's session.
type AuthError struct {
	Relay  string
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("auth with %s: %s", e.Relay, e.Reason)
	}
	return fmt.Sprintf("auth with %s: %v", e.Relay, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// AsPublishError unwraps err into a *PublishError.
func AsPublishError(err error) (*PublishError, bool) {
	var pe *PublishError
	ok := errors.As(err, &pe)
	return pe, ok
}

// AsAuthError unwraps err into an *AuthError.
func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	ok := errors.As(err, &ae)
	return ae, ok
}

func short(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
