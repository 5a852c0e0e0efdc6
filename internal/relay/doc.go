// Package relay is the websocket transport to NIP-01 relays.
//
// Pool keeps one connection per relay URL and multiplexes publishes and
// subscriptions over it. Each relay has an AuthSession that answers NIP-42
// challenges with the signer currently supplied by the SignerSource:
//
//	unauthenticated -> challengeReceived -> authenticating -> authenticated
//	                                                       \-> invalidated
//
// A connection drop, a rejected AUTH or an explicit InvalidateAuth moves the
// session to invalidated; the next challenge starts over. At most one
// challenge per relay is signed at a time and a challenge is never signed
// twice.
//
// Subscriptions are streams of domain.RelayMessage merged from every relay.
// When one relay's connection drops, its leg reports CLOSED, reconnects with
// exponential backoff and resumes from the newest created_at seen on that
// leg minus the resume window. Other legs are unaffected.
//
// Frame is the wire codec shared with the development relay in
// internal/relayd.
package relay
