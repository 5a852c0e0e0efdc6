// Package relaylist resolves where a pubkey reads and writes.
//
// Relay lists are replaceable events: kind 10002 ("r" tags) for general
// routing and kind 10050 ("relay" tags) for private envelopes. Resolver
// fetches the newest list from lookup relays, caches the parsed
// preferences per (pubkey, purpose) and falls back to configured defaults,
// so callers always get a non-empty answer.
package relaylist
