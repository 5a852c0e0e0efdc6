// Package main runs the in-memory development relay.
//
// Usage
//
//	relay [--addr :7447] [--url ws://127.0.0.1:7447] [--protect-gift-wraps] [--require-auth]
//
// The relay speaks NIP-01 over a websocket at the root path and issues a
// NIP-42 challenge to every connection. With --protect-gift-wraps, kind
// 1059 events are only served to the authenticated recipient. With
// --require-auth, publishing requires authentication.
//
// All state is held in memory and lost on exit. The relay never sees
// plaintext or private keys.
package main
