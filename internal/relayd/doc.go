// Package relayd is an in-memory NIP-01 relay used by cmd/relay and by
// tests of the relay pool.
//
// # Behaviour
//
//   - Events are verified (id and signature) before they are stored.
//   - Kinds 10000-19999 are replaceable: only the newest event per
//     (pubkey, kind) is kept.
//   - Kinds 20000-29999 are ephemeral: broadcast to live subscriptions and
//     never stored.
//   - Every connection receives a NIP-42 challenge on connect.
//   - With ProtectGiftWraps, kind 1059 events are only served to a
//     connection authenticated as the p-tagged recipient; a REQ that could
//     match them is CLOSED with "auth-required:" until then.
//   - With RequireAuthForWrite, EVENT is refused until the connection
//     authenticates.
//
// All state is lost on exit. The relay never sees plaintext; it stores the
// same ciphertext any public relay would.
package relayd
