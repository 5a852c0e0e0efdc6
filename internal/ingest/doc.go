// Package ingest turns a relay subscription of gift wraps into a stream of
// validated calendar events.
//
// Each envelope passes through, in order:
//
//  1. the recipient check: a gift wrap p-tagged for anyone but this
//     pipeline's recipient is dropped, whatever the relay's filtering;
//  2. dedup: an id already seen by this pipeline is dropped before any
//     decryption, so the same gift wrap arriving from several relays is
//     opened at most once;
//  3. the DecryptionCache, keyed by (recipient, envelope id), which
//     survives pipelines and short-circuits decryption;
//  4. the BatchDecryptor, which opens envelopes with bounded concurrency
//     and reports one result per item;
//  5. validation of the rumor kind against domain.CalendarKinds.
//
// At most Config.MaxPending envelopes wait for a decryptor slot; beyond that
// the pipeline stops reading its subscription until one frees.
//
// Envelopes that fail to open are dropped with a debug log. Only valid rumors are
// cached, and each rumor is emitted once.
package ingest
