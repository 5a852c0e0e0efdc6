// Package store provides file-based persistence for privcal's local state.
//
// It contains concrete implementations of the domain storage interfaces.
// All methods are concurrency-safe via internal locking. Stored files live
// under the configured home directory.
//
// The package includes stores for:
//   - The identity secret key, encrypted with a passphrase (IdentityFileStore)
//   - The relay lists we last published, per purpose (RelayListFileStore)
package store
