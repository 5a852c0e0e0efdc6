// Package cache holds the single size and lifetime policy shared by every
// in-process cache: the decryption cache of the ingest pipeline and the
// relay pool's last-seen bookkeeping.
package cache
