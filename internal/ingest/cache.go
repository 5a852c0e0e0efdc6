package ingest

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"privcal/internal/cache"
	"privcal/internal/domain"
)

// cacheKey scopes an opened envelope to the recipient that opened it.
type cacheKey struct {
	recipient string
	envelope  string
}

type cachedDecryption struct {
	rumor      domain.Rumor
	insertedAt time.Time
}

// DecryptionCache remembers opened envelopes by (recipient, envelope id). It
// is safe for concurrent use and may be shared by pipelines of different
// identities: an entry is only ever returned to the recipient that stored it.
type DecryptionCache struct {
	lru *expirable.LRU[cacheKey, cachedDecryption]
}

// NewDecryptionCache returns a cache bounded by p.
func NewDecryptionCache(p cache.Policy) *DecryptionCache {
	return &DecryptionCache{lru: cache.New[cacheKey, cachedDecryption](p)}
}

// Get returns the rumor recipient stored for envelopeID.
func (c *DecryptionCache) Get(recipient, envelopeID string) (domain.Rumor, bool) {
	v, ok := c.lru.Get(cacheKey{recipient, envelopeID})
	if !ok {
		return domain.Rumor{}, false
	}
	return v.rumor, true
}

// Put stores rumor for (recipient, envelopeID). A second Put for the same
// pair keeps the first entry.
func (c *DecryptionCache) Put(recipient, envelopeID string, rumor domain.Rumor) {
	k := cacheKey{recipient, envelopeID}
	if c.lru.Contains(k) {
		return
	}
	c.lru.Add(k, cachedDecryption{rumor: rumor, insertedAt: time.Now()})
}

// InsertedAt reports when recipient cached envelopeID.
func (c *DecryptionCache) InsertedAt(recipient, envelopeID string) (time.Time, bool) {
	v, ok := c.lru.Peek(cacheKey{recipient, envelopeID})
	return v.insertedAt, ok
}

// Len returns the number of live entries.
func (c *DecryptionCache) Len() int { return c.lru.Len() }

// Purge empties the cache.
func (c *DecryptionCache) Purge() { c.lru.Purge() }
