// Package idempotency stores the serialised response produced for each
// request id. Replaying the stored bytes for a redelivered id is what turns
// the broker's at-least-once delivery into at-most-once side effects.
//
// The cache is process-local: deduplication is bounded to a single gateway
// instance.
package idempotency

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const cleanupInterval = 10 * time.Minute

// Cache maps request ids to the serialised response produced the first time
// the id was processed. Records are written once and never mutated; they
// expire after the configured TTL (zero means no expiry).
type Cache struct {
	inner *gocache.Cache
}

// New builds a cache with the given record TTL.
func New(ttl time.Duration) *Cache {
	expiration := ttl
	if ttl <= 0 {
		expiration = gocache.NoExpiration
	}
	return &Cache{inner: gocache.New(expiration, cleanupInterval)}
}

// Store records the response for a request id. The first write wins: a
// record is never overwritten, so replays stay byte-identical.
func (c *Cache) Store(id string, response []byte) {
	// Add refuses to replace an existing record.
	_ = c.inner.Add(id, response, gocache.DefaultExpiration)
}

// Lookup returns the stored response for the id, if any.
func (c *Cache) Lookup(id string) ([]byte, bool) {
	value, ok := c.inner.Get(id)
	if !ok {
		return nil, false
	}
	return value.([]byte), true
}

// Len reports the number of live records, including not-yet-swept expired
// ones.
func (c *Cache) Len() int {
	return c.inner.ItemCount()
}
