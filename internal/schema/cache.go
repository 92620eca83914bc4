package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Cache keys a validated/constructed upstream tool record by a stable
// content hash of the input tool set, so repeated sends of the same tools
// skip re-validation and re-construction. Grounded on
// original_source/src/cache.rs's ToolSchemaCache, reimplemented with the
// teacher's sync.RWMutex idiom rather than an atomic-swap library (no
// analog appears elsewhere in the example pack).
type Cache struct {
	maxEntries int

	mu       sync.RWMutex
	lastHash string
	lastVal  []byte
	entries  map[string][]byte
	order    []string // insertion order, for size-capped eviction
}

// NewCache creates a Cache bounded to maxEntries distinct tool sets.
func NewCache(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &Cache{
		maxEntries: maxEntries,
		entries:    make(map[string][]byte),
	}
}

// HashToolSet returns a stable content hash for raw, the exact bytes of
// the downstream tools array.
func HashToolSet(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached upstream tool record for hash, checking the
// single-slot last-hash fast path before falling back to the full map.
func (c *Cache) Get(hash string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if hash == c.lastHash && c.lastVal != nil {
		return c.lastVal, true
	}
	v, ok := c.entries[hash]
	return v, ok
}

// Put stores val under hash, evicting the oldest entry by insertion order
// if the cache is at capacity.
func (c *Cache) Put(hash string, val []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastHash, c.lastVal = hash, val

	if _, exists := c.entries[hash]; !exists {
		if len(c.order) >= c.maxEntries {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, hash)
	}
	c.entries[hash] = val
}

// Len reports the number of distinct tool sets currently cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
