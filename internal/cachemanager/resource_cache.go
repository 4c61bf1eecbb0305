// Package cachemanager holds the TTL-aware caches behind the fetch
// layer: an LRU resource cache for collections and a read-through
// detail cache for single items.
package cachemanager

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"harbormast/internal/log"
	"harbormast/internal/registry"
)

// Freshness describes the state of a cache lookup.
type Freshness int

const (
	// Absent means no entry exists for the key.
	Absent Freshness = iota
	// Fresh means the entry is within its TTL.
	Fresh
	// Stale means the TTL expired but the payload is still usable as a
	// fallback while a refresh is in flight.
	Stale
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "absent"
	}
}

// Entry is one cached collection. Entries are owned by the cache;
// callers receive copies and must treat Items as read-only.
type Entry struct {
	Key        registry.Key
	Items      []registry.Item
	NextCursor string
	Exhausted  bool
	ETag       string
	FetchedAt  time.Time
	TTL        time.Duration
	// Seq is the per-key sequence number of the request that produced
	// this entry. Writes carrying an older Seq are rejected so a late
	// response can never clobber a newer one.
	Seq uint64
}

// ResourceCache is a capacity-bounded LRU of fetched collections.
// Lookups are pure: they never block and never trigger network
// activity. Eviction removes the least-recently-accessed entry.
type ResourceCache struct {
	mu         sync.Mutex
	entries    *lru.Cache[string, *Entry]
	defaultTTL time.Duration
	clock      Clock
}

// NewResourceCache creates a cache holding at most capacity entries.
func NewResourceCache(capacity int, defaultTTL time.Duration, clock Clock) (*ResourceCache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", capacity)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	entries, err := lru.New[string, *Entry](capacity)
	if err != nil {
		return nil, fmt.Errorf("creating lru: %w", err)
	}
	return &ResourceCache{
		entries:    entries,
		defaultTTL: defaultTTL,
		clock:      clock,
	}, nil
}

// Get looks up the collection for key and reports its freshness.
// A hit updates the entry's recency.
func (c *ResourceCache) Get(key registry.Key) (Entry, Freshness) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Get(key.String())
	if !ok {
		return Entry{}, Absent
	}

	freshness := Fresh
	if c.clock.Now().Sub(entry.FetchedAt) >= entry.TTL {
		freshness = Stale
	}
	log.Debug(log.CatCache, "cache hit", "key", key, "freshness", freshness)
	return *entry, freshness
}

// Put stores an entry for key, stamping FetchedAt from the cache's
// clock and applying the default TTL when the entry carries none.
// It reports false when the write was rejected because the cache
// already holds a result from a more recently issued request.
func (c *ResourceCache) Put(key registry.Key, entry Entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries.Peek(key.String()); ok && existing.Seq > entry.Seq {
		log.Warn(log.CatCache, "rejecting stale write",
			"key", key, "seq", entry.Seq, "have", existing.Seq)
		return false
	}

	entry.Key = key
	entry.FetchedAt = c.clock.Now()
	if entry.TTL <= 0 {
		entry.TTL = c.defaultTTL
	}
	c.entries.Add(key.String(), &entry)
	return true
}

// Invalidate drops the entry for a single key.
func (c *ResourceCache) Invalidate(key registry.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(key.String())
}

// InvalidatePrefix drops every entry whose parent path lies at or below
// prefix. Called after a mutating action so stale children are not
// served.
func (c *ResourceCache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, k := range c.entries.Keys() {
		entry, ok := c.entries.Peek(k)
		if !ok {
			continue
		}
		if entry.Key.DescendantOf(prefix) {
			c.entries.Remove(k)
			removed++
		}
	}
	log.Info(log.CatCache, "invalidated prefix", "prefix", prefix, "removed", removed)
}

// Flush drops every entry.
func (c *ResourceCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

// Len returns the number of cached entries.
func (c *ResourceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
