package fetch

import (
	"harbormast/internal/cachemanager"
	"harbormast/internal/log"
	"harbormast/internal/registry"
)

// Pager drives multi-page collection fetches into a single logical
// sequence, requesting additional pages only on demand so scrolling to
// the end of a long listing is what triggers the next page, not the
// initial load.
type Pager struct {
	cache *cachemanager.ResourceCache
	coord *Coordinator
}

// NewPager creates a pager over the shared cache and coordinator.
func NewPager(cache *cachemanager.ResourceCache, coord *Coordinator) *Pager {
	return &Pager{cache: cache, coord: coord}
}

// Begin requests the first page of key's sequence. Re-beginning a key
// restarts the sequence from the top; the coordinator's sequence guard
// discards whatever an older flight still delivers.
func (p *Pager) Begin(key registry.Key) Handle {
	log.Debug(log.CatFetch, "begin sequence", "key", key)
	return p.coord.Request(key, "")
}

// Restart invalidates the cached sequence for key and begins a fresh
// one, discarding previously yielded items.
func (p *Pager) Restart(key registry.Key) Handle {
	p.cache.Invalidate(key)
	return p.Begin(key)
}

// Advance requests the next page of key's sequence. It reports false
// when there is nothing to do: no sequence exists yet or the sequence
// is exhausted.
func (p *Pager) Advance(key registry.Key) (Handle, bool) {
	entry, freshness := p.cache.Get(key)
	if freshness == cachemanager.Absent || entry.Exhausted {
		return Handle{}, false
	}
	log.Debug(log.CatFetch, "advance sequence", "key", key, "cursor", entry.NextCursor)
	return p.coord.Request(key, entry.NextCursor), true
}

// Buffered returns how many items of key's sequence are available.
func (p *Pager) Buffered(key registry.Key) int {
	entry, freshness := p.cache.Get(key)
	if freshness == cachemanager.Absent {
		return 0
	}
	return len(entry.Items)
}
