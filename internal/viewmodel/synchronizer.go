package viewmodel

import (
	"context"
	"sync"

	"harbormast/internal/cachemanager"
	"harbormast/internal/fetch"
	"harbormast/internal/log"
	"harbormast/internal/nav"
	"harbormast/internal/pubsub"
	"harbormast/internal/registry"
)

// Synchronizer owns the navigation history and keeps exactly one
// ViewModel current: the one for the location on top of the stack.
// Fetch results for other locations warm the cache silently; results
// for a location the user has already left never surface.
type Synchronizer struct {
	cache  *cachemanager.ResourceCache
	coord  *fetch.Coordinator
	pager  *fetch.Pager
	broker *pubsub.Broker[ViewModel]

	mu      sync.Mutex
	stack   *nav.Stack
	current ViewModel
}

// NewSynchronizer creates a synchronizer rooted at root. Call Start to
// issue the initial fetch and begin consuming fetch results.
func NewSynchronizer(root registry.Key, cache *cachemanager.ResourceCache, coord *fetch.Coordinator, pager *fetch.Pager) *Synchronizer {
	return &Synchronizer{
		cache:  cache,
		coord:  coord,
		pager:  pager,
		broker: pubsub.NewBroker[ViewModel](),
		stack:  nav.New(root),
	}
}

// Broker exposes the stream of rebuilt view models.
func (s *Synchronizer) Broker() *pubsub.Broker[ViewModel] { return s.broker }

// Current returns the latest view model.
func (s *Synchronizer) Current() ViewModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Start consumes fetch results until ctx is cancelled and loads the
// root location. The subscription is registered before the first fetch
// is issued; the broker drops events with no subscribers, so the other
// order can lose a completion that lands in between.
func (s *Synchronizer) Start(ctx context.Context) {
	ch := s.coord.Broker().Subscribe(ctx)
	go func() {
		for event := range ch {
			s.Apply(event.Payload)
		}
	}()

	s.mu.Lock()
	s.syncLocked()
	s.mu.Unlock()
}

// NavigateTo moves to key and reports whether the location changed.
// Outstanding fetches for the abandoned location are cancelled so their
// results can never surface after the move.
func (s *Synchronizer) NavigateTo(key registry.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.stack.Current().Key
	if !s.stack.NavigateTo(key) {
		return false
	}
	s.coord.CancelKey(old)
	s.syncLocked()
	return true
}

// Back moves one step up the history.
func (s *Synchronizer) Back() bool {
	return s.move(func() bool { return s.stack.Back() })
}

// Forward replays the most recently popped location.
func (s *Synchronizer) Forward() bool {
	return s.move(func() bool { return s.stack.Forward() })
}

// JumpToDepth pops history to the given breadcrumb depth.
func (s *Synchronizer) JumpToDepth(d int) bool {
	return s.move(func() bool { return s.stack.JumpToDepth(d) })
}

func (s *Synchronizer) move(step func() bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.stack.Current().Key
	if !step() {
		return false
	}
	s.coord.CancelKey(old)
	s.syncLocked()
	return true
}

// SetCursor records the list cursor on the current history node so it
// is restored after back/forward.
func (s *Synchronizer) SetCursor(selection, scroll int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stack.SetCursor(selection, scroll)
}

// Advance requests the next page for the current location. A no-op when
// the sequence is exhausted or not yet begun.
func (s *Synchronizer) Advance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pager.Advance(s.stack.Current().Key)
	return ok
}

// Refresh discards the cached sequence for the current location and
// refetches it from the top.
func (s *Synchronizer) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.stack.Current().Key
	s.coord.CancelKey(key)
	s.cache.Invalidate(key)
	s.syncLocked()
}

// Retry re-issues the fetch behind the current error state. With no
// usable payload it restarts the sequence; with a fresh partial
// sequence it retries the failed advance.
func (s *Synchronizer) Retry() {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.stack.Current().Key
	entry, freshness := s.cache.Get(key)
	if freshness == cachemanager.Fresh && !entry.Exhausted {
		s.pager.Advance(key)
		s.current.State = StateLoading
		s.current.Err = nil
		s.publishLocked()
		return
	}
	s.syncLocked()
}

// Invalidate drops every cached collection at or below prefix, then
// rebuilds the current view so a mutation's effect is visible at once.
func (s *Synchronizer) Invalidate(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.InvalidatePrefix(prefix)
	s.syncLocked()
}

// Apply folds one fetch result into the view. Results for the current
// location rebuild and publish the view model; successful results for
// other locations have already warmed the cache and need nothing more;
// failures for other locations are logged and dropped.
func (s *Synchronizer) Apply(res fetch.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc := s.stack.Current().Key
	if res.Key != loc {
		if res.Failed() {
			log.Warn(log.CatSync, "dropping failure for abandoned location",
				"key", res.Key, "kind", res.Err.Kind)
		} else {
			log.Debug(log.CatSync, "pre-warmed cache", "key", res.Key)
		}
		return
	}

	if res.Failed() {
		// Keep whatever payload is already on screen under the error.
		s.current.State = StateError
		s.current.Err = res.Err
		s.publishLocked()
		return
	}
	s.syncLocked()
}

// syncLocked rebuilds the view model for the current location from the
// cache, scheduling a fetch when the payload is stale or absent, and
// publishes it.
func (s *Synchronizer) syncLocked() {
	key := s.stack.Current().Key
	entry, freshness := s.cache.Get(key)

	vm := ViewModel{
		Location:   key,
		Breadcrumb: s.stack.Breadcrumb(),
	}
	switch freshness {
	case cachemanager.Fresh:
		vm.State = StateLoaded
		vm.Items = entry.Items
		vm.Exhausted = entry.Exhausted
	case cachemanager.Stale:
		// Serve the expired payload immediately and refresh behind it.
		vm.State = StateLoaded
		vm.Stale = true
		vm.Items = entry.Items
		vm.Exhausted = entry.Exhausted
		s.pager.Begin(key)
	case cachemanager.Absent:
		vm.State = StateLoading
		s.pager.Begin(key)
	}

	s.current = vm
	s.publishLocked()
}

func (s *Synchronizer) publishLocked() {
	log.Debug(log.CatSync, "view model rebuilt",
		"key", s.current.Location, "state", s.current.State,
		"items", len(s.current.Items), "stale", s.current.Stale)
	s.broker.Publish(pubsub.ChangedEvent, s.current)
}
