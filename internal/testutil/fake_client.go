package testutil

import (
	"context"
	"sync"

	"harbormast/internal/registry"
)

func collectionKey(kind registry.Kind, parent string) string {
	return string(kind) + ":" + parent
}

// FakeClient is a scriptable registry.Client. Collections are served
// from pre-built pages; errors can be queued per collection; calls can
// be gated so tests control exactly when a fetch completes.
type FakeClient struct {
	mu       sync.Mutex
	pages    map[string][]registry.Page
	details  map[string]registry.Item
	errQueue map[string][]*registry.Error
	calls    map[string]int
	total    int
	getCalls int
	deleted  []string
	gate     chan struct{}
}

// NewFakeClient creates an empty fake client.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		pages:    make(map[string][]registry.Page),
		details:  make(map[string]registry.Item),
		errQueue: make(map[string][]*registry.Error),
		calls:    make(map[string]int),
	}
}

// SetPages installs the page sequence served for a collection.
func (f *FakeClient) SetPages(kind registry.Kind, parent string, pages []registry.Page) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[collectionKey(kind, parent)] = pages
}

// SetDetail installs a single item served by Get. Artifacts are keyed
// by "repo@digest", matching the identifier clients pass to Get.
func (f *FakeClient) SetDetail(item registry.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := item.ID
	if item.Kind == registry.KindArtifact {
		id = item.Parent + "@" + item.ID
	}
	f.details[string(item.Kind)+":"+id] = item
}

// FailNext queues an error returned by the next List call for the
// collection. Queued errors are consumed in order before pages are
// served, so a rate-limit-then-success sequence is one FailNext call.
func (f *FakeClient) FailNext(kind registry.Kind, parent string, err *registry.Error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := collectionKey(kind, parent)
	f.errQueue[key] = append(f.errQueue[key], err)
}

// Gate makes every subsequent List call block until Release is called.
func (f *FakeClient) Gate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Buffered so Release never blocks when a gated call already bailed
	// out on context cancellation.
	f.gate = make(chan struct{}, 16)
}

// Release unblocks n gated List calls.
func (f *FakeClient) Release(n int) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate == nil {
		return
	}
	for i := 0; i < n; i++ {
		gate <- struct{}{}
	}
}

// ListCalls returns how many List calls were made for key+cursor.
func (f *FakeClient) ListCalls(kind registry.Kind, parent, cursor string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[collectionKey(kind, parent)+"#"+cursor]
}

// TotalCalls returns the total number of List calls.
func (f *FakeClient) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

// Deleted returns the ids passed to Delete, in order.
func (f *FakeClient) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

// List implements registry.Client.
func (f *FakeClient) List(ctx context.Context, kind registry.Kind, parent, cursor string, pageSize int) (registry.Page, error) {
	f.mu.Lock()
	key := collectionKey(kind, parent)
	f.calls[key+"#"+cursor]++
	f.total++
	gate := f.gate

	if queue := f.errQueue[key]; len(queue) > 0 {
		err := queue[0]
		f.errQueue[key] = queue[1:]
		f.mu.Unlock()
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return registry.Page{}, registry.WrapError(registry.ErrorNetwork, "list "+string(kind), ctx.Err())
			}
		}
		return registry.Page{}, err
	}
	pages := f.pages[key]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return registry.Page{}, registry.WrapError(registry.ErrorNetwork, "list "+string(kind), ctx.Err())
		}
	}

	if len(pages) == 0 && cursor == "" {
		return registry.Page{}, nil
	}
	idx, ok := pageIndex(pages, cursor)
	if !ok {
		return registry.Page{}, registry.NewError(registry.ErrorProtocol, "list "+string(kind), "unknown cursor "+cursor)
	}
	return pages[idx], nil
}

func pageIndex(pages []registry.Page, cursor string) (int, bool) {
	if cursor == "" {
		return 0, true
	}
	for i := 0; i+1 < len(pages); i++ {
		if pages[i].NextCursor == cursor {
			return i + 1, true
		}
	}
	return 0, false
}

// GetCalls reports how many times Get was invoked.
func (f *FakeClient) GetCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

// Get implements registry.Client.
func (f *FakeClient) Get(ctx context.Context, kind registry.Kind, id string) (registry.Item, error) {
	f.mu.Lock()
	f.getCalls++
	item, ok := f.details[string(kind)+":"+id]
	f.mu.Unlock()
	if !ok {
		return registry.Item{}, registry.NewError(registry.ErrorNotFound, "get "+string(kind), id)
	}
	return item, nil
}

// Delete implements registry.Deleter by recording the id.
func (f *FakeClient) Delete(ctx context.Context, kind registry.Kind, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, string(kind)+":"+id)
	return nil
}
