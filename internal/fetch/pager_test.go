package fetch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"harbormast/internal/cachemanager"
	"harbormast/internal/pubsub"
	"harbormast/internal/registry"
	"harbormast/internal/testutil"
)

func thirtyArtifacts() []registry.Item {
	items := make([]registry.Item, 30)
	for i := range items {
		items[i] = testutil.ArtifactItem("library/nginx", fmt.Sprintf("sha256:%04d", i))
	}
	return items
}

func TestPager_ThreePagesYieldAllItemsInOrder(t *testing.T) {
	items := thirtyArtifacts()
	client := testutil.NewFakeClient()
	client.SetPages(registry.KindArtifact, "library/nginx", testutil.Paginate(items, 10))

	coord, cache := newTestCoordinator(t, client)
	pager := NewPager(cache, coord)
	ch := coord.Broker().Subscribe(context.Background())
	key := registry.Key{Kind: registry.KindArtifact, Parent: "library/nginx"}

	pager.Begin(key)
	event := waitResult(t, ch)
	require.Equal(t, pubsub.FetchedEvent, event.Type)
	require.Equal(t, 10, pager.Buffered(key))

	_, ok := pager.Advance(key)
	require.True(t, ok)
	waitResult(t, ch)
	require.Equal(t, 20, pager.Buffered(key))

	_, ok = pager.Advance(key)
	require.True(t, ok)
	waitResult(t, ch)

	entry, freshness := cache.Get(key)
	require.Equal(t, cachemanager.Fresh, freshness)
	require.Len(t, entry.Items, 30)
	require.True(t, entry.Exhausted)
	require.Empty(t, entry.NextCursor)

	// Server order preserved, every item exactly once.
	for i, item := range entry.Items {
		require.Equal(t, fmt.Sprintf("sha256:%04d", i), item.ID)
	}

	// Exhausted sequences have nothing left to advance.
	_, ok = pager.Advance(key)
	require.False(t, ok)
	require.Equal(t, 3, client.TotalCalls())
}

func TestPager_AdvanceBeforeBeginIsNoop(t *testing.T) {
	client := testutil.NewFakeClient()
	coord, cache := newTestCoordinator(t, client)
	pager := NewPager(cache, coord)

	_, ok := pager.Advance(registry.RootKey())
	require.False(t, ok)
	require.Zero(t, client.TotalCalls())
}

func TestPager_RestartDiscardsPreviousSequence(t *testing.T) {
	items := thirtyArtifacts()
	client := testutil.NewFakeClient()
	key := registry.Key{Kind: registry.KindArtifact, Parent: "library/nginx"}
	client.SetPages(registry.KindArtifact, "library/nginx", testutil.Paginate(items, 10))

	coord, cache := newTestCoordinator(t, client)
	pager := NewPager(cache, coord)
	ch := coord.Broker().Subscribe(context.Background())

	pager.Begin(key)
	waitResult(t, ch)
	pager.Advance(key)
	waitResult(t, ch)
	require.Equal(t, 20, pager.Buffered(key))

	// Upstream changed: only one artifact remains.
	client.SetPages(registry.KindArtifact, "library/nginx",
		[]registry.Page{{Items: items[:1]}})

	pager.Restart(key)
	waitResult(t, ch)

	entry, _ := cache.Get(key)
	require.Len(t, entry.Items, 1, "restarted sequence discards previously yielded items")
	require.True(t, entry.Exhausted)
}

func TestPager_BufferedZeroWhenAbsent(t *testing.T) {
	client := testutil.NewFakeClient()
	coord, cache := newTestCoordinator(t, client)
	pager := NewPager(cache, coord)
	require.Zero(t, pager.Buffered(registry.RootKey()))
}

// Advance is demand-driven: beginning a sequence fetches one page and
// nothing more until a consumer asks.
func TestPager_NoPrefetchBeyondDemand(t *testing.T) {
	items := thirtyArtifacts()
	client := testutil.NewFakeClient()
	key := registry.Key{Kind: registry.KindArtifact, Parent: "library/nginx"}
	client.SetPages(registry.KindArtifact, "library/nginx", testutil.Paginate(items, 10))

	coord, cache := newTestCoordinator(t, client)
	pager := NewPager(cache, coord)
	ch := coord.Broker().Subscribe(context.Background())

	pager.Begin(key)
	waitResult(t, ch)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, client.TotalCalls())
}
