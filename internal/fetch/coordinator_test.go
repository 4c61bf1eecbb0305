package fetch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"harbormast/internal/cachemanager"
	"harbormast/internal/pubsub"
	"harbormast/internal/registry"
	"harbormast/internal/testutil"
)

func newTestCoordinator(t *testing.T, client registry.Client) (*Coordinator, *cachemanager.ResourceCache) {
	t.Helper()
	cache, err := cachemanager.NewResourceCache(64, time.Minute, nil)
	require.NoError(t, err)
	coord := NewCoordinator(client, cache, Config{
		PageSize:     10,
		RetryBackoff: time.Millisecond,
	})
	t.Cleanup(coord.Close)
	return coord, cache
}

func waitResult(t *testing.T, ch <-chan pubsub.Event[Result]) pubsub.Event[Result] {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timeout waiting for fetch event")
		return pubsub.Event[Result]{}
	}
}

func requireNoResult(t *testing.T, ch <-chan pubsub.Event[Result], wait time.Duration) {
	t.Helper()
	select {
	case event := <-ch:
		require.FailNowf(t, "unexpected event", "type=%s key=%s", event.Type, event.Payload.Key)
	case <-time.After(wait):
	}
}

func TestCoordinator_FetchAppliesToCache(t *testing.T) {
	client := testutil.NewRegistryBuilder().
		WithProject("library").
		WithProject("backend").
		BuildClient()
	coord, cache := newTestCoordinator(t, client)

	ch := coord.Broker().Subscribe(context.Background())
	key := registry.RootKey()
	coord.Request(key, "")

	event := waitResult(t, ch)
	require.Equal(t, pubsub.FetchedEvent, event.Type)
	require.Equal(t, key, event.Payload.Key)
	require.Len(t, event.Payload.Entry.Items, 2)
	require.True(t, event.Payload.Entry.Exhausted)

	entry, freshness := cache.Get(key)
	require.Equal(t, cachemanager.Fresh, freshness)
	require.Len(t, entry.Items, 2)
}

func TestCoordinator_DeduplicatesConcurrentRequests(t *testing.T) {
	client := testutil.NewRegistryBuilder().WithProject("library").BuildClient()
	client.Gate()
	coord, _ := newTestCoordinator(t, client)

	ch := coord.Broker().Subscribe(context.Background())
	key := registry.RootKey()

	const callers = 5
	handles := make([]Handle, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i] = coord.Request(key, "")
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		require.Equal(t, handles[0].ID, handles[i].ID, "caller %d joined a different flight", i)
	}

	client.Release(1)
	event := waitResult(t, ch)
	require.Equal(t, pubsub.FetchedEvent, event.Type)

	require.Equal(t, 1, client.TotalCalls(), "exactly one network call for N concurrent callers")
	requireNoResult(t, ch, 50*time.Millisecond)
}

func TestCoordinator_RateLimitedRetriedOnce(t *testing.T) {
	builder := testutil.NewRegistryBuilder().WithProject("library")
	client := builder.BuildClient()
	client.FailNext(registry.KindProject, "", registry.NewError(registry.ErrorRateLimited, "list project", "429"))

	coord, _ := newTestCoordinator(t, client)
	ch := coord.Broker().Subscribe(context.Background())

	coord.Request(registry.RootKey(), "")

	event := waitResult(t, ch)
	require.Equal(t, pubsub.FetchedEvent, event.Type, "retry should succeed")
	require.Equal(t, 2, client.ListCalls(registry.KindProject, "", ""))
}

func TestCoordinator_RateLimitedSurfacesAfterSingleRetry(t *testing.T) {
	client := testutil.NewRegistryBuilder().WithProject("library").BuildClient()
	limited := registry.NewError(registry.ErrorRateLimited, "list project", "429")
	client.FailNext(registry.KindProject, "", limited)
	client.FailNext(registry.KindProject, "", limited)

	coord, _ := newTestCoordinator(t, client)
	ch := coord.Broker().Subscribe(context.Background())

	coord.Request(registry.RootKey(), "")

	event := waitResult(t, ch)
	require.Equal(t, pubsub.FetchFailedEvent, event.Type)
	require.Equal(t, registry.ErrorRateLimited, event.Payload.Err.Kind)
	require.Equal(t, 2, client.ListCalls(registry.KindProject, "", ""), "exactly one retry")
}

func TestCoordinator_OtherErrorsNotRetried(t *testing.T) {
	client := testutil.NewRegistryBuilder().WithProject("library").BuildClient()
	client.FailNext(registry.KindProject, "", registry.NewError(registry.ErrorAuth, "list project", "401"))

	coord, _ := newTestCoordinator(t, client)
	ch := coord.Broker().Subscribe(context.Background())

	coord.Request(registry.RootKey(), "")

	event := waitResult(t, ch)
	require.Equal(t, pubsub.FetchFailedEvent, event.Type)
	require.Equal(t, registry.ErrorAuth, event.Payload.Err.Kind)
	require.Equal(t, 1, client.ListCalls(registry.KindProject, "", ""))
}

func TestCoordinator_CancelSuppressesResult(t *testing.T) {
	client := testutil.NewRegistryBuilder().WithProject("library").BuildClient()
	client.Gate()
	coord, cache := newTestCoordinator(t, client)

	ch := coord.Broker().Subscribe(context.Background())
	key := registry.RootKey()

	handle := coord.Request(key, "")
	coord.Cancel(handle)
	client.Release(1)

	requireNoResult(t, ch, 100*time.Millisecond)
	_, freshness := cache.Get(key)
	require.Equal(t, cachemanager.Absent, freshness, "cancelled result must not reach the cache")
}

func TestCoordinator_CancelKeySuppressesAllFlights(t *testing.T) {
	items := make([]registry.Item, 20)
	for i := range items {
		items[i] = testutil.ProjectItem(fmt.Sprintf("p%02d", i))
	}
	client := testutil.NewFakeClient()
	client.SetPages(registry.KindProject, "", testutil.Paginate(items, 10))
	client.Gate()

	coord, cache := newTestCoordinator(t, client)
	ch := coord.Broker().Subscribe(context.Background())
	key := registry.RootKey()

	coord.Request(key, "")
	coord.Request(key, "2")
	coord.CancelKey(key)
	client.Release(2)

	requireNoResult(t, ch, 100*time.Millisecond)
	_, freshness := cache.Get(key)
	require.Equal(t, cachemanager.Absent, freshness)
}

func TestCoordinator_RequestAfterCancelStartsFreshFlight(t *testing.T) {
	client := testutil.NewRegistryBuilder().WithProject("library").BuildClient()
	client.Gate()
	coord, _ := newTestCoordinator(t, client)

	ch := coord.Broker().Subscribe(context.Background())
	key := registry.RootKey()

	first := coord.Request(key, "")
	coord.Cancel(first)
	second := coord.Request(key, "")
	require.NotEqual(t, first.ID, second.ID, "cancelled flight must not absorb new requests")

	client.Release(2)
	event := waitResult(t, ch)
	require.Equal(t, pubsub.FetchedEvent, event.Type)
	requireNoResult(t, ch, 50*time.Millisecond)
}

func TestCoordinator_SupersededWriteDropped(t *testing.T) {
	client := testutil.NewRegistryBuilder().WithProject("library").BuildClient()
	coord, cache := newTestCoordinator(t, client)

	key := registry.RootKey()
	// Simulate a newer result already applied for this key.
	cache.Put(key, cachemanager.Entry{
		Items: []registry.Item{testutil.ProjectItem("newer")},
		Seq:   10,
	})

	ch := coord.Broker().Subscribe(context.Background())
	coord.Request(key, "") // coordinator seq 1 < 10

	requireNoResult(t, ch, 100*time.Millisecond)
	entry, _ := cache.Get(key)
	require.Equal(t, "newer", entry.Items[0].Name)
	require.Equal(t, uint64(10), entry.Seq)
}

func TestCoordinator_DuplicateAcrossPagesIsProtocolViolation(t *testing.T) {
	client := testutil.NewFakeClient()
	client.SetPages(registry.KindProject, "", []registry.Page{
		{Items: []registry.Item{testutil.ProjectItem("alpha")}, NextCursor: "2"},
		{Items: []registry.Item{testutil.ProjectItem("alpha")}},
	})

	coord, _ := newTestCoordinator(t, client)
	ch := coord.Broker().Subscribe(context.Background())
	key := registry.RootKey()

	coord.Request(key, "")
	event := waitResult(t, ch)
	require.Equal(t, pubsub.FetchedEvent, event.Type)

	coord.Request(key, "2")
	event = waitResult(t, ch)
	require.Equal(t, pubsub.FetchFailedEvent, event.Type)
	require.Equal(t, registry.ErrorProtocol, event.Payload.Err.Kind)
}

func TestCoordinator_AdvanceAfterInvalidateIsDropped(t *testing.T) {
	items := make([]registry.Item, 20)
	for i := range items {
		items[i] = testutil.ProjectItem(fmt.Sprintf("p%02d", i))
	}
	client := testutil.NewFakeClient()
	client.SetPages(registry.KindProject, "", testutil.Paginate(items, 10))

	coord, cache := newTestCoordinator(t, client)
	ch := coord.Broker().Subscribe(context.Background())
	key := registry.RootKey()

	coord.Request(key, "")
	event := waitResult(t, ch)
	require.Equal(t, pubsub.FetchedEvent, event.Type)

	// Invalidate while the advance is in flight: the page lost its
	// sequence, which is not a server fault, so no error surfaces.
	client.Gate()
	coord.Request(key, "2")
	cache.Invalidate(key)
	client.Release(1)

	requireNoResult(t, ch, 100*time.Millisecond)
	_, freshness := cache.Get(key)
	require.Equal(t, cachemanager.Absent, freshness)
}
