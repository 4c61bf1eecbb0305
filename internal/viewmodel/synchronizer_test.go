package viewmodel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"harbormast/internal/cachemanager"
	"harbormast/internal/fetch"
	"harbormast/internal/pubsub"
	"harbormast/internal/registry"
	"harbormast/internal/testutil"
)

var (
	rootKey  = registry.RootKey()
	reposKey = registry.Key{Kind: registry.KindRepository, Parent: "library"}
	artsKey  = registry.Key{Kind: registry.KindArtifact, Parent: "library/nginx"}
)

func newTestSync(t *testing.T, client registry.Client, clock cachemanager.Clock) (*Synchronizer, *fetch.Coordinator, <-chan pubsub.Event[ViewModel]) {
	t.Helper()
	cache, err := cachemanager.NewResourceCache(64, time.Minute, clock)
	require.NoError(t, err)
	coord := fetch.NewCoordinator(client, cache, fetch.Config{
		PageSize:     10,
		RetryBackoff: time.Millisecond,
	})
	t.Cleanup(coord.Close)

	sync := NewSynchronizer(rootKey, cache, coord, fetch.NewPager(cache, coord))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ch := sync.Broker().Subscribe(ctx)
	sync.Start(ctx)
	return sync, coord, ch
}

func waitVM(t *testing.T, ch <-chan pubsub.Event[ViewModel]) ViewModel {
	t.Helper()
	select {
	case event := <-ch:
		return event.Payload
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timeout waiting for view model event")
		return ViewModel{}
	}
}

func requireNoVM(t *testing.T, ch <-chan pubsub.Event[ViewModel], wait time.Duration) {
	t.Helper()
	select {
	case event := <-ch:
		require.FailNowf(t, "unexpected view model event",
			"key=%s state=%s", event.Payload.Location, event.Payload.State)
	case <-time.After(wait):
	}
}

func TestSynchronizer_StartLoadsRoot(t *testing.T) {
	client := testutil.NewRegistryBuilder().
		WithProject("library").
		WithProject("backend").
		BuildClient()
	_, _, ch := newTestSync(t, client, nil)

	vm := waitVM(t, ch)
	require.Equal(t, StateLoading, vm.State)
	require.Equal(t, rootKey, vm.Location)
	require.Len(t, vm.Breadcrumb, 1)

	vm = waitVM(t, ch)
	require.Equal(t, StateLoaded, vm.State)
	require.Len(t, vm.Items, 2)
	require.True(t, vm.Exhausted)
	require.False(t, vm.Stale)
}

func TestSynchronizer_StartNeverDropsInitialCompletion(t *testing.T) {
	// The result subscription must be registered before the first
	// fetch is issued: the broker discards events with no subscribers,
	// so a completion racing Start would otherwise leave the view
	// stuck loading with the data already sitting in the cache.
	for i := 0; i < 50; i++ {
		client := testutil.NewRegistryBuilder().WithProject("library").BuildClient()
		_, _, ch := newTestSync(t, client, nil)

		vm := waitVM(t, ch)
		for vm.State != StateLoaded {
			vm = waitVM(t, ch)
		}
		require.Len(t, vm.Items, 1)
	}
}

func TestSynchronizer_DrillDownLoadsChildCollection(t *testing.T) {
	client := testutil.NewRegistryBuilder().
		WithProject("library").
		WithRepository("library", "nginx").
		BuildClient()
	sync, _, ch := newTestSync(t, client, nil)

	waitVM(t, ch) // loading root
	waitVM(t, ch) // loaded root

	require.True(t, sync.NavigateTo(reposKey))

	vm := waitVM(t, ch)
	require.Equal(t, StateLoading, vm.State)
	require.Equal(t, reposKey, vm.Location)
	require.Len(t, vm.Breadcrumb, 2)

	vm = waitVM(t, ch)
	require.Equal(t, StateLoaded, vm.State)
	require.Equal(t, "library/nginx", vm.Items[0].Name)
}

func TestSynchronizer_BackServesFreshCacheWithoutRefetch(t *testing.T) {
	client := testutil.NewRegistryBuilder().
		WithProject("library").
		WithRepository("library", "nginx").
		BuildClient()
	sync, _, ch := newTestSync(t, client, nil)

	waitVM(t, ch)
	waitVM(t, ch)
	sync.NavigateTo(reposKey)
	waitVM(t, ch)
	waitVM(t, ch)

	require.True(t, sync.Back())

	vm := waitVM(t, ch)
	require.Equal(t, StateLoaded, vm.State, "fresh hit skips the loading state")
	require.Equal(t, rootKey, vm.Location)
	require.False(t, vm.Stale)
	require.Equal(t, 1, client.ListCalls(registry.KindProject, "", ""), "no refetch on fresh hit")
	requireNoVM(t, ch, 50*time.Millisecond)
}

func TestSynchronizer_StaleServedOptimisticallyThenRefreshed(t *testing.T) {
	clock := testutil.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	client := testutil.NewRegistryBuilder().
		WithProject("library").
		WithRepository("library", "nginx").
		BuildClient()
	sync, _, ch := newTestSync(t, client, clock)

	waitVM(t, ch)
	waitVM(t, ch)
	sync.NavigateTo(reposKey)
	waitVM(t, ch)
	waitVM(t, ch)

	clock.Advance(2 * time.Minute)
	require.True(t, sync.Back())

	vm := waitVM(t, ch)
	require.Equal(t, StateLoaded, vm.State, "stale payload shown immediately")
	require.True(t, vm.Stale)
	require.Len(t, vm.Items, 1)

	vm = waitVM(t, ch)
	require.Equal(t, StateLoaded, vm.State)
	require.False(t, vm.Stale, "background refresh replaces the stale payload")
	require.Equal(t, 2, client.ListCalls(registry.KindProject, "", ""))
}

func TestSynchronizer_ErrorKeepsStalePayloadUnderneath(t *testing.T) {
	clock := testutil.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	client := testutil.NewRegistryBuilder().
		WithProject("library").
		WithRepository("library", "nginx").
		BuildClient()
	sync, _, ch := newTestSync(t, client, clock)

	waitVM(t, ch)
	waitVM(t, ch)
	sync.NavigateTo(reposKey)
	waitVM(t, ch)
	waitVM(t, ch)

	clock.Advance(2 * time.Minute)
	client.FailNext(registry.KindProject, "",
		registry.NewError(registry.ErrorNetwork, "list project", "connection refused"))
	sync.Back()

	vm := waitVM(t, ch)
	require.True(t, vm.Stale)

	vm = waitVM(t, ch)
	require.Equal(t, StateError, vm.State)
	require.Equal(t, registry.ErrorNetwork, vm.Err.Kind)
	require.Len(t, vm.Items, 1, "stale items stay visible under the error")

	// Retry restarts the refresh and recovers.
	sync.Retry()
	vm = waitVM(t, ch)
	require.True(t, vm.Stale)
	vm = waitVM(t, ch)
	require.Equal(t, StateLoaded, vm.State)
	require.False(t, vm.Stale)
	require.Nil(t, vm.Err)
}

func TestSynchronizer_PrewarmedKeyEmitsNothingUntilVisited(t *testing.T) {
	client := testutil.NewRegistryBuilder().
		WithProject("library").
		WithRepository("library", "nginx").
		BuildClient()
	sync, coord, ch := newTestSync(t, client, nil)

	waitVM(t, ch)
	waitVM(t, ch)

	fetchCh := coord.Broker().Subscribe(context.Background())
	coord.Request(reposKey, "")
	select {
	case <-fetchCh:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timeout waiting for prewarm fetch")
	}

	requireNoVM(t, ch, 50*time.Millisecond)

	sync.NavigateTo(reposKey)
	vm := waitVM(t, ch)
	require.Equal(t, StateLoaded, vm.State, "prewarmed collection loads without a spinner")
	require.Equal(t, 2, client.TotalCalls())
}

// Once navigation moves away from a location, no view model for it is
// ever published after the move, even when its fetch was already on the
// wire.
func TestSynchronizer_AbandonedFetchNeverSurfaces(t *testing.T) {
	client := testutil.NewRegistryBuilder().
		WithProject("library").
		WithRepository("library", "nginx").
		BuildClient()
	client.Gate()
	sync, _, ch := newTestSync(t, client, nil)

	vm := waitVM(t, ch)
	require.Equal(t, StateLoading, vm.State)
	require.Equal(t, rootKey, vm.Location)

	require.True(t, sync.NavigateTo(reposKey))
	vm = waitVM(t, ch)
	require.Equal(t, StateLoading, vm.State)
	require.Equal(t, reposKey, vm.Location)

	client.Release(2)

	vm = waitVM(t, ch)
	require.Equal(t, reposKey, vm.Location, "only the current location may surface")
	require.Equal(t, StateLoaded, vm.State)
	requireNoVM(t, ch, 100*time.Millisecond)
}

func TestSynchronizer_AdvanceAppendsNextPage(t *testing.T) {
	items := make([]registry.Item, 15)
	for i := range items {
		items[i] = testutil.ProjectItem(string(rune('a' + i)))
	}
	client := testutil.NewFakeClient()
	client.SetPages(registry.KindProject, "", testutil.Paginate(items, 10))
	sync, _, ch := newTestSync(t, client, nil)

	waitVM(t, ch)
	vm := waitVM(t, ch)
	require.Len(t, vm.Items, 10)
	require.False(t, vm.Exhausted)

	require.True(t, sync.Advance())
	vm = waitVM(t, ch)
	require.Len(t, vm.Items, 15)
	require.True(t, vm.Exhausted)

	require.False(t, sync.Advance(), "exhausted sequence has nothing to advance")
}

func TestSynchronizer_RefreshRestartsSequence(t *testing.T) {
	client := testutil.NewRegistryBuilder().
		WithProject("library").
		WithProject("backend").
		BuildClient()
	sync, _, ch := newTestSync(t, client, nil)

	waitVM(t, ch)
	vm := waitVM(t, ch)
	require.Len(t, vm.Items, 2)

	// Upstream changed: one project was removed.
	client.SetPages(registry.KindProject, "",
		[]registry.Page{{Items: []registry.Item{testutil.ProjectItem("library")}}})

	sync.Refresh()
	vm = waitVM(t, ch)
	require.Equal(t, StateLoading, vm.State, "refresh discards the cached payload")
	vm = waitVM(t, ch)
	require.Len(t, vm.Items, 1)
}

func TestSynchronizer_InvalidateRefetchesCurrentLocation(t *testing.T) {
	client := testutil.NewRegistryBuilder().
		WithProject("library").
		WithRepository("library", "nginx").
		WithArtifact("library/nginx", "sha256:aaa", "latest").
		WithArtifact("library/nginx", "sha256:bbb").
		BuildClient()
	sync, _, ch := newTestSync(t, client, nil)

	waitVM(t, ch)
	waitVM(t, ch)
	sync.NavigateTo(reposKey)
	waitVM(t, ch)
	waitVM(t, ch)
	sync.NavigateTo(artsKey)
	waitVM(t, ch)
	vm := waitVM(t, ch)
	require.Len(t, vm.Items, 2)

	// An artifact was deleted; everything under the repository is dropped.
	client.SetPages(registry.KindArtifact, "library/nginx",
		[]registry.Page{{Items: []registry.Item{testutil.ArtifactItem("library/nginx", "sha256:bbb")}}})
	sync.Invalidate("library/nginx")

	vm = waitVM(t, ch)
	require.Equal(t, StateLoading, vm.State)
	vm = waitVM(t, ch)
	require.Equal(t, StateLoaded, vm.State)
	require.Len(t, vm.Items, 1)
	require.Equal(t, "sha256:bbb", vm.Items[0].ID)
}

func TestSynchronizer_BreadcrumbTracksAncestry(t *testing.T) {
	client := testutil.NewRegistryBuilder().
		WithProject("library").
		WithRepository("library", "nginx").
		WithArtifact("library/nginx", "sha256:aaa").
		BuildClient()
	sync, _, ch := newTestSync(t, client, nil)

	waitVM(t, ch)
	waitVM(t, ch)
	sync.NavigateTo(reposKey)
	waitVM(t, ch)
	waitVM(t, ch)
	sync.NavigateTo(artsKey)
	waitVM(t, ch)
	vm := waitVM(t, ch)

	require.Len(t, vm.Breadcrumb, 3)
	require.Equal(t, rootKey, vm.Breadcrumb[0].Key)
	require.Equal(t, artsKey, vm.Breadcrumb[2].Key)

	// Breadcrumb jump lands back on the repository listing.
	require.True(t, sync.JumpToDepth(2))
	vm = waitVM(t, ch)
	require.Equal(t, reposKey, vm.Location)
	require.Equal(t, StateLoaded, vm.State)
}
