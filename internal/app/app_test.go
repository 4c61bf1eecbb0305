package app

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"harbormast/internal/cachemanager"
	"harbormast/internal/config"
	"harbormast/internal/fetch"
	"harbormast/internal/registry"
	"harbormast/internal/testutil"
	"harbormast/internal/viewmodel"
)

func newTestApp(t *testing.T) Model {
	t.Helper()
	client := testutil.NewRegistryBuilder().WithProject("library").BuildClient()
	cache, err := cachemanager.NewResourceCache(64, time.Minute, nil)
	require.NoError(t, err)
	coord := fetch.NewCoordinator(client, cache, fetch.Config{PageSize: 10, RetryBackoff: time.Millisecond})
	t.Cleanup(coord.Close)

	sync := viewmodel.NewSynchronizer(registry.RootKey(), cache, coord, fetch.NewPager(cache, coord))
	m := New(sync, client, config.Defaults(), false)
	t.Cleanup(m.Close)
	return m
}

func TestApp_InitProducesListeners(t *testing.T) {
	m := newTestApp(t)
	require.NotNil(t, m.Init())
}

func TestApp_WindowSizePropagates(t *testing.T) {
	m := newTestApp(t)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	model := updated.(Model)
	require.Equal(t, 100, model.width)
	require.Equal(t, 40, model.height)
}

func TestApp_QuitKey(t *testing.T) {
	m := newTestApp(t)
	_, cmd := m.Update(tea.KeyMsg(tea.Key{Type: tea.KeyRunes, Runes: []rune("q")}))
	require.NotNil(t, cmd)
	require.Equal(t, tea.Quit(), cmd())
}

func TestApp_LogOverlayOnlyInDebugMode(t *testing.T) {
	m := newTestApp(t)
	updated, _ := m.Update(tea.KeyMsg(tea.Key{Type: tea.KeyCtrlX}))
	model := updated.(Model)
	require.False(t, model.showLogs, "overlay is inert without --debug")
}
