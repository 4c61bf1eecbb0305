// Package browse renders the registry listing for the current location
// and translates key presses into navigation and fetch actions.
package browse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/reflow/wordwrap"

	"harbormast/internal/config"
	"harbormast/internal/keys"
	"harbormast/internal/log"
	"harbormast/internal/pubsub"
	"harbormast/internal/registry"
	"harbormast/internal/ui/styles"
	"harbormast/internal/viewmodel"
)

// advanceThreshold is how close to the bottom the cursor gets before
// the next page is requested.
const advanceThreshold = 3

// DeletedMsg reports a completed upstream delete.
type DeletedMsg struct {
	Item registry.Item
}

// DeleteFailedMsg reports a failed upstream delete.
type DeleteFailedMsg struct {
	Err error
}

// Model is the registry browser component.
type Model struct {
	sync    *viewmodel.Synchronizer
	deleter registry.Deleter

	details   *detailLoader
	detailTTL time.Duration
	// detail is the item shown in the inspect panel; nil means hidden.
	detail *registry.Item

	vm      viewmodel.ViewModel
	list    list.Model
	spinner spinner.Model
	help    help.Model
	keys    keys.KeyMap

	width  int
	height int

	showCounts    bool
	showStatusBar bool

	// armedDelete holds the id the next 'd' press deletes; any other
	// key disarms it.
	armedDelete string
	statusMsg   string
}

// New creates a browser over the synchronizer. The client serves
// single-item lookups for the inspect panel; delete is offered only
// when it also implements registry.Deleter.
func New(sync *viewmodel.Synchronizer, client registry.Client, cfg config.Config) Model {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = styles.SelectedItem
	delegate.Styles.SelectedDesc = styles.SelectedItem.Bold(false)
	delegate.Styles.NormalTitle = styles.ItemTitle
	delegate.Styles.NormalDesc = styles.ItemDesc

	l := list.New(nil, delegate, 0, 0)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetShowPagination(true)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	deleter, _ := client.(registry.Deleter)

	return Model{
		sync:          sync,
		deleter:       deleter,
		details:       newDetailLoader(client),
		detailTTL:     cfg.Cache.DetailTTL,
		list:          l,
		spinner:       sp,
		help:          help.New(),
		keys:          keys.DefaultKeyMap(),
		vm:            sync.Current(),
		showCounts:    cfg.UI.ShowCounts,
		showStatusBar: cfg.UI.ShowStatusBar,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// SetSize resizes the component.
func (m Model) SetSize(width, height int) Model {
	m.width = width
	m.height = height
	m.help.Width = width
	m.list.SetSize(width, max(height-m.chromeHeight(), 1))
	return m
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case pubsub.Event[viewmodel.ViewModel]:
		return m.setViewModel(msg.Payload), nil

	case spinner.TickMsg:
		if m.vm.State != viewmodel.StateLoading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case DeletedMsg:
		m.statusMsg = "deleted " + msg.Item.Name
		m.sync.Invalidate(itemPath(msg.Item))
		m.sync.Refresh()
		return m, nil

	case DeleteFailedMsg:
		m.statusMsg = "delete failed: " + registry.KindOf(msg.Err).Message()
		return m, nil

	case DetailMsg:
		m.detail = &msg.Item
		return m, nil

	case DetailFailedMsg:
		m.statusMsg = "inspect failed: " + registry.KindOf(msg.Err).Message()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	// While the list filter is open it owns the keyboard.
	if m.list.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	// The inspect panel swallows the closing key press.
	if m.detail != nil {
		m.detail = nil
		return m, nil
	}

	armed := m.armedDelete
	m.armedDelete = ""

	switch {
	case key.Matches(msg, m.keys.Enter):
		if item, ok := m.selected(); ok {
			if child, ok := item.ChildKey(); ok {
				m.rememberCursor()
				m.sync.NavigateTo(child)
				return m, m.spinner.Tick
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.Tags):
		if item, ok := m.selected(); ok {
			if tags, ok := item.TagsKey(); ok {
				m.rememberCursor()
				m.sync.NavigateTo(tags)
				return m, m.spinner.Tick
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.Inspect):
		if item, ok := m.selected(); ok {
			return m, m.loadDetail(item)
		}
		return m, nil

	case key.Matches(msg, m.keys.Back):
		m.sync.Back()
		return m, m.spinner.Tick

	case key.Matches(msg, m.keys.Forward):
		m.sync.Forward()
		return m, m.spinner.Tick

	case key.Matches(msg, m.keys.Root):
		m.rememberCursor()
		m.sync.JumpToDepth(1)
		return m, m.spinner.Tick

	case key.Matches(msg, m.keys.Retry):
		m.sync.Retry()
		return m, m.spinner.Tick

	case key.Matches(msg, m.keys.Refresh):
		m.sync.Refresh()
		return m, m.spinner.Tick

	case key.Matches(msg, m.keys.Delete):
		return m.handleDelete(armed)

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.list.SetSize(m.width, max(m.height-m.chromeHeight(), 1))
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	m.rememberCursor()
	return m, tea.Batch(cmd, m.maybeAdvance())
}

// handleDelete arms on the first press and deletes on the second press
// of the same selection.
func (m Model) handleDelete(armed string) (Model, tea.Cmd) {
	if m.deleter == nil {
		m.statusMsg = "registry client does not support delete"
		return m, nil
	}
	item, ok := m.selected()
	if !ok {
		return m, nil
	}
	if item.Kind == registry.KindTag || item.Kind == registry.KindVulnerability {
		m.statusMsg = "cannot delete " + string(item.Kind)
		return m, nil
	}

	id := itemPath(item)
	if armed != id {
		m.armedDelete = id
		m.statusMsg = "press d again to delete " + item.Name
		return m, nil
	}

	m.statusMsg = "deleting " + item.Name
	deleter := m.deleter
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := deleter.Delete(ctx, item.Kind, id); err != nil {
			log.ErrorErr(log.CatUI, "delete failed", err, "kind", item.Kind, "id", id)
			return DeleteFailedMsg{Err: err}
		}
		return DeletedMsg{Item: item}
	}
}

// maybeAdvance requests the next page when the cursor approaches the
// end of a non-exhausted listing.
func (m Model) maybeAdvance() tea.Cmd {
	if m.vm.Exhausted || m.vm.State != viewmodel.StateLoaded {
		return nil
	}
	if m.list.Index() >= len(m.vm.Items)-advanceThreshold {
		m.sync.Advance()
	}
	return nil
}

func (m Model) setViewModel(vm viewmodel.ViewModel) Model {
	locationChanged := vm.Location != m.vm.Location
	m.vm = vm
	m.statusMsg = ""

	entries := make([]list.Item, len(vm.Items))
	for i, item := range vm.Items {
		entries[i] = listEntry{item: item}
	}
	m.list.SetItems(entries)

	if locationChanged {
		m.armedDelete = ""
		m.detail = nil
		m.list.ResetFilter()
		selection, scroll := 0, 0
		if len(vm.Breadcrumb) > 0 {
			node := vm.Breadcrumb[len(vm.Breadcrumb)-1]
			selection, scroll = node.Selection, node.Scroll
		}
		if selection >= len(entries) {
			selection, scroll = 0, 0
		}
		// The paginator derives the page from the index, so the
		// remembered page is restored by reseating the selection on it
		// when the two disagree (the window was resized in between).
		if per := m.list.Paginator.PerPage; per > 0 && scroll > 0 &&
			scroll < m.list.Paginator.TotalPages && selection/per != scroll {
			selection = scroll * per
		}
		m.list.Select(selection)
	}
	return m
}

// Filtering reports whether the list filter owns the keyboard, so
// global bindings like quit stay inert while the user types.
func (m Model) Filtering() bool {
	return m.list.FilterState() == list.Filtering
}

func (m Model) selected() (registry.Item, bool) {
	entry, ok := m.list.SelectedItem().(listEntry)
	if !ok {
		return registry.Item{}, false
	}
	return entry.item, true
}

func (m *Model) rememberCursor() {
	m.sync.SetCursor(m.list.Index(), m.list.Paginator.Page)
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.breadcrumbView())
	b.WriteString("\n")

	if m.detail != nil {
		b.WriteString(m.detailView())
		b.WriteString("\n" + m.help.View(m.keys))
		return b.String()
	}

	switch m.vm.State {
	case viewmodel.StateLoading:
		b.WriteString("\n" + m.spinner.View() + " loading " + m.vm.Location.Kind.Title() + "...\n")
	case viewmodel.StateError:
		b.WriteString(m.errorView())
		if len(m.vm.Items) > 0 {
			b.WriteString("\n" + m.list.View())
		}
	default:
		if len(m.vm.Items) == 0 {
			b.WriteString("\n" + styles.ItemDesc.Render("nothing here") + "\n")
		} else {
			b.WriteString(m.list.View())
		}
	}

	if m.showStatusBar {
		b.WriteString("\n" + m.statusBarView())
	}
	b.WriteString("\n" + m.help.View(m.keys))
	return b.String()
}

func (m Model) breadcrumbView() string {
	crumbs := make([]string, 0, len(m.vm.Breadcrumb))
	for i, node := range m.vm.Breadcrumb {
		label := node.Key.Kind.Title()
		if node.Key.Parent != "" {
			label = node.Key.Parent + " " + label
		}
		if i == len(m.vm.Breadcrumb)-1 {
			crumbs = append(crumbs, styles.BreadcrumbActive.Render(label))
		} else {
			crumbs = append(crumbs, styles.Breadcrumb.Render(label))
		}
	}
	title := styles.Title.Render("harbormast")
	return title + "  " + strings.Join(crumbs, styles.Breadcrumb.Render(" › "))
}

func (m Model) errorView() string {
	if m.vm.Err == nil {
		return ""
	}
	msg := m.vm.Err.Kind.Message()
	if m.vm.Err.Detail != "" {
		msg += " (" + m.vm.Err.Detail + ")"
	}
	msg += " · press r to retry"
	width := m.width - 4
	if width > 8 {
		msg = wordwrap.String(msg, width)
	}
	return styles.ErrorBanner.Render(msg)
}

func (m Model) statusBarView() string {
	parts := []string{}
	if m.showCounts {
		count := fmt.Sprintf("%d %s", len(m.vm.Items), m.vm.Location.Kind.Title())
		if !m.vm.Exhausted && m.vm.State == viewmodel.StateLoaded {
			count += "+"
		}
		parts = append(parts, count)
	}
	if m.vm.Stale {
		parts = append(parts, styles.StaleBadge.Render("stale, refreshing..."))
	}
	if m.statusMsg != "" {
		parts = append(parts, m.statusMsg)
	}
	return styles.StatusBar.Render(strings.Join(parts, "  "))
}

func (m Model) chromeHeight() int {
	// Breadcrumb, status bar and help line.
	h := 3
	if m.help.ShowAll {
		h += 3
	}
	return h
}
