// Package app contains the root application model.
package app

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"harbormast/internal/config"
	"harbormast/internal/keys"
	"harbormast/internal/log"
	"harbormast/internal/pubsub"
	"harbormast/internal/registry"
	"harbormast/internal/ui/browse"
	"harbormast/internal/ui/styles"
	"harbormast/internal/viewmodel"
)

// maxLogLines bounds the debug overlay's scrollback.
const maxLogLines = 200

// Model is the root application state.
type Model struct {
	browse browse.Model
	keys   keys.KeyMap

	width  int
	height int

	// View model events are bridged from the synchronizer's broker into
	// the Bubble Tea loop.
	vmListener *pubsub.ContinuousListener[viewmodel.ViewModel]

	debugMode   bool
	showLogs    bool
	logLines    []string
	logListener *log.LogListener

	cancel context.CancelFunc
}

// New creates the root model and starts the synchronizer.
// debugMode enables the log overlay (Ctrl+X).
func New(sync *viewmodel.Synchronizer, client registry.Client, cfg config.Config, debugMode bool) Model {
	ctx, cancel := context.WithCancel(context.Background())
	sync.Start(ctx)

	var logListener *log.LogListener
	if debugMode {
		logListener = log.NewListener(ctx)
	}

	return Model{
		browse:      browse.New(sync, client, cfg),
		keys:        keys.DefaultKeyMap(),
		vmListener:  pubsub.NewContinuousListener(ctx, sync.Broker()),
		debugMode:   debugMode,
		logListener: logListener,
		cancel:      cancel,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.browse.Init(),
		m.vmListener.Listen(),
	}
	if m.logListener != nil {
		cmds = append(cmds, m.logListener.Listen())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.browse = m.browse.SetSize(msg.Width, m.browseHeight())
		return m, nil

	case pubsub.Event[viewmodel.ViewModel]:
		var cmd tea.Cmd
		m.browse, cmd = m.browse.Update(msg)
		return m, tea.Batch(cmd, m.vmListener.Listen())

	case log.LogEvent:
		m.logLines = append(m.logLines, strings.TrimRight(msg.Payload, "\n"))
		if len(m.logLines) > maxLogLines {
			m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
		}
		return m, m.logListener.Listen()

	case tea.KeyMsg:
		if !m.browse.Filtering() {
			switch {
			case key.Matches(msg, m.keys.Quit):
				m.cancel()
				return m, tea.Quit
			case key.Matches(msg, m.keys.ToggleLogs):
				if m.debugMode {
					m.showLogs = !m.showLogs
					m.browse = m.browse.SetSize(m.width, m.browseHeight())
				}
				return m, nil
			}
		}
	}

	var cmd tea.Cmd
	m.browse, cmd = m.browse.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	view := m.browse.View()
	if m.showLogs {
		view += "\n" + m.logView()
	}
	return view
}

// Close releases resources held by the application.
func (m *Model) Close() {
	m.cancel()
}

func (m Model) browseHeight() int {
	if m.showLogs {
		return m.height - m.logHeight()
	}
	return m.height
}

func (m Model) logHeight() int {
	h := m.height / 3
	if h < 5 {
		h = 5
	}
	return h
}

func (m Model) logView() string {
	height := m.logHeight() - 2
	lines := m.logLines
	if len(lines) > height {
		lines = lines[len(lines)-height:]
	}

	body := strings.Join(lines, "\n")
	if body == "" {
		body = "no log entries yet"
	}
	return lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(styles.MutedColor).
		Width(max(m.width-2, 20)).
		Height(height).
		Render(body)
}
