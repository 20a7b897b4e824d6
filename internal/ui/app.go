package ui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/five82/flowwatch/internal/entity"
	"github.com/five82/flowwatch/internal/entry"
	"github.com/five82/flowwatch/internal/logtail"
	"github.com/five82/flowwatch/internal/state"
)

// View represents the current active view.
type View int

const (
	ViewDashboard View = iota
	ViewLogs
)

// Source supplies the latest snapshot.
type Source interface {
	Snapshot() state.Snapshot
}

// Actions performs writes against the server.
type Actions interface {
	SetNodeEnabled(ctx context.Context, uid string, enabled bool) error
	Pause(ctx context.Context, minutes int) error
	Resume(ctx context.Context) error
	ForceRefresh()
}

// Options configure the dashboard.
type Options struct {
	Context   context.Context
	Source    Source
	Registry  *entity.Registry
	Actions   Actions
	Logger    *zap.Logger
	LogPath   string
	PollTick  time.Duration
	Entry     entry.Entry
	EntryPath string // empty disables saving the theme
}

const (
	defaultPollTick = time.Second
	logFetchLimit   = 500
	actionTimeout   = 15 * time.Second
)

// Model is the root application state for Bubble Tea.
type Model struct {
	ctx       context.Context
	source    Source
	registry  *entity.Registry
	actions   Actions
	logger    *zap.Logger
	logPath   string
	pollTick  time.Duration
	entry     entry.Entry
	entryPath string

	keys     keyMap
	help     help.Model
	theme    Theme
	view     View
	width    int
	height   int
	ready    bool
	showHelp bool

	snapshot    state.Snapshot
	states      []entity.State
	devices     []deviceGroup
	selected    int
	lastUpdated time.Time

	status    string
	statusErr bool

	logViewport viewport.Model
	logEntries  []logtail.Entry
	logFollower *logtail.Follower
	logPending  bool
	logErr      error
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	pollTick := opts.PollTick
	if pollTick <= 0 {
		pollTick = defaultPollTick
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	themeName := opts.Entry.Theme
	if themeName == "" {
		themeName = entry.DefaultTheme
	}

	return Model{
		ctx:       ctx,
		source:    opts.Source,
		registry:  opts.Registry,
		actions:   opts.Actions,
		logger:    logger.Named("ui"),
		logPath:   opts.LogPath,
		pollTick:  pollTick,
		entry:     opts.Entry,
		entryPath: opts.EntryPath,
		keys:      defaultKeyMap(),
		help:      help.New(),
		theme:     GetTheme(themeName),
		view:      ViewDashboard,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(m.pollTick)}
	if m.source != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.source, m.registry))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		if !m.ready {
			m.logViewport = viewport.New(max(msg.Width-4, 10), max(msg.Height-5, 3))
		} else {
			m.logViewport.Width = max(msg.Width-4, 10)
			m.logViewport.Height = max(msg.Height-5, 3)
		}
		m.ready = true
		m.syncLogViewport()
		return m, nil

	case tickMsg:
		return m.handleTick()

	case snapshotMsg:
		m.applySnapshot(msg)
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.status = msg.label + " failed: " + msg.err.Error()
			m.statusErr = true
		} else {
			m.status = msg.label
			m.statusErr = false
		}
		return m, nil

	case logsMsg:
		m.handleLogs(msg)
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderContent())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderContent() string {
	switch m.view {
	case ViewLogs:
		return m.renderLogs()
	default:
		return m.renderDashboard()
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.entry.Theme = m.theme.Name
		if m.entryPath != "" {
			if err := entry.Save(m.entryPath, m.entry); err != nil {
				m.logger.Warn("save theme failed", zap.Error(err))
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.Escape):
		m.view = ViewDashboard
		return m, nil

	case key.Matches(msg, m.keys.ToggleLogs):
		if m.view == ViewLogs {
			m.view = ViewDashboard
			return m, nil
		}
		m.view = ViewLogs
		m.logPending = true
		return m, readLogsCmd(m.logPath)

	case key.Matches(msg, m.keys.Refresh):
		if m.actions == nil {
			return m, nil
		}
		m.actions.ForceRefresh()
		m.status = "Refresh requested"
		m.statusErr = false
		return m, nil

	case key.Matches(msg, m.keys.Pause):
		return m, m.runAction("Processing paused", func(ctx context.Context) error {
			return m.actions.Pause(ctx, 0)
		})

	case key.Matches(msg, m.keys.Resume):
		return m, m.runAction("Processing resumed", func(ctx context.Context) error {
			return m.actions.Resume(ctx)
		})
	}

	if m.view == ViewLogs {
		var cmd tea.Cmd
		m.logViewport, cmd = m.logViewport.Update(msg)
		return m, cmd
	}
	return m.handleDashboardKey(msg)
}

func (m Model) handleDashboardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	count := len(m.devices)
	if count == 0 {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Down):
		if m.selected < count-1 {
			m.selected++
		}
	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
		}
	case key.Matches(msg, m.keys.Top):
		m.selected = 0
	case key.Matches(msg, m.keys.Bottom):
		m.selected = count - 1
	case key.Matches(msg, m.keys.ToggleNode):
		return m, m.toggleSelectedNode()
	}
	return m, nil
}

// toggleSelectedNode flips the enabled switch of the selected node device.
func (m *Model) toggleSelectedNode() tea.Cmd {
	if m.selected >= len(m.devices) {
		return nil
	}
	sw, ok := m.devices[m.selected].enabledSwitch()
	if !ok {
		m.status = "Selected device is not a node"
		m.statusErr = true
		return nil
	}
	if !sw.Available {
		m.status = "Node is unavailable"
		m.statusErr = true
		return nil
	}
	uid, _ := sw.Attributes["node_uid"].(string)
	enabled, _ := sw.Value.(bool)
	target := !enabled
	label := "Node enabled"
	if !target {
		label = "Node disabled"
	}
	return m.runAction(label, func(ctx context.Context) error {
		return m.actions.SetNodeEnabled(ctx, uid, target)
	})
}

func (m Model) runAction(label string, fn func(ctx context.Context) error) tea.Cmd {
	if m.actions == nil {
		return nil
	}
	parent := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, actionTimeout)
		defer cancel()
		return actionMsg{label: label, err: fn(ctx)}
	}
}

func (m Model) handleTick() (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	if m.source != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.source, m.registry))
	}
	if m.view == ViewLogs && m.logFollower != nil && !m.logPending {
		m.logPending = true
		cmds = append(cmds, followLogsCmd(m.logFollower))
	}
	cmds = append(cmds, tickCmd(m.pollTick))
	return m, tea.Batch(cmds...)
}

func (m *Model) applySnapshot(msg snapshotMsg) {
	m.snapshot = msg.snapshot
	m.states = msg.states
	m.lastUpdated = msg.snapshot.LastUpdated

	var selectedID string
	if m.selected < len(m.devices) {
		selectedID = m.devices[m.selected].device.ID
	}
	m.devices = groupByDevice(msg.states)
	m.selected = 0
	for i, g := range m.devices {
		if g.device.ID == selectedID {
			m.selected = i
			break
		}
	}
}

// Messages

type tickMsg time.Time

type snapshotMsg struct {
	snapshot state.Snapshot
	states   []entity.State
}

type actionMsg struct {
	label string
	err   error
}

type logsMsg struct {
	entries  []logtail.Entry
	follower *logtail.Follower
	appended bool
	err      error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(source Source, registry *entity.Registry) tea.Cmd {
	return func() tea.Msg {
		snap := source.Snapshot()
		var states []entity.State
		if registry != nil {
			states = registry.Build(snap, time.Now())
		}
		return snapshotMsg{snapshot: snap, states: states}
	}
}

// Run starts the Bubble Tea program and blocks until the user quits or ctx
// is cancelled.
func Run(ctx context.Context, opts Options) error {
	if opts.Context == nil {
		opts.Context = ctx
	}
	p := tea.NewProgram(New(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
