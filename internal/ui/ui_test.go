package ui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/flowwatch/internal/entity"
	"github.com/five82/flowwatch/internal/entry"
	"github.com/five82/flowwatch/internal/fileflows"
	"github.com/five82/flowwatch/internal/state"
)

type staticSource struct{ snap state.Snapshot }

func (s staticSource) Snapshot() state.Snapshot { return s.snap }

type recordingActions struct {
	mu        sync.Mutex
	calls     []string
	err       error
	refreshes int
}

func (r *recordingActions) add(call string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	return r.err
}

func (r *recordingActions) SetNodeEnabled(ctx context.Context, uid string, enabled bool) error {
	if enabled {
		return r.add("enable " + uid)
	}
	return r.add("disable " + uid)
}
func (r *recordingActions) Pause(ctx context.Context, minutes int) error { return r.add("pause") }
func (r *recordingActions) Resume(ctx context.Context) error             { return r.add("resume") }
func (r *recordingActions) ForceRefresh()                                { r.refreshes++ }

func boolPtr(b bool) *bool { return &b }

func testSnapshot() state.Snapshot {
	var store state.Store
	store.Publish(state.Snapshot{
		Status:    fileflows.Status{Queue: 7, Processing: 2, Processed: 40},
		HasStatus: true,
		Nodes: fileflows.Capability[[]fileflows.Node]{
			Available: true,
			Value: []fileflows.Node{
				{UID: "n1", Name: "Tower", Enabled: boolPtr(true), FlowRunners: 2, LastSeen: time.Now().UTC().Format(time.RFC3339)},
			},
		},
	})
	return store.Snapshot()
}

func newTestModel(t *testing.T, actions *recordingActions) Model {
	t.Helper()
	m := New(Options{
		Source:   staticSource{snap: testSnapshot()},
		Registry: entity.NewRegistry(entity.Options{EntryID: "e1", Title: "Home"}),
		Actions:  actions,
	})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = next.(Model)
	msg := fetchSnapshotCmd(m.source, m.registry)()
	next, _ = m.Update(msg)
	return next.(Model)
}

func press(t *testing.T, m Model, keyText string) (Model, tea.Cmd) {
	t.Helper()
	var msg tea.KeyMsg
	switch keyText {
	case " ":
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "ctrl+c":
		msg = tea.KeyMsg{Type: tea.KeyCtrlC}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(keyText)}
	}
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestSnapshotGroupsDevices(t *testing.T) {
	m := newTestModel(t, &recordingActions{})
	if len(m.devices) != 2 {
		t.Fatalf("devices = %d, want server and one node", len(m.devices))
	}
	if m.devices[0].device.ID != "e1" {
		t.Fatalf("first device = %q, want server e1", m.devices[0].device.ID)
	}
	if _, ok := m.devices[1].enabledSwitch(); !ok {
		t.Fatalf("node device has no enabled switch")
	}
	if _, ok := m.devices[0].enabledSwitch(); ok {
		t.Fatalf("server device reported an enabled switch")
	}
}

func TestViewShowsHeaderCounts(t *testing.T) {
	m := newTestModel(t, &recordingActions{})
	out := m.View()
	for _, want := range []string{"flowwatch", "ONLINE", "Queue:", "7", "Processing:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("view missing %q", want)
		}
	}
}

func TestToggleNodeDisablesEnabledNode(t *testing.T) {
	actions := &recordingActions{}
	m := newTestModel(t, actions)

	m, _ = press(t, m, "j")
	if m.selected != 1 {
		t.Fatalf("selected = %d, want 1", m.selected)
	}
	m, cmd := press(t, m, " ")
	if cmd == nil {
		t.Fatalf("toggle returned no command")
	}
	msg := cmd()
	next, _ := m.Update(msg)
	m = next.(Model)

	if len(actions.calls) != 1 || actions.calls[0] != "disable n1" {
		t.Fatalf("calls = %v, want [disable n1]", actions.calls)
	}
	if m.statusErr || m.status != "Node disabled" {
		t.Fatalf("status = %q err=%v", m.status, m.statusErr)
	}
}

func TestToggleOnServerIsRejected(t *testing.T) {
	actions := &recordingActions{}
	m := newTestModel(t, actions)
	m, cmd := press(t, m, " ")
	if cmd != nil {
		t.Fatalf("toggle on server returned a command")
	}
	if !m.statusErr {
		t.Fatalf("status = %q, want error", m.status)
	}
	if len(actions.calls) != 0 {
		t.Fatalf("calls = %v, want none", actions.calls)
	}
}

func TestPauseResumeAndRefresh(t *testing.T) {
	actions := &recordingActions{}
	m := newTestModel(t, actions)

	for _, k := range []string{"p", "u"} {
		var cmd tea.Cmd
		m, cmd = press(t, m, k)
		if cmd == nil {
			t.Fatalf("key %q returned no command", k)
		}
		next, _ := m.Update(cmd())
		m = next.(Model)
	}
	m, _ = press(t, m, "r")

	if len(actions.calls) != 2 || actions.calls[0] != "pause" || actions.calls[1] != "resume" {
		t.Fatalf("calls = %v, want [pause resume]", actions.calls)
	}
	if actions.refreshes != 1 {
		t.Fatalf("refreshes = %d, want 1", actions.refreshes)
	}
}

func TestActionFailureShowsError(t *testing.T) {
	actions := &recordingActions{err: errors.New("forbidden")}
	m := newTestModel(t, actions)
	m, cmd := press(t, m, "p")
	next, _ := m.Update(cmd())
	m = next.(Model)
	if !m.statusErr || !strings.Contains(m.status, "forbidden") {
		t.Fatalf("status = %q err=%v", m.status, m.statusErr)
	}
}

func TestSelectionSurvivesSnapshot(t *testing.T) {
	m := newTestModel(t, &recordingActions{})
	m, _ = press(t, m, "G")
	want := m.devices[m.selected].device.ID

	next, _ := m.Update(fetchSnapshotCmd(m.source, m.registry)())
	m = next.(Model)
	if got := m.devices[m.selected].device.ID; got != want {
		t.Fatalf("selected device = %q, want %q", got, want)
	}
}

func TestCycleThemeSavesEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entry.toml")
	m := New(Options{Entry: entry.Entry{ID: "e1", Theme: "Nightfox"}, EntryPath: path})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = next.(Model)

	m, _ = press(t, m, "T")
	if m.theme.Name != "Kanagawa" {
		t.Fatalf("theme = %q, want Kanagawa", m.theme.Name)
	}
	if got := entry.Load(path); got.Theme != "Kanagawa" || got.ID != "e1" {
		t.Fatalf("saved entry = %+v", got)
	}
}

func TestQuitKeys(t *testing.T) {
	m := newTestModel(t, &recordingActions{})
	for _, k := range []string{"q", "ctrl+c"} {
		_, cmd := press(t, m, k)
		if cmd == nil {
			t.Fatalf("%s returned no command", k)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Fatalf("%s did not quit", k)
		}
	}
}

func TestLogViewToggle(t *testing.T) {
	m := newTestModel(t, &recordingActions{})
	m, cmd := press(t, m, "l")
	if m.view != ViewLogs || cmd == nil {
		t.Fatalf("view = %v cmd = %v, want logs with a read command", m.view, cmd)
	}
	m, _ = press(t, m, "esc")
	if m.view != ViewDashboard {
		t.Fatalf("view = %v, want dashboard", m.view)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name  string
		state entity.State
		want  string
		tone  string
	}{
		{name: "unavailable", state: entity.State{Available: false, Value: 3}, want: "unavailable", tone: "unavailable"},
		{name: "bool on", state: entity.State{Available: true, Value: true}, want: "on", tone: "on"},
		{name: "float with unit", state: entity.State{Available: true, Value: 12.345, Unit: "%"}, want: "12.3 %"},
		{name: "status string", state: entity.State{Available: true, Value: "offline"}, want: "offline", tone: "offline"},
		{
			name: "update pending",
			state: entity.State{Available: true, Kind: entity.KindUpdate, Value: true,
				Attributes: map[string]any{"installed_version": "24.1", "latest_version": "24.2"}},
			want: "24.1 → 24.2",
			tone: "update",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, tone := formatValue(tt.state)
			if got != tt.want || tone != tt.tone {
				t.Fatalf("formatValue = %q/%q, want %q/%q", got, tone, tt.want, tt.tone)
			}
		})
	}
}

func TestNextThemeCycles(t *testing.T) {
	names := ThemeNames()
	for i, name := range names {
		if got := NextTheme(name); got != names[(i+1)%len(names)] {
			t.Fatalf("NextTheme(%s) = %s", name, got)
		}
	}
	if got := NextTheme("missing"); got != names[0] {
		t.Fatalf("NextTheme(missing) = %s, want %s", got, names[0])
	}
	if GetTheme("missing").Name != "Nightfox" {
		t.Fatalf("GetTheme fallback is not Nightfox")
	}
}

func TestTruncateMiddle(t *testing.T) {
	if got := truncateMiddle("/very/long/path/to/flowwatch.log", 11); len([]rune(got)) != 11 || !strings.HasSuffix(got, ".log") {
		t.Fatalf("truncateMiddle = %q", got)
	}
	if got := truncate("abcdefgh", 5); got != "ab..." {
		t.Fatalf("truncate = %q", got)
	}
}

func TestLogViewFollowsAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowwatch.log")
	writeLog := func(text string, flag int) {
		t.Helper()
		f, err := os.OpenFile(path, flag|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			t.Fatalf("open log: %v", err)
		}
		defer f.Close()
		if _, err := f.WriteString(text); err != nil {
			t.Fatalf("write log: %v", err)
		}
	}
	writeLog(`{"level":"info","ts":1700000000,"logger":"flowwatch","msg":"started"}`+"\n", os.O_TRUNC)

	m := New(Options{LogPath: path})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = next.(Model)

	m, cmd := press(t, m, "l")
	next, _ = m.Update(cmd())
	m = next.(Model)
	if len(m.logEntries) != 1 || m.logEntries[0].Message != "started" || m.logFollower == nil {
		t.Fatalf("entries = %+v follower = %v", m.logEntries, m.logFollower)
	}

	writeLog(`{"level":"warn","ts":1700000001,"msg":"status poll failed"}`+"\n", os.O_APPEND)
	next, _ = m.Update(followLogsCmd(m.logFollower)())
	m = next.(Model)
	if len(m.logEntries) != 2 || m.logEntries[1].Level != "WARN" {
		t.Fatalf("entries after follow = %+v", m.logEntries)
	}
	if !strings.Contains(m.View(), "status poll failed") {
		t.Fatalf("log view does not show the appended line")
	}
}

func TestHeaderRetryingThenOffline(t *testing.T) {
	var store state.Store
	store.Publish(state.Snapshot{StatusError: "api /api/status: connection error: connection refused"})

	m := New(Options{Source: staticSource{snap: store.Snapshot()}, Registry: entity.NewRegistry(entity.Options{EntryID: "e1"})})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 160, Height: 30})
	m = next.(Model)
	next, _ = m.Update(fetchSnapshotCmd(m.source, m.registry)())
	m = next.(Model)
	if header := m.renderHeader(); !strings.Contains(header, "RETRYING") {
		t.Fatalf("header after one failure = %q", header)
	}

	store.Publish(state.Snapshot{StatusError: "api /api/status: connection error: connection refused"})
	m.source = staticSource{snap: store.Snapshot()}
	next, _ = m.Update(fetchSnapshotCmd(m.source, m.registry)())
	m = next.(Model)
	if header := m.renderHeader(); !strings.Contains(header, "OFFLINE") {
		t.Fatalf("header after two failures = %q", header)
	}
}
