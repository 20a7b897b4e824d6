package ui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/flowwatch/internal/logtail"
)

// readLogsCmd loads the tail of the log and starts following it.
func readLogsCmd(path string) tea.Cmd {
	return func() tea.Msg {
		if path == "" {
			return logsMsg{}
		}
		lines, err := logtail.Read(path, logFetchLimit)
		if err != nil {
			return logsMsg{err: err}
		}
		return logsMsg{entries: logtail.ParseEntries(lines), follower: logtail.NewFollower(path)}
	}
}

func followLogsCmd(f *logtail.Follower) tea.Cmd {
	return func() tea.Msg {
		lines, err := f.Next()
		if err != nil {
			return logsMsg{err: err, appended: true}
		}
		return logsMsg{entries: logtail.ParseEntries(lines), appended: true}
	}
}

func (m *Model) handleLogs(msg logsMsg) {
	m.logPending = false
	m.logErr = msg.err
	if msg.err != nil {
		return
	}
	if !msg.appended {
		m.logEntries = msg.entries
		m.logFollower = msg.follower
	} else if len(msg.entries) > 0 {
		m.logEntries = append(m.logEntries, msg.entries...)
		if extra := len(m.logEntries) - logFetchLimit; extra > 0 {
			m.logEntries = append([]logtail.Entry(nil), m.logEntries[extra:]...)
		}
	}
	m.syncLogViewport()
}

// syncLogViewport pushes colorized log lines into the viewport, keeping the
// bottom in view when the user was already there.
func (m *Model) syncLogViewport() {
	if !m.ready {
		return
	}
	follow := m.logViewport.AtBottom() || m.logViewport.TotalLineCount() == 0
	styles := m.theme.Styles()
	colored := make([]string, len(m.logEntries))
	for i, e := range m.logEntries {
		colored[i] = colorizeEntry(e, styles)
	}
	m.logViewport.SetContent(strings.Join(colored, "\n"))
	if follow {
		m.logViewport.GotoBottom()
	}
}

func colorizeEntry(e logtail.Entry, styles Styles) string {
	line := e.Format()
	switch e.Level {
	case "ERROR", "DPANIC", "PANIC", "FATAL":
		return styles.DangerText.Render(line)
	case "WARN":
		return styles.WarningText.Render(line)
	case "DEBUG":
		return styles.FaintText.Render(line)
	default:
		return styles.Text.Render(line)
	}
}

func (m Model) renderLogs() string {
	styles := m.theme.Styles()
	title := styles.AccentText.Bold(true).Render("Logs") + "  " + styles.FaintText.Render(truncateMiddle(m.logPath, 60))
	body := m.logViewport.View()
	switch {
	case m.logErr != nil:
		body = styles.DangerText.Render(m.logErr.Error())
	case m.logPath == "":
		body = styles.MutedText.Render("Logging to file is disabled")
	case len(m.logEntries) == 0:
		body = styles.MutedText.Render("No log lines yet")
	}
	return styles.PanelFocus.Width(max(m.width-2, 10)).Render(title + "\n" + body)
}
