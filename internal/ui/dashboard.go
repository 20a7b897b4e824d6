package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/flowwatch/internal/entity"
)

// deviceGroup holds the entities of one device, in build order.
type deviceGroup struct {
	device entity.Device
	states []entity.State
}

func groupByDevice(states []entity.State) []deviceGroup {
	var groups []deviceGroup
	index := make(map[string]int)
	for _, st := range states {
		i, ok := index[st.Device.ID]
		if !ok {
			i = len(groups)
			index[st.Device.ID] = i
			groups = append(groups, deviceGroup{device: st.Device})
		}
		groups[i].states = append(groups[i].states, st)
	}
	return groups
}

// enabledSwitch returns the node enabled switch when the group is a node.
func (g deviceGroup) enabledSwitch() (entity.State, bool) {
	for _, st := range g.states {
		if st.Kind != entity.KindSwitch {
			continue
		}
		if _, ok := st.Attributes["node_uid"].(string); ok {
			return st, true
		}
	}
	return entity.State{}, false
}

// available reports whether any entity of the group is available.
func (g deviceGroup) available() bool {
	for _, st := range g.states {
		if st.Available {
			return true
		}
	}
	return false
}

// shortName drops the manufacturer prefix shared by every device name.
func (g deviceGroup) shortName() string {
	name := strings.TrimPrefix(g.device.Name, g.device.Manufacturer+" ")
	return strings.TrimSpace(name)
}

// renderHeader renders the status bar.
func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	bg := NewBgStyle(m.theme.Surface)
	sep := bg.Spaces(2)
	snap := m.snapshot

	parts := []string{bg.Render("flowwatch", styles.Logo)}

	switch {
	case snap.LastUpdated.IsZero() && snap.LastError == nil:
		parts = append(parts, bg.Render("Connecting to FileFlows...", styles.WarningText.Bold(true)))
		return styles.Header.Width(m.width).Render(bg.Join(parts, sep))
	case snap.Online():
		parts = append(parts, bg.Render("● ONLINE", styles.SuccessText))
	case snap.IsOffline():
		parts = append(parts, bg.Render("● "+classifyError(snap.StatusError, snap.LastError), styles.DangerText))
	default:
		parts = append(parts, bg.Render("● RETRYING", styles.WarningText.Bold(true)))
	}

	if snap.HasStatus {
		parts = append(parts,
			m.headerCount(styles, bg, "Queue:", snap.Status.Queue),
			m.headerCount(styles, bg, "Processing:", snap.Status.Processing),
			m.headerCount(styles, bg, "Processed:", snap.Status.Processed),
		)
	}
	if snap.Version.Available && snap.Version.Value.UpdateAvailable() {
		parts = append(parts, bg.Render("Update "+snap.Version.Value.Latest, styles.WarningText))
	}

	if !m.lastUpdated.IsZero() {
		parts = append(parts, bg.Render(formatLastUpdate(m.lastUpdated, time.Now()), styles.MutedText))
	}
	if snap.ConsecutiveFailures > 0 {
		parts = append(parts, bg.Render(fmt.Sprintf("failures %d", snap.ConsecutiveFailures), styles.WarningText))
	}

	errText := snap.StatusError
	if snap.LastError != nil {
		errText = snap.LastError.Error()
	}
	if errText != "" {
		limit := 80
		if m.width < 100 {
			limit = 40
		}
		parts = append(parts, bg.Render("ERROR", styles.DangerText)+bg.Space()+bg.Render(truncate(errText, limit), styles.DangerText.Bold(false)))
	}

	return styles.Header.Width(m.width).Render(bg.Join(parts, sep))
}

func (m Model) headerCount(styles Styles, bg BgStyle, label string, n int) string {
	return bg.Render(label, styles.MutedText) + bg.Space() + bg.Render(fmt.Sprintf("%d", n), styles.Text)
}

func classifyError(statusErr string, err error) string {
	msg := statusErr
	if err != nil {
		msg = err.Error()
	}
	switch {
	case strings.Contains(msg, "connection refused"):
		return "OFFLINE"
	case strings.Contains(msg, "no such host"):
		return "HOST NOT FOUND"
	case strings.Contains(msg, "timeout"):
		return "TIMEOUT"
	default:
		return "OFFLINE"
	}
}

func formatLastUpdate(ts, now time.Time) string {
	since := now.Sub(ts)
	out := ts.Format("15:04:05")
	switch {
	case since < time.Minute:
		out += " (now)"
	case since < time.Hour:
		out += fmt.Sprintf(" (%dm ago)", int(since.Minutes()))
	case since < 24*time.Hour:
		out += fmt.Sprintf(" (%dh ago)", int(since.Hours()))
	}
	return out
}

// renderDashboard renders the device list next to the selected device's entities.
func (m Model) renderDashboard() string {
	styles := m.theme.Styles()
	height := max(m.height-4, 3)

	if len(m.devices) == 0 {
		return styles.Panel.Width(max(m.width-2, 10)).Height(height).Render(
			styles.MutedText.Render("No entities yet"))
	}

	listWidth := min(max(m.width/3, 24), 48)
	detailWidth := max(m.width-listWidth-4, 20)

	var list []string
	for i, g := range m.devices {
		marker := "●"
		markerStyle := styles.SuccessText
		if !g.available() {
			markerStyle = styles.MutedText
		}
		line := truncate(g.shortName(), listWidth-6)
		if i == m.selected {
			list = append(list, styles.Selected.Width(listWidth-2).Render(marker+" "+line))
			continue
		}
		list = append(list, markerStyle.Render(marker)+" "+styles.Text.Render(line))
	}

	left := styles.PanelFocus.Width(listWidth).Height(height).Render(strings.Join(list, "\n"))
	right := styles.Panel.Width(detailWidth).Height(height).Render(m.renderDevice(styles, detailWidth-2))
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

func (m Model) renderDevice(styles Styles, width int) string {
	if m.selected >= len(m.devices) {
		return ""
	}
	g := m.devices[m.selected]

	var b strings.Builder
	b.WriteString(styles.AccentText.Bold(true).Render(g.shortName()))
	if g.device.SWVersion != "" {
		b.WriteString("  " + styles.FaintText.Render("v"+g.device.SWVersion))
	}
	b.WriteString("\n\n")

	nameWidth := 0
	for _, st := range g.states {
		nameWidth = max(nameWidth, len([]rune(entityLabel(g, st))))
	}
	nameWidth = min(nameWidth, width/2)

	for _, st := range g.states {
		label := truncate(entityLabel(g, st), nameWidth)
		value, tone := formatValue(st)
		pad := strings.Repeat(" ", max(nameWidth-len([]rune(label)), 0))
		b.WriteString(styles.MutedText.Render(label) + pad + "  ")
		b.WriteString(styles.StateStyle(tone).Render(truncate(value, max(width-nameWidth-2, 8))))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// entityLabel strips the node or runner name repeated in every entity name.
func entityLabel(g deviceGroup, st entity.State) string {
	name := st.Name
	for _, prefix := range []string{g.shortName() + " ", strings.TrimSuffix(strings.TrimSuffix(g.shortName(), " Node"), " Runner") + " "} {
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
			return name[len(prefix):]
		}
	}
	return name
}

// formatValue renders an entity value and picks a color tone for it.
func formatValue(st entity.State) (string, string) {
	if !st.Available || st.Value == nil {
		return "unavailable", "unavailable"
	}
	var out, tone string
	switch v := st.Value.(type) {
	case bool:
		out, tone = "off", "off"
		if v {
			out, tone = "on", "on"
		}
	case time.Time:
		out = v.Local().Format("2006-01-02 15:04:05")
	case float64:
		out = fmt.Sprintf("%.1f", v)
	case string:
		out = v
		if v == "online" || v == "offline" {
			tone = v
		}
	default:
		out = fmt.Sprintf("%v", v)
	}
	if st.Kind == entity.KindUpdate {
		installed, _ := st.Attributes["installed_version"].(string)
		latest, _ := st.Attributes["latest_version"].(string)
		out, tone = installed, ""
		if pending, _ := st.Value.(bool); pending {
			out, tone = installed+" → "+latest, "update"
		}
	}
	if st.Unit != "" {
		out += " " + st.Unit
	}
	return out, tone
}

func (m Model) renderFooter() string {
	styles := m.theme.Styles()
	if m.status != "" {
		style := styles.Footer.Foreground(lipgloss.Color(m.theme.Success))
		if m.statusErr {
			style = styles.Footer.Foreground(lipgloss.Color(m.theme.Danger))
		}
		return style.Width(m.width).Render(truncate(m.status, max(m.width-2, 10)))
	}
	return styles.Footer.Width(m.width).Render(m.help.View(m.keys))
}

func (m Model) renderHelp() string {
	styles := m.theme.Styles()
	h := m.help
	h.ShowAll = true
	title := styles.Logo.Render("flowwatch") + "  " + styles.MutedText.Render("theme "+m.theme.Name)
	return styles.Panel.Width(max(m.width-2, 20)).Render(title + "\n\n" + h.View(m.keys) + "\n\n" +
		styles.FaintText.Render("press any key to close"))
}
