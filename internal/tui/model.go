// Package tui renders a live operator dashboard for a running swarm.
package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"droneops-swarm/internal/recovery"
	"droneops-swarm/internal/swarm"
	"droneops-swarm/internal/telemetry"
)

// Source is what the dashboard reads and the one thing it may do.
type Source interface {
	Status() swarm.Status
	Health() swarm.Health
	EmergencyStopAll(ctx context.Context) swarm.Report
}

const (
	maxLogLines    = 500
	defaultRefresh = time.Second
	maxTableShare  = 0.35
)

// tickMsg triggers a status refresh.
type tickMsg time.Time

// eventMsg carries a swarm event for the log pane.
type eventMsg struct{ row telemetry.SwarmEventRow }

// refreshMsg asks for an immediate status refresh.
type refreshMsg struct{}

// stopDoneMsg reports the outcome of an operator emergency stop.
type stopDoneMsg struct{ rep swarm.Report }

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	critStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	confirmStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("1")).Bold(true).Padding(0, 1)
)

type model struct {
	ctx     context.Context
	src     Source
	refresh time.Duration

	table      table.Model
	vp         viewport.Model
	logs       []string
	status     swarm.Status
	health     swarm.Health
	width      int
	height     int
	wrap       bool
	autoscroll bool
	help       bool
	confirm    bool
	stopping   bool
	notice     string
}

func newModel(ctx context.Context, src Source, refresh time.Duration) model {
	if refresh <= 0 {
		refresh = defaultRefresh
	}
	cols := []table.Column{
		{Title: "Unit", Width: 12},
		{Title: "Link", Width: 5},
		{Title: "Air", Width: 4},
		{Title: "Batt", Width: 5},
		{Title: "Position (cm)", Width: 22},
		{Title: "Hdg", Width: 4},
		{Title: "Mode", Width: 9},
		{Title: "Stops", Width: 5},
		{Title: "Fails", Width: 5},
	}
	t := table.New(table.WithColumns(cols), table.WithFocused(true), table.WithHeight(5))
	m := model{
		ctx:        ctx,
		src:        src,
		refresh:    refresh,
		table:      t,
		vp:         viewport.New(0, 0),
		autoscroll: true,
	}
	m.snapshot()
	return m
}

func (m model) Init() tea.Cmd { return m.tick() }

func (m model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.layout()
		m.refreshLog()
	case tickMsg:
		m.snapshot()
		m.layout()
		return m, m.tick()
	case refreshMsg:
		m.snapshot()
		m.layout()
	case eventMsg:
		m.logs = append(m.logs, formatEvent(msg.row))
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		m.refreshLog()
	case stopDoneMsg:
		m.stopping = false
		m.notice = fmt.Sprintf("emergency stop: %d/%d units acknowledged", msg.rep.Succeeded, msg.rep.Attempted)
		m.snapshot()
	case tea.KeyMsg:
		return m.key(msg)
	}
	return m, nil
}

func (m model) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirm {
		switch msg.String() {
		case "y", "Y":
			m.confirm = false
			m.stopping = true
			m.notice = "emergency stop in progress"
			return m, m.emergencyStop()
		case "n", "N", "esc":
			m.confirm = false
			m.notice = "emergency stop cancelled"
		}
		return m, nil
	}
	if m.help {
		switch msg.String() {
		case "h", "?", "esc", "q":
			m.help = false
		}
		return m, nil
	}
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "x", "X":
		if !m.stopping {
			m.confirm = true
		}
		return m, nil
	case "w":
		m.wrap = !m.wrap
		m.refreshLog()
		return m, nil
	case "s":
		m.autoscroll = !m.autoscroll
		if m.autoscroll {
			m.vp.GotoBottom()
		}
		return m, nil
	case "h", "?":
		m.help = true
		return m, nil
	case "j", "k", "pgdown", "pgup":
		if !m.autoscroll {
			var cmd tea.Cmd
			m.vp, cmd = m.vp.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m model) emergencyStop() tea.Cmd {
	ctx, src := m.ctx, m.src
	return func() tea.Msg {
		return stopDoneMsg{rep: src.EmergencyStopAll(ctx)}
	}
}

func (m *model) snapshot() {
	m.status = m.src.Status()
	m.health = m.src.Health()
	rows := make([]table.Row, 0, len(m.status.Units))
	for _, u := range m.status.Units {
		rows = append(rows, table.Row{
			u.ID,
			yesNo(u.Connected),
			yesNo(u.Flying),
			fmt.Sprintf("%d%%", u.Battery),
			fmt.Sprintf("%.0f,%.0f,%.0f", u.Position.X, u.Position.Y, u.Position.Z),
			headingIcon(u.Heading),
			modeLabel(u.Mode, u.InCooldown),
			fmt.Sprintf("%d", u.Errors.MotorStopCount),
			fmt.Sprintf("%d", u.Errors.TotalFailures),
		})
	}
	m.table.SetRows(rows)
}

// layout splits the height between the unit table and the event log.
func (m *model) layout() {
	if m.height == 0 {
		return
	}
	tableRows := len(m.status.Units) + 1
	if limit := int(float64(m.height) * maxTableShare); tableRows > limit && limit > 1 {
		tableRows = limit
	}
	m.table.SetHeight(tableRows)
	used := lipgloss.Height(m.renderHeader()) + tableRows + lipgloss.Height(m.renderFooter()) + 4
	h := m.height - used
	if h < 1 {
		h = 1
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *model) refreshLog() {
	content := dimStyle.Render("no events yet")
	if len(m.logs) > 0 {
		lines := m.logs
		if m.wrap && m.vp.Width > 0 {
			lines = make([]string, len(m.logs))
			for i, l := range m.logs {
				lines[i] = wordwrap.String(l, m.vp.Width)
			}
		}
		content = strings.Join(lines, "\n")
	}
	m.vp.SetContent(content)
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m model) View() string {
	if m.help {
		return m.renderHelp()
	}
	divider := dimStyle.Render(strings.Repeat("─", max(m.width, 1)))
	return strings.Join([]string{
		m.renderHeader(),
		m.table.View(),
		divider,
		"Swarm Events:",
		m.vp.View(),
		divider,
		m.renderFooter(),
	}, "\n")
}

func (m model) renderHeader() string {
	st, h := m.status, m.health
	title := titleStyle.Render(fmt.Sprintf("swarm %s", st.SwarmID))
	state := stateStyle(st.State).Render(string(st.State))
	line := fmt.Sprintf("%s  state %s  operational %d/%d (%.0f%%)  degraded %d  excluded %d",
		title, state, h.OperationalUnits, h.TotalUnits, h.OperationalPercentage, h.DegradedUnits, h.ExcludedUnits)
	if f := st.Formation; f != nil {
		mark := warnStyle.Render("forming")
		if f.Active {
			mark = okStyle.Render("active")
		}
		line += fmt.Sprintf("\nformation %s (%d units) %s", f.Type, len(f.UnitIDs), mark)
	}
	return line
}

func (m model) renderFooter() string {
	switch {
	case m.confirm:
		return confirmStyle.Render("EMERGENCY STOP every unit? y/n")
	case m.notice != "":
		return m.notice + dimStyle.Render("  ·  h help")
	}
	return dimStyle.Render("q quit · x emergency stop · w wrap · s autoscroll · h help")
}

func (m model) renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" q       quit the dashboard and land the swarm",
		" x       emergency stop every unit (asks for confirmation)",
		" ↑/↓     select unit row",
		" w       toggle wrap for the event log",
		" s       toggle auto-scroll",
		" h/?     toggle this help view",
		"",
		"When auto-scroll is disabled:",
		" j/k               scroll one line",
		" pgdown/pgup       scroll a page",
	}
	return strings.Join(lines, "\n")
}

func formatEvent(e telemetry.SwarmEventRow) string {
	sev := dimStyle
	switch e.Severity {
	case telemetry.SeverityWarning:
		sev = warnStyle
	case telemetry.SeverityCritical:
		sev = critStyle
	}
	line := fmt.Sprintf("%s %s %s",
		dimStyle.Render(e.Timestamp.Format("15:04:05")),
		sev.Render(e.EventType),
		strings.Join(e.UnitIDs, ","))
	if e.Detail != "" {
		line += " " + e.Detail
	}
	return line
}

func stateStyle(s swarm.State) lipgloss.Style {
	switch s {
	case swarm.StateFlying, swarm.StateReady:
		return okStyle
	case swarm.StateShutdown, swarm.StateEmpty:
		return critStyle
	}
	return warnStyle
}

func modeLabel(mode recovery.Mode, cooling bool) string {
	if cooling {
		return string(mode) + "*"
	}
	return string(mode)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

func headingIcon(h float64) string {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	switch {
	case h >= 45 && h < 135:
		return ">"
	case h >= 135 && h < 225:
		return "v"
	case h >= 225 && h < 315:
		return "<"
	default:
		return "^"
	}
}
