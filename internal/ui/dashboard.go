package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Unit status labels the dashboard understands. They match the
// orchestrator's outcome statuses plus the two in-flight states.
const (
	UnitPending   = "pending"
	UnitRunning   = "running"
	UnitCompleted = "completed"
	UnitPaused    = "paused"
	UnitFailed    = "failed"
)

// maxWarnings caps the warning lines kept on screen.
const maxWarnings = 4

// Dashboard is the live batch view for interactive terminals. It
// doubles as the progress sink, so orchestrator lines land in the
// activity row instead of scrolling the screen. All methods are safe
// to call from unit goroutines.
type Dashboard struct {
	prog *tea.Program
}

// NewDashboard builds a dashboard for one workflow fanned out over
// targets. Call Run on the main goroutine and Stop when the batch
// finishes.
func NewDashboard(workflow string, targets []string) *Dashboard {
	return &Dashboard{prog: tea.NewProgram(newDashModel(workflow, targets))}
}

// Run blocks until Stop is called or the user dismisses the view. It
// reports whether the user asked to abort the batch.
func (d *Dashboard) Run() (aborted bool, err error) {
	final, err := d.prog.Run()
	if m, ok := final.(dashModel); ok {
		return m.aborted, err
	}
	return false, err
}

// Stop ends the view once the batch is done, leaving the final frame
// on screen.
func (d *Dashboard) Stop() {
	d.prog.Send(doneMsg{})
}

// UnitUpdate records a unit state transition.
func (d *Dashboard) UnitUpdate(target, status, reason string) {
	d.prog.Send(unitMsg{target: target, status: status, reason: reason})
}

// Progressf routes orchestrator progress lines to the activity row.
func (d *Dashboard) Progressf(format string, args ...any) {
	d.prog.Send(activityMsg(fmt.Sprintf(format, args...)))
}

// Warnf adds a warning to the warning block.
func (d *Dashboard) Warnf(format string, args ...any) {
	d.prog.Send(warnMsg(fmt.Sprintf(format, args...)))
}

type unitMsg struct {
	target string
	status string
	reason string
}

type warnMsg string

type activityMsg string

type doneMsg struct{}

type unitRow struct {
	target  string
	status  string
	reason  string
	started time.Time
	elapsed time.Duration
}

type dashModel struct {
	workflow string
	units    []unitRow
	index    map[string]int
	spin     spinner.Model
	warnings []string
	activity string
	width    int
	done     bool
	aborted  bool
}

func newDashModel(workflow string, targets []string) dashModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = WarningStyle

	units := make([]unitRow, len(targets))
	index := make(map[string]int, len(targets))
	for i, target := range targets {
		units[i] = unitRow{target: target, status: UnitPending}
		index[target] = i
	}
	return dashModel{
		workflow: workflow,
		units:    units,
		index:    index,
		spin:     sp,
		width:    80,
	}
}

// Init returns the initial command for the dashboard.
func (m dashModel) Init() tea.Cmd {
	return m.spin.Tick
}

// Update handles messages for the dashboard.
func (m dashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case unitMsg:
		idx, ok := m.index[msg.target]
		if !ok {
			return m, nil
		}
		row := &m.units[idx]
		row.status = msg.status
		row.reason = msg.reason
		switch msg.status {
		case UnitRunning:
			row.started = time.Now()
		case UnitCompleted, UnitPaused, UnitFailed:
			if !row.started.IsZero() {
				row.elapsed = time.Since(row.started)
			}
		}
		return m, nil

	case warnMsg:
		m.warnings = append(m.warnings, string(msg))
		if len(m.warnings) > maxWarnings {
			m.warnings = m.warnings[len(m.warnings)-maxWarnings:]
		}
		return m, nil

	case activityMsg:
		m.activity = string(msg)
		return m, nil

	case doneMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.aborted = true
			return m, tea.Quit
		case "q":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	}

	return m, nil
}

// View renders the dashboard.
func (m dashModel) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("batch: " + m.workflow))
	b.WriteString("\n")

	finished := m.countFinished()
	b.WriteString(DimStyle.Render(fmt.Sprintf("%d/%d units done", finished, len(m.units))))
	b.WriteString("\n")
	b.WriteString(m.renderBar(finished, len(m.units)))
	b.WriteString("\n\n")

	targetWidth := 0
	for _, u := range m.units {
		if len(u.target) > targetWidth {
			targetWidth = len(u.target)
		}
	}

	for _, u := range m.units {
		icon := m.statusIcon(u.status)
		detail := m.statusDetail(u)
		fmt.Fprintf(&b, "  %s %-*s  %s\n", icon, targetWidth, u.target, detail)
	}

	if len(m.warnings) > 0 {
		b.WriteString("\n")
		for _, w := range m.warnings {
			b.WriteString(WarningStyle.Render("  warning: " + truncate(w, m.width-12)))
			b.WriteString("\n")
		}
	}

	if m.activity != "" {
		b.WriteString("\n")
		b.WriteString(DimStyle.Render("  " + truncate(m.activity, m.width-4)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(DimStyle.Render("  q: hide view   ctrl+c: abort batch"))
	b.WriteString("\n")

	return b.String()
}

func (m dashModel) statusIcon(status string) string {
	switch status {
	case UnitCompleted:
		return IconDone
	case UnitRunning:
		return m.spin.View()
	case UnitPaused:
		return IconPaused
	case UnitFailed:
		return IconFailed
	default:
		return IconPending
	}
}

func (m dashModel) statusDetail(u unitRow) string {
	switch u.status {
	case UnitRunning:
		elapsed := time.Since(u.started).Round(time.Second)
		return WarningStyle.Render(fmt.Sprintf("running [%ds]", int(elapsed.Seconds())))
	case UnitCompleted:
		return SuccessStyle.Render("completed") + m.reasonSuffix(u)
	case UnitPaused:
		return WarningStyle.Render("paused") + m.reasonSuffix(u)
	case UnitFailed:
		return ErrorStyle.Render("failed") + m.reasonSuffix(u)
	default:
		return DimStyle.Render("pending")
	}
}

func (m dashModel) reasonSuffix(u unitRow) string {
	s := ""
	if u.reason != "" {
		s = "  " + DimStyle.Render(truncate(u.reason, m.width/2))
	}
	if u.elapsed > 0 {
		s += "  " + DimStyle.Render(fmt.Sprintf("[%ds]", int(u.elapsed.Round(time.Second).Seconds())))
	}
	return s
}

func (m dashModel) renderBar(finished, total int) string {
	if total == 0 {
		return ""
	}
	barWidth := m.width - 4
	if barWidth > 40 {
		barWidth = 40
	}
	if barWidth < 10 {
		barWidth = 10
	}
	fill := finished * barWidth / total
	filled := ProgressFullStyle.Render(strings.Repeat("█", fill))
	empty := ProgressEmptyStyle.Render(strings.Repeat("░", barWidth-fill))
	return filled + empty
}

func (m dashModel) countFinished() int {
	n := 0
	for _, u := range m.units {
		switch u.status {
		case UnitCompleted, UnitPaused, UnitFailed:
			n++
		}
	}
	return n
}

func truncate(s string, n int) string {
	if n < 4 {
		n = 4
	}
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
