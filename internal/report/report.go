// Package report renders run summaries. A Report is the flattened view
// of one finished run; the workflow's OUTPUT-FORMAT picks the renderer
// and OUTPUT-FILE picks the destination.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bewest/sdqctl-sub002/internal/orchestrator"
	"github.com/bewest/sdqctl-sub002/internal/session"
	"github.com/bewest/sdqctl-sub002/internal/workflow"
)

// Report carries everything a summary needs, independent of format.
// Optional fields render only when set.
type Report struct {
	Workflow string `json:"workflow"`
	Target   string `json:"target,omitempty"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	RunID    string `json:"run_id,omitempty"`
	Cycles   int    `json:"cycles"`

	Stats session.Stats `json:"stats"`

	// Checkpoint is the surviving snapshot to resume from, empty after
	// a clean completion.
	Checkpoint string `json:"checkpoint,omitempty"`

	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Duration string    `json:"duration"`
}

// FromOutcome flattens a run outcome into a Report.
func FromOutcome(out *orchestrator.Outcome) *Report {
	return &Report{
		Workflow:   out.Workflow,
		Target:     out.Target,
		Status:     string(out.Status),
		Reason:     out.Reason,
		RunID:      out.RunID,
		Cycles:     out.Cycles,
		Stats:      out.Stats,
		Checkpoint: out.Checkpoint,
		Started:    out.Started,
		Finished:   out.Finished,
		Duration:   formatDuration(out.Finished.Sub(out.Started)),
	}
}

// Renderer turns Reports into output text for one workflow. Header and
// footer refs come from the document and are expanded with the run's
// variables.
type Renderer struct {
	Doc  *workflow.Document
	Vars workflow.Vars

	// Warn receives non-fatal rendering problems. Nil drops them.
	Warn func(format string, args ...any)
}

// Render produces the report body in the document's output format,
// wrapped in any HEADER and FOOTER content.
func (rn *Renderer) Render(rep *Report) (string, error) {
	var body string
	switch rn.Doc.OutputFormat {
	case workflow.FormatJSON:
		data, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encoding report: %w", err)
		}
		body = string(data)
	case workflow.FormatMarkdown:
		body = rep.Markdown()
	default:
		body = rep.Text()
	}

	parts := make([]string, 0, len(rn.Doc.Headers)+len(rn.Doc.Footers)+1)
	for _, ref := range rn.Doc.Headers {
		if text := rn.renderRef(ref); text != "" {
			parts = append(parts, text)
		}
	}
	parts = append(parts, body)
	for _, ref := range rn.Doc.Footers {
		if text := rn.renderRef(ref); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// Write renders the report and sends it to OUTPUT-FILE when the
// document names one, stdout otherwise. It returns the file path
// written, empty for stdout. Relative OUTPUT-FILE paths land next to
// the workflow file.
func (rn *Renderer) Write(rep *Report, stdout io.Writer) (string, error) {
	text, err := rn.Render(rep)
	if err != nil {
		return "", err
	}
	if rn.Doc.OutputFile == "" {
		fmt.Fprintln(stdout, text)
		return "", nil
	}
	path := rn.Vars.Expand(rn.Doc.OutputFile)
	if !filepath.IsAbs(path) {
		path = filepath.Join(rn.Doc.BasePath, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(text+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}

func (rn *Renderer) renderRef(ref workflow.ContentRef) string {
	text, err := ref.Resolve()
	if err != nil {
		rn.warnf("reading %s: %v", ref.Path, err)
		return ""
	}
	return rn.Vars.Expand(text)
}

func (rn *Renderer) warnf(format string, args ...any) {
	if rn.Warn != nil {
		rn.Warn(format, args...)
	}
}

// Text renders the plain-text summary.
func (rep *Report) Text() string {
	var b strings.Builder
	bar := strings.Repeat("=", 40)

	fmt.Fprintf(&b, "%s\n", bar)
	fmt.Fprintf(&b, "  Run Report: %s\n", rep.Workflow)
	fmt.Fprintf(&b, "%s\n\n", bar)

	fmt.Fprintf(&b, "Status:      %s\n", rep.Status)
	if rep.Reason != "" {
		fmt.Fprintf(&b, "Reason:      %s\n", rep.Reason)
	}
	if rep.Target != "" {
		fmt.Fprintf(&b, "Target:      %s\n", rep.Target)
	}
	if rep.RunID != "" {
		fmt.Fprintf(&b, "Run:         %s\n", rep.RunID)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Cycles:      %d\n", rep.Cycles)
	fmt.Fprintf(&b, "Turns:       %d\n", rep.Stats.Turns)
	fmt.Fprintf(&b, "Tokens:      %d in / %d out\n", rep.Stats.InputTokens, rep.Stats.OutputTokens)
	if rep.Stats.ToolCalls > 0 {
		fmt.Fprintf(&b, "Tool calls:  %d\n", rep.Stats.ToolCalls)
	}
	if rep.Stats.CommandsRun > 0 {
		fmt.Fprintf(&b, "Commands:    %d\n", rep.Stats.CommandsRun)
	}
	if rep.Stats.Compactions > 0 {
		fmt.Fprintf(&b, "Compactions: %d\n", rep.Stats.Compactions)
	}
	fmt.Fprintf(&b, "Duration:    %s\n", rep.Duration)

	if rep.Checkpoint != "" {
		fmt.Fprintf(&b, "\nCheckpoint:  %s\n", rep.Checkpoint)
		fmt.Fprintf(&b, "Resume with: sdqctl resume %s\n", rep.Checkpoint)
	}

	fmt.Fprintf(&b, "%s", bar)
	return b.String()
}

// Markdown renders the summary as a Markdown section.
func (rep *Report) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Run Report: %s\n\n", rep.Workflow)
	fmt.Fprintf(&b, "- **Status:** %s\n", rep.Status)
	if rep.Reason != "" {
		fmt.Fprintf(&b, "- **Reason:** %s\n", rep.Reason)
	}
	if rep.Target != "" {
		fmt.Fprintf(&b, "- **Target:** %s\n", rep.Target)
	}
	fmt.Fprintf(&b, "- **Cycles:** %d\n", rep.Cycles)
	fmt.Fprintf(&b, "- **Turns:** %d\n", rep.Stats.Turns)
	fmt.Fprintf(&b, "- **Tokens:** %d in / %d out\n", rep.Stats.InputTokens, rep.Stats.OutputTokens)
	if rep.Stats.ToolCalls > 0 {
		fmt.Fprintf(&b, "- **Tool calls:** %d\n", rep.Stats.ToolCalls)
	}
	if rep.Stats.CommandsRun > 0 {
		fmt.Fprintf(&b, "- **Commands:** %d\n", rep.Stats.CommandsRun)
	}
	if rep.Stats.Compactions > 0 {
		fmt.Fprintf(&b, "- **Compactions:** %d\n", rep.Stats.Compactions)
	}
	fmt.Fprintf(&b, "- **Duration:** %s\n", rep.Duration)
	if rep.Checkpoint != "" {
		fmt.Fprintf(&b, "- **Checkpoint:** `%s`\n", rep.Checkpoint)
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatDuration renders a duration in coarse human units.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
