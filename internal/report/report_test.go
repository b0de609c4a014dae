package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bewest/sdqctl-sub002/internal/orchestrator"
	"github.com/bewest/sdqctl-sub002/internal/session"
	"github.com/bewest/sdqctl-sub002/internal/workflow"
)

func sampleReport() *Report {
	started := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	return &Report{
		Workflow: "review.sdq",
		Status:   "completed",
		Reason:   "completed 2 of 2 cycles",
		Cycles:   2,
		Stats: session.Stats{
			InputTokens:  812,
			OutputTokens: 1024,
			Turns:        4,
			CommandsRun:  1,
		},
		Started:  started,
		Finished: started.Add(5*time.Minute + 32*time.Second),
		Duration: "5m 32s",
	}
}

func parseDoc(t *testing.T, text, base string) *workflow.Document {
	t.Helper()
	doc, err := workflow.Parse(text, base)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return doc
}

func TestFromOutcome(t *testing.T) {
	started := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	out := &orchestrator.Outcome{
		Status:     orchestrator.StatusFailed,
		Reason:     "loop detected: same response 3 times",
		Workflow:   "fix.sdq",
		Target:     "alpha",
		Cycles:     3,
		Stats:      session.Stats{Turns: 6, InputTokens: 100, OutputTokens: 200},
		Checkpoint: "/tmp/cp.json",
		Started:    started,
		Finished:   started.Add(45 * time.Second),
	}

	rep := FromOutcome(out)

	if rep.Status != "failed" {
		t.Errorf("Status = %q, want %q", rep.Status, "failed")
	}
	if rep.Target != "alpha" {
		t.Errorf("Target = %q, want %q", rep.Target, "alpha")
	}
	if rep.Checkpoint != "/tmp/cp.json" {
		t.Errorf("Checkpoint = %q, want %q", rep.Checkpoint, "/tmp/cp.json")
	}
	if rep.Duration != "45s" {
		t.Errorf("Duration = %q, want %q", rep.Duration, "45s")
	}
	if rep.Stats.Turns != 6 {
		t.Errorf("Stats.Turns = %d, want 6", rep.Stats.Turns)
	}
}

func TestTextShowsResumeHint(t *testing.T) {
	rep := sampleReport()
	rep.Status = "paused"
	rep.Reason = "waiting for human review"
	rep.Checkpoint = ".sdqctl/checkpoints/pause-ab12.json"

	text := rep.Text()

	if !strings.Contains(text, "Status:      paused") {
		t.Errorf("text missing status line:\n%s", text)
	}
	if !strings.Contains(text, "Reason:      waiting for human review") {
		t.Errorf("text missing reason line:\n%s", text)
	}
	if !strings.Contains(text, "Resume with: sdqctl resume .sdqctl/checkpoints/pause-ab12.json") {
		t.Errorf("text missing resume hint:\n%s", text)
	}
}

func TestTextOmitsEmptyFields(t *testing.T) {
	rep := sampleReport()

	text := rep.Text()

	for _, unwanted := range []string{"Target:", "Run:", "Checkpoint:", "Tool calls:", "Compactions:"} {
		if strings.Contains(text, unwanted) {
			t.Errorf("text includes %q for a zero field:\n%s", unwanted, text)
		}
	}
	if !strings.Contains(text, "Commands:    1") {
		t.Errorf("text missing commands line:\n%s", text)
	}
	if !strings.Contains(text, "Tokens:      812 in / 1024 out") {
		t.Errorf("text missing tokens line:\n%s", text)
	}
}

func TestRenderJSONRoundTrips(t *testing.T) {
	doc := parseDoc(t, "OUTPUT-FORMAT json\nPROMPT hi", t.TempDir())
	rn := &Renderer{Doc: doc}

	got, err := rn.Render(sampleReport())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	var back Report
	if err := json.Unmarshal([]byte(got), &back); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, got)
	}
	if back.Workflow != "review.sdq" {
		t.Errorf("workflow = %q, want %q", back.Workflow, "review.sdq")
	}
	if back.Stats.Turns != 4 {
		t.Errorf("stats.turns = %d, want 4", back.Stats.Turns)
	}
	if back.Duration != "5m 32s" {
		t.Errorf("duration = %q, want %q", back.Duration, "5m 32s")
	}
}

func TestRenderMarkdown(t *testing.T) {
	doc := parseDoc(t, "OUTPUT-FORMAT markdown\nPROMPT hi", t.TempDir())
	rn := &Renderer{Doc: doc}

	got, err := rn.Render(sampleReport())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if !strings.HasPrefix(got, "# Run Report: review.sdq") {
		t.Errorf("markdown missing title:\n%s", got)
	}
	if !strings.Contains(got, "- **Status:** completed") {
		t.Errorf("markdown missing status:\n%s", got)
	}
	if strings.Contains(got, "- **Checkpoint:**") {
		t.Errorf("markdown includes checkpoint for a clean run:\n%s", got)
	}
}

func TestHeaderAndFooterWrapBody(t *testing.T) {
	text := "HEADER Daily review for {WORKFLOW_NAME}\nFOOTER generated {DATE}\nPROMPT summarize"
	doc := parseDoc(t, text, t.TempDir())
	rn := &Renderer{
		Doc: doc,
		Vars: workflow.Vars{
			WorkflowName: "review",
			Now:          time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
		},
	}

	got, err := rn.Render(sampleReport())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if !strings.HasPrefix(got, "Daily review for review\n\n") {
		t.Errorf("header not first:\n%s", got)
	}
	if !strings.HasSuffix(got, "generated 2025-03-14") {
		t.Errorf("footer not last:\n%s", got)
	}
	if !strings.Contains(got, "Status:      completed") {
		t.Errorf("body missing between header and footer:\n%s", got)
	}
}

func TestMissingHeaderRefWarnsAndSkips(t *testing.T) {
	base := t.TempDir()
	doc := parseDoc(t, "HEADER @missing-banner.md\nPROMPT hi", base)
	var warnings []string
	rn := &Renderer{
		Doc:  doc,
		Warn: func(format string, args ...any) { warnings = append(warnings, fmt.Sprintf(format, args...)) },
	}

	got, err := rn.Render(sampleReport())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if !strings.HasPrefix(got, strings.Repeat("=", 40)) {
		t.Errorf("body not first after skipped header:\n%s", got)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "missing-banner.md") {
		t.Errorf("warnings = %v, want one naming the missing file", warnings)
	}
}

func TestWriteToOutputFile(t *testing.T) {
	base := t.TempDir()
	doc := parseDoc(t, "OUTPUT-FORMAT markdown\nOUTPUT-FILE reports/{TARGET}.md\nPROMPT hi", base)
	rn := &Renderer{Doc: doc, Vars: workflow.Vars{Target: "alpha"}}
	rep := sampleReport()
	rep.Target = "alpha"

	path, err := rn.Write(rep, io.Discard)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := filepath.Join(base, "reports", "alpha.md")
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("reading report file: %v", err)
	}
	if !strings.HasPrefix(string(data), "# Run Report:") {
		t.Errorf("report file content:\n%s", data)
	}
}

func TestWriteToStdoutWithoutOutputFile(t *testing.T) {
	doc := parseDoc(t, "PROMPT hi", t.TempDir())
	rn := &Renderer{Doc: doc}
	var buf bytes.Buffer

	path, err := rn.Write(sampleReport(), &buf)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	if path != "" {
		t.Errorf("path = %q, want empty for stdout", path)
	}
	if !strings.Contains(buf.String(), "Run Report: review.sdq") {
		t.Errorf("stdout output:\n%s", buf.String())
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "< 1s"},
		{45 * time.Second, "45s"},
		{5*time.Minute + 32*time.Second, "5m 32s"},
		{time.Hour + 12*time.Minute + 5*time.Second, "1h 12m 5s"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.d); got != tc.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}
