package workflow

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParse_FullDocument(t *testing.T) {
	input := `# Review workflow
ADAPTER claude-cli
MODEL sonnet
MODE fresh
MAX-CYCLES 3
CONTEXT src/*.go
CONTEXT docs/*.md
CONTEXT-LIMIT 75
ON-CONTEXT-LIMIT compact
DENY-FILES *.env, secrets.json
ALLOW-DIR src

PROMPT Review the code for correctness.
RUN go vet ./...
CHECKPOINT after-vet
`

	doc, err := Parse(input, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if doc.Adapter != "claude-cli" {
		t.Errorf("Adapter = %q, want %q", doc.Adapter, "claude-cli")
	}
	if doc.Model != "sonnet" {
		t.Errorf("Model = %q, want %q", doc.Model, "sonnet")
	}
	if doc.Mode != ModeFresh {
		t.Errorf("Mode = %q, want %q", doc.Mode, ModeFresh)
	}
	if doc.MaxCycles != 3 {
		t.Errorf("MaxCycles = %d, want 3", doc.MaxCycles)
	}
	if len(doc.ContextPatterns) != 2 || doc.ContextPatterns[0] != "src/*.go" {
		t.Errorf("ContextPatterns = %v, want [src/*.go docs/*.md]", doc.ContextPatterns)
	}
	if doc.ContextLimitPercent != 75 {
		t.Errorf("ContextLimitPercent = %d, want 75", doc.ContextLimitPercent)
	}
	if doc.OnContextLimit != OverflowCompact {
		t.Errorf("OnContextLimit = %q, want compact", doc.OnContextLimit)
	}
	if len(doc.Restrictions.DenyFiles) != 2 {
		t.Errorf("DenyFiles = %v, want 2 patterns", doc.Restrictions.DenyFiles)
	}
	if len(doc.Restrictions.AllowDirs) != 1 || doc.Restrictions.AllowDirs[0] != "src" {
		t.Errorf("AllowDirs = %v, want [src]", doc.Restrictions.AllowDirs)
	}

	if len(doc.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(doc.Steps))
	}
	if p, ok := doc.Steps[0].(PromptStep); !ok || p.Text != "Review the code for correctness." {
		t.Errorf("Steps[0] = %#v, want prompt step", doc.Steps[0])
	}
	if r, ok := doc.Steps[1].(RunStep); !ok || r.Spec.Command != "go vet ./..." {
		t.Errorf("Steps[1] = %#v, want run step", doc.Steps[1])
	}
	if c, ok := doc.Steps[2].(CheckpointStep); !ok || c.Name != "after-vet" {
		t.Errorf("Steps[2] = %#v, want checkpoint step", doc.Steps[2])
	}
}

func TestParse_BarePromptOnly(t *testing.T) {
	input := "Summarize the architecture of this project.\n\nFocus on the storage layer.\n"

	doc, err := Parse(input, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(doc.Steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(doc.Steps))
	}
	p, ok := doc.Steps[0].(PromptStep)
	if !ok {
		t.Fatalf("Steps[0] = %#v, want PromptStep", doc.Steps[0])
	}
	want := "Summarize the architecture of this project.\n\nFocus on the storage layer."
	if p.Text != want {
		t.Errorf("prompt text = %q, want %q", p.Text, want)
	}
}

func TestParse_ContinuationLines(t *testing.T) {
	input := "PROMPT First line\n  second line\n\n  fourth line after a break\nRUN true\n"

	doc, err := Parse(input, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p, ok := doc.Steps[0].(PromptStep)
	if !ok {
		t.Fatalf("Steps[0] = %#v, want PromptStep", doc.Steps[0])
	}
	want := "First line\nsecond line\n\nfourth line after a break"
	if p.Text != want {
		t.Errorf("prompt text = %q, want %q", p.Text, want)
	}
}

func TestParse_UnknownDirectivePreserved(t *testing.T) {
	input := "FUTURE-KNOB 42\nPROMPT hello\n"

	doc, err := Parse(input, "")
	if err != nil {
		t.Fatalf("unknown directive should not be fatal: %v", err)
	}

	if len(doc.Unknown) != 1 {
		t.Fatalf("Unknown = %v, want 1 entry", doc.Unknown)
	}
	u := doc.Unknown[0]
	if u.Keyword != "FUTURE-KNOB" || u.Value != "42" || u.Line != 1 {
		t.Errorf("Unknown[0] = %+v, want FUTURE-KNOB/42/line 1", u)
	}
}

func TestParse_NoStepsIsError(t *testing.T) {
	input := "ADAPTER mock\nMODE accumulate\n"

	_, err := Parse(input, "")
	if err == nil {
		t.Fatal("expected error for workflow without steps")
	}
	if !strings.Contains(err.Error(), "no steps") {
		t.Errorf("error = %q, want mention of missing steps", err)
	}
}

func TestParse_EmptyDocumentIsError(t *testing.T) {
	if _, err := Parse("", ""); err == nil {
		t.Fatal("expected error for empty workflow")
	}
}

func TestParse_StepOrderMatchesText(t *testing.T) {
	input := `PROMPT one
RUN echo a
PAUSE waiting for review
PROMPT two
COMPACT notes.md, plan.md
NEW-CONVERSATION
PROMPT three
`

	doc, err := Parse(input, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantKinds := []string{"prompt", "run", "pause", "prompt", "compact", "new", "prompt"}
	if len(doc.Steps) != len(wantKinds) {
		t.Fatalf("got %d steps, want %d", len(doc.Steps), len(wantKinds))
	}
	for i, step := range doc.Steps {
		var kind string
		switch step.(type) {
		case PromptStep:
			kind = "prompt"
		case RunStep:
			kind = "run"
		case PauseStep:
			kind = "pause"
		case CompactStep:
			kind = "compact"
		case NewConversationStep:
			kind = "new"
		}
		if kind != wantKinds[i] {
			t.Errorf("Steps[%d] kind = %q, want %q", i, kind, wantKinds[i])
		}
	}

	c := doc.Steps[4].(CompactStep)
	if len(c.Preserve) != 2 || c.Preserve[0] != "notes.md" {
		t.Errorf("compact preserve = %v, want [notes.md plan.md]", c.Preserve)
	}
	if doc.PromptCount() != 3 {
		t.Errorf("PromptCount = %d, want 3", doc.PromptCount())
	}
}

func TestParse_RunModifiersApplyToNextRunOnly(t *testing.T) {
	input := `RUN-ON-ERROR retry:2
RUN-TIMEOUT 90
RUN-OUTPUT-LIMIT 4000
RUN-ENV CI=1
RUN make test
RUN make build
`

	doc, err := Parse(input, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := doc.Steps[0].(RunStep).Spec
	if first.OnError != OnErrorRetry || first.Retries != 2 {
		t.Errorf("first run OnError = %q/%d, want retry/2", first.OnError, first.Retries)
	}
	if first.Timeout != 90*time.Second {
		t.Errorf("first run Timeout = %v, want 90s", first.Timeout)
	}
	if first.OutputLimit != 4000 {
		t.Errorf("first run OutputLimit = %d, want 4000", first.OutputLimit)
	}
	if len(first.Env) != 1 || first.Env[0] != "CI=1" {
		t.Errorf("first run Env = %v, want [CI=1]", first.Env)
	}

	second := doc.Steps[1].(RunStep).Spec
	if second.OnError != "" || second.Timeout != 0 || second.OutputLimit != 0 || second.Env != nil {
		t.Errorf("modifiers leaked into second run: %+v", second)
	}
}

func TestParse_AllowShellStateful(t *testing.T) {
	input := `RUN echo plain
ALLOW-SHELL true
RUN echo $HOME | wc -c
`

	doc, err := Parse(input, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if doc.Steps[0].(RunStep).Spec.Shell {
		t.Error("first run should not use shell")
	}
	if !doc.Steps[1].(RunStep).Spec.Shell {
		t.Error("second run should use shell")
	}
	if !doc.AllowShell {
		t.Error("document AllowShell should be true")
	}
}

func TestParse_BadValues(t *testing.T) {
	tests := []struct {
		name  string
		input string
		line  int
	}{
		{"bad mode", "MODE sometimes\nPROMPT x\n", 1},
		{"bad max cycles", "MAX-CYCLES zero\nPROMPT x\n", 1},
		{"bad context limit", "PROMPT x\nCONTEXT-LIMIT 150\n", 2},
		{"bad overflow action", "ON-CONTEXT-LIMIT panic\nPROMPT x\n", 1},
		{"bad on-error", "RUN-ON-ERROR explode\nRUN true\n", 1},
		{"bad retry count", "RUN-ON-ERROR retry:0\nRUN true\n", 1},
		{"bad timeout", "RUN-TIMEOUT soon\nRUN true\n", 1},
		{"bad env", "RUN-ENV PATH\nRUN true\n", 1},
		{"bad output format", "OUTPUT-FORMAT yaml\nPROMPT x\n", 1},
		{"empty run", "RUN\nPROMPT x\n", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input, "")
			if err == nil {
				t.Fatal("expected parse error")
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("error = %T, want *ParseError", err)
			}
			if perr.Line != tt.line {
				t.Errorf("error line = %d, want %d", perr.Line, tt.line)
			}
		})
	}
}

func TestParse_CommentsAndBlanksSkipped(t *testing.T) {
	input := `# workflow comment

ADAPTER mock
# another comment
PROMPT hello
`

	doc, err := Parse(input, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Adapter != "mock" {
		t.Errorf("Adapter = %q, want mock", doc.Adapter)
	}
	if len(doc.Steps) != 1 {
		t.Errorf("got %d steps, want 1", len(doc.Steps))
	}
}

func TestParse_ContentRefs(t *testing.T) {
	input := `PROLOGUE You are reviewing {WORKFLOW_NAME}.
EPILOGUE @snippets/closing.md
PROMPT go
`

	doc, err := Parse(input, "/project")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(doc.Prologues) != 1 || doc.Prologues[0].Inline == "" {
		t.Fatalf("Prologues = %+v, want one inline ref", doc.Prologues)
	}
	if len(doc.Epilogues) != 1 {
		t.Fatalf("Epilogues = %+v, want one ref", doc.Epilogues)
	}
	ep := doc.Epilogues[0]
	if !ep.IsPath() || ep.Path != "/project/snippets/closing.md" {
		t.Errorf("epilogue ref = %+v, want path under /project", ep)
	}
}

func TestParse_RelativePathsResolveAgainstBase(t *testing.T) {
	input := "CWD work\nADD-DIR ../shared\nPROMPT x\n"

	doc, err := Parse(input, "/project/flows")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.WorkingDir != "/project/flows/work" {
		t.Errorf("WorkingDir = %q, want /project/flows/work", doc.WorkingDir)
	}
	if len(doc.AddDirs) != 1 || doc.AddDirs[0] != "/project/shared" {
		t.Errorf("AddDirs = %v, want [/project/shared]", doc.AddDirs)
	}
}
