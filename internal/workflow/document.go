// document.go defines the parsed workflow document model.
//
// Package workflow models and parses the sdqctl workflow language: a
// line-oriented directive format describing how an agent session is
// configured, what prompts and commands it runs, and how its context is
// managed across cycles.
package workflow

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SessionMode controls how conversation state carries across cycles.
type SessionMode string

const (
	ModeAccumulate SessionMode = "accumulate"
	ModeCompact    SessionMode = "compact"
	ModeFresh      SessionMode = "fresh"
)

// OverflowAction is what happens when the context budget crosses the
// configured threshold mid-run.
type OverflowAction string

const (
	OverflowCompact OverflowAction = "compact"
	OverflowStop    OverflowAction = "stop"
)

// CheckpointPolicy selects automatic checkpoint creation points.
type CheckpointPolicy string

const (
	CheckpointNone   CheckpointPolicy = "none"
	CheckpointCycle  CheckpointPolicy = "cycle"
	CheckpointPrompt CheckpointPolicy = "prompt"
)

// OutputFormat selects the run report rendering.
type OutputFormat string

const (
	FormatText     OutputFormat = "text"
	FormatJSON     OutputFormat = "json"
	FormatMarkdown OutputFormat = "markdown"
)

// ErrorPolicy is the RUN failure disposition.
type ErrorPolicy string

const (
	OnErrorStop     ErrorPolicy = "stop"
	OnErrorContinue ErrorPolicy = "continue"
	OnErrorRetry    ErrorPolicy = "retry"
)

// RunOutput is where captured command output goes.
type RunOutput string

const (
	OutputSession RunOutput = "session" // fed back into the conversation
	OutputDiscard RunOutput = "discard" // logged only
)

// RunSpec carries one RUN step's command and the modifiers staged for it.
type RunSpec struct {
	Command     string
	OnError     ErrorPolicy   // zero value means the config default applies
	Retries     int           // used when OnError is retry
	Output      RunOutput     // zero value means session
	OutputLimit int           // max captured chars, 0 = config default
	Timeout     time.Duration // 0 = config default
	Dir         string
	Env         []string // KEY=VALUE pairs appended to the parent env
	Shell       bool     // run via shell instead of argv splitting
}

// ContentRef is either inline text or an @path reference. Path refs are
// resolved when rendered, not at parse time, so on-disk edits between
// renders are picked up.
type ContentRef struct {
	Inline string
	Path   string
}

// IsPath reports whether the ref points at a file.
func (c ContentRef) IsPath() bool { return c.Path != "" }

// Resolve returns the ref's text, reading path refs from disk at call
// time. Variable expansion is the caller's job.
func (c ContentRef) Resolve() (string, error) {
	if c.IsPath() {
		data, err := os.ReadFile(c.Path)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(data), "\n"), nil
	}
	return c.Inline, nil
}

// UnknownDirective preserves a directive the parser does not recognize.
// Unknown directives are never acted on and never fatal; they survive
// serialization so newer documents pass through older builds.
type UnknownDirective struct {
	Keyword string
	Value   string
	Line    int
}

// Step is one executable unit of a workflow. The set of implementations is
// closed: PromptStep, RunStep, CheckpointStep, CompactStep, PauseStep and
// NewConversationStep. Executors dispatch with a type switch.
type Step interface {
	isStep()
}

// PromptStep sends rendered prompt text to the agent and waits for the turn.
type PromptStep struct {
	Text string
}

// RunStep executes a local command with the staged modifiers.
type RunStep struct {
	Spec RunSpec
}

// CheckpointStep persists a named checkpoint of session state.
type CheckpointStep struct {
	Name string
}

// CompactStep asks the adapter to compact the conversation, optionally
// preserving content matching the listed patterns.
type CompactStep struct {
	Preserve []string
}

// PauseStep checkpoints the session and stops execution for later resume.
type PauseStep struct {
	Message string
}

// NewConversationStep tears down the backend conversation and starts a
// fresh one while keeping workflow position.
type NewConversationStep struct{}

func (PromptStep) isStep()          {}
func (RunStep) isStep()             {}
func (CheckpointStep) isStep()      {}
func (CompactStep) isStep()         {}
func (PauseStep) isStep()           {}
func (NewConversationStep) isStep() {}

// Document is a parsed workflow. It is immutable after Parse returns;
// executors read it but never write it back.
type Document struct {
	Adapter             string
	Model               string
	Mode                SessionMode // empty means unset (config default applies)
	MaxCycles           int         // 0 means unset
	WorkingDir          string      // resolved against BasePath at parse time
	AddDirs             []string
	ContextPatterns     []string // ordered as written
	ContextLimitPercent int      // 0 means unset
	OnContextLimit      OverflowAction
	CompactPreserve     []string
	CheckpointEvery     CheckpointPolicy
	AllowShell          bool

	Restrictions Restrictions

	Steps   []Step   // never empty for a valid document
	Prompts []string // flat view of PromptStep texts, in order

	Prologues []ContentRef
	Epilogues []ContentRef
	Headers   []ContentRef
	Footers   []ContentRef

	OutputFormat OutputFormat
	OutputFile   string

	Unknown []UnknownDirective

	Source   string // file path, or "<inline>" when parsed from text
	BasePath string // directory relative paths were resolved against
}

// Name returns a short human identity for the document: the source file
// base name without extension, or "<inline>".
func (d *Document) Name() string {
	if d.Source == "" || d.Source == inlineSource {
		return inlineSource
	}
	base := filepath.Base(d.Source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// IsInline reports whether the document came from text rather than a
// file on disk.
func (d *Document) IsInline() bool {
	return d.Source == "" || d.Source == inlineSource
}

// PromptCount returns the number of prompt steps.
func (d *Document) PromptCount() int {
	n := 0
	for _, s := range d.Steps {
		if _, ok := s.(PromptStep); ok {
			n++
		}
	}
	return n
}

const inlineSource = "<inline>"
