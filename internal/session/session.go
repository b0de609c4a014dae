// Package session tracks the live state of one agent conversation across
// workflow cycles: position cursors, transcript, context, token stats,
// and the state machine gating lifecycle transitions.
package session

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/bewest/sdqctl-sub002/internal/adapter"
	"github.com/bewest/sdqctl-sub002/internal/contextmgr"
	"github.com/bewest/sdqctl-sub002/internal/workflow"
)

// State is the session lifecycle position.
type State string

const (
	StateCreated    State = "created"
	StateActive     State = "active"
	StateCompacting State = "compacting"
	StatePaused     State = "paused"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Message is one transcript entry.
type Message struct {
	Role      string    `json:"role"` // user or assistant
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the engine-side record of one conversation. A single
// executor owns a Session at a time; parallel units each build their own.
type Session struct {
	ID    string
	Nonce string // short tag naming per-session artifacts like the stop file

	Workflow  *workflow.Document
	Mode      workflow.SessionMode
	MaxCycles int

	CycleNumber int // 1-based
	PromptIndex int // prompts completed in the current cycle
	StepIndex   int // next step ordinal, for exact resume

	Messages []Message
	Context  *contextmgr.Manager
	Stats    Stats
	State    State
	Handle   *adapter.Handle
	Target   string // batch target value, empty for single runs

	thresholdPercent int
	lastUsage        adapter.Usage
}

// New builds a session in the created state. thresholdPercent governs
// NeedsCompaction; zero disables the check.
func New(doc *workflow.Document, ctx *contextmgr.Manager, mode workflow.SessionMode, maxCycles, thresholdPercent int) *Session {
	id := uuid.NewString()
	return &Session{
		ID:               id,
		Nonce:            id[:8],
		Workflow:         doc,
		Mode:             mode,
		MaxCycles:        maxCycles,
		CycleNumber:      1,
		Context:          ctx,
		State:            StateCreated,
		thresholdPercent: thresholdPercent,
	}
}

// Activate moves created to active. Activating an active session is a
// no-op; anything else is an illegal transition.
func (s *Session) Activate() error {
	switch s.State {
	case StateCreated:
		s.State = StateActive
		return nil
	case StateActive:
		return nil
	default:
		return fmt.Errorf("cannot activate session in %s state", s.State)
	}
}

// BeginCompaction moves active to compacting.
func (s *Session) BeginCompaction() error {
	if s.State != StateActive {
		return fmt.Errorf("cannot compact session in %s state", s.State)
	}
	s.State = StateCompacting
	return nil
}

// EndCompaction returns a compacting session to active.
func (s *Session) EndCompaction() error {
	if s.State != StateCompacting {
		return fmt.Errorf("cannot finish compaction in %s state", s.State)
	}
	s.State = StateActive
	s.Stats.Compactions++
	return nil
}

// Pause moves active to paused.
func (s *Session) Pause() error {
	if s.State != StateActive {
		return fmt.Errorf("cannot pause session in %s state", s.State)
	}
	s.State = StatePaused
	return nil
}

// Complete moves active to completed.
func (s *Session) Complete() error {
	if s.State != StateActive {
		return fmt.Errorf("cannot complete session in %s state", s.State)
	}
	s.State = StateCompleted
	return nil
}

// Fail marks the session failed. Failure is legal from any non-terminal
// state; failing twice is a no-op.
func (s *Session) Fail() {
	if s.Terminal() && s.State != StateFailed {
		return
	}
	s.State = StateFailed
}

// Terminal reports whether the session reached a final state.
func (s *Session) Terminal() bool {
	switch s.State {
	case StatePaused, StateCompleted, StateFailed:
		return true
	}
	return false
}

// AdvancePrompt records one completed prompt and reports whether the
// document has more prompts in this cycle.
func (s *Session) AdvancePrompt() bool {
	s.PromptIndex++
	return s.PromptIndex < s.Workflow.PromptCount()
}

// AdvanceCycle moves to the next cycle and rewinds the step cursors.
func (s *Session) AdvanceCycle() {
	s.CycleNumber++
	s.PromptIndex = 0
	s.StepIndex = 0
}

// AppendMessage records a transcript entry.
func (s *Session) AppendMessage(role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, Timestamp: time.Now()})
}

// RecordUsage folds a turn's usage into the stats and remembers the
// latest backend-reported occupancy for NeedsCompaction.
func (s *Session) RecordUsage(u adapter.Usage) {
	s.Stats.InputTokens += u.InputTokens
	s.Stats.OutputTokens += u.OutputTokens
	s.lastUsage = u
}

// MessageTokens estimates the transcript's token weight.
func (s *Session) MessageTokens() int {
	total := 0
	for _, m := range s.Messages {
		total += contextmgr.EstimateTokens(m.Content)
	}
	return total
}

// NeedsCompaction reports whether context occupancy crossed the
// threshold. Backend-reported usage wins when present; otherwise the
// estimate is context files plus transcript weight.
func (s *Session) NeedsCompaction() bool {
	if s.thresholdPercent <= 0 {
		return false
	}
	if s.lastUsage.UsedTokens > 0 && s.lastUsage.MaxTokens > 0 {
		return s.lastUsage.UsedTokens >= s.lastUsage.MaxTokens*s.thresholdPercent/100
	}
	if s.Context == nil {
		return false
	}
	return s.Context.IsNearLimit(s.MessageTokens(), s.thresholdPercent)
}

// ResetConversation drops the transcript and usage memory. Fresh-mode
// cycles call this after replacing the backend conversation; the caller
// reloads the context manager separately.
func (s *Session) ResetConversation() {
	s.Messages = nil
	s.lastUsage = adapter.Usage{}
}

// NoteCompacted rewrites the usage memory after a compaction so the next
// NeedsCompaction check reflects the shrunken conversation instead of the
// pre-compaction occupancy.
func (s *Session) NoteCompacted(usedTokens int) {
	if s.lastUsage.MaxTokens > 0 {
		s.lastUsage.UsedTokens = usedTokens
		return
	}
	s.lastUsage = adapter.Usage{}
}

// StopFile returns the per-session stop sentinel path under stateDir.
// The agent is told this name and may create the file to end the run.
func (s *Session) StopFile(stateDir string) string {
	return filepath.Join(stateDir, "stop-"+s.Nonce)
}

// ThresholdPercent exposes the compaction threshold for reporting.
func (s *Session) ThresholdPercent() int { return s.thresholdPercent }

// LastUsage returns the most recent backend usage snapshot.
func (s *Session) LastUsage() adapter.Usage { return s.lastUsage }
