// Package executor walks a workflow's steps against a live agent
// session: rendering and sending prompts, running local commands,
// checkpointing, compacting, and pausing. One executor drives one
// session; the orchestrator owns cycle sequencing above it.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bewest/sdqctl-sub002/internal/adapter"
	"github.com/bewest/sdqctl-sub002/internal/config"
	"github.com/bewest/sdqctl-sub002/internal/contextmgr"
	"github.com/bewest/sdqctl-sub002/internal/log"
	"github.com/bewest/sdqctl-sub002/internal/loopdetect"
	"github.com/bewest/sdqctl-sub002/internal/session"
	"github.com/bewest/sdqctl-sub002/internal/workflow"
	"github.com/bewest/sdqctl-sub002/prompts"
)

// ErrPaused signals that a PAUSE step stopped the walk. The session is
// checkpointed and resumable; callers treat this as a clean exit, not a
// failure.
var ErrPaused = errors.New("session paused")

// Sink receives human-facing progress lines. The ui package provides the
// terminal implementation; tests use a recording stub. A nil sink is
// silent.
type Sink interface {
	Progressf(format string, args ...any)
	Warnf(format string, args ...any)
}

// CycleResult says how a cycle ended. A nil Signal with Stop set means a
// non-detector stop such as the context-limit policy.
type CycleResult struct {
	Stop   bool
	Reason string
	Signal *loopdetect.Signal
}

// Executor holds everything one unit of work needs. The orchestrator
// fills the exported fields and calls ExecuteCycle once per cycle.
type Executor struct {
	Adapter  adapter.Adapter
	Session  *session.Session
	Context  *contextmgr.Manager
	Detector *loopdetect.Detector
	Logger   *log.Logger   // nil disables event logging
	Store    *session.Store // nil disables run history
	Progress Sink
	Settings config.Settings

	RunID       string
	ProjectRoot string
	WorkDir     string // where RUN commands execute; empty means ProjectRoot
	UnitID      string // batch target, empty for single runs
	Iteration   int    // 1-based unit ordinal within a batch
	Iterations  int

	Branch string
	Commit string

	contextSent         bool
	pendingOutput       []string // captured RUN output waiting for the next prompt
	failureCheckpointed bool     // this cycle's failure already has a checkpoint
}

// ExecuteCycle walks the document's steps from the session's step cursor
// to the end. It returns ErrPaused when a PAUSE step fires; any other
// error aborts the walk with the step cursor still pointing at the
// failed step so a resume retries it. PAUSE advances its own cursor
// before checkpointing so a resume continues after it.
func (e *Executor) ExecuteCycle(ctx context.Context) (*CycleResult, error) {
	doc := e.Session.Workflow
	e.failureCheckpointed = false
	for i := e.Session.StepIndex; i < len(doc.Steps); i++ {
		if e.Detector != nil && e.Detector.StopRequested() {
			sig := &loopdetect.Signal{
				Trigger: loopdetect.TriggerStopFile,
				Detail:  "stop file created",
			}
			e.logLoop(sig)
			if err := e.saveCheckpoint(session.CheckpointCycle, "", sig.Detail, ""); err != nil {
				e.warnf("saving stop checkpoint: %v", err)
			}
			return &CycleResult{Stop: true, Reason: sig.Detail, Signal: sig}, nil
		}

		res, err := e.executeStep(ctx, doc.Steps[i])
		if err != nil {
			if !errors.Is(err, ErrPaused) && !e.failureCheckpointed {
				if cpErr := e.saveCheckpoint(session.CheckpointError, "", err.Error(), ""); cpErr != nil {
					e.warnf("saving failure checkpoint: %v", cpErr)
				}
			}
			return nil, err
		}
		e.Session.StepIndex = i + 1
		if res != nil {
			return res, nil
		}
	}
	return &CycleResult{}, nil
}

func (e *Executor) executeStep(ctx context.Context, step workflow.Step) (*CycleResult, error) {
	switch st := step.(type) {
	case workflow.PromptStep:
		return e.executePrompt(ctx, st.Text)
	case workflow.RunStep:
		return e.executeRun(ctx, st.Spec)
	case workflow.CheckpointStep:
		return nil, e.checkpointStep(st.Name)
	case workflow.CompactStep:
		return nil, e.compact(ctx, st.Preserve)
	case workflow.PauseStep:
		return nil, e.pause(st.Message)
	case workflow.NewConversationStep:
		return nil, e.newConversation(ctx)
	default:
		return nil, fmt.Errorf("unhandled step type %T", step)
	}
}

// executePrompt renders and sends one prompt, waits for the turn, and
// feeds the response through the loop detector.
func (e *Executor) executePrompt(ctx context.Context, text string) (*CycleResult, error) {
	if e.Session.NeedsCompaction() {
		switch e.Settings.OnContextLimit {
		case workflow.OverflowStop:
			if err := e.saveCheckpoint(session.CheckpointError, "", "context limit reached", ""); err != nil {
				e.warnf("saving context-limit checkpoint: %v", err)
			}
			e.failureCheckpointed = true
			return nil, fmt.Errorf("context limit reached at %d%% with on-context-limit stop", e.Settings.ContextLimitPercent)
		default:
			if err := e.compact(ctx, e.Session.Workflow.CompactPreserve); err != nil {
				return nil, fmt.Errorf("auto-compacting before prompt: %w", err)
			}
		}
	}

	rendered := e.renderPrompt(text)
	promptIdx := e.Session.PromptIndex

	e.logEvent(log.LogEvent{
		Event:       log.EventPromptSent,
		Cycle:       e.Session.CycleNumber,
		PromptIndex: promptIdx,
		Tokens:      contextmgr.EstimateTokens(rendered),
	})
	e.progressf("cycle %d prompt %d/%d", e.Session.CycleNumber, promptIdx+1, e.Session.Workflow.PromptCount())

	res, err := e.sendTurn(ctx, rendered)
	if err != nil {
		return nil, fmt.Errorf("prompt %d: %w", promptIdx+1, err)
	}

	e.Session.AdvancePrompt()

	if e.Settings.CheckpointEvery == workflow.CheckpointPrompt {
		// Snapshot with the cursor past this prompt; a resume must not
		// replay a turn that already completed.
		e.Session.StepIndex++
		if err := e.saveCheckpoint(session.CheckpointCycle, "", "", ""); err != nil {
			e.warnf("checkpoint after prompt %d: %v", promptIdx+1, err)
		}
	}

	if e.Detector != nil {
		if sig := e.Detector.Check(res.Reasoning, res.Text, e.Session.CycleNumber); sig != nil {
			e.logLoop(sig)
			// The turn itself completed, so the snapshot cursor moves past
			// this prompt before the stop checkpoint is written. A stop
			// file is an explicit agent request, not a loop.
			e.Session.StepIndex++
			cpType, message := session.CheckpointError, "loop detected: "+sig.Detail
			if sig.Trigger == loopdetect.TriggerStopFile {
				cpType, message = session.CheckpointCycle, sig.Detail
			}
			if err := e.saveCheckpoint(cpType, "", message, ""); err != nil {
				e.warnf("saving stop checkpoint: %v", err)
			}
			return &CycleResult{Stop: true, Reason: sig.Detail, Signal: sig}, nil
		}
	}
	return nil, nil
}

// checkpointStep handles an explicit CHECKPOINT step. The cursor moves
// past the step before the snapshot so a resume does not re-save it.
func (e *Executor) checkpointStep(name string) error {
	e.Session.StepIndex++
	return e.saveCheckpoint(session.CheckpointCycle, name, "", "")
}

// sendTurn sends already-rendered text as one turn and waits for the
// full response, recording both sides in the transcript and the run
// history.
func (e *Executor) sendTurn(ctx context.Context, text string) (*adapter.TurnResult, error) {
	promptIdx := e.Session.PromptIndex

	e.Session.AppendMessage("user", text)
	e.recordTurn(promptIdx, "user", text, contextmgr.EstimateTokens(text))

	started := time.Now()
	events, err := e.Adapter.Send(ctx, e.Session.Handle, text)
	if err != nil {
		return nil, fmt.Errorf("sending: %w", err)
	}
	res, err := adapter.Collect(ctx, events)
	if err != nil {
		return nil, fmt.Errorf("turn failed: %w", err)
	}

	e.Session.AppendMessage("assistant", res.Text)
	e.Session.RecordUsage(res.Usage)
	e.Session.Stats.AddTurn(res)
	e.recordTurn(promptIdx, "assistant", res.Text, res.Usage.OutputTokens)

	e.logEvent(log.LogEvent{
		Event:       log.EventTurnCompleted,
		Cycle:       e.Session.CycleNumber,
		PromptIndex: promptIdx,
		Tokens:      res.Usage.Total(),
		DurationMs:  time.Since(started).Milliseconds(),
	})
	return res, nil
}

// pause checkpoints the session and halts the walk. The step cursor is
// advanced past the pause before the snapshot is taken; otherwise a
// resumed session would pause again immediately.
func (e *Executor) pause(message string) error {
	e.Session.StepIndex++
	cp := e.Session.Snapshot(session.CheckpointPause, "", message, e.backendCheckpoint())
	path := session.PausePath(config.CheckpointsDir(e.ProjectRoot), e.Session.Workflow.Source, e.UnitID)
	if err := cp.Save(path); err != nil {
		return fmt.Errorf("saving pause checkpoint: %w", err)
	}
	e.Session.Stats.Checkpoints++
	if err := e.Session.Pause(); err != nil {
		return err
	}
	e.logEvent(log.LogEvent{Event: log.EventPause, Checkpoint: path, Reason: message})
	if message != "" {
		e.progressf("paused: %s", message)
	} else {
		e.progressf("paused, resume with: sdqctl resume %s", e.Session.Workflow.Source)
	}
	return ErrPaused
}

// saveCheckpoint writes a cycle or error checkpoint at the unit's
// content-addressed path. lastError carries captured command output for
// error checkpoints; empty otherwise.
func (e *Executor) saveCheckpoint(cpType session.CheckpointType, name, message, lastError string) error {
	cp := e.Session.Snapshot(cpType, name, message, e.backendCheckpoint())
	cp.LastError = lastError
	path := session.CheckpointPath(config.CheckpointsDir(e.ProjectRoot), e.Session.Workflow.Source, e.UnitID)
	if err := cp.Save(path); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	e.Session.Stats.Checkpoints++
	e.logEvent(log.LogEvent{Event: log.EventCheckpointSaved, Checkpoint: path, Reason: string(cpType)})
	return nil
}

// backendCheckpoint asks the adapter for a resume anchor. Best-effort:
// adapters without one return empty.
func (e *Executor) backendCheckpoint() string {
	if e.Session.Handle == nil {
		return ""
	}
	id, err := e.Adapter.Checkpoint(context.Background(), e.Session.Handle, "")
	if err != nil {
		return ""
	}
	return id
}

// compact asks the adapter to summarize the conversation and replaces
// the session transcript with the summary.
func (e *Executor) compact(ctx context.Context, preserve []string) error {
	if err := e.Session.BeginCompaction(); err != nil {
		return err
	}
	res, err := e.Adapter.Compact(ctx, e.Session.Handle, preserve, prompts.CompactSummaryPrompt)
	if err != nil {
		e.Session.Fail()
		return fmt.Errorf("compacting conversation: %w", err)
	}
	e.Session.Messages = []session.Message{{Role: "assistant", Content: res.Summary, Timestamp: time.Now()}}
	e.Session.NoteCompacted(res.TokensAfter)
	if err := e.Session.EndCompaction(); err != nil {
		return err
	}
	e.logEvent(log.LogEvent{
		Event:  log.EventCompaction,
		Cycle:  e.Session.CycleNumber,
		Tokens: res.TokensAfter,
		Data:   map[string]interface{}{"tokens_before": res.TokensBefore},
	})
	e.progressf("compacted conversation: %d -> %d tokens", res.TokensBefore, res.TokensAfter)
	return nil
}

// newConversation tears down the backend conversation and opens a fresh
// one at the same workflow position. Context files are re-sent with the
// next prompt.
func (e *Executor) newConversation(ctx context.Context) error {
	if e.Session.Handle != nil {
		if err := e.Adapter.DestroySession(ctx, e.Session.Handle); err != nil {
			e.warnf("destroying old conversation: %v", err)
		}
	}
	h, err := e.Adapter.CreateSession(ctx, e.sessionConfig())
	if err != nil {
		return fmt.Errorf("starting new conversation: %w", err)
	}
	e.Session.Handle = h
	e.Session.ResetConversation()
	if e.Detector != nil {
		e.Detector.Reset()
	}
	e.contextSent = false
	return nil
}

// StartConversation opens the initial backend conversation for the unit.
func (e *Executor) StartConversation(ctx context.Context) error {
	h, err := e.Adapter.CreateSession(ctx, e.sessionConfig())
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	e.Session.Handle = h
	e.contextSent = false
	return nil
}

// RefreshForCycle applies fresh-mode semantics at a cycle boundary: new
// backend conversation and a context reload so on-disk changes are seen.
func (e *Executor) RefreshForCycle(ctx context.Context) error {
	if e.Context != nil {
		if err := e.Context.Reload(); err != nil {
			return fmt.Errorf("reloading context: %w", err)
		}
	}
	return e.newConversation(ctx)
}

// MaybeCompactAfterCycle applies compact-mode semantics at a cycle
// boundary: compact when occupancy crossed the threshold.
func (e *Executor) MaybeCompactAfterCycle(ctx context.Context) error {
	if !e.Session.NeedsCompaction() {
		return nil
	}
	return e.compact(ctx, e.Session.Workflow.CompactPreserve)
}

// CycleCheckpoint saves the per-cycle checkpoint when the policy asks
// for one.
func (e *Executor) CycleCheckpoint() error {
	if e.Settings.CheckpointEvery != workflow.CheckpointCycle {
		return nil
	}
	return e.saveCheckpoint(session.CheckpointCycle, "", "", "")
}

func (e *Executor) sessionConfig() adapter.SessionConfig {
	doc := e.Session.Workflow
	return adapter.SessionConfig{
		Model:      e.Settings.Model,
		WorkingDir: e.workDir(),
		AddDirs:    doc.AddDirs,
	}
}

func (e *Executor) workDir() string {
	if e.WorkDir != "" {
		return e.WorkDir
	}
	if e.Session.Workflow.WorkingDir != "" {
		return e.Session.Workflow.WorkingDir
	}
	return e.ProjectRoot
}

func (e *Executor) recordTurn(promptIdx int, role, content string, tokens int) {
	if e.Store == nil || e.RunID == "" {
		return
	}
	if err := e.Store.AddTurn(e.RunID, e.Session.CycleNumber, promptIdx, role, content, tokens); err != nil {
		e.warnf("recording turn: %v", err)
	}
}

func (e *Executor) logLoop(sig *loopdetect.Signal) {
	e.logEvent(log.LogEvent{
		Event:   log.EventLoopDetected,
		Cycle:   e.Session.CycleNumber,
		Trigger: string(sig.Trigger),
		Reason:  sig.Detail,
	})
	e.progressf("stopping: %s", sig.Detail)
}

func (e *Executor) logEvent(ev log.LogEvent) {
	if e.Logger == nil {
		return
	}
	ev.RunID = e.RunID
	ev.Workflow = e.Session.Workflow.Source
	ev.Target = e.UnitID
	if err := e.Logger.Append(ev); err != nil {
		e.warnf("appending log event: %v", err)
	}
}

func (e *Executor) progressf(format string, args ...any) {
	if e.Progress != nil {
		e.Progress.Progressf(format, args...)
	}
}

func (e *Executor) warnf(format string, args ...any) {
	if e.Progress != nil {
		e.Progress.Warnf(format, args...)
	}
}
