// orchestrator.go drives a workflow to an outcome: the cycle loop, the
// between-cycle session-mode hooks, resume from checkpoints, and run
// history bookkeeping.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bewest/sdqctl-sub002/internal/adapter"
	"github.com/bewest/sdqctl-sub002/internal/config"
	"github.com/bewest/sdqctl-sub002/internal/contextmgr"
	"github.com/bewest/sdqctl-sub002/internal/executor"
	"github.com/bewest/sdqctl-sub002/internal/log"
	"github.com/bewest/sdqctl-sub002/internal/loopdetect"
	"github.com/bewest/sdqctl-sub002/internal/session"
	"github.com/bewest/sdqctl-sub002/internal/workflow"
)

// defaultContextWindow sizes the estimate-based token budget until the
// backend reports real numbers. 200k matches current frontier models;
// the estimate only gates compaction, so being off is harmless.
const defaultContextWindow = 200_000

// Status is the terminal state of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPaused    Status = "paused"
	StatusFailed    Status = "failed"

	// StatusRunning marks an in-flight unit in batch notifications. It
	// never appears on a finished Outcome.
	StatusRunning Status = "running"
)

// Outcome summarizes one finished unit of work for reporting.
type Outcome struct {
	Status   Status
	Reason   string // human-readable cause of the stop
	RunID    string
	Workflow string
	Target   string
	Cycles   int
	Stats    session.Stats
	Session  *session.Session

	// Checkpoint is the path to resume from, when one survived the run.
	Checkpoint string

	Started  time.Time
	Finished time.Time
}

// Runner wires workflows to an adapter and drives them. One Runner
// serves the whole process; all per-unit state lives in the Session
// each run builds, so concurrent units never share mutable state.
type Runner struct {
	Adapter  adapter.Adapter
	Settings config.Settings
	Logger   *log.Logger    // nil disables event logging
	Store    *session.Store // nil disables run history
	Progress executor.Sink

	// OnUnit, when set, receives per-target state transitions during
	// RunBatch. Units run concurrently, so the callback must be safe
	// for concurrent use. Single runs never call it.
	OnUnit func(target string, status Status, reason string)

	ProjectRoot string
	Branch      string
	Commit      string
}

// BuildContext gathers the document's CONTEXT patterns into a manager
// rooted at the workflow working directory. Unmatched patterns warn and
// stay registered so a later Reload can pick the files up.
func (r *Runner) BuildContext(doc *workflow.Document) *contextmgr.Manager {
	base := doc.WorkingDir
	if base == "" {
		base = r.ProjectRoot
	}
	mgr := contextmgr.New(base, doc.Restrictions, defaultContextWindow)
	mgr.Warn = func(msg string) { r.warnf("%s", msg) }
	for _, pattern := range doc.ContextPatterns {
		if _, err := mgr.AddPattern(pattern); err != nil {
			r.warnf("%v", err)
		}
	}
	return mgr
}

// RunWorkflow executes doc from the beginning as a single unit.
func (r *Runner) RunWorkflow(ctx context.Context, doc *workflow.Document) (*Outcome, error) {
	mgr := r.BuildContext(doc)
	sess := session.New(doc, mgr, r.Settings.Mode, r.Settings.MaxCycles, r.Settings.ContextLimitPercent)
	return r.run(ctx, doc, sess, "", 1, 1)
}

// Resume continues a checkpointed run. The workflow is re-read from
// disk (or the checkpoint's embedded text), context files are gathered
// fresh so the agent sees the current state of the tree, and the
// backend conversation is restored when the adapter kept one.
func (r *Runner) Resume(ctx context.Context, cp *session.Checkpoint) (*Outcome, error) {
	doc, err := cp.ResumeDocument()
	if err != nil {
		return nil, err
	}
	mgr := r.BuildContext(doc)
	sess := session.RestoreSession(cp, doc, mgr, r.Settings.MaxCycles, r.Settings.ContextLimitPercent)

	if cp.BackendCheckpoint != "" {
		h, err := r.Adapter.Restore(ctx, cp.BackendCheckpoint)
		if err != nil {
			r.warnf("backend restore failed, starting a fresh conversation: %v", err)
		} else {
			sess.Handle = h
		}
	}

	r.progressf("resuming %s at cycle %d step %d", doc.Source, sess.CycleNumber, sess.StepIndex)
	return r.run(ctx, doc, sess, cp.Target, 1, 1)
}

// run is the common cycle loop behind RunWorkflow, Resume, and batch
// units. It always returns a sealed Outcome, also on error, so callers
// can report what happened.
func (r *Runner) run(ctx context.Context, doc *workflow.Document, sess *session.Session, unitID string, iteration, iterations int) (*Outcome, error) {
	out := &Outcome{
		Workflow: doc.Source,
		Target:   sess.Target,
		Session:  sess,
		Started:  time.Now(),
	}
	out.RunID = r.createRun(doc, sess.Target)

	exec := &executor.Executor{
		Adapter:     r.Adapter,
		Session:     sess,
		Context:     sess.Context,
		Detector:    loopdetect.New(r.Settings.IdenticalThreshold, r.Settings.MinResponseLen, sess.StopFile(config.StateDir(r.ProjectRoot))),
		Logger:      r.Logger,
		Store:       r.Store,
		Progress:    r.Progress,
		Settings:    r.Settings,
		RunID:       out.RunID,
		ProjectRoot: r.ProjectRoot,
		UnitID:      unitID,
		Iteration:   iteration,
		Iterations:  iterations,
		Branch:      r.Branch,
		Commit:      r.Commit,
	}

	r.logEvent(log.LogEvent{
		Event:    log.EventRunStarted,
		RunID:    out.RunID,
		Workflow: doc.Source,
		Target:   sess.Target,
		Adapter:  r.Adapter.Name(),
	})

	fail := func(err error) (*Outcome, error) {
		sess.Fail()
		out.Status = StatusFailed
		out.Reason = err.Error()
		r.seal(out, doc, sess, unitID)
		r.finishRun(out.RunID, string(StatusFailed), sess.CycleNumber, err.Error())
		return out, err
	}

	if sess.Handle == nil {
		if err := exec.StartConversation(ctx); err != nil {
			return fail(err)
		}
	}
	defer func() {
		if sess.Handle == nil {
			return
		}
		// Teardown uses a background context so cancellation of the run
		// still releases the backend conversation.
		if err := r.Adapter.DestroySession(context.Background(), sess.Handle); err != nil {
			r.warnf("closing backend session: %v", err)
		}
		sess.Handle = nil
	}()

	if err := sess.Activate(); err != nil {
		return fail(err)
	}

	var stop *executor.CycleResult
	for {
		r.logEvent(log.LogEvent{
			Event:    log.EventCycleStarted,
			RunID:    out.RunID,
			Workflow: doc.Source,
			Target:   sess.Target,
			Cycle:    sess.CycleNumber,
		})

		res, err := exec.ExecuteCycle(ctx)
		if errors.Is(err, executor.ErrPaused) {
			out.Status = StatusPaused
			out.Reason = "paused"
			r.seal(out, doc, sess, unitID)
			r.finishRun(out.RunID, string(StatusPaused), sess.CycleNumber, "")
			return out, nil
		}
		if err != nil {
			return fail(err)
		}
		if res != nil && res.Stop {
			stop = res
			break
		}
		if sess.CycleNumber >= sess.MaxCycles {
			break
		}
		if err := r.betweenCycles(ctx, exec); err != nil {
			return fail(err)
		}
		sess.AdvanceCycle()
	}

	out.Status = StatusCompleted
	out.Reason = fmt.Sprintf("completed %d of %d cycles", sess.CycleNumber, sess.MaxCycles)
	if stop != nil {
		out.Reason = stop.Reason
		// An agent-created stop file is a graceful finish; the text
		// heuristics mean automation diverged and a human should look.
		if stop.Signal != nil && stop.Signal.Trigger != loopdetect.TriggerStopFile {
			out.Status = StatusFailed
		}
	}

	if out.Status == StatusFailed {
		sess.Fail()
		r.warnf("run stopped: %s", out.Reason)
	} else {
		if err := sess.Complete(); err != nil {
			r.warnf("completing session: %v", err)
		}
		if stop == nil {
			// A clean full run leaves no resume anchors behind; stale
			// cycle or pause checkpoints would make a later resume
			// replay finished work.
			dir := config.CheckpointsDir(r.ProjectRoot)
			for _, path := range []string{
				session.CheckpointPath(dir, doc.Source, unitID),
				session.PausePath(dir, doc.Source, unitID),
			} {
				if err := session.ClearCheckpoint(path); err != nil {
					r.warnf("clearing checkpoint: %v", err)
				}
			}
		}
		r.progressf("run complete: %s", out.Reason)
	}

	r.seal(out, doc, sess, unitID)
	errText := ""
	if out.Status == StatusFailed {
		errText = out.Reason
	}
	r.finishRun(out.RunID, string(out.Status), sess.CycleNumber, errText)
	r.logEvent(log.LogEvent{
		Event:      log.EventRunComplete,
		RunID:      out.RunID,
		Workflow:   doc.Source,
		Target:     sess.Target,
		Cycle:      sess.CycleNumber,
		Reason:     out.Reason,
		Tokens:     sess.Stats.TotalTokens(),
		DurationMs: time.Since(out.Started).Milliseconds(),
	})
	return out, nil
}

// betweenCycles applies the cycle checkpoint policy and the session
// mode's boundary behavior before the next cycle starts.
func (r *Runner) betweenCycles(ctx context.Context, exec *executor.Executor) error {
	if err := exec.CycleCheckpoint(); err != nil {
		r.warnf("cycle checkpoint: %v", err)
	}
	switch r.Settings.Mode {
	case workflow.ModeFresh:
		return exec.RefreshForCycle(ctx)
	case workflow.ModeCompact:
		return exec.MaybeCompactAfterCycle(ctx)
	}
	return nil
}

// seal fills the outcome's closing fields: cursors, stats, and the
// checkpoint path a user would resume from.
func (r *Runner) seal(out *Outcome, doc *workflow.Document, sess *session.Session, unitID string) {
	out.Cycles = sess.CycleNumber
	out.Stats = sess.Stats
	out.Finished = time.Now()
	out.Checkpoint = r.survivingCheckpoint(out.Status, doc, unitID)
}

// survivingCheckpoint returns the on-disk checkpoint for this unit, or
// empty when none was written.
func (r *Runner) survivingCheckpoint(status Status, doc *workflow.Document, unitID string) string {
	dir := config.CheckpointsDir(r.ProjectRoot)
	path := session.CheckpointPath(dir, doc.Source, unitID)
	if status == StatusPaused {
		path = session.PausePath(dir, doc.Source, unitID)
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func (r *Runner) createRun(doc *workflow.Document, target string) string {
	if r.Store == nil {
		return ""
	}
	rec, err := r.Store.CreateRun(doc.Source, target, r.Adapter.Name())
	if err != nil {
		r.warnf("recording run start: %v", err)
		return ""
	}
	return rec.ID
}

func (r *Runner) finishRun(runID, status string, cycles int, errText string) {
	if r.Store == nil || runID == "" {
		return
	}
	if err := r.Store.FinishRun(runID, status, cycles, errText); err != nil {
		r.warnf("recording run finish: %v", err)
	}
}

func (r *Runner) logEvent(ev log.LogEvent) {
	if r.Logger == nil {
		return
	}
	if err := r.Logger.Append(ev); err != nil {
		r.warnf("appending log event: %v", err)
	}
}

func (r *Runner) progressf(format string, args ...any) {
	if r.Progress != nil {
		r.Progress.Progressf(format, args...)
	}
}

func (r *Runner) warnf(format string, args ...any) {
	if r.Progress != nil {
		r.Progress.Warnf(format, args...)
	}
}

func (r *Runner) notifyUnit(target string, status Status, reason string) {
	if r.OnUnit != nil {
		r.OnUnit(target, status, reason)
	}
}
