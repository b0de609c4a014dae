// batch.go fans one workflow out across many targets with bounded
// parallelism.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bewest/sdqctl-sub002/internal/log"
	"github.com/bewest/sdqctl-sub002/internal/session"
	"github.com/bewest/sdqctl-sub002/internal/workflow"
)

// UnitResult pairs one batch target with how its run ended. Outcome is
// non-nil even on failure; Err holds the fatal error when there was one.
type UnitResult struct {
	Target  string
	Outcome *Outcome
	Err     error
}

// BatchOutcome aggregates a whole batch.
type BatchOutcome struct {
	Units     []UnitResult
	Total     int
	Completed int
	Paused    int
	Failed    int
}

// RunBatch applies doc to every target, at most Settings.MaxParallel
// units in flight. Each unit gets its own session, context manager, and
// checkpoint path derived from the target, so concurrent units never
// collide on disk. A unit failure is isolated unless FailFast is set,
// in which case the shared context is canceled and in-flight siblings
// wind down.
func (r *Runner) RunBatch(ctx context.Context, doc *workflow.Document, targets []string) (*BatchOutcome, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("batch needs at least one target")
	}

	limit := r.Settings.MaxParallel
	if limit < 1 {
		limit = 1
	}

	started := time.Now()
	pool := NewPool(len(targets))
	results := make([]UnitResult, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			r.logEvent(log.LogEvent{Event: log.EventUnitStarted, Workflow: doc.Source, Target: target})
			r.progressf("%s unit %s started", pool.Progress(), target)
			r.notifyUnit(target, StatusRunning, "")

			out, err := r.runUnit(gctx, doc, target, i+1, len(targets))
			results[i] = UnitResult{Target: target, Outcome: out, Err: err}

			status := StatusFailed
			if out != nil {
				status = out.Status
			}
			switch status {
			case StatusCompleted:
				pool.RecordCompletion()
			case StatusPaused:
				pool.RecordPause()
			default:
				pool.RecordFailure()
			}

			ev := log.LogEvent{Event: log.EventUnitCompleted, Workflow: doc.Source, Target: target, Reason: string(status)}
			if err != nil {
				ev.Error = err.Error()
			}
			r.logEvent(ev)
			r.progressf("%s unit %s %s", pool.Progress(), target, status)
			reason := ""
			if out != nil {
				reason = out.Reason
			}
			if err != nil {
				reason = err.Error()
			}
			r.notifyUnit(target, status, reason)

			// Loop stops fail the unit without an error, so fail-fast
			// keys off the status rather than err alone.
			if r.Settings.FailFast && status == StatusFailed {
				if err != nil {
					return fmt.Errorf("unit %s: %w", target, err)
				}
				return fmt.Errorf("unit %s: %s", target, out.Reason)
			}
			return nil
		})
	}

	err := g.Wait()

	batch := &BatchOutcome{
		Units:     results,
		Total:     pool.Total,
		Completed: pool.Completed,
		Paused:    pool.Paused,
		Failed:    pool.Failed,
	}
	r.logEvent(log.LogEvent{
		Event:      log.EventRunComplete,
		Workflow:   doc.Source,
		Completed:  batch.Completed,
		Failed:     batch.Failed,
		Total:      batch.Total,
		DurationMs: time.Since(started).Milliseconds(),
	})
	r.progressf("batch complete: %d completed, %d paused, %d failed of %d",
		batch.Completed, batch.Paused, batch.Failed, batch.Total)
	return batch, err
}

// runUnit builds the per-target session and runs it. The target doubles
// as the unit identity for checkpoint paths and the {TARGET} variable.
func (r *Runner) runUnit(ctx context.Context, doc *workflow.Document, target string, iteration, iterations int) (*Outcome, error) {
	mgr := r.BuildContext(doc)
	sess := session.New(doc, mgr, r.Settings.Mode, r.Settings.MaxCycles, r.Settings.ContextLimitPercent)
	sess.Target = target
	return r.run(ctx, doc, sess, target, iteration, iterations)
}
