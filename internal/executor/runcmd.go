// runcmd.go executes RUN steps: local commands with timeouts, output
// capture, and the stop/continue/retry failure policies.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"text/template"
	"time"

	"github.com/bewest/sdqctl-sub002/internal/log"
	"github.com/bewest/sdqctl-sub002/internal/session"
	"github.com/bewest/sdqctl-sub002/internal/workflow"
	"github.com/bewest/sdqctl-sub002/prompts"
)

// runOutcome is one command invocation's result. Output is always
// populated, including after a timeout, so the agent and the checkpoint
// see whatever the command managed to print.
type runOutcome struct {
	output   string
	exitCode int
	timedOut bool
	duration time.Duration
	err      error
}

func (e *Executor) executeRun(ctx context.Context, spec workflow.RunSpec) (*CycleResult, error) {
	policy := spec.OnError
	if policy == "" {
		policy = e.Settings.RunOnError
	}
	timeout := spec.Timeout
	if timeout == 0 {
		timeout = e.Settings.RunTimeout
	}
	limit := spec.OutputLimit
	if limit == 0 {
		limit = e.Settings.OutputLimit
	}

	out := e.runCommand(ctx, spec, timeout, limit)
	e.Session.Stats.CommandsRun++
	e.logCommand(spec.Command, out)

	if out.err == nil {
		e.feedOutput(spec, out)
		return nil, nil
	}

	switch policy {
	case workflow.OnErrorContinue:
		e.warnf("command failed (continuing): %s: %v", spec.Command, out.err)
		e.feedOutput(spec, out)
		return nil, nil

	case workflow.OnErrorRetry:
		return e.retryRun(ctx, spec, out, timeout, limit)

	default: // stop
		return nil, e.stopOnCommandFailure(spec, out)
	}
}

// stopOnCommandFailure checkpoints first, then surfaces the failure. The
// checkpoint always lands before the error propagates so the run is
// resumable even when the caller exits immediately.
func (e *Executor) stopOnCommandFailure(spec workflow.RunSpec, out runOutcome) error {
	msg := fmt.Sprintf("command failed: %s (exit %d)", spec.Command, out.exitCode)
	if out.timedOut {
		msg = fmt.Sprintf("command timed out: %s", spec.Command)
	}
	if err := e.saveCheckpoint(session.CheckpointError, "", msg, out.output); err != nil {
		e.warnf("saving error checkpoint: %v", err)
	}
	e.failureCheckpointed = true
	return fmt.Errorf("%s: %w", msg, out.err)
}

// retryRun is the assisted retry loop: each failed attempt is described
// to the agent, which gets a chance to fix the cause before the command
// runs again. Exhausting the attempts falls back to stop semantics.
func (e *Executor) retryRun(ctx context.Context, spec workflow.RunSpec, first runOutcome, timeout time.Duration, limit int) (*CycleResult, error) {
	out := first
	attempts := spec.Retries
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		e.progressf("command failed, retry %d/%d: %s", attempt, attempts, spec.Command)

		fix := renderRetryPrompt(spec.Command, out, attempt, attempts)
		if _, err := e.sendTurn(ctx, fix); err != nil {
			return nil, fmt.Errorf("retry turn for %q: %w", spec.Command, err)
		}

		out = e.runCommand(ctx, spec, timeout, limit)
		e.Session.Stats.CommandsRun++
		e.logCommand(spec.Command, out)

		if out.err == nil {
			e.feedOutput(spec, out)
			return nil, nil
		}
	}

	return nil, e.stopOnCommandFailure(spec, out)
}

// runCommand executes one command with a timeout and bounded capture.
// Partial output survives timeouts and failures.
func (e *Executor) runCommand(ctx context.Context, spec workflow.RunSpec, timeout time.Duration, limit int) runOutcome {
	argv, err := commandArgv(spec)
	if err != nil {
		return runOutcome{exitCode: -1, err: err}
	}

	cctx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(cctx, argv[0], argv[1:]...)
	// Close the output pipes shortly after a kill even if a grandchild
	// inherited them, so a timeout cannot stall the capture.
	cmd.WaitDelay = time.Second
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	} else {
		cmd.Dir = e.workDir()
	}
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	started := time.Now()
	runErr := cmd.Run()
	outcome := runOutcome{
		output:   truncateOutput(buf.String(), limit),
		duration: time.Since(started),
		err:      runErr,
	}

	if cctx.Err() == context.DeadlineExceeded {
		outcome.timedOut = true
		outcome.exitCode = -1
		outcome.err = fmt.Errorf("timed out after %s", timeout)
		return outcome
	}
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			outcome.exitCode = exitErr.ExitCode()
		} else {
			outcome.exitCode = -1
		}
	}
	return outcome
}

// feedOutput stages captured output for the next prompt unless the spec
// discards it.
func (e *Executor) feedOutput(spec workflow.RunSpec, out runOutcome) {
	if spec.Output == workflow.OutputDiscard {
		return
	}
	if strings.TrimSpace(out.output) == "" && out.exitCode == 0 {
		return
	}
	block := "$ " + spec.Command + "\n"
	if out.exitCode != 0 {
		block += fmt.Sprintf("[exit %d]\n", out.exitCode)
	}
	block += out.output
	e.pendingOutput = append(e.pendingOutput, strings.TrimRight(block, "\n"))
}

func (e *Executor) logCommand(command string, out runOutcome) {
	e.logEvent(log.LogEvent{
		Event:      log.EventCommandRun,
		Cycle:      e.Session.CycleNumber,
		Command:    command,
		ExitCode:   out.exitCode,
		DurationMs: out.duration.Milliseconds(),
	})
}

// commandArgv picks the execution shape: a shell line when the step was
// parsed under ALLOW-SHELL, otherwise quote-aware argv splitting with no
// shell involved.
func commandArgv(spec workflow.RunSpec) ([]string, error) {
	if strings.TrimSpace(spec.Command) == "" {
		return nil, fmt.Errorf("empty command")
	}
	if spec.Shell {
		return []string{"sh", "-c", spec.Command}, nil
	}
	argv, err := splitCommand(spec.Command)
	if err != nil {
		return nil, fmt.Errorf("splitting command %q: %w", spec.Command, err)
	}
	return argv, nil
}

// splitCommand splits a command line into argv, honoring single quotes,
// double quotes, and backslash escapes. It performs no expansion; RUN
// steps that need shell features use ALLOW-SHELL.
func splitCommand(s string) ([]string, error) {
	var args []string
	var cur strings.Builder
	inArg := false
	var quote rune

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else if c == '\\' && quote == '"' && i+1 < len(runes) {
				i++
				cur.WriteRune(runes[i])
			} else {
				cur.WriteRune(c)
			}
		case c == '\'' || c == '"':
			quote = c
			inArg = true
		case c == '\\' && i+1 < len(runes):
			i++
			cur.WriteRune(runes[i])
			inArg = true
		case c == ' ' || c == '\t':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(c)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if inArg {
		args = append(args, cur.String())
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return args, nil
}

// truncateOutput caps captured output at limit characters, keeping the
// head and tail halves around a marker that names the removed size.
func truncateOutput(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	head := limit / 2
	tail := limit - head
	removed := len(s) - head - tail
	return s[:head] + fmt.Sprintf("\n[... %d chars truncated ...]\n", removed) + s[len(s)-tail:]
}

// retryData feeds the retry prompt template.
type retryData struct {
	Command     string
	ExitCode    int
	Attempt     int
	MaxAttempts int
	Output      string
}

// renderRetryPrompt renders the embedded retry template. The template is
// embedded at compile time; a parse failure is a bug, reported inline
// the way the rest of the prompt pipeline does.
func renderRetryPrompt(command string, out runOutcome, attempt, attempts int) string {
	tmpl, err := template.New("retry_fix").Parse(prompts.RetryFixTemplate)
	if err != nil {
		return fmt.Sprintf("ERROR: failed to parse retry template: %v", err)
	}
	var buf bytes.Buffer
	data := retryData{
		Command:     command,
		ExitCode:    out.exitCode,
		Attempt:     attempt,
		MaxAttempts: attempts,
		Output:      out.output,
	}
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Sprintf("ERROR: failed to execute retry template: %v", err)
	}
	return buf.String()
}
