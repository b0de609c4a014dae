// claude.go drives the claude CLI binary as an agent backend.
//
// Package claudecli implements the adapter contract on top of the Claude
// Code command line in print mode with stream-json output. Each Send
// spawns one CLI process for that turn; the conversation itself lives
// backend-side and turns are stitched together with --resume.
package claudecli

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bewest/sdqctl-sub002/internal/adapter"
)

const (
	// defaultMaxTokens approximates the backend context window when the
	// session config does not override it.
	defaultMaxTokens = 200_000

	// maxLineBytes bounds a single stream-json line. Tool results can
	// carry whole files, so this is generous.
	maxLineBytes = 10 * 1024 * 1024

	defaultSummaryPrompt = "Summarize this conversation so far: goals, decisions made, " +
		"work completed, and what remains. Be specific about file paths and commands. " +
		"The summary seeds a fresh conversation, so include everything needed to continue."
)

// Options configures the CLI adapter.
type Options struct {
	Binary          string // defaults to "claude"
	SkipPermissions bool   // pass --dangerously-skip-permissions for unattended runs
	ExtraArgs       []string
}

// CLI is the claude-backed adapter.
type CLI struct {
	opts Options

	mu      sync.Mutex
	started bool
	convs   map[string]*conv
}

// conv is the adapter-side record of one conversation.
type conv struct {
	cfg         adapter.SessionConfig
	backendID   string
	pendingSeed string // compaction summary injected into the next prompt
	lastUsage   adapter.Usage
}

// New builds a CLI adapter.
func New(opts Options) *CLI {
	if opts.Binary == "" {
		opts.Binary = "claude"
	}
	return &CLI{opts: opts, convs: make(map[string]*conv)}
}

func (c *CLI) Name() string { return "claude-cli" }

// Start verifies the binary is reachable. Safe to call repeatedly.
func (c *CLI) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	if _, err := exec.LookPath(c.opts.Binary); err != nil {
		return fmt.Errorf("%s not found in PATH: %w", c.opts.Binary, adapter.ErrUnavailable)
	}
	c.started = true
	return nil
}

// Stop marks the adapter stopped. Processes are per-turn, so there is
// nothing long-lived to kill.
func (c *CLI) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
	return nil
}

func (c *CLI) CreateSession(ctx context.Context, cfg adapter.SessionConfig) (*adapter.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := adapter.Handle{
		ID:      uuid.NewString(),
		Model:   cfg.Model,
		Created: time.Now(),
	}
	c.convs[h.ID] = &conv{cfg: cfg}
	return &h, nil
}

func (c *CLI) DestroySession(ctx context.Context, h *adapter.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h != nil {
		delete(c.convs, h.ID)
	}
	return nil
}

// Send spawns one CLI turn and streams its events. The returned channel
// closes when the process exits or the context is cancelled.
func (c *CLI) Send(ctx context.Context, h *adapter.Handle, prompt string) (<-chan adapter.Event, error) {
	c.mu.Lock()
	cv, ok := c.convs[h.ID]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("send to %s: %w", h.ID, adapter.ErrSessionNotFound)
	}
	if cv.pendingSeed != "" {
		prompt = "Summary of the conversation so far:\n" + cv.pendingSeed + "\n\n" + prompt
		cv.pendingSeed = ""
	}
	args := c.buildArgs(cv, prompt)
	workDir := cv.cfg.WorkingDir
	env := cv.cfg.Env
	c.mu.Unlock()

	cmd := exec.CommandContext(ctx, c.opts.Binary, args...)
	if workDir != "" {
		cmd.Dir = workDir
	}
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", c.opts.Binary, err)
	}

	events := make(chan adapter.Event, 64)
	go c.stream(ctx, cmd, stdout, &stderr, cv, events)
	return events, nil
}

// stream scans process output, translates lines to events, and finishes
// the stream with a terminal event when the backend did not provide one.
func (c *CLI) stream(ctx context.Context, cmd *exec.Cmd, stdout io.Reader, stderr *bytes.Buffer, cv *conv, events chan<- adapter.Event) {
	defer close(events)

	emit := func(ev adapter.Event) bool {
		ev.Time = time.Now()
		if ev.Usage != nil {
			c.mu.Lock()
			cv.lastUsage = *ev.Usage
			c.mu.Unlock()
		}
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit(adapter.Event{Kind: adapter.EventTurnStart}) {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return
	}

	parser := newLineParser()
	sawTerminal := false

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		for _, ev := range parser.parse(scanner.Text()) {
			if ev.Terminal() {
				sawTerminal = true
			}
			if !emit(ev) {
				_ = cmd.Process.Kill()
				_ = cmd.Wait()
				return
			}
		}
	}

	if parser.sessionID != "" {
		c.mu.Lock()
		cv.backendID = parser.sessionID
		c.mu.Unlock()
	}

	err := cmd.Wait()
	switch {
	case ctx.Err() != nil:
		emit(adapter.Event{Kind: adapter.EventAbort, Text: ctx.Err().Error()})
	case err != nil && !sawTerminal:
		emit(adapter.Event{
			Kind: adapter.EventSessionError,
			Err:  fmt.Sprintf("%v: %s", err, tail(stderr.String(), 1000)),
		})
	case !sawTerminal:
		// Clean exit without a result line; close out the turn.
		emit(adapter.Event{Kind: adapter.EventTurnEnd})
	}
}

func (c *CLI) buildArgs(cv *conv, prompt string) []string {
	args := []string{"-p", "--verbose", "--output-format", "stream-json"}
	if c.opts.SkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	if cv.backendID != "" {
		args = append(args, "--resume", cv.backendID)
	}
	if cv.cfg.Model != "" {
		args = append(args, "--model", cv.cfg.Model)
	}
	if cv.cfg.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", cv.cfg.SystemPrompt)
	}
	for _, dir := range cv.cfg.AddDirs {
		args = append(args, "--add-dir", dir)
	}
	args = append(args, c.opts.ExtraArgs...)
	args = append(args, prompt)
	return args
}

func (c *CLI) ContextUsage(ctx context.Context, h *adapter.Handle) (adapter.Usage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cv, ok := c.convs[h.ID]
	if !ok {
		return adapter.Usage{}, fmt.Errorf("usage for %s: %w", h.ID, adapter.ErrSessionNotFound)
	}
	usage := cv.lastUsage
	if usage.MaxTokens == 0 {
		usage.MaxTokens = cv.cfg.MaxTokens
	}
	if usage.MaxTokens == 0 {
		usage.MaxTokens = defaultMaxTokens
	}
	return usage, nil
}

// Compact runs a summary turn against the current conversation, then
// retires it; the summary seeds the next Send as a fresh backend
// conversation.
func (c *CLI) Compact(ctx context.Context, h *adapter.Handle, preserve []string, summaryPrompt string) (*adapter.CompactResult, error) {
	if summaryPrompt == "" {
		summaryPrompt = defaultSummaryPrompt
	}
	if len(preserve) > 0 {
		summaryPrompt += "\n\nPreserve these verbatim where they appear: " + strings.Join(preserve, ", ")
	}

	before, err := c.ContextUsage(ctx, h)
	if err != nil {
		return nil, err
	}

	events, err := c.Send(ctx, h, summaryPrompt)
	if err != nil {
		return nil, fmt.Errorf("summary turn: %w", err)
	}
	res, err := adapter.Collect(ctx, events)
	if err != nil {
		return nil, fmt.Errorf("summary turn: %w", err)
	}
	if res.Text == "" {
		return nil, fmt.Errorf("summary turn produced no text")
	}

	c.mu.Lock()
	if cv, ok := c.convs[h.ID]; ok {
		cv.pendingSeed = res.Text
		cv.backendID = ""
		cv.lastUsage = adapter.Usage{}
	}
	c.mu.Unlock()

	return &adapter.CompactResult{
		Summary:      res.Text,
		TokensBefore: before.UsedTokens,
		TokensAfter:  len(res.Text) / 4,
	}, nil
}

// Checkpoint returns the backend conversation id; the backend retains the
// transcript, so the id alone is enough to resume.
func (c *CLI) Checkpoint(ctx context.Context, h *adapter.Handle, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cv, ok := c.convs[h.ID]
	if !ok {
		return "", fmt.Errorf("checkpoint %s: %w", h.ID, adapter.ErrSessionNotFound)
	}
	if cv.backendID == "" {
		return "", fmt.Errorf("checkpoint %s: no completed turn to anchor", h.ID)
	}
	return cv.backendID, nil
}

// Restore opens a new handle resuming the checkpointed backend
// conversation.
func (c *CLI) Restore(ctx context.Context, checkpointID string) (*adapter.Handle, error) {
	if checkpointID == "" {
		return nil, fmt.Errorf("restore: empty checkpoint id")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	h := adapter.Handle{
		ID:        uuid.NewString(),
		BackendID: checkpointID,
		Created:   time.Now(),
	}
	c.convs[h.ID] = &conv{backendID: checkpointID}
	return &h, nil
}

// tail returns at most n trailing characters of s.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
