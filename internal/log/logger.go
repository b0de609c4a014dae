// Package log provides structured event logging.
// This file appends JSON events to .sdqctl/log.jsonl.
package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event type constants.
const (
	EventRunStarted      = "run_started"
	EventCycleStarted    = "cycle_started"
	EventPromptSent      = "prompt_sent"
	EventTurnCompleted   = "turn_completed"
	EventCommandRun      = "command_run"
	EventCheckpointSaved = "checkpoint_saved"
	EventCompaction      = "compaction"
	EventLoopDetected    = "loop_detected"
	EventPause           = "pause"
	EventUnitStarted     = "unit_started"
	EventUnitCompleted   = "unit_completed"
	EventRunComplete     = "run_complete"
)

// LogEvent represents a single structured event written to the log.
type LogEvent struct {
	Time        time.Time              `json:"time"`
	Event       string                 `json:"event"`
	RunID       string                 `json:"run,omitempty"`
	Workflow    string                 `json:"workflow,omitempty"`
	Target      string                 `json:"target,omitempty"`
	Adapter     string                 `json:"adapter,omitempty"`
	Cycle       int                    `json:"cycle,omitempty"`
	PromptIndex int                    `json:"prompt,omitempty"`
	Command     string                 `json:"command,omitempty"`
	ExitCode    int                    `json:"exit_code,omitempty"`
	Trigger     string                 `json:"trigger,omitempty"`
	Checkpoint  string                 `json:"checkpoint,omitempty"`
	Tokens      int                    `json:"tokens,omitempty"`
	Reason      string                 `json:"reason,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Completed   int                    `json:"completed,omitempty"`
	Failed      int                    `json:"failed,omitempty"`
	Total       int                    `json:"total,omitempty"`
	DurationMs  int64                  `json:"duration_ms,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// Logger writes append-only JSONL events to a log file. Components
// receive a *Logger explicitly; there is no package-level default, so a
// test or a parallel unit can route events wherever it wants.
type Logger struct {
	path string
	mu   sync.Mutex

	// Echo, when set, receives a copy of every event line. The CLI
	// points it at stderr for verbose runs. Echo failures are ignored;
	// the file write is the one that counts.
	Echo io.Writer
}

// NewLogger creates a Logger that writes to .sdqctl/log.jsonl inside dir.
// Creates the .sdqctl/ directory if it does not already exist.
// Does not truncate an existing log file.
func NewLogger(dir string) (*Logger, error) {
	stateDir := filepath.Join(dir, ".sdqctl")
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("create .sdqctl directory: %w", err)
	}

	return &Logger{
		path: filepath.Join(stateDir, "log.jsonl"),
	}, nil
}

// NewLoggerAt creates a Logger writing to an explicit file path. The
// parent directory must already exist.
func NewLoggerAt(path string) *Logger {
	return &Logger{path: path}
}

// Append writes a single LogEvent as one JSON line to the log file.
// If event.Time is the zero value, it is automatically set to time.Now().UTC().
// The file is opened in append mode, written to, and then closed.
// Thread-safe via mutex.
func (l *Logger) Append(event LogEvent) error {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal log event: %w", err)
	}

	line := append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write log event: %w", err)
	}
	if l.Echo != nil {
		_, _ = l.Echo.Write(line)
	}

	return nil
}

// ReadAll reads and parses all events from the log file.
// Returns an empty slice (not an error) if the file does not exist.
func (l *Logger) ReadAll() ([]LogEvent, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []LogEvent{}, nil
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	var events []LogEvent
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event LogEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("parse log line %d: %w", lineNum, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	return events, nil
}
