// adapter.go defines the backend abstraction every agent integration implements.
//
// Package adapter isolates the orchestration engine from concrete agent
// backends. An Adapter owns backend process or API lifecycle, maps backend
// output onto the shared Event taxonomy, and exposes conversation-level
// operations: create, send, compact, checkpoint, restore, destroy.
package adapter

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable means the backend cannot be used on this host
	// (binary missing, endpoint unreachable).
	ErrUnavailable = errors.New("adapter backend unavailable")
	// ErrTerminated means the conversation ended before the operation.
	ErrTerminated = errors.New("session terminated")
	// ErrSessionNotFound means the handle does not name a live session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotSupported marks operations a backend cannot perform.
	ErrNotSupported = errors.New("operation not supported by adapter")
	// ErrAborted means the turn was cut off before completion.
	ErrAborted = errors.New("turn aborted")
)

// SessionConfig carries everything a backend needs to open a conversation.
type SessionConfig struct {
	Model        string
	SystemPrompt string
	WorkingDir   string
	AddDirs      []string
	MaxTokens    int
	Env          []string
}

// Handle identifies one live conversation. ID is assigned by the adapter;
// BackendID is the backend's own conversation identity once it is known
// (used for resume).
type Handle struct {
	ID        string
	BackendID string
	Model     string
	Created   time.Time
}

// Usage is a best-effort token accounting snapshot.
type Usage struct {
	InputTokens  int
	OutputTokens int
	UsedTokens   int // context window occupancy when the backend reports it
	MaxTokens    int
}

// Total returns input plus output tokens.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// CompactResult reports what a compaction did.
type CompactResult struct {
	Summary      string
	TokensBefore int
	TokensAfter  int
}

// Adapter is the contract between the engine and one agent backend.
//
// Start and Stop bracket backend availability and are idempotent; calling
// either twice is safe. Send returns a channel of Events that the adapter
// closes when the turn is over; the stream always finishes with a terminal
// event (turn_end, session_error, or abort) unless the context is
// cancelled first. Implementations must tolerate DestroySession on an
// already-destroyed handle.
type Adapter interface {
	Name() string

	Start(ctx context.Context) error
	Stop() error

	CreateSession(ctx context.Context, cfg SessionConfig) (*Handle, error)
	DestroySession(ctx context.Context, h *Handle) error

	Send(ctx context.Context, h *Handle, prompt string) (<-chan Event, error)

	ContextUsage(ctx context.Context, h *Handle) (Usage, error)
	Compact(ctx context.Context, h *Handle, preserve []string, summaryPrompt string) (*CompactResult, error)

	Checkpoint(ctx context.Context, h *Handle, name string) (string, error)
	Restore(ctx context.Context, checkpointID string) (*Handle, error)
}
