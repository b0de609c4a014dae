// mock.go is the in-memory adapter used for tests, dry runs, and as the
// fallback when a requested backend is not available.
package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Mock simulates an agent backend. Responses come from the Script hook;
// without one it echoes the prompt. All state is in memory and the
// implementation is safe for concurrent sessions.
type Mock struct {
	mu          sync.Mutex
	started     bool
	sessions    map[string]*mockSession
	checkpoints map[string]mockSnapshot
	creates     int
	destroys    int
	seq         int

	// Script produces the assistant response for a prompt. turn counts
	// from 1 per session.
	Script func(prompt string, turn int) string
	// Reasoning optionally produces reasoning text emitted before the
	// response.
	Reasoning func(prompt string, turn int) string
	// MaxTokens is the simulated context window (default 64k).
	MaxTokens int
}

type mockSession struct {
	handle     Handle
	turns      int
	usedTokens int
	transcript []mockExchange
}

type mockExchange struct {
	prompt   string
	response string
}

type mockSnapshot struct {
	model      string
	turns      int
	usedTokens int
	transcript []mockExchange
}

// NewMock returns a ready-to-use mock adapter.
func NewMock() *Mock {
	return &Mock{
		sessions:    make(map[string]*mockSession),
		checkpoints: make(map[string]mockSnapshot),
		MaxTokens:   64_000,
	}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return nil
}

func (m *Mock) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	return nil
}

func (m *Mock) CreateSession(ctx context.Context, cfg SessionConfig) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := Handle{
		ID:      uuid.NewString(),
		Model:   cfg.Model,
		Created: time.Now(),
	}
	h.BackendID = "mock-" + h.ID[:8]
	sess := &mockSession{handle: h}
	if cfg.SystemPrompt != "" {
		sess.usedTokens = len(cfg.SystemPrompt) / 4
	}
	m.sessions[h.ID] = sess
	m.creates++
	return &h, nil
}

func (m *Mock) DestroySession(ctx context.Context, h *Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h == nil {
		return nil
	}
	if _, ok := m.sessions[h.ID]; !ok {
		return nil // double destroy is fine
	}
	delete(m.sessions, h.ID)
	m.destroys++
	return nil
}

func (m *Mock) Send(ctx context.Context, h *Handle, prompt string) (<-chan Event, error) {
	m.mu.Lock()
	sess, ok := m.sessions[h.ID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("send to %s: %w", h.ID, ErrSessionNotFound)
	}
	sess.turns++
	turn := sess.turns

	response := prompt
	if m.Script != nil {
		response = m.Script(prompt, turn)
	}
	var reasoning string
	if m.Reasoning != nil {
		reasoning = m.Reasoning(prompt, turn)
	}

	sess.transcript = append(sess.transcript, mockExchange{prompt: prompt, response: response})
	sess.usedTokens += (len(prompt) + len(response)) / 4
	usage := Usage{
		InputTokens:  len(prompt) / 4,
		OutputTokens: len(response) / 4,
		UsedTokens:   sess.usedTokens,
		MaxTokens:    m.MaxTokens,
	}
	m.mu.Unlock()

	events := make(chan Event, 8)
	go func() {
		defer close(events)
		emit := func(ev Event) bool {
			ev.Time = time.Now()
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if !emit(Event{Kind: EventTurnStart}) {
			return
		}
		if reasoning != "" {
			if !emit(Event{Kind: EventReasoning, Text: reasoning}) {
				return
			}
		}
		if !emit(Event{Kind: EventMessage, Text: response}) {
			return
		}
		emit(Event{Kind: EventTurnEnd, Text: response, Usage: &usage})
	}()
	return events, nil
}

func (m *Mock) ContextUsage(ctx context.Context, h *Handle) (Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[h.ID]
	if !ok {
		return Usage{}, fmt.Errorf("usage for %s: %w", h.ID, ErrSessionNotFound)
	}
	return Usage{UsedTokens: sess.usedTokens, MaxTokens: m.MaxTokens}, nil
}

// Compact collapses the transcript to its final exchange and replaces the
// rest with a short summary note, mimicking backend-side history rewrite.
func (m *Mock) Compact(ctx context.Context, h *Handle, preserve []string, summaryPrompt string) (*CompactResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[h.ID]
	if !ok {
		return nil, fmt.Errorf("compact %s: %w", h.ID, ErrSessionNotFound)
	}

	before := sess.usedTokens
	summary := fmt.Sprintf("compacted %d exchanges", len(sess.transcript))
	if len(sess.transcript) > 1 {
		sess.transcript = sess.transcript[len(sess.transcript)-1:]
	}
	sess.usedTokens = len(summary) / 4
	for _, ex := range sess.transcript {
		sess.usedTokens += (len(ex.prompt) + len(ex.response)) / 4
	}
	return &CompactResult{Summary: summary, TokensBefore: before, TokensAfter: sess.usedTokens}, nil
}

func (m *Mock) Checkpoint(ctx context.Context, h *Handle, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[h.ID]
	if !ok {
		return "", fmt.Errorf("checkpoint %s: %w", h.ID, ErrSessionNotFound)
	}
	m.seq++
	id := fmt.Sprintf("mockcp-%d", m.seq)
	if name != "" {
		id = fmt.Sprintf("mockcp-%s-%d", name, m.seq)
	}
	m.checkpoints[id] = mockSnapshot{
		model:      sess.handle.Model,
		turns:      sess.turns,
		usedTokens: sess.usedTokens,
		transcript: append([]mockExchange(nil), sess.transcript...),
	}
	return id, nil
}

func (m *Mock) Restore(ctx context.Context, checkpointID string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.checkpoints[checkpointID]
	if !ok {
		return nil, fmt.Errorf("restore %q: %w", checkpointID, ErrSessionNotFound)
	}

	h := Handle{
		ID:      uuid.NewString(),
		Model:   snap.model,
		Created: time.Now(),
	}
	h.BackendID = "mock-" + h.ID[:8]
	m.sessions[h.ID] = &mockSession{
		handle:     h,
		turns:      snap.turns,
		usedTokens: snap.usedTokens,
		transcript: append([]mockExchange(nil), snap.transcript...),
	}
	m.creates++
	return &h, nil
}

// CreateCount reports how many sessions this adapter opened.
func (m *Mock) CreateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates
}

// DestroyCount reports how many sessions this adapter tore down.
func (m *Mock) DestroyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroys
}

// LiveSessions reports how many sessions are currently open.
func (m *Mock) LiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
