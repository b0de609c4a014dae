// event.go defines the shared event taxonomy adapters translate into.
package adapter

import "time"

// EventKind classifies one streamed event. Backends map their native
// stream onto these kinds; anything they cannot classify becomes
// EventUnknown with the payload preserved in Raw, never dropped.
type EventKind string

const (
	// Session lifecycle.
	EventSessionStart  EventKind = "session_start"
	EventSessionResume EventKind = "session_resume"
	EventSessionIdle   EventKind = "session_idle"
	EventSessionError  EventKind = "session_error"
	EventModelChange   EventKind = "model_change"
	EventTruncation    EventKind = "truncation"

	// Turn lifecycle.
	EventTurnStart    EventKind = "turn_start"
	EventIntent       EventKind = "intent"
	EventReasoning    EventKind = "reasoning"
	EventMessage      EventKind = "message"
	EventMessageDelta EventKind = "message_delta"
	EventUsage        EventKind = "usage"
	EventTurnEnd      EventKind = "turn_end"

	// Tool calls.
	EventToolRequested EventKind = "tool_requested"
	EventToolStart     EventKind = "tool_start"
	EventToolPartial   EventKind = "tool_partial"
	EventToolComplete  EventKind = "tool_complete"

	// Sub-tasks the agent spawns on its own.
	EventSubtaskStart    EventKind = "subtask_start"
	EventSubtaskComplete EventKind = "subtask_complete"
	EventSubtaskFail     EventKind = "subtask_fail"

	EventAbort   EventKind = "abort"
	EventUnknown EventKind = "unknown"
)

// ToolCall describes a tool invocation surfaced by the backend.
type ToolCall struct {
	ID     string
	Name   string
	Input  string
	Output string
}

// Event is one element of a turn stream.
type Event struct {
	Kind  EventKind
	Text  string    // message text, reasoning text, intent, or error detail
	Delta string    // incremental text for message_delta
	Tool  *ToolCall // set for tool events
	Usage *Usage    // set for usage and turn_end events when known
	Err   string    // set for session_error
	Raw   string    // original backend payload for unknown events
	Time  time.Time
}

// Terminal reports whether the event ends a turn stream.
func (e Event) Terminal() bool {
	switch e.Kind {
	case EventTurnEnd, EventSessionError, EventAbort:
		return true
	}
	return false
}
