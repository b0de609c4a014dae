// collect.go drains a turn stream into an aggregate result.
package adapter

import (
	"context"
	"fmt"
	"strings"
)

// TurnResult aggregates one completed turn.
type TurnResult struct {
	Text      string // final assistant message
	Reasoning string // concatenated reasoning text
	Usage     Usage
	ToolCalls int
	Intents   []string
	Events    int
	Aborted   bool
}

// Collect consumes events until the stream terminates and returns the
// aggregate. A closed channel without an explicit terminal event counts as
// a completed turn with whatever text accumulated. Cancellation returns
// the partial result with ctx.Err(); a session_error event returns the
// partial result with an error carrying the backend detail.
func Collect(ctx context.Context, events <-chan Event) (*TurnResult, error) {
	res := &TurnResult{}
	var msg, reasoning strings.Builder

	finish := func() {
		if res.Text == "" {
			res.Text = msg.String()
		}
		res.Reasoning = reasoning.String()
	}

	for {
		select {
		case <-ctx.Done():
			finish()
			return res, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				finish()
				return res, nil
			}
			res.Events++
			switch ev.Kind {
			case EventMessage:
				if msg.Len() > 0 {
					msg.WriteString("\n")
				}
				msg.WriteString(ev.Text)
			case EventMessageDelta:
				msg.WriteString(ev.Delta)
			case EventReasoning:
				if reasoning.Len() > 0 {
					reasoning.WriteString("\n")
				}
				reasoning.WriteString(ev.Text)
			case EventIntent:
				res.Intents = append(res.Intents, ev.Text)
			case EventToolRequested:
				res.ToolCalls++
			case EventUsage:
				if ev.Usage != nil {
					res.Usage = *ev.Usage
				}
			case EventTurnEnd:
				if ev.Text != "" {
					res.Text = ev.Text
				}
				if ev.Usage != nil {
					res.Usage = *ev.Usage
				}
				finish()
				return res, nil
			case EventSessionError:
				finish()
				return res, fmt.Errorf("backend session error: %s", ev.Err)
			case EventAbort:
				res.Aborted = true
				finish()
				return res, ErrAborted
			}
		}
	}
}
