// parse.go translates claude CLI stream-json lines into adapter events.
package claudecli

import (
	"encoding/json"
	"strings"

	"github.com/bewest/sdqctl-sub002/internal/adapter"
)

// subtaskTool is the backend tool name that spawns a nested agent.
const subtaskTool = "Task"

// lineParser holds per-turn parse state: the backend session id seen in
// the init event and the names of in-flight tool calls so results can be
// classified.
type lineParser struct {
	sessionID string
	toolNames map[string]string // tool call id -> name
}

func newLineParser() *lineParser {
	return &lineParser{toolNames: make(map[string]string)}
}

// parse maps one output line onto zero or more events. Lines that are not
// valid JSON, and JSON types the mapping does not know, come back as
// unknown events with the payload preserved; nothing is dropped.
func (p *lineParser) parse(line string) []adapter.Event {
	if strings.TrimSpace(line) == "" {
		return nil
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return []adapter.Event{{Kind: adapter.EventUnknown, Text: "unparsable line", Raw: line}}
	}

	typeStr, _ := raw["type"].(string)
	switch typeStr {
	case "system":
		return p.parseSystem(raw, line)
	case "assistant":
		return p.parseAssistant(raw)
	case "user":
		return p.parseToolResults(raw)
	case "tool":
		return p.parseTool(raw)
	case "result":
		return p.parseResult(raw)
	case "error":
		return []adapter.Event{{
			Kind: adapter.EventSessionError,
			Err:  errorDetail(raw),
		}}
	default:
		return []adapter.Event{{Kind: adapter.EventUnknown, Text: typeStr, Raw: line}}
	}
}

// parseSystem handles "system" lines. The init subtype starts a session
// and carries the backend conversation id used for resume.
func (p *lineParser) parseSystem(raw map[string]any, line string) []adapter.Event {
	if getString(raw, "subtype") == "init" {
		if id := getString(raw, "session_id"); id != "" {
			p.sessionID = id
		}
		ev := adapter.Event{Kind: adapter.EventSessionStart, Text: getString(raw, "model")}
		return []adapter.Event{ev}
	}
	return []adapter.Event{{Kind: adapter.EventUnknown, Text: "system:" + getString(raw, "subtype"), Raw: line}}
}

// parseAssistant walks the assistant message content array: text blocks
// become message events, thinking blocks reasoning, tool_use blocks tool
// or subtask starts.
func (p *lineParser) parseAssistant(raw map[string]any) []adapter.Event {
	var out []adapter.Event

	message, _ := raw["message"].(map[string]any)
	if message == nil {
		if text := getString(raw, "text"); text != "" {
			return []adapter.Event{{Kind: adapter.EventMessage, Text: text}}
		}
		return nil
	}

	if contentArr, ok := message["content"].([]any); ok {
		var text strings.Builder
		for _, c := range contentArr {
			cm, ok := c.(map[string]any)
			if !ok {
				continue
			}
			switch getString(cm, "type") {
			case "text":
				text.WriteString(getString(cm, "text"))
			case "thinking":
				out = append(out, adapter.Event{Kind: adapter.EventReasoning, Text: getString(cm, "thinking")})
			case "tool_use":
				out = append(out, p.toolUseEvent(cm))
			}
		}
		if text.Len() > 0 {
			out = append(out, adapter.Event{Kind: adapter.EventMessage, Text: text.String()})
		}
	}

	if usage := extractUsage(message); usage != nil {
		out = append(out, adapter.Event{Kind: adapter.EventUsage, Usage: usage})
	}
	return out
}

func (p *lineParser) toolUseEvent(cm map[string]any) adapter.Event {
	tool := &adapter.ToolCall{
		ID:   getString(cm, "id"),
		Name: getString(cm, "name"),
	}
	if input, ok := cm["input"]; ok {
		if data, err := json.Marshal(input); err == nil {
			tool.Input = string(data)
		}
	}
	if tool.ID != "" {
		p.toolNames[tool.ID] = tool.Name
	}
	kind := adapter.EventToolRequested
	if tool.Name == subtaskTool {
		kind = adapter.EventSubtaskStart
	}
	return adapter.Event{Kind: kind, Tool: tool}
}

// parseToolResults handles "user" lines, which carry tool_result blocks.
func (p *lineParser) parseToolResults(raw map[string]any) []adapter.Event {
	message, _ := raw["message"].(map[string]any)
	if message == nil {
		return nil
	}
	contentArr, ok := message["content"].([]any)
	if !ok {
		return nil
	}

	var out []adapter.Event
	for _, c := range contentArr {
		cm, ok := c.(map[string]any)
		if !ok || getString(cm, "type") != "tool_result" {
			continue
		}
		id := getString(cm, "tool_use_id")
		tool := &adapter.ToolCall{ID: id, Name: p.toolNames[id]}
		if content, ok := cm["content"]; ok {
			if data, err := json.Marshal(content); err == nil {
				tool.Output = string(data)
			}
		}
		kind := adapter.EventToolComplete
		if tool.Name == subtaskTool {
			kind = adapter.EventSubtaskComplete
			if isTrue(cm, "is_error") {
				kind = adapter.EventSubtaskFail
			}
		}
		out = append(out, adapter.Event{Kind: kind, Tool: tool})
	}
	return out
}

// parseTool handles flat "tool" lines some CLI versions emit for completed
// tool executions.
func (p *lineParser) parseTool(raw map[string]any) []adapter.Event {
	tool := &adapter.ToolCall{
		ID:   getString(raw, "id"),
		Name: getString(raw, "name"),
	}
	if output, ok := raw["output"]; ok {
		if data, err := json.Marshal(output); err == nil {
			tool.Output = string(data)
		}
	}
	return []adapter.Event{{Kind: adapter.EventToolComplete, Tool: tool}}
}

// parseResult handles the terminal "result" line: turn end with final text
// and usage, or a session error when the backend flags one.
func (p *lineParser) parseResult(raw map[string]any) []adapter.Event {
	if isTrue(raw, "is_error") {
		detail := getString(raw, "result")
		if detail == "" {
			detail = getString(raw, "subtype")
		}
		return []adapter.Event{{Kind: adapter.EventSessionError, Err: detail}}
	}

	text := getString(raw, "text")
	// "result" takes precedence over "text" when both are present.
	if r := getString(raw, "result"); r != "" {
		text = r
	}
	return []adapter.Event{{
		Kind:  adapter.EventTurnEnd,
		Text:  text,
		Usage: extractUsage(raw),
	}}
}

func errorDetail(raw map[string]any) string {
	code := getString(raw, "code")
	message := getString(raw, "message")
	if message == "" {
		message = getString(raw, "error")
	}
	if code != "" {
		return code + ": " + message
	}
	return message
}

// extractUsage pulls token counts from a usage sub-object. Returns nil
// when nothing meaningful is present.
func extractUsage(source map[string]any) *adapter.Usage {
	usage, ok := source["usage"].(map[string]any)
	if !ok {
		return nil
	}
	in := getInt(usage, "input_tokens")
	out := getInt(usage, "output_tokens")
	in += getInt(usage, "cache_read_input_tokens")
	in += getInt(usage, "cache_creation_input_tokens")
	if in == 0 && out == 0 {
		return nil
	}
	return &adapter.Usage{
		InputTokens:  in,
		OutputTokens: out,
		UsedTokens:   in + out,
	}
}

func getString(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

// getInt reads a numeric field; encoding/json decodes numbers as float64.
func getInt(m map[string]any, key string) int {
	v, ok := m[key].(float64)
	if !ok {
		return 0
	}
	return int(v)
}

func isTrue(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}
