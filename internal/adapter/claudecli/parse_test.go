package claudecli

import (
	"testing"

	"github.com/bewest/sdqctl-sub002/internal/adapter"
)

func TestParse_InitCapturesSessionID(t *testing.T) {
	p := newLineParser()
	line := `{"type":"system","subtype":"init","session_id":"sess-abc123","model":"claude-sonnet-4"}`

	events := p.parse(line)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Kind != adapter.EventSessionStart {
		t.Errorf("Kind = %q, want session_start", events[0].Kind)
	}
	if p.sessionID != "sess-abc123" {
		t.Errorf("sessionID = %q, want sess-abc123", p.sessionID)
	}
}

func TestParse_AssistantTextAndTool(t *testing.T) {
	p := newLineParser()
	line := `{"type":"assistant","message":{"content":[` +
		`{"type":"thinking","thinking":"need to inspect the file"},` +
		`{"type":"text","text":"Let me check."},` +
		`{"type":"tool_use","id":"tu_1","name":"Read","input":{"path":"main.go"}}],` +
		`"usage":{"input_tokens":120,"output_tokens":30}}}`

	events := p.parse(line)
	if len(events) != 4 {
		t.Fatalf("got %d events, want reasoning+tool+message+usage", len(events))
	}

	kinds := map[adapter.EventKind]bool{}
	for _, ev := range events {
		kinds[ev.Kind] = true
	}
	for _, want := range []adapter.EventKind{
		adapter.EventReasoning, adapter.EventMessage,
		adapter.EventToolRequested, adapter.EventUsage,
	} {
		if !kinds[want] {
			t.Errorf("missing %q event", want)
		}
	}
}

func TestParse_SubtaskToolClassified(t *testing.T) {
	p := newLineParser()
	use := `{"type":"assistant","message":{"content":[{"type":"tool_use","id":"tu_7","name":"Task","input":{"prompt":"explore"}}]}}`
	result := `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"tu_7","content":"done"}]}}`

	events := p.parse(use)
	if len(events) != 1 || events[0].Kind != adapter.EventSubtaskStart {
		t.Fatalf("tool_use Task = %+v, want subtask_start", events)
	}

	events = p.parse(result)
	if len(events) != 1 || events[0].Kind != adapter.EventSubtaskComplete {
		t.Fatalf("tool_result Task = %+v, want subtask_complete", events)
	}
}

func TestParse_ResultEndsTurnWithUsage(t *testing.T) {
	p := newLineParser()
	line := `{"type":"result","result":"All tests pass.","usage":{"input_tokens":500,"output_tokens":80}}`

	events := p.parse(line)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Kind != adapter.EventTurnEnd {
		t.Fatalf("Kind = %q, want turn_end", ev.Kind)
	}
	if ev.Text != "All tests pass." {
		t.Errorf("Text = %q", ev.Text)
	}
	if ev.Usage == nil || ev.Usage.UsedTokens != 580 {
		t.Errorf("Usage = %+v, want 580 used", ev.Usage)
	}
}

func TestParse_ErrorResultBecomesSessionError(t *testing.T) {
	p := newLineParser()
	line := `{"type":"result","is_error":true,"subtype":"error_max_turns","result":"hit max turns"}`

	events := p.parse(line)
	if len(events) != 1 || events[0].Kind != adapter.EventSessionError {
		t.Fatalf("events = %+v, want session_error", events)
	}
	if events[0].Err != "hit max turns" {
		t.Errorf("Err = %q", events[0].Err)
	}
}

func TestParse_UnknownTypePreserved(t *testing.T) {
	p := newLineParser()
	line := `{"type":"telemetry_v2","payload":{"x":1}}`

	events := p.parse(line)
	if len(events) != 1 || events[0].Kind != adapter.EventUnknown {
		t.Fatalf("events = %+v, want unknown", events)
	}
	if events[0].Raw != line {
		t.Error("unknown event must preserve the raw payload")
	}
	if events[0].Text != "telemetry_v2" {
		t.Errorf("Text = %q, want the original type", events[0].Text)
	}
}

func TestParse_GarbageLineNeverFatal(t *testing.T) {
	p := newLineParser()

	events := p.parse("not json at all")
	if len(events) != 1 || events[0].Kind != adapter.EventUnknown {
		t.Fatalf("events = %+v, want unknown", events)
	}
	if events := p.parse("   "); events != nil {
		t.Errorf("blank line should produce no events, got %+v", events)
	}
}

func TestBuildArgs_ResumeAndModel(t *testing.T) {
	c := New(Options{SkipPermissions: true})
	cv := &conv{
		cfg:       adapter.SessionConfig{Model: "sonnet", AddDirs: []string{"/extra"}},
		backendID: "sess-9",
	}

	args := c.buildArgs(cv, "do the thing")

	want := []string{
		"-p", "--verbose", "--output-format", "stream-json",
		"--dangerously-skip-permissions",
		"--resume", "sess-9",
		"--model", "sonnet",
		"--add-dir", "/extra",
		"do the thing",
	}
	if len(args) != len(want) {
		t.Fatalf("args = %v\nwant %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}
