package loopdetect

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestIdenticalResponsesFireAfterThreshold(t *testing.T) {
	d := New(2, 0, "")

	if sig := d.Check("", "analyzing the parser module in depth", 1); sig != nil {
		t.Fatalf("first response triggered %v", sig)
	}
	if sig := d.Check("", "analyzing the parser module in depth", 2); sig != nil {
		t.Fatalf("second identical response triggered %v, want nil at threshold 2", sig)
	}
	sig := d.Check("", "analyzing the parser module in depth", 3)
	if sig == nil {
		t.Fatal("third identical response should trigger")
	}
	if sig.Trigger != TriggerRepeat {
		t.Errorf("Trigger = %q, want %q", sig.Trigger, TriggerRepeat)
	}
}

func TestDifferentResponseResetsRepeatCount(t *testing.T) {
	d := New(2, 0, "")

	_ = d.Check("", "first answer with plenty of content", 1)
	_ = d.Check("", "first answer with plenty of content", 1)
	_ = d.Check("", "a completely different answer this time", 1)
	if sig := d.Check("", "first answer with plenty of content", 1); sig != nil {
		t.Errorf("repeat count should reset after a different response, got %v", sig)
	}
}

func TestReasoningPhraseCaseInsensitive(t *testing.T) {
	d := New(2, 0, "")

	sig := d.Check("", "I think I'm GOING IN CIRCLES on this refactor and should stop here.", 1)
	if sig == nil {
		t.Fatal("stuck phrase should trigger")
	}
	if sig.Trigger != TriggerPhrase {
		t.Errorf("Trigger = %q, want %q", sig.Trigger, TriggerPhrase)
	}
	if !strings.Contains(sig.Detail, "going in circles") {
		t.Errorf("Detail = %q, should name the phrase", sig.Detail)
	}
}

func TestPhraseInReasoningText(t *testing.T) {
	d := New(2, 0, "")

	sig := d.Check("we've been here before, the test fails the same way", "Adjusted the retry budget to three attempts.", 1)
	if sig == nil {
		t.Fatal("stuck phrase in reasoning should trigger even when the response is clean")
	}
	if sig.Trigger != TriggerPhrase {
		t.Errorf("Trigger = %q, want %q", sig.Trigger, TriggerPhrase)
	}
}

func TestMinimalResponseOnlyAfterFirstCycle(t *testing.T) {
	d := New(2, 0, "")

	if sig := d.Check("", "done", 1); sig != nil {
		t.Errorf("short response in cycle 1 should not trigger, got %v", sig)
	}
	sig := d.Check("", "ok", 2)
	if sig == nil {
		t.Fatal("short response in cycle 2 should trigger")
	}
	if sig.Trigger != TriggerMinimal {
		t.Errorf("Trigger = %q, want %q", sig.Trigger, TriggerMinimal)
	}
}

func TestMinimalResponseFloorIsConfigurable(t *testing.T) {
	d := New(2, 5, "")

	if sig := d.Check("", "done now", 2); sig != nil {
		t.Errorf("9-char response above a floor of 5 should not trigger, got %v", sig)
	}
	sig := d.Check("", "ok", 3)
	if sig == nil {
		t.Fatal("2-char response below a floor of 5 should trigger")
	}
	if sig.Trigger != TriggerMinimal {
		t.Errorf("Trigger = %q, want %q", sig.Trigger, TriggerMinimal)
	}

	wide := New(2, 100, "")
	if sig := wide.Check("", "a reasonably full sentence about progress", 2); sig == nil {
		t.Error("41-char response below a floor of 100 should trigger")
	} else if sig.Trigger != TriggerMinimal {
		t.Errorf("Trigger = %q, want %q", sig.Trigger, TriggerMinimal)
	}
}

func TestStopFileWinsOverEverything(t *testing.T) {
	stop := filepath.Join(t.TempDir(), "stop-abc123")
	if err := os.WriteFile(stop, nil, 0o644); err != nil {
		t.Fatalf("write stop file: %v", err)
	}
	d := New(2, 0, stop)

	// A response that would also match the phrase trigger.
	sig := d.Check("", "I'm going in circles", 3)
	if sig == nil {
		t.Fatal("expected a signal")
	}
	if sig.Trigger != TriggerStopFile {
		t.Errorf("Trigger = %q, want %q", sig.Trigger, TriggerStopFile)
	}
	if !d.StopRequested() {
		t.Error("StopRequested should report true while the file exists")
	}
}

func TestStopFileAbsent(t *testing.T) {
	d := New(2, 0, filepath.Join(t.TempDir(), "stop-missing"))
	if d.StopRequested() {
		t.Error("StopRequested should be false when the file does not exist")
	}
	if sig := d.Check("", "making steady progress on the context manager", 1); sig != nil {
		t.Errorf("no trigger expected, got %v", sig)
	}
}

func TestResetClearsRepeatHistory(t *testing.T) {
	d := New(2, 0, "")

	_ = d.Check("", "the same response repeated over and over", 1)
	_ = d.Check("", "the same response repeated over and over", 2)
	d.Reset()
	_ = d.Check("", "the same response repeated over and over", 3)
	if sig := d.Check("", "the same response repeated over and over", 4); sig != nil {
		t.Errorf("reset should clear the repeat count, got %v", sig)
	}
}

func TestDefaultThreshold(t *testing.T) {
	d := New(0, 0, "")
	if d.Threshold() != 2 {
		t.Errorf("Threshold = %d, want 2", d.Threshold())
	}
}

func TestWhitespaceVariantsCountAsIdentical(t *testing.T) {
	d := New(2, 0, "")

	_ = d.Check("", "the fix is already in place\n", 1)
	_ = d.Check("", "  the fix is already in place", 2)
	sig := d.Check("", "the fix is already in place", 3)
	if sig == nil {
		t.Fatal("whitespace-only variations should count as identical")
	}
	if sig.Trigger != TriggerRepeat {
		t.Errorf("Trigger = %q, want %q", sig.Trigger, TriggerRepeat)
	}
}
