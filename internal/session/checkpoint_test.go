package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bewest/sdqctl-sub002/internal/workflow"
)

func TestCheckpointRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	doc := testDoc(t, "ADAPTER: mock\nPROMPT: review the code\nPROMPT: fix the bugs\n")
	s := New(doc, nil, workflow.ModeAccumulate, 3, 80)
	s.CycleNumber = 2
	s.PromptIndex = 1
	s.StepIndex = 1
	s.AppendMessage("user", "review the code")
	s.AppendMessage("assistant", "looks fine")
	s.Stats.Turns = 1

	cp := s.Snapshot(CheckpointPause, "", "waiting for review", "backend-123")
	path := PausePath(tmpDir, doc.Source, "")
	if err := cp.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("LoadCheckpoint returned nil")
	}

	if loaded.Type != CheckpointPause {
		t.Errorf("Type = %q, want %q", loaded.Type, CheckpointPause)
	}
	if loaded.SessionID != s.ID {
		t.Errorf("SessionID = %q, want %q", loaded.SessionID, s.ID)
	}
	if loaded.CycleNumber != 2 {
		t.Errorf("CycleNumber = %d, want 2", loaded.CycleNumber)
	}
	if loaded.PromptIndex != 1 {
		t.Errorf("PromptIndex = %d, want 1", loaded.PromptIndex)
	}
	if loaded.BackendCheckpoint != "backend-123" {
		t.Errorf("BackendCheckpoint = %q, want %q", loaded.BackendCheckpoint, "backend-123")
	}
	if len(loaded.Messages) != 2 {
		t.Fatalf("Messages = %d, want 2", len(loaded.Messages))
	}
	if loaded.Messages[1].Content != "looks fine" {
		t.Errorf("Messages[1].Content = %q, want %q", loaded.Messages[1].Content, "looks fine")
	}
	if loaded.Stats.Turns != 1 {
		t.Errorf("Stats.Turns = %d, want 1", loaded.Stats.Turns)
	}
	if loaded.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set by Snapshot")
	}
}

func TestLoadCheckpointMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	cp, err := LoadCheckpoint(path)
	if err != nil {
		t.Errorf("LoadCheckpoint returned error for missing file: %v", err)
	}
	if cp != nil {
		t.Errorf("LoadCheckpoint returned non-nil for missing file: %+v", cp)
	}
}

func TestLoadCheckpointCorrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("invalid json"), 0o644); err != nil {
		t.Fatalf("failed to write corrupted checkpoint: %v", err)
	}

	cp, err := LoadCheckpoint(path)
	if err == nil {
		t.Error("LoadCheckpoint should return error for corrupted file")
	}
	if cp != nil {
		t.Error("LoadCheckpoint should return nil for corrupted file")
	}
}

func TestClearCheckpoint(t *testing.T) {
	tmpDir := t.TempDir()
	doc := testDoc(t, "PROMPT: hello\n")
	s := New(doc, nil, workflow.ModeAccumulate, 1, 80)

	path := CheckpointPath(tmpDir, doc.Source, "")
	if err := s.Snapshot(CheckpointCycle, "", "", "").Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := ClearCheckpoint(path); err != nil {
		t.Fatalf("ClearCheckpoint failed: %v", err)
	}

	loaded, _ := LoadCheckpoint(path)
	if loaded != nil {
		t.Error("checkpoint should be cleared")
	}

	if err := ClearCheckpoint(path); err != nil {
		t.Errorf("ClearCheckpoint should not error for non-existent file: %v", err)
	}
}

func TestCheckpointPathsAreStableAndDistinct(t *testing.T) {
	dir := "/var/state"
	a1 := CheckpointPath(dir, "review.sdq", "module-a")
	a2 := CheckpointPath(dir, "review.sdq", "module-a")
	b := CheckpointPath(dir, "review.sdq", "module-b")
	other := CheckpointPath(dir, "fix.sdq", "module-a")

	if a1 != a2 {
		t.Errorf("same inputs should map to the same path: %q vs %q", a1, a2)
	}
	if a1 == b {
		t.Errorf("distinct units should map to distinct paths, both %q", a1)
	}
	if a1 == other {
		t.Errorf("distinct workflows should map to distinct paths, both %q", a1)
	}
	if PausePath(dir, "review.sdq", "module-a") == a1 {
		t.Error("pause path should differ from cycle checkpoint path")
	}
}

func TestResumeDocumentFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	wfPath := filepath.Join(tmpDir, "review.sdq")
	if err := os.WriteFile(wfPath, []byte("PROMPT: review\n"), 0o644); err != nil {
		t.Fatalf("write workflow: %v", err)
	}

	doc, err := workflow.ParseFile(wfPath)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	s := New(doc, nil, workflow.ModeAccumulate, 1, 80)

	cpPath := PausePath(tmpDir, wfPath, "")
	if err := s.Snapshot(CheckpointPause, "", "", "").Save(cpPath); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadCheckpoint(cpPath)
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	resumed, err := loaded.ResumeDocument()
	if err != nil {
		t.Fatalf("ResumeDocument failed: %v", err)
	}
	if resumed.PromptCount() != 1 {
		t.Errorf("PromptCount = %d, want 1", resumed.PromptCount())
	}
}

func TestResumeDocumentMissingWorkflowNamesBothPaths(t *testing.T) {
	tmpDir := t.TempDir()
	wfPath := filepath.Join(tmpDir, "review.sdq")
	if err := os.WriteFile(wfPath, []byte("PROMPT: review\n"), 0o644); err != nil {
		t.Fatalf("write workflow: %v", err)
	}

	doc, err := workflow.ParseFile(wfPath)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	s := New(doc, nil, workflow.ModeAccumulate, 1, 80)

	cpPath := PausePath(tmpDir, wfPath, "")
	if err := s.Snapshot(CheckpointPause, "", "", "").Save(cpPath); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := os.Remove(wfPath); err != nil {
		t.Fatalf("remove workflow: %v", err)
	}

	loaded, err := LoadCheckpoint(cpPath)
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	_, err = loaded.ResumeDocument()
	if err == nil {
		t.Fatal("ResumeDocument should fail when the workflow file is gone")
	}
	if !strings.Contains(err.Error(), cpPath) {
		t.Errorf("error %q should name the checkpoint path %q", err, cpPath)
	}
	if !strings.Contains(err.Error(), wfPath) {
		t.Errorf("error %q should name the workflow path %q", err, wfPath)
	}
}

func TestResumeDocumentFromInlineText(t *testing.T) {
	tmpDir := t.TempDir()
	doc := testDoc(t, "PROMPT: inline prompt\n")
	s := New(doc, nil, workflow.ModeAccumulate, 1, 80)

	cpPath := PausePath(tmpDir, doc.Source, "")
	if err := s.Snapshot(CheckpointPause, "", "", "").Save(cpPath); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadCheckpoint(cpPath)
	if err != nil {
		t.Fatalf("LoadCheckpoint failed: %v", err)
	}
	if loaded.WorkflowText == "" {
		t.Fatal("inline workflows should be embedded in the checkpoint")
	}
	resumed, err := loaded.ResumeDocument()
	if err != nil {
		t.Fatalf("ResumeDocument failed: %v", err)
	}
	if resumed.PromptCount() != 1 {
		t.Errorf("PromptCount = %d, want 1", resumed.PromptCount())
	}
}

func TestRestoreSession(t *testing.T) {
	doc := testDoc(t, "PROMPT: one\nPROMPT: two\n")
	s := New(doc, nil, workflow.ModeCompact, 5, 80)
	s.Target = "module-a"
	s.CycleNumber = 3
	s.PromptIndex = 1
	s.StepIndex = 1
	s.AppendMessage("user", "one")
	s.Stats.Turns = 4

	cp := s.Snapshot(CheckpointCycle, "", "", "")
	restored := RestoreSession(cp, doc, nil, 5, 80)

	if restored.ID != s.ID {
		t.Errorf("ID = %q, want %q", restored.ID, s.ID)
	}
	if restored.Nonce != s.Nonce {
		t.Errorf("Nonce = %q, want %q", restored.Nonce, s.Nonce)
	}
	if restored.CycleNumber != 3 || restored.PromptIndex != 1 || restored.StepIndex != 1 {
		t.Errorf("cursors = (%d, %d, %d), want (3, 1, 1)",
			restored.CycleNumber, restored.PromptIndex, restored.StepIndex)
	}
	if restored.Mode != workflow.ModeCompact {
		t.Errorf("Mode = %q, want %q", restored.Mode, workflow.ModeCompact)
	}
	if restored.Target != "module-a" {
		t.Errorf("Target = %q, want %q", restored.Target, "module-a")
	}
	if len(restored.Messages) != 1 {
		t.Errorf("Messages = %d, want 1", len(restored.Messages))
	}
	if restored.Stats.Turns != 4 {
		t.Errorf("Stats.Turns = %d, want 4", restored.Stats.Turns)
	}
	if restored.State != StateCreated {
		t.Errorf("State = %q, want %q", restored.State, StateCreated)
	}
}
