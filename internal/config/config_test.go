package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bewest/sdqctl-sub002/internal/workflow"
)

func TestConfigYAMLRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Model = "sonnet"
	cfg.Session.MaxCycles = 7
	cfg.Batch.MaxParallel = 8

	if err := WriteConfig(tmpDir, cfg); err != nil {
		t.Fatalf("WriteConfig failed: %v", err)
	}

	loaded, err := ReadConfig(tmpDir)
	if err != nil {
		t.Fatalf("ReadConfig failed: %v", err)
	}

	if loaded.Model != "sonnet" {
		t.Errorf("Model: got %q, want %q", loaded.Model, "sonnet")
	}
	if loaded.Session.MaxCycles != 7 {
		t.Errorf("MaxCycles: got %d, want 7", loaded.Session.MaxCycles)
	}
	if loaded.Batch.MaxParallel != 8 {
		t.Errorf("MaxParallel: got %d, want 8", loaded.Batch.MaxParallel)
	}
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig(t.TempDir())
	if err == nil {
		t.Error("ReadConfig should fail when no config exists")
	}
}

func TestBackwardCompatibility(t *testing.T) {
	// A minimal config from an older build should still read cleanly.
	tmpDir := t.TempDir()
	oldConfig := `version: 1
adapter: claude
session:
  mode: accumulate
  max_cycles: 3
`
	configPath := filepath.Join(tmpDir, ".sdqctl")
	if err := os.MkdirAll(configPath, 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configPath, "config.yaml"), []byte(oldConfig), 0644); err != nil {
		t.Fatalf("failed to write old config: %v", err)
	}

	cfg, err := ReadConfig(tmpDir)
	if err != nil {
		t.Fatalf("ReadConfig failed on old config: %v", err)
	}
	if cfg.Session.MaxCycles != 3 {
		t.Errorf("MaxCycles: got %d, want 3", cfg.Session.MaxCycles)
	}
	if cfg.Run.TimeoutSeconds != 0 {
		t.Errorf("TimeoutSeconds: got %d, want 0 for absent field", cfg.Run.TimeoutSeconds)
	}
}

func TestResolveDefaultsOnly(t *testing.T) {
	s := Resolve(nil, nil, Overrides{})

	if s.Adapter != "claude" {
		t.Errorf("Adapter = %q, want %q", s.Adapter, "claude")
	}
	if s.Mode != workflow.ModeAccumulate {
		t.Errorf("Mode = %q, want %q", s.Mode, workflow.ModeAccumulate)
	}
	if s.ContextLimitPercent != 80 {
		t.Errorf("ContextLimitPercent = %d, want 80", s.ContextLimitPercent)
	}
	if s.RunTimeout != 300*time.Second {
		t.Errorf("RunTimeout = %v, want 5m", s.RunTimeout)
	}
	if s.IdenticalThreshold != 2 {
		t.Errorf("IdenticalThreshold = %d, want 2", s.IdenticalThreshold)
	}
	if s.MinResponseLen != 20 {
		t.Errorf("MinResponseLen = %d, want 20", s.MinResponseLen)
	}
}

func TestResolveMinResponseLenFromFile(t *testing.T) {
	file := &Config{Session: SessionConfig{MinResponseLen: 50}}
	s := Resolve(file, nil, Overrides{})
	if s.MinResponseLen != 50 {
		t.Errorf("MinResponseLen = %d, want 50", s.MinResponseLen)
	}
}

func TestResolveDocumentOverridesFile(t *testing.T) {
	file := DefaultConfig()
	file.Adapter = "mock"
	file.Session.MaxCycles = 2

	doc, err := workflow.Parse("ADAPTER: claude\nMAX-CYCLES: 5\nPROMPT: go\n", "")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	s := Resolve(file, doc, Overrides{})
	if s.Adapter != "claude" {
		t.Errorf("Adapter = %q, want workflow value %q", s.Adapter, "claude")
	}
	if s.MaxCycles != 5 {
		t.Errorf("MaxCycles = %d, want workflow value 5", s.MaxCycles)
	}
}

func TestResolveFlagsOverrideEverything(t *testing.T) {
	file := DefaultConfig()
	file.Adapter = "mock"

	doc, err := workflow.Parse("ADAPTER: claude\nMAX-CYCLES: 5\nPROMPT: go\n", "")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	ff := true
	s := Resolve(file, doc, Overrides{Adapter: "mock", MaxCycles: 9, FailFast: &ff})
	if s.Adapter != "mock" {
		t.Errorf("Adapter = %q, want flag value %q", s.Adapter, "mock")
	}
	if s.MaxCycles != 9 {
		t.Errorf("MaxCycles = %d, want flag value 9", s.MaxCycles)
	}
	if !s.FailFast {
		t.Error("FailFast flag should carry through")
	}
}

func TestResolveDocumentSilentOnUnsetFields(t *testing.T) {
	doc, err := workflow.Parse("PROMPT: just a prompt\n", "")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}

	s := Resolve(nil, doc, Overrides{})
	if s.Mode != workflow.ModeAccumulate {
		t.Errorf("Mode = %q, want default %q", s.Mode, workflow.ModeAccumulate)
	}
	if s.MaxCycles != 1 {
		t.Errorf("MaxCycles = %d, want default 1", s.MaxCycles)
	}
}

func TestStatePaths(t *testing.T) {
	root := "/work/project"
	if got := StateDir(root); got != filepath.Join(root, ".sdqctl") {
		t.Errorf("StateDir = %q", got)
	}
	if got := LogPath(root); got != filepath.Join(root, ".sdqctl", "log.jsonl") {
		t.Errorf("LogPath = %q", got)
	}
	if got := HistoryPath(root); got != filepath.Join(root, ".sdqctl", "history.db") {
		t.Errorf("HistoryPath = %q", got)
	}
	if got := CheckpointsDir(root); got != filepath.Join(root, ".sdqctl", "checkpoints") {
		t.Errorf("CheckpointsDir = %q", got)
	}
}
