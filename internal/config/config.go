// Package config handles reading and writing .sdqctl/config.yaml and
// resolving effective settings from the three layers: config file,
// workflow directives, and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bewest/sdqctl-sub002/internal/workflow"
)

// Config is the top-level structure for .sdqctl/config.yaml.
type Config struct {
	Version int           `yaml:"version"`
	Adapter string        `yaml:"adapter"`
	Model   string        `yaml:"model"`
	Session SessionConfig `yaml:"session"`
	Run     RunConfig     `yaml:"run"`
	Batch   BatchConfig   `yaml:"batch"`
}

// SessionConfig controls conversation behaviour across cycles.
type SessionConfig struct {
	Mode                string `yaml:"mode"`                  // accumulate | compact | fresh
	MaxCycles           int    `yaml:"max_cycles"`
	ContextLimitPercent int    `yaml:"context_limit_percent"` // compaction threshold
	OnContextLimit      string `yaml:"on_context_limit"`      // compact | stop
	CheckpointEvery     string `yaml:"checkpoint_every"`      // none | cycle | prompt
	IdenticalThreshold  int    `yaml:"identical_threshold"`   // loop detector repeats
	MinResponseLen      int    `yaml:"min_response_len"`      // minimal-response floor
}

// RunConfig holds defaults for RUN steps.
type RunConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	OutputLimit    int    `yaml:"output_limit"` // captured chars per command
	OnError        string `yaml:"on_error"`     // stop | continue
	AllowShell     bool   `yaml:"allow_shell"`
}

// BatchConfig controls parallel fan-out.
type BatchConfig struct {
	MaxParallel int  `yaml:"max_parallel"`
	FailFast    bool `yaml:"fail_fast"`
}

// stateDir is the per-project state directory, relative to the project root.
const stateDir = ".sdqctl"
const configFile = "config.yaml"

// StateDir returns the project's state directory path.
func StateDir(projectRoot string) string {
	return filepath.Join(projectRoot, stateDir)
}

// CheckpointsDir returns where checkpoints live for a project.
func CheckpointsDir(projectRoot string) string {
	return filepath.Join(projectRoot, stateDir, "checkpoints")
}

// LogPath returns the JSONL event log path for a project.
func LogPath(projectRoot string) string {
	return filepath.Join(projectRoot, stateDir, "log.jsonl")
}

// HistoryPath returns the run history database path for a project.
func HistoryPath(projectRoot string) string {
	return filepath.Join(projectRoot, stateDir, "history.db")
}

// ReadConfig reads .sdqctl/config.yaml from the given project directory.
// dir is the project root (not .sdqctl/ itself).
// Returns an error if the file is not found or YAML is malformed.
func ReadConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, stateDir, configFile)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &cfg, nil
}

// WriteConfig writes cfg to .sdqctl/config.yaml in the given project
// directory. Creates the .sdqctl/ directory if it does not exist.
func WriteConfig(dir string, cfg *Config) error {
	dirPath := filepath.Join(dir, stateDir)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	path := filepath.Join(dirPath, configFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Adapter: "claude",
		Session: SessionConfig{
			Mode:                string(workflow.ModeAccumulate),
			MaxCycles:           1,
			ContextLimitPercent: 80,
			OnContextLimit:      string(workflow.OverflowCompact),
			CheckpointEvery:     string(workflow.CheckpointNone),
			IdenticalThreshold:  2,
			MinResponseLen:      20,
		},
		Run: RunConfig{
			TimeoutSeconds: 300,
			OutputLimit:    10000,
			OnError:        string(workflow.OnErrorStop),
		},
		Batch: BatchConfig{
			MaxParallel: 4,
		},
	}
}

// Overrides carries command-line flag values. Zero values mean the flag
// was not given; booleans use pointers so false can be explicit.
type Overrides struct {
	Adapter             string
	Model               string
	Mode                string
	MaxCycles           int
	ContextLimitPercent int
	MaxParallel         int
	FailFast            *bool
	AllowShell          *bool
}

// Settings is the resolved view the engine consumes. Resolve merges the
// config file, the workflow document, and flag overrides, in that order
// of increasing precedence.
type Settings struct {
	Adapter             string
	Model               string
	Mode                workflow.SessionMode
	MaxCycles           int
	ContextLimitPercent int
	OnContextLimit      workflow.OverflowAction
	CheckpointEvery     workflow.CheckpointPolicy
	IdenticalThreshold  int
	MinResponseLen      int
	RunTimeout          time.Duration
	OutputLimit         int
	RunOnError          workflow.ErrorPolicy
	AllowShell          bool
	MaxParallel         int
	FailFast            bool
}

// Resolve merges the three settings layers. file may be nil when the
// project has no config; doc may be nil when resolving outside a run.
func Resolve(file *Config, doc *workflow.Document, fl Overrides) Settings {
	base := DefaultConfig()
	if file != nil {
		mergeConfig(base, file)
	}

	s := Settings{
		Adapter:             base.Adapter,
		Model:               base.Model,
		Mode:                workflow.SessionMode(base.Session.Mode),
		MaxCycles:           base.Session.MaxCycles,
		ContextLimitPercent: base.Session.ContextLimitPercent,
		OnContextLimit:      workflow.OverflowAction(base.Session.OnContextLimit),
		CheckpointEvery:     workflow.CheckpointPolicy(base.Session.CheckpointEvery),
		IdenticalThreshold:  base.Session.IdenticalThreshold,
		MinResponseLen:      base.Session.MinResponseLen,
		RunTimeout:          time.Duration(base.Run.TimeoutSeconds) * time.Second,
		OutputLimit:         base.Run.OutputLimit,
		RunOnError:          workflow.ErrorPolicy(base.Run.OnError),
		AllowShell:          base.Run.AllowShell,
		MaxParallel:         base.Batch.MaxParallel,
		FailFast:            base.Batch.FailFast,
	}

	if doc != nil {
		if doc.Adapter != "" {
			s.Adapter = doc.Adapter
		}
		if doc.Model != "" {
			s.Model = doc.Model
		}
		if doc.Mode != "" {
			s.Mode = doc.Mode
		}
		if doc.MaxCycles > 0 {
			s.MaxCycles = doc.MaxCycles
		}
		if doc.ContextLimitPercent > 0 {
			s.ContextLimitPercent = doc.ContextLimitPercent
		}
		if doc.OnContextLimit != "" {
			s.OnContextLimit = doc.OnContextLimit
		}
		if doc.CheckpointEvery != "" {
			s.CheckpointEvery = doc.CheckpointEvery
		}
		if doc.AllowShell {
			s.AllowShell = true
		}
	}

	if fl.Adapter != "" {
		s.Adapter = fl.Adapter
	}
	if fl.Model != "" {
		s.Model = fl.Model
	}
	if fl.Mode != "" {
		s.Mode = workflow.SessionMode(fl.Mode)
	}
	if fl.MaxCycles > 0 {
		s.MaxCycles = fl.MaxCycles
	}
	if fl.ContextLimitPercent > 0 {
		s.ContextLimitPercent = fl.ContextLimitPercent
	}
	if fl.MaxParallel > 0 {
		s.MaxParallel = fl.MaxParallel
	}
	if fl.FailFast != nil {
		s.FailFast = *fl.FailFast
	}
	if fl.AllowShell != nil {
		s.AllowShell = *fl.AllowShell
	}

	return s
}

// mergeConfig overlays non-zero fields from src onto dst.
func mergeConfig(dst, src *Config) {
	if src.Version > 0 {
		dst.Version = src.Version
	}
	if src.Adapter != "" {
		dst.Adapter = src.Adapter
	}
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.Session.Mode != "" {
		dst.Session.Mode = src.Session.Mode
	}
	if src.Session.MaxCycles > 0 {
		dst.Session.MaxCycles = src.Session.MaxCycles
	}
	if src.Session.ContextLimitPercent > 0 {
		dst.Session.ContextLimitPercent = src.Session.ContextLimitPercent
	}
	if src.Session.OnContextLimit != "" {
		dst.Session.OnContextLimit = src.Session.OnContextLimit
	}
	if src.Session.CheckpointEvery != "" {
		dst.Session.CheckpointEvery = src.Session.CheckpointEvery
	}
	if src.Session.IdenticalThreshold > 0 {
		dst.Session.IdenticalThreshold = src.Session.IdenticalThreshold
	}
	if src.Session.MinResponseLen > 0 {
		dst.Session.MinResponseLen = src.Session.MinResponseLen
	}
	if src.Run.TimeoutSeconds > 0 {
		dst.Run.TimeoutSeconds = src.Run.TimeoutSeconds
	}
	if src.Run.OutputLimit > 0 {
		dst.Run.OutputLimit = src.Run.OutputLimit
	}
	if src.Run.OnError != "" {
		dst.Run.OnError = src.Run.OnError
	}
	if src.Run.AllowShell {
		dst.Run.AllowShell = true
	}
	if src.Batch.MaxParallel > 0 {
		dst.Batch.MaxParallel = src.Batch.MaxParallel
	}
	if src.Batch.FailFast {
		dst.Batch.FailFast = true
	}
}
