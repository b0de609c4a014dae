// build.go assembles the engine pieces the run-style commands share:
// config resolution, adapter registry, logger, history store, and the
// orchestrator Runner itself.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/bewest/sdqctl-sub002/internal/adapter"
	"github.com/bewest/sdqctl-sub002/internal/adapter/claudecli"
	"github.com/bewest/sdqctl-sub002/internal/config"
	"github.com/bewest/sdqctl-sub002/internal/executor"
	"github.com/bewest/sdqctl-sub002/internal/git"
	"github.com/bewest/sdqctl-sub002/internal/log"
	"github.com/bewest/sdqctl-sub002/internal/orchestrator"
	"github.com/bewest/sdqctl-sub002/internal/session"
	"github.com/bewest/sdqctl-sub002/internal/workflow"
)

// runFlags collects the flag values shared by run, resume, and batch.
// Each command registers the subset it supports onto its own FlagSet.
type runFlags struct {
	adapterName     string
	model           string
	mode            string
	maxCycles       int
	contextLimit    int
	parallel        int
	failFast        bool
	allowShell      bool
	skipPermissions bool
}

// overrides maps the flag values a command actually changed into the
// config override layer. Cobra's Changed check keeps unset flags from
// shadowing config-file and directive values with zero.
func (f *runFlags) overrides(changed func(string) bool) config.Overrides {
	ov := config.Overrides{
		Adapter:             f.adapterName,
		Model:               f.model,
		Mode:                f.mode,
		MaxCycles:           f.maxCycles,
		ContextLimitPercent: f.contextLimit,
		MaxParallel:         f.parallel,
	}
	if changed("fail-fast") {
		v := f.failFast
		ov.FailFast = &v
	}
	if changed("allow-shell") {
		v := f.allowShell
		ov.AllowShell = &v
	}
	return ov
}

// loadConfig reads the project config. A missing file means the project
// was never initialized and is fine; only a malformed file is an error.
func loadConfig(projectRoot string) (*config.Config, error) {
	cfg, err := config.ReadConfig(projectRoot)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return cfg, nil
}

// newRegistry builds the adapter registry with every backend this build
// knows. Unknown names resolve to the mock adapter with a warning.
func newRegistry(sink executor.Sink, skipPermissions bool) *adapter.Registry {
	reg := adapter.NewRegistry()
	claudeFactory := func() adapter.Adapter {
		return claudecli.New(claudecli.Options{SkipPermissions: skipPermissions})
	}
	reg.Register("claude", claudeFactory)
	reg.Register("claude-cli", claudeFactory)
	if sink != nil {
		reg.Warn = func(msg string) { sink.Warnf("%s", msg) }
	}
	return reg
}

// buildRunner wires a Runner for the project. The logger and history
// store are best-effort: failing to open either warns and disables that
// concern rather than blocking the run.
func buildRunner(projectRoot string, settings config.Settings, sink executor.Sink) (*orchestrator.Runner, func()) {
	logger, err := log.NewLogger(projectRoot)
	if err != nil {
		sink.Warnf("event log disabled: %v", err)
		logger = nil
	}
	if logger != nil && verbose {
		logger.Echo = os.Stderr
	}

	store, err := session.NewStore(config.HistoryPath(projectRoot))
	if err != nil {
		sink.Warnf("run history disabled: %v", err)
		store = nil
	}

	reg := newRegistry(sink, skipPermissionsFlag)
	branch, commit := git.Describe(projectRoot)

	r := &orchestrator.Runner{
		Adapter:     reg.Resolve(settings.Adapter),
		Settings:    settings,
		Logger:      logger,
		Store:       store,
		Progress:    sink,
		ProjectRoot: projectRoot,
		Branch:      branch,
		Commit:      commit,
	}
	cleanup := func() {
		if store != nil {
			if err := store.Close(); err != nil {
				sink.Warnf("closing history store: %v", err)
			}
		}
	}
	return r, cleanup
}

// reportVars fills the template variables a report render needs.
func reportVars(doc *workflow.Document, out *orchestrator.Outcome, settings config.Settings, projectRoot string) workflow.Vars {
	cwd := doc.WorkingDir
	if cwd == "" {
		cwd = projectRoot
	}
	return workflow.Vars{
		Workflow:     doc.Source,
		WorkflowName: doc.Name(),
		Cycle:        out.Cycles,
		Cycles:       settings.MaxCycles,
		Cwd:          cwd,
		Target:       out.Target,
	}
}

// projectDir returns the directory sdqctl treats as the project root.
func projectDir() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	return dir, nil
}
