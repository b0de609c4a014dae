// batch.go implements "sdqctl batch": fan one workflow out over many
// targets with bounded parallelism and a live dashboard on a TTY.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bewest/sdqctl-sub002/internal/config"
	"github.com/bewest/sdqctl-sub002/internal/orchestrator"
	"github.com/bewest/sdqctl-sub002/internal/report"
	"github.com/bewest/sdqctl-sub002/internal/ui"
	"github.com/bewest/sdqctl-sub002/internal/workflow"
)

var batchCmd = &cobra.Command{
	Use:   "batch <workflow.sdq>",
	Short: "Run a workflow across many targets in parallel",
	Long: `Run the same workflow once per target, at most --parallel units in
flight. Each unit gets its own session and checkpoint path; one unit
failing does not stop the others unless --fail-fast is set. The target
value reaches prompts through the {TARGET} template variable.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

var (
	batchF          runFlags
	batchTargets    []string
	targetsFileFlag string
	noDashboardFlag bool
)

func init() {
	batchCmd.Flags().StringVar(&batchF.adapterName, "adapter", "", "Agent backend (claude, mock)")
	batchCmd.Flags().StringVar(&batchF.model, "model", "", "Model name passed to the backend")
	batchCmd.Flags().StringVar(&batchF.mode, "mode", "", "Session mode: accumulate, compact, or fresh")
	batchCmd.Flags().IntVar(&batchF.maxCycles, "max-cycles", 0, "Number of cycles per unit")
	batchCmd.Flags().IntVar(&batchF.parallel, "parallel", 0, "Maximum units in flight at once")
	batchCmd.Flags().BoolVar(&batchF.failFast, "fail-fast", false, "Cancel remaining units after the first failure")
	batchCmd.Flags().StringArrayVar(&batchTargets, "target", nil, "Target value; repeat for multiple units")
	batchCmd.Flags().StringVar(&targetsFileFlag, "targets-file", "", "File with one target per line")
	batchCmd.Flags().BoolVar(&noDashboardFlag, "no-dashboard", false, "Plain line output even on a TTY")
}

func runBatch(cmd *cobra.Command, args []string) error {
	doc, err := workflow.ParseFile(args[0])
	if err != nil {
		return err
	}
	targets, err := collectTargets()
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("no targets: use --target or --targets-file")
	}

	projectRoot, err := projectDir()
	if err != nil {
		return err
	}
	fileCfg, err := loadConfig(projectRoot)
	if err != nil {
		return err
	}
	settings := config.Resolve(fileCfg, doc, batchF.overrides(cmd.Flags().Changed))

	printer := ui.NewPrinter()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var batch *orchestrator.BatchOutcome
	var runErr error
	if ui.IsTTY() && !noDashboardFlag && !verbose {
		batch, runErr = runWithDashboard(ctx, stop, doc, targets, settings, projectRoot, printer)
	} else {
		runner, cleanup := buildRunner(projectRoot, settings, printer)
		defer cleanup()
		batch, runErr = runner.RunBatch(ctx, doc, targets)
	}
	if batch == nil {
		return runErr
	}

	return finishBatch(doc, batch, runErr, settings, projectRoot, printer)
}

// runWithDashboard drives the batch behind the live bubbletea view. The
// batch runs on a worker goroutine; the dashboard owns the terminal
// until the batch finishes or the user aborts it.
func runWithDashboard(ctx context.Context, cancel context.CancelFunc, doc *workflow.Document, targets []string, settings config.Settings, projectRoot string, printer *ui.Printer) (*orchestrator.BatchOutcome, error) {
	dash := ui.NewDashboard(doc.Name(), targets)

	runner, cleanup := buildRunner(projectRoot, settings, dash)
	defer cleanup()
	runner.OnUnit = func(target string, status orchestrator.Status, reason string) {
		dash.UnitUpdate(target, string(status), reason)
	}

	type result struct {
		batch *orchestrator.BatchOutcome
		err   error
	}
	done := make(chan result, 1)
	go func() {
		batch, err := runner.RunBatch(ctx, doc, targets)
		done <- result{batch, err}
		dash.Stop()
	}()

	aborted, derr := dash.Run()
	if derr != nil {
		printer.Warnf("dashboard: %v", derr)
	}
	if aborted {
		cancel()
	}
	res := <-done
	return res.batch, res.err
}

// finishBatch prints the per-unit summary and writes per-unit reports
// when the workflow names an OUTPUT-FILE.
func finishBatch(doc *workflow.Document, batch *orchestrator.BatchOutcome, runErr error, settings config.Settings, projectRoot string, printer *ui.Printer) error {
	for _, unit := range batch.Units {
		if unit.Outcome == nil {
			printer.Errorf("  %-20s no outcome", unit.Target)
			continue
		}
		line := fmt.Sprintf("  %-20s %-10s %s", unit.Target, unit.Outcome.Status, unit.Outcome.Reason)
		switch unit.Outcome.Status {
		case orchestrator.StatusCompleted:
			printer.Successf("%s", line)
		case orchestrator.StatusFailed:
			printer.Errorf("%s", line)
			if unit.Outcome.Checkpoint != "" {
				printer.Progressf("  %-20s resume with: sdqctl resume %s", "", unit.Outcome.Checkpoint)
			}
		default:
			printer.Progressf("%s", line)
		}

		if doc.OutputFile != "" {
			rn := &report.Renderer{
				Doc:  doc,
				Vars: reportVars(doc, unit.Outcome, settings, projectRoot),
				Warn: printer.Warnf,
			}
			if _, err := rn.Write(report.FromOutcome(unit.Outcome), os.Stdout); err != nil {
				printer.Warnf("unit %s report: %v", unit.Target, err)
			}
		}
	}

	printer.Progressf("%d completed, %d paused, %d failed of %d",
		batch.Completed, batch.Paused, batch.Failed, batch.Total)

	if runErr != nil {
		return runErr
	}
	if batch.Failed > 0 {
		return fmt.Errorf("%d of %d units failed", batch.Failed, batch.Total)
	}
	return nil
}

// collectTargets merges --target values with the --targets-file lines.
func collectTargets() ([]string, error) {
	targets := append([]string(nil), batchTargets...)
	if targetsFileFlag != "" {
		data, err := os.ReadFile(targetsFileFlag)
		if err != nil {
			return nil, fmt.Errorf("reading targets file: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			targets = append(targets, line)
		}
	}
	return targets, nil
}
