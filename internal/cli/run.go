// run.go implements "sdqctl run": parse one workflow file and drive it
// through the orchestrator as a single unit.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/bewest/sdqctl-sub002/internal/config"
	"github.com/bewest/sdqctl-sub002/internal/orchestrator"
	"github.com/bewest/sdqctl-sub002/internal/report"
	"github.com/bewest/sdqctl-sub002/internal/ui"
	"github.com/bewest/sdqctl-sub002/internal/workflow"
)

var runCmd = &cobra.Command{
	Use:   "run <workflow.sdq>",
	Short: "Run a workflow file",
	Long: `Parse a workflow file and execute its steps against the configured
agent backend. Settings resolve in three layers: config file defaults,
then workflow directives, then command-line flags.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runF       runFlags
	targetFlag string
	dryRunFlag bool
	outputFlag string
	formatFlag string
)

func init() {
	runCmd.Flags().StringVar(&runF.adapterName, "adapter", "", "Agent backend (claude, mock)")
	runCmd.Flags().StringVar(&runF.model, "model", "", "Model name passed to the backend")
	runCmd.Flags().StringVar(&runF.mode, "mode", "", "Session mode: accumulate, compact, or fresh")
	runCmd.Flags().IntVar(&runF.maxCycles, "max-cycles", 0, "Number of cycles to run the workflow")
	runCmd.Flags().IntVar(&runF.maxCycles, "cycles", 0, "Alias for --max-cycles")
	runCmd.Flags().IntVar(&runF.contextLimit, "context-limit", 0, "Compaction threshold as percent of the context window")
	runCmd.Flags().BoolVar(&runF.allowShell, "allow-shell", false, "Run RUN commands through the shell")
	runCmd.Flags().StringVar(&targetFlag, "target", "", "Value for the {TARGET} template variable")
	runCmd.Flags().StringVar(&outputFlag, "output", "", "Write the run report to this file")
	runCmd.Flags().StringVar(&formatFlag, "format", "", "Report format: text, markdown, or json")
	runCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Parse and validate the workflow, run nothing")
}

func runRun(cmd *cobra.Command, args []string) error {
	doc, err := workflow.ParseFile(args[0])
	if err != nil {
		return err
	}
	if dryRunFlag {
		printDocument(os.Stdout, doc)
		return nil
	}
	if outputFlag != "" {
		doc.OutputFile = outputFlag
	}
	if formatFlag != "" {
		doc.OutputFormat = workflow.OutputFormat(formatFlag)
	}

	projectRoot, err := projectDir()
	if err != nil {
		return err
	}
	fileCfg, err := loadConfig(projectRoot)
	if err != nil {
		return err
	}
	settings := config.Resolve(fileCfg, doc, runF.overrides(cmd.Flags().Changed))

	printer := ui.NewPrinter()
	runner, cleanup := buildRunner(projectRoot, settings, printer)
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// A target turns the run into a one-unit batch so the session sees
	// {TARGET} and checkpoints under the target-derived path.
	var out *orchestrator.Outcome
	var runErr error
	if targetFlag != "" {
		batch, err := runner.RunBatch(ctx, doc, []string{targetFlag})
		runErr = err
		if batch != nil && len(batch.Units) > 0 {
			out = batch.Units[0].Outcome
			if batch.Units[0].Err != nil {
				runErr = batch.Units[0].Err
			}
		}
	} else {
		out, runErr = runner.RunWorkflow(ctx, doc)
	}
	return finishRun(doc, out, runErr, settings, projectRoot, printer)
}

// finishRun renders the outcome report and maps the run status to the
// process exit. Paused runs exit cleanly; the checkpoint path in the
// report tells the user how to continue.
func finishRun(doc *workflow.Document, out *orchestrator.Outcome, runErr error, settings config.Settings, projectRoot string, printer *ui.Printer) error {
	if out == nil {
		return runErr
	}

	rn := &report.Renderer{
		Doc:  doc,
		Vars: reportVars(doc, out, settings, projectRoot),
		Warn: printer.Warnf,
	}
	rep := report.FromOutcome(out)
	path, err := rn.Write(rep, os.Stdout)
	if err != nil {
		printer.Warnf("writing report: %v", err)
	} else if path != "" {
		printer.Progressf("report written to %s", path)
	}

	switch out.Status {
	case orchestrator.StatusFailed:
		if runErr != nil {
			return runErr
		}
		return fmt.Errorf("run failed: %s", out.Reason)
	case orchestrator.StatusPaused:
		printer.Successf("Paused. Resume with: sdqctl resume %s", out.Checkpoint)
	default:
		printer.Successf("Completed: %s", out.Reason)
	}
	return nil
}
