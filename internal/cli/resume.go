// resume.go implements "sdqctl resume": rebuild a session from a pause
// or error checkpoint and continue from the saved cursors.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/bewest/sdqctl-sub002/internal/config"
	"github.com/bewest/sdqctl-sub002/internal/session"
	"github.com/bewest/sdqctl-sub002/internal/ui"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <checkpoint.json>",
	Short: "Resume a checkpointed run",
	Long: `Load a checkpoint written by a PAUSE step, a CHECKPOINT step, or a
failed run, rebuild the session at its saved cycle and step, and continue
executing the referenced workflow.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

var resumeF runFlags

func init() {
	resumeCmd.Flags().StringVar(&resumeF.adapterName, "adapter", "", "Agent backend (claude, mock)")
	resumeCmd.Flags().StringVar(&resumeF.model, "model", "", "Model name passed to the backend")
	resumeCmd.Flags().IntVar(&resumeF.maxCycles, "max-cycles", 0, "Number of cycles to run the workflow")
}

func runResume(cmd *cobra.Command, args []string) error {
	cp, err := session.LoadCheckpoint(args[0])
	if err != nil {
		return err
	}
	if cp == nil {
		return fmt.Errorf("checkpoint %s does not exist", args[0])
	}
	doc, err := cp.ResumeDocument()
	if err != nil {
		return err
	}

	projectRoot, err := projectDir()
	if err != nil {
		return err
	}
	fileCfg, err := loadConfig(projectRoot)
	if err != nil {
		return err
	}

	ov := resumeF.overrides(cmd.Flags().Changed)
	// The checkpoint remembers which backend wrote it; an explicit flag
	// still wins so a mock dry-run of a claude checkpoint stays possible.
	if ov.Adapter == "" {
		ov.Adapter = cp.AdapterName
	}
	settings := config.Resolve(fileCfg, doc, ov)

	printer := ui.NewPrinter()
	runner, cleanup := buildRunner(projectRoot, settings, printer)
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out, runErr := runner.Resume(ctx, cp)
	return finishRun(doc, out, runErr, settings, projectRoot, printer)
}
