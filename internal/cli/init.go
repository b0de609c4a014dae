// init.go implements "sdqctl init": set up the .sdqctl/ state directory
// and drop a starter workflow to edit.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bewest/sdqctl-sub002/internal/config"
	"github.com/bewest/sdqctl-sub002/prompts"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize sdqctl in the current project",
	Long: `Create the .sdqctl/ directory with a default config.yaml and write a
starter workflow.sdq next to it. Existing files are left alone unless
--force is given.`,
	RunE: runInitCmd,
}

var forceInitFlag bool

func init() {
	initCmd.Flags().BoolVar(&forceInitFlag, "force", false, "Overwrite an existing config.yaml")
}

func runInitCmd(cmd *cobra.Command, args []string) error {
	dir, err := projectDir()
	if err != nil {
		return err
	}

	cfgPath := filepath.Join(config.StateDir(dir), "config.yaml")
	if _, err := os.Stat(cfgPath); err == nil && !forceInitFlag {
		fmt.Printf("%s already exists; use --force to overwrite.\n", cfgPath)
	} else {
		if err := config.WriteConfig(dir, config.DefaultConfig()); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", cfgPath)
	}

	if err := os.MkdirAll(config.CheckpointsDir(dir), 0755); err != nil {
		return fmt.Errorf("creating checkpoints directory: %w", err)
	}

	starter := filepath.Join(dir, "workflow.sdq")
	if _, err := os.Stat(starter); err == nil {
		fmt.Printf("%s already exists; leaving it alone.\n", starter)
	} else {
		if err := os.WriteFile(starter, []byte(prompts.StarterWorkflow), 0644); err != nil {
			return fmt.Errorf("writing starter workflow: %w", err)
		}
		fmt.Printf("Wrote %s\n", starter)
	}

	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Edit workflow.sdq for your project")
	fmt.Println("  2. Preview it:  sdqctl inspect workflow.sdq")
	fmt.Println("  3. Run it:      sdqctl run workflow.sdq")
	return nil
}
