// Package cli defines the Cobra command tree for sdqctl.
// This file contains the root command and the shared persistent flags.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	verbose             bool
	skipPermissionsFlag bool
	version             = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "sdqctl",
	Short: "Workflow-driven agent session orchestrator",
	Long: `sdqctl runs declarative workflow files against an AI agent backend.
A workflow is a sequence of PROMPT, RUN, CHECKPOINT, COMPACT and PAUSE
steps; sdqctl drives them through bounded multi-cycle sessions with
checkpoint/resume and parallel fan-out across targets.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Echo log events to stderr while running")
	rootCmd.PersistentFlags().BoolVar(&skipPermissionsFlag, "skip-permissions", false, "Let the backend run tools without permission prompts")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(statusCmd)
}
