// status.go implements "sdqctl status": recent runs from the history
// store, plus any checkpoints waiting to be resumed.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/bewest/sdqctl-sub002/internal/config"
	"github.com/bewest/sdqctl-sub002/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent runs and pending checkpoints",
	RunE:  runStatus,
}

var statusLimit int

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "Number of runs to list")
}

func runStatus(cmd *cobra.Command, args []string) error {
	projectRoot, err := projectDir()
	if err != nil {
		return err
	}

	dbPath := config.HistoryPath(projectRoot)
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Println("No run history. Run a workflow first: sdqctl run <workflow.sdq>")
		return nil
	}

	store, err := session.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening run history: %w", err)
	}
	defer func() { _ = store.Close() }()

	runs, err := store.RecentRuns(statusLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
	} else {
		fmt.Printf("%-10s %-24s %-14s %-10s %6s %6s  %s\n",
			"RUN", "WORKFLOW", "TARGET", "STATUS", "CYCLES", "TURNS", "UPDATED")
		for _, r := range runs {
			fmt.Printf("%-10s %-24s %-14s %-10s %6d %6d  %s\n",
				shortID(r.ID), truncateCell(filepath.Base(r.Workflow), 24), truncateCell(r.Target, 14),
				r.Status, r.Cycles, r.Turns, r.UpdatedAt.Local().Format(time.DateTime))
		}
	}

	printCheckpoints(config.CheckpointsDir(projectRoot))
	return nil
}

// printCheckpoints lists resumable snapshots on disk. Unreadable files
// are mentioned rather than skipped; a corrupt checkpoint is exactly
// what the user wants to know about.
func printCheckpoints(dir string) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil || len(paths) == 0 {
		return
	}
	fmt.Println("\nCheckpoints:")
	for _, path := range paths {
		cp, err := session.LoadCheckpoint(path)
		if err != nil {
			fmt.Printf("  %s (unreadable: %v)\n", path, err)
			continue
		}
		if cp == nil {
			// Removed between the glob and the read.
			continue
		}
		fmt.Printf("  %-7s cycle %d step %d  %s\n", cp.Type, cp.CycleNumber, cp.StepIndex, path)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncateCell(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
