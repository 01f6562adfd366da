package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conclave/internal/state"
	"github.com/ShayCichocki/conclave/internal/tui"
	"github.com/ShayCichocki/conclave/pkg/models"
)

var (
	statusLimit int
	statusClean bool
	statusPurge time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show recent runs",
	Long: `Without arguments, lists recent runs and any run left "running" by a
process that has exited. With a run ID, shows that run's step results.

--clean marks interrupted runs as cancelled; --purge deletes runs older
than the given age.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 10, "Number of runs to list")
	statusCmd.Flags().BoolVar(&statusClean, "clean", false, "Mark interrupted runs as cancelled")
	statusCmd.Flags().DurationVar(&statusPurge, "purge", 0, "Delete runs older than this age (e.g. 720h)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	db, err := a.state()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		return showRun(out, db, args[0])
	}

	if statusPurge > 0 {
		n, err := db.PurgeOldRuns(statusPurge)
		if err != nil {
			return err
		}
		printStatus(out, "✓", fmt.Sprintf("Purged %d runs older than %s", n, formatDuration(statusPurge)), color.FgGreen)
	}

	recovery := state.NewRecoveryManager(db, a.logger)
	if statusClean {
		n, err := recovery.Clean()
		if err != nil {
			return err
		}
		printStatus(out, "✓", fmt.Sprintf("Closed %d interrupted runs", n), color.FgGreen)
	} else {
		interrupted, err := recovery.CheckForInterrupted()
		if err != nil {
			return err
		}
		for _, r := range interrupted {
			printStatus(out, "⚠", fmt.Sprintf("Run %s was interrupted (pid %d, started %s ago)",
				r.RunID, r.PID, formatDuration(time.Since(r.StartedAt))), color.FgYellow)
		}
		if len(interrupted) > 0 {
			fmt.Fprintln(out, "Run \"conclave status --clean\" to close them.")
			fmt.Fprintln(out)
		}
	}

	return listRuns(out, db, statusLimit)
}

// listRuns prints a table of the most recent runs.
func listRuns(out io.Writer, db state.RunStore, limit int) error {
	runs, err := db.ListRuns(nil, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		took := "-"
		if r.FinishedAt != nil {
			took = formatDuration(r.Duration())
		}
		rows = append(rows, []string{
			r.ID,
			string(r.Status),
			string(r.Mode),
			strconv.Itoa(r.StepsExecuted),
			strconv.Itoa(r.Redesigns),
			formatDuration(time.Since(r.StartedAt)) + " ago",
			took,
			truncateText(r.Task, 48),
		})
	}
	fmt.Fprintln(out, tui.Table([]string{"RUN", "STATUS", "MODE", "STEPS", "REDESIGNS", "STARTED", "TOOK", "TASK"}, rows))
	return nil
}

// showRun prints a stored run in the same layout as a live result.
func showRun(out io.Writer, db state.RunStore, id string) error {
	r, err := db.GetRun(id)
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("no run with ID %s", id)
	}

	fmt.Fprintf(out, "Task: %s\n", r.Task)
	fmt.Fprintf(out, "Mode: %s\n\n", r.Mode)
	res := runResult(r)
	fmt.Fprintln(out, tui.RenderResult(res))
	if res.FinalOutput != "" {
		fmt.Fprintln(out, tui.RenderOutput(res.FinalOutput, 100))
	}
	return nil
}

// runResult rebuilds the result view of a stored run.
func runResult(r *state.Run) *models.OrchestrationResult {
	res := &models.OrchestrationResult{
		RunID:              r.ID,
		Status:             r.Status,
		StepsExecuted:      r.StepsExecuted,
		StepsSkipped:       r.StepsSkipped,
		RedesignsTriggered: r.Redesigns,
		FinalOutput:        r.FinalOutput,
		Context:            r.Context,
		Waves:              r.Waves,
		Steps:              r.Steps,
		Duration:           r.Duration(),
	}
	for _, s := range r.Steps {
		switch s.Status {
		case models.StepStatusFailed:
			res.Failed = append(res.Failed, s.StepID)
		case models.StepStatusSkipped:
			res.Skipped = append(res.Skipped, s.StepID)
		}
	}
	return res
}

func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
