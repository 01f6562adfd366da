package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conclave/internal/agent"
	"github.com/ShayCichocki/conclave/internal/orchestrator"
	"github.com/ShayCichocki/conclave/internal/signals"
	"github.com/ShayCichocki/conclave/internal/state"
	"github.com/ShayCichocki/conclave/internal/tui"
	"github.com/ShayCichocki/conclave/pkg/models"
)

var (
	runTask          string
	runMode          string
	runMaxConcurrent int
	runStepTimeout   time.Duration
	runInputs        []string
	runNoSave        bool
	runQuiet         bool
)

var runCmd = &cobra.Command{
	Use:   "run [strategy.yaml]",
	Short: "Run a strategy",
	Long: `Run a strategy file, or plan one for --task and run it.

The run can be paused or stopped from another terminal with
"conclave signal pause|resume|stop". Ctrl-C cancels it.

Examples:
  conclave run strategy.yaml --task "Compare Go web frameworks"
  conclave run strategy.yaml --mode sequential --input audience=engineers
  conclave run --task "Write a release announcement"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStrategy,
}

func init() {
	runCmd.Flags().StringVarP(&runTask, "task", "t", "", "Task text (defaults to the strategy goal)")
	runCmd.Flags().StringVarP(&runMode, "mode", "m", "", "Execution mode: sequential or parallel")
	runCmd.Flags().IntVar(&runMaxConcurrent, "max-concurrent", 0, "Maximum steps in flight (parallel mode)")
	runCmd.Flags().DurationVar(&runStepTimeout, "step-timeout", 0, "Timeout for each step attempt")
	runCmd.Flags().StringArrayVarP(&runInputs, "input", "i", nil, "Extra template input as key=value (repeatable)")
	runCmd.Flags().BoolVar(&runNoSave, "no-save", false, "Do not record the run in the state database")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Hide progress events")
}

func runStrategy(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	req := runRequest{Task: runTask, Mode: a.cfg.Mode(), Quiet: runQuiet}
	if runMode != "" {
		req.Mode = models.Mode(runMode)
		if !req.Mode.Valid() {
			return fmt.Errorf("unknown mode %q (want sequential or parallel)", runMode)
		}
	}

	if len(args) == 1 {
		req.Strategy, err = models.LoadStrategy(args[0])
		if err != nil {
			return err
		}
		if req.Task == "" {
			req.Task = req.Strategy.Goal
		}
	} else if req.Task == "" {
		return errors.New("a strategy file or --task is required")
	}

	inputs, err := parseInputs(runInputs)
	if err != nil {
		return err
	}

	reg, err := a.registry()
	if err != nil {
		return err
	}

	opts := []orchestrator.Option{
		orchestrator.WithConfig(a.cfg.OrchestratorConfig()),
		orchestrator.WithInputs(inputs),
	}
	if cmd.Flags().Changed("max-concurrent") {
		opts = append(opts, orchestrator.WithMaxConcurrentTasks(runMaxConcurrent))
	}
	if cmd.Flags().Changed("step-timeout") {
		opts = append(opts, orchestrator.WithStepTimeout(runStepTimeout))
	}
	if a.cfg.Planner.Agent != "" || req.Strategy == nil {
		planner, err := a.plannerAgent(reg)
		if err != nil {
			return err
		}
		opts = append(opts, orchestrator.WithPlanner(orchestrator.NewAgentPlanner(planner, reg, a.retry)))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := signals.New(a.workDir, signals.WithLogger(a.logger))
	if err != nil {
		a.logger.Warn("signal files unavailable", "error", err)
	} else {
		defer watcher.Close()
		watcher.Clear()
		var cancel context.CancelFunc
		ctx, cancel = watcher.Context(ctx)
		defer cancel()
		opts = append(opts, orchestrator.WithDispatchGate(watcher.WaitWhilePaused))
	}

	var db *state.DB
	if !runNoSave {
		db, err = a.state()
		if err != nil {
			a.logger.Warn("state database unavailable, run will not be recorded", "error", err)
			db = nil
		}
	}

	req.Options = opts
	res, runErr := executeRun(ctx, out, reg, db, a.logger, req)
	if res != nil {
		a.printUsage(out)
	}
	if runErr != nil && errors.Is(context.Cause(ctx), signals.ErrStopped) {
		printStatus(out, "■", "Run stopped by signal file", color.FgYellow)
	}
	return runErr
}

// runRequest describes one orchestration run started from the CLI.
type runRequest struct {
	Task string
	// Strategy is nil when the planner drafts one from Task.
	Strategy *models.StrategyMap
	Mode     models.Mode
	Options  []orchestrator.Option
	Quiet    bool
}

// executeRun runs req against reg, streaming progress to out and, when db
// is non-nil, recording the run as it starts and when it finishes.
func executeRun(ctx context.Context, out io.Writer, reg *agent.Registry, db *state.DB, logger *slog.Logger, req runRequest) (*models.OrchestrationResult, error) {
	events := orchestrator.NewEventEmitter(256, logger)
	opts := append([]orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithEvents(events),
	}, req.Options...)

	orch, err := orchestrator.New(req.Mode, orchestrator.RequiredConfig{Registry: reg}, opts...)
	if err != nil {
		return nil, err
	}

	// rec is written by the event loop and read only after done closes.
	var rec *state.Run
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events.Events() {
			if ev.Type == orchestrator.EventRunStarted && db != nil {
				rec = state.NewRun(ev.RunID, req.Task, req.Mode, ev.Timestamp)
				if err := db.SaveRun(rec); err != nil {
					logger.Warn("failed to record run start", "run_id", ev.RunID, "error", err)
				}
			}
			if req.Quiet {
				continue
			}
			if line := tui.EventLine(ev); line != "" {
				fmt.Fprintln(out, line)
			}
		}
	}()

	var res *models.OrchestrationResult
	if req.Strategy != nil {
		res, err = orch.Run(ctx, req.Task, req.Strategy)
	} else {
		res, err = orch.RunTask(ctx, req.Task)
	}
	events.Close()
	<-done

	if res == nil {
		return nil, err
	}

	if db != nil {
		if rec == nil {
			rec = state.NewRun(res.RunID, req.Task, req.Mode, time.Now().Add(-res.Duration))
		}
		rec.Finish(res)
		if saveErr := db.SaveRun(rec); saveErr != nil {
			logger.Warn("failed to record run result", "run_id", res.RunID, "error", saveErr)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, tui.RenderResult(res))
	if res.FinalOutput != "" {
		fmt.Fprintln(out, tui.RenderOutput(res.FinalOutput, 100))
	}
	return res, err
}
