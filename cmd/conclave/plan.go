package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conclave/internal/graph"
	"github.com/ShayCichocki/conclave/internal/orchestrator"
	"github.com/ShayCichocki/conclave/internal/tui"
)

var planOutput string

var planCmd = &cobra.Command{
	Use:   "plan <task>",
	Short: "Draft a strategy for a task without running it",
	Long: `Ask the planner agent for a strategy and print it as YAML.

The planner is planner.agent from the config, or the first configured agent.
Write the result to a file with -o and run it later with "conclave run".`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planOutput, "output", "o", "", "Write the strategy to this file instead of stdout")
}

func runPlan(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	task := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	reg, err := a.registry()
	if err != nil {
		return err
	}
	plannerAgent, err := a.plannerAgent(reg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	planner := orchestrator.NewAgentPlanner(plannerAgent, reg, a.retry)
	strategy, err := planner.Plan(ctx, task)
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}
	if strategy.Goal == "" {
		strategy.Goal = task
	}

	g, err := graph.Build(strategy)
	if err != nil {
		return fmt.Errorf("planned strategy is invalid: %w", err)
	}

	data, err := strategy.Marshal()
	if err != nil {
		return err
	}

	if planOutput == "" {
		fmt.Fprint(out, string(data))
		return nil
	}

	if err := os.WriteFile(planOutput, data, 0644); err != nil {
		return fmt.Errorf("write strategy: %w", err)
	}
	fmt.Fprintln(out, tui.RenderStrategy(strategy, g))
	printStatus(out, "✓", fmt.Sprintf("Strategy written to %s", planOutput), color.FgGreen)
	a.printUsage(out)
	return nil
}
