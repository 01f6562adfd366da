package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conclave/internal/api"
	"github.com/ShayCichocki/conclave/internal/config"
	"github.com/ShayCichocki/conclave/internal/tui"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List configured agents",
	Long: `List every configured agent with its backend, model, expertise and
whether it can be built and reached with the current configuration.

Agents come from the config file's agents list and from YAML files in
.conclave/agents/.`,
	Args: cobra.NoArgs,
	RunE: runAgents,
}

func runAgents(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	return listAgents(ctx, cmd.OutOrStdout(), a.cfg, a.factory)
}

// listAgents builds each agent on its own so one missing key does not
// hide the rest.
func listAgents(ctx context.Context, out io.Writer, cfg *config.Config, factory *api.Factory) error {
	if len(cfg.Agents) == 0 {
		fmt.Fprintln(out, "No agents configured.")
		return nil
	}

	rows := make([][]string, 0, len(cfg.Agents))
	for _, ac := range cfg.Agents {
		status := "ready"
		if ag, err := factory.Build(ac); err != nil {
			status = "error: " + err.Error()
		} else if !ag.IsAvailable(ctx) {
			status = "unavailable"
		}

		rows = append(rows, []string{
			ac.Name,
			ac.Backend,
			agentModel(cfg, ac),
			strings.Join(ac.Expertise, ","),
			status,
		})
	}
	fmt.Fprintln(out, tui.Table([]string{"NAME", "BACKEND", "MODEL", "EXPERTISE", "STATUS"}, rows))

	if cfg.Planner.Agent != "" {
		fmt.Fprintf(out, "\nPlanner: %s\n", cfg.Planner.Agent)
	}
	return nil
}

// agentModel is the model an agent will call, or its command line.
func agentModel(cfg *config.Config, ac config.AgentConfig) string {
	switch ac.Backend {
	case config.BackendCommand:
		return strings.TrimSpace(ac.Command + " " + strings.Join(ac.Args, " "))
	case config.BackendOpenAI:
		if ac.Model != "" {
			return ac.Model
		}
		if cfg.OpenAI.Model != "" {
			return cfg.OpenAI.Model
		}
		return api.DefaultOpenAIModel
	default:
		if ac.Model != "" {
			return ac.Model
		}
		if cfg.Anthropic.Model != "" {
			return cfg.Anthropic.Model
		}
		return config.DefaultAnthropicModel
	}
}
