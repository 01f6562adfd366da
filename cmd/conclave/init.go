package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conclave/internal/config"
)

var (
	initForce    bool
	initExamples bool
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a conclave project",
	Long: `Initialize a directory for use with conclave.

This command:
  - Creates the .conclave directory (agents, signals)
  - Writes a .conclave.yaml project config template
  - Adds conclave entries to .gitignore
  - Optionally writes an example strategy and dialogue

The directory argument is optional and defaults to the current directory.

Examples:
  conclave init              # Initialize current directory
  conclave init ./myproject  # Initialize specific directory
  conclave init --examples   # Also write strategy.yaml and dialogue.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Reinitialize even if already set up")
	initCmd.Flags().BoolVar(&initExamples, "examples", false, "Write an example strategy and dialogue")
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}
	return initProject(cmd.OutOrStdout(), targetDir, initForce, initExamples)
}

// initProject lays out a conclave project in targetDir.
func initProject(out io.Writer, targetDir string, force, examples bool) error {
	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	fmt.Fprintf(out, "Initializing conclave in %s...\n\n", absPath)

	conclaveDir := filepath.Join(absPath, ".conclave")
	if _, err := os.Stat(conclaveDir); err == nil && !force {
		fmt.Fprintln(out, "Directory already initialized. Use --force to reinitialize.")
		return nil
	}

	for _, sub := range []string{"agents", "signals"} {
		if err := os.MkdirAll(filepath.Join(conclaveDir, sub), 0755); err != nil {
			return fmt.Errorf("creating .conclave/%s: %w", sub, err)
		}
	}
	printStatus(out, "✓", "Created .conclave directory structure", color.FgGreen)

	if err := writeIfMissing(filepath.Join(absPath, ".conclave.yaml"), projectConfigTemplate); err != nil {
		return fmt.Errorf("creating project config: %w", err)
	}
	printStatus(out, "✓", "Created .conclave.yaml template", color.FgGreen)

	if err := writeIfMissing(filepath.Join(conclaveDir, "agents", "reviewer.yaml"), exampleAgentTemplate); err != nil {
		return fmt.Errorf("creating example agent: %w", err)
	}

	if err := updateGitignore(absPath); err != nil {
		return fmt.Errorf("updating .gitignore: %w", err)
	}
	printStatus(out, "✓", "Updated .gitignore with conclave entries", color.FgGreen)

	if examples {
		if err := writeIfMissing(filepath.Join(absPath, "strategy.yaml"), exampleStrategyTemplate); err != nil {
			return fmt.Errorf("creating example strategy: %w", err)
		}
		if err := writeIfMissing(filepath.Join(absPath, "dialogue.yaml"), exampleDialogueTemplate); err != nil {
			return fmt.Errorf("creating example dialogue: %w", err)
		}
		printStatus(out, "✓", "Created strategy.yaml and dialogue.yaml examples", color.FgGreen)
	}

	missingKey := false
	for _, p := range []config.Provider{config.ProviderAnthropic, config.ProviderOpenAI} {
		if config.GetAPIKeySource(nil, p) == config.KeySourceNone {
			printStatus(out, "⚠", fmt.Sprintf("%s API key not set in the environment (you can set it later)", p), color.FgYellow)
			missingKey = true
		} else {
			printStatus(out, "✓", fmt.Sprintf("%s API key is set", p), color.FgGreen)
		}
	}

	fmt.Fprintf(out, "\n%s conclave initialization complete!\n\n", color.GreenString("✓"))
	fmt.Fprintln(out, "Next steps:")
	if missingKey {
		fmt.Fprintln(out, "  1. Set your API keys:")
		fmt.Fprintln(out, "     export ANTHROPIC_API_KEY=your-key-here")
		fmt.Fprintln(out, "     export OPENAI_API_KEY=your-key-here")
		fmt.Fprintln(out)
	}
	fmt.Fprintln(out, "  2. Run a strategy or plan one:")
	fmt.Fprintln(out, "     conclave run strategy.yaml")
	fmt.Fprintln(out, "     conclave run --task \"your task here\"")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  3. Learn more:")
	fmt.Fprintln(out, "     conclave --help")
	return nil
}

func writeIfMissing(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(content), 0644)
}

// gitignoreEntries are the project files conclave creates that should not
// be committed.
var gitignoreEntries = []string{
	".conclave/state.db*",
	".conclave/signals/",
}

// updateGitignore adds conclave entries to .gitignore if not present
func updateGitignore(repoPath string) error {
	gitignorePath := filepath.Join(repoPath, ".gitignore")

	var existingContent string
	if data, err := os.ReadFile(gitignorePath); err == nil {
		existingContent = string(data)
	}

	var missing []string
	for _, entry := range gitignoreEntries {
		if !strings.Contains(existingContent, entry) {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	var newContent strings.Builder
	newContent.WriteString(existingContent)
	if len(existingContent) > 0 && !strings.HasSuffix(existingContent, "\n") {
		newContent.WriteString("\n")
	}
	if len(existingContent) > 0 {
		newContent.WriteString("\n")
	}
	newContent.WriteString("# conclave\n")
	for _, entry := range missing {
		newContent.WriteString(entry + "\n")
	}

	return os.WriteFile(gitignorePath, []byte(newContent.String()), 0644)
}

const projectConfigTemplate = `# conclave project configuration
# This file overrides defaults from ~/.config/conclave/config.yaml

# orchestrator:
#   mode: parallel
#   max_concurrent_tasks: 4
#   step_timeout: 10m
#   max_step_remediations: 3
#   max_total_redesigns: 10

# agents:
#   - name: claude
#     backend: anthropic
#     expertise: [general, writing]
#   - name: gpt
#     backend: openai
#     model: gpt-4o
#     expertise: [review]

# planner:
#   agent: claude

state:
  project: true
`

const exampleAgentTemplate = `# Agents in this directory are added to the configured agents.
# The file name is the agent name unless "name" is set.
backend: anthropic
expertise: [review, critique]
system: You are a careful reviewer. Point out gaps and errors plainly.
`

const exampleStrategyTemplate = `goal: Write a short technical brief
steps:
  - id: research
    description: Collect the key facts
    intent: |
      List the most important facts someone needs to know about: {{ task }}
  - id: outline
    description: Plan the brief
    intent: |
      Propose a three-section outline for a brief on: {{ task }}
  - id: draft
    description: Write the brief
    intent: |
      Write the brief following this outline:
      {{ outline_output }}

      Use these facts:
      {{ research_output }}
  - id: review
    description: Review the draft
    intent: |
      Review this brief and return an improved version:
      {{ draft_output }}
`

const exampleDialogueTemplate = `goal: Reach a recommendation the whole panel can live with
model:
  type: sequential
turn_timeout: 2m
participants:
  - name: Ada
    role: architect
    background: Designs large distributed systems.
    agent: claude
    joining: full
  - name: Grace
    role: reviewer
    background: Finds the weak points in every proposal.
    expertise: [review, general]
    joining: recent:4
`
