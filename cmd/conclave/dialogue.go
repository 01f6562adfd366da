package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conclave/internal/dialogue"
	"github.com/ShayCichocki/conclave/internal/state"
	"github.com/ShayCichocki/conclave/internal/tui"
)

var (
	dialoguePrompt      string
	dialogueResume      string
	dialogueHistoryFile string
	dialogueSave        bool
	dialogueOut         string
)

var dialogueCmd = &cobra.Command{
	Use:   "dialogue <dialogue.yaml>",
	Short: "Hold a multi-persona conversation",
	Long: `Run one exchange of a dialogue definition: the prompt is posted as a
user message and the participants answer under the definition's model.

A saved dialogue can be continued with --resume <id>, or from an exported
history file with --history.

Examples:
  conclave dialogue panel.yaml --prompt "Should we adopt gRPC?" --save
  conclave dialogue panel.yaml --resume 5f1c... --prompt "What about streaming?"`,
	Args: cobra.ExactArgs(1),
	RunE: runDialogue,
}

func init() {
	dialogueCmd.Flags().StringVarP(&dialoguePrompt, "prompt", "p", "", "User message that opens the exchange (required)")
	dialogueCmd.Flags().StringVar(&dialogueResume, "resume", "", "Continue the saved dialogue with this ID")
	dialogueCmd.Flags().StringVar(&dialogueHistoryFile, "history", "", "Continue from an exported history file")
	dialogueCmd.Flags().BoolVar(&dialogueSave, "save", false, "Store the transcript in the state database")
	dialogueCmd.Flags().StringVarP(&dialogueOut, "output", "o", "", "Export the history as JSON to this file")
	_ = dialogueCmd.MarkFlagRequired("prompt")
	dialogueCmd.MarkFlagsMutuallyExclusive("resume", "history")
}

func runDialogue(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	def, err := dialogue.LoadDefinition(args[0])
	if err != nil {
		return err
	}
	if def.Model.MaxRounds == 0 {
		def.Model.MaxRounds = a.cfg.Dialogue.MaxRounds
	}

	reg, err := a.registry()
	if err != nil {
		return err
	}

	opts := []dialogue.Option{dialogue.WithLogger(a.logger)}
	if def.TurnTimeout == "" && a.cfg.Dialogue.TurnTimeout > 0 {
		opts = append(opts, dialogue.WithTurnTimeout(a.cfg.Dialogue.TurnTimeout))
	}
	if dialogueResume != "" {
		opts = append(opts, dialogue.WithID(dialogueResume))
	}

	d, err := def.Build(reg, a.retry, opts...)
	if err != nil {
		return err
	}

	var db *state.DB
	if dialogueSave || dialogueResume != "" {
		if db, err = a.state(); err != nil {
			return err
		}
	}

	switch {
	case dialogueResume != "":
		rec, err := db.LoadDialogue(dialogueResume)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("no saved dialogue with ID %s", dialogueResume)
		}
		if err := d.Restore(rec.Messages); err != nil {
			return err
		}
	case dialogueHistoryFile != "":
		if err := d.LoadHistoryFile(dialogueHistoryFile); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	personas := make([]dialogue.Persona, 0, len(def.Participants))
	for _, p := range def.Participants {
		personas = append(personas, p.Persona)
	}
	transcript := tui.NewTranscript(100, personas...)

	if prior := d.History(); len(prior) > 0 {
		fmt.Fprintln(out, transcript.Render(prior))
		fmt.Fprintln(out)
	}

	convErr := converse(ctx, out, d, transcript, dialoguePrompt)

	// Partial transcripts are saved too.
	if db != nil && (dialogueSave || dialogueResume != "") {
		rec := &state.DialogueRecord{
			ID:       d.ID(),
			Model:    dialogue.ModelName(d.Model()),
			Goal:     def.Goal,
			Messages: d.History(),
		}
		if err := db.SaveDialogue(rec); err != nil {
			return errors.Join(convErr, fmt.Errorf("save dialogue: %w", err))
		}
		printStatus(out, "✓", fmt.Sprintf("Saved dialogue %s", d.ID()), color.FgGreen)
	}

	exportPath := dialogueOut
	if exportPath == "" && dialogueSave && a.cfg.Dialogue.HistoryDir != "" {
		if err := os.MkdirAll(a.cfg.Dialogue.HistoryDir, 0755); err != nil {
			return errors.Join(convErr, err)
		}
		exportPath = filepath.Join(a.cfg.Dialogue.HistoryDir, d.ID()+".json")
	}
	if exportPath != "" {
		if err := d.SaveHistoryFile(exportPath); err != nil {
			return errors.Join(convErr, err)
		}
		printStatus(out, "✓", fmt.Sprintf("History written to %s", exportPath), color.FgGreen)
	}

	a.printUsage(out)
	return convErr
}

// converse starts a session for prompt and prints every turn as it arrives.
func converse(ctx context.Context, out io.Writer, d *dialogue.Dialogue, transcript *tui.Transcript, prompt string) error {
	sess, err := d.Start(ctx, prompt)
	if err != nil {
		return err
	}
	defer sess.Close()

	history := d.History()
	fmt.Fprintln(out, transcript.Message(history[len(history)-1]))

	for turn, err := range sess.All(ctx) {
		if err != nil {
			printStatus(out, "✗", err.Error(), color.FgRed)
			return err
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, transcript.Message(turn))
	}
	return nil
}
