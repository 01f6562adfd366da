package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conclave/internal/dialogue"
	"github.com/ShayCichocki/conclave/internal/state"
	"github.com/ShayCichocki/conclave/internal/tui"
)

var (
	historyJSON   bool
	historyLimit  int
	historyDelete bool
)

var historyCmd = &cobra.Command{
	Use:   "history [dialogue-id]",
	Short: "List saved dialogues or show one transcript",
	Long: `Without arguments, lists saved dialogues, most recent first.
With a dialogue ID, prints its transcript; --json prints the exportable
history document instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print the history as JSON")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of dialogues to list")
	historyCmd.Flags().BoolVar(&historyDelete, "delete", false, "Delete the dialogue instead of printing it")
}

func runHistory(cmd *cobra.Command, args []string) error {
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

	if len(args) == 0 {
		return listDialogues(out, db, historyLimit)
	}

	if historyDelete {
		if err := db.DeleteDialogue(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted dialogue %s\n", args[0])
		return nil
	}
	return showDialogue(out, db, args[0], historyJSON)
}

// listDialogues prints a table of stored dialogues.
func listDialogues(out io.Writer, db state.DialogueStore, limit int) error {
	records, err := db.ListDialogues(limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No saved dialogues.")
		return nil
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.ID,
			r.Model,
			strconv.Itoa(r.MessageCount),
			r.UpdatedAt.Local().Format("2006-01-02 15:04"),
			r.Goal,
		})
	}
	fmt.Fprintln(out, tui.Table([]string{"ID", "MODEL", "MESSAGES", "UPDATED", "GOAL"}, rows))
	return nil
}

// showDialogue prints one dialogue as a transcript or as JSON.
func showDialogue(out io.Writer, db state.DialogueStore, id string, asJSON bool) error {
	rec, err := db.LoadDialogue(id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("no saved dialogue with ID %s", id)
	}

	if asJSON {
		return dialogue.SaveHistory(out, rec.ID, rec.Messages)
	}

	fmt.Fprintf(out, "Dialogue %s (%s)\n", rec.ID, rec.Model)
	if rec.Goal != "" {
		fmt.Fprintf(out, "Goal: %s\n", rec.Goal)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, tui.NewTranscript(100).Render(rec.Messages))
	return nil
}
