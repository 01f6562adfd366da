package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/conclave/internal/signals"
)

var signalCmd = &cobra.Command{
	Use:   "signal <stop|pause|resume|clear>",
	Short: "Control a run in progress",
	Long: `Write or remove the signal files a running "conclave run" watches in
.conclave/signals/ of the current directory.

  stop    cancel the run; in-flight steps are abandoned
  pause   finish in-flight steps but dispatch nothing new
  resume  lift a pause
  clear   remove every signal file`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"stop", "pause", "resume", "clear"},
	RunE:      runSignal,
}

func runSignal(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	w, err := signals.New(wd)
	if err != nil {
		return fmt.Errorf("open signals directory: %w", err)
	}
	defer w.Close()

	return sendSignal(w, args[0], func(msg string) {
		printStatus(out, "✓", msg, color.FgGreen)
	})
}

func sendSignal(w *signals.Watcher, name string, report func(string)) error {
	switch name {
	case "stop":
		if err := w.SendStop(); err != nil {
			return err
		}
		report("Stop requested")
	case "pause":
		if err := w.SendPause(); err != nil {
			return err
		}
		report("Pause requested")
	case "resume":
		if err := w.Resume(); err != nil {
			return err
		}
		report("Resumed")
	case "clear":
		w.Clear()
		report("Signals cleared")
	default:
		return fmt.Errorf("unknown signal %q (want stop, pause, resume or clear)", name)
	}
	return nil
}
