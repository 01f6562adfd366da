package dialogue

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ShayCichocki/conclave/internal/agent"
)

// historyFile is the on-disk JSON layout.
type historyFile struct {
	DialogueID string    `json:"dialogue_id,omitempty"`
	Messages   []Message `json:"messages"`
}

// SaveHistory writes messages as JSON.
func SaveHistory(w io.Writer, dialogueID string, messages []Message) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if messages == nil {
		messages = []Message{}
	}
	if err := enc.Encode(historyFile{DialogueID: dialogueID, Messages: messages}); err != nil {
		return &agent.SerializationError{What: "dialogue history", Err: err}
	}
	return nil
}

// LoadHistory reads messages written by SaveHistory.
func LoadHistory(r io.Reader) (string, []Message, error) {
	var f historyFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return "", nil, &agent.SerializationError{What: "dialogue history", Err: err}
	}
	for i, m := range f.Messages {
		switch m.Speaker.Kind {
		case SpeakerSystem, SpeakerUser, SpeakerAgent:
		default:
			return "", nil, &agent.SerializationError{
				What: "dialogue history",
				Err:  fmt.Errorf("message %d: unknown speaker kind %q", i, m.Speaker.Kind),
			}
		}
	}
	return f.DialogueID, f.Messages, nil
}

// SaveHistoryFile writes the dialogue's history to path.
func (d *Dialogue) SaveHistoryFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create history file: %w", err)
	}
	if err := SaveHistory(f, d.id, d.History()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadHistoryFile restores the dialogue's history from path.
func (d *Dialogue) LoadHistoryFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	_, messages, err := LoadHistory(f)
	if err != nil {
		return err
	}
	return d.Restore(messages)
}
