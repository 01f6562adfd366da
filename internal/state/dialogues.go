package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ShayCichocki/conclave/internal/dialogue"
)

// DialogueRecord is a stored dialogue transcript.
type DialogueRecord struct {
	ID        string             `json:"id"`
	Model     string             `json:"model"`
	Goal      string             `json:"goal,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	Messages  []dialogue.Message `json:"messages,omitempty"`
	// MessageCount is filled by ListDialogues, which skips Messages.
	MessageCount int `json:"message_count"`
}

// SaveDialogue upserts the dialogue row and appends any messages whose
// turn is not yet stored. Stored messages are never rewritten.
func (db *DB) SaveDialogue(d *DialogueRecord) error {
	if d.ID == "" {
		return fmt.Errorf("save dialogue: empty id")
	}
	now := time.Now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	return db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO dialogues (id, model, goal, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET model = excluded.model, goal = excluded.goal, updated_at = excluded.updated_at
		`, d.ID, d.Model, d.Goal, formatTime(d.CreatedAt), formatTime(d.UpdatedAt))
		if err != nil {
			return fmt.Errorf("save dialogue: %w", err)
		}

		for _, m := range d.Messages {
			_, err := tx.Exec(`
				INSERT OR IGNORE INTO dialogue_messages
					(dialogue_id, turn, speaker_kind, speaker_name, speaker_role, speaker_icon, content)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, d.ID, m.Turn, string(m.Speaker.Kind), m.Speaker.Name, m.Speaker.Role, m.Speaker.Icon, m.Content)
			if err != nil {
				return fmt.Errorf("save dialogue turn %d: %w", m.Turn, err)
			}
		}
		return nil
	})
}

// LoadDialogue retrieves a dialogue with its messages in turn order. It
// returns nil, nil when no dialogue has the given ID.
func (db *DB) LoadDialogue(id string) (*DialogueRecord, error) {
	row := db.QueryRow(`SELECT id, model, goal, created_at, updated_at FROM dialogues WHERE id = ?`, id)

	var d DialogueRecord
	var createdAt, updatedAt string
	err := row.Scan(&d.ID, &d.Model, &d.Goal, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load dialogue: %w", err)
	}
	d.CreatedAt, _ = parseTime(createdAt)
	d.UpdatedAt, _ = parseTime(updatedAt)

	rows, err := db.Query(`
		SELECT turn, speaker_kind, speaker_name, speaker_role, speaker_icon, content
		FROM dialogue_messages WHERE dialogue_id = ? ORDER BY turn
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load dialogue messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m dialogue.Message
		if err := rows.Scan(&m.Turn, &m.Speaker.Kind, &m.Speaker.Name, &m.Speaker.Role, &m.Speaker.Icon, &m.Content); err != nil {
			return nil, fmt.Errorf("scan dialogue message: %w", err)
		}
		d.Messages = append(d.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load dialogue messages: %w", err)
	}
	d.MessageCount = len(d.Messages)
	return &d, nil
}

// ListDialogues lists dialogues most recently updated first, without
// their messages. A limit of zero or less returns every dialogue.
func (db *DB) ListDialogues(limit int) ([]DialogueRecord, error) {
	query := `
		SELECT d.id, d.model, d.goal, d.created_at, d.updated_at,
			(SELECT COUNT(*) FROM dialogue_messages m WHERE m.dialogue_id = d.id)
		FROM dialogues d ORDER BY d.updated_at DESC, d.id`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dialogues: %w", err)
	}
	defer rows.Close()

	var out []DialogueRecord
	for rows.Next() {
		var d DialogueRecord
		var createdAt, updatedAt string
		if err := rows.Scan(&d.ID, &d.Model, &d.Goal, &createdAt, &updatedAt, &d.MessageCount); err != nil {
			return nil, fmt.Errorf("scan dialogue: %w", err)
		}
		d.CreatedAt, _ = parseTime(createdAt)
		d.UpdatedAt, _ = parseTime(updatedAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDialogue deletes a dialogue and its messages.
func (db *DB) DeleteDialogue(id string) error {
	_, err := db.Exec("DELETE FROM dialogues WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete dialogue: %w", err)
	}
	return nil
}
