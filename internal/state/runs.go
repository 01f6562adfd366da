package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ShayCichocki/conclave/pkg/models"
)

// Run is the persisted record of one orchestration run.
type Run struct {
	ID            string              `json:"id"`
	Task          string              `json:"task"`
	Mode          models.Mode         `json:"mode"`
	Status        models.RunStatus    `json:"status"`
	PID           int                 `json:"pid"`
	StepsExecuted int                 `json:"steps_executed"`
	StepsSkipped  int                 `json:"steps_skipped"`
	Redesigns     int                 `json:"redesigns"`
	FinalOutput   string              `json:"final_output"`
	Context       map[string]any      `json:"context,omitempty"`
	Waves         [][]string          `json:"waves,omitempty"`
	Steps         []models.StepRecord `json:"steps,omitempty"`
	StartedAt     time.Time           `json:"started_at"`
	FinishedAt    *time.Time          `json:"finished_at,omitempty"`
}

// NewRun creates a running record owned by the current process.
func NewRun(id, task string, mode models.Mode, startedAt time.Time) *Run {
	return &Run{
		ID:        id,
		Task:      task,
		Mode:      mode,
		Status:    models.RunStatusRunning,
		PID:       os.Getpid(),
		StartedAt: startedAt,
	}
}

// Finish copies the outcome of res into the record.
func (r *Run) Finish(res *models.OrchestrationResult) {
	if res == nil {
		return
	}
	if r.ID == "" {
		r.ID = res.RunID
	}
	r.Status = res.Status
	r.StepsExecuted = res.StepsExecuted
	r.StepsSkipped = res.StepsSkipped
	r.Redesigns = res.RedesignsTriggered
	r.FinalOutput = res.FinalOutput
	r.Context = res.Context
	r.Waves = res.Waves
	r.Steps = res.Steps
	finished := r.StartedAt.Add(res.Duration)
	r.FinishedAt = &finished
}

// Duration is the wall time of a finished run, or zero.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// SaveRun inserts or replaces a run and its step results.
func (db *DB) SaveRun(r *Run) error {
	if r.ID == "" {
		return fmt.Errorf("save run: empty id")
	}
	ctxJSON, err := marshalNullable(r.Context)
	if err != nil {
		return fmt.Errorf("encode run context: %w", err)
	}
	wavesJSON, err := marshalNullable(r.Waves)
	if err != nil {
		return fmt.Errorf("encode run waves: %w", err)
	}
	var finishedAt *string
	if r.FinishedAt != nil {
		s := formatTime(*r.FinishedAt)
		finishedAt = &s
	}

	return db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO runs (id, task, mode, status, pid, steps_executed, steps_skipped, redesigns,
				final_output, context, waves, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				task = excluded.task, mode = excluded.mode, status = excluded.status, pid = excluded.pid,
				steps_executed = excluded.steps_executed, steps_skipped = excluded.steps_skipped,
				redesigns = excluded.redesigns, final_output = excluded.final_output,
				context = excluded.context, waves = excluded.waves, finished_at = excluded.finished_at
		`, r.ID, r.Task, string(r.Mode), string(r.Status), r.PID, r.StepsExecuted, r.StepsSkipped, r.Redesigns,
			r.FinalOutput, ctxJSON, wavesJSON, formatTime(r.StartedAt), finishedAt)
		if err != nil {
			return fmt.Errorf("save run: %w", err)
		}

		if _, err := tx.Exec("DELETE FROM step_results WHERE run_id = ?", r.ID); err != nil {
			return fmt.Errorf("clear step results: %w", err)
		}
		for i, s := range r.Steps {
			_, err := tx.Exec(`
				INSERT INTO step_results (run_id, position, step_id, agent, status, attempts, output, error)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, r.ID, i, s.StepID, s.Agent, string(s.Status), s.Attempts, s.Output, s.Error)
			if err != nil {
				return fmt.Errorf("save step %s: %w", s.StepID, err)
			}
		}
		return nil
	})
}

// SetRunStatus updates only the status of a run.
func (db *DB) SetRunStatus(id string, status models.RunStatus) error {
	_, err := db.Exec("UPDATE runs SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return fmt.Errorf("set run status: %w", err)
	}
	return nil
}

const runColumns = `id, task, mode, status, pid, steps_executed, steps_skipped, redesigns,
	final_output, context, waves, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var startedAt string
	var finishedAt, ctxJSON, wavesJSON sql.NullString
	err := row.Scan(&r.ID, &r.Task, &r.Mode, &r.Status, &r.PID, &r.StepsExecuted, &r.StepsSkipped, &r.Redesigns,
		&r.FinalOutput, &ctxJSON, &wavesJSON, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	r.StartedAt, _ = parseTime(startedAt)
	r.FinishedAt = parseNullableTime(finishedAt)
	if ctxJSON.Valid {
		if err := json.Unmarshal([]byte(ctxJSON.String), &r.Context); err != nil {
			return nil, fmt.Errorf("decode run context: %w", err)
		}
	}
	if wavesJSON.Valid {
		if err := json.Unmarshal([]byte(wavesJSON.String), &r.Waves); err != nil {
			return nil, fmt.Errorf("decode run waves: %w", err)
		}
	}
	return &r, nil
}

// GetRun retrieves a run and its step results. It returns nil, nil when
// no run has the given ID.
func (db *DB) GetRun(id string) (*Run, error) {
	r, err := scanRun(db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	rows, err := db.Query(`
		SELECT step_id, agent, status, attempts, output, error
		FROM step_results WHERE run_id = ? ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get step results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s models.StepRecord
		if err := rows.Scan(&s.StepID, &s.Agent, &s.Status, &s.Attempts, &s.Output, &s.Error); err != nil {
			return nil, fmt.Errorf("scan step result: %w", err)
		}
		r.Steps = append(r.Steps, s)
	}
	return r, rows.Err()
}

// ListRuns lists runs newest first, optionally filtered by status. Step
// results are not loaded. A limit of zero or less returns every run.
func (db *DB) ListRuns(status *models.RunStatus, limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs"
	var args []any
	if status != nil {
		query += " WHERE status = ?"
		args = append(args, string(*status))
	}
	query += " ORDER BY started_at DESC, id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// DeleteRun deletes a run and its step results.
func (db *DB) DeleteRun(id string) error {
	_, err := db.Exec("DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return nil
}

func marshalNullable(v any) (*string, error) {
	switch x := v.(type) {
	case map[string]any:
		if x == nil {
			return nil, nil
		}
	case [][]string:
		if x == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}
