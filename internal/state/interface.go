package state

import (
	"io"

	"github.com/ShayCichocki/conclave/pkg/models"
)

// RunStore persists orchestration runs and their step results.
type RunStore interface {
	SaveRun(r *Run) error
	GetRun(id string) (*Run, error)
	ListRuns(status *models.RunStatus, limit int) ([]Run, error)
	DeleteRun(id string) error
}

// DialogueStore persists dialogue transcripts.
type DialogueStore interface {
	SaveDialogue(d *DialogueRecord) error
	LoadDialogue(id string) (*DialogueRecord, error)
	ListDialogues(limit int) ([]DialogueRecord, error)
	DeleteDialogue(id string) error
}

// Migrator handles database schema migrations.
type Migrator interface {
	Migrate() error
}

// StateStore is everything the CLI needs from a state backend.
type StateStore interface {
	io.Closer
	Migrator
	RunStore
	DialogueStore
}

var (
	_ StateStore    = (*DB)(nil)
	_ Migrator      = (*DB)(nil)
	_ RunStore      = (*DB)(nil)
	_ DialogueStore = (*DB)(nil)
)
