package state

import (
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/ShayCichocki/conclave/internal/logging"
	"github.com/ShayCichocki/conclave/pkg/models"
)

// InterruptedRun is a run left in the running state by a process that
// no longer exists.
type InterruptedRun struct {
	RunID     string
	Task      string
	Mode      models.Mode
	PID       int
	StartedAt time.Time
}

// RecoveryManager detects and closes out runs whose process died.
type RecoveryManager struct {
	db     *DB
	logger *slog.Logger
	alive  func(pid int) bool
}

// NewRecoveryManager creates a RecoveryManager over db.
func NewRecoveryManager(db *DB, logger *slog.Logger) *RecoveryManager {
	if logger == nil {
		logger = logging.Discard()
	}
	return &RecoveryManager{db: db, logger: logger, alive: isProcessAlive}
}

// CheckForInterrupted lists running runs whose owning process is gone.
// Runs still owned by a live process are left alone.
func (rm *RecoveryManager) CheckForInterrupted() ([]InterruptedRun, error) {
	status := models.RunStatusRunning
	runs, err := rm.db.ListRuns(&status, 0)
	if err != nil {
		return nil, fmt.Errorf("list running runs: %w", err)
	}

	var out []InterruptedRun
	for _, r := range runs {
		if r.PID > 0 && rm.alive(r.PID) {
			continue
		}
		out = append(out, InterruptedRun{
			RunID:     r.ID,
			Task:      r.Task,
			Mode:      r.Mode,
			PID:       r.PID,
			StartedAt: r.StartedAt,
		})
	}
	return out, nil
}

// Clean marks every interrupted run as cancelled and returns how many
// were closed.
func (rm *RecoveryManager) Clean() (int, error) {
	interrupted, err := rm.CheckForInterrupted()
	if err != nil {
		return 0, err
	}
	for _, r := range interrupted {
		if err := rm.db.SetRunStatus(r.RunID, models.RunStatusCancelled); err != nil {
			return 0, fmt.Errorf("cancel run %s: %w", r.RunID, err)
		}
		rm.logger.Info("closed interrupted run", "run_id", r.RunID, "pid", r.PID)
	}
	return len(interrupted), nil
}

// isProcessAlive checks if a process with the given PID is still running.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 checks existence without delivering anything.
	return process.Signal(syscall.Signal(0)) == nil
}
