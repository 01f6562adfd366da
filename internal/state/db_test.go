package state

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func insertRun(t *testing.T, exec func(string, ...any) (sql.Result, error), id string) {
	t.Helper()
	_, err := exec("INSERT INTO runs (id, task, mode, status, started_at) VALUES (?, ?, ?, ?, ?)",
		id, "task", "parallel", "running", "2026-01-01T00:00:00Z")
	require.NoError(t, err)
}

func countRuns(t *testing.T, db *DB, id string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM runs WHERE id = ?", id).Scan(&n))
	return n
}

func TestOpen_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "state.db")
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, path, db.Path())
	assert.FileExists(t, path)
}

func TestMigrate_CreatesSchema(t *testing.T) {
	db := setupTestDB(t)

	for _, table := range []string{"schema_version", "runs", "step_results", "dialogues", "dialogue_messages"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Migrate())

	var version, rows int
	require.NoError(t, db.QueryRow("SELECT MAX(version), COUNT(*) FROM schema_version").Scan(&version, &rows))
	assert.Equal(t, SchemaVersion, version)
	assert.Equal(t, SchemaVersion, rows)
}

func TestForeignKeysEnforced(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.Exec("INSERT INTO step_results (run_id, position, step_id, status) VALUES (?, ?, ?, ?)",
		"ghost", 0, "draft", "completed")
	assert.Error(t, err, "step results need an existing run")
}

func TestTransaction(t *testing.T) {
	db := setupTestDB(t)

	err := db.Transaction(func(tx *sql.Tx) error {
		insertRun(t, tx.Exec, "kept")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countRuns(t, db, "kept"))

	boom := errors.New("boom")
	err = db.Transaction(func(tx *sql.Tx) error {
		insertRun(t, tx.Exec, "dropped")
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, countRuns(t, db, "dropped"))
}

func TestExecAndQuery(t *testing.T) {
	db := setupTestDB(t)
	insertRun(t, db.Exec, "r1")
	insertRun(t, db.Exec, "r2")

	rows, err := db.Query("SELECT id FROM runs ORDER BY id")
	require.NoError(t, err)
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"r1", "r2"}, ids)
}

func TestDBPaths(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	assert.Equal(t, "/custom/data/conclave/conclave.db", GlobalDBPath())

	t.Setenv("XDG_DATA_HOME", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	assert.Equal(t, filepath.Join(home, ".local", "share", "conclave", "conclave.db"), GlobalDBPath())

	assert.Equal(t, "/my/project/.conclave/state.db", ProjectDBPath("/my/project"))
}

func TestTimeHelpers(t *testing.T) {
	local := time.Date(2026, 5, 4, 10, 30, 0, 0, time.FixedZone("X", 2*3600))

	s := formatTime(local)
	assert.Equal(t, "2026-05-04T08:30:00Z", s)

	parsed, err := parseTime(s)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(local))

	assert.Nil(t, parseNullableTime(sql.NullString{}))
	assert.Nil(t, parseNullableTime(sql.NullString{String: "garbage", Valid: true}))
	got := parseNullableTime(sql.NullString{String: s, Valid: true})
	require.NotNil(t, got)
	assert.True(t, got.Equal(local))
}
