package rundb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *RunDB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)

	runID, err := db.StartRun(50, 1e-3, 1, "model.ckpt", 8, 2)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	rec := db.Recorder(runID)
	require.NoError(t, rec.RecordEpoch(1, 0.5, 120*time.Millisecond))
	require.NoError(t, rec.RecordEpoch(2, 0.25, 110*time.Millisecond))

	require.NoError(t, db.FinishRun(runID, 0.125))

	var epochs int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM epochs WHERE run_id = ?`, runID).Scan(&epochs))
	require.Equal(t, 2, epochs)

	var evalMSE float64
	require.NoError(t, db.QueryRow(
		`SELECT eval_mse FROM runs WHERE run_id = ?`, runID).Scan(&evalMSE))
	require.Equal(t, 0.125, evalMSE)
}

func TestDuplicateEpochRejected(t *testing.T) {
	db := openTestDB(t)

	runID, err := db.StartRun(1, 1e-3, 1, "model.ckpt", 1, 0)
	require.NoError(t, err)

	rec := db.Recorder(runID)
	require.NoError(t, rec.RecordEpoch(1, 0.9, time.Millisecond))
	require.Error(t, rec.RecordEpoch(1, 0.8, time.Millisecond))
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	db1, err := Open(path)
	require.NoError(t, err)
	_, err = db1.StartRun(1, 1e-3, 1, "m.ckpt", 1, 0)
	require.NoError(t, err)
	require.NoError(t, db1.Close())

	// Reopening an existing database keeps prior rows.
	db2, err := Open(path)
	require.NoError(t, err)
	defer db2.Close()

	var runs int
	require.NoError(t, db2.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&runs))
	require.Equal(t, 1, runs)
}
