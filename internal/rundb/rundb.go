// Package rundb records training-run history in a SQLite database so
// operators can compare runs without scraping log output.
package rundb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// RunDB wraps the run-history database.
type RunDB struct {
	*sql.DB
}

// Open opens (creating if needed) the run-history database at path.
func Open(path string) (*RunDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id            TEXT PRIMARY KEY,
			started_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			epochs            BIGINT,
			learning_rate     DOUBLE,
			batch_size        BIGINT,
			checkpoint_path   TEXT,
			train_pairs       BIGINT,
			test_pairs        BIGINT,
			eval_mse          DOUBLE,
			finished_at       TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS epochs (
			run_id            TEXT,
			epoch             BIGINT,
			avg_loss          DOUBLE,
			duration_ms       BIGINT,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (run_id, epoch),
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialise run database schema: %w", err)
	}

	return &RunDB{db}, nil
}

// StartRun inserts a new run row and returns its generated ID.
func (db *RunDB) StartRun(epochs int, learningRate float64, batchSize int, checkpointPath string, trainPairs, testPairs int) (string, error) {
	runID := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO runs (run_id, epochs, learning_rate, batch_size, checkpoint_path, train_pairs, test_pairs)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, epochs, learningRate, batchSize, checkpointPath, trainPairs, testPairs)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return runID, nil
}

// FinishRun records the held-out evaluation score and completion time.
func (db *RunDB) FinishRun(runID string, evalMSE float64) error {
	_, err := db.Exec(
		`UPDATE runs SET eval_mse = ?, finished_at = CURRENT_TIMESTAMP WHERE run_id = ?`,
		evalMSE, runID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	return nil
}

// EpochRecorder binds a RunDB to one run ID, implementing the training
// package's RunStore interface.
type EpochRecorder struct {
	db    *RunDB
	runID string
}

// Recorder returns an epoch sink for the given run.
func (db *RunDB) Recorder(runID string) *EpochRecorder {
	return &EpochRecorder{db: db, runID: runID}
}

// RecordEpoch inserts one epoch row.
func (r *EpochRecorder) RecordEpoch(epoch int, avgLoss float64, elapsed time.Duration) error {
	_, err := r.db.Exec(
		`INSERT INTO epochs (run_id, epoch, avg_loss, duration_ms) VALUES (?, ?, ?, ?)`,
		r.runID, epoch, avgLoss, elapsed.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert epoch %d: %w", epoch, err)
	}
	return nil
}
