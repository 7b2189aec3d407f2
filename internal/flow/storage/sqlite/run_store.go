package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run represents a single evaluation or training run: one launch of a
// named configuration against a model and dataset, possibly spread over
// several workers.
type Run struct {
	RunID      string `json:"run_id"`
	ConfigName string `json:"config_name"`
	Model      string `json:"model"`
	Dataset    string `json:"dataset"`
	WorldSize  int    `json:"world_size"`
	CreatedAt  int64  `json:"created_at"`
}

// RunStore provides persistence for runs.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a RunStore backed by the given database.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// Insert persists a new run. If RunID is empty, a UUID is generated.
func (s *RunStore) Insert(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO flow_runs (run_id, config_name, model, dataset, world_size, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			run.RunID, run.ConfigName, run.Model, run.Dataset, run.WorldSize, run.CreatedAt,
		)
		return err
	})
}

// Get returns a single run by ID.
func (s *RunStore) Get(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, config_name, model, dataset, world_size, created_at
		FROM flow_runs
		WHERE run_id = ?`, runID)

	var r Run
	err := row.Scan(&r.RunID, &r.ConfigName, &r.Model, &r.Dataset, &r.WorldSize, &r.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run %s not found", runID)
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return &r, nil
}

// List returns all runs, ordered by creation time descending.
func (s *RunStore) List() ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, config_name, model, dataset, world_size, created_at
		FROM flow_runs
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.RunID, &r.ConfigName, &r.Model, &r.Dataset, &r.WorldSize, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// Delete removes a run and its reports.
func (s *RunStore) Delete(runID string) error {
	return retryOnBusy(func() error {
		result, err := s.db.Exec(`DELETE FROM flow_runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("run %s not found", runID)
		}
		return nil
	})
}
