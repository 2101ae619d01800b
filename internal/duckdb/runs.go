package duckdb

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run id is not in the store.
var ErrRunNotFound = errors.New("run not found")

// RunRecord describes one pipeline run.
type RunRecord struct {
	ID           string
	Comparison   string
	Organism     string
	Input        FileFingerprint
	MinSetSize   int
	MaxSetSize   int
	Permutations int
	Seed         uint64
	Alpha        float64
	CreatedAt    time.Time
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// WriteRun inserts a run record. A zero CreatedAt is set to the current time.
func (s *Store) WriteRun(r RunRecord) error {
	if r.ID == "" {
		return errors.New("run id is empty")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	// The seed is stored by bit pattern; BIGINT is signed.
	_, err := s.db.Exec(`INSERT INTO runs VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Comparison, r.Organism,
		r.Input.Path, r.Input.Size, r.Input.ModTime.UTC(),
		int64(r.MinSetSize), int64(r.MaxSetSize), int64(r.Permutations), int64(r.Seed),
		r.Alpha, r.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}
	return nil
}

const runColumns = `run_id, comparison, organism, input_path, input_size, input_modtime,
	min_set_size, max_set_size, permutations, seed, alpha, created_at`

// Run returns the record for one run.
func (s *Store) Run(id string) (RunRecord, error) {
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs WHERE run_id=?`, id)
	if err != nil {
		return RunRecord{}, fmt.Errorf("query run: %w", err)
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil {
		return RunRecord{}, err
	}
	if len(runs) == 0 {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return runs[0], nil
}

// Runs returns all runs, oldest first.
func (s *Store) Runs() ([]RunRecord, error) {
	rows, err := s.db.Query(`SELECT ` + runColumns + ` FROM runs ORDER BY created_at, run_id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// DeleteRun removes a run and everything recorded for it.
func (s *Store) DeleteRun(id string) error {
	for _, table := range []string{"enrichment_results", "collection_runs", "rankings", "runs"} {
		if _, err := s.db.Exec("DELETE FROM "+table+" WHERE run_id=?", id); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}
	return nil
}

func scanRuns(rows *sql.Rows) ([]RunRecord, error) {
	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var minSize, maxSize, perms, seed int64
		if err := rows.Scan(
			&r.ID, &r.Comparison, &r.Organism,
			&r.Input.Path, &r.Input.Size, &r.Input.ModTime,
			&minSize, &maxSize, &perms, &seed,
			&r.Alpha, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.MinSetSize = int(minSize)
		r.MaxSetSize = int(maxSize)
		r.Permutations = int(perms)
		r.Seed = uint64(seed)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
