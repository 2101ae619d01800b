// Package duckdb persists pipeline runs in DuckDB so rankings and
// enrichment results stay queryable across runs.
package duckdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Store manages a DuckDB connection holding run results.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ensureSchema creates tables if they don't exist.
func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id VARCHAR PRIMARY KEY,
			comparison VARCHAR,
			organism VARCHAR,
			input_path VARCHAR,
			input_size BIGINT,
			input_modtime TIMESTAMP,
			min_set_size BIGINT,
			max_set_size BIGINT,
			permutations BIGINT,
			seed BIGINT,
			alpha DOUBLE,
			created_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS rankings (
			run_id VARCHAR,
			position BIGINT,
			gene_id VARCHAR,
			score DOUBLE,
			PRIMARY KEY (run_id, gene_id)
		)`,
		`CREATE TABLE IF NOT EXISTS collection_runs (
			run_id VARCHAR,
			collection VARCHAR,
			status VARCHAR,
			tested BIGINT,
			excluded BIGINT,
			error VARCHAR,
			PRIMARY KEY (run_id, collection)
		)`,
		`CREATE TABLE IF NOT EXISTS enrichment_results (
			run_id VARCHAR,
			collection VARCHAR,
			set_name VARCHAR,
			size BIGINT,
			es DOUBLE,
			nes DOUBLE,
			p_value DOUBLE,
			adjusted_p_value DOUBLE,
			leading_edge VARCHAR,
			PRIMARY KEY (run_id, collection, set_name)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
