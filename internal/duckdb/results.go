package duckdb

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strings"

	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/inodb/vibe-gsea/internal/enrich"
	"github.com/inodb/vibe-gsea/internal/rank"
	"github.com/inodb/vibe-gsea/internal/report"
)

// SetHit is a stored result for one gene set, with the run it came from.
type SetHit struct {
	RunID      string
	Comparison string
	Collection string
	Result     enrich.Result
}

// CollectionStatus is the stored outcome of one collection run.
type CollectionStatus struct {
	Collection string
	Status     enrich.Status
	Tested     int
	Excluded   int
	Error      string
}

// withAppender runs fn with an Appender on table and flushes it.
func (s *Store) withAppender(table string, fn func(*goduckdb.Appender) error) error {
	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", table)
		return err
	}); err != nil {
		return fmt.Errorf("create appender: %w", err)
	}
	defer appender.Close()

	if err := fn(appender); err != nil {
		return err
	}
	return appender.Flush()
}

// WriteRanking batch-inserts the ranked list for a run. Position is 1-based.
func (s *Store) WriteRanking(runID string, l *rank.List) error {
	if l.Len() == 0 {
		return nil
	}
	return s.withAppender("rankings", func(a *goduckdb.Appender) error {
		for i, g := range l.Genes() {
			if err := a.AppendRow(runID, int64(i+1), g.ID, g.Score); err != nil {
				return fmt.Errorf("append ranking row: %w", err)
			}
		}
		return nil
	})
}

// Ranking reads back the ranked list of a run.
func (s *Store) Ranking(runID string) (*rank.List, error) {
	rows, err := s.db.Query(`SELECT gene_id, score FROM rankings WHERE run_id=? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query ranking: %w", err)
	}
	defer rows.Close()

	var genes []rank.Gene
	for rows.Next() {
		var g rank.Gene
		if err := rows.Scan(&g.ID, &g.Score); err != nil {
			return nil, fmt.Errorf("scan ranking: %w", err)
		}
		genes = append(genes, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ranking: %w", err)
	}
	return rank.FromGenes(genes)
}

// resultKey is the composite key for deduplicating results before writing.
type resultKey struct {
	collection, setName string
}

// WriteEnrichment batch-inserts the collection runs of a pipeline run and
// all their results. Duplicate (collection, set) entries keep the first.
func (s *Store) WriteEnrichment(runID string, runs []*enrich.CollectionRun) error {
	if len(runs) == 0 {
		return nil
	}

	seenRun := make(map[string]bool, len(runs))
	err := s.withAppender("collection_runs", func(a *goduckdb.Appender) error {
		for _, run := range runs {
			if seenRun[run.Collection] {
				continue
			}
			seenRun[run.Collection] = true
			errMsg := ""
			if run.Err != nil {
				errMsg = run.Err.Error()
			}
			if err := a.AppendRow(runID, run.Collection, string(run.Status),
				int64(run.Tested), int64(run.Excluded), errMsg); err != nil {
				return fmt.Errorf("append collection run: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	seen := make(map[resultKey]bool)
	return s.withAppender("enrichment_results", func(a *goduckdb.Appender) error {
		for _, run := range runs {
			for _, r := range run.Results {
				k := resultKey{run.Collection, r.SetName}
				if seen[k] {
					continue
				}
				seen[k] = true
				if err := a.AppendRow(
					runID, run.Collection, r.SetName, int64(r.Size),
					r.ES, r.NES, r.PValue, r.AdjustedPValue,
					strings.Join(r.LeadingEdge, report.LeadingEdgeSeparator),
				); err != nil {
					return fmt.Errorf("append enrichment result: %w", err)
				}
			}
		}
		return nil
	})
}

// CollectionRuns returns the per-collection outcomes of a run.
func (s *Store) CollectionRuns(runID string) ([]CollectionStatus, error) {
	rows, err := s.db.Query(`SELECT collection, status, tested, excluded, error
		FROM collection_runs WHERE run_id=? ORDER BY collection`, runID)
	if err != nil {
		return nil, fmt.Errorf("query collection runs: %w", err)
	}
	defer rows.Close()

	var out []CollectionStatus
	for rows.Next() {
		var c CollectionStatus
		var status string
		var tested, excluded int64
		if err := rows.Scan(&c.Collection, &status, &tested, &excluded, &c.Error); err != nil {
			return nil, fmt.Errorf("scan collection run: %w", err)
		}
		c.Status = enrich.Status(status)
		c.Tested = int(tested)
		c.Excluded = int(excluded)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collection runs: %w", err)
	}
	return out, nil
}

// Significant returns the results of one collection in a run with adjusted
// p-value below alpha, in reporting order.
func (s *Store) Significant(runID, collection string, alpha float64) ([]enrich.Result, error) {
	rows, err := s.db.Query(`SELECT
		set_name, size, es, nes, p_value, adjusted_p_value, leading_edge
		FROM enrichment_results
		WHERE run_id=? AND collection=? AND adjusted_p_value < ?
		ORDER BY adjusted_p_value, abs(nes) DESC, set_name`,
		runID, collection, alpha)
	if err != nil {
		return nil, fmt.Errorf("query significant: %w", err)
	}
	defer rows.Close()

	var results []enrich.Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate significant: %w", err)
	}
	return results, nil
}

// LookupSet returns every stored result for a named set, across runs.
func (s *Store) LookupSet(collection, setName string) ([]SetHit, error) {
	rows, err := s.db.Query(`SELECT
		e.run_id, r.comparison,
		e.set_name, e.size, e.es, e.nes, e.p_value, e.adjusted_p_value, e.leading_edge
		FROM enrichment_results e JOIN runs r ON e.run_id = r.run_id
		WHERE e.collection=? AND e.set_name=?
		ORDER BY r.created_at, e.run_id`, collection, setName)
	if err != nil {
		return nil, fmt.Errorf("query set: %w", err)
	}
	defer rows.Close()

	var hits []SetHit
	for rows.Next() {
		var h SetHit
		var size int64
		var leadingEdge string
		if err := rows.Scan(
			&h.RunID, &h.Comparison,
			&h.Result.SetName, &size, &h.Result.ES, &h.Result.NES,
			&h.Result.PValue, &h.Result.AdjustedPValue, &leadingEdge,
		); err != nil {
			return nil, fmt.Errorf("scan set hit: %w", err)
		}
		h.Collection = collection
		h.Result.Size = int(size)
		h.Result.LeadingEdge = report.SplitLeadingEdge(leadingEdge)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate set hits: %w", err)
	}
	return hits, nil
}

// scanResult scans one enrichment_results row.
func scanResult(rows interface {
	Scan(dest ...any) error
}) (enrich.Result, error) {
	var r enrich.Result
	var size int64
	var leadingEdge string
	if err := rows.Scan(&r.SetName, &size, &r.ES, &r.NES, &r.PValue, &r.AdjustedPValue, &leadingEdge); err != nil {
		return enrich.Result{}, fmt.Errorf("scan enrichment result: %w", err)
	}
	r.Size = int(size)
	r.LeadingEdge = report.SplitLeadingEdge(leadingEdge)
	return r, nil
}
