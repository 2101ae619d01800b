package enrich

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/inodb/vibe-gsea/internal/geneset"
	"github.com/inodb/vibe-gsea/internal/rank"
)

// Runner tests gene-set collections against a ranking.
type Runner struct {
	tester Tester
	logger *zap.Logger
}

// NewRunner creates a runner around the given test.
func NewRunner(t Tester) *Runner {
	return &Runner{
		tester: t,
		logger: zap.NewNop(),
	}
}

// SetLogger sets the logger for progress and failure messages.
func (r *Runner) SetLogger(l *zap.Logger) {
	r.logger = l
}

// Candidates returns the sets of c whose overlap with the ranking has a size
// within [MinSize, MaxSize], in set-name order, and the number excluded.
func Candidates(ranking *rank.List, c *geneset.Collection, params Params) ([]Candidate, int) {
	var out []Candidate
	excluded := 0
	for _, s := range c.Sets() {
		members := s.Overlap(ranking.Contains)
		if len(members) < params.MinSize || len(members) > params.MaxSize {
			excluded++
			continue
		}
		out = append(out, Candidate{Set: s, Members: members})
	}
	return out, excluded
}

// Run tests one collection. Invalid bounds, an empty ranking or an empty
// collection are returned as errors. A failure of the test itself is
// recorded in the returned run with StatusFailed.
func (r *Runner) Run(ctx context.Context, ranking *rank.List, c *geneset.Collection, params Params) (*CollectionRun, error) {
	if err := checkInputs(ranking, params); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		if c != nil {
			return nil, fmt.Errorf("collection %s: %w", c.Name, err)
		}
		return nil, err
	}
	return r.run(ctx, ranking, c, params), nil
}

func checkInputs(ranking *rank.List, params Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if ranking == nil || ranking.Len() == 0 {
		return rank.ErrEmptyRanking
	}
	return nil
}

func (r *Runner) run(ctx context.Context, ranking *rank.List, c *geneset.Collection, params Params) *CollectionRun {
	start := time.Now()
	candidates, excluded := Candidates(ranking, c, params)

	run := &CollectionRun{
		Collection: c.Name,
		Status:     StatusOK,
		Tested:     len(candidates),
		Excluded:   excluded,
	}

	if len(candidates) > 0 {
		results, err := r.safeTest(ctx, ranking, candidates, params.Seed)
		if err == nil && len(results) != len(candidates) {
			err = fmt.Errorf("test returned %d results for %d sets", len(results), len(candidates))
		}
		if err != nil {
			run.Status = StatusFailed
			run.Err = &ComputationError{Collection: c.Name, Err: err}
			run.Duration = time.Since(start)
			return run
		}

		pvals := make([]float64, len(results))
		for i := range results {
			pvals[i] = results[i].PValue
		}
		for i, adj := range AdjustBH(pvals) {
			results[i].AdjustedPValue = adj
		}
		run.Results = results
	}

	run.Duration = time.Since(start)
	return run
}

func (r *Runner) safeTest(ctx context.Context, ranking *rank.List, candidates []Candidate, seed uint64) (results []Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			results, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	return r.tester.Test(ctx, ranking, candidates, seed)
}
