package enrich

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/inodb/vibe-gsea/internal/geneset"
	"github.com/inodb/vibe-gsea/internal/rank"
)

// WorkItem is one collection queued for testing.
type WorkItem struct {
	Seq        int
	Collection *geneset.Collection
}

// WorkResult is the run produced for a WorkItem.
type WorkResult struct {
	Seq int
	Run *CollectionRun
}

// RunAll tests every collection on a pool of workers and returns the runs
// in input order. Inputs are validated before any test starts; after that a
// failing collection is reported in its own run and never stops the others.
// If workers is 0, runtime.NumCPU() is used.
func (r *Runner) RunAll(ctx context.Context, ranking *rank.List, collections []*geneset.Collection, params Params, workers int) ([]*CollectionRun, error) {
	if err := checkInputs(ranking, params); err != nil {
		return nil, err
	}
	if len(collections) == 0 {
		return nil, fmt.Errorf("no collections: %w", geneset.ErrEmptyCollection)
	}
	for i, c := range collections {
		if err := c.Validate(); err != nil {
			if c == nil {
				return nil, fmt.Errorf("collection %d: %w", i, err)
			}
			return nil, fmt.Errorf("collection %s: %w", c.Name, err)
		}
	}

	items := make(chan WorkItem, len(collections))
	for i, c := range collections {
		items <- WorkItem{Seq: i, Collection: c}
	}
	close(items)

	runs := make([]*CollectionRun, len(collections))
	for res := range r.ParallelRun(ctx, ranking, items, params, workers) {
		run := res.Run
		if run.Status == StatusFailed {
			r.logger.Warn("enrichment failed",
				zap.String("collection", run.Collection),
				zap.Error(run.Err))
		} else {
			r.logger.Info("enrichment finished",
				zap.String("collection", run.Collection),
				zap.Int("tested", run.Tested),
				zap.Int("excluded", run.Excluded),
				zap.Duration("duration", run.Duration))
		}
		runs[res.Seq] = run
	}
	return runs, nil
}

// ParallelRun tests collections from items using a pool of workers. Results
// arrive in completion order; use WorkResult.Seq to restore input order.
// Items must already be validated.
func (r *Runner) ParallelRun(ctx context.Context, ranking *rank.List, items <-chan WorkItem, params Params, workers int) <-chan WorkResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make(chan WorkResult, workers)

	var wg sync.WaitGroup
	wg.Add(workers)

	for range workers {
		go func() {
			defer wg.Done()
			for item := range items {
				results <- WorkResult{
					Seq: item.Seq,
					Run: r.run(ctx, ranking, item.Collection, params),
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}
