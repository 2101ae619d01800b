// Package enrich runs rank-based gene-set enrichment tests against a
// ranked gene list, one gene-set collection at a time.
package enrich

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/inodb/vibe-gsea/internal/geneset"
)

// NoMaxSize disables the upper set-size bound.
const NoMaxSize = math.MaxInt

// ErrInvalidBounds is returned for set-size bounds that admit no set.
var ErrInvalidBounds = errors.New("invalid gene-set size bounds")

// Result is the outcome of testing one gene set.
type Result struct {
	SetName        string
	Size           int // members present in the ranking
	ES             float64
	NES            float64
	PValue         float64
	AdjustedPValue float64
	LeadingEdge    []string // contribution order: top of the ranking first for NES > 0, bottom first for NES < 0
}

// Candidate is a gene set admitted for testing, with its members
// restricted to the ranking universe.
type Candidate struct {
	Set     *geneset.Set
	Members []string
}

// Params controls which sets are tested and seeds the permutation null.
type Params struct {
	MinSize int
	MaxSize int
	Seed    uint64
}

// Validate checks the size bounds.
func (p Params) Validate() error {
	if p.MinSize < 1 {
		return fmt.Errorf("%w: min size %d < 1", ErrInvalidBounds, p.MinSize)
	}
	if p.MinSize > p.MaxSize {
		return fmt.Errorf("%w: min size %d > max size %d", ErrInvalidBounds, p.MinSize, p.MaxSize)
	}
	return nil
}

// Status is the outcome of one collection run.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// CollectionRun holds the results of testing one collection.
type CollectionRun struct {
	Collection string
	Status     Status
	Results    []Result
	Tested     int
	Excluded   int
	Duration   time.Duration
	Err        error
}

// ComputationError records a failure inside the enrichment test for one
// collection. It never affects other collections.
type ComputationError struct {
	Collection string
	Err        error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("enrichment of %s failed: %v", e.Collection, e.Err)
}

func (e *ComputationError) Unwrap() error {
	return e.Err
}
