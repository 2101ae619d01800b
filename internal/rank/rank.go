// Package rank turns differential expression results into a signed,
// sorted gene ranking for rank-based enrichment tests.
package rank

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/inodb/vibe-gsea/internal/deresult"
)

var (
	// ErrEmptyRanking is returned when no gene survives cleaning; an
	// enrichment test cannot run on an empty ranking.
	ErrEmptyRanking = errors.New("empty ranking")
	// ErrDuplicateGene is returned when a gene id occurs more than once.
	ErrDuplicateGene = errors.New("duplicate gene id")
	// ErrUndefinedValue is returned for rows without a p-value or fold change.
	ErrUndefinedValue = errors.New("undefined p-value or fold change")
	// ErrInvalidPValue is returned for p-values outside [0, 1].
	ErrInvalidPValue = errors.New("p-value outside [0, 1]")
)

// ZeroPValueScore is the score magnitude assigned when p == 0. It is one
// unit above -log10 of the smallest positive float64, so a zero p-value
// always outranks every non-zero p-value with the same fold-change sign.
var ZeroPValueScore = 1 - math.Log10(math.SmallestNonzeroFloat64)

// Gene is one entry of a ranking.
type Gene struct {
	ID    string
	Score float64
}

// List is an immutable ranking sorted by score, highest first.
type List struct {
	genes []Gene
	index map[string]int
}

// Score computes -log10(p) * sign(lfc).
func Score(lfc, p float64) (float64, error) {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPValue, p)
	}
	if math.IsNaN(lfc) {
		return 0, ErrUndefinedValue
	}

	var sign float64
	switch {
	case lfc > 0:
		sign = 1
	case lfc < 0:
		sign = -1
	default:
		return 0, nil
	}

	if p == 0 {
		return sign * ZeroPValueScore, nil
	}
	s := -math.Log10(p) * sign
	if s == 0 {
		// p == 1 gives -0 for negative fold changes.
		return 0, nil
	}
	return s, nil
}

// Build scores normalized DE rows and sorts them. Ties keep input order.
func Build(rows []deresult.Result) (*List, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyRanking
	}

	genes := make([]Gene, 0, len(rows))
	for i := range rows {
		r := &rows[i]
		if !r.Rankable() {
			return nil, fmt.Errorf("gene %q: %w", r.GeneID, ErrUndefinedValue)
		}
		s, err := Score(r.Log2FoldChange.Float64, r.PValue.Float64)
		if err != nil {
			return nil, fmt.Errorf("gene %q: %w", r.GeneID, err)
		}
		genes = append(genes, Gene{ID: r.GeneID, Score: s})
	}
	return FromGenes(genes)
}

// FromGenes builds a List from pre-scored genes.
func FromGenes(genes []Gene) (*List, error) {
	if len(genes) == 0 {
		return nil, ErrEmptyRanking
	}

	sorted := make([]Gene, len(genes))
	copy(sorted, genes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	index := make(map[string]int, len(sorted))
	for i, g := range sorted {
		if math.IsNaN(g.Score) || math.IsInf(g.Score, 0) {
			return nil, fmt.Errorf("gene %q: non-finite score %v", g.ID, g.Score)
		}
		if _, dup := index[g.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateGene, g.ID)
		}
		index[g.ID] = i
	}

	return &List{genes: sorted, index: index}, nil
}

// Len returns the number of ranked genes.
func (l *List) Len() int { return len(l.genes) }

// At returns the gene at rank position i (0 = highest score).
func (l *List) At(i int) Gene { return l.genes[i] }

// Genes returns a copy of the ranking; each call may be iterated independently.
func (l *List) Genes() []Gene {
	out := make([]Gene, len(l.genes))
	copy(out, l.genes)
	return out
}

// Scores returns a copy of the scores in rank order.
func (l *List) Scores() []float64 {
	out := make([]float64, len(l.genes))
	for i, g := range l.genes {
		out[i] = g.Score
	}
	return out
}

// Position returns the rank position of a gene.
func (l *List) Position(id string) (int, bool) {
	i, ok := l.index[id]
	return i, ok
}

// Contains reports whether the gene is part of the ranking universe.
func (l *List) Contains(id string) bool {
	_, ok := l.index[id]
	return ok
}
