// Package deresult reads and cleans per-gene differential expression results.
package deresult

import (
	"math"

	"gopkg.in/guregu/null.v3"
)

// Result is one row of a differential expression comparison, as produced by
// DESeq2 results() or limma topTable(). Values the upstream test did not
// compute (zero counts, outliers, independent filtering) are null.
type Result struct {
	GeneID         string
	BaseMean       null.Float
	Log2FoldChange null.Float
	LfcSE          null.Float
	Stat           null.Float
	PValue         null.Float
	AdjustedPValue null.Float
}

// Rankable reports whether the row carries both values needed for a ranking score.
func (r *Result) Rankable() bool {
	return defined(r.PValue) && defined(r.Log2FoldChange)
}

func defined(f null.Float) bool {
	return f.Valid && !math.IsNaN(f.Float64)
}
