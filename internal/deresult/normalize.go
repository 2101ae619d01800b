package deresult

import (
	"math"
	"strings"
)

// Diagnostics counts rows removed by Normalize. Dropped rows are expected
// (filtered or undetected genes upstream) and are reported, not raised.
type Diagnostics struct {
	Input             int
	Kept              int
	MissingID         int
	Duplicates        int
	MissingPValue     int
	InvalidPValue     int // outside [0, 1]
	MissingFoldChange int
}

// Dropped returns the total number of rows removed.
func (d Diagnostics) Dropped() int {
	return d.Input - d.Kept
}

// Normalize returns a cleaned copy of rows: every gene id is trimmed,
// non-empty and unique (first occurrence wins, input order kept), and every
// row has a p-value in [0, 1] and a defined fold change. Rows missing both
// values are counted under MissingPValue only.
func Normalize(rows []Result) ([]Result, Diagnostics) {
	d := Diagnostics{Input: len(rows)}
	seen := make(map[string]bool, len(rows))
	out := make([]Result, 0, len(rows))

	for _, r := range rows {
		id := strings.TrimSpace(r.GeneID)
		if id == "" {
			d.MissingID++
			continue
		}
		if seen[id] {
			d.Duplicates++
			continue
		}
		seen[id] = true

		if !defined(r.PValue) {
			d.MissingPValue++
			continue
		}
		if p := r.PValue.Float64; p < 0 || p > 1 {
			d.InvalidPValue++
			continue
		}
		if !defined(r.Log2FoldChange) {
			d.MissingFoldChange++
			continue
		}

		r.GeneID = id
		out = append(out, r)
	}

	d.Kept = len(out)
	return out, d
}

// Summary mirrors DESeq2's summary(): counts of up/down regulated genes at
// an adjusted p-value cutoff and absolute fold-change threshold.
type Summary struct {
	Total     int
	Up        int
	Down      int
	Outliers  int // defined fold change, undefined p-value
	LowCounts int // defined p-value, undefined adjusted p-value
}

// Summarize counts significant genes in rows. Genes with undefined fold
// change (all-zero counts) are excluded from Total.
func Summarize(rows []Result, alpha, lfcThreshold float64) Summary {
	var s Summary
	for i := range rows {
		r := &rows[i]
		if !defined(r.Log2FoldChange) {
			continue
		}
		s.Total++
		switch {
		case !defined(r.PValue):
			s.Outliers++
			continue
		case !defined(r.AdjustedPValue):
			s.LowCounts++
			continue
		}
		if r.AdjustedPValue.Float64 >= alpha || math.Abs(r.Log2FoldChange.Float64) <= lfcThreshold {
			continue
		}
		if r.Log2FoldChange.Float64 > 0 {
			s.Up++
		} else {
			s.Down++
		}
	}
	return s
}
