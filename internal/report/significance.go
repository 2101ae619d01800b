// Package report filters enrichment results by significance and writes
// them as tables and spreadsheets.
package report

import (
	"math"
	"sort"
	"strings"

	"github.com/inodb/vibe-gsea/internal/enrich"
)

// DefaultAlpha is the default adjusted p-value cutoff.
const DefaultAlpha = 0.05

// LeadingEdgeSeparator joins leading-edge genes in exported tables.
const LeadingEdgeSeparator = "; "

// FilterSignificant returns the results with AdjustedPValue < alpha, sorted
// by AdjustedPValue ascending, then |NES| descending, then set name. The
// input is not modified.
func FilterSignificant(results []enrich.Result, alpha float64) []enrich.Result {
	out := make([]enrich.Result, 0, len(results))
	for _, r := range results {
		if r.AdjustedPValue < alpha {
			out = append(out, r)
		}
	}
	SortBySignificance(out)
	return out
}

// SortBySignificance sorts results in place in reporting order.
func SortBySignificance(results []enrich.Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.AdjustedPValue != b.AdjustedPValue {
			return a.AdjustedPValue < b.AdjustedPValue
		}
		if na, nb := math.Abs(a.NES), math.Abs(b.NES); na != nb {
			return na > nb
		}
		return a.SetName < b.SetName
	})
}

// Row is an export-ready enrichment result. LeadingEdge is the display form
// of the structured enrich.Result.LeadingEdge.
type Row struct {
	SetName        string
	PValue         float64
	AdjustedPValue float64
	NES            float64
	Size           int
	LeadingEdge    string
}

// Columns are the exported column names, in Row field order.
var Columns = []string{"set_name", "p_value", "adjusted_p_value", "NES", "size", "leading_edge_genes"}

// Flatten converts results into export rows, joining the leading edge with
// LeadingEdgeSeparator.
func Flatten(results []enrich.Result) []Row {
	rows := make([]Row, len(results))
	for i, r := range results {
		rows[i] = Row{
			SetName:        r.SetName,
			PValue:         r.PValue,
			AdjustedPValue: r.AdjustedPValue,
			NES:            r.NES,
			Size:           r.Size,
			LeadingEdge:    strings.Join(r.LeadingEdge, LeadingEdgeSeparator),
		}
	}
	return rows
}

// SplitLeadingEdge reverses the join done by Flatten.
func SplitLeadingEdge(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, LeadingEdgeSeparator)
}

// Values returns the row as cell values in Columns order.
func (r Row) Values() []any {
	return []any{r.SetName, r.PValue, r.AdjustedPValue, r.NES, r.Size, r.LeadingEdge}
}
