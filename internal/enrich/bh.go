package enrich

import "sort"

// AdjustBH returns Benjamini-Hochberg adjusted p-values in input order.
func AdjustBH(pvals []float64) []float64 {
	n := len(pvals)
	if n == 0 {
		return nil
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return pvals[idx[i]] < pvals[idx[j]]
	})

	adj := make([]float64, n)
	minP := 1.0
	for i := n - 1; i >= 0; i-- {
		orig := idx[i]
		v := pvals[orig] * float64(n) / float64(i+1)
		if v < minP {
			minP = v
		}
		adj[orig] = minP
	}
	return adj
}
