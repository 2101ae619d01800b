package enrich

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/inodb/vibe-gsea/internal/rank"
)

// DefaultPermutations is the default size of the permutation null.
const DefaultPermutations = 1000

// Tester is a rank-based enrichment test. Implementations must be
// deterministic for a fixed seed, free of side effects, safe for concurrent
// use, and return exactly one Result per candidate in candidate order.
// AdjustedPValue is filled in by the Runner.
type Tester interface {
	Test(ctx context.Context, ranking *rank.List, candidates []Candidate, seed uint64) ([]Result, error)
}

// Prerank is the preranked GSEA test: a weighted running-sum enrichment
// score compared against a null built from random gene sets of the same
// size (gene-label permutation).
type Prerank struct {
	Permutations int
	// Weight is the exponent applied to |score| for hits (1 = classic GSEA).
	Weight float64
}

// NewPrerank returns a Prerank tester with the given number of permutations.
func NewPrerank(permutations int) *Prerank {
	if permutations <= 0 {
		permutations = DefaultPermutations
	}
	return &Prerank{Permutations: permutations, Weight: 1}
}

// Test implements Tester.
func (p *Prerank) Test(ctx context.Context, ranking *rank.List, candidates []Candidate, seed uint64) ([]Result, error) {
	if p.Permutations < 1 {
		return nil, fmt.Errorf("permutations must be positive, got %d", p.Permutations)
	}
	n := ranking.Len()
	if n == 0 {
		return nil, rank.ErrEmptyRanking
	}

	weights := make([]float64, n)
	for i, s := range ranking.Scores() {
		weights[i] = math.Pow(math.Abs(s), p.Weight)
	}

	// One null per set size, seeded by (seed, size) so a set's p-value does
	// not depend on which other sets are tested alongside it.
	nulls := make(map[int][]float64)
	results := make([]Result, len(candidates))

	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pos, err := positions(ranking, c.Members)
		if err != nil {
			return nil, fmt.Errorf("set %s: %w", c.Set.Name, err)
		}
		k := len(pos)

		es, lead := enrichmentScore(pos, weights, n)

		null, ok := nulls[k]
		if !ok {
			null, err = p.nullDistribution(ctx, weights, n, k, seed)
			if err != nil {
				return nil, err
			}
			nulls[k] = null
		}

		nes, pval := normalize(es, null)
		results[i] = Result{
			SetName:     c.Set.Name,
			Size:        k,
			ES:          es,
			NES:         nes,
			PValue:      pval,
			LeadingEdge: leadingEdge(ranking, pos, es, lead),
		}
	}
	return results, nil
}

// positions maps members to sorted rank positions.
func positions(ranking *rank.List, members []string) ([]int, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("no members in ranking")
	}
	pos := make([]int, 0, len(members))
	for _, g := range members {
		i, ok := ranking.Position(g)
		if !ok {
			return nil, fmt.Errorf("gene %s not in ranking", g)
		}
		pos = append(pos, i)
	}
	sort.Ints(pos)
	return pos, nil
}

// enrichmentScore walks the ranking, stepping up by the hit's weight share
// at each member and down by 1/(n-k) at each non-member. It returns the
// signed maximum deviation and the index into pos where it is reached:
// the last hit before the peak for positive scores, the first hit after
// the trough for negative ones.
func enrichmentScore(pos []int, weights []float64, n int) (float64, int) {
	k := len(pos)

	var nr float64
	for _, p := range pos {
		nr += weights[p]
	}
	var missStep float64
	if n > k {
		missStep = 1 / float64(n-k)
	}

	var cum, maxDev, minDev float64
	maxIdx, minIdx := -1, -1
	for i, p := range pos {
		misses := float64(p-i) * missStep
		if before := cum - misses; before < minDev {
			minDev, minIdx = before, i
		}
		if nr > 0 {
			cum += weights[p] / nr
		} else {
			cum += 1 / float64(k)
		}
		if after := cum - misses; after > maxDev {
			maxDev, maxIdx = after, i
		}
	}

	if maxDev >= -minDev {
		return maxDev, maxIdx
	}
	return minDev, minIdx
}

// nullDistribution scores nperm uniformly random k-subsets of the ranking.
func (p *Prerank) nullDistribution(ctx context.Context, weights []float64, n, k int, seed uint64) ([]float64, error) {
	rng := rand.New(rand.NewPCG(seed, uint64(k)))

	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	sample := make([]int, k)
	out := make([]float64, p.Permutations)

	for b := range out {
		if b%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		// Partial Fisher-Yates: perm[:k] becomes a uniform k-subset.
		for i := 0; i < k; i++ {
			j := i + rng.IntN(n-i)
			perm[i], perm[j] = perm[j], perm[i]
		}
		copy(sample, perm[:k])
		sort.Ints(sample)
		out[b], _ = enrichmentScore(sample, weights, n)
	}
	return out, nil
}

// normalize divides es by the mean of the same-signed null scores and
// computes the permutation p-value (#as-extreme + 1) / (#same-sign + 1).
// Without same-signed null scores the raw es is returned as NES.
func normalize(es float64, null []float64) (float64, float64) {
	same := make([]float64, 0, len(null))
	extreme := 0
	for _, v := range null {
		if es >= 0 {
			if v < 0 {
				continue
			}
			if v >= es {
				extreme++
			}
		} else {
			if v >= 0 {
				continue
			}
			if v <= es {
				extreme++
			}
		}
		same = append(same, v)
	}

	pval := float64(extreme+1) / float64(len(same)+1)
	if len(same) == 0 {
		return es, pval
	}
	mean := math.Abs(stat.Mean(same, nil))
	if mean == 0 {
		return 0, pval
	}
	return es / mean, pval
}

func leadingEdge(ranking *rank.List, pos []int, es float64, lead int) []string {
	if lead < 0 || es == 0 {
		return nil
	}
	var out []string
	if es > 0 {
		for _, p := range pos[:lead+1] {
			out = append(out, ranking.At(p).ID)
		}
		return out
	}
	for i := len(pos) - 1; i >= lead; i-- {
		out = append(out, ranking.At(pos[i]).ID)
	}
	return out
}
