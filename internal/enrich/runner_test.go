package enrich

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-gsea/internal/geneset"
	"github.com/inodb/vibe-gsea/internal/rank"
)

func collection(name string, sets map[string][]string) *geneset.Collection {
	c := geneset.NewCollection(name)
	for n, genes := range sets {
		c.Add(geneset.NewSet(n, "", genes))
	}
	return c
}

var defaultParams = Params{MinSize: 1, MaxSize: 10, Seed: 1}

// failingTester fails for one collection, identified by its first set name.
type failingTester struct {
	inner    Tester
	failSet  string
	panicSet string
}

func (f *failingTester) Test(ctx context.Context, l *rank.List, c []Candidate, seed uint64) ([]Result, error) {
	for _, cand := range c {
		switch cand.Set.Name {
		case f.failSet:
			return nil, errors.New("numerical error")
		case f.panicSet:
			panic("index out of range")
		}
	}
	return f.inner.Test(ctx, l, c, seed)
}

func TestRun_SetWithinBoundsIsTested(t *testing.T) {
	r := NewRunner(NewPrerank(100))
	c := collection("GO_BP", map[string][]string{"AC": {"A", "C"}})

	run, err := r.Run(context.Background(), smallRanking(t), c, defaultParams)
	require.NoError(t, err)

	assert.Equal(t, StatusOK, run.Status)
	require.Len(t, run.Results, 1)
	assert.Equal(t, "AC", run.Results[0].SetName)
	assert.Equal(t, 2, run.Results[0].Size)
	assert.Equal(t, 1, run.Tested)
	assert.Equal(t, 0, run.Excluded)
}

func TestRun_NoOverlapSilentlyExcluded(t *testing.T) {
	r := NewRunner(NewPrerank(100))
	c := collection("GO_BP", map[string][]string{
		"AC":      {"A", "C"},
		"NOTHING": {"X", "Y", "Z"},
	})

	run, err := r.Run(context.Background(), smallRanking(t), c, defaultParams)
	require.NoError(t, err)

	require.Len(t, run.Results, 1)
	for _, res := range run.Results {
		assert.NotEqual(t, "NOTHING", res.SetName)
	}
	assert.Equal(t, 1, run.Excluded)
	assert.NoError(t, run.Err)
}

func TestRun_SizeBoundsUseOverlap(t *testing.T) {
	r := NewRunner(NewPrerank(50))
	c := collection("KEGG", map[string][]string{
		"big_but_sparse": {"A", "X1", "X2", "X3", "X4"}, // overlap 1
		"pair":           {"A", "B"},
		"triple":         {"A", "B", "D"},
	})

	run, err := r.Run(context.Background(), smallRanking(t), c, Params{MinSize: 2, MaxSize: 2, Seed: 3})
	require.NoError(t, err)
	require.Len(t, run.Results, 1)
	assert.Equal(t, "pair", run.Results[0].SetName)
	assert.Equal(t, 2, run.Excluded)
}

func TestRun_AdjustsWithinRun(t *testing.T) {
	r := NewRunner(NewPrerank(200))
	c := collection("GO_MF", map[string][]string{
		"s1": {"A"}, "s2": {"B"}, "s3": {"C"}, "s4": {"D"}, "s5": {"A", "D"},
	})

	run, err := r.Run(context.Background(), smallRanking(t), c, defaultParams)
	require.NoError(t, err)

	p := make([]float64, len(run.Results))
	for i, res := range run.Results {
		p[i] = res.PValue
	}
	want := AdjustBH(p)
	for i, res := range run.Results {
		assert.InDelta(t, want[i], res.AdjustedPValue, 1e-12)
		assert.GreaterOrEqual(t, res.AdjustedPValue, res.PValue)
	}
}

func TestRun_ConfigurationErrors(t *testing.T) {
	r := NewRunner(NewPrerank(10))
	c := collection("GO_BP", map[string][]string{"AC": {"A", "C"}})
	ctx := context.Background()

	_, err := r.Run(ctx, smallRanking(t), c, Params{MinSize: 5, MaxSize: 2})
	assert.ErrorIs(t, err, ErrInvalidBounds)

	_, err = r.Run(ctx, smallRanking(t), c, Params{MinSize: 0, MaxSize: 2})
	assert.ErrorIs(t, err, ErrInvalidBounds)

	_, err = r.Run(ctx, smallRanking(t), geneset.NewCollection("EMPTY"), defaultParams)
	assert.ErrorIs(t, err, geneset.ErrEmptyCollection)

	_, err = r.Run(ctx, smallRanking(t), nil, defaultParams)
	assert.ErrorIs(t, err, geneset.ErrEmptyCollection)

	_, err = r.Run(ctx, nil, c, defaultParams)
	assert.ErrorIs(t, err, rank.ErrEmptyRanking)
}

func TestRun_NoMaxSize(t *testing.T) {
	r := NewRunner(NewPrerank(10))
	c := collection("GO_BP", map[string][]string{"all": {"A", "B", "C", "D"}})

	run, err := r.Run(context.Background(), smallRanking(t), c, Params{MinSize: 1, MaxSize: NoMaxSize})
	require.NoError(t, err)
	assert.Len(t, run.Results, 1)
}

func TestRunAll_IsolatesFailures(t *testing.T) {
	tester := &failingTester{inner: NewPrerank(50), failSet: "bad", panicSet: "boom"}
	r := NewRunner(tester)

	collections := []*geneset.Collection{
		collection("GO_BP", map[string][]string{"AC": {"A", "C"}}),
		collection("GO_CC", map[string][]string{"bad": {"A", "B"}}),
		collection("GO_MF", map[string][]string{"boom": {"B", "C"}}),
		collection("KEGG", map[string][]string{"BD": {"B", "D"}}),
	}

	runs, err := r.RunAll(context.Background(), smallRanking(t), collections, defaultParams, 3)
	require.NoError(t, err)
	require.Len(t, runs, 4)

	assert.Equal(t, "GO_BP", runs[0].Collection)
	assert.Equal(t, StatusOK, runs[0].Status)
	assert.Len(t, runs[0].Results, 1)

	assert.Equal(t, StatusFailed, runs[1].Status)
	var ce *ComputationError
	require.ErrorAs(t, runs[1].Err, &ce)
	assert.Equal(t, "GO_CC", ce.Collection)
	assert.Empty(t, runs[1].Results)

	assert.Equal(t, StatusFailed, runs[2].Status)
	assert.Contains(t, runs[2].Err.Error(), "panic")

	assert.Equal(t, "KEGG", runs[3].Collection)
	assert.Equal(t, StatusOK, runs[3].Status)
}

func TestRunAll_OrderAndReproducibility(t *testing.T) {
	l := linearRanking(t, 60)
	var collections []*geneset.Collection
	for i := range 12 {
		collections = append(collections, collection(fmt.Sprintf("C%02d", i), map[string][]string{
			"s": {fmt.Sprintf("G%03d", i), fmt.Sprintf("G%03d", 59-i), "G030"},
		}))
	}
	r := NewRunner(NewPrerank(100))
	params := Params{MinSize: 1, MaxSize: NoMaxSize, Seed: 99}

	parallel, err := r.RunAll(context.Background(), l, collections, params, 8)
	require.NoError(t, err)
	serial, err := r.RunAll(context.Background(), l, collections, params, 1)
	require.NoError(t, err)

	for i := range collections {
		assert.Equal(t, collections[i].Name, parallel[i].Collection)
		assert.Equal(t, serial[i].Results, parallel[i].Results)
	}
}

func TestRunAll_ValidatesBeforeRunning(t *testing.T) {
	r := NewRunner(NewPrerank(10))
	collections := []*geneset.Collection{
		collection("GO_BP", map[string][]string{"AC": {"A", "C"}}),
		geneset.NewCollection("KEGG"),
	}
	_, err := r.RunAll(context.Background(), smallRanking(t), collections, defaultParams, 2)
	assert.ErrorIs(t, err, geneset.ErrEmptyCollection)
	assert.Contains(t, err.Error(), "KEGG")

	_, err = r.RunAll(context.Background(), smallRanking(t), nil, defaultParams, 2)
	assert.ErrorIs(t, err, geneset.ErrEmptyCollection)
}
