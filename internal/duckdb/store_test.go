package duckdb

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-gsea/internal/enrich"
	"github.com/inodb/vibe-gsea/internal/rank"
)

func openInMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRun(id, comparison string, created time.Time) RunRecord {
	return RunRecord{
		ID:           id,
		Comparison:   comparison,
		Organism:     "human",
		Input:        FileFingerprint{Path: "/data/de.csv", Size: 1234, ModTime: created.Add(-time.Hour)},
		MinSetSize:   15,
		MaxSetSize:   500,
		Permutations: 1000,
		Seed:         1<<63 + 5,
		Alpha:        0.05,
		CreatedAt:    created,
	}
}

func testRuns() []*enrich.CollectionRun {
	return []*enrich.CollectionRun{
		{
			Collection: "GO_BP", Status: enrich.StatusOK, Tested: 3, Excluded: 1,
			Results: []enrich.Result{
				{SetName: "APOPTOSIS", Size: 20, ES: 0.6, NES: 1.8, PValue: 0.001, AdjustedPValue: 0.003, LeadingEdge: []string{"TP53", "BAX"}},
				{SetName: "CELL_CYCLE", Size: 30, ES: -0.7, NES: -2.1, PValue: 0.001, AdjustedPValue: 0.003, LeadingEdge: []string{"CDK1"}},
				{SetName: "NOISE", Size: 15, ES: 0.1, NES: 0.4, PValue: 0.8, AdjustedPValue: 0.8},
			},
		},
		{
			Collection: "KEGG", Status: enrich.StatusFailed,
			Err: &enrich.ComputationError{Collection: "KEGG", Err: errors.New("numerical error")},
		},
	}
}

func TestOpenClose(t *testing.T) {
	s := openInMemory(t)
	runs, err := s.Runs()
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "gsea.duckdb")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestWriteAndReadRun(t *testing.T) {
	s := openInMemory(t)

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	want := testRun(NewRunID(), "treated_vs_control", created)
	require.NoError(t, s.WriteRun(want))

	got, err := s.Run(want.ID)
	require.NoError(t, err)
	assert.Equal(t, want.Comparison, got.Comparison)
	assert.Equal(t, want.Input.Path, got.Input.Path)
	assert.Equal(t, want.Input.Size, got.Input.Size)
	assert.True(t, want.Input.ModTime.Equal(got.Input.ModTime))
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, want.Seed, got.Seed)
	assert.Equal(t, 500, got.MaxSetSize)

	_, err = s.Run("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestWriteRun_RequiresID(t *testing.T) {
	s := openInMemory(t)
	assert.Error(t, s.WriteRun(RunRecord{}))
}

func TestRunsOrdered(t *testing.T) {
	s := openInMemory(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.WriteRun(testRun("b", "later", base.Add(time.Hour))))
	require.NoError(t, s.WriteRun(testRun("a", "earlier", base)))

	runs, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "earlier", runs[0].Comparison)
	assert.Equal(t, "later", runs[1].Comparison)
}

func TestNewRunIDUnique(t *testing.T) {
	assert.NotEqual(t, NewRunID(), NewRunID())
}

func TestWriteAndReadRanking(t *testing.T) {
	s := openInMemory(t)

	l, err := rank.FromGenes([]rank.Gene{{ID: "A", Score: 3}, {ID: "B", Score: -2}, {ID: "C", Score: 0.5}})
	require.NoError(t, err)
	require.NoError(t, s.WriteRanking("run1", l))

	got, err := s.Ranking("run1")
	require.NoError(t, err)
	assert.Equal(t, l.Genes(), got.Genes())

	_, err = s.Ranking("none")
	assert.ErrorIs(t, err, rank.ErrEmptyRanking)
}

func TestWriteEnrichmentAndSignificant(t *testing.T) {
	s := openInMemory(t)
	require.NoError(t, s.WriteEnrichment("run1", testRuns()))

	sig, err := s.Significant("run1", "GO_BP", 0.05)
	require.NoError(t, err)
	require.Len(t, sig, 2)
	assert.Equal(t, "CELL_CYCLE", sig[0].SetName, "tie on adjusted p broken by |NES|")
	assert.Equal(t, []string{"CDK1"}, sig[0].LeadingEdge)
	assert.Equal(t, "APOPTOSIS", sig[1].SetName)
	assert.Equal(t, []string{"TP53", "BAX"}, sig[1].LeadingEdge)
	assert.Equal(t, 20, sig[1].Size)

	sig, err = s.Significant("run1", "KEGG", 0.05)
	require.NoError(t, err)
	assert.Empty(t, sig)

	statuses, err := s.CollectionRuns("run1")
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, enrich.StatusOK, statuses[0].Status)
	assert.Equal(t, 3, statuses[0].Tested)
	assert.Equal(t, enrich.StatusFailed, statuses[1].Status)
	assert.Contains(t, statuses[1].Error, "numerical error")
}

func TestWriteEnrichmentDeduplicates(t *testing.T) {
	s := openInMemory(t)
	runs := testRuns()
	runs = append(runs, runs[0])
	require.NoError(t, s.WriteEnrichment("run1", runs))

	sig, err := s.Significant("run1", "GO_BP", 1)
	require.NoError(t, err)
	assert.Len(t, sig, 3)
}

func TestLookupSetAcrossRuns(t *testing.T) {
	s := openInMemory(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"r1", "r2"} {
		require.NoError(t, s.WriteRun(testRun(id, id+"_cmp", base.Add(time.Duration(i)*time.Minute))))
		require.NoError(t, s.WriteEnrichment(id, testRuns()))
	}

	hits, err := s.LookupSet("GO_BP", "APOPTOSIS")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "r1", hits[0].RunID)
	assert.Equal(t, "r1_cmp", hits[0].Comparison)
	assert.Equal(t, "GO_BP", hits[0].Collection)
	assert.InDelta(t, 1.8, hits[0].Result.NES, 1e-12)

	hits, err = s.LookupSet("GO_BP", "NOPE")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDeleteRun(t *testing.T) {
	s := openInMemory(t)
	require.NoError(t, s.WriteRun(testRun("r1", "cmp", time.Now())))
	require.NoError(t, s.WriteEnrichment("r1", testRuns()))

	require.NoError(t, s.DeleteRun("r1"))

	runs, err := s.Runs()
	require.NoError(t, err)
	assert.Empty(t, runs)
	sig, err := s.Significant("r1", "GO_BP", 1)
	require.NoError(t, err)
	assert.Empty(t, sig)
}

func TestStatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "de.csv")
	require.NoError(t, os.WriteFile(path, []byte("gene,log2FoldChange,pvalue\n"), 0644))

	fp, err := StatFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, fp.Path)
	assert.Equal(t, int64(27), fp.Size)

	_, err = StatFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
