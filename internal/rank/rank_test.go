package rank

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v3"

	"github.com/inodb/vibe-gsea/internal/deresult"
)

func de(id string, lfc, p float64) deresult.Result {
	return deresult.Result{GeneID: id, Log2FoldChange: null.FloatFrom(lfc), PValue: null.FloatFrom(p)}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		lfc  float64
		p    float64
		want float64
	}{
		{"up", 2, 0.001, 3},
		{"down", -0.5, 0.01, -2},
		{"zero fold change", 0, 0.001, 0},
		{"p one", -1, 1, 0},
		{"zero p up", 2, 0, ZeroPValueScore},
		{"zero p down", -3, 0, -ZeroPValueScore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Score(tt.lfc, tt.p)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.False(t, math.IsInf(got, 0))
		})
	}
}

func TestScore_ZeroFoldChangeIsExactlyZero(t *testing.T) {
	got, err := Score(0, 0.001)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)
	assert.False(t, math.Signbit(got))
}

func TestScore_ZeroPValueOutranksSmallestNonZero(t *testing.T) {
	zero, err := Score(2, 0)
	require.NoError(t, err)
	tiny, err := Score(2, math.SmallestNonzeroFloat64)
	require.NoError(t, err)
	assert.Greater(t, zero, tiny)

	zeroDown, err := Score(-2, 0)
	require.NoError(t, err)
	tinyDown, err := Score(-2, math.SmallestNonzeroFloat64)
	require.NoError(t, err)
	assert.Less(t, zeroDown, tinyDown)
}

func TestScore_Invalid(t *testing.T) {
	_, err := Score(1, 1.5)
	assert.ErrorIs(t, err, ErrInvalidPValue)
	_, err = Score(1, -0.1)
	assert.ErrorIs(t, err, ErrInvalidPValue)
	_, err = Score(1, math.NaN())
	assert.ErrorIs(t, err, ErrInvalidPValue)
	_, err = Score(math.NaN(), 0.1)
	assert.ErrorIs(t, err, ErrUndefinedValue)
}

func TestBuild_SortedBijection(t *testing.T) {
	rows := []deresult.Result{
		de("A", 1, 0.5),
		de("B", -2, 1e-5),
		de("C", 3, 1e-8),
		de("D", 0, 1e-3),
		de("E", 2, 0),
		de("F", -1, 0.01),
	}

	l, err := Build(rows)
	require.NoError(t, err)
	require.Equal(t, len(rows), l.Len())

	genes := l.Genes()
	for i := 1; i < len(genes); i++ {
		assert.GreaterOrEqual(t, genes[i-1].Score, genes[i].Score)
	}

	ids := map[string]bool{}
	for _, g := range genes {
		ids[g.ID] = true
	}
	for _, r := range rows {
		assert.True(t, ids[r.GeneID], "missing %s", r.GeneID)
	}

	assert.Equal(t, "E", l.At(0).ID)
	assert.Equal(t, "B", l.At(l.Len()-1).ID)
	pos, ok := l.Position("D")
	require.True(t, ok)
	assert.Equal(t, 0.0, l.At(pos).Score)
}

func TestBuild_StableTies(t *testing.T) {
	l, err := Build([]deresult.Result{
		de("first", 1, 0.01),
		de("second", 2, 0.01),
		de("third", 0.1, 0.01),
	})
	require.NoError(t, err)

	var order []string
	for _, g := range l.Genes() {
		order = append(order, g.ID)
	}
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestBuild_Empty(t *testing.T) {
	_, err := Build(nil)
	assert.ErrorIs(t, err, ErrEmptyRanking)
}

func TestBuild_RejectsUncleanInput(t *testing.T) {
	_, err := Build([]deresult.Result{de("A", 1, 0.1), de("A", 1, 0.2)})
	assert.ErrorIs(t, err, ErrDuplicateGene)

	_, err = Build([]deresult.Result{{GeneID: "B", PValue: null.FloatFrom(0.1)}})
	assert.ErrorIs(t, err, ErrUndefinedValue)
}

func TestList_GenesIsRestartable(t *testing.T) {
	l, err := FromGenes([]Gene{{"A", 1}, {"B", 2}})
	require.NoError(t, err)

	first := l.Genes()
	first[0].ID = "mutated"
	second := l.Genes()
	assert.Equal(t, "B", second[0].ID)
	assert.Equal(t, first[1], second[1])
}

func TestRNKRoundTrip(t *testing.T) {
	l, err := FromGenes([]Gene{{"A", 5}, {"B", 3}, {"C", -1}, {"D", -4}, {"E", ZeroPValueScore}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteRNK(&buf, l))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5, "no header row")
	assert.True(t, strings.HasPrefix(lines[0], "E\t"))

	back, err := ReadRNK(&buf)
	require.NoError(t, err)
	require.Equal(t, l.Len(), back.Len())
	for i := 0; i < l.Len(); i++ {
		assert.Equal(t, l.At(i).ID, back.At(i).ID)
		assert.InDelta(t, l.At(i).Score, back.At(i).Score, 1e-9)
	}
}

func TestReadRNK_OptionalHeader(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"headerless", "TP53\t4.2\nKRAS\t-1.5\nMYC\t0.3\n"},
		{"header", "gene\trank\nTP53\t4.2\nKRAS\t-1.5\nMYC\t0.3\n"},
		{"comment", "# from fgsea\nTP53\t4.2\nMYC\t0.3\nKRAS\t-1.5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := ReadRNK(strings.NewReader(tt.input))
			require.NoError(t, err)
			require.Equal(t, 3, l.Len())
			assert.Equal(t, "TP53", l.At(0).ID)
			assert.Equal(t, "MYC", l.At(1).ID)
			assert.Equal(t, "KRAS", l.At(2).ID)
		})
	}
}

func TestReadRNK_Invalid(t *testing.T) {
	_, err := ReadRNK(strings.NewReader("gene_id\tscore\n"))
	assert.ErrorIs(t, err, ErrEmptyRanking)

	_, err = ReadRNK(strings.NewReader("A\t1\tx\n"))
	assert.Error(t, err)

	_, err = ReadRNK(strings.NewReader("A\t1\nB\tnot-a-number\n"))
	assert.Error(t, err)
}

func TestIsRNK(t *testing.T) {
	assert.True(t, IsRNK("de.rnk"))
	assert.True(t, IsRNK("/x/DE.RNK"))
	assert.False(t, IsRNK("de.tsv"))
}

func TestSummarize(t *testing.T) {
	l, err := FromGenes([]Gene{{"A", 5}, {"B", 3}, {"C", 0}, {"D", -1}, {"E", -4}})
	require.NoError(t, err)

	s, err := Summarize(l)
	require.NoError(t, err)
	assert.Equal(t, 5, s.N)
	assert.Equal(t, 2, s.Positive)
	assert.Equal(t, 2, s.Negative)
	assert.Equal(t, 1, s.Zero)
	assert.Equal(t, -4.0, s.Min)
	assert.Equal(t, 5.0, s.Max)
	assert.Equal(t, 0.0, s.Median)
}
