package geneset

import (
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGMT = "GOBP_APOPTOSIS\thttp://www.gsea-msigdb.org/apoptosis\tTP53\tBAX\tBCL2\tTP53\n" +
	"GOBP_CELL_CYCLE\tcell cycle\tCDK1\tCCNB1\n" +
	"\n" +
	"# comment\n" +
	"EMPTY_SET\tno members\n"

func TestParseGMT(t *testing.T) {
	c, err := ParseGMT(strings.NewReader(sampleGMT), CategoryGOBP)
	require.NoError(t, err)

	assert.Equal(t, CategoryGOBP, c.Name)
	assert.Equal(t, 3, c.Len())

	s, ok := c.Get("GOBP_APOPTOSIS")
	require.True(t, ok)
	assert.Equal(t, []string{"TP53", "BAX", "BCL2"}, s.Genes, "duplicates removed, order kept")
	assert.Equal(t, 3, s.Size())

	empty, ok := c.Get("EMPTY_SET")
	require.True(t, ok)
	assert.Equal(t, 0, empty.Size())

	names := []string{}
	for _, s := range c.Sets() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"EMPTY_SET", "GOBP_APOPTOSIS", "GOBP_CELL_CYCLE"}, names)
}

func TestParseGMT_Malformed(t *testing.T) {
	_, err := ParseGMT(strings.NewReader("ONLY_NAME\n"), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestCollection_Validate(t *testing.T) {
	var nilCollection *Collection
	assert.ErrorIs(t, nilCollection.Validate(), ErrEmptyCollection)
	assert.ErrorIs(t, NewCollection("x").Validate(), ErrEmptyCollection)

	c := NewCollection("x")
	c.Add(NewSet("s", "", []string{"A"}))
	assert.NoError(t, c.Validate())
}

func TestSet_Overlap(t *testing.T) {
	s := NewSet("s", "", []string{"A", "B", "C", "D"})
	universe := map[string]bool{"D": true, "A": true, "Z": true}
	assert.Equal(t, []string{"A", "D"}, s.Overlap(func(g string) bool { return universe[g] }))
	assert.Empty(t, s.Overlap(func(string) bool { return false }))
}

func TestLoadGMT_Gzipped(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "sets.gmt")
	require.NoError(t, os.WriteFile(plain, []byte(sampleGMT), 0o644))

	c, err := LoadGMT(plain, "plain")
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())

	gzPath := filepath.Join(dir, "sets.gmt.gz")
	writeGzip(t, gzPath, sampleGMT)
	c, err = LoadGMT(gzPath, "gz")
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())
}

func TestLoadGMT_Missing(t *testing.T) {
	_, err := LoadGMT(filepath.Join(t.TempDir(), "nope.gmt"), "x")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestGMTFileName(t *testing.T) {
	name, err := GMTFileName("human", "GO_BP")
	require.NoError(t, err)
	assert.Equal(t, "c5.go.bp.v2023.2.Hs.symbols.gmt", name)

	name, err = GMTFileName("Mouse", "go_mf")
	require.NoError(t, err)
	assert.Equal(t, "m5.go.mf.v2023.2.Mm.symbols.gmt", name)

	_, err = GMTFileName("mouse", CategoryKEGG)
	assert.Error(t, err)
	_, err = GMTFileName("yeast", CategoryGOBP)
	assert.Error(t, err)

	url, err := GMTURL("human", CategoryKEGG)
	require.NoError(t, err)
	assert.Equal(t, "https://data.broadinstitute.org/gsea-msigdb/msigdb/release/2023.2.Hs/c2.cp.kegg_legacy.v2023.2.Hs.symbols.gmt", url)
}

func TestCategories(t *testing.T) {
	assert.Contains(t, Categories("human"), CategoryKEGG)
	assert.NotContains(t, Categories("mouse"), CategoryKEGG)
	assert.Nil(t, Categories("yeast"))
	assert.Equal(t, []string{"human", "mouse"}, Organisms())
}

func TestFindGMTFiles(t *testing.T) {
	dir := t.TempDir()
	name, err := GMTFileName("human", CategoryGOBP)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(sampleGMT), 0o644))

	found, missing := FindGMTFiles(dir, "human", []string{CategoryGOBP, CategoryGOCC})
	assert.Equal(t, filepath.Join(dir, name), found[CategoryGOBP])
	assert.Equal(t, []string{CategoryGOCC}, missing)
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.gmt" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(sampleGMT))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "sets.gmt")
	require.NoError(t, Download(context.Background(), srv.URL+"/sets.gmt", dest, nil))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, sampleGMT, string(data))

	// existing file is kept
	require.NoError(t, Download(context.Background(), srv.URL+"/missing.gmt", dest, nil))

	err = Download(context.Background(), srv.URL+"/missing.gmt", dest+".2", nil)
	require.Error(t, err)
	_, statErr := os.Stat(dest + ".2.tmp")
	assert.True(t, os.IsNotExist(statErr))
}

func writeGzip(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
}
