package geneset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// MSigDB release used for downloads.
const (
	msigdbBaseURL = "https://data.broadinstitute.org/gsea-msigdb/msigdb/release"
	msigdbVersion = "2023.2"
)

// Collection category names. They double as spreadsheet sheet names.
const (
	CategoryGOBP     = "GO_BP"
	CategoryGOCC     = "GO_CC"
	CategoryGOMF     = "GO_MF"
	CategoryKEGG     = "KEGG"
	CategoryReactome = "REACTOME"
	CategoryHallmark = "HALLMARK"
)

// DefaultCategories are the collections tested when none are configured.
var DefaultCategories = []string{CategoryGOBP, CategoryGOCC, CategoryGOMF, CategoryKEGG}

// organism -> (MSigDB species suffix, category -> file prefix)
var catalogue = map[string]struct {
	suffix string
	files  map[string]string
}{
	"human": {
		suffix: "Hs",
		files: map[string]string{
			CategoryGOBP:     "c5.go.bp",
			CategoryGOCC:     "c5.go.cc",
			CategoryGOMF:     "c5.go.mf",
			CategoryKEGG:     "c2.cp.kegg_legacy",
			CategoryReactome: "c2.cp.reactome",
			CategoryHallmark: "h.all",
		},
	},
	"mouse": {
		suffix: "Mm",
		files: map[string]string{
			CategoryGOBP:     "m5.go.bp",
			CategoryGOCC:     "m5.go.cc",
			CategoryGOMF:     "m5.go.mf",
			CategoryReactome: "m2.cp.reactome",
			CategoryHallmark: "mh.all",
		},
	},
}

// Organisms returns the supported organism names.
func Organisms() []string {
	out := make([]string, 0, len(catalogue))
	for o := range catalogue {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}

// Categories returns the categories available for an organism.
func Categories(organism string) []string {
	entry, ok := catalogue[strings.ToLower(organism)]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(entry.files))
	for c := range entry.files {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// GMTFileName returns the MSigDB file name for organism and category.
func GMTFileName(organism, category string) (string, error) {
	entry, ok := catalogue[strings.ToLower(organism)]
	if !ok {
		return "", fmt.Errorf("unsupported organism %q (supported: %s)", organism, strings.Join(Organisms(), ", "))
	}
	prefix, ok := entry.files[strings.ToUpper(category)]
	if !ok {
		return "", fmt.Errorf("category %q not available for %s", category, organism)
	}
	return fmt.Sprintf("%s.v%s.%s.symbols.gmt", prefix, msigdbVersion, entry.suffix), nil
}

// GMTURL returns the download URL for organism and category.
func GMTURL(organism, category string) (string, error) {
	name, err := GMTFileName(organism, category)
	if err != nil {
		return "", err
	}
	suffix := catalogue[strings.ToLower(organism)].suffix
	return fmt.Sprintf("%s/%s.%s/%s", msigdbBaseURL, msigdbVersion, suffix, name), nil
}

// DefaultDir returns the default directory for downloaded collections.
func DefaultDir(organism string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".vibe-gsea", strings.ToLower(organism))
}

// FindGMTFiles looks up downloaded collection files in dir. It returns
// category -> path for the categories found and the list of missing ones.
func FindGMTFiles(dir, organism string, categories []string) (map[string]string, []string) {
	found := make(map[string]string)
	var missing []string
	for _, c := range categories {
		name, err := GMTFileName(organism, c)
		if err != nil {
			missing = append(missing, c)
			continue
		}
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, c)
			continue
		}
		found[c] = path
	}
	return found, missing
}

// Download fetches url to destPath through a temporary file. An existing
// destination is left untouched.
func Download(ctx context.Context, url, destPath string, progress io.Writer) error {
	if _, err := os.Stat(destPath); err == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download gene sets: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download gene sets: HTTP %s", resp.Status)
	}

	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	var body io.Reader = resp.Body
	if progress != nil {
		body = io.TeeReader(resp.Body, progress)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write gene sets: %w", err)
	}
	f.Close()

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename gene sets: %w", err)
	}
	return nil
}
