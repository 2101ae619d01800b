// Package idmap translates gene identifiers (Ensembl gene ids) to gene
// symbols using a BioMart export, so DE tables can be matched against
// symbol-based gene-set collections.
package idmap

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/inodb/vibe-gsea/internal/deresult"
)

// Entry is one BioMart row.
type Entry struct {
	EnsemblID string
	Symbol    string
	EntrezID  string
}

// Map maps unversioned Ensembl gene ids to annotation entries.
type Map map[string]Entry

// Load reads a BioMart TSV export. The header must contain ensembl_gene_id
// and external_gene_name (or gene_symbol / hgnc_symbol / mgi_symbol);
// entrezgene_id is optional. Paths ending in .gtf or .gtf.gz are read
// with LoadGTF instead.
func Load(path string) (Map, error) {
	if IsGTF(path) {
		return LoadGTF(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open id map: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse parses BioMart TSV content.
func Parse(reader io.Reader) (Map, error) {
	m := make(Map)
	scanner := bufio.NewScanner(reader)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("scan id map: %w", err)
		}
		return m, nil
	}

	header := strings.Split(strings.TrimRight(scanner.Text(), "\r"), "\t")
	ensCol, symCol, entrezCol := -1, -1, -1
	for i, h := range header {
		switch strings.ToLower(h) {
		case "ensembl_gene_id", "gene stable id":
			ensCol = i
		case "external_gene_name", "gene_symbol", "hgnc_symbol", "mgi_symbol", "gene name":
			symCol = i
		case "entrezgene_id", "entrezgene", "ncbi gene (formerly entrezgene) id":
			entrezCol = i
		}
	}
	if ensCol == -1 || symCol == -1 {
		return nil, fmt.Errorf("id map header must contain ensembl_gene_id and external_gene_name")
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) <= max(ensCol, symCol) {
			continue
		}

		ens := StripVersion(fields[ensCol])
		sym := fields[symCol]
		if ens == "" || sym == "" {
			continue
		}
		// BioMart repeats a gene once per Entrez id; keep the first.
		if _, ok := m[ens]; ok {
			continue
		}

		e := Entry{EnsemblID: ens, Symbol: sym}
		if entrezCol >= 0 && entrezCol < len(fields) {
			e.EntrezID = fields[entrezCol]
		}
		m[ens] = e
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan id map: %w", err)
	}
	return m, nil
}

// Symbol returns the symbol for an Ensembl id (versioned or not).
func (m Map) Symbol(id string) (string, bool) {
	e, ok := m[StripVersion(id)]
	if !ok {
		return "", false
	}
	return e.Symbol, true
}

// Translate returns a copy of rows with gene ids replaced by symbols.
// Unmapped ids are kept unchanged. The second return value is the number
// of rows that were mapped.
func (m Map) Translate(rows []deresult.Result) ([]deresult.Result, int) {
	out := make([]deresult.Result, len(rows))
	mapped := 0
	for i, r := range rows {
		if sym, ok := m.Symbol(r.GeneID); ok {
			r.GeneID = sym
			mapped++
		}
		out[i] = r
	}
	return out, mapped
}

// StripVersion removes the version suffix from an Ensembl id
// (ENSG00000133703.12 -> ENSG00000133703).
func StripVersion(id string) string {
	if strings.HasPrefix(id, "ENS") {
		if i := strings.IndexByte(id, '.'); i > 0 {
			return id[:i]
		}
	}
	return id
}
