package rank

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
)

type rnkRow struct {
	GeneID string  `csv:"gene_id"`
	Score  float64 `csv:"score"`
}

// IsRNK reports whether path names a ranked gene list.
func IsRNK(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".rnk")
}

// WriteRNK writes the ranking as a headerless two-column tab-delimited
// table (gene id, score), readable by GSEA preranked and fgsea.
func WriteRNK(w io.Writer, l *List) error {
	rows := make([]*rnkRow, l.Len())
	for i, g := range l.genes {
		rows[i] = &rnkRow{GeneID: g.ID, Score: g.Score}
	}

	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := gocsv.MarshalCSVWithoutHeaders(&rows, gocsv.NewSafeCSVWriter(cw)); err != nil {
		return fmt.Errorf("write rnk: %w", err)
	}
	return nil
}

// WriteRNKFile writes the ranking to path.
func WriteRNKFile(path string, l *List) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create rnk file: %w", err)
	}
	if err := WriteRNK(f, l); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// rnkReader drops a leading header row, so files with and without one
// decode the same way.
type rnkReader struct {
	*csv.Reader
}

func (r rnkReader) ReadAll() ([][]string, error) {
	records, err := r.Reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		if _, err := strconv.ParseFloat(strings.TrimSpace(records[0][1]), 64); err != nil {
			records = records[1:]
		}
	}
	return records, nil
}

// ReadRNK reads a two-column ranking. A header row is optional and lines
// starting with '#' are ignored.
func ReadRNK(r io.Reader) (*List, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.Comment = '#'
	cr.FieldsPerRecord = 2

	var rows []*rnkRow
	if err := gocsv.UnmarshalCSVWithoutHeaders(rnkReader{cr}, &rows); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return nil, ErrEmptyRanking
		}
		return nil, fmt.Errorf("read rnk: %w", err)
	}

	genes := make([]Gene, len(rows))
	for i, row := range rows {
		genes[i] = Gene{ID: strings.TrimSpace(row.GeneID), Score: row.Score}
	}
	return FromGenes(genes)
}

// ReadRNKFile reads a ranking from path.
func ReadRNKFile(path string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rnk file: %w", err)
	}
	defer f.Close()
	return ReadRNK(f)
}
