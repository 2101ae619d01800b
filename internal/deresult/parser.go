package deresult

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/pgzip"
	"gopkg.in/guregu/null.v3"
)

// Accepted header names per column. DESeq2, limma and snake_case exports are covered.
var (
	geneIDColumns    = []string{"gene_id", "gene", "symbol", "gene_symbol", "ensembl_gene_id", "id"}
	baseMeanColumns  = []string{"baseMean", "base_mean", "AveExpr"}
	foldColumns      = []string{"log2FoldChange", "log2_fold_change", "logFC"}
	lfcSEColumns     = []string{"lfcSE", "lfc_se"}
	statColumns      = []string{"stat", "t"}
	pValueColumns    = []string{"pvalue", "p_value", "P.Value"}
	adjPValueColumns = []string{"padj", "adjusted_p_value", "adj.P.Val", "FDR"}
)

// ColumnIndices holds the resolved positions of DE table columns (-1 if absent).
type ColumnIndices struct {
	GeneID         int
	BaseMean       int
	Log2FoldChange int
	LfcSE          int
	Stat           int
	PValue         int
	AdjustedPValue int
}

// Parser reads Result rows from a delimited DE table.
type Parser struct {
	records    *csv.Reader
	file       *os.File
	gzipReader *pgzip.Reader
	skipped    int // blank and comment lines before the header
	lineNumber int
	columns    ColumnIndices
	headerLen  int
}

// NewParser opens a DE table. Plain and gzipped files are supported; "-" reads stdin.
func NewParser(path string) (*Parser, error) {
	if path == "-" {
		return NewParserFromReader(os.Stdin)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open de table: %w", err)
	}

	p := &Parser{file: file}

	buf := make([]byte, 2)
	if _, err := io.ReadFull(file, buf); err != nil {
		file.Close()
		return nil, fmt.Errorf("read de table header: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("seek de table: %w", err)
	}

	var r io.Reader = file
	// gzip magic number (0x1f, 0x8b)
	if buf[0] == 0x1f && buf[1] == 0x8b {
		p.gzipReader, err = pgzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		r = p.gzipReader
	}

	if err := p.parseHeader(r); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// NewParserFromReader creates a parser from an io.Reader.
func NewParserFromReader(r io.Reader) (*Parser, error) {
	p := &Parser{}
	if err := p.parseHeader(r); err != nil {
		return nil, err
	}
	return p, nil
}

// ReadAll reads every row of the DE table at path.
func ReadAll(path string) ([]Result, error) {
	p, err := NewParser(path)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	var rows []Result
	for {
		r, err := p.Next()
		if err != nil {
			return nil, err
		}
		if r == nil {
			return rows, nil
		}
		rows = append(rows, *r)
	}
}

// parseHeader skips leading blank and comment lines, picks the delimiter
// from the header line and sets up a quote-aware record reader from there.
func (p *Parser) parseHeader(r io.Reader) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF {
				return &ParseError{Line: p.skipped, Message: "no header line found"}
			}
			return fmt.Errorf("read header: %w", err)
		}

		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			p.skipped++
			continue
		}

		comma := '\t'
		if !strings.Contains(trimmed, "\t") && strings.Contains(trimmed, ",") {
			comma = ','
		}
		p.records = newRecordReader(io.MultiReader(strings.NewReader(line), br), comma)
		break
	}

	header, err := p.records.Read()
	if err != nil {
		return p.readError(err)
	}
	p.lineNumber = p.skipped + 1
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return p.parseColumnIndices(header)
}

// newRecordReader reads R/pandas style exports: quoted fields may hold the
// delimiter, and data rows may carry one more field than the header.
func newRecordReader(r io.Reader, comma rune) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

func (p *Parser) readError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &ParseError{Line: p.skipped + pe.Line, Message: pe.Err.Error()}
	}
	return fmt.Errorf("read de table: %w", err)
}

func (p *Parser) parseColumnIndices(columns []string) error {
	p.headerLen = len(columns)
	p.columns = ColumnIndices{
		GeneID:         indexOf(columns, geneIDColumns),
		BaseMean:       indexOf(columns, baseMeanColumns),
		Log2FoldChange: indexOf(columns, foldColumns),
		LfcSE:          indexOf(columns, lfcSEColumns),
		Stat:           indexOf(columns, statColumns),
		PValue:         indexOf(columns, pValueColumns),
		AdjustedPValue: indexOf(columns, adjPValueColumns),
	}

	// write.csv(row.names=TRUE) leaves the first header cell empty.
	if p.columns.GeneID == -1 && len(columns) > 0 && columns[0] == "" {
		p.columns.GeneID = 0
	}

	if p.columns.Log2FoldChange == -1 {
		return &ParseError{Line: p.lineNumber, Message: "required column 'log2FoldChange' not found in header"}
	}
	if p.columns.PValue == -1 {
		return &ParseError{Line: p.lineNumber, Message: "required column 'pvalue' not found in header"}
	}
	return nil
}

// Next reads the next row. Returns nil, nil at end of input.
func (p *Parser) Next() (*Result, error) {
	fields, err := p.records.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, p.readError(err)
	}
	line, _ := p.records.FieldPos(0)
	p.lineNumber = p.skipped + line
	return p.parseFields(fields)
}

func (p *Parser) parseFields(fields []string) (*Result, error) {
	if len(fields) != p.headerLen && len(fields) != p.headerLen+1 {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("expected %d columns, found %d", p.headerLen, len(fields)),
		}
	}

	cols := p.columns
	// write.table(row.names=TRUE) omits the header cell for row names,
	// so data rows carry one more field than the header.
	if len(fields) == p.headerLen+1 {
		cols = shift(cols)
		if cols.GeneID == -1 {
			cols.GeneID = 0
		}
	}
	if cols.GeneID == -1 {
		return nil, &ParseError{Line: p.lineNumber, Message: "no gene identifier column"}
	}

	r := &Result{GeneID: strings.TrimSpace(fields[cols.GeneID])}
	targets := []struct {
		idx  int
		dest *null.Float
	}{
		{cols.BaseMean, &r.BaseMean},
		{cols.Log2FoldChange, &r.Log2FoldChange},
		{cols.LfcSE, &r.LfcSE},
		{cols.Stat, &r.Stat},
		{cols.PValue, &r.PValue},
		{cols.AdjustedPValue, &r.AdjustedPValue},
	}
	for _, t := range targets {
		if t.idx < 0 || t.idx >= len(fields) {
			continue
		}
		f, err := parseFloat(fields[t.idx])
		if err != nil {
			return nil, &ParseError{
				Line:    p.lineNumber,
				Message: fmt.Sprintf("invalid number %q", fields[t.idx]),
			}
		}
		*t.dest = f
	}
	return r, nil
}

// parseFloat maps R missing-value markers to null.
func parseFloat(s string) (null.Float, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "", "NA", "NaN", "nan", "null", "NULL":
		return null.Float{}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return null.Float{}, err
	}
	return null.FloatFrom(v), nil
}

func indexOf(columns, names []string) int {
	for i, c := range columns {
		for _, n := range names {
			if c == n {
				return i
			}
		}
	}
	return -1
}

func shift(c ColumnIndices) ColumnIndices {
	inc := func(i int) int {
		if i < 0 {
			return i
		}
		return i + 1
	}
	return ColumnIndices{
		GeneID:         inc(c.GeneID),
		BaseMean:       inc(c.BaseMean),
		Log2FoldChange: inc(c.Log2FoldChange),
		LfcSE:          inc(c.LfcSE),
		Stat:           inc(c.Stat),
		PValue:         inc(c.PValue),
		AdjustedPValue: inc(c.AdjustedPValue),
	}
}

// Close closes the parser and underlying file.
func (p *Parser) Close() error {
	if p.gzipReader != nil {
		p.gzipReader.Close()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

// ParseError represents an error during DE table parsing with line context.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("de table parse error at line %d: %s", e.Line, e.Message)
}
