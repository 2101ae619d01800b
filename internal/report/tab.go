package report

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// TabWriter writes enrichment rows in tab-delimited format.
type TabWriter struct {
	w *bufio.Writer
}

// NewTabWriter creates a new tab-delimited writer.
func NewTabWriter(w io.Writer) *TabWriter {
	return &TabWriter{w: bufio.NewWriter(w)}
}

// WriteHeader writes the header line.
func (tw *TabWriter) WriteHeader() error {
	_, err := tw.w.WriteString(strings.Join(Columns, "\t") + "\n")
	return err
}

// Write writes a single row. An empty leading edge is written as "-".
func (tw *TabWriter) Write(r Row) error {
	leadingEdge := r.LeadingEdge
	if leadingEdge == "" {
		leadingEdge = "-"
	}

	values := []string{
		r.SetName,
		formatFloat(r.PValue),
		formatFloat(r.AdjustedPValue),
		formatFloat(r.NES),
		strconv.Itoa(r.Size),
		leadingEdge,
	}

	_, err := tw.w.WriteString(strings.Join(values, "\t") + "\n")
	return err
}

// Flush flushes any buffered data to the underlying writer.
func (tw *TabWriter) Flush() error {
	return tw.w.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
