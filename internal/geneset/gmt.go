package geneset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/pgzip"
)

// ParseGMT parses Gene Matrix Transposed content: one set per line,
// tab-separated name, description, then member genes.
func ParseGMT(r io.Reader, name string) (*Collection, error) {
	c := NewCollection(name)
	scanner := bufio.NewScanner(r)
	// Large GO terms exceed bufio's default 64KB line limit.
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			return nil, fmt.Errorf("gmt line %d: expected name and description, found %d fields", lineNumber, len(fields))
		}
		if fields[0] == "" {
			return nil, fmt.Errorf("gmt line %d: empty set name", lineNumber)
		}
		c.Add(NewSet(fields[0], fields[1], fields[2:]))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan gmt: %w", err)
	}
	return c, nil
}

// LoadGMT reads a GMT file (plain or gzipped) into a collection.
func LoadGMT(path, name string) (*Collection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gmt file: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	magic, _ := br.Peek(2)

	var r io.Reader = br
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := pgzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	c, err := ParseGMT(r, name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
