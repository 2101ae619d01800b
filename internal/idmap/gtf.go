package idmap

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/pgzip"
)

// IsGTF reports whether path names a GTF annotation file.
func IsGTF(path string) bool {
	p := strings.TrimSuffix(strings.ToLower(path), ".gz")
	return strings.HasSuffix(p, ".gtf")
}

// LoadGTF builds a Map from the gene records of a GENCODE or Ensembl GTF
// file (plain or gzipped).
func LoadGTF(path string) (Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open GTF file: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	magic, _ := br.Peek(2)

	var r io.Reader = br
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := pgzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	return ParseGTF(r)
}

// ParseGTF reads gene lines from GTF content. Transcript, exon and other
// feature lines are skipped, as are malformed lines.
func ParseGTF(reader io.Reader) (Map, error) {
	m := make(Map)
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 9 || fields[2] != "gene" {
			continue
		}

		attrs := parseAttributes(fields[8])
		id := StripVersion(attrs["gene_id"])
		name := attrs["gene_name"]
		if id == "" || name == "" {
			continue
		}
		// PAR genes appear twice (chrX and chrY) with the same id.
		if _, ok := m[id]; ok {
			continue
		}
		m[id] = Entry{EnsemblID: id, Symbol: name}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan GTF: %w", err)
	}
	return m, nil
}

// parseAttributes parses the GTF attribute column.
// Format: key "value"; key "value"; ...
func parseAttributes(attrStr string) map[string]string {
	attrs := make(map[string]string)
	for _, part := range strings.Split(attrStr, ";") {
		part = strings.TrimSpace(part)
		key, value, ok := strings.Cut(part, " ")
		if !ok {
			continue
		}
		// Repeated keys (tag) keep the first value.
		if _, seen := attrs[key]; seen {
			continue
		}
		attrs[key] = strings.Trim(strings.TrimSpace(value), "\"")
	}
	return attrs
}
