// Package pipeline runs one comparison end to end: DE table to ranked
// gene list to per-collection enrichment to exported tables.
package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/inodb/vibe-gsea/internal/enrich"
	"github.com/inodb/vibe-gsea/internal/geneset"
	"github.com/inodb/vibe-gsea/internal/report"
)

// Defaults used by DefaultConfig.
const (
	DefaultMinSetSize = 15
	DefaultMaxSetSize = 500
	DefaultSeed       = 42
	DefaultOrganism   = "human"
)

// CollectionSource names a GMT file to load as one collection.
type CollectionSource struct {
	Name string
	Path string
}

// Config parameterizes one pipeline run.
type Config struct {
	Comparison   string // used in output file names
	Organism     string
	DEPath       string
	IDMapPath    string // optional BioMart export; gene ids are translated to symbols when set
	Collections  []CollectionSource
	MinSetSize   int
	MaxSetSize   int // enrich.NoMaxSize disables the bound
	Permutations int
	Seed         uint64
	Alpha        float64
	LFCThreshold float64
	Workers      int // 0 means one per CPU
	OutDir       string
	DBPath       string // optional DuckDB file; results are also stored there when set
}

// DefaultConfig returns a Config with default thresholds and no inputs.
func DefaultConfig() Config {
	return Config{
		Comparison:   "comparison",
		Organism:     DefaultOrganism,
		MinSetSize:   DefaultMinSetSize,
		MaxSetSize:   DefaultMaxSetSize,
		Permutations: enrich.DefaultPermutations,
		Seed:         DefaultSeed,
		Alpha:        report.DefaultAlpha,
		OutDir:       ".",
	}
}

// ConfigError is a fatal error that aborts a pipeline run.
type ConfigError struct {
	Stage string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Params returns the enrichment parameters of the config.
func (c Config) Params() enrich.Params {
	return enrich.Params{MinSize: c.MinSetSize, MaxSize: c.MaxSetSize, Seed: c.Seed}
}

// Validate checks everything that can be checked before reading any input.
func (c Config) Validate() error {
	if err := c.validateInput(); err != nil {
		return err
	}
	if len(c.Collections) == 0 {
		return &ConfigError{Stage: "gene sets", Err: geneset.ErrEmptyCollection}
	}
	seen := make(map[string]bool, len(c.Collections))
	names := make([]string, 0, len(c.Collections))
	for _, src := range c.Collections {
		if src.Name == "" || src.Path == "" {
			return &ConfigError{Stage: "gene sets", Err: fmt.Errorf("collection %q needs both a name and a path", src.Name)}
		}
		if seen[src.Name] {
			return &ConfigError{Stage: "gene sets", Err: fmt.Errorf("duplicate collection %q", src.Name)}
		}
		seen[src.Name] = true
		names = append(names, src.Name)
	}
	if err := report.CheckSheetNames(names); err != nil {
		return &ConfigError{Stage: "gene sets", Err: err}
	}
	if err := c.Params().Validate(); err != nil {
		return &ConfigError{Stage: "config", Err: err}
	}
	if c.Permutations < 1 {
		return &ConfigError{Stage: "config", Err: fmt.Errorf("permutations must be at least 1, got %d", c.Permutations)}
	}
	if c.Alpha <= 0 || c.Alpha > 1 {
		return &ConfigError{Stage: "config", Err: fmt.Errorf("alpha must be in (0, 1], got %g", c.Alpha)}
	}
	if c.Workers < 0 {
		return &ConfigError{Stage: "config", Err: fmt.Errorf("workers must not be negative, got %d", c.Workers)}
	}
	return nil
}

// validateInput checks what BuildRanking needs.
func (c Config) validateInput() error {
	if c.DEPath == "" {
		return &ConfigError{Stage: "config", Err: errors.New("no DE table given")}
	}
	if c.Comparison == "" || strings.ContainsAny(c.Comparison, `/\`) {
		return &ConfigError{Stage: "config", Err: fmt.Errorf("invalid comparison name %q", c.Comparison)}
	}
	return nil
}

// ResolveCollections finds the downloaded MSigDB files for categories in dir.
// Any missing category is a ConfigError.
func ResolveCollections(dir, organism string, categories []string) ([]CollectionSource, error) {
	found, missing := geneset.FindGMTFiles(dir, organism, categories)
	if len(missing) > 0 {
		return nil, &ConfigError{
			Stage: "gene sets",
			Err:   fmt.Errorf("%w: no %s file in %s for %s", geneset.ErrEmptyCollection, organism, dir, strings.Join(missing, ", ")),
		}
	}
	sources := make([]CollectionSource, 0, len(categories))
	for _, c := range categories {
		sources = append(sources, CollectionSource{Name: c, Path: found[c]})
	}
	return sources, nil
}
