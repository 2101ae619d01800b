package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/inodb/vibe-gsea/internal/deresult"
	"github.com/inodb/vibe-gsea/internal/duckdb"
	"github.com/inodb/vibe-gsea/internal/enrich"
	"github.com/inodb/vibe-gsea/internal/geneset"
	"github.com/inodb/vibe-gsea/internal/idmap"
	"github.com/inodb/vibe-gsea/internal/rank"
	"github.com/inodb/vibe-gsea/internal/report"
)

// stdinPath is the DE path that reads standard input.
const stdinPath = "-"

// Ranked is the ranking stage output with its data-quality diagnostics.
type Ranked struct {
	List        *rank.List
	Summary     rank.Summary
	Diagnostics deresult.Diagnostics
	DESummary   deresult.Summary
	Mapped      int // ids translated through the id map
}

// Report is the outcome of one pipeline run.
type Report struct {
	RunID       string
	Comparison  string
	Ranked      *Ranked
	Runs        []*enrich.CollectionRun
	Significant map[string][]enrich.Result // by collection, in reporting order
	Outputs     []string
}

// Failed returns the collection runs that did not complete.
func (r *Report) Failed() []*enrich.CollectionRun {
	var failed []*enrich.CollectionRun
	for _, run := range r.Runs {
		if run.Status != enrich.StatusOK {
			failed = append(failed, run)
		}
	}
	return failed
}

// BuildRanking reads the DE table, optionally translates ids, normalizes the
// rows and builds the ranked list. Dropped rows are reported in Diagnostics.
// A path ending in .rnk is read as a ready ranking.
func BuildRanking(cfg Config, logger *zap.Logger) (*Ranked, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.validateInput(); err != nil {
		return nil, err
	}

	if rank.IsRNK(cfg.DEPath) {
		return loadRanking(cfg)
	}

	rows, err := deresult.ReadAll(cfg.DEPath)
	if err != nil {
		return nil, &ConfigError{Stage: "DE table", Err: err}
	}
	out := &Ranked{DESummary: deresult.Summarize(rows, cfg.Alpha, cfg.LFCThreshold)}

	if cfg.IDMapPath != "" {
		m, err := idmap.Load(cfg.IDMapPath)
		if err != nil {
			return nil, &ConfigError{Stage: "id map", Err: err}
		}
		rows, out.Mapped = m.Translate(rows)
		logger.Info("translated gene ids",
			zap.Int("mapped", out.Mapped),
			zap.Int("rows", len(rows)))
	}

	clean, diag := deresult.Normalize(rows)
	out.Diagnostics = diag
	if diag.Dropped() > 0 {
		logger.Warn("dropped DE rows",
			zap.Int("input", diag.Input),
			zap.Int("kept", diag.Kept),
			zap.Int("missing_id", diag.MissingID),
			zap.Int("duplicates", diag.Duplicates),
			zap.Int("missing_pvalue", diag.MissingPValue),
			zap.Int("invalid_pvalue", diag.InvalidPValue),
			zap.Int("missing_log2fc", diag.MissingFoldChange))
	}

	out.List, err = rank.Build(clean)
	if err != nil {
		return nil, &ConfigError{Stage: "ranking", Err: err}
	}
	out.Summary, err = rank.Summarize(out.List)
	if err != nil {
		return nil, &ConfigError{Stage: "ranking", Err: err}
	}
	return out, nil
}

// loadRanking reads a precomputed .rnk ranking. There are no DE rows to
// translate or summarize.
func loadRanking(cfg Config) (*Ranked, error) {
	if cfg.IDMapPath != "" {
		return nil, &ConfigError{Stage: "id map", Err: errors.New("an id map cannot be applied to a .rnk input")}
	}
	l, err := rank.ReadRNKFile(cfg.DEPath)
	if err != nil {
		return nil, &ConfigError{Stage: "ranking", Err: err}
	}
	out := &Ranked{
		List:        l,
		Diagnostics: deresult.Diagnostics{Input: l.Len(), Kept: l.Len()},
	}
	out.Summary, err = rank.Summarize(l)
	if err != nil {
		return nil, &ConfigError{Stage: "ranking", Err: err}
	}
	return out, nil
}

// LoadCollections loads every collection concurrently. It fails if any file
// cannot be read or holds no gene sets.
func LoadCollections(ctx context.Context, sources []CollectionSource, workers int) ([]*geneset.Collection, error) {
	if len(sources) == 0 {
		return nil, &ConfigError{Stage: "gene sets", Err: geneset.ErrEmptyCollection}
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	collections := make([]*geneset.Collection, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, src := range sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			c, err := geneset.LoadGMT(src.Path, src.Name)
			if err != nil {
				return err
			}
			if err := c.Validate(); err != nil {
				return fmt.Errorf("%s: %w", src.Path, err)
			}
			collections[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &ConfigError{Stage: "gene sets", Err: err}
	}
	return collections, nil
}

// Run executes the full pipeline for one comparison. Configuration errors
// abort the run and are returned as *ConfigError. Failures inside one
// collection's enrichment are recorded in the report instead.
func Run(ctx context.Context, cfg Config, logger *zap.Logger) (*Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rep := &Report{
		RunID:       duckdb.NewRunID(),
		Comparison:  cfg.Comparison,
		Significant: make(map[string][]enrich.Result),
	}
	logger = logger.With(zap.String("run_id", rep.RunID), zap.String("comparison", cfg.Comparison))

	ranked, err := BuildRanking(cfg, logger)
	if err != nil {
		return nil, err
	}
	rep.Ranked = ranked
	logger.Info("built ranking",
		zap.Int("genes", ranked.Summary.N),
		zap.Int("positive", ranked.Summary.Positive),
		zap.Int("negative", ranked.Summary.Negative))

	// All inputs are loaded before any enrichment starts.
	collections, err := LoadCollections(ctx, cfg.Collections, cfg.Workers)
	if err != nil {
		return nil, err
	}

	runner := enrich.NewRunner(enrich.NewPrerank(cfg.Permutations))
	runner.SetLogger(logger)
	rep.Runs, err = runner.RunAll(ctx, ranked.List, collections, cfg.Params(), cfg.Workers)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ConfigError{Stage: "enrichment", Err: err}
	}

	for _, run := range rep.Runs {
		if run.Status == enrich.StatusOK {
			rep.Significant[run.Collection] = report.FilterSignificant(run.Results, cfg.Alpha)
		}
	}

	if err := writeOutputs(cfg, rep); err != nil {
		return rep, err
	}
	if cfg.DBPath != "" {
		if err := store(cfg, rep); err != nil {
			return rep, err
		}
	}

	for _, run := range rep.Failed() {
		logger.Warn("collection failed", zap.String("collection", run.Collection), zap.Error(run.Err))
	}
	return rep, nil
}

// OutputPaths returns the ranking and workbook paths Run writes for cfg.
func OutputPaths(cfg Config) (rnk, workbook string) {
	return filepath.Join(cfg.OutDir, cfg.Comparison+".rnk"),
		filepath.Join(cfg.OutDir, cfg.Comparison+"_gsea.xlsx")
}

// TablePath returns the tab-delimited output path for one collection.
func TablePath(cfg Config, collection string) string {
	return filepath.Join(cfg.OutDir, cfg.Comparison+"_"+report.SheetName(collection)+".tsv")
}

func writeOutputs(cfg Config, rep *Report) error {
	if err := os.MkdirAll(cfg.OutDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	rnkPath, xlsxPath := OutputPaths(cfg)
	if err := rank.WriteRNKFile(rnkPath, rep.Ranked.List); err != nil {
		return fmt.Errorf("write ranking: %w", err)
	}
	rep.Outputs = append(rep.Outputs, rnkPath)

	for _, run := range rep.Runs {
		if run.Status != enrich.StatusOK {
			continue
		}
		path := TablePath(cfg, run.Collection)
		if err := writeTable(path, run.Results); err != nil {
			return fmt.Errorf("write %s table: %w", run.Collection, err)
		}
		rep.Outputs = append(rep.Outputs, path)
	}

	if err := report.WriteWorkbook(xlsxPath, rep.Ranked.List, rep.Runs, cfg.Alpha); err != nil {
		return err
	}
	rep.Outputs = append(rep.Outputs, xlsxPath)
	return nil
}

func writeTable(path string, results []enrich.Result) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	sorted := make([]enrich.Result, len(results))
	copy(sorted, results)
	report.SortBySignificance(sorted)

	w := report.NewTabWriter(f)
	if err := w.WriteHeader(); err != nil {
		return err
	}
	for _, row := range report.Flatten(sorted) {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Flush()
}

func store(cfg Config, rep *Report) error {
	s, err := duckdb.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()

	input := duckdb.FileFingerprint{Path: cfg.DEPath}
	if cfg.DEPath != stdinPath {
		if input, err = duckdb.StatFile(cfg.DEPath); err != nil {
			return fmt.Errorf("stat DE table: %w", err)
		}
	}
	rec := duckdb.RunRecord{
		ID:           rep.RunID,
		Comparison:   cfg.Comparison,
		Organism:     cfg.Organism,
		Input:        input,
		MinSetSize:   cfg.MinSetSize,
		MaxSetSize:   cfg.MaxSetSize,
		Permutations: cfg.Permutations,
		Seed:         cfg.Seed,
		Alpha:        cfg.Alpha,
	}
	if err := s.WriteRun(rec); err != nil {
		return err
	}
	if err := s.WriteRanking(rep.RunID, rep.Ranked.List); err != nil {
		return err
	}
	if err := s.WriteEnrichment(rep.RunID, rep.Runs); err != nil {
		return err
	}
	return nil
}

// IsConfigError reports whether err aborted a run before any result was produced.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
