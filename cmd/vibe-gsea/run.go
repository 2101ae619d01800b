package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inodb/vibe-gsea/internal/enrich"
	"github.com/inodb/vibe-gsea/internal/geneset"
	"github.com/inodb/vibe-gsea/internal/pipeline"
)

func newRunCmd() *cobra.Command {
	defaults := pipeline.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "run <de-table>",
		Short: "Rank a DE table and run enrichment against gene-set collections",
		Long: `Rank genes from a DESeq2/limma results table and run preranked GSEA against
each gene-set collection in parallel. Writes <comparison>.rnk,
<comparison>_gsea.xlsx and one <comparison>_<collection>.tsv per collection.

A ranked list written by 'vibe-gsea rank' (a .rnk file) can be given in
place of the DE table. Use "-" to read the DE table from stdin.

Collections come from --gmt NAME=PATH, or from MSigDB files previously
fetched with 'vibe-gsea download' for --organism and --category.`,
		Example: `  vibe-gsea run results.csv
  vibe-gsea run --organism mouse --category GO_BP,REACTOME results.tsv.gz
  vibe-gsea run --gmt HALLMARK=h.all.v2023.2.Hs.symbols.gmt --nperm 10000 results.csv
  vibe-gsea run --id-map mart_export.txt --db ~/.vibe-gsea/results.duckdb results.csv
  vibe-gsea run --category HALLMARK ko_vs_wt.rnk`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gmts, err := cmd.Flags().GetStringArray("gmt")
			if err != nil {
				return err
			}
			return runPipeline(cmd, args[0], gmts)
		},
	}

	cmd.Flags().StringArray("gmt", nil, "Gene-set collection as NAME=PATH (repeatable; overrides --category)")
	cmd.Flags().StringSlice("category", geneset.DefaultCategories, "MSigDB categories to test: "+strings.Join(geneset.Categories(pipeline.DefaultOrganism), ", "))
	cmd.Flags().String("organism", defaults.Organism, "Organism: "+strings.Join(geneset.Organisms(), ", "))
	cmd.Flags().String("gmt-dir", "", "Directory with downloaded MSigDB files (default: ~/.vibe-gsea/<organism>)")
	cmd.Flags().String("comparison", "", "Comparison name used in output file names (default: DE table file name)")
	cmd.Flags().String("id-map", "", "BioMart export used to translate Ensembl ids to gene symbols")
	cmd.Flags().Int("min-size", defaults.MinSetSize, "Minimum gene-set overlap with the ranking")
	cmd.Flags().Int("max-size", defaults.MaxSetSize, "Maximum gene-set overlap with the ranking (0: no limit)")
	cmd.Flags().Int("nperm", defaults.Permutations, "Permutations per gene-set size")
	cmd.Flags().Uint64("seed", defaults.Seed, "Random seed for the permutation null")
	cmd.Flags().Float64("alpha", defaults.Alpha, "Adjusted p-value cutoff for significance")
	cmd.Flags().Float64("lfc-threshold", 0, "Absolute log2 fold-change threshold for the DE summary")
	cmd.Flags().Int("workers", 0, "Collections tested in parallel (0: one per CPU)")
	cmd.Flags().StringP("out", "o", ".", "Output directory")
	cmd.Flags().String("db", "", "Also store results in this DuckDB file")

	return cmd
}

func runPipeline(cmd *cobra.Command, dePath string, gmts []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg := pipeline.DefaultConfig()
	cfg.DEPath = dePath
	cfg.Organism = viper.GetString("organism")
	cfg.IDMapPath = viper.GetString("id-map")
	cfg.MinSetSize = viper.GetInt("min-size")
	cfg.MaxSetSize = viper.GetInt("max-size")
	if cfg.MaxSetSize <= 0 {
		cfg.MaxSetSize = enrich.NoMaxSize
	}
	cfg.Permutations = viper.GetInt("nperm")
	cfg.Seed = viper.GetUint64("seed")
	cfg.Alpha = viper.GetFloat64("alpha")
	cfg.LFCThreshold = viper.GetFloat64("lfc-threshold")
	cfg.Workers = viper.GetInt("workers")
	cfg.OutDir = viper.GetString("out")
	cfg.DBPath = viper.GetString("db")

	cfg.Comparison = viper.GetString("comparison")
	if cfg.Comparison == "" {
		cfg.Comparison = comparisonName(dePath)
	}

	if len(gmts) > 0 {
		for _, arg := range gmts {
			name, path, ok := strings.Cut(arg, "=")
			if !ok || name == "" || path == "" {
				return usageError{fmt.Errorf("invalid --gmt %q, expected NAME=PATH", arg)}
			}
			cfg.Collections = append(cfg.Collections, pipeline.CollectionSource{Name: name, Path: path})
		}
	} else {
		dir := viper.GetString("gmt-dir")
		if dir == "" {
			dir = geneset.DefaultDir(cfg.Organism)
		}
		cfg.Collections, err = pipeline.ResolveCollections(dir, cfg.Organism, viper.GetStringSlice("category"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Hint: Download gene sets with: vibe-gsea download --organism %s\n", cfg.Organism)
			return err
		}
	}

	rep, err := pipeline.Run(cmd.Context(), cfg, logger)
	if rep != nil {
		printReport(cmd, rep, cfg.Alpha)
	}
	if err != nil {
		return err
	}
	if failed := rep.Failed(); len(failed) > 0 {
		names := make([]string, len(failed))
		for i, run := range failed {
			names[i] = run.Collection
		}
		return fmt.Errorf("%w: %s", errPartialFailure, strings.Join(names, ", "))
	}
	return nil
}

func printReport(cmd *cobra.Command, rep *pipeline.Report, alpha float64) {
	out := cmd.OutOrStdout()
	d := rep.Ranked.Diagnostics
	s := rep.Ranked.DESummary

	fmt.Fprintf(out, "Comparison: %s (run %s)\n", rep.Comparison, rep.RunID)
	fmt.Fprintf(out, "  DE genes: %d up, %d down of %d (padj < %g)\n", s.Up, s.Down, s.Total, alpha)
	fmt.Fprintf(out, "  Ranked %d of %d rows (%d dropped: %d duplicate, %d no p-value, %d no fold change, %d no id)\n",
		d.Kept, d.Input, d.Dropped(), d.Duplicates, d.MissingPValue, d.MissingFoldChange, d.MissingID)

	names := make([]string, 0, len(rep.Runs))
	byName := make(map[string]*enrich.CollectionRun, len(rep.Runs))
	for _, run := range rep.Runs {
		names = append(names, run.Collection)
		byName[run.Collection] = run
	}
	sort.Strings(names)

	for _, name := range names {
		run := byName[name]
		if run.Status != enrich.StatusOK {
			fmt.Fprintf(out, "  %-10s FAILED: %v\n", name, run.Err)
			continue
		}
		sig := rep.Significant[name]
		fmt.Fprintf(out, "  %-10s %d sets tested, %d significant (%s)\n", name, run.Tested, len(sig), run.Duration.Round(time.Millisecond))
		for i, r := range sig {
			if i == 5 {
				fmt.Fprintf(out, "             ... %d more\n", len(sig)-5)
				break
			}
			fmt.Fprintf(out, "             %-50s NES %6.2f  padj %.3g\n", r.SetName, r.NES, r.AdjustedPValue)
		}
	}

	if len(rep.Outputs) > 0 {
		fmt.Fprintln(out, "Wrote:")
		for _, path := range rep.Outputs {
			fmt.Fprintf(out, "  %s\n", path)
		}
	}
}

// comparisonName derives an output prefix from a DE table path
// (results_treated_vs_control.csv.gz -> results_treated_vs_control).
func comparisonName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, ".gz")
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "-" || base == "." {
		return "comparison"
	}
	return base
}
