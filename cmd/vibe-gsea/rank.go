package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inodb/vibe-gsea/internal/pipeline"
	"github.com/inodb/vibe-gsea/internal/rank"
)

func newRankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rank <de-table>",
		Short: "Write the ranked gene list of a DE table",
		Long: `Normalize a DE results table and write the ranked gene list as a two-column
.rnk table (gene_id, score), sorted by score descending. Usable with any
preranked enrichment tool.`,
		Example: `  vibe-gsea rank results.csv -o results.rnk
  vibe-gsea rank --id-map mart_export.txt results.tsv > results.rnk`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRank(cmd, args[0])
		},
	}

	cmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")
	cmd.Flags().String("id-map", "", "BioMart export used to translate Ensembl ids to gene symbols")

	return cmd
}

func runRank(cmd *cobra.Command, dePath string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg := pipeline.DefaultConfig()
	cfg.DEPath = dePath
	cfg.IDMapPath = viper.GetString("id-map")

	ranked, err := pipeline.BuildRanking(cfg, logger)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Hint: Check that the file path is correct\n")
		}
		return err
	}

	s := ranked.Summary
	fmt.Fprintf(os.Stderr, "Ranked %d genes (%d positive, %d negative, %d zero; median %.3g, range %.3g to %.3g)\n",
		s.N, s.Positive, s.Negative, s.Zero, s.Median, s.Min, s.Max)

	output := viper.GetString("output")
	if output == "" {
		return rank.WriteRNK(cmd.OutOrStdout(), ranked.List)
	}
	if err := rank.WriteRNKFile(output, ranked.List); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", output)
	return nil
}
