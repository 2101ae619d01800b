package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inodb/vibe-gsea/internal/duckdb"
	"github.com/inodb/vibe-gsea/internal/enrich"
	"github.com/inodb/vibe-gsea/internal/rank"
	"github.com/inodb/vibe-gsea/internal/report"
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query stored enrichment results",
		Long: `Query runs stored with 'vibe-gsea run --db'. Without --run, lists runs.
With --run, lists collection outcomes, or the significant sets of one
--collection. With --set and --collection, shows that set across all runs.
--ranking prints the stored ranked list of a run as .rnk; --delete removes a run.`,
		Example: `  vibe-gsea query
  vibe-gsea query --run 3f2c... --collection GO_BP --alpha 0.01
  vibe-gsea query --run 3f2c... --ranking > ko_vs_wt.rnk
  vibe-gsea query --run 3f2c... --delete
  vibe-gsea query --collection KEGG --set KEGG_P53_SIGNALING_PATHWAY`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.OutOrStdout())
		},
	}

	cmd.Flags().String("db", defaultDBPath(), "DuckDB results file")
	cmd.Flags().String("run", "", "Run id")
	cmd.Flags().String("collection", "", "Collection name")
	cmd.Flags().String("set", "", "Gene-set name (requires --collection)")
	cmd.Flags().Float64("alpha", report.DefaultAlpha, "Adjusted p-value cutoff")
	cmd.Flags().Bool("ranking", false, "Print the ranked gene list of --run")
	cmd.Flags().Bool("delete", false, "Delete --run and its results")

	return cmd
}

func runQuery(out io.Writer) error {
	s, err := duckdb.Open(viper.GetString("db"))
	if err != nil {
		return err
	}
	defer s.Close()

	runID := viper.GetString("run")
	collection := viper.GetString("collection")
	setName := viper.GetString("set")

	if (viper.GetBool("ranking") || viper.GetBool("delete")) && runID == "" {
		return usageError{fmt.Errorf("--ranking and --delete require --run")}
	}

	switch {
	case viper.GetBool("delete"):
		return deleteRun(out, s, runID)
	case viper.GetBool("ranking"):
		l, err := s.Ranking(runID)
		if err != nil {
			return err
		}
		return rank.WriteRNK(out, l)
	case setName != "":
		if collection == "" {
			return usageError{fmt.Errorf("--set requires --collection")}
		}
		return querySet(out, s, collection, setName)
	case runID == "":
		return queryRuns(out, s)
	case collection == "":
		return queryCollections(out, s, runID)
	default:
		return querySignificant(out, s, runID, collection, viper.GetFloat64("alpha"))
	}
}

func queryRuns(out io.Writer, s *duckdb.Store) error {
	runs, err := s.Runs()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCREATED\tCOMPARISON\tORGANISM\tINPUT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Comparison, r.Organism, r.Input.Path)
	}
	return tw.Flush()
}

func queryCollections(out io.Writer, s *duckdb.Store, runID string) error {
	if _, err := s.Run(runID); err != nil {
		return err
	}
	statuses, err := s.CollectionRuns(runID)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLLECTION\tSTATUS\tTESTED\tEXCLUDED\tERROR")
	for _, c := range statuses {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", c.Collection, c.Status, c.Tested, c.Excluded, c.Error)
	}
	return tw.Flush()
}

func querySignificant(out io.Writer, s *duckdb.Store, runID, collection string, alpha float64) error {
	results, err := s.Significant(runID, collection, alpha)
	if err != nil {
		return err
	}
	w := report.NewTabWriter(out)
	if err := w.WriteHeader(); err != nil {
		return err
	}
	for _, row := range report.Flatten(results) {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Flush()
}

func deleteRun(out io.Writer, s *duckdb.Store, runID string) error {
	if _, err := s.Run(runID); err != nil {
		return err
	}
	if err := s.DeleteRun(runID); err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted run %s\n", runID)
	return nil
}

func querySet(out io.Writer, s *duckdb.Store, collection, setName string) error {
	hits, err := s.LookupSet(collection, setName)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		return fmt.Errorf("set %s not found in %s", setName, collection)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCOMPARISON\tNES\tPADJ\tSIZE\tLEADING_EDGE")
	for _, h := range hits {
		row := report.Flatten([]enrich.Result{h.Result})[0]
		fmt.Fprintf(tw, "%s\t%s\t%.3f\t%.3g\t%d\t%s\n",
			h.RunID, h.Comparison, row.NES, row.AdjustedPValue, row.Size, row.LeadingEdge)
	}
	return tw.Flush()
}
