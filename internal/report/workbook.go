package report

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/inodb/vibe-gsea/internal/enrich"
	"github.com/inodb/vibe-gsea/internal/rank"
)

// Sheet names besides the per-collection sheets.
const (
	SummarySheet = "summary"
	RankingSheet = "ranking"
)

// SummaryColumns are the columns of the summary sheet.
var SummaryColumns = []string{"collection", "status", "tested", "excluded", "significant", "error"}

// WriteWorkbook writes one sheet per collection run (all tested sets in
// significance order), a summary sheet with per-collection status, and,
// if ranking is non-nil, the ranked gene list.
func WriteWorkbook(path string, ranking *rank.List, runs []*enrich.CollectionRun, alpha float64) error {
	names := make([]string, 0, len(runs))
	for _, run := range runs {
		if run.Status == enrich.StatusOK {
			names = append(names, run.Collection)
		}
	}
	if err := CheckSheetNames(names); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	if err := setRow(f, SummarySheet, 1, toAny(SummaryColumns)); err != nil {
		return err
	}

	for i, run := range runs {
		errMsg := ""
		if run.Err != nil {
			errMsg = run.Err.Error()
		}
		summary := []any{
			run.Collection, string(run.Status), run.Tested, run.Excluded,
			len(FilterSignificant(run.Results, alpha)), errMsg,
		}
		if err := setRow(f, SummarySheet, i+2, summary); err != nil {
			return err
		}

		if run.Status != enrich.StatusOK {
			continue
		}
		if err := writeCollectionSheet(f, SheetName(run.Collection), run.Results); err != nil {
			return err
		}
	}

	if ranking != nil {
		if err := writeRankingSheet(f, ranking); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeCollectionSheet(f *excelize.File, sheet string, results []enrich.Result) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}
	if err := setRow(f, sheet, 1, toAny(Columns)); err != nil {
		return err
	}

	sorted := make([]enrich.Result, len(results))
	copy(sorted, results)
	SortBySignificance(sorted)

	for i, row := range Flatten(sorted) {
		if err := setRow(f, sheet, i+2, row.Values()); err != nil {
			return err
		}
	}
	return nil
}

func writeRankingSheet(f *excelize.File, ranking *rank.List) error {
	if _, err := f.NewSheet(RankingSheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", RankingSheet, err)
	}
	if err := setRow(f, RankingSheet, 1, []any{"gene_id", "score"}); err != nil {
		return err
	}
	for i, g := range ranking.Genes() {
		if err := setRow(f, RankingSheet, i+2, []any{g.ID, g.Score}); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

// maxSheetName is Excel's worksheet name limit, in characters.
const maxSheetName = 31

// SheetName makes a collection name usable as a worksheet name: Excel
// forbids []:*?/\ and limits names to 31 characters. Names matching a
// fixed sheet, compared case-insensitively as Excel does, get a "set_" prefix.
func SheetName(collection string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', ':', '*', '?', '/', '\\':
			return '_'
		}
		return r
	}, collection)
	if name == "" || strings.EqualFold(name, SummarySheet) || strings.EqualFold(name, RankingSheet) {
		name = "set_" + name
	}
	if r := []rune(name); len(r) > maxSheetName {
		name = string(r[:maxSheetName])
	}
	return name
}

// CheckSheetNames returns an error if two collections map to the same
// worksheet (and output file) name.
func CheckSheetNames(collections []string) error {
	taken := map[string]string{
		SummarySheet: SummarySheet,
		RankingSheet: RankingSheet,
	}
	for _, c := range collections {
		key := strings.ToLower(SheetName(c))
		if other, ok := taken[key]; ok {
			return fmt.Errorf("collections %q and %q both map to sheet %q", other, c, SheetName(c))
		}
		taken[key] = c
	}
	return nil
}

func toAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
