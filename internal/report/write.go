package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"negfilter/internal/filter"
)

var verdictColumns = []string{
	"excluded_by_negatives",
	"exclusion_reason",
	"matched_negative_keyword",
	"matched_negative_match_type",
	"checked_at",
}

// WriteResults writes header followed by the verdict columns, one row per
// result with the original cells carried through untouched.
func WriteResults(w io.Writer, header []string, results []filter.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string(nil), header...), verdictColumns...)); err != nil {
		return err
	}
	for _, r := range results {
		row := make([]string, 0, len(header)+len(verdictColumns))
		row = append(row, r.Term.Fields...)
		for len(row) < len(header) {
			row = append(row, "")
		}
		row = append(row,
			strconv.FormatBool(r.Verdict.Excluded),
			r.Verdict.Reason,
			r.Verdict.MatchedRule,
			string(r.Verdict.MatchType),
			r.CheckedAt.Format(time.RFC3339),
		)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteNGrams(w io.Writer, grams []NGram) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"N-Gram", "Word Count", "Occurrence Count", "Clicks", "Cost", "Impressions"}); err != nil {
		return err
	}
	for _, g := range grams {
		if err := cw.Write([]string{
			g.Gram,
			strconv.Itoa(g.WordCount),
			strconv.Itoa(g.Occurrences),
			formatFloat(g.Clicks),
			formatFloat(g.Cost),
			formatFloat(g.Impressions),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteFile creates path (and its directory) and hands it to write.
func WriteFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
