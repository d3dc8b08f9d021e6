package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
)

func money(v float64, decimals int) string {
	format := "#,###.##"
	if decimals == 0 {
		format = "#,###."
	}
	return "$" + humanize.FormatFloat(format, v)
}

// PrintSummary renders the summary block shown at the end of a CLI run.
func PrintSummary(w io.Writer, s Summary) {
	line := strings.Repeat("=", 60)
	fmt.Fprintln(w)
	fmt.Fprintln(w, line)
	fmt.Fprintln(w, "FILTER SUMMARY")
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "Cost Waste Prevented: %s\n", money(s.Metrics.CostWastePrevented, 2))
	fmt.Fprintf(w, "Cost Reduction: %.1f%%\n", s.Metrics.CostReductionPercentage)
	fmt.Fprintf(w, "Terms Excluded: %s / %s\n", humanize.Comma(int64(s.TermsExcluded)), humanize.Comma(int64(s.TotalTermsAnalyzed)))
	fmt.Fprintf(w, "  EXACT %d, PHRASE %d, BROAD %d\n", s.Counts.ByType["EXACT"], s.Counts.ByType["PHRASE"], s.Counts.ByType["BROAD"])
	fmt.Fprintf(w, "Quality Score: %.1f%%\n", s.Metrics.QualityScore)
	fmt.Fprintf(w, "Action Score: %d/100\n", s.Metrics.ActionScore)
	for _, rec := range s.Recommendation {
		fmt.Fprintf(w, "  - %s\n", rec)
	}
	fmt.Fprintln(w, line)
}
