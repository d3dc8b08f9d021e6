package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"negfilter/internal/batch"
	"negfilter/internal/report"
	"negfilter/internal/store"
)

type filterFlags struct {
	terms     string
	negatives string
	list      string
	output    string
	audit     string
	analyze   string
	analytics string
	quiet     bool
}

func NewFilterCmd() *cobra.Command {
	var f filterFlags
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Filter a search term report against negative keywords",
		Example: `  negfilter filter --terms terms.csv --negatives negatives.csv --output review.csv
  negfilter filter --terms terms.csv --list brand --output review.csv --audit-output audit.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFilter(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.terms, "terms", "", "Search terms file (CSV, TSV or XLSX)")
	cmd.Flags().StringVar(&f.negatives, "negatives", "", "Negative keywords file (CSV, TSV or XLSX)")
	cmd.Flags().StringVar(&f.list, "list", "", "Stored rule list to use instead of --negatives")
	cmd.Flags().StringVar(&f.output, "output", "", "Review CSV of terms that were not excluded")
	cmd.Flags().StringVar(&f.audit, "audit-output", "", "Audit CSV with a verdict for every term")
	cmd.Flags().StringVar(&f.analyze, "analyze-output", "", "N-gram analysis CSV of the remaining terms (the remaining terms themselves go to --output)")
	cmd.Flags().StringVar(&f.analytics, "analytics-output", "", "Executive summary JSON")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "Do not print the summary block")
	_ = cmd.MarkFlagRequired("terms")
	_ = cmd.MarkFlagRequired("output")
	cmd.MarkFlagsMutuallyExclusive("negatives", "list")
	return cmd
}

func runFilter(cmd *cobra.Command, f filterFlags) error {
	if f.negatives == "" && f.list == "" {
		return errors.New("one of --negatives or --list is required")
	}
	var st *store.Store
	if f.list != "" {
		opened, closeFn, err := openStore()
		if err != nil {
			return err
		}
		defer closeFn()
		st = opened
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	job := batch.Job{
		Name:          "cli",
		Source:        "cli",
		TermsPath:     f.terms,
		NegativesPath: f.negatives,
		RuleList:      f.list,
		Outputs: batch.Outputs{
			Review:  f.output,
			Audit:   f.audit,
			NGrams:  f.analyze,
			Summary: f.analytics,
		},
	}
	out, err := newExecutor(st).Execute(ctx, job)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Filtering complete. Excluded %d terms. Remaining %d terms for review.\n",
		out.Summary.TermsExcluded, out.Summary.TermsRemaining)
	if out.Index.Inert > 0 {
		fmt.Fprintf(w, "Skipped %d negatives that normalize to nothing.\n", out.Index.Inert)
	}
	if !f.quiet {
		report.PrintSummary(w, out.Summary)
	}
	for _, p := range []string{f.output, f.audit, f.analyze, f.analytics} {
		if p != "" {
			fmt.Fprintf(w, "Saved %s\n", p)
		}
	}
	return nil
}
