package commands

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func NewBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch",
		Short: "Filter every configured campaign once",
		RunE:  runBatch,
	}
}

func runBatch(cmd *cobra.Command, args []string) error {
	st, closeFn, err := openStore()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	rep, err := newRunner(st).RunReport(ctx)
	if rep != nil {
		w := cmd.OutOrStdout()
		for _, r := range rep.Results {
			if r.Error != "" {
				fmt.Fprintf(w, "%-20s FAILED  %s\n", r.Campaign, r.Error)
				continue
			}
			fmt.Fprintf(w, "%-20s %s/%s excluded, $%s prevented\n", r.Campaign,
				humanize.Comma(int64(r.ExcludedTerms)), humanize.Comma(int64(r.TotalTerms)),
				humanize.CommafWithDigits(r.CostPrevented, 2))
		}
		fmt.Fprintf(w, "Success rate %.1f%%, report %s\n", rep.SuccessRate, rep.Path)
	}
	return err
}
