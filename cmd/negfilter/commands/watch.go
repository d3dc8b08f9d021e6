package commands

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"negfilter/internal/batch"
	"negfilter/internal/store"
	"negfilter/internal/watch"
)

func NewWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Filter search term reports dropped into inbox_dir",
		Long: `Watch inbox_dir for new CSV, TSV or XLSX search term reports. Each file is
filtered against inbox_rule_list, outputs go to output_dir and the file is
moved to processed/ or failed/.`,
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	st, closeFn, err := openStore()
	if err != nil {
		return err
	}
	defer closeFn()
	inbox, err := newInbox(st)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (rule list %q)\n", inbox.Dir(), cfg.InboxRuleList)
	return inbox.Run(ctx)
}

func newInbox(st *store.Store) (*watch.Inbox, error) {
	ex := newExecutor(st)
	return watch.New(cfg.InboxDir, 0, func(ctx context.Context, path string) error {
		job := batch.FileJob(path, cfg.InboxRuleList, cfg.OutputDir, time.Now())
		out, err := ex.Execute(ctx, job)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"file":     job.Name,
			"excluded": out.Summary.TermsExcluded,
			"review":   out.Outputs.Review,
		}).Info("watch: report filtered")
		return nil
	})
}
