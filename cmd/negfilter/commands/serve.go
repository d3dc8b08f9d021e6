package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"negfilter/internal/auth"
	"negfilter/internal/scheduler"
	"negfilter/internal/server"
)

func NewServeCmd() *cobra.Command {
	var withInbox bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the daily batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, withInbox)
		},
	}
	cmd.Flags().BoolVar(&withInbox, "watch", false, "Also filter files dropped into inbox_dir")
	return cmd
}

func runServe(cmd *cobra.Command, withInbox bool) error {
	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	st, closeFn, err := openStore()
	if err != nil {
		return err
	}
	defer closeFn()

	guard, err := auth.New(cfg.AdminSecret, cfg.AdminBindCIDRs)
	if err != nil {
		return err
	}
	runner := newRunner(st)
	sched := scheduler.New(cfg.DailyBatchTime, cfg.CooldownDuration(), runner)

	api := server.New(cfg, st, sched, runner, guard, server.AssetsHandler())
	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      api.Routes(),
		ReadTimeout:  time.Duration(cfg.HTTPReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTPWriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.HTTPIdleTimeoutSec) * time.Second,
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	if len(cfg.Campaigns) > 0 {
		sched.Start(ctx)
	} else {
		log.Info("serve: no campaigns configured, daily batch disabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	if withInbox {
		inbox, err := newInbox(st)
		if err != nil {
			return err
		}
		g.Go(func() error { return inbox.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shCtx)
	})
	g.Go(func() error {
		log.WithField("addr", cfg.ListenAddress).Info("serve: listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	return g.Wait()
}
