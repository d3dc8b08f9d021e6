package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"negfilter/internal/batch"
	"negfilter/internal/db"
	"negfilter/internal/store"
)

func openStore() (*store.Store, func(), error) {
	conn, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	return store.New(conn), func() { _ = conn.Close() }, nil
}

func newExecutor(st *store.Store) *batch.Executor {
	return &batch.Executor{
		Store:        st,
		MaxFileBytes: cfg.MaxFileBytes,
		EvalWorkers:  cfg.EvalWorkers,
		CostPerTerm:  cfg.DefaultCostPerTerm,
		NGramMax:     cfg.NGramMax,
	}
}

func newRunner(st *store.Store) *batch.Runner {
	return &batch.Runner{
		Executor:   newExecutor(st),
		Campaigns:  cfg.Campaigns,
		OutputDir:  cfg.OutputDir,
		MaxWorkers: cfg.MaxWorkers,
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
