package filter

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"negfilter/internal/matcher"
	"negfilter/internal/model"
)

const defaultChunk = 512

type Options struct {
	// Workers bounds the number of goroutines evaluating terms. Zero means
	// GOMAXPROCS.
	Workers int
	// ChunkSize is the number of terms handed to a worker at a time.
	ChunkSize int
	Now       func() time.Time
}

type Result struct {
	Term      model.SearchTerm `json:"term"`
	Verdict   matcher.Verdict  `json:"verdict"`
	CheckedAt time.Time        `json:"checked_at"`
}

// Run evaluates every term against ix. Results keep the order of terms.
// The index is shared read-only between workers; cancellation is observed
// between chunks.
func Run(ctx context.Context, ix *matcher.Index, terms []model.SearchTerm, opts Options) ([]Result, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunk
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	checkedAt := now().UTC()

	out := make([]Result, len(terms))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(terms); start += chunk {
		end := min(start+chunk, len(terms))
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				out[i] = Result{
					Term:      terms[i],
					Verdict:   ix.Match(terms[i].Text),
					CheckedAt: checkedAt,
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
