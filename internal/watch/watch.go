// Package watch filters search term reports dropped into an inbox folder.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"negfilter/internal/ingest"
)

const (
	ProcessedDir = "processed"
	FailedDir    = "failed"

	defaultQuiet = 500 * time.Millisecond
)

// Handler processes one settled inbox file.
type Handler func(ctx context.Context, path string) error

// Inbox watches a single directory (not recursively). A file is handed to
// the handler once no event has touched it for the quiet interval, then
// moved to processed/ or failed/.
type Inbox struct {
	dir     string
	quiet   time.Duration
	handler Handler

	fw      *fsnotify.Watcher
	mu      sync.Mutex
	timers  map[string]*time.Timer
	wg      sync.WaitGroup
	stopped bool
}

func New(dir string, quiet time.Duration, handler Handler) (*Inbox, error) {
	if quiet <= 0 {
		quiet = defaultQuiet
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	for _, sub := range []string{"", ProcessedDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(abs, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create inbox: %w", err)
		}
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(abs); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return &Inbox{
		dir:     abs,
		quiet:   quiet,
		handler: handler,
		fw:      fw,
		timers:  make(map[string]*time.Timer),
	}, nil
}

func (in *Inbox) Dir() string { return in.dir }

// Run delivers events until ctx is done, then waits for in-flight handlers.
// Files already present when Run starts are processed too.
func (in *Inbox) Run(ctx context.Context) error {
	defer in.stop()
	in.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-in.fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				in.touch(ctx, ev.Name)
			}
		case err, ok := <-in.fw.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("watch: fsnotify error")
		}
	}
}

func (in *Inbox) scan(ctx context.Context) {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		log.WithError(err).Warn("watch: scan inbox failed")
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			in.touch(ctx, filepath.Join(in.dir, e.Name()))
		}
	}
}

func (in *Inbox) touch(ctx context.Context, path string) {
	if !wanted(path) {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.stopped {
		return
	}
	if p, ok := in.timers[path]; ok && p.Stop() {
		p.Reset(in.quiet)
		return
	}
	var t *time.Timer
	in.wg.Add(1)
	t = time.AfterFunc(in.quiet, func() {
		defer in.wg.Done()
		in.mu.Lock()
		if in.timers[path] == t {
			delete(in.timers, path)
		}
		in.mu.Unlock()
		in.process(ctx, path)
	})
	in.timers[path] = t
}

func (in *Inbox) process(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return
	}
	logger := log.WithField("file", filepath.Base(path))
	dest := ProcessedDir
	if err := in.handler(ctx, path); err != nil {
		logger.WithError(err).Error("watch: file failed")
		dest = FailedDir
	} else {
		logger.Info("watch: file processed")
	}
	target := filepath.Join(in.dir, dest, filepath.Base(path))
	if err := os.Rename(path, target); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WithError(err).Warn("watch: move file failed")
	}
}

func (in *Inbox) stop() {
	in.mu.Lock()
	in.stopped = true
	for path, t := range in.timers {
		if t.Stop() {
			in.wg.Done()
		}
		delete(in.timers, path)
	}
	in.mu.Unlock()
	in.wg.Wait()
	_ = in.fw.Close()
}

// wanted skips editor droppings and anything ReadTable cannot parse.
func wanted(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~") {
		return false
	}
	return ingest.Supported(base)
}
