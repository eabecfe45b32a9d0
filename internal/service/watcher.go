package service

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/practicos/internal/log"
)

// Watcher processes PDFs as they appear in a directory. A file is handled
// once no write event has been seen for the debounce interval.
type Watcher struct {
	service  *ProcessService
	dir      string
	debounce time.Duration
	opts     Options
	handled  func(path string, result *FileResult, err error)
}

func NewWatcher(service *ProcessService, dir string, debounce time.Duration, opts Options) *Watcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{service: service, dir: dir, debounce: debounce, opts: opts}
}

// OnHandled registers a callback run after each file.
func (w *Watcher) OnHandled(fn func(path string, result *FileResult, err error)) {
	w.handled = fn
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	logger := log.WithComponent("watcher")
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("service: create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("service: watch %s: %w", w.dir, err)
	}
	logger.Info().Str("dir", w.dir).Dur("debounce", w.debounce).Msg("watching for PDF files")

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.debounce / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !isPDFName(ev.Name) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
				pending[ev.Name] = time.Now()
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				delete(pending, ev.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Msg("watch error")
		case now := <-ticker.C:
			for path, seen := range pending {
				if now.Sub(seen) < w.debounce {
					continue
				}
				delete(pending, path)
				w.handle(ctx, path)
			}
		}
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	result, err := w.service.ProcessFile(ctx, path, w.opts)
	if err != nil {
		logger := log.WithComponent("watcher")
		logger.Error().Err(err).Str("file", path).Msg("error processing file")
	}
	if w.handled != nil {
		w.handled(path, result, err)
	}
}
