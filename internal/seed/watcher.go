package seed

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce delays ingestion until a file has stopped changing.
const defaultDebounce = 250 * time.Millisecond

// Watcher ingests seed files created or rewritten under a directory.
type Watcher struct {
	watcher  *fsnotify.Watcher
	recorder Recorder
	root     string
	patterns []string
	debounce time.Duration
	onIngest func(path string, res Result, err error)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long a file must be quiet before it is ingested.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithIngestCallback is called after each file is ingested.
func WithIngestCallback(fn func(path string, res Result, err error)) WatcherOption {
	return func(w *Watcher) { w.onIngest = fn }
}

// NewWatcher creates a watcher for root. Nothing is watched until Start.
func NewWatcher(rec Recorder, root string, patterns []string, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fw,
		recorder: rec,
		root:     root,
		patterns: patterns,
		debounce: defaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start adds watches for root and its subdirectories and begins processing events.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addWatches(w.root); err != nil {
		return fmt.Errorf("failed to add watches starting from %s: %w", w.root, err)
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.processEvents(ctx)

	log.Printf("Watching %s for seed files", w.root)
	return nil
}

// Stop ends event processing. Files still waiting out the debounce are dropped.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) addWatches(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			log.Printf("Warning: failed to add watch for %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if event.Has(fsnotify.Create) && isDir(event.Name) {
				if err := w.addWatches(event.Name); err != nil {
					log.Printf("Warning: failed to watch %s: %v", event.Name, err)
				}
				continue
			}
			if !w.matches(event.Name) {
				continue
			}
			pending[event.Name] = struct{}{}
			timer.Reset(w.debounce)

		case <-timer.C:
			for path := range pending {
				w.ingest(ctx, path)
			}
			pending = make(map[string]struct{})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Warning: seed watcher error: %v", err)
		}
	}
}

func (w *Watcher) matches(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	return Match(w.patterns, filepath.ToSlash(rel))
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	res, err := IngestFile(ctx, w.recorder, path)
	if err != nil {
		log.Printf("Warning: seed ingestion of %s: %v", path, err)
	} else if res.Added > 0 {
		log.Printf("Seeded %d examples from %s (%d already present)", res.Added, path, res.Skipped)
	}
	if w.onIngest != nil {
		w.onIngest(path, res, err)
	}
}
