package project

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce is how long a project must be quiet before a
// file change triggers its reload.
const DefaultWatchDebounce = 250 * time.Millisecond

// watchedExts are the file types whose changes alter a project graph. An
// empty extension covers directories.
var watchedExts = map[string]bool{
	".malloy":   true,
	".malloynb": true,
	".json":     true,
	".csv":      true,
	".parquet":  true,
	"":          true,
}

// Watcher reloads projects when files under their directories change.
// Projects added to the store after NewWatcher are not watched.
type Watcher struct {
	store    *Store
	logger   *slog.Logger
	debounce time.Duration
	fsw      *fsnotify.Watcher
	roots    map[string]string // project dir -> project name

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewWatcher registers every loaded project directory, recursively, with a
// file system watcher. Call Run to start reloading.
func NewWatcher(store *Store, logger *slog.Logger, debounce time.Duration) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		store:    store,
		logger:   logger.With("component", "project-watcher"),
		debounce: debounce,
		fsw:      fsw,
		roots:    make(map[string]string),
		timers:   make(map[string]*time.Timer),
	}
	for _, name := range store.ListProjects() {
		p, err := store.Project(name)
		if err != nil {
			continue
		}
		if err := w.watchTree(p.Path()); err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("watch project %s: %w", name, err)
		}
		w.roots[p.Path()] = name
	}
	return w, nil
}

// watchTree adds dir and every non-hidden directory below it.
func (w *Watcher) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// Run handles file events until ctx is done, then releases the watcher.
// Reloads run one at a time on the Run goroutine.
func (w *Watcher) Run(ctx context.Context) {
	defer w.stop()

	due := make(chan string)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, event, due)
		case name := <-due:
			if _, err := w.store.Reload(ctx, name); err != nil {
				w.logger.Error("reload after change failed", "project", name, "error", err)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event, due chan<- string) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || !watchedExts[strings.ToLower(filepath.Ext(base))] {
		return
	}
	name, ok := w.projectFor(event.Name)
	if !ok {
		return
	}
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watchTree(event.Name); err != nil {
				w.logger.Warn("cannot watch new directory", "path", event.Name, "error", err)
			}
		}
	}
	w.logger.Debug("change detected", "project", name, "path", event.Name, "op", event.Op.String())

	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[name]; ok {
		t.Stop()
	}
	w.timers[name] = time.AfterFunc(w.debounce, func() {
		select {
		case due <- name:
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) projectFor(path string) (string, bool) {
	for root, name := range w.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return name, true
		}
	}
	return "", false
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()
	_ = w.fsw.Close()
}
