package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kingrea/smart-mirror/internal/logging"
)

// DefaultDebounce is how long the watcher waits for changes to settle.
const DefaultDebounce = 250 * time.Millisecond

// ReloadFunc is invoked once per settled batch of changes.
type ReloadFunc func(ctx context.Context) error

// Option customizes a Watcher.
type Option func(*Watcher)

// WithLogger overrides the default no-op logger.
func WithLogger(l logging.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// Watcher monitors a plugin directory and its component subdirectories.
type Watcher struct {
	dir      string
	reload   ReloadFunc
	logger   logging.Logger
	debounce time.Duration
}

// New returns a watcher for dir.
func New(dir string, reload ReloadFunc, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		reload:   reload,
		logger:   logging.Nop(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Run watches until ctx ends. A missing directory is not an error; there
// is nothing to watch.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.dir)
	if err != nil || !info.IsDir() {
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("watch: stat %s: %w", w.dir, err)
		}
		w.logger.Infof("watch: %s is not a directory, plugin reload disabled", w.dir)
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create watcher: %w", err)
	}
	defer fsw.Close()
	if err := w.addTree(fsw); err != nil {
		return err
	}
	w.logger.Infof("watch: watching %s", w.dir)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := fsw.Add(event.Name); err != nil {
						w.logger.Warnf("watch: add %s: %v", event.Name, err)
					}
				}
			}
			w.logger.Debugf("watch: %s %s", event.Op, event.Name)
			timer.Reset(w.debounce)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warnf("watch: %v", err)
		case <-timer.C:
			if err := w.reload(ctx); err != nil {
				w.logger.Errorf("watch: %v", err)
			}
		}
	}
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher) error {
	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch: add %s: %w", w.dir, err)
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("watch: read %s: %w", w.dir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if err := fsw.Add(path); err != nil {
			w.logger.Warnf("watch: add %s: %v", path, err)
		}
	}
	return nil
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	return true
}
