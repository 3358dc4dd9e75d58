// Package watch rebuilds a project when files under its input directory change.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/quire/pkg/observability"
)

// DefaultDebounce is the quiet period used when none is configured
const DefaultDebounce = 200 * time.Millisecond

// RebuildFunc is called with the changed paths once the tree has been quiet
// for the debounce period
type RebuildFunc func(ctx context.Context, changed []string) error

// Watcher watches a directory tree. New directories are watched as they
// appear. Hidden files and directories are ignored.
type Watcher struct {
	root     string
	debounce time.Duration
	rebuild  RebuildFunc
	ignore   []string
	log      logrus.FieldLogger
	ready    chan struct{}
}

// Option configures a Watcher
type Option func(*Watcher)

// WithDebounce sets the quiet period before a rebuild
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithIgnore skips events under the given paths, such as an output
// directory nested in the input
func WithIgnore(paths ...string) Option {
	return func(w *Watcher) {
		for _, p := range paths {
			if abs, err := filepath.Abs(p); err == nil {
				w.ignore = append(w.ignore, abs)
			}
		}
	}
}

// New creates a watcher for root
func New(root string, rebuild RebuildFunc, log logrus.FieldLogger, opts ...Option) *Watcher {
	if log == nil {
		log = logrus.New()
	}

	w := &Watcher{
		root:     root,
		debounce: DefaultDebounce,
		rebuild:  rebuild,
		log:      log,
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Ready is closed once the initial tree is being watched
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches until ctx is done. Rebuild errors are logged and watching
// continues.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := w.addTree(watcher, w.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}
	close(w.ready)
	w.log.Infof("Watching %s for changes", w.root)

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending = make(map[string]struct{})
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}

			if event.Op&fsnotify.Create != 0 {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					w.log.Debugf("New directory: %s", event.Name)
					if err := w.addTree(watcher, event.Name); err != nil {
						w.log.WithError(err).Warnf("Failed to watch new directory %s", event.Name)
					}
				}
			}

			pending[event.Name] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			pending = make(map[string]struct{})

			w.runRebuild(ctx, changed)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("Watcher error")
		}
	}
}

func (w *Watcher) runRebuild(ctx context.Context, changed []string) {
	defer observability.RecoverPanic(w.log, "rebuild")

	w.log.Infof("Rebuilding after %d changes", len(changed))
	if err := w.rebuild(ctx, changed); err != nil {
		w.log.WithError(err).Error("Rebuild failed")
	}
}

// relevant reports whether an event should trigger a rebuild
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if w.hidden(event.Name) {
		return false
	}

	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return true
	}
	for _, ignored := range w.ignore {
		if abs == ignored || strings.HasPrefix(abs, ignored+string(filepath.Separator)) {
			return false
		}
	}
	return true
}

// hidden reports whether any element of path below the root starts with a dot
func (w *Watcher) hidden(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if strings.HasPrefix(part, ".") && part != ".." {
			return true
		}
	}
	return false
}

// addTree recursively adds all non-hidden directories to the watcher
func (w *Watcher) addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != w.root && w.hidden(path) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
