package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rebuilds struct {
	mu    sync.Mutex
	calls [][]string
	err   error
	ch    chan []string
}

func newRebuilds() *rebuilds {
	return &rebuilds{ch: make(chan []string, 16)}
}

func (r *rebuilds) fn(_ context.Context, changed []string) error {
	r.mu.Lock()
	r.calls = append(r.calls, changed)
	err := r.err
	r.mu.Unlock()

	r.ch <- changed
	return err
}

func (r *rebuilds) next(t *testing.T) []string {
	t.Helper()
	select {
	case changed := <-r.ch:
		return changed
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for rebuild")
		return nil
	}
}

func startWatcher(t *testing.T, root string, r *rebuilds, opts ...Option) (*Watcher, chan error) {
	t.Helper()

	log, _ := test.NewNullLogger()
	w := New(root, r.fn, log, append([]Option{WithDebounce(50 * time.Millisecond)}, opts...)...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-w.Ready():
	case err := <-done:
		t.Fatalf("watcher exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never became ready")
	}
	return w, done
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestWatcher_RebuildsOnChange(t *testing.T) {
	root := t.TempDir()
	r := newRebuilds()
	startWatcher(t, root, r)

	write(t, filepath.Join(root, "intro.md"), "# Intro")

	assert.Contains(t, r.next(t), filepath.Join(root, "intro.md"))
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	root := t.TempDir()
	r := newRebuilds()
	startWatcher(t, root, r, WithDebounce(300*time.Millisecond))

	for _, name := range []string{"a.md", "b.md", "c.md"} {
		write(t, filepath.Join(root, name), name)
	}

	changed := r.next(t)
	assert.Contains(t, changed, filepath.Join(root, "a.md"))
	assert.Contains(t, changed, filepath.Join(root, "c.md"))
	assert.IsNonDecreasing(t, changed)
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	r := newRebuilds()
	startWatcher(t, root, r)

	sub := filepath.Join(root, "guides")
	require.NoError(t, os.Mkdir(sub, 0755))
	assert.Contains(t, r.next(t), sub)

	write(t, filepath.Join(sub, "setup.md"), "# Setup")
	assert.Contains(t, r.next(t), filepath.Join(sub, "setup.md"))
}

func TestWatcher_IgnoresHiddenAndIgnoredPaths(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "site")
	require.NoError(t, os.Mkdir(out, 0755))

	r := newRebuilds()
	startWatcher(t, root, r, WithIgnore(out))

	write(t, filepath.Join(root, ".swp"), "x")
	write(t, filepath.Join(out, "index.html"), "x")
	write(t, filepath.Join(root, "visible.md"), "x")

	changed := r.next(t)
	assert.Equal(t, []string{filepath.Join(root, "visible.md")}, changed)
}

func TestWatcher_RebuildErrorKeepsWatching(t *testing.T) {
	root := t.TempDir()
	r := newRebuilds()
	r.err = errors.New("render failed")
	startWatcher(t, root, r)

	write(t, filepath.Join(root, "a.md"), "x")
	r.next(t)

	write(t, filepath.Join(root, "b.md"), "x")
	assert.Contains(t, r.next(t), filepath.Join(root, "b.md"))
}

func TestWatcher_StopsOnCancel(t *testing.T) {
	log, _ := test.NewNullLogger()
	w := New(t.TempDir(), func(context.Context, []string) error { return nil }, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	<-w.Ready()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_MissingRoot(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing"), nil, nil)

	err := w.Run(context.Background())

	assert.ErrorContains(t, err, "failed to watch")
}

func TestRelevant(t *testing.T) {
	root := t.TempDir()
	w := New(root, nil, nil, WithIgnore(filepath.Join(root, "site")))

	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"write", fsnotify.Event{Name: filepath.Join(root, "a.md"), Op: fsnotify.Write}, true},
		{"remove", fsnotify.Event{Name: filepath.Join(root, "a.md"), Op: fsnotify.Remove}, true},
		{"chmod", fsnotify.Event{Name: filepath.Join(root, "a.md"), Op: fsnotify.Chmod}, false},
		{"hidden file", fsnotify.Event{Name: filepath.Join(root, ".a.md"), Op: fsnotify.Write}, false},
		{"hidden dir", fsnotify.Event{Name: filepath.Join(root, ".git", "HEAD"), Op: fsnotify.Write}, false},
		{"ignored dir", fsnotify.Event{Name: filepath.Join(root, "site", "index.html"), Op: fsnotify.Create}, false},
		{"ignored prefix sibling", fsnotify.Event{Name: filepath.Join(root, "sitemap.md"), Op: fsnotify.Create}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.relevant(tt.event))
		})
	}
}
