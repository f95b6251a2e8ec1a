package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DirWatcher reports debounced changes to ingestible files under one root.
type DirWatcher struct {
	opts      Options
	fsWatcher *fsnotify.Watcher // nil in polling mode
	debouncer *Debouncer
	events    chan []FileEvent
	errors    chan error
	stopCh    chan struct{}
	root      string

	mu      sync.RWMutex
	stopped bool
	dropped atomic.Uint64
}

// NewDirWatcher creates a watcher. fsnotify is used unless it fails to
// initialize or opts.ForcePolling is set.
func NewDirWatcher(opts Options) (*DirWatcher, error) {
	opts = opts.WithDefaults()
	w := &DirWatcher{
		opts:      opts,
		debouncer: NewDebouncer(opts.DebounceWindow),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}
	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			slog.Warn("fsnotify_unavailable", slog.String("error", err.Error()))
		} else {
			w.fsWatcher = fsw
		}
	}
	return w, nil
}

// Mode returns "fsnotify" or "polling".
func (w *DirWatcher) Mode() string {
	if w.fsWatcher != nil {
		return "fsnotify"
	}
	return "polling"
}

// Start watches root until ctx is done or Stop is called.
func (w *DirWatcher) Start(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root %s is not a directory", abs)
	}
	w.mu.Lock()
	w.root = abs
	w.mu.Unlock()

	go w.forward(ctx)

	slog.Info("watcher_started", slog.String("root", abs), slog.String("mode", w.Mode()))
	if w.fsWatcher != nil {
		return w.runFsnotify(ctx)
	}
	return w.runPolling(ctx)
}

func (w *DirWatcher) runFsnotify(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *DirWatcher) handle(ev fsnotify.Event) {
	info, statErr := os.Stat(ev.Name)
	isDir := statErr == nil && info.IsDir()

	if isDir {
		if ev.Op&fsnotify.Create != 0 && !w.hidden(ev.Name) {
			// Files written into a new directory before it is watched are
			// picked up by the walk.
			if err := w.addRecursive(ev.Name); err != nil {
				w.emitError(err)
			}
			w.walkFiles(ev.Name, func(path string) {
				w.debouncer.Add(FileEvent{Path: path, Operation: OpCreate, Timestamp: time.Now()})
			})
		}
		return
	}
	if !w.opts.wants(w.root, ev.Name) {
		return
	}

	var op Operation
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// A rename reports the old name; the new name arrives as Create.
		op = OpDelete
	default:
		return
	}
	w.debouncer.Add(FileEvent{Path: ev.Name, Operation: op, Timestamp: time.Now()})
}

func (w *DirWatcher) hidden(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

func (w *DirWatcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != w.root && w.hidden(path) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *DirWatcher) walkFiles(dir string, fn func(path string)) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != w.root && w.hidden(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if w.opts.wants(w.root, path) {
			fn(path)
		}
		return nil
	})
}

// fileState is what polling compares between scans.
type fileState struct {
	modTime time.Time
	size    int64
}

func (w *DirWatcher) scan() map[string]fileState {
	state := make(map[string]fileState)
	w.walkFiles(w.root, func(path string) {
		if info, err := os.Stat(path); err == nil {
			state[path] = fileState{modTime: info.ModTime(), size: info.Size()}
		}
	})
	return state
}

// diffStates returns the events that turn prev into cur.
func diffStates(prev, cur map[string]fileState, now time.Time) []FileEvent {
	var out []FileEvent
	for path, s := range cur {
		old, ok := prev[path]
		switch {
		case !ok:
			out = append(out, FileEvent{Path: path, Operation: OpCreate, Timestamp: now})
		case !old.modTime.Equal(s.modTime) || old.size != s.size:
			out = append(out, FileEvent{Path: path, Operation: OpModify, Timestamp: now})
		}
	}
	for path := range prev {
		if _, ok := cur[path]; !ok {
			out = append(out, FileEvent{Path: path, Operation: OpDelete, Timestamp: now})
		}
	}
	return out
}

func (w *DirWatcher) runPolling(ctx context.Context) error {
	prev := w.scan()
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			cur := w.scan()
			for _, ev := range diffStates(prev, cur, time.Now()) {
				w.debouncer.Add(ev)
			}
			prev = cur
		}
	}
}

func (w *DirWatcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			w.emit(batch)
		}
	}
}

func (w *DirWatcher) emit(batch []FileEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.events <- batch:
	default:
		n := w.dropped.Add(1)
		slog.Warn("event_buffer_full",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("total_dropped_batches", n))
	}
}

func (w *DirWatcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Events returns debounced batches. Closed by Stop.
func (w *DirWatcher) Events() <-chan []FileEvent { return w.events }

// Errors returns non-fatal watcher errors. Closed by Stop.
func (w *DirWatcher) Errors() <-chan error { return w.errors }

// DroppedBatches counts batches lost to a full event buffer.
func (w *DirWatcher) DroppedBatches() uint64 { return w.dropped.Load() }

// Stop releases the watcher. Safe to call more than once.
func (w *DirWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	if w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
	}
	close(w.events)
	close(w.errors)
	return nil
}
