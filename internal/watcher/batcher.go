package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	ferrors "git.home.luguber.info/inful/ghsync/internal/foundation/errors"
	"git.home.luguber.info/inful/ghsync/internal/logfields"
	"git.home.luguber.info/inful/ghsync/internal/metrics"
)

const (
	DefaultTick     = time.Second
	DefaultDebounce = 2 * time.Second
	DefaultCooldown = 5 * time.Second
)

// SyncFunc is invoked once per batch of local changes.
type SyncFunc func(ctx context.Context) error

// StatusWriter persists the pending set.
type StatusWriter interface {
	WriteStatus(pending []string) error
}

// Options tunes the batcher timing and collaborators.
type Options struct {
	Tick     time.Duration
	Debounce time.Duration
	Cooldown time.Duration
	Now      func() time.Time

	// Ignore reports paths that must never enter the pending set, such as
	// the daemon's own state files.
	Ignore   func(path string) bool
	Recorder metrics.Recorder
	Logger   *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Tick <= 0 {
		o.Tick = DefaultTick
	}
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.Cooldown < 0 {
		o.Cooldown = 0
	} else if o.Cooldown == 0 {
		o.Cooldown = DefaultCooldown
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Ignore == nil {
		o.Ignore = func(string) bool { return false }
	}
	o.Recorder = metrics.OrNoop(o.Recorder)
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Batcher turns a stream of filesystem events into debounced, rate-limited
// sync calls.
type Batcher struct {
	watcher *fsnotify.Watcher
	status  StatusWriter
	sync    SyncFunc
	opts    Options
	log     *slog.Logger

	mu        sync.Mutex
	watched   map[string]struct{}
	pending   *pendingSet
	lastEvent time.Time
	lastSync  time.Time
	refused   bool

	readyOnce sync.Once
	ready     chan struct{}
}

// New creates a batcher. Call Watch for each root, then Run.
func New(status StatusWriter, syncFn SyncFunc, opts Options) (*Batcher, error) {
	if status == nil {
		return nil, ferrors.ValidationError("batcher requires a status writer").Build()
	}
	if syncFn == nil {
		return nil, ferrors.ValidationError("batcher requires a sync function").Build()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.FileSystemError("failed to create file watcher").WithCause(err).Fatal().Build()
	}
	opts = opts.withDefaults()
	return &Batcher{
		watcher: w,
		status:  status,
		sync:    syncFn,
		opts:    opts,
		log:     opts.Logger,
		watched: make(map[string]struct{}),
		pending: newPendingSet(),
		ready:   make(chan struct{}),
	}, nil
}

// Ready is closed once Run has entered its event loop.
func (b *Batcher) Ready() <-chan struct{} { return b.ready }

// Watch registers path and every directory below it. Directories named .git
// are skipped. Watching an already registered path is a no-op.
func (b *Batcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ferrors.FileSystemError("failed to resolve watch path").WithCause(err).
			WithContext("path", path).Build()
	}
	info, err := os.Stat(abs)
	if err != nil {
		return ferrors.FileSystemError("watch path not accessible").WithCause(err).
			WithContext("path", abs).Build()
	}
	if !info.IsDir() {
		return ferrors.ValidationError("watch path is not a directory").WithContext("path", abs).Build()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.watched[abs]; ok {
		return nil
	}
	if err := b.addTree(abs, nil); err != nil {
		return err
	}
	b.log.Debug("Watching directory tree", logfields.Path(abs))
	return nil
}

// Unwatch deregisters path and its subtree. Unknown paths are ignored.
func (b *Batcher) Unwatch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ferrors.FileSystemError("failed to resolve watch path").WithCause(err).
			WithContext("path", path).Build()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for dir := range b.watched {
		if !within(abs, dir) {
			continue
		}
		delete(b.watched, dir)
		if err := b.watcher.Remove(dir); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			b.log.Debug("Failed to remove watch", logfields.Path(dir), logfields.Error(err))
		}
	}
	return nil
}

// Watched returns the registered directories in sorted order.
func (b *Batcher) Watched() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.watched))
	for dir := range b.watched {
		out = append(out, dir)
	}
	slices.Sort(out)
	return out
}

// Pending returns a copy of the current pending set in insertion order.
func (b *Batcher) Pending() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending.list()
}

// Close releases the underlying watcher.
func (b *Batcher) Close() error {
	return b.watcher.Close()
}

// Run processes events until ctx is cancelled. It returns an error only when
// the watcher channels are closed underneath it.
func (b *Batcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.opts.Tick)
	defer ticker.Stop()

	b.readyOnce.Do(func() { close(b.ready) })
	b.log.Info("Change batcher started",
		slog.Int("watched_dirs", len(b.Watched())),
		slog.Duration("debounce", b.opts.Debounce),
		slog.Duration("cooldown", b.opts.Cooldown))

	for {
		select {
		case <-ctx.Done():
			b.log.Info("Change batcher stopped")
			return nil
		case event, ok := <-b.watcher.Events:
			if !ok {
				return ferrors.DaemonError("file watcher event channel closed").Build()
			}
			b.handleEvent(event)
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return ferrors.DaemonError("file watcher error channel closed").Build()
			}
			b.opts.Recorder.IncWatcherError()
			b.log.Warn("File watcher error", logfields.Error(err))
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

func (b *Batcher) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	if inGitDir(path) || b.opts.Ignore(path) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	changed := []string{path}
	switch {
	case event.Has(fsnotify.Create):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			// Files written before the watch was added produce no events.
			if err := b.addTree(path, &changed); err != nil {
				b.log.Warn("Failed to watch new directory", logfields.Path(path), logfields.Error(err))
			}
		}
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		for dir := range b.watched {
			if within(path, dir) {
				delete(b.watched, dir)
			}
		}
	}

	added := false
	for _, p := range changed {
		if b.pending.add(p) {
			added = true
		}
	}
	b.lastEvent = b.opts.Now()
	if !added {
		return
	}
	b.opts.Recorder.SetPendingChanges(b.pending.len())
	b.log.Debug("Change recorded", logfields.Path(path), slog.String("op", event.Op.String()), logfields.Pending(b.pending.len()))
	b.persistLocked()
}

// tick decides whether the pending batch is due for a sync.
func (b *Batcher) tick(ctx context.Context) {
	b.mu.Lock()
	now := b.opts.Now()
	if b.pending.len() == 0 || now.Sub(b.lastEvent) < b.opts.Debounce {
		b.mu.Unlock()
		return
	}
	if !b.lastSync.IsZero() && now.Sub(b.lastSync) < b.opts.Cooldown {
		if !b.refused {
			b.refused = true
			b.opts.Recorder.IncCooldownSkip()
			b.log.Info("Sync deferred by cooldown",
				logfields.Pending(b.pending.len()),
				slog.Duration("remaining", b.opts.Cooldown-now.Sub(b.lastSync)))
		}
		b.mu.Unlock()
		return
	}
	batch := b.pending.len()
	b.mu.Unlock()

	b.log.Info("Syncing local changes", logfields.Pending(batch))
	err := b.sync(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.refused = false
	if err != nil {
		b.log.Error("Local sync failed", logfields.Pending(batch), logfields.Error(err))
	} else {
		b.lastSync = b.opts.Now()
	}
	b.pending.clear()
	b.opts.Recorder.SetPendingChanges(0)
	b.persistLocked()
}

func (b *Batcher) persistLocked() {
	if err := b.status.WriteStatus(b.pending.list()); err != nil {
		b.log.Warn("Failed to write status", logfields.Error(err))
	}
}

// addTree registers root and its subdirectories; caller holds mu. When found is
// non-nil, every entry below root is appended to it.
func (b *Batcher) addTree(root string, found *[]string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if found != nil && p != root && !b.opts.Ignore(p) {
			*found = append(*found, p)
		}
		if !d.IsDir() {
			return nil
		}
		if _, ok := b.watched[p]; ok {
			return nil
		}
		if err := b.watcher.Add(p); err != nil {
			return ferrors.FileSystemError("failed to watch directory").WithCause(err).
				WithContext("path", p).Build()
		}
		b.watched[p] = struct{}{}
		return nil
	})
}

func inGitDir(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".git" {
			return true
		}
	}
	return false
}

// within reports whether p equals root or lies below it.
func within(root, p string) bool {
	if p == root {
		return true
	}
	rel, err := filepath.Rel(root, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
