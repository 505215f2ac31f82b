package filesystem

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/stackvity/vfsim/internal/fserr"
	"github.com/stackvity/vfsim/internal/notify"
	"github.com/stackvity/vfsim/internal/search"
)

var errFailedToAddWatchPaths = errors.New("failed to add one or more paths to the watcher")

// realWatcher delivers host changes observed through fsnotify. Host renames
// arrive as a remove of the old name and a create of the new one, so they are
// reported as Deleted and Created.
type realWatcher struct {
	rfs    *RealFileSystem
	cfg    WatchConfig
	root   string
	names  search.Set
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
	waiters []*realWaiter
}

type realWaiter struct {
	kinds notify.ChangeType
	ch    chan notify.Event
}

func newRealWatcher(rfs *RealFileSystem, cfg WatchConfig) (*realWatcher, error) {
	const op = "watch"
	root, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, rfs.wrap(op, cfg.Path, err)
	}
	if !rfs.DirExists(root) {
		return nil, fserr.Newf(rfs.mode, fserr.InvalidArgument, op, root, "the directory name %s does not exist", root)
	}
	names, err := search.CompileSet(cfg.Filters, search.Options{}, rfs.res.CaseSensitive())
	if err != nil {
		return nil, fserr.Wrap(rfs.mode, fserr.InvalidArgument, op, root, err)
	}
	if cfg.NotifyFilter == 0 {
		cfg.NotifyFilter = notify.DefaultFilters
	}
	return &realWatcher{
		rfs:    rfs,
		cfg:    cfg,
		root:   root,
		names:  names,
		logger: rfs.logger.With("watcher", uuid.NewString(), "root", root),
	}, nil
}

func (w *realWatcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *realWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fserr.New(w.rfs.mode, fserr.InvalidState, "watch", w.root)
	}
	if w.running {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return w.rfs.wrap("watch", w.root, err)
	}
	if err := w.addPaths(watcher); err != nil {
		if !errors.Is(err, errFailedToAddWatchPaths) {
			_ = watcher.Close()
			return w.rfs.wrap("watch", w.root, err)
		}
		w.logger.Warn("Failed to add some paths to the watcher, some changes might be missed", "error", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.watcher, w.cancel, w.done = watcher, cancel, make(chan struct{})
	w.running = true
	go w.run(ctx, watcher, w.done)
	w.logger.Debug("Watcher started")
	return nil
}

// addPaths adds the root, and every directory below it when recursing.
func (w *realWatcher) addPaths(watcher *fsnotify.Watcher) error {
	if !w.cfg.IncludeSubdirectories {
		return watcher.Add(w.root)
	}
	var failed bool
	walkErr := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("Error accessing path during watcher setup", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			if addErr := watcher.Add(path); addErr != nil {
				w.logger.Error("Failed to add path to watcher, continuing...", "path", path, "error", addErr)
				failed = true
			}
		}
		return nil
	})
	if walkErr != nil {
		return walkErr
	}
	if failed {
		return errFailedToAddWatchPaths
	}
	return nil
}

func (w *realWatcher) run(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.logger.Debug("Watcher event received", "event", event.String())
			w.handle(watcher, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				err = notify.ErrOverflow
			}
			w.logger.Warn("Watcher error", "error", err)
			if w.cfg.Handlers.Error != nil {
				w.cfg.Handlers.Error(err)
			}
		}
	}
}

func (w *realWatcher) handle(watcher *fsnotify.Watcher, event fsnotify.Event) {
	ev, ok := w.translate(event)
	if !ok {
		return
	}
	if ev.Type == notify.Created && ev.Entry == notify.Directory && w.cfg.IncludeSubdirectories {
		if err := watcher.Add(event.Name); err != nil {
			w.logger.Warn("Failed to watch new directory", "path", event.Name, "error", err)
		}
	}
	if ev.Filters&w.cfg.NotifyFilter == 0 || !w.names.Match(ev.Name()) {
		return
	}
	h := w.cfg.Handlers
	var fn func(notify.Event)
	switch ev.Type {
	case notify.Created:
		fn = h.Created
	case notify.Deleted:
		fn = h.Deleted
	case notify.Changed:
		fn = h.Changed
	}
	if fn != nil {
		fn(ev)
	}
	w.wake(ev)
}

func (w *realWatcher) translate(event fsnotify.Event) (notify.Event, bool) {
	loc, err := w.rfs.res.Resolve(event.Name)
	if err != nil {
		return notify.Event{}, false
	}
	entry := notify.File
	if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
		entry = notify.Directory
	}
	ev := notify.Event{Entry: entry, Location: loc}
	switch {
	case event.Has(fsnotify.Create):
		ev.Type, ev.Filters = notify.Created, notify.NameFilter(entry)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		ev.Type, ev.Filters = notify.Deleted, notify.NameFilter(entry)
	case event.Has(fsnotify.Write):
		ev.Type, ev.Filters = notify.Changed, notify.LastWrite|notify.Size
	case event.Has(fsnotify.Chmod):
		ev.Type, ev.Filters = notify.Changed, notify.Attributes|notify.Security
	default:
		return notify.Event{}, false
	}
	return ev, true
}

func (w *realWatcher) wake(ev notify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	kept := w.waiters[:0]
	for _, wt := range w.waiters {
		if wt.kinds&ev.Type != 0 {
			wt.ch <- ev
			continue
		}
		kept = append(kept, wt)
	}
	w.waiters = kept
}

func (w *realWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	watcher, cancel, done := w.watcher, w.cancel, w.done
	waiters := w.waiters
	w.waiters = nil
	w.mu.Unlock()

	cancel()
	<-done
	if err := watcher.Close(); err != nil {
		w.logger.Warn("Failed to close watcher", "error", err)
	}
	for _, wt := range waiters {
		close(wt.ch)
	}
	w.logger.Debug("Watcher stopped")
}

func (w *realWatcher) Close() error {
	w.Stop()
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

func (w *realWatcher) WaitForChanged(ctx context.Context, kinds notify.ChangeType) (notify.Event, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return notify.Event{}, fserr.New(w.rfs.mode, fserr.InvalidState, "watch", w.root)
	}
	if !w.running {
		w.mu.Unlock()
		return notify.Event{}, fserr.Newf(w.rfs.mode, fserr.InvalidOperation, "watch", w.root, "watcher is not running")
	}
	wt := &realWaiter{kinds: kinds, ch: make(chan notify.Event, 1)}
	w.waiters = append(w.waiters, wt)
	w.mu.Unlock()

	select {
	case <-ctx.Done():
		w.mu.Lock()
		for i, x := range w.waiters {
			if x == wt {
				w.waiters = append(w.waiters[:i], w.waiters[i+1:]...)
				break
			}
		}
		w.mu.Unlock()
		return notify.Event{}, fserr.Wrap(w.rfs.mode, fserr.Cancelled, "watch", w.root, ctx.Err())
	case ev, ok := <-wt.ch:
		if !ok {
			return notify.Event{}, fserr.New(w.rfs.mode, fserr.InvalidState, "watch", w.root)
		}
		return ev, nil
	}
}
