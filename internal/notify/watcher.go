package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/stackvity/vfsim/internal/fserr"
	"github.com/stackvity/vfsim/internal/location"
	"github.com/stackvity/vfsim/internal/platform"
	"github.com/stackvity/vfsim/internal/search"
)

const (
	DefaultBufferSize = 8192
	MinBufferSize     = 4096
	// AverageEventSize is the nominal size of one queued event; the queue holds
	// BufferSize / AverageEventSize events.
	AverageEventSize = 128
)

// ErrOverflow is reported to the error handler when events were dropped
// because the watcher's queue was full.
var ErrOverflow = errors.New("too many changes at once in directory; internal buffer overflow")

// ErrHandlerPanic is reported to the error handler when an event handler
// panicked. The watcher keeps delivering events.
var ErrHandlerPanic = errors.New("watcher handler panicked")

// Handlers are the watcher callbacks. Any of them may be nil. They run on the
// watcher's own goroutine, never on the goroutine that performed the mutation.
type Handlers struct {
	Created func(Event)
	Deleted func(Event)
	Changed func(Event)
	Renamed func(Event)
	Error   func(error)
}

// WatcherOptions configure a Watcher.
type WatcherOptions struct {
	Mode platform.Mode
	// CaseSensitive is the engine's name comparison, used to compile Filters.
	CaseSensitive         bool
	Root                  location.Location
	Filters               []string
	NotifyFilter          Filters
	IncludeSubdirectories bool
	BufferSize            int
	Handlers              Handlers
}

// Watcher delivers occurred events under one root through a bounded queue
// drained by a dedicated goroutine. Producers never block: when the queue is
// full the event is dropped and ErrOverflow is reported.
type Watcher struct {
	id     uuid.UUID
	bus    *Bus
	opts   WatcherOptions
	names  search.Set
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	sub      *Subscription
	queue    chan Event
	overflow chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
	waiters  []*waiter
}

type waiter struct {
	kinds ChangeType
	ch    chan Event
}

// NewWatcher creates a stopped watcher. Call Start to begin receiving events.
func NewWatcher(bus *Bus, opts WatcherOptions, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Root.IsZero() {
		return nil, fserr.Newf(opts.Mode, fserr.InvalidArgument, "watch", "", "watcher root is required")
	}
	if opts.BufferSize == 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.BufferSize < MinBufferSize {
		opts.BufferSize = MinBufferSize
	}
	if opts.NotifyFilter == 0 {
		opts.NotifyFilter = DefaultFilters
	}
	names, err := search.CompileSet(opts.Filters, search.Options{}, opts.CaseSensitive)
	if err != nil {
		return nil, fserr.Wrap(opts.Mode, fserr.InvalidArgument, "watch", opts.Root.FullPath(), err)
	}
	w := &Watcher{
		id:    uuid.New(),
		bus:   bus,
		opts:  opts,
		names: names,
	}
	w.logger = logger.With("watcher", w.id.String(), "root", opts.Root.FullPath())
	return w, nil
}

// ID identifies the watcher in logs.
func (w *Watcher) ID() uuid.UUID { return w.id }

// Root returns the watched directory.
func (w *Watcher) Root() location.Location { return w.opts.Root }

// QueueCapacity is the number of events the queue holds before overflowing.
func (w *Watcher) QueueCapacity() int { return w.opts.BufferSize / AverageEventSize }

// Running reports whether the watcher is delivering events.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Start begins delivering events. Starting a running watcher is a no-op.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fserr.New(w.opts.Mode, fserr.InvalidState, "watch", w.opts.Root.FullPath())
	}
	if w.running {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.queue = make(chan Event, w.QueueCapacity())
	w.overflow = make(chan struct{}, 1)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true
	w.sub = w.bus.Notify(nil, w.enqueue)

	go w.run(ctx, w.queue, w.overflow, w.done)
	w.logger.Debug("Watcher started", "capacity", w.QueueCapacity())
	return nil
}

// Stop cancels delivery and discards queued events. It waits for an
// in-flight callback to return, so it must not be called from a handler.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	sub, cancel, done := w.sub, w.cancel, w.done
	queue := w.queue
	waiters := w.waiters
	w.waiters = nil
	w.mu.Unlock()

	_ = sub.Close()
	cancel()
	<-done

	dropped := 0
drain:
	for {
		select {
		case <-queue:
			dropped++
		default:
			break drain
		}
	}
	for _, wt := range waiters {
		close(wt.ch)
	}
	w.logger.Debug("Watcher stopped", "discarded", dropped)
}

// Close stops the watcher permanently.
func (w *Watcher) Close() error {
	w.Stop()
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

// WaitForChanged blocks until an event whose type is in kinds is delivered, the
// watcher stops, or ctx is done. The watcher must be running.
func (w *Watcher) WaitForChanged(ctx context.Context, kinds ChangeType) (Event, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return Event{}, fserr.New(w.opts.Mode, fserr.InvalidState, "watch", w.opts.Root.FullPath())
	}
	if !w.running {
		w.mu.Unlock()
		return Event{}, fserr.Newf(w.opts.Mode, fserr.InvalidOperation, "watch", w.opts.Root.FullPath(), "watcher is not running")
	}
	wt := &waiter{kinds: kinds, ch: make(chan Event, 1)}
	w.waiters = append(w.waiters, wt)
	w.mu.Unlock()

	select {
	case <-ctx.Done():
		w.removeWaiter(wt)
		return Event{}, fserr.Wrap(w.opts.Mode, fserr.Cancelled, "watch", w.opts.Root.FullPath(), ctx.Err())
	case ev, ok := <-wt.ch:
		if !ok {
			return Event{}, fserr.New(w.opts.Mode, fserr.InvalidState, "watch", w.opts.Root.FullPath())
		}
		return ev, nil
	}
}

func (w *Watcher) removeWaiter(wt *waiter) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, x := range w.waiters {
		if x == wt {
			w.waiters = append(w.waiters[:i], w.waiters[i+1:]...)
			return
		}
	}
}

// enqueue runs on the producer's goroutine and must never block.
func (w *Watcher) enqueue(ev Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	select {
	case w.queue <- ev:
	default:
		w.logger.Warn("Watcher queue full, dropping event", "event", ev.String())
		select {
		case w.overflow <- struct{}{}:
		default:
		}
	}
}

func (w *Watcher) run(ctx context.Context, queue <-chan Event, overflow <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-overflow:
			if ctx.Err() != nil {
				return
			}
			w.reportError(ErrOverflow)
		case ev := <-queue:
			if ctx.Err() != nil {
				return
			}
			for _, out := range w.translate(ev) {
				w.dispatch(out)
			}
		}
	}
}

// translate applies the watcher's scope, mask and name filters and turns
// renames that cross its scope or parent directories into the events the
// platform would report.
func (w *Watcher) translate(ev Event) []Event {
	if ev.Filters&w.opts.NotifyFilter == 0 {
		return nil
	}
	if ev.Type&Renamed == 0 {
		if w.inScope(ev.Location) {
			return []Event{ev}
		}
		return nil
	}

	oldIn, newIn := w.inScope(ev.OldLocation), w.inScope(ev.Location)
	deleted := Event{Type: Deleted, Entry: ev.Entry, Filters: ev.Filters, Location: ev.OldLocation}
	created := Event{Type: Created, Entry: ev.Entry, Filters: ev.Filters, Location: ev.Location}

	oldParent, _ := ev.OldLocation.Parent()
	newParent, _ := ev.Location.Parent()
	split := w.opts.Mode == platform.Windows && !oldParent.Equal(newParent)

	switch {
	case oldIn && newIn && !split:
		return []Event{ev}
	case oldIn && newIn:
		return []Event{deleted, created}
	case oldIn:
		return []Event{deleted}
	case newIn:
		return []Event{created}
	}
	return nil
}

func (w *Watcher) inScope(loc location.Location) bool {
	if loc.IsZero() || !w.names.Match(loc.Name()) {
		return false
	}
	if w.opts.IncludeSubdirectories {
		return w.opts.Root.Contains(loc)
	}
	parent, ok := loc.Parent()
	return ok && parent.Equal(w.opts.Root)
}

func (w *Watcher) dispatch(ev Event) {
	h := w.opts.Handlers
	var fn func(Event)
	switch {
	case ev.Type&Renamed != 0:
		fn = h.Renamed
	case ev.Type&Created != 0:
		fn = h.Created
	case ev.Type&Deleted != 0:
		fn = h.Deleted
	case ev.Type&Changed != 0:
		fn = h.Changed
	}
	if fn != nil {
		if err := w.call(func() { fn(ev) }); err != nil {
			w.logger.Error("Watcher handler panicked", "event", ev.String(), "error", err)
			w.reportError(err)
		}
	}

	w.mu.Lock()
	var keep []*waiter
	for _, wt := range w.waiters {
		if wt.kinds&ev.Type != 0 {
			wt.ch <- ev
			continue
		}
		keep = append(keep, wt)
	}
	w.waiters = keep
	w.mu.Unlock()
}

// reportError hands err to the error handler. A panicking error handler is
// logged and otherwise ignored.
func (w *Watcher) reportError(err error) {
	h := w.opts.Handlers.Error
	if h == nil {
		return
	}
	if perr := w.call(func() { h(err) }); perr != nil {
		w.logger.Error("Watcher error handler panicked", "reported", err, "error", perr)
	}
}

// call runs fn and converts a panic into an error wrapping ErrHandlerPanic.
func (w *Watcher) call(fn func()) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if perr, ok := r.(error); ok {
			err = fmt.Errorf("%w: %w", ErrHandlerPanic, perr)
		} else {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	fn()
	return nil
}
