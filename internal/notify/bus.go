package notify

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// Predicate selects the events a subscription is interested in. A nil
// predicate accepts every event.
type Predicate func(Event) bool

// InterceptFunc runs before a mutation is applied. Returning an error vetoes
// the mutation; the error is returned to the caller of the mutating operation.
type InterceptFunc func(Event) error

// NotifyFunc runs after a mutation has been committed.
type NotifyFunc func(Event)

// Bus dispatches change events to intercept (pending) and notify (occurred)
// subscribers in registration order.
//
// Pending is called while the registry lock is held: intercept callbacks must
// not call back into the filesystem. Occurred is called after the lock is
// released.
type Bus struct {
	logger *slog.Logger

	mu       sync.Mutex
	pending  []*Subscription
	occurred []*Subscription
}

// NewBus creates an empty bus. A nil logger discards output.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bus{logger: logger}
}

// Intercept registers a veto-capable callback that runs before matching mutations.
func (b *Bus) Intercept(pred Predicate, fn InterceptFunc) *Subscription {
	s := newSubscription(b, pred)
	s.intercept = fn
	b.mu.Lock()
	b.pending = append(b.pending, s)
	b.mu.Unlock()
	return s
}

// Notify registers a callback that runs after matching mutations.
func (b *Bus) Notify(pred Predicate, fn NotifyFunc) *Subscription {
	s := newSubscription(b, pred)
	s.notify = fn
	b.mu.Lock()
	b.occurred = append(b.occurred, s)
	b.mu.Unlock()
	return s
}

// Pending runs the intercept callbacks for ev and returns the first veto.
func (b *Bus) Pending(ev Event) error {
	for _, s := range b.snapshot(&b.pending) {
		if !s.accepts(ev) {
			continue
		}
		err := s.intercept(ev)
		s.record()
		if err != nil {
			b.logger.Debug("Mutation vetoed", "event", ev.String(), "error", err)
			return err
		}
	}
	return nil
}

// Occurred runs the notify callbacks for each event, in order.
func (b *Bus) Occurred(events ...Event) {
	if len(events) == 0 {
		return
	}
	subs := b.snapshot(&b.occurred)
	for _, ev := range events {
		for _, s := range subs {
			if !s.accepts(ev) {
				continue
			}
			s.notify(ev)
			s.record()
		}
	}
}

// HasSubscribers reports whether any intercept or notify callback is registered.
func (b *Bus) HasSubscribers() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)+len(b.occurred) > 0
}

func (b *Bus) snapshot(list *[]*Subscription) []*Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Subscription(nil), (*list)...)
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = without(b.pending, s)
	b.occurred = without(b.occurred, s)
}

func without(list []*Subscription, s *Subscription) []*Subscription {
	out := list[:0]
	for _, x := range list {
		if x != s {
			out = append(out, x)
		}
	}
	for i := len(out); i < len(list); i++ {
		list[i] = nil
	}
	return out
}

// Subscription is a registered hook. Close unregisters it; Wait blocks until
// its callback has run a given number of times.
type Subscription struct {
	bus       *Bus
	pred      Predicate
	intercept InterceptFunc
	notify    NotifyFunc

	mu      sync.Mutex
	closed  bool
	count   int
	changed chan struct{}
}

func newSubscription(b *Bus, pred Predicate) *Subscription {
	return &Subscription{bus: b, pred: pred, changed: make(chan struct{})}
}

func (s *Subscription) accepts(ev Event) bool {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return false
	}
	return s.pred == nil || s.pred(ev)
}

func (s *Subscription) record() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	close(s.changed)
	s.changed = make(chan struct{})
}

// Count returns how many times the callback has run.
func (s *Subscription) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Wait blocks until the callback has run at least n times in total, or ctx is done.
func (s *Subscription) Wait(ctx context.Context, n int) error {
	for {
		s.mu.Lock()
		if s.count >= n {
			s.mu.Unlock()
			return nil
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	s.bus.remove(s)
	return nil
}
