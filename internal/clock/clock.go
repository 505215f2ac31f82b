// Package clock provides the injectable time source used for container
// timestamps. Production code uses Real(); tests use Fake() and advance time
// explicitly so timestamp assertions are deterministic.
package clock

import (
	"sync"
	"time"
)

// Clock abstracts time.Now for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

// Real returns a Clock backed by time.Now.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

// FakeClock is a deterministic Clock. Time stands still until Advance or Set
// is called. An optional auto-step advances the clock after every Now call so
// consecutive operations get distinct timestamps.
//
// FakeClock is safe for concurrent use by multiple goroutines.
type FakeClock struct {
	mu       sync.Mutex
	current  time.Time
	autoStep time.Duration
}

// Fake returns a FakeClock initialized to the given time.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// Now returns the current fake time, then applies the auto-step if configured.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.current
	c.current = c.current.Add(c.autoStep)
	return now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Set moves the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

// SetAutoStep makes every Now call advance the clock by d afterwards. Zero disables it.
func (c *FakeClock) SetAutoStep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoStep = d
}
