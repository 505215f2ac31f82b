package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("StandsStill", func(t *testing.T) {
		c := Fake(start)
		assert.Equal(t, start, c.Now())
		assert.Equal(t, start, c.Now())
	})

	t.Run("Advance", func(t *testing.T) {
		c := Fake(start)
		c.Advance(5 * time.Second)
		assert.Equal(t, start.Add(5*time.Second), c.Now())
	})

	t.Run("AutoStep", func(t *testing.T) {
		c := Fake(start)
		c.SetAutoStep(time.Millisecond)
		assert.Equal(t, start, c.Now())
		assert.Equal(t, start.Add(time.Millisecond), c.Now())
	})

	t.Run("Set", func(t *testing.T) {
		c := Fake(start)
		later := start.Add(time.Hour)
		c.Set(later)
		assert.Equal(t, later, c.Now())
	})
}

func TestRealClock(t *testing.T) {
	before := time.Now()
	now := Real().Now()
	assert.False(t, now.Before(before))
}
