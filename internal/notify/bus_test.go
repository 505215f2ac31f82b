package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/vfsim/internal/location"
	"github.com/stackvity/vfsim/internal/platform"
)

func loc(t *testing.T, r *location.Resolver, path string) location.Location {
	t.Helper()
	l, err := r.Resolve(path)
	require.NoError(t, err)
	return l
}

func TestBus(t *testing.T) {
	r := location.NewResolver(platform.Unix, true)
	created := Event{Type: Created, Entry: File, Filters: FileName, Location: loc(t, r, "/a.txt")}

	t.Run("InterceptRunsInRegistrationOrder", func(t *testing.T) {
		b := NewBus(nil)
		var order []int
		b.Intercept(nil, func(Event) error { order = append(order, 1); return nil })
		b.Intercept(nil, func(Event) error { order = append(order, 2); return nil })
		require.NoError(t, b.Pending(created))
		assert.Equal(t, []int{1, 2}, order)
	})

	t.Run("VetoStopsLaterInterceptors", func(t *testing.T) {
		b := NewBus(nil)
		veto := errors.New("read-only test tree")
		called := false
		b.Intercept(nil, func(Event) error { return veto })
		b.Intercept(nil, func(Event) error { called = true; return nil })
		assert.ErrorIs(t, b.Pending(created), veto)
		assert.False(t, called)
	})

	t.Run("PredicateFilters", func(t *testing.T) {
		b := NewBus(nil)
		var got []Event
		b.Notify(func(e Event) bool { return e.Type == Deleted }, func(e Event) { got = append(got, e) })
		deleted := created
		deleted.Type = Deleted
		b.Occurred(created, deleted)
		require.Len(t, got, 1)
		assert.Equal(t, Deleted, got[0].Type)
	})

	t.Run("CloseUnregisters", func(t *testing.T) {
		b := NewBus(nil)
		n := 0
		sub := b.Notify(nil, func(Event) { n++ })
		b.Occurred(created)
		require.NoError(t, sub.Close())
		require.NoError(t, sub.Close())
		b.Occurred(created)
		assert.Equal(t, 1, n)
		assert.False(t, b.HasSubscribers())
	})

	t.Run("Wait", func(t *testing.T) {
		b := NewBus(nil)
		sub := b.Notify(nil, func(Event) {})
		go func() {
			for i := 0; i < 3; i++ {
				b.Occurred(created)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, sub.Wait(ctx, 3))
		assert.Equal(t, 3, sub.Count())
	})

	t.Run("WaitHonorsContext", func(t *testing.T) {
		b := NewBus(nil)
		sub := b.Intercept(nil, func(Event) error { return nil })
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, sub.Wait(ctx, 1), context.DeadlineExceeded)
	})
}

func TestEventStrings(t *testing.T) {
	r := location.NewResolver(platform.Unix, true)
	ev := Event{Type: Renamed, Entry: Directory, OldLocation: loc(t, r, "/a"), Location: loc(t, r, "/b")}
	assert.Equal(t, "Renamed Directory /a -> /b", ev.String())
	assert.Equal(t, "Created|Deleted", (Created | Deleted).String())
	assert.Equal(t, "FileName|Size", (FileName | Size).String())
	assert.Equal(t, "None", Filters(0).String())

	f, err := ParseFilters([]string{"filename", " LastWrite "})
	require.NoError(t, err)
	assert.Equal(t, FileName|LastWrite, f)
	_, err = ParseFilters([]string{"bogus"})
	assert.Error(t, err)
}
