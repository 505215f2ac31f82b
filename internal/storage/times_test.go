package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/vfsim/internal/notify"
	"github.com/stackvity/vfsim/internal/platform"
)

func TestDefaultTimeRules(t *testing.T) {
	win := DefaultTimeRules(platform.Windows)
	nix := DefaultTimeRules(platform.Unix)

	assert.Equal(t, LastWriteTime|LastAccessTime, win.Fields(OpWrite))
	assert.Equal(t, LastWriteTime, nix.Fields(OpWrite))
	assert.Equal(t, LastAccessTime, win.Fields(OpRead))
	assert.Equal(t, LastAccessTime, nix.Fields(OpRead))
	assert.Equal(t, LastWriteTime|LastAccessTime, win.Fields(OpChildChange))
	assert.Equal(t, LastWriteTime, nix.Fields(OpChildChange))
	assert.Zero(t, nix.Fields(OpMoveTarget))
	assert.Equal(t, notify.LastWrite|notify.LastAccess, win.Fields(OpWrite).Filters())
}

func TestParseTimeRules(t *testing.T) {
	t.Run("Overrides", func(t *testing.T) {
		base := DefaultTimeRules(platform.Windows)
		rules, err := ParseTimeRules(base, map[string][]string{
			"read":        {},
			"childchange": {"lastWrite"},
			"Close":       {"LastAccess", "lastwrite"},
		})
		require.NoError(t, err)
		assert.Zero(t, rules.Fields(OpRead))
		assert.Equal(t, LastWriteTime, rules.Fields(OpChildChange))
		assert.Equal(t, LastAccessTime|LastWriteTime, rules.Fields(OpClose))
		assert.Equal(t, LastAccessTime, base.Fields(OpRead), "base is not modified")
	})

	t.Run("UnknownOperation", func(t *testing.T) {
		_, err := ParseTimeRules(TimeRules{}, map[string][]string{"bogus": {"lastWrite"}})
		assert.ErrorContains(t, err, "bogus")
	})

	t.Run("UnknownField", func(t *testing.T) {
		_, err := ParseTimeRules(TimeRules{}, map[string][]string{"write": {"birth"}})
		assert.ErrorContains(t, err, "birth")
	})
}

func TestTimesFollowRules(t *testing.T) {
	t.Run("WindowsWriteTouchesAccess", func(t *testing.T) {
		f := newFixture(t, platform.Windows)
		f.write(t, `C:\f`, "a")
		f.clk.Advance(time.Minute)
		f.write(t, `C:\f`, "b")
		info := mustGet(t, f.reg, f.loc(t, `C:\f`))
		assert.Equal(t, epoch, info.Times.Creation)
		assert.Equal(t, epoch.Add(time.Minute), info.Times.LastWrite)
		assert.Equal(t, epoch.Add(time.Minute), info.Times.LastAccess)
	})

	t.Run("UnixWriteLeavesAccess", func(t *testing.T) {
		f := newFixture(t, platform.Unix)
		f.write(t, "/f", "a")
		f.clk.Advance(time.Minute)
		f.write(t, "/f", "b")
		info := mustGet(t, f.reg, f.loc(t, "/f"))
		assert.Equal(t, epoch.Add(time.Minute), info.Times.LastWrite)
		assert.Equal(t, epoch, info.Times.LastAccess)
	})

	t.Run("ReadTouchesAccessOnly", func(t *testing.T) {
		f := newFixture(t, platform.Unix)
		f.write(t, "/f", "a")
		f.clk.Advance(time.Minute)
		res, err := f.reg.Open(f.loc(t, "/f"), OpenRequest{Disposition: Open, Access: AccessRead, Share: ShareRead})
		require.NoError(t, err)
		f.reg.Touch(res.Handle, OpRead)
		require.NoError(t, f.reg.Release(res.Handle, false))
		info := mustGet(t, f.reg, f.loc(t, "/f"))
		assert.Equal(t, epoch.Add(time.Minute), info.Times.LastAccess)
		assert.Equal(t, epoch, info.Times.LastWrite)
	})

	t.Run("ChildChangeTouchesParent", func(t *testing.T) {
		f := newFixture(t, platform.Unix)
		f.mkdir(t, "/d")
		f.clk.Advance(time.Hour)
		f.write(t, "/d/new", "")
		assert.Equal(t, epoch.Add(time.Hour), mustGet(t, f.reg, f.loc(t, "/d")).Times.LastWrite)
	})

	t.Run("ConfigurableTable", func(t *testing.T) {
		rules, err := ParseTimeRules(DefaultTimeRules(platform.Windows), map[string][]string{"write": {"lastWrite"}})
		require.NoError(t, err)
		f := newFixture(t, platform.Windows)
		f.reg.rules = rules
		f.write(t, `C:\f`, "a")
		f.clk.Advance(time.Minute)
		f.write(t, `C:\f`, "b")
		info := mustGet(t, f.reg, f.loc(t, `C:\f`))
		assert.Equal(t, epoch, info.Times.LastAccess)
	})
}
