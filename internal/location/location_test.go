package location

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/vfsim/internal/platform"
)

func mustResolve(t *testing.T, r *Resolver, path string) Location {
	t.Helper()
	loc, err := r.Resolve(path)
	require.NoError(t, err)
	return loc
}

func TestLocation(t *testing.T) {
	nix := NewResolver(platform.Unix, true)
	win := NewResolver(platform.Windows, false)

	t.Run("ZeroValue", func(t *testing.T) {
		var l Location
		assert.True(t, l.IsZero())
		_, ok := l.Parent()
		assert.False(t, ok)
		assert.Equal(t, 0, l.Depth())
	})

	t.Run("ParentChain", func(t *testing.T) {
		l := mustResolve(t, nix, "/a/b/c")
		p, ok := l.Parent()
		require.True(t, ok)
		assert.Equal(t, "/a/b", p.FullPath())
		p, _ = p.Parent()
		p, ok = p.Parent()
		require.True(t, ok)
		assert.Equal(t, "/", p.FullPath())
		assert.True(t, p.IsRoot())
		_, ok = p.Parent()
		assert.False(t, ok)
	})

	t.Run("WindowsParentIsDriveRoot", func(t *testing.T) {
		l := mustResolve(t, win, `C:\a`)
		p, ok := l.Parent()
		require.True(t, ok)
		assert.Equal(t, `C:\`, p.FullPath())

		u := mustResolve(t, win, `\\srv\share\a`)
		p, ok = u.Parent()
		require.True(t, ok)
		assert.Equal(t, `\\srv\share\`, p.FullPath())
	})

	t.Run("NameAndChild", func(t *testing.T) {
		root := mustResolve(t, nix, "/")
		assert.Equal(t, "/", root.Name())
		c := root.Child("x").Child("y.txt")
		assert.Equal(t, "/x/y.txt", c.FullPath())
		assert.Equal(t, "y.txt", c.Name())
		assert.Equal(t, 2, c.Depth())
		assert.Equal(t, []string{"x", "y.txt"}, c.Segments())
		assert.Equal(t, "/x/z", c.WithName("z").FullPath())
	})

	t.Run("Contains", func(t *testing.T) {
		a := mustResolve(t, nix, "/a")
		assert.True(t, a.Contains(mustResolve(t, nix, "/a/b")))
		assert.False(t, a.Contains(a), "strict descendant only")
		assert.False(t, a.Contains(mustResolve(t, nix, "/ab")))
		assert.True(t, mustResolve(t, nix, "/").Contains(a))

		w := mustResolve(t, win, `C:\Dir`)
		assert.True(t, w.Contains(mustResolve(t, win, `c:\dir\x`)))
		assert.Equal(t, "x", w.Rel(mustResolve(t, win, `c:\dir\x`)))
	})

	t.Run("Rebase", func(t *testing.T) {
		oldBase := mustResolve(t, nix, "/src")
		newBase := mustResolve(t, nix, "/dst/moved")
		l := mustResolve(t, nix, "/src/x/y")
		assert.Equal(t, "/dst/moved/x/y", l.Rebase(oldBase, newBase).FullPath())
		assert.Equal(t, "/dst/moved", oldBase.Rebase(oldBase, newBase).FullPath())
		other := mustResolve(t, nix, "/elsewhere")
		assert.Equal(t, other, other.Rebase(oldBase, newBase))
	})

	t.Run("CompareIsOrdinalByKey", func(t *testing.T) {
		a := mustResolve(t, win, `C:\B`)
		b := mustResolve(t, win, `C:\a`)
		assert.Positive(t, Compare(a, b))
		assert.Zero(t, Compare(a, mustResolve(t, win, `c:\b`)))
	})
}
