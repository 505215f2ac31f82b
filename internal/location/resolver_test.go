package location

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/vfsim/internal/fserr"
	"github.com/stackvity/vfsim/internal/platform"
)

func TestResolveWindows(t *testing.T) {
	r := NewResolver(platform.Windows, false)

	tests := []struct {
		name string
		in   string
		want string
		root string
	}{
		{"ForwardSlashes", "C:/a/b", `C:\a\b`, `C:\`},
		{"DotDot", `c:\A\..\b`, `C:\b`, `C:\`},
		{"DotDotAboveRoot", `C:\..\..\x`, `C:\x`, `C:\`},
		{"TrailingDotsAndSpaces", `C:\dir. \file.txt. `, `C:\dir\file.txt`, `C:\`},
		{"RepeatedSeparators", `C:\\a\\\b\`, `C:\a\b`, `C:\`},
		{"DriveRoot", `d:\`, `D:\`, `D:\`},
		{"UNC", `\\srv\share\dir\f`, `\\srv\share\dir\f`, `\\srv\share\`},
		{"UNCRoot", `\\srv\share`, `\\srv\share\`, `\\srv\share\`},
		{"DevicePrefix", `\\?\C:\x`, `C:\x`, `C:\`},
		{"DeviceUNCPrefix", `\\?\UNC\srv\share\x`, `\\srv\share\x`, `\\srv\share\`},
		{"Relative", `a\b`, `C:\a\b`, `C:\`},
		{"RootedOnCurrentDrive", `\x`, `C:\x`, `C:\`},
		{"DriveRelativeSameDrive", `C:x`, `C:\x`, `C:\`},
		{"DriveRelativeOtherDrive", `E:x`, `E:\x`, `E:\`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			loc, err := r.Resolve(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, loc.FullPath())
			assert.Equal(t, tc.root, loc.Root())
		})
	}

	t.Run("CaseInsensitiveKey", func(t *testing.T) {
		a, err := r.Resolve(`C:\Dir\File.TXT`)
		require.NoError(t, err)
		b, err := r.Resolve(`c:\dir\file.txt`)
		require.NoError(t, err)
		assert.True(t, a.Equal(b))
		assert.Equal(t, `C:\Dir\File.TXT`, a.FullPath(), "display case is preserved")
	})

	t.Run("CaseSensitiveOverride", func(t *testing.T) {
		cs := NewResolver(platform.Windows, true)
		a, err := cs.Resolve(`C:\A`)
		require.NoError(t, err)
		b, err := cs.Resolve(`C:\a`)
		require.NoError(t, err)
		assert.False(t, a.Equal(b))
	})

	t.Run("RelativeToCwd", func(t *testing.T) {
		r := NewResolver(platform.Windows, false)
		cwd, err := r.Resolve(`D:\work\src`)
		require.NoError(t, err)
		r.Chdir(cwd)

		loc, err := r.Resolve(`..\bin\tool.exe`)
		require.NoError(t, err)
		assert.Equal(t, `D:\work\bin\tool.exe`, loc.FullPath())

		loc, err = r.Resolve(`D:file`)
		require.NoError(t, err)
		assert.Equal(t, `D:\work\src\file`, loc.FullPath())

		loc, err = r.Resolve(`\top`)
		require.NoError(t, err)
		assert.Equal(t, `D:\top`, loc.FullPath())
	})
}

func TestResolveUnix(t *testing.T) {
	r := NewResolver(platform.Unix, true)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"Absolute", "/a/b", "/a/b"},
		{"DotDot", "/a/../b", "/b"},
		{"AboveRoot", "/../../x", "/x"},
		{"Dot", "/a/./b/.", "/a/b"},
		{"Relative", "x/y", "/x/y"},
		{"BackslashIsOrdinary", `/a\b`, `/a\b`},
		{"TrailingDotKept", "/a.", "/a."},
		{"Root", "/", "/"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			loc, err := r.Resolve(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, loc.FullPath())
			assert.Equal(t, "/", loc.Root())
		})
	}

	t.Run("CaseSensitiveByDefault", func(t *testing.T) {
		a, _ := r.Resolve("/A")
		b, _ := r.Resolve("/a")
		assert.False(t, a.Equal(b))
	})

	t.Run("RelativeToCwd", func(t *testing.T) {
		r := NewResolver(platform.Unix, true)
		cwd, err := r.Resolve("/home/user")
		require.NoError(t, err)
		r.Chdir(cwd)
		loc, err := r.Resolve("../other/f")
		require.NoError(t, err)
		assert.Equal(t, "/home/other/f", loc.FullPath())
		assert.Equal(t, "/home/user", r.Getwd().FullPath())
	})
}

func TestResolveInvalid(t *testing.T) {
	tests := []struct {
		name string
		mode platform.Mode
		in   string
	}{
		{"EmptyWindows", platform.Windows, ""},
		{"WhitespaceWindows", platform.Windows, "   "},
		{"EmptyUnix", platform.Unix, ""},
		{"WhitespaceUnix", platform.Unix, " \t"},
		{"NulUnix", platform.Unix, "/a\x00b"},
		{"PipeWindows", platform.Windows, `C:\a|b`},
		{"QuoteWindows", platform.Windows, `C:\"a"`},
		{"WildcardWindows", platform.Windows, `C:\*.txt`},
		{"ControlCharWindows", platform.Windows, "C:\\a\x01"},
		{"ColonInSegment", platform.Windows, `C:\a:b`},
		{"BadUNC", platform.Windows, `\\server`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewResolver(tc.mode, tc.mode.CaseSensitiveByDefault())
			_, err := r.Resolve(tc.in)
			require.Error(t, err)
			assert.Equal(t, fserr.InvalidArgument, fserr.KindOf(err))
			assert.ErrorIs(t, err, fserr.ErrInvalidArgument)
		})
	}

	t.Run("WildcardIsOrdinaryOnUnix", func(t *testing.T) {
		r := NewResolver(platform.Unix, true)
		loc, err := r.Resolve("/a*?|b")
		require.NoError(t, err)
		assert.Equal(t, "/a*?|b", loc.FullPath())
	})
}

func TestResolveDrive(t *testing.T) {
	t.Run("Windows", func(t *testing.T) {
		r := NewResolver(platform.Windows, false)
		for _, name := range []string{"d", "D:", `D:\`, `d:\some\dir`} {
			loc, err := r.ResolveDrive(name)
			require.NoError(t, err, name)
			assert.Equal(t, `D:\`, loc.FullPath())
			assert.True(t, loc.IsRoot())
		}
		loc, err := r.ResolveDrive(`\\srv\share`)
		require.NoError(t, err)
		assert.Equal(t, `\\srv\share\`, loc.FullPath())
	})

	t.Run("Unix", func(t *testing.T) {
		r := NewResolver(platform.Unix, true)
		loc, err := r.ResolveDrive("/")
		require.NoError(t, err)
		assert.Equal(t, "/", loc.FullPath())

		_, err = r.ResolveDrive("C")
		assert.ErrorIs(t, err, fserr.ErrInvalidArgument)
	})

	t.Run("Empty", func(t *testing.T) {
		r := NewResolver(platform.Windows, false)
		_, err := r.ResolveDrive(" ")
		assert.ErrorIs(t, err, fserr.ErrInvalidArgument)
	})
}

func TestPathHelpers(t *testing.T) {
	win := NewResolver(platform.Windows, false)
	nix := NewResolver(platform.Unix, true)

	t.Run("Join", func(t *testing.T) {
		assert.Equal(t, "a/b", nix.Join("a", "b"))
		assert.Equal(t, "/b", nix.Join("/a", "../b"))
		assert.Equal(t, "/x/y", nix.Join("a", "/x", "", "y"))
		assert.Equal(t, `C:\a\b`, win.Join(`C:\a`, "b"))
		assert.Equal(t, `D:\x`, win.Join(`C:\a`, `D:\x`))
		assert.Equal(t, "", nix.Join("", ""))
	})

	t.Run("Clean", func(t *testing.T) {
		assert.Equal(t, `C:\a\b`, win.Clean("C:/a//b/./c/.."))
		assert.Equal(t, `..\x`, win.Clean(`..\x`))
		assert.Equal(t, "/", nix.Clean("/.."))
		assert.Equal(t, ".", nix.Clean(""))
		assert.Equal(t, ".", nix.Clean("a/.."))
	})

	t.Run("BaseDirExt", func(t *testing.T) {
		assert.Equal(t, "b.txt", win.Base(`C:\a\b.txt`))
		assert.Equal(t, `C:\a`, win.Dir(`C:\a\b.txt`))
		assert.Equal(t, `C:\`, win.Dir(`C:\a`))
		assert.Equal(t, `C:\`, win.Base(`C:\`))
		assert.Equal(t, "c", nix.Base("/a/b/c/"))
		assert.Equal(t, "/", nix.Dir("/a"))
		assert.Equal(t, ".", nix.Dir("a"))
		assert.Equal(t, ".gz", nix.Ext("/a/b.tar.gz"))
		assert.Equal(t, ".bashrc", nix.Ext("/home/.bashrc"))
		assert.Equal(t, "", nix.Ext("/a/noext"))
	})

	t.Run("ChangeExtension", func(t *testing.T) {
		assert.Equal(t, "/a/b.md", nix.ChangeExtension("/a/b.txt", "md"))
		assert.Equal(t, "/a/b.md", nix.ChangeExtension("/a/b", ".md"))
		assert.Equal(t, "/a/b", nix.ChangeExtension("/a/b.txt", ""))
	})

	t.Run("IsRooted", func(t *testing.T) {
		assert.True(t, win.IsRooted(`C:\x`))
		assert.True(t, win.IsRooted(`C:x`))
		assert.True(t, win.IsRooted(`/x`))
		assert.False(t, win.IsRooted(`x`))
		assert.True(t, nix.IsRooted("/x"))
		assert.False(t, nix.IsRooted(`\x`))
		assert.False(t, nix.IsRooted(""))
	})
}
