package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackvity/vfsim/internal/clock"
	"github.com/stackvity/vfsim/internal/fserr"
	"github.com/stackvity/vfsim/internal/location"
	"github.com/stackvity/vfsim/internal/notify"
	"github.com/stackvity/vfsim/internal/platform"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	reg *Registry
	res *location.Resolver
	clk *clock.FakeClock
	bus *notify.Bus
}

func newFixture(t *testing.T, mode platform.Mode) *fixture {
	t.Helper()
	clk := clock.Fake(epoch)
	bus := notify.NewBus(nil)
	reg := NewRegistry(Options{
		Mode:          mode,
		StrictSharing: mode.StrictSharingByDefault(),
		Clock:         clk,
		Bus:           bus,
	})
	return &fixture{reg: reg, res: location.NewResolver(mode, mode.CaseSensitiveByDefault()), clk: clk, bus: bus}
}

func (f *fixture) loc(t *testing.T, path string) location.Location {
	t.Helper()
	l, err := f.res.Resolve(path)
	require.NoError(t, err)
	return l
}

func (f *fixture) mkdir(t *testing.T, path string) {
	t.Helper()
	_, err := f.reg.CreateDirectory(f.loc(t, path))
	require.NoError(t, err)
}

// write stores data at path through an exclusive handle.
func (f *fixture) write(t *testing.T, path string, data string) {
	t.Helper()
	res, err := f.reg.Open(f.loc(t, path), OpenRequest{Disposition: Create, Access: AccessWrite, Share: ShareNone})
	require.NoError(t, err)
	require.NoError(t, f.reg.Flush(res.Handle, []byte(data)))
	require.NoError(t, f.reg.Release(res.Handle, false))
}

func (f *fixture) read(t *testing.T, path string) string {
	t.Helper()
	res, err := f.reg.Open(f.loc(t, path), OpenRequest{Disposition: Open, Access: AccessRead, Share: ShareRead})
	require.NoError(t, err)
	require.NoError(t, f.reg.Release(res.Handle, false))
	return string(res.Data)
}

func (f *fixture) record() *[]notify.Event {
	var events []notify.Event
	f.bus.Notify(nil, func(e notify.Event) { events = append(events, e) })
	return &events
}

func TestGetOrCreate(t *testing.T) {
	t.Run("CreatesOnceAndReportsAbsentBefore", func(t *testing.T) {
		f := newFixture(t, platform.Unix)
		l := f.loc(t, "/a.txt")
		_, ok := f.reg.Get(l)
		assert.False(t, ok)

		info, created, err := f.reg.GetOrCreate(l, KindFile)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, KindFile, info.Kind)
		assert.Equal(t, epoch, info.Times.Creation)

		_, created, err = f.reg.GetOrCreate(l, KindFile)
		require.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("MissingParent", func(t *testing.T) {
		f := newFixture(t, platform.Windows)
		_, _, err := f.reg.GetOrCreate(f.loc(t, `C:\no\such\file`), KindFile)
		assert.Equal(t, fserr.DirectoryNotFound, fserr.KindOf(err))
		assert.Equal(t, fserr.HResultPathNotFound, fserr.CodeOf(err))
	})

	t.Run("KindConflicts", func(t *testing.T) {
		f := newFixture(t, platform.Unix)
		f.mkdir(t, "/d")
		f.write(t, "/f", "x")
		_, _, err := f.reg.GetOrCreate(f.loc(t, "/d"), KindFile)
		assert.ErrorIs(t, err, fserr.ErrAccessDenied)
		_, _, err = f.reg.GetOrCreate(f.loc(t, "/f"), KindDirectory)
		assert.ErrorIs(t, err, fserr.ErrAlreadyExists)
	})

	t.Run("CaseInsensitiveSharesKey", func(t *testing.T) {
		f := newFixture(t, platform.Windows)
		_, _, err := f.reg.GetOrCreate(f.loc(t, `C:\Report.TXT`), KindFile)
		require.NoError(t, err)
		info, ok := f.reg.Get(f.loc(t, `c:\report.txt`))
		require.True(t, ok)
		assert.Equal(t, `C:\Report.TXT`, info.Location.FullPath())
	})

	t.Run("AttributesByPlatform", func(t *testing.T) {
		w := newFixture(t, platform.Windows)
		info, _, err := w.reg.GetOrCreate(w.loc(t, `C:\f`), KindFile)
		require.NoError(t, err)
		assert.Equal(t, Archive, info.Attributes)

		u := newFixture(t, platform.Unix)
		info, _, err = u.reg.GetOrCreate(u.loc(t, "/.profile"), KindFile)
		require.NoError(t, err)
		assert.Equal(t, Hidden, info.Attributes)
		info, _, err = u.reg.GetOrCreate(u.loc(t, "/plain"), KindFile)
		require.NoError(t, err)
		assert.Equal(t, Normal, info.Attributes)
		assert.Equal(t, Directory, mustGet(t, u.reg, u.loc(t, "/")).Attributes)
	})
}

func mustGet(t *testing.T, r *Registry, l location.Location) Info {
	t.Helper()
	info, ok := r.Get(l)
	require.True(t, ok, "expected %s to exist", l)
	return info
}

func TestCreateDirectory(t *testing.T) {
	f := newFixture(t, platform.Unix)
	events := f.record()

	created, err := f.reg.CreateDirectory(f.loc(t, "/a/b/c"))
	require.NoError(t, err)
	require.Len(t, created, 3)
	assert.Equal(t, "/a", created[0].FullPath())
	assert.Equal(t, "/a/b/c", created[2].FullPath())

	var creates []string
	for _, e := range *events {
		if e.Type == notify.Created {
			creates = append(creates, e.Path())
		}
	}
	assert.Equal(t, []string{"/a", "/a/b", "/a/b/c"}, creates)

	created, err = f.reg.CreateDirectory(f.loc(t, "/a/b"))
	require.NoError(t, err)
	assert.Empty(t, created)

	f.write(t, "/a/file", "")
	_, err = f.reg.CreateDirectory(f.loc(t, "/a/file/sub"))
	assert.ErrorIs(t, err, fserr.ErrAlreadyExists)
}

func TestDelete(t *testing.T) {
	t.Run("DeleteMakesAbsent", func(t *testing.T) {
		for _, mode := range []platform.Mode{platform.Windows, platform.Unix} {
			f := newFixture(t, mode)
			l := f.loc(t, mode.DefaultRoot()+"victim")
			f.write(t, l.FullPath(), "bytes")
			require.NoError(t, f.reg.Delete(l, Files, false))
			_, ok := f.reg.Get(l)
			assert.False(t, ok)
			assert.False(t, f.reg.Exists(l, Any))
			assert.False(t, f.reg.Exists(l, Any), "exists is idempotent")
		}
	})

	t.Run("ScenarioRecursive", func(t *testing.T) {
		f := newFixture(t, platform.Unix)
		_, _, err := f.reg.GetOrCreate(f.loc(t, "/a"), KindDirectory)
		require.NoError(t, err)
		_, _, err = f.reg.GetOrCreate(f.loc(t, "/a/b"), KindDirectory)
		require.NoError(t, err)

		err = f.reg.Delete(f.loc(t, "/a"), Directories, false)
		assert.ErrorIs(t, err, fserr.ErrNotEmpty)
		assert.True(t, f.reg.Exists(f.loc(t, "/a/b"), Directories))

		events := f.record()
		require.NoError(t, f.reg.Delete(f.loc(t, "/a"), Directories, true))
		assert.False(t, f.reg.Exists(f.loc(t, "/a"), Any))
		assert.False(t, f.reg.Exists(f.loc(t, "/a/b"), Any))

		var deleted []string
		for _, e := range *events {
			if e.Type == notify.Deleted {
				deleted = append(deleted, e.Path())
			}
		}
		assert.Equal(t, []string{"/a", "/a/b"}, deleted, "one event per entry, parents first")
	})

	t.Run("MissingFileIsNoOp", func(t *testing.T) {
		f := newFixture(t, platform.Windows)
		assert.NoError(t, f.reg.Delete(f.loc(t, `C:\missing`), Files, false))
		err := f.reg.Delete(f.loc(t, `C:\nodir\missing`), Files, false)
		assert.ErrorIs(t, err, fserr.ErrDirectoryNotFound)
		err = f.reg.Delete(f.loc(t, `C:\missing`), Any, false)
		assert.ErrorIs(t, err, fserr.ErrFileNotFound)
		err = f.reg.Delete(f.loc(t, `C:\missing`), Directories, false)
		assert.ErrorIs(t, err, fserr.ErrDirectoryNotFound)
	})

	t.Run("KindMismatch", func(t *testing.T) {
		f := newFixture(t, platform.Windows)
		f.mkdir(t, `C:\d`)
		f.write(t, `C:\f`, "")
		assert.ErrorIs(t, f.reg.Delete(f.loc(t, `C:\d`), Files, false), fserr.ErrAccessDenied)
		assert.ErrorIs(t, f.reg.Delete(f.loc(t, `C:\f`), Directories, false), fserr.ErrDirectoryNotFound)
	})

	t.Run("RootIsProtected", func(t *testing.T) {
		f := newFixture(t, platform.Unix)
		assert.ErrorIs(t, f.reg.Delete(f.loc(t, "/"), Any, true), fserr.ErrAccessDenied)
	})

	t.Run("ReadOnlyOnWindows", func(t *testing.T) {
		f := newFixture(t, platform.Windows)
		f.write(t, `C:\ro`, "x")
		require.NoError(t, f.reg.SetAttributes(f.loc(t, `C:\ro`), ReadOnly))
		err := f.reg.Delete(f.loc(t, `C:\ro`), Files, false)
		assert.ErrorIs(t, err, fserr.ErrAccessDenied)
		assert.NotErrorIs(t, err, fserr.ErrSharingViolation)
	})

	t.Run("OpenHandleBlocksDeleteUnlessShared", func(t *testing.T) {
		f := newFixture(t, platform.Windows)
		f.write(t, `C:\busy`, "x")
		res, err := f.reg.Open(f.loc(t, `C:\busy`), OpenRequest{Disposition: Open, Access: AccessRead, Share: ShareRead})
		require.NoError(t, err)
		err = f.reg.Delete(f.loc(t, `C:\busy`), Files, false)
		assert.ErrorIs(t, err, fserr.ErrSharingViolation)
		assert.Equal(t, fserr.HResultSharingViolation, fserr.CodeOf(err))
		require.NoError(t, f.reg.Release(res.Handle, false))

		res, err = f.reg.Open(f.loc(t, `C:\busy`), OpenRequest{Disposition: Open, Access: AccessRead, Share: ShareRead | ShareDelete})
		require.NoError(t, err)
		assert.NoError(t, f.reg.Delete(f.loc(t, `C:\busy`), Files, false))
		require.NoError(t, f.reg.Release(res.Handle, false))
	})

	t.Run("ReleasesDriveSpace", func(t *testing.T) {
		f := newFixture(t, platform.Unix)
		f.mkdir(t, "/d")
		f.write(t, "/d/a", "12345")
		f.write(t, "/d/b", "123")
		assert.Equal(t, int64(8), f.reg.Drive(f.loc(t, "/")).Used)
		require.NoError(t, f.reg.Delete(f.loc(t, "/d"), Directories, true))
		assert.Equal(t, int64(0), f.reg.Drive(f.loc(t, "/")).Used)
	})
}

func TestRoundTripAndCapacity(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		f := newFixture(t, platform.Unix)
		for _, data := range []string{"hello", "", "\x00\x01\x02"} {
			f.write(t, "/rt", data)
			assert.Equal(t, data, f.read(t, "/rt"))
		}
	})

	t.Run("DiskFullLeavesContentUnchanged", func(t *testing.T) {
		f := newFixture(t, platform.Windows)
		require.NoError(t, f.reg.SetDrive(f.loc(t, `C:\`), 10, "SMALL"))
		f.write(t, `C:\f`, "1234")

		res, err := f.reg.Open(f.loc(t, `C:\f`), OpenRequest{Disposition: Open, Access: AccessReadWrite, Share: ShareNone})
		require.NoError(t, err)
		err = f.reg.Flush(res.Handle, []byte("12345678901"))
		assert.ErrorIs(t, err, fserr.ErrDiskFull)
		assert.Equal(t, fserr.HResultDiskFull, fserr.CodeOf(err))
		require.NoError(t, f.reg.Flush(res.Handle, []byte("1234567890")))
		require.NoError(t, f.reg.Release(res.Handle, false))

		assert.Equal(t, "1234567890", f.read(t, `C:\f`))
		d := f.reg.Drive(f.loc(t, `C:\`))
		assert.Equal(t, int64(10), d.Used)
		assert.Equal(t, int64(0), d.Free)
		assert.Equal(t, "SMALL", d.Label)

		res, err = f.reg.Open(f.loc(t, `C:\f`), OpenRequest{Disposition: Open, Access: AccessWrite, Share: ShareNone})
		require.NoError(t, err)
		assert.ErrorIs(t, f.reg.Flush(res.Handle, []byte("12345678901")), fserr.ErrDiskFull)
		require.NoError(t, f.reg.Release(res.Handle, false))
		assert.Equal(t, "1234567890", f.read(t, `C:\f`))
	})

	t.Run("CapacityBelowUsage", func(t *testing.T) {
		f := newFixture(t, platform.Unix)
		f.write(t, "/f", "1234")
		assert.ErrorIs(t, f.reg.SetDrive(f.loc(t, "/"), 3, ""), fserr.ErrInvalidArgument)
	})

	t.Run("DrivesAreLazy", func(t *testing.T) {
		f := newFixture(t, platform.Windows)
		assert.Empty(t, f.reg.Drives())
		f.mkdir(t, `D:\data`)
		_, ok := f.reg.Get(f.loc(t, `E:\`))
		assert.True(t, ok, "addressing a root materializes it")
		drives := f.reg.Drives()
		require.Len(t, drives, 2)
		assert.Equal(t, `D:\`, drives[0].Name)
		assert.Equal(t, "NTFS", drives[0].Format)
		assert.Equal(t, `E:\`, drives[1].Name)

		f.mkdir(t, `\\srv\share\x`)
		assert.Equal(t, DriveNetwork, f.reg.Drive(f.loc(t, `\\srv\share\x`)).Type)
	})
}

func TestCopy(t *testing.T) {
	t.Run("ValueCopy", func(t *testing.T) {
		f := newFixture(t, platform.Unix)
		f.write(t, "/src", "original")
		require.NoError(t, f.reg.Copy(f.loc(t, "/src"), f.loc(t, "/dst"), false))
		f.write(t, "/src", "changed")
		assert.Equal(t, "original", f.read(t, "/dst"))
	})

	t.Run("ExistingDestination", func(t *testing.T) {
		f := newFixture(t, platform.Windows)
		f.write(t, `C:\a`, "a")
		f.write(t, `C:\b`, "b")
		err := f.reg.Copy(f.loc(t, `C:\a`), f.loc(t, `C:\b`), false)
		assert.ErrorIs(t, err, fserr.ErrAlreadyExists)
		assert.Equal(t, fserr.HResultFileExists, fserr.CodeOf(err))

		require.NoError(t, f.reg.Copy(f.loc(t, `C:\a`), f.loc(t, `C:\b`), true))
		assert.Equal(t, "a", f.read(t, `C:\b`))
	})

	t.Run("Errors", func(t *testing.T) {
		f := newFixture(t, platform.Unix)
		f.mkdir(t, "/dir")
		f.write(t, "/f", "x")
		assert.ErrorIs(t, f.reg.Copy(f.loc(t, "/missing"), f.loc(t, "/x"), false), fserr.ErrFileNotFound)
		assert.ErrorIs(t, f.reg.Copy(f.loc(t, "/dir"), f.loc(t, "/x"), false), fserr.ErrAccessDenied)
		assert.ErrorIs(t, f.reg.Copy(f.loc(t, "/f"), f.loc(t, "/nodir/x"), false), fserr.ErrDirectoryNotFound)
		assert.ErrorIs(t, f.reg.Copy(f.loc(t, "/f"), f.loc(t, "/dir"), true), fserr.ErrAccessDenied)
	})

	t.Run("WindowsKeepsSourceLastWrite", func(t *testing.T) {
		f := newFixture(t, platform.Windows)
		f.write(t, `C:\src`, "x")
		written := mustGet(t, f.reg, f.loc(t, `C:\src`)).Times.LastWrite
		f.clk.Advance(time.Hour)
		require.NoError(t, f.reg.Copy(f.loc(t, `C:\src`), f.loc(t, `C:\dst`), false))
		info := mustGet(t, f.reg, f.loc(t, `C:\dst`))
		assert.Equal(t, written, info.Times.LastWrite)
		assert.Equal(t, epoch.Add(time.Hour), info.Times.Creation)
	})

	t.Run("CapacityChecked", func(t *testing.T) {
		f := newFixture(t, platform.Unix)
		require.NoError(t, f.reg.SetDrive(f.loc(t, "/"), 6, ""))
		f.write(t, "/f", "1234")
		assert.ErrorIs(t, f.reg.Copy(f.loc(t, "/f"), f.loc(t, "/g"), false), fserr.ErrDiskFull)
		assert.False(t, f.reg.Exists(f.loc(t, "/g"), Any))
	})
}

func TestMove(t *testing.T) {
	t.Run("DirectoryWithDescendants", func(t *testing.T) {
		f := newFixture(t, platform.Unix)
		f.mkdir(t, "/src/sub")
		f.write(t, "/src/sub/f", "payload")
		f.mkdir(t, "/dst")
		events := f.record()

		err := f.reg.Move(f.loc(t, "/src"), f.loc(t, "/dst/moved"), false, false)
		assert.ErrorIs(t, err, fserr.ErrNotEmpty)

		require.NoError(t, f.reg.Move(f.loc(t, "/src"), f.loc(t, "/dst/moved"), true, false))
		assert.False(t, f.reg.Exists(f.loc(t, "/src"), Any))
		assert.Equal(t, "payload", f.read(t, "/dst/moved/sub/f"))

		var renames []notify.Event
		for _, e := range *events {
			if e.Type == notify.Renamed {
				renames = append(renames, e)
			}
		}
		require.Len(t, renames, 1)
		assert.Equal(t, "/src", renames[0].OldPath())
		assert.Equal(t, "/dst/moved", renames[0].Path())
	})

	t.Run("IntoOwnSubtree", func(t *testing.T) {
		f := newFixture(t, platform.Unix)
		f.mkdir(t, "/a/b")
		err := f.reg.Move(f.loc(t, "/a"), f.loc(t, "/a/b/c"), true, false)
		assert.ErrorIs(t, err, fserr.ErrInvalidArgument)
	})

	t.Run("ExistingDestination", func(t *testing.T) {
		f := newFixture(t, platform.Windows)
		f.write(t, `C:\a`, "a")
		f.write(t, `C:\b`, "b")
		assert.ErrorIs(t, f.reg.Move(f.loc(t, `C:\a`), f.loc(t, `C:\b`), false, false), fserr.ErrAlreadyExists)
		require.NoError(t, f.reg.Move(f.loc(t, `C:\a`), f.loc(t, `C:\b`), false, true))
		assert.Equal(t, "a", f.read(t, `C:\b`))
		assert.Equal(t, int64(1), f.reg.Drive(f.loc(t, `C:\`)).Used)
	})

	t.Run("CaseOnlyRename", func(t *testing.T) {
		f := newFixture(t, platform.Windows)
		f.write(t, `C:\readme.txt`, "x")
		require.NoError(t, f.reg.Move(f.loc(t, `C:\readme.txt`), f.loc(t, `C:\README.TXT`), false, false))
		assert.Equal(t, `C:\README.TXT`, mustGet(t, f.reg, f.loc(t, `C:\readme.txt`)).Location.FullPath())
	})

	t.Run("OpenHandleFollowsMove", func(t *testing.T) {
		f := newFixture(t, platform.Windows)
		f.write(t, `C:\a`, "old")
		res, err := f.reg.Open(f.loc(t, `C:\a`), OpenRequest{Disposition: Open, Access: AccessWrite, Share: ShareDelete})
		require.NoError(t, err)
		require.NoError(t, f.reg.Move(f.loc(t, `C:\a`), f.loc(t, `C:\b`), false, false))
		require.NoError(t, f.reg.Flush(res.Handle, []byte("new")))
		require.NoError(t, f.reg.Release(res.Handle, false))
		assert.Equal(t, "new", f.read(t, `C:\b`))
	})

	t.Run("SharingViolationWithoutDeleteShare", func(t *testing.T) {
		f := newFixture(t, platform.Windows)
		f.mkdir(t, `C:\d`)
		f.write(t, `C:\d\f`, "x")
		res, err := f.reg.Open(f.loc(t, `C:\d\f`), OpenRequest{Disposition: Open, Access: AccessRead, Share: ShareRead})
		require.NoError(t, err)
		err = f.reg.Move(f.loc(t, `C:\d`), f.loc(t, `C:\e`), true, false)
		assert.ErrorIs(t, err, fserr.ErrSharingViolation)
		require.NoError(t, f.reg.Release(res.Handle, false))
	})

	t.Run("CrossDriveFileMovesBytes", func(t *testing.T) {
		f := newFixture(t, platform.Windows)
		f.write(t, `C:\f`, "12345")
		f.mkdir(t, `D:\`)
		require.NoError(t, f.reg.Move(f.loc(t, `C:\f`), f.loc(t, `D:\f`), false, false))
		assert.Equal(t, int64(0), f.reg.Drive(f.loc(t, `C:\`)).Used)
		assert.Equal(t, int64(5), f.reg.Drive(f.loc(t, `D:\`)).Used)

		f.mkdir(t, `C:\dir`)
		err := f.reg.Move(f.loc(t, `C:\dir`), f.loc(t, `D:\dir`), true, false)
		assert.ErrorIs(t, err, fserr.ErrInvalidOperation)
	})
}

func TestReplace(t *testing.T) {
	t.Run("WithBackup", func(t *testing.T) {
		f := newFixture(t, platform.Windows)
		f.write(t, `C:\new`, "new")
		f.clk.Advance(time.Minute)
		f.write(t, `C:\cur`, "current")
		require.NoError(t, f.reg.SetAttributes(f.loc(t, `C:\cur`), Hidden))
		curCreated := mustGet(t, f.reg, f.loc(t, `C:\cur`)).Times.Creation

		require.NoError(t, f.reg.Replace(f.loc(t, `C:\new`), f.loc(t, `C:\cur`), f.loc(t, `C:\cur.bak`), false))
		assert.False(t, f.reg.Exists(f.loc(t, `C:\new`), Any))
		assert.Equal(t, "current", f.read(t, `C:\cur.bak`))

		info := mustGet(t, f.reg, f.loc(t, `C:\cur`))
		assert.Equal(t, curCreated, info.Times.Creation)
		assert.Equal(t, Hidden, info.Attributes)
		assert.Equal(t, "new", string(mustRead(t, f, `C:\cur`)))
	})

	t.Run("WithoutBackup", func(t *testing.T) {
		f := newFixture(t, platform.Unix)
		f.write(t, "/new", "n")
		f.write(t, "/cur", "cccc")
		require.NoError(t, f.reg.Replace(f.loc(t, "/new"), f.loc(t, "/cur"), location.Location{}, true))
		assert.Equal(t, "n", f.read(t, "/cur"))
		assert.Equal(t, int64(1), f.reg.Drive(f.loc(t, "/")).Used)
	})

	t.Run("BackupAliasesSourceOrDestination", func(t *testing.T) {
		for _, backup := range []string{"/src", "/dst"} {
			t.Run(backup, func(t *testing.T) {
				f := newFixture(t, platform.Unix)
				f.write(t, "/src", "SOURCE")
				f.write(t, "/dst", "DESTINATION!")

				err := f.reg.Replace(f.loc(t, "/src"), f.loc(t, "/dst"), f.loc(t, backup), false)
				assert.ErrorIs(t, err, fserr.ErrInvalidArgument)
				assert.Equal(t, "SOURCE", f.read(t, "/src"))
				assert.Equal(t, "DESTINATION!", f.read(t, "/dst"))
				assert.Equal(t, int64(18), f.reg.Drive(f.loc(t, "/")).Used)
			})
		}
	})

	t.Run("BackupAliasIgnoresCaseOnWindows", func(t *testing.T) {
		f := newFixture(t, platform.Windows)
		f.write(t, `C:\src`, "s")
		f.write(t, `C:\dst`, "d")
		err := f.reg.Replace(f.loc(t, `C:\src`), f.loc(t, `C:\dst`), f.loc(t, `C:\DST`), false)
		assert.ErrorIs(t, err, fserr.ErrInvalidArgument)
		assert.Equal(t, int64(2), f.reg.Drive(f.loc(t, `C:\`)).Used)
	})

	t.Run("MissingFiles", func(t *testing.T) {
		f := newFixture(t, platform.Unix)
		f.write(t, "/x", "x")
		assert.ErrorIs(t, f.reg.Replace(f.loc(t, "/missing"), f.loc(t, "/x"), location.Location{}, false), fserr.ErrFileNotFound)
		assert.ErrorIs(t, f.reg.Replace(f.loc(t, "/x"), f.loc(t, "/missing"), location.Location{}, false), fserr.ErrFileNotFound)
	})
}

func mustRead(t *testing.T, f *fixture, path string) []byte {
	t.Helper()
	return []byte(f.read(t, path))
}

func TestInterceptVeto(t *testing.T) {
	f := newFixture(t, platform.Unix)
	veto := errors.New("frozen")
	f.bus.Intercept(func(e notify.Event) bool { return e.Type == notify.Deleted }, func(notify.Event) error { return veto })
	events := f.record()

	f.mkdir(t, "/keep/sub")
	before := len(*events)
	err := f.reg.Delete(f.loc(t, "/keep"), Directories, true)
	assert.ErrorIs(t, err, veto)
	assert.True(t, f.reg.Exists(f.loc(t, "/keep/sub"), Directories), "vetoed mutation changes nothing")
	assert.Len(t, *events, before, "vetoed mutation publishes nothing")
}

func TestAttributesAndModes(t *testing.T) {
	t.Run("UnixReadOnlyIsWriteBit", func(t *testing.T) {
		f := newFixture(t, platform.Unix)
		f.write(t, "/f", "x")
		require.NoError(t, f.reg.SetAttributes(f.loc(t, "/f"), ReadOnly))
		mode, err := f.reg.UnixMode(f.loc(t, "/f"))
		require.NoError(t, err)
		assert.Equal(t, "-r--r--r--", mode.String())

		require.NoError(t, f.reg.SetUnixMode(f.loc(t, "/f"), 0o600))
		info := mustGet(t, f.reg, f.loc(t, "/f"))
		assert.Equal(t, Normal, info.Attributes)
		assert.Equal(t, "-rw-------", info.FileMode().String())
	})

	t.Run("UnixModeNotSupportedOnWindows", func(t *testing.T) {
		f := newFixture(t, platform.Windows)
		f.write(t, `C:\f`, "x")
		_, err := f.reg.UnixMode(f.loc(t, `C:\f`))
		assert.ErrorIs(t, err, fserr.ErrNotSupported)
		assert.ErrorIs(t, f.reg.SetUnixMode(f.loc(t, `C:\f`), 0o644), fserr.ErrNotSupported)
	})

	t.Run("SetTimes", func(t *testing.T) {
		f := newFixture(t, platform.Unix)
		f.write(t, "/f", "x")
		when := time.Date(2001, 2, 3, 4, 5, 6, 0, time.UTC)
		require.NoError(t, f.reg.SetTimes(f.loc(t, "/f"), Times{LastWrite: when}, LastWriteTime))
		info := mustGet(t, f.reg, f.loc(t, "/f"))
		assert.Equal(t, when, info.Times.LastWrite)
		assert.Equal(t, epoch, info.Times.Creation)
	})

	t.Run("Extension", func(t *testing.T) {
		f := newFixture(t, platform.Windows)
		f.write(t, `C:\f`, "x")
		require.NoError(t, f.reg.SetExtension(f.loc(t, `C:\f`), "acl", "owner:alice"))
		v, ok := f.reg.Extension(f.loc(t, `C:\f`), "acl")
		require.True(t, ok)
		assert.Equal(t, "owner:alice", v)
	})

	t.Run("Link", func(t *testing.T) {
		f := newFixture(t, platform.Unix)
		require.NoError(t, f.reg.CreateLink(f.loc(t, "/ln"), "/target", KindFile))
		info := mustGet(t, f.reg, f.loc(t, "/ln"))
		assert.Equal(t, "/target", info.LinkTarget)
		assert.NotZero(t, info.Attributes&ReparsePoint)
		assert.ErrorIs(t, f.reg.CreateLink(f.loc(t, "/ln"), "/other", KindFile), fserr.ErrAlreadyExists)
	})
}
