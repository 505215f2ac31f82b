package filesystem

import (
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/afero"

	"github.com/stackvity/vfsim/internal/fserr"
	"github.com/stackvity/vfsim/internal/platform"
)

// Extension keys for ownership set through the afero bridge.
const (
	extUID = "unix.uid"
	extGID = "unix.gid"
)

// AferoFs exposes a VirtualFileSystem as an afero.Fs. Streams opened through
// it share everything with each other, as POSIX callers expect.
type AferoFs struct {
	vfs *VirtualFileSystem
}

var _ afero.Fs = (*AferoFs)(nil)

// NewAferoFs wraps v.
func NewAferoFs(v *VirtualFileSystem) *AferoFs {
	return &AferoFs{vfs: v}
}

func (a *AferoFs) Name() string { return "VirtualFileSystem" }

func (a *AferoFs) Create(name string) (afero.File, error) {
	return a.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
}

func (a *AferoFs) Mkdir(name string, perm os.FileMode) error { return a.vfs.Mkdir(name, perm) }

func (a *AferoFs) MkdirAll(path string, perm os.FileMode) error { return a.vfs.MkdirAll(path, perm) }

func (a *AferoFs) Open(name string) (afero.File, error) {
	return a.OpenFile(name, os.O_RDONLY, 0)
}

// OpenFile maps os open flags onto an open mode. Read-only opens of a
// directory return a listing handle.
func (a *AferoFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	access := AccessRead
	switch {
	case flag&os.O_RDWR != 0:
		access = AccessReadWrite
	case flag&os.O_WRONLY != 0:
		access = AccessWrite
	}
	if access == AccessRead && a.vfs.DirExists(name) {
		loc, err := a.vfs.resolve("open", name)
		if err != nil {
			return nil, err
		}
		return &aferoDir{vfs: a.vfs, name: loc.FullPath()}, nil
	}

	mode := ModeOpen
	switch {
	case flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0:
		mode = ModeCreateNew
	case flag&os.O_CREATE != 0 && flag&os.O_TRUNC != 0:
		mode = ModeCreate
	case flag&os.O_CREATE != 0 && flag&os.O_APPEND != 0 && access == AccessWrite:
		mode = ModeAppend
	case flag&os.O_CREATE != 0:
		mode = ModeOpenOrCreate
	case flag&os.O_TRUNC != 0:
		mode = ModeTruncate
	}
	if access == AccessRead && (mode == ModeCreate || mode == ModeCreateNew || mode == ModeTruncate) {
		access = AccessReadWrite
	}

	s, err := a.vfs.openFile(name, mode, access, ShareReadWrite|ShareDelete, OptionNone)
	if err != nil {
		return nil, err
	}
	if flag&os.O_APPEND != 0 && mode != ModeAppend {
		if _, err := s.Seek(0, io.SeekEnd); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	if s.created && a.vfs.mode == platform.Unix && perm != 0 {
		if err := a.vfs.reg.SetUnixMode(s.loc, perm); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return &aferoFile{stream: s}, nil
}

func (a *AferoFs) Remove(name string) error { return a.vfs.Remove(name) }

func (a *AferoFs) RemoveAll(path string) error { return a.vfs.RemoveAll(path) }

func (a *AferoFs) Rename(oldname, newname string) error { return a.vfs.Rename(oldname, newname) }

func (a *AferoFs) Stat(name string) (os.FileInfo, error) { return a.vfs.Stat(name) }

func (a *AferoFs) Chmod(name string, mode os.FileMode) error { return a.vfs.Chmod(name, mode) }

// Chown records ownership on Unix. Windows has no numeric owners.
func (a *AferoFs) Chown(name string, uid, gid int) error {
	loc, err := a.vfs.resolve("chown", name)
	if err != nil {
		return err
	}
	if a.vfs.mode == platform.Windows {
		return fserr.New(a.vfs.mode, fserr.NotSupported, "chown", loc.FullPath())
	}
	if err := a.vfs.reg.SetExtension(loc, extUID, uid); err != nil {
		return err
	}
	return a.vfs.reg.SetExtension(loc, extGID, gid)
}

func (a *AferoFs) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return a.vfs.Chtimes(name, atime, mtime)
}

// Owner returns the ownership recorded by Chown.
func (a *AferoFs) Owner(name string) (uid, gid int, ok bool) {
	loc, err := a.vfs.resolve("chown", name)
	if err != nil {
		return 0, 0, false
	}
	u, uok := a.vfs.reg.Extension(loc, extUID)
	g, gok := a.vfs.reg.Extension(loc, extGID)
	if !uok || !gok {
		return 0, 0, false
	}
	return u.(int), g.(int), true
}

// aferoFile is a stream seen as an afero.File.
type aferoFile struct {
	*stream
}

func (f *aferoFile) Readdir(count int) ([]os.FileInfo, error) {
	return nil, fserr.Newf(f.vfs.mode, fserr.InvalidArgument, "readdir", f.Name(), "not a directory")
}

func (f *aferoFile) Readdirnames(n int) ([]string, error) {
	return nil, fserr.Newf(f.vfs.mode, fserr.InvalidArgument, "readdir", f.Name(), "not a directory")
}

func (f *aferoFile) Stat() (os.FileInfo, error) { return f.stream.Stat() }

func (f *aferoFile) WriteString(s string) (int, error) { return f.Write([]byte(s)) }

// aferoDir is a directory listing handle. Listings are read once and then
// consumed in order.
type aferoDir struct {
	vfs     *VirtualFileSystem
	name    string
	entries []fs.DirEntry
	read    bool
	closed  bool
}

func (d *aferoDir) notFile(op string) error {
	return fserr.Newf(d.vfs.mode, fserr.InvalidArgument, op, d.name, "is a directory")
}

func (d *aferoDir) check() error {
	if d.closed {
		return fserr.New(d.vfs.mode, fserr.InvalidState, "readdir", d.name)
	}
	return nil
}

func (d *aferoDir) Name() string { return d.name }

func (d *aferoDir) Close() error {
	if err := d.check(); err != nil {
		return err
	}
	d.closed = true
	return nil
}

func (d *aferoDir) Read([]byte) (int, error)           { return 0, d.notFile("read") }
func (d *aferoDir) ReadAt([]byte, int64) (int, error)  { return 0, d.notFile("read") }
func (d *aferoDir) Write([]byte) (int, error)          { return 0, d.notFile("write") }
func (d *aferoDir) WriteAt([]byte, int64) (int, error) { return 0, d.notFile("write") }
func (d *aferoDir) WriteString(string) (int, error)    { return 0, d.notFile("write") }
func (d *aferoDir) Truncate(int64) error               { return d.notFile("truncate") }
func (d *aferoDir) Sync() error                        { return d.check() }

func (d *aferoDir) Seek(offset int64, whence int) (int64, error) {
	if err := d.check(); err != nil {
		return 0, err
	}
	if offset == 0 && whence == io.SeekStart {
		d.read, d.entries = false, nil
		return 0, nil
	}
	return 0, d.notFile("seek")
}

func (d *aferoDir) Stat() (os.FileInfo, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return d.vfs.Stat(d.name)
}

func (d *aferoDir) next(n int) ([]fs.DirEntry, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if !d.read {
		entries, err := d.vfs.ReadDir(d.name)
		if err != nil {
			return nil, err
		}
		d.entries, d.read = entries, true
	}
	if n <= 0 {
		out := d.entries
		d.entries = nil
		return out, nil
	}
	if len(d.entries) == 0 {
		return nil, io.EOF
	}
	n = min(n, len(d.entries))
	out := d.entries[:n]
	d.entries = d.entries[n:]
	return out, nil
}

func (d *aferoDir) Readdir(count int) ([]os.FileInfo, error) {
	entries, err := d.next(count)
	if err != nil {
		return nil, err
	}
	out := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return out, err
		}
		out = append(out, info)
	}
	return out, nil
}

func (d *aferoDir) Readdirnames(n int) ([]string, error) {
	entries, err := d.next(n)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out, nil
}
