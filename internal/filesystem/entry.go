package filesystem

import (
	"io/fs"
	"sync"
	"time"

	"github.com/stackvity/vfsim/internal/fserr"
	"github.com/stackvity/vfsim/internal/location"
	"github.com/stackvity/vfsim/internal/storage"
)

// Entry is a handle on a file or directory of a VirtualFileSystem. It
// implements fs.FileInfo and fs.DirEntry. What it observed is cached until
// Refresh, so an Entry may describe something that no longer exists.
//
// An Entry made for a specific kind reports Exists only when an entry of that
// kind is present.
type Entry struct {
	vfs  *VirtualFileSystem
	loc  location.Location
	want storage.Kind

	mu     sync.Mutex
	loaded bool
	exists bool
	info   storage.Info
}

var (
	_ fs.FileInfo = (*Entry)(nil)
	_ fs.DirEntry = (*Entry)(nil)
)

func newEntry(v *VirtualFileSystem, info storage.Info) *Entry {
	return &Entry{vfs: v, loc: info.Location, loaded: true, exists: true, info: info}
}

func (v *VirtualFileSystem) entryAt(loc location.Location, want storage.Kind) *Entry {
	return &Entry{vfs: v, loc: loc, want: want}
}

// Refresh discards the cached state and observes the registry again.
func (e *Entry) Refresh() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.load()
}

// load must be called with e.mu held.
func (e *Entry) load() {
	info, ok := e.vfs.reg.Get(e.loc)
	if ok && e.want != 0 && info.Kind != e.want {
		ok = false
	}
	e.loaded, e.exists = true, ok
	if ok {
		e.info = info
	} else {
		e.info = storage.Info{Location: e.loc, Kind: e.want}
	}
}

func (e *Entry) snapshot() (storage.Info, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		e.load()
	}
	return e.info, e.exists
}

// Exists reports whether the entry existed when last observed.
func (e *Entry) Exists() bool {
	_, ok := e.snapshot()
	return ok
}

// Kind is the kind observed, or the kind the handle was made for when missing.
// It is zero for a missing entry of unknown kind.
func (e *Entry) Kind() storage.Kind {
	info, _ := e.snapshot()
	return info.Kind
}

// Location returns the canonical location.
func (e *Entry) Location() location.Location { return e.loc }

// FullPath returns the absolute path.
func (e *Entry) FullPath() string { return e.loc.FullPath() }

// Name returns the final path segment, or the root itself for a root.
func (e *Entry) Name() string {
	if e.loc.IsRoot() {
		return e.loc.FullPath()
	}
	return e.loc.Name()
}

// Extension returns the extension of the name including the dot.
func (e *Entry) Extension() string { return e.vfs.res.Ext(e.Name()) }

func (e *Entry) Size() int64 {
	info, _ := e.snapshot()
	if info.Kind == storage.KindDirectory {
		return 0
	}
	return info.Size
}

func (e *Entry) Mode() fs.FileMode {
	info, _ := e.snapshot()
	return info.FileMode()
}

func (e *Entry) ModTime() time.Time { return e.LastWriteTime() }

func (e *Entry) IsDir() bool { return e.Kind() == storage.KindDirectory }

// Sys returns the storage.Info snapshot.
func (e *Entry) Sys() any {
	info, _ := e.snapshot()
	return info
}

func (e *Entry) Type() fs.FileMode { return e.Mode().Type() }

// Info returns the entry itself, or FileNotFound when it does not exist.
func (e *Entry) Info() (fs.FileInfo, error) {
	if !e.Exists() {
		return nil, fserr.New(e.vfs.mode, fserr.FileNotFound, "stat", e.loc.FullPath())
	}
	return e, nil
}

// Attributes returns the effective attributes.
func (e *Entry) Attributes() Attributes {
	info, _ := e.snapshot()
	return info.Attributes
}

func (e *Entry) CreationTime() time.Time {
	info, _ := e.snapshot()
	return info.Times.Creation
}

func (e *Entry) LastAccessTime() time.Time {
	info, _ := e.snapshot()
	return info.Times.LastAccess
}

func (e *Entry) LastWriteTime() time.Time {
	info, _ := e.snapshot()
	return info.Times.LastWrite
}

// LinkTarget returns the symbolic link target, or "" for a regular entry.
func (e *Entry) LinkTarget() string {
	info, _ := e.snapshot()
	return info.LinkTarget
}

// Parent returns a directory handle on the parent, or nil for a root.
func (e *Entry) Parent() *Entry {
	parent, ok := e.loc.Parent()
	if !ok {
		return nil
	}
	return e.vfs.entryAt(parent, storage.KindDirectory)
}

// Delete removes the entry according to its kind. Directories are removed
// with their contents only when recursive is set.
func (e *Entry) Delete(recursive bool) error {
	defer e.Refresh()
	switch e.Kind() {
	case storage.KindDirectory:
		return e.vfs.reg.Delete(e.loc, storage.Directories, recursive)
	case storage.KindFile:
		return e.vfs.reg.Delete(e.loc, storage.Files, false)
	}
	return e.vfs.reg.Delete(e.loc, storage.Any, recursive)
}

// MoveTo moves the entry to dst and returns a handle on the new location.
func (e *Entry) MoveTo(dst string) (*Entry, error) {
	loc, err := e.vfs.resolve("move", dst)
	if err != nil {
		return nil, err
	}
	kind := e.Kind()
	if err := e.vfs.reg.Move(e.loc, loc, true, false); err != nil {
		return nil, err
	}
	e.Refresh()
	return e.vfs.entryAt(loc, kind), nil
}
