package filesystem

import (
	"context"
	"io"
	"io/fs"
	"time"

	"github.com/stackvity/vfsim/internal/notify"
	"github.com/stackvity/vfsim/internal/search"
	"github.com/stackvity/vfsim/internal/storage"
)

// Implementation identifies which backend a FileSystem is. Callers branch on
// this value rather than on the concrete type.
type Implementation int

const (
	Virtual Implementation = iota + 1
	Real
)

func (i Implementation) String() string {
	switch i {
	case Virtual:
		return "virtual"
	case Real:
		return "real"
	}
	return "unknown"
}

// OpenMode is the open disposition: what to do when the file exists or not.
type OpenMode = storage.Disposition

const (
	ModeCreateNew    = storage.CreateNew
	ModeCreate       = storage.Create
	ModeOpen         = storage.Open
	ModeOpenOrCreate = storage.OpenOrCreate
	ModeTruncate     = storage.Truncate
	ModeAppend       = storage.Append
)

// FileAccess is the read/write intent of an open.
type FileAccess = storage.FileAccess

const (
	AccessRead      = storage.AccessRead
	AccessWrite     = storage.AccessWrite
	AccessReadWrite = storage.AccessReadWrite
)

// FileShare is what an open permits concurrent opens to do.
type FileShare = storage.FileShare

const (
	ShareNone      = storage.ShareNone
	ShareRead      = storage.ShareRead
	ShareWrite     = storage.ShareWrite
	ShareReadWrite = storage.ShareReadWrite
	ShareDelete    = storage.ShareDelete
)

// Attributes are the Win32-style entry attribute flags.
type Attributes = storage.Attributes

// DriveInfo describes a volume.
type DriveInfo = storage.DriveInfo

// FileOptions are advanced open flags. Only DeleteOnClose changes behavior;
// the rest are accepted for parity.
type FileOptions int

const (
	OptionNone           FileOptions = 0
	OptionWriteThrough   FileOptions = 0x8000_0000 >> 1
	OptionAsynchronous   FileOptions = 0x4000_0000
	OptionRandomAccess   FileOptions = 0x1000_0000
	OptionDeleteOnClose  FileOptions = 0x0400_0000
	OptionSequentialScan FileOptions = 0x0800_0000
	OptionEncrypted      FileOptions = 0x0000_4000
)

// File is an open stream. Reads and writes go to a private buffer that is
// published on Flush and Close.
type File interface {
	io.Reader
	io.Writer
	io.Seeker
	io.ReaderAt
	io.WriterAt
	io.ByteReader
	io.ByteWriter
	io.Closer

	// Name returns the full path the file was opened with.
	Name() string
	Flush() error
	Sync() error
	Stat() (fs.FileInfo, error)
	Length() (int64, error)
	Position() (int64, error)
	SetLength(n int64) error
	Truncate(n int64) error
	CanRead() bool
	CanWrite() bool
	CanSeek() bool
}

// FindOptions steer Find.
type FindOptions struct {
	search.Options
	Kinds            storage.KindFilter
	AttributesToSkip Attributes
}

// WatchConfig configures a watcher. The watcher is returned stopped.
type WatchConfig struct {
	Path                  string
	Filters               []string
	NotifyFilter          notify.Filters
	IncludeSubdirectories bool
	BufferSize            int
	Handlers              notify.Handlers
}

// Watcher delivers change events for a directory.
type Watcher interface {
	Start() error
	Stop()
	Close() error
	Running() bool
	WaitForChanged(ctx context.Context, kinds notify.ChangeType) (notify.Event, error)
}

// FileSystem is the contract shared by the virtual engine and the real OS
// adapter, so callers can swap one for the other.
type FileSystem interface {
	Kind() Implementation

	ReadFile(name string) ([]byte, error)
	ReadFileContext(ctx context.Context, name string) ([]byte, error)
	// WriteFile creates or truncates name and writes data. perm is applied to
	// new files where the platform has permission bits.
	WriteFile(name string, data []byte, perm fs.FileMode) error
	WriteFileContext(ctx context.Context, name string, data []byte, perm fs.FileMode) error
	AppendFile(name string, data []byte, perm fs.FileMode) error
	Copy(src, dst string, overwrite bool) error
	// Replace swaps dst for src, keeping the old dst as backup when backup is not empty.
	Replace(src, dst, backup string, ignoreMetadataErrors bool) error
	// Rename moves oldpath to newpath, replacing an existing file at newpath.
	Rename(oldpath, newpath string) error
	// Remove removes a file or an empty directory.
	Remove(name string) error
	// RemoveAll removes path and everything below it. A missing path is not an error.
	RemoveAll(path string) error
	Exists(name string) bool
	FileExists(name string) bool
	DirExists(name string) bool
	Stat(name string) (fs.FileInfo, error)
	Lstat(name string) (fs.FileInfo, error)
	// Chtimes changes access and modification times. A zero time leaves that timestamp unchanged.
	Chtimes(name string, atime time.Time, mtime time.Time) error
	Chmod(name string, mode fs.FileMode) error
	GetAttributes(name string) (Attributes, error)
	SetAttributes(name string, attrs Attributes) error
	Symlink(oldname, newname string) error
	Readlink(name string) (string, error)

	Mkdir(name string, perm fs.FileMode) error
	MkdirAll(path string, perm fs.FileMode) error
	ReadDir(name string) ([]fs.DirEntry, error)
	// WalkDir walks the file tree rooted at root in lexical order, calling fn
	// for each file or directory, including root.
	WalkDir(root string, fn fs.WalkDirFunc) error
	// Find returns the paths below dir matching pattern. pattern may carry a
	// directory part, which narrows the search to that subdirectory of dir.
	Find(dir, pattern string, opts FindOptions) ([]string, error)
	Getwd() (string, error)
	Chdir(dir string) error

	OpenFile(name string, mode OpenMode, access FileAccess, share FileShare, options FileOptions) (File, error)
	// Create opens name for reading and writing, truncating or creating it.
	Create(name string) (File, error)
	// Open opens an existing file for reading.
	Open(name string) (File, error)

	Drives() ([]DriveInfo, error)
	Drive(name string) (DriveInfo, error)

	Abs(path string) (string, error)
	Join(elem ...string) string
	Separator() byte
	TempDir() string

	Watch(cfg WatchConfig) (Watcher, error)
}
