package filesystem

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath" // Import filepath for WalkDir
	"runtime"
	"strings"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/stackvity/vfsim/internal/fserr"
	"github.com/stackvity/vfsim/internal/location"
	"github.com/stackvity/vfsim/internal/platform"
	"github.com/stackvity/vfsim/internal/search"
	"github.com/stackvity/vfsim/internal/storage"
)

// RealFileSystem implements the FileSystem interface using the standard os
// package. Sharing modes are accepted but not enforced, and attributes the
// host cannot represent fail with NotSupported.
type RealFileSystem struct {
	mode   platform.Mode
	res    *location.Resolver
	logger *slog.Logger
}

var _ FileSystem = (*RealFileSystem)(nil)

// HostMode is the platform family of the running process.
func HostMode() platform.Mode {
	if runtime.GOOS == "windows" {
		return platform.Windows
	}
	return platform.Unix
}

// NewRealFileSystem creates a new instance of RealFileSystem.
func NewRealFileSystem() *RealFileSystem {
	return NewRealFileSystemWithLogger(nil)
}

// NewRealFileSystemWithLogger is NewRealFileSystem logging to logger.
func NewRealFileSystemWithLogger(logger *slog.Logger) *RealFileSystem {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	mode := HostMode()
	return &RealFileSystem{
		mode:   mode,
		res:    location.NewResolver(mode, mode.CaseSensitiveByDefault()),
		logger: logger,
	}
}

// Kind reports Real.
func (rfs *RealFileSystem) Kind() Implementation { return Real }

// wrap translates an os error into the engine's taxonomy. The os error stays
// in the chain, so errors.Is against os sentinels keeps working.
func (rfs *RealFileSystem) wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var kind fserr.Kind
	switch {
	case errors.Is(err, syscall.ENOTEMPTY):
		kind = fserr.NotEmpty
	case errors.Is(err, syscall.ENOSPC):
		kind = fserr.DiskFull
	case errors.Is(err, fs.ErrNotExist):
		kind = fserr.FileNotFound
		if _, perr := os.Stat(filepath.Dir(path)); perr != nil {
			kind = fserr.DirectoryNotFound
		}
	case errors.Is(err, fs.ErrExist):
		kind = fserr.AlreadyExists
	case errors.Is(err, fs.ErrPermission):
		kind = fserr.AccessDenied
	case errors.Is(err, fs.ErrClosed):
		kind = fserr.InvalidState
	case errors.Is(err, fs.ErrInvalid):
		kind = fserr.InvalidArgument
	default:
		return err
	}
	return fserr.Wrap(rfs.mode, kind, op, path, err)
}

// ReadFile reads the named file using os.ReadFile.
func (rfs *RealFileSystem) ReadFile(name string) ([]byte, error) {
	data, err := os.ReadFile(name)
	return data, rfs.wrap("read", name, err)
}

// ReadFileContext is ReadFile honoring cancellation before it starts.
func (rfs *RealFileSystem) ReadFileContext(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fserr.Wrap(rfs.mode, fserr.Cancelled, "read", name, err)
	}
	return rfs.ReadFile(name)
}

// WriteFile writes data to the named file using os.WriteFile.
func (rfs *RealFileSystem) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return rfs.wrap("write", name, os.WriteFile(name, data, perm))
}

// WriteFileContext is WriteFile honoring cancellation before it starts.
func (rfs *RealFileSystem) WriteFileContext(ctx context.Context, name string, data []byte, perm fs.FileMode) error {
	if err := ctx.Err(); err != nil {
		return fserr.Wrap(rfs.mode, fserr.Cancelled, "write", name, err)
	}
	return rfs.WriteFile(name, data, perm)
}

// AppendFile appends data to name, creating it when missing.
func (rfs *RealFileSystem) AppendFile(name string, data []byte, perm fs.FileMode) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_APPEND, perm)
	if err != nil {
		return rfs.wrap("write", name, err)
	}
	_, err = f.Write(data)
	return rfs.wrap("write", name, multierr.Append(err, f.Close()))
}

// Copy copies the file src to dst, keeping its permission bits and modification time.
func (rfs *RealFileSystem) Copy(src, dst string, overwrite bool) error {
	const op = "copy"
	in, err := os.Open(src)
	if err != nil {
		return rfs.wrap(op, src, err)
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return rfs.wrap(op, src, err)
	}
	if info.IsDir() {
		return fserr.New(rfs.mode, fserr.AccessDenied, op, src)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}
	out, err := os.OpenFile(dst, flags, info.Mode().Perm())
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fserr.FileExists(rfs.mode, op, dst)
		}
		return rfs.wrap(op, dst, err)
	}
	_, err = io.Copy(out, in)
	if err = multierr.Append(err, out.Close()); err != nil {
		return rfs.wrap(op, dst, err)
	}
	return rfs.wrap(op, dst, os.Chtimes(dst, time.Time{}, info.ModTime()))
}

// Replace moves src over dst, first moving dst to backup when backup is set.
func (rfs *RealFileSystem) Replace(src, dst, backup string, ignoreMetadataErrors bool) error {
	const op = "replace"
	if _, err := os.Stat(dst); err != nil {
		return rfs.wrap(op, dst, err)
	}
	if backup != "" {
		if err := os.Rename(dst, backup); err != nil {
			return rfs.wrap(op, backup, err)
		}
	}
	return rfs.wrap(op, dst, os.Rename(src, dst))
}

// Rename renames (moves) a file using os.Rename.
func (rfs *RealFileSystem) Rename(oldpath, newpath string) error {
	return rfs.wrap("rename", oldpath, os.Rename(oldpath, newpath))
}

// Remove removes the named file or directory using os.Remove.
func (rfs *RealFileSystem) Remove(name string) error {
	return rfs.wrap("remove", name, os.Remove(name))
}

// RemoveAll removes path and any children using os.RemoveAll.
func (rfs *RealFileSystem) RemoveAll(path string) error {
	return rfs.wrap("remove", path, os.RemoveAll(path))
}

// Exists reports whether name exists.
func (rfs *RealFileSystem) Exists(name string) bool {
	_, err := os.Lstat(name)
	return err == nil
}

// FileExists reports whether name exists and is not a directory.
func (rfs *RealFileSystem) FileExists(name string) bool {
	info, err := os.Stat(name)
	return err == nil && !info.IsDir()
}

// DirExists reports whether name exists and is a directory.
func (rfs *RealFileSystem) DirExists(name string) bool {
	info, err := os.Stat(name)
	return err == nil && info.IsDir()
}

// Stat returns a FileInfo using os.Stat.
func (rfs *RealFileSystem) Stat(name string) (fs.FileInfo, error) {
	info, err := os.Stat(name)
	return info, rfs.wrap("stat", name, err)
}

// Lstat returns a FileInfo using os.Lstat.
func (rfs *RealFileSystem) Lstat(name string) (fs.FileInfo, error) {
	info, err := os.Lstat(name)
	return info, rfs.wrap("lstat", name, err)
}

// Chtimes changes the access and modification times using os.Chtimes.
func (rfs *RealFileSystem) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return rfs.wrap("chtimes", name, os.Chtimes(name, atime, mtime))
}

// Chmod changes the mode using os.Chmod.
func (rfs *RealFileSystem) Chmod(name string, mode fs.FileMode) error {
	return rfs.wrap("chmod", name, os.Chmod(name, mode))
}

// GetAttributes derives attributes from the host's file mode: ReadOnly from
// the owner write bit, Hidden from a leading dot.
func (rfs *RealFileSystem) GetAttributes(name string) (Attributes, error) {
	info, err := os.Lstat(name)
	if err != nil {
		return 0, rfs.wrap("getattr", name, err)
	}
	return hostAttributes(info), nil
}

func hostAttributes(info fs.FileInfo) Attributes {
	var attrs Attributes
	if info.IsDir() {
		attrs |= storage.Directory
	}
	if info.Mode().Perm()&0o200 == 0 {
		attrs |= storage.ReadOnly
	}
	if strings.HasPrefix(info.Name(), ".") {
		attrs |= storage.Hidden
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		attrs |= storage.ReparsePoint
	}
	if attrs == 0 {
		attrs = storage.Normal
	}
	return attrs
}

// SetAttributes applies ReadOnly through the owner write bit. Other
// attributes have no host representation.
func (rfs *RealFileSystem) SetAttributes(name string, attrs Attributes) error {
	const op = "setattr"
	if attrs&^(storage.ReadOnly|storage.Normal|storage.Directory|storage.Archive|storage.Hidden) != 0 {
		return fserr.Newf(rfs.mode, fserr.NotSupported, op, name, "attributes %s cannot be set on the host", attrs)
	}
	info, err := os.Stat(name)
	if err != nil {
		return rfs.wrap(op, name, err)
	}
	perm := info.Mode().Perm()
	if attrs&storage.ReadOnly != 0 {
		perm &^= 0o222
	} else {
		perm |= 0o200
	}
	return rfs.wrap(op, name, os.Chmod(name, perm))
}

// Symlink creates newname as a symbolic link to oldname.
func (rfs *RealFileSystem) Symlink(oldname, newname string) error {
	return rfs.wrap("symlink", newname, os.Symlink(oldname, newname))
}

// Readlink returns the destination of the named symbolic link.
func (rfs *RealFileSystem) Readlink(name string) (string, error) {
	target, err := os.Readlink(name)
	return target, rfs.wrap("readlink", name, err)
}

// Mkdir creates a directory using os.Mkdir.
func (rfs *RealFileSystem) Mkdir(name string, perm fs.FileMode) error {
	return rfs.wrap("mkdir", name, os.Mkdir(name, perm))
}

// MkdirAll creates a directory using os.MkdirAll.
func (rfs *RealFileSystem) MkdirAll(path string, perm fs.FileMode) error {
	return rfs.wrap("mkdir", path, os.MkdirAll(path, perm))
}

// ReadDir lists a directory using os.ReadDir.
func (rfs *RealFileSystem) ReadDir(name string) ([]fs.DirEntry, error) {
	entries, err := os.ReadDir(name)
	return entries, rfs.wrap("readdir", name, err)
}

// WalkDir walks the file tree using filepath.WalkDir.
func (rfs *RealFileSystem) WalkDir(root string, fn fs.WalkDirFunc) error {
	return filepath.WalkDir(root, fn)
}

// Find walks dir and returns the paths whose names match pattern.
func (rfs *RealFileSystem) Find(dir, pattern string, opts FindOptions) ([]string, error) {
	const op = "find"
	sub, name := search.Split(rfs.mode, pattern)
	root := dir
	if sub != "" {
		if filepath.IsAbs(sub) {
			return nil, fserr.Newf(rfs.mode, fserr.InvalidArgument, op, pattern, "search pattern must be relative")
		}
		root = filepath.Join(dir, sub)
		if rel, err := filepath.Rel(dir, root); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, fserr.Newf(rfs.mode, fserr.InvalidArgument, op, pattern, "search pattern escapes the search root")
		}
	}
	if !rfs.DirExists(root) {
		return nil, fserr.New(rfs.mode, fserr.DirectoryNotFound, op, root)
	}
	searchOpts := opts.Options
	searchOpts.ShortNames = rfs.mode == platform.Windows
	p, err := search.Compile(name, searchOpts, rfs.res.CaseSensitive())
	if err != nil {
		return nil, fserr.Wrap(rfs.mode, fserr.InvalidArgument, op, pattern, err)
	}
	kinds := opts.Kinds
	if kinds == 0 {
		kinds = storage.Any
	}

	var out []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if hostAttributes(info)&opts.AttributesToSkip != 0 {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		kind := storage.KindFile
		if d.IsDir() {
			kind = storage.KindDirectory
		}
		if (kind == storage.KindFile && kinds&storage.Files != 0 || kind == storage.KindDirectory && kinds&storage.Directories != 0) && p.Match(d.Name()) {
			out = append(out, path)
		}
		if d.IsDir() {
			depth := strings.Count(strings.TrimPrefix(path, root), string(filepath.Separator))
			if !opts.RecurseSubdirectories || (opts.MaxRecursionDepth > 0 && depth > opts.MaxRecursionDepth) {
				return fs.SkipDir
			}
		}
		return nil
	})
	return out, rfs.wrap(op, root, err)
}

// Getwd returns the process working directory.
func (rfs *RealFileSystem) Getwd() (string, error) {
	dir, err := os.Getwd()
	return dir, rfs.wrap("getwd", "", err)
}

// Chdir changes the process working directory.
func (rfs *RealFileSystem) Chdir(dir string) error {
	return rfs.wrap("chdir", dir, os.Chdir(dir))
}

// OpenFile opens name with the flags equivalent to mode and access. share is
// not enforced by the host.
func (rfs *RealFileSystem) OpenFile(name string, mode OpenMode, access FileAccess, share FileShare, options FileOptions) (File, error) {
	if err := validateOpen(rfs.mode, name, mode, access, share); err != nil {
		return nil, err
	}
	flags := openFlags(mode, access)
	f, err := os.OpenFile(name, flags, 0o666)
	if err != nil {
		return nil, rfs.wrap("open", name, err)
	}
	rf := &realFile{File: f, access: access, deleteOnClose: options&OptionDeleteOnClose != 0}
	if mode == ModeAppend {
		if rf.floor, err = f.Seek(0, io.SeekEnd); err != nil {
			_ = f.Close()
			return nil, rfs.wrap("open", name, err)
		}
	}
	return rf, nil
}

func openFlags(mode OpenMode, access FileAccess) int {
	var flags int
	switch access {
	case AccessRead:
		flags = os.O_RDONLY
	case AccessWrite:
		flags = os.O_WRONLY
	default:
		flags = os.O_RDWR
	}
	switch mode {
	case ModeCreateNew:
		flags |= os.O_CREATE | os.O_EXCL
	case ModeCreate:
		flags |= os.O_CREATE | os.O_TRUNC
	case ModeOpenOrCreate:
		flags |= os.O_CREATE
	case ModeTruncate:
		flags |= os.O_TRUNC
	case ModeAppend:
		flags |= os.O_CREATE | os.O_APPEND
	}
	return flags
}

// Create opens name for reading and writing, creating or truncating it.
func (rfs *RealFileSystem) Create(name string) (File, error) {
	return rfs.OpenFile(name, ModeCreate, AccessReadWrite, ShareRead, OptionNone)
}

// Open opens an existing file for reading.
func (rfs *RealFileSystem) Open(name string) (File, error) {
	return rfs.OpenFile(name, ModeOpen, AccessRead, ShareRead, OptionNone)
}

// Drives lists the host volume holding the working directory.
func (rfs *RealFileSystem) Drives() ([]DriveInfo, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, rfs.wrap("drive", "", err)
	}
	d, err := rfs.Drive(filepath.VolumeName(wd) + string(filepath.Separator))
	if err != nil {
		return nil, err
	}
	return []DriveInfo{d}, nil
}

// Drive describes the host volume mounted at name.
func (rfs *RealFileSystem) Drive(name string) (DriveInfo, error) {
	info, err := hostDrive(name)
	if err != nil {
		return DriveInfo{}, rfs.wrap("drive", name, err)
	}
	return info, nil
}

// Abs returns an absolute representation of path using filepath.Abs.
func (rfs *RealFileSystem) Abs(path string) (string, error) {
	abs, err := filepath.Abs(path)
	return abs, rfs.wrap("abs", path, err)
}

// Join joins path elements using filepath.Join.
func (rfs *RealFileSystem) Join(elem ...string) string { return filepath.Join(elem...) }

// Separator returns os.PathSeparator.
func (rfs *RealFileSystem) Separator() byte { return os.PathSeparator }

// TempDir returns os.TempDir.
func (rfs *RealFileSystem) TempDir() string { return os.TempDir() }

// Watch creates a stopped fsnotify-backed watcher on cfg.Path.
func (rfs *RealFileSystem) Watch(cfg WatchConfig) (Watcher, error) {
	return newRealWatcher(rfs, cfg)
}
