package filesystem

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/stackvity/vfsim/internal/clock"
	"github.com/stackvity/vfsim/internal/fserr"
	"github.com/stackvity/vfsim/internal/location"
	"github.com/stackvity/vfsim/internal/notify"
	"github.com/stackvity/vfsim/internal/platform"
	"github.com/stackvity/vfsim/internal/search"
	"github.com/stackvity/vfsim/internal/storage"
)

// maxLinkHops bounds symbolic link resolution in Stat.
const maxLinkHops = 40

// Options configure a VirtualFileSystem. Use DefaultOptions for the
// platform's defaults and override fields as needed.
type Options struct {
	Mode          platform.Mode
	CaseSensitive bool
	StrictSharing bool
	// DriveCapacity is the capacity of drives created on first use.
	DriveCapacity int64
	// WorkingDirectory is the initial current directory. It is created when
	// missing. Defaults to the platform's default root.
	WorkingDirectory string
	Clock            clock.Clock
	TimeRules        storage.TimeRules
	Logger           *slog.Logger
}

// DefaultOptions returns the options a fresh engine for mode uses.
func DefaultOptions(mode platform.Mode) Options {
	return Options{
		Mode:          mode,
		CaseSensitive: mode.CaseSensitiveByDefault(),
		StrictSharing: mode.StrictSharingByDefault(),
		DriveCapacity: storage.DefaultDriveCapacity,
	}
}

// VirtualFileSystem is the in-memory engine. All state lives in one registry
// owned by the instance; nothing is persisted.
type VirtualFileSystem struct {
	mode   platform.Mode
	res    *location.Resolver
	reg    *storage.Registry
	bus    *notify.Bus
	logger *slog.Logger

	mu       sync.Mutex
	closed   bool
	streams  map[*stream]struct{}
	watchers map[*notify.Watcher]struct{}
}

var _ FileSystem = (*VirtualFileSystem)(nil)

// NewVirtualFileSystem creates an empty engine.
func NewVirtualFileSystem(opts Options) (*VirtualFileSystem, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("platform", opts.Mode.String())
	bus := notify.NewBus(logger)
	v := &VirtualFileSystem{
		mode:   opts.Mode,
		res:    location.NewResolver(opts.Mode, opts.CaseSensitive),
		bus:    bus,
		logger: logger,
		reg: storage.NewRegistry(storage.Options{
			Mode:          opts.Mode,
			StrictSharing: opts.StrictSharing,
			DriveCapacity: opts.DriveCapacity,
			Clock:         opts.Clock,
			TimeRules:     opts.TimeRules,
			Bus:           bus,
			Logger:        logger,
		}),
		streams:  map[*stream]struct{}{},
		watchers: map[*notify.Watcher]struct{}{},
	}

	wd := opts.WorkingDirectory
	if wd == "" {
		wd = opts.Mode.DefaultRoot()
	}
	loc, err := v.res.Resolve(wd)
	if err != nil {
		return nil, fserr.WithOp(err, "chdir")
	}
	if _, err := v.reg.CreateDirectory(loc); err != nil {
		return nil, err
	}
	v.res.Chdir(loc)
	logger.Debug("Virtual filesystem created", "cwd", loc.FullPath(),
		"caseSensitive", opts.CaseSensitive, "strictSharing", opts.StrictSharing)
	return v, nil
}

// Kind reports Virtual.
func (v *VirtualFileSystem) Kind() Implementation { return Virtual }

// Mode returns the simulated platform.
func (v *VirtualFileSystem) Mode() platform.Mode { return v.mode }

// CaseSensitive reports whether names are compared case-sensitively.
func (v *VirtualFileSystem) CaseSensitive() bool { return v.res.CaseSensitive() }

// StrictSharing reports whether the sharing matrix is enforced.
func (v *VirtualFileSystem) StrictSharing() bool { return v.reg.Locks().Strict() }

// Resolve returns the canonical location of path.
func (v *VirtualFileSystem) Resolve(path string) (location.Location, error) {
	return v.res.Resolve(path)
}

func (v *VirtualFileSystem) resolve(op, path string) (location.Location, error) {
	loc, err := v.res.Resolve(path)
	if err != nil {
		return location.Location{}, fserr.WithOp(err, op)
	}
	return loc, nil
}

func (v *VirtualFileSystem) cancelled(ctx context.Context, op, path string) error {
	if err := ctx.Err(); err != nil {
		return fserr.Wrap(v.mode, fserr.Cancelled, op, path, err)
	}
	return nil
}

// --- Files ---

// ReadFile opens name for shared reading and returns its contents.
func (v *VirtualFileSystem) ReadFile(name string) ([]byte, error) {
	f, err := v.OpenFile(name, ModeOpen, AccessRead, ShareRead, OptionNone)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(f)
	return data, multierr.Append(err, f.Close())
}

// ReadFileContext is ReadFile honoring cancellation before it starts.
func (v *VirtualFileSystem) ReadFileContext(ctx context.Context, name string) ([]byte, error) {
	if err := v.cancelled(ctx, "read", name); err != nil {
		return nil, err
	}
	return v.ReadFile(name)
}

// WriteFile creates or truncates name and writes data.
func (v *VirtualFileSystem) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return v.writeFile(name, ModeCreate, data, perm)
}

// WriteFileContext is WriteFile honoring cancellation before it starts.
func (v *VirtualFileSystem) WriteFileContext(ctx context.Context, name string, data []byte, perm fs.FileMode) error {
	if err := v.cancelled(ctx, "write", name); err != nil {
		return err
	}
	return v.WriteFile(name, data, perm)
}

// AppendFile appends data to name, creating it when missing.
func (v *VirtualFileSystem) AppendFile(name string, data []byte, perm fs.FileMode) error {
	return v.writeFile(name, ModeAppend, data, perm)
}

func (v *VirtualFileSystem) writeFile(name string, mode OpenMode, data []byte, perm fs.FileMode) error {
	f, err := v.openFile(name, mode, AccessWrite, ShareRead, OptionNone)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	err = multierr.Append(err, f.Close())
	if err == nil && f.created && v.mode == platform.Unix && perm != 0 {
		err = v.reg.SetUnixMode(f.loc, perm)
	}
	return err
}

// Copy copies the file src to dst.
func (v *VirtualFileSystem) Copy(src, dst string, overwrite bool) error {
	s, err := v.resolve("copy", src)
	if err != nil {
		return err
	}
	d, err := v.resolve("copy", dst)
	if err != nil {
		return err
	}
	return v.reg.Copy(s, d, overwrite)
}

// Replace replaces dst with src, keeping the old dst as backup when backup is not empty.
func (v *VirtualFileSystem) Replace(src, dst, backup string, ignoreMetadataErrors bool) error {
	s, err := v.resolve("replace", src)
	if err != nil {
		return err
	}
	d, err := v.resolve("replace", dst)
	if err != nil {
		return err
	}
	var b location.Location
	if backup != "" {
		if b, err = v.resolve("replace", backup); err != nil {
			return err
		}
	}
	return v.reg.Replace(s, d, b, ignoreMetadataErrors)
}

// Rename moves oldpath to newpath. Directories move with their contents and an
// existing file at newpath is replaced.
func (v *VirtualFileSystem) Rename(oldpath, newpath string) error {
	return v.Move(oldpath, newpath, true, true)
}

// Move moves the entry at src to dst. A non-empty directory moves only when
// recursive is set; an existing file at dst is replaced only when overwrite is set.
func (v *VirtualFileSystem) Move(src, dst string, recursive, overwrite bool) error {
	s, err := v.resolve("move", src)
	if err != nil {
		return err
	}
	d, err := v.resolve("move", dst)
	if err != nil {
		return err
	}
	return v.reg.Move(s, d, recursive, overwrite)
}

// Remove removes a file or an empty directory.
func (v *VirtualFileSystem) Remove(name string) error {
	loc, err := v.resolve("remove", name)
	if err != nil {
		return err
	}
	return fserr.WithOp(v.reg.Delete(loc, storage.Any, false), "remove")
}

// RemoveAll removes path and everything below it.
func (v *VirtualFileSystem) RemoveAll(path string) error {
	loc, err := v.resolve("remove", path)
	if err != nil {
		return err
	}
	err = v.reg.Delete(loc, storage.Any, true)
	if errors.Is(err, fserr.ErrNotFound) {
		return nil
	}
	return fserr.WithOp(err, "remove")
}

// DeleteFile removes a file. A missing file in an existing directory is not an error.
func (v *VirtualFileSystem) DeleteFile(name string) error {
	loc, err := v.resolve("delete", name)
	if err != nil {
		return err
	}
	return v.reg.Delete(loc, storage.Files, false)
}

// DeleteDirectory removes a directory, and its contents when recursive is set.
func (v *VirtualFileSystem) DeleteDirectory(name string, recursive bool) error {
	loc, err := v.resolve("delete", name)
	if err != nil {
		return err
	}
	return v.reg.Delete(loc, storage.Directories, recursive)
}

func (v *VirtualFileSystem) exists(name string, filter storage.KindFilter) bool {
	loc, err := v.res.Resolve(name)
	if err != nil {
		return false
	}
	return v.reg.Exists(loc, filter)
}

// Exists reports whether a file or directory exists at name. Invalid paths report false.
func (v *VirtualFileSystem) Exists(name string) bool { return v.exists(name, storage.Any) }

// FileExists reports whether a file exists at name.
func (v *VirtualFileSystem) FileExists(name string) bool { return v.exists(name, storage.Files) }

// DirExists reports whether a directory exists at name.
func (v *VirtualFileSystem) DirExists(name string) bool {
	return v.exists(name, storage.Directories)
}

func (v *VirtualFileSystem) info(op, name string) (storage.Info, error) {
	loc, err := v.resolve(op, name)
	if err != nil {
		return storage.Info{}, err
	}
	info, ok := v.reg.Get(loc)
	if !ok {
		return storage.Info{}, v.notFound(op, loc)
	}
	return info, nil
}

// notFound distinguishes a missing leaf from a missing parent directory.
func (v *VirtualFileSystem) notFound(op string, loc location.Location) error {
	if parent, ok := loc.Parent(); ok && !v.reg.Exists(parent, storage.Directories) {
		return fserr.New(v.mode, fserr.DirectoryNotFound, op, loc.FullPath())
	}
	return fserr.New(v.mode, fserr.FileNotFound, op, loc.FullPath())
}

// Stat describes name, following symbolic links.
func (v *VirtualFileSystem) Stat(name string) (fs.FileInfo, error) {
	info, err := v.info("stat", name)
	if err != nil {
		return nil, err
	}
	for hops := 0; info.LinkTarget != ""; hops++ {
		if hops == maxLinkHops {
			return nil, fserr.Newf(v.mode, fserr.InvalidArgument, "stat", name, "too many levels of symbolic links")
		}
		if info, err = v.info("stat", v.linkPath(info)); err != nil {
			return nil, err
		}
	}
	return newEntry(v, info), nil
}

// Lstat describes name without following a symbolic link.
func (v *VirtualFileSystem) Lstat(name string) (fs.FileInfo, error) {
	info, err := v.info("lstat", name)
	if err != nil {
		return nil, err
	}
	return newEntry(v, info), nil
}

func (v *VirtualFileSystem) linkPath(info storage.Info) string {
	if v.res.IsRooted(info.LinkTarget) {
		return info.LinkTarget
	}
	parent, _ := info.Location.Parent()
	return v.res.Join(parent.FullPath(), info.LinkTarget)
}

// Chtimes sets the last-access and last-write times of name. A zero time
// leaves that timestamp unchanged.
func (v *VirtualFileSystem) Chtimes(name string, atime time.Time, mtime time.Time) error {
	var fields storage.TimeField
	if !atime.IsZero() {
		fields |= storage.LastAccessTime
	}
	if !mtime.IsZero() {
		fields |= storage.LastWriteTime
	}
	return v.SetTimes(name, storage.Times{LastAccess: atime, LastWrite: mtime}, fields)
}

// SetCreationTime sets the creation time of name.
func (v *VirtualFileSystem) SetCreationTime(name string, t time.Time) error {
	return v.SetTimes(name, storage.Times{Creation: t}, storage.CreationTime)
}

// SetTimes overwrites the timestamps of name selected by fields.
func (v *VirtualFileSystem) SetTimes(name string, t storage.Times, fields storage.TimeField) error {
	loc, err := v.resolve("chtimes", name)
	if err != nil {
		return err
	}
	if fields == 0 {
		if _, ok := v.reg.Get(loc); !ok {
			return v.notFound("chtimes", loc)
		}
		return nil
	}
	return v.reg.SetTimes(loc, t, fields)
}

// Chmod sets the permission bits on Unix. On Windows only the owner write bit
// is honored, toggling ReadOnly.
func (v *VirtualFileSystem) Chmod(name string, mode fs.FileMode) error {
	loc, err := v.resolve("chmod", name)
	if err != nil {
		return err
	}
	if v.mode == platform.Unix {
		return v.reg.SetUnixMode(loc, mode)
	}
	info, ok := v.reg.Get(loc)
	if !ok {
		return v.notFound("chmod", loc)
	}
	attrs := info.Attributes
	if mode&0o200 == 0 {
		attrs |= storage.ReadOnly
	} else {
		attrs &^= storage.ReadOnly
	}
	return v.reg.SetAttributes(loc, attrs)
}

// UnixFileMode returns the permission bits of name. Not supported on Windows.
func (v *VirtualFileSystem) UnixFileMode(name string) (fs.FileMode, error) {
	loc, err := v.resolve("mode", name)
	if err != nil {
		return 0, err
	}
	return v.reg.UnixMode(loc)
}

// SetUnixFileMode sets the permission bits of name. Not supported on Windows.
func (v *VirtualFileSystem) SetUnixFileMode(name string, mode fs.FileMode) error {
	loc, err := v.resolve("chmod", name)
	if err != nil {
		return err
	}
	return v.reg.SetUnixMode(loc, mode)
}

// GetAttributes returns the effective attributes of name.
func (v *VirtualFileSystem) GetAttributes(name string) (Attributes, error) {
	info, err := v.info("getattr", name)
	if err != nil {
		return 0, err
	}
	return info.Attributes, nil
}

// SetAttributes replaces the attributes of name.
func (v *VirtualFileSystem) SetAttributes(name string, attrs Attributes) error {
	loc, err := v.resolve("setattr", name)
	if err != nil {
		return err
	}
	return v.reg.SetAttributes(loc, attrs)
}

// Symlink creates newname as a symbolic link to oldname. The link is a
// directory link when oldname currently names a directory.
func (v *VirtualFileSystem) Symlink(oldname, newname string) error {
	loc, err := v.resolve("symlink", newname)
	if err != nil {
		return err
	}
	kind := storage.KindFile
	target := oldname
	if !v.res.IsRooted(target) {
		parent, _ := loc.Parent()
		target = v.res.Join(parent.FullPath(), oldname)
	}
	if v.exists(target, storage.Directories) {
		kind = storage.KindDirectory
	}
	return v.reg.CreateLink(loc, oldname, kind)
}

// Readlink returns the target of the symbolic link name.
func (v *VirtualFileSystem) Readlink(name string) (string, error) {
	info, err := v.info("readlink", name)
	if err != nil {
		return "", err
	}
	if info.LinkTarget == "" {
		return "", fserr.Newf(v.mode, fserr.InvalidArgument, "readlink", name, "not a symbolic link")
	}
	return info.LinkTarget, nil
}

// --- Directories ---

// Mkdir creates the directory name. Its parent must exist.
func (v *VirtualFileSystem) Mkdir(name string, perm fs.FileMode) error {
	loc, err := v.resolve("mkdir", name)
	if err != nil {
		return err
	}
	_, created, err := v.reg.GetOrCreate(loc, storage.KindDirectory)
	if err != nil {
		return fserr.WithOp(err, "mkdir")
	}
	if !created {
		return fserr.New(v.mode, fserr.AlreadyExists, "mkdir", loc.FullPath())
	}
	return v.applyPerm(loc, perm)
}

// MkdirAll creates path and any missing parents. An existing directory is not an error.
func (v *VirtualFileSystem) MkdirAll(path string, perm fs.FileMode) error {
	loc, err := v.resolve("mkdir", path)
	if err != nil {
		return err
	}
	created, err := v.reg.CreateDirectory(loc)
	if err != nil {
		return err
	}
	for _, c := range created {
		if err := v.applyPerm(c, perm); err != nil {
			return err
		}
	}
	return nil
}

func (v *VirtualFileSystem) applyPerm(loc location.Location, perm fs.FileMode) error {
	if v.mode != platform.Unix || perm == 0 {
		return nil
	}
	return v.reg.SetUnixMode(loc, perm)
}

// CreateDirectory creates path and any missing parents and returns its entry.
func (v *VirtualFileSystem) CreateDirectory(path string) (*Entry, error) {
	loc, err := v.resolve("mkdir", path)
	if err != nil {
		return nil, err
	}
	if _, err := v.reg.CreateDirectory(loc); err != nil {
		return nil, err
	}
	return v.entryAt(loc, storage.KindDirectory), nil
}

// ReadDir lists the directory name sorted by file name.
func (v *VirtualFileSystem) ReadDir(name string) ([]fs.DirEntry, error) {
	loc, err := v.resolve("readdir", name)
	if err != nil {
		return nil, err
	}
	children, err := v.reg.Children(loc)
	if err != nil {
		return nil, fserr.WithOp(err, "readdir")
	}
	out := make([]fs.DirEntry, 0, len(children))
	for _, c := range children {
		out = append(out, newEntry(v, c))
	}
	slices.SortFunc(out, func(a, b fs.DirEntry) int { return strings.Compare(a.Name(), b.Name()) })
	return out, nil
}

// WalkDir walks the tree rooted at root in lexical order. It does not follow
// symbolic links.
func (v *VirtualFileSystem) WalkDir(root string, fn fs.WalkDirFunc) error {
	return walkDir(v, root, fn)
}

// Enumerate returns a lazy, restartable sequence of the entries below dir
// matching pattern. The sequence observes changes made while it is consumed.
func (v *VirtualFileSystem) Enumerate(dir, pattern string, opts FindOptions) (iter.Seq[*Entry], error) {
	root, p, err := v.compileSearch(dir, pattern, opts)
	if err != nil {
		return nil, err
	}
	kinds := opts.Kinds
	if kinds == 0 {
		kinds = storage.Any
	}
	seq, err := v.reg.Enumerate(root, kinds, p, storage.EnumerateOptions{
		Options:          opts.Options,
		AttributesToSkip: opts.AttributesToSkip,
	})
	if err != nil {
		return nil, err
	}
	return func(yield func(*Entry) bool) {
		for info := range seq {
			if !yield(newEntry(v, info)) {
				return
			}
		}
	}, nil
}

// Find returns the full paths of the entries Enumerate yields.
func (v *VirtualFileSystem) Find(dir, pattern string, opts FindOptions) ([]string, error) {
	seq, err := v.Enumerate(dir, pattern, opts)
	if err != nil {
		return nil, err
	}
	var out []string
	for e := range seq {
		out = append(out, e.FullPath())
	}
	return out, nil
}

// compileSearch splits the directory part off pattern, checks it stays below
// dir, and compiles the name part.
func (v *VirtualFileSystem) compileSearch(dir, pattern string, opts FindOptions) (location.Location, *search.Pattern, error) {
	const op = "find"
	root, err := v.resolve(op, dir)
	if err != nil {
		return location.Location{}, nil, err
	}
	sub, name := search.Split(v.mode, pattern)
	if sub != "" {
		if v.res.IsRooted(sub) {
			return location.Location{}, nil, fserr.Newf(v.mode, fserr.InvalidArgument, op, pattern, "search pattern must be relative")
		}
		narrowed, err := v.resolve(op, v.res.Join(root.FullPath(), sub))
		if err != nil {
			return location.Location{}, nil, err
		}
		if !narrowed.Equal(root) && !root.Contains(narrowed) {
			return location.Location{}, nil, fserr.Newf(v.mode, fserr.InvalidArgument, op, pattern, "search pattern escapes the search root")
		}
		root = narrowed
	}
	if err := search.ValidateName(v.mode, name); err != nil {
		return location.Location{}, nil, fserr.Wrap(v.mode, fserr.InvalidArgument, op, pattern, err)
	}
	searchOpts := opts.Options
	searchOpts.ShortNames = v.mode == platform.Windows
	p, err := search.Compile(name, searchOpts, v.res.CaseSensitive())
	if err != nil {
		return location.Location{}, nil, fserr.Wrap(v.mode, fserr.InvalidArgument, op, pattern, err)
	}
	return root, p, nil
}

// Getwd returns the current directory.
func (v *VirtualFileSystem) Getwd() (string, error) {
	return v.res.Getwd().FullPath(), nil
}

// Chdir changes the current directory. dir must be an existing directory.
func (v *VirtualFileSystem) Chdir(dir string) error {
	loc, err := v.resolve("chdir", dir)
	if err != nil {
		return err
	}
	if !v.reg.Exists(loc, storage.Directories) {
		return fserr.New(v.mode, fserr.DirectoryNotFound, "chdir", loc.FullPath())
	}
	v.res.Chdir(loc)
	return nil
}

// --- Streams ---

// OpenFile opens a stream on name.
func (v *VirtualFileSystem) OpenFile(name string, mode OpenMode, access FileAccess, share FileShare, options FileOptions) (File, error) {
	s, err := v.openFile(name, mode, access, share, options)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create opens name for reading and writing, creating or truncating it.
func (v *VirtualFileSystem) Create(name string) (File, error) {
	return v.OpenFile(name, ModeCreate, AccessReadWrite, ShareRead, OptionNone)
}

// Open opens an existing file for reading.
func (v *VirtualFileSystem) Open(name string) (File, error) {
	return v.OpenFile(name, ModeOpen, AccessRead, ShareRead, OptionNone)
}

func (v *VirtualFileSystem) openFile(name string, mode OpenMode, access FileAccess, share FileShare, options FileOptions) (*stream, error) {
	const op = "open"
	if err := validateOpen(v.mode, name, mode, access, share); err != nil {
		return nil, err
	}
	loc, err := v.resolve(op, name)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	closed := v.closed
	v.mu.Unlock()
	if closed {
		return nil, fserr.New(v.mode, fserr.InvalidState, op, loc.FullPath())
	}

	s := newStream(v, loc, mode, access, share, options)
	if err := s.open(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	v.streams[s] = struct{}{}
	v.mu.Unlock()
	return s, nil
}

func (v *VirtualFileSystem) forget(s *stream) {
	v.mu.Lock()
	delete(v.streams, s)
	v.mu.Unlock()
}

// validateOpen rejects disposition and access combinations that make no sense
// before anything is resolved or created.
func validateOpen(mode platform.Mode, name string, disp OpenMode, access FileAccess, share FileShare) error {
	const op = "open"
	if disp < storage.CreateNew || disp > storage.Append {
		return fserr.Newf(mode, fserr.InvalidArgument, op, name, "unknown open mode %d", int(disp))
	}
	if access < storage.AccessRead || access > storage.AccessReadWrite {
		return fserr.Newf(mode, fserr.InvalidArgument, op, name, "unknown file access %d", int(access))
	}
	if share < 0 || share > storage.ShareReadWrite|storage.ShareDelete {
		return fserr.Newf(mode, fserr.InvalidArgument, op, name, "unknown file share %d", int(share))
	}
	switch {
	case disp == storage.Append && access != storage.AccessWrite:
		return fserr.Newf(mode, fserr.InvalidOperation, op, name, "%s can only be used with write-only access", disp)
	case access == storage.AccessRead && (disp == storage.Truncate || disp == storage.CreateNew || disp == storage.Create):
		return fserr.Newf(mode, fserr.InvalidOperation, op, name, "%s requires write access", disp)
	}
	return nil
}

// --- Drives ---

// Drives lists the drives addressed so far.
func (v *VirtualFileSystem) Drives() ([]DriveInfo, error) {
	return v.reg.Drives(), nil
}

// Drive describes the drive called name ("C", `C:\`, `\\srv\share` or "/").
func (v *VirtualFileSystem) Drive(name string) (DriveInfo, error) {
	loc, err := v.res.ResolveDrive(name)
	if err != nil {
		return DriveInfo{}, err
	}
	return v.reg.Drive(loc), nil
}

// WithDrive sets the capacity and label of the drive called name, creating it
// if it was never addressed.
func (v *VirtualFileSystem) WithDrive(name string, capacity int64, label string) error {
	loc, err := v.res.ResolveDrive(name)
	if err != nil {
		return err
	}
	return v.reg.SetDrive(loc, capacity, label)
}

// --- Paths ---

// Abs returns the absolute form of path.
func (v *VirtualFileSystem) Abs(path string) (string, error) {
	loc, err := v.resolve("abs", path)
	if err != nil {
		return "", err
	}
	return loc.FullPath(), nil
}

// Join joins path elements with the platform separator.
func (v *VirtualFileSystem) Join(elem ...string) string { return v.res.Join(elem...) }

// Separator returns the primary separator.
func (v *VirtualFileSystem) Separator() byte { return v.mode.Separator() }

// TempDir returns the simulated temporary directory. It is not created.
func (v *VirtualFileSystem) TempDir() string { return v.mode.TempDir() }

// Paths exposes the path helpers of the simulated platform.
func (v *VirtualFileSystem) Paths() *location.Resolver { return v.res }

// --- Notifications ---

// Intercept registers fn to run before every mutation whose event matches
// pred. A non-nil return aborts the mutation with that error. fn runs while
// the engine is locked and must not call back into it.
func (v *VirtualFileSystem) Intercept(pred notify.Predicate, fn notify.InterceptFunc) *notify.Subscription {
	return v.bus.Intercept(pred, fn)
}

// Notify registers fn to run after every committed mutation whose event matches pred.
func (v *VirtualFileSystem) Notify(pred notify.Predicate, fn notify.NotifyFunc) *notify.Subscription {
	return v.bus.Notify(pred, fn)
}

// Watch creates a stopped watcher on the directory cfg.Path.
func (v *VirtualFileSystem) Watch(cfg WatchConfig) (Watcher, error) {
	w, err := v.NewWatcher(cfg)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// NewWatcher is Watch returning the concrete watcher.
func (v *VirtualFileSystem) NewWatcher(cfg WatchConfig) (*notify.Watcher, error) {
	const op = "watch"
	loc, err := v.resolve(op, cfg.Path)
	if err != nil {
		return nil, err
	}
	if !v.reg.Exists(loc, storage.Directories) {
		return nil, fserr.Newf(v.mode, fserr.InvalidArgument, op, loc.FullPath(), "the directory name %s does not exist", loc.FullPath())
	}
	w, err := notify.NewWatcher(v.bus, notify.WatcherOptions{
		Mode:                  v.mode,
		CaseSensitive:         v.res.CaseSensitive(),
		Root:                  loc,
		Filters:               cfg.Filters,
		NotifyFilter:          cfg.NotifyFilter,
		IncludeSubdirectories: cfg.IncludeSubdirectories,
		BufferSize:            cfg.BufferSize,
		Handlers:              cfg.Handlers,
	}, v.logger)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil, fserr.New(v.mode, fserr.InvalidState, op, loc.FullPath())
	}
	v.watchers[w] = struct{}{}
	return w, nil
}

// --- Entries ---

// Entry returns a handle on name. The handle caches what it observed until Refresh.
func (v *VirtualFileSystem) Entry(name string) (*Entry, error) {
	loc, err := v.resolve("entry", name)
	if err != nil {
		return nil, err
	}
	return v.entryAt(loc, 0), nil
}

// Close stops every watcher and closes every open stream. Errors from streams
// are combined.
func (v *VirtualFileSystem) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	streams := make([]*stream, 0, len(v.streams))
	for s := range v.streams {
		streams = append(streams, s)
	}
	watchers := make([]*notify.Watcher, 0, len(v.watchers))
	for w := range v.watchers {
		watchers = append(watchers, w)
	}
	v.watchers = map[*notify.Watcher]struct{}{}
	v.mu.Unlock()

	var err error
	for _, w := range watchers {
		err = multierr.Append(err, w.Close())
	}
	for _, s := range streams {
		err = multierr.Append(err, s.Close())
	}
	v.logger.Debug("Virtual filesystem closed", "streams", len(streams), "watchers", len(watchers))
	return err
}
