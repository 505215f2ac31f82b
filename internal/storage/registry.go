// Package storage is the in-memory container registry: the tree of
// locations to files and directories, the drives they are charged against,
// the access lock manager and the timestamp rules applied by every mutation.
package storage

import (
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/stackvity/vfsim/internal/clock"
	"github.com/stackvity/vfsim/internal/fserr"
	"github.com/stackvity/vfsim/internal/location"
	"github.com/stackvity/vfsim/internal/notify"
	"github.com/stackvity/vfsim/internal/platform"
)

// DefaultDriveCapacity is the size of a drive created without an explicit capacity.
const DefaultDriveCapacity int64 = 1 << 40

// Options configure a Registry.
type Options struct {
	Mode          platform.Mode
	StrictSharing bool
	// DriveCapacity is the capacity of lazily created drives.
	DriveCapacity int64
	Clock         clock.Clock
	// TimeRules defaults to DefaultTimeRules(Mode).
	TimeRules TimeRules
	Bus       *notify.Bus
	Logger    *slog.Logger
}

// Registry maps locations to containers. One coarse lock serializes every
// mutation; reads share it.
type Registry struct {
	mode     platform.Mode
	clock    clock.Clock
	rules    TimeRules
	bus      *notify.Bus
	locks    *LockManager
	logger   *slog.Logger
	capacity int64

	mu       sync.RWMutex
	entries  map[string]*Container
	children map[string]map[string]*Container
	drives   map[string]*Drive
	// generation advances whenever an entry is linked or unlinked.
	generation uint64
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.TimeRules == nil {
		opts.TimeRules = DefaultTimeRules(opts.Mode)
	}
	if opts.Bus == nil {
		opts.Bus = notify.NewBus(logger)
	}
	if opts.DriveCapacity <= 0 {
		opts.DriveCapacity = DefaultDriveCapacity
	}
	return &Registry{
		mode:     opts.Mode,
		clock:    opts.Clock,
		rules:    opts.TimeRules,
		bus:      opts.Bus,
		locks:    NewLockManager(opts.Mode, opts.StrictSharing),
		logger:   logger,
		capacity: opts.DriveCapacity,
		entries:  map[string]*Container{},
		children: map[string]map[string]*Container{},
		drives:   map[string]*Drive{},
	}
}

// Mode returns the platform mode.
func (r *Registry) Mode() platform.Mode { return r.mode }

// Locks returns the access lock manager.
func (r *Registry) Locks() *LockManager { return r.locks }

// Bus returns the change notification bus.
func (r *Registry) Bus() *notify.Bus { return r.bus }

// Now reads the registry clock.
func (r *Registry) Now() time.Time { return r.clock.Now() }

// txn collects the occurred events of one mutation; they are published after
// the registry lock is released.
type txn struct {
	r      *Registry
	now    time.Time
	events []notify.Event
}

func (tx *txn) intercept(events ...notify.Event) error {
	for _, ev := range events {
		if err := tx.r.bus.Pending(ev); err != nil {
			return err
		}
	}
	return nil
}

func (tx *txn) emit(events ...notify.Event) {
	tx.events = append(tx.events, events...)
}

// touch applies the time rule of op to c and records a Changed event when
// anything moved.
func (tx *txn) touch(c *Container, op TimeOp) {
	fields := tx.r.rules.Fields(op)
	if fields == 0 || c.deleted {
		return
	}
	c.times.apply(fields, tx.now)
	tx.emit(notify.Event{Type: notify.Changed, Entry: c.entryType(), Filters: fields.Filters(), Location: c.loc})
}

func (tx *txn) touchParent(loc location.Location) {
	parent, ok := loc.Parent()
	if !ok {
		return
	}
	if pc, ok := tx.r.entries[parent.Key()]; ok {
		tx.touch(pc, OpChildChange)
	}
}

func (r *Registry) mutate(fn func(tx *txn) error) error {
	r.mu.Lock()
	tx := &txn{r: r, now: r.clock.Now()}
	err := fn(tx)
	events := tx.events
	r.mu.Unlock()
	if err != nil {
		return err
	}
	r.bus.Occurred(events...)
	return nil
}

// read runs fn under the shared lock, materializing the drive of loc first
// when it has never been addressed.
func (r *Registry) read(loc location.Location, fn func()) {
	r.mu.RLock()
	if _, ok := r.drives[loc.RootKey()]; ok || loc.IsZero() {
		fn()
		r.mu.RUnlock()
		return
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureDriveLocked(loc)
	fn()
}

func (r *Registry) ensureDriveLocked(loc location.Location) *Drive {
	if d, ok := r.drives[loc.RootKey()]; ok {
		return d
	}
	root := loc.RootLocation()
	d := &Drive{root: root, format: r.mode.DriveFormat(), capacity: r.capacity}
	r.drives[root.Key()] = d
	now := r.clock.Now()
	c := newContainer(KindDirectory, root, Times{Creation: now, LastAccess: now, LastWrite: now})
	r.entries[root.Key()] = c
	r.logger.Debug("Drive mounted", "drive", root.FullPath(), "capacity", d.capacity)
	return d
}

func (r *Registry) driveOf(loc location.Location) *Drive {
	return r.ensureDriveLocked(loc)
}

func (r *Registry) insert(c *Container) {
	r.generation++
	r.entries[c.loc.Key()] = c
	parent, ok := c.loc.Parent()
	if !ok {
		return
	}
	set := r.children[parent.Key()]
	if set == nil {
		set = map[string]*Container{}
		r.children[parent.Key()] = set
	}
	set[c.loc.Key()] = c
}

func (r *Registry) unlink(c *Container) {
	r.generation++
	delete(r.entries, c.loc.Key())
	if parent, ok := c.loc.Parent(); ok {
		if set := r.children[parent.Key()]; set != nil {
			delete(set, c.loc.Key())
			if len(set) == 0 {
				delete(r.children, parent.Key())
			}
		}
	}
}

func (r *Registry) sortedChildren(key string) []*Container {
	set := r.children[key]
	out := make([]*Container, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].loc.Key() < out[j].loc.Key() })
	return out
}

// subtree returns c and all its descendants in pre-order.
func (r *Registry) subtree(c *Container) []*Container {
	out := []*Container{c}
	if c.kind != KindDirectory {
		return out
	}
	for _, child := range r.sortedChildren(c.loc.Key()) {
		out = append(out, r.subtree(child)...)
	}
	return out
}

func (r *Registry) hasChildren(c *Container) bool {
	return len(r.children[c.loc.Key()]) > 0
}

// parentDir returns the directory that must hold loc.
func (r *Registry) parentDir(op string, loc location.Location) (*Container, error) {
	parent, ok := loc.Parent()
	if !ok {
		return nil, fserr.New(r.mode, fserr.AccessDenied, op, loc.FullPath())
	}
	r.ensureDriveLocked(parent)
	pc, ok := r.entries[parent.Key()]
	if !ok || pc.kind != KindDirectory {
		return nil, fserr.New(r.mode, fserr.DirectoryNotFound, op, loc.FullPath())
	}
	return pc, nil
}

// missing builds the not-found error for loc: FileNotFound when only the last
// segment is absent, DirectoryNotFound otherwise.
func (r *Registry) missing(op string, loc location.Location) error {
	if parent, ok := loc.Parent(); ok {
		if pc, ok := r.entries[parent.Key()]; ok && pc.kind == KindDirectory {
			return fserr.New(r.mode, fserr.FileNotFound, op, loc.FullPath())
		}
	}
	return fserr.New(r.mode, fserr.DirectoryNotFound, op, loc.FullPath())
}

// Get returns a snapshot of the container at loc. ok is false when nothing is there.
func (r *Registry) Get(loc location.Location) (info Info, ok bool) {
	r.read(loc, func() {
		var c *Container
		if c, ok = r.entries[loc.Key()]; ok {
			info = c.info(r.mode)
		}
	})
	return info, ok
}

// Exists reports whether a container of an accepted kind is at loc.
func (r *Registry) Exists(loc location.Location, filter KindFilter) bool {
	info, ok := r.Get(loc)
	return ok && filter.accepts(info.Kind)
}

// Children returns snapshots of the direct children of dir in key order.
func (r *Registry) Children(dir location.Location) ([]Info, error) {
	var out []Info
	var err error
	r.read(dir, func() {
		c, ok := r.entries[dir.Key()]
		if !ok || c.kind != KindDirectory {
			err = fserr.New(r.mode, fserr.DirectoryNotFound, "readdir", dir.FullPath())
			return
		}
		for _, child := range r.sortedChildren(dir.Key()) {
			out = append(out, child.info(r.mode))
		}
	})
	return out, err
}

// Len returns the number of containers, drive roots included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// GetOrCreate returns the container at loc, creating an empty one of kind when
// absent. created reports whether a container was made.
func (r *Registry) GetOrCreate(loc location.Location, kind Kind) (info Info, created bool, err error) {
	err = r.mutate(func(tx *txn) error {
		r.ensureDriveLocked(loc)
		c, made, err := r.getOrCreateLocked(tx, "create", loc, kind)
		if err != nil {
			return err
		}
		info, created = c.info(r.mode), made
		return nil
	})
	return info, created, err
}

func (r *Registry) getOrCreateLocked(tx *txn, op string, loc location.Location, kind Kind) (*Container, bool, error) {
	if c, ok := r.entries[loc.Key()]; ok {
		if c.kind == kind {
			return c, false, nil
		}
		if kind == KindFile {
			return nil, false, fserr.New(r.mode, fserr.AccessDenied, op, loc.FullPath())
		}
		return nil, false, fserr.New(r.mode, fserr.AlreadyExists, op, loc.FullPath())
	}
	if _, err := r.parentDir(op, loc); err != nil {
		return nil, false, err
	}
	c, err := r.createLocked(tx, loc, kind)
	return c, err == nil, err
}

func (r *Registry) createLocked(tx *txn, loc location.Location, kind Kind) (*Container, error) {
	ev := notify.Event{Type: notify.Created, Entry: entryTypeOf(kind), Filters: notify.NameFilter(entryTypeOf(kind)), Location: loc}
	if err := tx.intercept(ev); err != nil {
		return nil, err
	}
	// Timestamps left out of the create rule stay at the zero time.
	c := newContainer(kind, loc, Times{})
	c.times.apply(r.rules.Fields(OpCreate), tx.now)
	if kind == KindFile && r.mode == platform.Windows {
		c.attrs = Archive
	}
	r.insert(c)
	tx.emit(ev)
	tx.touchParent(loc)
	r.logger.Debug("Created entry", "path", loc.FullPath(), "kind", kind.String())
	return c, nil
}

func entryTypeOf(k Kind) notify.EntryType {
	if k == KindDirectory {
		return notify.Directory
	}
	return notify.File
}

// CreateDirectory creates loc and every missing parent. It returns the
// directories it created, outermost first.
func (r *Registry) CreateDirectory(loc location.Location) ([]location.Location, error) {
	var created []location.Location
	err := r.mutate(func(tx *txn) error {
		r.ensureDriveLocked(loc)
		var missing []location.Location
		for cur := loc; ; {
			c, ok := r.entries[cur.Key()]
			if ok {
				if c.kind != KindDirectory {
					return fserr.New(r.mode, fserr.AlreadyExists, "mkdir", cur.FullPath())
				}
				break
			}
			missing = append(missing, cur)
			parent, ok := cur.Parent()
			if !ok {
				break
			}
			cur = parent
		}
		for i := len(missing) - 1; i >= 0; i-- {
			if _, err := r.createLocked(tx, missing[i], KindDirectory); err != nil {
				return err
			}
			created = append(created, missing[i])
		}
		return nil
	})
	return created, err
}

// Delete removes the container at loc. filter says which kinds the caller
// expects; a missing file whose directory exists is not an error when filter
// is Files. A non-empty directory is removed only when recursive is set, and
// then every descendant is removed and reported, parents first.
func (r *Registry) Delete(loc location.Location, filter KindFilter, recursive bool) error {
	const op = "delete"
	return r.mutate(func(tx *txn) error {
		r.ensureDriveLocked(loc)
		c, ok := r.entries[loc.Key()]
		if !ok {
			err := r.missing(op, loc)
			if filter == Files && fserr.KindOf(err) == fserr.FileNotFound {
				return nil
			}
			if filter == Directories {
				return fserr.New(r.mode, fserr.DirectoryNotFound, op, loc.FullPath())
			}
			return err
		}
		if !filter.accepts(c.kind) {
			if c.kind == KindDirectory {
				return fserr.New(r.mode, fserr.AccessDenied, op, loc.FullPath())
			}
			return fserr.New(r.mode, fserr.DirectoryNotFound, op, loc.FullPath())
		}
		if loc.IsRoot() {
			return fserr.New(r.mode, fserr.AccessDenied, op, loc.FullPath())
		}
		if c.kind == KindDirectory && r.hasChildren(c) && !recursive {
			return fserr.New(r.mode, fserr.NotEmpty, op, loc.FullPath())
		}

		victims := r.subtree(c)
		events := make([]notify.Event, 0, len(victims))
		for _, v := range victims {
			if r.mode == platform.Windows && v.readOnly(r.mode) {
				return fserr.New(r.mode, fserr.AccessDenied, op, v.loc.FullPath())
			}
			if !r.locks.CanDelete(v) {
				return fserr.SharingViolation(r.mode, op, v.loc.FullPath())
			}
			et := v.entryType()
			events = append(events, notify.Event{Type: notify.Deleted, Entry: et, Filters: notify.NameFilter(et), Location: v.loc})
		}
		if err := tx.intercept(events...); err != nil {
			return err
		}

		drive := r.driveOf(loc)
		for _, v := range victims {
			drive.charge(v.size(), 0)
			r.unlink(v)
			delete(r.children, v.loc.Key())
			r.generation++
			v.deleted = true
		}
		tx.emit(events...)
		tx.touchParent(loc)
		r.logger.Debug("Deleted entry", "path", loc.FullPath(), "removed", len(victims))
		return nil
	})
}

// Drives lists the drives addressed so far, ordered by name.
func (r *Registry) Drives() []DriveInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DriveInfo, 0, len(r.drives))
	for _, d := range r.drives {
		out = append(out, d.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Drive returns the drive holding loc, creating it on first use.
func (r *Registry) Drive(loc location.Location) DriveInfo {
	var info DriveInfo
	r.read(loc, func() { info = r.drives[loc.RootKey()].info() })
	return info
}

// SetDrive sets the capacity (and optionally the label) of the drive holding
// loc. A capacity below the bytes already charged fails with InvalidArgument.
func (r *Registry) SetDrive(loc location.Location, capacity int64, label string) error {
	return r.mutate(func(tx *txn) error {
		d := r.ensureDriveLocked(loc)
		if capacity < d.used || capacity <= 0 {
			return fserr.Newf(r.mode, fserr.InvalidArgument, "drive", d.root.FullPath(),
				"capacity %d is below the %d bytes in use", capacity, d.used)
		}
		d.capacity = capacity
		if label != "" {
			d.label = label
		}
		return nil
	})
}
