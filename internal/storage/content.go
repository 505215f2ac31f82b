package storage

import (
	"io/fs"

	"github.com/stackvity/vfsim/internal/fserr"
	"github.com/stackvity/vfsim/internal/location"
	"github.com/stackvity/vfsim/internal/notify"
	"github.com/stackvity/vfsim/internal/platform"
)

// Disposition says how an open treats an existing or missing file. The values
// match the classic FileMode enumeration.
type Disposition int

const (
	CreateNew    Disposition = 1
	Create       Disposition = 2
	Open         Disposition = 3
	OpenOrCreate Disposition = 4
	Truncate     Disposition = 5
	Append       Disposition = 6
)

func (d Disposition) String() string {
	switch d {
	case CreateNew:
		return "CreateNew"
	case Create:
		return "Create"
	case Open:
		return "Open"
	case OpenOrCreate:
		return "OpenOrCreate"
	case Truncate:
		return "Truncate"
	case Append:
		return "Append"
	}
	return "Disposition(?)"
}

// OpenRequest describes one stream open.
type OpenRequest struct {
	Disposition   Disposition
	Access        FileAccess
	Share         FileShare
	DeleteOnClose bool
}

// OpenResult is what an admitted open receives.
type OpenResult struct {
	Handle *Handle
	// Data seeds the stream's private buffer; it is never shared with the container.
	Data []byte
	// Empty reports that the stream starts empty and must overwrite the
	// container on its first flush even if nothing is written.
	Empty   bool
	Created bool
	Info    Info
}

// Open resolves or creates the file at loc per req and admits a handle.
func (r *Registry) Open(loc location.Location, req OpenRequest) (OpenResult, error) {
	const op = "open"
	var res OpenResult
	err := r.mutate(func(tx *txn) error {
		r.ensureDriveLocked(loc)
		c, exists := r.entries[loc.Key()]
		if exists && c.kind == KindDirectory {
			return fserr.New(r.mode, fserr.AccessDenied, op, loc.FullPath())
		}
		switch req.Disposition {
		case CreateNew:
			if exists {
				return fserr.FileExists(r.mode, op, loc.FullPath())
			}
		case Open, Truncate:
			if !exists {
				return r.missing(op, loc)
			}
		}

		if exists {
			if req.Access&AccessWrite != 0 && c.readOnly(r.mode) {
				return fserr.New(r.mode, fserr.AccessDenied, op, loc.FullPath())
			}
			if req.DeleteOnClose && c.readOnly(r.mode) {
				return fserr.New(r.mode, fserr.AccessDenied, op, loc.FullPath())
			}
			if r.mode == platform.Windows && (req.Disposition == Create || req.Disposition == Truncate) &&
				c.effectiveAttributes(r.mode)&Hidden != 0 {
				return fserr.New(r.mode, fserr.AccessDenied, op, loc.FullPath())
			}
			h, err := r.locks.Request(c, req.Access, req.Share)
			if err != nil {
				return err
			}
			res.Handle = h
			res.Empty = req.Disposition == Create || req.Disposition == Truncate
			if !res.Empty {
				res.Data = append([]byte(nil), c.data...)
			}
			tx.touch(c, OpOpen)
			res.Info = c.info(r.mode)
			return nil
		}

		if _, err := r.parentDir(op, loc); err != nil {
			return err
		}
		c, err := r.createLocked(tx, loc, KindFile)
		if err != nil {
			return err
		}
		h, err := r.locks.Request(c, req.Access, req.Share)
		if err != nil {
			return err
		}
		res.Handle, res.Created, res.Empty = h, true, true
		res.Info = c.info(r.mode)
		return nil
	})
	if err == nil {
		r.logger.Debug("Opened stream", "path", loc.FullPath(), "handle", res.Handle.ID.String(),
			"mode", req.Disposition.String(), "access", req.Access.String(), "share", req.Share.String())
	}
	return res, err
}

// Flush replaces the bytes of h's container with data. A flush that would
// exceed the drive's capacity fails with DiskFull and changes nothing.
func (r *Registry) Flush(h *Handle, data []byte) error {
	const op = "flush"
	return r.mutate(func(tx *txn) error {
		c := h.container
		if c.deleted {
			c.data = append(c.data[:0:0], data...)
			return nil
		}
		drive := r.driveOf(c.loc)
		newSize := int64(len(data))
		if !drive.fits(c.size(), newSize) {
			return fserr.New(r.mode, fserr.DiskFull, op, c.loc.FullPath())
		}
		fields := r.rules.Fields(OpWrite)
		ev := notify.Event{Type: notify.Changed, Entry: notify.File, Filters: notify.Size | fields.Filters(), Location: c.loc}
		if err := tx.intercept(ev); err != nil {
			return err
		}
		drive.charge(c.size(), newSize)
		c.data = append([]byte(nil), data...)
		c.times.apply(fields, tx.now)
		if r.mode == platform.Windows {
			c.attrs |= Archive
		}
		tx.emit(ev)
		return nil
	})
}

// Touch applies the time rule of op to h's container.
func (r *Registry) Touch(h *Handle, op TimeOp) {
	if r.rules.Fields(op) == 0 {
		return
	}
	_ = r.mutate(func(tx *txn) error {
		tx.touch(h.container, op)
		return nil
	})
}

// Release closes h. When deleteOnClose is set the container is removed
// regardless of other handles' sharing.
func (r *Registry) Release(h *Handle, deleteOnClose bool) error {
	r.locks.Release(h)
	err := r.mutate(func(tx *txn) error {
		c := h.container
		tx.touch(c, OpClose)
		if !deleteOnClose || c.deleted {
			return nil
		}
		ev := notify.Event{Type: notify.Deleted, Entry: notify.File, Filters: notify.FileName, Location: c.loc}
		if err := tx.intercept(ev); err != nil {
			return err
		}
		r.driveOf(c.loc).charge(c.size(), 0)
		r.unlink(c)
		c.deleted = true
		tx.emit(ev)
		tx.touchParent(c.loc)
		return nil
	})
	r.logger.Debug("Closed stream", "handle", h.ID.String(), "deleteOnClose", deleteOnClose)
	return err
}

// SetAttributes replaces the attributes of the entry at loc. Directory and
// Normal are derived and ignored on input. On Unix only ReadOnly has an
// effect; it toggles the owner write bit.
func (r *Registry) SetAttributes(loc location.Location, attrs Attributes) error {
	const op = "setattr"
	return r.mutate(func(tx *txn) error {
		r.ensureDriveLocked(loc)
		c, ok := r.entries[loc.Key()]
		if !ok {
			return r.missing(op, loc)
		}
		ev := notify.Event{Type: notify.Changed, Entry: c.entryType(), Filters: notify.Attributes, Location: c.loc}
		if err := tx.intercept(ev); err != nil {
			return err
		}
		if r.mode == platform.Unix {
			m := c.unixMode()
			if attrs&ReadOnly != 0 {
				m &^= 0o222
			} else {
				m |= 0o200
			}
			c.ext[extUnixMode] = m
		}
		c.attrs = attrs &^ (Directory | Normal)
		tx.emit(ev)
		tx.touch(c, OpAttributes)
		return nil
	})
}

// SetTimes overwrites the timestamps selected by fields.
func (r *Registry) SetTimes(loc location.Location, t Times, fields TimeField) error {
	const op = "chtimes"
	return r.mutate(func(tx *txn) error {
		r.ensureDriveLocked(loc)
		c, ok := r.entries[loc.Key()]
		if !ok {
			return r.missing(op, loc)
		}
		ev := notify.Event{Type: notify.Changed, Entry: c.entryType(), Filters: fields.Filters(), Location: c.loc}
		if err := tx.intercept(ev); err != nil {
			return err
		}
		if fields&CreationTime != 0 {
			c.times.Creation = t.Creation
		}
		if fields&LastAccessTime != 0 {
			c.times.LastAccess = t.LastAccess
		}
		if fields&LastWriteTime != 0 {
			c.times.LastWrite = t.LastWrite
		}
		tx.emit(ev)
		return nil
	})
}

// SetUnixMode sets the permission bits of the entry at loc. Not supported on Windows.
func (r *Registry) SetUnixMode(loc location.Location, mode fs.FileMode) error {
	const op = "chmod"
	if r.mode == platform.Windows {
		return fserr.New(r.mode, fserr.NotSupported, op, loc.FullPath())
	}
	return r.mutate(func(tx *txn) error {
		r.ensureDriveLocked(loc)
		c, ok := r.entries[loc.Key()]
		if !ok {
			return r.missing(op, loc)
		}
		ev := notify.Event{Type: notify.Changed, Entry: c.entryType(), Filters: notify.Attributes | notify.Security, Location: c.loc}
		if err := tx.intercept(ev); err != nil {
			return err
		}
		c.ext[extUnixMode] = mode.Perm()
		tx.emit(ev)
		tx.touch(c, OpAttributes)
		return nil
	})
}

// UnixMode returns the permission bits of the entry at loc. Not supported on Windows.
func (r *Registry) UnixMode(loc location.Location) (fs.FileMode, error) {
	const op = "mode"
	if r.mode == platform.Windows {
		return 0, fserr.New(r.mode, fserr.NotSupported, op, loc.FullPath())
	}
	var mode fs.FileMode
	var err error
	r.read(loc, func() {
		c, ok := r.entries[loc.Key()]
		if !ok {
			err = r.missing(op, loc)
			return
		}
		mode = c.unixMode()
	})
	return mode, err
}

// Extension returns the auxiliary value stored under key for the entry at loc.
func (r *Registry) Extension(loc location.Location, key string) (any, bool) {
	var v any
	var ok bool
	r.read(loc, func() {
		if c, found := r.entries[loc.Key()]; found {
			v, ok = c.ext[key]
		}
	})
	return v, ok
}

// SetExtension stores an auxiliary value for the entry at loc.
func (r *Registry) SetExtension(loc location.Location, key string, value any) error {
	return r.mutate(func(tx *txn) error {
		r.ensureDriveLocked(loc)
		c, ok := r.entries[loc.Key()]
		if !ok {
			return r.missing("setext", loc)
		}
		c.ext[key] = value
		return nil
	})
}

// CreateLink creates a symbolic link of the given kind at loc pointing at target.
func (r *Registry) CreateLink(loc location.Location, target string, kind Kind) error {
	const op = "symlink"
	return r.mutate(func(tx *txn) error {
		r.ensureDriveLocked(loc)
		if _, ok := r.entries[loc.Key()]; ok {
			return fserr.New(r.mode, fserr.AlreadyExists, op, loc.FullPath())
		}
		if _, err := r.parentDir(op, loc); err != nil {
			return err
		}
		c, err := r.createLocked(tx, loc, kind)
		if err != nil {
			return err
		}
		c.link = target
		return nil
	})
}
