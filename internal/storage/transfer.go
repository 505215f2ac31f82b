package storage

import (
	"github.com/stackvity/vfsim/internal/fserr"
	"github.com/stackvity/vfsim/internal/location"
	"github.com/stackvity/vfsim/internal/notify"
	"github.com/stackvity/vfsim/internal/platform"
)

// usage accumulates per-drive byte deltas so a multi-step mutation can be
// checked against every capacity before anything is applied.
type usage map[*Drive]int64

func (u usage) add(d *Drive, n int64) { u[d] += n }

func (u usage) fits() *Drive {
	for d, n := range u {
		if n > 0 && d.used+n > d.capacity {
			return d
		}
	}
	return nil
}

func (u usage) apply() {
	for d, n := range u {
		d.used += n
	}
}

// relocate moves c and its descendants to dst in the indexes.
func (r *Registry) relocate(c *Container, dst location.Location) {
	src := c.loc
	nodes := r.subtree(c)
	for _, n := range nodes {
		r.unlink(n)
		delete(r.children, n.loc.Key())
	}
	for _, n := range nodes {
		n.loc = n.loc.Rebase(src, dst)
		r.insert(n)
	}
}

func subtreeSize(nodes []*Container) int64 {
	var total int64
	for _, n := range nodes {
		total += n.size()
	}
	return total
}

// Copy value-copies the file at src to dst. An existing dst file is replaced
// only when overwrite is set.
func (r *Registry) Copy(src, dst location.Location, overwrite bool) error {
	const op = "copy"
	return r.mutate(func(tx *txn) error {
		r.ensureDriveLocked(src)
		r.ensureDriveLocked(dst)
		sc, ok := r.entries[src.Key()]
		if !ok {
			return r.missing(op, src)
		}
		if sc.kind == KindDirectory {
			return fserr.New(r.mode, fserr.AccessDenied, op, src.FullPath())
		}
		if !r.locks.CanRead(sc) {
			return fserr.SharingViolation(r.mode, op, src.FullPath())
		}
		if _, err := r.parentDir(op, dst); err != nil {
			return err
		}

		dc, exists := r.entries[dst.Key()]
		if exists {
			switch {
			case dc == sc && !overwrite:
				return fserr.FileExists(r.mode, op, dst.FullPath())
			case dc == sc:
				return fserr.Newf(r.mode, fserr.InvalidArgument, op, dst.FullPath(), "the source and destination are the same file")
			case dc.kind == KindDirectory:
				return fserr.New(r.mode, fserr.AccessDenied, op, dst.FullPath())
			case !overwrite:
				return fserr.FileExists(r.mode, op, dst.FullPath())
			case r.mode == platform.Windows && dc.readOnly(r.mode):
				return fserr.New(r.mode, fserr.AccessDenied, op, dst.FullPath())
			case !r.locks.CanOverwrite(dc):
				return fserr.SharingViolation(r.mode, op, dst.FullPath())
			}
		}

		u := usage{}
		var oldSize int64
		if exists {
			oldSize = dc.size()
		}
		u.add(r.driveOf(dst), sc.size()-oldSize)
		if d := u.fits(); d != nil {
			return fserr.New(r.mode, fserr.DiskFull, op, dst.FullPath())
		}

		var ev notify.Event
		if exists {
			ev = notify.Event{Type: notify.Changed, Entry: notify.File, Filters: notify.Size | notify.LastWrite | notify.Attributes, Location: dc.loc}
		} else {
			ev = notify.Event{Type: notify.Created, Entry: notify.File, Filters: notify.FileName, Location: dst}
		}
		if err := tx.intercept(ev); err != nil {
			return err
		}

		target := dc
		if exists {
			target.data = append([]byte(nil), sc.data...)
			target.times.LastWrite = sc.times.LastWrite
		} else {
			target = sc.cloneFor(dst)
			target.times.Creation = tx.now
			r.insert(target)
		}
		if r.mode == platform.Windows {
			target.attrs = sc.attrs | Archive
		}
		target.ext[extUnixMode] = sc.unixMode()
		target.times.apply(r.rules.Fields(OpCopyTarget), tx.now)
		u.apply()

		tx.emit(ev)
		if !exists {
			tx.touchParent(dst)
		}
		r.logger.Debug("Copied file", "from", src.FullPath(), "to", dst.FullPath(), "bytes", sc.size())
		return nil
	})
}

// Move relocates the entry at src to dst. A non-empty directory moves only
// when recursive is set. An existing dst file is replaced only when overwrite
// is set; an existing directory is never replaced.
func (r *Registry) Move(src, dst location.Location, recursive, overwrite bool) error {
	const op = "move"
	return r.mutate(func(tx *txn) error {
		r.ensureDriveLocked(src)
		r.ensureDriveLocked(dst)
		sc, ok := r.entries[src.Key()]
		if !ok {
			return r.missing(op, src)
		}
		if src.IsRoot() {
			return fserr.New(r.mode, fserr.AccessDenied, op, src.FullPath())
		}
		if _, err := r.parentDir(op, dst); err != nil {
			return err
		}
		if src.FullPath() == dst.FullPath() {
			return nil
		}
		if sc.kind == KindDirectory {
			if src.Contains(dst) {
				return fserr.Newf(r.mode, fserr.InvalidArgument, op, dst.FullPath(),
					"cannot move a directory into its own subdirectory")
			}
			if r.hasChildren(sc) && !recursive {
				return fserr.New(r.mode, fserr.NotEmpty, op, src.FullPath())
			}
			if src.RootKey() != dst.RootKey() {
				return fserr.Newf(r.mode, fserr.InvalidOperation, op, dst.FullPath(),
					"source and destination path must have identical roots")
			}
		}

		var events []notify.Event
		dc, exists := r.entries[dst.Key()]
		if exists && dc != sc {
			switch {
			case sc.kind == KindDirectory || dc.kind == KindDirectory || !overwrite:
				return fserr.New(r.mode, fserr.AlreadyExists, op, dst.FullPath())
			case r.mode == platform.Windows && dc.readOnly(r.mode):
				return fserr.New(r.mode, fserr.AccessDenied, op, dst.FullPath())
			case !r.locks.CanDelete(dc):
				return fserr.SharingViolation(r.mode, op, dst.FullPath())
			}
			events = append(events, notify.Event{Type: notify.Deleted, Entry: notify.File, Filters: notify.FileName, Location: dc.loc})
		} else {
			exists = false
		}

		nodes := r.subtree(sc)
		for _, n := range nodes {
			if !r.locks.CanDelete(n) {
				return fserr.SharingViolation(r.mode, op, n.loc.FullPath())
			}
		}

		u := usage{}
		srcDrive, dstDrive := r.driveOf(src), r.driveOf(dst)
		if exists {
			u.add(dstDrive, -dc.size())
		}
		if srcDrive != dstDrive {
			total := subtreeSize(nodes)
			u.add(srcDrive, -total)
			u.add(dstDrive, total)
		}
		if d := u.fits(); d != nil {
			return fserr.New(r.mode, fserr.DiskFull, op, dst.FullPath())
		}

		et := sc.entryType()
		events = append(events, notify.Event{Type: notify.Renamed, Entry: et, Filters: notify.NameFilter(et), Location: dst, OldLocation: src})
		if err := tx.intercept(events...); err != nil {
			return err
		}

		if exists {
			r.unlink(dc)
			dc.deleted = true
		}
		r.relocate(sc, dst)
		u.apply()

		tx.emit(events...)
		tx.touch(sc, OpMoveTarget)
		oldParent, _ := src.Parent()
		newParent, _ := dst.Parent()
		tx.touchParent(src)
		if !oldParent.Equal(newParent) {
			tx.touchParent(dst)
		}
		r.logger.Debug("Moved entry", "from", src.FullPath(), "to", dst.FullPath(), "entries", len(nodes))
		return nil
	})
}

// Replace swaps the content of dst for the file at src. The previous dst file
// becomes backup when backup is set, and is discarded otherwise. On Windows
// the result keeps dst's creation time and attributes.
// ignoreMetadataErrors exists for parity with the OS call; merging metadata
// in memory cannot fail.
func (r *Registry) Replace(src, dst, backup location.Location, ignoreMetadataErrors bool) error {
	const op = "replace"
	_ = ignoreMetadataErrors
	return r.mutate(func(tx *txn) error {
		r.ensureDriveLocked(src)
		r.ensureDriveLocked(dst)
		sc, ok := r.entries[src.Key()]
		if !ok {
			return r.missing(op, src)
		}
		dc, ok := r.entries[dst.Key()]
		if !ok {
			return r.missing(op, dst)
		}
		if sc.kind == KindDirectory {
			return fserr.New(r.mode, fserr.AccessDenied, op, src.FullPath())
		}
		if dc.kind == KindDirectory {
			return fserr.New(r.mode, fserr.AccessDenied, op, dst.FullPath())
		}
		if sc == dc {
			return fserr.Newf(r.mode, fserr.InvalidArgument, op, dst.FullPath(), "the source and destination are the same file")
		}
		if !backup.IsZero() && (backup.Key() == src.Key() || backup.Key() == dst.Key()) {
			return fserr.Newf(r.mode, fserr.InvalidArgument, op, backup.FullPath(), "the backup must differ from the source and destination")
		}
		if r.mode == platform.Windows && dc.readOnly(r.mode) {
			return fserr.New(r.mode, fserr.AccessDenied, op, dst.FullPath())
		}
		if !r.locks.CanDelete(sc) {
			return fserr.SharingViolation(r.mode, op, src.FullPath())
		}
		if !r.locks.CanDelete(dc) {
			return fserr.SharingViolation(r.mode, op, dst.FullPath())
		}

		u := usage{}
		var events []notify.Event
		var bc *Container
		if !backup.IsZero() {
			r.ensureDriveLocked(backup)
			if _, err := r.parentDir(op, backup); err != nil {
				return err
			}
			if existing, ok := r.entries[backup.Key()]; ok {
				if existing.kind == KindDirectory {
					return fserr.New(r.mode, fserr.AccessDenied, op, backup.FullPath())
				}
				if !r.locks.CanDelete(existing) {
					return fserr.SharingViolation(r.mode, op, backup.FullPath())
				}
				bc = existing
				u.add(r.driveOf(backup), -bc.size())
				events = append(events, notify.Event{Type: notify.Deleted, Entry: notify.File, Filters: notify.FileName, Location: bc.loc})
			}
			u.add(r.driveOf(dst), -dc.size())
			u.add(r.driveOf(backup), dc.size())
			events = append(events, notify.Event{Type: notify.Renamed, Entry: notify.File, Filters: notify.FileName, Location: backup, OldLocation: dst})
		} else {
			u.add(r.driveOf(dst), -dc.size())
			events = append(events, notify.Event{Type: notify.Deleted, Entry: notify.File, Filters: notify.FileName, Location: dst})
		}
		u.add(r.driveOf(src), -sc.size())
		u.add(r.driveOf(dst), sc.size())
		events = append(events, notify.Event{Type: notify.Renamed, Entry: notify.File, Filters: notify.FileName, Location: dst, OldLocation: src})

		if d := u.fits(); d != nil {
			return fserr.New(r.mode, fserr.DiskFull, op, dst.FullPath())
		}
		if err := tx.intercept(events...); err != nil {
			return err
		}

		if bc != nil {
			r.unlink(bc)
			bc.deleted = true
		}
		keepCreation, keepAttrs := dc.times.Creation, dc.attrs
		if !backup.IsZero() {
			r.relocate(dc, backup)
		} else {
			r.unlink(dc)
			dc.deleted = true
		}
		r.relocate(sc, dst)
		if r.mode == platform.Windows {
			sc.times.Creation = keepCreation
			sc.attrs = keepAttrs
		}
		u.apply()

		tx.emit(events...)
		tx.touchParent(dst)
		if srcParent, _ := src.Parent(); !srcParent.Equal(mustParent(dst)) {
			tx.touchParent(src)
		}
		r.logger.Debug("Replaced file", "source", src.FullPath(), "destination", dst.FullPath(), "backup", backup.FullPath())
		return nil
	})
}

func mustParent(l location.Location) location.Location {
	p, _ := l.Parent()
	return p
}
