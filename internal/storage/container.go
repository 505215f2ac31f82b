package storage

import (
	"io/fs"
	"strings"

	"github.com/stackvity/vfsim/internal/location"
	"github.com/stackvity/vfsim/internal/notify"
	"github.com/stackvity/vfsim/internal/platform"
)

const extUnixMode = "unix.mode"

const (
	defaultFileMode fs.FileMode = 0o644
	defaultDirMode  fs.FileMode = 0o755
)

// Container is the in-memory record of one file or directory. Its fields are
// guarded by the owning Registry's lock; callers outside the package only
// hold the pointer as an identity for open handles.
type Container struct {
	kind    Kind
	loc     location.Location
	data    []byte
	attrs   Attributes
	times   Times
	link    string
	ext     map[string]any
	deleted bool
}

func newContainer(kind Kind, loc location.Location, t Times) *Container {
	return &Container{kind: kind, loc: loc, times: t, ext: map[string]any{}}
}

// Kind returns the container variant.
func (c *Container) Kind() Kind { return c.kind }

func (c *Container) entryType() notify.EntryType {
	if c.kind == KindDirectory {
		return notify.Directory
	}
	return notify.File
}

func (c *Container) size() int64 {
	if c.kind == KindDirectory {
		return 0
	}
	return int64(len(c.data))
}

func (c *Container) unixMode() fs.FileMode {
	if m, ok := c.ext[extUnixMode].(fs.FileMode); ok {
		return m
	}
	if c.kind == KindDirectory {
		return defaultDirMode
	}
	return defaultFileMode
}

// effectiveAttributes reports the attributes the platform would show.
func (c *Container) effectiveAttributes(mode platform.Mode) Attributes {
	a := c.attrs
	if mode == platform.Unix {
		a &^= ReadOnly | Hidden
		if c.unixMode()&0o200 == 0 {
			a |= ReadOnly
		}
		if strings.HasPrefix(c.loc.Name(), ".") && !c.loc.IsRoot() {
			a |= Hidden
		}
	}
	if c.link != "" {
		a |= ReparsePoint
	}
	if c.kind == KindDirectory {
		a |= Directory
		a &^= Normal
	} else {
		a &^= Directory
	}
	if a == 0 {
		a = Normal
	} else if a != Normal {
		a &^= Normal
	}
	return a
}

func (c *Container) readOnly(mode platform.Mode) bool {
	return c.effectiveAttributes(mode)&ReadOnly != 0
}

func (c *Container) info(mode platform.Mode) Info {
	return Info{
		Location:   c.loc,
		Kind:       c.kind,
		Size:       c.size(),
		Attributes: c.effectiveAttributes(mode),
		Times:      c.times,
		LinkTarget: c.link,
		UnixMode:   c.unixMode(),
	}
}

// cloneFor returns a value copy of c placed at loc. Bytes are never shared.
func (c *Container) cloneFor(loc location.Location) *Container {
	out := &Container{
		kind:  c.kind,
		loc:   loc,
		data:  append([]byte(nil), c.data...),
		attrs: c.attrs,
		times: c.times,
		link:  c.link,
		ext:   make(map[string]any, len(c.ext)),
	}
	for k, v := range c.ext {
		out.ext[k] = v
	}
	return out
}

// Info is a point-in-time snapshot of a container.
type Info struct {
	Location   location.Location
	Kind       Kind
	Size       int64
	Attributes Attributes
	Times      Times
	LinkTarget string
	// UnixMode is the simulated permission bits. It is tracked on both
	// platforms but only reported by the filesystem on Unix.
	UnixMode fs.FileMode
}

// IsDir reports whether the snapshot is of a directory.
func (i Info) IsDir() bool { return i.Kind == KindDirectory }

// FileMode renders the snapshot as an io/fs mode.
func (i Info) FileMode() fs.FileMode {
	m := i.UnixMode.Perm()
	if i.Attributes&ReadOnly != 0 {
		m &^= 0o222
	}
	if i.Kind == KindDirectory {
		m |= fs.ModeDir
	}
	if i.LinkTarget != "" {
		m |= fs.ModeSymlink
	}
	return m
}
