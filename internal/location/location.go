// Package location turns caller-supplied path strings into canonical Location
// values. A Location is the registry key of the virtual filesystem: two paths
// that name the same entry on the simulated platform resolve to Locations with
// the same Key.
package location

import (
	"strings"
)

// Location is a canonical absolute path plus its comparison key. The zero
// value is "no location" (see IsZero).
type Location struct {
	full string // canonical path in display (original) case
	key  string // comparison key, lower-cased when the platform folds case
	root string // drive root including trailing separator, e.g. `C:\`, `\\srv\share\`, `/`
	sep  byte
	fold bool
}

// IsZero reports whether l is the zero Location.
func (l Location) IsZero() bool { return l.full == "" }

// String returns the full path.
func (l Location) String() string { return l.full }

// FullPath returns the canonical absolute path in display case.
func (l Location) FullPath() string { return l.full }

// Key is the comparison key used by the registry.
func (l Location) Key() string { return l.key }

// Root returns the drive root this location lives on, with a trailing separator.
func (l Location) Root() string { return l.root }

// RootKey is the comparison key of the drive root.
func (l Location) RootKey() string { return foldKey(l.root, l.fold) }

// RootLocation returns the drive root of l as a Location.
func (l Location) RootLocation() Location {
	if l.IsZero() {
		return l
	}
	return l.withFull(l.root)
}

// IsRoot reports whether l is a drive root.
func (l Location) IsRoot() bool { return l.full != "" && l.full == l.root }

// Separator is the directory separator used in the full path.
func (l Location) Separator() byte { return l.sep }

// Name returns the last path segment, or the root itself for a drive root.
func (l Location) Name() string {
	if l.IsRoot() {
		return l.root
	}
	if i := strings.LastIndexByte(l.full, l.sep); i >= 0 {
		return l.full[i+1:]
	}
	return l.full
}

// Equal compares two locations by key.
func (l Location) Equal(o Location) bool { return l.key == o.key }

// Parent returns the containing directory. ok is false for roots and the zero Location.
func (l Location) Parent() (parent Location, ok bool) {
	if l.IsZero() || l.IsRoot() {
		return Location{}, false
	}
	i := strings.LastIndexByte(l.full, l.sep)
	if i < len(l.root) {
		return l.withFull(l.root), true
	}
	return l.withFull(l.full[:i]), true
}

// Child returns the location of name inside l. name must be a single, already
// validated segment.
func (l Location) Child(name string) Location {
	if l.IsRoot() {
		return l.withFull(l.root + name)
	}
	return l.withFull(l.full + string(l.sep) + name)
}

// Contains reports whether o is a strict descendant of l.
func (l Location) Contains(o Location) bool {
	if l.IsZero() || o.IsZero() || len(o.key) <= len(l.key) {
		return false
	}
	if l.IsRoot() {
		return strings.HasPrefix(o.key, l.key)
	}
	return strings.HasPrefix(o.key, l.key) && o.key[len(l.key)] == l.sep
}

// Rel returns the path of o relative to l, or "" when o is not inside l.
func (l Location) Rel(o Location) string {
	if !l.Contains(o) {
		return ""
	}
	rel := o.full[len(l.full):]
	return strings.TrimLeft(rel, string(l.sep))
}

// Depth is the number of segments below the root.
func (l Location) Depth() int {
	if l.IsZero() || l.IsRoot() {
		return 0
	}
	return strings.Count(l.full[len(l.root):], string(l.sep)) + 1
}

// Segments returns the segments below the root.
func (l Location) Segments() []string {
	if l.IsZero() || l.IsRoot() {
		return nil
	}
	return strings.Split(l.full[len(l.root):], string(l.sep))
}

// WithName returns a sibling of l named name (same parent).
func (l Location) WithName(name string) Location {
	parent, ok := l.Parent()
	if !ok {
		return l
	}
	return parent.Child(name)
}

// Rebase moves l from below oldBase to below newBase. l must be oldBase or inside it.
func (l Location) Rebase(oldBase, newBase Location) Location {
	if l.Equal(oldBase) {
		return newBase
	}
	rel := oldBase.Rel(l)
	if rel == "" {
		return l
	}
	out := newBase
	for _, seg := range strings.Split(rel, string(l.sep)) {
		out = out.Child(seg)
	}
	return out
}

// Compare orders locations by key (ordinal).
func Compare(a, b Location) int {
	return strings.Compare(a.key, b.key)
}

func (l Location) withFull(full string) Location {
	return Location{full: full, key: foldKey(full, l.fold), root: l.root, sep: l.sep, fold: l.fold}
}

func foldKey(s string, fold bool) string {
	if fold {
		return strings.ToLower(s)
	}
	return s
}
