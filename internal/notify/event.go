// Package notify carries change events from the storage registry to
// interested parties: synchronous intercept/notify hooks and asynchronous
// watchers with bounded queues.
package notify

import (
	"fmt"
	"strings"

	"github.com/stackvity/vfsim/internal/location"
)

// ChangeType is a bit set of change kinds.
type ChangeType int

const (
	Created ChangeType = 1 << iota
	Deleted
	Changed
	Renamed

	AllChanges = Created | Deleted | Changed | Renamed
)

func (c ChangeType) String() string {
	var names []string
	for _, k := range []struct {
		bit  ChangeType
		name string
	}{{Created, "Created"}, {Deleted, "Deleted"}, {Changed, "Changed"}, {Renamed, "Renamed"}} {
		if c&k.bit != 0 {
			names = append(names, k.name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("ChangeType(%d)", int(c))
	}
	return strings.Join(names, "|")
}

// EntryType says whether the affected entry is a file or a directory.
type EntryType int

const (
	File EntryType = iota
	Directory
)

func (e EntryType) String() string {
	if e == Directory {
		return "Directory"
	}
	return "File"
}

// Filters is the change-attribute mask: which categories of change occurred,
// or which categories a watcher wants to hear about.
type Filters int

const (
	FileName Filters = 1 << iota
	DirectoryName
	Attributes
	Size
	LastWrite
	LastAccess
	CreationTime
	Security

	// DefaultFilters is the watcher mask used when none is configured.
	DefaultFilters = FileName | DirectoryName | LastWrite
	AllFilters     = FileName | DirectoryName | Attributes | Size | LastWrite | LastAccess | CreationTime | Security
)

var filterNames = []struct {
	bit  Filters
	name string
}{
	{FileName, "FileName"},
	{DirectoryName, "DirectoryName"},
	{Attributes, "Attributes"},
	{Size, "Size"},
	{LastWrite, "LastWrite"},
	{LastAccess, "LastAccess"},
	{CreationTime, "CreationTime"},
	{Security, "Security"},
}

func (f Filters) String() string {
	var names []string
	for _, n := range filterNames {
		if f&n.bit != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "None"
	}
	return strings.Join(names, "|")
}

// ParseFilters parses names such as "FileName" or "lastwrite" into a mask.
func ParseFilters(names []string) (Filters, error) {
	var out Filters
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		found := false
		for _, n := range filterNames {
			if strings.EqualFold(n.name, name) {
				out |= n.bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown notify filter %q", raw)
		}
	}
	return out, nil
}

// NameFilter is the filter bit that a create, delete or rename of the given entry type raises.
func NameFilter(e EntryType) Filters {
	if e == Directory {
		return DirectoryName
	}
	return FileName
}

// Event describes one committed (or about to be committed) mutation.
type Event struct {
	Type    ChangeType
	Entry   EntryType
	Filters Filters
	// Location is the affected entry; for renames, the new location.
	Location location.Location
	// OldLocation is set for renames only.
	OldLocation location.Location
}

// Path returns the full path of the affected entry.
func (e Event) Path() string { return e.Location.FullPath() }

// OldPath returns the previous full path of a renamed entry, or "".
func (e Event) OldPath() string { return e.OldLocation.FullPath() }

// Name returns the last segment of the affected entry.
func (e Event) Name() string { return e.Location.Name() }

func (e Event) String() string {
	if e.Type&Renamed != 0 {
		return fmt.Sprintf("%s %s %s -> %s", e.Type, e.Entry, e.OldPath(), e.Path())
	}
	return fmt.Sprintf("%s %s %s", e.Type, e.Entry, e.Path())
}
