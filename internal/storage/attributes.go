package storage

import (
	"fmt"
	"strings"
)

// Kind discriminates the two container variants.
type Kind int

const (
	KindFile Kind = iota + 1
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// KindFilter selects which container kinds an operation applies to.
type KindFilter int

const (
	Files KindFilter = 1 << iota
	Directories
	Any = Files | Directories
)

func (f KindFilter) accepts(k Kind) bool {
	switch k {
	case KindFile:
		return f&Files != 0
	case KindDirectory:
		return f&Directories != 0
	}
	return false
}

// Attributes mirrors the Win32 file attribute flags. They are stored and
// reported; only ReadOnly and Hidden change behavior.
type Attributes uint32

const (
	ReadOnly          Attributes = 0x1
	Hidden            Attributes = 0x2
	System            Attributes = 0x4
	Directory         Attributes = 0x10
	Archive           Attributes = 0x20
	Device            Attributes = 0x40
	Normal            Attributes = 0x80
	Temporary         Attributes = 0x100
	SparseFile        Attributes = 0x200
	ReparsePoint      Attributes = 0x400
	Compressed        Attributes = 0x800
	Offline           Attributes = 0x1000
	NotContentIndexed Attributes = 0x2000
	Encrypted         Attributes = 0x4000
)

var attributeNames = []struct {
	bit  Attributes
	name string
}{
	{ReadOnly, "ReadOnly"},
	{Hidden, "Hidden"},
	{System, "System"},
	{Directory, "Directory"},
	{Archive, "Archive"},
	{Device, "Device"},
	{Normal, "Normal"},
	{Temporary, "Temporary"},
	{SparseFile, "SparseFile"},
	{ReparsePoint, "ReparsePoint"},
	{Compressed, "Compressed"},
	{Offline, "Offline"},
	{NotContentIndexed, "NotContentIndexed"},
	{Encrypted, "Encrypted"},
}

func (a Attributes) String() string {
	if a == 0 {
		return "0"
	}
	var names []string
	for _, n := range attributeNames {
		if a&n.bit != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ", ")
}

// Names lists the set flags by name.
func (a Attributes) Names() []string {
	var names []string
	for _, n := range attributeNames {
		if a&n.bit != 0 {
			names = append(names, n.name)
		}
	}
	return names
}

// ParseAttributes parses flag names (case-insensitive) into a set.
func ParseAttributes(names []string) (Attributes, error) {
	var out Attributes
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		found := false
		for _, n := range attributeNames {
			if strings.EqualFold(n.name, name) {
				out |= n.bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown file attribute %q", raw)
		}
	}
	return out, nil
}
