package storage

import (
	"strings"

	"github.com/stackvity/vfsim/internal/location"
)

// DriveType mirrors the kinds of volume the platform reports.
type DriveType int

const (
	DriveFixed DriveType = iota + 1
	DriveNetwork
)

func (t DriveType) String() string {
	if t == DriveNetwork {
		return "Network"
	}
	return "Fixed"
}

// Drive is a simulated volume. Every file's length is charged against the
// drive holding it; used never exceeds capacity.
type Drive struct {
	root     location.Location
	label    string
	format   string
	capacity int64
	used     int64
}

func (d *Drive) free() int64 { return d.capacity - d.used }

// fits reports whether replacing oldSize bytes with newSize keeps the drive within capacity.
func (d *Drive) fits(oldSize, newSize int64) bool {
	return d.used-oldSize+newSize <= d.capacity
}

func (d *Drive) charge(oldSize, newSize int64) {
	d.used += newSize - oldSize
}

func (d *Drive) info() DriveInfo {
	typ := DriveFixed
	if strings.HasPrefix(d.root.FullPath(), `\\`) {
		typ = DriveNetwork
	}
	return DriveInfo{
		Name:      d.root.FullPath(),
		Label:     d.label,
		Format:    d.format,
		Type:      typ,
		TotalSize: d.capacity,
		Used:      d.used,
		Free:      d.free(),
		Ready:     true,
	}
}

// DriveInfo is a snapshot of a drive.
type DriveInfo struct {
	Name      string
	Label     string
	Format    string
	Type      DriveType
	TotalSize int64
	Used      int64
	Free      int64
	Ready     bool
}
