package storage

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/stackvity/vfsim/internal/fserr"
	"github.com/stackvity/vfsim/internal/platform"
)

// FileAccess is the intent of an open handle.
type FileAccess int

const (
	AccessRead      FileAccess = 1
	AccessWrite     FileAccess = 2
	AccessReadWrite            = AccessRead | AccessWrite
)

func (a FileAccess) String() string {
	switch a {
	case AccessRead:
		return "Read"
	case AccessWrite:
		return "Write"
	case AccessReadWrite:
		return "ReadWrite"
	}
	return fmt.Sprintf("FileAccess(%d)", int(a))
}

// FileShare is what a handle permits other handles to do concurrently. Read
// and Write use the same bits as FileAccess; Delete only gates delete, move
// and replace.
type FileShare int

const (
	ShareNone      FileShare = 0
	ShareRead      FileShare = 1
	ShareWrite     FileShare = 2
	ShareReadWrite           = ShareRead | ShareWrite
	ShareDelete    FileShare = 4
)

func (s FileShare) String() string {
	if s == ShareNone {
		return "None"
	}
	var out string
	switch s &^ ShareDelete {
	case ShareRead:
		out = "Read"
	case ShareWrite:
		out = "Write"
	case ShareReadWrite:
		out = "ReadWrite"
	}
	if s&ShareDelete != 0 {
		if out != "" {
			out += "|"
		}
		out += "Delete"
	}
	return out
}

// Handle is one admitted open of a container.
type Handle struct {
	ID     uuid.UUID
	Access FileAccess
	Share  FileShare

	container *Container
}

// Container returns the opened container.
func (h *Handle) Container() *Container { return h.container }

// compatible is the mutual sharing check between an open handle and a request.
func compatible(h *Handle, access FileAccess, share FileShare) bool {
	if FileShare(access)&h.Share != FileShare(access) {
		return false
	}
	return share&FileShare(h.Access) == FileShare(h.Access)
}

// LockManager admits or rejects concurrent opens. Admission never blocks: a
// request is accepted or rejected immediately. In relaxed mode every request
// is accepted, matching advisory POSIX locking.
type LockManager struct {
	mode   platform.Mode
	strict bool

	mu      sync.Mutex
	handles map[*Container][]*Handle
}

// NewLockManager creates a lock manager. strict enables the sharing matrix.
func NewLockManager(mode platform.Mode, strict bool) *LockManager {
	return &LockManager{mode: mode, strict: strict, handles: map[*Container][]*Handle{}}
}

// Strict reports whether the sharing matrix is enforced.
func (m *LockManager) Strict() bool { return m.strict }

// Request admits a new handle on c or fails with a sharing violation.
func (m *LockManager) Request(c *Container, access FileAccess, share FileShare) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.strict {
		for _, h := range m.handles[c] {
			if !compatible(h, access, share) {
				return nil, fserr.SharingViolation(m.mode, "open", c.loc.FullPath())
			}
		}
	}
	h := &Handle{ID: uuid.New(), Access: access, Share: share, container: c}
	m.handles[c] = append(m.handles[c], h)
	return h, nil
}

// Release drops h. Releasing the last handle stops tracking its container.
func (m *LockManager) Release(h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.handles[h.container]
	for i, x := range list {
		if x == h {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(m.handles, h.container)
		return
	}
	m.handles[h.container] = list
}

// CanDelete reports whether every open handle on c shares Delete.
func (m *LockManager) CanDelete(c *Container) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.strict {
		return true
	}
	for _, h := range m.handles[c] {
		if h.Share&ShareDelete == 0 {
			return false
		}
	}
	return true
}

// CanOverwrite reports whether c may be replaced wholesale (copy target).
func (m *LockManager) CanOverwrite(c *Container) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.strict || len(m.handles[c]) == 0
}

// CanRead reports whether every open handle on c shares Read.
func (m *LockManager) CanRead(c *Container) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.strict {
		return true
	}
	for _, h := range m.handles[c] {
		if h.Share&ShareRead == 0 {
			return false
		}
	}
	return true
}

// OpenCount returns the number of handles open on c.
func (m *LockManager) OpenCount(c *Container) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles[c])
}

// Tracked returns the number of containers with at least one open handle.
func (m *LockManager) Tracked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}
