package filesystem

import (
	"io"
	"io/fs"
	"sync"

	"go.uber.org/multierr"

	"github.com/stackvity/vfsim/internal/fserr"
	"github.com/stackvity/vfsim/internal/location"
	"github.com/stackvity/vfsim/internal/storage"
)

type streamState int

const (
	stateOpening streamState = iota
	stateOpen
	stateClosed
)

// stream is a File over a private copy of the container's bytes. Nothing a
// stream writes is visible to others until it flushes, and a flush replaces
// the container's bytes with the whole buffer.
type stream struct {
	vfs     *VirtualFileSystem
	loc     location.Location
	disp    OpenMode
	access  FileAccess
	share   FileShare
	options FileOptions

	mu      sync.Mutex
	state   streamState
	handle  *storage.Handle
	created bool
	buf     []byte
	pos     int64
	dirty   bool
	// floor is the length at open for append streams; nothing below it may change.
	floor int64
}

var _ File = (*stream)(nil)

func newStream(v *VirtualFileSystem, loc location.Location, disp OpenMode, access FileAccess, share FileShare, options FileOptions) *stream {
	return &stream{vfs: v, loc: loc, disp: disp, access: access, share: share, options: options}
}

func (s *stream) open() error {
	res, err := s.vfs.reg.Open(s.loc, storage.OpenRequest{
		Disposition:   s.disp,
		Access:        s.access,
		Share:         s.share,
		DeleteOnClose: s.options&OptionDeleteOnClose != 0,
	})
	if err != nil {
		return err
	}
	s.handle = res.Handle
	s.created = res.Created
	s.buf = res.Data
	s.dirty = res.Empty
	if s.disp == storage.Append {
		s.floor = int64(len(s.buf))
		s.pos = s.floor
	}
	s.state = stateOpen
	return nil
}

func (s *stream) Name() string { return s.loc.FullPath() }

func (s *stream) CanRead() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateOpen && s.access&storage.AccessRead != 0
}

func (s *stream) CanWrite() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateOpen && s.access&storage.AccessWrite != 0
}

func (s *stream) CanSeek() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateOpen
}

// check must be called with s.mu held.
func (s *stream) check(op string, need FileAccess) error {
	if s.state != stateOpen {
		return fserr.New(s.vfs.mode, fserr.InvalidState, op, s.loc.FullPath())
	}
	if need != 0 && s.access&need == 0 {
		return fserr.Newf(s.vfs.mode, fserr.NotSupported, op, s.loc.FullPath(), "stream does not support %s", op)
	}
	return nil
}

func (s *stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("read", storage.AccessRead); err != nil {
		return 0, err
	}
	n, err := s.readAt(p, s.pos)
	s.pos += int64(n)
	return n, err
}

func (s *stream) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("read", storage.AccessRead); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, fserr.Newf(s.vfs.mode, fserr.InvalidArgument, "read", s.loc.FullPath(), "negative offset")
	}
	n, err := s.readAt(p, off)
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

func (s *stream) ReadByte() (byte, error) {
	var b [1]byte
	n, err := s.Read(b[:])
	if n == 0 && err == nil {
		err = io.EOF
	}
	return b[0], err
}

// readAt must be called with s.mu held.
func (s *stream) readAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off >= int64(len(s.buf)) {
		return 0, io.EOF
	}
	n := copy(p, s.buf[off:])
	s.vfs.reg.Touch(s.handle, storage.OpRead)
	return n, nil
}

func (s *stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("write", storage.AccessWrite); err != nil {
		return 0, err
	}
	n, err := s.writeAt(p, s.pos)
	s.pos += int64(n)
	return n, err
}

func (s *stream) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("write", storage.AccessWrite); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, fserr.Newf(s.vfs.mode, fserr.InvalidArgument, "write", s.loc.FullPath(), "negative offset")
	}
	return s.writeAt(p, off)
}

func (s *stream) WriteByte(c byte) error {
	_, err := s.Write([]byte{c})
	return err
}

// writeAt must be called with s.mu held.
func (s *stream) writeAt(p []byte, off int64) (int, error) {
	if off < s.floor {
		return 0, fserr.Newf(s.vfs.mode, fserr.InvalidOperation, "write", s.loc.FullPath(),
			"cannot overwrite data that existed before the file was opened for append")
	}
	if len(p) == 0 {
		return 0, nil
	}
	end := off + int64(len(p))
	if end > int64(len(s.buf)) {
		s.buf = grow(s.buf, end)
	}
	copy(s.buf[off:], p)
	s.dirty = true
	return len(p), nil
}

// grow extends buf to n bytes, zero filling any gap.
func grow(buf []byte, n int64) []byte {
	if int64(cap(buf)) >= n {
		return buf[:n]
	}
	out := make([]byte, n, max(n, 2*int64(cap(buf))))
	copy(out, buf)
	return out
}

func (s *stream) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("seek", 0); err != nil {
		return 0, err
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = s.pos + offset
	case io.SeekEnd:
		abs = int64(len(s.buf)) + offset
	default:
		return 0, fserr.Newf(s.vfs.mode, fserr.InvalidArgument, "seek", s.loc.FullPath(), "invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fserr.Newf(s.vfs.mode, fserr.InvalidArgument, "seek", s.loc.FullPath(), "negative position")
	}
	if abs < s.floor {
		return 0, fserr.Newf(s.vfs.mode, fserr.InvalidOperation, "seek", s.loc.FullPath(),
			"cannot seek before the original end of a file opened for append")
	}
	s.pos = abs
	return abs, nil
}

func (s *stream) Length() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("length", 0); err != nil {
		return 0, err
	}
	return int64(len(s.buf)), nil
}

func (s *stream) Position() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("position", 0); err != nil {
		return 0, err
	}
	return s.pos, nil
}

// SetLength truncates or zero-extends the buffer. The position is clamped to the new length.
func (s *stream) SetLength(n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("truncate", storage.AccessWrite); err != nil {
		return err
	}
	if n < 0 {
		return fserr.Newf(s.vfs.mode, fserr.InvalidArgument, "truncate", s.loc.FullPath(), "negative length")
	}
	if n < s.floor {
		return fserr.Newf(s.vfs.mode, fserr.InvalidOperation, "truncate", s.loc.FullPath(),
			"cannot truncate data that existed before the file was opened for append")
	}
	if n > int64(len(s.buf)) {
		s.buf = grow(s.buf, n)
	} else {
		clear(s.buf[n:])
		s.buf = s.buf[:n]
	}
	s.pos = min(s.pos, n)
	s.dirty = true
	s.vfs.reg.Touch(s.handle, storage.OpSetLength)
	return nil
}

func (s *stream) Truncate(n int64) error { return s.SetLength(n) }

// Flush publishes the buffer when it has unflushed changes. A failed flush
// leaves the stream dirty.
func (s *stream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("flush", 0); err != nil {
		return err
	}
	return s.flush()
}

func (s *stream) Sync() error { return s.Flush() }

// flush must be called with s.mu held.
func (s *stream) flush() error {
	if !s.dirty {
		return nil
	}
	if err := s.vfs.reg.Flush(s.handle, s.buf); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Stat describes the container the stream is open on.
func (s *stream) Stat() (fs.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("stat", 0); err != nil {
		return nil, err
	}
	info, ok := s.vfs.reg.Get(s.loc)
	if !ok {
		return nil, fserr.New(s.vfs.mode, fserr.FileNotFound, "stat", s.loc.FullPath())
	}
	return newEntry(s.vfs, info), nil
}

// Close flushes, releases the handle and, for delete-on-close streams, removes
// the file. The stream is closed even when the flush fails.
func (s *stream) Close() error {
	s.mu.Lock()
	if s.state != stateOpen {
		s.mu.Unlock()
		return fserr.New(s.vfs.mode, fserr.InvalidState, "close", s.loc.FullPath())
	}
	err := s.flush()
	s.state = stateClosed
	err = multierr.Append(err, s.vfs.reg.Release(s.handle, s.options&OptionDeleteOnClose != 0))
	s.buf = nil
	s.mu.Unlock()
	s.vfs.forget(s)
	return err
}
