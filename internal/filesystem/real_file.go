package filesystem

import (
	"io"
	"os"

	"go.uber.org/multierr"

	"github.com/stackvity/vfsim/internal/fserr"
	"github.com/stackvity/vfsim/internal/storage"
)

// realFile adapts *os.File to File. Writes go straight to the host, so Flush
// is Sync.
type realFile struct {
	*os.File
	access        FileAccess
	deleteOnClose bool
	// floor is the length at open for append files.
	floor int64
}

var _ File = (*realFile)(nil)

func (f *realFile) ReadByte() (byte, error) {
	var b [1]byte
	n, err := f.File.Read(b[:])
	if n == 0 && err == nil {
		err = io.EOF
	}
	return b[0], err
}

func (f *realFile) WriteByte(c byte) error {
	_, err := f.File.Write([]byte{c})
	return err
}

func (f *realFile) Seek(offset int64, whence int) (int64, error) {
	if f.floor > 0 {
		cur, err := f.File.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, err
		}
		var abs int64
		switch whence {
		case io.SeekStart:
			abs = offset
		case io.SeekCurrent:
			abs = cur + offset
		default:
			return f.File.Seek(offset, whence)
		}
		if abs < f.floor {
			return cur, fserr.Newf(HostMode(), fserr.InvalidOperation, "seek", f.Name(),
				"cannot seek before the original end of a file opened for append")
		}
	}
	return f.File.Seek(offset, whence)
}

func (f *realFile) Flush() error { return f.File.Sync() }

func (f *realFile) Length() (int64, error) {
	info, err := f.File.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (f *realFile) Position() (int64, error) { return f.File.Seek(0, io.SeekCurrent) }

func (f *realFile) SetLength(n int64) error { return f.File.Truncate(n) }

func (f *realFile) CanRead() bool  { return f.access&storage.AccessRead != 0 }
func (f *realFile) CanWrite() bool { return f.access&storage.AccessWrite != 0 }
func (f *realFile) CanSeek() bool  { return true }

// Close closes the host file and removes it when opened with OptionDeleteOnClose.
func (f *realFile) Close() error {
	err := f.File.Close()
	if f.deleteOnClose && err == nil {
		err = multierr.Append(err, os.Remove(f.Name()))
	}
	return err
}
