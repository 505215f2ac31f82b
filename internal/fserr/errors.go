// Package fserr defines the error taxonomy of the virtual filesystem. Every
// failure carries a Kind plus the code and message the simulated platform
// would have produced, so tests can assert on OS-accurate failures.
package fserr

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/stackvity/vfsim/internal/platform"
)

// Kind classifies a failure independently of the simulated platform.
type Kind int

const (
	// FileNotFound: the final path segment does not exist.
	FileNotFound Kind = iota + 1
	// DirectoryNotFound: an intermediate directory does not exist.
	DirectoryNotFound
	AlreadyExists
	NotEmpty
	// AccessDenied covers sharing violations and read-only/hidden attribute violations.
	AccessDenied
	InvalidArgument
	InvalidOperation
	DiskFull
	NotSupported
	// InvalidState is returned by every operation on a closed stream or stopped watcher.
	InvalidState
	Cancelled
)

var kindNames = map[Kind]string{
	FileNotFound:      "FileNotFound",
	DirectoryNotFound: "DirectoryNotFound",
	AlreadyExists:     "AlreadyExists",
	NotEmpty:          "NotEmpty",
	AccessDenied:      "AccessDenied",
	InvalidArgument:   "InvalidArgument",
	InvalidOperation:  "InvalidOperation",
	DiskFull:          "DiskFull",
	NotSupported:      "NotSupported",
	InvalidState:      "InvalidState",
	Cancelled:         "Cancelled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Sentinel errors for errors.Is. ErrNotFound matches both not-found kinds.
var (
	ErrNotFound          = errors.New("not found")
	ErrFileNotFound      = errors.New("file not found")
	ErrDirectoryNotFound = errors.New("directory not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrNotEmpty          = errors.New("directory not empty")
	ErrAccessDenied      = errors.New("access denied")
	ErrSharingViolation  = errors.New("sharing violation")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidOperation  = errors.New("invalid operation")
	ErrDiskFull          = errors.New("disk full")
	ErrNotSupported      = errors.New("not supported")
	ErrInvalidState      = errors.New("invalid state")
	ErrCancelled         = errors.New("operation cancelled")
)

// Error is the concrete error returned by every engine operation.
type Error struct {
	Op   string // Operation that failed (e.g., "open", "remove")
	Path string // Affected path as supplied by the caller, may be empty
	Kind Kind
	// Code is an HRESULT on the Windows platform and an errno value on Unix.
	Code    int
	Message string
	// Sharing marks an AccessDenied produced by the sharing matrix rather than an attribute.
	Sharing bool
	Err     error // Underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the package sentinels and the io/fs sentinels, so callers written
// against the os package keep working.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound, fs.ErrNotExist:
		return e.Kind == FileNotFound || e.Kind == DirectoryNotFound
	case ErrFileNotFound:
		return e.Kind == FileNotFound
	case ErrDirectoryNotFound:
		return e.Kind == DirectoryNotFound
	case ErrAlreadyExists, fs.ErrExist:
		return e.Kind == AlreadyExists
	case ErrNotEmpty:
		return e.Kind == NotEmpty
	case ErrAccessDenied, fs.ErrPermission:
		return e.Kind == AccessDenied
	case ErrSharingViolation:
		return e.Kind == AccessDenied && e.Sharing
	case ErrInvalidArgument, fs.ErrInvalid:
		return e.Kind == InvalidArgument
	case ErrInvalidOperation:
		return e.Kind == InvalidOperation
	case ErrDiskFull:
		return e.Kind == DiskFull
	case ErrNotSupported:
		return e.Kind == NotSupported
	case ErrInvalidState, fs.ErrClosed:
		return e.Kind == InvalidState
	case ErrCancelled:
		return e.Kind == Cancelled
	}
	return false
}

// New builds an Error with the code and message of the given platform.
func New(mode platform.Mode, kind Kind, op, path string) *Error {
	code, msg := describe(mode, kind, path, false)
	return &Error{Op: op, Path: path, Kind: kind, Code: code, Message: msg}
}

// Newf is New with a custom message replacing the platform default.
func Newf(mode platform.Mode, kind Kind, op, path, format string, args ...any) *Error {
	e := New(mode, kind, op, path)
	e.Message = fmt.Sprintf(format, args...)
	return e
}

// Wrap is New with an underlying cause.
func Wrap(mode platform.Mode, kind Kind, op, path string, cause error) *Error {
	e := New(mode, kind, op, path)
	e.Err = cause
	return e
}

// SharingViolation is the AccessDenied produced by the access lock manager.
func SharingViolation(mode platform.Mode, op, path string) *Error {
	code, msg := describe(mode, AccessDenied, path, true)
	return &Error{Op: op, Path: path, Kind: AccessDenied, Code: code, Message: msg, Sharing: true}
}

// FileExists is the AlreadyExists reported when creating or copying onto an
// existing file; Windows reports ERROR_FILE_EXISTS there instead of ERROR_ALREADY_EXISTS.
func FileExists(mode platform.Mode, op, path string) *Error {
	e := New(mode, AlreadyExists, op, path)
	if mode == platform.Windows {
		e.Code = HResultFileExists
	}
	return e
}

// KindOf returns the Kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// CodeOf returns the platform code of err, or 0 when err is not an *Error.
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// WithOp returns a copy of err with a different operation name when err is an
// *Error, and err unchanged otherwise.
func WithOp(err error, op string) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	c := *e
	c.Op = op
	return &c
}
