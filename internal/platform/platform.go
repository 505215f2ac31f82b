// Package platform describes the two simulated operating system families and
// the static rules that differ between them.
package platform

import (
	"fmt"
	"strings"
)

// Mode selects which operating system family the engine imitates.
type Mode int

const (
	// Windows imitates NTFS on Windows: drive letters, UNC roots, case-insensitive names,
	// HRESULT error codes and strict file sharing.
	Windows Mode = iota
	// Unix imitates a POSIX filesystem: a single root, case-sensitive names, errno codes
	// and advisory (always-allow) sharing.
	Unix
)

// String returns the configuration spelling of the mode.
func (m Mode) String() string {
	switch m {
	case Windows:
		return "windows"
	case Unix:
		return "unix"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "windows" or "unix" (case-insensitive). "linux" and "macos"
// are accepted as aliases for unix.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "windows", "win":
		return Windows, nil
	case "unix", "linux", "macos", "darwin":
		return Unix, nil
	default:
		return Windows, fmt.Errorf("unknown platform mode %q (valid: windows, unix)", s)
	}
}

// Separator is the primary directory separator.
func (m Mode) Separator() byte {
	if m == Windows {
		return '\\'
	}
	return '/'
}

// AltSeparator is the alternate separator accepted on input, or 0 when none exists.
func (m Mode) AltSeparator() byte {
	if m == Windows {
		return '/'
	}
	return 0
}

// IsSeparator reports whether c separates path segments in this mode.
func (m Mode) IsSeparator(c byte) bool {
	return c == m.Separator() || (m.AltSeparator() != 0 && c == m.AltSeparator())
}

// CaseSensitiveByDefault reports the default name comparison of the platform.
func (m Mode) CaseSensitiveByDefault() bool {
	return m == Unix
}

// StrictSharingByDefault reports whether the sharing matrix is enforced by default.
func (m Mode) StrictSharingByDefault() bool {
	return m == Windows
}

// DefaultRoot is the root used for the initial current directory.
func (m Mode) DefaultRoot() string {
	if m == Windows {
		return `C:\`
	}
	return "/"
}

// TempDir is the simulated temporary directory.
func (m Mode) TempDir() string {
	if m == Windows {
		return `C:\Temp`
	}
	return "/tmp"
}

// DriveFormat is the filesystem name reported by simulated drives.
func (m Mode) DriveFormat() string {
	if m == Windows {
		return "NTFS"
	}
	return "ext4"
}

// InvalidPathChars lists the characters that may never appear in a path.
func (m Mode) InvalidPathChars() []rune {
	if m == Unix {
		return []rune{0}
	}
	chars := []rune{'"', '<', '>', '|'}
	for c := rune(0); c < 0x20; c++ {
		chars = append(chars, c)
	}
	return chars
}

// InvalidNameChars lists the characters that may never appear in a single file name.
func (m Mode) InvalidNameChars() []rune {
	if m == Unix {
		return []rune{0, '/'}
	}
	return append(m.InvalidPathChars(), ':', '*', '?', '\\', '/')
}
