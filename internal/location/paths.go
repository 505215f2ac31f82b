package location

import (
	"strings"

	"github.com/stackvity/vfsim/internal/platform"
)

// Lexical path helpers. None of them touch the current directory or validate
// characters; they mirror path/filepath for the simulated platform.

// IsRooted reports whether path starts at a root (or, on Windows, names a drive).
func (r *Resolver) IsRooted(path string) bool {
	if path == "" {
		return false
	}
	if r.mode.IsSeparator(path[0]) {
		return true
	}
	return r.mode == platform.Windows && len(path) >= 2 && path[1] == ':' && isDriveLetter(path[0])
}

// Join joins elements with the platform separator and cleans the result
// lexically. Empty elements are ignored; a rooted element discards everything
// before it.
func (r *Resolver) Join(elem ...string) string {
	sep := string(r.mode.Separator())
	var parts []string
	for _, e := range elem {
		if e == "" {
			continue
		}
		if r.IsRooted(e) {
			parts = parts[:0]
		}
		parts = append(parts, e)
	}
	if len(parts) == 0 {
		return ""
	}
	return r.Clean(strings.Join(parts, sep))
}

// Clean normalizes separators, collapses repeated separators and resolves "."
// and ".." lexically. A relative path stays relative.
func (r *Resolver) Clean(path string) string {
	if path == "" {
		return "."
	}
	sep := r.mode.Separator()
	if alt := r.mode.AltSeparator(); alt != 0 {
		path = strings.ReplaceAll(path, string(alt), string(sep))
	}
	prefix, rest := r.splitRoot(path)
	rooted := prefix != ""
	var out []string
	for _, seg := range strings.Split(rest, string(sep)) {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 && out[len(out)-1] != ".." {
				out = out[:len(out)-1]
			} else if !rooted {
				out = append(out, "..")
			}
			continue
		}
		out = append(out, seg)
	}
	joined := strings.Join(out, string(sep))
	if prefix == "" && joined == "" {
		return "."
	}
	return prefix + joined
}

// splitRoot separates the root prefix (with trailing separator) from the rest.
func (r *Resolver) splitRoot(path string) (string, string) {
	sep := string(r.mode.Separator())
	if r.mode == platform.Windows {
		if strings.HasPrefix(path, `\\`) {
			parts := strings.SplitN(path[2:], sep, 3)
			if len(parts) >= 2 {
				rest := ""
				if len(parts) == 3 {
					rest = parts[2]
				}
				return `\\` + parts[0] + sep + parts[1] + sep, rest
			}
		}
		if len(path) >= 2 && path[1] == ':' && isDriveLetter(path[0]) {
			if len(path) >= 3 && path[2] == '\\' {
				return strings.ToUpper(path[:1]) + `:\`, path[3:]
			}
			// drive-relative: keep "X:" as a non-rooted prefix
			return "", path
		}
	}
	if strings.HasPrefix(path, sep) {
		return sep, strings.TrimLeft(path, sep)
	}
	return "", path
}

// Base returns the last element of path. Trailing separators are removed first.
func (r *Resolver) Base(path string) string {
	if path == "" {
		return "."
	}
	prefix, rest := r.splitRoot(r.normalizeSeparators(path))
	rest = strings.TrimRight(rest, string(r.mode.Separator()))
	if rest == "" {
		if prefix != "" {
			return prefix
		}
		return "."
	}
	if i := strings.LastIndexByte(rest, r.mode.Separator()); i >= 0 {
		return rest[i+1:]
	}
	return rest
}

// Dir returns all but the last element of path, cleaned.
func (r *Resolver) Dir(path string) string {
	p := r.normalizeSeparators(path)
	prefix, rest := r.splitRoot(p)
	i := strings.LastIndexByte(rest, r.mode.Separator())
	if i < 0 {
		if prefix != "" {
			return prefix
		}
		return "."
	}
	return r.Clean(prefix + rest[:i])
}

// Ext returns the extension of the last element, including the dot.
func (r *Resolver) Ext(path string) string {
	base := r.Base(path)
	if i := strings.LastIndexByte(base, '.'); i > 0 || (i == 0 && len(base) > 1) {
		return base[i:]
	}
	return ""
}

// ChangeExtension replaces the extension of path. An empty ext removes it.
func (r *Resolver) ChangeExtension(path, ext string) string {
	trimmed := strings.TrimSuffix(path, r.Ext(path))
	if ext == "" {
		return trimmed
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return trimmed + ext
}

func (r *Resolver) normalizeSeparators(path string) string {
	if alt := r.mode.AltSeparator(); alt != 0 {
		return strings.ReplaceAll(path, string(alt), string(r.mode.Separator()))
	}
	return path
}
