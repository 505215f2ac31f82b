package fixture

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/stackvity/vfsim/internal/filesystem"
	"github.com/stackvity/vfsim/internal/storage"
)

const (
	defaultDirPerm  fs.FileMode = 0o755
	defaultFilePerm fs.FileMode = 0o644
)

var ErrInvalidEntry = errors.New("invalid fixture entry")

// Entry describes one file, directory or symbolic link. Path is relative to
// the root the tree is applied to and always uses forward slashes.
type Entry struct {
	Path           string     `yaml:"path" toml:"path"`
	Dir            bool       `yaml:"dir,omitempty" toml:"dir,omitempty"`
	Content        string     `yaml:"content,omitempty" toml:"content,omitempty"`
	Attributes     []string   `yaml:"attributes,omitempty" toml:"attributes,omitempty"`
	Mode           string     `yaml:"mode,omitempty" toml:"mode,omitempty"` // octal, e.g. "0644"
	CreationTime   *time.Time `yaml:"creationTime,omitempty" toml:"creationTime,omitempty"`
	LastAccessTime *time.Time `yaml:"lastAccessTime,omitempty" toml:"lastAccessTime,omitempty"`
	LastWriteTime  *time.Time `yaml:"lastWriteTime,omitempty" toml:"lastWriteTime,omitempty"`
	Link           string     `yaml:"link,omitempty" toml:"link,omitempty"`
}

// Tree is an ordered list of entries. Parents are created as needed, so an
// entry may appear before or without its directory.
type Tree struct {
	Entries []Entry `yaml:"entries" toml:"entries"`
}

// creationTimeSetter is implemented by filesystems that can set creation times.
type creationTimeSetter interface {
	SetCreationTime(name string, t time.Time) error
}

// LoadTree reads a tree document through fsys. An empty format is taken from
// the file extension.
func LoadTree(fsys filesystem.FileSystem, path string, format Format) (Tree, error) {
	var t Tree
	if err := readDocument(fsys, path, format, &t); err != nil {
		return Tree{}, err
	}
	return t, nil
}

// ParseTree decodes a tree document.
func ParseTree(data []byte, format Format) (Tree, error) {
	var t Tree
	if err := decode(data, format, &t); err != nil {
		return Tree{}, err
	}
	return t, nil
}

// Encode serializes the tree.
func (t Tree) Encode(format Format) ([]byte, error) {
	return encode(t, format)
}

// Apply creates every entry of the tree below root. Timestamps are set once
// every entry exists, since creating children updates their parent. A failing
// entry does not stop the others; all failures are returned combined.
func (t Tree) Apply(fsys filesystem.FileSystem, root string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	var errs error
	created := make([]string, len(t.Entries))
	for i, e := range t.Entries {
		full, err := applyEntry(fsys, root, e, logger)
		if err != nil {
			logger.Warn("Failed to apply fixture entry", "path", e.Path, "error", err)
			errs = multierr.Append(errs, fmt.Errorf("entry %q: %w", e.Path, err))
			continue
		}
		created[i] = full
	}
	for i, e := range t.Entries {
		if created[i] == "" || e.Link != "" {
			continue
		}
		if err := applyTimes(fsys, created[i], e, logger); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("entry %q: %w", e.Path, err))
		}
	}
	return errs
}

func applyEntry(fsys filesystem.FileSystem, root string, e Entry, logger *slog.Logger) (string, error) {
	segments, err := splitRelative(e.Path)
	if err != nil {
		return "", err
	}
	full := fsys.Join(append([]string{root}, segments...)...)
	parent := fsys.Join(append([]string{root}, segments[:len(segments)-1]...)...)

	perm, err := parseMode(e.Mode)
	if err != nil {
		return "", err
	}

	switch {
	case e.Link != "":
		if err := fsys.MkdirAll(parent, defaultDirPerm); err != nil {
			return "", err
		}
		logger.Debug("Creating fixture link", "path", full, "target", e.Link)
		return full, fsys.Symlink(e.Link, full)
	case e.Dir:
		if err := fsys.MkdirAll(full, orDefault(perm, defaultDirPerm)); err != nil {
			return "", err
		}
	default:
		if err := fsys.MkdirAll(parent, defaultDirPerm); err != nil {
			return "", err
		}
		if err := fsys.WriteFile(full, []byte(e.Content), orDefault(perm, defaultFilePerm)); err != nil {
			return "", err
		}
	}
	logger.Debug("Created fixture entry", "path", full, "dir", e.Dir)

	if perm != 0 {
		if err := fsys.Chmod(full, perm); err != nil {
			return "", err
		}
	}
	if len(e.Attributes) > 0 {
		attrs, err := storage.ParseAttributes(e.Attributes)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidEntry, err)
		}
		if err := fsys.SetAttributes(full, attrs); err != nil {
			return "", err
		}
	}
	return full, nil
}

func applyTimes(fsys filesystem.FileSystem, full string, e Entry, logger *slog.Logger) error {
	if e.LastAccessTime != nil || e.LastWriteTime != nil {
		if err := fsys.Chtimes(full, deref(e.LastAccessTime), deref(e.LastWriteTime)); err != nil {
			return err
		}
	}
	if e.CreationTime == nil {
		return nil
	}
	setter, ok := fsys.(creationTimeSetter)
	if !ok {
		logger.Debug("Filesystem cannot set creation times, skipping", "path", full)
		return nil
	}
	return setter.SetCreationTime(full, *e.CreationTime)
}

// splitRelative validates a slash separated relative path and splits it.
func splitRelative(p string) ([]string, error) {
	trimmed := strings.Trim(p, "/")
	if strings.TrimSpace(trimmed) == "" || trimmed == "." {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidEntry)
	}
	if strings.HasPrefix(p, "/") || strings.Contains(p, `\`) || strings.Contains(p, ":") {
		return nil, fmt.Errorf("%w: %q must be relative and use forward slashes", ErrInvalidEntry, p)
	}
	segments := strings.Split(trimmed, "/")
	for _, s := range segments {
		if s == "" || s == "." || s == ".." {
			return nil, fmt.Errorf("%w: %q has an empty or relative segment", ErrInvalidEntry, p)
		}
	}
	return segments, nil
}

func parseMode(s string) (fs.FileMode, error) {
	if s == "" {
		return 0, nil
	}
	m, err := strconv.ParseUint(s, 8, 32)
	if err != nil || m > 0o777 {
		return 0, fmt.Errorf("%w: mode %q is not an octal permission", ErrInvalidEntry, s)
	}
	return fs.FileMode(m), nil
}

func formatMode(m fs.FileMode) string {
	return fmt.Sprintf("%04o", uint32(m.Perm()))
}

func orDefault(m, def fs.FileMode) fs.FileMode {
	if m == 0 {
		return def
	}
	return m
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
