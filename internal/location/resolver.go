package location

import (
	"strings"
	"sync"
	"unicode"

	"github.com/stackvity/vfsim/internal/fserr"
	"github.com/stackvity/vfsim/internal/platform"
)

const opResolve = "resolve"

// Resolver resolves path strings under the rules of one platform mode. The
// current directory is owned by the resolver instance; there is no
// process-wide working directory.
type Resolver struct {
	mode          platform.Mode
	caseSensitive bool

	mu  sync.RWMutex
	cwd Location
}

// NewResolver returns a resolver whose current directory is the platform's default root.
func NewResolver(mode platform.Mode, caseSensitive bool) *Resolver {
	r := &Resolver{mode: mode, caseSensitive: caseSensitive}
	root := mode.DefaultRoot()
	r.cwd = r.newLocation(root, root)
	return r
}

// Mode returns the platform mode.
func (r *Resolver) Mode() platform.Mode { return r.mode }

// CaseSensitive reports whether names are compared case-sensitively.
func (r *Resolver) CaseSensitive() bool { return r.caseSensitive }

// Getwd returns the current directory.
func (r *Resolver) Getwd() Location {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cwd
}

// Chdir replaces the current directory. Existence checks belong to the caller.
func (r *Resolver) Chdir(loc Location) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cwd = loc
}

// Resolve validates path and returns its canonical Location. Relative paths
// resolve against the current directory.
func (r *Resolver) Resolve(path string) (Location, error) {
	if err := r.validate(path); err != nil {
		return Location{}, err
	}
	if r.mode == platform.Windows {
		return r.resolveWindows(path)
	}
	return r.resolveUnix(path)
}

// ResolveDrive resolves a drive name ("D", "D:", `D:\`, `\\srv\share`, "/") to its root Location.
func (r *Resolver) ResolveDrive(name string) (Location, error) {
	if strings.TrimSpace(name) == "" {
		return Location{}, fserr.Newf(r.mode, fserr.InvalidArgument, "drive", name, "drive name is empty")
	}
	if r.mode == platform.Unix {
		if name != "/" {
			return Location{}, fserr.Newf(r.mode, fserr.InvalidArgument, "drive", name, "only '/' is a valid drive name")
		}
		return r.newLocation("/", "/"), nil
	}
	if len(name) == 1 && isDriveLetter(name[0]) {
		name += ":"
	}
	loc, err := r.Resolve(name + string(r.mode.Separator()))
	if err != nil {
		return Location{}, fserr.WithOp(err, "drive")
	}
	return r.newLocation(loc.root, loc.root), nil
}

func (r *Resolver) validate(path string) error {
	if strings.TrimSpace(path) == "" {
		return fserr.Newf(r.mode, fserr.InvalidArgument, opResolve, path, "the path is empty or consists only of white-space characters")
	}
	checked := path
	if r.mode == platform.Windows {
		checked = stripDevicePrefix(strings.ReplaceAll(path, "/", `\`))
	}
	for _, c := range checked {
		if r.isInvalidPathRune(c) {
			return fserr.Newf(r.mode, fserr.InvalidArgument, opResolve, path, "the path contains an invalid character %q", c)
		}
	}
	return nil
}

func (r *Resolver) isInvalidPathRune(c rune) bool {
	for _, bad := range r.mode.InvalidPathChars() {
		if c == bad {
			return true
		}
	}
	return r.mode == platform.Windows && (c == '*' || c == '?')
}

func (r *Resolver) resolveUnix(path string) (Location, error) {
	var segments []string
	rest := path
	if strings.HasPrefix(path, "/") {
		rest = path[1:]
	} else {
		segments = r.Getwd().Segments()
	}
	segments = appendSegments(segments, strings.Split(rest, "/"), nil)
	return r.build("/", segments), nil
}

func (r *Resolver) resolveWindows(path string) (Location, error) {
	p := strings.ReplaceAll(path, "/", `\`)
	p = stripDevicePrefix(p)
	cwd := r.Getwd()

	var root, rest string
	var segments []string
	switch {
	case strings.HasPrefix(p, `\\`):
		parts := strings.SplitN(p[2:], `\`, 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return Location{}, fserr.Newf(r.mode, fserr.InvalidArgument, opResolve, path, `the UNC path should be of the form \\server\share`)
		}
		root = `\\` + parts[0] + `\` + parts[1] + `\`
		if len(parts) == 3 {
			rest = parts[2]
		}
	case len(p) >= 2 && p[1] == ':' && isDriveLetter(p[0]):
		root = strings.ToUpper(p[:1]) + `:\`
		if len(p) >= 3 && p[2] == '\\' {
			rest = p[3:]
		} else {
			rest = p[2:]
			if strings.EqualFold(cwd.root, root) {
				segments = cwd.Segments()
			}
		}
	case strings.HasPrefix(p, `\`):
		root = cwd.root
		rest = p[1:]
	default:
		root = cwd.root
		segments = cwd.Segments()
		rest = p
	}

	var bad error
	segments = appendSegments(segments, strings.Split(rest, `\`), func(seg string) string {
		if strings.ContainsRune(seg, ':') && bad == nil {
			bad = fserr.Newf(r.mode, fserr.InvalidArgument, opResolve, path, "the given path's format is not supported")
		}
		return strings.TrimRight(seg, ". ")
	})
	if bad != nil {
		return Location{}, bad
	}
	return r.build(root, segments), nil
}

// appendSegments applies ".", ".." and empty-segment rules. normalize, when
// set, rewrites each ordinary segment; segments it empties are dropped.
func appendSegments(base, parts []string, normalize func(string) string) []string {
	out := append([]string(nil), base...)
	for _, seg := range parts {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			continue
		}
		if normalize != nil {
			seg = normalize(seg)
			if seg == "" {
				continue
			}
		}
		out = append(out, seg)
	}
	return out
}

func (r *Resolver) build(root string, segments []string) Location {
	full := root + strings.Join(segments, string(r.mode.Separator()))
	return r.newLocation(full, root)
}

func (r *Resolver) newLocation(full, root string) Location {
	fold := !r.caseSensitive
	return Location{full: full, key: foldKey(full, fold), root: root, sep: r.mode.Separator(), fold: fold}
}

func stripDevicePrefix(p string) string {
	for _, prefix := range []string{`\\?\UNC\`, `\\.\UNC\`} {
		if strings.HasPrefix(strings.ToUpper(p), strings.ToUpper(prefix)) {
			return `\\` + p[len(prefix):]
		}
	}
	for _, prefix := range []string{`\\?\`, `\\.\`} {
		if strings.HasPrefix(p, prefix) {
			return p[len(prefix):]
		}
	}
	return p
}

func isDriveLetter(c byte) bool {
	return c < unicode.MaxASCII && unicode.IsLetter(rune(c))
}
