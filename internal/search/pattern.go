// Package search compiles file-name search patterns and holds the options
// that steer directory enumeration.
package search

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/stackvity/vfsim/internal/platform"
)

// MatchCasing selects how pattern matching treats letter case.
type MatchCasing int

const (
	// PlatformDefault follows the engine's configured name comparison.
	PlatformDefault MatchCasing = iota
	CaseSensitive
	CaseInsensitive
)

// MatchType selects the wildcard dialect.
type MatchType int

const (
	// Simple understands '*' (any run) and '?' (one character) only.
	Simple MatchType = iota
	// Win32 adds the legacy rules: "*.*" matches every name and a trailing '.'
	// restricts the match to names without an extension.
	Win32
)

// Options steer a single enumeration.
type Options struct {
	RecurseSubdirectories bool
	// MaxRecursionDepth limits how many directory levels below the root are
	// visited when recursing. Zero means unlimited.
	MaxRecursionDepth int
	MatchCasing       MatchCasing
	MatchType         MatchType
	// ShortNames makes Win32 matching consider 8.3 short names: a pattern
	// ending in a literal three-character extension also matches names whose
	// extension is longer and starts with it, so "*.abc" matches "x.abcd".
	ShortNames bool
}

// Compatible returns the options used by the classic directory listing calls:
// Win32 matching with the platform's casing.
func Compatible(recurse bool) Options {
	return Options{RecurseSubdirectories: recurse, MatchType: Win32}
}

// Pattern is a compiled name pattern. The zero value matches nothing; use Compile.
type Pattern struct {
	source   string
	matcher  glob.Glob
	fold     bool
	noExt    bool
	matchAll bool
	shortExt bool
}

// Compile compiles a single-segment pattern. An empty pattern matches every name.
// caseSensitive is the engine default consulted when opts.MatchCasing is PlatformDefault.
func Compile(pattern string, opts Options, caseSensitive bool) (*Pattern, error) {
	p := &Pattern{source: pattern}
	switch opts.MatchCasing {
	case CaseSensitive:
		p.fold = false
	case CaseInsensitive:
		p.fold = true
	default:
		p.fold = !caseSensitive
	}

	expr := pattern
	if expr == "" {
		expr = "*"
	}
	if opts.MatchType == Win32 {
		if expr == "*.*" {
			expr = "*"
		} else if len(expr) > 1 && strings.HasSuffix(expr, ".") {
			expr = strings.TrimSuffix(expr, ".")
			p.noExt = true
		}
	}
	if expr == "*" {
		p.matchAll = true
		return p, nil
	}
	if opts.MatchType == Win32 && opts.ShortNames {
		p.shortExt = hasShortExtension(expr)
	}
	if p.fold {
		expr = strings.ToLower(expr)
	}
	g, err := glob.Compile(translate(expr))
	if err != nil {
		return nil, fmt.Errorf("compile search pattern %q: %w", pattern, err)
	}
	p.matcher = g
	return p, nil
}

// MustCompile is Compile for patterns known to be valid.
func MustCompile(pattern string, opts Options, caseSensitive bool) *Pattern {
	p, err := Compile(pattern, opts, caseSensitive)
	if err != nil {
		panic(err)
	}
	return p
}

// translate quotes every glob metacharacter except the two wildcards we support.
func translate(pattern string) string {
	var b strings.Builder
	var literal strings.Builder
	flush := func() {
		b.WriteString(glob.QuoteMeta(literal.String()))
		literal.Reset()
	}
	for _, c := range pattern {
		if c == '*' || c == '?' {
			flush()
			b.WriteRune(c)
			continue
		}
		literal.WriteRune(c)
	}
	flush()
	return b.String()
}

// String returns the pattern as written by the caller.
func (p *Pattern) String() string { return p.source }

// MatchesAll reports whether the pattern accepts every name.
func (p *Pattern) MatchesAll() bool { return p.matchAll && !p.noExt }

// Match reports whether name (a single path segment) matches.
func (p *Pattern) Match(name string) bool {
	if p == nil {
		return false
	}
	if p.noExt && strings.Contains(name, ".") {
		return false
	}
	if p.matchAll {
		return true
	}
	if p.matcher == nil {
		return false
	}
	if p.fold {
		name = strings.ToLower(name)
	}
	if p.matcher.Match(name) {
		return true
	}
	if p.shortExt {
		if i := strings.LastIndexByte(name, '.'); i >= 0 && len(name)-i-1 > 3 {
			return p.matcher.Match(name[:i+4])
		}
	}
	return false
}

// hasShortExtension reports whether pattern ends in '.' followed by exactly
// three characters that are not wildcards.
func hasShortExtension(pattern string) bool {
	i := strings.LastIndexByte(pattern, '.')
	if i < 0 || len(pattern)-i-1 != 3 {
		return false
	}
	return !strings.ContainsAny(pattern[i+1:], "*?")
}

// Split separates a search pattern into its directory part and its final name
// part, using the separators of mode. The directory part is "" when the
// pattern is a bare name.
func Split(mode platform.Mode, pattern string) (dir, name string) {
	i := strings.LastIndexFunc(pattern, func(r rune) bool {
		return r < 0x80 && mode.IsSeparator(byte(r))
	})
	if i < 0 {
		return "", pattern
	}
	return pattern[:i+1], pattern[i+1:]
}

// ValidateName rejects name parts that contain characters no file name may hold.
// Wildcards are allowed.
func ValidateName(mode platform.Mode, name string) error {
	for _, c := range name {
		if c == '*' || c == '?' {
			continue
		}
		for _, bad := range mode.InvalidNameChars() {
			if c == bad {
				return fmt.Errorf("search pattern contains invalid character %q", c)
			}
		}
	}
	return nil
}

// Set is a list of patterns that matches when any member matches. An empty
// set matches every name.
type Set []*Pattern

// CompileSet compiles every filter in filters.
func CompileSet(filters []string, opts Options, caseSensitive bool) (Set, error) {
	set := make(Set, 0, len(filters))
	for _, f := range filters {
		p, err := Compile(f, opts, caseSensitive)
		if err != nil {
			return nil, err
		}
		set = append(set, p)
	}
	return set, nil
}

// Match reports whether name matches any pattern in the set.
func (s Set) Match(name string) bool {
	if len(s) == 0 {
		return true
	}
	for _, p := range s {
		if p.Match(name) {
			return true
		}
	}
	return false
}
