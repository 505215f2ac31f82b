package storage

import (
	"iter"
	"slices"
	"sort"

	"github.com/stackvity/vfsim/internal/fserr"
	"github.com/stackvity/vfsim/internal/location"
	"github.com/stackvity/vfsim/internal/search"
)

// EnumerateOptions steer Enumerate.
type EnumerateOptions struct {
	search.Options
	// AttributesToSkip hides entries carrying any of these attributes. Skipped
	// directories are not recursed into.
	AttributesToSkip Attributes
}

type frame struct {
	dir   location.Location
	last  string
	depth int

	// keys is a sorted snapshot of dir's child keys taken at generation gen.
	keys   []string
	pos    int
	gen    uint64
	loaded bool
}

// Enumerate returns the descendants of root that match filter and pattern.
// The sequence is lazy and restartable: each iteration walks the live
// registry, pre-order, ordinal by key within a directory. Mutations made
// between pulls are visible to the walk. Entries are yielded with no lock
// held, so the loop body may modify the registry.
func (r *Registry) Enumerate(root location.Location, filter KindFilter, pattern *search.Pattern, opts EnumerateOptions) (iter.Seq[Info], error) {
	info, ok := r.Get(root)
	if !ok || info.Kind != KindDirectory {
		return nil, fserr.New(r.mode, fserr.DirectoryNotFound, "enumerate", root.FullPath())
	}
	return func(yield func(Info) bool) {
		stack := []*frame{{dir: root}}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			next, ok := r.nextChild(top)
			if !ok {
				stack = stack[:len(stack)-1]
				continue
			}
			top.last = next.Location.Key()

			if next.Attributes&opts.AttributesToSkip != 0 {
				continue
			}
			if filter.accepts(next.Kind) && (pattern == nil || pattern.Match(next.Location.Name())) {
				if !yield(next) {
					return
				}
			}
			if next.Kind == KindDirectory && next.LinkTarget == "" && opts.RecurseSubdirectories &&
				(opts.MaxRecursionDepth == 0 || top.depth < opts.MaxRecursionDepth) {
				stack = append(stack, &frame{dir: next.Location, depth: top.depth + 1})
			}
		}
	}, nil
}

// nextChild returns the child of f.dir with the smallest key greater than
// f.last. The sorted key snapshot is reused until the registry links or
// unlinks an entry. A directory that vanished has no further children.
func (r *Registry) nextChild(f *frame) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.children[f.dir.Key()]
	if !f.loaded || f.gen != r.generation {
		f.keys = f.keys[:0]
		for key := range set {
			f.keys = append(f.keys, key)
		}
		slices.Sort(f.keys)
		f.gen, f.loaded = r.generation, true
		f.pos = 0
		if f.last != "" {
			f.pos = sort.SearchStrings(f.keys, f.last)
			if f.pos < len(f.keys) && f.keys[f.pos] == f.last {
				f.pos++
			}
		}
	}
	for f.pos < len(f.keys) {
		c, ok := set[f.keys[f.pos]]
		f.pos++
		if ok {
			return c.info(r.mode), true
		}
	}
	return Info{}, false
}
