package fixture

import (
	"fmt"
	"io/fs"
	"strings"

	"github.com/stackvity/vfsim/internal/filesystem"
	"github.com/stackvity/vfsim/internal/storage"
)

// Attributes implied by the entry itself are not recorded.
const impliedAttributes = storage.Directory | storage.Normal | storage.ReparsePoint

// Snapshot captures the tree below root, root excluded, in walk order.
func Snapshot(fsys filesystem.FileSystem, root string) (Tree, error) {
	abs, err := fsys.Abs(root)
	if err != nil {
		return Tree{}, err
	}
	sep := string(fsys.Separator())
	unixLike := sep == "/"

	var t Tree
	err = fsys.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == abs {
			return nil
		}
		rel := strings.Trim(strings.TrimPrefix(path, abs), sep)
		e := Entry{Path: strings.ReplaceAll(rel, sep, "/")}

		if d.Type()&fs.ModeSymlink != 0 {
			target, err := fsys.Readlink(path)
			if err != nil {
				return err
			}
			e.Link = target
			t.Entries = append(t.Entries, e)
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		e.Dir = d.IsDir()
		if !e.Dir {
			data, err := fsys.ReadFile(path)
			if err != nil {
				return err
			}
			e.Content = string(data)
		}
		if unixLike {
			e.Mode = formatMode(info.Mode())
		}
		attrs, err := fsys.GetAttributes(path)
		if err != nil {
			return err
		}
		e.Attributes = (attrs &^ impliedAttributes).Names()

		mtime := info.ModTime()
		e.LastWriteTime = &mtime
		if si, ok := info.Sys().(storage.Info); ok {
			created, accessed := si.Times.Creation, si.Times.LastAccess
			e.CreationTime, e.LastAccessTime = &created, &accessed
		}
		t.Entries = append(t.Entries, e)
		return nil
	})
	if err != nil {
		return Tree{}, fmt.Errorf("failed to snapshot %s: %w", abs, err)
	}
	return t, nil
}

// Dump captures the tree below root and serializes it.
func Dump(fsys filesystem.FileSystem, root string, format Format) ([]byte, error) {
	t, err := Snapshot(fsys, root)
	if err != nil {
		return nil, err
	}
	return t.Encode(format)
}
