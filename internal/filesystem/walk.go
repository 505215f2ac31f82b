package filesystem

import (
	"errors"
	"io/fs"
)

// walkDir is filepath.WalkDir over any FileSystem: lexical order, root first,
// fs.SkipDir and fs.SkipAll honored, symbolic links not followed.
func walkDir(fsys FileSystem, root string, fn fs.WalkDirFunc) error {
	info, err := fsys.Lstat(root)
	if err != nil {
		err = fn(root, nil, err)
	} else {
		err = walk(fsys, root, fs.FileInfoToDirEntry(info), fn)
	}
	if errors.Is(err, fs.SkipDir) || errors.Is(err, fs.SkipAll) {
		return nil
	}
	return err
}

func walk(fsys FileSystem, path string, d fs.DirEntry, fn fs.WalkDirFunc) error {
	if err := fn(path, d, nil); err != nil || !d.IsDir() {
		if errors.Is(err, fs.SkipDir) && d.IsDir() {
			err = nil
		}
		return err
	}

	entries, err := fsys.ReadDir(path)
	if err != nil {
		// Second call reports the ReadDir error.
		if err = fn(path, d, err); err != nil {
			if errors.Is(err, fs.SkipDir) && d.IsDir() {
				err = nil
			}
			return err
		}
	}

	for _, child := range entries {
		if err := walk(fsys, fsys.Join(path, child.Name()), child, fn); err != nil {
			if errors.Is(err, fs.SkipDir) {
				break
			}
			return err
		}
	}
	return nil
}
