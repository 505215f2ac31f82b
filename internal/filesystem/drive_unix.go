//go:build unix

package filesystem

import (
	"golang.org/x/sys/unix"

	"github.com/stackvity/vfsim/internal/storage"
)

// hostDrive reports the volume mounted at path from statfs.
func hostDrive(path string) (DriveInfo, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return DriveInfo{}, err
	}
	bsize := int64(st.Bsize)
	total := int64(st.Blocks) * bsize
	free := int64(st.Bavail) * bsize
	return DriveInfo{
		Name:      path,
		Format:    "unix",
		Type:      storage.DriveFixed,
		TotalSize: total,
		Used:      total - int64(st.Bfree)*bsize,
		Free:      free,
		Ready:     true,
	}, nil
}
