//go:build !unix

package filesystem

import (
	"github.com/stackvity/vfsim/internal/fserr"
)

func hostDrive(path string) (DriveInfo, error) {
	return DriveInfo{}, fserr.New(HostMode(), fserr.NotSupported, "drive", path)
}
