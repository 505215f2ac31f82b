package fserr

import (
	"fmt"

	"github.com/stackvity/vfsim/internal/platform"
)

// HRESULT values reported in Windows mode.
const (
	HResultFileNotFound      = -2147024894 // 0x80070002
	HResultPathNotFound      = -2147024893 // 0x80070003
	HResultAccessDenied      = -2147024891 // 0x80070005
	HResultSharingViolation  = -2147024864 // 0x80070020
	HResultFileExists        = -2147024816 // 0x80070050
	HResultAlreadyExists     = -2147024713 // 0x800700B7
	HResultDirNotEmpty       = -2147024751 // 0x80070091
	HResultDiskFull          = -2147024784 // 0x80070070
	HResultInvalidName       = -2147024773 // 0x8007007B
	HResultInvalidParameter  = -2147024809 // 0x80070057
	HResultInvalidOperation  = -2146233079 // 0x80131509
	HResultNotSupported      = -2146233067 // 0x80131515
	HResultObjectDisposed    = -2146232798 // 0x80131622
	HResultOperationCanceled = -2146233029 // 0x8013153B
)

// errno values reported in Unix mode (Linux numbering).
const (
	ENOENT    = 2
	EBADF     = 9
	EACCES    = 13
	EEXIST    = 17
	EINVAL    = 22
	ENOSPC    = 28
	ENOTEMPTY = 39
	ENOTSUP   = 95
	ECANCELED = 125
)

// describe returns the code and message the platform reports for kind.
func describe(mode platform.Mode, kind Kind, path string, sharing bool) (int, string) {
	if mode == platform.Windows {
		return describeWindows(kind, path, sharing)
	}
	return describeUnix(kind)
}

func describeWindows(kind Kind, path string, sharing bool) (int, string) {
	switch kind {
	case FileNotFound:
		return HResultFileNotFound, fmt.Sprintf("Could not find file '%s'.", path)
	case DirectoryNotFound:
		return HResultPathNotFound, fmt.Sprintf("Could not find a part of the path '%s'.", path)
	case AlreadyExists:
		return HResultAlreadyExists, fmt.Sprintf("The file '%s' already exists.", path)
	case NotEmpty:
		return HResultDirNotEmpty, fmt.Sprintf("The directory is not empty. : '%s'", path)
	case AccessDenied:
		if sharing {
			return HResultSharingViolation, fmt.Sprintf("The process cannot access the file '%s' because it is being used by another process.", path)
		}
		return HResultAccessDenied, fmt.Sprintf("Access to the path '%s' is denied.", path)
	case InvalidArgument:
		return HResultInvalidName, "The filename, directory name, or volume label syntax is incorrect."
	case InvalidOperation:
		return HResultInvalidOperation, "Operation is not valid due to the current state of the object."
	case DiskFull:
		return HResultDiskFull, "There is not enough space on the disk."
	case NotSupported:
		return HResultNotSupported, "Specified method is not supported."
	case InvalidState:
		return HResultObjectDisposed, "Cannot access a closed file."
	case Cancelled:
		return HResultOperationCanceled, "The operation was canceled."
	}
	return HResultInvalidParameter, "The parameter is incorrect."
}

func describeUnix(kind Kind) (int, string) {
	switch kind {
	case FileNotFound, DirectoryNotFound:
		return ENOENT, "No such file or directory"
	case AlreadyExists:
		return EEXIST, "File exists"
	case NotEmpty:
		return ENOTEMPTY, "Directory not empty"
	case AccessDenied:
		return EACCES, "Permission denied"
	case InvalidArgument, InvalidOperation:
		return EINVAL, "Invalid argument"
	case DiskFull:
		return ENOSPC, "No space left on device"
	case NotSupported:
		return ENOTSUP, "Operation not supported"
	case InvalidState:
		return EBADF, "Bad file descriptor"
	case Cancelled:
		return ECANCELED, "Operation canceled"
	}
	return EINVAL, "Invalid argument"
}
