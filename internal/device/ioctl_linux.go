//go:build linux

package device

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	iocWrite = 1
	iocRead  = 2

	drmIoctlBase = 'd'
)

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | drmIoctlBase<<8 | nr
}

// drmVersion mirrors struct drm_version; Go inserts the same padding as C.
type drmVersion struct {
	major, minor, patch int32
	nameLen             uintptr
	name                *byte
	dateLen             uintptr
	date                *byte
	descLen             uintptr
	desc                *byte
}

var (
	drmIoctlVersion  = ioc(iocRead|iocWrite, 0x00, unsafe.Sizeof(drmVersion{}))
	drmIoctlGetMagic = ioc(iocRead, 0x02, 4)
)

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg)); errno != 0 {
		return errno
	}
	return nil
}

// drmQueryVersion runs DRM_IOCTL_VERSION twice: once for the string lengths
// and once to fill them.
func drmQueryVersion(fd int) (Version, error) {
	var v drmVersion
	if err := ioctl(fd, drmIoctlVersion, unsafe.Pointer(&v)); err != nil {
		return Version{}, fmt.Errorf("DRM_IOCTL_VERSION: %w", err)
	}

	name := make([]byte, v.nameLen+1)
	date := make([]byte, v.dateLen+1)
	desc := make([]byte, v.descLen+1)
	v.name, v.date, v.desc = &name[0], &date[0], &desc[0]
	if err := ioctl(fd, drmIoctlVersion, unsafe.Pointer(&v)); err != nil {
		return Version{}, fmt.Errorf("DRM_IOCTL_VERSION: %w", err)
	}

	return Version{
		Major:       int(v.major),
		Minor:       int(v.minor),
		Patch:       int(v.patch),
		Name:        cstr(name, v.nameLen),
		Date:        cstr(date, v.dateLen),
		Description: cstr(desc, v.descLen),
	}, nil
}

func cstr(buf []byte, n uintptr) string {
	return string(buf[:min(int(n), len(buf)-1)])
}

// drmGetMagic returns the authentication token for a primary node fd.
func drmGetMagic(fd int) (uint32, error) {
	magic, err := unix.IoctlGetUint32(fd, uint(drmIoctlGetMagic))
	if err != nil {
		return 0, fmt.Errorf("DRM_IOCTL_GET_MAGIC: %w", err)
	}
	return magic, nil
}
