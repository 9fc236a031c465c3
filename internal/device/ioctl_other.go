//go:build !linux

package device

import (
	"errors"
	"runtime"
)

var errPlatform = errors.New("DRM ioctls are not available on " + runtime.GOOS)

func drmQueryVersion(int) (Version, error) { return Version{}, errPlatform }

func drmGetMagic(int) (uint32, error) { return 0, errPlatform }
