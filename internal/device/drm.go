package device

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/bryanchriswhite/VAProbe/internal/logger"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi/native"
)

// Version is the kernel driver's DRM_IOCTL_VERSION answer.
type Version struct {
	Major       int
	Minor       int
	Patch       int
	Name        string
	Date        string
	Description string
}

func (v Version) String() string { return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch) }

func openNode(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("open %s: %w", path, err)
	}
	return fd, nil
}

func closeFD(fd int) { _ = unix.Close(fd) }

// QueryVersion opens path and asks the kernel driver for its version.
func QueryVersion(path string) (Version, error) {
	fd, err := openNode(path)
	if err != nil {
		return Version{}, err
	}
	defer unix.Close(fd)
	return drmQueryVersion(fd)
}

// DRMSource opens a DRM node and hands its descriptor to vaGetDisplayDRM. The
// descriptor stays open until Close, which vaapi calls after vaTerminate.
type DRMSource struct {
	Path string
	// Hint is offered to libva as the driver name; it may be empty.
	Hint string

	mu      sync.Mutex
	fd      int
	version *Version
}

// NewDRMSource returns a source for the node at path.
func NewDRMSource(path string) *DRMSource {
	return &DRMSource{Path: path, fd: -1}
}

func (s *DRMSource) Name() string       { return "drm:" + s.Path }
func (s *DRMSource) DriverHint() string { return s.Hint }

// KernelDriver returns what DRM_IOCTL_VERSION reported during Open, if it
// succeeded.
func (s *DRMSource) KernelDriver() (Version, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version == nil {
		return Version{}, false
	}
	return *s.version, true
}

// Open opens the node and obtains a VADisplay for it.
func (s *DRMSource) Open(lib *native.Library) (native.VADisplay, error) {
	fd, err := openNode(s.Path)
	if err != nil {
		return 0, err
	}
	return s.attach(lib, fd)
}

// attach takes ownership of fd.
func (s *DRMSource) attach(lib *native.Library, fd int) (native.VADisplay, error) {
	log := logger.WithComponent("device")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fd >= 0 {
		closeFD(fd)
		return 0, fmt.Errorf("%s is already open", s.Path)
	}
	s.fd = fd

	if v, err := drmQueryVersion(fd); err == nil {
		s.version = &v
		log.Debug().
			Str("path", s.Path).
			Str("driver", v.Name).
			Str("version", v.String()).
			Msg("DRM device opened")
	} else {
		log.Debug().Err(err).Str("path", s.Path).Msg("DRM device did not report a version")
	}

	drm, err := lib.DRM()
	if err != nil {
		s.closeLocked()
		return 0, err
	}
	dpy := drm.GetDisplayDRM(int32(fd))
	if dpy == 0 {
		s.closeLocked()
		return 0, fmt.Errorf("vaGetDisplayDRM returned no display for %s", s.Path)
	}
	return dpy, nil
}

// Close closes the descriptor. Closing an unopened source is a no-op.
func (s *DRMSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *DRMSource) closeLocked() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	if err != nil && !errors.Is(err, unix.EBADF) {
		return fmt.Errorf("close %s: %w", s.Path, err)
	}
	return nil
}
