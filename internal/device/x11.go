package device

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/dri2"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/bryanchriswhite/VAProbe/internal/logger"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi/native"
)

// vaDrivers maps a DRI driver name to the VA driver libva would pick for it.
var vaDrivers = map[string]string{
	"i965":   "i965",
	"iris":   "iHD",
	"crocus": "i965",
}

// VADriverFor returns the VA driver name for a DRI driver name.
func VADriverFor(dri string) string {
	if va, ok := vaDrivers[dri]; ok {
		return va
	}
	return dri
}

func connectDRI2(display string) (*xgb.Conn, xproto.Window, error) {
	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to connect to X server: %w", err)
	}
	if err := dri2.Init(conn); err != nil {
		conn.Close()
		return nil, 0, fmt.Errorf("DRI2 extension not available: %w", err)
	}
	root := xproto.Setup(conn).DefaultScreen(conn).Root
	return conn, root, nil
}

// ProbeX11 checks that display (empty means $DISPLAY) is reachable and
// offers DRI2.
func ProbeX11(display string) error {
	conn, root, err := connectDRI2(display)
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := dri2.Connect(conn, root, dri2.DriverTypeDri).Reply(); err != nil {
		return fmt.Errorf("DRI2Connect: %w", err)
	}
	return nil
}

// X11Source asks the X server which DRM device drives the screen, opens it
// and then behaves like a DRMSource. A primary node is authenticated through
// DRI2 when the device has no render node.
type X11Source struct {
	Display string

	mu     sync.Mutex
	conn   *xgb.Conn
	drm    *DRMSource
	driver string
}

// NewX11Source returns a source for display; empty means $DISPLAY.
func NewX11Source(display string) *X11Source {
	return &X11Source{Display: display}
}

func (s *X11Source) Name() string {
	if s.Display == "" {
		return "x11"
	}
	return "x11:" + s.Display
}

// DriverHint is the VA driver matching the DRI2 driver, known after Open.
func (s *X11Source) DriverHint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return VADriverFor(s.driver)
}

// Device returns the DRM source opened for the screen, or nil before Open.
func (s *X11Source) Device() *DRMSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drm
}

func (s *X11Source) Open(lib *native.Library) (native.VADisplay, error) {
	log := logger.WithComponent("device")

	conn, root, err := connectDRI2(s.Display)
	if err != nil {
		return 0, err
	}
	reply, err := dri2.Connect(conn, root, dri2.DriverTypeDri).Reply()
	if err != nil {
		conn.Close()
		return 0, fmt.Errorf("DRI2Connect: %w", err)
	}
	device := strings.TrimRight(reply.DeviceName, "\x00")
	driver := strings.TrimRight(reply.DriverName, "\x00")
	if device == "" {
		conn.Close()
		return 0, errors.New("DRI2Connect returned no device")
	}

	path, fd, err := openForScreen(conn, root, device)
	if err != nil {
		conn.Close()
		return 0, err
	}
	log.Debug().
		Str("device", path).
		Str("dri_driver", driver).
		Msg("X11 screen mapped to DRM device")

	src := NewDRMSource(path)
	s.mu.Lock()
	s.conn, s.drm, s.driver = conn, src, driver
	s.mu.Unlock()
	return src.attach(lib, fd)
}

// openForScreen prefers the render node of device and falls back to
// authenticating the primary node with the X server.
func openForScreen(conn *xgb.Conn, root xproto.Window, device string) (string, int, error) {
	if render, ok := renderNodeFor(device); ok {
		if fd, err := openNode(render); err == nil {
			return render, fd, nil
		}
	}

	fd, err := openNode(device)
	if err != nil {
		return "", -1, err
	}
	if err := authenticate(conn, root, fd); err != nil {
		closeFD(fd)
		return "", -1, err
	}
	return device, fd, nil
}

func authenticate(conn *xgb.Conn, root xproto.Window, fd int) error {
	magic, err := drmGetMagic(fd)
	if err != nil {
		return err
	}
	reply, err := dri2.Authenticate(conn, root, magic).Reply()
	if err != nil {
		return fmt.Errorf("DRI2Authenticate: %w", err)
	}
	if reply.Authenticated == 0 {
		return errors.New("X server refused DRM authentication")
	}
	return nil
}

// Close closes the DRM descriptor and then the X connection.
func (s *X11Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.drm != nil {
		err = s.drm.Close()
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	return err
}
