// Package device finds DRM render nodes and turns them, or an X11 display,
// into display sources for vaapi.Open.
package device

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bryanchriswhite/VAProbe/internal/config"
	"github.com/bryanchriswhite/VAProbe/internal/logger"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi"
)

// ErrNoDevice means no usable render node was found.
var ErrNoDevice = errors.New("no DRM render node found")

var (
	devDir = "/dev/dri"
	sysDir = "/sys/class/drm"
)

// Node describes a DRM device node.
type Node struct {
	Path        string `json:"path"`
	Driver      string `json:"driver,omitempty"`
	Version     string `json:"version,omitempty"`
	Date        string `json:"date,omitempty"`
	Description string `json:"description,omitempty"`
	PCIVendor   string `json:"pci_vendor,omitempty"`
	PCIDevice   string `json:"pci_device,omitempty"`
	Err         string `json:"error,omitempty"`
}

// Discover lists the render nodes under /dev/dri, sorted by path. Nodes that
// cannot be queried are still listed with Err set.
func Discover() ([]Node, error) {
	paths, err := filepath.Glob(filepath.Join(devDir, "renderD*"))
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)

	nodes := make([]Node, 0, len(paths))
	for _, p := range paths {
		nodes = append(nodes, describe(p))
	}
	return nodes, nil
}

func describe(path string) Node {
	n := Node{Path: path}
	name := filepath.Base(path)
	n.PCIVendor = readSysfs(name, "device", "vendor")
	n.PCIDevice = readSysfs(name, "device", "device")

	v, err := QueryVersion(path)
	if err != nil {
		n.Err = err.Error()
		n.Driver = sysfsDriver(name)
		return n
	}
	n.Driver = v.Name
	n.Version = v.String()
	n.Date = v.Date
	n.Description = v.Description
	return n
}

func readSysfs(parts ...string) string {
	data, err := os.ReadFile(filepath.Join(append([]string{sysDir}, parts...)...))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// sysfsDriver is the kernel driver bound to a node's device.
func sysfsDriver(name string) string {
	target, err := os.Readlink(filepath.Join(sysDir, name, "device", "driver"))
	if err != nil {
		return ""
	}
	return filepath.Base(target)
}

// renderNodeFor maps a primary node such as /dev/dri/card0 to the render node
// of the same device.
func renderNodeFor(card string) (string, bool) {
	name := filepath.Base(card)
	if strings.HasPrefix(name, "renderD") {
		return card, true
	}
	entries, err := os.ReadDir(filepath.Join(sysDir, name, "device", "drm"))
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "renderD") {
			return filepath.Join(devDir, e.Name()), true
		}
	}
	return "", false
}

// Select builds the display source the configuration asks for. In auto mode
// an X11 display with working DRI2 wins, otherwise the first render node.
func Select(cfg config.DeviceConfig) (vaapi.DisplaySource, error) {
	log := logger.WithComponent("device")

	switch cfg.Source {
	case config.SourceDRM:
		return drmSource(cfg)
	case config.SourceX11:
		return NewX11Source(""), nil
	case config.SourceAuto, "":
		if cfg.Path != "" {
			return drmSource(cfg)
		}
		if os.Getenv("DISPLAY") != "" {
			err := ProbeX11("")
			if err == nil {
				log.Debug().Msg("Using X11 display source")
				return NewX11Source(""), nil
			}
			log.Debug().Err(err).Msg("X11 display source unavailable, falling back to DRM")
		}
		return drmSource(cfg)
	default:
		return nil, fmt.Errorf("unknown device source %q", cfg.Source)
	}
}

func drmSource(cfg config.DeviceConfig) (vaapi.DisplaySource, error) {
	if cfg.Path != "" {
		return NewDRMSource(cfg.Path), nil
	}
	paths, err := filepath.Glob(filepath.Join(devDir, "renderD*"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoDevice, devDir)
	}
	slices.Sort(paths)
	return NewDRMSource(paths[0]), nil
}
