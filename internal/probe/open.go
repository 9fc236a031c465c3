package probe

import (
	"fmt"

	"github.com/bryanchriswhite/VAProbe/internal/config"
	"github.com/bryanchriswhite/VAProbe/internal/device"
	"github.com/bryanchriswhite/VAProbe/internal/logger"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi/native"
)

// Env is how a display gets built. Tests swap in fakeva.
type Env struct {
	Load   func(names ...string) (*native.Library, error)
	Select func(config.DeviceConfig) (vaapi.DisplaySource, error)
}

// DefaultEnv loads the system libva and picks a device from /dev/dri or X11.
func DefaultEnv() Env {
	return Env{Load: native.LoadFrom, Select: device.Select}
}

// LoadLibrary tries the configured paths before the default sonames.
func (e Env) LoadLibrary(cfg *config.Config) (*native.Library, error) {
	names := append(append([]string{}, cfg.Library.Paths...), native.DefaultNames...)
	lib, err := e.Load(names...)
	if err != nil {
		return nil, fmt.Errorf("failed to load libva: %w", err)
	}
	return lib, nil
}

// Options turns the device config into vaapi options.
func Options(cfg *config.Config) ([]vaapi.Option, error) {
	minVersion, err := cfg.MinVersion()
	if err != nil {
		return nil, err
	}
	opts := []vaapi.Option{
		vaapi.WithMinVersion(minVersion.Major, minVersion.Minor),
		vaapi.WithLogger(*logger.WithComponent("vaapi")),
	}
	if cfg.Device.DriverName != "" {
		opts = append(opts, vaapi.WithDriverName(cfg.Device.DriverName))
	}
	return opts, nil
}

// Open loads libva, selects the configured device and initializes a display
// on it. extra options are applied after the configured ones.
func (e Env) Open(cfg *config.Config, extra ...vaapi.Option) (*vaapi.Display, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}
	lib, err := e.LoadLibrary(cfg)
	if err != nil {
		return nil, err
	}
	src, err := e.Select(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("failed to select a device: %w", err)
	}
	d, err := vaapi.Open(lib, src, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", src.Name(), err)
	}
	return d, nil
}
