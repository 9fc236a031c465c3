package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bryanchriswhite/VAProbe/internal/vaapi"
)

// Device source selectors.
const (
	SourceAuto = "auto"
	SourceDRM  = "drm"
	SourceX11  = "x11"
)

// MaxSelfTestDimension bounds the self-test surface so a request cannot
// allocate more than a 4K RGBA frame.
const MaxSelfTestDimension = 4096

// Config represents the application configuration
type Config struct {
	LogLevel  string         `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty bool           `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`
	Library   LibraryConfig  `json:"library" yaml:"library" mapstructure:"library"`
	Device    DeviceConfig   `json:"device" yaml:"device" mapstructure:"device"`
	Server    ServerConfig   `json:"server" yaml:"server" mapstructure:"server"`
	Preview   PreviewConfig  `json:"preview" yaml:"preview" mapstructure:"preview"`
	SelfTest  SelfTestConfig `json:"selftest" yaml:"selftest" mapstructure:"selftest"`
}

// LibraryConfig controls where libva is loaded from.
type LibraryConfig struct {
	// Paths are tried before the default sonames.
	Paths []string `json:"paths" yaml:"paths" mapstructure:"paths"`
}

// DeviceConfig selects the display source.
type DeviceConfig struct {
	Source     string `json:"source" yaml:"source" mapstructure:"source"`
	Path       string `json:"path" yaml:"path" mapstructure:"path"`
	DriverName string `json:"driver_name" yaml:"driver_name" mapstructure:"driver_name"`
	MinVersion string `json:"min_version" yaml:"min_version" mapstructure:"min_version"`
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	Port          int           `json:"port" yaml:"port" mapstructure:"port"`
	Metrics       bool          `json:"metrics" yaml:"metrics" mapstructure:"metrics"`
	StatsInterval time.Duration `json:"stats_interval" yaml:"stats_interval" mapstructure:"stats_interval"`
}

// PreviewConfig represents the MJPEG preview configuration
type PreviewConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Width   int  `json:"width" yaml:"width" mapstructure:"width"`
	Height  int  `json:"height" yaml:"height" mapstructure:"height"`
	FPS     int  `json:"fps" yaml:"fps" mapstructure:"fps"`
	Quality int  `json:"quality" yaml:"quality" mapstructure:"quality"`
}

// SelfTestConfig sizes the surface round trip.
type SelfTestConfig struct {
	Width  int    `json:"width" yaml:"width" mapstructure:"width"`
	Height int    `json:"height" yaml:"height" mapstructure:"height"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// Defaults returns the default configuration
func Defaults() *Config {
	return &Config{
		LogLevel: "info",
		Library:  LibraryConfig{Paths: []string{}},
		Device: DeviceConfig{
			Source:     SourceAuto,
			MinVersion: vaapi.DefaultMinVersion.String(),
		},
		Server: ServerConfig{
			Port:          8080,
			Metrics:       true,
			StatsInterval: 2 * time.Second,
		},
		Preview: PreviewConfig{
			Enabled: true,
			Width:   640,
			Height:  360,
			FPS:     10,
			Quality: 80,
		},
		SelfTest: SelfTestConfig{
			Width:  320,
			Height: 240,
			Format: "RGBA",
		},
	}
}

// defaultValues flattens Defaults into viper keys. It also defines the set of
// keys Set accepts and the type each one parses to.
func defaultValues() map[string]any {
	d := Defaults()
	return map[string]any{
		"log_level":             d.LogLevel,
		"log_pretty":            d.LogPretty,
		"library.paths":         d.Library.Paths,
		"device.source":         d.Device.Source,
		"device.path":           d.Device.Path,
		"device.driver_name":    d.Device.DriverName,
		"device.min_version":    d.Device.MinVersion,
		"server.port":           d.Server.Port,
		"server.metrics":        d.Server.Metrics,
		"server.stats_interval": d.Server.StatsInterval,
		"preview.enabled":       d.Preview.Enabled,
		"preview.width":         d.Preview.Width,
		"preview.height":        d.Preview.Height,
		"preview.fps":           d.Preview.FPS,
		"preview.quality":       d.Preview.Quality,
		"selftest.width":        d.SelfTest.Width,
		"selftest.height":       d.SelfTest.Height,
		"selftest.format":       d.SelfTest.Format,
	}
}

var validLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true, "disabled": true,
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (use: trace, debug, info, warn, error, disabled)", c.LogLevel)
	}
	switch c.Device.Source {
	case SourceAuto, SourceDRM, SourceX11:
	default:
		return fmt.Errorf("invalid device source: %s (use: auto, drm, x11)", c.Device.Source)
	}
	if _, err := c.MinVersion(); err != nil {
		return err
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", c.Server.Port)
	}
	if c.Server.StatsInterval < 100*time.Millisecond {
		return fmt.Errorf("stats interval %s is below 100ms", c.Server.StatsInterval)
	}
	if c.Preview.Width <= 0 || c.Preview.Height <= 0 {
		return fmt.Errorf("invalid preview size %dx%d", c.Preview.Width, c.Preview.Height)
	}
	if c.Preview.FPS < 1 || c.Preview.FPS > 60 {
		return fmt.Errorf("preview fps %d out of range 1-60", c.Preview.FPS)
	}
	if c.Preview.Quality < 1 || c.Preview.Quality > 100 {
		return fmt.Errorf("preview quality %d out of range 1-100", c.Preview.Quality)
	}
	if c.SelfTest.Width <= 0 || c.SelfTest.Height <= 0 ||
		c.SelfTest.Width > MaxSelfTestDimension || c.SelfTest.Height > MaxSelfTestDimension {
		return fmt.Errorf("invalid selftest size %dx%d", c.SelfTest.Width, c.SelfTest.Height)
	}
	if _, err := c.SelfTestFormat(); err != nil {
		return err
	}
	return nil
}

// MinVersion parses device.min_version ("major.minor").
func (c *Config) MinVersion() (vaapi.Version, error) {
	major, minor, ok := strings.Cut(strings.TrimSpace(c.Device.MinVersion), ".")
	if !ok {
		return vaapi.Version{}, fmt.Errorf("invalid min_version %q (want major.minor)", c.Device.MinVersion)
	}
	ma, err1 := strconv.Atoi(major)
	mi, err2 := strconv.Atoi(minor)
	if err1 != nil || err2 != nil || ma < 0 || mi < 0 {
		return vaapi.Version{}, fmt.Errorf("invalid min_version %q (want major.minor)", c.Device.MinVersion)
	}
	return vaapi.Version{Major: ma, Minor: mi}, nil
}

// SelfTestFormat parses selftest.format as a FourCC.
func (c *Config) SelfTestFormat() (vaapi.FourCC, error) {
	f, err := vaapi.ParseFourCC(c.SelfTest.Format)
	if err != nil {
		return 0, fmt.Errorf("invalid selftest format: %w", err)
	}
	if f.RTFormat() == 0 {
		return 0, fmt.Errorf("selftest format %s has no render target format", f)
	}
	return f, nil
}
