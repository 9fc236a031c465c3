package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/VAProbe/internal/vaapi"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "vaprobe", "config.yaml"))
	require.NoError(t, err)
	return m
}

func TestNewManagerCreatesDefaults(t *testing.T) {
	m := newTestManager(t)
	assert.Equal(t, Defaults(), m.Get())

	data, err := os.ReadFile(m.Path())
	require.NoError(t, err)
	var onDisk Config
	require.NoError(t, yaml.Unmarshal(data, &onDisk))
	assert.Equal(t, 8080, onDisk.Server.Port)
	assert.Equal(t, 2*time.Second, onDisk.Server.StatsInterval)
	assert.Contains(t, string(data), "stats_interval: 2s")
}

func TestNewManagerReadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
library:
  paths: [/opt/intel/libva.so.2]
device:
  source: drm
  path: /dev/dri/renderD129
server:
  port: 9090
`), 0644))

	m, err := NewManager(path)
	require.NoError(t, err)
	cfg := m.Get()
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"/opt/intel/libva.so.2"}, cfg.Library.Paths)
	assert.Equal(t, SourceDRM, cfg.Device.Source)
	assert.Equal(t, "/dev/dri/renderD129", cfg.Device.Path)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, Defaults().Preview, cfg.Preview, "missing keys fall back to defaults")
}

func TestNewManagerRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device:\n  source: wayland\n"), 0644))
	_, err := NewManager(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid device source: wayland")
}

func TestSet(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Set("server.port", "9191"))
	require.NoError(t, m.Set("server.stats_interval", "500ms"))
	require.NoError(t, m.Set("library.paths", "/a/libva.so.2, /b/libva.so"))
	require.NoError(t, m.Set("log_pretty", "true"))

	cfg := m.Get()
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Server.StatsInterval)
	assert.Equal(t, []string{"/a/libva.so.2", "/b/libva.so"}, cfg.Library.Paths)
	assert.True(t, cfg.LogPretty)

	reloaded, err := NewManager(m.Path())
	require.NoError(t, err)
	assert.Equal(t, cfg, reloaded.Get())

	v, err := m.GetValue("server.port")
	require.NoError(t, err)
	assert.EqualValues(t, 9191, v)
}

func TestSetRejects(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"server.port", "abc", "invalid number"},
		{"server.port", "70000", "invalid port number"},
		{"log_level", "verbose", "invalid log level"},
		{"log_pretty", "maybe", "invalid boolean"},
		{"device.min_version", "one", "invalid min_version"},
		{"preview.quality", "0", "out of range"},
		{"selftest.format", "RGB", "invalid selftest format"},
		{"selftest.width", "16384", "invalid selftest size"},
		{"nope", "1", "configuration key not found"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			m := newTestManager(t)
			err := m.Set(tt.key, tt.value)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, Defaults(), m.Get(), "a rejected value changes nothing")
		})
	}
}

func TestBindFlag(t *testing.T) {
	m := newTestManager(t)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("port", 0, "")
	fs.String("device", "", "")
	require.NoError(t, m.BindFlag("server.port", fs.Lookup("port")))
	require.NoError(t, m.BindFlag("device.path", fs.Lookup("device")))
	assert.Equal(t, 8080, m.Get().Server.Port, "unchanged flags keep the file value")

	require.NoError(t, fs.Parse([]string{"--port", "7070"}))
	require.NoError(t, m.BindFlag("server.port", fs.Lookup("port")))
	assert.Equal(t, 7070, m.Get().Server.Port)

	assert.Error(t, m.BindFlag("server.nope", fs.Lookup("port")))
	assert.Error(t, m.BindFlag("server.port", nil))
}

func TestSaveTakesLock(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Save())
	_, err := os.Stat(m.Path() + ".lock")
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Dir(m.Path()))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".config-", "temporary files are removed")
	}
}

func TestWatch(t *testing.T) {
	m := newTestManager(t)
	var last atomic.Int64
	m.Watch(func(c *Config) { last.Store(int64(c.Server.Port)) })

	cfg := m.Get()
	cfg.Server.Port = 6060
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(m.Path(), data, 0644))

	require.Eventually(t, func() bool { return last.Load() == 6060 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 6060, m.Get().Server.Port)
}

func TestConfigAccessors(t *testing.T) {
	cfg := Defaults()
	v, err := cfg.MinVersion()
	require.NoError(t, err)
	assert.Equal(t, vaapi.DefaultMinVersion, v)

	cfg.Device.MinVersion = "1.22"
	v, err = cfg.MinVersion()
	require.NoError(t, err)
	assert.Equal(t, vaapi.Version{Major: 1, Minor: 22}, v)

	f, err := cfg.SelfTestFormat()
	require.NoError(t, err)
	assert.Equal(t, vaapi.FourCCRGBA, f)

	assert.Contains(t, Keys(), "preview.fps")
	assert.Len(t, Keys(), len(defaultValues()))
}
