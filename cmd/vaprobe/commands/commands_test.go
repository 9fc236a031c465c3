package commands

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/VAProbe/internal/config"
	"github.com/bryanchriswhite/VAProbe/internal/device"
	"github.com/bryanchriswhite/VAProbe/internal/probe"
	"github.com/bryanchriswhite/VAProbe/internal/selftest"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi/fakeva"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi/native"
)

// resetFlags undoes flag values left behind by an earlier run.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// useFake points the commands at an in-memory driver for the rest of the test.
func useFake(t *testing.T, drv *fakeva.Driver) {
	t.Helper()
	lib, err := drv.Library()
	require.NoError(t, err)
	prev := env
	env = probe.Env{
		Load: func(...string) (*native.Library, error) { return lib, nil },
		Select: func(config.DeviceConfig) (vaapi.DisplaySource, error) {
			return drv.NewSource(), nil
		},
	}
	t.Cleanup(func() { env = prev })
}

// execute runs the CLI against a config file in t's temp dir.
func execute(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", cfgPath, "--log-level", "disabled"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func tempConfig(t *testing.T) string {
	return filepath.Join(t.TempDir(), "config.yaml")
}

func TestConfigCommands(t *testing.T) {
	path := tempConfig(t)

	out, err := execute(t, path, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, path, strings.TrimSpace(out))

	out, err = execute(t, path, "config", "set", "server.port", "9090")
	require.NoError(t, err)
	assert.Contains(t, out, "server.port = 9090")

	out, err = execute(t, path, "config", "get", "server.port")
	require.NoError(t, err)
	assert.Equal(t, "9090", strings.TrimSpace(out))

	_, err = execute(t, path, "config", "set", "library.paths", "/a/libva.so, /b/libva.so")
	require.NoError(t, err)
	out, err = execute(t, path, "config", "get", "library.paths")
	require.NoError(t, err)
	assert.Equal(t, "/a/libva.so,/b/libva.so", strings.TrimSpace(out))

	out, err = execute(t, path, "config", "show", "--format", "json")
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"/a/libva.so", "/b/libva.so"}, cfg.Library.Paths)

	out, err = execute(t, path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "port: 9090")

	out, err = execute(t, path, "config", "keys")
	require.NoError(t, err)
	assert.Equal(t, config.Keys(), strings.Fields(out))

	t.Run("errors", func(t *testing.T) {
		_, err := execute(t, path, "config", "set", "nope", "1")
		assert.ErrorContains(t, err, "configuration key not found")

		_, err = execute(t, path, "config", "set", "server.port", "70000")
		assert.Error(t, err)

		_, err = execute(t, path, "config", "get", "nope")
		assert.ErrorContains(t, err, "configuration key not found")

		_, err = execute(t, path, "config", "show", "--format", "xml")
		assert.ErrorContains(t, err, "unsupported format: xml")
	})
}

func TestRootFlagsOverrideConfig(t *testing.T) {
	path := tempConfig(t)

	out, err := execute(t, path, "--source", "x11", "config", "get", "device.source")
	require.NoError(t, err)
	assert.Equal(t, "x11", strings.TrimSpace(out))

	_, err = execute(t, path, "--source", "wayland", "config", "path")
	assert.Error(t, err)

	// Flags never reach the file.
	out, err = execute(t, path, "config", "get", "device.source")
	require.NoError(t, err)
	assert.Equal(t, config.SourceAuto, strings.TrimSpace(out))
}

func TestInfo(t *testing.T) {
	useFake(t, fakeva.New())
	path := tempConfig(t)

	out, err := execute(t, path, "info", "--format", "json")
	require.NoError(t, err)
	var rep probe.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "fakeva", rep.Library)
	assert.Len(t, rep.Profiles, 3)

	out, err = execute(t, path, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "H264High")
	assert.Contains(t, out, "fakeva in-memory driver")

	out, err = execute(t, path, "dump")
	require.NoError(t, err)
	assert.Contains(t, out, "NV12")

	_, err = execute(t, path, "info", "--format", "yaml")
	assert.ErrorContains(t, err, "unsupported format")
}

func TestInfoLoadFailure(t *testing.T) {
	prev := env
	env = probe.Env{Load: func(...string) (*native.Library, error) { return nil, native.ErrNotFound }}
	t.Cleanup(func() { env = prev })

	_, err := execute(t, tempConfig(t), "info")
	require.ErrorIs(t, err, native.ErrNotFound)
	assert.Equal(t, 1, exitCode(err))
}

func TestDoctor(t *testing.T) {
	t.Run("accelerated", func(t *testing.T) {
		useFake(t, fakeva.New())
		out, err := execute(t, tempConfig(t), "doctor")
		require.NoError(t, err)
		assert.Contains(t, out, "Hardware acceleration available")
	})

	t.Run("fallback", func(t *testing.T) {
		prev := env
		env = probe.Env{Load: func(...string) (*native.Library, error) { return nil, native.ErrNotFound }}
		t.Cleanup(func() { env = prev })

		out, err := execute(t, tempConfig(t), "doctor", "--format", "json")
		require.Error(t, err)
		assert.Equal(t, 2, exitCode(err))

		var g probe.Diagnosis
		require.NoError(t, json.Unmarshal([]byte(out), &g))
		assert.False(t, g.Accelerated)
		require.NotEmpty(t, g.Checks)
		assert.Equal(t, probe.StatusFail, g.Checks[0].Status)
	})
}

func TestSelfTest(t *testing.T) {
	useFake(t, fakeva.New())
	path := tempConfig(t)

	out, err := execute(t, path, "selftest", "--format", "json", "--width", "64", "--height", "48", "--fourcc", "NV12")
	require.NoError(t, err)
	var res selftest.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Passed)
	assert.Equal(t, "NV12", res.Format)
	assert.Equal(t, uint32(64), res.Width)
	assert.Equal(t, uint32(48), res.Height)

	// Defaults come from the config file.
	_, err = execute(t, path, "config", "set", "selftest.width", "32")
	require.NoError(t, err)
	out, err = execute(t, path, "selftest", "--format", "json")
	require.NoError(t, err)
	res = selftest.Result{}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, uint32(32), res.Width)

	_, err = execute(t, path, "selftest", "--width", "-4")
	require.ErrorContains(t, err, "size must be positive")
	assert.Equal(t, 1, exitCode(err))
}

func TestDevices(t *testing.T) {
	prev := discover
	discover = func() ([]device.Node, error) {
		return []device.Node{{
			Path:      "/dev/dri/renderD128",
			Driver:    "i915",
			Version:   "1.6.0",
			PCIVendor: "0x8086",
			PCIDevice: "0x46a6",
		}}, nil
	}
	t.Cleanup(func() { discover = prev })
	path := tempConfig(t)

	out, err := execute(t, path, "devices")
	require.NoError(t, err)
	assert.Contains(t, out, "renderD128")
	assert.Contains(t, out, "0x8086:46a6")

	out, err = execute(t, path, "devices", "--format", "json")
	require.NoError(t, err)
	var nodes []device.Node
	require.NoError(t, json.Unmarshal([]byte(out), &nodes))
	require.Len(t, nodes, 1)
	assert.Equal(t, "i915", nodes[0].Driver)
}

func TestRestartNeeded(t *testing.T) {
	cur := config.Defaults()
	next := config.Defaults()
	next.LogLevel = "debug"
	assert.False(t, restartNeeded(cur, next))

	next.Server.Port = 9000
	assert.True(t, restartNeeded(cur, next))
}
