package probe_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/VAProbe/internal/config"
	"github.com/bryanchriswhite/VAProbe/internal/probe"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi/fakeva"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi/native"
)

// fakeEnv serves drv's library and a fresh fake source per Select.
func fakeEnv(t *testing.T, drv *fakeva.Driver) (probe.Env, *[]*fakeva.Source) {
	t.Helper()
	lib, err := drv.Library()
	require.NoError(t, err)
	var sources []*fakeva.Source
	return probe.Env{
		Load: func(...string) (*native.Library, error) { return lib, nil },
		Select: func(config.DeviceConfig) (vaapi.DisplaySource, error) {
			src := drv.NewSource()
			sources = append(sources, src)
			return src, nil
		},
	}, &sources
}

func statuses(g *probe.Diagnosis) map[string]probe.Status {
	out := make(map[string]probe.Status, len(g.Checks))
	for _, c := range g.Checks {
		out[c.Name] = c.Status
	}
	return out
}

func TestDiagnoseHealthy(t *testing.T) {
	drv := fakeva.New()
	env, sources := fakeEnv(t, drv)

	g := env.Diagnose(context.Background(), config.Defaults())
	require.Len(t, g.Checks, 6)
	for _, c := range g.Checks {
		assert.Equal(t, probe.StatusPass, c.Status, "%s: %s", c.Name, c.Detail)
	}
	assert.True(t, g.Accelerated)
	require.NotNil(t, g.Report)
	assert.Len(t, g.Report.Profiles, 3)

	assert.Equal(t, "fakeva", g.Checks[0].Detail)
	assert.Contains(t, g.Checks[3].Detail, "VA-API 1.20")
	assert.Contains(t, g.Checks[5].Detail, "RGBA 320x240")

	require.Len(t, *sources, 1)
	src := (*sources)[0]
	assert.True(t, drv.Terminated(src.VADisplay()), "the doctor closes its display")
	assert.Equal(t, 1, src.Closed())
}

func TestDiagnoseFailures(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(*fakeva.Driver, *probe.Env, *config.Config)
		failed string
		skips  int
	}{
		{
			name: "library",
			setup: func(_ *fakeva.Driver, env *probe.Env, _ *config.Config) {
				env.Load = func(...string) (*native.Library, error) { return nil, native.ErrNotFound }
			},
			failed: probe.CheckLibrary,
			skips:  5,
		},
		{
			name: "device",
			setup: func(_ *fakeva.Driver, env *probe.Env, _ *config.Config) {
				env.Select = func(config.DeviceConfig) (vaapi.DisplaySource, error) { return nil, errors.New("no render node") }
			},
			failed: probe.CheckDevice,
			skips:  3,
		},
		{
			name: "display",
			setup: func(drv *fakeva.Driver, _ *probe.Env, _ *config.Config) {
				drv.FailNext("vaInitialize", native.StatusOperationFailed)
			},
			failed: probe.CheckDisplay,
			skips:  2,
		},
		{
			name: "version",
			setup: func(_ *fakeva.Driver, _ *probe.Env, cfg *config.Config) {
				cfg.Device.MinVersion = "2.0"
			},
			failed: probe.CheckDisplay,
			skips:  2,
		},
		{
			name: "profiles",
			setup: func(drv *fakeva.Driver, _ *probe.Env, _ *config.Config) {
				drv.FailNext("vaQueryConfigProfiles", native.StatusOperationFailed)
			},
			failed: probe.CheckProfiles,
			skips:  1,
		},
		{
			name: "selftest",
			setup: func(_ *fakeva.Driver, _ *probe.Env, cfg *config.Config) {
				cfg.SelfTest.Format = "YUY2"
			},
			failed: probe.CheckSelfTest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv := fakeva.New()
			env, _ := fakeEnv(t, drv)
			cfg := config.Defaults()
			tt.setup(drv, &env, cfg)

			g := env.Diagnose(context.Background(), cfg)
			assert.False(t, g.Accelerated)
			require.Len(t, g.Checks, 6)

			st := statuses(g)
			assert.Equal(t, probe.StatusFail, st[tt.failed])
			skipped := 0
			for _, c := range g.Checks {
				if c.Status == probe.StatusSkip {
					skipped++
				}
			}
			assert.Equal(t, tt.skips, skipped)
		})
	}
}

func TestLoadLibraryOrder(t *testing.T) {
	var got []string
	env := probe.Env{Load: func(names ...string) (*native.Library, error) {
		got = names
		return nil, native.ErrNotFound
	}}
	cfg := config.Defaults()
	cfg.Library.Paths = []string{"/opt/va/lib/libva.so.2"}

	_, err := env.LoadLibrary(cfg)
	require.ErrorIs(t, err, native.ErrNotFound)
	assert.Equal(t, append([]string{"/opt/va/lib/libva.so.2"}, native.DefaultNames...), got)
}

func TestEnvOpen(t *testing.T) {
	drv := fakeva.New()
	env, sources := fakeEnv(t, drv)

	cfg := config.Defaults()
	cfg.Device.DriverName = "iHD"
	d, err := env.Open(cfg)
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, vaapi.Version{Major: 1, Minor: 20}, d.Version())
	require.Len(t, *sources, 1)
	assert.Equal(t, "iHD", drv.DriverName((*sources)[0].VADisplay()))

	cfg.Device.MinVersion = "one"
	_, err = env.Open(cfg)
	assert.Error(t, err)
	assert.Len(t, *sources, 1, "bad options fail before a device is selected")
}
