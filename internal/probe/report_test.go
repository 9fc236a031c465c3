package probe_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/VAProbe/internal/probe"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi/fakeva"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi/native"
)

func openFake(t *testing.T, opts ...fakeva.Option) (*fakeva.Driver, *vaapi.Display) {
	t.Helper()
	drv := fakeva.New(opts...)
	lib, err := drv.Library()
	require.NoError(t, err)
	d, err := vaapi.Open(lib, drv.NewSource(), vaapi.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return drv, d
}

func attr(attrs []probe.Attribute, name string) (probe.Attribute, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a, true
		}
	}
	return probe.Attribute{}, false
}

func TestProbe(t *testing.T) {
	_, d := openFake(t, fakeva.WithVendor("Test Vendor"), fakeva.WithMaxPicture(1920, 1088))

	r, err := probe.Probe(d)
	require.NoError(t, err)

	assert.Equal(t, "fake", r.Source)
	assert.Equal(t, "fakeva", r.Library)
	assert.Equal(t, "1.20", r.Version)
	assert.Equal(t, "Test Vendor", r.Vendor)
	assert.Empty(t, r.Warnings)

	require.Len(t, r.Profiles, 3)
	assert.Equal(t, 4, r.Pairs())

	h264, ok := r.Profile("H264High")
	require.True(t, ok)
	require.Len(t, h264.Entrypoints, 2)
	assert.Equal(t, "decode", h264.Entrypoints[0].Kind)
	assert.Equal(t, "encode", h264.Entrypoints[1].Kind)

	vld := h264.Entrypoints[0]
	assert.Empty(t, vld.Err)
	rt, ok := attr(vld.ConfigAttributes, vaapi.ConfigAttribRTFormat.String())
	require.True(t, ok)
	assert.True(t, rt.Supported)
	assert.Equal(t, (vaapi.RTFormatYUV420 | vaapi.RTFormatRGB32).String(), rt.Value)

	width, ok := attr(vld.ConfigAttributes, vaapi.ConfigAttribMaxPictureWidth.String())
	require.True(t, ok)
	assert.Equal(t, "1920", width.Value)

	rc, ok := attr(vld.ConfigAttributes, vaapi.ConfigAttribRateControl.String())
	require.True(t, ok)
	assert.False(t, rc.Supported, "decoders have no rate control")
	assert.Empty(t, rc.Value)

	enc := h264.Entrypoints[1]
	rc, ok = attr(enc.ConfigAttributes, vaapi.ConfigAttribRateControl.String())
	require.True(t, ok)
	assert.True(t, rc.Supported)

	formats := len(fakeva.DefaultImageFormats())
	assert.Len(t, vld.SurfaceAttributes, formats+4)
	pix, ok := attr(vld.SurfaceAttributes, vaapi.SurfaceAttribPixelFormat.String())
	require.True(t, ok)
	assert.Equal(t, "NV12", pix.Value)

	require.Len(t, r.ImageFormats, formats)
	assert.Equal(t, "NV12", r.ImageFormats[0].FourCC)
	assert.Equal(t, vaapi.RTFormatYUV420.String(), r.ImageFormats[0].RTFormat)

	require.Len(t, r.DisplayAttributes, 3)
	assert.Equal(t, "Brightness", r.DisplayAttributes[0].Name)
	assert.True(t, r.DisplayAttributes[0].Settable)

	assert.Zero(t, d.Stats().Live(), "probe configs are destroyed")
}

func TestProbeProfileLookup(t *testing.T) {
	_, d := openFake(t)
	r, err := probe.Probe(d)
	require.NoError(t, err)

	for _, name := range []string{"HEVCMain", "VAProfileHEVCMain", "hevcmain"} {
		p, ok := r.Profile(name)
		require.True(t, ok, name)
		assert.Equal(t, int32(vaapi.ProfileHEVCMain), p.Value)
	}
	_, ok := r.Profile("VP9Profile0")
	assert.False(t, ok)
	_, ok = r.Profile("nonsense")
	assert.False(t, ok)
}

func TestProbeFailures(t *testing.T) {
	t.Run("profiles", func(t *testing.T) {
		drv, d := openFake(t)
		drv.FailNext("vaQueryConfigProfiles", native.StatusOperationFailed)
		_, err := probe.Probe(d)
		require.Error(t, err)
		st, ok := vaapi.StatusOf(err)
		require.True(t, ok)
		assert.Equal(t, native.StatusOperationFailed, st)
	})

	t.Run("entrypoints become a warning", func(t *testing.T) {
		drv, d := openFake(t)
		drv.FailNext("vaQueryConfigEntrypoints", native.StatusOperationFailed)
		r, err := probe.Probe(d)
		require.NoError(t, err)
		require.Len(t, r.Warnings, 1)
		assert.Contains(t, r.Warnings[0], "entrypoints for H264High")
		assert.Empty(t, r.Profiles[0].Entrypoints)
		assert.Len(t, r.Profiles[1].Entrypoints, 1)
	})

	t.Run("config attributes stay with their entrypoint", func(t *testing.T) {
		drv, d := openFake(t)
		drv.FailNext("vaGetConfigAttributes", native.StatusOperationFailed)
		r, err := probe.Probe(d)
		require.NoError(t, err)
		first := r.Profiles[0].Entrypoints[0]
		assert.NotEmpty(t, first.Err)
		assert.Empty(t, first.ConfigAttributes)
		assert.Empty(t, r.Profiles[0].Entrypoints[1].Err)
	})

	t.Run("image and display attributes", func(t *testing.T) {
		drv, d := openFake(t)
		drv.FailNext("vaQueryImageFormats", native.StatusOperationFailed)
		drv.FailNext("vaQueryDisplayAttributes", native.StatusOperationFailed)
		r, err := probe.Probe(d)
		require.NoError(t, err)
		assert.Len(t, r.Warnings, 2)
		assert.Empty(t, r.ImageFormats)
		assert.Empty(t, r.DisplayAttributes)
	})

	t.Run("closed display", func(t *testing.T) {
		_, d := openFake(t)
		require.NoError(t, d.Close())
		_, err := probe.Probe(d)
		assert.ErrorIs(t, err, vaapi.ErrClosed)
	})
}
