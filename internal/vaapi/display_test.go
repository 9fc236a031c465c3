package vaapi_test

import (
	"bytes"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/bryanchriswhite/VAProbe/internal/vaapi"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi/fakeva"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi/native"
)

func TestOpen(t *testing.T) {
	f := newFixture(t, fakeva.WithVersion(1, 22), fakeva.WithVendor("Intel iHD driver"))

	assert.Equal(t, vaapi.Version{Major: 1, Minor: 22}, f.d.Version())
	assert.Equal(t, "Intel iHD driver", f.d.Vendor())
	assert.Equal(t, "fake", f.d.Source())
	assert.Same(t, f.lib, f.d.Library())
	assert.False(t, f.d.Closed())

	st := f.d.Stats()
	assert.Zero(t, st.Live())
	assert.NotZero(t, st.NativeCalls)
	assert.Zero(t, st.NativeFailures)
}

func TestOpenFailures(t *testing.T) {
	openErr := func(t *testing.T, drv *fakeva.Driver, src *fakeva.Source, opts ...vaapi.Option) error {
		t.Helper()
		lib, err := drv.Library()
		require.NoError(t, err)
		d, err := vaapi.Open(lib, src, append(opts, vaapi.WithLogger(zerolog.Nop()))...)
		require.Error(t, err)
		assert.Nil(t, d)
		assert.True(t, vaapi.IsUnavailable(err))
		assert.Equal(t, 1, src.Closed(), "source must be closed on failure")
		return err
	}

	t.Run("version below the minimum", func(t *testing.T) {
		drv := fakeva.New(fakeva.WithVersion(0, 39))
		src := drv.NewSource()
		err := openErr(t, drv, src)
		assert.ErrorIs(t, err, vaapi.ErrUnsupportedVersion)
		assert.Contains(t, err.Error(), "have 0.39, need 1.0")
		assert.True(t, drv.Terminated(src.VADisplay()))
	})

	t.Run("configurable minimum", func(t *testing.T) {
		drv := fakeva.New(fakeva.WithVersion(1, 20))
		src := drv.NewSource()
		err := openErr(t, drv, src, vaapi.WithMinVersion(1, 21))
		assert.ErrorIs(t, err, vaapi.ErrUnsupportedVersion)
	})

	t.Run("vaInitialize fails", func(t *testing.T) {
		drv := fakeva.New()
		drv.FailNext("vaInitialize", native.StatusOperationFailed)
		src := drv.NewSource()
		err := openErr(t, drv, src)
		assert.ErrorIs(t, err, vaapi.ErrInitFailed)
		st, ok := vaapi.StatusOf(err)
		require.True(t, ok)
		assert.Equal(t, native.StatusOperationFailed, st)
		assert.True(t, drv.Terminated(src.VADisplay()))
	})

	t.Run("nil display", func(t *testing.T) {
		drv := fakeva.New()
		src := drv.NewSource()
		src.NilDisplay = true
		err := openErr(t, drv, src)
		assert.ErrorIs(t, err, vaapi.ErrInitFailed)
		assert.Zero(t, drv.CallCount("vaInitialize"))
	})

	t.Run("source fails", func(t *testing.T) {
		drv := fakeva.New()
		src := drv.NewSource()
		boom := errors.New("no render node")
		src.OpenErr = boom
		err := openErr(t, drv, src)
		assert.ErrorIs(t, err, vaapi.ErrInitFailed)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("explicit driver name rejected", func(t *testing.T) {
		drv := fakeva.New()
		drv.FailNext("vaSetDriverName", native.StatusUnknown)
		src := drv.NewSource()
		err := openErr(t, drv, src, vaapi.WithDriverName("nonexistent"))
		assert.ErrorIs(t, err, vaapi.ErrInitFailed)
		assert.Zero(t, drv.CallCount("vaInitialize"))
	})
}

func TestDriverName(t *testing.T) {
	t.Run("explicit", func(t *testing.T) {
		f := newFixture(t)
		d, src := f.open(t, vaapi.WithDriverName("iHD"))
		assert.Equal(t, "iHD", f.drv.DriverName(src.VADisplay()))
		require.NoError(t, d.Close())
	})

	t.Run("hinted driver that fails to initialize is dropped", func(t *testing.T) {
		f := newFixture(t)
		f.drv.ResetCalls()
		src := f.drv.NewSource()
		src.Hint = "i965"
		f.drv.FailNext("vaInitialize", native.StatusUnknown)
		d, err := vaapi.Open(f.lib, src, vaapi.WithLogger(zerolog.Nop()))
		require.NoError(t, err)

		assert.Equal(t, 2, f.drv.CallCount("vaInitialize"))
		assert.Equal(t, 1, f.drv.CallCount("vaSetDriverName"), "the retry runs without the hint")
		assert.Empty(t, f.drv.DriverName(src.VADisplay()))
		assert.Equal(t, 1, src.Closed(), "the failed attempt's source was closed")
		assert.False(t, d.Closed())
		require.NoError(t, d.Close())
		assert.True(t, f.drv.Terminated(src.VADisplay()))
	})

	t.Run("hint rejected by vaSetDriverName", func(t *testing.T) {
		f := newFixture(t)
		f.drv.ResetCalls()
		src := f.drv.NewSource()
		src.Hint = "i965"
		f.drv.FailNext("vaSetDriverName", native.StatusUnknown)
		d, err := vaapi.Open(f.lib, src, vaapi.WithLogger(zerolog.Nop()))
		require.NoError(t, err)
		assert.Empty(t, f.drv.DriverName(src.VADisplay()))
		assert.Equal(t, 1, f.drv.CallCount("vaInitialize"))
		require.NoError(t, d.Close())
	})

	t.Run("explicit driver that fails to initialize is not retried", func(t *testing.T) {
		f := newFixture(t)
		f.drv.ResetCalls()
		src := f.drv.NewSource()
		src.Hint = "i965"
		f.drv.FailNext("vaInitialize", native.StatusUnknown)
		_, err := vaapi.Open(f.lib, src, vaapi.WithLogger(zerolog.Nop()), vaapi.WithDriverName("iHD"))
		require.ErrorIs(t, err, vaapi.ErrInitFailed)
		assert.Equal(t, 1, f.drv.CallCount("vaInitialize"))
		assert.Equal(t, "iHD", f.drv.DriverName(src.VADisplay()))
	})

	t.Run("retry failure is reported", func(t *testing.T) {
		f := newFixture(t)
		f.drv.ResetCalls()
		src := f.drv.NewSource()
		src.Hint = "i965"
		f.drv.FailAlways("vaInitialize", native.StatusUnknown)
		_, err := vaapi.Open(f.lib, src, vaapi.WithLogger(zerolog.Nop()))
		require.ErrorIs(t, err, vaapi.ErrInitFailed)
		assert.Equal(t, 2, f.drv.CallCount("vaInitialize"))
		assert.Equal(t, 2, src.Closed())
	})
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.d.Close())
	assert.True(t, f.d.Closed())
	assert.True(t, f.drv.Terminated(f.src.VADisplay()))
	assert.Equal(t, 1, f.src.Closed())

	err := f.d.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, vaapi.ErrClosed)
	assert.True(t, vaapi.IsUnavailable(err))
	assert.Equal(t, 1, f.drv.CallCount("vaTerminate"))
	assert.Equal(t, 1, f.src.Closed())
}

func TestUseAfterClose(t *testing.T) {
	f := newFixture(t)
	cfg := f.config(t)
	s := f.surface(t)
	ctx := f.context(t, s)
	buf, err := ctx.CreateDataBuffer(vaapi.BufferPictureParameter, []byte{1, 2, 3})
	require.NoError(t, err)
	img, err := f.d.CreateImage(vaapi.NewImageFormat(vaapi.FourCCRGBA), 16, 16)
	require.NoError(t, err)

	require.NoError(t, f.d.Close())
	f.drv.ResetCalls()

	ops := map[string]func() error{
		"query profiles": func() error { _, err := f.d.QueryProfiles(); return err },
		"create surface": func() error { _, err := f.d.CreateSurface(vaapi.RTFormatYUV420, 16, 16); return err },
		"config destroy": cfg.Destroy,
		"surface sync":   s.Sync,
		"surface put":    func() error { return s.PutImage(img) },
		"context bind":   func() error { return ctx.Bind(s) },
		"buffer fill":    func() error { return buf.Fill([]byte{1}) },
		"buffer destroy": buf.Destroy,
		"image map":      func() error { _, err := img.Map(); return err },
		"image destroy":  img.Destroy,
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			require.Error(t, err)
			assert.ErrorIs(t, err, vaapi.ErrClosed)
		})
	}
	assert.Empty(t, f.drv.Calls(), "no native call may follow Close")
}

func TestCloseReleasesLeakedHandles(t *testing.T) {
	f := newFixture(t)
	cfg := f.config(t)
	s := f.surface(t)
	_, err := f.d.CreateContext(cfg, 16, 16, 0, s)
	require.NoError(t, err)
	ctx := f.context(t)
	_, err = ctx.CreateBuffer(vaapi.BufferSliceData, 128, 1)
	require.NoError(t, err)
	_, err = f.d.CreateImage(vaapi.NewImageFormat(vaapi.FourCCNV12), 16, 16)
	require.NoError(t, err)

	before := f.d.Stats()
	require.Equal(t, 7, before.Live())

	dpy := f.src.VADisplay()
	f.drv.ResetCalls()
	require.NoError(t, f.d.Close())

	after := f.d.Stats()
	assert.True(t, after.Closed)
	assert.Zero(t, after.Live())
	assert.Equal(t, 7, after.LeakedOnClose)
	assert.Zero(t, f.drv.Live(dpy).Total())

	calls := f.drv.Calls()
	last := func(fn string) int {
		i := -1
		for j, c := range calls {
			if c == fn {
				i = j
			}
		}
		return i
	}
	first := func(fn string) int { return slices.Index(calls, fn) }
	order := []string{"vaDestroyBuffer", "vaDestroyContext", "vaDestroyImage", "vaDestroySurfaces", "vaDestroyConfig", "vaTerminate"}
	for i := 1; i < len(order); i++ {
		assert.Less(t, last(order[i-1]), first(order[i]), "%s before %s", order[i-1], order[i])
	}
}

func TestMessageCallbacks(t *testing.T) {
	if _, _, err := native.MessageCallbacks(); err != nil {
		t.Skipf("libva callbacks unavailable on this platform: %v", err)
	}
	var buf bytes.Buffer
	drv := fakeva.New()
	lib, err := drv.Library()
	require.NoError(t, err)
	src := drv.NewSource()
	d, err := vaapi.Open(lib, src, vaapi.WithLogger(zerolog.New(&buf)))
	require.NoError(t, err)

	require.NoError(t, drv.Emit(src.VADisplay(), native.LevelError, "hevc decode failed\n"))
	require.NoError(t, drv.Emit(src.VADisplay(), native.LevelInfo, "VA-API version 1.20.0"))
	out := buf.String()
	assert.Contains(t, out, `"level":"warn","display":`)
	assert.Contains(t, out, `"origin":"libva-error","message":"hevc decode failed"`)
	assert.Contains(t, out, `"origin":"libva-info","message":"VA-API version 1.20.0"`)

	require.NoError(t, d.Close())
	buf.Reset()
	require.NoError(t, drv.Emit(src.VADisplay(), native.LevelError, "after close"))
	assert.NotContains(t, buf.String(), "after close")
}

func TestConcurrentUse(t *testing.T) {
	f := newFixture(t)
	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			for range 25 {
				s, err := f.d.CreateSurface(vaapi.RTFormatYUV420, 64, 64)
				if err != nil {
					return err
				}
				if _, err := s.Status(); err != nil {
					return err
				}
				if _, err := f.d.QueryProfiles(); err != nil {
					return err
				}
				if err := s.Destroy(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	st := f.d.Stats()
	assert.Zero(t, st.Surfaces)
	assert.Equal(t, 8*25, f.drv.CallCount("vaCreateSurfaces"))
}

type recorder struct {
	calls map[string]int
	fails int
}

func (r *recorder) ObserveCall(fn string, status native.Status, _ time.Duration) {
	r.calls[fn]++
	if status != native.StatusSuccess {
		r.fails++
	}
}

func TestObserver(t *testing.T) {
	rec := &recorder{calls: map[string]int{}}
	f := newFixture(t)
	d, _ := f.open(t, vaapi.WithObserver(rec))
	assert.Equal(t, 1, rec.calls["vaInitialize"])

	f.drv.FailNext("vaQueryConfigProfiles", native.StatusOperationFailed)
	_, err := d.QueryProfiles()
	require.Error(t, err)
	assert.Equal(t, 1, rec.fails)
	assert.Equal(t, uint64(1), d.Stats().NativeFailures)
}
