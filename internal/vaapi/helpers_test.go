package vaapi_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/VAProbe/internal/vaapi"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi/fakeva"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi/native"
)

type fixture struct {
	drv *fakeva.Driver
	lib *native.Library
	src *fakeva.Source
	d   *vaapi.Display
}

func newFixture(t *testing.T, opts ...fakeva.Option) *fixture {
	t.Helper()
	drv := fakeva.New(opts...)
	lib, err := drv.Library()
	require.NoError(t, err)
	f := &fixture{drv: drv, lib: lib}
	f.d, f.src = f.open(t)
	return f
}

// open initializes another display on the same driver.
func (f *fixture) open(t *testing.T, opts ...vaapi.Option) (*vaapi.Display, *fakeva.Source) {
	t.Helper()
	src := f.drv.NewSource()
	d, err := vaapi.Open(f.lib, src, append([]vaapi.Option{vaapi.WithLogger(zerolog.Nop())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if !d.Closed() {
			_ = d.Close()
		}
	})
	return d, src
}

func (f *fixture) config(t *testing.T) *vaapi.Config {
	t.Helper()
	cfg, err := f.d.CreateConfig(vaapi.ProfileH264High, vaapi.EntrypointVLD)
	require.NoError(t, err)
	return cfg
}

func (f *fixture) surface(t *testing.T, hints ...vaapi.SurfaceHint) *vaapi.Surface {
	t.Helper()
	s, err := f.d.CreateSurface(vaapi.RTFormatRGB32, 16, 16, hints...)
	require.NoError(t, err)
	return s
}

func (f *fixture) context(t *testing.T, targets ...*vaapi.Surface) *vaapi.Context {
	t.Helper()
	c, err := f.d.CreateContext(f.config(t), 16, 16, vaapi.ContextProgressive, targets...)
	require.NoError(t, err)
	return c
}

// pattern returns w*h RGBA pixels that differ in every channel.
func pattern(w, h int) []byte {
	out := make([]byte, 4*w*h)
	for i := 0; i < w*h; i++ {
		out[4*i] = byte(i)
		out[4*i+1] = byte(i * 3)
		out[4*i+2] = byte(255 - i)
		out[4*i+3] = 0xff
	}
	return out
}
