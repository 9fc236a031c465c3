package selftest_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/VAProbe/internal/pattern"
	"github.com/bryanchriswhite/VAProbe/internal/selftest"
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

func TestRunRoundTrip(t *testing.T) {
	for _, f := range []vaapi.FourCC{vaapi.FourCCRGBA, vaapi.FourCCBGRA, vaapi.FourCCRGBX, vaapi.FourCCBGRX, vaapi.FourCCNV12} {
		t.Run(f.String(), func(t *testing.T) {
			_, d := openFake(t)
			res, err := selftest.Run(context.Background(), d, selftest.Options{Width: 64, Height: 48, Format: f, Frame: 5})
			require.NoError(t, err)

			assert.True(t, res.Passed)
			assert.Zero(t, res.Mismatches)
			assert.True(t, res.Derived, "the surface was created in the test format")
			assert.Equal(t, f.String(), res.Format)
			require.NotNil(t, res.Image)
			assert.Equal(t, 64, res.Image.Bounds().Dx())

			var names []string
			for _, s := range res.Steps {
				names = append(names, s.Name)
				assert.Empty(t, s.Err)
			}
			assert.Equal(t, []string{"create surface", "create image", "upload", "put image", "sync", "readback", "compare"}, names)
			assert.Zero(t, d.Stats().Live(), "every handle is released")
		})
	}
}

func TestRunPackedMatchesCard(t *testing.T) {
	_, d := openFake(t)
	card := pattern.Standard(32, 24, "")
	res, err := selftest.Run(context.Background(), d, selftest.Options{Width: 32, Height: 24, Format: vaapi.FourCCBGRX, Card: card, Frame: 2})
	require.NoError(t, err)
	assert.Equal(t, card.Render(2).Pix, res.Image.Pix, "packed RGB is lossless")
}

func TestRunCopiesWhenDeriveIsRefused(t *testing.T) {
	drv, d := openFake(t, fakeva.WithoutDerive())
	res, err := selftest.Run(context.Background(), d, selftest.Options{Width: 32, Height: 32, Format: vaapi.FourCCRGBA})
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.False(t, res.Derived)
	assert.Equal(t, 1, drv.CallCount("vaGetImage"))
}

func TestRunFailures(t *testing.T) {
	t.Run("put image", func(t *testing.T) {
		drv, d := openFake(t)
		drv.FailNext("vaPutImage", native.StatusOperationFailed)
		res, err := selftest.Run(context.Background(), d, selftest.Options{Width: 32, Height: 32, Format: vaapi.FourCCRGBA})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "put image")
		st, ok := vaapi.StatusOf(err)
		require.True(t, ok)
		assert.Equal(t, native.StatusOperationFailed, st)

		require.NotNil(t, res)
		last := res.Steps[len(res.Steps)-1]
		assert.Equal(t, "put image", last.Name)
		assert.NotEmpty(t, last.Err)
		assert.False(t, res.Passed)
		assert.Zero(t, d.Stats().Live())
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, d := openFake(t)
		_, err := selftest.Run(context.Background(), d, selftest.Options{Width: 32, Height: 32, Format: vaapi.FourCCYUY2})
		assert.ErrorIs(t, err, selftest.ErrFormat)
	})

	t.Run("cancelled", func(t *testing.T) {
		_, d := openFake(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res, err := selftest.Run(ctx, d, selftest.Options{Width: 32, Height: 32, Format: vaapi.FourCCRGBA})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, res.Steps)
		assert.Zero(t, d.Stats().Live())
	})

	t.Run("closed display", func(t *testing.T) {
		_, d := openFake(t)
		require.NoError(t, d.Close())
		_, err := selftest.Run(context.Background(), d, selftest.Options{Width: 32, Height: 32, Format: vaapi.FourCCRGBA})
		assert.ErrorIs(t, err, vaapi.ErrClosed)
	})
}
