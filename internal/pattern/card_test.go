package pattern

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardCard(t *testing.T) {
	c := Standard(160, 90, "frame %d")
	img := c.Render(3)
	require.Equal(t, image.Rect(0, 0, 160, 90), img.Bounds())

	for i := 0; i < len(img.Pix); i += 4 {
		require.Equal(t, uint8(255), img.Pix[i+3], "pixel %d is opaque", i/4)
	}

	// Second bar, below the label.
	assert.Equal(t, Bars[1], img.RGBAAt(160/8+5, 40))
	assert.Equal(t, Bars[7], img.RGBAAt(159, 40))

	// The ramp runs from black to white on the bottom row left of the marker.
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, img.RGBAAt(0, 89))
}

func TestRenderIsDeterministic(t *testing.T) {
	c := Standard(64, 48, "vaprobe")
	assert.Equal(t, c.Render(7).Pix, c.Render(7).Pix)
	assert.NotEqual(t, c.Render(7).Pix, c.Render(8).Pix, "the marker moves")
}

func TestLabel(t *testing.T) {
	l := NewLabel("#%d", 2, 2)
	w, h := l.Size(12)
	assert.Equal(t, 3*7+2*3, w)
	assert.Equal(t, 13+2*3, h)
	assert.Equal(t, "#12", l.text(12))

	img := New(64, 32).Render(0)
	l.Render(img, 12)
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, img.RGBAAt(2, 2), "background")

	var lit bool
	for y := 2; y < 2+h; y++ {
		for x := 2; x < 2+w; x++ {
			if img.RGBAAt(x, y) == l.Color {
				lit = true
			}
		}
	}
	assert.True(t, lit, "glyph pixels are drawn")

	assert.Equal(t, "plain", (&Label{Text: "plain"}).text(5))
}

func TestMarkerLayerTooSmall(t *testing.T) {
	img := New(4, 4).Render(0)
	before := append([]uint8(nil), img.Pix...)
	MarkerLayer{Size: 8}.Render(img, 1)
	assert.Equal(t, before, img.Pix)
}
