// Package pattern draws the test cards pushed through the GPU by the self-test
// and the preview stream. Every pixel it produces is opaque, so formats that
// drop alpha round-trip exactly.
package pattern

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Layer is one element of a card, drawn in order.
type Layer interface {
	// Name identifies the layer.
	Name() string

	// Render draws the layer for the given frame number.
	Render(img *image.RGBA, frame int)
}

// Bars are the classic seventy-five percent colour bars.
var Bars = []color.RGBA{
	{191, 191, 191, 255},
	{191, 191, 0, 255},
	{0, 191, 191, 255},
	{0, 191, 0, 255},
	{191, 0, 191, 255},
	{191, 0, 0, 255},
	{0, 0, 191, 255},
	{16, 16, 16, 255},
}

// Card composes layers into frames.
type Card struct {
	width, height int
	layers        []Layer
	mu            sync.RWMutex
}

// New returns an empty card.
func New(width, height int) *Card {
	return &Card{width: width, height: height}
}

// Standard returns bars on top, a grey ramp below them, a moving marker and a
// label in the top left corner.
func Standard(width, height int, label string) *Card {
	c := New(width, height)
	c.Add(BarsLayer{})
	c.Add(RampLayer{})
	c.Add(MarkerLayer{Size: max(4, height/12)})
	if label != "" {
		c.Add(NewLabel(label, 4, 4))
	}
	return c
}

// Add appends a layer.
func (c *Card) Add(l Layer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.layers = append(c.layers, l)
}

// Bounds returns the card's rectangle.
func (c *Card) Bounds() image.Rectangle { return image.Rect(0, 0, c.width, c.height) }

// Render draws frame. The same frame number always yields the same pixels.
func (c *Card) Render(frame int) *image.RGBA {
	img := image.NewRGBA(c.Bounds())
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{0, 0, 0, 255}), image.Point{}, draw.Src)

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, l := range c.layers {
		l.Render(img, frame)
	}
	return img
}

// BarsLayer fills the top two thirds with Bars.
type BarsLayer struct{}

func (BarsLayer) Name() string { return "bars" }

func (BarsLayer) Render(img *image.RGBA, _ int) {
	b := img.Bounds()
	h := b.Dy() * 2 / 3
	for i, c := range Bars {
		x0 := b.Min.X + b.Dx()*i/len(Bars)
		x1 := b.Min.X + b.Dx()*(i+1)/len(Bars)
		draw.Draw(img, image.Rect(x0, b.Min.Y, x1, b.Min.Y+h), image.NewUniform(c), image.Point{}, draw.Src)
	}
}

// RampLayer draws a horizontal black to white ramp below the bars.
type RampLayer struct{}

func (RampLayer) Name() string { return "ramp" }

func (RampLayer) Render(img *image.RGBA, _ int) {
	b := img.Bounds()
	top := b.Min.Y + b.Dy()*2/3
	w := max(1, b.Dx()-1)
	for x := b.Min.X; x < b.Max.X; x++ {
		v := uint8((x - b.Min.X) * 255 / w)
		for y := top; y < b.Max.Y; y++ {
			img.SetRGBA(x, y, color.RGBA{v, v, v, 255})
		}
	}
}

// MarkerLayer moves a white square one step per frame across the ramp, so
// consecutive frames differ.
type MarkerLayer struct {
	Size int
}

func (MarkerLayer) Name() string { return "marker" }

func (m MarkerLayer) Render(img *image.RGBA, frame int) {
	b := img.Bounds()
	if m.Size <= 0 || b.Dx() <= m.Size {
		return
	}
	span := b.Dx() - m.Size
	x := b.Min.X + (frame*2)%span
	y := b.Max.Y - m.Size - max(0, (b.Dy()/3-m.Size)/2)
	r := image.Rect(x, y, x+m.Size, y+m.Size).Intersect(b)
	draw.Draw(img, r, image.NewUniform(color.RGBA{255, 255, 255, 255}), image.Point{}, draw.Src)
}

// Label draws text in basicfont on a solid background. A "%d" in the text
// is replaced by the frame number.
type Label struct {
	Text       string
	X, Y       int
	Color      color.RGBA
	Background color.RGBA
	Padding    int
}

// NewLabel returns white text on black.
func NewLabel(text string, x, y int) *Label {
	return &Label{
		Text:       text,
		X:          x,
		Y:          y,
		Color:      color.RGBA{255, 255, 255, 255},
		Background: color.RGBA{0, 0, 0, 255},
		Padding:    3,
	}
}

func (l *Label) Name() string { return "label" }

func (l *Label) text(frame int) string {
	if strings.Contains(l.Text, "%d") {
		return fmt.Sprintf(l.Text, frame)
	}
	return l.Text
}

// Size returns the label's width and height in pixels for frame.
func (l *Label) Size(frame int) (int, int) {
	face := basicfont.Face7x13
	d := &font.Drawer{Face: face}
	w := d.MeasureString(l.text(frame)).Ceil()
	return w + 2*l.Padding, face.Height + 2*l.Padding
}

func (l *Label) Render(img *image.RGBA, frame int) {
	text := l.text(frame)
	if text == "" {
		return
	}
	face := basicfont.Face7x13
	w, h := l.Size(frame)
	bg := image.Rect(l.X, l.Y, l.X+w, l.Y+h).Intersect(img.Bounds())
	draw.Draw(img, bg, image.NewUniform(l.Background), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(l.Color),
		Face: face,
		Dot:  fixed.P(l.X+l.Padding, l.Y+l.Padding+face.Ascent),
	}
	d.DrawString(text)
}
