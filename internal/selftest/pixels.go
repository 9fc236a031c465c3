package selftest

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/bryanchriswhite/VAProbe/internal/vaapi"
)

// ErrFormat means the pixel format cannot be packed or unpacked here.
var ErrFormat = errors.New("unsupported pixel format")

// layout is where the planes of an image live inside its mapped buffer.
type layout struct {
	fourcc        vaapi.FourCC
	width, height int
	pitch, offset [3]int
}

func layoutOf(img *vaapi.Image) layout {
	l := layout{
		fourcc: img.Format().FourCC,
		width:  int(img.Width()),
		height: int(img.Height()),
	}
	for i := 0; i < img.NumPlanes(); i++ {
		l.pitch[i] = img.Pitch(i)
		l.offset[i] = img.Offset(i)
	}
	return l
}

// channels gives the byte index of R, G, B and alpha (-1 for padding) in a
// packed 32-bit pixel.
func channels(f vaapi.FourCC) (r, g, b, a int, ok bool) {
	switch f {
	case vaapi.FourCCRGBA:
		return 0, 1, 2, 3, true
	case vaapi.FourCCRGBX:
		return 0, 1, 2, -1, true
	case vaapi.FourCCBGRA:
		return 2, 1, 0, 3, true
	case vaapi.FourCCBGRX:
		return 2, 1, 0, -1, true
	case vaapi.FourCCARGB:
		return 1, 2, 3, 0, true
	case vaapi.FourCCXRGB:
		return 1, 2, 3, -1, true
	}
	return 0, 0, 0, 0, false
}

// Supported reports whether the self-test can pack f.
func Supported(f vaapi.FourCC) bool {
	if f == vaapi.FourCCNV12 {
		return true
	}
	_, _, _, _, ok := channels(f)
	return ok
}

func (l layout) check(buf []byte) error {
	need := func(plane, rows, rowBytes int) error {
		if rows == 0 {
			return nil
		}
		if l.pitch[plane] < rowBytes {
			return fmt.Errorf("plane %d pitch %d is below %d", plane, l.pitch[plane], rowBytes)
		}
		end := l.offset[plane] + l.pitch[plane]*(rows-1) + rowBytes
		if end > len(buf) {
			return fmt.Errorf("plane %d needs %d bytes, buffer has %d", plane, end, len(buf))
		}
		return nil
	}
	if l.fourcc == vaapi.FourCCNV12 {
		if err := need(0, l.height, l.width); err != nil {
			return err
		}
		return need(1, (l.height+1)/2, 2*((l.width+1)/2))
	}
	if _, _, _, _, ok := channels(l.fourcc); !ok {
		return fmt.Errorf("%w: %s", ErrFormat, l.fourcc)
	}
	return need(0, l.height, 4*l.width)
}

// encode packs src into buf.
func encode(buf []byte, l layout, src *image.RGBA) error {
	if err := l.check(buf); err != nil {
		return err
	}
	if l.fourcc == vaapi.FourCCNV12 {
		encodeNV12(buf, l, src)
		return nil
	}
	ri, gi, bi, ai, _ := channels(l.fourcc)
	for y := 0; y < l.height; y++ {
		row := buf[l.offset[0]+y*l.pitch[0]:]
		for x := 0; x < l.width; x++ {
			c := src.RGBAAt(x, y)
			p := row[4*x : 4*x+4]
			p[ri], p[gi], p[bi] = c.R, c.G, c.B
			if ai >= 0 {
				p[ai] = c.A
			} else {
				p[padIndex(ri, gi, bi)] = 0xff
			}
		}
	}
	return nil
}

func padIndex(r, g, b int) int {
	return 6 - r - g - b
}

// decode unpacks buf into a new RGBA image. Padding bytes read as opaque.
func decode(buf []byte, l layout) (*image.RGBA, error) {
	if err := l.check(buf); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, l.width, l.height))
	if l.fourcc == vaapi.FourCCNV12 {
		decodeNV12(img, buf, l)
		return img, nil
	}
	ri, gi, bi, ai, _ := channels(l.fourcc)
	for y := 0; y < l.height; y++ {
		row := buf[l.offset[0]+y*l.pitch[0]:]
		for x := 0; x < l.width; x++ {
			p := row[4*x : 4*x+4]
			a := uint8(0xff)
			if ai >= 0 {
				a = p[ai]
			}
			img.SetRGBA(x, y, color.RGBA{p[ri], p[gi], p[bi], a})
		}
	}
	return img, nil
}

// encodeNV12 stores full resolution luma and averages chroma over each 2x2
// block.
func encodeNV12(buf []byte, l layout, src *image.RGBA) {
	for y := 0; y < l.height; y++ {
		row := buf[l.offset[0]+y*l.pitch[0]:]
		for x := 0; x < l.width; x++ {
			c := src.RGBAAt(x, y)
			row[x], _, _ = color.RGBToYCbCr(c.R, c.G, c.B)
		}
	}
	for cy := 0; cy < (l.height+1)/2; cy++ {
		row := buf[l.offset[1]+cy*l.pitch[1]:]
		for cx := 0; cx < (l.width+1)/2; cx++ {
			var sumCb, sumCr, n int
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					x, y := 2*cx+dx, 2*cy+dy
					if x >= l.width || y >= l.height {
						continue
					}
					c := src.RGBAAt(x, y)
					_, cb, cr := color.RGBToYCbCr(c.R, c.G, c.B)
					sumCb += int(cb)
					sumCr += int(cr)
					n++
				}
			}
			row[2*cx] = uint8((sumCb + n/2) / n)
			row[2*cx+1] = uint8((sumCr + n/2) / n)
		}
	}
}

func decodeNV12(img *image.RGBA, buf []byte, l layout) {
	for y := 0; y < l.height; y++ {
		luma := buf[l.offset[0]+y*l.pitch[0]:]
		chroma := buf[l.offset[1]+(y/2)*l.pitch[1]:]
		for x := 0; x < l.width; x++ {
			r, g, b := color.YCbCrToRGB(luma[x], chroma[2*(x/2)], chroma[2*(x/2)+1])
			img.SetRGBA(x, y, color.RGBA{r, g, b, 0xff})
		}
	}
}

// diff counts the pixels that differ between a and b, which must be the
// same size.
func diff(a, b *image.RGBA) int {
	n := 0
	bounds := a.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if a.RGBAAt(x, y) != b.RGBAAt(x, y) {
				n++
			}
		}
	}
	return n
}
