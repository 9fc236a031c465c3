package fakeva

import "github.com/bryanchriswhite/VAProbe/internal/vaapi/native"

func fourcc(s string) uint32 {
	return uint32(s[0]) | uint32(s[1])<<8 | uint32(s[2])<<16 | uint32(s[3])<<24
}

// Pixel formats the fake can store and convert.
var (
	FourCCNV12 = fourcc("NV12")
	FourCCRGBA = fourcc("RGBA")
	FourCCBGRA = fourcc("BGRA")
	FourCCRGBX = fourcc("RGBX")
	FourCCBGRX = fourcc("BGRX")
	FourCCARGB = fourcc("ARGB")
	FourCCXRGB = fourcc("XRGB")
)

// Render target formats the fake accepts.
const (
	rtYUV420 uint32 = 0x00000001
	rtRGB32  uint32 = 0x00020000
)

// layout is the memory arrangement of a picture in one fourcc.
type layout struct {
	size      uint32
	numPlanes uint32
	pitches   [3]uint32
	offsets   [3]uint32
}

func layoutOf(fcc uint32, w, h uint32) (layout, bool) {
	switch {
	case fcc == FourCCNV12:
		cw, ch := (w+1)/2, (h+1)/2
		return layout{
			size:      w*h + 2*cw*ch,
			numPlanes: 2,
			pitches:   [3]uint32{w, 2 * cw},
			offsets:   [3]uint32{0, w * h},
		}, true
	case channelOrder(fcc) != nil:
		return layout{size: 4 * w * h, numPlanes: 1, pitches: [3]uint32{4 * w}}, true
	}
	return layout{}, false
}

// channelOrder maps byte positions of a packed 32-bit fourcc to R, G, B, A
// indices (3 is alpha, or padding for X formats).
func channelOrder(fcc uint32) []int {
	order := make([]int, 4)
	for i := range 4 {
		switch byte(fcc >> (8 * i)) {
		case 'R':
			order[i] = 0
		case 'G':
			order[i] = 1
		case 'B':
			order[i] = 2
		case 'A', 'X':
			order[i] = 3
		default:
			return nil
		}
	}
	return order
}

func hasAlpha(fcc uint32) bool {
	for i := range 4 {
		if byte(fcc>>(8*i)) == 'A' {
			return true
		}
	}
	return false
}

// convert copies a w x h rectangle from src in srcFCC to dst in dstFCC. Same
// formats copy bytes; packed RGB formats are swizzled. Anything else is
// refused the way drivers refuse unsupported conversions.
func convert(dst []byte, dstFCC uint32, dstW uint32, src []byte, srcFCC uint32, srcW uint32, w, h uint32) native.Status {
	if dstFCC == FourCCNV12 || srcFCC == FourCCNV12 {
		if dstFCC != srcFCC || dstW != srcW {
			return native.StatusInvalidImageFormat
		}
		n := min(len(dst), len(src))
		copy(dst[:n], src[:n])
		return native.StatusSuccess
	}
	so, do := channelOrder(srcFCC), channelOrder(dstFCC)
	if so == nil || do == nil {
		return native.StatusInvalidImageFormat
	}
	opaque := !hasAlpha(srcFCC)
	var px [4]byte
	for y := range h {
		for x := range w {
			s := src[4*(y*srcW+x):]
			for i, c := range so {
				px[c] = s[i]
			}
			if opaque {
				px[3] = 0xff
			}
			t := dst[4*(y*dstW+x):]
			for i, c := range do {
				t[i] = px[c]
			}
		}
	}
	return native.StatusSuccess
}
