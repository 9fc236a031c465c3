package vaapi

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/bryanchriswhite/VAProbe/internal/vaapi/native"
)

// RTFormat is a VA_RT_FORMAT_* bit set describing a surface's render target format.
type RTFormat uint32

const (
	RTFormatYUV420    RTFormat = 0x00000001
	RTFormatYUV422    RTFormat = 0x00000002
	RTFormatYUV444    RTFormat = 0x00000004
	RTFormatYUV411    RTFormat = 0x00000008
	RTFormatYUV400    RTFormat = 0x00000010
	RTFormatYUV420_10 RTFormat = 0x00000100
	RTFormatYUV422_10 RTFormat = 0x00000200
	RTFormatYUV444_10 RTFormat = 0x00000400
	RTFormatYUV420_12 RTFormat = 0x00001000
	RTFormatYUV422_12 RTFormat = 0x00002000
	RTFormatYUV444_12 RTFormat = 0x00004000
	RTFormatRGB16     RTFormat = 0x00010000
	RTFormatRGB32     RTFormat = 0x00020000
	RTFormatRGBP      RTFormat = 0x00100000
	RTFormatRGB32_10  RTFormat = 0x00200000
	RTFormatProtected RTFormat = 0x80000000
)

var rtFormatNames = []struct {
	bit  RTFormat
	name string
}{
	{RTFormatYUV420, "YUV420"},
	{RTFormatYUV422, "YUV422"},
	{RTFormatYUV444, "YUV444"},
	{RTFormatYUV411, "YUV411"},
	{RTFormatYUV400, "YUV400"},
	{RTFormatYUV420_10, "YUV420_10"},
	{RTFormatYUV422_10, "YUV422_10"},
	{RTFormatYUV444_10, "YUV444_10"},
	{RTFormatYUV420_12, "YUV420_12"},
	{RTFormatYUV422_12, "YUV422_12"},
	{RTFormatYUV444_12, "YUV444_12"},
	{RTFormatRGB16, "RGB16"},
	{RTFormatRGB32, "RGB32"},
	{RTFormatRGBP, "RGBP"},
	{RTFormatRGB32_10, "RGB32_10"},
	{RTFormatProtected, "PROTECTED"},
}

const rtFormatKnownMask = RTFormatYUV420 | RTFormatYUV422 | RTFormatYUV444 | RTFormatYUV411 |
	RTFormatYUV400 | RTFormatYUV420_10 | RTFormatYUV422_10 | RTFormatYUV444_10 |
	RTFormatYUV420_12 | RTFormatYUV422_12 | RTFormatYUV444_12 | RTFormatRGB16 |
	RTFormatRGB32 | RTFormatRGBP | RTFormatRGB32_10 | RTFormatProtected

// Unknown returns the bits of f that have no name.
func (f RTFormat) Unknown() RTFormat { return f &^ rtFormatKnownMask }

// IsKnown reports whether every bit of f is named.
func (f RTFormat) IsKnown() bool { return f.Unknown() == 0 }

// Has reports whether all bits of other are set in f.
func (f RTFormat) Has(other RTFormat) bool { return f&other == other }

func (f RTFormat) String() string {
	if f == 0 {
		return "0"
	}
	var parts []string
	for _, n := range rtFormatNames {
		if f&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	if u := f.Unknown(); u != 0 {
		parts = append(parts, fmt.Sprintf("Unknown(0x%x)", uint32(u)))
	}
	return strings.Join(parts, "|")
}

// single reports whether exactly one format bit (ignoring PROTECTED) is set.
func (f RTFormat) single() bool {
	return bits.OnesCount32(uint32(f&^RTFormatProtected)) == 1
}

// FourCC is a VA_FOURCC pixel format code.
type FourCC uint32

// NewFourCC packs four ASCII characters.
func NewFourCC(a, b, c, d byte) FourCC {
	return FourCC(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

// ParseFourCC accepts a four character code such as "NV12".
func ParseFourCC(s string) (FourCC, error) {
	if len(s) != 4 {
		return 0, fmt.Errorf("fourcc %q: want 4 characters", s)
	}
	return NewFourCC(s[0], s[1], s[2], s[3]), nil
}

var (
	FourCCNV12 = NewFourCC('N', 'V', '1', '2')
	FourCCNV21 = NewFourCC('N', 'V', '2', '1')
	FourCCYV12 = NewFourCC('Y', 'V', '1', '2')
	FourCCI420 = NewFourCC('I', '4', '2', '0')
	FourCCP010 = NewFourCC('P', '0', '1', '0')
	FourCCYUY2 = NewFourCC('Y', 'U', 'Y', '2')
	FourCCUYVY = NewFourCC('U', 'Y', 'V', 'Y')
	FourCC444P = NewFourCC('4', '4', '4', 'P')
	FourCCY800 = NewFourCC('Y', '8', '0', '0')
	FourCCRGBA = NewFourCC('R', 'G', 'B', 'A')
	FourCCRGBX = NewFourCC('R', 'G', 'B', 'X')
	FourCCBGRA = NewFourCC('B', 'G', 'R', 'A')
	FourCCBGRX = NewFourCC('B', 'G', 'R', 'X')
	FourCCARGB = NewFourCC('A', 'R', 'G', 'B')
	FourCCXRGB = NewFourCC('X', 'R', 'G', 'B')
)

func (f FourCC) String() string {
	b := [4]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("Unknown(0x%08x)", uint32(f))
		}
	}
	return string(b[:])
}

// RTFormat returns the render target format a surface needs to hold pixels of
// this format, or 0 when there is no mapping.
func (f FourCC) RTFormat() RTFormat {
	switch f {
	case FourCCNV12, FourCCNV21, FourCCYV12, FourCCI420:
		return RTFormatYUV420
	case FourCCP010:
		return RTFormatYUV420_10
	case FourCCYUY2, FourCCUYVY:
		return RTFormatYUV422
	case FourCC444P:
		return RTFormatYUV444
	case FourCCY800:
		return RTFormatYUV400
	case FourCCRGBA, FourCCRGBX, FourCCBGRA, FourCCBGRX, FourCCARGB, FourCCXRGB:
		return RTFormatRGB32
	}
	return 0
}

// ByteOrder is VA_LSB_FIRST or VA_MSB_FIRST.
type ByteOrder uint32

const (
	ByteOrderNone ByteOrder = 0
	LSBFirst      ByteOrder = 1
	MSBFirst      ByteOrder = 2
)

func (b ByteOrder) String() string {
	switch b {
	case ByteOrderNone:
		return "none"
	case LSBFirst:
		return "LSBFirst"
	case MSBFirst:
		return "MSBFirst"
	}
	return fmt.Sprintf("Unknown(%d)", uint32(b))
}

// ImageFormat describes a pixel layout the driver can map into memory.
type ImageFormat struct {
	FourCC       FourCC    `json:"fourcc"`
	ByteOrder    ByteOrder `json:"byte_order"`
	BitsPerPixel uint32    `json:"bits_per_pixel"`
	Depth        uint32    `json:"depth,omitempty"`
	RedMask      uint32    `json:"red_mask,omitempty"`
	GreenMask    uint32    `json:"green_mask,omitempty"`
	BlueMask     uint32    `json:"blue_mask,omitempty"`
	AlphaMask    uint32    `json:"alpha_mask,omitempty"`
}

// NewImageFormat returns a format with only the FourCC set, which drivers
// accept for vaCreateImage.
func NewImageFormat(f FourCC) ImageFormat { return ImageFormat{FourCC: f} }

func imageFormatFromNative(n native.ImageFormat) ImageFormat {
	return ImageFormat{
		FourCC:       FourCC(n.FourCC),
		ByteOrder:    ByteOrder(n.ByteOrder),
		BitsPerPixel: n.BitsPerPixel,
		Depth:        n.Depth,
		RedMask:      n.RedMask,
		GreenMask:    n.GreenMask,
		BlueMask:     n.BlueMask,
		AlphaMask:    n.AlphaMask,
	}
}

func (f ImageFormat) native() native.ImageFormat {
	return native.ImageFormat{
		FourCC:       uint32(f.FourCC),
		ByteOrder:    uint32(f.ByteOrder),
		BitsPerPixel: f.BitsPerPixel,
		Depth:        f.Depth,
		RedMask:      f.RedMask,
		GreenMask:    f.GreenMask,
		BlueMask:     f.BlueMask,
		AlphaMask:    f.AlphaMask,
	}
}

func (f ImageFormat) String() string {
	if f.Depth == 0 {
		return fmt.Sprintf("%s %dbpp", f.FourCC, f.BitsPerPixel)
	}
	return fmt.Sprintf("%s %dbpp depth=%d %s", f.FourCC, f.BitsPerPixel, f.Depth, f.ByteOrder)
}
