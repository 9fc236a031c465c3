package vaapi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/VAProbe/internal/vaapi/native"
)

func TestRTFormatString(t *testing.T) {
	tests := []struct {
		in   RTFormat
		want string
	}{
		{0, "0"},
		{RTFormatYUV420, "YUV420"},
		{RTFormatYUV420 | RTFormatRGB32, "YUV420|RGB32"},
		{RTFormatRGB32 | RTFormatProtected, "RGB32|PROTECTED"},
		{RTFormatYUV420 | 0x40000000, "YUV420|Unknown(0x40000000)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.String())
		})
	}
	assert.False(t, RTFormat(0x40000000).IsKnown())
	assert.True(t, (RTFormatYUV420 | RTFormatRGB32).Has(RTFormatRGB32))
	assert.True(t, (RTFormatRGB32 | RTFormatProtected).single())
	assert.False(t, (RTFormatYUV420 | RTFormatRGB32).single())
}

func TestFourCC(t *testing.T) {
	assert.Equal(t, "NV12", FourCCNV12.String())
	assert.Equal(t, uint32(0x3231564e), uint32(FourCCNV12))
	assert.Equal(t, "Unknown(0x00000001)", FourCC(1).String())

	f, err := ParseFourCC("BGRA")
	require.NoError(t, err)
	assert.Equal(t, FourCCBGRA, f)
	_, err = ParseFourCC("RGB")
	assert.Error(t, err)

	mapping := map[FourCC]RTFormat{
		FourCCNV12: RTFormatYUV420,
		FourCCI420: RTFormatYUV420,
		FourCCYUY2: RTFormatYUV422,
		FourCCUYVY: RTFormatYUV422,
		FourCCRGBA: RTFormatRGB32,
		FourCCBGRX: RTFormatRGB32,
		FourCCP010: RTFormatYUV420_10,
		FourCC(1):  0,
	}
	for fcc, rt := range mapping {
		assert.Equal(t, rt, fcc.RTFormat(), fcc.String())
	}
}

func TestProfileAndEntrypoint(t *testing.T) {
	assert.Equal(t, "H264High", ProfileH264High.String())
	assert.Equal(t, "None", ProfileNone.String())
	assert.Equal(t, "Unknown(1234)", Profile(1234).String())
	assert.False(t, Profile(1234).IsKnown())
	assert.True(t, ProfileVVCMultilayerMain10.IsKnown())

	for _, in := range []string{"HEVCMain10", "VAProfileHEVCMain10", "hevcmain10"} {
		p, err := ParseProfile(in)
		require.NoError(t, err, in)
		assert.Equal(t, ProfileHEVCMain10, p)
	}
	_, err := ParseProfile("H266")
	assert.Error(t, err)

	e, err := ParseEntrypoint("VAEntrypointEncSliceLP")
	require.NoError(t, err)
	assert.Equal(t, EntrypointEncSliceLP, e)
	assert.True(t, e.IsEncode())
	assert.False(t, e.IsDecode())
	assert.True(t, EntrypointVLD.IsDecode())
	assert.Equal(t, "Unknown(9)", Entrypoint(9).String())
}

func TestAttributeNames(t *testing.T) {
	assert.Equal(t, "EncPerBlockControl", ConfigAttribEncPerBlockCtrl.String())
	assert.Equal(t, "Unknown(9)", ConfigAttribType(9).String())
	assert.Equal(t, "DRMFormatModifiers", SurfaceAttribDRMFormatModifiers.String())
	assert.Equal(t, "PCIID", DisplayAttribType(21).String())
	assert.Equal(t, "EncCoded", BufferEncCoded.String())
	assert.Equal(t, "Unknown(1000)", BufferType(1000).String())
	assert.Equal(t, "Ready", SurfaceReady.String())
	assert.Equal(t, "Unknown(3)", SurfaceStatus(3).String())
	assert.Equal(t, "Submitted", BufferSubmitted.String())

	types := AllConfigAttribTypes()
	assert.Equal(t, ConfigAttribRTFormat, types[0])
	assert.Equal(t, ConfigAttribEncPerBlockCtrl, types[len(types)-1])
	assert.NotContains(t, types, ConfigAttribType(9))
}

func TestErrors(t *testing.T) {
	ne := &NativeError{Func: "vaCreateSurfaces", Status: native.StatusResolutionNotSupported}
	assert.Equal(t, "vaCreateSurfaces: resolution not supported (0x13)", ne.Error())

	re := &ResourceError{Op: "create", Kind: KindSurface, ID: native.InvalidID, Err: ne}
	assert.Equal(t, "vaapi: surface: create: vaCreateSurfaces: resolution not supported (0x13)", re.Error())
	st, ok := StatusOf(re)
	require.True(t, ok)
	assert.Equal(t, native.StatusResolutionNotSupported, st)
	assert.False(t, IsUnavailable(re))

	re = &ResourceError{Op: "destroy", Kind: KindBuffer, ID: 7, Err: ErrDestroyed}
	assert.Equal(t, "vaapi: buffer 7: destroy: handle already destroyed", re.Error())
	_, ok = StatusOf(re)
	assert.False(t, ok)

	de := &DisplayError{Op: "close", Err: ErrClosed}
	assert.Equal(t, "vaapi: close: display closed", de.Error())
	assert.True(t, IsUnavailable(de))
	assert.True(t, IsUnavailable(&native.LoadError{Kind: native.ErrNotFound, Library: "libva.so.2"}))
	assert.False(t, IsUnavailable(errors.New("other")))

	err := invalidParams("width %d", 0)
	assert.ErrorIs(t, err, ErrInvalidParams)
	assert.Equal(t, "invalid parameters: width 0", err.Error())
}
