package native

import "fmt"

// VADisplay is the opaque display pointer returned by the vaGetDisplay* family.
type VADisplay uintptr

// Generic libva object IDs. They carry no meaning outside the display that issued them.
type (
	ConfigID  uint32
	ContextID uint32
	SurfaceID uint32
	BufferID  uint32
	ImageID   uint32
)

// InvalidID is VA_INVALID_ID.
const InvalidID = 0xffffffff

// TimeoutInfinite is VA_TIMEOUT_INFINITE for vaSyncBuffer.
const TimeoutInfinite = ^uint64(0)

// AttribNotSupported is VA_ATTRIB_NOT_SUPPORTED, the value reported for config
// attributes the driver does not know.
const AttribNotSupported = 0x80000000

// Status is a VAStatus return code.
type Status int32

const (
	StatusSuccess                Status = 0x00
	StatusOperationFailed        Status = 0x01
	StatusAllocationFailed       Status = 0x02
	StatusInvalidDisplay         Status = 0x03
	StatusInvalidConfig          Status = 0x04
	StatusInvalidContext         Status = 0x05
	StatusInvalidSurface         Status = 0x06
	StatusInvalidBuffer          Status = 0x07
	StatusInvalidImage           Status = 0x08
	StatusInvalidSubpicture      Status = 0x09
	StatusAttrNotSupported       Status = 0x0a
	StatusMaxNumExceeded         Status = 0x0b
	StatusUnsupportedProfile     Status = 0x0c
	StatusUnsupportedEntrypoint  Status = 0x0d
	StatusUnsupportedRTFormat    Status = 0x0e
	StatusUnsupportedBufferType  Status = 0x0f
	StatusSurfaceBusy            Status = 0x10
	StatusFlagNotSupported       Status = 0x11
	StatusInvalidParameter       Status = 0x12
	StatusResolutionNotSupported Status = 0x13
	StatusUnimplemented          Status = 0x14
	StatusSurfaceInDisplaying    Status = 0x15
	StatusInvalidImageFormat     Status = 0x16
	StatusDecodingError          Status = 0x17
	StatusEncodingError          Status = 0x18
	StatusInvalidValue           Status = 0x19
	StatusUnsupportedFilter      Status = 0x20
	StatusInvalidFilterChain     Status = 0x21
	StatusHWBusy                 Status = 0x22
	StatusUnsupportedMemoryType  Status = 0x24
	StatusNotEnoughBuffer        Status = 0x25
	StatusTimedOut               Status = 0x26
	StatusUnknown                Status = -1
)

var statusText = map[Status]string{
	StatusSuccess:                "success",
	StatusOperationFailed:        "operation failed",
	StatusAllocationFailed:       "resource allocation failed",
	StatusInvalidDisplay:         "invalid VADisplay",
	StatusInvalidConfig:          "invalid VAConfigID",
	StatusInvalidContext:         "invalid VAContextID",
	StatusInvalidSurface:         "invalid VASurfaceID",
	StatusInvalidBuffer:          "invalid VABufferID",
	StatusInvalidImage:           "invalid VAImageID",
	StatusInvalidSubpicture:      "invalid VASubpictureID",
	StatusAttrNotSupported:       "attribute not supported",
	StatusMaxNumExceeded:         "list argument exceeds maximum number",
	StatusUnsupportedProfile:     "the requested VAProfile is not supported",
	StatusUnsupportedEntrypoint:  "the requested VAEntryPoint is not supported",
	StatusUnsupportedRTFormat:    "the requested RT Format is not supported",
	StatusUnsupportedBufferType:  "the requested VABufferType is not supported",
	StatusSurfaceBusy:            "surface is in use",
	StatusFlagNotSupported:       "flag not supported",
	StatusInvalidParameter:       "invalid parameter",
	StatusResolutionNotSupported: "resolution not supported",
	StatusUnimplemented:          "the requested function is not implemented",
	StatusSurfaceInDisplaying:    "surface is in displaying (may by overlay)",
	StatusInvalidImageFormat:     "invalid VAImageFormat",
	StatusDecodingError:          "internal decoding error",
	StatusEncodingError:          "internal encoding error",
	StatusInvalidValue:           "an invalid/unsupported value was supplied",
	StatusUnsupportedFilter:      "the requested filter is not supported",
	StatusInvalidFilterChain:     "an invalid filter chain was supplied",
	StatusHWBusy:                 "HW busy now",
	StatusUnsupportedMemoryType:  "an unsupported memory type was supplied",
	StatusNotEnoughBuffer:        "allocated memory size is not enough for input or output",
	StatusTimedOut:               "deadline exceeded",
}

// Text returns libva's description of the status without consulting the library.
func (s Status) Text() string {
	if t, ok := statusText[s]; ok {
		return t
	}
	return "unknown libva error"
}

func (s Status) String() string {
	return fmt.Sprintf("%s (0x%x)", s.Text(), uint32(s))
}

// ImageFormat mirrors VAImageFormat.
type ImageFormat struct {
	FourCC       uint32
	ByteOrder    uint32
	BitsPerPixel uint32
	Depth        uint32
	RedMask      uint32
	GreenMask    uint32
	BlueMask     uint32
	AlphaMask    uint32
	reserved     [4]uint32
}

// Image mirrors VAImage.
type Image struct {
	ImageID           ImageID
	Format            ImageFormat
	Buf               BufferID
	Width             uint16
	Height            uint16
	DataSize          uint32
	NumPlanes         uint32
	Pitches           [3]uint32
	Offsets           [3]uint32
	NumPaletteEntries int32
	EntryBytes        int32
	ComponentOrder    [4]int8
	reserved          [4]uint32
}

// ConfigAttrib mirrors VAConfigAttrib.
type ConfigAttrib struct {
	Type  int32
	Value uint32
}

// Generic value types carried in GenericValue.Type.
const (
	GenericInteger int32 = 1
	GenericFloat   int32 = 2
	GenericPointer int32 = 3
	GenericFunc    int32 = 4
)

// GenericValue mirrors VAGenericValue: a type tag followed by an 8-byte aligned union.
type GenericValue struct {
	Type  int32
	_     uint32
	Value uint64
}

// Int returns the integer member of the union.
func (v GenericValue) Int() int32 { return int32(uint32(v.Value)) }

// SetInt stores an integer in the union and tags the value accordingly.
func (v *GenericValue) SetInt(i int32) {
	v.Type = GenericInteger
	v.Value = uint64(uint32(i))
}

// SurfaceAttrib mirrors VASurfaceAttrib.
type SurfaceAttrib struct {
	Type  int32
	Flags uint32
	Value GenericValue
}

// Surface attribute flags.
const (
	SurfaceAttribGettable uint32 = 0x1
	SurfaceAttribSettable uint32 = 0x2
)

// Display attribute flags.
const (
	DisplayAttribGettable uint32 = 0x1
	DisplayAttribSettable uint32 = 0x2
)

// DisplayAttribute mirrors VADisplayAttribute.
type DisplayAttribute struct {
	Type     int32
	MinValue int32
	MaxValue int32
	Value    int32
	Flags    uint32
	reserved [4]uint32
}

// PrimeObject mirrors one object of VADRMPRIMESurfaceDescriptor.
type PrimeObject struct {
	FD                int32
	Size              uint32
	DRMFormatModifier uint64
}

// PrimeLayer mirrors one layer of VADRMPRIMESurfaceDescriptor.
type PrimeLayer struct {
	DRMFormat   uint32
	NumPlanes   uint32
	ObjectIndex [4]uint32
	Offset      [4]uint32
	Pitch       [4]uint32
}

// PrimeSurfaceDescriptor mirrors VADRMPRIMESurfaceDescriptor.
type PrimeSurfaceDescriptor struct {
	FourCC     uint32
	Width      uint32
	Height     uint32
	NumObjects uint32
	Objects    [4]PrimeObject
	NumLayers  uint32
	Layers     [4]PrimeLayer
}

// Memory type and flags for vaExportSurfaceHandle.
const (
	MemTypeDRMPrime2 uint32 = 0x40000000

	ExportReadOnly       uint32 = 0x0001
	ExportWriteOnly      uint32 = 0x0002
	ExportReadWrite      uint32 = 0x0003
	ExportSeparateLayers uint32 = 0x0004
	ExportComposedLayers uint32 = 0x0008
)
