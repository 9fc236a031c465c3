package vaapi

import (
	"fmt"

	"github.com/bryanchriswhite/VAProbe/internal/vaapi/native"
)

type nameTable[T ~int32] map[T]string

func (n nameTable[T]) name(v T) string {
	if s, ok := n[v]; ok {
		return s
	}
	return fmt.Sprintf("Unknown(%d)", int32(v))
}

func (n nameTable[T]) known(v T) bool {
	_, ok := n[v]
	return ok
}

// ConfigAttribType is a VAConfigAttribType.
type ConfigAttribType int32

const (
	ConfigAttribRTFormat         ConfigAttribType = 0
	ConfigAttribRateControl      ConfigAttribType = 5
	ConfigAttribDecSliceMode     ConfigAttribType = 6
	ConfigAttribDecProcessing    ConfigAttribType = 8
	ConfigAttribEncPackedHeaders ConfigAttribType = 10
	ConfigAttribEncMaxRefFrames  ConfigAttribType = 13
	ConfigAttribEncMaxSlices     ConfigAttribType = 14
	ConfigAttribMaxPictureWidth  ConfigAttribType = 18
	ConfigAttribMaxPictureHeight ConfigAttribType = 19
	ConfigAttribEncQualityRange  ConfigAttribType = 21
	ConfigAttribProcessingRate   ConfigAttribType = 27
	ConfigAttribEncPerBlockCtrl  ConfigAttribType = 55
)

var configAttribNames = nameTable[ConfigAttribType]{
	0: "RTFormat", 1: "SpatialResidual", 2: "SpatialClipping", 3: "IntraResidual",
	4: "Encryption", 5: "RateControl", 6: "DecSliceMode", 7: "DecJPEG",
	8: "DecProcessing", 10: "EncPackedHeaders", 11: "EncInterlaced", 13: "EncMaxRefFrames",
	14: "EncMaxSlices", 15: "EncSliceStructure", 16: "EncMacroblockInfo",
	18: "MaxPictureWidth", 19: "MaxPictureHeight", 20: "EncJPEG", 21: "EncQualityRange",
	22: "EncQuantization", 23: "EncIntraRefresh", 24: "EncSkipFrame", 25: "EncROI",
	26: "EncRateControlExt", 27: "ProcessingRate", 28: "EncDirtyRect",
	29: "EncParallelRateControl", 30: "EncDynamicScaling", 31: "FrameSizeToleranceSupport",
	32: "FEIFunctionType", 33: "FEIMVPredictors", 34: "Stats", 35: "EncTileSupport",
	36: "CustomRoundingControl", 37: "QPBlockSize", 38: "MaxFrameSize",
	39: "PredictionDirection", 40: "MultipleFrame", 41: "ContextPriority",
	42: "DecAV1Features", 43: "TEEType", 44: "TEETypeClient",
	45: "ProtectedContentCipherAlgorithm", 46: "ProtectedContentCipherBlockSize",
	47: "ProtectedContentCipherMode", 48: "ProtectedContentCipherSampleType",
	49: "ProtectedContentUsage", 50: "EncHEVCFeatures", 51: "EncHEVCBlockSizes",
	52: "EncAV1", 53: "EncAV1Ext1", 54: "EncAV1Ext2", 55: "EncPerBlockControl",
}

// AllConfigAttribTypes lists every named attribute, in numeric order.
func AllConfigAttribTypes() []ConfigAttribType {
	var out []ConfigAttribType
	for t := ConfigAttribType(0); t <= ConfigAttribEncPerBlockCtrl; t++ {
		if configAttribNames.known(t) {
			out = append(out, t)
		}
	}
	return out
}

func (t ConfigAttribType) IsKnown() bool  { return configAttribNames.known(t) }
func (t ConfigAttribType) String() string { return configAttribNames.name(t) }

// ConfigAttrib is a configuration attribute and its value. Supported is false
// when the driver answered VA_ATTRIB_NOT_SUPPORTED.
type ConfigAttrib struct {
	Type      ConfigAttribType `json:"type"`
	Value     uint32           `json:"value"`
	Supported bool             `json:"supported"`
}

func configAttribFromNative(a native.ConfigAttrib) ConfigAttrib {
	return ConfigAttrib{
		Type:      ConfigAttribType(a.Type),
		Value:     a.Value,
		Supported: a.Value != native.AttribNotSupported,
	}
}

func (a ConfigAttrib) String() string {
	if !a.Supported {
		return fmt.Sprintf("%s: not supported", a.Type)
	}
	if a.Type == ConfigAttribRTFormat {
		return fmt.Sprintf("%s: %s", a.Type, RTFormat(a.Value))
	}
	return fmt.Sprintf("%s: 0x%x", a.Type, a.Value)
}

// SurfaceAttribType is a VASurfaceAttribType.
type SurfaceAttribType int32

const (
	SurfaceAttribNone                     SurfaceAttribType = 0
	SurfaceAttribPixelFormat              SurfaceAttribType = 1
	SurfaceAttribMinWidth                 SurfaceAttribType = 2
	SurfaceAttribMaxWidth                 SurfaceAttribType = 3
	SurfaceAttribMinHeight                SurfaceAttribType = 4
	SurfaceAttribMaxHeight                SurfaceAttribType = 5
	SurfaceAttribMemoryType               SurfaceAttribType = 6
	SurfaceAttribExternalBufferDescriptor SurfaceAttribType = 7
	SurfaceAttribUsageHint                SurfaceAttribType = 8
	SurfaceAttribDRMFormatModifiers       SurfaceAttribType = 9
)

var surfaceAttribNames = nameTable[SurfaceAttribType]{
	0: "None", 1: "PixelFormat", 2: "MinWidth", 3: "MaxWidth", 4: "MinHeight",
	5: "MaxHeight", 6: "MemoryType", 7: "ExternalBufferDescriptor", 8: "UsageHint",
	9: "DRMFormatModifiers",
}

func (t SurfaceAttribType) IsKnown() bool  { return surfaceAttribNames.known(t) }
func (t SurfaceAttribType) String() string { return surfaceAttribNames.name(t) }

// SurfaceAttrib is one entry of vaQuerySurfaceAttributes. Only integer values
// are decoded; pointer values are reported with HasValue false.
type SurfaceAttrib struct {
	Type     SurfaceAttribType `json:"type"`
	Gettable bool              `json:"gettable"`
	Settable bool              `json:"settable"`
	HasValue bool              `json:"has_value"`
	Value    int32             `json:"value"`
}

func surfaceAttribFromNative(a native.SurfaceAttrib) SurfaceAttrib {
	out := SurfaceAttrib{
		Type:     SurfaceAttribType(a.Type),
		Gettable: a.Flags&native.SurfaceAttribGettable != 0,
		Settable: a.Flags&native.SurfaceAttribSettable != 0,
	}
	if a.Value.Type == native.GenericInteger {
		out.HasValue = true
		out.Value = a.Value.Int()
	}
	return out
}

func (a SurfaceAttrib) String() string {
	if !a.HasValue {
		return a.Type.String()
	}
	if a.Type == SurfaceAttribPixelFormat {
		return fmt.Sprintf("%s: %s", a.Type, FourCC(uint32(a.Value)))
	}
	return fmt.Sprintf("%s: %d", a.Type, a.Value)
}

// SurfaceHint is an integer attribute set at surface creation.
type SurfaceHint struct {
	Type  SurfaceAttribType
	Value int32
}

// PixelFormatHint requests a specific pixel layout for new surfaces.
func PixelFormatHint(f FourCC) SurfaceHint {
	return SurfaceHint{Type: SurfaceAttribPixelFormat, Value: int32(f)}
}

func (h SurfaceHint) native() native.SurfaceAttrib {
	a := native.SurfaceAttrib{Type: int32(h.Type), Flags: native.SurfaceAttribSettable}
	a.Value.SetInt(h.Value)
	return a
}

// DisplayAttribType is a VADisplayAttribType.
type DisplayAttribType int32

var displayAttribNames = nameTable[DisplayAttribType]{
	0: "Brightness", 1: "Contrast", 2: "Hue", 3: "Saturation", 4: "BackgroundColor",
	5: "DirectSurface", 6: "Rotation", 7: "OutofLoopDeblock", 8: "BLEBlackMode",
	9: "BLEWhiteMode", 10: "BlueStretch", 11: "SkinColorCorrection", 12: "CSCMatrix",
	13: "BlendColor", 14: "OverlayAutoPaintColorKey", 15: "OverlayColorKey",
	16: "RenderMode", 17: "RenderDevice", 18: "RenderRect", 19: "SubDevice",
	20: "Copy", 21: "PCIID",
}

func (t DisplayAttribType) IsKnown() bool  { return displayAttribNames.known(t) }
func (t DisplayAttribType) String() string { return displayAttribNames.name(t) }

// DisplayAttribute is one entry of vaQueryDisplayAttributes.
type DisplayAttribute struct {
	Type     DisplayAttribType `json:"type"`
	Min      int32             `json:"min"`
	Max      int32             `json:"max"`
	Value    int32             `json:"value"`
	Gettable bool              `json:"gettable"`
	Settable bool              `json:"settable"`
}

func displayAttributeFromNative(a native.DisplayAttribute) DisplayAttribute {
	return DisplayAttribute{
		Type:     DisplayAttribType(a.Type),
		Min:      a.MinValue,
		Max:      a.MaxValue,
		Value:    a.Value,
		Gettable: a.Flags&native.DisplayAttribGettable != 0,
		Settable: a.Flags&native.DisplayAttribSettable != 0,
	}
}

// BufferType is a VABufferType.
type BufferType int32

const (
	BufferPictureParameter     BufferType = 0
	BufferIQMatrix             BufferType = 1
	BufferBitPlane             BufferType = 2
	BufferSliceGroupMap        BufferType = 3
	BufferSliceParameter       BufferType = 4
	BufferSliceData            BufferType = 5
	BufferMacroblockParameter  BufferType = 6
	BufferResidualData         BufferType = 7
	BufferDeblockingParameter  BufferType = 8
	BufferImage                BufferType = 9
	BufferProtectedSliceData   BufferType = 10
	BufferQMatrix              BufferType = 11
	BufferHuffmanTable         BufferType = 12
	BufferProbability          BufferType = 13
	BufferEncCoded             BufferType = 21
	BufferEncSequenceParameter BufferType = 22
	BufferEncPictureParameter  BufferType = 23
	BufferEncSliceParameter    BufferType = 24
	BufferEncPackedHeaderParam BufferType = 25
	BufferEncPackedHeaderData  BufferType = 26
	BufferEncMiscParameter     BufferType = 27
	BufferProcPipelineParam    BufferType = 41
	BufferProcFilterParameter  BufferType = 42
)

var bufferTypeNames = nameTable[BufferType]{
	0: "PictureParameter", 1: "IQMatrix", 2: "BitPlane", 3: "SliceGroupMap",
	4: "SliceParameter", 5: "SliceData", 6: "MacroblockParameter", 7: "ResidualData",
	8: "DeblockingParameter", 9: "Image", 10: "ProtectedSliceData", 11: "QMatrix",
	12: "HuffmanTable", 13: "Probability",
	21: "EncCoded", 22: "EncSequenceParameter", 23: "EncPictureParameter",
	24: "EncSliceParameter", 25: "EncPackedHeaderParameter", 26: "EncPackedHeaderData",
	27: "EncMiscParameter", 28: "EncMacroblockParameter", 29: "EncMacroblockMap",
	30: "EncQP", 41: "ProcPipelineParameter", 42: "ProcFilterParameter",
	43: "EncFEIMV", 44: "EncFEIMBCode", 45: "EncFEIDistortion", 46: "EncFEIMBControl",
	47: "EncFEIMVPredictor", 48: "StatsStatisticsParameter", 49: "StatsStatistics",
	50: "StatsStatisticsBottomField", 51: "StatsMV", 52: "StatsMVPredictor",
	53: "EncMacroblockDisableSkipMap", 54: "EncFEICTBCmd", 55: "EncFEICURecord",
	56: "DecodeStreamout", 57: "SubsetsParameter", 58: "ContextParameterUpdate",
	59: "ProtectedSessionExecute", 60: "EncryptionParameter", 61: "EncDeltaQpPerBlock",
}

func (t BufferType) IsKnown() bool  { return bufferTypeNames.known(t) }
func (t BufferType) String() string { return bufferTypeNames.name(t) }

// SurfaceStatus is a VASurfaceStatus.
type SurfaceStatus int32

const (
	SurfaceRendering  SurfaceStatus = 1
	SurfaceDisplaying SurfaceStatus = 2
	SurfaceReady      SurfaceStatus = 4
	SurfaceSkipped    SurfaceStatus = 8
)

var surfaceStatusNames = nameTable[SurfaceStatus]{
	1: "Rendering", 2: "Displaying", 4: "Ready", 8: "Skipped",
}

func (s SurfaceStatus) IsKnown() bool  { return surfaceStatusNames.known(s) }
func (s SurfaceStatus) String() string { return surfaceStatusNames.name(s) }
