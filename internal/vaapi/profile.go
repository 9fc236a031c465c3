package vaapi

import (
	"fmt"
	"strings"
)

// Profile is a VAProfile. Values outside the known set are kept as-is and
// print as Unknown(raw).
type Profile int32

const (
	ProfileNone                    Profile = -1
	ProfileMPEG2Simple             Profile = 0
	ProfileMPEG2Main               Profile = 1
	ProfileMPEG4Simple             Profile = 2
	ProfileMPEG4AdvancedSimple     Profile = 3
	ProfileMPEG4Main               Profile = 4
	ProfileH264Baseline            Profile = 5
	ProfileH264Main                Profile = 6
	ProfileH264High                Profile = 7
	ProfileVC1Simple               Profile = 8
	ProfileVC1Main                 Profile = 9
	ProfileVC1Advanced             Profile = 10
	ProfileH263Baseline            Profile = 11
	ProfileJPEGBaseline            Profile = 12
	ProfileH264ConstrainedBaseline Profile = 13
	ProfileVP8Version0_3           Profile = 14
	ProfileH264MultiviewHigh       Profile = 15
	ProfileH264StereoHigh          Profile = 16
	ProfileHEVCMain                Profile = 17
	ProfileHEVCMain10              Profile = 18
	ProfileVP9Profile0             Profile = 19
	ProfileVP9Profile1             Profile = 20
	ProfileVP9Profile2             Profile = 21
	ProfileVP9Profile3             Profile = 22
	ProfileHEVCMain12              Profile = 23
	ProfileHEVCMain422_10          Profile = 24
	ProfileHEVCMain422_12          Profile = 25
	ProfileHEVCMain444             Profile = 26
	ProfileHEVCMain444_10          Profile = 27
	ProfileHEVCMain444_12          Profile = 28
	ProfileHEVCSccMain             Profile = 29
	ProfileHEVCSccMain10           Profile = 30
	ProfileHEVCSccMain444          Profile = 31
	ProfileAV1Profile0             Profile = 32
	ProfileAV1Profile1             Profile = 33
	ProfileHEVCSccMain444_10       Profile = 34
	ProfileProtected               Profile = 35
	ProfileH264High10              Profile = 36
	ProfileVVCMain10               Profile = 37
	ProfileVVCMultilayerMain10     Profile = 38
)

var profileNames = map[Profile]string{
	ProfileNone:                    "None",
	ProfileMPEG2Simple:             "MPEG2Simple",
	ProfileMPEG2Main:               "MPEG2Main",
	ProfileMPEG4Simple:             "MPEG4Simple",
	ProfileMPEG4AdvancedSimple:     "MPEG4AdvancedSimple",
	ProfileMPEG4Main:               "MPEG4Main",
	ProfileH264Baseline:            "H264Baseline",
	ProfileH264Main:                "H264Main",
	ProfileH264High:                "H264High",
	ProfileVC1Simple:               "VC1Simple",
	ProfileVC1Main:                 "VC1Main",
	ProfileVC1Advanced:             "VC1Advanced",
	ProfileH263Baseline:            "H263Baseline",
	ProfileJPEGBaseline:            "JPEGBaseline",
	ProfileH264ConstrainedBaseline: "H264ConstrainedBaseline",
	ProfileVP8Version0_3:           "VP8Version0_3",
	ProfileH264MultiviewHigh:       "H264MultiviewHigh",
	ProfileH264StereoHigh:          "H264StereoHigh",
	ProfileHEVCMain:                "HEVCMain",
	ProfileHEVCMain10:              "HEVCMain10",
	ProfileVP9Profile0:             "VP9Profile0",
	ProfileVP9Profile1:             "VP9Profile1",
	ProfileVP9Profile2:             "VP9Profile2",
	ProfileVP9Profile3:             "VP9Profile3",
	ProfileHEVCMain12:              "HEVCMain12",
	ProfileHEVCMain422_10:          "HEVCMain422_10",
	ProfileHEVCMain422_12:          "HEVCMain422_12",
	ProfileHEVCMain444:             "HEVCMain444",
	ProfileHEVCMain444_10:          "HEVCMain444_10",
	ProfileHEVCMain444_12:          "HEVCMain444_12",
	ProfileHEVCSccMain:             "HEVCSccMain",
	ProfileHEVCSccMain10:           "HEVCSccMain10",
	ProfileHEVCSccMain444:          "HEVCSccMain444",
	ProfileAV1Profile0:             "AV1Profile0",
	ProfileAV1Profile1:             "AV1Profile1",
	ProfileHEVCSccMain444_10:       "HEVCSccMain444_10",
	ProfileProtected:               "Protected",
	ProfileH264High10:              "H264High10",
	ProfileVVCMain10:               "VVCMain10",
	ProfileVVCMultilayerMain10:     "VVCMultilayerMain10",
}

// IsKnown reports whether p is one of the named profiles.
func (p Profile) IsKnown() bool {
	_, ok := profileNames[p]
	return ok
}

func (p Profile) String() string {
	if n, ok := profileNames[p]; ok {
		return n
	}
	return fmt.Sprintf("Unknown(%d)", int32(p))
}

// ParseProfile accepts a profile name, with or without the VAProfile prefix.
func ParseProfile(s string) (Profile, error) {
	name := strings.TrimPrefix(s, "VAProfile")
	for p, n := range profileNames {
		if strings.EqualFold(n, name) {
			return p, nil
		}
	}
	var raw int32
	if _, err := fmt.Sscanf(s, "Unknown(%d)", &raw); err == nil {
		return Profile(raw), nil
	}
	return 0, fmt.Errorf("unknown profile %q", s)
}

// Entrypoint is a VAEntrypoint.
type Entrypoint int32

const (
	EntrypointVLD              Entrypoint = 1
	EntrypointIZZ              Entrypoint = 2
	EntrypointIDCT             Entrypoint = 3
	EntrypointMoComp           Entrypoint = 4
	EntrypointDeblocking       Entrypoint = 5
	EntrypointEncSlice         Entrypoint = 6
	EntrypointEncPicture       Entrypoint = 7
	EntrypointEncSliceLP       Entrypoint = 8
	EntrypointVideoProc        Entrypoint = 10
	EntrypointFEI              Entrypoint = 11
	EntrypointStats            Entrypoint = 12
	EntrypointProtectedTEEComm Entrypoint = 13
	EntrypointProtectedContent Entrypoint = 14
)

var entrypointNames = map[Entrypoint]string{
	EntrypointVLD:              "VLD",
	EntrypointIZZ:              "IZZ",
	EntrypointIDCT:             "IDCT",
	EntrypointMoComp:           "MoComp",
	EntrypointDeblocking:       "Deblocking",
	EntrypointEncSlice:         "EncSlice",
	EntrypointEncPicture:       "EncPicture",
	EntrypointEncSliceLP:       "EncSliceLP",
	EntrypointVideoProc:        "VideoProc",
	EntrypointFEI:              "FEI",
	EntrypointStats:            "Stats",
	EntrypointProtectedTEEComm: "ProtectedTEEComm",
	EntrypointProtectedContent: "ProtectedContent",
}

// IsKnown reports whether e is one of the named entrypoints.
func (e Entrypoint) IsKnown() bool {
	_, ok := entrypointNames[e]
	return ok
}

func (e Entrypoint) String() string {
	if n, ok := entrypointNames[e]; ok {
		return n
	}
	return fmt.Sprintf("Unknown(%d)", int32(e))
}

// ParseEntrypoint accepts an entrypoint name, with or without the VAEntrypoint prefix.
func ParseEntrypoint(s string) (Entrypoint, error) {
	name := strings.TrimPrefix(s, "VAEntrypoint")
	for e, n := range entrypointNames {
		if strings.EqualFold(n, name) {
			return e, nil
		}
	}
	return 0, fmt.Errorf("unknown entrypoint %q", s)
}

// IsDecode reports whether e drives a decoder.
func (e Entrypoint) IsDecode() bool { return e == EntrypointVLD }

// IsEncode reports whether e drives an encoder.
func (e Entrypoint) IsEncode() bool {
	switch e {
	case EntrypointEncSlice, EntrypointEncPicture, EntrypointEncSliceLP, EntrypointFEI:
		return true
	}
	return false
}
