// Package probe turns a display's capability queries into a report that the
// CLI renders and the API serves.
package probe

import (
	"fmt"

	"github.com/bryanchriswhite/VAProbe/internal/logger"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi"
)

// Report is everything a display advertises.
type Report struct {
	Source            string             `json:"source"`
	Library           string             `json:"library"`
	Version           string             `json:"version"`
	Vendor            string             `json:"vendor"`
	Profiles          []Profile          `json:"profiles"`
	ImageFormats      []Format           `json:"image_formats"`
	DisplayAttributes []DisplayAttribute `json:"display_attributes"`
	Warnings          []string           `json:"warnings,omitempty"`
}

// Profile is one profile and the entrypoints the driver offers for it.
type Profile struct {
	Name        string       `json:"name"`
	Value       int32        `json:"value"`
	Entrypoints []Entrypoint `json:"entrypoints"`
}

// Entrypoint carries the attributes of one profile/entrypoint pair. Err is set
// when the attributes could not be read.
type Entrypoint struct {
	Name              string      `json:"name"`
	Value             int32       `json:"value"`
	Kind              string      `json:"kind"`
	ConfigAttributes  []Attribute `json:"config_attributes,omitempty"`
	SurfaceAttributes []Attribute `json:"surface_attributes,omitempty"`
	Err               string      `json:"error,omitempty"`
}

// Attribute is a named value rendered for people.
type Attribute struct {
	Name      string `json:"name"`
	Value     string `json:"value,omitempty"`
	Supported bool   `json:"supported"`
}

// Format is an image format the driver can map.
type Format struct {
	FourCC       string `json:"fourcc"`
	BitsPerPixel uint32 `json:"bits_per_pixel"`
	Depth        uint32 `json:"depth,omitempty"`
	ByteOrder    string `json:"byte_order"`
	RTFormat     string `json:"rt_format,omitempty"`
}

// DisplayAttribute is a display attribute and its range.
type DisplayAttribute struct {
	Name     string `json:"name"`
	Min      int32  `json:"min"`
	Max      int32  `json:"max"`
	Value    int32  `json:"value"`
	Settable bool   `json:"settable"`
}

// Profile finds a profile by name or raw value.
func (r *Report) Profile(name string) (*Profile, bool) {
	p, err := vaapi.ParseProfile(name)
	if err != nil {
		return nil, false
	}
	for i := range r.Profiles {
		if r.Profiles[i].Value == int32(p) {
			return &r.Profiles[i], true
		}
	}
	return nil, false
}

// Pairs counts the profile/entrypoint pairs in the report.
func (r *Report) Pairs() int {
	n := 0
	for _, p := range r.Profiles {
		n += len(p.Entrypoints)
	}
	return n
}

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func kindOf(e vaapi.Entrypoint) string {
	switch {
	case e.IsDecode():
		return "decode"
	case e.IsEncode():
		return "encode"
	case e == vaapi.EntrypointVideoProc:
		return "vpp"
	}
	return "other"
}

// Probe queries d for everything in a Report. Only a failure to list the
// profiles is an error; narrower failures become warnings or per-entrypoint
// errors so one broken codec does not hide the rest.
func Probe(d *vaapi.Display) (*Report, error) {
	log := logger.WithComponent("probe")

	r := &Report{
		Source:  d.Source(),
		Version: d.Version().String(),
		Vendor:  d.Vendor(),
	}
	if lib := d.Library(); lib != nil {
		r.Library = lib.Name()
	}

	profiles, err := d.QueryProfiles()
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	r.Profiles = make([]Profile, 0, len(profiles))
	for _, p := range profiles {
		r.Profiles = append(r.Profiles, probeProfile(d, r, p))
	}

	if formats, err := d.QueryImageFormats(); err != nil {
		r.warn("image formats: %v", err)
	} else {
		for _, f := range formats {
			out := Format{
				FourCC:       f.FourCC.String(),
				BitsPerPixel: f.BitsPerPixel,
				Depth:        f.Depth,
				ByteOrder:    f.ByteOrder.String(),
			}
			if rt := f.FourCC.RTFormat(); rt != 0 {
				out.RTFormat = rt.String()
			}
			r.ImageFormats = append(r.ImageFormats, out)
		}
	}

	if attrs, err := d.QueryDisplayAttributes(); err != nil {
		r.warn("display attributes: %v", err)
	} else {
		for _, a := range attrs {
			r.DisplayAttributes = append(r.DisplayAttributes, DisplayAttribute{
				Name:     a.Type.String(),
				Min:      a.Min,
				Max:      a.Max,
				Value:    a.Value,
				Settable: a.Settable,
			})
		}
	}

	log.Debug().
		Int("profiles", len(r.Profiles)).
		Int("pairs", r.Pairs()).
		Int("formats", len(r.ImageFormats)).
		Int("warnings", len(r.Warnings)).
		Msg("probe finished")
	return r, nil
}

func probeProfile(d *vaapi.Display, r *Report, p vaapi.Profile) Profile {
	out := Profile{Name: p.String(), Value: int32(p)}
	eps, err := d.QueryEntrypoints(p)
	if err != nil {
		r.warn("entrypoints for %s: %v", p, err)
		return out
	}
	for _, e := range eps {
		out.Entrypoints = append(out.Entrypoints, probeEntrypoint(d, p, e))
	}
	return out
}

func probeEntrypoint(d *vaapi.Display, p vaapi.Profile, e vaapi.Entrypoint) Entrypoint {
	out := Entrypoint{Name: e.String(), Value: int32(e), Kind: kindOf(e)}

	attrs, err := d.QueryConfigAttributes(p, e)
	if err != nil {
		out.Err = err.Error()
		return out
	}
	for _, a := range attrs {
		out.ConfigAttributes = append(out.ConfigAttributes, configAttribute(a))
	}

	cfg, err := d.CreateConfig(p, e)
	if err != nil {
		out.Err = err.Error()
		return out
	}
	defer func() {
		if err := cfg.Destroy(); err != nil {
			logger.WithComponent("probe").Warn().Err(err).Msg("ignoring error in config destroy")
		}
	}()

	surface, err := cfg.SurfaceAttributes()
	if err != nil {
		out.Err = err.Error()
		return out
	}
	for _, a := range surface {
		out.SurfaceAttributes = append(out.SurfaceAttributes, surfaceAttribute(a))
	}
	return out
}

func configAttribute(a vaapi.ConfigAttrib) Attribute {
	out := Attribute{Name: a.Type.String(), Supported: a.Supported}
	switch {
	case !a.Supported:
	case a.Type == vaapi.ConfigAttribRTFormat:
		out.Value = vaapi.RTFormat(a.Value).String()
	case a.Type == vaapi.ConfigAttribMaxPictureWidth, a.Type == vaapi.ConfigAttribMaxPictureHeight:
		out.Value = fmt.Sprintf("%d", a.Value)
	default:
		out.Value = fmt.Sprintf("0x%x", a.Value)
	}
	return out
}

func surfaceAttribute(a vaapi.SurfaceAttrib) Attribute {
	out := Attribute{Name: a.Type.String(), Supported: true}
	if !a.HasValue {
		return out
	}
	if a.Type == vaapi.SurfaceAttribPixelFormat {
		out.Value = vaapi.FourCC(uint32(a.Value)).String()
	} else {
		out.Value = fmt.Sprintf("%d", a.Value)
	}
	return out
}
