package vaapi

import (
	"fmt"
	"slices"

	"github.com/bryanchriswhite/VAProbe/internal/vaapi/native"
)

// capabilityCache backs creation-time validation only. Capabilities are static
// for the lifetime of a display, so it is filled once on first use; the public
// Query methods always go to the driver.
type capabilityCache struct {
	entrypoints map[Profile][]Entrypoint
	formats     []ImageFormat
	formatsSet  bool
}

func queryError(op string, err error) error {
	return fmt.Errorf("vaapi: %s: %w", op, err)
}

// QueryProfiles lists the profiles the driver supports.
func (d *Display) QueryProfiles() ([]Profile, error) {
	if err := d.lock("query profiles"); err != nil {
		return nil, err
	}
	defer d.mu.Unlock()
	return d.queryProfilesLocked()
}

func (d *Display) queryProfilesLocked() ([]Profile, error) {
	limit := d.syms.MaxNumProfiles(d.raw)
	if limit <= 0 {
		return nil, nil
	}
	raw := make([]int32, limit)
	var n int32
	if err := d.call("vaQueryConfigProfiles", func() native.Status {
		return d.syms.QueryConfigProfiles(d.raw, raw, &n)
	}); err != nil {
		return nil, queryError("query profiles", err)
	}
	out := make([]Profile, 0, clamp(n, limit))
	for _, p := range raw[:clamp(n, limit)] {
		out = append(out, Profile(p))
	}
	return out, nil
}

// QueryEntrypoints lists the entrypoints available for p.
func (d *Display) QueryEntrypoints(p Profile) ([]Entrypoint, error) {
	if err := d.lock("query entrypoints"); err != nil {
		return nil, err
	}
	defer d.mu.Unlock()
	return d.queryEntrypointsLocked(p)
}

func (d *Display) queryEntrypointsLocked(p Profile) ([]Entrypoint, error) {
	limit := d.syms.MaxNumEntrypoints(d.raw)
	if limit <= 0 {
		return nil, nil
	}
	raw := make([]int32, limit)
	var n int32
	if err := d.call("vaQueryConfigEntrypoints", func() native.Status {
		return d.syms.QueryConfigEntrypoints(d.raw, int32(p), raw, &n)
	}); err != nil {
		return nil, queryError("query entrypoints for "+p.String(), err)
	}
	out := make([]Entrypoint, 0, clamp(n, limit))
	for _, e := range raw[:clamp(n, limit)] {
		out = append(out, Entrypoint(e))
	}
	return out, nil
}

// QueryImageFormats lists the image formats usable with CreateImage.
func (d *Display) QueryImageFormats() ([]ImageFormat, error) {
	if err := d.lock("query image formats"); err != nil {
		return nil, err
	}
	defer d.mu.Unlock()
	return d.queryImageFormatsLocked()
}

func (d *Display) queryImageFormatsLocked() ([]ImageFormat, error) {
	limit := d.syms.MaxNumImageFormats(d.raw)
	if limit <= 0 {
		return nil, nil
	}
	raw := make([]native.ImageFormat, limit)
	var n int32
	if err := d.call("vaQueryImageFormats", func() native.Status {
		return d.syms.QueryImageFormats(d.raw, raw, &n)
	}); err != nil {
		return nil, queryError("query image formats", err)
	}
	out := make([]ImageFormat, 0, clamp(n, limit))
	for _, f := range raw[:clamp(n, limit)] {
		out = append(out, imageFormatFromNative(f))
	}
	return out, nil
}

// QueryDisplayAttributes lists the display attributes and their ranges.
func (d *Display) QueryDisplayAttributes() ([]DisplayAttribute, error) {
	if err := d.lock("query display attributes"); err != nil {
		return nil, err
	}
	defer d.mu.Unlock()
	return d.displayAttributesLocked()
}

func (d *Display) displayAttributesLocked() ([]DisplayAttribute, error) {
	limit := d.syms.MaxNumDisplayAttributes(d.raw)
	if limit <= 0 {
		return nil, nil
	}
	raw := make([]native.DisplayAttribute, limit)
	var n int32
	if err := d.call("vaQueryDisplayAttributes", func() native.Status {
		return d.syms.QueryDisplayAttributes(d.raw, raw, &n)
	}); err != nil {
		return nil, queryError("query display attributes", err)
	}
	out := make([]DisplayAttribute, 0, clamp(n, limit))
	for _, a := range raw[:clamp(n, limit)] {
		out = append(out, displayAttributeFromNative(a))
	}
	return out, nil
}

// SetDisplayAttributes sets the Value of each attribute. Every attribute must
// be advertised as settable and the value must lie in its advertised range;
// otherwise nothing is sent to the driver.
func (d *Display) SetDisplayAttributes(attrs ...DisplayAttribute) error {
	const op = "set display attributes"
	if err := d.lock(op); err != nil {
		return err
	}
	defer d.mu.Unlock()
	if len(attrs) == 0 {
		return nil
	}

	current, err := d.displayAttributesLocked()
	if err != nil {
		return err
	}
	byType := make(map[DisplayAttribType]DisplayAttribute, len(current))
	for _, a := range current {
		byType[a.Type] = a
	}

	raw := make([]native.DisplayAttribute, 0, len(attrs))
	for _, a := range attrs {
		cur, ok := byType[a.Type]
		switch {
		case !ok:
			return queryError(op, invalidParams("display attribute %s is not supported", a.Type))
		case !cur.Settable:
			return queryError(op, invalidParams("display attribute %s is read-only", a.Type))
		case a.Value < cur.Min || a.Value > cur.Max:
			return queryError(op, invalidParams("%s = %d is outside %d..%d", a.Type, a.Value, cur.Min, cur.Max))
		}
		raw = append(raw, native.DisplayAttribute{
			Type:     int32(a.Type),
			MinValue: cur.Min,
			MaxValue: cur.Max,
			Value:    a.Value,
			Flags:    native.DisplayAttribSettable,
		})
	}

	if err := d.call("vaSetDisplayAttributes", func() native.Status {
		return d.syms.SetDisplayAttributes(d.raw, raw, int32(len(raw)))
	}); err != nil {
		return queryError(op, err)
	}
	return nil
}

// QueryConfigAttributes asks the driver which values it supports for each
// attribute type on a profile/entrypoint pair. With no types it asks for every
// named attribute.
func (d *Display) QueryConfigAttributes(p Profile, e Entrypoint, types ...ConfigAttribType) ([]ConfigAttrib, error) {
	if len(types) == 0 {
		types = AllConfigAttribTypes()
	}
	if err := d.lock("query config attributes"); err != nil {
		return nil, err
	}
	defer d.mu.Unlock()

	raw := make([]native.ConfigAttrib, len(types))
	for i, t := range types {
		raw[i].Type = int32(t)
	}
	if err := d.call("vaGetConfigAttributes", func() native.Status {
		return d.syms.GetConfigAttributes(d.raw, int32(p), int32(e), raw, int32(len(raw)))
	}); err != nil {
		return nil, queryError(fmt.Sprintf("query config attributes for %s/%s", p, e), err)
	}
	out := make([]ConfigAttrib, len(raw))
	for i, a := range raw {
		out[i] = configAttribFromNative(a)
	}
	return out, nil
}

// supportsLocked reports whether the driver advertises the pair.
func (d *Display) supportsLocked(p Profile, e Entrypoint) (bool, error) {
	if d.caps.entrypoints == nil {
		profiles, err := d.queryProfilesLocked()
		if err != nil {
			return false, err
		}
		m := make(map[Profile][]Entrypoint, len(profiles))
		for _, prof := range profiles {
			eps, err := d.queryEntrypointsLocked(prof)
			if err != nil {
				d.log.Debug().Err(err).Stringer("profile", prof).Msg("skipping profile without entrypoints")
				continue
			}
			m[prof] = eps
		}
		d.caps.entrypoints = m
	}
	eps, ok := d.caps.entrypoints[p]
	return ok && slices.Contains(eps, e), nil
}

// imageFormatLocked finds the driver's full description of a FourCC.
func (d *Display) imageFormatLocked(f FourCC) (ImageFormat, bool, error) {
	if !d.caps.formatsSet {
		formats, err := d.queryImageFormatsLocked()
		if err != nil {
			return ImageFormat{}, false, err
		}
		d.caps.formats = formats
		d.caps.formatsSet = true
	}
	for _, known := range d.caps.formats {
		if known.FourCC == f {
			return known, true, nil
		}
	}
	return ImageFormat{}, false, nil
}

func clamp(n, limit int32) int32 {
	if n < 0 {
		return 0
	}
	if n > limit {
		return limit
	}
	return n
}
