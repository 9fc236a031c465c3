package vaapi

import (
	"slices"

	"github.com/bryanchriswhite/VAProbe/internal/vaapi/native"
)

// Config is a profile/entrypoint pair the driver accepted, plus the attributes
// it settled on. It does not change after creation.
type Config struct {
	d          *Display
	id         native.ConfigID
	profile    Profile
	entrypoint Entrypoint
	attribs    []ConfigAttrib
	alive      bool
}

// CreateConfig validates the pair against the driver's advertised capabilities
// and creates a config. attribs go to the driver unchanged.
func (d *Display) CreateConfig(p Profile, e Entrypoint, attribs ...ConfigAttrib) (*Config, error) {
	fail := func(err error) error {
		return &ResourceError{Op: "create", Kind: KindConfig, ID: native.InvalidID, Err: err}
	}
	if err := d.lock("create config"); err != nil {
		return nil, err
	}
	defer d.mu.Unlock()

	seen := make(map[ConfigAttribType]bool, len(attribs))
	raw := make([]native.ConfigAttrib, 0, len(attribs))
	for _, a := range attribs {
		if seen[a.Type] {
			return nil, fail(invalidParams("attribute %s given twice", a.Type))
		}
		seen[a.Type] = true
		if !a.Type.IsKnown() {
			return nil, fail(invalidParams("attribute %s", a.Type))
		}
		raw = append(raw, native.ConfigAttrib{Type: int32(a.Type), Value: a.Value})
	}

	ok, err := d.supportsLocked(p, e)
	if err != nil {
		return nil, fail(err)
	}
	if !ok {
		return nil, fail(invalidParams("%s/%s is not supported by the driver", p, e))
	}

	var id native.ConfigID
	if err := d.call("vaCreateConfig", func() native.Status {
		return d.syms.CreateConfig(d.raw, int32(p), int32(e), raw, int32(len(raw)), &id)
	}); err != nil {
		return nil, fail(err)
	}

	c := &Config{d: d, id: id, profile: p, entrypoint: e, alive: true}
	c.attribs = d.configAttributesLocked(c)
	if c.attribs == nil {
		for _, a := range raw {
			c.attribs = append(c.attribs, configAttribFromNative(a))
		}
	}
	d.configs[id] = c
	d.log.Debug().Uint32("config", uint32(id)).Stringer("profile", p).Stringer("entrypoint", e).Msg("config created")
	return c, nil
}

func (d *Display) configAttributesLocked(c *Config) []ConfigAttrib {
	limit := d.syms.MaxNumConfigAttributes(d.raw)
	if limit <= 0 {
		return nil
	}
	raw := make([]native.ConfigAttrib, limit)
	var prof, entry, n int32
	if err := d.call("vaQueryConfigAttributes", func() native.Status {
		return d.syms.QueryConfigAttributes(d.raw, c.id, &prof, &entry, raw, &n)
	}); err != nil {
		d.log.Debug().Err(err).Uint32("config", uint32(c.id)).Msg("config attributes unavailable")
		return nil
	}
	out := make([]ConfigAttrib, 0, clamp(n, limit))
	for _, a := range raw[:clamp(n, limit)] {
		out = append(out, configAttribFromNative(a))
	}
	return out
}

func (c *Config) fail(op string, err error) error {
	return &ResourceError{Op: op, Kind: KindConfig, ID: uint32(c.id), Err: err}
}

// checkLocked validates c for use by op. The caller holds c.d.mu.
func (c *Config) checkLocked(op string) error {
	if !c.alive || c.d.configs[c.id] != c {
		return c.fail(op, ErrDestroyed)
	}
	return nil
}

// ID returns the native config ID.
func (c *Config) ID() native.ConfigID { return c.id }

// Display returns the owning display.
func (c *Config) Display() *Display { return c.d }

func (c *Config) Profile() Profile       { return c.profile }
func (c *Config) Entrypoint() Entrypoint { return c.entrypoint }

// Attributes returns the attributes recorded when the config was created.
func (c *Config) Attributes() []ConfigAttrib { return slices.Clone(c.attribs) }

// Attribute looks up one recorded attribute. ok is false when the driver did
// not report it or reported it as unsupported.
func (c *Config) Attribute(t ConfigAttribType) (ConfigAttrib, bool) {
	for _, a := range c.attribs {
		if a.Type == t {
			return a, a.Supported
		}
	}
	return ConfigAttrib{}, false
}

// SurfaceAttributes asks the driver which surface attributes it supports for
// render targets of this config.
func (c *Config) SurfaceAttributes() ([]SurfaceAttrib, error) {
	d := c.d
	if err := d.lock("query surface attributes"); err != nil {
		return nil, err
	}
	defer d.mu.Unlock()
	if err := c.checkLocked("surface attributes"); err != nil {
		return nil, err
	}

	var n uint32
	if err := d.call("vaQuerySurfaceAttributes", func() native.Status {
		return d.syms.QuerySurfaceAttributes(d.raw, c.id, nil, &n)
	}); err != nil {
		return nil, c.fail("surface attributes", err)
	}
	if n == 0 {
		return nil, nil
	}
	raw := make([]native.SurfaceAttrib, n)
	if err := d.call("vaQuerySurfaceAttributes", func() native.Status {
		return d.syms.QuerySurfaceAttributes(d.raw, c.id, raw, &n)
	}); err != nil {
		return nil, c.fail("surface attributes", err)
	}
	out := make([]SurfaceAttrib, 0, n)
	for _, a := range raw[:min(int(n), len(raw))] {
		out = append(out, surfaceAttribFromNative(a))
	}
	return out, nil
}

// Destroy releases the config. Contexts created from it stay usable.
func (c *Config) Destroy() error {
	if err := c.d.lock("destroy config"); err != nil {
		return err
	}
	defer c.d.mu.Unlock()
	if err := c.checkLocked("destroy"); err != nil {
		return err
	}
	return c.destroyLocked()
}

func (c *Config) destroyLocked() error {
	d := c.d
	c.alive = false
	delete(d.configs, c.id)
	if err := d.call("vaDestroyConfig", func() native.Status {
		return d.syms.DestroyConfig(d.raw, c.id)
	}); err != nil {
		return c.fail("destroy", err)
	}
	return nil
}
