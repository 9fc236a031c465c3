package vaapi

import (
	"slices"

	"github.com/bryanchriswhite/VAProbe/internal/vaapi/native"
)

// ContextFlag is the flag argument of vaCreateContext.
type ContextFlag int32

// ContextProgressive marks frame pictures only (VA_PROGRESSIVE).
const ContextProgressive ContextFlag = 0x1

// Context is a pipeline instance created from a Config. Its render targets are
// the surfaces bound to it.
type Context struct {
	d          *Display
	id         native.ContextID
	profile    Profile
	entrypoint Entrypoint
	width      uint32
	height     uint32
	targets    []*Surface
	picture    *Picture
	alive      bool
}

// CreateContext creates a context for cfg and binds targets to it. Surfaces
// already bound to another context are refused with ErrAlreadyBound.
func (d *Display) CreateContext(cfg *Config, width, height uint32, flags ContextFlag, targets ...*Surface) (*Context, error) {
	fail := func(err error) error {
		return &ResourceError{Op: "create", Kind: KindContext, ID: native.InvalidID, Err: err}
	}
	if err := d.lock("create context"); err != nil {
		return nil, err
	}
	defer d.mu.Unlock()

	if cfg == nil {
		return nil, fail(invalidParams("nil config"))
	}
	if cfg.d != d {
		return nil, fail(invalidParams("config belongs to display %d", cfg.d.id))
	}
	if !cfg.alive || d.configs[cfg.id] != cfg {
		return nil, fail(invalidParams("config %d: %w", cfg.id, ErrDestroyed))
	}
	if err := checkDimensions(width, height); err != nil {
		return nil, fail(err)
	}
	if a, ok := cfg.Attribute(ConfigAttribMaxPictureWidth); ok && a.Value > 0 && width > a.Value {
		return nil, fail(invalidParams("width %d exceeds the config maximum %d", width, a.Value))
	}
	if a, ok := cfg.Attribute(ConfigAttribMaxPictureHeight); ok && a.Value > 0 && height > a.Value {
		return nil, fail(invalidParams("height %d exceeds the config maximum %d", height, a.Value))
	}

	ids := make([]native.SurfaceID, 0, len(targets))
	for i, s := range targets {
		if err := s.checkLocked(d, "create context"); err != nil {
			return nil, fail(invalidParams("render target %d: %w", i, err))
		}
		if slices.Contains(targets[:i], s) {
			return nil, fail(invalidParams("surface %d given twice", s.id))
		}
		if s.boundTo != nil {
			return nil, &ResourceError{Op: "create", Kind: KindSurface, ID: uint32(s.id), Err: ErrAlreadyBound}
		}
		ids = append(ids, s.id)
	}

	var id native.ContextID
	if err := d.call("vaCreateContext", func() native.Status {
		return d.syms.CreateContext(d.raw, cfg.id, int32(width), int32(height), int32(flags), ids, int32(len(ids)), &id)
	}); err != nil {
		return nil, fail(err)
	}

	c := &Context{
		d:          d,
		id:         id,
		profile:    cfg.profile,
		entrypoint: cfg.entrypoint,
		width:      width,
		height:     height,
		alive:      true,
	}
	for _, s := range targets {
		s.boundTo = c
		c.targets = append(c.targets, s)
	}
	d.contexts[id] = c
	d.log.Debug().Uint32("context", uint32(id)).Int("targets", len(targets)).Msg("context created")
	return c, nil
}

func (c *Context) fail(op string, err error) error {
	return &ResourceError{Op: op, Kind: KindContext, ID: uint32(c.id), Err: err}
}

func (c *Context) checkLocked(d *Display, op string) error {
	if c == nil {
		return &ResourceError{Op: op, Kind: KindContext, ID: native.InvalidID, Err: invalidParams("nil context")}
	}
	if c.d != d {
		return c.fail(op, invalidParams("context belongs to display %d", c.d.id))
	}
	if !c.alive || d.contexts[c.id] != c {
		return c.fail(op, ErrDestroyed)
	}
	return nil
}

func (c *Context) ID() native.ContextID   { return c.id }
func (c *Context) Display() *Display      { return c.d }
func (c *Context) Profile() Profile       { return c.profile }
func (c *Context) Entrypoint() Entrypoint { return c.entrypoint }
func (c *Context) Width() uint32          { return c.width }
func (c *Context) Height() uint32         { return c.height }

// Targets returns the surfaces currently bound to the context.
func (c *Context) Targets() []*Surface {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	return slices.Clone(c.targets)
}

// Bind makes s a render target of c. Binding a surface that is already bound
// to c does nothing.
func (c *Context) Bind(s *Surface) error {
	d := c.d
	if err := d.lock("bind surface"); err != nil {
		return err
	}
	defer d.mu.Unlock()
	if err := c.checkLocked(d, "bind"); err != nil {
		return err
	}
	if err := s.checkLocked(d, "bind"); err != nil {
		return err
	}
	return c.bindLocked(s)
}

func (c *Context) bindLocked(s *Surface) error {
	switch s.boundTo {
	case c:
		return nil
	case nil:
		s.boundTo = c
		c.targets = append(c.targets, s)
		return nil
	default:
		return s.fail("bind", ErrAlreadyBound)
	}
}

// Unbind releases s from c. A surface targeted by the picture in progress
// stays bound.
func (c *Context) Unbind(s *Surface) error {
	d := c.d
	if err := d.lock("unbind surface"); err != nil {
		return err
	}
	defer d.mu.Unlock()
	if err := c.checkLocked(d, "unbind"); err != nil {
		return err
	}
	if err := s.checkLocked(d, "unbind"); err != nil {
		return err
	}
	if s.boundTo != c {
		return s.fail("unbind", invalidState("not a render target of context %d", c.id))
	}
	if c.picture != nil && c.picture.target == s {
		return s.fail("unbind", invalidState("picture in progress"))
	}
	c.removeTarget(s)
	return nil
}

func (c *Context) removeTarget(s *Surface) {
	c.targets = slices.DeleteFunc(c.targets, func(t *Surface) bool { return t == s })
	if s.boundTo == c {
		s.boundTo = nil
	}
}

// Picture is one BeginPicture/EndPicture sequence on a context.
type Picture struct {
	c      *Context
	target *Surface
	done   bool
}

// BeginPicture starts a picture rendering into target, binding it first when
// it is unbound. Only one picture may be in progress per context.
func (c *Context) BeginPicture(target *Surface) (*Picture, error) {
	d := c.d
	if err := d.lock("begin picture"); err != nil {
		return nil, err
	}
	defer d.mu.Unlock()
	if err := c.checkLocked(d, "begin picture"); err != nil {
		return nil, err
	}
	if err := target.checkLocked(d, "begin picture"); err != nil {
		return nil, err
	}
	if c.picture != nil {
		return nil, c.fail("begin picture", invalidState("picture already in progress"))
	}
	if err := c.bindLocked(target); err != nil {
		return nil, err
	}
	if err := d.call("vaBeginPicture", func() native.Status {
		return d.syms.BeginPicture(d.raw, c.id, target.id)
	}); err != nil {
		return nil, c.fail("begin picture", err)
	}
	c.picture = &Picture{c: c, target: target}
	return c.picture, nil
}

func (p *Picture) checkLocked(op string) error {
	c := p.c
	if err := c.checkLocked(c.d, op); err != nil {
		return err
	}
	if p.done || c.picture != p {
		return c.fail(op, invalidState("picture already ended"))
	}
	return nil
}

// Target returns the surface the picture renders into.
func (p *Picture) Target() *Surface { return p.target }

// Render submits bufs. Every buffer must be Filled and belong to the picture's
// context; otherwise nothing is submitted and no buffer changes state.
func (p *Picture) Render(bufs ...*Buffer) error {
	c := p.c
	d := c.d
	if err := d.lock("render picture"); err != nil {
		return err
	}
	defer d.mu.Unlock()
	if err := p.checkLocked("render"); err != nil {
		return err
	}
	if len(bufs) == 0 {
		return c.fail("render", invalidParams("no buffers"))
	}
	ids := make([]native.BufferID, 0, len(bufs))
	for i, b := range bufs {
		if err := b.checkLocked(d, "render"); err != nil {
			return err
		}
		if b.ctx != c {
			return b.fail("render", invalidParams("buffer belongs to context %d", b.ctx.id))
		}
		if slices.Contains(bufs[:i], b) {
			return b.fail("render", invalidParams("buffer given twice"))
		}
		if b.state != BufferFilled {
			return b.fail("render", invalidState("buffer is %s, want %s", b.state, BufferFilled))
		}
		ids = append(ids, b.id)
	}
	if err := d.call("vaRenderPicture", func() native.Status {
		return d.syms.RenderPicture(d.raw, c.id, ids, int32(len(ids)))
	}); err != nil {
		return c.fail("render", err)
	}
	for _, b := range bufs {
		b.state = BufferSubmitted
	}
	return nil
}

// End finishes the picture and hands it to the driver.
func (p *Picture) End() error {
	c := p.c
	d := c.d
	if err := d.lock("end picture"); err != nil {
		return err
	}
	defer d.mu.Unlock()
	if err := p.checkLocked("end picture"); err != nil {
		return err
	}
	p.done = true
	c.picture = nil
	if err := d.call("vaEndPicture", func() native.Status {
		return d.syms.EndPicture(d.raw, c.id)
	}); err != nil {
		return c.fail("end picture", err)
	}
	return nil
}

// Destroy destroys the context's remaining buffers, unbinds its render targets
// and releases the context. It fails while a picture is in progress.
func (c *Context) Destroy() error {
	d := c.d
	if err := d.lock("destroy context"); err != nil {
		return err
	}
	defer d.mu.Unlock()
	if err := c.checkLocked(d, "destroy"); err != nil {
		return err
	}
	if c.picture != nil {
		return c.fail("destroy", invalidState("picture in progress"))
	}
	for _, b := range d.buffers {
		if b.ctx == c {
			d.ignore("vaDestroyBuffer", b.destroyLocked())
		}
	}
	return c.destroyLocked()
}

// destroyLocked releases the context itself. Display.Close reaches it with
// buffers already gone and possibly a picture still open.
func (c *Context) destroyLocked() error {
	d := c.d
	if c.picture != nil {
		c.picture.done = true
		c.picture = nil
	}
	for _, s := range slices.Clone(c.targets) {
		c.removeTarget(s)
	}
	c.alive = false
	delete(d.contexts, c.id)
	if err := d.call("vaDestroyContext", func() native.Status {
		return d.syms.DestroyContext(d.raw, c.id)
	}); err != nil {
		return c.fail("destroy", err)
	}
	return nil
}
