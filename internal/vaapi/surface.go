package vaapi

import "github.com/bryanchriswhite/VAProbe/internal/vaapi/native"

// MaxDimension bounds every width and height accepted by the create calls.
const MaxDimension = 16384

// maxSurfacesPerCall bounds CreateSurfaces batches.
const maxSurfacesPerCall = 64

// Surface is a driver-side picture of fixed format and size. It is bound as a
// render target to at most one Context at a time.
type Surface struct {
	d       *Display
	id      native.SurfaceID
	format  RTFormat
	width   uint32
	height  uint32
	alive   bool
	boundTo *Context
}

func checkDimensions(w, h uint32) error {
	if w == 0 || h == 0 || w > MaxDimension || h > MaxDimension {
		return invalidParams("dimensions %dx%d outside 1..%d", w, h, MaxDimension)
	}
	return nil
}

// CreateSurface creates one surface.
func (d *Display) CreateSurface(format RTFormat, width, height uint32, hints ...SurfaceHint) (*Surface, error) {
	surfaces, err := d.CreateSurfaces(format, width, height, 1, hints...)
	if err != nil {
		return nil, err
	}
	return surfaces[0], nil
}

// CreateSurfaces creates count surfaces of the same format and size.
func (d *Display) CreateSurfaces(format RTFormat, width, height uint32, count int, hints ...SurfaceHint) ([]*Surface, error) {
	fail := func(err error) error {
		return &ResourceError{Op: "create", Kind: KindSurface, ID: native.InvalidID, Err: err}
	}
	if err := d.lock("create surfaces"); err != nil {
		return nil, err
	}
	defer d.mu.Unlock()

	if err := checkDimensions(width, height); err != nil {
		return nil, fail(err)
	}
	if count < 1 || count > maxSurfacesPerCall {
		return nil, fail(invalidParams("surface count %d outside 1..%d", count, maxSurfacesPerCall))
	}
	if !format.IsKnown() || !format.single() {
		return nil, fail(invalidParams("render target format %s", format))
	}
	attribs := make([]native.SurfaceAttrib, 0, len(hints))
	for _, h := range hints {
		if !h.Type.IsKnown() || h.Type == SurfaceAttribNone {
			return nil, fail(invalidParams("surface attribute %s", h.Type))
		}
		if h.Type == SurfaceAttribPixelFormat {
			want := FourCC(uint32(h.Value)).RTFormat()
			if want != 0 && want != format&^RTFormatProtected {
				return nil, fail(invalidParams("pixel format %s needs %s, not %s", FourCC(uint32(h.Value)), want, format))
			}
		}
		attribs = append(attribs, h.native())
	}

	ids := make([]native.SurfaceID, count)
	if err := d.call("vaCreateSurfaces", func() native.Status {
		return d.syms.CreateSurfaces(d.raw, uint32(format), width, height, ids, uint32(count), attribs, uint32(len(attribs)))
	}); err != nil {
		return nil, fail(err)
	}

	out := make([]*Surface, count)
	for i, id := range ids {
		s := &Surface{d: d, id: id, format: format, width: width, height: height, alive: true}
		d.surfaces[id] = s
		out[i] = s
	}
	return out, nil
}

func (s *Surface) fail(op string, err error) error {
	return &ResourceError{Op: op, Kind: KindSurface, ID: uint32(s.id), Err: err}
}

// checkLocked validates s for use on d by op. The caller holds d.mu.
func (s *Surface) checkLocked(d *Display, op string) error {
	if s == nil {
		return &ResourceError{Op: op, Kind: KindSurface, ID: native.InvalidID, Err: invalidParams("nil surface")}
	}
	if s.d != d {
		return s.fail(op, invalidParams("surface belongs to display %d", s.d.id))
	}
	if !s.alive || d.surfaces[s.id] != s {
		return s.fail(op, ErrDestroyed)
	}
	return nil
}

func (s *Surface) ID() native.SurfaceID { return s.id }
func (s *Surface) Display() *Display    { return s.d }
func (s *Surface) Format() RTFormat     { return s.format }
func (s *Surface) Width() uint32        { return s.width }
func (s *Surface) Height() uint32       { return s.height }

// BoundTo returns the context the surface is a render target of, or nil.
func (s *Surface) BoundTo() *Context {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return s.boundTo
}

// Sync blocks until all pending operations on the surface have completed.
func (s *Surface) Sync() error {
	d := s.d
	if err := d.lock("sync surface"); err != nil {
		return err
	}
	defer d.mu.Unlock()
	if err := s.checkLocked(d, "sync"); err != nil {
		return err
	}
	if err := d.call("vaSyncSurface", func() native.Status {
		return d.syms.SyncSurface(d.raw, s.id)
	}); err != nil {
		return s.fail("sync", err)
	}
	return nil
}

// Status reports whether the surface is still being rendered.
func (s *Surface) Status() (SurfaceStatus, error) {
	d := s.d
	if err := d.lock("query surface status"); err != nil {
		return 0, err
	}
	defer d.mu.Unlock()
	if err := s.checkLocked(d, "status"); err != nil {
		return 0, err
	}
	var st int32
	if err := d.call("vaQuerySurfaceStatus", func() native.Status {
		return d.syms.QuerySurfaceStatus(d.raw, s.id, &st)
	}); err != nil {
		return 0, s.fail("status", err)
	}
	return SurfaceStatus(st), nil
}

// PutImage uploads img into the surface, starting at the top left corner.
func (s *Surface) PutImage(img *Image) error {
	d := s.d
	if err := d.lock("put image"); err != nil {
		return err
	}
	defer d.mu.Unlock()
	if err := s.checkLocked(d, "put image"); err != nil {
		return err
	}
	if err := img.checkTransferLocked(d, "put image"); err != nil {
		return err
	}
	w := min(uint32(img.raw.Width), s.width)
	h := min(uint32(img.raw.Height), s.height)
	if err := d.call("vaPutImage", func() native.Status {
		return d.syms.PutImage(d.raw, s.id, img.id, 0, 0, w, h, 0, 0, w, h)
	}); err != nil {
		return s.fail("put image", err)
	}
	return nil
}

// GetImage downloads the surface into img.
func (s *Surface) GetImage(img *Image) error {
	d := s.d
	if err := d.lock("get image"); err != nil {
		return err
	}
	defer d.mu.Unlock()
	if err := s.checkLocked(d, "get image"); err != nil {
		return err
	}
	if err := img.checkTransferLocked(d, "get image"); err != nil {
		return err
	}
	return s.getImageLocked(img)
}

func (s *Surface) getImageLocked(img *Image) error {
	d := s.d
	w := min(uint32(img.raw.Width), s.width)
	h := min(uint32(img.raw.Height), s.height)
	if err := d.call("vaGetImage", func() native.Status {
		return d.syms.GetImage(d.raw, s.id, 0, 0, w, h, img.id)
	}); err != nil {
		return s.fail("get image", err)
	}
	return nil
}

// DeriveImage maps the surface's own storage as an image, without a copy.
// Not every driver and format supports this.
func (s *Surface) DeriveImage() (*Image, error) {
	d := s.d
	if err := d.lock("derive image"); err != nil {
		return nil, err
	}
	defer d.mu.Unlock()
	if err := s.checkLocked(d, "derive image"); err != nil {
		return nil, err
	}
	return s.deriveLocked()
}

func (s *Surface) deriveLocked() (*Image, error) {
	d := s.d
	var raw native.Image
	if err := d.call("vaDeriveImage", func() native.Status {
		return d.syms.DeriveImage(d.raw, s.id, &raw)
	}); err != nil {
		return nil, s.fail("derive image", err)
	}
	return d.trackImageLocked(raw, s), nil
}

// Readback returns an image holding the surface's pixels in format. It derives
// the image when the driver allows it and falls back to copying into a new
// image. derived reports which path was taken. The caller destroys the image.
func (s *Surface) Readback(format FourCC) (img *Image, derived bool, err error) {
	d := s.d
	if err := d.lock("readback"); err != nil {
		return nil, false, err
	}
	defer d.mu.Unlock()
	if err := s.checkLocked(d, "readback"); err != nil {
		return nil, false, err
	}

	img, err = s.deriveLocked()
	switch {
	case err == nil && img.format.FourCC == format:
		return img, true, nil
	case err == nil:
		d.log.Debug().
			Stringer("derived", img.format.FourCC).
			Stringer("wanted", format).
			Msg("derived image has a different format, copying instead")
		d.ignore("vaDestroyImage", img.destroyLocked())
	default:
		st, _ := StatusOf(err)
		if st != native.StatusOperationFailed && st != native.StatusUnimplemented && st != native.StatusInvalidImageFormat {
			return nil, false, err
		}
	}

	img, err = d.createImageLocked(NewImageFormat(format), s.width, s.height)
	if err != nil {
		return nil, false, err
	}
	if err := s.getImageLocked(img); err != nil {
		d.ignore("vaDestroyImage", img.destroyLocked())
		return nil, false, err
	}
	return img, false, nil
}

// Destroy releases the surface. A surface that is still a render target of a
// live context cannot be destroyed; unbind it or destroy the context first.
func (s *Surface) Destroy() error {
	d := s.d
	if err := d.lock("destroy surface"); err != nil {
		return err
	}
	defer d.mu.Unlock()
	if err := s.checkLocked(d, "destroy"); err != nil {
		return err
	}
	if s.boundTo != nil {
		return s.fail("destroy", invalidState("render target of context %d", s.boundTo.id))
	}
	for _, img := range d.images {
		if img.derivedFrom == s {
			return s.fail("destroy", invalidState("image %d is derived from this surface", img.id))
		}
	}
	return s.destroyLocked()
}

func (s *Surface) destroyLocked() error {
	d := s.d
	if s.boundTo != nil {
		s.boundTo.removeTarget(s)
	}
	s.alive = false
	delete(d.surfaces, s.id)
	if err := d.call("vaDestroySurfaces", func() native.Status {
		return d.syms.DestroySurfaces(d.raw, []native.SurfaceID{s.id}, 1)
	}); err != nil {
		return s.fail("destroy", err)
	}
	return nil
}
