package vaapi

import (
	"unsafe"

	"github.com/bryanchriswhite/VAProbe/internal/vaapi/native"
)

// Image is a CPU-mappable picture buffer, either created directly or derived
// from a surface.
type Image struct {
	d           *Display
	id          native.ImageID
	raw         native.Image
	format      ImageFormat
	alive       bool
	mapping     *Mapping
	derivedFrom *Surface
}

// CreateImage creates an image in one of the formats QueryImageFormats reports.
// Only the FourCC of format is matched; the driver's full description is used.
func (d *Display) CreateImage(format ImageFormat, width, height uint32) (*Image, error) {
	if err := d.lock("create image"); err != nil {
		return nil, err
	}
	defer d.mu.Unlock()
	return d.createImageLocked(format, width, height)
}

func (d *Display) createImageLocked(format ImageFormat, width, height uint32) (*Image, error) {
	fail := func(err error) error {
		return &ResourceError{Op: "create", Kind: KindImage, ID: native.InvalidID, Err: err}
	}
	if err := checkDimensions(width, height); err != nil {
		return nil, fail(err)
	}
	full, ok, err := d.imageFormatLocked(format.FourCC)
	if err != nil {
		return nil, fail(err)
	}
	if !ok {
		return nil, fail(invalidParams("image format %s is not supported by the driver", format.FourCC))
	}

	nf := full.native()
	var raw native.Image
	if err := d.call("vaCreateImage", func() native.Status {
		return d.syms.CreateImage(d.raw, &nf, int32(width), int32(height), &raw)
	}); err != nil {
		return nil, fail(err)
	}
	return d.trackImageLocked(raw, nil), nil
}

func (d *Display) trackImageLocked(raw native.Image, from *Surface) *Image {
	img := &Image{
		d:           d,
		id:          raw.ImageID,
		raw:         raw,
		format:      imageFormatFromNative(raw.Format),
		alive:       true,
		derivedFrom: from,
	}
	d.images[img.id] = img
	return img
}

func (img *Image) fail(op string, err error) error {
	return &ResourceError{Op: op, Kind: KindImage, ID: uint32(img.id), Err: err}
}

func (img *Image) checkLocked(d *Display, op string) error {
	if img == nil {
		return &ResourceError{Op: op, Kind: KindImage, ID: native.InvalidID, Err: invalidParams("nil image")}
	}
	if img.d != d {
		return img.fail(op, invalidParams("image belongs to display %d", img.d.id))
	}
	if !img.alive || d.images[img.id] != img {
		return img.fail(op, ErrDestroyed)
	}
	return nil
}

// checkTransferLocked also refuses mapped images, whose buffer the driver
// cannot touch.
func (img *Image) checkTransferLocked(d *Display, op string) error {
	if err := img.checkLocked(d, op); err != nil {
		return err
	}
	if img.mapping != nil {
		return img.fail(op, invalidState("image is mapped"))
	}
	return nil
}

func (img *Image) ID() native.ImageID   { return img.id }
func (img *Image) Format() ImageFormat  { return img.format }
func (img *Image) Width() uint32        { return uint32(img.raw.Width) }
func (img *Image) Height() uint32       { return uint32(img.raw.Height) }
func (img *Image) DataSize() uint32     { return img.raw.DataSize }
func (img *Image) Derived() bool        { return img.derivedFrom != nil }
func (img *Image) NumPlanes() int       { return int(min(img.raw.NumPlanes, 3)) }

// Pitch returns the row stride of plane, or 0 when the image has no such plane.
func (img *Image) Pitch(plane int) int {
	if plane < 0 || plane >= img.NumPlanes() {
		return 0
	}
	return int(img.raw.Pitches[plane])
}

// Offset returns the byte offset of plane, or 0 when the image has no such plane.
func (img *Image) Offset(plane int) int {
	if plane < 0 || plane >= img.NumPlanes() {
		return 0
	}
	return int(img.raw.Offsets[plane])
}

// Mapping is a CPU view of an image's data. Bytes stays valid until Unmap.
type Mapping struct {
	img  *Image
	data []byte
}

// Map makes the image's pixels addressable. Only one mapping may be open.
func (img *Image) Map() (*Mapping, error) {
	d := img.d
	if err := d.lock("map image"); err != nil {
		return nil, err
	}
	defer d.mu.Unlock()
	if err := img.checkLocked(d, "map"); err != nil {
		return nil, err
	}
	if img.mapping != nil {
		return nil, img.fail("map", invalidState("image is already mapped"))
	}

	var ptr uintptr
	if err := d.call("vaMapBuffer", func() native.Status {
		return d.syms.MapBuffer(d.raw, img.raw.Buf, &ptr)
	}); err != nil {
		return nil, img.fail("map", err)
	}
	if ptr == 0 {
		d.ignore("vaUnmapBuffer", d.call("vaUnmapBuffer", func() native.Status {
			return d.syms.UnmapBuffer(d.raw, img.raw.Buf)
		}))
		return nil, img.fail("map", invalidState("driver mapped a nil pointer"))
	}
	m := &Mapping{img: img, data: unsafe.Slice((*byte)(unsafe.Pointer(ptr)), img.raw.DataSize)}
	img.mapping = m
	return m, nil
}

// Bytes returns the mapped data, or nil once unmapped.
func (m *Mapping) Bytes() []byte { return m.data }

// Unmap releases the mapping. Slices returned by Bytes must not be used afterwards.
func (m *Mapping) Unmap() error {
	img := m.img
	d := img.d
	if err := d.lock("unmap image"); err != nil {
		return err
	}
	defer d.mu.Unlock()
	if err := img.checkLocked(d, "unmap"); err != nil {
		return err
	}
	if img.mapping != m {
		return img.fail("unmap", invalidState("mapping already released"))
	}
	return img.unmapLocked()
}

func (img *Image) unmapLocked() error {
	d := img.d
	img.mapping.data = nil
	img.mapping = nil
	if err := d.call("vaUnmapBuffer", func() native.Status {
		return d.syms.UnmapBuffer(d.raw, img.raw.Buf)
	}); err != nil {
		return img.fail("unmap", err)
	}
	return nil
}

// Destroy releases the image, unmapping it first if needed.
func (img *Image) Destroy() error {
	d := img.d
	if err := d.lock("destroy image"); err != nil {
		return err
	}
	defer d.mu.Unlock()
	if err := img.checkLocked(d, "destroy"); err != nil {
		return err
	}
	return img.destroyLocked()
}

func (img *Image) destroyLocked() error {
	d := img.d
	if img.mapping != nil {
		d.ignore("vaUnmapBuffer", img.unmapLocked())
	}
	img.alive = false
	img.derivedFrom = nil
	delete(d.images, img.id)
	if err := d.call("vaDestroyImage", func() native.Status {
		return d.syms.DestroyImage(d.raw, img.id)
	}); err != nil {
		return img.fail("destroy", err)
	}
	return nil
}
