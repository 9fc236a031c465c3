package vaapi

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/bryanchriswhite/VAProbe/internal/vaapi/native"
)

// ExportFlags selects access and layer layout for ExportPrime.
type ExportFlags uint32

const (
	ExportReadOnly       = ExportFlags(native.ExportReadOnly)
	ExportWriteOnly      = ExportFlags(native.ExportWriteOnly)
	ExportReadWrite      = ExportFlags(native.ExportReadWrite)
	ExportSeparateLayers = ExportFlags(native.ExportSeparateLayers)
	ExportComposedLayers = ExportFlags(native.ExportComposedLayers)
)

// PrimeObject is one DMA-BUF backing a surface.
type PrimeObject struct {
	FD       int    `json:"fd"`
	Size     uint32 `json:"size"`
	Modifier uint64 `json:"modifier"`
}

// PrimePlane locates one plane of a layer inside an object.
type PrimePlane struct {
	Object int    `json:"object"`
	Offset uint32 `json:"offset"`
	Pitch  uint32 `json:"pitch"`
}

// PrimeLayer is one DRM-format layer of a surface.
type PrimeLayer struct {
	DRMFormat FourCC       `json:"drm_format"`
	Planes    []PrimePlane `json:"planes"`
}

// PrimeDescriptor describes a surface exported as DMA-BUF file descriptors.
// The caller owns the descriptors and releases them with Close.
type PrimeDescriptor struct {
	FourCC  FourCC        `json:"fourcc"`
	Width   uint32        `json:"width"`
	Height  uint32        `json:"height"`
	Objects []PrimeObject `json:"objects"`
	Layers  []PrimeLayer  `json:"layers"`
	closed  bool
}

// Close closes every exported file descriptor. It is safe to call twice.
func (p *PrimeDescriptor) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	var errs []error
	for _, o := range p.Objects {
		if o.FD < 0 {
			continue
		}
		if err := unix.Close(o.FD); err != nil {
			errs = append(errs, fmt.Errorf("close dma-buf fd %d: %w", o.FD, err))
		}
	}
	return errors.Join(errs...)
}

func primeFromNative(n *native.PrimeSurfaceDescriptor) *PrimeDescriptor {
	p := &PrimeDescriptor{FourCC: FourCC(n.FourCC), Width: n.Width, Height: n.Height}
	for _, o := range n.Objects[:min(n.NumObjects, uint32(len(n.Objects)))] {
		p.Objects = append(p.Objects, PrimeObject{FD: int(o.FD), Size: o.Size, Modifier: o.DRMFormatModifier})
	}
	for _, l := range n.Layers[:min(n.NumLayers, uint32(len(n.Layers)))] {
		layer := PrimeLayer{DRMFormat: FourCC(l.DRMFormat)}
		for i := range min(l.NumPlanes, 4) {
			layer.Planes = append(layer.Planes, PrimePlane{
				Object: int(l.ObjectIndex[i]),
				Offset: l.Offset[i],
				Pitch:  l.Pitch[i],
			})
		}
		p.Layers = append(p.Layers, layer)
	}
	return p
}

// ExportPrime exports the surface as DRM PRIME (DMA-BUF) objects. It needs
// vaExportSurfaceHandle, which older libva versions lack.
func (s *Surface) ExportPrime(flags ExportFlags) (*PrimeDescriptor, error) {
	d := s.d
	if err := d.lock("export surface"); err != nil {
		return nil, err
	}
	defer d.mu.Unlock()
	if err := s.checkLocked(d, "export"); err != nil {
		return nil, err
	}
	if d.syms.ExportSurfaceHandle == nil {
		return nil, s.fail("export", ErrUnsupported)
	}
	if flags&ExportReadWrite == 0 {
		return nil, s.fail("export", invalidParams("export flags %#x carry no access mode", uint32(flags)))
	}

	var desc native.PrimeSurfaceDescriptor
	if err := d.call("vaExportSurfaceHandle", func() native.Status {
		return d.syms.ExportSurfaceHandle(d.raw, s.id, native.MemTypeDRMPrime2, uint32(flags), &desc)
	}); err != nil {
		return nil, s.fail("export", err)
	}
	return primeFromNative(&desc), nil
}
