package fakeva

import (
	"os"
	"slices"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/bryanchriswhite/VAProbe/internal/vaapi/native"
)

const (
	attribRTFormat     = 0
	attribRateControl  = 5
	attribMaxWidth     = 18
	attribMaxHeight    = 19
	rateControlCBR     = 0x2
	rateControlVBR     = 0x4
	surfaceAttribPixel = 1
	surfaceMinWidth    = 2
	surfaceMaxWidth    = 3
	surfaceMinHeight   = 4
	surfaceMaxHeight   = 5
	surfaceReady       = 4
)

type config struct {
	profile, entrypoint int32
	attribs             []native.ConfigAttrib
}

type surface struct {
	rt     uint32
	fourcc uint32
	width  uint32
	height uint32
	data   []byte
}

type context struct {
	config    native.ConfigID
	targets   []native.SurfaceID
	inPicture bool
	target    native.SurfaceID
	rendered  int
}

type buffer struct {
	ctx    native.ContextID
	typ    int32
	data   []byte
	mapped bool
	image  bool
}

type image struct {
	raw     native.Image
	derived bool
}

type display struct {
	initialized bool
	terminated  bool
	driverName  string

	errorCtx, infoCtx uintptr
	errorSet, infoSet bool

	attrs []native.DisplayAttribute

	configs  map[native.ConfigID]*config
	surfaces map[native.SurfaceID]*surface
	contexts map[native.ContextID]*context
	buffers  map[native.BufferID]*buffer
	images   map[native.ImageID]*image
}

func newDisplay() *display {
	return &display{
		attrs: []native.DisplayAttribute{
			{Type: 0, MinValue: -100, MaxValue: 100, Value: 0, Flags: 0x3},
			{Type: 1, MinValue: 0, MaxValue: 200, Value: 100, Flags: 0x3},
			{Type: 21, MinValue: 0, MaxValue: 0x7fffffff, Value: 0x8086, Flags: native.DisplayAttribGettable},
		},
		configs:  make(map[native.ConfigID]*config),
		surfaces: make(map[native.SurfaceID]*surface),
		contexts: make(map[native.ContextID]*context),
		buffers:  make(map[native.BufferID]*buffer),
		images:   make(map[native.ImageID]*image),
	}
}

// Symbols returns the fake's libva function table.
func (d *Driver) Symbols() native.Symbols {
	s := native.Symbols{
		ErrorStr:         func(st native.Status) string { return st.Text() },
		DisplayIsValid:   d.displayIsValid,
		SetDriverName:    d.setDriverName,
		SetErrorCallback: d.setErrorCallback,
		SetInfoCallback:  d.setInfoCallback,

		Initialize:        d.initialize,
		Terminate:         d.terminate,
		QueryVendorString: d.queryVendorString,

		MaxNumProfiles:          func(native.VADisplay) int32 { return 32 },
		MaxNumEntrypoints:       func(native.VADisplay) int32 { return 16 },
		MaxNumConfigAttributes:  func(native.VADisplay) int32 { return 64 },
		MaxNumImageFormats:      func(native.VADisplay) int32 { return int32(len(d.formats)) },
		MaxNumDisplayAttributes: func(native.VADisplay) int32 { return 4 },

		QueryConfigProfiles:    d.queryConfigProfiles,
		QueryConfigEntrypoints: d.queryConfigEntrypoints,
		GetConfigAttributes:    d.getConfigAttributes,
		QueryImageFormats:      d.queryImageFormats,
		QueryDisplayAttributes: d.queryDisplayAttributes,
		SetDisplayAttributes:   d.setDisplayAttributes,

		CreateConfig:           d.createConfig,
		DestroyConfig:          d.destroyConfig,
		QueryConfigAttributes:  d.queryConfigAttributes,
		QuerySurfaceAttributes: d.querySurfaceAttributes,

		CreateSurfaces:     d.createSurfaces,
		DestroySurfaces:    d.destroySurfaces,
		SyncSurface:        d.syncSurface,
		QuerySurfaceStatus: d.querySurfaceStatus,

		CreateContext:  d.createContext,
		DestroyContext: d.destroyContext,

		CreateBuffer:  d.createBuffer,
		MapBuffer:     d.mapBuffer,
		UnmapBuffer:   d.unmapBuffer,
		DestroyBuffer: d.destroyBuffer,

		BeginPicture:  d.beginPicture,
		RenderPicture: d.renderPicture,
		EndPicture:    d.endPicture,

		CreateImage:  d.createImage,
		DestroyImage: d.destroyImage,
		DeriveImage:  d.deriveImage,
		GetImage:     d.getImage,
		PutImage:     d.putImage,
	}
	if !d.noOptional {
		s.ExportSurfaceHandle = d.exportSurfaceHandle
		s.SyncBuffer = d.syncBuffer
	}
	return s
}

// enter locks the driver, records fn and resolves dpy to a usable display.
// When st is not success the caller returns it; the caller always unlocks.
func (d *Driver) enter(fn string, dpy native.VADisplay) (*display, native.Status) {
	d.mu.Lock()
	if st := d.begin(fn); st != native.StatusSuccess {
		return nil, st
	}
	s, ok := d.displays[dpy]
	if !ok || s.terminated {
		return nil, native.StatusInvalidDisplay
	}
	return s, native.StatusSuccess
}

// enterInit is enter for calls that need vaInitialize to have run.
func (d *Driver) enterInit(fn string, dpy native.VADisplay) (*display, native.Status) {
	s, st := d.enter(fn, dpy)
	if st == native.StatusSuccess && !s.initialized {
		return nil, native.StatusInvalidDisplay
	}
	return s, st
}

func (d *Driver) displayIsValid(dpy native.VADisplay) int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.displays[dpy]; ok {
		return 1
	}
	return 0
}

func (d *Driver) setDriverName(dpy native.VADisplay, name string) native.Status {
	s, st := d.enter("vaSetDriverName", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	if name == "" {
		return native.StatusInvalidParameter
	}
	s.driverName = name
	return native.StatusSuccess
}

func (d *Driver) setErrorCallback(dpy native.VADisplay, _ uintptr, userCtx uintptr) uintptr {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "vaSetErrorCallback")
	if s, ok := d.displays[dpy]; ok {
		s.errorCtx, s.errorSet = userCtx, true
	}
	return 0
}

func (d *Driver) setInfoCallback(dpy native.VADisplay, _ uintptr, userCtx uintptr) uintptr {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "vaSetInfoCallback")
	if s, ok := d.displays[dpy]; ok {
		s.infoCtx, s.infoSet = userCtx, true
	}
	return 0
}

func (d *Driver) initialize(dpy native.VADisplay, major, minor *int32) native.Status {
	s, st := d.enter("vaInitialize", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	s.initialized = true
	*major, *minor = d.major, d.minor
	return native.StatusSuccess
}

func (d *Driver) terminate(dpy native.VADisplay) native.Status {
	s, st := d.enter("vaTerminate", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	s.terminated = true
	return native.StatusSuccess
}

func (d *Driver) queryVendorString(dpy native.VADisplay) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "vaQueryVendorString")
	return d.vendor
}

func (d *Driver) findProfile(p int32) (profileEntry, bool) {
	for _, e := range d.profiles {
		if e.profile == p {
			return e, true
		}
	}
	return profileEntry{}, false
}

func (d *Driver) supports(p, e int32) native.Status {
	pe, ok := d.findProfile(p)
	if !ok {
		return native.StatusUnsupportedProfile
	}
	if !slices.Contains(pe.entrypoints, e) {
		return native.StatusUnsupportedEntrypoint
	}
	return native.StatusSuccess
}

func (d *Driver) queryConfigProfiles(dpy native.VADisplay, list []int32, num *int32) native.Status {
	_, st := d.enterInit("vaQueryConfigProfiles", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	n := 0
	for _, e := range d.profiles {
		if n == len(list) {
			break
		}
		list[n] = e.profile
		n++
	}
	*num = int32(n)
	return native.StatusSuccess
}

func (d *Driver) queryConfigEntrypoints(dpy native.VADisplay, profile int32, list []int32, num *int32) native.Status {
	_, st := d.enterInit("vaQueryConfigEntrypoints", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	pe, ok := d.findProfile(profile)
	if !ok {
		return native.StatusUnsupportedProfile
	}
	*num = int32(copy(list, pe.entrypoints))
	return native.StatusSuccess
}

// attribValue is what the driver supports for one attribute of a pair.
func (d *Driver) attribValue(entrypoint, typ int32) uint32 {
	switch typ {
	case attribRTFormat:
		return rtYUV420 | rtRGB32
	case attribMaxWidth:
		return d.maxWidth
	case attribMaxHeight:
		return d.maxHeight
	case attribRateControl:
		if entrypoint == entrypointEnc {
			return rateControlCBR | rateControlVBR
		}
	}
	return native.AttribNotSupported
}

func (d *Driver) getConfigAttributes(dpy native.VADisplay, profile, entrypoint int32, list []native.ConfigAttrib, num int32) native.Status {
	_, st := d.enterInit("vaGetConfigAttributes", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	if st := d.supports(profile, entrypoint); st != native.StatusSuccess {
		return st
	}
	for i := range list[:min(int(num), len(list))] {
		list[i].Value = d.attribValue(entrypoint, list[i].Type)
	}
	return native.StatusSuccess
}

func (d *Driver) queryImageFormats(dpy native.VADisplay, list []native.ImageFormat, num *int32) native.Status {
	_, st := d.enterInit("vaQueryImageFormats", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	*num = int32(copy(list, d.formats))
	return native.StatusSuccess
}

func (d *Driver) queryDisplayAttributes(dpy native.VADisplay, list []native.DisplayAttribute, num *int32) native.Status {
	s, st := d.enterInit("vaQueryDisplayAttributes", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	*num = int32(copy(list, s.attrs))
	return native.StatusSuccess
}

func (d *Driver) setDisplayAttributes(dpy native.VADisplay, list []native.DisplayAttribute, num int32) native.Status {
	s, st := d.enterInit("vaSetDisplayAttributes", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	for _, a := range list[:min(int(num), len(list))] {
		i := slices.IndexFunc(s.attrs, func(x native.DisplayAttribute) bool { return x.Type == a.Type })
		if i < 0 || s.attrs[i].Flags&native.DisplayAttribSettable == 0 {
			return native.StatusAttrNotSupported
		}
		if a.Value < s.attrs[i].MinValue || a.Value > s.attrs[i].MaxValue {
			return native.StatusInvalidParameter
		}
		s.attrs[i].Value = a.Value
	}
	return native.StatusSuccess
}

func (d *Driver) createConfig(dpy native.VADisplay, profile, entrypoint int32, attribs []native.ConfigAttrib, num int32, out *native.ConfigID) native.Status {
	s, st := d.enterInit("vaCreateConfig", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	if st := d.supports(profile, entrypoint); st != native.StatusSuccess {
		return st
	}
	c := &config{profile: profile, entrypoint: entrypoint}
	for _, typ := range []int32{attribRTFormat, attribMaxWidth, attribMaxHeight} {
		c.attribs = append(c.attribs, native.ConfigAttrib{Type: typ, Value: d.attribValue(entrypoint, typ)})
	}
	for _, a := range attribs[:min(int(num), len(attribs))] {
		supported := d.attribValue(entrypoint, a.Type)
		if supported == native.AttribNotSupported {
			return native.StatusAttrNotSupported
		}
		i := slices.IndexFunc(c.attribs, func(x native.ConfigAttrib) bool { return x.Type == a.Type })
		if i < 0 {
			c.attribs = append(c.attribs, a)
		} else {
			c.attribs[i].Value = a.Value
		}
	}
	id := native.ConfigID(d.id())
	s.configs[id] = c
	*out = id
	return native.StatusSuccess
}

func (d *Driver) destroyConfig(dpy native.VADisplay, id native.ConfigID) native.Status {
	s, st := d.enterInit("vaDestroyConfig", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	if _, ok := s.configs[id]; !ok {
		return native.StatusInvalidConfig
	}
	delete(s.configs, id)
	return native.StatusSuccess
}

func (d *Driver) queryConfigAttributes(dpy native.VADisplay, id native.ConfigID, profile, entrypoint *int32, list []native.ConfigAttrib, num *int32) native.Status {
	s, st := d.enterInit("vaQueryConfigAttributes", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	c, ok := s.configs[id]
	if !ok {
		return native.StatusInvalidConfig
	}
	*profile, *entrypoint = c.profile, c.entrypoint
	*num = int32(copy(list, c.attribs))
	return native.StatusSuccess
}

func (d *Driver) surfaceAttribs() []native.SurfaceAttrib {
	attr := func(typ int32, flags uint32, v int32) native.SurfaceAttrib {
		a := native.SurfaceAttrib{Type: typ, Flags: flags}
		a.Value.SetInt(v)
		return a
	}
	var out []native.SurfaceAttrib
	for _, f := range d.formats {
		out = append(out, attr(surfaceAttribPixel, native.SurfaceAttribGettable|native.SurfaceAttribSettable, int32(f.FourCC)))
	}
	return append(out,
		attr(surfaceMinWidth, native.SurfaceAttribGettable, 1),
		attr(surfaceMaxWidth, native.SurfaceAttribGettable, int32(d.maxWidth)),
		attr(surfaceMinHeight, native.SurfaceAttribGettable, 1),
		attr(surfaceMaxHeight, native.SurfaceAttribGettable, int32(d.maxHeight)),
	)
}

func (d *Driver) querySurfaceAttributes(dpy native.VADisplay, id native.ConfigID, list []native.SurfaceAttrib, num *uint32) native.Status {
	s, st := d.enterInit("vaQuerySurfaceAttributes", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	if _, ok := s.configs[id]; !ok {
		return native.StatusInvalidConfig
	}
	attrs := d.surfaceAttribs()
	if list == nil {
		*num = uint32(len(attrs))
		return native.StatusSuccess
	}
	if int(*num) < len(attrs) {
		*num = uint32(len(attrs))
		return native.StatusMaxNumExceeded
	}
	*num = uint32(copy(list, attrs))
	return native.StatusSuccess
}

func (d *Driver) hasFormat(fcc uint32) bool {
	return slices.ContainsFunc(d.formats, func(f native.ImageFormat) bool { return f.FourCC == fcc })
}

func (d *Driver) createSurfaces(dpy native.VADisplay, format, width, height uint32, out []native.SurfaceID, num uint32, attribs []native.SurfaceAttrib, numAttribs uint32) native.Status {
	s, st := d.enterInit("vaCreateSurfaces", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	var fcc uint32
	switch format {
	case rtYUV420:
		fcc = FourCCNV12
	case rtRGB32:
		fcc = FourCCBGRA
	default:
		return native.StatusUnsupportedRTFormat
	}
	if width > d.maxWidth || height > d.maxHeight {
		return native.StatusResolutionNotSupported
	}
	for _, a := range attribs[:min(int(numAttribs), len(attribs))] {
		if a.Type == surfaceAttribPixel {
			want := uint32(a.Value.Int())
			if !d.hasFormat(want) {
				return native.StatusInvalidImageFormat
			}
			fcc = want
		}
	}
	l, ok := layoutOf(fcc, width, height)
	if !ok {
		return native.StatusInvalidImageFormat
	}
	for i := range out[:min(int(num), len(out))] {
		id := native.SurfaceID(d.id())
		s.surfaces[id] = &surface{rt: format, fourcc: fcc, width: width, height: height, data: make([]byte, l.size)}
		out[i] = id
	}
	return native.StatusSuccess
}

func (d *Driver) destroySurfaces(dpy native.VADisplay, ids []native.SurfaceID, num int32) native.Status {
	s, st := d.enterInit("vaDestroySurfaces", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	ids = ids[:min(int(num), len(ids))]
	for _, id := range ids {
		if _, ok := s.surfaces[id]; !ok {
			return native.StatusInvalidSurface
		}
	}
	for _, id := range ids {
		delete(s.surfaces, id)
	}
	return native.StatusSuccess
}

func (d *Driver) syncSurface(dpy native.VADisplay, id native.SurfaceID) native.Status {
	s, st := d.enterInit("vaSyncSurface", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	if _, ok := s.surfaces[id]; !ok {
		return native.StatusInvalidSurface
	}
	return native.StatusSuccess
}

func (d *Driver) querySurfaceStatus(dpy native.VADisplay, id native.SurfaceID, status *int32) native.Status {
	s, st := d.enterInit("vaQuerySurfaceStatus", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	if _, ok := s.surfaces[id]; !ok {
		return native.StatusInvalidSurface
	}
	*status = surfaceReady
	return native.StatusSuccess
}

// exportSurfaceHandle hands out duplicates of /dev/null as DMA-BUF stand-ins,
// so callers can close them like real exported fds.
func (d *Driver) exportSurfaceHandle(dpy native.VADisplay, id native.SurfaceID, memType, flags uint32, desc *native.PrimeSurfaceDescriptor) native.Status {
	s, st := d.enterInit("vaExportSurfaceHandle", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	surf, ok := s.surfaces[id]
	if !ok {
		return native.StatusInvalidSurface
	}
	if memType != native.MemTypeDRMPrime2 {
		return native.StatusUnsupportedMemoryType
	}
	null, err := os.Open(os.DevNull)
	if err != nil {
		return native.StatusAllocationFailed
	}
	defer null.Close()
	fd, err := unix.Dup(int(null.Fd()))
	if err != nil {
		return native.StatusAllocationFailed
	}

	l, _ := layoutOf(surf.fourcc, surf.width, surf.height)
	*desc = native.PrimeSurfaceDescriptor{
		FourCC:     surf.fourcc,
		Width:      surf.width,
		Height:     surf.height,
		NumObjects: 1,
		NumLayers:  1,
	}
	desc.Objects[0] = native.PrimeObject{FD: int32(fd), Size: l.size}
	desc.Layers[0] = native.PrimeLayer{DRMFormat: surf.fourcc, NumPlanes: l.numPlanes}
	for i := range l.numPlanes {
		desc.Layers[0].Offset[i] = l.offsets[i]
		desc.Layers[0].Pitch[i] = l.pitches[i]
	}
	return native.StatusSuccess
}

func (d *Driver) createContext(dpy native.VADisplay, cfg native.ConfigID, width, height, _ int32, targets []native.SurfaceID, num int32, out *native.ContextID) native.Status {
	s, st := d.enterInit("vaCreateContext", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	if _, ok := s.configs[cfg]; !ok {
		return native.StatusInvalidConfig
	}
	if width <= 0 || height <= 0 || uint32(width) > d.maxWidth || uint32(height) > d.maxHeight {
		return native.StatusResolutionNotSupported
	}
	targets = targets[:min(int(num), len(targets))]
	for _, t := range targets {
		if _, ok := s.surfaces[t]; !ok {
			return native.StatusInvalidSurface
		}
	}
	id := native.ContextID(d.id())
	s.contexts[id] = &context{config: cfg, targets: slices.Clone(targets)}
	*out = id
	return native.StatusSuccess
}

func (d *Driver) destroyContext(dpy native.VADisplay, id native.ContextID) native.Status {
	s, st := d.enterInit("vaDestroyContext", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	if _, ok := s.contexts[id]; !ok {
		return native.StatusInvalidContext
	}
	delete(s.contexts, id)
	return native.StatusSuccess
}

func (d *Driver) createBuffer(dpy native.VADisplay, ctx native.ContextID, typ int32, size, num uint32, data unsafe.Pointer, out *native.BufferID) native.Status {
	s, st := d.enterInit("vaCreateBuffer", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	if _, ok := s.contexts[ctx]; !ok {
		return native.StatusInvalidContext
	}
	if size == 0 || num == 0 {
		return native.StatusInvalidParameter
	}
	b := &buffer{ctx: ctx, typ: typ, data: make([]byte, int(size)*int(num))}
	if data != nil {
		copy(b.data, unsafe.Slice((*byte)(data), len(b.data)))
	}
	id := native.BufferID(d.id())
	s.buffers[id] = b
	*out = id
	return native.StatusSuccess
}

func (d *Driver) mapBuffer(dpy native.VADisplay, id native.BufferID, out *uintptr) native.Status {
	s, st := d.enterInit("vaMapBuffer", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	b, ok := s.buffers[id]
	if !ok {
		return native.StatusInvalidBuffer
	}
	b.mapped = true
	*out = uintptr(unsafe.Pointer(unsafe.SliceData(b.data)))
	return native.StatusSuccess
}

func (d *Driver) unmapBuffer(dpy native.VADisplay, id native.BufferID) native.Status {
	s, st := d.enterInit("vaUnmapBuffer", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	b, ok := s.buffers[id]
	if !ok {
		return native.StatusInvalidBuffer
	}
	if !b.mapped {
		return native.StatusOperationFailed
	}
	b.mapped = false
	return native.StatusSuccess
}

func (d *Driver) destroyBuffer(dpy native.VADisplay, id native.BufferID) native.Status {
	s, st := d.enterInit("vaDestroyBuffer", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	b, ok := s.buffers[id]
	if !ok || b.image {
		return native.StatusInvalidBuffer
	}
	delete(s.buffers, id)
	return native.StatusSuccess
}

func (d *Driver) syncBuffer(dpy native.VADisplay, id native.BufferID, _ uint64) native.Status {
	s, st := d.enterInit("vaSyncBuffer", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	if _, ok := s.buffers[id]; !ok {
		return native.StatusInvalidBuffer
	}
	return native.StatusSuccess
}

func (d *Driver) beginPicture(dpy native.VADisplay, ctx native.ContextID, target native.SurfaceID) native.Status {
	s, st := d.enterInit("vaBeginPicture", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	c, ok := s.contexts[ctx]
	if !ok {
		return native.StatusInvalidContext
	}
	if _, ok := s.surfaces[target]; !ok {
		return native.StatusInvalidSurface
	}
	if c.inPicture {
		return native.StatusOperationFailed
	}
	c.inPicture, c.target = true, target
	return native.StatusSuccess
}

func (d *Driver) renderPicture(dpy native.VADisplay, ctx native.ContextID, bufs []native.BufferID, num int32) native.Status {
	s, st := d.enterInit("vaRenderPicture", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	c, ok := s.contexts[ctx]
	if !ok {
		return native.StatusInvalidContext
	}
	if !c.inPicture {
		return native.StatusOperationFailed
	}
	bufs = bufs[:min(int(num), len(bufs))]
	for _, id := range bufs {
		b, ok := s.buffers[id]
		if !ok || b.ctx != ctx {
			return native.StatusInvalidBuffer
		}
	}
	c.rendered += len(bufs)
	return native.StatusSuccess
}

func (d *Driver) endPicture(dpy native.VADisplay, ctx native.ContextID) native.Status {
	s, st := d.enterInit("vaEndPicture", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	c, ok := s.contexts[ctx]
	if !ok {
		return native.StatusInvalidContext
	}
	if !c.inPicture {
		return native.StatusOperationFailed
	}
	c.inPicture = false
	return native.StatusSuccess
}

// trackImage registers an image whose pixels live in data.
func (d *Driver) trackImage(s *display, format native.ImageFormat, w, h uint32, l layout, data []byte, derived bool) native.Image {
	bufID := native.BufferID(d.id())
	s.buffers[bufID] = &buffer{typ: 9, data: data, image: true}
	raw := native.Image{
		ImageID:   native.ImageID(d.id()),
		Format:    format,
		Buf:       bufID,
		Width:     uint16(w),
		Height:    uint16(h),
		DataSize:  l.size,
		NumPlanes: l.numPlanes,
		Pitches:   l.pitches,
		Offsets:   l.offsets,
	}
	s.images[raw.ImageID] = &image{raw: raw, derived: derived}
	return raw
}

func (d *Driver) createImage(dpy native.VADisplay, format *native.ImageFormat, width, height int32, out *native.Image) native.Status {
	s, st := d.enterInit("vaCreateImage", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	i := slices.IndexFunc(d.formats, func(f native.ImageFormat) bool { return f.FourCC == format.FourCC })
	if i < 0 {
		return native.StatusInvalidImageFormat
	}
	if width <= 0 || height <= 0 || width > 0xffff || height > 0xffff {
		return native.StatusInvalidParameter
	}
	l, ok := layoutOf(format.FourCC, uint32(width), uint32(height))
	if !ok {
		return native.StatusInvalidImageFormat
	}
	*out = d.trackImage(s, d.formats[i], uint32(width), uint32(height), l, make([]byte, l.size), false)
	return native.StatusSuccess
}

func (d *Driver) destroyImage(dpy native.VADisplay, id native.ImageID) native.Status {
	s, st := d.enterInit("vaDestroyImage", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	img, ok := s.images[id]
	if !ok {
		return native.StatusInvalidImage
	}
	delete(s.buffers, img.raw.Buf)
	delete(s.images, id)
	return native.StatusSuccess
}

func (d *Driver) deriveImage(dpy native.VADisplay, id native.SurfaceID, out *native.Image) native.Status {
	s, st := d.enterInit("vaDeriveImage", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	surf, ok := s.surfaces[id]
	if !ok {
		return native.StatusInvalidSurface
	}
	if d.noDerive {
		return native.StatusOperationFailed
	}
	i := slices.IndexFunc(d.formats, func(f native.ImageFormat) bool { return f.FourCC == surf.fourcc })
	if i < 0 {
		return native.StatusInvalidImageFormat
	}
	l, _ := layoutOf(surf.fourcc, surf.width, surf.height)
	*out = d.trackImage(s, d.formats[i], surf.width, surf.height, l, surf.data, true)
	return native.StatusSuccess
}

func (d *Driver) getImage(dpy native.VADisplay, id native.SurfaceID, x, y int32, width, height uint32, imgID native.ImageID) native.Status {
	s, st := d.enterInit("vaGetImage", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	surf, ok := s.surfaces[id]
	if !ok {
		return native.StatusInvalidSurface
	}
	img, ok := s.images[imgID]
	if !ok {
		return native.StatusInvalidImage
	}
	if x != 0 || y != 0 || width > surf.width || height > surf.height ||
		width > uint32(img.raw.Width) || height > uint32(img.raw.Height) {
		return native.StatusInvalidParameter
	}
	dst := s.buffers[img.raw.Buf].data
	return convert(dst, img.raw.Format.FourCC, uint32(img.raw.Width), surf.data, surf.fourcc, surf.width, width, height)
}

func (d *Driver) putImage(dpy native.VADisplay, id native.SurfaceID, imgID native.ImageID, srcX, srcY int32, srcW, srcH uint32, dstX, dstY int32, dstW, dstH uint32) native.Status {
	s, st := d.enterInit("vaPutImage", dpy)
	defer d.mu.Unlock()
	if st != native.StatusSuccess {
		return st
	}
	surf, ok := s.surfaces[id]
	if !ok {
		return native.StatusInvalidSurface
	}
	img, ok := s.images[imgID]
	if !ok {
		return native.StatusInvalidImage
	}
	if srcX != 0 || srcY != 0 || dstX != 0 || dstY != 0 || srcW != dstW || srcH != dstH {
		return native.StatusUnimplemented
	}
	if srcW > surf.width || srcH > surf.height || srcW > uint32(img.raw.Width) || srcH > uint32(img.raw.Height) {
		return native.StatusInvalidParameter
	}
	src := s.buffers[img.raw.Buf].data
	return convert(surf.data, surf.fourcc, surf.width, src, img.raw.Format.FourCC, uint32(img.raw.Width), srcW, srcH)
}
