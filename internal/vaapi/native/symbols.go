package native

import "unsafe"

// Symbols is the resolved libva function table. A Library fills it once at load
// time and hands out a pointer to it; nothing writes to it afterwards.
//
// Optional entries may be nil when the loaded libva predates them.
type Symbols struct {
	ErrorStr         func(status Status) string
	DisplayIsValid   func(dpy VADisplay) int32
	SetDriverName    func(dpy VADisplay, name string) Status
	SetErrorCallback func(dpy VADisplay, callback uintptr, userCtx uintptr) uintptr
	SetInfoCallback  func(dpy VADisplay, callback uintptr, userCtx uintptr) uintptr

	Initialize        func(dpy VADisplay, major, minor *int32) Status
	Terminate         func(dpy VADisplay) Status
	QueryVendorString func(dpy VADisplay) string

	MaxNumProfiles          func(dpy VADisplay) int32
	MaxNumEntrypoints       func(dpy VADisplay) int32
	MaxNumConfigAttributes  func(dpy VADisplay) int32
	MaxNumImageFormats      func(dpy VADisplay) int32
	MaxNumDisplayAttributes func(dpy VADisplay) int32

	QueryConfigProfiles    func(dpy VADisplay, list []int32, num *int32) Status
	QueryConfigEntrypoints func(dpy VADisplay, profile int32, list []int32, num *int32) Status
	GetConfigAttributes    func(dpy VADisplay, profile, entrypoint int32, list []ConfigAttrib, num int32) Status
	QueryImageFormats      func(dpy VADisplay, list []ImageFormat, num *int32) Status
	QueryDisplayAttributes func(dpy VADisplay, list []DisplayAttribute, num *int32) Status
	SetDisplayAttributes   func(dpy VADisplay, list []DisplayAttribute, num int32) Status

	CreateConfig           func(dpy VADisplay, profile, entrypoint int32, attribs []ConfigAttrib, num int32, out *ConfigID) Status
	DestroyConfig          func(dpy VADisplay, config ConfigID) Status
	QueryConfigAttributes  func(dpy VADisplay, config ConfigID, profile, entrypoint *int32, list []ConfigAttrib, num *int32) Status
	QuerySurfaceAttributes func(dpy VADisplay, config ConfigID, list []SurfaceAttrib, num *uint32) Status

	CreateSurfaces      func(dpy VADisplay, format, width, height uint32, out []SurfaceID, num uint32, attribs []SurfaceAttrib, numAttribs uint32) Status
	DestroySurfaces     func(dpy VADisplay, surfaces []SurfaceID, num int32) Status
	SyncSurface         func(dpy VADisplay, surface SurfaceID) Status
	QuerySurfaceStatus  func(dpy VADisplay, surface SurfaceID, status *int32) Status
	ExportSurfaceHandle func(dpy VADisplay, surface SurfaceID, memType, flags uint32, descriptor *PrimeSurfaceDescriptor) Status

	CreateContext  func(dpy VADisplay, config ConfigID, width, height, flag int32, targets []SurfaceID, num int32, out *ContextID) Status
	DestroyContext func(dpy VADisplay, ctx ContextID) Status

	CreateBuffer  func(dpy VADisplay, ctx ContextID, typ int32, size, numElements uint32, data unsafe.Pointer, out *BufferID) Status
	MapBuffer     func(dpy VADisplay, buf BufferID, out *uintptr) Status
	UnmapBuffer   func(dpy VADisplay, buf BufferID) Status
	DestroyBuffer func(dpy VADisplay, buf BufferID) Status
	SyncBuffer    func(dpy VADisplay, buf BufferID, timeoutNs uint64) Status

	BeginPicture  func(dpy VADisplay, ctx ContextID, target SurfaceID) Status
	RenderPicture func(dpy VADisplay, ctx ContextID, buffers []BufferID, num int32) Status
	EndPicture    func(dpy VADisplay, ctx ContextID) Status

	CreateImage  func(dpy VADisplay, format *ImageFormat, width, height int32, out *Image) Status
	DestroyImage func(dpy VADisplay, image ImageID) Status
	DeriveImage  func(dpy VADisplay, surface SurfaceID, out *Image) Status
	GetImage     func(dpy VADisplay, surface SurfaceID, x, y int32, width, height uint32, image ImageID) Status
	PutImage     func(dpy VADisplay, surface SurfaceID, image ImageID, srcX, srcY int32, srcW, srcH uint32, dstX, dstY int32, dstW, dstH uint32) Status
}

// DRMSymbols is the libva-drm function table.
type DRMSymbols struct {
	GetDisplayDRM func(fd int32) VADisplay
}

type symbolEntry struct {
	name     string
	fptr     any
	optional bool
}

// entries lists every libva symbol the bindings use, in resolution order.
func (s *Symbols) entries() []symbolEntry {
	return []symbolEntry{
		{"vaErrorStr", &s.ErrorStr, false},
		{"vaDisplayIsValid", &s.DisplayIsValid, false},
		{"vaSetDriverName", &s.SetDriverName, false},
		{"vaSetErrorCallback", &s.SetErrorCallback, false},
		{"vaSetInfoCallback", &s.SetInfoCallback, false},
		{"vaInitialize", &s.Initialize, false},
		{"vaTerminate", &s.Terminate, false},
		{"vaQueryVendorString", &s.QueryVendorString, false},
		{"vaMaxNumProfiles", &s.MaxNumProfiles, false},
		{"vaMaxNumEntrypoints", &s.MaxNumEntrypoints, false},
		{"vaMaxNumConfigAttributes", &s.MaxNumConfigAttributes, false},
		{"vaMaxNumImageFormats", &s.MaxNumImageFormats, false},
		{"vaMaxNumDisplayAttributes", &s.MaxNumDisplayAttributes, false},
		{"vaQueryConfigProfiles", &s.QueryConfigProfiles, false},
		{"vaQueryConfigEntrypoints", &s.QueryConfigEntrypoints, false},
		{"vaGetConfigAttributes", &s.GetConfigAttributes, false},
		{"vaQueryImageFormats", &s.QueryImageFormats, false},
		{"vaQueryDisplayAttributes", &s.QueryDisplayAttributes, false},
		{"vaSetDisplayAttributes", &s.SetDisplayAttributes, false},
		{"vaCreateConfig", &s.CreateConfig, false},
		{"vaDestroyConfig", &s.DestroyConfig, false},
		{"vaQueryConfigAttributes", &s.QueryConfigAttributes, false},
		{"vaQuerySurfaceAttributes", &s.QuerySurfaceAttributes, false},
		{"vaCreateSurfaces", &s.CreateSurfaces, false},
		{"vaDestroySurfaces", &s.DestroySurfaces, false},
		{"vaSyncSurface", &s.SyncSurface, false},
		{"vaQuerySurfaceStatus", &s.QuerySurfaceStatus, false},
		{"vaExportSurfaceHandle", &s.ExportSurfaceHandle, true},
		{"vaCreateContext", &s.CreateContext, false},
		{"vaDestroyContext", &s.DestroyContext, false},
		{"vaCreateBuffer", &s.CreateBuffer, false},
		{"vaMapBuffer", &s.MapBuffer, false},
		{"vaUnmapBuffer", &s.UnmapBuffer, false},
		{"vaDestroyBuffer", &s.DestroyBuffer, false},
		{"vaSyncBuffer", &s.SyncBuffer, true},
		{"vaBeginPicture", &s.BeginPicture, false},
		{"vaRenderPicture", &s.RenderPicture, false},
		{"vaEndPicture", &s.EndPicture, false},
		{"vaCreateImage", &s.CreateImage, false},
		{"vaDestroyImage", &s.DestroyImage, false},
		{"vaDeriveImage", &s.DeriveImage, false},
		{"vaGetImage", &s.GetImage, false},
		{"vaPutImage", &s.PutImage, false},
	}
}

func (s *DRMSymbols) entries() []symbolEntry {
	return []symbolEntry{
		{"vaGetDisplayDRM", &s.GetDisplayDRM, false},
	}
}

// RequiredSymbols returns the names of every libva symbol a load must resolve.
func RequiredSymbols() []string {
	var s Symbols
	var names []string
	for _, e := range s.entries() {
		if !e.optional {
			names = append(names, e.name)
		}
	}
	return names
}
