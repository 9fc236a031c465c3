// Package fakeva is an in-memory libva. It fills a native.Symbols table with
// Go functions that keep real handle tables, real image memory and libva's
// status codes, so the vaapi package can be driven through its actual code
// paths without a GPU.
package fakeva

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/bryanchriswhite/VAProbe/internal/vaapi/native"
)

// Counts is the number of live objects the fake holds.
type Counts struct {
	Configs  int
	Contexts int
	Surfaces int
	Buffers  int
	Images   int
}

// Total sums all kinds.
func (c Counts) Total() int {
	return c.Configs + c.Contexts + c.Surfaces + c.Buffers + c.Images
}

// Option configures a Driver.
type Option func(*Driver)

// WithVersion sets the version vaInitialize reports.
func WithVersion(major, minor int32) Option {
	return func(d *Driver) { d.major, d.minor = major, minor }
}

// WithVendor sets the vendor string.
func WithVendor(v string) Option {
	return func(d *Driver) { d.vendor = v }
}

// WithProfile adds a profile with its entrypoints. The first WithProfile
// replaces the default capability set.
func WithProfile(profile int32, entrypoints ...int32) Option {
	return func(d *Driver) {
		if !d.customProfiles {
			d.profiles = nil
			d.customProfiles = true
		}
		d.profiles = append(d.profiles, profileEntry{profile, entrypoints})
	}
}

// WithImageFormats replaces the image format list.
func WithImageFormats(formats ...native.ImageFormat) Option {
	return func(d *Driver) { d.formats = formats }
}

// WithMaxPicture sets the MaxPictureWidth/Height config attributes.
func WithMaxPicture(width, height uint32) Option {
	return func(d *Driver) { d.maxWidth, d.maxHeight = width, height }
}

// WithoutDerive makes vaDeriveImage fail with VA_STATUS_ERROR_OPERATION_FAILED,
// like drivers that keep surfaces tiled.
func WithoutDerive() Option {
	return func(d *Driver) { d.noDerive = true }
}

// WithoutOptional leaves the optional entry points out of the table.
func WithoutOptional() Option {
	return func(d *Driver) { d.noOptional = true }
}

type profileEntry struct {
	profile     int32
	entrypoints []int32
}

// Driver is one fake libva. It can back several displays.
type Driver struct {
	mu sync.Mutex

	major, minor        int32
	vendor              string
	profiles            []profileEntry
	customProfiles      bool
	formats             []native.ImageFormat
	maxWidth, maxHeight uint32
	noDerive            bool
	noOptional          bool

	nextDisplay native.VADisplay
	nextID      uint32
	displays    map[native.VADisplay]*display

	failNext   map[string]native.Status
	failAlways map[string]native.Status
	calls      []string
}

// Default capability set: two decode profiles, one with an encoder.
const (
	profileH264High = 7
	profileHEVCMain = 17
	profileJPEG     = 12
	entrypointVLD   = 1
	entrypointEnc   = 6
)

// New returns a driver reporting VA-API 1.20 with H.264, HEVC and JPEG decode.
func New(opts ...Option) *Driver {
	d := &Driver{
		major:  1,
		minor:  20,
		vendor: "fakeva in-memory driver",
		profiles: []profileEntry{
			{profileH264High, []int32{entrypointVLD, entrypointEnc}},
			{profileHEVCMain, []int32{entrypointVLD}},
			{profileJPEG, []int32{entrypointVLD}},
		},
		formats:     DefaultImageFormats(),
		maxWidth:    4096,
		maxHeight:   4096,
		nextDisplay: 0x1000,
		nextID:      0x10,
		displays:    make(map[native.VADisplay]*display),
		failNext:    make(map[string]native.Status),
		failAlways:  make(map[string]native.Status),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DefaultImageFormats is the format list New installs.
func DefaultImageFormats() []native.ImageFormat {
	rgb := func(f uint32, r, g, b, a uint32) native.ImageFormat {
		return native.ImageFormat{FourCC: f, ByteOrder: 1, BitsPerPixel: 32, Depth: 32, RedMask: r, GreenMask: g, BlueMask: b, AlphaMask: a}
	}
	return []native.ImageFormat{
		{FourCC: FourCCNV12, ByteOrder: 1, BitsPerPixel: 12},
		rgb(FourCCRGBA, 0x000000ff, 0x0000ff00, 0x00ff0000, 0xff000000),
		rgb(FourCCBGRA, 0x00ff0000, 0x0000ff00, 0x000000ff, 0xff000000),
		rgb(FourCCRGBX, 0x000000ff, 0x0000ff00, 0x00ff0000, 0),
		rgb(FourCCBGRX, 0x00ff0000, 0x0000ff00, 0x000000ff, 0),
	}
}

// Library wraps the driver's table in a native.Library, with a libva-drm
// table whose vaGetDisplayDRM opens a new fake display per call.
func (d *Driver) Library() (*native.Library, error) {
	return native.NewLibrary("fakeva", d.Symbols(), native.WithDRM(native.DRMSymbols{
		GetDisplayDRM: func(fd int32) native.VADisplay {
			if fd < 0 {
				return 0
			}
			return d.NewDisplay()
		},
	}))
}

// NewDisplay allocates an uninitialized display.
func (d *Driver) NewDisplay() native.VADisplay {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextDisplay += 0x10
	dpy := d.nextDisplay
	d.displays[dpy] = newDisplay()
	return dpy
}

// FailNext makes the next call to fn return st.
func (d *Driver) FailNext(fn string, st native.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext[fn] = st
}

// FailAlways makes every call to fn return st until Heal.
func (d *Driver) FailAlways(fn string, st native.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAlways[fn] = st
}

// Heal removes all injected failures.
func (d *Driver) Heal() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.failNext)
	clear(d.failAlways)
}

// Calls returns the names of the native calls made so far, in order.
func (d *Driver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.calls)
}

// CallCount returns how often fn was called.
func (d *Driver) CallCount(fn string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c == fn {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (d *Driver) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

// Live counts the objects alive on dpy.
func (d *Driver) Live(dpy native.VADisplay) Counts {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.displays[dpy]
	if !ok {
		return Counts{}
	}
	return Counts{
		Configs:  len(s.configs),
		Contexts: len(s.contexts),
		Surfaces: len(s.surfaces),
		Buffers:  len(s.buffers) - len(s.images),
		Images:   len(s.images),
	}
}

// Terminated reports whether vaTerminate ran on dpy.
func (d *Driver) Terminated(dpy native.VADisplay) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.displays[dpy]
	return ok && s.terminated
}

// DriverName returns the name passed to vaSetDriverName on dpy.
func (d *Driver) DriverName(dpy native.VADisplay) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.displays[dpy]; ok {
		return s.driverName
	}
	return ""
}

// SurfacePixels returns a copy of a surface's storage and its fourcc.
func (d *Driver) SurfacePixels(dpy native.VADisplay, id native.SurfaceID) ([]byte, uint32, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.displays[dpy]
	if !ok {
		return nil, 0, false
	}
	surf, ok := s.surfaces[id]
	if !ok {
		return nil, 0, false
	}
	return slices.Clone(surf.data), surf.fourcc, true
}

// Emit delivers a libva message the way the C callbacks would, through the
// user context registered with vaSetErrorCallback or vaSetInfoCallback.
func (d *Driver) Emit(dpy native.VADisplay, level native.MessageLevel, msg string) error {
	d.mu.Lock()
	s, ok := d.displays[dpy]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("fakeva: unknown display %#x", uintptr(dpy))
	}
	userCtx, set := s.errorCtx, s.errorSet
	if level == native.LevelInfo {
		userCtx, set = s.infoCtx, s.infoSet
	}
	d.mu.Unlock()
	if !set {
		return errors.New("fakeva: no callback installed")
	}
	native.Dispatch(userCtx, level, msg)
	return nil
}

// begin records a call and returns an injected failure, if any. The caller
// holds d.mu.
func (d *Driver) begin(fn string) native.Status {
	d.calls = append(d.calls, fn)
	if st, ok := d.failNext[fn]; ok {
		delete(d.failNext, fn)
		return st
	}
	if st, ok := d.failAlways[fn]; ok {
		return st
	}
	return native.StatusSuccess
}

func (d *Driver) id() uint32 {
	d.nextID++
	return d.nextID
}

// Source is a vaapi.DisplaySource backed by the driver.
type Source struct {
	Driver *Driver
	Label  string
	Hint   string

	// OpenErr and NilDisplay make Open fail.
	OpenErr    error
	NilDisplay bool

	mu     sync.Mutex
	dpy    native.VADisplay
	closed int
}

// NewSource returns a source named "fake".
func (d *Driver) NewSource() *Source {
	return &Source{Driver: d, Label: "fake"}
}

func (s *Source) Name() string       { return s.Label }
func (s *Source) DriverHint() string { return s.Hint }

func (s *Source) Open(*native.Library) (native.VADisplay, error) {
	if s.OpenErr != nil {
		return 0, s.OpenErr
	}
	if s.NilDisplay {
		return 0, nil
	}
	dpy := s.Driver.NewDisplay()
	s.mu.Lock()
	s.dpy = dpy
	s.mu.Unlock()
	return dpy, nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// VADisplay returns the display handed out by the last Open.
func (s *Source) VADisplay() native.VADisplay {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dpy
}

// Closed returns how often Close was called.
func (s *Source) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
