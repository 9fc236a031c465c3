// Package vaapi is a safe layer over the runtime-loaded libva bindings in
// package native.
//
// A Display owns every handle created through it. Each Display serializes its
// native calls with a mutex, keeps a table of live handles, and checks liveness
// and ownership before any handle reaches libva. Close tears remaining handles
// down in dependency order and terminates the display exactly once.
package vaapi

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/VAProbe/internal/logger"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi/native"
)

// DefaultMinVersion is the lowest VA-API version Open accepts.
var DefaultMinVersion = Version{Major: 1, Minor: 0}

// Version is a VA-API version as reported by vaInitialize.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

// Less reports whether v predates o.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

func (v Version) String() string { return fmt.Sprintf("%d.%d", v.Major, v.Minor) }

// DisplaySource produces the native VADisplay for Open and owns the OS
// resource behind it (a DRM file descriptor or a window system connection).
// Close is called once, after the display has been terminated.
type DisplaySource interface {
	Name() string
	DriverHint() string
	Open(lib *native.Library) (native.VADisplay, error)
	Close() error
}

// Observer is told about every native call a Display makes.
type Observer interface {
	ObserveCall(fn string, status native.Status, elapsed time.Duration)
}

// Option configures Open.
type Option func(*options)

type options struct {
	minVersion Version
	driverName string
	observer   Observer
	log        *zerolog.Logger
}

// WithMinVersion overrides DefaultMinVersion.
func WithMinVersion(major, minor int) Option {
	return func(o *options) { o.minVersion = Version{Major: major, Minor: minor} }
}

// WithDriverName forces a libva driver through vaSetDriverName before initialization.
func WithDriverName(name string) Option {
	return func(o *options) { o.driverName = name }
}

// WithObserver registers an Observer for native calls.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = &l }
}

var nextDisplayID atomic.Uint64

// Display is an initialized VADisplay and the owner of every handle created
// through it.
type Display struct {
	id   uint64
	lib  *native.Library
	syms *native.Symbols
	raw  native.VADisplay
	src  DisplaySource
	obs  Observer
	log  zerolog.Logger

	version Version
	vendor  string

	mu       sync.Mutex
	closed   bool
	calls    uint64
	failures uint64
	leaked   int

	configs  map[native.ConfigID]*Config
	contexts map[native.ContextID]*Context
	surfaces map[native.SurfaceID]*Surface
	buffers  map[native.BufferID]*Buffer
	images   map[native.ImageID]*Image

	caps capabilityCache
}

// Open initializes a display from src. Open takes ownership of src: it is
// closed on failure, or by Display.Close on success.
func Open(lib *native.Library, src DisplaySource, opts ...Option) (*Display, error) {
	o := options{minVersion: DefaultMinVersion}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.WithComponent("vaapi")
	}

	d := &Display{
		id:       nextDisplayID.Add(1),
		lib:      lib,
		syms:     lib.Symbols(),
		src:      src,
		obs:      o.observer,
		configs:  make(map[native.ConfigID]*Config),
		contexts: make(map[native.ContextID]*Context),
		surfaces: make(map[native.SurfaceID]*Surface),
		buffers:  make(map[native.BufferID]*Buffer),
		images:   make(map[native.ImageID]*Image),
	}
	d.log = o.log.With().Uint64("display", d.id).Str("source", src.Name()).Logger()

	if err := d.init(o); err != nil {
		if cerr := src.Close(); cerr != nil {
			d.log.Warn().Err(cerr).Msg("ignoring error in source close")
		}
		return nil, err
	}

	runtime.SetFinalizer(d, (*Display).finalize)
	d.log.Info().
		Str("version", d.version.String()).
		Str("vendor", d.vendor).
		Msg("display initialized")
	return d, nil
}

func (d *Display) init(o options) error {
	hint := ""
	if o.driverName == "" {
		hint = d.src.DriverHint()
	}
	initFailed, err := d.start(o.driverName, hint)
	if initFailed && hint != "" {
		// libva accepts any driver name and only fails when it cannot load it,
		// so a wrong guess shows up here. Start over on a fresh display and
		// let libva pick from the kernel driver.
		d.log.Warn().Err(err).Str("driver", hint).Msg("hinted driver failed to initialize, retrying without it")
		if cerr := d.src.Close(); cerr != nil {
			d.log.Warn().Err(cerr).Msg("ignoring error in source close")
		}
		d.closed = false
		d.raw = 0
		_, err = d.start(o.driverName, "")
	}
	if err != nil {
		return err
	}

	if d.version.Less(o.minVersion) {
		d.ignore("vaTerminate", d.terminate())
		return &DisplayError{
			Op:  "initialize",
			Err: fmt.Errorf("%w: have %s, need %s", ErrUnsupportedVersion, d.version, o.minVersion),
		}
	}

	d.vendor = d.syms.QueryVendorString(d.raw)
	return nil
}

// start opens the source and runs vaInitialize on it. explicit is a driver
// name the caller asked for; hint is the source's suggestion and is only
// tried when explicit is empty. initFailed reports that vaInitialize itself
// failed, after which the display has already been terminated.
func (d *Display) start(explicit, hint string) (initFailed bool, err error) {
	raw, err := d.src.Open(d.lib)
	if err != nil {
		return false, &DisplayError{Op: "open", Err: fmt.Errorf("%w: %w", ErrInitFailed, err)}
	}
	if raw == 0 {
		return false, &DisplayError{Op: "open", Err: fmt.Errorf("%w: %s returned a nil VADisplay", ErrInitFailed, d.src.Name())}
	}
	if d.syms.DisplayIsValid(raw) == 0 {
		return false, &DisplayError{Op: "open", Err: fmt.Errorf("%w: vaDisplayIsValid rejected the display", ErrInitFailed)}
	}
	d.raw = raw

	d.installCallbacks()

	driver := explicit
	if driver == "" {
		driver = hint
	}
	if driver != "" {
		if err := d.call("vaSetDriverName", func() native.Status {
			return d.syms.SetDriverName(raw, driver)
		}); err != nil {
			if explicit != "" {
				d.ignore("vaTerminate", d.terminate())
				return false, &DisplayError{Op: "set driver name", Err: fmt.Errorf("%w: %w", ErrInitFailed, err)}
			}
			d.log.Debug().Err(err).Str("driver", driver).Msg("driver hint rejected, letting libva choose")
		}
	}

	var major, minor int32
	if err := d.call("vaInitialize", func() native.Status {
		return d.syms.Initialize(raw, &major, &minor)
	}); err != nil {
		d.ignore("vaTerminate", d.terminate())
		return true, &DisplayError{Op: "initialize", Err: fmt.Errorf("%w: %w", ErrInitFailed, err)}
	}
	d.version = Version{Major: int(major), Minor: int(minor)}
	return false, nil
}

func (d *Display) installCallbacks() {
	onError, onInfo, err := native.MessageCallbacks()
	if err != nil {
		d.log.Debug().Err(err).Msg("libva message callbacks unavailable")
		return
	}
	log := d.log
	native.RegisterSink(uintptr(d.id), func(level native.MessageLevel, msg string) {
		ev := log.Info()
		if level == native.LevelError {
			ev = log.Warn()
		}
		ev.Str("origin", level.String()).Msg(msg)
	})
	d.syms.SetErrorCallback(d.raw, onError, uintptr(d.id))
	d.syms.SetInfoCallback(d.raw, onInfo, uintptr(d.id))
}

func (d *Display) removeCallbacks() {
	native.UnregisterSink(uintptr(d.id))
}

// terminate runs vaTerminate and drops the message route. The caller holds d.mu
// or has exclusive access.
func (d *Display) terminate() error {
	err := d.call("vaTerminate", func() native.Status { return d.syms.Terminate(d.raw) })
	d.removeCallbacks()
	d.closed = true
	return err
}

// call runs one native entry point and records it. The caller holds d.mu.
func (d *Display) call(fn string, f func() native.Status) error {
	start := time.Now()
	st := f()
	d.calls++
	if d.obs != nil {
		d.obs.ObserveCall(fn, st, time.Since(start))
	}
	if st == native.StatusSuccess {
		return nil
	}
	d.failures++
	text := ""
	if d.syms.ErrorStr != nil {
		text = d.syms.ErrorStr(st)
	}
	return &NativeError{Func: fn, Status: st, Text: text}
}

// lock acquires the display for op. It fails without locking when the display
// has been closed.
func (d *Display) lock(op string) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return &DisplayError{Op: op, Err: ErrClosed}
	}
	return nil
}

// ID identifies the display within the process.
func (d *Display) ID() uint64 { return d.id }

// Version returns the VA-API version reported by vaInitialize.
func (d *Display) Version() Version { return d.version }

// Vendor returns the driver vendor string.
func (d *Display) Vendor() string { return d.vendor }

// Source names the display source, e.g. "drm:/dev/dri/renderD128".
func (d *Display) Source() string { return d.src.Name() }

// Library returns the libva the display was opened with.
func (d *Display) Library() *native.Library { return d.lib }

// Closed reports whether the display has been terminated.
func (d *Display) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Stats is a snapshot of a display's handle table and call counters.
type Stats struct {
	Configs        int    `json:"configs"`
	Contexts       int    `json:"contexts"`
	Surfaces       int    `json:"surfaces"`
	Buffers        int    `json:"buffers"`
	Images         int    `json:"images"`
	NativeCalls    uint64 `json:"native_calls"`
	NativeFailures uint64 `json:"native_failures"`
	LeakedOnClose  int    `json:"leaked_on_close"`
	Closed         bool   `json:"closed"`
}

// Live returns the number of live handles.
func (s Stats) Live() int {
	return s.Configs + s.Contexts + s.Surfaces + s.Buffers + s.Images
}

// Stats snapshots the handle table. It works on a closed display.
func (d *Display) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Configs:        len(d.configs),
		Contexts:       len(d.contexts),
		Surfaces:       len(d.surfaces),
		Buffers:        len(d.buffers),
		Images:         len(d.images),
		NativeCalls:    d.calls,
		NativeFailures: d.failures,
		LeakedOnClose:  d.leaked,
		Closed:         d.closed,
	}
}

// Close destroys every handle still alive, terminates the display and closes
// the source. Handles are released buffers first, then contexts, images,
// surfaces and configs. A second Close returns ErrClosed.
func (d *Display) Close() error {
	if err := d.lock("close"); err != nil {
		return err
	}
	defer d.mu.Unlock()
	runtime.SetFinalizer(d, nil)
	return d.closeLocked()
}

func (d *Display) closeLocked() error {
	d.releaseAllLocked()

	var errs []error
	if err := d.terminate(); err != nil {
		errs = append(errs, err)
	}
	if err := d.src.Close(); err != nil {
		errs = append(errs, err)
	}
	d.log.Info().Int("leaked", d.leaked).Msg("display terminated")
	if len(errs) > 0 {
		return &DisplayError{Op: "close", Err: errors.Join(errs...)}
	}
	return nil
}

func (d *Display) releaseAllLocked() {
	for _, b := range d.buffers {
		d.leak(KindBuffer, uint32(b.id))
		d.ignore("vaDestroyBuffer", b.destroyLocked())
	}
	for _, c := range d.contexts {
		d.leak(KindContext, uint32(c.id))
		d.ignore("vaDestroyContext", c.destroyLocked())
	}
	for _, img := range d.images {
		d.leak(KindImage, uint32(img.id))
		d.ignore("vaDestroyImage", img.destroyLocked())
	}
	for _, s := range d.surfaces {
		d.leak(KindSurface, uint32(s.id))
		d.ignore("vaDestroySurfaces", s.destroyLocked())
	}
	for _, c := range d.configs {
		d.leak(KindConfig, uint32(c.id))
		d.ignore("vaDestroyConfig", c.destroyLocked())
	}
}

func (d *Display) leak(kind ResourceKind, id uint32) {
	d.leaked++
	d.log.Warn().Str("kind", string(kind)).Uint32("id", id).Msg("releasing handle still alive at close")
}

func (d *Display) ignore(op string, err error) {
	if err != nil {
		d.log.Warn().Err(err).Msgf("ignoring error in %s", op)
	}
}

func (d *Display) finalize() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.log.Warn().Msg("display was never closed; terminating from finalizer")
	d.ignore("close", d.closeLocked())
}
