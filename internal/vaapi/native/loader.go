package native

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/bryanchriswhite/VAProbe/internal/logger"
)

// DefaultNames are the sonames tried by Load, in order.
var DefaultNames = []string{"libva.so.2", "libva.so"}

// DRMNames are the sonames tried when the DRM display entry point is first needed.
var DRMNames = []string{"libva-drm.so.2", "libva-drm.so"}

// legacyNames carry the pre-2.0 ABI. Finding only one of these is a version mismatch.
var legacyNames = []string{"libva.so.1"}

// abiMarkers only exist in libva 2.x.
var abiMarkers = []string{"vaSetErrorCallback", "vaSetInfoCallback"}

var (
	ErrNotFound        = errors.New("library not found")
	ErrSymbolMissing   = errors.New("required symbol missing")
	ErrVersionMismatch = errors.New("incompatible library version")
)

// LoadError reports why libva could not be made available. Kind is one of
// ErrNotFound, ErrSymbolMissing or ErrVersionMismatch.
type LoadError struct {
	Kind    error
	Library string
	Symbol  string
	Err     error
}

func (e *LoadError) Error() string {
	var b strings.Builder
	b.WriteString("load ")
	if e.Library != "" {
		b.WriteString(e.Library)
	} else {
		b.WriteString("libva")
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Symbol != "" {
		b.WriteString(": ")
		b.WriteString(e.Symbol)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *LoadError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Library is a loaded libva with its resolved symbol table.
type Library struct {
	name   string
	handle uintptr
	syms   Symbols

	drmOnce sync.Once
	drm     *DRMSymbols
	drmErr  error
	drmLoad func() (*DRMSymbols, error)
}

// LibraryOption configures NewLibrary.
type LibraryOption func(*Library)

// WithDRM supplies the libva-drm table instead of loading it from disk.
func WithDRM(drm DRMSymbols) LibraryOption {
	return func(l *Library) {
		l.drmLoad = func() (*DRMSymbols, error) {
			if err := checkComplete(l.name, drm.entries()); err != nil {
				return nil, err
			}
			return &drm, nil
		}
	}
}

// NewLibrary wraps an already populated symbol table. Missing required entries
// fail the same way a dlopen'd library with missing exports would.
func NewLibrary(name string, syms Symbols, opts ...LibraryOption) (*Library, error) {
	if err := checkComplete(name, syms.entries()); err != nil {
		return nil, err
	}
	l := &Library{name: name, syms: syms}
	l.drmLoad = func() (*DRMSymbols, error) {
		return nil, &LoadError{Kind: ErrNotFound, Library: DRMNames[0], Err: errors.New("no DRM table supplied")}
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func checkComplete(name string, entries []symbolEntry) error {
	for _, e := range entries {
		if e.optional {
			continue
		}
		if reflect.ValueOf(e.fptr).Elem().IsNil() {
			return &LoadError{Kind: ErrSymbolMissing, Library: name, Symbol: e.name}
		}
	}
	return nil
}

var (
	defaultOnce sync.Once
	defaultLib  *Library
	defaultErr  error
)

// Load opens the system libva once per process and returns the shared result.
func Load() (*Library, error) {
	defaultOnce.Do(func() {
		defaultLib, defaultErr = LoadFrom(DefaultNames...)
	})
	return defaultLib, defaultErr
}

// LoadFrom tries each name with dlopen and returns the first library that
// binds. A library that opens but fails to bind does not stop the search; its
// error is returned only when no later name works. It never caches and never
// panics.
func LoadFrom(names ...string) (*Library, error) {
	log := logger.WithComponent("loader")
	if len(names) == 0 {
		names = DefaultNames
	}

	var lastErr, bindErr error
	for _, name := range names {
		handle, err := openLibrary(name)
		if err != nil {
			log.Debug().Str("library", name).Err(err).Msg("dlopen failed")
			lastErr = err
			continue
		}

		lib, err := bindLibrary(name, handle)
		if err != nil {
			if cerr := closeLibrary(handle); cerr != nil {
				log.Warn().Err(cerr).Str("library", name).Msg("ignoring error in dlclose")
			}
			log.Debug().Str("library", name).Err(err).Msg("library unusable, trying the next one")
			if bindErr == nil {
				bindErr = err
			}
			continue
		}
		log.Info().Str("library", name).Msg("libva loaded")
		return lib, nil
	}
	if bindErr != nil {
		return nil, bindErr
	}

	for _, legacy := range legacyNames {
		if handle, err := openLibrary(legacy); err == nil {
			_ = closeLibrary(handle)
			return nil, &LoadError{
				Kind:    ErrVersionMismatch,
				Library: legacy,
				Err:     fmt.Errorf("found %s but libva 2.x is required", legacy),
			}
		}
	}
	return nil, &LoadError{Kind: ErrNotFound, Library: strings.Join(names, ", "), Err: lastErr}
}

func bindLibrary(name string, handle uintptr) (*Library, error) {
	for _, marker := range abiMarkers {
		if _, err := lookupSymbol(handle, marker); err != nil {
			return nil, &LoadError{
				Kind:    ErrVersionMismatch,
				Library: name,
				Symbol:  marker,
				Err:     errors.New("library predates the libva 2 ABI"),
			}
		}
	}

	lib := &Library{name: name, handle: handle}
	if err := bindSymbols(name, handle, lib.syms.entries()); err != nil {
		return nil, err
	}
	lib.drmLoad = loadDRM
	return lib, nil
}

func bindSymbols(name string, handle uintptr, entries []symbolEntry) error {
	for _, e := range entries {
		addr, err := lookupSymbol(handle, e.name)
		if err != nil {
			if e.optional {
				continue
			}
			return &LoadError{Kind: ErrSymbolMissing, Library: name, Symbol: e.name, Err: err}
		}
		if err := registerFunc(e.fptr, addr); err != nil {
			return &LoadError{Kind: ErrSymbolMissing, Library: name, Symbol: e.name, Err: err}
		}
	}
	return nil
}

func loadDRM() (*DRMSymbols, error) {
	var lastErr error
	for _, name := range DRMNames {
		handle, err := openLibrary(name)
		if err != nil {
			lastErr = err
			continue
		}
		drm := &DRMSymbols{}
		if err := bindSymbols(name, handle, drm.entries()); err != nil {
			_ = closeLibrary(handle)
			return nil, err
		}
		return drm, nil
	}
	return nil, &LoadError{Kind: ErrNotFound, Library: strings.Join(DRMNames, ", "), Err: lastErr}
}

// Name returns the soname or label the library was loaded under.
func (l *Library) Name() string { return l.name }

// Symbols returns the shared, read-only symbol table.
func (l *Library) Symbols() *Symbols { return &l.syms }

// Supports reports whether an optional symbol was resolved.
func (l *Library) Supports(symbol string) bool {
	for _, e := range l.syms.entries() {
		if e.name == symbol {
			return !reflect.ValueOf(e.fptr).Elem().IsNil()
		}
	}
	return false
}

// DRM resolves libva-drm on first use.
func (l *Library) DRM() (*DRMSymbols, error) {
	l.drmOnce.Do(func() {
		l.drm, l.drmErr = l.drmLoad()
	})
	return l.drm, l.drmErr
}

// Close releases the dlopen handle. Symbols must not be called afterwards.
func (l *Library) Close() error {
	if l.handle == 0 {
		return nil
	}
	err := closeLibrary(l.handle)
	l.handle = 0
	return err
}
