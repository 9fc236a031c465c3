package native

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTable fills every function field with a stub returning zero values.
func stubTable(t *testing.T) Symbols {
	t.Helper()
	var s Symbols
	v := reflect.ValueOf(&s).Elem()
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		typ := f.Type()
		f.Set(reflect.MakeFunc(typ, func([]reflect.Value) []reflect.Value {
			out := make([]reflect.Value, typ.NumOut())
			for j := range out {
				out[j] = reflect.Zero(typ.Out(j))
			}
			return out
		}))
	}
	return s
}

func TestLoadFromMissingLibrary(t *testing.T) {
	lib, err := LoadFrom("libva-does-not-exist.so.2")
	require.Error(t, err)
	assert.Nil(t, lib)
	assert.ErrorIs(t, err, ErrNotFound)

	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "libva-does-not-exist.so.2", le.Library)
}

func TestLoadFromSkipsUnusableLibraries(t *testing.T) {
	// libc opens fine but carries none of the libva exports.
	const notLibva = "libc.so.6"
	handle, err := openLibrary(notLibva)
	if err != nil {
		t.Skipf("%s not available: %v", notLibva, err)
	}
	require.NoError(t, closeLibrary(handle))

	t.Run("bind error wins over later misses", func(t *testing.T) {
		_, err := LoadFrom(notLibva, "libva-does-not-exist.so.2")
		require.ErrorIs(t, err, ErrVersionMismatch)
		var le *LoadError
		require.True(t, errors.As(err, &le))
		assert.Equal(t, notLibva, le.Library)
	})

	t.Run("a later working library is used", func(t *testing.T) {
		if _, err := Load(); err != nil {
			t.Skipf("no system libva: %v", err)
		}
		lib, err := LoadFrom(append([]string{notLibva}, DefaultNames...)...)
		require.NoError(t, err)
		assert.NotEqual(t, notLibva, lib.Name())
	})
}

func TestNewLibrary(t *testing.T) {
	t.Run("empty table fails on the first required symbol", func(t *testing.T) {
		_, err := NewLibrary("fake", Symbols{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSymbolMissing)

		var le *LoadError
		require.True(t, errors.As(err, &le))
		assert.Equal(t, "vaErrorStr", le.Symbol)
		assert.Contains(t, err.Error(), "vaErrorStr")
	})

	t.Run("one missing symbol fails the whole load", func(t *testing.T) {
		syms := stubTable(t)
		syms.PutImage = nil
		_, err := NewLibrary("fake", syms)
		var le *LoadError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, "vaPutImage", le.Symbol)
	})

	t.Run("optional symbols may be absent", func(t *testing.T) {
		syms := stubTable(t)
		syms.ExportSurfaceHandle = nil
		syms.SyncBuffer = nil
		lib, err := NewLibrary("fake", syms)
		require.NoError(t, err)
		assert.False(t, lib.Supports("vaExportSurfaceHandle"))
		assert.False(t, lib.Supports("vaSyncBuffer"))
		assert.True(t, lib.Supports("vaInitialize"))
		assert.False(t, lib.Supports("vaNoSuchThing"))
		assert.Equal(t, "fake", lib.Name())
		assert.NoError(t, lib.Close())
	})
}

func TestLibraryDRM(t *testing.T) {
	lib, err := NewLibrary("fake", stubTable(t))
	require.NoError(t, err)
	_, err = lib.DRM()
	assert.ErrorIs(t, err, ErrNotFound)

	lib, err = NewLibrary("fake", stubTable(t), WithDRM(DRMSymbols{
		GetDisplayDRM: func(fd int32) VADisplay { return VADisplay(fd + 1) },
	}))
	require.NoError(t, err)
	drm, err := lib.DRM()
	require.NoError(t, err)
	assert.Equal(t, VADisplay(8), drm.GetDisplayDRM(7))

	lib, err = NewLibrary("fake", stubTable(t), WithDRM(DRMSymbols{}))
	require.NoError(t, err)
	_, err = lib.DRM()
	assert.ErrorIs(t, err, ErrSymbolMissing)
}

func TestRequiredSymbols(t *testing.T) {
	names := RequiredSymbols()
	assert.Contains(t, names, "vaInitialize")
	assert.Contains(t, names, "vaTerminate")
	assert.Contains(t, names, "vaCreateSurfaces")
	assert.NotContains(t, names, "vaSyncBuffer")
	assert.NotContains(t, names, "vaExportSurfaceHandle")
}

func TestLoadErrorUnwrap(t *testing.T) {
	cause := errors.New("dlopen: no such file")
	err := &LoadError{Kind: ErrVersionMismatch, Library: "libva.so.1", Err: cause}
	assert.ErrorIs(t, err, ErrVersionMismatch)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "load libva.so.1: incompatible library version: dlopen: no such file", err.Error())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "invalid VASurfaceID (0x6)", StatusInvalidSurface.String())
	assert.Equal(t, "unknown libva error (0x99)", Status(0x99).String())
	assert.Equal(t, "success", StatusSuccess.Text())
}
