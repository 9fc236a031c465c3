//go:build (linux || freebsd) && (amd64 || arm64)

package native

import (
	"fmt"

	"github.com/ebitengine/purego"
)

func openLibrary(name string) (uintptr, error) {
	return purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
}

func lookupSymbol(handle uintptr, name string) (uintptr, error) {
	addr, err := purego.Dlsym(handle, name)
	if err != nil {
		return 0, err
	}
	if addr == 0 {
		return 0, fmt.Errorf("dlsym %s: nil address", name)
	}
	return addr, nil
}

func closeLibrary(handle uintptr) error {
	return purego.Dlclose(handle)
}

// registerFunc converts purego's signature panics into errors so a bad table
// entry surfaces as a LoadError.
func registerFunc(fptr any, addr uintptr) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("register: %v", r)
		}
	}()
	purego.RegisterFunc(fptr, addr)
	return nil
}

// newCallback wraps purego.NewCallback. Callbacks are never freed.
func newCallback(fn any) (cb uintptr, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback: %v", r)
		}
	}()
	return purego.NewCallback(fn), nil
}
