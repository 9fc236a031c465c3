//go:build !((linux || freebsd) && (amd64 || arm64))

package native

import (
	"errors"
	"runtime"
)

var errPlatform = errors.New("libva bindings are not available on " + runtime.GOOS + "/" + runtime.GOARCH)

func openLibrary(string) (uintptr, error) { return 0, errPlatform }

func lookupSymbol(uintptr, string) (uintptr, error) { return 0, errPlatform }

func closeLibrary(uintptr) error { return nil }

func registerFunc(any, uintptr) error { return errPlatform }

func newCallback(any) (uintptr, error) { return 0, errPlatform }
