package vaapi

import (
	"errors"
	"fmt"

	"github.com/bryanchriswhite/VAProbe/internal/vaapi/native"
)

// Display failures. Any of them means hardware acceleration is unavailable.
var (
	ErrInitFailed         = errors.New("display initialization failed")
	ErrUnsupportedVersion = errors.New("unsupported VA-API version")
	ErrClosed             = errors.New("display closed")
)

// Resource failures. These are scoped to a single operation.
var (
	ErrInvalidParams = errors.New("invalid parameters")
	ErrAlreadyBound  = errors.New("surface bound to another context")
	ErrInvalidState  = errors.New("invalid state")
	ErrDestroyed     = errors.New("handle already destroyed")
	ErrUnsupported   = errors.New("not supported by the loaded libva")
)

// NativeError is a non-success VAStatus returned by a libva entry point.
type NativeError struct {
	Func   string
	Status native.Status
	Text   string
}

func (e *NativeError) Error() string {
	text := e.Text
	if text == "" {
		text = e.Status.Text()
	}
	return fmt.Sprintf("%s: %s (0x%x)", e.Func, text, uint32(e.Status))
}

// DisplayError reports a failure of the display as a whole.
type DisplayError struct {
	Op  string
	Err error
}

func (e *DisplayError) Error() string { return "vaapi: " + e.Op + ": " + e.Err.Error() }
func (e *DisplayError) Unwrap() error { return e.Err }

// ResourceKind names the handle type a ResourceError refers to.
type ResourceKind string

const (
	KindConfig  ResourceKind = "config"
	KindContext ResourceKind = "context"
	KindSurface ResourceKind = "surface"
	KindBuffer  ResourceKind = "buffer"
	KindImage   ResourceKind = "image"
)

// ResourceError reports a failure of one operation on one handle. ID is
// native.InvalidID when the handle does not exist yet.
type ResourceError struct {
	Op   string
	Kind ResourceKind
	ID   uint32
	Err  error
}

func (e *ResourceError) Error() string {
	if e.ID == native.InvalidID {
		return fmt.Sprintf("vaapi: %s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("vaapi: %s %d: %s: %v", e.Kind, e.ID, e.Op, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err means no acceleration is available at all
// (library, symbol, display or version failure, or a closed display), as
// opposed to a single failed operation.
func IsUnavailable(err error) bool {
	var le *native.LoadError
	var de *DisplayError
	return errors.As(err, &le) || errors.As(err, &de)
}

// StatusOf extracts the libva status carried by err.
func StatusOf(err error) (native.Status, bool) {
	var ne *NativeError
	if errors.As(err, &ne) {
		return ne.Status, true
	}
	return native.StatusSuccess, false
}

func invalidParams(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidParams}, args...)...)
}

func invalidState(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidState}, args...)...)
}
