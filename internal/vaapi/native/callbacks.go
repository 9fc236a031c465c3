package native

import (
	"strings"
	"sync"
	"unsafe"
)

// MessageLevel tells error callbacks from info callbacks.
type MessageLevel int

const (
	LevelError MessageLevel = iota
	LevelInfo
)

func (l MessageLevel) String() string {
	if l == LevelError {
		return "libva-error"
	}
	return "libva-info"
}

// MessageSink receives libva log lines for one display.
type MessageSink func(level MessageLevel, msg string)

var (
	callbackOnce sync.Once
	errorCB      uintptr
	infoCB       uintptr
	callbackErr  error

	sinks sync.Map // uintptr -> MessageSink
)

// MessageCallbacks returns the process-wide C callbacks for vaSetErrorCallback
// and vaSetInfoCallback. They route by the user context pointer, which callers
// set to the value passed to RegisterSink.
func MessageCallbacks() (onError, onInfo uintptr, err error) {
	callbackOnce.Do(func() {
		errorCB, callbackErr = newCallback(func(userCtx uintptr, msg *byte) {
			Dispatch(userCtx, LevelError, GoString(msg))
		})
		if callbackErr != nil {
			return
		}
		infoCB, callbackErr = newCallback(func(userCtx uintptr, msg *byte) {
			Dispatch(userCtx, LevelInfo, GoString(msg))
		})
	})
	return errorCB, infoCB, callbackErr
}

// RegisterSink routes messages tagged with id to sink.
func RegisterSink(id uintptr, sink MessageSink) { sinks.Store(id, sink) }

// UnregisterSink drops the route for id.
func UnregisterSink(id uintptr) { sinks.Delete(id) }

// Dispatch delivers a message to the sink registered for id. Messages for
// unknown ids are dropped.
func Dispatch(id uintptr, level MessageLevel, msg string) {
	v, ok := sinks.Load(id)
	if !ok {
		return
	}
	v.(MessageSink)(level, strings.TrimRight(msg, "\r\n"))
}

// GoString copies a NUL-terminated C string.
func GoString(p *byte) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return string(unsafe.Slice(p, n))
}
