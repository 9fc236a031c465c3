package vaapi

import (
	"time"
	"unsafe"

	"github.com/bryanchriswhite/VAProbe/internal/vaapi/native"
)

// maxBufferBytes bounds a single buffer allocation.
const maxBufferBytes = 64 << 20

// BufferState tracks a buffer through Created → Filled → Submitted → Released.
type BufferState int

const (
	BufferCreated BufferState = iota
	BufferFilled
	BufferSubmitted
	BufferReleased
)

func (s BufferState) String() string {
	switch s {
	case BufferCreated:
		return "Created"
	case BufferFilled:
		return "Filled"
	case BufferSubmitted:
		return "Submitted"
	case BufferReleased:
		return "Released"
	}
	return "Unknown"
}

// Buffer holds parameter or slice data for a context.
type Buffer struct {
	d        *Display
	ctx      *Context
	id       native.BufferID
	typ      BufferType
	elemSize uint32
	count    uint32
	state    BufferState
}

func checkBufferArgs(typ BufferType, elemSize, count uint32) error {
	if !typ.IsKnown() {
		return invalidParams("buffer type %s", typ)
	}
	if elemSize == 0 || count == 0 {
		return invalidParams("empty buffer (%d x %d)", elemSize, count)
	}
	if uint64(elemSize)*uint64(count) > maxBufferBytes {
		return invalidParams("buffer of %d x %d bytes exceeds %d", elemSize, count, maxBufferBytes)
	}
	return nil
}

// CreateBuffer allocates count elements of elemSize bytes. The buffer starts
// out Created and must be filled before it can be rendered.
func (c *Context) CreateBuffer(typ BufferType, elemSize, count uint32) (*Buffer, error) {
	return c.createBuffer(typ, elemSize, count, nil)
}

// CreateDataBuffer allocates a buffer initialized with data. It starts out Filled.
func (c *Context) CreateDataBuffer(typ BufferType, data []byte) (*Buffer, error) {
	if len(data) == 0 || len(data) > maxBufferBytes {
		return nil, &ResourceError{Op: "create", Kind: KindBuffer, ID: native.InvalidID, Err: invalidParams("%d bytes of data", len(data))}
	}
	return c.createBuffer(typ, uint32(len(data)), 1, data)
}

func (c *Context) createBuffer(typ BufferType, elemSize, count uint32, data []byte) (*Buffer, error) {
	fail := func(err error) error {
		return &ResourceError{Op: "create", Kind: KindBuffer, ID: native.InvalidID, Err: err}
	}
	d := c.d
	if err := d.lock("create buffer"); err != nil {
		return nil, err
	}
	defer d.mu.Unlock()
	if err := c.checkLocked(d, "create buffer"); err != nil {
		return nil, fail(invalidParams("context %d: %w", c.id, ErrDestroyed))
	}
	if err := checkBufferArgs(typ, elemSize, count); err != nil {
		return nil, fail(err)
	}

	var ptr unsafe.Pointer
	state := BufferCreated
	if data != nil {
		ptr = unsafe.Pointer(&data[0])
		state = BufferFilled
	}
	var id native.BufferID
	if err := d.call("vaCreateBuffer", func() native.Status {
		return d.syms.CreateBuffer(d.raw, c.id, int32(typ), elemSize, count, ptr, &id)
	}); err != nil {
		return nil, fail(err)
	}
	b := &Buffer{d: d, ctx: c, id: id, typ: typ, elemSize: elemSize, count: count, state: state}
	d.buffers[id] = b
	return b, nil
}

func (b *Buffer) fail(op string, err error) error {
	return &ResourceError{Op: op, Kind: KindBuffer, ID: uint32(b.id), Err: err}
}

func (b *Buffer) checkLocked(d *Display, op string) error {
	if b == nil {
		return &ResourceError{Op: op, Kind: KindBuffer, ID: native.InvalidID, Err: invalidParams("nil buffer")}
	}
	if b.d != d {
		return b.fail(op, invalidParams("buffer belongs to display %d", b.d.id))
	}
	if b.state == BufferReleased || d.buffers[b.id] != b {
		return b.fail(op, ErrDestroyed)
	}
	return nil
}

func (b *Buffer) ID() native.BufferID { return b.id }
func (b *Buffer) Type() BufferType    { return b.typ }
func (b *Buffer) Context() *Context   { return b.ctx }

// Size returns the buffer size in bytes.
func (b *Buffer) Size() int { return int(b.elemSize) * int(b.count) }

// State reports where the buffer is in its lifecycle.
func (b *Buffer) State() BufferState {
	b.d.mu.Lock()
	defer b.d.mu.Unlock()
	return b.state
}

// Fill copies data into a Created buffer through a mapping. data may be
// shorter than the buffer; the rest is left as allocated.
func (b *Buffer) Fill(data []byte) error {
	d := b.d
	if err := d.lock("fill buffer"); err != nil {
		return err
	}
	defer d.mu.Unlock()
	if err := b.checkLocked(d, "fill"); err != nil {
		return err
	}
	if b.state != BufferCreated {
		return b.fail("fill", invalidState("buffer is %s, want %s", b.state, BufferCreated))
	}
	if len(data) > b.Size() {
		return b.fail("fill", invalidParams("%d bytes do not fit in %d", len(data), b.Size()))
	}

	var ptr uintptr
	if err := d.call("vaMapBuffer", func() native.Status {
		return d.syms.MapBuffer(d.raw, b.id, &ptr)
	}); err != nil {
		return b.fail("fill", err)
	}
	if ptr != 0 {
		copy(unsafe.Slice((*byte)(unsafe.Pointer(ptr)), b.Size()), data)
	}
	if err := d.call("vaUnmapBuffer", func() native.Status {
		return d.syms.UnmapBuffer(d.raw, b.id)
	}); err != nil {
		return b.fail("fill", err)
	}
	if ptr == 0 {
		return b.fail("fill", invalidState("driver mapped a nil pointer"))
	}
	b.state = BufferFilled
	return nil
}

// Sync waits up to timeout for the driver to finish with the buffer, for
// example an encoder's coded output. A negative timeout waits forever.
// It needs vaSyncBuffer, which older libva versions lack.
func (b *Buffer) Sync(timeout time.Duration) error {
	d := b.d
	if err := d.lock("sync buffer"); err != nil {
		return err
	}
	defer d.mu.Unlock()
	if err := b.checkLocked(d, "sync"); err != nil {
		return err
	}
	if d.syms.SyncBuffer == nil {
		return b.fail("sync", ErrUnsupported)
	}
	ns := uint64(native.TimeoutInfinite)
	if timeout >= 0 {
		ns = uint64(timeout.Nanoseconds())
	}
	if err := d.call("vaSyncBuffer", func() native.Status {
		return d.syms.SyncBuffer(d.raw, b.id, ns)
	}); err != nil {
		return b.fail("sync", err)
	}
	return nil
}

// Release ends the life of a submitted buffer.
func (b *Buffer) Release() error {
	d := b.d
	if err := d.lock("release buffer"); err != nil {
		return err
	}
	defer d.mu.Unlock()
	if err := b.checkLocked(d, "release"); err != nil {
		return err
	}
	if b.state != BufferSubmitted {
		return b.fail("release", invalidState("buffer is %s, want %s", b.state, BufferSubmitted))
	}
	return b.destroyLocked()
}

// Destroy releases the buffer from any live state.
func (b *Buffer) Destroy() error {
	d := b.d
	if err := d.lock("destroy buffer"); err != nil {
		return err
	}
	defer d.mu.Unlock()
	if err := b.checkLocked(d, "destroy"); err != nil {
		return err
	}
	return b.destroyLocked()
}

func (b *Buffer) destroyLocked() error {
	d := b.d
	b.state = BufferReleased
	delete(d.buffers, b.id)
	if err := d.call("vaDestroyBuffer", func() native.Status {
		return d.syms.DestroyBuffer(d.raw, b.id)
	}); err != nil {
		return b.fail("destroy", err)
	}
	return nil
}
