package value

import (
	"fmt"
	"unsafe"
)

// Buffer is a growable, shared sequence of bytes, addressed as Integer
// elements in [0,255] (spec.md §3: BufferCreate, BufferGet/Set,
// BufferGetSlice, and an overlap-safe copy for in-place rearrangement).
type Buffer struct {
	rc   refcount
	data []byte
}

// NewBuffer creates a zero-filled Buffer of n bytes.
func NewBuffer(n int) *Buffer {
	b := &Buffer{data: make([]byte, n)}
	b.rc.init()
	return b
}

func (b *Buffer) Kind() Kind        { return KindBuffer }
func (b *Buffer) String() string    { return fmt.Sprintf("buffer(%p)", b) }
func (b *Buffer) Identity() uintptr { return uintptr(unsafe.Pointer(b)) }
func (b *Buffer) Len() int          { return len(b.data) }

func (b *Buffer) retain()  { b.rc.retain() }
func (b *Buffer) release() { b.rc.release() }

// Get returns the byte at i as an Int.
func (b *Buffer) Get(i int) (Value, error) {
	if i < 0 || i >= len(b.data) {
		return nil, &IndexReadError{Index: i}
	}
	return Int(b.data[i]), nil
}

// Set truncates v to its low 8 bits and stores it at i.
func (b *Buffer) Set(i int, v Value) error {
	if i < 0 || i >= len(b.data) {
		return &IndexWriteError{Index: i}
	}
	iv, err := CoerceInt(v)
	if err != nil {
		return err
	}
	b.data[i] = byte(iv)
	return nil
}

// Resize grows or shrinks b to exactly n bytes in place, zero-filling any
// newly added bytes (spec.md §4.2's SeqResize).
func (b *Buffer) Resize(n int) {
	if n <= len(b.data) {
		b.data = b.data[:n]
		return
	}
	grown := make([]byte, n)
	copy(grown, b.data)
	b.data = grown
}

// Slice returns a new Buffer holding a copy of the bytes in [lo, hi).
func (b *Buffer) Slice(lo, hi int) (*Buffer, error) {
	if lo < 0 || lo > hi {
		return nil, &IndexReadError{Index: lo}
	}
	if hi > len(b.data) {
		return nil, &IndexReadError{Index: hi}
	}
	out := NewBuffer(hi - lo)
	copy(out.data, b.data[lo:hi])
	return out, nil
}

// CopyFrom copies length bytes from src[srcOffset:] into b[dstOffset:].
// src and b may be the same Buffer with overlapping ranges: Go's builtin
// copy is memmove-based and handles overlap correctly in either
// direction, so no special-casing is needed here (spec.md §3: "the copy
// must behave as if the source were read in full before any byte is
// written").
func (b *Buffer) CopyFrom(dstOffset int, src *Buffer, srcOffset, length int) error {
	if dstOffset < 0 || dstOffset+length > len(b.data) {
		return &IndexWriteError{Index: dstOffset + length}
	}
	if srcOffset < 0 || srcOffset+length > len(src.data) {
		return &IndexReadError{Index: srcOffset + length}
	}
	copy(b.data[dstOffset:dstOffset+length], src.data[srcOffset:srcOffset+length])
	return nil
}
