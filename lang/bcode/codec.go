// Package bcode implements the primitive big-endian byte codec shared by the
// instruction set, module loader, and program wire format: fixed-width
// integers and floats, 32-bit length-prefixed byte blobs, and 32-bit
// length-prefixed sequences. Every multi-byte numeric is big-endian; there is no varint
// encoding anywhere in this package — every instruction payload is
// fixed-width instead.
package bcode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrEndOfFile is returned when a read requires more bytes than are
// available.
var ErrEndOfFile = errors.New("bcode: unexpected end of file")

// InvalidValueError is returned when a read decodes bytes that are
// structurally present but denote no valid value (an out-of-range tag, for
// instance). At is the offset, within the slice passed to the failing
// read, where the bad value begins.
type InvalidValueError struct {
	At int
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("bcode: invalid value at offset %d", e.At)
}

// A Codec describes the wire representation of a Go type T: Read decodes a
// T from the front of b and returns the unconsumed remainder, and Write
// appends the encoded form of v to dst and returns the grown slice. No
// type in this module implements Codec: the primitives here and lang/vm's
// wire formats (LiteralValue, ModuleItem, Module, Program) are plain
// Read/Write function pairs of the same shape.
type Codec[T any] interface {
	Read(b []byte) (rest []byte, v T, err error)
	Write(v T, dst []byte) []byte
}

func need(b []byte, n int) error {
	if len(b) < n {
		return ErrEndOfFile
	}
	return nil
}

// ReadU8 decodes a single byte.
func ReadU8(b []byte) (rest []byte, v uint8, err error) {
	if err := need(b, 1); err != nil {
		return b, 0, err
	}
	return b[1:], b[0], nil
}

// WriteU8 appends a single byte.
func WriteU8(v uint8, dst []byte) []byte { return append(dst, v) }

// ReadU16 decodes a big-endian uint16.
func ReadU16(b []byte) (rest []byte, v uint16, err error) {
	if err := need(b, 2); err != nil {
		return b, 0, err
	}
	return b[2:], binary.BigEndian.Uint16(b), nil
}

// WriteU16 appends a big-endian uint16.
func WriteU16(v uint16, dst []byte) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(dst, tmp[:]...)
}

// ReadU32 decodes a big-endian uint32.
func ReadU32(b []byte) (rest []byte, v uint32, err error) {
	if err := need(b, 4); err != nil {
		return b, 0, err
	}
	return b[4:], binary.BigEndian.Uint32(b), nil
}

// WriteU32 appends a big-endian uint32.
func WriteU32(v uint32, dst []byte) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(dst, tmp[:]...)
}

// ReadI32 decodes a big-endian two's-complement int32 (used for relative
// jump deltas).
func ReadI32(b []byte) (rest []byte, v int32, err error) {
	rest, u, err := ReadU32(b)
	return rest, int32(u), err
}

// WriteI32 appends a big-endian two's-complement int32.
func WriteI32(v int32, dst []byte) []byte { return WriteU32(uint32(v), dst) }

// ReadU64 decodes a big-endian uint64.
func ReadU64(b []byte) (rest []byte, v uint64, err error) {
	if err := need(b, 8); err != nil {
		return b, 0, err
	}
	return b[8:], binary.BigEndian.Uint64(b), nil
}

// WriteU64 appends a big-endian uint64.
func WriteU64(v uint64, dst []byte) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(dst, tmp[:]...)
}

// ReadI64 decodes a big-endian two's-complement int64.
func ReadI64(b []byte) (rest []byte, v int64, err error) {
	rest, u, err := ReadU64(b)
	return rest, int64(u), err
}

// WriteI64 appends a big-endian two's-complement int64.
func WriteI64(v int64, dst []byte) []byte { return WriteU64(uint64(v), dst) }

// ReadF64 decodes a big-endian IEEE-754 double.
func ReadF64(b []byte) (rest []byte, v float64, err error) {
	rest, bits, err := ReadU64(b)
	if err != nil {
		return b, 0, err
	}
	return rest, math.Float64frombits(bits), nil
}

// WriteF64 appends a big-endian IEEE-754 double.
func WriteF64(v float64, dst []byte) []byte { return WriteU64(math.Float64bits(v), dst) }

// ReadBlob decodes a 32-bit length-prefixed byte sequence, copying the
// payload so the returned slice is independent of b.
func ReadBlob(b []byte) (rest []byte, v []byte, err error) {
	rest, n, err := ReadU32(b)
	if err != nil {
		return b, nil, err
	}
	if err := need(rest, int(n)); err != nil {
		return b, nil, err
	}
	v = make([]byte, n)
	copy(v, rest[:n])
	return rest[n:], v, nil
}

// WriteBlob appends a 32-bit length-prefixed byte sequence. It rejects
// payloads whose length does not fit in 32 bits.
func WriteBlob(v []byte, dst []byte) ([]byte, error) {
	if uint64(len(v)) > math.MaxUint32 {
		return dst, fmt.Errorf("bcode: blob length %d exceeds %d", len(v), uint32(math.MaxUint32))
	}
	dst = WriteU32(uint32(len(v)), dst)
	return append(dst, v...), nil
}

// ReadSeq decodes a 32-bit length-prefixed sequence of T, using elemRead to
// decode each element in turn.
func ReadSeq[T any](b []byte, elemRead func([]byte) ([]byte, T, error)) (rest []byte, vs []T, err error) {
	rest, n, err := ReadU32(b)
	if err != nil {
		return b, nil, err
	}
	vs = make([]T, 0, n)
	for i := uint32(0); i < n; i++ {
		var v T
		rest, v, err = elemRead(rest)
		if err != nil {
			return b, nil, err
		}
		vs = append(vs, v)
	}
	return rest, vs, nil
}

// WriteSeq appends a 32-bit length-prefixed sequence of T, using elemWrite
// to encode each element in declaration order with no separators.
func WriteSeq[T any](vs []T, dst []byte, elemWrite func(T, []byte) []byte) ([]byte, error) {
	if uint64(len(vs)) > math.MaxUint32 {
		return dst, fmt.Errorf("bcode: sequence length %d exceeds %d", len(vs), uint32(math.MaxUint32))
	}
	dst = WriteU32(uint32(len(vs)), dst)
	for _, v := range vs {
		dst = elemWrite(v, dst)
	}
	return dst, nil
}
