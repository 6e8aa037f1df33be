package vm

import (
	"github.com/nilstack/stackvm/lang/bcode"
	"github.com/nilstack/stackvm/lang/value"
)

// LiteralValue is the wire representation of an immediate value small
// enough to be inlined into an instruction's payload (spec.md §3, §6):
// None, a 64-bit Integer, or a 64-bit Real.
type LiteralValue struct {
	Kind LiteralKind
	I    int64
	R    float64
}

// LiteralKind tags a LiteralValue's payload.
type LiteralKind uint8

const (
	LiteralNone LiteralKind = iota
	LiteralInt
	LiteralReal
)

// ToValue materializes the runtime value.Value denoted by lv.
func (lv LiteralValue) ToValue() value.Value {
	switch lv.Kind {
	case LiteralInt:
		return value.Int(lv.I)
	case LiteralReal:
		return value.Real(lv.R)
	default:
		return value.None
	}
}

// LiteralValueFromValue builds the wire LiteralValue for a runtime value,
// for encoding module items. Non-literal kinds have no representation and
// are not valid here; callers are expected to have checked the kind
// first.
func LiteralValueFromValue(v value.Value) LiteralValue {
	switch x := v.(type) {
	case value.Int:
		return LiteralValue{Kind: LiteralInt, I: int64(x)}
	case value.Real:
		return LiteralValue{Kind: LiteralReal, R: float64(x)}
	default:
		return LiteralValue{Kind: LiteralNone}
	}
}

// ReadLiteralValue decodes a LiteralValue: a kind byte followed by its
// payload (i64 for Integer, f64 for Real, nothing for None).
func ReadLiteralValue(b []byte) (rest []byte, lv LiteralValue, err error) {
	rest, kind, err := bcode.ReadU8(b)
	if err != nil {
		return b, LiteralValue{}, err
	}
	switch LiteralKind(kind) {
	case LiteralNone:
		return rest, LiteralValue{Kind: LiteralNone}, nil
	case LiteralInt:
		rest, i, err := bcode.ReadI64(rest)
		if err != nil {
			return b, LiteralValue{}, err
		}
		return rest, LiteralValue{Kind: LiteralInt, I: i}, nil
	case LiteralReal:
		rest, r, err := bcode.ReadF64(rest)
		if err != nil {
			return b, LiteralValue{}, err
		}
		return rest, LiteralValue{Kind: LiteralReal, R: r}, nil
	default:
		return b, LiteralValue{}, &bcode.InvalidValueError{At: 0}
	}
}

// WriteLiteralValue appends the wire form of lv.
func WriteLiteralValue(lv LiteralValue, dst []byte) []byte {
	dst = bcode.WriteU8(uint8(lv.Kind), dst)
	switch lv.Kind {
	case LiteralInt:
		dst = bcode.WriteI64(lv.I, dst)
	case LiteralReal:
		dst = bcode.WriteF64(lv.R, dst)
	}
	return dst
}

// --- Instruction encoding -------------------------------------------------
//
// An Op is a one-byte opcode tag followed by a fixed-width payload whose
// shape depends on the opcode (spec.md §6): empty for most, i32 for
// jumps, u8 for local-slot/count operands, and a LiteralValue for
// LiteralCreate. Instruction streams are built by appending one encoded
// Op after another directly into a value.Ops.Code byte slice; there is no
// separate "Op" struct retained after encoding, matching the interpreter
// reading straight from the byte stream (see machine.go).

// WriteOp appends a payload-less opcode.
func WriteOp(op Opcode, dst []byte) []byte { return bcode.WriteU8(uint8(op), dst) }

// WriteJumpOp appends a jump opcode with its i32 relative delta.
func WriteJumpOp(op Opcode, delta int32, dst []byte) []byte {
	dst = bcode.WriteU8(uint8(op), dst)
	return bcode.WriteI32(delta, dst)
}

// WriteU8Op appends an opcode with a u8 payload (Call's argc, a local
// slot, or an element count).
func WriteU8Op(op Opcode, arg uint8, dst []byte) []byte {
	dst = bcode.WriteU8(uint8(op), dst)
	return bcode.WriteU8(arg, dst)
}

// WriteLiteralOp appends LiteralCreate with its LiteralValue payload.
func WriteLiteralOp(lv LiteralValue, dst []byte) []byte {
	dst = bcode.WriteU8(uint8(LiteralCreate), dst)
	return WriteLiteralValue(lv, dst)
}
