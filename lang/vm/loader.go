package vm

import (
	"github.com/nilstack/stackvm/lang/bcode"
	"github.com/nilstack/stackvm/lang/value"
)

// FormatVersion is the only supported Program wire-format version
// (SPEC_FULL.md §6 expansion: a version byte was not in the original
// format and is added here as "strongly recommended" in spec.md §9).
const FormatVersion = 1

// ModuleItemKind tags one entry of a Module (spec.md §4.5, §6).
type ModuleItemKind uint8

const (
	ItemLiteral ModuleItemKind = iota
	ItemBuffer
	ItemModuleRef
	ItemFunction
)

// ModuleItem is the decoded (but not yet materialized) form of one module
// entry.
type ModuleItem struct {
	Kind    ModuleItemKind
	Literal LiteralValue
	Buffer  []byte
	Ref     uint32
	Ops     *value.Ops
}

func decodeOneOp(b []byte) (rest []byte, err error) {
	rest, opb, err := bcode.ReadU8(b)
	if err != nil {
		return b, err
	}
	op := Opcode(opb)
	switch op.payload() {
	case payloadNone:
		return rest, nil
	case payloadI32:
		rest, _, err = bcode.ReadI32(rest)
		return rest, err
	case payloadU8:
		rest, _, err = bcode.ReadU8(rest)
		return rest, err
	case payloadLiteral:
		rest, _, err = ReadLiteralValue(rest)
		return rest, err
	default:
		return rest, nil
	}
}

// decodeOps reads exactly count instructions, returning their raw encoded
// bytes as a single Ops (the interpreter reads straight from this byte
// stream; see machine.go).
func decodeOps(b []byte, count uint32) (rest []byte, ops *value.Ops, err error) {
	cur := b
	for i := uint32(0); i < count; i++ {
		cur, err = decodeOneOp(cur)
		if err != nil {
			return b, nil, err
		}
	}
	consumed := len(b) - len(cur)
	code := make([]byte, consumed)
	copy(code, b[:consumed])
	return cur, &value.Ops{Code: code}, nil
}

// DecodeModuleItem decodes a single ModuleItem (spec.md §6).
func DecodeModuleItem(b []byte) (rest []byte, item ModuleItem, err error) {
	rest, tag, err := bcode.ReadU8(b)
	if err != nil {
		return b, ModuleItem{}, err
	}
	switch ModuleItemKind(tag) {
	case ItemLiteral:
		rest, lv, err := ReadLiteralValue(rest)
		if err != nil {
			return b, ModuleItem{}, err
		}
		return rest, ModuleItem{Kind: ItemLiteral, Literal: lv}, nil
	case ItemBuffer:
		rest, bs, err := bcode.ReadBlob(rest)
		if err != nil {
			return b, ModuleItem{}, err
		}
		return rest, ModuleItem{Kind: ItemBuffer, Buffer: bs}, nil
	case ItemModuleRef:
		rest, idx, err := bcode.ReadU32(rest)
		if err != nil {
			return b, ModuleItem{}, err
		}
		return rest, ModuleItem{Kind: ItemModuleRef, Ref: idx}, nil
	case ItemFunction:
		rest, opCount, err := bcode.ReadU32(rest)
		if err != nil {
			return b, ModuleItem{}, err
		}
		rest, ops, err := decodeOps(rest, opCount)
		if err != nil {
			return b, ModuleItem{}, err
		}
		return rest, ModuleItem{Kind: ItemFunction, Ops: ops}, nil
	default:
		return b, ModuleItem{}, &bcode.InvalidValueError{At: 0}
	}
}

// EncodeModuleItem appends the wire form of item.
func EncodeModuleItem(item ModuleItem, dst []byte) ([]byte, error) {
	dst = bcode.WriteU8(uint8(item.Kind), dst)
	switch item.Kind {
	case ItemLiteral:
		return WriteLiteralValue(item.Literal, dst), nil
	case ItemBuffer:
		return bcode.WriteBlob(item.Buffer, dst)
	case ItemModuleRef:
		return bcode.WriteU32(item.Ref, dst), nil
	case ItemFunction:
		dst = bcode.WriteU32(uint32(countOps(item.Ops.Code)), dst)
		return append(dst, item.Ops.Code...), nil
	default:
		return dst, nil
	}
}

// countOps counts the number of instructions encoded in code, by
// replaying decodeOneOp over it.
func countOps(code []byte) int {
	n := 0
	cur := code
	for len(cur) > 0 {
		rest, err := decodeOneOp(cur)
		if err != nil {
			break
		}
		cur = rest
		n++
	}
	return n
}

// DecodeModule decodes a length-prefixed list of ModuleItems.
func DecodeModule(b []byte) (rest []byte, items []ModuleItem, err error) {
	rest, n, err := bcode.ReadU32(b)
	if err != nil {
		return b, nil, err
	}
	items = make([]ModuleItem, n)
	for i := uint32(0); i < n; i++ {
		rest, items[i], err = DecodeModuleItem(rest)
		if err != nil {
			return b, nil, err
		}
	}
	return rest, items, nil
}

// EncodeModule appends the wire form of a module's items.
func EncodeModule(items []ModuleItem, dst []byte) ([]byte, error) {
	dst = bcode.WriteU32(uint32(len(items)), dst)
	var err error
	for _, it := range items {
		dst, err = EncodeModuleItem(it, dst)
		if err != nil {
			return dst, err
		}
	}
	return dst, nil
}

// DecodeProgram decodes a version byte followed by a length-prefixed list
// of modules.
func DecodeProgram(b []byte) (modules [][]ModuleItem, err error) {
	rest, ver, err := bcode.ReadU8(b)
	if err != nil {
		return nil, err
	}
	if ver != FormatVersion {
		return nil, &bcode.InvalidValueError{At: 0}
	}
	rest, n, err := bcode.ReadU32(rest)
	if err != nil {
		return nil, err
	}
	modules = make([][]ModuleItem, n)
	for i := uint32(0); i < n; i++ {
		var items []ModuleItem
		rest, items, err = DecodeModule(rest)
		if err != nil {
			return nil, err
		}
		modules[i] = items
	}
	return modules, nil
}

// EncodeProgram prepends the format-version byte and appends every
// module in order.
func EncodeProgram(modules [][]ModuleItem) ([]byte, error) {
	dst := bcode.WriteU8(FormatVersion, nil)
	dst = bcode.WriteU32(uint32(len(modules)), dst)
	var err error
	for _, m := range modules {
		dst, err = EncodeModule(m, dst)
		if err != nil {
			return dst, err
		}
	}
	return dst, nil
}

// refFixup records a ModuleRef placeholder to resolve once every module's
// tuple exists.
type refFixup struct {
	module *value.Tuple
	index  int
	target uint32
}

// LoadProgram materializes a decoded Program into a Tuple of module
// tuples (spec.md §4.5): one Tuple is created per module before any item
// is filled in, so functions can reference their own module and sibling
// modules; ModuleRef placeholders resolve in a second pass to
// programTuple.Get(target), or None if the target module does not exist.
func LoadProgram(modules [][]ModuleItem) (*value.Tuple, error) {
	moduleTuples := make([]*value.Tuple, len(modules))
	for i, items := range modules {
		moduleTuples[i] = value.NewTuple(make([]value.Value, len(items)))
	}
	program := value.NewTuple(toValues(moduleTuples))

	var fixups []refFixup
	for i, items := range modules {
		mt := moduleTuples[i]
		for j, item := range items {
			switch item.Kind {
			case ItemLiteral:
				if err := mt.Set(j, item.Literal.ToValue()); err != nil {
					return nil, err
				}
			case ItemBuffer:
				buf := value.NewBuffer(len(item.Buffer))
				for k, b := range item.Buffer {
					_ = buf.Set(k, value.Int(b))
				}
				if err := mt.Set(j, buf); err != nil {
					return nil, err
				}
				value.Release(buf)
			case ItemFunction:
				fn := value.NewFunction(mt, item.Ops)
				if err := mt.Set(j, fn); err != nil {
					return nil, err
				}
				value.Release(fn)
			case ItemModuleRef:
				fixups = append(fixups, refFixup{module: mt, index: j, target: item.Ref})
			}
		}
	}

	for _, fx := range fixups {
		if int(fx.target) >= len(moduleTuples) {
			if err := fx.module.Set(fx.index, value.None); err != nil {
				return nil, err
			}
			continue
		}
		v, err := program.Get(int(fx.target))
		if err != nil {
			return nil, err
		}
		if err := fx.module.Set(fx.index, v); err != nil {
			return nil, err
		}
	}

	return program, nil
}

func toValues(tuples []*value.Tuple) []value.Value {
	vs := make([]value.Value, len(tuples))
	for i, t := range tuples {
		vs[i] = t
	}
	return vs
}
