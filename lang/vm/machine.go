package vm

import (
	"fmt"
	"io"

	"github.com/nilstack/stackvm/lang/bcode"
	"github.com/nilstack/stackvm/lang/token"
	"github.com/nilstack/stackvm/lang/value"
)

// Machine executes compiled functions. Its configuration is plain
// exported struct fields rather than functional options.
type Machine struct {
	// MaxSteps bounds the number of executed instructions before the run
	// is aborted with ErrStepLimit. Zero means unlimited.
	MaxSteps int

	// MaxCallDepth bounds frame nesting before ErrRecursionLimit. Zero
	// means unlimited.
	MaxCallDepth int

	// Trace, if non-nil, receives one line per executed instruction.
	Trace io.Writer

	steps int
}

// Run executes fn with the given arguments (args[0] is the first source
// argument) and returns its top-level return value. Arguments land on the
// root frame's operand stack last-argument-first, the same layout a Call
// instruction produces, so the function prologue's per-argument stores
// consume them in declaration order.
func (m *Machine) Run(fn *value.Function, args []value.Value) (value.Value, error) {
	root := NewFrame(nil, fn)
	for i := len(args) - 1; i >= 0; i-- {
		root.Push(args[i])
	}
	return m.exec(root, 1)
}

// exec runs fr's instruction stream to completion, following Call/Return
// across child frames, and returns the value produced by the outermost
// Return in this call chain (spec.md §4.4).
func (m *Machine) exec(fr *Frame, depth int) (value.Value, error) {
	if m.MaxCallDepth > 0 && depth > m.MaxCallDepth {
		return nil, ErrRecursionLimit
	}

	code := fr.Fn.Ops.Code
	var pc uint32

	for {
		if m.MaxSteps > 0 {
			m.steps++
			if m.steps > m.MaxSteps {
				return nil, ErrStepLimit
			}
		}

		if int(pc) >= len(code) {
			// executing past the end of the op vector returns None implicitly.
			fr.Teardown()
			return value.None, nil
		}

		opPos := pc
		op := Opcode(code[pc])
		pc++

		if m.Trace != nil {
			fmt.Fprintf(m.Trace, "%04d %s\n", opPos, op)
		}

		switch op {
		case Jump, JumpZero, JumpNeg:
			rest, delta, err := bcode.ReadI32(code[pc:])
			if err != nil {
				return nil, err
			}
			pc += uint32(len(code[pc:]) - len(rest))

			take := op == Jump
			if !take {
				v, err := fr.Pop()
				if err != nil {
					return nil, err
				}
				switch op {
				case JumpZero:
					take = isZero(v)
				case JumpNeg:
					take = isNeg(v)
				}
				value.Release(v)
			}
			if take {
				pc = uint32(int64(opPos) + int64(delta))
			}
			continue

		case Call, StackLoad, StackStore, StackSwap, TupleCreate, ListCreate:
			rest, arg, err := bcode.ReadU8(code[pc:])
			if err != nil {
				return nil, err
			}
			pc += uint32(len(code[pc:]) - len(rest))

			result, retv, err := m.execU8(fr, op, arg, depth)
			if err != nil {
				return nil, err
			}
			if result == execReturn {
				return retv, nil
			}
			continue

		case LiteralCreate:
			rest, lv, err := ReadLiteralValue(code[pc:])
			if err != nil {
				return nil, err
			}
			pc += uint32(len(code[pc:]) - len(rest))
			fr.Push(lv.ToValue())
			continue
		}

		result, retv, err := m.execSimple(fr, op)
		if err != nil {
			return nil, err
		}
		if result == execReturn {
			return retv, nil
		}
	}
}

type execResult uint8

const (
	execContinue execResult = iota
	execReturn
)

func isZero(v value.Value) bool {
	switch x := v.(type) {
	case value.NoneType:
		return true
	case value.Int:
		return x == 0
	case value.Real:
		return x == 0
	default:
		return false
	}
}

func isNeg(v value.Value) bool {
	switch x := v.(type) {
	case value.Int:
		return x < 0
	case value.Real:
		return x < 0
	default:
		return false
	}
}

// execU8 handles every opcode whose payload is a single u8 (slot index,
// element count, or argument count).
func (m *Machine) execU8(fr *Frame, op Opcode, arg uint8, depth int) (execResult, value.Value, error) {
	switch op {
	case StackLoad:
		if err := fr.Load(int(arg)); err != nil {
			return 0, nil, err
		}
	case StackStore:
		if err := fr.Store(int(arg)); err != nil {
			return 0, nil, err
		}
	case StackSwap:
		if err := fr.Swap(int(arg)); err != nil {
			return 0, nil, err
		}
	case TupleCreate:
		cells, err := popN(fr, int(arg))
		if err != nil {
			return 0, nil, err
		}
		fr.Push(value.NewTuple(cells))
	case ListCreate:
		elems, err := popN(fr, int(arg))
		if err != nil {
			return 0, nil, err
		}
		fr.Push(value.NewList(elems))
	case Call:
		return m.execCall(fr, int(arg), depth)
	}
	return execContinue, nil, nil
}

// popN pops n values, placing the last-popped (i.e. first-pushed) value
// at the highest index: cells[0] is the last value pushed by the caller
// (spec.md §4.2: "last-pushed becomes index 0").
func popN(fr *Frame, n int) ([]value.Value, error) {
	cells := make([]value.Value, n)
	for i := 0; i < n; i++ {
		v, err := fr.Pop()
		if err != nil {
			return nil, err
		}
		cells[i] = v
	}
	return cells, nil
}

func (m *Machine) execCall(fr *Frame, argc int, depth int) (execResult, value.Value, error) {
	args, err := popN(fr, argc) // args[0] = last-pushed = last source argument
	if err != nil {
		return 0, nil, err
	}
	callee, err := fr.Pop()
	if err != nil {
		return 0, nil, err
	}

	switch c := callee.(type) {
	case *value.Function:
		value.Release(callee) // the stack's strong reference to the callee is spent
		child := NewFrame(fr, c)
		for _, a := range args {
			child.Push(a)
		}
		ret, err := m.exec(child, depth+1)
		if err != nil {
			return 0, nil, err
		}
		fr.Push(ret)
		return execContinue, nil, nil
	case *value.NativeFn:
		// args is already last-pushed-first (spec.md §4.4: CallNative
		// reuses the same args as Call, no re-reversal). A failing native
		// call reports through its return value, never through an error.
		fr.Push(c.Fn(args))
		return execContinue, nil, nil
	default:
		return 0, nil, &value.BadTypeError{Kind: callee.Kind()}
	}
}

// execSimple handles every opcode with no payload or whose payload has
// already been consumed by the caller (currently none: LiteralCreate and
// the u8/i32 families are dispatched separately).
func (m *Machine) execSimple(fr *Frame, op Opcode) (execResult, value.Value, error) {
	switch op {
	case Add, Sub, Mul, Div, Rem:
		return execContinue, nil, binaryArith(fr, arithToken[op])
	case Neg:
		return execContinue, nil, unary(fr, token.UMINUS)
	case Shl, Shr, And, Or, Xor:
		return execContinue, nil, binaryArith(fr, bitwiseToken[op])
	case Not:
		return execContinue, nil, unary(fr, token.TILDE)
	case Floor:
		return execContinue, nil, roundOp(fr, value.Floor)
	case Ceil:
		return execContinue, nil, roundOp(fr, value.Ceil)
	case Trunc:
		return execContinue, nil, roundOp(fr, value.Trunc)
	case Round:
		return execContinue, nil, roundOp(fr, value.Round)
	case IntToReal:
		return execContinue, nil, roundOp(fr, value.IntToReal)
	case Cmp:
		return execContinue, nil, cmpOp(fr)
	case GetType:
		return execContinue, nil, getTypeOp(fr)
	case Return:
		v, err := fr.Pop()
		if err != nil {
			return 0, nil, err
		}
		fr.Teardown()
		return execReturn, v, nil
	case StackCopy:
		return execContinue, nil, fr.Copy()
	case StackPop:
		v, err := fr.Pop()
		if err != nil {
			return 0, nil, err
		}
		value.Release(v)
		return execContinue, nil, nil
	case TupleFromList:
		return execContinue, nil, tupleFromListOp(fr)
	case TupleWeakRef:
		return execContinue, nil, tupleWeakRefOp(fr)
	case TupleWeakUpgrade:
		return execContinue, nil, tupleWeakUpgradeOp(fr)
	case TableCreate:
		return execContinue, nil, tableCreateOp(fr)
	case ListPush:
		return execContinue, nil, listPushOp(fr)
	case ListPop:
		return execContinue, nil, listPopOp(fr)
	case ListGetSlice:
		return execContinue, nil, listGetSliceOp(fr)
	case BufferCreate:
		return execContinue, nil, bufferCreateOp(fr)
	case BufferGetSlice:
		return execContinue, nil, bufferGetSliceOp(fr)
	case BufferSetSlice:
		return execContinue, nil, bufferSetSliceOp(fr)
	case SeqLen:
		return execContinue, nil, seqLenOp(fr)
	case SeqResize:
		return execContinue, nil, seqResizeOp(fr)
	case SeqGet:
		return execContinue, nil, seqGetOp(fr)
	case SeqSet:
		return execContinue, nil, seqSetOp(fr)
	case SeqToList:
		return execContinue, nil, seqToListOp(fr)
	case SeqAppend:
		return execContinue, nil, seqAppendOp(fr)
	default:
		return 0, nil, fmt.Errorf("vm: unimplemented opcode %s", op)
	}
}

var arithToken = map[Opcode]token.Token{
	Add: token.PLUS, Sub: token.MINUS, Mul: token.STAR, Div: token.SLASH, Rem: token.PERCENT,
}

var bitwiseToken = map[Opcode]token.Token{
	Shl: token.LTLT, Shr: token.GTGT, And: token.AMPERSAND, Or: token.PIPE, Xor: token.CIRCUMFLEX,
}

func binaryArith(fr *Frame, tok token.Token) error {
	y, err := fr.Pop()
	if err != nil {
		return err
	}
	x, err := fr.Pop()
	if err != nil {
		return err
	}
	z, err := value.Binary(tok, x, y)
	value.Release(x)
	value.Release(y)
	if err != nil {
		return err
	}
	fr.Push(z)
	return nil
}

func unary(fr *Frame, tok token.Token) error {
	x, err := fr.Pop()
	if err != nil {
		return err
	}
	z, err := value.Unary(tok, x)
	value.Release(x)
	if err != nil {
		return err
	}
	fr.Push(z)
	return nil
}

func roundOp(fr *Frame, f func(value.Value) (value.Value, error)) error {
	x, err := fr.Pop()
	if err != nil {
		return err
	}
	z, err := f(x)
	value.Release(x)
	if err != nil {
		return err
	}
	fr.Push(z)
	return nil
}

func cmpOp(fr *Frame) error {
	y, err := fr.Pop()
	if err != nil {
		return err
	}
	x, err := fr.Pop()
	if err != nil {
		return err
	}
	c, err := value.Compare(x, y)
	value.Release(x)
	value.Release(y)
	if err != nil {
		return err
	}
	fr.Push(value.Int(c))
	return nil
}

func getTypeOp(fr *Frame) error {
	x, err := fr.Pop()
	if err != nil {
		return err
	}
	k := x.Kind()
	value.Release(x)
	fr.Push(value.Int(k))
	return nil
}

func tupleFromListOp(fr *Frame) error {
	v, err := fr.Pop()
	if err != nil {
		return err
	}
	l, ok := v.(*value.List)
	if !ok {
		value.Release(v)
		return &value.BadTypeError{Kind: v.Kind()}
	}
	cells := make([]value.Value, l.Len())
	for i := range cells {
		cells[i], _ = l.Get(i)
		value.Retain(cells[i])
	}
	value.Release(l)
	fr.Push(value.NewTuple(cells))
	return nil
}

func tupleWeakRefOp(fr *Frame) error {
	v, err := fr.Pop()
	if err != nil {
		return err
	}
	t, ok := v.(*value.Tuple)
	if !ok {
		value.Release(v)
		return &value.BadTypeError{Kind: v.Kind()}
	}
	weak := value.NewTupleWeak(t)
	value.Release(t)
	fr.Push(weak)
	return nil
}

func tupleWeakUpgradeOp(fr *Frame) error {
	v, err := fr.Pop()
	if err != nil {
		return err
	}
	w, ok := v.(*value.TupleWeak)
	if !ok {
		return &value.BadTypeError{Kind: v.Kind()}
	}
	fr.Push(w.Upgrade())
	return nil
}

// tableCreateOp pops a List of 2-tuples (i64 key, Value) and builds a
// Table from them; duplicate keys resolve last-one-wins (spec.md §9).
func tableCreateOp(fr *Frame) error {
	v, err := fr.Pop()
	if err != nil {
		return err
	}
	l, ok := v.(*value.List)
	if !ok {
		value.Release(v)
		return &value.BadTypeError{Kind: v.Kind()}
	}
	tbl := value.NewTable()
	for i := 0; i < l.Len(); i++ {
		elem, _ := l.Get(i)
		pair, ok := elem.(*value.Tuple)
		if !ok || pair.Len() != 2 {
			value.Release(l)
			return &value.BadTypeError{Kind: elem.Kind()}
		}
		keyv, _ := pair.Get(0)
		key, err := value.CoerceInt(keyv)
		if err != nil {
			value.Release(l)
			return err
		}
		val, _ := pair.Get(1)
		tbl.Set(uint64(key), val)
	}
	value.Release(l)
	fr.Push(tbl)
	return nil
}

func listPushOp(fr *Frame) error {
	elem, err := fr.Pop()
	if err != nil {
		return err
	}
	v, err := fr.Pop()
	if err != nil {
		return err
	}
	l, ok := v.(*value.List)
	if !ok {
		value.Release(v)
		value.Release(elem)
		return &value.BadTypeError{Kind: v.Kind()}
	}
	l.Push(elem)
	value.Release(l)
	return nil
}

func listPopOp(fr *Frame) error {
	v, err := fr.Pop()
	if err != nil {
		return err
	}
	l, ok := v.(*value.List)
	if !ok {
		value.Release(v)
		return &value.BadTypeError{Kind: v.Kind()}
	}
	elem, err := l.Pop()
	value.Release(l)
	if err != nil {
		return err
	}
	fr.Push(elem)
	return nil
}

func listGetSliceOp(fr *Frame) error {
	hi, err := popIndex(fr)
	if err != nil {
		return err
	}
	lo, err := popIndex(fr)
	if err != nil {
		return err
	}
	v, err := fr.Pop()
	if err != nil {
		return err
	}
	l, ok := v.(*value.List)
	if !ok {
		value.Release(v)
		return &value.BadTypeError{Kind: v.Kind()}
	}
	sub, err := l.Slice(lo, hi)
	value.Release(l)
	if err != nil {
		return err
	}
	fr.Push(sub)
	return nil
}

func bufferCreateOp(fr *Frame) error {
	v, err := fr.Pop()
	if err != nil {
		return err
	}
	n, err := value.CoerceInt(v)
	if err != nil {
		return err
	}
	if n < 0 {
		return &IndexWriteError{Index: int(n)}
	}
	fr.Push(value.NewBuffer(int(n)))
	return nil
}

func bufferGetSliceOp(fr *Frame) error {
	hi, err := popIndex(fr)
	if err != nil {
		return err
	}
	lo, err := popIndex(fr)
	if err != nil {
		return err
	}
	v, err := fr.Pop()
	if err != nil {
		return err
	}
	b, ok := v.(*value.Buffer)
	if !ok {
		value.Release(v)
		return &value.BadTypeError{Kind: v.Kind()}
	}
	sub, err := b.Slice(lo, hi)
	value.Release(b)
	if err != nil {
		return err
	}
	fr.Push(sub)
	return nil
}

// bufferSetSliceOp pops, in order, len, offset, src_offset, src, buffer
// and copies src[src_offset:src_offset+len] into buffer[offset:offset+len]
// (spec.md §4.2). When src and buffer are the same Buffer the copy is
// overlap-safe (value.Buffer.CopyFrom relies on Go's memmove-based copy).
func bufferSetSliceOp(fr *Frame) error {
	length, err := popIndex(fr)
	if err != nil {
		return err
	}
	offset, err := popIndex(fr)
	if err != nil {
		return err
	}
	srcOffset, err := popIndex(fr)
	if err != nil {
		return err
	}
	srcv, err := fr.Pop()
	if err != nil {
		return err
	}
	bufv, err := fr.Pop()
	if err != nil {
		return err
	}
	src, ok := srcv.(*value.Buffer)
	if !ok {
		value.Release(srcv)
		value.Release(bufv)
		return &value.BadTypeError{Kind: srcv.Kind()}
	}
	buf, ok := bufv.(*value.Buffer)
	if !ok {
		value.Release(srcv)
		value.Release(bufv)
		return &value.BadTypeError{Kind: bufv.Kind()}
	}
	err = buf.CopyFrom(offset, src, srcOffset, length)
	value.Release(src)
	value.Release(buf)
	return err
}

func popIndex(fr *Frame) (int, error) {
	v, err := fr.Pop()
	if err != nil {
		return 0, err
	}
	i, err := value.CoerceInt(v)
	return int(i), err
}

func seqLenOp(fr *Frame) error {
	v, err := fr.Pop()
	if err != nil {
		return err
	}
	n, err := seqLen(v)
	value.Release(v)
	if err != nil {
		return err
	}
	fr.Push(value.Int(n))
	return nil
}

func seqLen(v value.Value) (int, error) {
	switch x := v.(type) {
	case *value.Tuple:
		return x.Len(), nil
	case *value.Table:
		return x.Len(), nil
	case *value.List:
		return x.Len(), nil
	case *value.Buffer:
		return x.Len(), nil
	default:
		return 0, &value.BadTypeError{Kind: v.Kind()}
	}
}

func seqResizeOp(fr *Frame) error {
	n, err := popIndex(fr)
	if err != nil {
		return err
	}
	v, err := fr.Pop()
	if err != nil {
		return err
	}
	defer value.Release(v)
	switch x := v.(type) {
	case *value.List:
		resizeList(x, n)
		return nil
	case *value.Buffer:
		resizeBuffer(x, n)
		return nil
	case *value.Tuple:
		return fmt.Errorf("vm: tuple is read-only, cannot resize")
	default:
		return &value.BadTypeError{Kind: v.Kind()}
	}
}

func resizeList(l *value.List, n int) {
	for l.Len() < n {
		l.Push(value.None)
	}
	for l.Len() > n {
		v, _ := l.Pop()
		value.Release(v)
	}
}

func resizeBuffer(b *value.Buffer, n int) { b.Resize(n) }

func seqGetOp(fr *Frame) error {
	idx, err := popIndex(fr)
	if err != nil {
		return err
	}
	v, err := fr.Pop()
	if err != nil {
		return err
	}
	result, err := seqGet(v, idx)
	value.Release(v)
	if err != nil {
		return err
	}
	value.Retain(result)
	fr.Push(result)
	return nil
}

func seqGet(v value.Value, idx int) (value.Value, error) {
	switch x := v.(type) {
	case *value.Tuple:
		return x.Get(idx)
	case *value.List:
		return x.Get(idx)
	case *value.Buffer:
		return x.Get(idx)
	case *value.Table:
		got, ok := x.Get(uint64(idx))
		if !ok {
			return value.None, nil
		}
		return got, nil
	default:
		return nil, &value.BadTypeError{Kind: v.Kind()}
	}
}

func seqSetOp(fr *Frame) error {
	newv, err := fr.Pop()
	if err != nil {
		return err
	}
	idx, err := popIndex(fr)
	if err != nil {
		value.Release(newv)
		return err
	}
	v, err := fr.Pop()
	if err != nil {
		value.Release(newv)
		return err
	}
	err = seqSet(v, idx, newv)
	value.Release(v)
	value.Release(newv) // cancel the implicit Retain the container Set performed
	return err
}

func seqSet(v value.Value, idx int, newv value.Value) error {
	switch x := v.(type) {
	case *value.Tuple:
		return x.Set(idx, newv)
	case *value.List:
		return x.Set(idx, newv)
	case *value.Buffer:
		return x.Set(idx, newv)
	case *value.Table:
		x.Set(uint64(idx), newv)
		return nil
	default:
		return &value.BadTypeError{Kind: v.Kind()}
	}
}

func seqToListOp(fr *Frame) error {
	v, err := fr.Pop()
	if err != nil {
		return err
	}
	l, err := seqToList(v)
	value.Release(v)
	if err != nil {
		return err
	}
	fr.Push(l)
	return nil
}

func seqToList(v value.Value) (*value.List, error) {
	switch x := v.(type) {
	case *value.Tuple:
		elems := make([]value.Value, x.Len())
		for i := range elems {
			elems[i], _ = x.Get(i)
			value.Retain(elems[i])
		}
		return value.NewList(elems), nil
	case *value.Buffer:
		elems := make([]value.Value, x.Len())
		for i := range elems {
			elems[i], _ = x.Get(i)
		}
		return value.NewList(elems), nil
	case *value.Table:
		keys := x.Keys()
		elems := make([]value.Value, len(keys))
		for i, k := range keys {
			val, _ := x.Get(k)
			value.Retain(val)
			elems[i] = value.NewTuple([]value.Value{value.Int(k), val})
		}
		return value.NewList(elems), nil
	default:
		return nil, &value.BadTypeError{Kind: v.Kind()}
	}
}

func seqAppendOp(fr *Frame) error {
	elem, err := fr.Pop()
	if err != nil {
		return err
	}
	v, err := fr.Pop()
	if err != nil {
		value.Release(elem)
		return err
	}
	err = seqAppend(v, elem)
	value.Release(v)
	if err != nil {
		value.Release(elem)
	}
	return err
}

func seqAppend(v value.Value, elem value.Value) error {
	switch x := v.(type) {
	case *value.List:
		x.Push(elem)
		return nil
	case *value.Buffer:
		src, ok := elem.(*value.Buffer)
		if !ok {
			return &value.BadTypeError{Kind: elem.Kind()}
		}
		n := src.Len()
		base := x.Len()
		x.Resize(base + n)
		if err := x.CopyFrom(base, src, 0, n); err != nil {
			return err
		}
		value.Release(elem)
		return nil
	default:
		return &value.BadTypeError{Kind: v.Kind()}
	}
}
