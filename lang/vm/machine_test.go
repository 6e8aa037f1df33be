package vm_test

import (
	"testing"

	"github.com/nilstack/stackvm/lang/value"
	"github.com/nilstack/stackvm/lang/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// instr is one symbolic instruction in the tiny hand-assembler below, used
// to build bytecode for tests without hand-computing jump-delta arithmetic.
type instr struct {
	kind  string // "op", "u8", "literal", "jump", "label"
	op    vm.Opcode
	u8    uint8
	lit   vm.LiteralValue
	label string
}

func opI(op vm.Opcode) instr                { return instr{kind: "op", op: op} }
func u8I(op vm.Opcode, arg uint8) instr     { return instr{kind: "u8", op: op, u8: arg} }
func litI(v int64) instr                    { return instr{kind: "literal", lit: vm.LiteralValue{Kind: vm.LiteralInt, I: v}} }
func jumpI(op vm.Opcode, label string) instr { return instr{kind: "jump", op: op, label: label} }
func labelI(name string) instr              { return instr{kind: "label", label: name} }

func instrSize(in instr) int {
	switch in.kind {
	case "op":
		return 1
	case "u8":
		return 2
	case "literal":
		if in.lit.Kind == vm.LiteralNone {
			return 2
		}
		return 10
	case "jump":
		return 5
	default:
		return 0
	}
}

// assemble lays out instrs in order, resolving jump targets to "position −
// jump's own position" deltas (spec.md §8: "ops[j].dest == L.target − j").
func assemble(instrs []instr) []byte {
	pos := make([]int, len(instrs))
	labels := map[string]int{}
	cur := 0
	for i, in := range instrs {
		pos[i] = cur
		if in.kind == "label" {
			labels[in.label] = cur
		}
		cur += instrSize(in)
	}

	var code []byte
	for i, in := range instrs {
		switch in.kind {
		case "op":
			code = vm.WriteOp(in.op, code)
		case "u8":
			code = vm.WriteU8Op(in.op, in.u8, code)
		case "literal":
			code = vm.WriteLiteralOp(in.lit, code)
		case "jump":
			delta := int32(labels[in.label] - pos[i])
			code = vm.WriteJumpOp(in.op, delta, code)
		}
	}
	return code
}

func runFn(t *testing.T, code []byte, args ...value.Value) (value.Value, error) {
	t.Helper()
	module := value.NewTuple([]value.Value{value.None})
	fn := value.NewFunction(module, &value.Ops{Code: code})
	value.Release(module)
	var m vm.Machine
	return m.Run(fn, args)
}

func TestAddTwoLiterals(t *testing.T) {
	code := assemble([]instr{
		litI(1),
		litI(2),
		opI(vm.Add),
		opI(vm.Return),
	})
	got, err := runFn(t, code)
	require.NoError(t, err)
	assert.Equal(t, value.Int(3), got)
}

func TestArithmeticPrecedenceOrdering(t *testing.T) {
	// (5 - 1) * (4 + 2)
	code := assemble([]instr{
		litI(5),
		litI(1),
		opI(vm.Sub),
		litI(4),
		litI(2),
		opI(vm.Add),
		opI(vm.Mul),
		opI(vm.Return),
	})
	got, err := runFn(t, code)
	require.NoError(t, err)
	assert.Equal(t, value.Int(24), got)
}

// TestLogicOrShortCircuits hand-encodes "1 or (1/0)": the left operand is
// truthy, so the right operand (which would divide by zero) must never
// execute.
func TestLogicOrShortCircuits(t *testing.T) {
	code := assemble([]instr{
		litI(1),
		opI(vm.StackCopy),
		jumpI(vm.JumpZero, "rhs"),
		jumpI(vm.Jump, "done"),
		labelI("rhs"),
		opI(vm.StackPop),
		litI(1),
		litI(0),
		opI(vm.Div),
		labelI("done"),
		opI(vm.Return),
	})
	got, err := runFn(t, code)
	require.NoError(t, err)
	assert.Equal(t, value.Int(1), got)
}

// TestLoopWithBreak sums i = 0..6 into a local, breaking once the running
// sum exceeds 20, and returns the sum (21).
func TestLoopWithBreak(t *testing.T) {
	code := assemble([]instr{
		litI(0),
		u8I(vm.StackStore, 1), // i = 0
		litI(0),
		u8I(vm.StackStore, 2), // sum = 0
		labelI("top"),
		u8I(vm.StackLoad, 2),
		u8I(vm.StackLoad, 1),
		opI(vm.Add),
		u8I(vm.StackStore, 2), // sum += i
		u8I(vm.StackLoad, 1),
		litI(1),
		opI(vm.Add),
		u8I(vm.StackStore, 1), // i += 1
		litI(20),
		u8I(vm.StackLoad, 2),
		opI(vm.Cmp), // Compare(20, sum): negative once sum > 20
		jumpI(vm.JumpNeg, "break"),
		jumpI(vm.Jump, "top"),
		labelI("break"),
		u8I(vm.StackLoad, 2),
		opI(vm.Return),
	})
	got, err := runFn(t, code)
	require.NoError(t, err)
	assert.Equal(t, value.Int(21), got)
}

// TestTableCreateAndGet builds a table from {1: 10, 2: 20} and reads key 1.
func TestTableCreateAndGet(t *testing.T) {
	code := assemble([]instr{
		litI(10),
		litI(1),
		u8I(vm.TupleCreate, 2), // (1, 10)
		litI(20),
		litI(2),
		u8I(vm.TupleCreate, 2), // (2, 20)
		u8I(vm.ListCreate, 2),
		opI(vm.TableCreate),
		u8I(vm.StackStore, 1), // table
		u8I(vm.StackLoad, 1),
		litI(1),
		opI(vm.SeqGet),
		opI(vm.Return),
	})
	got, err := runFn(t, code)
	require.NoError(t, err)
	assert.Equal(t, value.Int(10), got)
}

// TestTableSetOverwritesKey builds {1: 10, 2: 20}, overwrites key 2 to 99,
// and reads it back.
func TestTableSetOverwritesKey(t *testing.T) {
	code := assemble([]instr{
		litI(10),
		litI(1),
		u8I(vm.TupleCreate, 2),
		litI(20),
		litI(2),
		u8I(vm.TupleCreate, 2),
		u8I(vm.ListCreate, 2),
		opI(vm.TableCreate),
		u8I(vm.StackStore, 1),
		u8I(vm.StackLoad, 1),
		litI(2),
		litI(99),
		opI(vm.SeqSet),
		u8I(vm.StackLoad, 1),
		litI(2),
		opI(vm.SeqGet),
		opI(vm.Return),
	})
	got, err := runFn(t, code)
	require.NoError(t, err)
	assert.Equal(t, value.Int(99), got)
}

// TestTableSetNoneDeletesKey builds {1: 10, 2: 20}, sets key 2 to None
// (which deletes it), and reads it back as None.
func TestTableSetNoneDeletesKey(t *testing.T) {
	code := assemble([]instr{
		litI(10),
		litI(1),
		u8I(vm.TupleCreate, 2),
		litI(20),
		litI(2),
		u8I(vm.TupleCreate, 2),
		u8I(vm.ListCreate, 2),
		opI(vm.TableCreate),
		u8I(vm.StackStore, 1),
		u8I(vm.StackLoad, 1),
		litI(2),
		instr{kind: "literal", lit: vm.LiteralValue{Kind: vm.LiteralNone}},
		opI(vm.SeqSet),
		u8I(vm.StackLoad, 1),
		litI(2),
		opI(vm.SeqGet),
		opI(vm.Return),
	})
	got, err := runFn(t, code)
	require.NoError(t, err)
	assert.Equal(t, value.None, got)
}

// TestBufferSetSliceIsOverlapSafe copies buf[0:4] into buf[2:6] in place:
// [1,2,3,4,5,6,7,8] becomes [1,2,1,2,3,4,7,8] (spec.md §3's "as if the
// source were read in full before any byte is written").
func TestBufferSetSliceIsOverlapSafe(t *testing.T) {
	instrs := []instr{litI(8), opI(vm.BufferCreate), u8I(vm.StackStore, 1)}
	for i := int64(0); i < 8; i++ {
		instrs = append(instrs,
			u8I(vm.StackLoad, 1),
			litI(i),
			litI(i+1),
			opI(vm.SeqSet),
		)
	}
	instrs = append(instrs,
		u8I(vm.StackLoad, 1), // buffer
		u8I(vm.StackLoad, 1), // src (same buffer)
		litI(0),              // src_offset
		litI(2),              // offset
		litI(4),              // length
		opI(vm.BufferSetSlice),
		u8I(vm.StackLoad, 1),
		opI(vm.Return),
	)
	code := assemble(instrs)

	got, err := runFn(t, code)
	require.NoError(t, err)
	buf, ok := got.(*value.Buffer)
	require.True(t, ok)

	want := []value.Value{
		value.Int(1), value.Int(2), value.Int(1), value.Int(2),
		value.Int(3), value.Int(4), value.Int(7), value.Int(8),
	}
	for i, w := range want {
		v, err := buf.Get(i)
		require.NoError(t, err)
		assert.Equal(t, w, v, "byte %d", i)
	}
}

// TestListAliasingSharesWrites stores one list in two local slots and
// pushes through one alias: the length observed through the other alias
// grows too.
func TestListAliasingSharesWrites(t *testing.T) {
	code := assemble([]instr{
		litI(1),
		litI(2),
		u8I(vm.ListCreate, 2),
		u8I(vm.StackStore, 1), // x = [1, 2]
		u8I(vm.StackLoad, 1),
		u8I(vm.StackStore, 2), // y = x
		u8I(vm.StackLoad, 2),
		litI(3),
		opI(vm.ListPush), // y.push(3)
		u8I(vm.StackLoad, 1),
		opI(vm.SeqLen), // len(x)
		opI(vm.Return),
	})
	got, err := runFn(t, code)
	require.NoError(t, err)
	assert.Equal(t, value.Int(3), got)
}

// TestCallNativeFnReceivesArgsLastPushedFirst calls a native function
// stored in the module tuple with two arguments: the native side sees the
// last source argument at index 0, so first − second must index args
// accordingly.
func TestCallNativeFnReceivesArgsLastPushedFirst(t *testing.T) {
	sub := &value.NativeFn{
		Name: "sub",
		Fn: func(args []value.Value) value.Value {
			first, err := value.CoerceInt(args[len(args)-1])
			if err != nil {
				return value.NewUnknown(err)
			}
			second, err := value.CoerceInt(args[0])
			if err != nil {
				return value.NewUnknown(err)
			}
			return first - second
		},
	}
	module := value.NewTuple([]value.Value{sub})
	code := assemble([]instr{
		u8I(vm.StackLoad, 0),
		litI(0),
		opI(vm.SeqGet), // the native fn
		litI(20),
		litI(22),
		u8I(vm.Call, 2), // sub(20, 22)
		opI(vm.Return),
	})
	fn := value.NewFunction(module, &value.Ops{Code: code})
	value.Release(module)

	var m vm.Machine
	got, err := m.Run(fn, nil)
	require.NoError(t, err)
	assert.Equal(t, value.Int(-2), got)
}

func TestStepLimitAborts(t *testing.T) {
	code := assemble([]instr{
		labelI("top"),
		litI(1),
		opI(vm.StackPop),
		jumpI(vm.Jump, "top"),
	})
	m := vm.Machine{MaxSteps: 10}
	_, err := m.Run(mustFn(code), nil)
	assert.ErrorIs(t, err, vm.ErrStepLimit)
}

func mustFn(code []byte) *value.Function {
	module := value.NewTuple([]value.Value{value.None})
	fn := value.NewFunction(module, &value.Ops{Code: code})
	value.Release(module)
	return fn
}
