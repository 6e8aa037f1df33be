package vm_test

import (
	"testing"

	"github.com/nilstack/stackvm/lang/value"
	"github.com/nilstack/stackvm/lang/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFn() *value.Function {
	module := value.NewTuple([]value.Value{value.None})
	fn := value.NewFunction(module, &value.Ops{})
	value.Release(module) // NewFunction retained its own reference
	return fn
}

func TestFrameLoadRetains(t *testing.T) {
	fn := newFn()
	fr := vm.NewFrame(nil, fn)

	tup := value.NewTuple([]value.Value{value.Int(1)})
	fr.Push(tup)
	require.NoError(t, fr.Store(1))

	require.NoError(t, fr.Load(1))
	v, err := fr.Pop()
	require.NoError(t, err)
	assert.Equal(t, tup, v)

	// the local slot still owns its reference, so releasing the loaded
	// copy must not finalize the tuple.
	value.Release(v)
	assert.True(t, tup.Alive())

	fr.Teardown()
	assert.False(t, tup.Alive())
}

func TestFrameSwapMovesWithoutRetain(t *testing.T) {
	fn := newFn()
	fr := vm.NewFrame(nil, fn)

	tup := value.NewTuple([]value.Value{value.Int(1)})
	fr.Push(tup)
	require.NoError(t, fr.Store(1))

	fr.Push(value.Int(9))
	require.NoError(t, fr.Swap(1))

	v, err := fr.Pop()
	require.NoError(t, err)
	assert.Equal(t, tup, v)
	assert.True(t, tup.Alive())

	value.Release(v)
	fr.Teardown()
}

func TestFrameStoreAutoGrowsFillingWithNone(t *testing.T) {
	fn := newFn()
	fr := vm.NewFrame(nil, fn)

	fr.Push(value.Int(42))
	require.NoError(t, fr.Store(3))

	require.NoError(t, fr.Load(1))
	v, err := fr.Pop()
	require.NoError(t, err)
	assert.Equal(t, value.None, v)

	require.NoError(t, fr.Load(3))
	v, err = fr.Pop()
	require.NoError(t, err)
	assert.Equal(t, value.Int(42), v)

	fr.Teardown()
}

func TestFramePopEmptyErrors(t *testing.T) {
	fn := newFn()
	fr := vm.NewFrame(nil, fn)
	_, err := fr.Pop()
	assert.ErrorIs(t, err, vm.ErrStackEmpty)
	fr.Teardown()
}

func TestFrameLoadUnsetSlotErrors(t *testing.T) {
	fn := newFn()
	fr := vm.NewFrame(nil, fn)
	err := fr.Load(5)
	var lre *vm.LocalReadError
	assert.ErrorAs(t, err, &lre)
	fr.Teardown()
}
