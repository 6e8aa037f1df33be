package value_test

import (
	"testing"

	"github.com/nilstack/stackvm/lang/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	for k := value.KindNone; k <= value.KindUnknown; k++ {
		assert.NotEqual(t, "invalid", k.String())
	}
	assert.Equal(t, "invalid", value.Kind(255).String())
}

func TestNoneIdentityAndEquality(t *testing.T) {
	assert.Equal(t, value.KindNone, value.None.Kind())
	assert.True(t, value.Equal(value.None, value.None))
}

func TestRetainReleaseIgnoresNonContainers(t *testing.T) {
	assert.NotPanics(t, func() {
		value.Retain(value.Int(1))
		value.Release(value.Real(1.5))
		value.Retain(value.None)
	})
}

func TestTupleGetSetOutOfRange(t *testing.T) {
	tup := value.NewTuple([]value.Value{value.Int(1), value.Int(2)})
	assert.Equal(t, 2, tup.Len())

	v, err := tup.Get(0)
	require.NoError(t, err)
	assert.Equal(t, value.Int(1), v)

	_, err = tup.Get(5)
	assert.Error(t, err)

	require.NoError(t, tup.Set(1, value.Int(9)))
	v, err = tup.Get(1)
	require.NoError(t, err)
	assert.Equal(t, value.Int(9), v)

	assert.Error(t, tup.Set(5, value.Int(0)))
}

func TestTupleWeakUpgradeLiveness(t *testing.T) {
	tup := value.NewTuple([]value.Value{value.Int(1)})
	weak := value.NewTupleWeak(tup)

	// tup still has its original strong owner.
	upgraded := weak.Upgrade()
	require.NotEqual(t, value.None, upgraded)
	got, ok := upgraded.(*value.Tuple)
	require.True(t, ok)
	assert.Same(t, tup, got)

	// drop both the original reference and the one Upgrade just handed
	// back.
	value.Release(tup)
	value.Release(tup)
	assert.False(t, tup.Alive())
	assert.Equal(t, value.None, weak.Upgrade())
}

// TestContainerReleaseCascadesToChildren guards against a container
// dropping its own reference count to zero without releasing the values
// it owns: an inner tuple nested inside an outer one must become
// unreachable through its own weak reference once the outer tuple (its
// only strong owner) is released, not stay falsely alive forever.
func TestContainerReleaseCascadesToChildren(t *testing.T) {
	inner := value.NewTuple([]value.Value{value.Int(1)})
	weak := value.NewTupleWeak(inner)
	outer := value.NewTuple([]value.Value{inner})

	assert.True(t, inner.Alive())
	value.Release(outer)
	assert.False(t, inner.Alive())
	assert.Equal(t, value.None, weak.Upgrade())
}

// TestSequenceIndexErrorsAreTyped checks that every out-of-range container
// access produces a distinguishable IndexReadError/IndexWriteError rather
// than an anonymous string error.
func TestSequenceIndexErrorsAreTyped(t *testing.T) {
	var readErr *value.IndexReadError
	var writeErr *value.IndexWriteError

	tup := value.NewTuple([]value.Value{value.Int(1)})
	_, err := tup.Get(5)
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, 5, readErr.Index)
	require.ErrorAs(t, tup.Set(5, value.Int(0)), &writeErr)
	assert.Equal(t, 5, writeErr.Index)

	l := value.NewList(nil)
	_, err = l.Get(0)
	assert.ErrorAs(t, err, &readErr)
	assert.ErrorAs(t, l.Set(0, value.None), &writeErr)
	_, err = l.Slice(0, 3)
	assert.ErrorAs(t, err, &readErr)

	buf := value.NewBuffer(2)
	_, err = buf.Get(9)
	assert.ErrorAs(t, err, &readErr)
	assert.ErrorAs(t, buf.Set(9, value.Int(0)), &writeErr)
	assert.ErrorAs(t, buf.CopyFrom(1, buf, 0, 5), &writeErr)
}

func TestTableSetGetDelete(t *testing.T) {
	tbl := value.NewTable()
	tbl.Set(3, value.Int(30))
	tbl.Set(1, value.Int(10))
	tbl.Set(2, value.Int(20))
	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, []uint64{1, 2, 3}, tbl.Keys())

	v, ok := tbl.Get(2)
	require.True(t, ok)
	assert.Equal(t, value.Int(20), v)

	tbl.Set(2, value.None)
	_, ok = tbl.Get(2)
	assert.False(t, ok)
	assert.Equal(t, 2, tbl.Len())
}

func TestTableLastWriteWins(t *testing.T) {
	tbl := value.NewTable()
	tbl.Set(1, value.Int(1))
	tbl.Set(1, value.Int(2))
	assert.Equal(t, 1, tbl.Len())
	v, ok := tbl.Get(1)
	require.True(t, ok)
	assert.Equal(t, value.Int(2), v)
}

func TestListPushPopSlice(t *testing.T) {
	l := value.NewList([]value.Value{value.Int(1), value.Int(2)})
	l.Push(value.Int(3))
	assert.Equal(t, 3, l.Len())

	v, err := l.Pop()
	require.NoError(t, err)
	assert.Equal(t, value.Int(3), v)

	sub, err := l.Slice(0, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, sub.Len())

	_, err = l.Slice(0, 99)
	assert.Error(t, err)
}

func TestListPopEmpty(t *testing.T) {
	l := value.NewList(nil)
	_, err := l.Pop()
	assert.Error(t, err)
}

func TestBufferGetSetAndOverlapCopy(t *testing.T) {
	buf := value.NewBuffer(5)
	for i := 0; i < 5; i++ {
		require.NoError(t, buf.Set(i, value.Int(i+1)))
	}
	// shift [0,3) into [1,4) within the same buffer: must read the source
	// in full before writing, so the result is 1,1,2,3,5 not 1,1,1,1,5.
	require.NoError(t, buf.CopyFrom(1, buf, 0, 3))
	want := []value.Value{value.Int(1), value.Int(1), value.Int(2), value.Int(3), value.Int(5)}
	for i, w := range want {
		got, err := buf.Get(i)
		require.NoError(t, err)
		assert.Equal(t, w, got)
	}
}

func TestBufferSetCoercesAndTruncates(t *testing.T) {
	buf := value.NewBuffer(1)
	require.NoError(t, buf.Set(0, value.Int(0x1FF)))
	got, err := buf.Get(0)
	require.NoError(t, err)
	assert.Equal(t, value.Int(0xFF), got)
}

func TestFunctionIdentityIsOpsAddress(t *testing.T) {
	module := value.NewTuple(nil)
	ops := &value.Ops{Code: []byte{1, 2, 3}}
	f1 := value.NewFunction(module, ops)
	f2 := value.NewFunction(module, ops)
	assert.Equal(t, value.Identity(f1), value.Identity(f2))
}

func TestUnknownIdentity(t *testing.T) {
	u1 := value.NewUnknown("boom")
	u2 := value.NewUnknown("boom")
	assert.NotEqual(t, value.Identity(u1), value.Identity(u2))
}
