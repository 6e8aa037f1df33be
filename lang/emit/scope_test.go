package emit_test

import (
	"testing"

	"github.com/nilstack/stackvm/lang/emit"
	"github.com/nilstack/stackvm/lang/ir"
	"github.com/nilstack/stackvm/lang/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAnalyzeFunctionDropsAfterLastUseInSameBlock checks the straight-line
// case: x is bound and last read in the same block, so its DropVar lands
// immediately after that read.
func TestAnalyzeFunctionDropsAfterLastUseInSameBlock(t *testing.T) {
	x := ir.Var(0)
	fn := &ir.Function{
		Body: []ir.Statement{
			ir.BindVar{V: x},
			ir.InitVar{V: x, Value: litInt(1)},
			ir.ExprStmt{X: ir.VarRead{V: x}},
			ir.Return{X: litInt(0)},
		},
	}
	got := emit.AnalyzeFunction(fn)
	require.Len(t, got.Body, 5)
	drop, ok := got.Body[3].(ir.DropVar)
	require.True(t, ok, "expected DropVar right after the last read, got %T", got.Body[3])
	assert.Equal(t, x, drop.V)
}

// TestAnalyzeFunctionHoistsDropFromLoopBody checks a variable bound outside
// a loop but only read inside it: the drop must land after the loop
// statement in the outer block, not inside the loop body (where it would
// fire on only the first iteration and then load a dropped slot).
func TestAnalyzeFunctionHoistsDropFromLoopBody(t *testing.T) {
	x := ir.Var(0)
	fn := &ir.Function{
		Body: []ir.Statement{
			ir.BindVar{V: x},
			ir.InitVar{V: x, Value: litInt(1)},
			ir.Loop{
				Cond: ir.Compare{Op: token.LT, X: ir.VarRead{V: x}, Y: litInt(10)},
				Body: []ir.Statement{ir.Break{}},
			},
			ir.Return{X: litInt(0)},
		},
	}
	got := emit.AnalyzeFunction(fn)
	require.Len(t, got.Body, 5)
	loop, ok := got.Body[2].(ir.Loop)
	require.True(t, ok)
	assert.Len(t, loop.Body, 1, "the loop's own body must be unchanged, the drop belongs to the outer block")

	drop, ok := got.Body[3].(ir.DropVar)
	require.True(t, ok, "expected DropVar right after the loop statement, got %T", got.Body[3])
	assert.Equal(t, x, drop.V)
}

// TestAnalyzeFunctionLeavesUnboundReadsForCaller checks that a variable
// read but never bound anywhere in the function (e.g. an argument, bound
// by the function prologue rather than an ir.BindVar node) produces no
// DropVar anywhere in the analyzed body.
func TestAnalyzeFunctionLeavesUnboundReadsForCaller(t *testing.T) {
	arg := ir.Var(0)
	fn := &ir.Function{
		Args: []ir.Var{arg},
		Body: []ir.Statement{
			ir.Return{X: ir.VarRead{V: arg}},
		},
	}
	got := emit.AnalyzeFunction(fn)
	for _, s := range got.Body {
		_, isDrop := s.(ir.DropVar)
		assert.False(t, isDrop, "an unbound variable must never get a DropVar inserted for it")
	}
}

// TestAnalyzeFunctionIsIdempotent checks spec.md §8's "running block-scope
// analysis a second time is a no-op" property directly: feeding the
// already-analyzed output of TestAnalyzeFunctionDropsAfterLastUseInSameBlock
// back through AnalyzeFunction must not insert a second DropVar at the same
// last-use site.
func TestAnalyzeFunctionIsIdempotent(t *testing.T) {
	x := ir.Var(0)
	fn := &ir.Function{
		Body: []ir.Statement{
			ir.BindVar{V: x},
			ir.InitVar{V: x, Value: litInt(1)},
			ir.ExprStmt{X: ir.VarRead{V: x}},
			ir.Return{X: litInt(0)},
		},
	}
	once := emit.AnalyzeFunction(fn)
	twice := emit.AnalyzeFunction(once)
	assert.Equal(t, once.Body, twice.Body, "re-analyzing already-analyzed output must be a no-op")
}
