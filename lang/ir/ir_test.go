package ir_test

import (
	"testing"

	"github.com/nilstack/stackvm/lang/ir"
	"github.com/nilstack/stackvm/lang/token"
	"github.com/nilstack/stackvm/lang/vm"
	"github.com/stretchr/testify/assert"
)

// TestSumTypesSatisfyMarkerInterfaces is a compile-time-adjacent smoke test:
// it exercises every concrete node through its marker interface so a future
// variant that forgets its tag method fails here instead of silently being
// unreachable through generic tree-walking code (scope.go, lower.go).
func TestSumTypesSatisfyMarkerInterfaces(t *testing.T) {
	exprs := []ir.Expr{
		ir.Literal{},
		ir.VarRead{},
		ir.ModuleRef{},
		ir.Binary{Op: token.PLUS},
		ir.Unary{Op: token.UMINUS},
		ir.Compare{Op: token.LT},
		ir.LogicAnd{},
		ir.LogicOr{},
		ir.Call{},
		ir.SeqLen{},
		ir.SeqToList{},
		ir.SeqIndex{},
		ir.TupleCreate{},
		ir.TupleFromList{},
		ir.TupleWeakRef{},
		ir.TupleWeakUpgrade{},
		ir.TableCreate{},
		ir.ListCreate{},
		ir.ListGetSlice{},
		ir.ListPop{},
		ir.BufferCreate{},
		ir.BufferGetSlice{},
	}
	assert.Len(t, exprs, 22)

	stmts := []ir.Statement{
		ir.BindVar{}, ir.DropVar{}, ir.InitVar{}, ir.Loop{}, ir.Break{},
		ir.Continue{}, ir.ExprStmt{}, ir.Return{}, ir.If{}, ir.Assign{},
		ir.SeqAppend{}, ir.SeqResize{}, ir.ListPush{}, ir.BufferSetSlice{},
	}
	assert.Len(t, stmts, 14)

	places := []ir.Place{ir.VarPlace{}, ir.SeqIndexPlace{}}
	assert.Len(t, places, 2)

	items := []ir.ModuleItem{
		ir.LiteralItem{}, ir.BufferItem{}, ir.ModuleRefItem{}, ir.FunctionItem{},
	}
	assert.Len(t, items, 4)
}

func TestLiteralReusesVMLiteralValue(t *testing.T) {
	lit := ir.Literal{Value: vm.LiteralValue{Kind: vm.LiteralInt, I: 42}}
	assert.Equal(t, int64(42), lit.Value.I)
}
