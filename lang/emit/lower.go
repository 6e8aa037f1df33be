package emit

import (
	"fmt"

	"github.com/nilstack/stackvm/lang/ir"
	"github.com/nilstack/stackvm/lang/token"
	"github.com/nilstack/stackvm/lang/vm"
)

// binaryOp maps the arithmetic and bitwise tokens to their opcode
// (spec.md §4.7). Comparisons are handled separately by lowerCompare since
// they desugar to Cmp plus a conditional jump rather than a single opcode.
var binaryOp = map[token.Token]vm.Opcode{
	token.PLUS:       vm.Add,
	token.MINUS:      vm.Sub,
	token.STAR:       vm.Mul,
	token.SLASH:      vm.Div,
	token.PERCENT:    vm.Rem,
	token.AMPERSAND:  vm.And,
	token.PIPE:       vm.Or,
	token.CIRCUMFLEX: vm.Xor,
	token.LTLT:       vm.Shl,
	token.GTGT:       vm.Shr,
}

var unaryOp = map[token.Token]vm.Opcode{
	token.UMINUS: vm.Neg,
	token.TILDE:  vm.Not,
}

// lowering drives one Emitter from one ir.Function's body. It also owns a
// counter for synthetic temporaries: variables the lowering introduces
// itself (to avoid re-evaluating an expression with possible side effects)
// that never appear in the source IR. Source-assigned ir.Var values are
// assumed non-negative; temporaries are assigned strictly negative ids so
// the two spaces never collide.
type lowering struct {
	e        *Emitter
	nextTemp ir.Var
}

// LowerFunction compiles fn's body into a finished instruction vector,
// running block-scope analysis first to decide where DropVar belongs
// (spec.md §4.8, scope.go).
func LowerFunction(fn *ir.Function) ([]byte, error) {
	analyzed := AnalyzeFunction(fn)

	l := &lowering{e: NewEmitter(), nextTemp: -1}
	if len(analyzed.Args) > maxLocalSlots {
		return nil, fmt.Errorf("emit: function has %d arguments, limit is %d", len(analyzed.Args), maxLocalSlots)
	}
	for _, v := range analyzed.Args {
		if _, err := l.e.BindVar(v); err != nil {
			return nil, err
		}
		if err := l.e.PushVarStore(v); err != nil {
			return nil, err
		}
	}
	if err := l.lowerBlock(analyzed.Body); err != nil {
		return nil, err
	}
	return l.e.Finish()
}

func (l *lowering) newTemp() ir.Var {
	v := l.nextTemp
	l.nextTemp--
	return v
}

func (l *lowering) lowerBlock(body []ir.Statement) error {
	for _, s := range body {
		if err := l.lowerStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (l *lowering) lowerStmt(s ir.Statement) error {
	switch st := s.(type) {
	case ir.BindVar:
		_, err := l.e.BindVar(st.V)
		return err
	case ir.DropVar:
		l.e.DropVar(st.V)
		return nil
	case ir.InitVar:
		if st.Value != nil {
			if err := l.lowerExpr(st.Value); err != nil {
				return err
			}
		}
		return l.e.PushVarStore(st.V)
	case ir.Loop:
		return l.lowerLoop(st)
	case ir.Break:
		return l.lowerBreakContinue(st.Label, true)
	case ir.Continue:
		return l.lowerBreakContinue(st.Label, false)
	case ir.ExprStmt:
		if err := l.lowerExpr(st.X); err != nil {
			return err
		}
		l.e.Push(vm.StackPop)
		return nil
	case ir.Return:
		if err := l.lowerExpr(st.X); err != nil {
			return err
		}
		l.e.Push(vm.Return)
		return nil
	case ir.If:
		return l.lowerIf(st)
	case ir.Assign:
		return l.lowerAssign(st)
	case ir.SeqAppend:
		if err := l.lowerExpr(st.Seq); err != nil {
			return err
		}
		if err := l.lowerExpr(st.Elem); err != nil {
			return err
		}
		l.e.Push(vm.SeqAppend)
		return nil
	case ir.SeqResize:
		if err := l.lowerExpr(st.Seq); err != nil {
			return err
		}
		if err := l.lowerExpr(st.N); err != nil {
			return err
		}
		l.e.Push(vm.SeqResize)
		return nil
	case ir.ListPush:
		if err := l.lowerExpr(st.List); err != nil {
			return err
		}
		if err := l.lowerExpr(st.Elem); err != nil {
			return err
		}
		l.e.Push(vm.ListPush)
		return nil
	case ir.BufferSetSlice:
		for _, e := range []ir.Expr{st.Buf, st.Src, st.SrcOffset, st.Offset, st.Len} {
			if err := l.lowerExpr(e); err != nil {
				return err
			}
		}
		l.e.Push(vm.BufferSetSlice)
		return nil
	default:
		return fmt.Errorf("emit: unknown statement type %T", s)
	}
}

func (l *lowering) loopID(label string) *int {
	if label == "" {
		return nil
	}
	id := int(hashLabel(label))
	return &id
}

// hashLabel turns a source-level loop label into the small int key the
// swiss-backed loop table is indexed by.
func hashLabel(label string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(label); i++ {
		h ^= uint32(label[i])
		h *= 16777619
	}
	return h
}

func (l *lowering) lowerLoop(st ir.Loop) error {
	id := l.loopID(st.Label)
	continueL, breakL := l.e.LoopEnter(id)
	l.e.LabelHere(continueL)
	if st.Cond != nil {
		if err := l.lowerExpr(st.Cond); err != nil {
			return err
		}
		l.e.PushJump(breakL, vm.JumpZero)
	}
	if err := l.lowerBlock(st.Body); err != nil {
		return err
	}
	l.e.PushJump(continueL, vm.Jump)
	l.e.LabelHere(breakL)
	l.e.LoopExit(id)
	return nil
}

func (l *lowering) lowerBreakContinue(label string, isBreak bool) error {
	id := l.loopID(label)
	var target *Label
	var err error
	if isBreak {
		target, err = l.e.LoopGetBreak(id)
	} else {
		target, err = l.e.LoopGetContinue(id)
	}
	if err != nil {
		return err
	}
	l.e.PushJump(target, vm.Jump)
	return nil
}

func (l *lowering) lowerIf(st ir.If) error {
	endif := l.e.CreateLabel()
	for _, branch := range st.Branches {
		next := l.e.CreateLabel()
		if err := l.lowerExpr(branch.Cond); err != nil {
			return err
		}
		l.e.PushJump(next, vm.JumpZero)
		if err := l.lowerBlock(branch.Body); err != nil {
			return err
		}
		l.e.PushJump(endif, vm.Jump)
		l.e.LabelHere(next)
	}
	if err := l.lowerBlock(st.Else); err != nil {
		return err
	}
	l.e.LabelHere(endif)
	return nil
}

func (l *lowering) lowerAssign(st ir.Assign) error {
	switch p := st.Place.(type) {
	case ir.VarPlace:
		if err := l.lowerExpr(st.Value); err != nil {
			return err
		}
		return l.e.PushVarStore(p.V)
	case ir.SeqIndexPlace:
		if err := l.lowerExpr(p.Seq); err != nil {
			return err
		}
		if err := l.lowerExpr(p.Idx); err != nil {
			return err
		}
		if err := l.lowerExpr(st.Value); err != nil {
			return err
		}
		l.e.Push(vm.SeqSet)
		return nil
	default:
		return fmt.Errorf("emit: unknown assignment place %T", st.Place)
	}
}

func (l *lowering) lowerExpr(e ir.Expr) error {
	switch x := e.(type) {
	case ir.Literal:
		l.e.PushLiteral(x.Value)
		return nil
	case ir.VarRead:
		return l.e.PushVarLoad(x.V)
	case ir.ModuleRef:
		l.e.PushU8(vm.StackLoad, 0)
		return nil
	case ir.Binary:
		op, ok := binaryOp[x.Op]
		if !ok {
			return fmt.Errorf("emit: %s is not a binary arithmetic/bitwise operator", x.Op)
		}
		if err := l.lowerExpr(x.X); err != nil {
			return err
		}
		if err := l.lowerExpr(x.Y); err != nil {
			return err
		}
		l.e.Push(op)
		return nil
	case ir.Unary:
		op, ok := unaryOp[x.Op]
		if !ok {
			return fmt.Errorf("emit: %s is not a unary operator", x.Op)
		}
		if err := l.lowerExpr(x.X); err != nil {
			return err
		}
		l.e.Push(op)
		return nil
	case ir.Compare:
		return l.lowerCompare(x.Op, x.X, x.Y)
	case ir.LogicAnd:
		return l.lowerLogicAnd(x.X, x.Y)
	case ir.LogicOr:
		return l.lowerLogicOr(x.X, x.Y)
	case ir.Call:
		if len(x.Args) > maxLocalSlots {
			return fmt.Errorf("emit: call has %d arguments, limit is %d", len(x.Args), maxLocalSlots)
		}
		if err := l.lowerExpr(x.Fn); err != nil {
			return err
		}
		for _, a := range x.Args {
			if err := l.lowerExpr(a); err != nil {
				return err
			}
		}
		l.e.PushU8(vm.Call, uint8(len(x.Args)))
		return nil
	case ir.SeqLen:
		if err := l.lowerExpr(x.Seq); err != nil {
			return err
		}
		l.e.Push(vm.SeqLen)
		return nil
	case ir.SeqToList:
		if err := l.lowerExpr(x.Seq); err != nil {
			return err
		}
		l.e.Push(vm.SeqToList)
		return nil
	case ir.SeqIndex:
		if err := l.lowerExpr(x.Seq); err != nil {
			return err
		}
		if err := l.lowerExpr(x.Idx); err != nil {
			return err
		}
		l.e.Push(vm.SeqGet)
		return nil
	case ir.TupleCreate:
		return l.lowerTupleCreate(x.Elems)
	case ir.TupleFromList:
		if err := l.lowerExpr(x.List); err != nil {
			return err
		}
		l.e.Push(vm.TupleFromList)
		return nil
	case ir.TupleWeakRef:
		if err := l.lowerExpr(x.Tuple); err != nil {
			return err
		}
		l.e.Push(vm.TupleWeakRef)
		return nil
	case ir.TupleWeakUpgrade:
		if err := l.lowerExpr(x.Weak); err != nil {
			return err
		}
		l.e.Push(vm.TupleWeakUpgrade)
		return nil
	case ir.TableCreate:
		return l.lowerTableCreate(x.Pairs)
	case ir.ListCreate:
		return l.lowerListCreate(x.Elems)
	case ir.ListGetSlice:
		for _, sub := range []ir.Expr{x.List, x.Lo, x.Hi} {
			if err := l.lowerExpr(sub); err != nil {
				return err
			}
		}
		l.e.Push(vm.ListGetSlice)
		return nil
	case ir.ListPop:
		if err := l.lowerExpr(x.List); err != nil {
			return err
		}
		l.e.Push(vm.ListPop)
		return nil
	case ir.BufferCreate:
		if err := l.lowerExpr(x.Len); err != nil {
			return err
		}
		l.e.Push(vm.BufferCreate)
		return nil
	case ir.BufferGetSlice:
		for _, sub := range []ir.Expr{x.Buf, x.Lo, x.Hi} {
			if err := l.lowerExpr(sub); err != nil {
				return err
			}
		}
		l.e.Push(vm.BufferGetSlice)
		return nil
	default:
		return fmt.Errorf("emit: unknown expression type %T", e)
	}
}

// lowerTupleCreate and lowerListCreate both rely on TupleCreate/ListCreate's
// "last-pushed becomes index/cell 0" pop convention (machine.go): pushing
// elems in reverse source order makes elems[0] the last value pushed, so it
// lands at index 0 and the container's order matches the source order.
func (l *lowering) lowerTupleCreate(elems []ir.Expr) error {
	if len(elems) > maxLocalSlots {
		return fmt.Errorf("emit: tuple literal has %d elements, limit is %d", len(elems), maxLocalSlots)
	}
	for i := len(elems) - 1; i >= 0; i-- {
		if err := l.lowerExpr(elems[i]); err != nil {
			return err
		}
	}
	l.e.PushU8(vm.TupleCreate, uint8(len(elems)))
	return nil
}

func (l *lowering) lowerListCreate(elems []ir.Expr) error {
	if len(elems) > maxLocalSlots {
		return fmt.Errorf("emit: list literal has %d elements, limit is %d", len(elems), maxLocalSlots)
	}
	for i := len(elems) - 1; i >= 0; i-- {
		if err := l.lowerExpr(elems[i]); err != nil {
			return err
		}
	}
	l.e.PushU8(vm.ListCreate, uint8(len(elems)))
	return nil
}

// lowerTableCreate builds the list-of-2-tuples TableCreate expects by
// reusing the TupleCreate/ListCreate lowering for the (key, value) pairs and
// the pair list itself, rather than duplicating their reversed-push logic.
func (l *lowering) lowerTableCreate(pairs []ir.TablePair) error {
	tuples := make([]ir.Expr, len(pairs))
	for i, p := range pairs {
		tuples[i] = ir.TupleCreate{Elems: []ir.Expr{p.Key, p.Value}}
	}
	if err := l.lowerListCreate(tuples); err != nil {
		return err
	}
	l.e.Push(vm.TableCreate)
	return nil
}

// lowerCompare desugars a comparison to Cmp plus a 0/1 normalization
// (spec.md §4.7). LT and GT share one code path: GT(x, y) is computed as
// "Cmp(y, x) is negative", reusing JumpNeg instead of needing a third test
// primitive.
func (l *lowering) lowerCompare(op token.Token, x, y ir.Expr) error {
	switch op {
	case token.LT:
		return l.lowerSingleTest(x, y, false, vm.JumpNeg)
	case token.GT:
		return l.lowerSingleTest(y, x, false, vm.JumpNeg)
	case token.EQL:
		return l.lowerSingleTest(x, y, false, vm.JumpZero)
	case token.NEQ:
		// 1 - (x == y): Sub pops rhs then lhs, so push the literal first.
		l.e.PushLiteral(vm.LiteralValue{Kind: vm.LiteralInt, I: 1})
		if err := l.lowerCompare(token.EQL, x, y); err != nil {
			return err
		}
		l.e.Push(vm.Sub)
		return nil
	case token.LE:
		return l.lowerOrOfCompares(x, y, token.LT, token.EQL)
	case token.GE:
		return l.lowerOrOfCompares(x, y, token.GT, token.EQL)
	default:
		return fmt.Errorf("emit: %s is not a comparison operator", op)
	}
}

// lowerSingleTest computes Cmp(x, y) and normalizes it to 1 if test holds,
// 0 otherwise, where test is JumpZero (c == 0) or JumpNeg (c < 0).
func (l *lowering) lowerSingleTest(x, y ir.Expr, _ bool, test vm.Opcode) error {
	if err := l.lowerExpr(x); err != nil {
		return err
	}
	if err := l.lowerExpr(y); err != nil {
		return err
	}
	l.e.Push(vm.Cmp)

	trueL := l.e.CreateLabel()
	doneL := l.e.CreateLabel()
	l.e.PushJump(trueL, test)
	l.e.PushLiteral(vm.LiteralValue{Kind: vm.LiteralInt, I: 0})
	l.e.PushJump(doneL, vm.Jump)
	l.e.LabelHere(trueL)
	l.e.PushLiteral(vm.LiteralValue{Kind: vm.LiteralInt, I: 1})
	l.e.LabelHere(doneL)
	return nil
}

// lowerOrOfCompares evaluates x and y into temporaries once, then ORs the
// results of two single-test comparisons built from those temporaries —
// avoiding re-evaluating x/y (which may be Calls with side effects) the way
// naively lowering "a < b || a == b" from the source expressions twice
// would.
func (l *lowering) lowerOrOfCompares(x, y ir.Expr, op1, op2 token.Token) error {
	tx := l.newTemp()
	ty := l.newTemp()
	if _, err := l.e.BindVar(tx); err != nil {
		return err
	}
	if _, err := l.e.BindVar(ty); err != nil {
		return err
	}
	if err := l.lowerExpr(x); err != nil {
		return err
	}
	if err := l.e.PushVarStore(tx); err != nil {
		return err
	}
	if err := l.lowerExpr(y); err != nil {
		return err
	}
	if err := l.e.PushVarStore(ty); err != nil {
		return err
	}

	xr := ir.VarRead{V: tx}
	yr := ir.VarRead{V: ty}
	if err := l.lowerCompare(op1, xr, yr); err != nil {
		return err
	}
	if err := l.lowerCompare(op2, xr, yr); err != nil {
		return err
	}
	l.e.Push(vm.Or)

	l.e.DropVar(tx)
	l.e.DropVar(ty)
	return nil
}

// normalizeTruthy consumes the value on top of the stack and replaces it
// with 1 if it was truthy (anything but None, integer 0, or real 0.0) or 0
// otherwise, reusing JumpZero's own truthiness test.
func (l *lowering) normalizeTruthy() {
	falseL := l.e.CreateLabel()
	doneL := l.e.CreateLabel()
	l.e.Push(vm.StackCopy)
	l.e.PushJump(falseL, vm.JumpZero)
	l.e.Push(vm.StackPop)
	l.e.PushLiteral(vm.LiteralValue{Kind: vm.LiteralInt, I: 1})
	l.e.PushJump(doneL, vm.Jump)
	l.e.LabelHere(falseL)
	l.e.Push(vm.StackPop)
	l.e.PushLiteral(vm.LiteralValue{Kind: vm.LiteralInt, I: 0})
	l.e.LabelHere(doneL)
}

// lowerLogicAnd/lowerLogicOr short-circuit the right operand and normalize
// the result to 0/1 (spec.md §4.7).
func (l *lowering) lowerLogicAnd(x, y ir.Expr) error {
	if err := l.lowerExpr(x); err != nil {
		return err
	}
	falseL := l.e.CreateLabel()
	doneL := l.e.CreateLabel()
	l.e.Push(vm.StackCopy)
	l.e.PushJump(falseL, vm.JumpZero)
	l.e.Push(vm.StackPop)
	if err := l.lowerExpr(y); err != nil {
		return err
	}
	l.normalizeTruthy()
	l.e.PushJump(doneL, vm.Jump)
	l.e.LabelHere(falseL)
	l.e.Push(vm.StackPop)
	l.e.PushLiteral(vm.LiteralValue{Kind: vm.LiteralInt, I: 0})
	l.e.LabelHere(doneL)
	return nil
}

func (l *lowering) lowerLogicOr(x, y ir.Expr) error {
	if err := l.lowerExpr(x); err != nil {
		return err
	}
	rhsL := l.e.CreateLabel()
	doneL := l.e.CreateLabel()
	l.e.Push(vm.StackCopy)
	l.e.PushJump(rhsL, vm.JumpZero)
	l.e.Push(vm.StackPop)
	l.e.PushLiteral(vm.LiteralValue{Kind: vm.LiteralInt, I: 1})
	l.e.PushJump(doneL, vm.Jump)
	l.e.LabelHere(rhsL)
	l.e.Push(vm.StackPop)
	if err := l.lowerExpr(y); err != nil {
		return err
	}
	l.normalizeTruthy()
	l.e.LabelHere(doneL)
	return nil
}
