package emit

import (
	"sort"

	"github.com/nilstack/stackvm/lang/ir"
)

// DeferredDrop is a deferred release of a variable discovered by a reverse
// block walk: the variable's last use was at Loc, but it was bound in an
// ancestor scope, so the block that found it cannot drop it itself
// (spec.md §4.8) and returns it to its caller instead.
type DeferredDrop struct {
	Loc int
	Var ir.Var
}

// AnalyzeFunction rewrites fn's body, inserting a DropVar(v) statement
// immediately after the last read of each variable whose BindVar appears
// in the same block that last reads it. It does not mutate fn; it returns
// a new Function.
//
// The walk is in reverse per block, sharing one "seen" set across the
// whole function so that the *first* encounter walking backwards is a
// variable's *last* use going forwards. A block's own unresolved drops
// (variables read inside it but bound by an ancestor) are returned to the
// caller rather than dropped locally — this is why the walk threads a
// single outer accumulator through nested Loop/If bodies instead of
// analyzing each block in isolation.
func AnalyzeFunction(fn *ir.Function) *ir.Function {
	seen := map[ir.Var]bool{}
	body, _ := analyzeBlock(fn.Body, seen)
	return &ir.Function{Args: fn.Args, Body: body}
}

type dropRecord struct {
	loc int
	v   ir.Var
}

func analyzeBlock(body []ir.Statement, seen map[ir.Var]bool) (out []ir.Statement, outer []DeferredDrop) {
	boundHere := map[ir.Var]bool{}
	var local []dropRecord

	rewritten := make([]ir.Statement, len(body))
	copy(rewritten, body)

	record := func(loc int, vars []ir.Var) {
		for _, v := range vars {
			if !seen[v] {
				seen[v] = true
				local = append(local, dropRecord{loc: loc, v: v})
			}
		}
	}

	for i := len(rewritten) - 1; i >= 0; i-- {
		switch st := rewritten[i].(type) {
		case ir.BindVar:
			boundHere[st.V] = true

		case ir.DropVar:
			// An already-inserted drop marks its variable as seen without
			// recording a new deferred drop, so re-running analysis on
			// already-analyzed output is a no-op instead of walking past
			// the drop to the same last-use statement and inserting a
			// second DropVar for it.
			seen[st.V] = true

		case ir.Loop:
			newBody, childOuter := analyzeBlock(st.Body, seen)
			st.Body = newBody
			rewritten[i] = st
			for _, d := range childOuter {
				local = append(local, dropRecord{loc: i, v: d.Var})
			}
			if st.Cond != nil {
				record(i, exprVars(st.Cond))
			}

		case ir.If:
			branches := make([]ir.IfBranch, len(st.Branches))
			for bi, br := range st.Branches {
				newBody, childOuter := analyzeBlock(br.Body, seen)
				br.Body = newBody
				branches[bi] = br
				for _, d := range childOuter {
					local = append(local, dropRecord{loc: i, v: d.Var})
				}
				record(i, exprVars(br.Cond))
			}
			st.Branches = branches
			newElse, childOuter := analyzeBlock(st.Else, seen)
			st.Else = newElse
			for _, d := range childOuter {
				local = append(local, dropRecord{loc: i, v: d.Var})
			}
			rewritten[i] = st

		default:
			record(i, statementExprVars(rewritten[i]))
		}
	}

	var toInsert []dropRecord
	for _, d := range local {
		if boundHere[d.v] {
			toInsert = append(toInsert, d)
		} else {
			outer = append(outer, DeferredDrop{Loc: d.loc, Var: d.v})
		}
	}
	sort.Slice(toInsert, func(a, b int) bool { return toInsert[a].loc > toInsert[b].loc })

	out = rewritten
	for _, d := range toInsert {
		idx := d.loc + 1
		out = append(out[:idx:idx], append([]ir.Statement{ir.DropVar{V: d.v}}, out[idx:]...)...)
	}
	return out, outer
}

// statementExprVars collects every VarRead a leaf (non-block) statement's
// expressions contain.
func statementExprVars(s ir.Statement) []ir.Var {
	var out []ir.Var
	add := func(e ir.Expr) {
		if e != nil {
			out = append(out, exprVars(e)...)
		}
	}
	switch st := s.(type) {
	case ir.InitVar:
		add(st.Value)
	case ir.Break, ir.Continue, ir.BindVar, ir.DropVar:
	case ir.ExprStmt:
		add(st.X)
	case ir.Return:
		add(st.X)
	case ir.Assign:
		if p, ok := st.Place.(ir.SeqIndexPlace); ok {
			add(p.Seq)
			add(p.Idx)
		}
		add(st.Value)
	case ir.SeqAppend:
		add(st.Seq)
		add(st.Elem)
	case ir.SeqResize:
		add(st.Seq)
		add(st.N)
	case ir.ListPush:
		add(st.List)
		add(st.Elem)
	case ir.BufferSetSlice:
		add(st.Buf)
		add(st.Src)
		add(st.SrcOffset)
		add(st.Offset)
		add(st.Len)
	}
	return out
}

// exprVars collects every VarRead in an expression tree.
func exprVars(e ir.Expr) []ir.Var {
	var out []ir.Var
	var walk func(ir.Expr)
	walk = func(e ir.Expr) {
		switch x := e.(type) {
		case ir.Literal, ir.ModuleRef:
		case ir.VarRead:
			out = append(out, x.V)
		case ir.Binary:
			walk(x.X)
			walk(x.Y)
		case ir.Unary:
			walk(x.X)
		case ir.Compare:
			walk(x.X)
			walk(x.Y)
		case ir.LogicAnd:
			walk(x.X)
			walk(x.Y)
		case ir.LogicOr:
			walk(x.X)
			walk(x.Y)
		case ir.Call:
			walk(x.Fn)
			for _, a := range x.Args {
				walk(a)
			}
		case ir.SeqLen:
			walk(x.Seq)
		case ir.SeqToList:
			walk(x.Seq)
		case ir.SeqIndex:
			walk(x.Seq)
			walk(x.Idx)
		case ir.TupleCreate:
			for _, el := range x.Elems {
				walk(el)
			}
		case ir.TupleFromList:
			walk(x.List)
		case ir.TupleWeakRef:
			walk(x.Tuple)
		case ir.TupleWeakUpgrade:
			walk(x.Weak)
		case ir.TableCreate:
			for _, p := range x.Pairs {
				walk(p.Key)
				walk(p.Value)
			}
		case ir.ListCreate:
			for _, el := range x.Elems {
				walk(el)
			}
		case ir.ListGetSlice:
			walk(x.List)
			walk(x.Lo)
			walk(x.Hi)
		case ir.ListPop:
			walk(x.List)
		case ir.BufferCreate:
			walk(x.Len)
		case ir.BufferGetSlice:
			walk(x.Buf)
			walk(x.Lo)
			walk(x.Hi)
		}
	}
	walk(e)
	return out
}
