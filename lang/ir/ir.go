// Package ir defines the tree-shaped statement/expression intermediate
// representation that lang/emit lowers to bytecode (spec.md §3, "IR
// entities"). There is no lexer or parser anywhere in this repository;
// ir.Program is the only input the emitter accepts.
package ir

import (
	"github.com/nilstack/stackvm/lang/token"
	"github.com/nilstack/stackvm/lang/vm"
)

// Var is a dense integer identifier for a local variable, assigned by
// whatever produces the IR (this repository has no resolver; callers pick
// their own numbering).
type Var int

// Expr is a node that lowers to exactly one pushed value.
type Expr interface{ isExpr() }

// Statement is a node lowered for effect.
type Statement interface{ isStmt() }

// Place is the left-hand side of an Assign: a Var or a sequence index.
type Place interface{ isPlace() }

type (
	// Literal pushes an immediate None/Integer/Real.
	Literal struct{ Value vm.LiteralValue }

	// VarRead reads a bound local variable.
	VarRead struct{ V Var }

	// ModuleRef pushes the enclosing function's module tuple (local slot 0).
	ModuleRef struct{}

	// Binary applies a PLUS/MINUS/.../AMPERSAND/../ token to lhs, rhs.
	// Comparisons (LT/LE/GT/GE/EQL/NEQ) are a distinct node, Compare, since
	// they desugar to Cmp plus a conditional jump rather than a single
	// opcode (spec.md §4.7).
	Binary struct {
		Op   token.Token
		X, Y Expr
	}

	// Unary applies UMINUS or TILDE to x.
	Unary struct {
		Op token.Token
		X  Expr
	}

	// Compare desugars to Cmp plus a literal 0/1 normalization.
	Compare struct {
		Op   token.Token
		X, Y Expr
	}

	// LogicAnd/LogicOr short-circuit: the right operand is evaluated only
	// when needed (spec.md §4.7).
	LogicAnd struct{ X, Y Expr }
	LogicOr  struct{ X, Y Expr }

	// Call invokes fn with args, last argument evaluated last (source
	// order; the emitter lowers this directly into the Call opcode's
	// pop convention).
	Call struct {
		Fn   Expr
		Args []Expr
	}

	// SeqLen/SeqToList/SeqIndex are the polymorphic sequence reads shared
	// across Tuple/Table/List/Buffer.
	SeqLen    struct{ Seq Expr }
	SeqToList struct{ Seq Expr }
	SeqIndex  struct{ Seq, Idx Expr }

	// TupleCreate builds a Tuple from elems, in source order (elems[0]
	// evaluates first; the emitter reverses emission order to match
	// TupleCreate's "last-pushed becomes index 0" pop convention so that
	// TupleCreate's resulting cell order matches elems' declaration order).
	TupleCreate struct{ Elems []Expr }

	// TupleFromList builds a Tuple with the same length and order as a
	// List's elements.
	TupleFromList struct{ List Expr }

	// TupleWeakRef/TupleWeakUpgrade convert between a strong Tuple
	// reference and its weak handle.
	TupleWeakRef     struct{ Tuple Expr }
	TupleWeakUpgrade struct{ Weak Expr }

	// TableCreate builds a Table from key/value pairs, each pair evaluated
	// as (key, value) in source order.
	TableCreate struct{ Pairs []TablePair }

	// TablePair is one (key, value) entry of a TableCreate.
	TablePair struct{ Key, Value Expr }

	// ListCreate builds a List from elems, in source order.
	ListCreate struct{ Elems []Expr }

	// ListGetSlice reads list[lo:hi).
	ListGetSlice struct{ List, Lo, Hi Expr }

	// ListPop removes and yields the list's last element.
	ListPop struct{ List Expr }

	// BufferCreate allocates a zero-filled buffer of the given length.
	BufferCreate struct{ Len Expr }

	// BufferGetSlice reads buf[lo:hi) as a new Buffer.
	BufferGetSlice struct{ Buf, Lo, Hi Expr }
)

func (Literal) isExpr()          {}
func (VarRead) isExpr()          {}
func (ModuleRef) isExpr()        {}
func (Binary) isExpr()           {}
func (Unary) isExpr()            {}
func (Compare) isExpr()          {}
func (LogicAnd) isExpr()         {}
func (LogicOr) isExpr()          {}
func (Call) isExpr()             {}
func (SeqLen) isExpr()           {}
func (SeqToList) isExpr()        {}
func (SeqIndex) isExpr()         {}
func (TupleCreate) isExpr()      {}
func (TupleFromList) isExpr()    {}
func (TupleWeakRef) isExpr()     {}
func (TupleWeakUpgrade) isExpr() {}
func (TableCreate) isExpr()      {}
func (ListCreate) isExpr()       {}
func (ListGetSlice) isExpr()     {}
func (ListPop) isExpr()          {}
func (BufferCreate) isExpr()     {}
func (BufferGetSlice) isExpr()   {}

type (
	// VarPlace assigns to a local variable.
	VarPlace struct{ V Var }

	// SeqIndexPlace assigns to seq[idx] via SeqSet.
	SeqIndexPlace struct{ Seq, Idx Expr }
)

func (VarPlace) isPlace()      {}
func (SeqIndexPlace) isPlace() {}

type (
	// BindVar allocates a fresh slot for v (spec.md §4.6's bind_var).
	BindVar struct{ V Var }

	// DropVar releases v's slot back to the free list.
	DropVar struct{ V Var }

	// InitVar stores the top of the operand stack (left by the caller, or
	// by a preceding expression) into v's already-bound slot.
	InitVar struct {
		V     Var
		Value Expr
	}

	// Loop repeats Body until a Break, checking Cond (if non-nil) before
	// each iteration.
	Loop struct {
		Label string // empty if unlabeled
		Cond  Expr   // nil means "loop forever until Break"
		Body  []Statement
	}

	// Break/Continue jump to the named loop's break/continue label, or the
	// innermost enclosing loop if Label is empty.
	Break    struct{ Label string }
	Continue struct{ Label string }

	// ExprStmt evaluates x and discards the result.
	ExprStmt struct{ X Expr }

	// Return evaluates X and returns it from the current function.
	Return struct{ X Expr }

	// If is an if/else-if/.../else chain.
	If struct {
		Branches []IfBranch
		Else     []Statement
	}

	// IfBranch is one "if Cond { Body }" or "else if Cond { Body }" arm.
	IfBranch struct {
		Cond Expr
		Body []Statement
	}

	// Assign stores Value into Place.
	Assign struct {
		Place Place
		Value Expr
	}

	// SeqAppend appends Elem to Seq (List, or Buffer with a Buffer Elem).
	SeqAppend struct{ Seq, Elem Expr }

	// SeqResize grows or shrinks Seq (List or Buffer) to N.
	SeqResize struct{ Seq, N Expr }

	// ListPush appends Elem to List.
	ListPush struct{ List, Elem Expr }

	// BufferSetSlice copies Src[SrcOffset:SrcOffset+Len) into
	// Buf[Offset:Offset+Len), overlap-safe when Buf and Src are the same
	// buffer.
	BufferSetSlice struct {
		Buf, Src, SrcOffset, Offset, Len Expr
	}
)

func (BindVar) isStmt()        {}
func (DropVar) isStmt()        {}
func (InitVar) isStmt()        {}
func (Loop) isStmt()           {}
func (Break) isStmt()          {}
func (Continue) isStmt()       {}
func (ExprStmt) isStmt()       {}
func (Return) isStmt()         {}
func (If) isStmt()             {}
func (Assign) isStmt()         {}
func (SeqAppend) isStmt()      {}
func (SeqResize) isStmt()      {}
func (ListPush) isStmt()       {}
func (BufferSetSlice) isStmt() {}

// Function is a function's IR: its declared arguments (bound to fresh
// slots on entry, per spec.md §4.7) and its statement body.
type Function struct {
	Args []Var
	Body []Statement
}

// ModuleItem is one entry of a Module: a literal, a byte blob, a reference
// to another module, or a function (spec.md §4.5).
type ModuleItem interface{ isModuleItem() }

type (
	LiteralItem   struct{ Value vm.LiteralValue }
	BufferItem    struct{ Bytes []byte }
	ModuleRefItem struct{ Index int }
	FunctionItem  struct{ Fn *Function }
)

func (LiteralItem) isModuleItem()   {}
func (BufferItem) isModuleItem()    {}
func (ModuleRefItem) isModuleItem() {}
func (FunctionItem) isModuleItem()  {}

// Module is an ordered list of items (spec.md §3, "Module(IR)").
type Module struct{ Items []ModuleItem }

// Program is an ordered list of modules (spec.md §3, "Program(IR)").
type Program struct{ Modules []*Module }
