// Package vm implements the instruction set, call frame, and interpreter
// for the bytecode virtual machine: the fetch-decode-execute loop that
// consumes the instruction vectors the emitter produces.
package vm

import "fmt"

// Opcode identifies one instruction. The declaration order below is the
// wire numbering (spec.md §9: "Any re-implementation must preserve this
// numbering to remain bytecode-compatible"); never reorder existing
// entries, only append.
type Opcode uint8

const ( //nolint:revive
	// numeric arithmetic: pops rhs then lhs, result type follows lhs.
	Add Opcode = iota
	Sub
	Mul
	Div
	Rem
	Neg

	// integer-only bitwise: both operands coerced to Integer.
	Shl
	Shr
	And
	Or
	Xor
	Not

	// real-only rounding family.
	Floor
	Ceil
	Trunc
	Round
	IntToReal

	// compare
	Cmp
	GetType

	// control flow; jump targets are i32 deltas relative to the jump's own
	// position.
	Jump
	JumpZero
	JumpNeg

	// call
	Call
	Return

	// operand stack / locals
	StackCopy
	StackPop
	StackLoad
	StackStore
	StackSwap

	// literal
	LiteralCreate

	// tuple
	TupleCreate
	TupleFromList
	TupleWeakRef
	TupleWeakUpgrade

	// table
	TableCreate

	// list
	ListCreate
	ListPush
	ListPop
	ListGetSlice

	// buffer
	BufferCreate
	BufferGetSlice
	BufferSetSlice

	// sequence (polymorphic over Tuple/Table/List/Buffer)
	SeqLen
	SeqResize
	SeqGet
	SeqSet
	SeqToList
	SeqAppend

	opcodeMax
)

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return fmt.Sprintf("illegal op (%d)", op)
}

var opcodeNames = [...]string{
	Add:              "add",
	Sub:              "sub",
	Mul:              "mul",
	Div:              "div",
	Rem:              "rem",
	Neg:              "neg",
	Shl:              "shl",
	Shr:              "shr",
	And:              "and",
	Or:               "or",
	Xor:              "xor",
	Not:              "not",
	Floor:            "floor",
	Ceil:             "ceil",
	Trunc:            "trunc",
	Round:            "round",
	IntToReal:        "int_to_real",
	Cmp:              "cmp",
	GetType:          "get_type",
	Jump:             "jump",
	JumpZero:         "jump_zero",
	JumpNeg:          "jump_neg",
	Call:             "call",
	Return:           "return",
	StackCopy:        "stack_copy",
	StackPop:         "stack_pop",
	StackLoad:        "stack_load",
	StackStore:       "stack_store",
	StackSwap:        "stack_swap",
	LiteralCreate:    "literal_create",
	TupleCreate:      "tuple_create",
	TupleFromList:    "tuple_from_list",
	TupleWeakRef:     "tuple_weak_ref",
	TupleWeakUpgrade: "tuple_weak_upgrade",
	TableCreate:      "table_create",
	ListCreate:       "list_create",
	ListPush:         "list_push",
	ListPop:          "list_pop",
	ListGetSlice:     "list_get_slice",
	BufferCreate:     "buffer_create",
	BufferGetSlice:   "buffer_get_slice",
	BufferSetSlice:   "buffer_set_slice",
	SeqLen:           "seq_len",
	SeqResize:        "seq_resize",
	SeqGet:           "seq_get",
	SeqSet:           "seq_set",
	SeqToList:        "seq_to_list",
	SeqAppend:        "seq_append",
}

// payloadKind classifies an opcode's fixed-width wire payload.
type payloadKind uint8

const (
	payloadNone payloadKind = iota
	payloadI32              // relative jump delta
	payloadU8               // slot index or element count
	payloadLiteral          // LiteralValue
)

func (op Opcode) payload() payloadKind {
	switch op {
	case Jump, JumpZero, JumpNeg:
		return payloadI32
	case Call, StackLoad, StackStore, StackSwap, TupleCreate, ListCreate:
		return payloadU8
	case LiteralCreate:
		return payloadLiteral
	default:
		return payloadNone
	}
}
