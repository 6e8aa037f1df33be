// Package emit implements the bytecode emitter: label creation and
// patching, a local-slot allocator with free-list reuse, and a loop-context
// stack (spec.md §4.6). lower.go drives an Emitter from lang/ir trees;
// scope.go is the separate block-scope analysis pass that decides where
// DropVar belongs before lowering runs.
package emit

import (
	"fmt"

	"github.com/dolthub/swiss"
	"github.com/nilstack/stackvm/lang/bcode"
	"github.com/nilstack/stackvm/lang/ir"
	"github.com/nilstack/stackvm/lang/vm"
)

// Label is a symbolic position in the instruction stream. Its target is
// set at most once, by LabelHere; every jump recorded against it via
// PushJump is patched to point there once Finish runs.
type Label struct {
	target   int
	resolved bool
	jumps    []int // byte offsets of the opcode byte of each recorded jump
}

// maxLocalSlots mirrors the u8 slot-index width (spec.md §4.6: "panic at
// 255 exhaustion").
const maxLocalSlots = 255

// Emitter accumulates one function's instruction bytes.
type Emitter struct {
	code []byte

	allLabels []*Label

	loops    []loopPair
	loopByID *swiss.Map[int, loopPair]

	bindings  *swiss.Map[ir.Var, uint8]
	freeSlots []uint8
	nextSlot  int // wider than uint8 so the 255-slot exhaustion check below is reachable
}

type loopPair struct {
	continueL *Label
	breakL    *Label
}

// NewEmitter creates an Emitter with slot 0 reserved for the module
// (spec.md §4.3: "local slot 0 is pre-initialized with the function's
// module tuple").
func NewEmitter() *Emitter {
	return &Emitter{
		nextSlot: 1,
		loopByID: swiss.NewMap[int, loopPair](0),
		bindings: swiss.NewMap[ir.Var, uint8](0),
	}
}

// Code returns the instruction bytes accumulated so far. Call Finish
// first to patch jump targets.
func (e *Emitter) Code() []byte { return e.code }

// CreateLabel returns a new unresolved label.
func (e *Emitter) CreateLabel() *Label {
	l := &Label{target: -1}
	e.allLabels = append(e.allLabels, l)
	return l
}

// LabelHere binds l to the current end of the instruction stream. A label
// may be bound only once.
func (e *Emitter) LabelHere(l *Label) {
	if l.resolved {
		panic("emit: label target set twice")
	}
	l.target = len(e.code)
	l.resolved = true
}

// Push appends a payload-less opcode.
func (e *Emitter) Push(op vm.Opcode) { e.code = vm.WriteOp(op, e.code) }

// PushU8 appends an opcode with a u8 payload (a local slot, an argument
// count, or an element count).
func (e *Emitter) PushU8(op vm.Opcode, arg uint8) { e.code = vm.WriteU8Op(op, arg, e.code) }

// PushLiteral appends LiteralCreate with its payload.
func (e *Emitter) PushLiteral(lv vm.LiteralValue) { e.code = vm.WriteLiteralOp(lv, e.code) }

// PushJump appends a Jump/JumpZero/JumpNeg with a placeholder delta,
// recording the instruction's position against l for patching in Finish.
func (e *Emitter) PushJump(l *Label, op vm.Opcode) {
	switch op {
	case vm.Jump, vm.JumpZero, vm.JumpNeg:
	default:
		panic("emit: push_jump requires a jump opcode")
	}
	l.jumps = append(l.jumps, len(e.code))
	e.code = vm.WriteJumpOp(op, 0, e.code)
}

// Finish patches every recorded jump to its label's target and returns the
// final instruction bytes. Every label that has recorded jumps must have
// been bound via LabelHere by this point, or Finish returns an error;
// unbound labels with no jumps are ignored.
func (e *Emitter) Finish() ([]byte, error) {
	for _, l := range e.allLabels {
		if !l.resolved && len(l.jumps) > 0 {
			return nil, fmt.Errorf("emit: label referenced by %d jump(s) was never bound", len(l.jumps))
		}
		for _, pos := range l.jumps {
			delta := int32(l.target - pos)
			patch := bcode.WriteI32(delta, nil)
			copy(e.code[pos+1:pos+1+len(patch)], patch)
		}
	}
	return e.code, nil
}

// LoopEnter pushes a fresh continue/break label pair for a loop, optionally
// indexed by id for Break/Continue statements that name a label.
func (e *Emitter) LoopEnter(id *int) (continueL, breakL *Label) {
	p := loopPair{continueL: e.CreateLabel(), breakL: e.CreateLabel()}
	e.loops = append(e.loops, p)
	if id != nil {
		e.loopByID.Put(*id, p)
	}
	return p.continueL, p.breakL
}

// LoopExit pops the innermost loop context.
func (e *Emitter) LoopExit(id *int) {
	e.loops = e.loops[:len(e.loops)-1]
	if id != nil {
		e.loopByID.Delete(*id)
	}
}

// LoopGetBreak resolves the break label by id, or the innermost loop if id
// is nil.
func (e *Emitter) LoopGetBreak(id *int) (*Label, error) {
	p, err := e.loopPairFor(id)
	if err != nil {
		return nil, err
	}
	return p.breakL, nil
}

// LoopGetContinue resolves the continue label by id, or the innermost loop
// if id is nil.
func (e *Emitter) LoopGetContinue(id *int) (*Label, error) {
	p, err := e.loopPairFor(id)
	if err != nil {
		return nil, err
	}
	return p.continueL, nil
}

func (e *Emitter) loopPairFor(id *int) (loopPair, error) {
	if id != nil {
		p, ok := e.loopByID.Get(*id)
		if !ok {
			return loopPair{}, fmt.Errorf("emit: no loop labeled %d is active", *id)
		}
		return p, nil
	}
	if len(e.loops) == 0 {
		return loopPair{}, fmt.Errorf("emit: break/continue outside any loop")
	}
	return e.loops[len(e.loops)-1], nil
}

// BindVar allocates a slot for v, reusing a released slot if one is free.
func (e *Emitter) BindVar(v ir.Var) (uint8, error) {
	if n := len(e.freeSlots); n > 0 {
		slot := e.freeSlots[n-1]
		e.freeSlots = e.freeSlots[:n-1]
		e.bindings.Put(v, slot)
		return slot, nil
	}
	if e.nextSlot > maxLocalSlots {
		return 0, fmt.Errorf("emit: local slot exhaustion (limit %d)", maxLocalSlots)
	}
	slot := uint8(e.nextSlot)
	e.nextSlot++
	e.bindings.Put(v, slot)
	return slot, nil
}

// DropVar releases v's slot to the free list. It emits no bytecode: the
// slot's actual value is released when a future StackStore overwrites it,
// or at frame teardown, whichever comes first (spec.md §4.6).
func (e *Emitter) DropVar(v ir.Var) {
	slot, ok := e.bindings.Get(v)
	if !ok {
		return
	}
	e.bindings.Delete(v)
	e.freeSlots = append(e.freeSlots, slot)
}

// PushVarLoad emits StackLoad for v's bound slot.
func (e *Emitter) PushVarLoad(v ir.Var) error {
	slot, ok := e.bindings.Get(v)
	if !ok {
		return fmt.Errorf("emit: read of unbound variable %d", v)
	}
	e.PushU8(vm.StackLoad, slot)
	return nil
}

// PushVarStore emits StackStore for v's bound slot.
func (e *Emitter) PushVarStore(v ir.Var) error {
	slot, ok := e.bindings.Get(v)
	if !ok {
		return fmt.Errorf("emit: store to unbound variable %d", v)
	}
	e.PushU8(vm.StackStore, slot)
	return nil
}
