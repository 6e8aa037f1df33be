package vm

import "github.com/nilstack/stackvm/lang/value"

// Frame is one function invocation's state: an operand stack, a locals
// array addressed 0..255, and a link to the calling frame (spec.md §4.3).
// The program counter lives in the interpreter loop that drives the frame
// (machine.go). Local slot 0 always holds the invoked function's module
// tuple, so StackLoad 0 is the canonical module reference.
type Frame struct {
	Parent *Frame
	Fn     *value.Function

	stack  []value.Value
	locals []value.Value
}

// NewFrame creates a frame for fn, chaining to parent. Local slot 0 is
// pre-initialized with fn's module tuple.
func NewFrame(parent *Frame, fn *value.Function) *Frame {
	fr := &Frame{Parent: parent, Fn: fn}
	fr.locals = append(fr.locals, fn.Module)
	value.Retain(fn.Module)
	return fr
}

// Teardown releases whatever remains resident in the frame's locals
// array. Call it once when the frame is popped.
func (fr *Frame) Teardown() {
	for _, v := range fr.locals {
		if v != nil {
			value.Release(v)
		}
	}
}

// Push appends v to the operand stack.
func (fr *Frame) Push(v value.Value) { fr.stack = append(fr.stack, v) }

// Pop removes and returns the top of the operand stack.
func (fr *Frame) Pop() (value.Value, error) {
	n := len(fr.stack)
	if n == 0 {
		return nil, ErrStackEmpty
	}
	v := fr.stack[n-1]
	fr.stack = fr.stack[:n-1]
	return v, nil
}

// Top returns the top of the operand stack without removing it.
func (fr *Frame) Top() (value.Value, error) {
	n := len(fr.stack)
	if n == 0 {
		return nil, ErrStackEmpty
	}
	return fr.stack[n-1], nil
}

// Copy duplicates the top of the operand stack, retaining it (spec.md §3
// expansion: StackCopy duplicates a reference while the original
// persists).
func (fr *Frame) Copy() error {
	v, err := fr.Top()
	if err != nil {
		return err
	}
	value.Retain(v)
	fr.Push(v)
	return nil
}

// Swap exchanges the top of the operand stack with local slot. Neither
// side's reference count changes: the same two references are simply
// relocated.
func (fr *Frame) Swap(slot int) error {
	top, err := fr.Pop()
	if err != nil {
		return err
	}
	if slot < 0 || slot >= len(fr.locals) {
		fr.Push(top)
		return &LocalReadError{Slot: slot}
	}
	fr.stack = append(fr.stack, fr.locals[slot])
	fr.locals[slot] = top
	return nil
}

// Load pushes a copy of local slot. Reading an unset slot (one the locals
// array has never grown to cover) is an error. Loading retains the value:
// the local keeps its own reference while the stack gains a second one.
func (fr *Frame) Load(slot int) error {
	if slot < 0 || slot >= len(fr.locals) {
		return &LocalReadError{Slot: slot}
	}
	v := fr.locals[slot]
	value.Retain(v)
	fr.Push(v)
	return nil
}

// Store pops the top of the operand stack into local slot, auto-growing
// the locals array (new gap slots are filled with value.None) if
// necessary. The popped stack reference moves into the slot; whatever
// the slot previously held (if it existed) is released.
func (fr *Frame) Store(slot int) error {
	v, err := fr.Pop()
	if err != nil {
		return err
	}
	if slot >= len(fr.locals) {
		for len(fr.locals) <= slot {
			fr.locals = append(fr.locals, value.None)
		}
		fr.locals[slot] = v
		return nil
	}
	old := fr.locals[slot]
	fr.locals[slot] = v
	value.Release(old)
	return nil
}
