package vm

import (
	"errors"
	"fmt"

	"github.com/nilstack/stackvm/lang/value"
)

// ErrStackEmpty is returned by a pop on an empty operand stack.
var ErrStackEmpty = errors.New("vm: pop on empty operand stack")

// LocalReadError is returned by StackLoad of a slot the frame's locals
// array has never been grown to cover.
type LocalReadError struct{ Slot int }

func (e *LocalReadError) Error() string {
	return fmt.Sprintf("vm: read of unset local slot %d", e.Slot)
}

// IndexReadError is returned by an out-of-range sequence read. The bounds
// checks live in the value containers; the interpreter surfaces their
// errors unchanged, so this is the same type as value.IndexReadError and
// errors.As matches either name.
type IndexReadError = value.IndexReadError

// IndexWriteError is returned by an out-of-range sequence write.
type IndexWriteError = value.IndexWriteError

// ErrRecursionLimit is returned when Machine.MaxCallDepth is exceeded.
var ErrRecursionLimit = errors.New("vm: call stack depth exceeded")

// ErrStepLimit is returned when Machine.MaxSteps is exceeded.
var ErrStepLimit = errors.New("vm: step limit exceeded")
