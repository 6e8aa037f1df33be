package value

import (
	"fmt"
	"unsafe"
)

// Ops is a function's encoded instruction stream, shared immutably
// between every Function value created from the same compiled function
// (spec.md §3: "ops: shared immutable ops vector"). Its address, not its
// contents, is a Function's identity.
type Ops struct {
	Code []byte
}

// Function pairs a module (the Tuple of module-level bindings visible to
// the function's free variables) with its shared Ops. Two Functions
// created from the same compiled definition share one identity, even when
// they close over different module tuples, because identity is the
// address of the shared Ops rather than of the Function wrapper.
type Function struct {
	rc     refcount
	Module *Tuple
	Ops    *Ops
}

// NewFunction creates a Function. It retains module, since the Function
// becomes a second simultaneous owner of it alongside whatever created
// it.
func NewFunction(module *Tuple, ops *Ops) *Function {
	f := &Function{Module: module, Ops: ops}
	f.rc.init()
	Retain(module)
	return f
}

func (f *Function) Kind() Kind        { return KindFunction }
func (f *Function) String() string    { return fmt.Sprintf("function(%p)", f.Ops) }
func (f *Function) Identity() uintptr { return uintptr(unsafe.Pointer(f.Ops)) }

func (f *Function) retain() { f.rc.retain() }
func (f *Function) release() {
	f.rc.release()
	if !f.rc.alive() {
		Release(f.Module)
	}
}

// NativeFn wraps a host routine so it can be called the same way as a
// compiled Function. There is no error channel out of a native call
// (spec.md §6): a native function that fails signals it through its
// return value, conventionally an Unknown sentinel wrapping whatever the
// host wants to report. NativeFn is not reference-counted: it has no
// owned resources beyond the closure itself and is expected to live for
// the process lifetime.
type NativeFn struct {
	Name string
	Fn   func(args []Value) Value
}

func (n *NativeFn) Kind() Kind        { return KindNativeFn }
func (n *NativeFn) String() string    { return fmt.Sprintf("native_fn(%s)", n.Name) }
func (n *NativeFn) Identity() uintptr { return uintptr(unsafe.Pointer(n)) }
