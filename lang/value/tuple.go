package value

import (
	"fmt"
	"unsafe"
)

// Tuple is a fixed-length, heap-allocated sequence of cells whose contents
// may be overwritten in place (spec.md §3: "length is fixed at creation;
// only cell contents mutate"). It is a shared, reference-counted
// container: two Values may hold the same *Tuple, and TupleWeak gives a
// third kind of (non-owning) handle to it.
type Tuple struct {
	rc    refcount
	cells []Value
}

// NewTuple creates a Tuple taking ownership of cells (the caller must not
// retain cells itself; the returned Tuple becomes the sole owner of each
// element's reference, per the "construction moves" rule in spec.md §3).
func NewTuple(cells []Value) *Tuple {
	t := &Tuple{cells: cells}
	t.rc.init()
	return t
}

func (t *Tuple) Kind() Kind     { return KindTuple }
func (t *Tuple) String() string { return fmt.Sprintf("tuple(%p)", t) }
func (t *Tuple) Len() int       { return len(t.cells) }

// Identity returns the address of the Tuple itself.
func (t *Tuple) Identity() uintptr { return uintptr(unsafe.Pointer(t)) }

// Alive reports whether any strong reference to t remains.
func (t *Tuple) Alive() bool { return t.rc.alive() }

func (t *Tuple) retain() { t.rc.retain() }

// release drops t's own reference count and, once no strong owner
// remains, releases every cell in turn — the tuple was itself an owner
// of each, so its own destruction must give those references up too.
func (t *Tuple) release() {
	t.rc.release()
	if !t.rc.alive() {
		for _, v := range t.cells {
			Release(v)
		}
	}
}

// Get returns the cell at i.
func (t *Tuple) Get(i int) (Value, error) {
	if i < 0 || i >= len(t.cells) {
		return nil, &IndexReadError{Index: i}
	}
	return t.cells[i], nil
}

// Set overwrites the cell at i with v, releasing the previous occupant and
// retaining v (the cell now holds a second simultaneous reference to v).
func (t *Tuple) Set(i int, v Value) error {
	if i < 0 || i >= len(t.cells) {
		return &IndexWriteError{Index: i}
	}
	old := t.cells[i]
	Retain(v)
	t.cells[i] = v
	Release(old)
	return nil
}

// TupleWeak is a non-owning handle to a Tuple. It does not keep the target
// alive; Upgrade converts it back to a strong reference only while the
// target still has at least one other owner.
type TupleWeak struct {
	target *Tuple
}

// NewTupleWeak creates a weak handle to t. Creating a weak reference does
// not retain t.
func NewTupleWeak(t *Tuple) *TupleWeak { return &TupleWeak{target: t} }

func (w *TupleWeak) Kind() Kind { return KindTupleWeak }

func (w *TupleWeak) String() string { return fmt.Sprintf("tuple_weak(%p)", w.target) }

// Identity returns the address of the target tuple while it is still
// alive, and 0 once it has been deallocated — so a TupleWeak and its
// (still live) strong Tuple have equal Identity values, and every
// TupleWeak to a dead tuple has identity 0, whatever its target was.
// Compare does not order a TupleWeak against a Tuple: their kinds differ.
func (w *TupleWeak) Identity() uintptr {
	if w.target != nil && w.target.Alive() {
		return uintptr(unsafe.Pointer(w.target))
	}
	return 0
}

// Upgrade returns a new strong reference to the target tuple, or None if
// the target has no remaining strong owners. A successful Upgrade retains
// the target.
func (w *TupleWeak) Upgrade() Value {
	if w.target == nil || !w.target.Alive() {
		return None
	}
	w.target.retain()
	return w.target
}
