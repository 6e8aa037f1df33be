package value

import (
	"fmt"
	"unsafe"

	"golang.org/x/exp/slices"
)

// tableEntry is one key/value pair in a Table, kept sorted by key so
// lookups and insertions can binary-search rather than hash — unlike the
// genuinely hash-shaped state in lang/emit (the loop-id table and the
// variable-to-slot bindings), which uses a swiss map instead.
type tableEntry struct {
	key uint64
	val Value
}

// Table is a sorted associative container keyed by a 64-bit unsigned
// integer. lang/vm derives keys from pushed Values by coercing them to
// Integer and taking the bit pattern; a key that does not coerce to
// Integer is an error there.
type Table struct {
	rc      refcount
	entries []tableEntry
}

// NewTable creates an empty Table.
func NewTable() *Table {
	t := &Table{}
	t.rc.init()
	return t
}

func (t *Table) Kind() Kind        { return KindTable }
func (t *Table) String() string    { return fmt.Sprintf("table(%p)", t) }
func (t *Table) Identity() uintptr { return uintptr(unsafe.Pointer(t)) }
func (t *Table) Len() int          { return len(t.entries) }

func (t *Table) retain() { t.rc.retain() }

// release drops t's own reference count and, once no strong owner
// remains, releases every bound value in turn, mirroring Tuple.release.
func (t *Table) release() {
	t.rc.release()
	if !t.rc.alive() {
		for _, e := range t.entries {
			Release(e.val)
		}
	}
}

func (t *Table) find(key uint64) (int, bool) {
	return slices.BinarySearchFunc(t.entries, key, func(e tableEntry, k uint64) int {
		switch {
		case e.key < k:
			return -1
		case e.key > k:
			return 1
		default:
			return 0
		}
	})
}

// Get returns the value bound to key, if any.
func (t *Table) Get(key uint64) (Value, bool) {
	i, ok := t.find(key)
	if !ok {
		return None, false
	}
	return t.entries[i].val, true
}

// Set binds key to v. Setting v to None deletes the key (spec.md §3:
// "setting a key to None deletes it"); any other value inserts or
// replaces the existing binding, retaining v and releasing whatever value
// it displaces — the same duplicate-and-release-old convention as
// Tuple.Set and List.Set, so callers that move a value in (rather than
// share it) must Release it once afterward to balance the implicit
// Retain.
func (t *Table) Set(key uint64, v Value) {
	i, ok := t.find(key)
	if v == None {
		if ok {
			Release(t.entries[i].val)
			t.entries = slices.Delete(t.entries, i, i+1)
		}
		return
	}
	Retain(v)
	if ok {
		Release(t.entries[i].val)
		t.entries[i].val = v
		return
	}
	t.entries = slices.Insert(t.entries, i, tableEntry{key: key, val: v})
}

// Keys returns the sorted keys currently bound in t.
func (t *Table) Keys() []uint64 {
	keys := make([]uint64, len(t.entries))
	for i, e := range t.entries {
		keys[i] = e.key
	}
	return keys
}
