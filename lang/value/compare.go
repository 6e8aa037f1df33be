package value

import (
	"errors"
	"fmt"
)

// ErrNotComparable is returned when a comparison would have to order two
// NaN reals, or a real against NaN (spec.md §9: "NaN comparison is an
// explicit error, not a silent false").
var ErrNotComparable = errors.New("value: NaN is not comparable")

// Compare orders x and y, returning a negative number if x < y, zero if
// x == y, and a positive number if x > y (spec.md §3 "Comparison"). None
// sorts below every other value and is equal only to itself. Integer and
// Real compare numerically, coercing across each other. Every other kind
// compares by identity only: two container values of the same kind are
// ordered by their address, and two values of different non-numeric kinds
// cannot be compared at all.
func Compare(x, y Value) (int, error) {
	xNone, yNone := x.Kind() == KindNone, y.Kind() == KindNone
	switch {
	case xNone && yNone:
		return 0, nil
	case xNone:
		return -1, nil
	case yNone:
		return 1, nil
	}

	switch xv := x.(type) {
	case Int:
		switch yv := y.(type) {
		case Int:
			return intCmp(int64(xv), int64(yv)), nil
		case Real:
			return realCmp(Real(xv), yv)
		}
	case Real:
		switch yv := y.(type) {
		case Int:
			return realCmp(xv, Real(yv))
		case Real:
			return realCmp(xv, yv)
		}
	}

	if x.Kind() != y.Kind() {
		return 0, fmt.Errorf("value: cannot compare %s and %s", x.Kind(), y.Kind())
	}
	xi, xok := x.(identifiable)
	yi, yok := y.(identifiable)
	if !xok || !yok {
		return 0, fmt.Errorf("value: cannot compare %s and %s", x.Kind(), y.Kind())
	}
	return identityCmp(xi.Identity(), yi.Identity()), nil
}

func intCmp(x, y int64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func realCmp(x, y Real) (int, error) {
	switch {
	case x < y:
		return -1, nil
	case x > y:
		return 1, nil
	case x == y:
		return 0, nil
	default:
		return 0, ErrNotComparable
	}
}

func identityCmp(x, y uintptr) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

// Equal reports whether x and y compare equal, treating any Compare error
// (NaN's incomparability, or two kinds that cannot be compared) as
// inequality rather than reporting it.
func Equal(x, y Value) bool {
	c, err := Compare(x, y)
	if err != nil {
		return false
	}
	return c == 0
}
