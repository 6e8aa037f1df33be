package value

import (
	"fmt"
	"unsafe"
)

// Unknown is an opaque, identity-compared container for host data that has
// no native representation in the value model — notably the error
// sentinel convention native functions use to signal failure without a
// dedicated error kind (spec.md §6).
type Unknown struct {
	rc   refcount
	Data any
}

// NewUnknown wraps data as an Unknown value.
func NewUnknown(data any) *Unknown {
	u := &Unknown{Data: data}
	u.rc.init()
	return u
}

func (u *Unknown) Kind() Kind        { return KindUnknown }
func (u *Unknown) String() string    { return fmt.Sprintf("unknown(%p)", u) }
func (u *Unknown) Identity() uintptr { return uintptr(unsafe.Pointer(u)) }

func (u *Unknown) retain()  { u.rc.retain() }
func (u *Unknown) release() { u.rc.release() }
