// Package container implements the GC-managed collection types backing
// Ymd values (spec §3, §4.3): dynamic array, open-addressed hash map,
// skip list and opaque managed data.
package container

import (
	"errors"
	"fmt"

	"github.com/emptyland/ymd-sub000/internal/value"
)

var ErrIndexRange = errors.New("index out of range")

// Dyay is the dynamic-array reference subtype ("dyay", spec §3).
type Dyay struct {
	value.GCHeader
	elems []value.Value
}

func NewDyay(capacity int, white value.Color) *Dyay {
	if capacity < 0 {
		capacity = 0
	}
	return &Dyay{GCHeader: value.NewHeader(value.RefDyay, white), elems: make([]value.Value, 0, capacity)}
}

func (a *Dyay) Count() int { return len(a.elems) }

func (a *Dyay) Add(v value.Value) {
	a.elems = a.grow(len(a.elems) + 1)
	a.elems = append(a.elems, v)
}

// grow ensures capacity for n elements using a 3/2 growth factor plus
// constant slack, per spec §3/§4.3.
func (a *Dyay) grow(n int) []value.Value {
	if cap(a.elems) >= n {
		return a.elems
	}
	newCap := cap(a.elems)*3/2 + 4
	if newCap < n {
		newCap = n
	}
	next := make([]value.Value, len(a.elems), newCap)
	copy(next, a.elems)
	return next
}

func (a *Dyay) Insert(i int, v value.Value) error {
	if i < 0 || i > len(a.elems) {
		return fmt.Errorf("%w: insert at %d, len %d", ErrIndexRange, i, len(a.elems))
	}
	a.elems = a.grow(len(a.elems) + 1)
	a.elems = append(a.elems, value.Nil())
	copy(a.elems[i+1:], a.elems[i:])
	a.elems[i] = v
	return nil
}

func (a *Dyay) Get(i int) (value.Value, error) {
	if i < 0 || i >= len(a.elems) {
		return value.Nil(), fmt.Errorf("%w: get %d, len %d", ErrIndexRange, i, len(a.elems))
	}
	return a.elems[i], nil
}

func (a *Dyay) Set(i int, v value.Value) error {
	if i < 0 || i >= len(a.elems) {
		return fmt.Errorf("%w: set %d, len %d", ErrIndexRange, i, len(a.elems))
	}
	a.elems[i] = v
	return nil
}

func (a *Dyay) Remove(i int) error {
	if i < 0 || i >= len(a.elems) {
		return fmt.Errorf("%w: remove %d, len %d", ErrIndexRange, i, len(a.elems))
	}
	copy(a.elems[i:], a.elems[i+1:])
	a.elems = a.elems[:len(a.elems)-1]
	return nil
}

// Slice exposes the live backing slice so callers (e.g. a sort/search
// builtin) can reorder or scan elements in place without copying.
func (a *Dyay) Slice() []value.Value { return a.elems }

// Children yields every element, letting the collector keep reachable
// array contents alive (spec §4.8).
func (a *Dyay) Children(yield func(value.Value)) {
	for _, v := range a.elems {
		yield(v)
	}
}

func (a *Dyay) Each(fn func(i int, v value.Value) bool) {
	for i, v := range a.elems {
		if !fn(i, v) {
			return
		}
	}
}

func (a *Dyay) RefTag() value.RefTag { return value.RefDyay }
func (a *Dyay) TypeName() string     { return "array" }

func (a *Dyay) EqualsRef(other value.RefObject) bool {
	o, ok := other.(*Dyay)
	if !ok || len(a.elems) != len(o.elems) {
		return false
	}
	for i := range a.elems {
		if !value.Equals(a.elems[i], o.elems[i]) {
			return false
		}
	}
	return true
}

func (a *Dyay) CompareRef(other value.RefObject) int {
	o, ok := other.(*Dyay)
	if !ok {
		return 0
	}
	n := len(a.elems)
	if len(o.elems) < n {
		n = len(o.elems)
	}
	for i := 0; i < n; i++ {
		if c := value.Compare(a.elems[i], o.elems[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a.elems) < len(o.elems):
		return -1
	case len(a.elems) > len(o.elems):
		return 1
	default:
		return 0
	}
}

func (a *Dyay) String() string {
	s := "["
	for i, v := range a.elems {
		if i > 0 {
			s += ", "
		}
		s += v.String()
	}
	return s + "]"
}
