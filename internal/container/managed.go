package container

import (
	"errors"

	"github.com/emptyland/ymd-sub000/internal/value"
)

var ErrNoMetatable = errors.New("mand has no metatable")

// Finalizer runs once, at sweep time, for a Mand that was never reached
// from a root (spec §3/§4.8's finalize phase).
type Finalizer func(data interface{})

// Mand wraps opaque host data ("mand", spec §3, §4.3): a finalizer runs
// once at sweep, and an optional metatable (a field container) forwards
// field get/put the way a table's metatable does for ordinary values.
type Mand struct {
	value.GCHeader
	Subtype    string
	Data       interface{}
	finalize   Finalizer
	finalized  bool
	metatable  fieldContainer
}

// fieldContainer is implemented by Hmap and Skls, the two reference types
// that can stand in as a mand's metatable (spec §4.1's field lookup).
type fieldContainer interface {
	Get(key value.Value) (value.Value, bool)
	Put(key, v value.Value) error
}

func NewMand(subtype string, data interface{}, finalize Finalizer, white value.Color) *Mand {
	return &Mand{
		GCHeader: value.NewHeader(value.RefMand, white),
		Subtype:  subtype,
		Data:     data,
		finalize: finalize,
	}
}

func (m *Mand) SetMetatable(mt fieldContainer) { m.metatable = mt }
func (m *Mand) Metatable() fieldContainer      { return m.metatable }

// GetField forwards to the metatable, if any, else reports absence.
func (m *Mand) GetField(key value.Value) (value.Value, bool) {
	if m.metatable == nil {
		return value.Nil(), false
	}
	return m.metatable.Get(key)
}

// PutField forwards to the metatable; putting on a mand without one is a
// no-op error left to the caller to surface as a runtime error.
func (m *Mand) PutField(key, v value.Value) error {
	if m.metatable == nil {
		return ErrNoMetatable
	}
	return m.metatable.Put(key, v)
}

// Finalize runs the finalizer exactly once; called by the collector's
// finalize phase when the object did not survive a collection (spec §4.8).
func (m *Mand) Finalize() {
	if m.finalized || m.finalize == nil {
		return
	}
	m.finalized = true
	m.finalize(m.Data)
}

// Children yields the metatable, if any, as a single child: a mand's
// Data is host-owned, not GC-managed, and is never marked (spec §4.8).
func (m *Mand) Children(yield func(value.Value)) {
	if m.metatable == nil {
		return
	}
	if ro, ok := m.metatable.(value.RefObject); ok {
		yield(value.NewRef(ro))
	}
}

func (m *Mand) RefTag() value.RefTag { return value.RefMand }
func (m *Mand) TypeName() string     { return m.Subtype }

func (m *Mand) EqualsRef(other value.RefObject) bool {
	o, ok := other.(*Mand)
	return ok && m == o
}

func (m *Mand) CompareRef(other value.RefObject) int {
	o, ok := other.(*Mand)
	if !ok {
		return 0
	}
	if m == o {
		return 0
	}
	if m.Subtype != o.Subtype {
		if m.Subtype < o.Subtype {
			return -1
		}
		return 1
	}
	return 0
}

func (m *Mand) String() string { return "<" + m.Subtype + ">" }
