// Package value implements the Ymd tagged-value model (spec §3, §4.1):
// a (tag, payload) pair where reference payloads point at GC-managed
// objects carrying their own subtype tag.
package value

import "fmt"

// Tag is the primary discriminator of a Value.
type Tag byte

const (
	TagNil Tag = iota
	TagInt
	TagFloat
	TagBool
	TagExt
	TagRef
)

func (t Tag) String() string {
	switch t {
	case TagNil:
		return "nil"
	case TagInt:
		return "int"
	case TagFloat:
		return "float"
	case TagBool:
		return "bool"
	case TagExt:
		return "ext"
	case TagRef:
		return "ref"
	default:
		return "?"
	}
}

// Value is the (tag, payload) pair every Ymd operand is built from.
// Nil's payload is the zero value, satisfying spec §3's invariant.
type Value struct {
	Tag Tag
	I   int64
	F   float64
	B   bool
	Ext interface{} // host pointer, not GC-managed
	Ref Obj
}

// Obj is implemented by every GC-managed reference object; Header exposes
// the allocation-list/color/flag state the collector walks (spec §3).
type Obj interface {
	Header() *GCHeader
}

// RefObject is the richer interface reference subtypes implement so the
// value package can dispatch type-tests, equality and ordering without
// importing the concrete container/string/function packages (which in
// turn import value), avoiding an import cycle.
type RefObject interface {
	Obj
	RefTag() RefTag
	TypeName() string
	EqualsRef(other RefObject) bool
	CompareRef(other RefObject) int
}

// RefTag is the reference object's own subtype tag (spec §3).
type RefTag byte

const (
	RefKStr RefTag = iota
	RefDyay
	RefHmap
	RefSkls
	RefMand
	RefFunc
)

func (t RefTag) String() string {
	switch t {
	case RefKStr:
		return "string"
	case RefDyay:
		return "array"
	case RefHmap:
		return "map"
	case RefSkls:
		return "skiplist"
	case RefMand:
		return "managed"
	case RefFunc:
		return "function"
	default:
		return "?"
	}
}

func Nil() Value                 { return Value{Tag: TagNil} }
func NewInt(i int64) Value       { return Value{Tag: TagInt, I: i} }
func NewFloat(f float64) Value   { return Value{Tag: TagFloat, F: f} }
func NewBool(b bool) Value       { return Value{Tag: TagBool, B: b} }
func NewExt(p interface{}) Value { return Value{Tag: TagExt, Ext: p} }
func NewRef(o RefObject) Value   { return Value{Tag: TagRef, Ref: o} }

func (v Value) IsNil() bool { return v.Tag == TagNil }

// TypeOf resolves Ref values to the referent's subtype tag, as a string
// name, per spec §4.1's type_of(v).
func (v Value) TypeOf() string {
	if v.Tag == TagRef {
		if ro, ok := v.Ref.(RefObject); ok {
			return ro.TypeName()
		}
		return "ref"
	}
	return v.Tag.String()
}

// Truthy implements spec §4.1: Nil -> false, Bool -> payload, else true.
func (v Value) Truthy() bool {
	switch v.Tag {
	case TagNil:
		return false
	case TagBool:
		return v.B
	default:
		return true
	}
}

// Equals implements spec §4.1's equals(): same-tag content equality, with
// cross-numeric Int/Float comparing by numeric value.
func Equals(a, b Value) bool {
	if a.Tag == TagInt && b.Tag == TagFloat {
		return float64(a.I) == b.F
	}
	if a.Tag == TagFloat && b.Tag == TagInt {
		return a.F == float64(b.I)
	}
	if a.Tag != b.Tag {
		return false
	}
	switch a.Tag {
	case TagNil:
		return true
	case TagInt:
		return a.I == b.I
	case TagFloat:
		return a.F == b.F
	case TagBool:
		return a.B == b.B
	case TagExt:
		return a.Ext == b.Ext
	case TagRef:
		ar, aok := a.Ref.(RefObject)
		br, bok := b.Ref.(RefObject)
		if !aok || !bok {
			return a.Ref == b.Ref
		}
		if ar.RefTag() != br.RefTag() {
			return false
		}
		return ar.EqualsRef(br)
	}
	return false
}

// tagOrder gives the total order used to compare values of different tags,
// per the open question in spec §9 ("numeric compare across tags"): this
// implementation special-cases Int/Float so numeric equality still implies
// compare()==0 as required by spec §4.1's invariant, and falls back to
// comparing tag index for every other cross-tag pair.
func tagOrder(t Tag) int { return int(t) }

// Compare implements spec §4.1's compare(): total order within a tag,
// numeric cross-compare between Int and Float, tag-index fallback
// otherwise.
func Compare(a, b Value) int {
	if a.Tag == TagInt && b.Tag == TagFloat {
		return cmpFloat(float64(a.I), b.F)
	}
	if a.Tag == TagFloat && b.Tag == TagInt {
		return cmpFloat(a.F, float64(b.I))
	}
	if a.Tag != b.Tag {
		ao, bo := tagOrder(a.Tag), tagOrder(b.Tag)
		switch {
		case ao < bo:
			return -1
		case ao > bo:
			return 1
		default:
			return 0
		}
	}
	switch a.Tag {
	case TagNil:
		return 0
	case TagInt:
		return cmpInt(a.I, b.I)
	case TagFloat:
		return cmpFloat(a.F, b.F)
	case TagBool:
		return cmpInt(b2i(a.B), b2i(b.B))
	case TagExt:
		return 0
	case TagRef:
		ar, aok := a.Ref.(RefObject)
		br, bok := b.Ref.(RefObject)
		if !aok || !bok {
			return 0
		}
		if ar.RefTag() != br.RefTag() {
			return cmpInt(int64(ar.RefTag()), int64(br.RefTag()))
		}
		return ar.CompareRef(br)
	}
	return 0
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (v Value) String() string {
	switch v.Tag {
	case TagNil:
		return "nil"
	case TagInt:
		return fmt.Sprintf("%d", v.I)
	case TagFloat:
		return fmt.Sprintf("%g", v.F)
	case TagBool:
		return fmt.Sprintf("%t", v.B)
	case TagExt:
		return fmt.Sprintf("<ext %p>", v.Ext)
	case TagRef:
		if s, ok := v.Ref.(fmt.Stringer); ok {
			return s.String()
		}
		return fmt.Sprintf("<%s>", v.TypeOf())
	}
	return "?"
}
