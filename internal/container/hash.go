package container

import (
	"fmt"
	"reflect"

	"github.com/emptyland/ymd-sub000/internal/strpool"
	"github.com/emptyland/ymd-sub000/internal/value"
)

// hash computes a content hash for any non-Nil value, recursing into
// containers the same way original_source/hash_map.c's hash() does, so
// structurally-equal arrays/maps/skip lists land in the same bucket.
func hash(v value.Value) uint32 {
	switch v.Tag {
	case value.TagNil:
		return 0
	case value.TagInt:
		return uint32(v.I) ^ uint32(v.I>>32)
	case value.TagFloat:
		bits := int64(v.F)
		return uint32(bits) ^ uint32(bits>>32)
	case value.TagBool:
		if v.B {
			return 3
		}
		return 2
	case value.TagExt:
		return hashExt(v.Ext)
	case value.TagRef:
		switch o := v.Ref.(type) {
		case *strpool.KStr:
			return o.Hash()
		case *Dyay:
			return hashDyay(o)
		case *Hmap:
			return hashHmap(o)
		case *Skls:
			return hashSkls(o)
		case *Mand:
			return hashMand(o)
		default:
			return hashExt(o)
		}
	}
	return 0
}

// hashExt derives a hash from a host pointer's identity (spec §4.3's
// hash(Ext) case); values that aren't pointer-like fall back to their
// formatted representation.
func hashExt(p interface{}) uint32 {
	if p == nil {
		return 0
	}
	rv := reflect.ValueOf(p)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Slice:
		addr := uint64(rv.Pointer())
		return uint32(addr) ^ uint32(addr>>32)
	default:
		return strpool.Hash32(fmt.Sprintf("%v", p))
	}
}

func hashDyay(a *Dyay) uint32 {
	n := len(a.elems)
	h := uint32(n * n)
	for i := n - 1; i >= 0; i-- {
		if i%2 == 1 {
			h ^= hash(a.elems[i])
		} else {
			h += hash(a.elems[i])
		}
	}
	return h
}

func hashHmap(m *Hmap) uint32 {
	var h uint32
	for _, s := range m.slots {
		if s.flag != slotFree {
			h += hash(s.key)
			h ^= hash(s.val)
		}
	}
	return h
}

func hashSkls(s *Skls) uint32 {
	var h uint32
	for n := s.head.fwd[0]; n != nil; n = n.fwd[0] {
		h += hash(n.key)
		h ^= hash(n.val)
	}
	return h
}

func hashMand(m *Mand) uint32 {
	return uint32(len(m.Subtype)) ^ hashExt(m.Data)
}
