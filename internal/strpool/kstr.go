// Package strpool implements the constant-string pool (spec §3, §4.2):
// interning of short immutable byte strings, guaranteeing pointer equality
// for equal content, with a dedicated sweep phase that runs before the
// general object sweep.
package strpool

import (
	"bytes"

	"github.com/emptyland/ymd-sub000/internal/value"
)

// Threshold is the maximum length (exclusive) a string may have and still
// be a candidate for interning (spec §3: "shorter than ~40 bytes").
const Threshold = 40

// KStr is the immutable string reference subtype ("kstr", spec §3).
type KStr struct {
	value.GCHeader
	Bytes    []byte
	hash     uint32
	hashed   bool
	Interned bool
	next     *KStr // pool chain linkage, owned by Pool
}

func newKStr(b []byte, white value.Color) *KStr {
	return &KStr{GCHeader: value.NewHeader(value.RefKStr, white), Bytes: b}
}

func (s *KStr) String() string { return string(s.Bytes) }
func (s *KStr) Len() int       { return len(s.Bytes) }

func (s *KStr) Hash() uint32 {
	if !s.hashed {
		s.hash = hashBytes(s.Bytes)
		s.hashed = true
	}
	return s.hash
}

func (s *KStr) RefTag() value.RefTag  { return value.RefKStr }
func (s *KStr) TypeName() string      { return "string" }

func (s *KStr) EqualsRef(other value.RefObject) bool {
	o, ok := other.(*KStr)
	if !ok {
		return false
	}
	if s.Interned && o.Interned {
		return s == o // pool uniqueness invariant (spec §8)
	}
	return bytes.Equal(s.Bytes, o.Bytes)
}

func (s *KStr) CompareRef(other value.RefObject) int {
	o, ok := other.(*KStr)
	if !ok {
		return 0
	}
	return bytes.Compare(s.Bytes, o.Bytes)
}

// Hash32 exposes the pool's mixing hash for callers (e.g. container's
// hash-map key hashing) that need to hash arbitrary byte content the same
// way the pool hashes string keys.
func Hash32(s string) uint32 { return hashBytes([]byte(s)) }

// hashBytes is an iterated XOR/shift mixing hash (an FNV-1a variant); the
// exact mixing function is an implementation choice left open by spec §4.2.
func hashBytes(b []byte) uint32 {
	h := uint32(2166136261)
	for _, c := range b {
		h ^= uint32(c)
		h *= 16777619
		h ^= h >> 15
	}
	return h
}
