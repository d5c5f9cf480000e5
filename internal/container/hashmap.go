package container

import (
	"errors"

	"github.com/emptyland/ymd-sub000/internal/value"
)

var ErrNilKey = errors.New("nil key")

type slotFlag byte

const (
	slotFree slotFlag = iota
	slotHead          // chain head, lives at its natural hashed position
	slotNode          // mid-chain node, allocated from the back of the table
)

type kvi struct {
	flag slotFlag
	h    uint32
	key  value.Value
	val  value.Value
	next int // index of next chain node, -1 if none
}

// Hmap is the open-addressed hash-map reference subtype ("hmap", spec
// §3, §4.3): power-of-two sized, collisions chained through auxiliary
// slots allocated from the back of the same table, doubling the shift on
// a full scan failure.
type Hmap struct {
	value.GCHeader
	shift int
	slots []kvi
}

const defaultShift = 5

func NewHmap(sizeHint int, white value.Color) *Hmap {
	shift := defaultShift
	if sizeHint > 0 {
		shift = log2Ceil(sizeHint)
		if shift < 1 {
			shift = 1
		}
	}
	m := &Hmap{GCHeader: value.NewHeader(value.RefHmap, white), shift: shift}
	m.slots = make([]kvi, 1<<shift)
	for i := range m.slots {
		m.slots[i].next = -1
	}
	return m
}

func log2Ceil(n int) int {
	shift := 0
	for (1 << shift) < n {
		shift++
	}
	return shift
}

func (m *Hmap) position(h uint32) int { return int(h % uint32(len(m.slots))) }

// allocFree scans from the back of the table for a free slot, mirroring
// original_source/hash_map.c's alloc_free.
func (m *Hmap) allocFree() int {
	for i := len(m.slots) - 1; i >= 0; i-- {
		if m.slots[i].flag == slotFree {
			return i
		}
	}
	return -1
}

// resize doubles (or otherwise regrows) the table and reinserts every
// live entry, mirroring original_source/hash_map.c's resize-on-exhaustion
// behavior.
func (m *Hmap) resize(newShift int) {
	old := m.slots
	m.shift = newShift
	m.slots = make([]kvi, 1<<newShift)
	for i := range m.slots {
		m.slots[i].next = -1
	}
	for _, s := range old {
		if s.flag != slotFree {
			slot := m.indexFor(s.key)
			m.slots[slot].key = s.key
			m.slots[slot].val = s.val
		}
	}
}

// indexFor resolves key to a slot index, handling the three slot states
// (free / chain head / chain node) exactly as original_source/hash_map.c's
// hindex/get_head/get_any do, growing the table on scan failure.
func (m *Hmap) indexFor(key value.Value) int {
	h := hash(key)
	pos := m.position(h)
	switch m.slots[pos].flag {
	case slotFree:
		m.slots[pos].flag = slotHead
		m.slots[pos].h = h
		m.slots[pos].next = -1
		return pos
	case slotHead:
		return m.getHead(key, pos, h)
	case slotNode:
		return m.getAny(key, pos, h)
	}
	return pos
}

func (m *Hmap) getHead(key value.Value, slot int, h uint32) int {
	last := slot
	for i := slot; i != -1; i = m.slots[i].next {
		last = i
		if m.slots[i].h == h && value.Equals(m.slots[i].key, key) {
			return i
		}
	}
	free := m.allocFree()
	if free == -1 {
		m.resize(m.shift + 1)
		return m.indexFor(key)
	}
	m.slots[free].h = h
	m.slots[free].flag = slotNode
	m.slots[free].next = m.slots[last].next
	m.slots[last].next = free
	return free
}

// getAny handles a natural-position collision with an existing mid-chain
// node: the node is relocated and the natural slot becomes the new head.
func (m *Hmap) getAny(key value.Value, slot int, h uint32) int {
	free := m.allocFree()
	if free == -1 {
		m.resize(m.shift + 1)
		return m.indexFor(key)
	}
	slotHashVal := hash(m.slots[slot].key)
	headPos := m.position(slotHashVal)
	prev := headPos
	for m.slots[prev].next != slot {
		prev = m.slots[prev].next
	}
	m.slots[free] = m.slots[slot]
	m.slots[prev].next = free

	m.slots[slot].h = h
	m.slots[slot].flag = slotHead
	m.slots[slot].next = -1
	m.slots[slot].key = value.Nil()
	m.slots[slot].val = value.Nil()
	return slot
}

func (m *Hmap) Put(key, v value.Value) error {
	if key.IsNil() {
		return ErrNilKey
	}
	i := m.indexFor(key)
	m.slots[i].key = key
	m.slots[i].val = v
	return nil
}

func (m *Hmap) Get(key value.Value) (value.Value, bool) {
	if key.IsNil() {
		return value.Nil(), false
	}
	h := hash(key)
	pos := m.position(h)
	if m.slots[pos].flag != slotHead {
		return value.Nil(), false
	}
	for i := pos; i != -1; i = m.slots[i].next {
		if m.slots[i].h == h && value.Equals(m.slots[i].key, key) {
			return m.slots[i].val, true
		}
	}
	return value.Nil(), false
}

// Remove re-homes the chain head into the removed slot's position so
// later probes still find the remaining chained entries (spec §4.3).
func (m *Hmap) Remove(key value.Value) bool {
	if key.IsNil() {
		return false
	}
	h := hash(key)
	pos := m.position(h)
	if m.slots[pos].flag != slotHead {
		return false
	}
	if m.slots[pos].h == h && value.Equals(m.slots[pos].key, key) {
		nxt := m.slots[pos].next
		if nxt == -1 {
			m.slots[pos] = kvi{next: -1}
			return true
		}
		m.slots[pos] = m.slots[nxt]
		m.slots[pos].flag = slotHead
		m.slots[nxt] = kvi{next: -1}
		return true
	}
	prev := pos
	for i := m.slots[pos].next; i != -1; i = m.slots[i].next {
		if m.slots[i].h == h && value.Equals(m.slots[i].key, key) {
			m.slots[prev].next = m.slots[i].next
			m.slots[i] = kvi{next: -1}
			return true
		}
		prev = i
	}
	return false
}

func (m *Hmap) Count() int {
	n := 0
	for _, s := range m.slots {
		if s.flag != slotFree {
			n++
		}
	}
	return n
}

func (m *Hmap) Each(fn func(k, v value.Value) bool) {
	for _, s := range m.slots {
		if s.flag != slotFree {
			if !fn(s.key, s.val) {
				return
			}
		}
	}
}

// Children yields every key and value, letting the collector keep
// reachable map contents alive (spec §4.8).
func (m *Hmap) Children(yield func(value.Value)) {
	m.Each(func(k, v value.Value) bool {
		yield(k)
		yield(v)
		return true
	})
}

func (m *Hmap) RefTag() value.RefTag { return value.RefHmap }
func (m *Hmap) TypeName() string     { return "map" }

func (m *Hmap) EqualsRef(other value.RefObject) bool {
	o, ok := other.(*Hmap)
	if !ok || m.Count() != o.Count() {
		return false
	}
	eq := true
	m.Each(func(k, v value.Value) bool {
		ov, ok := o.Get(k)
		if !ok || !value.Equals(v, ov) {
			eq = false
			return false
		}
		return true
	})
	return eq
}

func (m *Hmap) CompareRef(other value.RefObject) int {
	o, ok := other.(*Hmap)
	if !ok {
		return 0
	}
	rv := 0
	m.Each(func(k, v value.Value) bool {
		ov, _ := o.Get(k)
		rv += value.Compare(v, ov)
		return true
	})
	return rv
}

func (m *Hmap) String() string {
	s := "{"
	first := true
	m.Each(func(k, v value.Value) bool {
		if !first {
			s += ", "
		}
		first = false
		s += k.String() + ": " + v.String()
		return true
	})
	return s + "}"
}
