package strpool

import "github.com/emptyland/ymd-sub000/internal/value"

const initialBuckets = 16

// Pool is the global constant-string intern table (spec §3, §4.2): a
// chained hash table, resized by doubling whenever the load factor
// reaches 1.0.
type Pool struct {
	buckets []*KStr
	count   int

	sweepIdx int // cursor for the incremental pool-sweep phase (spec §4.8)
}

func New() *Pool {
	return &Pool{buckets: make([]*KStr, initialBuckets)}
}

// Intern returns the unique KStr for b if len(b) < Threshold, allocating
// and chaining a new one on first sight; longer strings are allocated
// uninterned and never touch the pool (spec §3).
func (p *Pool) Intern(b []byte, currentWhite value.Color) *KStr {
	if len(b) >= Threshold {
		return newKStr(append([]byte(nil), b...), currentWhite)
	}
	h := hashBytes(b)
	idx := int(h % uint32(len(p.buckets)))
	for s := p.buckets[idx]; s != nil; s = s.next {
		if s.Hash() == h && string(s.Bytes) == string(b) {
			return s
		}
	}
	s := newKStr(append([]byte(nil), b...), currentWhite)
	s.Interned = true
	s.hash, s.hashed = h, true
	s.next = p.buckets[idx]
	p.buckets[idx] = s
	p.count++
	if float64(p.count) >= float64(len(p.buckets)) {
		p.grow()
	}
	return s
}

func (p *Pool) grow() {
	next := make([]*KStr, len(p.buckets)*2)
	for _, head := range p.buckets {
		for s := head; s != nil; {
			nxt := s.next
			idx := int(s.Hash() % uint32(len(next)))
			s.next = next[idx]
			next[idx] = s
			s = nxt
		}
	}
	p.buckets = next
	p.sweepIdx = 0
}

// SweepStep runs one step of the pool-sweep phase (spec §4.8): it walks up
// to `stride` buckets, unlinking entries that are still the dead white
// color (i.e. were not reached during mark) and are not Fixed, re-homing
// each bucket's chain so subsequent Intern probes keep working. Returns
// true once a full pass over all buckets has completed.
func (p *Pool) SweepStep(deadWhite value.Color, stride int) bool {
	if len(p.buckets) == 0 {
		return true
	}
	for i := 0; i < stride; i++ {
		if p.sweepIdx >= len(p.buckets) {
			p.sweepIdx = 0
			return true
		}
		p.buckets[p.sweepIdx] = sweepChain(p.buckets[p.sweepIdx], deadWhite, &p.count)
		p.sweepIdx++
	}
	if p.sweepIdx >= len(p.buckets) {
		p.sweepIdx = 0
		return true
	}
	return false
}

func sweepChain(head *KStr, deadWhite value.Color, count *int) *KStr {
	var kept *KStr
	var tail *KStr
	for s := head; s != nil; {
		next := s.next
		if !s.IsFixed() && s.Color() == deadWhite {
			*count--
		} else {
			s.next = nil
			if kept == nil {
				kept = s
			} else {
				tail.next = s
			}
			tail = s
		}
		s = next
	}
	return kept
}

func (p *Pool) Count() int { return p.count }
