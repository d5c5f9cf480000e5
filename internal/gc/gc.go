// Package gc implements the tri-color incremental mark-sweep collector
// (spec §4.8): two toggling whites, a gray worklist with a write-barrier
// "gray again" backlog, and a string-pool-then-object sweep, each driven
// in small steps from the VM's CALL and NEW*/CLOSE dispatch sites rather
// than run to completion.
package gc

import (
	"github.com/emptyland/ymd-sub000/internal/strpool"
	"github.com/emptyland/ymd-sub000/internal/value"
)

// State is the collector's current phase.
type State int

const (
	Pause State = iota
	Propagate
	SweepString
	Sweep
	Finalize
)

func (s State) String() string {
	switch s {
	case Pause:
		return "pause"
	case Propagate:
		return "propagate"
	case SweepString:
		return "sweep_string"
	case Sweep:
		return "sweep"
	case Finalize:
		return "finalize"
	default:
		return "?"
	}
}

// Traversable is implemented by reference objects whose fields may hold
// other Values the collector must mark to keep the subgraph alive. A
// self-referential container guards against infinite recursion with its
// own BUSY bit (set by blacken below); internal/pickle sets the same bit
// to catch a self-referential container while dumping.
type Traversable interface {
	Children(yield func(value.Value))
}

// Finalizable is implemented by objects that must run a host side-effect
// once when they do not survive a collection (spec §4.8's finalize phase).
type Finalizable interface {
	Finalize()
}

// Collector runs one mark-sweep cycle at a time over an intrusive
// allocation list threaded through every registered object's
// value.GCHeader.Next.
type Collector struct {
	pool  *strpool.Pool
	white value.Color

	state     State
	gray      []value.Obj
	grayAgain []value.Obj

	head  value.Obj
	count int

	sweepPrev value.Obj
	sweepCur  value.Obj

	pauseDepth int

	stringStride int
	objectStride int

	// Roots supplies every Value the collector must treat as a mark root:
	// the live stack window, every global, every active frame's function
	// and its upvalues (spec §4.8's "mark roots").
	Roots func() []value.Value
}

func New(pool *strpool.Pool, white value.Color) *Collector {
	return &Collector{
		pool:         pool,
		white:        white,
		state:        Pause,
		stringStride: 8,
		objectStride: 8,
	}
}

func (c *Collector) White() value.Color { return c.white }
func (c *Collector) CurrentState() State { return c.state }
func (c *Collector) Count() int          { return c.count }

func (c *Collector) Pause() { c.pauseDepth++ }
func (c *Collector) Resume() {
	if c.pauseDepth > 0 {
		c.pauseDepth--
	}
}
func (c *Collector) Paused() bool { return c.pauseDepth > 0 }

// Register links a freshly allocated object into the sweep list. Every
// NEW*/CLOSE-style constructor that produces a GC object must call this
// once (spec §4.8: "all GC objects are created white").
func (c *Collector) Register(o value.Obj) {
	o.Header().Next = c.head
	c.head = o
	c.count++
}

// Barrier re-grays a black object that just acquired a reference to a
// white one, so the end-of-propagate remark catches the new edge instead
// of a stale blackened container hiding a live child from the sweep.
func (c *Collector) Barrier(o value.Obj) {
	h := o.Header()
	if h.Color() == value.Black {
		h.SetColor(value.Gray)
		c.grayAgain = append(c.grayAgain, o)
	}
}

func (c *Collector) deadWhite() value.Color {
	if c.white == value.White0 {
		return value.White1
	}
	return value.White0
}

// Step runs one increment of whichever phase the collector is in, sized
// by n units of work (the VM derives n from objects allocated since the
// last step, a proxy for spec §4.8's bytes-delta scheduling). A paused
// collector no-ops.
func (c *Collector) Step(n int) {
	if c.pauseDepth > 0 || n <= 0 {
		return
	}
	switch c.state {
	case Pause:
		c.markRoots()
		c.state = Propagate
	case Propagate:
		c.propagate(n)
	case SweepString:
		if c.pool.SweepStep(c.deadWhite(), c.stringStride) {
			c.sweepPrev = nil
			c.sweepCur = c.head
			c.state = Sweep
		}
	case Sweep:
		c.sweep(n)
	case Finalize:
		c.white = c.deadWhite()
		c.state = Pause
	}
}

func (c *Collector) markRoots() {
	c.gray = c.gray[:0]
	c.grayAgain = c.grayAgain[:0]
	if c.Roots == nil {
		return
	}
	for _, v := range c.Roots() {
		c.mark(v)
	}
}

func (c *Collector) mark(v value.Value) {
	if v.Tag != value.TagRef || v.Ref == nil {
		return
	}
	h := v.Ref.Header()
	if h.Color() != c.white {
		return
	}
	h.SetColor(value.Gray)
	c.gray = append(c.gray, v.Ref)
}

// propagate pops up to n gray objects, blackens each (marking its
// children), and once both the worklist and the write-barrier backlog
// drain, advances to the string-sweep phase.
func (c *Collector) propagate(n int) {
	for i := 0; i < n; i++ {
		if len(c.gray) == 0 {
			if len(c.grayAgain) > 0 {
				c.gray = append(c.gray, c.grayAgain...)
				c.grayAgain = c.grayAgain[:0]
				continue
			}
			c.state = SweepString
			return
		}
		o := c.gray[len(c.gray)-1]
		c.gray = c.gray[:len(c.gray)-1]
		c.blacken(o)
	}
}

func (c *Collector) blacken(o value.Obj) {
	h := o.Header()
	if h.IsBusy() {
		return
	}
	h.SetBusy(true)
	h.SetColor(value.Black)
	if t, ok := o.(Traversable); ok {
		t.Children(c.mark)
	}
	h.SetBusy(false)
}

// sweep walks the allocation list from the cursor left by the string
// sweep, n objects at a time: dead-white survivors are unlinked (running
// their finalizer first), live blacks are recolored to the next cycle's
// current white.
func (c *Collector) sweep(n int) {
	dead := c.deadWhite()
	for i := 0; i < n; i++ {
		if c.sweepCur == nil {
			c.state = Finalize
			return
		}
		h := c.sweepCur.Header()
		next := h.Next
		if !h.IsFixed() && h.Color() == dead {
			if c.sweepPrev == nil {
				c.head = next
			} else {
				c.sweepPrev.Header().Next = next
			}
			if f, ok := c.sweepCur.(Finalizable); ok {
				f.Finalize()
			}
			c.count--
		} else {
			h.SetColor(c.white)
			c.sweepPrev = c.sweepCur
		}
		c.sweepCur = next
	}
}
