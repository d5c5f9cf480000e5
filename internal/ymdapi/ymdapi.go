// Package ymdapi implements the stack-discipline embedding API (spec
// §4.9): the surface a Go host (cmd/ymd, internal/plugin) uses to drive a
// *vm.VM without hand-building bytecode — stage values with Push*, call
// with Call/PCall/XCall, read results back with Top/Pop. Grounded on
// original_source/src/state.h's ymd_context: push/pop/top/argv/upval/
// get_field/put_field/setmetatable/bind/call/pcall/xcall/error, rendered
// over a host-owned staging slice instead of the VM's own bytecode stack
// so embedding never reaches into vm's private dispatch state.
package ymdapi

import (
	"fmt"

	"github.com/emptyland/ymd-sub000/internal/container"
	"github.com/emptyland/ymd-sub000/internal/value"
	"github.com/emptyland/ymd-sub000/internal/vm"
)

// Context is one embedder's view of a VM: its own staging stack plus the
// VM it drives (spec §4.9's "context" concept).
type Context struct {
	m     *vm.VM
	stage []value.Value
}

// New wraps a VM for host-side staging; the VM itself may be shared with
// an ordinary script Interpret() run, same as the original's ymd_context/
// ymd_mach split.
func New(m *vm.VM) *Context { return &Context{m: m} }

func (c *Context) VM() *vm.VM { return c.m }

// Push stages a value. PushNil/PushInt/PushFloat/PushBool/PushString are
// convenience wrappers that build the value first.
func (c *Context) Push(v value.Value) { c.stage = append(c.stage, v) }

func (c *Context) PushNil()            { c.Push(value.Nil()) }
func (c *Context) PushInt(i int64)     { c.Push(value.NewInt(i)) }
func (c *Context) PushFloat(f float64) { c.Push(value.NewFloat(f)) }
func (c *Context) PushBool(b bool)     { c.Push(value.NewBool(b)) }

// PushString interns s through the VM's shared pool, the same path every
// string literal the compiler emits goes through.
func (c *Context) PushString(s string) value.Value {
	v := value.NewRef(c.m.Pool().Intern([]byte(s), c.m.White()))
	c.Push(v)
	return v
}

// Pop discards the top n staged values.
func (c *Context) Pop(n int) {
	if n > len(c.stage) {
		n = len(c.stage)
	}
	c.stage = c.stage[:len(c.stage)-n]
}

// Top peeks the i-th staged value counting from the top (0 = topmost),
// nil past either end of the stage.
func (c *Context) Top(i int) value.Value {
	idx := len(c.stage) - 1 - i
	if idx < 0 || idx >= len(c.stage) {
		return value.Nil()
	}
	return c.stage[idx]
}

// Depth reports how many values are currently staged.
func (c *Context) Depth() int { return len(c.stage) }

// Argv reads the i-th argument of an argc-wide window just staged before
// a call, the embedding-API counterpart of ymd_argv_get.
func (c *Context) Argv(argc, i int) value.Value { return c.Top(argc - 1 - i) }

// Upval reads fn's i-th upvalue.
func (c *Context) Upval(fn value.Value, i int) value.Value {
	f, ok := fn.Ref.(*value.Func)
	if !ok || i < 0 || i >= len(f.Upvalues) {
		return value.Nil()
	}
	return f.Upvalues[i].Get()
}

// Bind sets fn's i-th upvalue to v, growing the upvalue vector as needed
// (spec §4.9's ymd_bind: constructing a closure's free variables from
// the host side, rather than via OP_CLOSURE).
func (c *Context) Bind(fn value.Value, i int, v value.Value) error {
	f, ok := fn.Ref.(*value.Func)
	if !ok {
		return fmt.Errorf("bind: expected a function, got %s", fn.TypeOf())
	}
	if i < 0 {
		return fmt.Errorf("bind: negative upvalue index")
	}
	for len(f.Upvalues) <= i {
		f.Upvalues = append(f.Upvalues, &value.Upvalue{IsClosed: true})
	}
	f.Upvalues[i].Set(v)
	return nil
}

// GetField/SetField/GetIndex/SetIndex mirror OP_GET_FIELD/OP_PUT_FIELD/
// OP_GET_INDEX/OP_PUT_INDEX (spec §4.1's field/index lookup), letting a
// host read or write a table, skiplist or managed value's contents
// without compiling bytecode to do it.
func (c *Context) GetField(obj, key value.Value) (value.Value, error) {
	return c.m.GetField(obj, key)
}
func (c *Context) SetField(obj, key, v value.Value) error { return c.m.SetField(obj, key, v) }
func (c *Context) GetIndex(obj, idx value.Value) (value.Value, error) {
	return c.m.GetIndex(obj, idx)
}
func (c *Context) SetIndex(obj, idx, v value.Value) error { return c.m.SetIndex(obj, idx, v) }

func (c *Context) GetGlobal(name string) value.Value {
	v, _ := c.m.GetGlobal(name)
	return v
}
func (c *Context) SetGlobal(name string, v value.Value) { c.m.SetGlobal(name, v) }

// SetMetatable attaches mt (a map or skiplist) to mand's field-lookup
// chain, the embedding-API counterpart of ymd_setmetatable.
func (c *Context) SetMetatable(mand, mt value.Value) error {
	m, ok := mand.Ref.(*container.Mand)
	if !ok {
		return fmt.Errorf("setmetatable: expected a managed value, got %s", mand.TypeOf())
	}
	switch t := mt.Ref.(type) {
	case *container.Hmap:
		m.SetMetatable(t)
	case *container.Skls:
		m.SetMetatable(t)
	default:
		return fmt.Errorf("setmetatable: metatable must be a map or skiplist, got %s", mt.TypeOf())
	}
	return nil
}

// Call pops the top argc staged values as arguments (oldest first),
// invokes fn, and pushes the single result back onto the stage (spec
// §4.9's ymd_call). A propagated error aborts without restaging a
// result; the stage is left at its pre-call depth.
func (c *Context) Call(fn value.Value, argc int) error {
	args := c.takeArgs(argc)
	result, err := c.m.Call(fn, args)
	if err != nil {
		return err
	}
	c.Push(result)
	return nil
}

// PCall is Call's protected form (spec §4.7): a failure — propagated
// error or Go-level panic — is reported as a *vm.RuntimeError instead of
// unwinding the caller, and nothing is pushed back onto the stage on
// failure.
func (c *Context) PCall(fn value.Value, argc int) (value.Value, *vm.RuntimeError) {
	args := c.takeArgs(argc)
	result, errOut := c.m.PCall(fn, args)
	if errOut == nil {
		c.Push(result)
	}
	return result, errOut
}

// XCall is the entry point an embedder outside any running call uses to
// invoke into a script (spec §4.9's ymd_xcall, "external protected
// call"). It is PCall verbatim: Go's own call stack already keeps a
// host-originated call isolated from a script-originated one, so no
// separate root-frame bookkeeping distinguishes them the way the
// original's jmp_buf chain needed to.
func (c *Context) XCall(fn value.Value, argc int) (value.Value, *vm.RuntimeError) {
	return c.PCall(fn, argc)
}

func (c *Context) takeArgs(argc int) []value.Value {
	if argc > len(c.stage) {
		argc = len(c.stage)
	}
	args := make([]value.Value, argc)
	copy(args, c.stage[len(c.stage)-argc:])
	c.stage = c.stage[:len(c.stage)-argc]
	return args
}

// Error formats a message and raises it, unwinding the current Go call
// stack via panic (spec §4.9's ymd_error+ymd_raise pair, collapsed into
// one call since Go has no separate "set pending message, raise later"
// step). A surrounding PCall/XCall recovers it into a RuntimeError.
func (c *Context) Error(format string, args ...interface{}) {
	panic(fmt.Sprintf(format, args...))
}
