// Package vm implements the bytecode interpreter (spec §4.7, §6): a flat
// dispatch loop over chunk.Instr words, a value stack shared by every
// call frame, and an open-upvalue list for closures still on the stack.
package vm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/emptyland/ymd-sub000/internal/chunk"
	"github.com/emptyland/ymd-sub000/internal/container"
	"github.com/emptyland/ymd-sub000/internal/gc"
	"github.com/emptyland/ymd-sub000/internal/strpool"
	"github.com/emptyland/ymd-sub000/internal/value"
)

const (
	StackMax  = 8192
	FramesMax = 256
)

// RuntimeError is a raised error carrying the {message, where, backtrace}
// triple spec §4.7/§7 asks for.
type RuntimeError struct {
	Message   string
	File      string
	Line      int
	Backtrace []string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
}

// callFrame is one activation record. base is the stack index of the
// callee's first declared parameter, not the function value's own slot
// (compileFunctionBody never reserves such a slot): the function value
// instead lives at resultSlot, and OP_RETURN truncates back to resultSlot
// before pushing the result. For a plain CALL, resultSlot == base-1 (the
// callee's own slot below its arguments). For a SELF_CALL, resultSlot ==
// base: the receiver doubles as the implicit 'self' argument, so there is
// no separate callee slot underneath it to preserve.
type callFrame struct {
	fn         *value.Func
	ch         *chunk.Chunk
	ip         int
	base       int
	resultSlot int
}

// VM executes compiled chunks against a shared value stack. pool must be
// the same strpool.Pool the compiler used, so identifier/field-name
// constants and user string literals intern to the same *strpool.KStr
// pointers (spec §4.2's pointer-equality invariant is what makes field
// lookups by interned name cheap).
type VM struct {
	frames   []callFrame
	stack    [StackMax]value.Value
	stackTop int

	globals map[string]value.Value
	pool    *strpool.Pool

	gc         *gc.Collector
	allocDelta int

	openUpvalues *value.Upvalue
}

func New(pool *strpool.Pool, white value.Color) *VM {
	vm := &VM{
		frames:  make([]callFrame, 0, FramesMax),
		globals: make(map[string]value.Value),
		pool:    pool,
		gc:      gc.New(pool, white),
	}
	vm.gc.Roots = vm.gcRoots
	return vm
}

// White is the current-white color every fresh allocation is tagged
// with; it flips at the end of each collection cycle (spec §4.8).
func (vm *VM) White() value.Color { return vm.gc.White() }

// GC exposes the collector so an embedding host (internal/ymdapi) can
// pause/resume stepping around a sensitive section (spec §4.8, §4.9).
func (vm *VM) GC() *gc.Collector { return vm.gc }

// Pool exposes the shared string pool so builtins can intern strings the
// same way the compiler and the VM itself do.
func (vm *VM) Pool() *strpool.Pool { return vm.pool }

func (vm *VM) SetGlobal(name string, v value.Value) { vm.globals[name] = v }

func (vm *VM) GetGlobal(name string) (value.Value, bool) {
	v, ok := vm.globals[name]
	return v, ok
}

// TestGlobals returns every global name starting with prefix, sorted, for
// a host-driven test runner (cmd/ymd's --test) to call in a deterministic
// order.
func (vm *VM) TestGlobals(prefix string) []string {
	var names []string
	for name := range vm.globals {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// register links a freshly allocated object into the collector's sweep
// list and counts it toward the next opportunistic GC step's work budget
// (spec §4.8's size-driven scheduling proxy).
func (vm *VM) register(o value.Obj) {
	vm.gc.Register(o)
	vm.allocDelta++
}

// gcStep runs one opportunistic increment, sized by allocations since the
// last step, from a CALL or NEW*/CLOSE dispatch site (spec §4.8).
func (vm *VM) gcStep() {
	n := vm.allocDelta
	if n == 0 {
		n = 1
	}
	vm.allocDelta = 0
	vm.gc.Step(n)
}

// gcRoots gathers every Value the collector must treat as a mark root:
// the live stack window, every global, and every active frame's function
// together with its upvalues (spec §4.8's "mark roots").
func (vm *VM) gcRoots() []value.Value {
	roots := make([]value.Value, 0, vm.stackTop+len(vm.globals)+len(vm.frames)*2)
	for i := 0; i < vm.stackTop; i++ {
		roots = append(roots, vm.stack[i])
	}
	for _, v := range vm.globals {
		roots = append(roots, v)
	}
	for _, f := range vm.frames {
		roots = append(roots, value.NewRef(f.fn))
		for _, u := range f.fn.Upvalues {
			roots = append(roots, u.Get())
		}
	}
	for u := vm.openUpvalues; u != nil; u = u.Next {
		roots = append(roots, u.Get())
	}
	return roots
}

// DefineNative registers a host function as a global, the same binding
// surface a script-level 'func' declaration uses (spec §4.9). Builtins
// are Fixed: they are reached only through vm.globals, which the
// collector's root scan always walks, but marking them Fixed keeps a
// slow first cycle from sweeping one mid-step before the root scan runs.
func (vm *VM) DefineNative(name string, fn value.NativeFn) {
	nf := value.NewNativeFunc(name, fn, vm.White())
	nf.SetFixed(true)
	vm.register(nf)
	vm.globals[name] = value.NewRef(nf)
}

func (vm *VM) push(v value.Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() value.Value {
	vm.stackTop--
	v := vm.stack[vm.stackTop]
	vm.stack[vm.stackTop] = value.Value{}
	return v
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.stackTop-1-distance]
}

// Interpret runs ch as the implicit top-level script function and returns
// its final (usually nil) result.
func (vm *VM) Interpret(ch *chunk.Chunk) (value.Value, error) {
	fn := value.NewScriptFunc("<script>", 0, false, ch, nil, vm.White())
	fn.SetFixed(true)
	vm.register(fn)
	calleeIdx := vm.stackTop
	vm.push(value.NewRef(fn))
	vm.frames = append(vm.frames, callFrame{fn: fn, ch: ch, ip: 0, base: vm.stackTop, resultSlot: calleeIdx})
	return vm.run(0)
}

// Call invokes fnVal synchronously with args and returns its single
// result, running a nested dispatch loop if fnVal is a script closure.
// Used by a comparator closure bound to a custom-order skip list and,
// later, by pcall/xcall-style embedding surface calls (spec §4.9).
func (vm *VM) Call(fnVal value.Value, args []value.Value) (value.Value, error) {
	calleeIdx := vm.stackTop
	vm.push(fnVal)
	for _, a := range args {
		vm.push(a)
	}
	stopDepth := len(vm.frames)
	if err := vm.invoke(fnVal, calleeIdx+1, len(args), calleeIdx); err != nil {
		vm.stackTop = calleeIdx
		return value.Nil(), vm.wrapError(err)
	}
	if len(vm.frames) == stopDepth {
		// fnVal was native: invoke already ran it to completion and left
		// exactly its result(s) starting at calleeIdx.
		result := vm.stack[calleeIdx]
		vm.stackTop = calleeIdx
		return result, nil
	}
	result, err := vm.run(stopDepth)
	if err == nil {
		// run's RETURN left the result at calleeIdx; hand it back instead.
		vm.pop()
	}
	return result, err
}

// PCall installs a protected-call point at the current stack/frame depth,
// invokes fnVal, and never lets an error (or a genuine Go-level panic
// escaping a native function) propagate past it: both are converted to
// the {message, where, backtrace} triple spec §4.7 describes, and the
// stack/frame state is restored to exactly where it stood before the
// call (the "protected call isolation" invariant, spec §8). xcall reuses
// this unchanged: the distinction spec §4.9 draws between pcall (called
// from a running script) and xcall (called from host code with no parent
// script frame) has no separate representation here, since Go's own call
// stack already isolates the two cases.
func (vm *VM) PCall(fnVal value.Value, args []value.Value) (result value.Value, errOut *RuntimeError) {
	savedStack := vm.stackTop
	savedFrames := len(vm.frames)
	defer func() {
		if r := recover(); r != nil {
			vm.frames = vm.frames[:savedFrames]
			vm.stackTop = savedStack
			errOut = &RuntimeError{Message: fmt.Sprintf("%v", r)}
		}
	}()
	result, err := vm.Call(fnVal, args)
	if err != nil {
		vm.frames = vm.frames[:savedFrames]
		vm.stackTop = savedStack
		re, ok := err.(*RuntimeError)
		if !ok {
			re = &RuntimeError{Message: err.Error()}
		}
		return value.Nil(), re
	}
	return result, nil
}

// run dispatches instructions from the top frame until the frame stack
// depth drops to stopDepth (0 for a top-level Interpret, or the pre-call
// depth for a nested synchronous Call).
func (vm *VM) run(stopDepth int) (value.Value, error) {
	frame := &vm.frames[len(vm.frames)-1]
	for {
		instr := frame.ch.Code[frame.ip]
		frame.ip++

		switch instr.Op() {
		case chunk.OpConstant:
			vm.push(frame.ch.Constants[instr.Param()])

		case chunk.OpNil:
			vm.push(value.Nil())

		case chunk.OpTrue:
			vm.push(value.NewBool(true))

		case chunk.OpFalse:
			vm.push(value.NewBool(false))

		case chunk.OpPop:
			vm.pop()

		case chunk.OpDup:
			vm.push(vm.peek(0))

		case chunk.OpJump:
			frame.ip += int(instr.Param())

		case chunk.OpJumpIfFalse:
			if !vm.peek(0).Truthy() {
				frame.ip += int(instr.Param())
			}

		case chunk.OpJumpIfTrue:
			if vm.peek(0).Truthy() {
				frame.ip += int(instr.Param())
			}

		case chunk.OpLoop:
			frame.ip -= int(instr.Param())

		case chunk.OpGetGlobal:
			name := frame.ch.Constants[instr.Param()].String()
			v, ok := vm.globals[name]
			if !ok {
				return value.Nil(), vm.wrapError(fmt.Errorf("undefined global %q", name))
			}
			vm.push(v)

		case chunk.OpSetGlobal:
			name := frame.ch.Constants[instr.Param()].String()
			vm.globals[name] = vm.peek(0)

		case chunk.OpGetLocal:
			vm.push(vm.stack[frame.base+int(instr.Param())])

		case chunk.OpSetLocal:
			vm.stack[frame.base+int(instr.Param())] = vm.peek(0)

		case chunk.OpGetUpvalue:
			vm.push(frame.fn.Upvalues[instr.Param()].Get())

		case chunk.OpSetUpvalue:
			frame.fn.Upvalues[instr.Param()].Set(vm.peek(0))

		case chunk.OpGetField:
			key := frame.ch.Constants[instr.Param()]
			obj := vm.pop()
			v, err := vm.getField(obj, key)
			if err != nil {
				return value.Nil(), vm.wrapError(err)
			}
			vm.push(v)

		case chunk.OpSetField:
			key := frame.ch.Constants[instr.Param()]
			v := vm.pop()
			obj := vm.pop()
			if err := vm.setField(obj, key, v); err != nil {
				return value.Nil(), vm.wrapError(err)
			}

		case chunk.OpGetIndex:
			idx := vm.pop()
			obj := vm.pop()
			v, err := vm.getIndex(obj, idx)
			if err != nil {
				return value.Nil(), vm.wrapError(err)
			}
			vm.push(v)

		case chunk.OpSetIndex:
			v := vm.pop()
			idx := vm.pop()
			obj := vm.pop()
			if err := vm.setIndex(obj, idx, v); err != nil {
				return value.Nil(), vm.wrapError(err)
			}

		case chunk.OpAdd:
			if instr.Flag() == 1 {
				b := vm.pop()
				a := vm.pop()
				k := vm.pool.Intern([]byte(a.String()+b.String()), vm.White())
				if !k.Interned {
					vm.register(k)
				}
				vm.push(value.NewRef(k))
				break
			}
			if err := vm.binaryArith(instr.Op()); err != nil {
				return value.Nil(), vm.wrapError(err)
			}

		case chunk.OpSub, chunk.OpMul, chunk.OpDiv, chunk.OpMod:
			if err := vm.binaryArith(instr.Op()); err != nil {
				return value.Nil(), vm.wrapError(err)
			}

		case chunk.OpNot:
			v := vm.pop()
			vm.push(value.NewBool(!v.Truthy()))

		case chunk.OpNeg:
			v := vm.pop()
			switch v.Tag {
			case value.TagInt:
				vm.push(value.NewInt(-v.I))
			case value.TagFloat:
				vm.push(value.NewFloat(-v.F))
			default:
				return value.Nil(), vm.wrapError(fmt.Errorf("attempt to negate a %s value", v.TypeOf()))
			}

		case chunk.OpLess:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.NewBool(value.Compare(a, b) < 0))

		case chunk.OpGreater:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.NewBool(value.Compare(a, b) > 0))

		case chunk.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.NewBool(value.Equals(a, b)))

		case chunk.OpBitAnd, chunk.OpBitOr, chunk.OpBitXor, chunk.OpShl, chunk.OpShr:
			if err := vm.binaryBits(instr.Op()); err != nil {
				return value.Nil(), vm.wrapError(err)
			}

		case chunk.OpBitNot:
			v := vm.pop()
			if v.Tag != value.TagInt {
				return value.Nil(), vm.wrapError(fmt.Errorf("attempt to perform bitwise not on a %s value", v.TypeOf()))
			}
			vm.push(value.NewInt(^v.I))

		case chunk.OpAnd:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.NewBool(a.Truthy() && b.Truthy()))

		case chunk.OpOr:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.NewBool(a.Truthy() || b.Truthy()))

		case chunk.OpLen:
			v := vm.pop()
			if instr.Flag() == 1 {
				k := vm.pool.Intern([]byte(v.TypeOf()), vm.White())
				if !k.Interned {
					vm.register(k)
				}
				vm.push(value.NewRef(k))
				break
			}
			n, err := vm.length(v)
			if err != nil {
				return value.Nil(), vm.wrapError(err)
			}
			vm.push(value.NewInt(int64(n)))

		case chunk.OpArray:
			count := int(instr.Param())
			elems := make([]value.Value, count)
			for i := count - 1; i >= 0; i-- {
				elems[i] = vm.pop()
			}
			arr := container.NewDyay(count, vm.White())
			for _, e := range elems {
				arr.Add(e)
			}
			vm.register(arr)
			vm.push(value.NewRef(arr))
			vm.gcStep()

		case chunk.OpMap:
			count := int(instr.Param())
			type kv struct{ k, v value.Value }
			entries := make([]kv, count)
			for i := count - 1; i >= 0; i-- {
				entries[i].v = vm.pop()
				entries[i].k = vm.pop()
			}
			m := container.NewHmap(count, vm.White())
			for _, e := range entries {
				if err := m.Put(e.k, e.v); err != nil {
					return value.Nil(), vm.wrapError(err)
				}
			}
			vm.register(m)
			vm.push(value.NewRef(m))
			vm.gcStep()

		case chunk.OpSkiplist:
			v, err := vm.buildSkiplist(instr)
			if err != nil {
				return value.Nil(), vm.wrapError(err)
			}
			vm.push(v)
			vm.gcStep()

		case chunk.OpClosure:
			vm.makeClosure(frame, instr)
			vm.gcStep()

		case chunk.OpCloseUpvalue:
			vm.closeUpvalue(&vm.stack[vm.stackTop-1])
			vm.pop()

		case chunk.OpCall:
			argc := int(instr.CallArgc())
			calleeIdx := vm.stackTop - argc - 1
			callee := vm.stack[calleeIdx]
			if err := vm.invoke(callee, calleeIdx+1, argc, calleeIdx); err != nil {
				return value.Nil(), vm.wrapError(err)
			}
			frame = &vm.frames[len(vm.frames)-1]
			vm.gcStep()

		case chunk.OpSelfCall:
			argc := int(instr.CallArgc())
			recvIdx := vm.stackTop - argc - 1
			recv := vm.stack[recvIdx]
			methodKey := frame.ch.Constants[instr.CallMethodConst()]
			method, err := vm.getField(recv, methodKey)
			if err != nil {
				return value.Nil(), vm.wrapError(err)
			}
			if err := vm.invoke(method, recvIdx, argc+1, recvIdx); err != nil {
				return value.Nil(), vm.wrapError(err)
			}
			frame = &vm.frames[len(vm.frames)-1]
			vm.gcStep()

		case chunk.OpReturn:
			result := vm.pop()
			vm.popFrame(result)
			if len(vm.frames) <= stopDepth {
				return result, nil
			}
			frame = &vm.frames[len(vm.frames)-1]

		default:
			return value.Nil(), vm.wrapError(fmt.Errorf("unhandled opcode %s", instr.Op()))
		}
	}
}

// popFrame tears down the top frame: it closes any upvalue still pointing
// into the frame's window, clears the window so the GC doesn't see stale
// references past the new stackTop, then truncates to resultSlot and
// pushes result in its place.
func (vm *VM) popFrame(result value.Value) {
	f := vm.frames[len(vm.frames)-1]
	for i := f.base; i < vm.stackTop; i++ {
		vm.closeUpvalue(&vm.stack[i])
		vm.stack[i] = value.Value{}
	}
	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.stackTop = f.resultSlot
	vm.push(result)
}

// invoke resolves callee as a function and either runs a native to
// completion in place or pushes a new callFrame for a script function,
// reconciling actual argc against the callee's declared arity (spec
// §4.5/§6's CALL semantics).
func (vm *VM) invoke(callee value.Value, base int, argc int, resultSlot int) error {
	if callee.Tag != value.TagRef {
		return fmt.Errorf("attempt to call a %s value", callee.TypeOf())
	}
	fn, ok := callee.Ref.(*value.Func)
	if !ok {
		return fmt.Errorf("attempt to call a %s value", callee.TypeOf())
	}

	if fn.IsNative() {
		args := make([]value.Value, argc)
		copy(args, vm.stack[base:base+argc])
		ups := make([]value.Value, len(fn.Upvalues))
		for i, u := range fn.Upvalues {
			ups[i] = u.Get()
		}
		for i := base; i < vm.stackTop; i++ {
			vm.stack[i] = value.Value{}
		}
		vm.stackTop = resultSlot
		results, err := fn.Native(args, ups)
		if err != nil {
			return err
		}
		for _, r := range results {
			vm.push(r)
		}
		return nil
	}

	ch, ok := fn.Chunk.(*chunk.Chunk)
	if !ok {
		return fmt.Errorf("%s has no runnable body", fn.Name)
	}
	if len(vm.frames) >= FramesMax {
		return fmt.Errorf("stack overflow calling %s", fn.Name)
	}

	// spec §6's CALL semantics: copy up to min(declared_args, argc) args
	// into the callee's local slots, and if the callee declared '...argv'
	// build a fresh array holding every actual argument regardless of the
	// named-parameter count.
	required := fn.Arity
	if fn.UsesArgv {
		argv := container.NewDyay(argc, vm.White())
		for i := 0; i < argc; i++ {
			argv.Add(vm.stack[base+i])
		}
		vm.register(argv)
		for i := argc; i < required; i++ {
			vm.stack[base+i] = value.Nil()
		}
		vm.stackTop = base + required
		vm.push(value.NewRef(argv))
	} else if argc < required {
		for i := argc; i < required; i++ {
			vm.stack[base+i] = value.Nil()
		}
		vm.stackTop = base + required
	} else {
		vm.stackTop = base + required
	}

	vm.frames = append(vm.frames, callFrame{fn: fn, ch: ch, ip: 0, base: base, resultSlot: resultSlot})
	return nil
}

func (vm *VM) makeClosure(frame *callFrame, instr chunk.Instr) {
	protoVal := frame.ch.Constants[instr.Param()]
	protoFn := protoVal.Ref.(*value.Func)
	protoChunk := protoFn.Chunk.(*chunk.Chunk)

	var upvalues []*value.Upvalue
	if len(protoChunk.Upvalues) > 0 {
		upvalues = make([]*value.Upvalue, len(protoChunk.Upvalues))
		for i, d := range protoChunk.Upvalues {
			if d.FromLocal {
				upvalues[i] = vm.captureUpvalue(&vm.stack[frame.base+int(d.Index)])
			} else {
				upvalues[i] = frame.fn.Upvalues[d.Index]
			}
		}
	}
	fn := value.NewScriptFunc(protoFn.Name, protoFn.Arity, protoFn.UsesArgv, protoChunk, upvalues, vm.White())
	vm.register(fn)
	vm.push(value.NewRef(fn))
}

// captureUpvalue finds or creates the open upvalue aliasing slot, walking
// the open list the same way closeUpvalue later closes it (spec §4.6).
func (vm *VM) captureUpvalue(slot *value.Value) *value.Upvalue {
	for u := vm.openUpvalues; u != nil; u = u.Next {
		if u.Location == slot {
			return u
		}
	}
	u := &value.Upvalue{Location: slot, Next: vm.openUpvalues}
	vm.openUpvalues = u
	return u
}

func (vm *VM) closeUpvalue(slot *value.Value) {
	var prev *value.Upvalue
	for u := vm.openUpvalues; u != nil; u = u.Next {
		if u.Location == slot {
			u.Close()
			if prev == nil {
				vm.openUpvalues = u.Next
			} else {
				prev.Next = u.Next
			}
			return
		}
		prev = u
	}
}

const (
	sklFlagDesc   = 1
	sklFlagCustom = 2
)

func (vm *VM) buildSkiplist(instr chunk.Instr) (value.Value, error) {
	count := int(instr.Param())
	type kv struct{ k, v value.Value }
	entries := make([]kv, count)
	for i := count - 1; i >= 0; i-- {
		entries[i].v = vm.pop()
		entries[i].k = vm.pop()
	}

	var order container.Order
	var less func(a, b value.Value) bool
	var comparator value.Value
	switch instr.Flag() {
	case sklFlagDesc:
		order = container.OrderDesc
	case sklFlagCustom:
		order = container.OrderCustom
		comparator = vm.pop()
		less = func(a, b value.Value) bool {
			r, err := vm.Call(comparator, []value.Value{a, b})
			if err != nil {
				return false
			}
			return r.Truthy()
		}
	default:
		order = container.OrderAsc
	}

	s := container.NewSkls(order, less, 0, vm.White())
	if order == container.OrderCustom {
		s.SetComparator(comparator)
	}
	for _, e := range entries {
		s.Put(e.k, e.v)
	}
	vm.register(s)
	return value.NewRef(s), nil
}

// GetField/SetField/GetIndex/SetIndex expose the same field/index
// dispatch OP_GET_FIELD/OP_PUT_FIELD/OP_GET_INDEX/OP_PUT_INDEX use, for a
// host embedder (internal/ymdapi) driving the VM without bytecode.
func (vm *VM) GetField(obj, key value.Value) (value.Value, error) { return vm.getField(obj, key) }
func (vm *VM) SetField(obj, key, v value.Value) error             { return vm.setField(obj, key, v) }
func (vm *VM) GetIndex(obj, idx value.Value) (value.Value, error) { return vm.getIndex(obj, idx) }
func (vm *VM) SetIndex(obj, idx, v value.Value) error             { return vm.setIndex(obj, idx, v) }

func (vm *VM) getField(obj, key value.Value) (value.Value, error) {
	if obj.Tag != value.TagRef {
		return value.Nil(), fmt.Errorf("attempt to index a %s value", obj.TypeOf())
	}
	switch o := obj.Ref.(type) {
	case *container.Hmap:
		v, _ := o.Get(key)
		return v, nil
	case *container.Skls:
		v, _ := o.Get(key)
		return v, nil
	case *container.Mand:
		v, _ := o.GetField(key)
		return v, nil
	default:
		return value.Nil(), fmt.Errorf("attempt to index a %s value", obj.TypeOf())
	}
}

func (vm *VM) setField(obj, key, v value.Value) error {
	if obj.Tag != value.TagRef {
		return fmt.Errorf("attempt to index a %s value", obj.TypeOf())
	}
	vm.gc.Barrier(obj.Ref)
	switch o := obj.Ref.(type) {
	case *container.Hmap:
		return o.Put(key, v)
	case *container.Skls:
		o.Put(key, v)
		return nil
	case *container.Mand:
		return o.PutField(key, v)
	default:
		return fmt.Errorf("attempt to index a %s value", obj.TypeOf())
	}
}

func (vm *VM) getIndex(obj, idx value.Value) (value.Value, error) {
	if obj.Tag != value.TagRef {
		return value.Nil(), fmt.Errorf("attempt to index a %s value", obj.TypeOf())
	}
	switch o := obj.Ref.(type) {
	case *container.Dyay:
		if idx.Tag != value.TagInt {
			return value.Nil(), fmt.Errorf("array index must be an int, got %s", idx.TypeOf())
		}
		v, err := o.Get(int(idx.I))
		if err != nil {
			return value.Nil(), err
		}
		return v, nil
	case *container.Hmap:
		v, _ := o.Get(idx)
		return v, nil
	case *container.Skls:
		v, _ := o.Get(idx)
		return v, nil
	default:
		return value.Nil(), fmt.Errorf("attempt to index a %s value", obj.TypeOf())
	}
}

func (vm *VM) setIndex(obj, idx, v value.Value) error {
	if obj.Tag != value.TagRef {
		return fmt.Errorf("attempt to index a %s value", obj.TypeOf())
	}
	vm.gc.Barrier(obj.Ref)
	switch o := obj.Ref.(type) {
	case *container.Dyay:
		if idx.Tag != value.TagInt {
			return fmt.Errorf("array index must be an int, got %s", idx.TypeOf())
		}
		return o.Set(int(idx.I), v)
	case *container.Hmap:
		return o.Put(idx, v)
	case *container.Skls:
		o.Put(idx, v)
		return nil
	default:
		return fmt.Errorf("attempt to index a %s value", obj.TypeOf())
	}
}

func (vm *VM) length(v value.Value) (int, error) {
	if v.Tag != value.TagRef {
		return 0, fmt.Errorf("attempt to get length of a %s value", v.TypeOf())
	}
	switch o := v.Ref.(type) {
	case *strpool.KStr:
		return o.Len(), nil
	case *container.Dyay:
		return o.Count(), nil
	case *container.Hmap:
		return o.Count(), nil
	case *container.Skls:
		return o.Count(), nil
	default:
		return 0, fmt.Errorf("attempt to get length of a %s value", v.TypeOf())
	}
}

// toFloat widens an Int or Float operand, per spec §4.1's Float/Int
// arithmetic promotion rule.
func toFloat(v value.Value) (float64, bool) {
	switch v.Tag {
	case value.TagInt:
		return float64(v.I), true
	case value.TagFloat:
		return v.F, true
	}
	return 0, false
}

// binaryArith implements +, -, *, / (Int stays Int unless either operand
// is already Float, per spec §4.1) and % (Int only, spec §4.1).
func (vm *VM) binaryArith(op chunk.Op) error {
	b := vm.pop()
	a := vm.pop()

	if op == chunk.OpMod {
		if a.Tag != value.TagInt || b.Tag != value.TagInt {
			return fmt.Errorf("attempt to perform '%%' on a %s value", badOperand(a, b))
		}
		if b.I == 0 {
			return fmt.Errorf("attempt to perform 'n%%0'")
		}
		vm.push(value.NewInt(a.I % b.I))
		return nil
	}

	if a.Tag == value.TagInt && b.Tag == value.TagInt {
		switch op {
		case chunk.OpAdd:
			vm.push(value.NewInt(a.I + b.I))
		case chunk.OpSub:
			vm.push(value.NewInt(a.I - b.I))
		case chunk.OpMul:
			vm.push(value.NewInt(a.I * b.I))
		case chunk.OpDiv:
			if b.I == 0 {
				return fmt.Errorf("attempt to perform 'n/0'")
			}
			vm.push(value.NewInt(a.I / b.I))
		}
		return nil
	}

	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return fmt.Errorf("attempt to perform arithmetic on a %s value", badOperand(a, b))
	}
	switch op {
	case chunk.OpAdd:
		vm.push(value.NewFloat(af + bf))
	case chunk.OpSub:
		vm.push(value.NewFloat(af - bf))
	case chunk.OpMul:
		vm.push(value.NewFloat(af * bf))
	case chunk.OpDiv:
		if bf == 0 {
			return fmt.Errorf("attempt to perform 'n/0'")
		}
		vm.push(value.NewFloat(af / bf))
	}
	return nil
}

func badOperand(a, b value.Value) string {
	if a.Tag != value.TagInt && a.Tag != value.TagFloat {
		return a.TypeOf()
	}
	return b.TypeOf()
}

func (vm *VM) binaryBits(op chunk.Op) error {
	b := vm.pop()
	a := vm.pop()
	if a.Tag != value.TagInt || b.Tag != value.TagInt {
		return fmt.Errorf("attempt to perform a bitwise operation on a %s value", badOperand(a, b))
	}
	switch op {
	case chunk.OpBitAnd:
		vm.push(value.NewInt(a.I & b.I))
	case chunk.OpBitOr:
		vm.push(value.NewInt(a.I | b.I))
	case chunk.OpBitXor:
		vm.push(value.NewInt(a.I ^ b.I))
	case chunk.OpShl:
		if b.I < 0 {
			return fmt.Errorf("negative shift amount")
		}
		vm.push(value.NewInt(a.I << uint(b.I)))
	case chunk.OpShr:
		if b.I < 0 {
			return fmt.Errorf("negative shift amount")
		}
		vm.push(value.NewInt(a.I >> uint(b.I)))
	}
	return nil
}

// wrapError attaches source location and a call-stack backtrace to a raw
// error the first time it escapes instruction dispatch (spec §4.7/§7); a
// *RuntimeError already built by a nested Call passes through unchanged.
func (vm *VM) wrapError(err error) error {
	if re, ok := err.(*RuntimeError); ok {
		return re
	}
	var bt []string
	file, line := "?", 0
	for i := len(vm.frames) - 1; i >= 0; i-- {
		f := vm.frames[i]
		l := 0
		if f.ip > 0 && f.ip <= len(f.ch.Lines) {
			l = f.ch.Lines[f.ip-1]
		}
		bt = append(bt, fmt.Sprintf("%s:%d: in %s", f.ch.FileName, l, f.fn.Name))
		if i == len(vm.frames)-1 {
			file, line = f.ch.FileName, l
		}
	}
	return &RuntimeError{Message: err.Error(), File: file, Line: line, Backtrace: bt}
}
