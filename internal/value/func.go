package value

// NativeFn is a host-provided function. It receives the positional
// arguments and the function's own bound upvalues, and returns result
// values or an error — the Go-idiomatic rendering of spec §4.9's
// "native returns a non-negative count of results, or a negative count to
// signal a raised error" ABI; callers translate the error into the
// {message, where, backtrace} triple described in §4.7.
type NativeFn func(args []Value, upvalues []Value) ([]Value, error)

// Upvalue is a captured variable slot (spec §3, "Upvalue" in the glossary).
// While open it aliases a live stack slot; CLOSE_UPVALUE-style closing
// copies the value in and severs the alias (spec §4.6).
type Upvalue struct {
	Location *Value
	Closed   Value
	IsClosed bool
	Next     *Upvalue // open-upvalue list linkage, owned by the VM
}

func (u *Upvalue) Get() Value {
	if u.IsClosed {
		return u.Closed
	}
	return *u.Location
}

func (u *Upvalue) Set(v Value) {
	if u.IsClosed {
		u.Closed = v
		return
	}
	*u.Location = v
}

func (u *Upvalue) Close() {
	if !u.IsClosed {
		u.Closed = *u.Location
		u.IsClosed = true
		u.Location = nil
	}
}

// Func is a reference subtype (spec §3): either a native function (host
// NativeFn + upvalues) or a script function (an immutable chunk, shared
// by pointer across the closures built from it, plus its own upvalue
// vector). Chunk
// is held as interface{} to avoid an import cycle between value and
// chunk (chunk.Chunk's constant table holds value.Value).
type Func struct {
	GCHeader
	Name     string
	Arity    int
	UsesArgv bool
	Chunk    interface{} // *chunk.Chunk for script functions
	Upvalues []*Upvalue
	Native   NativeFn
}

func NewScriptFunc(name string, arity int, usesArgv bool, ch interface{}, upvalues []*Upvalue, white Color) *Func {
	return &Func{
		GCHeader: NewHeader(RefFunc, white),
		Name:     name,
		Arity:    arity,
		UsesArgv: usesArgv,
		Chunk:    ch,
		Upvalues: upvalues,
	}
}

func NewNativeFunc(name string, fn NativeFn, white Color) *Func {
	return &Func{
		GCHeader: NewHeader(RefFunc, white),
		Name:     name,
		Native:   fn,
	}
}

func (f *Func) IsNative() bool { return f.Native != nil }

// Children yields every captured upvalue's current value, letting the
// collector keep a closure's environment alive (spec §4.8). A script
// function's Chunk is immutable compile-time data, never registered with
// the collector, so it is not walked here.
func (f *Func) Children(yield func(Value)) {
	for _, u := range f.Upvalues {
		yield(u.Get())
	}
}

// ScriptChunk returns the underlying *chunk.Chunk as interface{}, letting
// callers in the chunk package recover their own concrete type without
// value importing chunk (which would cycle back through Constants).
func (f *Func) ScriptChunk() interface{} { return f.Chunk }

func (f *Func) RefTag() RefTag  { return RefFunc }
func (f *Func) TypeName() string { return "function" }

func (f *Func) EqualsRef(other RefObject) bool {
	o, ok := other.(*Func)
	return ok && o == f
}

func (f *Func) CompareRef(other RefObject) int {
	o, ok := other.(*Func)
	if !ok || f == o {
		return 0
	}
	if f.Name < o.Name {
		return -1
	}
	if f.Name > o.Name {
		return 1
	}
	return 0
}

func (f *Func) String() string {
	if f.IsNative() {
		return "<native fn " + f.Name + ">"
	}
	return "<fn " + f.Name + ">"
}
