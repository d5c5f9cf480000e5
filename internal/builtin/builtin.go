// Package builtin implements the global library spec §6/§4.9/§9 bundles
// with every script: print, len, typeof, the range/ranki/rank iterator
// factories, assert, pcall/xcall, and the __iterate__ foreach protocol
// hook compileForEach compiles every 'for x in expr' loop against
// (grounded on original_source/libc.c's lbxBuiltin table).
package builtin

import (
	"fmt"

	"github.com/emptyland/ymd-sub000/internal/container"
	"github.com/emptyland/ymd-sub000/internal/value"
	"github.com/emptyland/ymd-sub000/internal/vm"
)

// Install registers every mandatory builtin as a global on m, the same
// binding surface a script-level 'func' declaration uses.
func Install(m *vm.VM) {
	m.DefineNative("print", biPrint)
	m.DefineNative("len", biLen(m))
	m.DefineNative("typeof", biTypeof(m))
	m.DefineNative("assert", biAssert)
	m.DefineNative("panic", biPanic)
	m.DefineNative("__iterate__", biIterate(m))
	m.DefineNative("range", biRange(m))
	m.DefineNative("ranki", biRanki(m))
	m.DefineNative("rank", biRank(m))
	m.DefineNative("pcall", biPcall(m))
	m.DefineNative("xcall", biPcall(m)) // see PCall's doc comment on the pcall/xcall distinction
	InstallUUID(m)
	InstallClock(m)
	InstallSort(m)
	InstallDB(m)
	InstallPickle(m)
	InstallPlugin(m)
}

// biPrint mirrors original_source/libc.c's libx_print: every argument,
// space-separated, followed by one newline.
func biPrint(args []value.Value, upvalues []value.Value) ([]value.Value, error) {
	for i, a := range args {
		if i > 0 {
			fmt.Print(" ")
		}
		fmt.Print(a.String())
	}
	fmt.Println()
	return []value.Value{value.Nil()}, nil
}

func biLen(m *vm.VM) value.NativeFn {
	return func(args []value.Value, upvalues []value.Value) ([]value.Value, error) {
		if len(args) < 1 {
			return nil, fmt.Errorf("len: need 1 argument")
		}
		n, err := lengthOf(args[0])
		if err != nil {
			return nil, err
		}
		return []value.Value{value.NewInt(int64(n))}, nil
	}
}

func lengthOf(v value.Value) (int, error) {
	if v.Tag != value.TagRef {
		return 0, fmt.Errorf("len: attempt to get length of a %s value", v.TypeOf())
	}
	switch o := v.Ref.(type) {
	case interface{ Len() int }:
		return o.Len(), nil
	case interface{ Count() int }:
		return o.Count(), nil
	default:
		return 0, fmt.Errorf("len: attempt to get length of a %s value", v.TypeOf())
	}
}

// biTypeof mirrors the compiler's unary 'typeof' keyword (OP_LEN flag 1),
// exposed as an ordinary callable for code that wants typeof as a value.
func biTypeof(m *vm.VM) value.NativeFn {
	return func(args []value.Value, upvalues []value.Value) ([]value.Value, error) {
		if len(args) < 1 {
			return nil, fmt.Errorf("typeof: need 1 argument")
		}
		return []value.Value{internString(m, args[0].TypeOf())}, nil
	}
}

// biAssert mirrors original_source/libc.c's panic-on-false idiom: a
// falsy first argument raises, optionally with a caller-supplied message.
func biAssert(args []value.Value, upvalues []value.Value) ([]value.Value, error) {
	if len(args) < 1 || !args[0].Truthy() {
		msg := "assertion failed"
		if len(args) > 1 {
			msg = args[1].String()
		}
		return nil, fmt.Errorf("%s", msg)
	}
	return []value.Value{value.NewBool(true)}, nil
}

// biPanic mirrors original_source/libc.c's libx_panic: raise a user error
// carrying the given message, to be caught by the nearest pcall/xcall
// (spec §4.7, §7's "User panic" kind).
func biPanic(args []value.Value, upvalues []value.Value) ([]value.Value, error) {
	msg := "panic"
	if len(args) > 0 {
		msg = args[0].String()
	}
	return nil, fmt.Errorf("%s", msg)
}

// biIterate implements the __iterate__ hook every 'for x in expr' loop
// calls exactly once: an already-compliant step closure (what
// range/ranki/rank return, spec §9's "iterators as closures") passes
// through unchanged; a raw container is wrapped in a fresh closure
// yielding its elements one at a time.
func biIterate(m *vm.VM) value.NativeFn {
	return func(args []value.Value, upvalues []value.Value) ([]value.Value, error) {
		if len(args) < 1 {
			return nil, fmt.Errorf("__iterate__: need 1 argument")
		}
		v := args[0]
		if v.Tag == value.TagRef {
			if fn, ok := v.Ref.(*value.Func); ok {
				return []value.Value{value.NewRef(fn)}, nil
			}
		}
		iter, err := containerValueIterator(m, v)
		if err != nil {
			return nil, err
		}
		return []value.Value{iter}, nil
	}
}

func internString(m *vm.VM, s string) value.Value {
	k := m.Pool().Intern([]byte(s), m.White())
	return value.NewRef(k)
}

// snapshot copies a container's current key/value pairs up front,
// so a step closure's iteration order is stable even if the caller
// mutates the container mid-loop (spec §5: mutation during iteration is
// otherwise undefined).
type entry struct{ k, v value.Value }

func snapshot(v value.Value) ([]entry, error) {
	if v.Tag != value.TagRef {
		return nil, fmt.Errorf("attempt to iterate a %s value", v.TypeOf())
	}
	switch o := v.Ref.(type) {
	case *container.Dyay:
		out := make([]entry, 0, o.Count())
		o.Each(func(i int, val value.Value) bool {
			out = append(out, entry{k: value.NewInt(int64(i)), v: val})
			return true
		})
		return out, nil
	case *container.Hmap:
		out := make([]entry, 0, o.Count())
		o.Each(func(k, val value.Value) bool {
			out = append(out, entry{k: k, v: val})
			return true
		})
		return out, nil
	case *container.Skls:
		out := make([]entry, 0, o.Count())
		o.Each(func(k, val value.Value) bool {
			out = append(out, entry{k: k, v: val})
			return true
		})
		return out, nil
	default:
		return nil, fmt.Errorf("attempt to iterate a %s value", v.TypeOf())
	}
}

// newStepClosure wraps entries as a zero-arg native step closure per
// spec §9: each call returns project(entries[i]) for the next i, or nil
// once exhausted.
func newStepClosure(m *vm.VM, entries []entry, project func(entry) value.Value) value.Value {
	i := 0
	fn := value.NewNativeFunc("<iterator>", func(args []value.Value, upvalues []value.Value) ([]value.Value, error) {
		if i >= len(entries) {
			return []value.Value{value.Nil()}, nil
		}
		v := project(entries[i])
		i++
		return []value.Value{v}, nil
	}, m.White())
	m.GC().Register(fn)
	return value.NewRef(fn)
}

func containerValueIterator(m *vm.VM, v value.Value) (value.Value, error) {
	entries, err := snapshot(v)
	if err != nil {
		return value.Nil(), err
	}
	return newStepClosure(m, entries, func(e entry) value.Value { return e.v }), nil
}

// biRange mirrors original_source/libc.c's libx_range: one container
// argument iterates its values; two or three integer arguments iterate a
// numeric range [start, limit) by step (defaulting to +1/-1 by
// direction), per spec §4.5's numeric for-loop semantics.
func biRange(m *vm.VM) value.NativeFn {
	return func(args []value.Value, upvalues []value.Value) ([]value.Value, error) {
		switch len(args) {
		case 1:
			iter, err := containerValueIterator(m, args[0])
			if err != nil {
				return nil, err
			}
			return []value.Value{iter}, nil
		case 2, 3:
			if args[0].Tag != value.TagInt || args[1].Tag != value.TagInt {
				return nil, fmt.Errorf("range: numeric form needs int arguments")
			}
			start, limit := args[0].I, args[1].I
			step := int64(1)
			if start > limit {
				step = -1
			}
			if len(args) == 3 {
				if args[2].Tag != value.TagInt || args[2].I == 0 {
					return nil, fmt.Errorf("range: step must be a nonzero int")
				}
				step = args[2].I
			}
			return []value.Value{newNumericStep(m, start, limit, step)}, nil
		default:
			return nil, fmt.Errorf("range: need 1 to 3 arguments")
		}
	}
}

func newNumericStep(m *vm.VM, start, limit, step int64) value.Value {
	cur := start
	fn := value.NewNativeFunc("<range>", func(args []value.Value, upvalues []value.Value) ([]value.Value, error) {
		if (step > 0 && cur >= limit) || (step < 0 && cur <= limit) {
			return []value.Value{value.Nil()}, nil
		}
		v := value.NewInt(cur)
		cur += step
		return []value.Value{v}, nil
	}, m.White())
	m.GC().Register(fn)
	return value.NewRef(fn)
}

// biRank mirrors original_source/libc.c's libx_rank (ITER_KV): each step
// yields a 2-element array [key, value].
func biRank(m *vm.VM) value.NativeFn {
	return func(args []value.Value, upvalues []value.Value) ([]value.Value, error) {
		if len(args) < 1 {
			return nil, fmt.Errorf("rank: need 1 argument")
		}
		entries, err := snapshot(args[0])
		if err != nil {
			return nil, err
		}
		return []value.Value{newStepClosure(m, entries, func(e entry) value.Value {
			pair := container.NewDyay(2, m.White())
			pair.Add(e.k)
			pair.Add(e.v)
			m.GC().Register(pair)
			return value.NewRef(pair)
		})}, nil
	}
}

// biRanki mirrors original_source/libc.c's libx_ranki (ITER_KEY): each
// step yields just the key.
func biRanki(m *vm.VM) value.NativeFn {
	return func(args []value.Value, upvalues []value.Value) ([]value.Value, error) {
		if len(args) < 1 {
			return nil, fmt.Errorf("ranki: need 1 argument")
		}
		entries, err := snapshot(args[0])
		if err != nil {
			return nil, err
		}
		return []value.Value{newStepClosure(m, entries, func(e entry) value.Value { return e.k })}, nil
	}
}
