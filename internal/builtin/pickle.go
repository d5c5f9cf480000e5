package builtin

import (
	"fmt"

	"github.com/emptyland/ymd-sub000/internal/container"
	"github.com/emptyland/ymd-sub000/internal/pickle"
	"github.com/emptyland/ymd-sub000/internal/value"
	"github.com/emptyland/ymd-sub000/internal/vm"
)

// InstallPickle exposes a 'pickle' table holding 'dump'/'load', the same
// pair original_source/src/libpickle.c binds (spec §4.3's serialization
// contract).
func InstallPickle(m *vm.VM) {
	h := container.NewHmap(2, m.White())
	m.GC().Register(h)
	h.Put(internString(m, "dump"), nativeFunc(m, "pickle.dump", biPickleDump(m)))
	h.Put(internString(m, "load"), nativeFunc(m, "pickle.load", biPickleLoad(m)))
	m.SetGlobal("pickle", value.NewRef(h))
}

func nativeFunc(m *vm.VM, name string, fn value.NativeFn) value.Value {
	nf := value.NewNativeFunc(name, fn, m.White())
	m.GC().Register(nf)
	return value.NewRef(nf)
}

func biPickleDump(m *vm.VM) value.NativeFn {
	return func(args []value.Value, upvalues []value.Value) ([]value.Value, error) {
		if len(args) < 1 {
			return nil, fmt.Errorf("pickle.dump: need a value")
		}
		raw, err := pickle.Dump(args[0])
		if err != nil {
			return nil, err
		}
		return []value.Value{internString(m, string(raw))}, nil
	}
}

func biPickleLoad(m *vm.VM) value.NativeFn {
	return func(args []value.Value, upvalues []value.Value) ([]value.Value, error) {
		if len(args) < 1 {
			return nil, fmt.Errorf("pickle.load: need a record string")
		}
		v, err := pickle.Load([]byte(args[0].String()), m.Pool(), m.White())
		if err != nil {
			return nil, err
		}
		registerLoaded(m, v)
		return []value.Value{v}, nil
	}
}

// registerLoaded walks a freshly decoded tree and registers every
// reference object with the collector's allocation list, the way every
// other object-creating builtin in this package does at its own creation
// site (pickle.Load has no collector handle of its own).
func registerLoaded(m *vm.VM, v value.Value) {
	if v.Tag != value.TagRef {
		return
	}
	switch r := v.Ref.(type) {
	case *container.Dyay:
		m.GC().Register(r)
		r.Each(func(_ int, elem value.Value) bool {
			registerLoaded(m, elem)
			return true
		})
	case *container.Hmap:
		m.GC().Register(r)
		r.Each(func(k, elem value.Value) bool {
			registerLoaded(m, k)
			registerLoaded(m, elem)
			return true
		})
	case *container.Skls:
		m.GC().Register(r)
		r.Each(func(k, elem value.Value) bool {
			registerLoaded(m, k)
			registerLoaded(m, elem)
			return true
		})
	default:
		// *strpool.KStr: already owned by the string pool via Pool.Intern,
		// never the collector's own allocation list.
	}
}
