package builtin

import (
	"fmt"

	"github.com/emptyland/ymd-sub000/internal/container"
	"github.com/emptyland/ymd-sub000/internal/value"
	"github.com/emptyland/ymd-sub000/internal/vm"
)

// biPcall mirrors spec §4.7's protected-call contract: call the given
// function with the remaining arguments, and on success or failure leave
// a single result value on the stack carrying {ok, result} or {ok,
// error, where, backtrace} (spec §8 scenario #5: pcall(...).error).
func biPcall(m *vm.VM) value.NativeFn {
	return func(args []value.Value, upvalues []value.Value) ([]value.Value, error) {
		if len(args) < 1 {
			return nil, fmt.Errorf("pcall: need a callee")
		}
		fn := args[0]
		callArgs := args[1:]
		result, errOut := m.PCall(fn, callArgs)
		return []value.Value{buildResult(m, result, errOut)}, nil
	}
}

func whereOf(e *vm.RuntimeError) string {
	if e.File == "" {
		return "?"
	}
	return fmt.Sprintf("%s:%d", e.File, e.Line)
}

func buildResult(m *vm.VM, result value.Value, errOut *vm.RuntimeError) value.Value {
	h := container.NewHmap(4, m.White())
	m.GC().Register(h)
	if errOut == nil {
		h.Put(internString(m, "ok"), value.NewBool(true))
		h.Put(internString(m, "result"), result)
		return value.NewRef(h)
	}
	h.Put(internString(m, "ok"), value.NewBool(false))
	h.Put(internString(m, "error"), internString(m, errOut.Message))
	h.Put(internString(m, "where"), internString(m, whereOf(errOut)))
	bt := container.NewDyay(len(errOut.Backtrace), m.White())
	m.GC().Register(bt)
	for _, frame := range errOut.Backtrace {
		bt.Add(internString(m, frame))
	}
	h.Put(internString(m, "backtrace"), value.NewRef(bt))
	return value.NewRef(h)
}
