package builtin

import (
	"time"

	"github.com/emptyland/ymd-sub000/internal/value"
	"github.com/emptyland/ymd-sub000/internal/vm"
	"github.com/ncruces/go-strftime"
)

// InstallClock exposes a tiny 'clock' library grounded on
// original_source/libos_posix.c's time primitives: clock() returns the
// current Unix timestamp, and strftime(fmt[, unix]) formats it (or a
// given timestamp) with a C strftime-style layout string, the same
// formatting --log_file timestamp prefixes use (SPEC_FULL §1.1).
func InstallClock(m *vm.VM) {
	m.DefineNative("clock", func(args []value.Value, upvalues []value.Value) ([]value.Value, error) {
		return []value.Value{value.NewInt(time.Now().Unix())}, nil
	})
	m.DefineNative("strftime", func(args []value.Value, upvalues []value.Value) ([]value.Value, error) {
		if len(args) < 1 || args[0].Tag != value.TagRef {
			return []value.Value{value.Nil()}, nil
		}
		layout := args[0].String()
		t := time.Now()
		if len(args) > 1 && args[1].Tag == value.TagInt {
			t = time.Unix(args[1].I, 0)
		}
		return []value.Value{internString(m, strftime.Format(layout, t))}, nil
	})
}
