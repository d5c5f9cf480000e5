package builtin

import (
	"github.com/emptyland/ymd-sub000/internal/value"
	"github.com/emptyland/ymd-sub000/internal/vm"
	"github.com/google/uuid"
)

// InstallUUID exposes google/uuid as a single 'uuid()' builtin, the same
// identifier generator the dynamodb plugin's item keys use (SPEC_FULL
// §1.1's ambient stack).
func InstallUUID(m *vm.VM) {
	m.DefineNative("uuid", func(args []value.Value, upvalues []value.Value) ([]value.Value, error) {
		return []value.Value{internString(m, uuid.NewString())}, nil
	})
}
