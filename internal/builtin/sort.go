package builtin

import (
	"fmt"

	"github.com/emptyland/ymd-sub000/internal/container"
	"github.com/emptyland/ymd-sub000/internal/value"
	"github.com/emptyland/ymd-sub000/internal/vm"
	"golang.org/x/exp/slices"
)

// InstallSort exposes array sort/search helpers backed by
// golang.org/x/exp/slices (spec §4.3's array-ordering note), operating in
// place on the array's live backing slice.
func InstallSort(m *vm.VM) {
	m.DefineNative("sort", func(args []value.Value, upvalues []value.Value) ([]value.Value, error) {
		arr, err := arrayArg(args)
		if err != nil {
			return nil, err
		}
		var less func(a, b value.Value) bool
		if len(args) > 1 && args[1].Tag == value.TagRef {
			if _, ok := args[1].Ref.(*value.Func); ok {
				comparator := args[1]
				less = func(a, b value.Value) bool {
					r, err := m.Call(comparator, []value.Value{a, b})
					if err != nil {
						return false
					}
					return r.Truthy()
				}
			}
		}
		if less == nil {
			slices.SortFunc(arr.Slice(), func(a, b value.Value) int { return value.Compare(a, b) })
		} else {
			slices.SortFunc(arr.Slice(), func(a, b value.Value) int {
				switch {
				case less(a, b):
					return -1
				case less(b, a):
					return 1
				default:
					return 0
				}
			})
		}
		return []value.Value{args[0]}, nil
	})

	m.DefineNative("search", func(args []value.Value, upvalues []value.Value) ([]value.Value, error) {
		arr, err := arrayArg(args)
		if err != nil {
			return nil, err
		}
		if len(args) < 2 {
			return nil, fmt.Errorf("search: need a value to find")
		}
		i, found := slices.BinarySearchFunc(arr.Slice(), args[1], func(a, target value.Value) int {
			return value.Compare(a, target)
		})
		if !found {
			return []value.Value{value.NewInt(-1)}, nil
		}
		return []value.Value{value.NewInt(int64(i))}, nil
	})
}

func arrayArg(args []value.Value) (*container.Dyay, error) {
	if len(args) < 1 || args[0].Tag != value.TagRef {
		return nil, fmt.Errorf("need an array argument")
	}
	arr, ok := args[0].Ref.(*container.Dyay)
	if !ok {
		return nil, fmt.Errorf("need an array argument, got %s", args[0].TypeOf())
	}
	return arr, nil
}
