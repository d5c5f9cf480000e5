package builtin

import (
	"fmt"

	"github.com/emptyland/ymd-sub000/internal/container"
	"github.com/emptyland/ymd-sub000/internal/plugin"
	"github.com/emptyland/ymd-sub000/internal/value"
	"github.com/emptyland/ymd-sub000/internal/vm"
)

// InstallPlugin exposes 'load_plugin(name, executable)', a managed
// handle over a JSON-over-stdio plugin process (spec §7): the handle's
// metatable binds a single 'call(method, ...)' method closing over the
// *plugin.Client, the same mand+metatable shape db_open uses for a
// sqlite handle.
func InstallPlugin(m *vm.VM) {
	m.DefineNative("load_plugin", func(args []value.Value, upvalues []value.Value) ([]value.Value, error) {
		if len(args) < 2 {
			return nil, fmt.Errorf("load_plugin: need a name and an executable path")
		}
		client, err := plugin.Load(args[0].String(), args[1].String())
		if err != nil {
			return nil, err
		}
		mand := container.NewMand("plugin", client, func(data interface{}) {
			c := data.(*plugin.Client)
			if c.Running {
				c.Stdin.Close()
			}
		}, m.White())
		m.GC().Register(mand)

		mt := container.NewHmap(1, m.White())
		m.GC().Register(mt)
		mt.Put(internString(m, "call"), newPluginCallMethod(m, client))
		mand.SetMetatable(mt)

		return []value.Value{value.NewRef(mand)}, nil
	})
}

// newPluginCallMethod binds a native closure over client, the same
// implicit-unused-self shape newDBMethod uses: plugin_handle.call(self,
// method, ...args).
func newPluginCallMethod(m *vm.VM, client *plugin.Client) value.Value {
	fn := value.NewNativeFunc("<plugin method>", func(args []value.Value, upvalues []value.Value) ([]value.Value, error) {
		if len(args) < 2 {
			return nil, fmt.Errorf("plugin call: need a method name after self")
		}
		result := client.Call(m, args[1].String(), args[2:])
		return []value.Value{result}, nil
	}, m.White())
	m.GC().Register(fn)
	return value.NewRef(fn)
}
