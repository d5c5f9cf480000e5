package builtin

import (
	"database/sql"
	"fmt"

	"github.com/emptyland/ymd-sub000/internal/container"
	"github.com/emptyland/ymd-sub000/internal/value"
	"github.com/emptyland/ymd-sub000/internal/vm"
	_ "modernc.org/sqlite"
)

// InstallDB exposes 'db_open(path)', a managed sqlite handle (spec
// §4.3/§8's finalizer+metatable contract for a mand): the handle's
// metatable binds 'query' and 'exec' methods closing over the *sql.DB,
// and the collector's sweep closes the connection if the handle is never
// reached from a root (SPEC_FULL §1.1's db library).
func InstallDB(m *vm.VM) {
	m.DefineNative("db_open", func(args []value.Value, upvalues []value.Value) ([]value.Value, error) {
		if len(args) < 1 {
			return nil, fmt.Errorf("db_open: need a path argument")
		}
		handle, err := sql.Open("sqlite", args[0].String())
		if err != nil {
			return nil, fmt.Errorf("db_open: %w", err)
		}
		mand := container.NewMand("db", handle, func(data interface{}) {
			data.(*sql.DB).Close()
		}, m.White())
		m.GC().Register(mand)

		mt := container.NewHmap(2, m.White())
		m.GC().Register(mt)
		mt.Put(internString(m, "query"), newDBMethod(m, handle, dbQuery))
		mt.Put(internString(m, "exec"), newDBMethod(m, handle, dbExec))
		mand.SetMetatable(mt)

		return []value.Value{value.NewRef(mand)}, nil
	})
}

type dbOp func(m *vm.VM, handle *sql.DB, args []value.Value) ([]value.Value, error)

// newDBMethod binds a native closure over the handle, the way
// acct.deposit = func(self, amount){...} binds a method field onto an
// ordinary object (internal/vm's method-dispatch idiom): the implicit
// 'self' (the mand itself) is accepted but unused since the handle is
// already captured.
func newDBMethod(m *vm.VM, handle *sql.DB, op dbOp) value.Value {
	fn := value.NewNativeFunc("<db method>", func(args []value.Value, upvalues []value.Value) ([]value.Value, error) {
		if len(args) < 1 {
			return nil, fmt.Errorf("db method: need a query argument after self")
		}
		return op(m, handle, args[1:])
	}, m.White())
	m.GC().Register(fn)
	return value.NewRef(fn)
}

func toSQLArgs(args []value.Value) []interface{} {
	out := make([]interface{}, len(args))
	for i, a := range args {
		switch a.Tag {
		case value.TagInt:
			out[i] = a.I
		case value.TagFloat:
			out[i] = a.F
		case value.TagBool:
			out[i] = a.B
		case value.TagNil:
			out[i] = nil
		default:
			out[i] = a.String()
		}
	}
	return out
}

func dbExec(m *vm.VM, handle *sql.DB, args []value.Value) ([]value.Value, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("exec: need a statement")
	}
	res, err := handle.Exec(args[0].String(), toSQLArgs(args[1:])...)
	if err != nil {
		return nil, fmt.Errorf("exec: %w", err)
	}
	n, _ := res.RowsAffected()
	return []value.Value{value.NewInt(n)}, nil
}

func dbQuery(m *vm.VM, handle *sql.DB, args []value.Value) ([]value.Value, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("query: need a statement")
	}
	rows, err := handle.Query(args[0].String(), toSQLArgs(args[1:])...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	result := container.NewDyay(0, m.White())
	m.GC().Register(result)
	scratch := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range scratch {
		ptrs[i] = &scratch[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		row := container.NewHmap(len(cols), m.White())
		m.GC().Register(row)
		for i, c := range cols {
			row.Put(internString(m, c), sqlValueOf(m, scratch[i]))
		}
		result.Add(value.NewRef(row))
	}
	return []value.Value{value.NewRef(result)}, nil
}

func sqlValueOf(m *vm.VM, raw interface{}) value.Value {
	switch v := raw.(type) {
	case nil:
		return value.Nil()
	case int64:
		return value.NewInt(v)
	case float64:
		return value.NewFloat(v)
	case bool:
		return value.NewBool(v)
	case []byte:
		return internString(m, string(v))
	case string:
		return internString(m, v)
	default:
		return internString(m, fmt.Sprintf("%v", v))
	}
}
