// Package plugin implements the JSON-over-stdio host/plugin protocol
// (spec §7's external-process extension mechanism): a plugin is a
// separate executable speaking one-request-per-line JSON on its
// stdin/stdout, launched and driven from a script through a managed
// handle much like internal/builtin's db_open. Grounded on the teacher
// copy of this same file (request/response shape, lookup-path
// fallback chain, lazy load-once cache), adapted from the old
// "noxy-vm/internal/value" tagged-union Value to this module's Tag/Ref
// Value and internal/container's Dyay/Hmap.
package plugin

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/emptyland/ymd-sub000/internal/container"
	"github.com/emptyland/ymd-sub000/internal/value"
	"github.com/emptyland/ymd-sub000/internal/vm"
)

// Request sent to a plugin process.
type Request struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// Response read back from a plugin process.
type Response struct {
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Client is one loaded plugin's process handle plus the pipes driving
// its request/response protocol.
type Client struct {
	Name    string
	Cmd     *exec.Cmd
	Stdin   io.WriteCloser
	Stdout  *bufio.Scanner
	Running bool
	lock    sync.Mutex
}

var (
	loaded     = make(map[string]*Client)
	loadedLock sync.Mutex
)

// Load starts (or returns the already-running) plugin process
// identified by name, resolving executableName against PATH, then
// against "./ymd_libs/<name>/<executableName>" (with a .exe fallback),
// then against the current directory — the same three-step search the
// teacher copy used under its own library directory name.
func Load(name, executableName string) (*Client, error) {
	loadedLock.Lock()
	defer loadedLock.Unlock()

	if c, ok := loaded[name]; ok {
		return c, nil
	}

	execPath, err := resolveExecutable(name, executableName)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(execPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("plugin %s: stdin pipe: %w", name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("plugin %s: stdout pipe: %w", name, err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("plugin %s: start: %w", name, err)
	}

	c := &Client{
		Name:    name,
		Cmd:     cmd,
		Stdin:   stdin,
		Stdout:  bufio.NewScanner(stdout),
		Running: true,
	}
	loaded[name] = c
	return c, nil
}

func resolveExecutable(name, executableName string) (string, error) {
	if path, err := exec.LookPath(executableName); err == nil {
		return path, nil
	}
	libPath := filepath.Join("ymd_libs", name, executableName)
	for _, candidate := range []string{libPath, libPath + ".exe", executableName} {
		if _, err := os.Stat(candidate); err == nil {
			abs, err := filepath.Abs(candidate)
			if err != nil {
				return "", fmt.Errorf("plugin %s: %w", name, err)
			}
			return abs, nil
		}
	}
	return "", fmt.Errorf("plugin %s: executable %q not found on PATH, in ymd_libs, or in the working directory", name, executableName)
}

// Call sends method(args...) to the plugin and blocks for its reply,
// converting between this VM's Value and the wire JSON via
// ValueToInterface/InterfaceToValue. A transport failure (write or read)
// marks the client no longer Running; it, a request or reply that fails
// to encode or decode, and a plugin-reported error are each printed to
// stderr and return Nil rather than propagating, matching the teacher
// copy's print-and-null handling —
// a plugin method is a best-effort extension point, not a hard
// dependency of the calling script.
func (c *Client) Call(m *vm.VM, method string, args []value.Value) value.Value {
	c.lock.Lock()
	defer c.lock.Unlock()

	if !c.Running {
		return value.Nil()
	}

	params := make([]interface{}, len(args))
	for i, a := range args {
		params[i] = ValueToInterface(a)
	}
	reqBytes, err := json.Marshal(Request{Method: method, Params: params})
	if err != nil {
		fmt.Fprintf(os.Stderr, "plugin %s: marshal request: %v\n", c.Name, err)
		return value.Nil()
	}

	if _, err := c.Stdin.Write(append(reqBytes, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "plugin %s: write request: %v\n", c.Name, err)
		c.Running = false
		return value.Nil()
	}

	if !c.Stdout.Scan() {
		if err := c.Stdout.Err(); err != nil {
			fmt.Fprintf(os.Stderr, "plugin %s: read response: %v\n", c.Name, err)
		} else {
			fmt.Fprintf(os.Stderr, "plugin %s: unexpected EOF\n", c.Name)
		}
		c.Running = false
		return value.Nil()
	}

	var resp Response
	if err := json.Unmarshal(c.Stdout.Bytes(), &resp); err != nil {
		fmt.Fprintf(os.Stderr, "plugin %s: unmarshal response: %v\n", c.Name, err)
		return value.Nil()
	}
	if resp.Error != "" {
		fmt.Fprintf(os.Stderr, "plugin %s: remote error: %s\n", c.Name, resp.Error)
		return value.Nil()
	}
	return InterfaceToValue(m, resp.Result)
}

// ValueToInterface converts a script Value to the JSON-friendly shape
// a plugin process expects on the wire.
func ValueToInterface(v value.Value) interface{} {
	switch v.Tag {
	case value.TagNil:
		return nil
	case value.TagBool:
		return v.B
	case value.TagInt:
		return v.I
	case value.TagFloat:
		return v.F
	case value.TagRef:
		switch ref := v.Ref.(type) {
		case *container.Dyay:
			arr := make([]interface{}, ref.Count())
			ref.Each(func(i int, elem value.Value) bool {
				arr[i] = ValueToInterface(elem)
				return true
			})
			return arr
		case *container.Hmap:
			out := make(map[string]interface{})
			ref.Each(func(k, elem value.Value) bool {
				out[k.String()] = ValueToInterface(elem)
				return true
			})
			return out
		default:
			return v.String()
		}
	default:
		return nil
	}
}

// InterfaceToValue converts a JSON-decoded Go value back into a script
// Value, interning strings through m's pool and building containers
// through m's collector the same way every other builtin in this
// module does.
func InterfaceToValue(m *vm.VM, i interface{}) value.Value {
	switch v := i.(type) {
	case nil:
		return value.Nil()
	case bool:
		return value.NewBool(v)
	case float64:
		if float64(int64(v)) == v {
			return value.NewInt(int64(v))
		}
		return value.NewFloat(v)
	case string:
		return internString(m, v)
	case []interface{}:
		arr := container.NewDyay(len(v), m.White())
		m.GC().Register(arr)
		for _, elem := range v {
			arr.Add(InterfaceToValue(m, elem))
		}
		return value.NewRef(arr)
	case map[string]interface{}:
		h := container.NewHmap(len(v), m.White())
		m.GC().Register(h)
		for k, elem := range v {
			h.Put(internString(m, k), InterfaceToValue(m, elem))
		}
		return value.NewRef(h)
	default:
		return internString(m, fmt.Sprintf("%v", v))
	}
}

// internString interns s through m's shared pool, the path every
// string literal the compiler emits goes through.
func internString(m *vm.VM, s string) value.Value {
	return value.NewRef(m.Pool().Intern([]byte(s), m.White()))
}
