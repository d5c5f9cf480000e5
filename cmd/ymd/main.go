package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/ncruces/go-strftime"

	"github.com/emptyland/ymd-sub000/internal/ast"
	"github.com/emptyland/ymd-sub000/internal/builtin"
	"github.com/emptyland/ymd-sub000/internal/chunk"
	"github.com/emptyland/ymd-sub000/internal/compiler"
	"github.com/emptyland/ymd-sub000/internal/lexer"
	"github.com/emptyland/ymd-sub000/internal/parser"
	"github.com/emptyland/ymd-sub000/internal/pkgmanager"
	"github.com/emptyland/ymd-sub000/internal/strpool"
	"github.com/emptyland/ymd-sub000/internal/token"
	"github.com/emptyland/ymd-sub000/internal/value"
	"github.com/emptyland/ymd-sub000/internal/vm"
)

const Version = "v1.0.0"

var (
	flagDump     = flag.Bool("dump", false, "Disassemble the compiled chunk before running")
	flagTest     = flag.Bool("test", false, "Run every top-level 'test_' function and report pass/fail")
	flagRepeated = flag.Int("repeated", 1, "Run the script this many times")
	flagColor    = flag.String("color", "auto", "Colorize test output: yes, no, or auto")
	flagLogFile  = flag.String("log_file", "", "Append runtime errors here instead of stderr")
	flagVersion  = flag.Bool("version", false, "Show version information")
	flagHelp     = flag.Bool("help", false, "Show help message")
	flagGet      = flag.String("get", "", "Fetch a package into ymd_libs (e.g. github.com/user/repo@v1.0.0)")
)

var colorOn bool

func main() {
	defer func() {
		if r := recover(); r != nil {
			logf("panic: %v\n%s", r, debug.Stack())
			os.Exit(1)
		}
	}()

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ymd [options] [file]\n\nOptions:\n")
		flag.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(os.Stderr, "  --%s\n\t%s\n", f.Name, f.Usage)
		})
	}
	flag.Parse()
	colorOn = resolveColor(*flagColor)

	if *flagHelp {
		flag.Usage()
		return
	}
	if *flagVersion {
		fmt.Printf("ymd %s\n", Version)
		return
	}
	if *flagGet != "" {
		if err := pkgmanager.Get(*flagGet); err != nil {
			fatalf("get %s: %s", *flagGet, err)
		}
		return
	}

	args := flag.Args()
	if len(args) < 1 {
		startREPL()
		return
	}

	filename := args[0]
	content, err := os.ReadFile(filename)
	if err != nil {
		fatalf("reading %s: %s", filename, err)
	}
	run(filename, string(content))
}

// resolveColor mirrors original_source/src/print_posix.c's colored flag:
// explicit yes/no wins, auto defers to whether stdout is a terminal.
func resolveColor(mode string) bool {
	switch strings.ToLower(mode) {
	case "yes", "true", "on":
		return true
	case "no", "false", "off":
		return false
	default:
		return isatty.IsTerminal(os.Stdout.Fd())
	}
}

// ansi maps print_posix.c's kesc table entries (a=end, b=red, c=green,
// d=yellow) to their escape codes.
var ansi = map[byte]string{
	'a': "\033[0m",
	'b': "\033[1;31m",
	'c': "\033[1;32m",
	'd': "\033[1;33m",
}

// paint expands "%{a}".."%{d}" markup into ANSI escapes when colorOn, or
// strips it otherwise, the same scheme print_posix.c's ymd_print_paint
// uses for test-runner banners.
func paint(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+3 < len(s) && s[i+1] == '{' && s[i+3] == '}' {
			if colorOn {
				b.WriteString(ansi[s[i+2]])
			}
			i += 3
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func logf(format string, args ...interface{}) {
	ts := strftime.Format("%Y-%m-%d %H:%M:%S", time.Now())
	line := fmt.Sprintf("[%s] %s\n", ts, fmt.Sprintf(format, args...))
	if *flagLogFile == "" {
		fmt.Fprint(os.Stderr, line)
		return
	}
	f, err := os.OpenFile(*flagLogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprint(os.Stderr, line)
		return
	}
	defer f.Close()
	f.WriteString(line)
}

func fatalf(format string, args ...interface{}) {
	logf(format, args...)
	os.Exit(1)
}

func compileSource(filename, src string) (*strpool.Pool, *vm.VM, *chunk.Chunk, error) {
	p := parser.New(lexer.New(filename, src))
	prog := p.ParseProgram()
	if len(p.Errors()) > 0 {
		return nil, nil, nil, fmt.Errorf("%s", strings.Join(p.Errors(), "\n"))
	}
	pool := strpool.New()
	c := compiler.New(filename, pool, value.White0)
	ch, err := c.Compile(prog)
	if err != nil {
		return nil, nil, nil, err
	}
	machine := vm.New(pool, value.White0)
	builtin.Install(machine)
	if *flagDump {
		fmt.Print(ch.DisassembleAll(filename))
	}
	if _, err := machine.Interpret(ch); err != nil {
		return nil, nil, nil, err
	}
	return pool, machine, ch, nil
}

func run(filename, src string) {
	for i := 0; i < max(1, *flagRepeated); i++ {
		start := time.Now()
		_, machine, _, err := compileSource(filename, src)
		if err != nil {
			fatalf("%s", err)
		}
		if *flagRepeated > 1 {
			logf("run %d/%d: %s", i+1, *flagRepeated, humanize.RelTime(start, time.Now(), "", ""))
		}
		if *flagTest {
			runTests(machine)
		}
	}
}

// runTests calls every global whose name starts with "test_" and reports
// a colorized pass/fail banner per case, grounded on
// original_source/src/libtest.c's PASSED/FAILED markup (spec §6's test
// harness, simplified to one flat namespace instead of libtest.c's
// dotted test.case filter).
func runTests(m *vm.VM) {
	names := m.TestGlobals("test_")
	passed, failed := 0, 0
	for _, name := range names {
		fn, ok := m.GetGlobal(name)
		if !ok {
			continue
		}
		_, errOut := m.PCall(fn, nil)
		if errOut == nil {
			fmt.Println(paint("%{c}[  OK  ]%{a} ") + name)
			passed++
		} else {
			fmt.Println(paint("%{b}[ FAIL ]%{a} ") + name + ": " + errOut.Error())
			failed++
		}
	}
	fmt.Printf("%d passed, %d failed\n", passed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func startREPL() {
	fmt.Printf("ymd %s\n", Version)
	fmt.Println("Type 'exit' to quit.")

	pool := strpool.New()
	machine := vm.New(pool, value.White0)
	builtin.Install(machine)
	scanner := bufio.NewScanner(os.Stdin)

	var inputBuffer string
	for {
		if inputBuffer == "" {
			fmt.Print(">>> ")
		} else {
			fmt.Print("... ")
		}

		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "exit" {
			break
		}
		if strings.TrimSpace(line) == "" && inputBuffer == "" {
			continue
		}
		if inputBuffer == "" {
			inputBuffer = line
		} else {
			inputBuffer += "\n" + line
		}

		p := parser.New(lexer.New("repl", inputBuffer))
		prog := p.ParseProgram()
		if len(p.Errors()) > 0 {
			incomplete := false
			for _, msg := range p.Errors() {
				if strings.Contains(msg, "end of file") || strings.Contains(msg, "EOF") {
					incomplete = true
					break
				}
			}
			if incomplete {
				continue
			}
			for _, msg := range p.Errors() {
				fmt.Println(msg)
			}
			inputBuffer = ""
			continue
		}

		// REPL convenience: a single bare expression auto-prints.
		if len(prog.Statements) == 1 {
			if exprStmt, ok := prog.Statements[0].(*ast.ExprStmt); ok {
				prog.Statements[0] = &ast.ExprStmt{
					Tok: exprStmt.Tok,
					X: &ast.CallExpr{
						Tok:  token.Token{Type: token.IDENT, Literal: "print"},
						Fn:   &ast.Ident{Tok: token.Token{Type: token.IDENT, Literal: "print"}, Name: "print"},
						Args: []ast.Expr{exprStmt.X},
					},
				}
			}
		}

		c := compiler.New("repl", pool, machine.White())
		ch, err := c.Compile(prog)
		if err != nil {
			fmt.Printf("Compiler error: %s\n", err)
			inputBuffer = ""
			continue
		}
		if *flagDump {
			fmt.Print(ch.DisassembleAll("repl"))
		}
		if _, err := machine.Interpret(ch); err != nil {
			fmt.Printf("Runtime error: %s\n", err)
		}
		inputBuffer = ""
	}
}
