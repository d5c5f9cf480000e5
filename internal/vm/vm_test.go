package vm

import (
	"fmt"
	"testing"

	"github.com/emptyland/ymd-sub000/internal/compiler"
	"github.com/emptyland/ymd-sub000/internal/lexer"
	"github.com/emptyland/ymd-sub000/internal/parser"
	"github.com/emptyland/ymd-sub000/internal/strpool"
	"github.com/emptyland/ymd-sub000/internal/value"
)

// compileAndRun compiles src and interprets it on a fresh VM sharing the
// same strpool the compiler used, then returns the script's final result.
func compileAndRun(t *testing.T, src string) (value.Value, *VM) {
	t.Helper()
	p := parser.New(lexer.New("test.ymd", src))
	prog := p.ParseProgram()
	if len(p.Errors()) != 0 {
		t.Fatalf("parser errors: %v", p.Errors())
	}
	pool := strpool.New()
	c := compiler.New("test.ymd", pool, value.White0)
	ch, err := c.Compile(prog)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	machine := New(pool, value.White0)
	result, err := machine.Interpret(ch)
	if err != nil {
		t.Fatalf("runtime error: %v", err)
	}
	return result, machine
}

func expectRuntimeError(t *testing.T, src string) error {
	t.Helper()
	p := parser.New(lexer.New("test.ymd", src))
	prog := p.ParseProgram()
	if len(p.Errors()) != 0 {
		t.Fatalf("parser errors: %v", p.Errors())
	}
	pool := strpool.New()
	c := compiler.New("test.ymd", pool, value.White0)
	ch, err := c.Compile(prog)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	machine := New(pool, value.White0)
	_, err = machine.Interpret(ch)
	if err == nil {
		t.Fatalf("expected a runtime error, got none")
	}
	return err
}

func TestArithmeticAndReturn(t *testing.T) {
	result, _ := compileAndRun(t, `
func main() {
  return (5 + 10 * 2 + 15 / 3) * 2 + -10
}
return main()`)
	if result.Tag != value.TagInt || result.I != 50 {
		t.Fatalf("expected int 50, got %v", result)
	}
}

func TestFloatPromotion(t *testing.T) {
	result, _ := compileAndRun(t, `1 + 2.5`)
	if result.Tag != value.TagFloat || result.F != 3.5 {
		t.Fatalf("expected float 3.5, got %v", result)
	}
}

func TestIntDivisionStaysInt(t *testing.T) {
	result, _ := compileAndRun(t, `return 7 / 2`)
	if result.Tag != value.TagInt || result.I != 3 {
		t.Fatalf("expected int 3, got %v", result)
	}
}

func TestGlobalVarGetSet(t *testing.T) {
	result, _ := compileAndRun(t, `
var x = 10
x = x + 5
x`)
	if result.Tag != value.TagInt || result.I != 15 {
		t.Fatalf("expected int 15, got %v", result)
	}
}

func TestLocalVarScoping(t *testing.T) {
	result, _ := compileAndRun(t, `
func f() {
  var a = 1
  {
    var a = 2
    a = a + 1
  }
  return a
}
return f()`)
	if result.Tag != value.TagInt || result.I != 1 {
		t.Fatalf("expected outer a to stay 1, got %v", result)
	}
}

func TestIfElifElse(t *testing.T) {
	src := `
func classify(n) {
  if n < 0 {
    return "neg"
  } elif n == 0 {
    return "zero"
  } else {
    return "pos"
  }
}
return classify(%d)`
	cases := map[int]string{-1: "neg", 0: "zero", 7: "pos"}
	for n, want := range cases {
		result, _ := compileAndRun(t, fmt.Sprintf(src, n))
		if result.Tag != value.TagRef || result.String() != want {
			t.Fatalf("classify(%d): expected %q, got %v", n, want, result)
		}
	}
}

func TestWhileBreakContinueFail(t *testing.T) {
	result, _ := compileAndRun(t, `
func f() {
  var i = 0
  var sum = 0
  while i < 10 {
    i = i + 1
    if i == 3 {
      continue
    }
    if i == 8 {
      break
    }
    sum = sum + i
  } fail {
    sum = -1
  }
  return sum
}
return f()`)
	// loop exits via break, so fail must NOT run: sum = 1+2+4+5+6+7 = 25
	if result.Tag != value.TagInt || result.I != 25 {
		t.Fatalf("expected int 25, got %v", result)
	}
}

func TestWhileFailRunsOnExhaustion(t *testing.T) {
	result, _ := compileAndRun(t, `
func f() {
  var i = 0
  var done = false
  while i < 3 {
    i = i + 1
  } fail {
    done = true
  }
  return done
}
return f()`)
	if result.Tag != value.TagBool || !result.B {
		t.Fatalf("expected fail block to run on loop exhaustion, got %v", result)
	}
}

func TestNumericForStep(t *testing.T) {
	result, _ := compileAndRun(t, `
func f() {
  var sum = 0
  for i = 0, 10, 2 {
    sum = sum + i
  }
  return sum
}
return f()`)
	if result.Tag != value.TagInt || result.I != 20 {
		t.Fatalf("expected int 20 (0+2+4+6+8), got %v", result)
	}
}

func TestClosureCapturesIndependentUpvalues(t *testing.T) {
	result, _ := compileAndRun(t, `
func counter() {
  var n = 0
  func bump() {
    n = n + 1
    return n
  }
  return bump
}
var a = counter()
var b = counter()
a()
a()
b()
return a()`)
	if result.Tag != value.TagInt || result.I != 3 {
		t.Fatalf("expected a's 3rd bump to be 3 regardless of b, got %v", result)
	}
}

func TestMethodDeclSelfCall(t *testing.T) {
	// recv:method(args) dispatches by fetching "method" off recv's own
	// fields and calling it with recv prepended as the first argument, so
	// the field itself must be a closure whose leading parameter receives
	// the receiver (spec §4.5's implicit self binding).
	result, _ := compileAndRun(t, `
var acct = {"balance": 100}
acct.deposit = func(self, amount) {
  self.balance = self.balance + amount
  return self.balance
}
return acct:deposit(25)`)
	if result.Tag != value.TagInt || result.I != 125 {
		t.Fatalf("expected int 125, got %v", result)
	}
}

func TestFieldAndIndexGetSet(t *testing.T) {
	result, _ := compileAndRun(t, `
var arr = [1, 2, 3]
arr[1] = 20
var m = {"x": 1}
m.x = m.x + arr[1]
return m.x`)
	if result.Tag != value.TagInt || result.I != 21 {
		t.Fatalf("expected int 21, got %v", result)
	}
}

func TestArrayMapSkiplistLiterals(t *testing.T) {
	result, _ := compileAndRun(t, `
var a = [1, 2, 3]
var m = {"k": 9}
var s = @{[<] 2: "b", 1: "a"}
a[0] + m.k + len(s)`)
	_ = result
}

func TestSkiplistCustomComparator(t *testing.T) {
	result, _ := compileAndRun(t, `
func byDesc(a, b) {
  return a > b
}
var s = @{[byDesc] 1: "a", 2: "b", 3: "c"}
return len(s)`)
	if result.Tag != value.TagInt || result.I != 3 {
		t.Fatalf("expected skiplist of size 3, got %v", result)
	}
}

func TestVarargsArgvHoldsAllArguments(t *testing.T) {
	result, _ := compileAndRun(t, `
func sumAll(argv) {
  var total = 0
  var i = 0
  while i < len(argv) {
    total = total + argv[i]
    i = i + 1
  }
  return total
}
return sumAll(1, 2, 3, 4)`)
	if result.Tag != value.TagInt || result.I != 10 {
		t.Fatalf("expected argv to carry all 4 args summing to 10, got %v", result)
	}
}

func TestDivisionByZeroIsRuntimeError(t *testing.T) {
	err := expectRuntimeError(t, `1 / 0`)
	if _, ok := err.(*RuntimeError); !ok {
		t.Fatalf("expected *RuntimeError, got %T: %v", err, err)
	}
}

func TestModuloRequiresInts(t *testing.T) {
	err := expectRuntimeError(t, `1.5 % 2`)
	if _, ok := err.(*RuntimeError); !ok {
		t.Fatalf("expected *RuntimeError, got %T: %v", err, err)
	}
}

func TestCallingNonFunctionIsRuntimeError(t *testing.T) {
	err := expectRuntimeError(t, `
var x = 5
x()`)
	if _, ok := err.(*RuntimeError); !ok {
		t.Fatalf("expected *RuntimeError, got %T: %v", err, err)
	}
}

func TestNativeFunctionIntegration(t *testing.T) {
	p := parser.New(lexer.New("test.ymd", `report(1 + 2)`))
	prog := p.ParseProgram()
	if len(p.Errors()) != 0 {
		t.Fatalf("parser errors: %v", p.Errors())
	}
	pool := strpool.New()
	c := compiler.New("test.ymd", pool, value.White0)
	ch, err := c.Compile(prog)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	machine := New(pool, value.White0)
	var captured value.Value
	machine.DefineNative("report", func(args []value.Value, upvalues []value.Value) ([]value.Value, error) {
		if len(args) > 0 {
			captured = args[0]
		}
		return []value.Value{value.Nil()}, nil
	})
	if _, err := machine.Interpret(ch); err != nil {
		t.Fatalf("runtime error: %v", err)
	}
	if captured.Tag != value.TagInt || captured.I != 3 {
		t.Fatalf("expected native to observe int 3, got %v", captured)
	}
}

