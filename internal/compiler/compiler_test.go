package compiler

import (
	"testing"

	"github.com/emptyland/ymd-sub000/internal/chunk"
	"github.com/emptyland/ymd-sub000/internal/lexer"
	"github.com/emptyland/ymd-sub000/internal/parser"
	"github.com/emptyland/ymd-sub000/internal/strpool"
	"github.com/emptyland/ymd-sub000/internal/value"
)

func compile(t *testing.T, src string) *chunk.Chunk {
	t.Helper()
	p := parser.New(lexer.New("test.ymd", src))
	prog := p.ParseProgram()
	if len(p.Errors()) != 0 {
		t.Fatalf("parser errors: %v", p.Errors())
	}
	c := New("test.ymd", strpool.New(), value.White0)
	ch, err := c.Compile(prog)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return ch
}

func opsOf(ch *chunk.Chunk) []chunk.Op {
	ops := make([]chunk.Op, len(ch.Code))
	for i, instr := range ch.Code {
		ops[i] = instr.Op()
	}
	return ops
}

func TestCompileArithmeticEndsInReturn(t *testing.T) {
	ch := compile(t, "1 + 2 * 3")
	ops := opsOf(ch)
	if ops[len(ops)-1] != chunk.OpReturn {
		t.Fatalf("expected trailing RETURN, got %v", ops)
	}
	if len(ch.Constants) != 3 {
		t.Fatalf("expected 3 constants, got %d", len(ch.Constants))
	}
}

func TestCompileGlobalVar(t *testing.T) {
	ch := compile(t, "var x = 10\nx = x + 1")
	foundGet, foundSet := false, false
	for _, instr := range ch.Code {
		switch instr.Op() {
		case chunk.OpGetGlobal:
			foundGet = true
		case chunk.OpSetGlobal:
			foundSet = true
		}
	}
	if !foundGet || !foundSet {
		t.Fatalf("expected both GET_GLOBAL and SET_GLOBAL in %v", opsOf(ch))
	}
}

func TestCompileLocalsInFunction(t *testing.T) {
	ch := compile(t, `func add(a, b) { var c = a + b return c }`)
	var fn *value.Func
	for _, k := range ch.Constants {
		if k.Tag == value.TagRef {
			if f, ok := k.Ref.(*value.Func); ok {
				fn = f
			}
		}
	}
	if fn == nil {
		t.Fatal("expected a compiled function constant")
	}
	inner, ok := fn.Chunk.(*chunk.Chunk)
	if !ok {
		t.Fatalf("expected *chunk.Chunk, got %T", fn.Chunk)
	}
	foundLocal := false
	for _, instr := range inner.Code {
		if instr.Op() == chunk.OpGetLocal {
			foundLocal = true
		}
	}
	if !foundLocal {
		t.Fatalf("expected GET_LOCAL in function body: %v", opsOf(inner))
	}
}

func TestCompileIfElif(t *testing.T) {
	ch := compile(t, `
if x < 1 {
  var y = 1
} elif x < 2 {
  var y = 2
} else {
  var y = 3
}`)
	count := 0
	for _, instr := range ch.Code {
		if instr.Op() == chunk.OpJumpIfFalse {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("expected 2 JUMP_IF_FALSE (if + elif), got %d: %v", count, opsOf(ch))
	}
}

func TestCompileWhileBreakContinue(t *testing.T) {
	ch := compile(t, `
while x < 10 {
  if x == 5 { break }
  continue
} fail {
  var y = 1
}`)
	hasLoop, hasJump := false, false
	for _, instr := range ch.Code {
		if instr.Op() == chunk.OpLoop {
			hasLoop = true
		}
		if instr.Op() == chunk.OpJump {
			hasJump = true
		}
	}
	if !hasLoop || !hasJump {
		t.Fatalf("expected LOOP and JUMP in compiled while: %v", opsOf(ch))
	}
}

func TestCompileNumericForStep(t *testing.T) {
	ch := compile(t, `for i = 0, 10, 2 { var x = i }`)
	hasLoop := false
	for _, instr := range ch.Code {
		if instr.Op() == chunk.OpLoop {
			hasLoop = true
		}
	}
	if !hasLoop {
		t.Fatalf("expected LOOP in numeric for: %v", opsOf(ch))
	}
}

func TestCompileClosureCapturesUpvalue(t *testing.T) {
	ch := compile(t, `
func outer() {
  var n = 0
  func inner() {
    n = n + 1
    return n
  }
  return inner
}`)
	var outerFn *value.Func
	for _, k := range ch.Constants {
		if f, ok := k.Ref.(*value.Func); ok && f.Name == "outer" {
			outerFn = f
		}
	}
	if outerFn == nil {
		t.Fatal("expected outer function constant")
	}
	outerChunk := outerFn.Chunk.(*chunk.Chunk)
	var innerFn *value.Func
	for _, k := range outerChunk.Constants {
		if f, ok := k.Ref.(*value.Func); ok && f.Name == "inner" {
			innerFn = f
		}
	}
	if innerFn == nil {
		t.Fatal("expected inner function constant nested in outer's chunk")
	}
	innerChunk := innerFn.Chunk.(*chunk.Chunk)
	if len(innerChunk.Upvalues) != 1 {
		t.Fatalf("expected inner to capture exactly 1 upvalue, got %d", len(innerChunk.Upvalues))
	}
	if !innerChunk.Upvalues[0].FromLocal {
		t.Fatalf("expected upvalue captured directly from outer's local")
	}
}

func TestCompileMethodDeclReceivesImplicitSelf(t *testing.T) {
	ch := compile(t, `func account.deposit(amount) { self.balance = self.balance + amount }`)
	var fn *value.Func
	for _, k := range ch.Constants {
		if f, ok := k.Ref.(*value.Func); ok {
			fn = f
		}
	}
	if fn == nil {
		t.Fatal("expected compiled method constant")
	}
	if fn.Arity != 2 {
		t.Fatalf("expected arity 2 (self, amount), got %d", fn.Arity)
	}
	if fn.Name != "account.deposit" {
		t.Fatalf("expected qualified name account.deposit, got %s", fn.Name)
	}
}

func TestCompileSelfCallEmitsSelfCall(t *testing.T) {
	ch := compile(t, `acct:deposit(10)`)
	found := false
	for _, instr := range ch.Code {
		if instr.Op() == chunk.OpSelfCall {
			found = true
			if instr.CallArgc() != 1 {
				t.Fatalf("expected argc 1, got %d", instr.CallArgc())
			}
		}
	}
	if !found {
		t.Fatalf("expected SELF_CALL instruction: %v", opsOf(ch))
	}
}

func TestCompileArrayMapSkiplistLiterals(t *testing.T) {
	ch := compile(t, `
var a = [1, 2, 3]
var m = {"x": 1}
var s = @{[<] 1: "a"}`)
	var ops []chunk.Op
	for _, instr := range ch.Code {
		ops = append(ops, instr.Op())
	}
	hasArray, hasMap, hasSkl := false, false, false
	for _, op := range ops {
		switch op {
		case chunk.OpArray:
			hasArray = true
		case chunk.OpMap:
			hasMap = true
		case chunk.OpSkiplist:
			hasSkl = true
		}
	}
	if !hasArray || !hasMap || !hasSkl {
		t.Fatalf("expected ARRAY, MAP and SKIPLIST opcodes, got %v", ops)
	}
}

func TestCompileFieldAssignment(t *testing.T) {
	ch := compile(t, `p.x = 1`)
	found := false
	for _, instr := range ch.Code {
		if instr.Op() == chunk.OpSetField {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected SET_FIELD: %v", opsOf(ch))
	}
}

func TestCompileIndexAssignment(t *testing.T) {
	ch := compile(t, `arr[0] = 1`)
	found := false
	for _, instr := range ch.Code {
		if instr.Op() == chunk.OpSetIndex {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected SET_INDEX: %v", opsOf(ch))
	}
}

func TestCompileBreakOutsideLoopErrors(t *testing.T) {
	p := parser.New(lexer.New("test.ymd", `break`))
	prog := p.ParseProgram()
	if len(p.Errors()) != 0 {
		t.Fatalf("parser errors: %v", p.Errors())
	}
	c := New("test.ymd", strpool.New(), value.White0)
	if _, err := c.Compile(prog); err == nil {
		t.Fatal("expected error for break outside a loop")
	}
}
