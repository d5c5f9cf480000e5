package parser

import (
	"testing"

	"github.com/emptyland/ymd-sub000/internal/ast"
	"github.com/emptyland/ymd-sub000/internal/lexer"
)

func parseProgram(t *testing.T, src string) *ast.Program {
	t.Helper()
	p := New(lexer.New("test.ymd", src))
	prog := p.ParseProgram()
	if len(p.Errors()) != 0 {
		t.Fatalf("parser errors: %v", p.Errors())
	}
	return prog
}

func TestParseVarDeclAndExpr(t *testing.T) {
	prog := parseProgram(t, `var x = 1 + 2 * 3`)
	if len(prog.Statements) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(prog.Statements))
	}
	decl, ok := prog.Statements[0].(*ast.VarDecl)
	if !ok {
		t.Fatalf("expected VarDecl, got %T", prog.Statements[0])
	}
	bin, ok := decl.Values[0].(*ast.BinaryExpr)
	if !ok {
		t.Fatalf("expected BinaryExpr, got %T", decl.Values[0])
	}
	if bin.Op != "+" {
		t.Fatalf("expected top-level '+', got %s", bin.Op)
	}
}

func TestParseIfElif(t *testing.T) {
	prog := parseProgram(t, `
if x < 1 {
  return 1
} elif x < 2 {
  return 2
} else {
  return 3
}`)
	stmt, ok := prog.Statements[0].(*ast.IfStmt)
	if !ok {
		t.Fatalf("expected IfStmt, got %T", prog.Statements[0])
	}
	if len(stmt.Elifs) != 1 || stmt.Else == nil {
		t.Fatalf("expected one elif and an else clause")
	}
}

func TestParseForForeach(t *testing.T) {
	prog := parseProgram(t, `for v in arr { print(v) }`)
	stmt, ok := prog.Statements[0].(*ast.ForStmt)
	if !ok || !stmt.IsForeach {
		t.Fatalf("expected foreach ForStmt, got %#v", prog.Statements[0])
	}
}

func TestParseForNumeric(t *testing.T) {
	prog := parseProgram(t, `for i = 0, 10, 2 { print(i) }`)
	stmt, ok := prog.Statements[0].(*ast.ForStmt)
	if !ok || stmt.IsForeach {
		t.Fatalf("expected numeric ForStmt, got %#v", prog.Statements[0])
	}
	if stmt.Step == nil {
		t.Fatal("expected explicit step")
	}
}

func TestParseFuncDeclWithReceiver(t *testing.T) {
	prog := parseProgram(t, `func account.deposit(amount) { self.balance = self.balance + amount }`)
	decl, ok := prog.Statements[0].(*ast.FuncDecl)
	if !ok {
		t.Fatalf("expected FuncDecl, got %T", prog.Statements[0])
	}
	if decl.Receiver != "account" || decl.Name != "deposit" {
		t.Fatalf("expected account.deposit, got %s.%s", decl.Receiver, decl.Name)
	}
}

func TestParseArrayMapSkiplistLiterals(t *testing.T) {
	prog := parseProgram(t, `var a = [1, 2, 3]
var m = {"x": 1, "y": 2}
var s = @{[<] 1: "a", 2: "b"}`)
	if len(prog.Statements) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(prog.Statements))
	}
	arr := prog.Statements[0].(*ast.VarDecl).Values[0].(*ast.ArrayLit)
	if len(arr.Elements) != 3 {
		t.Fatalf("expected 3 array elements, got %d", len(arr.Elements))
	}
	m := prog.Statements[1].(*ast.VarDecl).Values[0].(*ast.MapLit)
	if len(m.Entries) != 2 {
		t.Fatalf("expected 2 map entries, got %d", len(m.Entries))
	}
	skl := prog.Statements[2].(*ast.VarDecl).Values[0].(*ast.SkipListLit)
	if skl.Order != ast.OrderAscending || len(skl.Entries) != 2 {
		t.Fatalf("expected ascending skiplist with 2 entries, got %#v", skl)
	}
}

func TestParseSelfCall(t *testing.T) {
	prog := parseProgram(t, `acct:deposit(10)`)
	stmt, ok := prog.Statements[0].(*ast.ExprStmt)
	if !ok {
		t.Fatalf("expected ExprStmt, got %T", prog.Statements[0])
	}
	call, ok := stmt.X.(*ast.SelfCallExpr)
	if !ok || call.Method != "deposit" {
		t.Fatalf("expected SelfCallExpr deposit, got %#v", stmt.X)
	}
}

func TestParseAssignmentForms(t *testing.T) {
	prog := parseProgram(t, `x += 1
y++
z.f -= 2`)
	if len(prog.Statements) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(prog.Statements))
	}
	a := prog.Statements[0].(*ast.AssignStmt)
	if a.Op != "+=" {
		t.Fatalf("expected +=, got %s", a.Op)
	}
	b := prog.Statements[1].(*ast.AssignStmt)
	if b.Op != "++" || b.Value != nil {
		t.Fatalf("expected ++ with nil value, got %#v", b)
	}
}
