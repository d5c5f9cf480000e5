package lexer

import (
	"testing"

	"github.com/emptyland/ymd-sub000/internal/token"
)

func TestNextTokenBasics(t *testing.T) {
	input := `let x = 1 + 2 * 3
var y = -5
if x > 5 { print("big") } else { print("small") }
// a comment
# another comment
f := func(a, b) { return a + b }
"esc\n\t\x41" 'raw\nstring'
== != <= >= ~= << >> |> ++ -- += -= ..`

	type want struct {
		typ token.Type
		lit string
	}
	expected := []want{
		{token.LET, "let"}, {token.IDENT, "x"}, {token.ASSIGN, "="},
		{token.INT, "1"}, {token.PLUS, "+"}, {token.INT, "2"}, {token.STAR, "*"}, {token.INT, "3"},
		{token.VAR, "var"}, {token.IDENT, "y"}, {token.ASSIGN, "="}, {token.INT, "-5"},
		{token.IF, "if"}, {token.IDENT, "x"}, {token.GT, ">"}, {token.INT, "5"},
		{token.LBRACE, "{"}, {token.IDENT, "print"}, {token.LPAREN, "("}, {token.STR, "big"}, {token.RPAREN, ")"}, {token.RBRACE, "}"},
		{token.ELSE, "else"}, {token.LBRACE, "{"}, {token.IDENT, "print"}, {token.LPAREN, "("}, {token.STR, "small"}, {token.RPAREN, ")"}, {token.RBRACE, "}"},
		{token.IDENT, "f"}, {token.COLON, ":"}, {token.ASSIGN, "="}, {token.FUNC, "func"}, {token.LPAREN, "("},
		{token.IDENT, "a"}, {token.COMMA, ","}, {token.IDENT, "b"}, {token.RPAREN, ")"},
		{token.LBRACE, "{"}, {token.RETURN, "return"}, {token.IDENT, "a"}, {token.PLUS, "+"}, {token.IDENT, "b"}, {token.RBRACE, "}"},
		{token.STR, "esc\n\tA"}, {token.RAWSTR, "raw\\nstring"},
		{token.EQ, "=="}, {token.NEQ, "!="}, {token.LE, "<="}, {token.GE, ">="}, {token.MATCH, "~="},
		{token.SHL, "<<"}, {token.SHR, ">>"}, {token.PIPEARR, "|>"},
		{token.INC, "++"}, {token.DEC, "--"}, {token.PLUSEQ, "+="}, {token.MINUSEQ, "-="}, {token.CONCAT, ".."},
		{token.EOF, ""},
	}

	l := New("test.ymd", input)
	for i, e := range expected {
		tk := l.NextToken()
		if tk.Type != e.typ || tk.Literal != e.lit {
			t.Fatalf("token %d: got %s(%q), want %s(%q)", i, tk.Type, tk.Literal, e.typ, e.lit)
		}
	}
}

func TestLeadingMinusVsSubtraction(t *testing.T) {
	l := New("t.ymd", "a - 1")
	want := []token.Type{token.IDENT, token.MINUS, token.INT, token.EOF}
	for i, w := range want {
		tk := l.NextToken()
		if tk.Type != w {
			t.Fatalf("%d: got %s want %s", i, tk.Type, w)
		}
	}
}

func TestHexAndFloat(t *testing.T) {
	l := New("t.ymd", "0x1F .5 3.14")
	want := []struct {
		typ token.Type
		lit string
	}{
		{token.INT, "0x1F"}, {token.FLOAT, ".5"}, {token.FLOAT, "3.14"}, {token.EOF, ""},
	}
	for i, w := range want {
		tk := l.NextToken()
		if tk.Type != w.typ || tk.Literal != w.lit {
			t.Fatalf("%d: got %s(%q) want %s(%q)", i, tk.Type, tk.Literal, w.typ, w.lit)
		}
	}
}
