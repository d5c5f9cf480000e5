// Package parser implements the recursive-descent, Pratt-style parser
// (spec §4.5) that turns a token stream into an *ast.Program.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/emptyland/ymd-sub000/internal/ast"
	"github.com/emptyland/ymd-sub000/internal/lexer"
	"github.com/emptyland/ymd-sub000/internal/token"
)

// Precedence levels, lowest to highest, per spec §4.5's table.
const (
	_ int = iota
	LOWEST
	OR
	AND
	COMPARE // < <= > >= == != ~=
	BITOR   // & ^ |
	SHIFT   // << >> |>
	SUM     // + -
	PRODUCT // * / %
	PREFIX  // - not ! ~ typeof
	CALLP   // . [] () :
)

var precedences = map[token.Type]int{
	token.OR:       OR,
	token.AND:      AND,
	token.LT:       COMPARE,
	token.LE:       COMPARE,
	token.GT:       COMPARE,
	token.GE:       COMPARE,
	token.EQ:       COMPARE,
	token.NEQ:      COMPARE,
	token.MATCH:    COMPARE,
	token.AMP:      BITOR,
	token.CARET:    BITOR,
	token.PIPE:     BITOR,
	token.SHL:      SHIFT,
	token.SHR:      SHIFT,
	token.PIPEARR:  SHIFT,
	token.PLUS:     SUM,
	token.MINUS:    SUM,
	token.CONCAT:   SUM,
	token.STAR:     PRODUCT,
	token.SLASH:    PRODUCT,
	token.PERCENT:  PRODUCT,
	token.DOT:      CALLP,
	token.LBRACKET: CALLP,
	token.LPAREN:   CALLP,
	token.COLON:    CALLP,
}

type Parser struct {
	l *lexer.Lexer

	cur  token.Token
	peek token.Token

	errors []string

	prefixFns map[token.Type]func() ast.Expr
	infixFns  map[token.Type]func(ast.Expr) ast.Expr
}

func New(l *lexer.Lexer) *Parser {
	p := &Parser{l: l}
	p.next()
	p.next()

	p.prefixFns = map[token.Type]func() ast.Expr{
		token.IDENT:    p.parseIdent,
		token.INT:      p.parseInt,
		token.FLOAT:    p.parseFloat,
		token.STR:      p.parseString,
		token.RAWSTR:   p.parseString,
		token.NIL:      func() ast.Expr { return &ast.NilLit{Tok: p.cur} },
		token.TRUE:     p.parseBool,
		token.FALSE:    p.parseBool,
		token.ARGV:     func() ast.Expr { return &ast.ArgvExpr{Tok: p.cur} },
		token.MINUS:    p.parseUnary,
		token.NOT:      p.parseUnary,
		token.BANG:     p.parseUnary,
		token.TILDE:    p.parseUnary,
		token.TYPEOF:   p.parseUnary,
		token.LPAREN:   p.parseGrouped,
		token.LBRACKET: p.parseArrayLit,
		token.LBRACE:   p.parseMapLit,
		token.AT:       p.parseSkipListLit,
		token.FUNC:     p.parseFuncLit,
	}
	p.infixFns = map[token.Type]func(ast.Expr) ast.Expr{
		token.PLUS:     p.parseBinary,
		token.MINUS:    p.parseBinary,
		token.STAR:     p.parseBinary,
		token.SLASH:    p.parseBinary,
		token.PERCENT:  p.parseBinary,
		token.CONCAT:   p.parseBinary,
		token.AMP:      p.parseBinary,
		token.PIPE:     p.parseBinary,
		token.CARET:    p.parseBinary,
		token.SHL:      p.parseBinary,
		token.SHR:      p.parseBinary,
		token.PIPEARR:  p.parseBinary,
		token.LT:       p.parseBinary,
		token.LE:       p.parseBinary,
		token.GT:       p.parseBinary,
		token.GE:       p.parseBinary,
		token.EQ:       p.parseBinary,
		token.NEQ:      p.parseBinary,
		token.MATCH:    p.parseBinary,
		token.AND:      p.parseBinary,
		token.OR:       p.parseBinary,
		token.LPAREN:   p.parseCall,
		token.LBRACKET: p.parseIndex,
		token.DOT:      p.parseField,
		token.COLON:    p.parseSelfCall,
	}

	return p
}

func (p *Parser) Errors() []string { return p.errors }

func (p *Parser) next() {
	p.cur = p.peek
	p.peek = p.l.NextToken()
}

func (p *Parser) curIs(t token.Type) bool  { return p.cur.Type == t }
func (p *Parser) peekIs(t token.Type) bool { return p.peek.Type == t }

func (p *Parser) expect(t token.Type) bool {
	if p.peekIs(t) {
		p.next()
		return true
	}
	p.errorf("expected %s, found %s (%q)", t, p.peek.Type, p.peek.Literal)
	return false
}

func (p *Parser) errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf("%s:%d:%d: "+format, append([]interface{}{p.cur.File, p.cur.Line, p.cur.Column}, args...)...)
	p.errors = append(p.errors, msg)
}

func (p *Parser) ParseProgram() *ast.Program {
	prog := &ast.Program{}
	for !p.curIs(token.EOF) {
		if p.curIs(token.SEMI) {
			p.next()
			continue
		}
		stmt := p.parseStatement()
		if stmt != nil {
			prog.Statements = append(prog.Statements, stmt)
		}
		p.next()
	}
	return prog
}

func (p *Parser) parseStatement() ast.Stmt {
	switch p.cur.Type {
	case token.IF:
		return p.parseIf()
	case token.WHILE:
		return p.parseWhile()
	case token.FOR:
		return p.parseFor()
	case token.FUNC:
		return p.parseFuncDecl()
	case token.VAR, token.LET:
		return p.parseVarDecl()
	case token.RETURN:
		return p.parseReturn()
	case token.BREAK:
		return &ast.BreakStmt{Tok: p.cur}
	case token.CONTINUE:
		return &ast.ContinueStmt{Tok: p.cur}
	case token.LBRACE:
		return p.parseBlock()
	default:
		return p.parseSimpleStatement()
	}
}

// parseSimpleStatement covers expression statements and the assignment
// family ('=', '+=', '-=', '++', '--') on an LValue target.
func (p *Parser) parseSimpleStatement() ast.Stmt {
	tok := p.cur
	expr := p.parseExpr(LOWEST)
	switch p.peek.Type {
	case token.ASSIGN, token.PLUSEQ, token.MINUSEQ:
		op := p.peek.Type
		p.next() // consume operator, curToken is op
		p.next() // advance to start of value
		val := p.parseExpr(LOWEST)
		return &ast.AssignStmt{Tok: tok, Op: op, Target: expr, Value: val}
	case token.INC, token.DEC:
		p.next()
		return &ast.AssignStmt{Tok: tok, Op: p.cur.Type, Target: expr}
	}
	return &ast.ExprStmt{Tok: tok, X: expr}
}

func (p *Parser) parseBlock() *ast.BlockStmt {
	block := &ast.BlockStmt{Tok: p.cur}
	if !p.curIs(token.LBRACE) {
		p.errorf("expected '{', found %s", p.cur.Type)
		return block
	}
	p.next() // consume '{'
	for !p.curIs(token.RBRACE) && !p.curIs(token.EOF) {
		if p.curIs(token.SEMI) {
			p.next()
			continue
		}
		stmt := p.parseStatement()
		if stmt != nil {
			block.Statements = append(block.Statements, stmt)
		}
		p.next()
	}
	return block
}

func (p *Parser) parseIf() *ast.IfStmt {
	stmt := &ast.IfStmt{Tok: p.cur}
	p.next() // consume 'if'

	if p.curIs(token.LET) || p.curIs(token.VAR) {
		stmt.Init = p.parseVarDecl()
		if !p.expect(token.SEMI) {
			return stmt
		}
		p.next()
	}

	stmt.Cond = p.parseExpr(LOWEST)
	if !p.expect(token.LBRACE) {
		return stmt
	}
	stmt.Then = p.parseBlock()

	for p.peekIs(token.ELIF) {
		p.next()
		elif := &ast.ElifClause{}
		p.next()
		elif.Cond = p.parseExpr(LOWEST)
		if !p.expect(token.LBRACE) {
			return stmt
		}
		elif.Body = p.parseBlock()
		stmt.Elifs = append(stmt.Elifs, elif)
	}

	if p.peekIs(token.ELSE) {
		p.next()
		if !p.expect(token.LBRACE) {
			return stmt
		}
		stmt.Else = p.parseBlock()
	}
	return stmt
}

func (p *Parser) parseWhile() *ast.WhileStmt {
	stmt := &ast.WhileStmt{Tok: p.cur}
	p.next() // consume 'while'

	if p.curIs(token.LET) || p.curIs(token.VAR) {
		stmt.Init = p.parseVarDecl()
		if !p.expect(token.SEMI) {
			return stmt
		}
		p.next()
	}

	if !p.curIs(token.LBRACE) {
		stmt.Cond = p.parseExpr(LOWEST)
		if !p.expect(token.LBRACE) {
			return stmt
		}
	}
	stmt.Body = p.parseBlock()

	if p.peekIs(token.FAIL) {
		p.next()
		if !p.expect(token.LBRACE) {
			return stmt
		}
		stmt.Fail = p.parseBlock()
	}
	return stmt
}

func (p *Parser) parseFor() *ast.ForStmt {
	stmt := &ast.ForStmt{Tok: p.cur}
	p.next() // consume 'for'

	if p.curIs(token.LBRACE) {
		stmt.Body = p.parseBlock()
		return stmt
	}

	if p.curIs(token.VAR) {
		stmt.Declared = true
		p.next()
	}
	if !p.curIs(token.IDENT) {
		p.errorf("expected identifier in for-loop, found %s", p.cur.Type)
		return stmt
	}
	stmt.Name = p.cur.Literal

	switch p.peek.Type {
	case token.IN:
		stmt.IsForeach = true
		p.next() // consume 'in'
		p.next()
		stmt.Iter = p.parseExpr(LOWEST)
	case token.ASSIGN:
		p.next() // consume '='
		p.next()
		stmt.Init = p.parseExpr(LOWEST)
		if !p.expect(token.COMMA) {
			return stmt
		}
		p.next()
		stmt.Limit = p.parseExpr(LOWEST)
		if p.peekIs(token.COMMA) {
			p.next()
			p.next()
			stmt.Step = p.parseExpr(LOWEST)
		}
	default:
		p.errorf("expected 'in' or '=' in for-loop, found %s", p.peek.Type)
		return stmt
	}

	if !p.expect(token.LBRACE) {
		return stmt
	}
	stmt.Body = p.parseBlock()

	if p.peekIs(token.FAIL) {
		p.next()
		if !p.expect(token.LBRACE) {
			return stmt
		}
		stmt.Fail = p.parseBlock()
	}
	return stmt
}

func (p *Parser) parseVarDecl() *ast.VarDecl {
	decl := &ast.VarDecl{Tok: p.cur}
	if !p.expect(token.IDENT) {
		return decl
	}
	decl.Names = append(decl.Names, p.cur.Literal)
	for p.peekIs(token.COMMA) {
		p.next()
		if !p.expect(token.IDENT) {
			return decl
		}
		decl.Names = append(decl.Names, p.cur.Literal)
	}
	if p.peekIs(token.ASSIGN) {
		p.next()
		p.next()
		decl.Values = append(decl.Values, p.parseExpr(LOWEST))
		for p.peekIs(token.COMMA) {
			p.next()
			p.next()
			decl.Values = append(decl.Values, p.parseExpr(LOWEST))
		}
	}
	return decl
}

func (p *Parser) parseReturn() *ast.ReturnStmt {
	stmt := &ast.ReturnStmt{Tok: p.cur}
	if p.peekIs(token.SEMI) || p.peekIs(token.RBRACE) || p.peekIs(token.EOF) {
		return stmt
	}
	p.next()
	stmt.Value = p.parseExpr(LOWEST)
	return stmt
}

func (p *Parser) parseFuncDecl() *ast.FuncDecl {
	decl := &ast.FuncDecl{Tok: p.cur}
	if !p.expect(token.IDENT) {
		return decl
	}
	decl.Name = p.cur.Literal

	if p.peekIs(token.DOT) {
		p.next() // consume '.'
		decl.Receiver = decl.Name
		if !p.expect(token.IDENT) {
			return decl
		}
		decl.Name = p.cur.Literal
	}

	if !p.expect(token.LPAREN) {
		return decl
	}
	decl.Params, decl.UsesArgv = p.parseParams()
	if !p.expect(token.LBRACE) {
		return decl
	}
	decl.Body = p.parseBlock()
	return decl
}

func (p *Parser) parseParams() ([]string, bool) {
	var params []string
	usesArgv := false
	if p.peekIs(token.RPAREN) {
		p.next()
		return params, usesArgv
	}
	p.next()
	for {
		if p.curIs(token.ARGV) {
			usesArgv = true
		} else if p.curIs(token.IDENT) {
			params = append(params, p.cur.Literal)
		} else {
			p.errorf("expected parameter name, found %s", p.cur.Type)
		}
		if !p.peekIs(token.COMMA) {
			break
		}
		p.next()
		p.next()
	}
	if !p.expect(token.RPAREN) {
		return params, usesArgv
	}
	return params, usesArgv
}

func (p *Parser) parseFuncLit() ast.Expr {
	lit := &ast.FuncLit{Tok: p.cur}
	if !p.expect(token.LPAREN) {
		return lit
	}
	lit.Params, lit.UsesArgv = p.parseParams()
	if !p.expect(token.LBRACE) {
		return lit
	}
	lit.Body = p.parseBlock()
	return lit
}

func (p *Parser) parseExpr(precedence int) ast.Expr {
	prefix, ok := p.prefixFns[p.cur.Type]
	if !ok {
		p.errorf("unexpected token %s (%q) in expression", p.cur.Type, p.cur.Literal)
		return nil
	}
	left := prefix()

	for !p.peekIs(token.SEMI) && precedence < p.peekPrecedence() {
		infix, ok := p.infixFns[p.peek.Type]
		if !ok {
			return left
		}
		p.next()
		left = infix(left)
	}
	return left
}

func (p *Parser) peekPrecedence() int {
	if prec, ok := precedences[p.peek.Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) curPrecedence() int {
	if prec, ok := precedences[p.cur.Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) parseIdent() ast.Expr { return &ast.Ident{Tok: p.cur, Name: p.cur.Literal} }

func (p *Parser) parseInt() ast.Expr {
	lit := &ast.IntLit{Tok: p.cur}
	v, err := strconv.ParseInt(p.cur.Literal, 0, 64)
	if err != nil {
		p.errorf("invalid integer literal %q", p.cur.Literal)
	}
	lit.Value = v
	return lit
}

func (p *Parser) parseFloat() ast.Expr {
	lit := &ast.FloatLit{Tok: p.cur}
	v, err := strconv.ParseFloat(p.cur.Literal, 64)
	if err != nil {
		p.errorf("invalid float literal %q", p.cur.Literal)
	}
	lit.Value = v
	return lit
}

func (p *Parser) parseString() ast.Expr {
	return &ast.StringLit{Tok: p.cur, Value: p.cur.Literal}
}

func (p *Parser) parseBool() ast.Expr {
	return &ast.BoolLit{Tok: p.cur, Value: p.curIs(token.TRUE)}
}

func (p *Parser) parseUnary() ast.Expr {
	expr := &ast.UnaryExpr{Tok: p.cur, Op: p.cur.Type}
	p.next()
	expr.X = p.parseExpr(PREFIX)
	return expr
}

func (p *Parser) parseBinary(left ast.Expr) ast.Expr {
	expr := &ast.BinaryExpr{Tok: p.cur, Op: p.cur.Type, Left: left}
	prec := p.curPrecedence()
	p.next()
	expr.Right = p.parseExpr(prec)
	return expr
}

func (p *Parser) parseGrouped() ast.Expr {
	p.next()
	exp := p.parseExpr(LOWEST)
	if !p.expect(token.RPAREN) {
		return exp
	}
	return exp
}

func (p *Parser) parseCall(fn ast.Expr) ast.Expr {
	exp := &ast.CallExpr{Tok: p.cur, Fn: fn}
	exp.Args = p.parseExprList(token.RPAREN)
	return exp
}

func (p *Parser) parseSelfCall(recv ast.Expr) ast.Expr {
	exp := &ast.SelfCallExpr{Tok: p.cur, Recv: recv}
	if !p.expect(token.IDENT) {
		return exp
	}
	exp.Method = p.cur.Literal
	if !p.expect(token.LPAREN) {
		return exp
	}
	exp.Args = p.parseExprList(token.RPAREN)
	return exp
}

func (p *Parser) parseExprList(end token.Type) []ast.Expr {
	var list []ast.Expr
	if p.peekIs(end) {
		p.next()
		return list
	}
	p.next()
	list = append(list, p.parseExpr(LOWEST))
	for p.peekIs(token.COMMA) {
		p.next()
		p.next()
		list = append(list, p.parseExpr(LOWEST))
	}
	if !p.expect(end) {
		return list
	}
	return list
}

func (p *Parser) parseIndex(left ast.Expr) ast.Expr {
	exp := &ast.IndexExpr{Tok: p.cur, X: left}
	p.next()
	exp.Index = p.parseExpr(LOWEST)
	if !p.expect(token.RBRACKET) {
		return exp
	}
	return exp
}

func (p *Parser) parseField(left ast.Expr) ast.Expr {
	exp := &ast.FieldExpr{Tok: p.cur, X: left}
	if !p.expect(token.IDENT) {
		return exp
	}
	exp.Field = p.cur.Literal
	return exp
}

func (p *Parser) parseArrayLit() ast.Expr {
	lit := &ast.ArrayLit{Tok: p.cur}
	lit.Elements = p.parseExprList(token.RBRACKET)
	return lit
}

func (p *Parser) parseMapLit() ast.Expr {
	lit := &ast.MapLit{Tok: p.cur}
	if p.peekIs(token.RBRACE) {
		p.next()
		return lit
	}
	p.next()
	for {
		key := p.parseExpr(CALLP) // stop before ':' so it is not read as a self-call
		if !p.expect(token.COLON) {
			return lit
		}
		p.next()
		val := p.parseExpr(LOWEST)
		lit.Entries = append(lit.Entries, ast.MapEntry{Key: key, Value: val})
		if !p.peekIs(token.COMMA) {
			break
		}
		p.next()
		p.next()
	}
	if !p.expect(token.RBRACE) {
		return lit
	}
	return lit
}

// parseSkipListLit parses the '@{...}' container, with an optional
// '[<]'/'[>]'/'[func]' ordering prefix (spec §4.5).
func (p *Parser) parseSkipListLit() ast.Expr {
	lit := &ast.SkipListLit{Tok: p.cur}
	if !p.expect(token.LBRACE) {
		return lit
	}

	if p.peekIs(token.LBRACKET) {
		p.next() // cur = '['
		p.next() // cur = ordering token
		switch {
		case p.curIs(token.LT):
			lit.Order = ast.OrderAscending
		case p.curIs(token.GT):
			lit.Order = ast.OrderDescending
		default:
			lit.Order = ast.OrderCustom
			lit.Comparator = p.parseExpr(LOWEST)
		}
		if !p.expect(token.RBRACKET) {
			return lit
		}
	}

	if p.peekIs(token.RBRACE) {
		p.next()
		return lit
	}
	p.next()
	for {
		key := p.parseExpr(CALLP) // stop before ':' so it is not read as a self-call
		if !p.expect(token.COLON) {
			return lit
		}
		p.next()
		val := p.parseExpr(LOWEST)
		lit.Entries = append(lit.Entries, ast.MapEntry{Key: key, Value: val})
		if !p.peekIs(token.COMMA) {
			break
		}
		p.next()
		p.next()
	}
	if !p.expect(token.RBRACE) {
		return lit
	}
	return lit
}

// ParseDotted splits a '.'-separated identifier path into its parts,
// working on a plain string outside the expression grammar.
func ParseDotted(s string) []string { return strings.Split(s, ".") }
