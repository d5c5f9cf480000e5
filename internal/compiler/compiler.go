// Package compiler walks the parsed AST (spec §4.5) and emits a
// chunk.Chunk of fixed-width instructions (spec §6). One Compiler exists
// per function body; nested function literals and method declarations
// spawn a child Compiler chained through `enclosing` so upvalue capture
// can walk outward the way a closure would.
package compiler

import (
	"fmt"

	"github.com/emptyland/ymd-sub000/internal/ast"
	"github.com/emptyland/ymd-sub000/internal/chunk"
	"github.com/emptyland/ymd-sub000/internal/strpool"
	"github.com/emptyland/ymd-sub000/internal/value"
)

// local tracks one slot on the function's stack frame. Depth -1 marks a
// local still being initialized (its own declaration's initializer may
// not refer to itself).
type local struct {
	name       string
	depth      int
	isCaptured bool
}

// loop carries the jump-patch bookkeeping for one enclosing while/for: the
// address continue should jump back to, and the pending break addresses
// to patch once the loop's exit label is known. Break always targets the
// exit label, never the fail block, so fail only runs on exhaustion
// (spec §4.5).
type loop struct {
	continueTarget int
	breakJumps     []int
}

// upvalueRef records where a child function's Nth upvalue is captured
// from in its immediately enclosing function: a local slot, or an
// upvalue the enclosing function itself already captures.
type upvalueRef struct {
	index     uint16
	fromLocal bool
}

// Compiler compiles one function body into a chunk.Chunk. The root
// Compiler (enclosing == nil) compiles the top-level script as an
// implicit nullary function.
type Compiler struct {
	enclosing *Compiler
	chunk     *chunk.Chunk
	pool      *strpool.Pool
	white     value.Color

	locals     []local
	scopeDepth int
	loops      []*loop
	upvalues   []upvalueRef

	line int
}

// New creates the root compiler for a top-level script. pool is the
// shared string-intern table used to turn identifier/field names and
// string literals into constant-pool KStr values; white is the GC's
// current allocation color, threaded through every constant object the
// compiler allocates (spec §4.8).
func New(fileName string, pool *strpool.Pool, white value.Color) *Compiler {
	return &Compiler{
		chunk: chunk.New(fileName),
		pool:  pool,
		white: white,
		line:  1,
	}
}

func newChild(parent *Compiler) *Compiler {
	return &Compiler{
		enclosing: parent,
		chunk:     chunk.New(parent.chunk.FileName),
		pool:      parent.pool,
		white:     parent.white,
		line:      parent.line,
	}
}

// Compile compiles a full program into its chunk, appending the implicit
// trailing RETURN every chunk needs (spec §4.5, §6).
func (c *Compiler) Compile(prog *ast.Program) (*chunk.Chunk, error) {
	for _, s := range prog.Statements {
		if err := c.compileStmt(s); err != nil {
			return nil, err
		}
	}
	c.emitReturn()
	return c.chunk, nil
}

func (c *Compiler) emit(op chunk.Op, flag byte, param uint16) int {
	return c.chunk.Emit(op, flag, param, c.line)
}

func (c *Compiler) emitJump(op chunk.Op) int {
	return c.emit(op, 0, 0xFFFF)
}

func (c *Compiler) patchJump(at int) error {
	offset := len(c.chunk.Code) - at - 1
	if offset > 0xFFFF {
		return fmt.Errorf("compiler: jump too large (%d instructions)", offset)
	}
	c.chunk.Patch(at, uint16(offset))
	return nil
}

func (c *Compiler) emitLoop(target int) error {
	offset := len(c.chunk.Code) - target + 1
	if offset > 0xFFFF {
		return fmt.Errorf("compiler: loop body too large (%d instructions)", offset)
	}
	c.emit(chunk.OpLoop, 0, uint16(offset))
	return nil
}

func (c *Compiler) emitReturn() {
	c.emit(chunk.OpNil, 0, 0)
	c.emit(chunk.OpReturn, 0, 0)
}

func (c *Compiler) internString(s string) uint16 {
	k := c.pool.Intern([]byte(s), c.white)
	return c.chunk.AddConstant(value.NewRef(k))
}

func (c *Compiler) emitConstant(v value.Value) {
	idx := c.chunk.AddConstant(v)
	c.emit(chunk.OpConstant, 0, idx)
}

func (c *Compiler) beginScope() { c.scopeDepth++ }

// endScope pops every local declared at or below the scope being closed,
// emitting CLOSE_UPVALUE instead of POP for locals a nested closure
// captured (spec §4.6) so the VM can sever the open-upvalue alias before
// the stack slot is reused.
func (c *Compiler) endScope() {
	c.scopeDepth--
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth > c.scopeDepth {
		if c.locals[len(c.locals)-1].isCaptured {
			c.emit(chunk.OpCloseUpvalue, 0, 0)
		} else {
			c.emit(chunk.OpPop, 0, 0)
		}
		c.locals = c.locals[:len(c.locals)-1]
	}
}

func (c *Compiler) addLocal(name string) int {
	c.locals = append(c.locals, local{name: name, depth: c.scopeDepth})
	idx := len(c.locals) - 1
	if idx+1 > c.chunk.NumLocals {
		c.chunk.NumLocals = idx + 1
	}
	return idx
}

func (c *Compiler) resolveLocal(name string) int {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name == name {
			return i
		}
	}
	return -1
}

// resolveUpvalue implements spec §4.5's symbol-resolution order past
// locals: it walks one enclosing function at a time, preferring a local
// slot there (capturing it and marking it captured so endScope closes it
// properly), then falling back to an upvalue the enclosing function
// itself already transitively captures. Returns -1 if name is bound
// nowhere in the lexical chain, leaving the caller to fall through to a
// global lookup.
func (c *Compiler) resolveUpvalue(name string) int {
	if c.enclosing == nil {
		return -1
	}
	if local := c.enclosing.resolveLocal(name); local != -1 {
		c.enclosing.locals[local].isCaptured = true
		return c.addUpvalue(uint16(local), true)
	}
	if up := c.enclosing.resolveUpvalue(name); up != -1 {
		return c.addUpvalue(uint16(up), false)
	}
	return -1
}

func (c *Compiler) addUpvalue(index uint16, fromLocal bool) int {
	for i, u := range c.upvalues {
		if u.index == index && u.fromLocal == fromLocal {
			return i
		}
	}
	c.upvalues = append(c.upvalues, upvalueRef{index: index, fromLocal: fromLocal})
	c.chunk.Upvalues = append(c.chunk.Upvalues, chunk.UpvalDesc{FromLocal: fromLocal, Index: index})
	return len(c.upvalues) - 1
}

func (c *Compiler) currentLoop() *loop {
	if len(c.loops) == 0 {
		return nil
	}
	return c.loops[len(c.loops)-1]
}

// ---- statements ----

func (c *Compiler) compileStmt(s ast.Stmt) error {
	switch n := s.(type) {
	case *ast.ExprStmt:
		c.line = n.Tok.Line
		if err := c.compileExpr(n.X); err != nil {
			return err
		}
		c.emit(chunk.OpPop, 0, 0)
		return nil

	case *ast.VarDecl:
		c.line = n.Tok.Line
		for i, name := range n.Names {
			if i < len(n.Values) {
				if err := c.compileExpr(n.Values[i]); err != nil {
					return err
				}
			} else {
				c.emit(chunk.OpNil, 0, 0)
			}
			c.declareName(name)
		}
		return nil

	case *ast.AssignStmt:
		return c.compileAssign(n)

	case *ast.IfStmt:
		return c.compileIf(n)

	case *ast.WhileStmt:
		return c.compileWhile(n)

	case *ast.ForStmt:
		return c.compileFor(n)

	case *ast.FuncDecl:
		return c.compileFuncDecl(n)

	case *ast.ReturnStmt:
		c.line = n.Tok.Line
		if n.Value != nil {
			if err := c.compileExpr(n.Value); err != nil {
				return err
			}
		} else {
			c.emit(chunk.OpNil, 0, 0)
		}
		c.emit(chunk.OpReturn, 0, 0)
		return nil

	case *ast.BreakStmt:
		lp := c.currentLoop()
		if lp == nil {
			return fmt.Errorf("compiler: 'break' outside a loop (line %d)", n.Tok.Line)
		}
		lp.breakJumps = append(lp.breakJumps, c.emitJump(chunk.OpJump))
		return nil

	case *ast.ContinueStmt:
		lp := c.currentLoop()
		if lp == nil {
			return fmt.Errorf("compiler: 'continue' outside a loop (line %d)", n.Tok.Line)
		}
		return c.emitLoop(lp.continueTarget)

	case *ast.BlockStmt:
		c.beginScope()
		for _, stmt := range n.Statements {
			if err := c.compileStmt(stmt); err != nil {
				return err
			}
		}
		c.endScope()
		return nil

	case *ast.EmptyStmt:
		return nil

	default:
		return fmt.Errorf("compiler: unhandled statement %T", s)
	}
}

// declareName binds name as a local if inside a function/block scope
// (scopeDepth > 0), or as a global otherwise (spec §4.5: top-level 'var'
// and 'let' bind globals). The value to store is already on the stack.
func (c *Compiler) declareName(name string) {
	if c.scopeDepth > 0 {
		c.addLocal(name)
		return
	}
	idx := c.internString(name)
	c.emit(chunk.OpSetGlobal, 0, idx)
	c.emit(chunk.OpPop, 0, 0)
}

func (c *Compiler) compileAssign(n *ast.AssignStmt) error {
	c.line = n.Tok.Line
	switch n.Op {
	case "=":
		if err := c.compileExpr(n.Value); err != nil {
			return err
		}
		return c.storeTo(n.Target)

	case "+=", "-=":
		if err := c.compileExpr(n.Target); err != nil {
			return err
		}
		if err := c.compileExpr(n.Value); err != nil {
			return err
		}
		if n.Op == "+=" {
			c.emit(chunk.OpAdd, 0, 0)
		} else {
			c.emit(chunk.OpSub, 0, 0)
		}
		return c.storeTo(n.Target)

	case "++", "--":
		if err := c.compileExpr(n.Target); err != nil {
			return err
		}
		c.emitConstant(value.NewInt(1))
		if n.Op == "++" {
			c.emit(chunk.OpAdd, 0, 0)
		} else {
			c.emit(chunk.OpSub, 0, 0)
		}
		return c.storeTo(n.Target)

	default:
		return fmt.Errorf("compiler: unsupported assignment operator %q", n.Op)
	}
}

// storeTo stores the value already on top of the stack into target,
// leaving nothing behind (these assignments run as statements, not
// expressions). Field and index targets bind the pending value as a
// synthetic local (so its stack slot has a name, not a new instruction)
// before evaluating the base object and re-fetching the value on top,
// avoiding a VM-level stack-rotate opcode just for this.
func (c *Compiler) storeTo(target ast.Expr) error {
	switch t := target.(type) {
	case *ast.Ident:
		if idx := c.resolveLocal(t.Name); idx != -1 {
			c.emit(chunk.OpSetLocal, 0, uint16(idx))
			c.emit(chunk.OpPop, 0, 0)
			return nil
		}
		if idx := c.resolveUpvalue(t.Name); idx != -1 {
			c.emit(chunk.OpSetUpvalue, 0, uint16(idx))
			c.emit(chunk.OpPop, 0, 0)
			return nil
		}
		c.emit(chunk.OpSetGlobal, 0, c.internString(t.Name))
		c.emit(chunk.OpPop, 0, 0)
		return nil

	case *ast.FieldExpr:
		// the value to store is already on top of the stack; addLocal
		// binds that same slot as 'tmp' with no instruction needed, the
		// same trick a plain 'var' declaration uses.
		tmp := c.addLocal("")
		if err := c.compileExpr(t.X); err != nil {
			return err
		}
		c.emit(chunk.OpGetLocal, 0, uint16(tmp))
		c.emit(chunk.OpSetField, 0, c.internString(t.Field))
		c.emit(chunk.OpPop, 0, 0)
		c.locals = c.locals[:len(c.locals)-1]
		return nil

	case *ast.IndexExpr:
		tmp := c.addLocal("")
		if err := c.compileExpr(t.X); err != nil {
			return err
		}
		if err := c.compileExpr(t.Index); err != nil {
			return err
		}
		c.emit(chunk.OpGetLocal, 0, uint16(tmp))
		c.emit(chunk.OpSetIndex, 0, 0)
		c.emit(chunk.OpPop, 0, 0)
		c.locals = c.locals[:len(c.locals)-1]
		return nil

	default:
		return fmt.Errorf("compiler: invalid assignment target %T", target)
	}
}

func (c *Compiler) compileIf(n *ast.IfStmt) error {
	c.line = n.Tok.Line
	c.beginScope()
	if n.Init != nil {
		if err := c.compileStmt(n.Init); err != nil {
			return err
		}
	}
	if err := c.compileExpr(n.Cond); err != nil {
		return err
	}
	elseJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emit(chunk.OpPop, 0, 0)
	if err := c.compileStmt(n.Then); err != nil {
		return err
	}
	endJumps := []int{c.emitJump(chunk.OpJump)}
	if err := c.patchJump(elseJump); err != nil {
		return err
	}
	c.emit(chunk.OpPop, 0, 0)

	for _, elif := range n.Elifs {
		if err := c.compileExpr(elif.Cond); err != nil {
			return err
		}
		nextJump := c.emitJump(chunk.OpJumpIfFalse)
		c.emit(chunk.OpPop, 0, 0)
		if err := c.compileStmt(elif.Body); err != nil {
			return err
		}
		endJumps = append(endJumps, c.emitJump(chunk.OpJump))
		if err := c.patchJump(nextJump); err != nil {
			return err
		}
		c.emit(chunk.OpPop, 0, 0)
	}

	if n.Else != nil {
		if err := c.compileStmt(n.Else); err != nil {
			return err
		}
	}
	for _, j := range endJumps {
		if err := c.patchJump(j); err != nil {
			return err
		}
	}
	c.endScope()
	return nil
}

// compileWhile emits:
//
//	loopStart: eval cond (or skip if infinite)
//	           JUMP_IF_FALSE -> failLabel (or exitLabel if no fail block)
//	           POP; body; LOOP loopStart
//	failLabel: [fail block]
//	exitLabel:
//
// break jumps go straight to exitLabel, skipping the fail block (spec
// §4.5: fail only runs when the loop exits by exhaustion, not by break).
func (c *Compiler) compileWhile(n *ast.WhileStmt) error {
	c.line = n.Tok.Line
	c.beginScope()
	if n.Init != nil {
		if err := c.compileStmt(n.Init); err != nil {
			return err
		}
	}
	lp := &loop{}
	c.loops = append(c.loops, lp)

	loopStart := len(c.chunk.Code)
	lp.continueTarget = loopStart
	exitJump := -1
	if n.Cond != nil {
		if err := c.compileExpr(n.Cond); err != nil {
			return err
		}
		exitJump = c.emitJump(chunk.OpJumpIfFalse)
		c.emit(chunk.OpPop, 0, 0)
	}
	if err := c.compileStmt(n.Body); err != nil {
		return err
	}
	if err := c.emitLoop(loopStart); err != nil {
		return err
	}
	if exitJump != -1 {
		if err := c.patchJump(exitJump); err != nil {
			return err
		}
		c.emit(chunk.OpPop, 0, 0)
	}
	if n.Fail != nil {
		if err := c.compileStmt(n.Fail); err != nil {
			return err
		}
	}
	c.loops = c.loops[:len(c.loops)-1]
	for _, j := range lp.breakJumps {
		if err := c.patchJump(j); err != nil {
			return err
		}
	}
	c.endScope()
	return nil
}

// compileFor lowers all three surface forms (spec §4.5) onto the same
// while-loop skeleton compileWhile uses. Numeric for desugars directly
// to counter init/compare/increment. Foreach calls a hidden iterator
// closure returned by the builtin iterator protocol once per pass,
// stopping when it reports exhaustion.
func (c *Compiler) compileFor(n *ast.ForStmt) error {
	c.line = n.Tok.Line
	c.beginScope()
	defer c.endScope()

	if n.IsForeach {
		return c.compileForEach(n)
	}

	// infinite form: no Init/Limit given at all.
	if n.Init == nil && n.Limit == nil {
		lp := &loop{}
		c.loops = append(c.loops, lp)
		loopStart := len(c.chunk.Code)
		lp.continueTarget = loopStart
		if err := c.compileStmt(n.Body); err != nil {
			return err
		}
		if err := c.emitLoop(loopStart); err != nil {
			return err
		}
		c.loops = c.loops[:len(c.loops)-1]
		if n.Fail != nil {
			if err := c.compileStmt(n.Fail); err != nil {
				return err
			}
		}
		for _, j := range lp.breakJumps {
			if err := c.patchJump(j); err != nil {
				return err
			}
		}
		return nil
	}

	// numeric form: var i = init; hidden limit/step locals; while i</> limit.
	if err := c.compileExpr(n.Init); err != nil {
		return err
	}
	counter := c.addLocal(n.Name)

	if err := c.compileExpr(n.Limit); err != nil {
		return err
	}
	limitSlot := c.addLocal("")

	if n.Step != nil {
		if err := c.compileExpr(n.Step); err != nil {
			return err
		}
	} else {
		c.emitConstant(value.NewInt(1))
	}
	stepSlot := c.addLocal("")

	lp := &loop{}
	c.loops = append(c.loops, lp)
	loopStart := len(c.chunk.Code)
	lp.continueTarget = loopStart

	// cond: step >= 0 ? counter < limit : counter > limit
	c.emit(chunk.OpGetLocal, 0, uint16(stepSlot))
	c.emitConstant(value.NewInt(0))
	c.emit(chunk.OpLess, 0, 0) // step < 0
	negStepJump := c.emitJump(chunk.OpJumpIfTrue)
	c.emit(chunk.OpPop, 0, 0)
	// ascending branch
	c.emit(chunk.OpGetLocal, 0, uint16(counter))
	c.emit(chunk.OpGetLocal, 0, uint16(limitSlot))
	c.emit(chunk.OpLess, 0, 0)
	ascDone := c.emitJump(chunk.OpJump)
	if err := c.patchJump(negStepJump); err != nil {
		return err
	}
	c.emit(chunk.OpPop, 0, 0)
	// descending branch
	c.emit(chunk.OpGetLocal, 0, uint16(counter))
	c.emit(chunk.OpGetLocal, 0, uint16(limitSlot))
	c.emit(chunk.OpGreater, 0, 0)
	if err := c.patchJump(ascDone); err != nil {
		return err
	}

	exitJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emit(chunk.OpPop, 0, 0)
	if err := c.compileStmt(n.Body); err != nil {
		return err
	}
	c.emit(chunk.OpGetLocal, 0, uint16(counter))
	c.emit(chunk.OpGetLocal, 0, uint16(stepSlot))
	c.emit(chunk.OpAdd, 0, 0)
	c.emit(chunk.OpSetLocal, 0, uint16(counter))
	c.emit(chunk.OpPop, 0, 0)
	if err := c.emitLoop(loopStart); err != nil {
		return err
	}
	if err := c.patchJump(exitJump); err != nil {
		return err
	}
	c.emit(chunk.OpPop, 0, 0)

	c.loops = c.loops[:len(c.loops)-1]
	if n.Fail != nil {
		if err := c.compileStmt(n.Fail); err != nil {
			return err
		}
	}
	for _, j := range lp.breakJumps {
		if err := c.patchJump(j); err != nil {
			return err
		}
	}
	return nil
}

// compileForEach lowers 'for x in expr { ... }' onto the builtin global
// '__iterate__', which resolves expr to a zero-arg step closure (passing
// an already-compliant closure like range()/ranki()/rank() straight
// through unchanged, spec §9's "iterators as closures"). Each iteration
// calls that closure with no arguments and gets back a single value: the
// next element, or a falsy sentinel (nil) once exhausted. The Dup before
// JUMP_IF_FALSE lets that check peek the result without consuming it, so
// the truthy path only needs to pop the duplicate before binding the loop
// variable, and the exit path pops both the duplicate and the original.
func (c *Compiler) compileForEach(n *ast.ForStmt) error {
	idx := c.internString("__iterate__")
	c.emit(chunk.OpGetGlobal, 0, idx)
	if err := c.compileExpr(n.Iter); err != nil {
		return err
	}
	c.emitCall(1, 0, 0)
	iterSlot := c.addLocal("")

	lp := &loop{}
	c.loops = append(c.loops, lp)
	loopStart := len(c.chunk.Code)
	lp.continueTarget = loopStart

	c.emit(chunk.OpGetLocal, 0, uint16(iterSlot))
	c.emitCall(0, 0, 0)
	c.emit(chunk.OpDup, 0, 0)
	exitJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emit(chunk.OpPop, 0, 0) // drop the duplicate; the original becomes the loop variable
	c.beginScope()
	c.addLocal(n.Name) // the value the native pushed is now top of stack
	if err := c.compileStmt(n.Body); err != nil {
		return err
	}
	c.endScope()
	if err := c.emitLoop(loopStart); err != nil {
		return err
	}
	if err := c.patchJump(exitJump); err != nil {
		return err
	}
	c.emit(chunk.OpPop, 0, 0) // drop the falsy duplicate
	c.emit(chunk.OpPop, 0, 0) // drop the exhausted call's falsy result

	c.loops = c.loops[:len(c.loops)-1]
	if n.Fail != nil {
		if err := c.compileStmt(n.Fail); err != nil {
			return err
		}
	}
	for _, j := range lp.breakJumps {
		if err := c.patchJump(j); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) emitCall(argc byte, adjust byte, methodConst uint16) {
	c.chunk.EmitCall(chunk.OpCall, argc, adjust, methodConst, c.line)
}

// compileFuncDecl compiles 'func name(...) {...}' and 'func recv.name(...)
// {...}'. A receiver implies an implicit leading 'self' parameter (spec
// §4.5); the declared function is bound as a global (top level) or local
// the same way a VarDecl would be.
func (c *Compiler) compileFuncDecl(n *ast.FuncDecl) error {
	c.line = n.Tok.Line
	params := n.Params
	if n.Receiver != "" {
		params = append([]string{"self"}, params...)
	}
	proto, err := c.compileFunctionBody(qualifiedFuncName(n.Receiver, n.Name), params, n.UsesArgv, n.Body)
	if err != nil {
		return err
	}
	c.emitClosure(proto)
	c.declareName(n.Name)
	return nil
}

// emitClosure emits an OP_CLOSURE over the compiled function prototype:
// unlike a plain CONSTANT load, CLOSURE builds a fresh value.Func each
// time it runs, capturing this call's live upvalues (spec §4.6) instead
// of sharing one mutable Upvalues slice across every instantiation of
// the same function literal/decl.
func (c *Compiler) emitClosure(proto value.Value) {
	idx := c.chunk.AddConstant(proto)
	c.emit(chunk.OpClosure, 0, idx)
}

func qualifiedFuncName(receiver, name string) string {
	if receiver == "" {
		return name
	}
	return receiver + "." + name
}

// compileFunctionBody compiles params/body into a child chunk and
// returns a function prototype over it; the captures the child's
// addUpvalue calls recorded stay in the chunk's Upvalues list for
// OP_CLOSURE to wire at run time.
func (c *Compiler) compileFunctionBody(name string, params []string, usesArgv bool, body *ast.BlockStmt) (value.Value, error) {
	child := newChild(c)
	child.scopeDepth = 1
	for _, p := range params {
		child.addLocal(p)
	}
	if usesArgv {
		// reserves the slot right after the declared parameters; the VM's
		// call prologue fills it with a Dyay holding every argument
		// actually passed, regardless of how many named params there
		// are (spec §4.5's '...argv' trailing form).
		child.addLocal("argv")
	}
	for _, stmt := range body.Statements {
		if err := child.compileStmt(stmt); err != nil {
			return value.Value{}, err
		}
	}
	child.emitReturn()

	// No Upvalues here: this is a prototype, not a runnable closure. The
	// VM's OP_CLOSURE handler reads child.chunk.Upvalues (the capture
	// descriptor list addUpvalue recorded) to build a fresh, properly
	// captured *value.Func each time this code executes.
	fn := value.NewScriptFunc(name, len(params), usesArgv, child.chunk, nil, c.white)
	return value.NewRef(fn), nil
}

// ---- expressions ----

func (c *Compiler) compileExpr(e ast.Expr) error {
	switch n := e.(type) {
	case *ast.NilLit:
		c.line = n.Tok.Line
		c.emit(chunk.OpNil, 0, 0)
		return nil

	case *ast.BoolLit:
		c.line = n.Tok.Line
		if n.Value {
			c.emit(chunk.OpTrue, 0, 0)
		} else {
			c.emit(chunk.OpFalse, 0, 0)
		}
		return nil

	case *ast.IntLit:
		c.line = n.Tok.Line
		c.emitConstant(value.NewInt(n.Value))
		return nil

	case *ast.FloatLit:
		c.line = n.Tok.Line
		c.emitConstant(value.NewFloat(n.Value))
		return nil

	case *ast.StringLit:
		c.line = n.Tok.Line
		k := c.pool.Intern([]byte(n.Value), c.white)
		c.emitConstant(value.NewRef(k))
		return nil

	case *ast.Ident:
		c.line = n.Tok.Line
		if idx := c.resolveLocal(n.Name); idx != -1 {
			c.emit(chunk.OpGetLocal, 0, uint16(idx))
			return nil
		}
		if idx := c.resolveUpvalue(n.Name); idx != -1 {
			c.emit(chunk.OpGetUpvalue, 0, uint16(idx))
			return nil
		}
		c.emit(chunk.OpGetGlobal, 0, c.internString(n.Name))
		return nil

	case *ast.ArgvExpr:
		c.line = n.Tok.Line
		// argv is bound as a hidden local the callee prologue fills with
		// an array holding every argument actually passed.
		if idx := c.resolveLocal("argv"); idx != -1 {
			c.emit(chunk.OpGetLocal, 0, uint16(idx))
			return nil
		}
		c.emit(chunk.OpArray, 0, 0)
		return nil

	case *ast.ArrayLit:
		c.line = n.Tok.Line
		for _, el := range n.Elements {
			if err := c.compileExpr(el); err != nil {
				return err
			}
		}
		c.emit(chunk.OpArray, 0, uint16(len(n.Elements)))
		return nil

	case *ast.MapLit:
		c.line = n.Tok.Line
		for _, ent := range n.Entries {
			if err := c.compileExpr(ent.Key); err != nil {
				return err
			}
			if err := c.compileExpr(ent.Value); err != nil {
				return err
			}
		}
		c.emit(chunk.OpMap, 0, uint16(len(n.Entries)))
		return nil

	case *ast.SkipListLit:
		return c.compileSkipListLit(n)

	case *ast.FuncLit:
		c.line = n.Tok.Line
		proto, err := c.compileFunctionBody("<anonymous>", n.Params, n.UsesArgv, n.Body)
		if err != nil {
			return err
		}
		c.emitClosure(proto)
		return nil

	case *ast.UnaryExpr:
		return c.compileUnary(n)

	case *ast.BinaryExpr:
		return c.compileBinary(n)

	case *ast.FieldExpr:
		c.line = n.Tok.Line
		if err := c.compileExpr(n.X); err != nil {
			return err
		}
		c.emit(chunk.OpGetField, 0, c.internString(n.Field))
		return nil

	case *ast.IndexExpr:
		c.line = n.Tok.Line
		if err := c.compileExpr(n.X); err != nil {
			return err
		}
		if err := c.compileExpr(n.Index); err != nil {
			return err
		}
		c.emit(chunk.OpGetIndex, 0, 0)
		return nil

	case *ast.CallExpr:
		return c.compileCall(n)

	case *ast.SelfCallExpr:
		return c.compileSelfCall(n)

	default:
		return fmt.Errorf("compiler: unhandled expression %T", e)
	}
}

// flag byte for a skiplist literal's ordering mode, read by OP_SKIPLIST
// to pick the runtime Order the container is built with (spec §4.3/§4.5).
const (
	sklFlagAsc    = 0
	sklFlagDesc   = 1
	sklFlagCustom = 2
)

func (c *Compiler) compileSkipListLit(n *ast.SkipListLit) error {
	c.line = n.Tok.Line
	flag := byte(sklFlagAsc)
	switch n.Order {
	case ast.OrderDescending:
		flag = sklFlagDesc
	case ast.OrderCustom:
		flag = sklFlagCustom
		if err := c.compileExpr(n.Comparator); err != nil {
			return err
		}
	}
	for _, ent := range n.Entries {
		if err := c.compileExpr(ent.Key); err != nil {
			return err
		}
		if err := c.compileExpr(ent.Value); err != nil {
			return err
		}
	}
	c.emit(chunk.OpSkiplist, flag, uint16(len(n.Entries)))
	return nil
}

func (c *Compiler) compileUnary(n *ast.UnaryExpr) error {
	c.line = n.Tok.Line
	if n.Op == "typeof" {
		if err := c.compileExpr(n.X); err != nil {
			return err
		}
		c.emit(chunk.OpLen, 1, 0) // flag 1 selects the typeof variant in the vm dispatch
		return nil
	}
	if err := c.compileExpr(n.X); err != nil {
		return err
	}
	switch n.Op {
	case "-":
		c.emit(chunk.OpNeg, 0, 0)
	case "not", "!":
		c.emit(chunk.OpNot, 0, 0)
	case "~":
		c.emit(chunk.OpBitNot, 0, 0)
	default:
		return fmt.Errorf("compiler: unsupported unary operator %q", n.Op)
	}
	return nil
}

func (c *Compiler) compileBinary(n *ast.BinaryExpr) error {
	c.line = n.Tok.Line

	// short-circuiting forms compile their own jump, not an opcode pair.
	switch n.Op {
	case "and":
		if err := c.compileExpr(n.Left); err != nil {
			return err
		}
		skip := c.emitJump(chunk.OpJumpIfFalse)
		c.emit(chunk.OpPop, 0, 0)
		if err := c.compileExpr(n.Right); err != nil {
			return err
		}
		return c.patchJump(skip)
	case "or":
		if err := c.compileExpr(n.Left); err != nil {
			return err
		}
		skip := c.emitJump(chunk.OpJumpIfTrue)
		c.emit(chunk.OpPop, 0, 0)
		if err := c.compileExpr(n.Right); err != nil {
			return err
		}
		return c.patchJump(skip)
	}

	// '|>' splices the left operand in as the right-hand call's first
	// argument: 'a |> f(b)' compiles like 'f(a, b)', and the bare-callee
	// form 'a |> f' compiles like 'f(a)'.
	if n.Op == "|>" {
		return c.compilePipe(n)
	}

	if err := c.compileExpr(n.Left); err != nil {
		return err
	}
	if err := c.compileExpr(n.Right); err != nil {
		return err
	}
	switch n.Op {
	case "+":
		c.emit(chunk.OpAdd, 0, 0)
	case "-":
		c.emit(chunk.OpSub, 0, 0)
	case "*":
		c.emit(chunk.OpMul, 0, 0)
	case "/":
		c.emit(chunk.OpDiv, 0, 0)
	case "%":
		c.emit(chunk.OpMod, 0, 0)
	case "..":
		c.emit(chunk.OpAdd, 1, 0) // flag 1 selects string-concat semantics
	case "<":
		c.emit(chunk.OpLess, 0, 0)
	case ">":
		c.emit(chunk.OpGreater, 0, 0)
	case "<=":
		c.emit(chunk.OpGreater, 0, 0)
		c.emit(chunk.OpNot, 0, 0)
	case ">=":
		c.emit(chunk.OpLess, 0, 0)
		c.emit(chunk.OpNot, 0, 0)
	case "==":
		c.emit(chunk.OpEqual, 0, 0)
	case "!=", "~=":
		c.emit(chunk.OpEqual, 0, 0)
		c.emit(chunk.OpNot, 0, 0)
	case "&":
		c.emit(chunk.OpBitAnd, 0, 0)
	case "|":
		c.emit(chunk.OpBitOr, 0, 0)
	case "^":
		c.emit(chunk.OpBitXor, 0, 0)
	case "<<":
		c.emit(chunk.OpShl, 0, 0)
	case ">>":
		c.emit(chunk.OpShr, 0, 0)
	default:
		return fmt.Errorf("compiler: unsupported binary operator %q", n.Op)
	}
	return nil
}

// compilePipe lowers 'a |> f(b, c)' into the same bytecode as 'f(a, b, c)':
// the callee is resolved first (so a side-effecting callee expression runs
// before the piped value, matching ordinary call-expression evaluation
// order), then the piped value is pushed ahead of the call's own argument
// list.
func (c *Compiler) compilePipe(n *ast.BinaryExpr) error {
	call, ok := n.Right.(*ast.CallExpr)
	if !ok {
		// bare-callee form: 'a |> f' compiles like 'f(a)'.
		if err := c.compileExpr(n.Right); err != nil {
			return err
		}
		if err := c.compileExpr(n.Left); err != nil {
			return err
		}
		c.emitCall(1, 0, 0)
		return nil
	}
	if err := c.compileExpr(call.Fn); err != nil {
		return err
	}
	if err := c.compileExpr(n.Left); err != nil {
		return err
	}
	for _, a := range call.Args {
		if err := c.compileExpr(a); err != nil {
			return err
		}
	}
	argc := len(call.Args) + 1
	if argc > 255 {
		return fmt.Errorf("compiler: too many call arguments (%d, max 255) at line %d", argc, n.Tok.Line)
	}
	c.emitCall(byte(argc), 0, 0)
	return nil
}

func (c *Compiler) compileCall(n *ast.CallExpr) error {
	c.line = n.Tok.Line
	if err := c.compileExpr(n.Fn); err != nil {
		return err
	}
	for _, a := range n.Args {
		if err := c.compileExpr(a); err != nil {
			return err
		}
	}
	if len(n.Args) > 255 {
		return fmt.Errorf("compiler: too many call arguments (%d, max 255) at line %d", len(n.Args), n.Tok.Line)
	}
	c.emitCall(byte(len(n.Args)), 0, 0)
	return nil
}

// compileSelfCall compiles 'recv:method(args)' into a single SELF_CALL
// that fetches the method off recv's metatable/fields and calls it with
// recv prepended as the implicit 'self' argument (spec §4.5).
func (c *Compiler) compileSelfCall(n *ast.SelfCallExpr) error {
	c.line = n.Tok.Line
	if err := c.compileExpr(n.Recv); err != nil {
		return err
	}
	for _, a := range n.Args {
		if err := c.compileExpr(a); err != nil {
			return err
		}
	}
	if len(n.Args) > 255 {
		return fmt.Errorf("compiler: too many call arguments (%d, max 255) at line %d", len(n.Args), n.Tok.Line)
	}
	methodIdx := c.internString(n.Method)
	c.chunk.EmitCall(chunk.OpSelfCall, byte(len(n.Args)), 0, methodIdx, c.line)
	return nil
}
