package compiler

import (
	"fmt"

	"github.com/ravern/doji/bytecode"
)

// Compile parses and compiles Dōji source text into a top-level Function of
// arity 0, grounded in the teacher's single-pass codegen.go (one AST walk,
// no separate IR) but retargeted from register-destination emission to the
// stack-machine bytecode package defines.
//
// globals names the default environment's bindings (stdlib.GlobalNames(),
// typically): the root scope pre-seeds them as resolvable identifiers at
// fixed upvalue indices, even though the returned Function's root closure
// is never built via the CLOSURE opcode — the embedder constructs it
// directly with stdlib.Values(heap) as the upvalues slice, in the same
// order, so the indices line up.
func Compile(source string, globals []string) (*bytecode.Function, error) {
	p, err := NewParser(source)
	if err != nil {
		return nil, err
	}
	module, err := p.ParseModule()
	if err != nil {
		return nil, err
	}
	c := &compilerState{}
	top := c.newScope(nil, "main", 0)
	top.upvalNames = append([]string(nil), globals...)
	top.upvalDescs = make([]bytecode.UpvalueDesc, len(globals))
	if err := c.compileFunctionBody(module, top); err != nil {
		return nil, err
	}
	return top.asm.FinishWithUpvalues(top.upvalDescs)
}

// compilerState holds cross-scope bookkeeping (just the label counter) for
// one Compile call.
type compilerState struct {
	labelCounter int
}

func (c *compilerState) newLabel(prefix string) string {
	c.labelCounter++
	return fmt.Sprintf("%s_%d", prefix, c.labelCounter)
}

// funcScope tracks one function's local-variable bindings and the upvalue
// descriptors it has resolved against its enclosing scope so far, mirroring
// the Lua-style upvalue resolution spec.md §4.3 describes (Local captures an
// enclosing frame slot directly; Outer forwards an enclosing closure's own
// upvalue).
type funcScope struct {
	compiler *compilerState
	parent   *funcScope
	asm      *bytecode.Assembler

	locals map[string]int

	upvalNames []string
	upvalDescs []bytecode.UpvalueDesc
}

func (c *compilerState) newScope(parent *funcScope, name string, arity int) *funcScope {
	return &funcScope{
		compiler: c,
		parent:   parent,
		asm:      bytecode.NewAssembler(name, arity),
		locals:   make(map[string]int),
	}
}

func (s *funcScope) declareLocal(name string) int {
	slot := s.asm.AllocLocal()
	s.locals[name] = slot
	return slot
}

// snapshot/restore give if/fn blocks lexical scoping: bindings declared
// inside a block stop being visible once it ends, even though their stack
// slots remain permanently reserved (no slot reuse, the same tradeoff the
// teacher's flat frame layout makes).
func (s *funcScope) snapshot() map[string]int {
	cp := make(map[string]int, len(s.locals))
	for k, v := range s.locals {
		cp[k] = v
	}
	return cp
}

func (s *funcScope) restore(saved map[string]int) { s.locals = saved }

func (s *funcScope) resolveLocal(name string) (int, bool) {
	slot, ok := s.locals[name]
	return slot, ok
}

// resolveUpvalue finds name in an enclosing scope and threads an upvalue
// descriptor down to s, adding one at every level in between.
func (s *funcScope) resolveUpvalue(name string) (int, bool) {
	if s.parent == nil {
		// The root scope's own upvalue list is pre-seeded with the default
		// global environment's names (see Compile), not resolved via a
		// parent chain.
		for i, n := range s.upvalNames {
			if n == name {
				return i, true
			}
		}
		return 0, false
	}
	if slot, ok := s.parent.resolveLocal(name); ok {
		return s.addUpvalue(name, bytecode.UpvalueDesc{Source: bytecode.UpvalLocal, Index: slot}), true
	}
	if idx, ok := s.parent.resolveUpvalue(name); ok {
		return s.addUpvalue(name, bytecode.UpvalueDesc{Source: bytecode.UpvalOuter, Index: idx}), true
	}
	return 0, false
}

func (s *funcScope) addUpvalue(name string, desc bytecode.UpvalueDesc) int {
	for i, n := range s.upvalNames {
		if n == name {
			return i
		}
	}
	s.upvalNames = append(s.upvalNames, name)
	s.upvalDescs = append(s.upvalDescs, desc)
	return len(s.upvalDescs) - 1
}

// compileFunctionBody compiles a function's statements and trailing
// expression, ending in an explicit RETURN (the trailing expression's value,
// or Nil if the body ends in a statement).
func (c *compilerState) compileFunctionBody(m *Module, s *funcScope) error {
	for _, stmt := range m.Statements {
		if err := c.compileStatement(stmt, s); err != nil {
			return err
		}
	}
	if m.Return != nil {
		if err := c.compileExpression(m.Return, s); err != nil {
			return err
		}
	} else {
		s.asm.Emit(bytecode.NIL, 0)
	}
	s.asm.Emit(bytecode.RETURN, 0)
	return nil
}

// compileBlockExpr compiles a block used as an expression (if/else bodies):
// its statements run for effect, and exactly one value — the trailing
// expression, or Nil — is left on the stack. Declarations made inside do
// not leak into the enclosing scope.
func (c *compilerState) compileBlockExpr(m *Module, s *funcScope) error {
	saved := s.snapshot()
	defer s.restore(saved)

	for _, stmt := range m.Statements {
		if err := c.compileStatement(stmt, s); err != nil {
			return err
		}
	}
	if m.Return != nil {
		return c.compileExpression(m.Return, s)
	}
	s.asm.Emit(bytecode.NIL, 0)
	return nil
}

func (c *compilerState) compileStatement(stmt Statement, s *funcScope) error {
	switch st := stmt.(type) {
	case *LetStatement:
		if err := c.compileExpression(st.Value, s); err != nil {
			return err
		}
		slot := s.declareLocal(st.Name)
		s.asm.Emit(bytecode.STORE, int32(slot))
		return nil
	case *ReturnStatement:
		if st.Value != nil {
			if err := c.compileExpression(st.Value, s); err != nil {
				return err
			}
		} else {
			s.asm.Emit(bytecode.NIL, 0)
		}
		s.asm.Emit(bytecode.RETURN, 0)
		return nil
	case *ExprStatement:
		if err := c.compileExpression(st.Value, s); err != nil {
			return err
		}
		s.asm.Emit(bytecode.POP, 0)
		return nil
	default:
		return fmt.Errorf("compiler: unhandled statement type %T", stmt)
	}
}

func (c *compilerState) compileExpression(expr Expression, s *funcScope) error {
	switch e := expr.(type) {
	case *NilLiteral:
		s.asm.Emit(bytecode.NIL, 0)
	case *BoolLiteral:
		if e.Value {
			s.asm.Emit(bytecode.TRUE, 0)
		} else {
			s.asm.Emit(bytecode.FALSE, 0)
		}
	case *IntLiteral:
		idx := s.asm.AddConstant(bytecode.ConstantInt(e.Value))
		s.asm.Emit(bytecode.CONST, int32(idx))
	case *FloatLiteral:
		idx := s.asm.AddConstant(bytecode.ConstantFloat(e.Value))
		s.asm.Emit(bytecode.CONST, int32(idx))
	case *StringLiteral:
		idx := s.asm.AddConstant(bytecode.ConstantString(e.Value))
		s.asm.Emit(bytecode.CONST, int32(idx))
	case *Identifier:
		return c.compileIdentLoad(e.Name, s)
	case *ListLiteral:
		for _, item := range e.Items {
			if err := c.compileExpression(item, s); err != nil {
				return err
			}
		}
		s.asm.Emit(bytecode.LIST, int32(len(e.Items)))
	case *MapLiteral:
		for _, pair := range e.Pairs {
			if err := c.compileExpression(pair.Key, s); err != nil {
				return err
			}
			if err := c.compileExpression(pair.Value, s); err != nil {
				return err
			}
		}
		s.asm.Emit(bytecode.MAP, int32(len(e.Pairs)))
	case *FnLiteral:
		return c.compileFnLiteral(e, s)
	case *BinaryExpr:
		if err := c.compileExpression(e.Left, s); err != nil {
			return err
		}
		if err := c.compileExpression(e.Right, s); err != nil {
			return err
		}
		s.asm.Emit(binaryOpcode(e.Op), 0)
	case *UnaryExpr:
		if err := c.compileExpression(e.Operand, s); err != nil {
			return err
		}
		if e.Op == OpNeg {
			s.asm.Emit(bytecode.NEG, 0)
		} else {
			s.asm.Emit(bytecode.NOT, 0)
		}
	case *CallExpr:
		if err := c.compileExpression(e.Callee, s); err != nil {
			return err
		}
		for _, arg := range e.Args {
			if err := c.compileExpression(arg, s); err != nil {
				return err
			}
		}
		s.asm.Emit(bytecode.CALL, int32(len(e.Args)))
	case *IndexExpr:
		if err := c.compileExpression(e.Object, s); err != nil {
			return err
		}
		if err := c.compileExpression(e.Key, s); err != nil {
			return err
		}
		s.asm.Emit(bytecode.OBJ_GET, 0)
	case *AssignExpr:
		return c.compileAssign(e, s)
	case *IfExpr:
		return c.compileIf(e, s)
	case *SpawnExpr:
		if err := c.compileExpression(e.Callee, s); err != nil {
			return err
		}
		s.asm.Emit(bytecode.SPAWN, 0)
	case *YieldExpr:
		if err := c.compileExpression(e.Value, s); err != nil {
			return err
		}
		s.asm.Emit(bytecode.YIELD, 0)
	default:
		return fmt.Errorf("compiler: unhandled expression type %T", expr)
	}
	return nil
}

func (c *compilerState) compileIdentLoad(name string, s *funcScope) error {
	if slot, ok := s.resolveLocal(name); ok {
		s.asm.Emit(bytecode.LOAD, int32(slot))
		return nil
	}
	if idx, ok := s.resolveUpvalue(name); ok {
		s.asm.Emit(bytecode.UPVAL_LOAD, int32(idx))
		return nil
	}
	return fmt.Errorf("compiler: undefined variable %q", name)
}

func (c *compilerState) compileAssign(e *AssignExpr, s *funcScope) error {
	switch target := e.Target.(type) {
	case *Identifier:
		if err := c.compileExpression(e.Value, s); err != nil {
			return err
		}
		s.asm.Emit(bytecode.DUP, 0)
		if slot, ok := s.resolveLocal(target.Name); ok {
			s.asm.Emit(bytecode.STORE, int32(slot))
			return nil
		}
		if idx, ok := s.resolveUpvalue(target.Name); ok {
			s.asm.Emit(bytecode.UPVAL_STORE, int32(idx))
			return nil
		}
		return fmt.Errorf("compiler: undefined variable %q", target.Name)
	case *IndexExpr:
		if err := c.compileExpression(target.Object, s); err != nil {
			return err
		}
		if err := c.compileExpression(target.Key, s); err != nil {
			return err
		}
		if err := c.compileExpression(e.Value, s); err != nil {
			return err
		}
		// OBJ_SET leaves the container (not the assigned value) on the
		// stack, so `list[i] = v` evaluates to the list, not v.
		s.asm.Emit(bytecode.OBJ_SET, 0)
		return nil
	default:
		return fmt.Errorf("compiler: invalid assignment target %T", e.Target)
	}
}

func (c *compilerState) compileIf(e *IfExpr, s *funcScope) error {
	if err := c.compileExpression(e.Condition, s); err != nil {
		return err
	}
	elseLabel := c.newLabel("else")
	endLabel := c.newLabel("endif")

	s.asm.Emit(bytecode.TEST, 0)
	s.asm.EmitJump(bytecode.JUMP, elseLabel)
	if err := c.compileBlockExpr(e.Then, s); err != nil {
		return err
	}
	s.asm.EmitJump(bytecode.JUMP, endLabel)
	s.asm.Label(elseLabel)
	if e.Else != nil {
		if err := c.compileBlockExpr(e.Else, s); err != nil {
			return err
		}
	} else {
		s.asm.Emit(bytecode.NIL, 0)
	}
	s.asm.Label(endLabel)
	return nil
}

func (c *compilerState) compileFnLiteral(e *FnLiteral, s *funcScope) error {
	child := s.compiler.newScope(s, "", len(e.Params))
	for i, p := range e.Params {
		child.locals[p] = i
	}
	if err := s.compiler.compileFunctionBody(e.Body, child); err != nil {
		return err
	}
	fn, err := child.asm.FinishWithUpvalues(child.upvalDescs)
	if err != nil {
		return err
	}
	idx := s.asm.AddConstant(bytecode.ConstantFn(fn))
	s.asm.Emit(bytecode.CLOSURE, int32(idx))
	return nil
}

func binaryOpcode(op BinaryOp) bytecode.Opcode {
	switch op {
	case OpAdd:
		return bytecode.ADD
	case OpSub:
		return bytecode.SUB
	case OpMul:
		return bytecode.MUL
	case OpDiv:
		return bytecode.DIV
	case OpRem:
		return bytecode.REM
	case OpEq:
		return bytecode.EQ
	case OpNeq:
		return bytecode.NEQ
	case OpGt:
		return bytecode.GT
	case OpGte:
		return bytecode.GTE
	case OpLt:
		return bytecode.LT
	case OpLte:
		return bytecode.LTE
	case OpAnd:
		return bytecode.AND
	case OpOr:
		return bytecode.OR
	case OpBitAnd:
		return bytecode.BITAND
	case OpBitOr:
		return bytecode.BITOR
	case OpBitXor:
		return bytecode.BITXOR
	case OpShl:
		return bytecode.SHL
	case OpShr:
		return bytecode.SHR
	default:
		panic(fmt.Sprintf("compiler: unhandled binary op %d", op))
	}
}
