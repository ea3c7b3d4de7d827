package compiler

import "testing"

func parseModule(t *testing.T, src string) *Module {
	t.Helper()
	p, err := NewParser(src)
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	m, err := p.ParseModule()
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return m
}

func TestParseLetAndTrailingExpression(t *testing.T) {
	m := parseModule(t, "let x = 1; x + 2")
	if len(m.Statements) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(m.Statements))
	}
	let, ok := m.Statements[0].(*LetStatement)
	if !ok || let.Name != "x" {
		t.Fatalf("expected LetStatement(x), got %#v", m.Statements[0])
	}
	bin, ok := m.Return.(*BinaryExpr)
	if !ok || bin.Op != OpAdd {
		t.Fatalf("expected trailing Add expression, got %#v", m.Return)
	}
}

func TestParseBinaryPrecedence(t *testing.T) {
	m := parseModule(t, "1 + 2 * 3")
	bin, ok := m.Return.(*BinaryExpr)
	if !ok || bin.Op != OpAdd {
		t.Fatalf("expected outer Add, got %#v", m.Return)
	}
	right, ok := bin.Right.(*BinaryExpr)
	if !ok || right.Op != OpMul {
		t.Fatalf("expected Mul nested on the right, got %#v", bin.Right)
	}
}

func TestParseIfElse(t *testing.T) {
	m := parseModule(t, "if x { 1 } else { 2 }")
	ifExpr, ok := m.Return.(*IfExpr)
	if !ok {
		t.Fatalf("expected IfExpr, got %#v", m.Return)
	}
	if ifExpr.Then.Return.(*IntLiteral).Value != 1 {
		t.Fatalf("expected then-branch 1")
	}
	if ifExpr.Else.Return.(*IntLiteral).Value != 2 {
		t.Fatalf("expected else-branch 2")
	}
}

func TestParseElseIfChain(t *testing.T) {
	m := parseModule(t, "if a { 1 } else if b { 2 } else { 3 }")
	outer := m.Return.(*IfExpr)
	nested, ok := outer.Else.Return.(*IfExpr)
	if !ok {
		t.Fatalf("expected nested IfExpr in else branch, got %#v", outer.Else.Return)
	}
	if nested.Else.Return.(*IntLiteral).Value != 3 {
		t.Fatalf("expected innermost else 3")
	}
}

func TestParseFnLiteralAndCall(t *testing.T) {
	m := parseModule(t, "let f = fn(a, b) { a + b }; f(1, 2)")
	call, ok := m.Return.(*CallExpr)
	if !ok || len(call.Args) != 2 {
		t.Fatalf("expected a 2-arg call, got %#v", m.Return)
	}
	fnLit := m.Statements[0].(*LetStatement).Value.(*FnLiteral)
	if len(fnLit.Params) != 2 || fnLit.Params[0] != "a" || fnLit.Params[1] != "b" {
		t.Fatalf("expected params [a b], got %v", fnLit.Params)
	}
}

func TestParseListAndIndex(t *testing.T) {
	m := parseModule(t, "[1, 2, 3][0]")
	idx, ok := m.Return.(*IndexExpr)
	if !ok {
		t.Fatalf("expected IndexExpr, got %#v", m.Return)
	}
	list, ok := idx.Object.(*ListLiteral)
	if !ok || len(list.Items) != 3 {
		t.Fatalf("expected a 3-item list, got %#v", idx.Object)
	}
}

func TestParseMapLiteralWithBareKeys(t *testing.T) {
	m := parseModule(t, `{op: "sleep", millis: 5}`)
	mapLit, ok := m.Return.(*MapLiteral)
	if !ok || len(mapLit.Pairs) != 2 {
		t.Fatalf("expected a 2-pair map, got %#v", m.Return)
	}
	if mapLit.Pairs[0].Key.(*StringLiteral).Value != "op" {
		t.Fatalf("expected bare key 'op' desugared to a string literal")
	}
}

func TestParseAssignToIndex(t *testing.T) {
	m := parseModule(t, "let l = [1]; l[0] = 9")
	assign, ok := m.Return.(*AssignExpr)
	if !ok {
		t.Fatalf("expected AssignExpr, got %#v", m.Return)
	}
	if _, ok := assign.Target.(*IndexExpr); !ok {
		t.Fatalf("expected index target, got %#v", assign.Target)
	}
}

func TestParseSpawnAndYield(t *testing.T) {
	m := parseModule(t, "let f = fn() { yield 1 }; spawn f")
	spawn, ok := m.Return.(*SpawnExpr)
	if !ok {
		t.Fatalf("expected SpawnExpr, got %#v", m.Return)
	}
	if _, ok := spawn.Callee.(*Identifier); !ok {
		t.Fatalf("expected identifier callee, got %#v", spawn.Callee)
	}
}
