package compiler

import (
	"testing"

	"github.com/ravern/doji/vm"
)

func evalSource(t *testing.T, src string) vm.Value {
	t.Helper()
	fn, err := Compile(src, nil)
	if err != nil {
		t.Fatalf("compile %q: %v", src, err)
	}
	h := vm.NewHeap(0)
	closure := vm.NewClosure(h, fn, nil).AsClosure()
	fib := vm.NewFiber(h, closure, nil)
	for {
		res := fib.Step()
		switch {
		case res.Err != nil:
			t.Fatalf("run %q: %v", src, res.Err)
		case res.Returned:
			return res.Value
		case res.Yielded:
			t.Fatalf("unexpected yield running %q", src)
		}
	}
}

func TestCodegenArithmetic(t *testing.T) {
	v := evalSource(t, "1 + 2 * 3")
	if v.Kind() != vm.KindInt || v.AsInt() != 7 {
		t.Fatalf("expected Int(7), got %s", v.DebugString())
	}
}

func TestCodegenLetAndIf(t *testing.T) {
	v := evalSource(t, `
		let x = 10;
		if x > 5 { "big" } else { "small" }
	`)
	if v.Kind() != vm.KindString || v.AsString().Data != "big" {
		t.Fatalf("expected String(big), got %s", v.DebugString())
	}
}

func TestCodegenClosureCounter(t *testing.T) {
	v := evalSource(t, `
		let make_counter = fn() {
			let n = 0;
			fn() {
				n = n + 1;
				n
			}
		};
		let counter = make_counter();
		counter();
		counter();
		counter()
	`)
	if v.Kind() != vm.KindInt || v.AsInt() != 3 {
		t.Fatalf("expected Int(3) after three calls, got %s", v.DebugString())
	}
}

func TestCodegenListIndexAndAssign(t *testing.T) {
	v := evalSource(t, `
		let l = [1, 2, 3];
		l[1] = 99;
		l[1]
	`)
	if v.Kind() != vm.KindInt || v.AsInt() != 99 {
		t.Fatalf("expected Int(99), got %s", v.DebugString())
	}
}

func TestCodegenMapLiteral(t *testing.T) {
	v := evalSource(t, `{a: 1, b: 2}["b"]`)
	if v.Kind() != vm.KindInt || v.AsInt() != 2 {
		t.Fatalf("expected Int(2), got %s", v.DebugString())
	}
}

func TestCodegenUndefinedVariableIsCompileError(t *testing.T) {
	if _, err := Compile("x + 1", nil); err == nil {
		t.Fatalf("expected compile error for undefined variable")
	}
}

func TestCodegenSpawnAndYield(t *testing.T) {
	fn, err := Compile(`
		let worker = fn() { yield 42 };
		spawn worker
	`, nil)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	h := vm.NewHeap(0)
	closure := vm.NewClosure(h, fn, nil).AsClosure()
	fib := vm.NewFiber(h, closure, nil)
	// Step runs one instruction at a time, so step each fiber until it stops
	// continuing.
	res := fib.Step()
	for res.Continue {
		res = fib.Step()
	}
	if !res.Returned || res.Value.Kind() != vm.KindFiber {
		t.Fatalf("expected the root fiber to return a spawned Fiber value, got %+v", res)
	}
	child := res.Value.AsFiber().Fiber
	childRes := child.Step()
	for childRes.Continue {
		childRes = child.Step()
	}
	if !childRes.Yielded || childRes.OpPayload.AsInt() != 42 {
		t.Fatalf("expected spawned fiber to yield 42, got %+v", childRes)
	}
}
