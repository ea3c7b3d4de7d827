package vm

import (
	"testing"

	fuzz "github.com/google/gofuzz"

	"github.com/ravern/doji/bytecode"
)

func run(t *testing.T, fn *bytecode.Function) (Value, error) {
	t.Helper()
	h := NewHeap(0)
	closure := &ClosureObj{Fn: fn}
	fib := NewFiber(h, closure, nil)
	for {
		res := fib.Step()
		switch {
		case res.Err != nil:
			return Nil, res.Err
		case res.Returned:
			return res.Value, nil
		case res.Yielded:
			t.Fatalf("unexpected yield in run()")
		}
	}
}

func buildFn(t *testing.T, build func(a *bytecode.Assembler)) *bytecode.Function {
	t.Helper()
	a := bytecode.NewAssembler("test", 0)
	build(a)
	fn, err := a.Finish()
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	return fn
}

// add_two_ints
func TestAddTwoInts(t *testing.T) {
	fn := buildFn(t, func(a *bytecode.Assembler) {
		a.Emit(bytecode.INT, 2)
		a.Emit(bytecode.INT, 3)
		a.Emit(bytecode.ADD, 0)
		a.Emit(bytecode.RETURN, 0)
	})
	v, err := run(t, fn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Kind() != KindInt || v.AsInt() != 5 {
		t.Fatalf("expected Int(5), got %s", v.DebugString())
	}
}

// mixed_arith: Int + Float promotes to Float.
func TestMixedArithPromotesToFloat(t *testing.T) {
	fn := buildFn(t, func(a *bytecode.Assembler) {
		fIdx := a.AddConstant(bytecode.ConstantFloat(1.5))
		a.Emit(bytecode.INT, 2)
		a.Emit(bytecode.CONST, int32(fIdx))
		a.Emit(bytecode.ADD, 0)
		a.Emit(bytecode.RETURN, 0)
	})
	v, err := run(t, fn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Kind() != KindFloat || v.AsFloat() != 3.5 {
		t.Fatalf("expected Float(3.5), got %s", v.DebugString())
	}
}

// type_error_add_bool
func TestAddBoolIsWrongType(t *testing.T) {
	fn := buildFn(t, func(a *bytecode.Assembler) {
		a.Emit(bytecode.INT, 1)
		a.Emit(bytecode.TRUE, 0)
		a.Emit(bytecode.ADD, 0)
		a.Emit(bytecode.RETURN, 0)
	})
	_, err := run(t, fn)
	if err == nil {
		t.Fatalf("expected WrongType error")
	}
}

func TestEqualityCrossType(t *testing.T) {
	fn := buildFn(t, func(a *bytecode.Assembler) {
		a.Emit(bytecode.INT, 3)
		fIdx := a.AddConstant(bytecode.ConstantFloat(3.0))
		a.Emit(bytecode.CONST, int32(fIdx))
		a.Emit(bytecode.EQ, 0)
		a.Emit(bytecode.RETURN, 0)
	})
	v, err := run(t, fn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Kind() != KindBool || !v.AsBool() {
		t.Fatalf("expected Bool(true), got %s", v.DebugString())
	}
}

func TestListSetExtendsWithNilFill(t *testing.T) {
	h := NewHeap(0)
	l := NewList(h, []Value{Int(1)})
	fib := NewFiber(h, &ClosureObj{Fn: &bytecode.Function{NumLocals: 0}}, nil)
	fib.push(l)
	fib.push(Int(3))
	fib.push(Int(99))
	if err := fib.objSet(); err != nil {
		t.Fatalf("objSet: %v", err)
	}
	items := l.AsList().Items
	if len(items) != 4 {
		t.Fatalf("expected length 4, got %d", len(items))
	}
	if !items[1].IsNil() || !items[2].IsNil() {
		t.Fatalf("expected Nil fills at indices 1,2, got %v %v", items[1], items[2])
	}
	if items[3].AsInt() != 99 {
		t.Fatalf("expected 99 at index 3, got %v", items[3])
	}
}

func TestMapInsertAndOverwrite(t *testing.T) {
	h := NewHeap(0)
	m := NewMap(h).AsMap()
	k1 := NewString(h, "a")
	k2 := NewString(h, "a") // distinct allocation, same content
	m.Set(k1, Int(1))
	if m.Len() != 1 {
		t.Fatalf("expected size 1 after first insert, got %d", m.Len())
	}
	m.Set(k2, Int(2))
	if m.Len() != 1 {
		t.Fatalf("expected overwrite via content equality, got size %d", m.Len())
	}
	v, ok := m.Get(k1)
	if !ok || v.AsInt() != 2 {
		t.Fatalf("expected overwritten value 2, got %v (ok=%v)", v, ok)
	}
}

func TestClosureCapturesSharedUpvalue(t *testing.T) {
	h := NewHeap(0)

	inner := bytecode.NewAssembler("inner", 0)
	inner.Emit(bytecode.UPVAL_LOAD, 0)
	inner.Emit(bytecode.INT, 1)
	inner.Emit(bytecode.ADD, 0)
	inner.Emit(bytecode.DUP, 0)
	inner.Emit(bytecode.UPVAL_STORE, 0)
	inner.Emit(bytecode.RETURN, 0)
	innerFn, err := inner.FinishWithUpvalues([]bytecode.UpvalueDesc{{Source: bytecode.UpvalLocal, Index: 0}})
	if err != nil {
		t.Fatalf("finish inner: %v", err)
	}

	outer := bytecode.NewAssembler("outer", 0)
	outer.AllocLocal() // slot 0: counter
	outer.Emit(bytecode.INT, 0)
	outer.Emit(bytecode.STORE, 0)
	fnIdx := outer.AddConstant(bytecode.ConstantFn(innerFn))
	outer.Emit(bytecode.CLOSURE, int32(fnIdx))
	outer.Emit(bytecode.CALL, 0)
	outer.Emit(bytecode.POP, 0)
	outer.Emit(bytecode.LOAD, 0)
	outer.Emit(bytecode.RETURN, 0)
	outerFn, err := outer.Finish()
	if err != nil {
		t.Fatalf("finish outer: %v", err)
	}

	v, err := run(t, outerFn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Kind() != KindInt || v.AsInt() != 1 {
		t.Fatalf("expected counter Int(1) after one call, got %s", v.DebugString())
	}
}

func TestWeakRefDiesAfterCollect(t *testing.T) {
	h := NewHeap(0)
	s := NewString(h, "transient")
	wr := NewWeakRef(s)
	if !wr.Alive() {
		t.Fatalf("expected weak ref alive before collection")
	}
	h.Collect(nil, nil)
	if wr.Alive() {
		t.Fatalf("expected weak ref dead after unreachable collection")
	}
}

func TestYieldSuspendsFiber(t *testing.T) {
	fn := buildFn(t, func(a *bytecode.Assembler) {
		a.Emit(bytecode.INT, 42)
		a.Emit(bytecode.YIELD, 0)
		a.Emit(bytecode.RETURN, 0)
	})
	h := NewHeap(0)
	fib := NewFiber(h, &ClosureObj{Fn: fn}, nil)
	res := fib.Step() // INT 42
	if !res.Continue {
		t.Fatalf("expected INT to continue, got %+v", res)
	}
	res = fib.Step()
	if !res.Yielded || res.OpPayload.AsInt() != 42 {
		t.Fatalf("expected Yielded with payload 42, got %+v", res)
	}
	if fib.State != FiberPending {
		t.Fatalf("expected FiberPending, got %s", fib.State)
	}
}

// maxValidOpcode bounds the opcodes the fuzz test below picks from; YIELD
// is the last one defined in bytecode/opcode.go.
const maxValidOpcode = int(bytecode.YIELD) + 1

// TestFuzzRandomInstructionStreamsNeverPanic generates random, not
// necessarily well-formed instruction streams and single-steps a fiber
// through each. Step must always resolve every fault (stack underflow, a
// bad constant/upvalue index, an out-of-range jump) to a StepResult.Err
// rather than a Go panic — the interpreter has no unsafe indexing that a
// malformed-but-in-range program should be able to trip.
func TestFuzzRandomInstructionStreamsNeverPanic(t *testing.T) {
	f := fuzz.New().NilChance(0)
	seedBytes := make([]byte, 64)

	for trial := 0; trial < 200; trial++ {
		f.Fuzz(&seedBytes)

		n := len(seedBytes) / 2
		if n == 0 {
			continue
		}
		code := make([]bytecode.Instruction, n)
		for i := 0; i < n; i++ {
			op := bytecode.Opcode(int(seedBytes[2*i]) % maxValidOpcode)
			operand := int32(int8(seedBytes[2*i+1]))
			code[i] = bytecode.Encode(op, operand)
		}

		fn := &bytecode.Function{
			Name:      "fuzz",
			Constants: []bytecode.Constant{bytecode.ConstantInt(1), bytecode.ConstantFloat(1.5), bytecode.ConstantString("x")},
			Code:      code,
			NumLocals: 4,
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("trial %d: fiber.Step panicked: %v (code=%v)", trial, r, code)
				}
			}()
			h := NewHeap(0)
			fib := NewFiber(h, &ClosureObj{Fn: fn}, nil)
			for steps := 0; steps < len(code)+4; steps++ {
				res := fib.Step()
				if res.Err != nil || res.Returned || res.Yielded {
					break
				}
			}
		}()
	}
}
