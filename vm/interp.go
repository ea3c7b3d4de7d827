package vm

import (
	"github.com/ravern/doji/bytecode"
	"github.com/ravern/doji/vmerr"
)

// Step executes at most one instruction of the fiber's current frame and
// reports what happened (spec.md §4.4's per-step contract). It never
// blocks: YIELD hands control back to the caller with the yielded payload
// instead of waiting on anything.
func (f *Fiber) Step() StepResult {
	if f.State == FiberTerminated {
		return StepResult{Returned: true}
	}
	res, err := f.step()
	if err != nil {
		unwound, handled := f.unwind(err)
		if handled {
			return StepResult{Continue: true}
		}
		f.State = FiberTerminated
		return StepResult{Err: unwound}
	}
	if len(f.pendingSpawns) > 0 {
		res.Spawned = f.pendingSpawns
		f.pendingSpawns = nil
	}
	return res
}

// step runs a single opcode, returning a non-nil *vmerr.RuntimeError (or
// *vmerr.FatalError) on any instruction-level fault.
func (f *Fiber) step() (StepResult, error) {
	fr := f.currentFrame()
	code := fr.fn().Code
	if int(fr.PC) >= len(code) {
		return StepResult{}, vmerr.New(vmerr.InvalidInstructionOffset, "pc %d out of range (len %d)", fr.PC, len(code))
	}
	instr := code[fr.PC]
	op := instr.Op()
	fr.PC++

	switch op {
	case bytecode.NOP:
		// no-op

	case bytecode.NIL:
		f.push(Nil)
	case bytecode.TRUE:
		f.push(True)
	case bytecode.FALSE:
		f.push(False)
	case bytecode.INT:
		f.push(Int(int64(instr.Operand())))
	case bytecode.CONST:
		v, err := f.loadConstant(fr, instr.Operand())
		if err != nil {
			return StepResult{}, err
		}
		f.push(v)
	case bytecode.LIST:
		n := int(instr.UOperand())
		items, err := f.popN(n)
		if err != nil {
			return StepResult{}, err
		}
		if err := f.heap.CheckLimit(); err != nil {
			return StepResult{}, vmerr.NewFatal("allocate list", err)
		}
		f.push(NewList(f.heap, items))
	case bytecode.MAP:
		n := int(instr.UOperand())
		items, err := f.popN(2 * n)
		if err != nil {
			return StepResult{}, err
		}
		if err := f.heap.CheckLimit(); err != nil {
			return StepResult{}, vmerr.NewFatal("allocate map", err)
		}
		m := NewMap(f.heap)
		mo := m.AsMap()
		for i := 0; i < n; i++ {
			mo.Set(items[2*i], items[2*i+1])
		}
		f.push(m)
	case bytecode.CLOSURE:
		v, err := f.makeClosure(fr, instr.Operand())
		if err != nil {
			return StepResult{}, err
		}
		f.push(v)

	case bytecode.LOAD:
		slot := fr.Base + int(instr.Operand())
		if slot < 0 || slot >= len(f.stack) {
			return StepResult{}, vmerr.New(vmerr.InvalidStackSlot, "slot %d out of range", slot)
		}
		f.push(f.stack[slot])
	case bytecode.STORE:
		v, err := f.pop()
		if err != nil {
			return StepResult{}, err
		}
		slot := fr.Base + int(instr.Operand())
		if slot < 0 || slot >= len(f.stack) {
			return StepResult{}, vmerr.New(vmerr.InvalidStackSlot, "slot %d out of range", slot)
		}
		f.stack[slot] = v
	case bytecode.DUP:
		v, err := f.top()
		if err != nil {
			return StepResult{}, err
		}
		f.push(v)
	case bytecode.POP:
		if _, err := f.pop(); err != nil {
			return StepResult{}, err
		}

	case bytecode.ADD, bytecode.SUB, bytecode.MUL, bytecode.DIV, bytecode.REM:
		if err := f.binaryArith(op); err != nil {
			return StepResult{}, err
		}
	case bytecode.NEG:
		if err := f.unaryNeg(); err != nil {
			return StepResult{}, err
		}
	case bytecode.NOT:
		if err := f.unaryNot(); err != nil {
			return StepResult{}, err
		}
	case bytecode.AND, bytecode.OR:
		if err := f.binaryLogic(op); err != nil {
			return StepResult{}, err
		}
	case bytecode.BITAND, bytecode.BITOR, bytecode.BITXOR, bytecode.SHL, bytecode.SHR:
		if err := f.binaryBitwise(op); err != nil {
			return StepResult{}, err
		}

	case bytecode.EQ, bytecode.NEQ:
		if err := f.binaryEq(op); err != nil {
			return StepResult{}, err
		}
	case bytecode.GT, bytecode.GTE, bytecode.LT, bytecode.LTE:
		if err := f.binaryCompare(op); err != nil {
			return StepResult{}, err
		}

	case bytecode.TEST:
		v, err := f.pop()
		if err != nil {
			return StepResult{}, err
		}
		b, ok := v.Truthy()
		if !ok {
			return StepResult{}, vmerr.NewWrongType([]string{"Bool"}, v.Kind().String())
		}
		if b {
			fr.PC++
		}
	case bytecode.JUMP:
		fr.PC = uint32(int32(fr.PC) + instr.Operand())

	case bytecode.CALL:
		if err := f.call(int(instr.UOperand())); err != nil {
			return StepResult{}, err
		}
	case bytecode.RETURN:
		terminal, err := f.ret()
		if err != nil {
			return StepResult{}, err
		}
		if terminal != nil {
			return *terminal, nil
		}

	case bytecode.UPVAL_LOAD:
		idx := int(instr.Operand())
		if idx < 0 || idx >= len(fr.Closure.Upvalues) {
			return StepResult{}, vmerr.New(vmerr.InvalidUpvalueIndex, "upvalue index %d out of range", idx)
		}
		f.push(fr.Closure.Upvalues[idx].Get())
	case bytecode.UPVAL_STORE:
		v, err := f.pop()
		if err != nil {
			return StepResult{}, err
		}
		idx := int(instr.Operand())
		if idx < 0 || idx >= len(fr.Closure.Upvalues) {
			return StepResult{}, vmerr.New(vmerr.InvalidUpvalueIndex, "upvalue index %d out of range", idx)
		}
		fr.Closure.Upvalues[idx].Set(v)
	case bytecode.UPVAL_CLOSE:
		f.open.closeFrom(len(f.stack) - 1)
		if _, err := f.pop(); err != nil {
			return StepResult{}, err
		}

	case bytecode.OBJ_GET:
		if err := f.objGet(); err != nil {
			return StepResult{}, err
		}
	case bytecode.OBJ_SET:
		if err := f.objSet(); err != nil {
			return StepResult{}, err
		}

	case bytecode.SPAWN:
		v, err := f.pop()
		if err != nil {
			return StepResult{}, err
		}
		if v.Kind() != KindClosure {
			return StepResult{}, vmerr.NewWrongType([]string{"Closure"}, v.Kind().String())
		}
		closure := v.AsClosure()
		if closure.Fn.Arity != 0 {
			return StepResult{}, vmerr.New(vmerr.WrongArity, "spawn requires a zero-arity closure, got arity %d", closure.Fn.Arity)
		}
		child := NewFiber(f.heap, closure, nil)
		child.Parent = f
		f.pendingSpawns = append(f.pendingSpawns, child)
		f.push(NewFiberValue(f.heap, child))
	case bytecode.YIELD:
		payload, err := f.pop()
		if err != nil {
			return StepResult{}, err
		}
		f.State = FiberPending
		return StepResult{Yielded: true, OpPayload: payload}, nil

	default:
		return StepResult{}, vmerr.New(vmerr.InvalidInstructionOffset, "unknown opcode %s", op)
	}

	return StepResult{Continue: true}, nil
}

func (f *Fiber) loadConstant(fr *Frame, idx int32) (Value, error) {
	consts := fr.fn().Constants
	if idx < 0 || int(idx) >= len(consts) {
		return Nil, vmerr.New(vmerr.InvalidConstantIndex, "constant index %d out of range", idx)
	}
	c := consts[idx]
	switch c.Kind {
	case bytecode.ConstInt:
		return Int(c.Int), nil
	case bytecode.ConstFloat:
		return Float(c.Float), nil
	case bytecode.ConstString:
		return f.heap.internConstString(c.Str), nil
	default:
		return Nil, vmerr.New(vmerr.InvalidConstantIndex, "constant %d is not a scalar (is a Function; use CLOSURE)", idx)
	}
}

// makeClosure implements CLOSURE(fn_idx): resolve each upvalue descriptor
// against either the current fiber's open-upvalue set (Local) or the
// enclosing closure's own upvalues (Outer).
func (f *Fiber) makeClosure(fr *Frame, idx int32) (Value, error) {
	consts := fr.fn().Constants
	if idx < 0 || int(idx) >= len(consts) {
		return Nil, vmerr.New(vmerr.InvalidFunctionIndex, "function index %d out of range", idx)
	}
	c := consts[idx]
	if c.Kind != bytecode.ConstFunction {
		return Nil, vmerr.New(vmerr.InvalidFunctionIndex, "constant %d is not a Function", idx)
	}
	fn := c.Fn
	upvalues := make([]*Upvalue, len(fn.Upvalues))
	for i, desc := range fn.Upvalues {
		switch desc.Source {
		case bytecode.UpvalLocal:
			upvalues[i] = f.open.find(&f.stack, fr.Base+desc.Index)
		case bytecode.UpvalOuter:
			if desc.Index < 0 || desc.Index >= len(fr.Closure.Upvalues) {
				return Nil, vmerr.New(vmerr.InvalidUpvalueIndex, "outer upvalue index %d out of range", desc.Index)
			}
			upvalues[i] = fr.Closure.Upvalues[desc.Index]
		}
	}
	if err := f.heap.CheckLimit(); err != nil {
		return Nil, vmerr.NewFatal("allocate closure", err)
	}
	return NewClosure(f.heap, fn, upvalues), nil
}

func (f *Fiber) popN(n int) ([]Value, error) {
	if n < 0 || n > len(f.stack) {
		return nil, vmerr.New(vmerr.StackUnderflow, "need %d values, have %d", n, len(f.stack))
	}
	start := len(f.stack) - n
	out := make([]Value, n)
	copy(out, f.stack[start:])
	f.stack = f.stack[:start]
	return out, nil
}

// call implements CALL(argc): push a new frame for a Closure callee, or
// invoke a NativeFunction synchronously and push its result. Either way the
// current step still completes normally (Continue: true).
func (f *Fiber) call(argc int) error {
	if argc < 0 || argc >= len(f.stack) {
		return vmerr.New(vmerr.StackUnderflow, "call requires %d args and a callee", argc)
	}
	calleeIdx := len(f.stack) - argc - 1
	callee := f.stack[calleeIdx]
	args := append([]Value(nil), f.stack[calleeIdx+1:]...)

	switch callee.Kind() {
	case KindClosure:
		closure := callee.AsClosure()
		if closure.Fn.Arity != argc {
			return vmerr.New(vmerr.WrongArity, "%s expects %d args, got %d", closure.Fn.String(), closure.Fn.Arity, argc)
		}
		base := calleeIdx
		f.stack = f.stack[:base]
		f.stack = append(f.stack, args...)
		for len(f.stack) < base+closure.Fn.NumLocals {
			f.stack = append(f.stack, Nil)
		}
		f.frames = append(f.frames, newFrame(closure, base))
		return nil
	case KindNativeFunction:
		native := callee.AsNative()
		if native.Arity != argc {
			return vmerr.New(vmerr.WrongArity, "%s expects %d args, got %d", native.Name, native.Arity, argc)
		}
		result, err := native.Fn(f.currentFrame(), args)
		if err != nil {
			return err
		}
		f.stack = f.stack[:calleeIdx]
		f.push(result)
		return nil
	default:
		return vmerr.NewWrongType([]string{"Closure", "NativeFunction"}, callee.Kind().String())
	}
}

// ret implements RETURN: pop the result, close this frame's Open upvalues,
// discard its locals, and either resume the caller or terminate the fiber
// if this was the outermost frame.
func (f *Fiber) ret() (*StepResult, error) {
	result, err := f.pop()
	if err != nil {
		return nil, err
	}
	fr := f.currentFrame()
	f.open.closeFrom(fr.Base)
	f.stack = f.stack[:fr.Base]
	f.frames = f.frames[:len(f.frames)-1]

	if len(f.frames) == 0 {
		f.State = FiberTerminated
		return &StepResult{Returned: true, Value: result}, nil
	}
	f.push(result)
	return nil, nil
}

// unwind searches for a catch frame as frames pop off; Dōji reserves the
// catch surface (SPEC_FULL.md §4) but nothing sets Frame.Catch, so unwind
// always drains every frame and reports handled=false.
func (f *Fiber) unwind(err error) (final error, handled bool) {
	for len(f.frames) > 0 {
		fr := f.currentFrame()
		if re, ok := err.(*vmerr.RuntimeError); ok {
			err = re.WithFrame(f.frameContext())
		}
		if fr.Catch >= 0 {
			return nil, true
		}
		f.open.closeFrom(fr.Base)
		f.stack = f.stack[:fr.Base]
		f.frames = f.frames[:len(f.frames)-1]
	}
	return err, false
}
