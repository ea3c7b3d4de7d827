package vm

import (
	"github.com/ravern/doji/bytecode"
	"github.com/ravern/doji/vmerr"
)

// wrongTypeOf builds a WrongType error naming the first operand (of vs)
// whose Kind is not in expected, to point at the actual offender in a
// multi-operand op.
func wrongTypeOf(expected []string, vs ...Value) error {
	for _, v := range vs {
		ok := false
		for _, e := range expected {
			if v.Kind().String() == e {
				ok = true
				break
			}
		}
		if !ok {
			return vmerr.NewWrongType(expected, v.Kind().String())
		}
	}
	return vmerr.NewWrongType(expected, vs[0].Kind().String())
}

// newUserDivByZero reports integer division/remainder by zero. The spec is
// silent on this edge case (float division by zero instead produces
// Inf/NaN per IEEE 754, matched by our use of plain Go float64 division);
// DESIGN.md records the decision to surface it as a UserError rather than
// inventing a new Kind outside the taxonomy spec.md §7 enumerates.
func newUserDivByZero() error {
	return vmerr.New(vmerr.UserError, "division by zero")
}

// binaryArith implements ADD/SUB/MUL/DIV/REM's promotion rule (spec.md
// §4.2/§4.4): Int⊕Int→Int, any Float operand widens the whole op to Float,
// REM requires both operands Int.
func (f *Fiber) binaryArith(op bytecode.Opcode) error {
	b, err := f.pop()
	if err != nil {
		return err
	}
	a, err := f.pop()
	if err != nil {
		return err
	}

	if op == bytecode.REM {
		if a.Kind() != KindInt || b.Kind() != KindInt {
			return wrongTypeOf([]string{"Int"}, a, b)
		}
		if b.AsInt() == 0 {
			return newUserDivByZero()
		}
		f.push(Int(a.AsInt() % b.AsInt()))
		return nil
	}

	if !isNumeric(a.Kind()) || !isNumeric(b.Kind()) {
		return wrongTypeOf([]string{"Int", "Float"}, a, b)
	}
	if a.Kind() == KindInt && b.Kind() == KindInt {
		ai, bi := a.AsInt(), b.AsInt()
		switch op {
		case bytecode.ADD:
			f.push(Int(ai + bi))
		case bytecode.SUB:
			f.push(Int(ai - bi))
		case bytecode.MUL:
			f.push(Int(ai * bi))
		case bytecode.DIV:
			if bi == 0 {
				return newUserDivByZero()
			}
			f.push(Int(ai / bi))
		}
		return nil
	}
	af, bf := a.AsFloat(), b.AsFloat()
	switch op {
	case bytecode.ADD:
		f.push(Float(af + bf))
	case bytecode.SUB:
		f.push(Float(af - bf))
	case bytecode.MUL:
		f.push(Float(af * bf))
	case bytecode.DIV:
		f.push(Float(af / bf))
	}
	return nil
}

func (f *Fiber) unaryNeg() error {
	v, err := f.pop()
	if err != nil {
		return err
	}
	switch v.Kind() {
	case KindInt:
		f.push(Int(-v.AsInt()))
	case KindFloat:
		f.push(Float(-v.AsFloat()))
	default:
		return wrongTypeOf([]string{"Int", "Float"}, v)
	}
	return nil
}

func (f *Fiber) unaryNot() error {
	v, err := f.pop()
	if err != nil {
		return err
	}
	b, ok := v.Truthy()
	if !ok {
		return wrongTypeOf([]string{"Bool"}, v)
	}
	f.push(Bool(!b))
	return nil
}

func (f *Fiber) binaryLogic(op bytecode.Opcode) error {
	b, err := f.pop()
	if err != nil {
		return err
	}
	a, err := f.pop()
	if err != nil {
		return err
	}
	ab, aok := a.Truthy()
	bb, bok := b.Truthy()
	if !aok || !bok {
		return wrongTypeOf([]string{"Bool"}, a, b)
	}
	if op == bytecode.AND {
		f.push(Bool(ab && bb))
	} else {
		f.push(Bool(ab || bb))
	}
	return nil
}

func (f *Fiber) binaryBitwise(op bytecode.Opcode) error {
	b, err := f.pop()
	if err != nil {
		return err
	}
	a, err := f.pop()
	if err != nil {
		return err
	}
	if a.Kind() != KindInt || b.Kind() != KindInt {
		return wrongTypeOf([]string{"Int"}, a, b)
	}
	ai, bi := a.AsInt(), b.AsInt()
	switch op {
	case bytecode.BITAND:
		f.push(Int(ai & bi))
	case bytecode.BITOR:
		f.push(Int(ai | bi))
	case bytecode.BITXOR:
		f.push(Int(ai ^ bi))
	case bytecode.SHL:
		f.push(Int(ai << uint(bi)))
	case bytecode.SHR:
		f.push(Int(ai >> uint(bi)))
	}
	return nil
}

func (f *Fiber) binaryEq(op bytecode.Opcode) error {
	b, err := f.pop()
	if err != nil {
		return err
	}
	a, err := f.pop()
	if err != nil {
		return err
	}
	eq := Eq(a, b)
	if op == bytecode.NEQ {
		eq = !eq
	}
	f.push(Bool(eq))
	return nil
}

func (f *Fiber) binaryCompare(op bytecode.Opcode) error {
	b, err := f.pop()
	if err != nil {
		return err
	}
	a, err := f.pop()
	if err != nil {
		return err
	}
	if !isNumeric(a.Kind()) || !isNumeric(b.Kind()) {
		return wrongTypeOf([]string{"Int", "Float"}, a, b)
	}
	af, bf := a.AsFloat(), b.AsFloat()
	var result bool
	switch op {
	case bytecode.GT:
		result = af > bf
	case bytecode.GTE:
		result = af >= bf
	case bytecode.LT:
		result = af < bf
	case bytecode.LTE:
		result = af <= bf
	}
	f.push(Bool(result))
	return nil
}

// objGet implements OBJ_GET: get(container, key) (spec.md §4.2).
func (f *Fiber) objGet() error {
	key, err := f.pop()
	if err != nil {
		return err
	}
	container, err := f.pop()
	if err != nil {
		return err
	}
	switch container.Kind() {
	case KindList:
		if key.Kind() != KindInt {
			return wrongTypeOf([]string{"Int"}, key)
		}
		items := container.AsList().Items
		i := key.AsInt()
		if i < 0 || i >= int64(len(items)) {
			f.push(Nil)
			return nil
		}
		f.push(items[i])
		return nil
	case KindMap:
		v, _ := container.AsMap().Get(key)
		f.push(v)
		return nil
	default:
		return wrongTypeOf([]string{"List", "Map"}, container)
	}
}

// objSet implements OBJ_SET: set(container, key, v) (spec.md §4.2). A List
// index beyond the current length extends the sequence with Nil fills up
// to key+1, then writes.
func (f *Fiber) objSet() error {
	value, err := f.pop()
	if err != nil {
		return err
	}
	key, err := f.pop()
	if err != nil {
		return err
	}
	container, err := f.pop()
	if err != nil {
		return err
	}
	switch container.Kind() {
	case KindList:
		if key.Kind() != KindInt {
			return wrongTypeOf([]string{"Int"}, key)
		}
		list := container.AsList()
		i := key.AsInt()
		if i < 0 {
			return wrongTypeOf([]string{"Int (non-negative)"}, key)
		}
		for int64(len(list.Items)) <= i {
			list.Items = append(list.Items, Nil)
		}
		list.Items[i] = value
		f.push(container)
		return nil
	case KindMap:
		container.AsMap().Set(key, value)
		f.push(container)
		return nil
	default:
		return wrongTypeOf([]string{"List", "Map"}, container)
	}
}
