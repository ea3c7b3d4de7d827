// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package vm implements Dōji's value model, tracing garbage-collected heap,
// and the per-fiber bytecode interpreter. These three concerns are kept in
// one package — mirroring the teacher's own vm.go/memory.go/opcodes.go
// grouping — because Value, Heap, and Fiber are mutually recursive: a List
// holds Values, a Fiber's stack holds Values, and a Value can hold a handle
// to a Fiber.
package vm

import (
	"fmt"
	"math"

	"github.com/davecgh/go-spew/spew"
)

// Kind tags which variant a Value holds (spec.md §3).
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
	KindClosure
	KindFiber
	KindError
	KindNativeFunction
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "Nil"
	case KindBool:
		return "Bool"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindString:
		return "String"
	case KindList:
		return "List"
	case KindMap:
		return "Map"
	case KindClosure:
		return "Closure"
	case KindFiber:
		return "Fiber"
	case KindError:
		return "Error"
	case KindNativeFunction:
		return "NativeFunction"
	default:
		return "Unknown"
	}
}

// Value is the closed sum described in spec.md §3: immediates (Nil, Bool,
// Int, Float) fit directly in the struct; everything else is a handle to a
// heap-allocated Object, except NativeFunction which is an identity-bearing
// host callback that is never placed under GC (it is owned by the embedder
// for the engine's lifetime).
type Value struct {
	kind   Kind
	i      int64
	f      float64
	obj    Object
	native *NativeFunction
}

// NativeFunction is a host-provided callback exposed to guest code. Arity
// is checked by CALL exactly like a Closure's (spec.md §4.3).
type NativeFunction struct {
	Name  string
	Arity int
	Fn    func(fr *Frame, args []Value) (Value, error)
}

var (
	Nil   = Value{kind: KindNil}
	True  = Value{kind: KindBool, i: 1}
	False = Value{kind: KindBool, i: 0}
)

func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

func Int(v int64) Value     { return Value{kind: KindInt, i: v} }
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

func NativeFunc(nf *NativeFunction) Value {
	return Value{kind: KindNativeFunction, native: nf}
}

// fromObject wraps a heap Object in a Value of the matching Kind.
func fromObject(k Kind, obj Object) Value {
	return Value{kind: k, obj: obj}
}

// Kind returns the variant tag, used for error messages and ty() (spec.md
// §4.2).
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNil() bool { return v.kind == KindNil }

func (v Value) AsBool() bool { return v.kind == KindBool && v.i != 0 }
func (v Value) AsInt() int64 { return v.i }
func (v Value) AsFloat() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

func (v Value) Object() Object { return v.obj }

func (v Value) AsString() *StringObj   { return v.obj.(*StringObj) }
func (v Value) AsList() *ListObj       { return v.obj.(*ListObj) }
func (v Value) AsMap() *MapObj         { return v.obj.(*MapObj) }
func (v Value) AsClosure() *ClosureObj { return v.obj.(*ClosureObj) }
func (v Value) AsFiber() *FiberObj     { return v.obj.(*FiberObj) }
func (v Value) AsError() *ErrorObj     { return v.obj.(*ErrorObj) }
func (v Value) AsNative() *NativeFunction { return v.native }

// Truthy implements the guest language's condition test: only Bool is
// accepted by TEST (spec.md §4.3); there is no separate "truthiness"
// coercion for other kinds.
func (v Value) Truthy() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.i != 0, true
}

// DebugString renders a Value (and, for containers, its full nested
// structure). cmd/doji's `run` and `repl` print results with it, test
// failure messages use it, and the stdlib `print` function uses it for
// every non-String argument, so guest code can observe it.
func (v Value) DebugString() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		return fmt.Sprintf("%t", v.AsBool())
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return formatFloat(v.f)
	case KindString:
		return fmt.Sprintf("%q", v.AsString().Data)
	case KindList:
		return spew.Sdump(v.AsList().Items)
	case KindMap:
		return spew.Sdump(v.AsMap().entries())
	case KindClosure:
		return fmt.Sprintf("<closure %s>", v.AsClosure().Fn.String())
	case KindFiber:
		return fmt.Sprintf("<fiber %p>", v.AsFiber())
	case KindError:
		return fmt.Sprintf("<error %q>", v.AsError().Message)
	case KindNativeFunction:
		return fmt.Sprintf("<native %s/%d>", v.native.Name, v.native.Arity)
	default:
		return "<?>"
	}
}

func formatFloat(f float64) string {
	if math.IsNaN(f) {
		return "nan"
	}
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	return fmt.Sprintf("%g", f)
}
