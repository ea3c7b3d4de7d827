package bytecode

import "fmt"

// ConstantKind tags the variant held by a Constant slot.
type ConstantKind uint8

const (
	ConstInt ConstantKind = iota
	ConstFloat
	ConstString
	ConstFunction
)

// Constant is one entry of a Function's constant pool: an Int, Float,
// String, or a nested Function (spec.md §3, "Function... list of
// Constants (Int / Float / String / nested Function)").
type Constant struct {
	Kind  ConstantKind
	Int   int64
	Float float64
	Str   string
	Fn    *Function
}

func ConstantInt(v int64) Constant      { return Constant{Kind: ConstInt, Int: v} }
func ConstantFloat(v float64) Constant  { return Constant{Kind: ConstFloat, Float: v} }
func ConstantString(v string) Constant  { return Constant{Kind: ConstString, Str: v} }
func ConstantFn(v *Function) Constant   { return Constant{Kind: ConstFunction, Fn: v} }

// UpvalueSource tags whether an upvalue descriptor captures a local slot of
// the immediately enclosing frame, or forwards one of the enclosing
// closure's own upvalues.
type UpvalueSource uint8

const (
	// UpvalLocal captures frame-relative slot Index of the enclosing frame.
	UpvalLocal UpvalueSource = iota
	// UpvalOuter copies the enclosing closure's upvalue at Index.
	UpvalOuter
)

// UpvalueDesc describes how a closure captures one upvalue at CLOSURE time
// (spec.md §3/§4.3).
type UpvalueDesc struct {
	Source UpvalueSource
	Index  int
}

// Function is immutable, shareable code: an arity, a constant pool, a flat
// instruction array, and a list of upvalue descriptors resolved against the
// enclosing frame/closure at CLOSURE time. Functions never mutate after
// the Compiler produces them.
type Function struct {
	Name      string // for error context only; may be empty
	Arity     int
	Constants []Constant
	Code      []Instruction
	Upvalues  []UpvalueDesc
	// NumLocals is the number of frame-relative stack slots this function's
	// body addresses via LOAD/STORE, including the Arity parameter slots.
	// The interpreter pads a new frame's stack to this many slots (in
	// NewFiber and CALL), so LOAD/STORE of any local is in range.
	NumLocals int
}

func (f *Function) String() string {
	name := f.Name
	if name == "" {
		name = "<anonymous>"
	}
	return fmt.Sprintf("Function(%s/%d)", name, f.Arity)
}
