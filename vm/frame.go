package vm

import "github.com/ravern/doji/bytecode"

// Frame is one activation record on a fiber's call stack: a reference to
// the executing Closure, the program counter into its code array, and the
// base slot of this call's locals within the fiber's shared value stack
// (spec.md §5).
type Frame struct {
	Closure *ClosureObj
	PC      uint32
	Base    int

	// Catch is the slot index of a pending recover point installed by the
	// compiler's reserved try/catch surface (SPEC_FULL.md §4, "catch/try
	// reservation"); -1 when this frame has no active handler. Left unused
	// by the compiler in this release but wired through the frame so a
	// future surface addition does not require widening Frame again.
	Catch int
}

func newFrame(closure *ClosureObj, base int) Frame {
	return Frame{Closure: closure, Base: base, Catch: -1}
}

// fn is a small accessor so interp.go can read bytecode without importing
// the package at every call site.
func (f *Frame) fn() *bytecode.Function { return f.Closure.Fn }
