// Package vmerr defines the runtime error taxonomy surfaced by the fiber
// interpreter, the scheduler, and the engine (spec.md §7).
//
// Per-instruction errors (WrongType, WrongArity, ...) are ordinary values
// returned up through fiber.Step; engine-level errors (unknown wake id,
// allocation failure) are fatal to the whole evaluation.
package vmerr

import (
	"fmt"

	"github.com/go-stack/stack"
)

// Kind identifies one of the taxonomy's error categories.
type Kind int

const (
	WrongType Kind = iota
	WrongArity
	InvalidInstructionOffset
	InvalidConstantIndex
	InvalidFunctionIndex
	InvalidStackSlot
	InvalidUpvalueIndex
	StackUnderflow
	CallStackUnderflow
	WakeNonExistentFiber
	UserError
)

func (k Kind) String() string {
	switch k {
	case WrongType:
		return "WrongType"
	case WrongArity:
		return "WrongArity"
	case InvalidInstructionOffset:
		return "InvalidInstructionOffset"
	case InvalidConstantIndex:
		return "InvalidConstantIndex"
	case InvalidFunctionIndex:
		return "InvalidFunctionIndex"
	case InvalidStackSlot:
		return "InvalidStackSlot"
	case InvalidUpvalueIndex:
		return "InvalidUpvalueIndex"
	case StackUnderflow:
		return "StackUnderflow"
	case CallStackUnderflow:
		return "CallStackUnderflow"
	case WakeNonExistentFiber:
		return "WakeNonExistentFiber"
	case UserError:
		return "UserError"
	default:
		return "Unknown"
	}
}

// Context is the location a runtime error was raised at: the enclosing
// function's identifier and the program counter at the time of the fault.
type Context struct {
	FuncName string
	PC       uint32
}

// RuntimeError is a single raised error, with a stack trace built by
// unwinding fiber frames (Frames, innermost first) as it propagates.
type RuntimeError struct {
	Kind    Kind
	Message string
	// Data is the arbitrary payload attached to a UserError raised by guest
	// code (the Error heap object's "data" field); nil for VM-raised kinds.
	Data interface{}
	// Frames is the unwound call trace, appended to as the error propagates
	// out through each caller frame.
	Frames []Context
}

func (e *RuntimeError) Error() string {
	if len(e.Frames) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s (at %s:%d)", e.Kind, e.Message, e.Frames[0].FuncName, e.Frames[0].PC)
}

// WithFrame returns a copy of e with ctx appended to the trace; used while
// unwinding through caller frames.
func (e *RuntimeError) WithFrame(ctx Context) *RuntimeError {
	frames := make([]Context, len(e.Frames)+1)
	copy(frames, e.Frames)
	frames[len(frames)-1] = ctx
	return &RuntimeError{Kind: e.Kind, Message: e.Message, Data: e.Data, Frames: frames}
}

// New constructs a RuntimeError of the given kind.
func New(kind Kind, format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewWrongType builds the standard WrongType error naming the accepted set.
func NewWrongType(expected []string, found string) *RuntimeError {
	return New(WrongType, "expected one of %v, found %s", expected, found)
}

// NewUserError wraps a guest-raised Error value.
func NewUserError(message string, data interface{}) *RuntimeError {
	return &RuntimeError{Kind: UserError, Message: message, Data: data}
}

// FatalError is an engine-level failure that terminates the whole
// evaluation: a wake of an unknown id, or an allocation failure surfaced by
// the host. It carries a captured Go call stack for host-side diagnostics,
// distinct from the Dōji-level frame trace RuntimeError carries.
type FatalError struct {
	Message   string
	Cause     error
	GoCallers stack.CallStack
}

func (e *FatalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("doji: fatal: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("doji: fatal: %s", e.Message)
}

func (e *FatalError) Unwrap() error { return e.Cause }

// NewFatal constructs a FatalError, capturing the caller's Go stack.
func NewFatal(message string, cause error) *FatalError {
	return &FatalError{Message: message, Cause: cause, GoCallers: stack.Trace().TrimRuntime()}
}
