package vm

import "github.com/ravern/doji/vmerr"

// FiberState is one point in the state machine spec.md §4.5 assigns to each
// fiber: READY (runnable, not currently executing), RUNNING (currently
// being stepped), PENDING (blocked on a dispatched Operation), TERMINATED
// (returned, raised uncaught, or errored).
type FiberState uint8

const (
	FiberReady FiberState = iota
	FiberRunning
	FiberPending
	FiberTerminated
)

func (s FiberState) String() string {
	switch s {
	case FiberReady:
		return "READY"
	case FiberRunning:
		return "RUNNING"
	case FiberPending:
		return "PENDING"
	case FiberTerminated:
		return "TERMINATED"
	default:
		return "?"
	}
}

// StepResult tells the scheduler what the fiber did on its most recent
// Step: it either made progress and is still runnable, yielded an
// Operation to the Driver, returned a final value, or raised an error that
// unwound every frame.
type StepResult struct {
	// Continue is true when the fiber has more instructions to execute
	// (the caller should re-enqueue it on the scheduler's ready queue).
	Continue bool

	// Yielded is set when the fiber executed YIELD; OpPayload is the Value
	// it passed, to be handed to the Driver as an Operation's payload by
	// the scheduler.
	Yielded   bool
	OpPayload Value

	// Returned is set once the fiber's root frame executes RETURN; Value
	// is its result.
	Returned bool
	Value    Value

	// Err is set if the fiber terminated by raising an error that was
	// never caught by any frame.
	Err error

	// Spawned holds any fiber this Step produced via SPAWN. A Fiber has no
	// reference to the scheduler that runs it, so it cannot enqueue a
	// spawned child itself; the scheduler's State.Step drains Spawned and
	// appends each to its ready queue (spec.md §5).
	Spawned []*Fiber
}

// Fiber is a single cooperative thread of execution: its own value stack,
// call stack, and set of currently-Open upvalues (spec.md §5). Fibers never
// share a value stack; SPAWN creates a fresh one seeded with the callee
// closure's single pending call.
type Fiber struct {
	State FiberState

	stack  []Value
	frames []Frame
	open   openUpvalues

	heap *Heap

	// Parent is the fiber that SPAWNed this one, for diagnostics only;
	// scheduling order is entirely FIFO via the scheduler's ready queue,
	// not parent/child.
	Parent *Fiber

	// pendingSpawns accumulates fibers created by this fiber's SPAWN
	// opcode during the instruction just executed; Step drains it into
	// StepResult.Spawned for the scheduler to enqueue.
	pendingSpawns []*Fiber
}

// NewFiber creates a fiber ready to begin executing closure with the given
// initial arguments already validated against its arity by the caller
// (SPAWN/the scheduler's initial root-fiber setup).
func NewFiber(h *Heap, closure *ClosureObj, args []Value) *Fiber {
	f := &Fiber{heap: h, State: FiberReady}
	f.stack = append(f.stack, args...)
	for len(f.stack) < closure.Fn.NumLocals {
		f.stack = append(f.stack, Nil)
	}
	f.frames = append(f.frames, newFrame(closure, 0))
	return f
}

func (f *Fiber) trace(visit func(Value)) {
	for _, v := range f.stack {
		visit(v)
	}
	for _, frame := range f.frames {
		visit(fromObject(KindClosure, frame.Closure))
	}
	for _, uv := range f.open.list {
		if uv.Closed {
			visit(uv.Value)
		}
	}
}

// Resume pushes result as the value of this fiber's pending YIELD and marks
// it ready to run again. Called by the scheduler's Wake (spec.md §4.5).
func (f *Fiber) Resume(result Value) {
	f.push(result)
	f.State = FiberReady
}

func (f *Fiber) push(v Value) { f.stack = append(f.stack, v) }

func (f *Fiber) pop() (Value, error) {
	if len(f.stack) == 0 {
		return Nil, vmerr.New(vmerr.StackUnderflow, "pop from empty stack")
	}
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v, nil
}

func (f *Fiber) top() (Value, error) {
	if len(f.stack) == 0 {
		return Nil, vmerr.New(vmerr.StackUnderflow, "top of empty stack")
	}
	return f.stack[len(f.stack)-1], nil
}

func (f *Fiber) currentFrame() *Frame {
	return &f.frames[len(f.frames)-1]
}

// frameContext builds a vmerr.Context describing the current frame, for
// attaching to propagating errors.
func (f *Fiber) frameContext() vmerr.Context {
	fr := f.currentFrame()
	return vmerr.Context{FuncName: fr.fn().Name, PC: fr.PC}
}
