package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ravern/doji/bytecode"
	"github.com/ravern/doji/vm"
)

func closureOf(t *testing.T, build func(a *bytecode.Assembler)) *vm.ClosureObj {
	t.Helper()
	a := bytecode.NewAssembler("test", 0)
	build(a)
	fn, err := a.Finish()
	require.NoError(t, err)
	return &vm.ClosureObj{Fn: fn}
}

// root_fiber_termination
func TestRootFiberTerminationReturnsValue(t *testing.T) {
	heap := vm.NewHeap(0)
	s := New(heap)
	closure := closureOf(t, func(a *bytecode.Assembler) {
		a.Emit(bytecode.INT, 7)
		a.Emit(bytecode.RETURN, 0)
	})
	s.Spawn(closure)

	var out StepOutcome
	for {
		out = s.Step()
		if out.Kind != Continue {
			break
		}
	}
	require.Equal(t, Return, out.Kind)
	require.Equal(t, int64(7), out.Value.AsInt())
}

// two_fibers_interleave: ready queue is FIFO, so two three-instruction
// fibers alternate one step at a time rather than one running to
// completion before the other starts.
func TestTwoFibersInterleaveFIFO(t *testing.T) {
	heap := vm.NewHeap(0)
	s := New(heap)
	a := closureOf(t, func(a *bytecode.Assembler) {
		a.Emit(bytecode.NOP, 0)
		a.Emit(bytecode.INT, 1)
		a.Emit(bytecode.RETURN, 0)
	})
	b := closureOf(t, func(a *bytecode.Assembler) {
		a.Emit(bytecode.NOP, 0)
		a.Emit(bytecode.INT, 2)
		a.Emit(bytecode.RETURN, 0)
	})
	root := s.Spawn(a)
	s.Spawn(b)

	// First step runs fiber a's NOP; fiber b is still untouched.
	s.Step()
	require.Equal(t, vm.FiberReady, root.State)

	// Steps 2-4 run b's NOP, a's INT and b's INT; a's RETURN comes fifth.
	// Had a run to completion first, its RETURN would come third.
	for i := 0; i < 3; i++ {
		require.Equal(t, Continue, s.Step().Kind)
	}
	out := s.Step()
	require.Equal(t, Return, out.Kind)
	require.Equal(t, int64(1), out.Value.AsInt())
}

func TestYieldParksAndWakeResumes(t *testing.T) {
	heap := vm.NewHeap(0)
	s := New(heap)
	closure := closureOf(t, func(a *bytecode.Assembler) {
		a.Emit(bytecode.INT, 10)
		a.Emit(bytecode.YIELD, 0)
		a.Emit(bytecode.INT, 1)
		a.Emit(bytecode.ADD, 0)
		a.Emit(bytecode.RETURN, 0)
	})
	s.Spawn(closure)

	out := s.Step() // INT 10
	require.Equal(t, Continue, out.Kind)
	out = s.Step()
	require.Equal(t, Yield, out.Kind)
	require.Equal(t, int64(10), out.Payload.AsInt())
	require.NoError(t, s.Wake(out.ID, vm.Int(5)))

	var final StepOutcome
	for {
		final = s.Step()
		if final.Kind != Continue {
			break
		}
	}
	require.Equal(t, Return, final.Kind)
	require.Equal(t, int64(6), final.Value.AsInt())
}

func TestWakeUnknownIDIsFatal(t *testing.T) {
	heap := vm.NewHeap(0)
	s := New(heap)
	var zero [16]byte
	require.Error(t, s.Wake(zero, vm.Nil))
}

// TestGuestSpawnEnqueuesChildFiber exercises the SPAWN opcode itself
// (rather than scheduler.Spawn), verifying the scheduler's ready queue
// actually picks up and runs a fiber the guest program spawned.
func TestGuestSpawnEnqueuesChildFiber(t *testing.T) {
	heap := vm.NewHeap(0)
	s := New(heap)

	childAsm := bytecode.NewAssembler("child", 0)
	childAsm.Emit(bytecode.INT, 99)
	childAsm.Emit(bytecode.RETURN, 0)
	childFn, err := childAsm.Finish()
	require.NoError(t, err)

	outer := closureOf(t, func(a *bytecode.Assembler) {
		idx := a.AddConstant(bytecode.ConstantFn(childFn))
		a.Emit(bytecode.CLOSURE, int32(idx))
		a.Emit(bytecode.SPAWN, 0)
		a.Emit(bytecode.RETURN, 0)
	})
	s.Spawn(outer)

	var out StepOutcome
	for out.Kind != Return {
		out = s.Step()
	}
	require.Equal(t, vm.KindFiber, out.Value.Kind())

	child := out.Value.AsFiber().Fiber
	for i := 0; i < 4 && child.State != vm.FiberTerminated; i++ {
		s.Step()
	}
	require.Equal(t, vm.FiberTerminated, child.State)
}
