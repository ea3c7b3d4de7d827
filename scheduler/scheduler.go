// Package scheduler implements Dōji's cooperative fiber scheduler
// (spec.md §4.5): a FIFO ready queue, a pending table keyed by a stable id
// handed to the Driver, and the root-fiber termination rule.
package scheduler

import (
	"errors"

	"github.com/google/uuid"

	"github.com/ravern/doji/vm"
	"github.com/ravern/doji/vmerr"
)

// StepKind tags the outcome of one State.Step call.
type StepKind int

const (
	Park StepKind = iota
	Continue
	Yield
	Return
	Error
)

// StepOutcome is the tagged result of Step, mirroring spec.md §4.5's
// Park/Continue/Yield(id,op)/Return(v) cases, plus Error for a root-fiber
// fault that unwound every frame (spec.md §7: "the scheduler surfaces it
// from step") or a vmerr.FatalError raised by any fiber.
type StepOutcome struct {
	Kind StepKind

	// Yield fields.
	ID      uuid.UUID
	Payload vm.Value

	// Return field.
	Value vm.Value

	// Error field: the root fiber's uncaught error or any fiber's
	// FatalError, set only when Kind == Error.
	Err error
}

type pendingEntry struct {
	fiber *vm.Fiber
}

// State owns the root fiber, the ready queue, and the pending table — the
// root-set the Heap's Collect pass is driven from (spec.md §9: "the
// implementation is a dynamically tracked root-set owned by the State",
// not by the Heap).
type State struct {
	heap *vm.Heap

	rootFiber *vm.Fiber
	ready     []*vm.Fiber
	pending   map[uuid.UUID]pendingEntry

	// roots holds externally rooted RootValue tokens (SPEC_FULL.md §6's
	// Engine/Context embedding surface registers values here so they
	// survive collection independent of any fiber stack).
	roots map[uuid.UUID]vm.Value
}

// New creates an empty scheduler bound to heap.
func New(heap *vm.Heap) *State {
	return &State{
		heap:    heap,
		pending: make(map[uuid.UUID]pendingEntry),
		roots:   make(map[uuid.UUID]vm.Value),
	}
}

// Spawn allocates a fresh fiber invoking closure with zero arguments and
// enqueues it ready. The very first spawned fiber becomes the root fiber,
// whose return terminates the whole evaluation (spec.md §4.5).
func (s *State) Spawn(closure *vm.ClosureObj) *vm.Fiber {
	fib := vm.NewFiber(s.heap, closure, nil)
	if s.rootFiber == nil {
		s.rootFiber = fib
	}
	s.ready = append(s.ready, fib)
	return fib
}

// Root registers v so it survives Collect independent of any fiber,
// returning a token to later Unroot it.
func (s *State) Root(v vm.Value) uuid.UUID {
	id := uuid.New()
	s.roots[id] = v
	return id
}

// Unroot releases a value registered by Root.
func (s *State) Unroot(id uuid.UUID) {
	delete(s.roots, id)
}

// Step dequeues the next ready fiber and executes one instruction of it
// (spec.md §4.5). A YIELDed fiber moves to pending immediately, so its id
// is valid to hand to the Driver before Step returns.
func (s *State) Step() StepOutcome {
	if len(s.ready) == 0 {
		return StepOutcome{Kind: Park}
	}
	fib := s.ready[0]
	s.ready = s.ready[1:]

	fib.State = vm.FiberRunning
	res := fib.Step()

	// A guest SPAWN produces a fresh child fiber the running fiber has no
	// way to enqueue itself (vm.Fiber carries no reference to the
	// scheduler); Step collects them here and hands them to the ready
	// queue exactly like an externally Spawned fiber (spec.md §5).
	for _, child := range res.Spawned {
		child.State = vm.FiberReady
		s.ready = append(s.ready, child)
	}

	switch {
	case res.Yielded:
		id := uuid.New()
		s.pending[id] = pendingEntry{fiber: fib}
		return StepOutcome{Kind: Yield, ID: id, Payload: res.OpPayload}
	case res.Returned:
		if fib == s.rootFiber {
			return StepOutcome{Kind: Return, Value: res.Value}
		}
		return StepOutcome{Kind: Continue}
	case res.Err != nil:
		var fatal *vmerr.FatalError
		if fib == s.rootFiber || errors.As(res.Err, &fatal) {
			return StepOutcome{Kind: Error, Err: res.Err}
		}
		return StepOutcome{Kind: Continue}
	default:
		fib.State = vm.FiberReady
		s.ready = append(s.ready, fib)
		return StepOutcome{Kind: Continue}
	}
}

// Wake looks up the fiber parked under id, pushes result as the value of
// its original YIELD, and re-enqueues it ready. It is a FatalError
// (spec.md §4.5: "Fails (engine error) if id is unknown") to wake an
// unrecognised id.
func (s *State) Wake(id uuid.UUID, result vm.Value) error {
	entry, ok := s.pending[id]
	if !ok {
		return vmerr.NewFatal("wake unknown fiber id", nil)
	}
	delete(s.pending, id)
	entry.fiber.Resume(result)
	s.ready = append(s.ready, entry.fiber)
	return nil
}

// liveFibers assembles every fiber that must be traced directly: the root
// fiber, every other ready fiber, and every fiber currently parked in
// pending. Each is deduplicated since the root fiber is also present in
// ready/pending depending on its current state.
func (s *State) liveFibers() []*vm.Fiber {
	var fibers []*vm.Fiber
	seen := make(map[*vm.Fiber]bool)
	add := func(f *vm.Fiber) {
		if f == nil || seen[f] {
			return
		}
		seen[f] = true
		fibers = append(fibers, f)
	}
	add(s.rootFiber)
	for _, f := range s.ready {
		add(f)
	}
	for _, entry := range s.pending {
		add(entry.fiber)
	}
	return fibers
}

// Collect runs one GC pass using the scheduler's current root set: every
// live fiber plus every externally registered RootValue.
func (s *State) Collect() {
	roots := make([]vm.Value, 0, len(s.roots))
	for _, v := range s.roots {
		roots = append(roots, v)
	}
	s.heap.Collect(roots, s.liveFibers())
}

// RootFiber returns the fiber whose return terminates the evaluation, or
// nil before the first Spawn.
func (s *State) RootFiber() *vm.Fiber { return s.rootFiber }

// PendingCount reports how many fibers are currently parked awaiting a
// wake, used by the engine's drive loop to distinguish "still waiting on
// the driver" from a genuine deadlock when Park coincides with an empty
// Poll.
func (s *State) PendingCount() int { return len(s.pending) }
