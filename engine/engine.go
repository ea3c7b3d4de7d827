// Package engine implements Dōji's embedding surface (spec.md §4.6):
// Engine.builder().driver(D).resolver(R).build(), Engine.enter, and the
// two convenience entry points evaluate_inline/evaluate_file.
package engine

import (
	"os"
	"time"

	"github.com/ravern/doji/scheduler"
	"github.com/ravern/doji/vm"
	"github.com/ravern/doji/vmerr"
)

// Engine owns one heap and one scheduler for the lifetime of an
// embedding. It is not safe for concurrent use from multiple goroutines;
// all interpreter progress happens on whichever goroutine calls Enter or
// EvaluateInline/EvaluateFile (spec.md §5's single-threaded cooperative
// model).
type Engine struct {
	heap      *vm.Heap
	scheduler *scheduler.State
	driver    scheduler.Driver
	resolver  Resolver
	config    Config
}

// Builder configures an Engine before Build (spec.md §4.6:
// "Engine.builder().driver(D).resolver(R).build()").
type Builder struct {
	driver   scheduler.Driver
	resolver Resolver
	config   Config
}

// NewBuilder starts a Builder with DefaultConfig and the no-op Driver.
func NewBuilder() *Builder {
	return &Builder{config: DefaultConfig(), driver: noopDriver{}}
}

func (b *Builder) Driver(d scheduler.Driver) *Builder {
	b.driver = d
	return b
}

func (b *Builder) Resolver(r Resolver) *Builder {
	b.resolver = r
	return b
}

func (b *Builder) WithConfig(c Config) *Builder {
	b.config = c
	return b
}

// Build constructs the Engine.
func (b *Builder) Build() *Engine {
	heap := vm.NewHeap(b.config.HeapObjectLimit)
	return &Engine{
		heap:      heap,
		scheduler: scheduler.New(heap),
		driver:    b.driver,
		resolver:  b.resolver,
		config:    b.config,
	}
}

// Enter grants fn a Context in which heap allocation is safe and Values
// produced are valid for fn's duration (spec.md §4.6). Collection may run
// between Enter calls but never during one.
func (e *Engine) Enter(fn func(*Context)) {
	fn(&Context{engine: e})
}

// EvaluateInline compiles source, spawns it as the root fiber, and drives
// the scheduler/driver loop to completion, returning the root fiber's
// final value (spec.md §4.6's evaluate_inline algorithm).
func (e *Engine) EvaluateInline(source string) (vm.Value, error) {
	var compileErr error
	e.Enter(func(ctx *Context) {
		fn, err := ctx.Compile(source)
		if err != nil {
			compileErr = err
			return
		}
		ctx.Spawn(fn)
	})
	if compileErr != nil {
		return vm.Nil, compileErr
	}
	return e.drive()
}

// EvaluateFile resolves path via the configured Resolver (or reads it
// directly off disk if no Resolver was configured) and evaluates it like
// EvaluateInline.
func (e *Engine) EvaluateFile(path string) (vm.Value, error) {
	var source string
	if e.resolver != nil {
		src, err := e.resolver.Resolve(path)
		if err != nil {
			return vm.Nil, err
		}
		source = src
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return vm.Nil, err
		}
		source = string(data)
	}
	return e.EvaluateInline(source)
}

// drive runs the scheduler/driver loop described in spec.md §4.6 until the
// root fiber returns or terminates with an error:
//  1. enter: scheduler.step()
//  2. on Error, the root fiber raised and nothing caught it, or some fiber
//     hit a fatal engine error; surface it to the caller instead of the Nil
//     a successful run would return (§7)
//  3. on Yield, dispatch to the driver outside any GC-mutating section
//  4. drain driver.poll() and wake each
//  5. on Park with nothing to wake, the host would block; since StdDriver's
//     Poll never blocks, an empty Park with no pending operations at all
//     signals a stalled program rather than a real wait.
func (e *Engine) drive() (vm.Value, error) {
	gcCounter := 0
	for {
		out := e.scheduler.Step()
		switch out.Kind {
		case scheduler.Return:
			return out.Value, nil

		case scheduler.Error:
			return vm.Nil, out.Err

		case scheduler.Yield:
			if err := e.driver.Dispatch(scheduler.Operation{ID: out.ID, Payload: out.Payload}); err != nil {
				return vm.Nil, vmerr.NewFatal("dispatch operation", err)
			}

		case scheduler.Continue:
			gcCounter++
			if e.config.GCStepInterval > 0 && gcCounter >= e.config.GCStepInterval {
				gcCounter = 0
				e.scheduler.Collect()
			}

		case scheduler.Park:
			if e.scheduler.PendingCount() == 0 {
				return vm.Nil, vmerr.NewFatal("deadlock: no runnable or pending fibers remain", nil)
			}
			responses := e.driver.Poll()
			if len(responses) == 0 {
				// Nothing completed yet; the abstract model says to block
				// waiting on the driver. StdDriver's Poll never blocks, so
				// yield the host thread briefly and retry rather than
				// busy-spinning it at full CPU.
				time.Sleep(time.Millisecond)
				continue
			}
			for _, resp := range responses {
				if err := e.scheduler.Wake(resp.ID, resp.Result); err != nil {
					return vm.Nil, err
				}
			}
		}
	}
}
