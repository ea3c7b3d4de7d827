package engine

import (
	"github.com/google/uuid"

	"github.com/ravern/doji/bytecode"
	"github.com/ravern/doji/compiler"
	"github.com/ravern/doji/scheduler"
	"github.com/ravern/doji/stdlib"
	"github.com/ravern/doji/vm"
)

// Context is the short-lived handle an Engine grants to a callback passed
// to Enter: within it, heap allocation is safe and Values are valid
// (spec.md §4.6). A Value must not be retained past the Context that
// produced it unless promoted via Root.
type Context struct {
	engine *Engine
}

// Compile delegates to the external compiler package, turning Dōji source
// text into a top-level zero-arity Function ready to be wrapped in a
// Closure and spawned.
func (c *Context) Compile(source string) (*bytecode.Function, error) {
	return compiler.Compile(source, stdlib.GlobalNames())
}

// Spawn allocates a fiber over fn's top-level closure and enqueues it
// ready. fn's "upvalues" are really the default global environment
// (stdlib.Values), bound once per compiled Function rather than captured
// from any enclosing frame, since a top-level script has no enclosing
// frame to capture from.
func (c *Context) Spawn(fn *bytecode.Function) *vm.Fiber {
	upvalues := make([]*vm.Upvalue, len(fn.Upvalues))
	for i, v := range stdlib.Values(c.engine.heap) {
		upvalues[i] = vm.NewClosedUpvalue(v)
	}
	closure := vm.NewClosure(c.engine.heap, fn, upvalues).AsClosure()
	return c.engine.scheduler.Spawn(closure)
}

// Root promotes v to a RootValue: an opaque token keeping it alive across
// Collect passes between Enter calls (spec.md §4.6).
func (c *Context) Root(v vm.Value) RootValue {
	return RootValue{id: c.engine.scheduler.Root(v), value: v}
}

// Unroot releases a RootValue and returns the Value it held.
func (c *Context) Unroot(r RootValue) vm.Value {
	c.engine.scheduler.Unroot(r.id)
	return r.value
}

// RootValue is a GC-safe, opaque token an embedder holds to keep a Value
// alive across Enter boundaries (spec.md §9/GLOSSARY). Its implementation
// is a dynamically tracked root-set entry owned by the scheduler's State,
// not by the Heap.
type RootValue struct {
	id    uuid.UUID
	value vm.Value
}

// Value returns the Value this token is rooting, valid to read inside any
// Context (a RootValue's referent is never collected while registered).
func (r RootValue) Value() vm.Value { return r.value }
