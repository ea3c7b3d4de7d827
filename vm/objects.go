package vm

import (
	"math"
	"reflect"

	"github.com/ravern/doji/bytecode"
)

// ObjHeader is embedded in every heap object. Marked is set/cleared by each
// Heap.Collect pass; Freed is set once and for all when an object is swept,
// so a WeakRef taken before collection can still observe that the object it
// pointed at is gone (spec.md §8, testable property 6).
type ObjHeader struct {
	Marked bool
	Freed  bool
}

func (h *ObjHeader) Header() *ObjHeader { return h }

// Object is implemented by every heap-allocated value payload. Trace calls
// visit once per Value the object directly holds, letting Heap.Collect walk
// the reachability graph without type-switching on every container kind.
type Object interface {
	Header() *ObjHeader
	Trace(visit func(Value))
	Kind() Kind
}

// StringObj is an immutable byte string. Two distinct StringObj allocations
// with identical Data are == under Value.Eq, which is why MapObj cannot use
// Go's native map (pointer-identity hashing would split them into separate
// buckets); see Hash below.
type StringObj struct {
	ObjHeader
	Data string
}

func (s *StringObj) Trace(func(Value)) {}
func (s *StringObj) Kind() Kind         { return KindString }

func NewString(h *Heap, data string) Value {
	s := &StringObj{Data: data}
	h.register(s)
	return fromObject(KindString, s)
}

// ListObj is a growable, ordered, mutable sequence (spec.md §4.2). OBJ_SET
// at an index past the end grows it with Nil fills up to that index.
type ListObj struct {
	ObjHeader
	Items []Value
}

func (l *ListObj) Trace(visit func(Value)) {
	for _, v := range l.Items {
		visit(v)
	}
}
func (l *ListObj) Kind() Kind { return KindList }

func NewList(h *Heap, items []Value) Value {
	l := &ListObj{Items: items}
	h.register(l)
	return fromObject(KindList, l)
}

// mapEntry is one slot of a hash bucket.
type mapEntry struct {
	key   Value
	value Value
}

// MapObj is a hand-rolled content-hashed map: Go's native map type cannot be
// used because two Values of different heap identity (e.g. two separately
// allocated StringObjs with the same Data, or an Int and an equal-valued
// Float) must collide to the same key under the guest language's equality
// law, and Go's map key hashing has no hook for a custom Eq. Collisions
// within a bucket are resolved by linear scan using Value.Eq.
type MapObj struct {
	ObjHeader
	buckets map[uint64][]mapEntry
	size    int
}

func (m *MapObj) Trace(visit func(Value)) {
	for _, bucket := range m.buckets {
		for _, e := range bucket {
			visit(e.key)
			visit(e.value)
		}
	}
}
func (m *MapObj) Kind() Kind { return KindMap }

func NewMap(h *Heap) Value {
	m := &MapObj{buckets: make(map[uint64][]mapEntry)}
	h.register(m)
	return fromObject(KindMap, m)
}

// Get returns the value for key and whether it was present.
func (m *MapObj) Get(key Value) (Value, bool) {
	bucket := m.buckets[Hash(key)]
	for _, e := range bucket {
		if Eq(e.key, key) {
			return e.value, true
		}
	}
	return Nil, false
}

// Set inserts or overwrites key's entry (spec.md §4.2: insert on new key,
// overwrite the value on an existing one, key identity untouched).
func (m *MapObj) Set(key, value Value) {
	h := Hash(key)
	bucket := m.buckets[h]
	for i, e := range bucket {
		if Eq(e.key, key) {
			bucket[i].value = value
			return
		}
	}
	m.buckets[h] = append(bucket, mapEntry{key: key, value: value})
	m.size++
}

func (m *MapObj) Len() int { return m.size }

// GetString looks up a value keyed by a plain Go string without requiring
// the caller to allocate a StringObj on some heap first (fnv1a hashes the
// string directly the same way Hash does for a String Value). Used by
// hosts outside package vm — the scheduler's Sleep-operation convention,
// for instance — that need to read a well-known String key out of a guest
// Map.
func (m *MapObj) GetString(key string) (Value, bool) {
	bucket := m.buckets[fnv1a(key)]
	for _, e := range bucket {
		if e.key.Kind() == KindString && e.key.AsString().Data == key {
			return e.value, true
		}
	}
	return Nil, false
}

// entries flattens the bucket map for DebugString/spew rendering.
func (m *MapObj) entries() []mapEntry {
	out := make([]mapEntry, 0, m.size)
	for _, bucket := range m.buckets {
		out = append(out, bucket...)
	}
	return out
}

// ClosureObj pairs a prototype Function with the Upvalues it captured at
// CLOSURE time (spec.md §3/§5).
type ClosureObj struct {
	ObjHeader
	Fn       *bytecode.Function
	Upvalues []*Upvalue
}

func (c *ClosureObj) Trace(visit func(Value)) {
	for _, uv := range c.Upvalues {
		if uv.Closed {
			visit(uv.Value)
		}
	}
}
func (c *ClosureObj) Kind() Kind { return KindClosure }

func NewClosure(h *Heap, fn *bytecode.Function, upvalues []*Upvalue) Value {
	c := &ClosureObj{Fn: fn, Upvalues: upvalues}
	h.register(c)
	return fromObject(KindClosure, c)
}

// ErrorObj is a guest-raised error value: a message plus an arbitrary Data
// payload (spec.md §4.2's "raise" operation).
type ErrorObj struct {
	ObjHeader
	Message string
	Data    Value
}

func (e *ErrorObj) Trace(visit func(Value)) { visit(e.Data) }
func (e *ErrorObj) Kind() Kind               { return KindError }

func NewError(h *Heap, message string, data Value) Value {
	e := &ErrorObj{Message: message, Data: data}
	h.register(e)
	return fromObject(KindError, e)
}

// FiberObj wraps a *Fiber so it can live on another fiber's stack and be
// traced by the collector (its value stack and live upvalues are reachable
// roots while it is PENDING or READY).
type FiberObj struct {
	ObjHeader
	Fiber *Fiber
}

func (f *FiberObj) Trace(visit func(Value)) {
	f.Fiber.trace(visit)
}
func (f *FiberObj) Kind() Kind { return KindFiber }

func NewFiberValue(h *Heap, fib *Fiber) Value {
	obj := &FiberObj{Fiber: fib}
	h.register(obj)
	return fromObject(KindFiber, obj)
}

// WeakRef observes an object's liveness across collections without itself
// counting as a strong reference/GC root (spec.md §8, testable property 6:
// "cycle collection... observed via weak reference liveness").
type WeakRef struct {
	header *ObjHeader
}

func NewWeakRef(v Value) WeakRef {
	if v.obj == nil {
		return WeakRef{}
	}
	return WeakRef{header: v.obj.Header()}
}

// Alive reports whether the referent has not yet been swept.
func (w WeakRef) Alive() bool {
	return w.header != nil && !w.header.Freed
}

// Eq implements the guest language's structural/identity equality (spec.md
// §4.2): numbers compare across Int/Float by value; strings compare by
// content; everything else compares by heap identity.
func Eq(a, b Value) bool {
	switch {
	case a.kind == KindInt && b.kind == KindInt:
		return a.i == b.i
	case isNumeric(a.kind) && isNumeric(b.kind):
		return a.AsFloat() == b.AsFloat()
	case a.kind != b.kind:
		return false
	}
	switch a.kind {
	case KindNil:
		return true
	case KindBool:
		return a.i == b.i
	case KindString:
		return a.AsString().Data == b.AsString().Data
	case KindNativeFunction:
		return a.native == b.native
	default:
		return a.obj == b.obj
	}
}

func isNumeric(k Kind) bool { return k == KindInt || k == KindFloat }

// Hash returns a content-stable hash for use as a MapObj bucket key. Int and
// Float are unified by hashing the float64 bit pattern, so that Int(3) and
// Float(3.0) — which Eq treats as equal — also collide to the same bucket.
func Hash(v Value) uint64 {
	switch v.kind {
	case KindNil:
		return 0
	case KindBool:
		return uint64(v.i) + 1
	case KindInt:
		return math.Float64bits(float64(v.i))
	case KindFloat:
		return math.Float64bits(v.f)
	case KindString:
		return fnv1a(v.AsString().Data)
	case KindNativeFunction:
		return uint64(reflect.ValueOf(v.native).Pointer())
	default:
		return uint64(reflect.ValueOf(v.obj).Pointer())
	}
}

func fnv1a(s string) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}
