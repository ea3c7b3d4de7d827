package vm

// Upvalue is a closure's reference to a binding in an enclosing frame. While
// Open it aliases a live stack slot so writes from either the enclosing
// frame or any closure that captured it stay consistent; once the
// enclosing frame returns (or UPVAL_CLOSE runs on its slot), the slot's
// current value is snapshotted and the Upvalue becomes Closed, independent
// of any stack (spec.md §5).
type Upvalue struct {
	Closed bool

	// Open state: Stack/Slot locate the live value on the owning fiber's
	// value stack.
	stack *[]Value
	slot  int

	// Closed state.
	Value Value
}

// newOpenUpvalue creates an Upvalue aliasing stack[slot].
func newOpenUpvalue(stack *[]Value, slot int) *Upvalue {
	return &Upvalue{stack: stack, slot: slot}
}

// NewClosedUpvalue creates an Upvalue that is already Closed over v, with no
// stack slot to alias. Used to bind values that were never a local of any
// fiber frame — the default global environment a top-level script's root
// closure captures (see engine.Context.Spawn).
func NewClosedUpvalue(v Value) *Upvalue {
	return &Upvalue{Closed: true, Value: v}
}

// Get reads the upvalue's current value, whether Open or Closed.
func (u *Upvalue) Get() Value {
	if u.Closed {
		return u.Value
	}
	return (*u.stack)[u.slot]
}

// Set writes through to the live slot if Open, or to the snapshot if
// Closed.
func (u *Upvalue) Set(v Value) {
	if u.Closed {
		u.Value = v
		return
	}
	(*u.stack)[u.slot] = v
}

// Close snapshots the current slot value and detaches the Upvalue from the
// stack. Called when the stack frame owning Slot is about to be popped, or
// explicitly by UPVAL_CLOSE.
func (u *Upvalue) Close() {
	if u.Closed {
		return
	}
	u.Value = (*u.stack)[u.slot]
	u.Closed = true
	u.stack = nil
}

// openUpvalues tracks a fiber's currently-Open upvalues, kept ordered by
// descending slot as in the classic Lua-style "open upvalue list".
// closeFrom (on RETURN or UPVAL_CLOSE) and find both scan the whole list;
// neither relies on the order to stop early.
type openUpvalues struct {
	list []*Upvalue
}

// find returns an existing Open upvalue for slot, creating one if absent —
// closures capturing the same local must share one Upvalue instance so
// writes through either are visible to the other (spec.md §5).
func (o *openUpvalues) find(stack *[]Value, slot int) *Upvalue {
	for _, uv := range o.list {
		if !uv.Closed && uv.slot == slot {
			return uv
		}
	}
	uv := newOpenUpvalue(stack, slot)
	i := 0
	for i < len(o.list) && o.list[i].slot > slot {
		i++
	}
	o.list = append(o.list, nil)
	copy(o.list[i+1:], o.list[i:])
	o.list[i] = uv
	return uv
}

// closeFrom closes (and removes from the tracking list) every Open upvalue
// at slot >= floor.
func (o *openUpvalues) closeFrom(floor int) {
	kept := o.list[:0]
	for _, uv := range o.list {
		if !uv.Closed && uv.slot >= floor {
			uv.Close()
		} else {
			kept = append(kept, uv)
		}
	}
	o.list = kept
}
