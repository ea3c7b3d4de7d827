package scheduler

import (
	"github.com/google/uuid"

	"github.com/ravern/doji/vm"
)

// Operation is a request dispatched to the host Driver when a fiber
// executes YIELD: an id (assigned by the scheduler before Dispatch is
// called, so it can be embedded in whatever the Driver schedules) and the
// Value the guest fiber yielded as the operation's payload (spec.md §6).
type Operation struct {
	ID      uuid.UUID
	Payload vm.Value
}

// Response pairs a completed Operation's id with the Value to wake its
// fiber with.
type Response struct {
	ID     uuid.UUID
	Result vm.Value
}

// Driver is the pluggable async I/O contract an Engine is configured with
// (spec.md §6). Dispatch hands off a newly yielded Operation; Poll is
// called by the engine's run loop whenever the scheduler reports Park, and
// returns zero or more now-completed Responses without blocking.
type Driver interface {
	Dispatch(op Operation) error
	Poll() []Response
}

// SleepPayload is the one operation shape the spec requires every Driver
// to understand: sleep for a duration and then wake with Nil (spec.md §6,
// "the Sleep operation"). Guest code requests it by yielding a Map with
// "op" = "sleep" and "millis" = Int(n); any other "op" is forwarded to the
// Driver untouched, so an embedder can layer its own operation vocabulary
// over the same dispatch path.
type SleepPayload struct {
	Millis int64
}

// sleepFields extracts a SleepPayload from a yielded Map value built by the
// convention above. ok is false if payload is not a Sleep request.
func sleepFields(payload vm.Value) (SleepPayload, bool) {
	if payload.Kind() != vm.KindMap {
		return SleepPayload{}, false
	}
	m := payload.AsMap()
	op, ok := m.GetString("op")
	if !ok || op.Kind() != vm.KindString || op.AsString().Data != "sleep" {
		return SleepPayload{}, false
	}
	millis, ok := m.GetString("millis")
	if !ok || millis.Kind() != vm.KindInt {
		return SleepPayload{}, false
	}
	return SleepPayload{Millis: millis.AsInt()}, true
}
