package scheduler

import (
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ravern/doji/vm"
	"github.com/ravern/doji/vmerr"
)

// StdDriver is Dōji's batteries-included Driver: it understands the Sleep
// operation (spec.md §6) and otherwise rejects unknown operations. It is
// the Driver cmd/doji configures, and the reference implementation an
// embedder's custom Driver can be grafted onto; engine.NewBuilder's
// default Driver is a no-op one instead. Each dispatched sleep runs
// its own timer goroutine supervised by an errgroup.Group; completions are
// appended to a mutex-guarded queue that Poll drains without blocking,
// mirroring the original doji-driver-std crate's timer-wheel-via-async-
// runtime design adapted to goroutines instead of an async executor.
type StdDriver struct {
	mu        sync.Mutex
	completed []Response

	group *errgroup.Group
}

// NewStdDriver creates a StdDriver. It carries no heap reference: the Sleep
// convention's "op"/"millis" keys are read via MapObj.GetString, so a
// Driver can be constructed before the Engine that will use it exists.
func NewStdDriver() *StdDriver {
	return &StdDriver{group: &errgroup.Group{}}
}

func (d *StdDriver) Dispatch(op Operation) error {
	sleep, ok := sleepFields(op.Payload)
	if !ok {
		return vmerr.New(vmerr.UserError, "unsupported driver operation: %s", op.Payload.DebugString())
	}
	id := op.ID
	d.group.Go(func() error {
		if sleep.Millis > 0 {
			time.Sleep(time.Duration(sleep.Millis) * time.Millisecond)
		}
		d.mu.Lock()
		d.completed = append(d.completed, Response{ID: id, Result: vm.Nil})
		d.mu.Unlock()
		return nil
	})
	return nil
}

func (d *StdDriver) Poll() []Response {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.completed) == 0 {
		return nil
	}
	out := d.completed
	d.completed = nil
	return out
}

// Wait blocks until every dispatched operation's goroutine has finished,
// for use by cmd/doji's `run` subcommand at shutdown so it does not exit
// with timers still in flight.
func (d *StdDriver) Wait() error {
	return d.group.Wait()
}
