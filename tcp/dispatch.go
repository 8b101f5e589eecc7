package tcp

/**
 * Dispatch policies routing accepted connections to the handler
 */

import (
	"fmt"
	"time"

	"echod/lib/sync/wait"
	"github.com/panjf2000/ants/v2"
)

// Dispatch policies selectable through Config.Dispatch
const (
	DispatchSerial     = "serial"
	DispatchConcurrent = "concurrent"
	DispatchPool       = "pool"
)

const defaultPoolSize = 1000

// dispatcher schedules one handler invocation per connection and tracks
// in-flight invocations so shutdown can drain them
type dispatcher interface {
	Dispatch(task func())
	// Drain waits for in-flight tasks, returns true if the grace period expired first
	Drain(grace time.Duration) bool
}

func newDispatcher(policy string, poolSize int) (dispatcher, error) {
	switch policy {
	case DispatchSerial:
		return &serialDispatcher{}, nil
	case DispatchConcurrent, "":
		return &goDispatcher{}, nil
	case DispatchPool:
		if poolSize <= 0 {
			poolSize = defaultPoolSize
		}
		p, err := ants.NewPool(poolSize)
		if err != nil {
			return nil, fmt.Errorf("create worker pool: %w", err)
		}
		return &poolDispatcher{pool: p}, nil
	default:
		return nil, fmt.Errorf("unknown dispatch policy: %s", policy)
	}
}

// serialDispatcher runs the handler inline: the next accept starts only
// after the handler returns
type serialDispatcher struct{}

func (d *serialDispatcher) Dispatch(task func()) {
	task()
}

func (d *serialDispatcher) Drain(grace time.Duration) bool {
	// inline tasks finished inside the accept loop
	return false
}

// goDispatcher spawns one goroutine per connection
type goDispatcher struct {
	working wait.Wait
}

func (d *goDispatcher) Dispatch(task func()) {
	d.working.Add(1)
	go func() {
		defer d.working.Done()
		task()
	}()
}

func (d *goDispatcher) Drain(grace time.Duration) bool {
	return d.working.WaitWithTimeout(grace)
}

// poolDispatcher bounds in-flight handlers with a worker pool. Dispatch
// blocks while all workers are busy, applying backpressure to the accept loop.
type poolDispatcher struct {
	pool    *ants.Pool
	working wait.Wait
}

func (d *poolDispatcher) Dispatch(task func()) {
	d.working.Add(1)
	wrapped := func() {
		defer d.working.Done()
		task()
	}
	if err := d.pool.Submit(wrapped); err != nil {
		// pool released during shutdown, run inline rather than drop the connection
		wrapped()
	}
}

func (d *poolDispatcher) Drain(grace time.Duration) bool {
	timedOut := d.working.WaitWithTimeout(grace)
	d.pool.Release()
	return timedOut
}
