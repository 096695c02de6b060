package core

import (
	"sync"
	"time"
)

// Lane is an execution context for callbacks. A lane that supports ordering
// runs submitted callbacks in FIFO order, one at a time.
type Lane interface {
	Submit(task func()) error
	SupportsOrdering() bool
	// Backlog is how many tasks may wait before Submit blocks, or Unbounded.
	Backlog() int64
}

// Immediate is the synchronous lane: Submit runs the task on the caller's
// goroutine before returning.
var Immediate Lane = immediateLane{}

type immediateLane struct{}

func (immediateLane) Submit(task func()) error {
	task()
	return nil
}

func (immediateLane) SupportsOrdering() bool { return true }

func (immediateLane) Backlog() int64 { return Unbounded }

// Cancelable is the handle of a scheduled timer task.
type Cancelable interface {
	// Cancel disarms the task. It is idempotent and reports whether this
	// call prevented a pending run.
	Cancel() bool
}

// Timer schedules one-shot and periodic callbacks.
type Timer interface {
	Schedule(delay time.Duration, task func()) Cancelable
	ScheduleRepeating(period time.Duration, task func()) Cancelable
}

// SystemTimer schedules on the wall clock using the runtime timer heap.
// It holds no state, so it is safe to share.
var SystemTimer Timer = systemTimer{}

type systemTimer struct{}

func (systemTimer) Schedule(delay time.Duration, task func()) Cancelable {
	return stdTimer{time.AfterFunc(delay, task)}
}

func (systemTimer) ScheduleRepeating(period time.Duration, task func()) Cancelable {
	r := &repeating{period: period, task: task}
	r.mu.Lock()
	r.t = time.AfterFunc(period, r.fire)
	r.mu.Unlock()
	return r
}

type stdTimer struct{ t *time.Timer }

func (s stdTimer) Cancel() bool { return s.t.Stop() }

type repeating struct {
	mu      sync.Mutex
	t       *time.Timer
	period  time.Duration
	task    func()
	stopped bool
}

func (r *repeating) fire() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.t = time.AfterFunc(r.period, r.fire)
	r.mu.Unlock()
	r.task()
}

func (r *repeating) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.stopped = true
	return r.t.Stop()
}
