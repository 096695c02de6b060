package sched

import (
	"container/heap"
	"sync"
	"time"

	"github.com/lguimbarda/min-rx/flow/core"
)

// VirtualTimer is a core.Timer whose clock only moves when Advance is
// called. Due tasks run synchronously on the goroutine calling Advance, in
// due-time order and, for equal times, in scheduling order.
type VirtualTimer struct {
	mu    sync.Mutex
	now   time.Duration
	seq   uint64
	tasks taskHeap
}

// NewVirtualTimer creates a timer at virtual time zero.
func NewVirtualTimer() *VirtualTimer {
	return &VirtualTimer{}
}

var _ core.Timer = (*VirtualTimer)(nil)

// Now returns the virtual time elapsed since creation.
func (v *VirtualTimer) Now() time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// Pending returns the number of armed tasks.
func (v *VirtualTimer) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, t := range v.tasks {
		if !t.cancelled {
			n++
		}
	}
	return n
}

func (v *VirtualTimer) Schedule(delay time.Duration, task func()) core.Cancelable {
	return v.add(delay, 0, task)
}

func (v *VirtualTimer) ScheduleRepeating(period time.Duration, task func()) core.Cancelable {
	if period <= 0 {
		period = time.Nanosecond
	}
	return v.add(period, period, task)
}

func (v *VirtualTimer) add(delay, period time.Duration, task func()) *virtualTask {
	if delay < 0 {
		delay = 0
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seq++
	t := &virtualTask{timer: v, due: v.now + delay, period: period, seq: v.seq, fn: task}
	heap.Push(&v.tasks, t)
	return t
}

// Advance moves the clock forward by d, running every task that becomes due.
// Tasks scheduled by a running task are run too if they fall due in range.
func (v *VirtualTimer) Advance(d time.Duration) {
	v.mu.Lock()
	target := v.now + d
	v.mu.Unlock()
	for {
		v.mu.Lock()
		if len(v.tasks) == 0 || v.tasks[0].due > target {
			v.now = target
			v.mu.Unlock()
			return
		}
		t := heap.Pop(&v.tasks).(*virtualTask)
		if t.cancelled {
			v.mu.Unlock()
			continue
		}
		v.now = t.due
		if t.period > 0 {
			v.seq++
			t.due += t.period
			t.seq = v.seq
			heap.Push(&v.tasks, t)
		} else {
			t.fired = true
		}
		v.mu.Unlock()
		t.fn()
	}
}

type virtualTask struct {
	timer     *VirtualTimer
	due       time.Duration
	period    time.Duration
	seq       uint64
	fn        func()
	cancelled bool
	fired     bool
	index     int
}

// Cancel disarms the task. It reports false if the task already fired or
// was cancelled before.
func (t *virtualTask) Cancel() bool {
	t.timer.mu.Lock()
	defer t.timer.mu.Unlock()
	if t.cancelled || t.fired {
		return false
	}
	t.cancelled = true
	if t.index >= 0 && t.index < len(t.timer.tasks) && t.timer.tasks[t.index] == t {
		heap.Remove(&t.timer.tasks, t.index)
	}
	return true
}

type taskHeap []*virtualTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*virtualTask)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
