// Package sched provides Lane and Timer implementations for running
// pipelines off the caller's goroutine: a single-goroutine FIFO lane, a
// worker-pool lane and a virtual timer for deterministic tests.
package sched

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lguimbarda/min-rx/flow/core"
)

// ErrSaturated is returned by Submit when the lane backlog is full.
var ErrSaturated = errors.New("lane backlog is full")

// DefaultBacklog is the task backlog used when none is given.
const DefaultBacklog = 1024

// Serial is a Lane that runs tasks one at a time, in submission order, on a
// single goroutine.
type Serial struct {
	*worker
}

// NewSerial starts a serial lane with room for backlog queued tasks.
func NewSerial(ctx context.Context, backlog int) *Serial {
	return &Serial{newWorker(ctx, 1, backlog)}
}

// SupportsOrdering reports true: tasks run in submission order.
func (s *Serial) SupportsOrdering() bool { return true }

// Pool is a Lane backed by a fixed set of worker goroutines. Tasks may run
// concurrently and out of submission order.
type Pool struct {
	*worker
}

// NewPool starts a pool of workers goroutines sharing a backlog. workers <= 0
// uses runtime.NumCPU().
func NewPool(ctx context.Context, workers, backlog int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{newWorker(ctx, workers, backlog)}
}

// SupportsOrdering reports false: tasks may overtake each other.
func (p *Pool) SupportsOrdering() bool { return false }

var (
	_ core.Lane = (*Serial)(nil)
	_ core.Lane = (*Pool)(nil)
)

type worker struct {
	tasks   chan func()
	backlog int
	group   *errgroup.Group
	log     *zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

func newWorker(ctx context.Context, n, backlog int) *worker {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	g, gctx := errgroup.WithContext(ctx)
	w := &worker{
		tasks:   make(chan func(), backlog),
		backlog: backlog,
		group:   g,
		log:     zerolog.Ctx(ctx),
	}
	for range n {
		g.Go(func() error { return w.loop(gctx) })
	}
	return w
}

func (w *worker) loop(ctx context.Context) error {
	for {
		select {
		case task, ok := <-w.tasks:
			if !ok {
				return nil
			}
			w.run(task)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *worker) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Err(core.NewPanicError(r)).Msg("lane task panicked")
		}
	}()
	task()
}

// Submit queues task. It returns core.ErrLaneClosed after Close and
// ErrSaturated when the backlog is full.
func (w *worker) Submit(task func()) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return core.ErrLaneClosed
	}
	select {
	case w.tasks <- task:
		return nil
	default:
		return ErrSaturated
	}
}

// Backlog returns the number of tasks the lane can hold.
func (w *worker) Backlog() int64 { return int64(w.backlog) }

// Len returns the number of tasks waiting to run.
func (w *worker) Len() int { return len(w.tasks) }

// Close stops accepting tasks, lets the workers finish the backlog and waits
// for them. It returns the context error if the lane context ended first.
func (w *worker) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.tasks)
	}
	w.mu.Unlock()
	err := w.group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
