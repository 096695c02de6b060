// Package parallel maps values on several goroutines at once while keeping
// the stream's demand contract: at most n values are in flight, and no more
// are taken from the upstream than the downstream asked for.
//
// Work runs on the environment lane when it is a pool (a lane without
// ordering); otherwise every value gets its own goroutine.
package parallel

import (
	"context"

	"github.com/lguimbarda/min-rx/flow/core"
)

// Map applies fn to up to n values concurrently and emits the results as
// they finish, in any order. The first error fails the stream. n <= 0 means
// one value at a time.
func Map[IN, OUT any](n int, fn func(IN) (OUT, error)) core.Transformer[IN, OUT] {
	return AsyncMap(n, ignoreContext(fn))
}

// Ordered is Map with results emitted in upstream order. A finished result
// waits for the ones before it and still counts against n.
func Ordered[IN, OUT any](n int, fn func(IN) (OUT, error)) core.Transformer[IN, OUT] {
	return AsyncMapOrdered(n, ignoreContext(fn))
}

// FlatMap is Map for functions returning several results per value. The
// results of one value are emitted together.
func FlatMap[IN, OUT any](n int, fn func(IN) ([]OUT, error)) core.Transformer[IN, OUT] {
	return core.Lift[IN, OUT](func(ctx context.Context, down core.Subscriber[OUT]) core.Subscriber[IN] {
		return newWorkers(ctx, down, n, false, func(_ context.Context, v IN) ([]OUT, error) { return fn(v) }).op
	})
}

// AsyncMap is Map for functions that take a context. The context is
// cancelled when the stream terminates or is cancelled.
func AsyncMap[IN, OUT any](n int, fn func(context.Context, IN) (OUT, error)) core.Transformer[IN, OUT] {
	return core.Lift[IN, OUT](func(ctx context.Context, down core.Subscriber[OUT]) core.Subscriber[IN] {
		return newWorkers(ctx, down, n, false, single(fn)).op
	})
}

// AsyncMapOrdered is AsyncMap with results emitted in upstream order.
func AsyncMapOrdered[IN, OUT any](n int, fn func(context.Context, IN) (OUT, error)) core.Transformer[IN, OUT] {
	return core.Lift[IN, OUT](func(ctx context.Context, down core.Subscriber[OUT]) core.Subscriber[IN] {
		return newWorkers(ctx, down, n, true, single(fn)).op
	})
}

func ignoreContext[IN, OUT any](fn func(IN) (OUT, error)) func(context.Context, IN) (OUT, error) {
	return func(_ context.Context, v IN) (OUT, error) { return fn(v) }
}

func single[IN, OUT any](fn func(context.Context, IN) (OUT, error)) func(context.Context, IN) ([]OUT, error) {
	return func(ctx context.Context, v IN) ([]OUT, error) {
		out, err := fn(ctx, v)
		if err != nil {
			return nil, err
		}
		return []OUT{out}, nil
	}
}

type result[OUT any] struct {
	values []OUT
	err    error
}

// workers runs fn off the operator's domain and feeds the results back into
// it. busy counts values taken from the upstream and not yet emitted.
type workers[IN, OUT any] struct {
	op      *core.Operator[IN, OUT]
	ctx     context.Context
	cancel  context.CancelFunc
	fn      func(context.Context, IN) ([]OUT, error)
	n       int64
	ordered bool

	busy int64
	seq  int64
	next int64
	done map[int64]result[OUT]
}

func newWorkers[IN, OUT any](ctx context.Context, down core.Subscriber[OUT], n int, ordered bool, fn func(context.Context, IN) ([]OUT, error)) *workers[IN, OUT] {
	wctx, cancel := context.WithCancel(ctx)
	w := &workers[IN, OUT]{
		op:      core.NewOperator[IN, OUT](ctx, down),
		ctx:     wctx,
		cancel:  cancel,
		fn:      fn,
		n:       int64(max(n, 1)),
		ordered: ordered,
		done:    make(map[int64]result[OUT]),
	}
	o := w.op
	o.Requested = func(int64) { w.refill() }
	o.Next = w.start
	o.Completed = func() {
		if w.busy == 0 {
			o.Complete()
		}
	}
	o.Release = func() {
		w.cancel()
		clear(w.done)
	}
	return w
}

// refill asks the upstream for as many values as fit in the window and
// are covered by downstream demand.
func (w *workers[IN, OUT]) refill() {
	if w.op.Terminated() || w.op.UpstreamDone() {
		return
	}
	want := min(w.op.Demand(), w.n) - w.busy - w.op.UpstreamDemand()
	if want > 0 {
		w.op.RequestUpstream(want)
	}
}

func (w *workers[IN, OUT]) start(v IN) {
	w.busy++
	idx := w.seq
	w.seq++
	task := func() {
		out, err := core.Protect1(func() ([]OUT, error) { return w.fn(w.ctx, v) })
		w.op.Do(func() { w.finish(idx, result[OUT]{values: out, err: err}) })
	}
	if err := w.submit(task); err != nil {
		w.op.Fail(err)
	}
}

func (w *workers[IN, OUT]) submit(task func()) error {
	if lane := w.op.Env().Lane; lane != nil && !lane.SupportsOrdering() {
		return lane.Submit(task)
	}
	go task()
	return nil
}

func (w *workers[IN, OUT]) finish(idx int64, r result[OUT]) {
	if !w.ordered {
		w.emit(r)
	} else {
		w.done[idx] = r
		for {
			r, ok := w.done[w.next]
			if !ok {
				break
			}
			delete(w.done, w.next)
			w.next++
			w.emit(r)
			if w.op.Terminated() {
				return
			}
		}
	}
	if w.op.Terminated() {
		return
	}
	if w.op.UpstreamDone() && w.busy == 0 {
		w.op.Complete()
		return
	}
	w.refill()
}

func (w *workers[IN, OUT]) emit(r result[OUT]) {
	w.busy--
	if r.err != nil {
		w.op.Fail(r.err)
		return
	}
	for _, v := range r.values {
		if !w.op.Emit(v) {
			return
		}
	}
}
