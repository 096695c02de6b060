package timing

import (
	"context"

	"github.com/lguimbarda/min-rx/flow/core"
)

// The overflow strategies read the upstream without backpressure and decide
// what happens to values that arrive while the downstream has no demand.

// OnOverflowBuffer holds up to size undelivered values and fails with
// core.ErrOverflow beyond that. size <= 0 takes the TimingConfig buffer
// size from the context, then the environment capacity. Held values are
// still delivered after the upstream completes.
func OnOverflowBuffer[T any](size int) core.Transformer[T, T] {
	return core.Lift[T, T](func(ctx context.Context, down core.Subscriber[T]) core.Subscriber[T] {
		o := core.NewOperator[T, T](ctx, down)
		limit := effectiveBufferSize(ctx, size)
		f := newOverflow(o, func(queue []T, v T) ([]T, bool) {
			if len(queue) >= limit {
				return queue, false
			}
			return append(queue, v), true
		})
		f.capacity = limit
		return o
	})
}

// OnOverflowDrop drops values that arrive without demand, passing each to
// onDrop when it is not nil.
func OnOverflowDrop[T any](onDrop func(T)) core.Transformer[T, T] {
	return core.Lift[T, T](func(ctx context.Context, down core.Subscriber[T]) core.Subscriber[T] {
		o := core.NewOperator[T, T](ctx, down)
		newOverflow(o, func(queue []T, v T) ([]T, bool) {
			o.Logger().Trace().Msg("dropping value without demand")
			if onDrop != nil {
				if err := core.Protect(func() error { onDrop(v); return nil }); err != nil {
					o.Fail(err)
				}
			}
			return queue, true
		})
		return o
	})
}

// OnOverflowLatest keeps only the most recent value that arrived without
// demand and delivers it on the next request.
func OnOverflowLatest[T any]() core.Transformer[T, T] {
	return core.Lift[T, T](func(ctx context.Context, down core.Subscriber[T]) core.Subscriber[T] {
		o := core.NewOperator[T, T](ctx, down)
		newOverflow(o, func(queue []T, v T) ([]T, bool) {
			if len(queue) == 0 {
				return append(queue, v), true
			}
			queue[0] = v
			return queue, true
		})
		return o
	})
}

// overflow delivers straight through while there is demand and hands every
// other value to hold, which returns the new queue or false to overflow.
type overflow[T any] struct {
	op        *core.Operator[T, T]
	hold      func(queue []T, v T) ([]T, bool)
	queue     []T
	capacity  int
	requested bool
}

func newOverflow[T any](o *core.Operator[T, T], hold func([]T, T) ([]T, bool)) *overflow[T] {
	f := &overflow[T]{op: o, hold: hold}
	o.Requested = func(int64) {
		if !f.requested {
			f.requested = true
			o.RequestUpstream(core.Unbounded)
		}
		f.drain()
	}
	o.Next = f.next
	o.Completed = f.drain
	o.Release = func() { f.queue = nil }
	return f
}

func (f *overflow[T]) next(v T) {
	if len(f.queue) == 0 && f.op.Demand() > 0 {
		f.op.Emit(v)
		return
	}
	queue, ok := f.hold(f.queue, v)
	if !ok {
		f.op.Fail(&core.OverflowError{Capacity: f.capacity})
		return
	}
	f.queue = queue
}

func (f *overflow[T]) drain() {
	for len(f.queue) > 0 && f.op.Demand() > 0 {
		v := f.queue[0]
		var zero T
		f.queue[0] = zero
		f.queue = f.queue[1:]
		f.op.Emit(v)
		if f.op.Terminated() {
			return
		}
	}
	if f.op.UpstreamDone() && len(f.queue) == 0 {
		f.op.Complete()
	}
}
