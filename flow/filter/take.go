package filter

import (
	"context"
	"errors"

	"github.com/lguimbarda/min-rx/flow/core"
)

// ErrNoElement is delivered by ElementAt when the stream completes before
// reaching the index.
var ErrNoElement = errors.New("filter: no element at index")

// Take passes the first n values and completes, cancelling the upstream.
// The upstream is never asked for more than n values. n <= 0 completes at
// once.
func Take[T any](n int) core.Transformer[T, T] {
	return core.Lift[T, T](func(ctx context.Context, down core.Subscriber[T]) core.Subscriber[T] {
		o := core.NewOperator[T, T](ctx, down)
		limit := int64(max(n, 0))
		var requested, taken int64
		o.Requested = func(k int64) {
			ask := min(k, limit-requested)
			requested += ask
			o.RequestUpstream(ask)
		}
		o.Next = func(v T) {
			taken++
			o.Emit(v)
			if taken >= limit {
				o.Complete()
			}
		}
		if limit == 0 {
			o.Do(o.Complete)
		}
		return o
	})
}

// First is Take(1).
func First[T any]() core.Transformer[T, T] {
	return Take[T](1)
}

// TakeWhile passes values while predicate holds and completes on the first
// value that fails it, cancelling the upstream.
func TakeWhile[T any](predicate func(T) bool) core.Transformer[T, T] {
	return core.Lift[T, T](func(ctx context.Context, down core.Subscriber[T]) core.Subscriber[T] {
		o := core.NewOperator[T, T](ctx, down)
		o.Next = func(v T) {
			ok, failed := check(o, predicate, v)
			switch {
			case failed:
			case ok:
				o.Emit(v)
			default:
				o.Complete()
			}
		}
		return o
	})
}

// Skip drops the first n values. They are requested together with the
// first downstream request.
func Skip[T any](n int) core.Transformer[T, T] {
	return core.Lift[T, T](func(ctx context.Context, down core.Subscriber[T]) core.Subscriber[T] {
		o := core.NewOperator[T, T](ctx, down)
		remaining := int64(max(n, 0))
		first := true
		o.Requested = func(k int64) {
			if first {
				first = false
				k = core.AddCap(k, remaining)
			}
			o.RequestUpstream(k)
		}
		o.Next = func(v T) {
			if remaining > 0 {
				remaining--
				return
			}
			o.Emit(v)
		}
		return o
	})
}

// SkipWhile drops values while predicate holds and passes everything from
// the first value that fails it.
func SkipWhile[T any](predicate func(T) bool) core.Transformer[T, T] {
	return core.Lift[T, T](func(ctx context.Context, down core.Subscriber[T]) core.Subscriber[T] {
		o := core.NewOperator[T, T](ctx, down)
		skipping := true
		o.Next = func(v T) {
			if skipping {
				ok, failed := check(o, predicate, v)
				if failed {
					return
				}
				if ok {
					o.RequestUpstream(1)
					return
				}
				skipping = false
			}
			o.Emit(v)
		}
		return o
	})
}

// ElementAt emits the value at index, counting from zero, and completes.
// It fails with ErrNoElement when the stream is shorter.
func ElementAt[T any](index int) core.Transformer[T, T] {
	return core.Through[T, T, T](Skip[T](index), core.Lift[T, T](func(ctx context.Context, down core.Subscriber[T]) core.Subscriber[T] {
		o := core.NewOperator[T, T](ctx, down)
		asked := false
		o.Requested = func(int64) {
			if !asked {
				asked = true
				o.RequestUpstream(1)
			}
		}
		o.Next = func(v T) {
			o.Emit(v)
			o.Complete()
		}
		o.Completed = func() { o.Fail(ErrNoElement) }
		return o
	}))
}

// Last emits the final n values once the upstream completes. The upstream
// is read without backpressure; the kept values then follow the downstream
// demand.
func Last[T any](n int) core.Transformer[T, T] {
	return core.Lift[T, T](func(ctx context.Context, down core.Subscriber[T]) core.Subscriber[T] {
		o := core.NewOperator[T, T](ctx, down)
		size := max(n, 0)
		var (
			ring      = make([]T, 0, size)
			start     int
			requested bool
			tail      []T
		)
		drain := func() {
			for len(tail) > 0 && o.Demand() > 0 {
				v := tail[0]
				tail = tail[1:]
				o.Emit(v)
			}
			if len(tail) == 0 {
				o.Complete()
			}
		}
		o.Requested = func(int64) {
			if !requested {
				requested = true
				o.RequestUpstream(core.Unbounded)
			}
			if o.UpstreamDone() {
				drain()
			}
		}
		o.Next = func(v T) {
			if size == 0 {
				return
			}
			if len(ring) < size {
				ring = append(ring, v)
				return
			}
			ring[start] = v
			start = (start + 1) % size
		}
		o.Completed = func() {
			tail = append(ring[start:len(ring):len(ring)], ring[:start]...)
			ring = nil
			drain()
		}
		o.Release = func() { ring, tail = nil, nil }
		return o
	})
}
