package flowerrors

import (
	"context"
	"time"

	"github.com/lguimbarda/min-rx/flow/core"
)

// RepeatWhen resubscribes to the upstream when it completes, as decided by
// fn. fn receives a stream carrying the time of every completion: each
// value of the derived stream resubscribes, an error fails the result and
// completion stops repeating and completes it. Upstream errors are not
// repeated.
func RepeatWhen[T, S any](fn func(completions core.Publisher[time.Time]) core.Publisher[S]) core.Transformer[T, T] {
	return core.TransformFunc(func(root core.Publisher[T]) core.Publisher[T] {
		return core.PublisherFunc[T](func(ctx context.Context, down core.Subscriber[T]) {
			c := subscribeControlled(ctx, down, root, fn)
			if c == nil {
				return
			}
			c.op.Completed = func() { c.await(time.Now()) }
			c.connect()
		})
	})
}

// Repeat subscribes to the upstream n more times after it completes, so
// the values are emitted n+1 times. A negative n repeats without bound.
func Repeat[T any](n int) core.Transformer[T, T] {
	limit := bound(n)
	return RepeatWhen[T](func(completions core.Publisher[time.Time]) core.Publisher[time.Time] {
		return core.Lift[time.Time, time.Time](func(ctx context.Context, down core.Subscriber[time.Time]) core.Subscriber[time.Time] {
			o := core.NewOperator[time.Time, time.Time](ctx, down)
			var seen int64
			o.Next = func(at time.Time) {
				seen++
				if seen > limit {
					o.Complete()
					return
				}
				o.Emit(at)
			}
			return o
		}).Apply(completions)
	})
}
