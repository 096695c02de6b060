package aggregate

import (
	"context"
	"slices"

	"github.com/lguimbarda/min-rx/flow/core"
)

// Sort collects up to size values, then emits them ordered by cmp. A batch
// is also flushed when the stream completes, and when every value
// downstream asked for has arrived, so a small request is answered without
// waiting for a full batch. Ordering is stable and only holds within a batch.
// If size <= 0 the AggregateConfig batch size is used.
func Sort[T any](size int, cmp func(a, b T) int) core.Transformer[T, T] {
	return core.Lift[T, T](func(ctx context.Context, down core.Subscriber[T]) core.Subscriber[T] {
		n, err := resolveSize(ctx, size)
		if err != nil {
			return core.Refuse[T](ctx, down, err)
		}
		b := newBatch[T, T](ctx, down, batchParams{size: n, demand: perValue})
		var held []T
		b.add = func(v T, first bool) error {
			if first {
				held = make([]T, 0, n)
			}
			held = append(held, v)
			return nil
		}
		b.flush = func(flushCause) {
			out := held
			held = nil
			if err := core.Protect(func() error { slices.SortStableFunc(out, cmp); return nil }); err != nil {
				b.op.Fail(err)
				return
			}
			for _, v := range out {
				if !b.op.Emit(v) {
					return
				}
			}
		}
		b.drop = func(error) { held = nil }

		next := b.op.Next
		b.op.Next = func(v T) {
			next(v)
			if b.count > 0 && b.op.UpstreamDemand() == 0 && !b.op.Terminated() {
				b.emit(byDemand)
			}
		}
		return b.op
	})
}
