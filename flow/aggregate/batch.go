package aggregate

import (
	"context"
	"time"

	"github.com/lguimbarda/min-rx/flow/core"
)

// Buffer creates a Transformer that collects values into slices of the
// given size. The final partial slice is emitted when the stream completes;
// on error it is discarded. If size <= 0 the AggregateConfig in the
// subscribe context is used, and the stream fails with ErrInvalidSize when
// that does not provide one either.
func Buffer[T any](size int) core.Transformer[T, []T] {
	return core.Lift[T, []T](func(ctx context.Context, down core.Subscriber[[]T]) core.Subscriber[T] {
		n, err := resolveSize(ctx, size)
		if err != nil {
			return core.Refuse[T](ctx, down, err)
		}
		return newBuffer[T](ctx, down, batchParams{size: n})
	})
}

// BufferTimeout is Buffer with an additional time bound: every timeout the
// values accumulated so far are flushed. A size <= 0 (with no config) means
// the buffer is bounded by time only.
func BufferTimeout[T any](size int, timeout time.Duration) core.Transformer[T, []T] {
	return core.Lift[T, []T](func(ctx context.Context, down core.Subscriber[[]T]) core.Subscriber[T] {
		d := effectiveBatchTimeout(ctx, timeout)
		if d <= 0 {
			return core.Refuse[T](ctx, down, ErrInvalidTimeout)
		}
		return newBuffer[T](ctx, down, batchParams{size: effectiveBatchSize(ctx, size), timeout: d})
	})
}

func newBuffer[T any](ctx context.Context, down core.Subscriber[[]T], p batchParams) core.Subscriber[T] {
	b := newBatch[T, []T](ctx, down, p)
	var values []T
	b.add = func(v T, first bool) error {
		if first && p.size > 0 {
			values = make([]T, 0, p.size)
		}
		values = append(values, v)
		return nil
	}
	b.flush = func(flushCause) {
		out := values
		values = nil
		b.op.Emit(out)
	}
	b.drop = func(error) { values = nil }
	return b.op
}

// Window splits the stream into consecutive windows of size values. Each
// window is a Publisher emitted when its first value arrives and completed
// when it is full or the stream completes; an upstream error fails the open
// window too. A window can be subscribed once; values it receives before
// its subscriber is ready are held, up to the environment capacity.
func Window[T any](size int) core.Transformer[T, core.Publisher[T]] {
	return core.Lift[T, core.Publisher[T]](func(ctx context.Context, down core.Subscriber[core.Publisher[T]]) core.Subscriber[T] {
		n, err := resolveSize(ctx, size)
		if err != nil {
			return core.Refuse[T](ctx, down, err)
		}
		return newWindow[T](ctx, down, batchParams{size: n})
	})
}

// WindowTimeout is Window with an additional time bound: the open window is
// closed every timeout.
func WindowTimeout[T any](size int, timeout time.Duration) core.Transformer[T, core.Publisher[T]] {
	return core.Lift[T, core.Publisher[T]](func(ctx context.Context, down core.Subscriber[core.Publisher[T]]) core.Subscriber[T] {
		d := effectiveBatchTimeout(ctx, timeout)
		if d <= 0 {
			return core.Refuse[T](ctx, down, ErrInvalidTimeout)
		}
		return newWindow[T](ctx, down, batchParams{size: effectiveBatchSize(ctx, size), timeout: d})
	})
}

func newWindow[T any](ctx context.Context, down core.Subscriber[core.Publisher[T]], p batchParams) core.Subscriber[T] {
	b := newBatch[T, core.Publisher[T]](ctx, down, p)
	capacity := b.op.Env().Capacity
	var current *unicast[T]
	b.add = func(v T, first bool) error {
		if first {
			current = newUnicast[T](capacity, nil)
			if !b.op.Emit(current) {
				return nil
			}
		}
		current.next(v)
		return nil
	}
	b.flush = func(flushCause) {
		current.complete()
		current = nil
	}
	b.drop = func(err error) {
		if current == nil {
			return
		}
		if err != nil {
			current.fail(err)
		} else {
			current.complete()
		}
		current = nil
	}
	return b.op
}

// Sample emits the last value of every batch of size values. A trailing
// partial batch contributes its last value on completion.
func Sample[T any](size int) core.Transformer[T, T] {
	return core.Lift[T, T](func(ctx context.Context, down core.Subscriber[T]) core.Subscriber[T] {
		n, err := resolveSize(ctx, size)
		if err != nil {
			return core.Refuse[T](ctx, down, err)
		}
		return newSample[T](ctx, down, batchParams{size: n})
	})
}

// SampleTimeout emits the most recent value every timeout, and additionally
// after every size values when size > 0. Periods without values emit nothing.
func SampleTimeout[T any](size int, timeout time.Duration) core.Transformer[T, T] {
	return core.Lift[T, T](func(ctx context.Context, down core.Subscriber[T]) core.Subscriber[T] {
		d := effectiveBatchTimeout(ctx, timeout)
		if d <= 0 {
			return core.Refuse[T](ctx, down, ErrInvalidTimeout)
		}
		return newSample[T](ctx, down, batchParams{size: effectiveBatchSize(ctx, size), timeout: d})
	})
}

func newSample[T any](ctx context.Context, down core.Subscriber[T], p batchParams) core.Subscriber[T] {
	b := newBatch[T, T](ctx, down, p)
	var last T
	b.add = func(v T, _ bool) error {
		last = v
		return nil
	}
	b.flush = func(flushCause) {
		v := last
		var zero T
		last = zero
		b.op.Emit(v)
	}
	return b.op
}

// SamplePolicy decides whether a timer flush ends the current SampleFirst
// batch.
type SamplePolicy uint8

const (
	// ResetOnTimer starts a new batch on every timer flush, so the first
	// value after each tick is emitted.
	ResetOnTimer SamplePolicy = iota
	// KeepOnTimer ignores the timer: a batch ends only when size values
	// were seen. Without a size bound only the very first value is emitted.
	KeepOnTimer
)

// SampleFirst emits the first value of every batch as soon as it arrives
// and discards the rest of the batch. Batches end after size values (when
// size > 0) and, depending on policy, every timeout (when timeout > 0).
func SampleFirst[T any](size int, timeout time.Duration, policy SamplePolicy) core.Transformer[T, T] {
	return core.Lift[T, T](func(ctx context.Context, down core.Subscriber[T]) core.Subscriber[T] {
		p := batchParams{size: effectiveBatchSize(ctx, size)}
		if policy == ResetOnTimer {
			p.timeout = effectiveBatchTimeout(ctx, timeout)
		}
		if p.size <= 0 && p.timeout <= 0 && policy == ResetOnTimer {
			return core.Refuse[T](ctx, down, ErrInvalidSize)
		}
		b := newBatch[T, T](ctx, down, p)
		b.add = func(v T, first bool) error {
			if first {
				b.op.Emit(v)
			}
			return nil
		}
		return b.op
	})
}
