package aggregate

import (
	"context"
	"time"

	"github.com/lguimbarda/min-rx/flow/core"
)

// Reduce folds the whole stream into one value. supplier seeds the
// accumulator once, on the first value; fn combines it with every value.
// The result is emitted when the stream completes. An empty stream emits
// nothing.
func Reduce[T, A any](supplier func() A, fn func(acc A, item T) (A, error)) core.Transformer[T, A] {
	return core.Lift[T, A](func(ctx context.Context, down core.Subscriber[A]) core.Subscriber[T] {
		return newReduce(ctx, down, batchParams{}, supplier, fn)
	})
}

// ReduceTimeout folds the stream batch by batch: a batch ends after size
// values (when size > 0) or every timeout, and its accumulator, seeded
// afresh by supplier, is emitted. Batches without values emit nothing.
func ReduceTimeout[T, A any](size int, timeout time.Duration, supplier func() A, fn func(acc A, item T) (A, error)) core.Transformer[T, A] {
	return core.Lift[T, A](func(ctx context.Context, down core.Subscriber[A]) core.Subscriber[T] {
		p := batchParams{size: effectiveBatchSize(ctx, size), timeout: effectiveBatchTimeout(ctx, timeout)}
		if p.size <= 0 && p.timeout <= 0 {
			return core.Refuse[T](ctx, down, ErrInvalidTimeout)
		}
		return newReduce(ctx, down, p, supplier, fn)
	})
}

func newReduce[T, A any](ctx context.Context, down core.Subscriber[A], p batchParams, supplier func() A, fn func(A, T) (A, error)) core.Subscriber[T] {
	b := newBatch[T, A](ctx, down, p)
	var acc A
	b.add = func(v T, first bool) error {
		if first {
			acc = supplier()
		}
		next, err := fn(acc, v)
		if err != nil {
			return err
		}
		acc = next
		return nil
	}
	b.flush = func(flushCause) {
		out := acc
		var zero A
		acc = zero
		b.op.Emit(out)
	}
	b.drop = func(error) {
		var zero A
		acc = zero
	}
	return b.op
}

// Fold is Reduce with a fixed initial value that is also emitted when the
// stream is empty.
func Fold[T, R any](initial R, folder func(acc R, item T) R) core.Transformer[T, R] {
	return core.Through(
		Reduce(func() R { return initial }, func(acc R, item T) (R, error) { return folder(acc, item), nil }),
		core.DefaultIfEmpty(initial),
	)
}

// Scan emits the running accumulator after every value. The initial value
// itself is not emitted.
func Scan[T, R any](initial R, scanner func(acc R, item T) (R, error)) core.Transformer[T, R] {
	return core.Lift[T, R](func(ctx context.Context, down core.Subscriber[R]) core.Subscriber[T] {
		b := newBatch[T, R](ctx, down, batchParams{demand: perValue})
		acc := initial
		b.add = func(v T, _ bool) error {
			next, err := scanner(acc, v)
			if err != nil {
				return err
			}
			acc = next
			b.op.Emit(acc)
			return nil
		}
		b.flush = func(flushCause) {}
		return b.op
	})
}

// MovingBuffer keeps the last size values in a ring and emits the ring's
// contents, oldest first, on every value. Until size values have been seen
// the emitted slices are shorter.
func MovingBuffer[T any](size int) core.Transformer[T, []T] {
	return core.Lift[T, []T](func(ctx context.Context, down core.Subscriber[[]T]) core.Subscriber[T] {
		n, err := resolveSize(ctx, size)
		if err != nil {
			return core.Refuse[T](ctx, down, err)
		}
		b := newBatch[T, []T](ctx, down, batchParams{demand: perValue})
		ring := make([]T, n)
		head, filled := 0, 0
		b.add = func(v T, _ bool) error {
			ring[head] = v
			head = (head + 1) % n
			if filled < n {
				filled++
			}
			out := make([]T, filled)
			start := (head - filled + n) % n
			for i := range filled {
				out[i] = ring[(start+i)%n]
			}
			b.op.Emit(out)
			return nil
		}
		b.flush = func(flushCause) {}
		b.drop = func(error) { clear(ring) }
		return b.op
	})
}

// Count emits the number of values in the stream when it completes.
func Count[T any]() core.Transformer[T, int] {
	return Fold(0, func(n int, _ T) int { return n + 1 })
}

// ToList emits every value of the stream as one slice when it completes.
// An empty stream emits an empty, non-nil slice.
func ToList[T any]() core.Transformer[T, []T] {
	return core.Lift[T, []T](func(ctx context.Context, down core.Subscriber[[]T]) core.Subscriber[T] {
		o := core.NewOperator[T, []T](ctx, down)
		values := []T{}
		o.Next = func(v T) { values = append(values, v) }
		o.Requested = func(int64) { o.RequestUpstream(core.Unbounded) }
		o.Completed = func() {
			if o.Emit(values) {
				o.Complete()
			}
		}
		o.Release = func() { values = nil }
		return o
	})
}

// Numeric is a constraint for types that support arithmetic operations.
type Numeric interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Sum emits the sum of all values, zero for an empty stream.
func Sum[T Numeric]() core.Transformer[T, T] {
	return Fold(T(0), func(acc, v T) T { return acc + v })
}

// Average emits the arithmetic mean of all values. An empty stream emits
// nothing.
func Average[T Numeric]() core.Transformer[T, float64] {
	return core.Through[T, mean, float64](
		Reduce(func() mean { return mean{} }, func(m mean, v T) (mean, error) {
			return mean{sum: m.sum + float64(v), count: m.count + 1}, nil
		}),
		core.Map(func(m mean) (float64, error) { return m.sum / float64(m.count), nil }),
	)
}

type mean struct {
	sum   float64
	count int
}

// Min emits the smallest value according to less. An empty stream emits
// nothing.
func Min[T any](less func(a, b T) bool) core.Transformer[T, T] {
	return extremum(less)
}

// Max emits the largest value according to less. An empty stream emits
// nothing.
func Max[T any](less func(a, b T) bool) core.Transformer[T, T] {
	return extremum(func(a, b T) bool { return less(b, a) })
}

// extremum keeps the value for which better holds against every other.
func extremum[T any](better func(a, b T) bool) core.Transformer[T, T] {
	return core.Through[T, best[T], T](
		Reduce(func() best[T] { return best[T]{} }, func(acc best[T], v T) (best[T], error) {
			if !acc.seen || better(v, acc.v) {
				return best[T]{v: v, seen: true}, nil
			}
			return acc, nil
		}),
		core.Map(func(b best[T]) (T, error) { return b.v, nil }),
	)
}

type best[T any] struct {
	v    T
	seen bool
}

// All emits whether every value satisfies predicate. It short-circuits on
// the first failing value, cancelling the upstream. An empty stream emits
// true.
func All[T any](predicate func(T) bool) core.Transformer[T, bool] {
	return decide(predicate, false, true)
}

// Any emits whether some value satisfies predicate, short-circuiting on the
// first match. An empty stream emits false.
func Any[T any](predicate func(T) bool) core.Transformer[T, bool] {
	return decide(predicate, true, false)
}

// None emits whether no value satisfies predicate, short-circuiting on the
// first match. An empty stream emits true.
func None[T any](predicate func(T) bool) core.Transformer[T, bool] {
	return decide(predicate, true, true)
}

// decide emits !otherwise as soon as predicate(v) == trigger for some v,
// and otherwise when the stream completes first.
func decide[T any](predicate func(T) bool, trigger, otherwise bool) core.Transformer[T, bool] {
	return core.Lift[T, bool](func(ctx context.Context, down core.Subscriber[bool]) core.Subscriber[T] {
		o := core.NewOperator[T, bool](ctx, down)
		o.Requested = func(int64) { o.RequestUpstream(core.Unbounded) }
		o.Next = func(v T) {
			ok, err := core.Protect1(func() (bool, error) { return predicate(v), nil })
			if err != nil {
				o.Fail(err)
				return
			}
			if ok == trigger && o.Emit(!otherwise) {
				o.Complete()
			}
		}
		o.Completed = func() {
			if o.Emit(otherwise) {
				o.Complete()
			}
		}
		return o
	})
}
