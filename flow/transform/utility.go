// Package transform provides general purpose reshaping operators: pairing,
// prefixing and suffixing, indexing, collecting into maps and sets, and the
// switching flat-maps.
package transform

import (
	"context"

	"github.com/lguimbarda/min-rx/flow"
	"github.com/lguimbarda/min-rx/flow/combine"
	"github.com/lguimbarda/min-rx/flow/core"
)

// Pairwise emits each value paired with the one before it. The first value
// only primes the pair and is not emitted on its own.
func Pairwise[T any]() core.Transformer[T, [2]T] {
	return core.Lift[T, [2]T](func(ctx context.Context, down core.Subscriber[[2]T]) core.Subscriber[T] {
		o := core.NewOperator[T, [2]T](ctx, down)
		var prev T
		primed := false
		o.Next = func(v T) {
			if !primed {
				prev, primed = v, true
				o.RequestUpstream(1)
				return
			}
			o.Emit([2]T{prev, v})
			prev = v
		}
		return o
	})
}

// StartWith emits values before the upstream's own values. The upstream is
// subscribed once the prefix was delivered.
func StartWith[T any](values ...T) core.Transformer[T, T] {
	return core.TransformFunc(func(p core.Publisher[T]) core.Publisher[T] {
		return combine.Concat(flow.Just(values...), p)
	})
}

// EndWith emits values after the upstream completed. An upstream error
// skips them.
func EndWith[T any](values ...T) core.Transformer[T, T] {
	return core.TransformFunc(func(p core.Publisher[T]) core.Publisher[T] {
		return combine.Concat(p, flow.Just(values...))
	})
}

// IgnoreElements drops every value and passes on only the terminal signal.
func IgnoreElements[T any]() core.Transformer[T, T] {
	return core.Lift[T, T](func(ctx context.Context, down core.Subscriber[T]) core.Subscriber[T] {
		o := core.NewOperator[T, T](ctx, down)
		o.Next = func(T) {}
		o.Requested = func(int64) { o.RequestUpstream(core.Unbounded) }
		return o
	})
}

// Indexed is a value with its 0-based position in the stream.
type Indexed[T any] struct {
	Index int64
	Value T
}

// WithIndex wraps each value with its position.
func WithIndex[T any]() core.Transformer[T, Indexed[T]] {
	return core.Lift[T, Indexed[T]](func(ctx context.Context, down core.Subscriber[Indexed[T]]) core.Subscriber[T] {
		o := core.NewOperator[T, Indexed[T]](ctx, down)
		var i int64
		o.Next = func(v T) {
			o.Emit(Indexed[T]{Index: i, Value: v})
			i++
		}
		return o
	})
}

// ToMap collects the stream into a map keyed by keyFn and emits it on
// completion. A later value replaces an earlier one with the same key. An
// empty stream emits an empty map.
func ToMap[T any, K comparable](keyFn func(T) K) core.Transformer[T, map[K]T] {
	return collect(func() map[K]T { return make(map[K]T) }, func(m map[K]T, v T) error {
		k, err := core.Protect1(func() (K, error) { return keyFn(v), nil })
		if err != nil {
			return err
		}
		m[k] = v
		return nil
	})
}

// ToSet collects the distinct values of the stream and emits them as a set
// on completion.
func ToSet[T comparable]() core.Transformer[T, map[T]struct{}] {
	return collect(func() map[T]struct{} { return make(map[T]struct{}) }, func(m map[T]struct{}, v T) error {
		m[v] = struct{}{}
		return nil
	})
}

// collect drains the upstream into a container made per subscription.
func collect[T, C any](empty func() C, add func(C, T) error) core.Transformer[T, C] {
	return core.Lift[T, C](func(ctx context.Context, down core.Subscriber[C]) core.Subscriber[T] {
		o := core.NewOperator[T, C](ctx, down)
		acc := empty()
		o.Next = func(v T) {
			if err := add(acc, v); err != nil {
				o.Fail(err)
			}
		}
		o.Requested = func(int64) { o.RequestUpstream(core.Unbounded) }
		o.Completed = func() {
			if o.Emit(acc) {
				o.Complete()
			}
		}
		return o
	})
}
