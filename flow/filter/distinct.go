package filter

import (
	"context"

	"github.com/lguimbarda/min-rx/flow/core"
)

// DistinctUntilChanged drops values equal to the one before.
func DistinctUntilChanged[T comparable]() core.Transformer[T, T] {
	return DistinctUntilChangedBy(func(v T) T { return v })
}

// DistinctUntilChangedBy drops values whose key equals the key of the value
// before.
func DistinctUntilChangedBy[T any, K comparable](keyFn func(T) K) core.Transformer[T, T] {
	return core.Lift[T, T](func(ctx context.Context, down core.Subscriber[T]) core.Subscriber[T] {
		o := core.NewOperator[T, T](ctx, down)
		var (
			last K
			seen bool
		)
		o.Next = func(v T) {
			k, err := core.Protect1(func() (K, error) { return keyFn(v), nil })
			if err != nil {
				o.Fail(err)
				return
			}
			if seen && k == last {
				o.RequestUpstream(1)
				return
			}
			last, seen = k, true
			o.Emit(v)
		}
		return o
	})
}

// Distinct drops every value seen before. The set of seen values lives as
// long as the subscription.
func Distinct[T comparable]() core.Transformer[T, T] {
	return DistinctBy(func(v T) T { return v })
}

// DistinctBy drops values whose key was seen before.
func DistinctBy[T any, K comparable](keyFn func(T) K) core.Transformer[T, T] {
	return core.Lift[T, T](func(ctx context.Context, down core.Subscriber[T]) core.Subscriber[T] {
		o := core.NewOperator[T, T](ctx, down)
		seen := make(map[K]struct{})
		o.Next = func(v T) {
			k, err := core.Protect1(func() (K, error) { return keyFn(v), nil })
			if err != nil {
				o.Fail(err)
				return
			}
			if _, dup := seen[k]; dup {
				o.RequestUpstream(1)
				return
			}
			seen[k] = struct{}{}
			o.Emit(v)
		}
		o.Release = func() { clear(seen) }
		return o
	})
}
