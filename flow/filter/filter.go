// Package filter provides operators that select which values pass: by
// predicate, by position and by novelty. Every dropped value is replaced by
// a request for one more from the upstream, so filtering never starves the
// downstream of the demand it signalled.
package filter

import (
	"context"

	"github.com/lguimbarda/min-rx/flow/core"
)

// Filter passes the values for which predicate returns true.
func Filter[T any](predicate func(T) bool) core.Transformer[T, T] {
	return MapWhere(func(v T) (T, bool) { return v, predicate(v) })
}

// Exclude drops the values for which predicate returns true.
func Exclude[T any](predicate func(T) bool) core.Transformer[T, T] {
	return MapWhere(func(v T) (T, bool) { return v, !predicate(v) })
}

// MapWhere maps and filters in one step: a value passes, transformed, when
// fn reports true.
func MapWhere[IN, OUT any](fn func(IN) (OUT, bool)) core.Transformer[IN, OUT] {
	return core.Lift[IN, OUT](func(ctx context.Context, down core.Subscriber[OUT]) core.Subscriber[IN] {
		o := core.NewOperator[IN, OUT](ctx, down)
		o.Next = func(v IN) {
			var keep bool
			out, err := core.Protect1(func() (OUT, error) {
				var out OUT
				out, keep = fn(v)
				return out, nil
			})
			if err != nil {
				o.Fail(err)
				return
			}
			if !keep {
				o.RequestUpstream(1)
				return
			}
			o.Emit(out)
		}
		return o
	})
}

// check runs predicate on v, failing o when it panics.
func check[IN, OUT any](o *core.Operator[IN, OUT], predicate func(IN) bool, v IN) (ok, failed bool) {
	ok, err := core.Protect1(func() (bool, error) { return predicate(v), nil })
	if err != nil {
		o.Fail(err)
		return false, true
	}
	return ok, false
}
