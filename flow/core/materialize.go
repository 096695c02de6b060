package core

import (
	"context"
)

// Materialize turns every signal, the terminal one included, into a value.
// The resulting stream always completes normally after the materialized
// terminal signal has been delivered.
func Materialize[T any]() Transformer[T, Signal[T]] {
	return Lift[T, Signal[T]](func(ctx context.Context, down Subscriber[Signal[T]]) Subscriber[T] {
		o := NewOperator[T, Signal[T]](ctx, down)
		o.Next = func(v T) { o.Emit(Next(v)) }
		o.Completed = func() {
			if o.Emit(Complete[T]()) {
				o.Complete()
			}
		}
		o.Failed = func(err error) {
			if o.Emit(Error[T](err)) {
				o.Complete()
			}
		}
		return o
	})
}

// Dematerialize is the inverse of Materialize: a materialized terminal
// signal terminates the stream and cancels the upstream.
func Dematerialize[T any]() Transformer[Signal[T], T] {
	return Lift[Signal[T], T](func(ctx context.Context, down Subscriber[T]) Subscriber[Signal[T]] {
		o := NewOperator[Signal[T], T](ctx, down)
		o.Next = func(sig Signal[T]) {
			switch sig.Kind() {
			case KindNext:
				o.Emit(sig.Value())
			case KindError:
				o.Fail(sig.Err())
			case KindComplete:
				o.Complete()
			}
		}
		return o
	})
}

// DefaultIfEmpty emits value when the upstream completes without having
// produced anything.
func DefaultIfEmpty[T any](value T) Transformer[T, T] {
	return Lift[T, T](func(ctx context.Context, down Subscriber[T]) Subscriber[T] {
		o := NewOperator[T, T](ctx, down)
		seen := false
		o.Next = func(v T) {
			seen = true
			o.Emit(v)
		}
		o.Completed = func() {
			if !seen && !o.Emit(value) {
				return
			}
			o.Complete()
		}
		return o
	})
}
