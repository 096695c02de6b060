// Package flowerrors provides operators that observe, translate and recover
// from stream failures: typed fallbacks, value substitution, and resubscribing
// retry and repeat.
package flowerrors

import (
	"context"
	"errors"
	"fmt"

	"github.com/lguimbarda/min-rx/flow/core"
)

// OnError calls handler with the upstream error and then propagates it.
// A panicking handler replaces the error with core.ErrPanic.
func OnError[T any](handler func(error)) core.Transformer[T, T] {
	return onFailure[T](func(o *core.Operator[T, T], err error) {
		if perr := core.Protect(func() error { handler(err); return nil }); perr != nil {
			err = perr
		}
		o.Error(err)
	})
}

// MapErrors replaces the upstream error with mapper's result. A nil result
// completes the stream instead.
func MapErrors[T any](mapper func(error) error) core.Transformer[T, T] {
	return onFailure[T](func(o *core.Operator[T, T], err error) {
		mapped, perr := core.Protect1(func() (error, error) { return mapper(err), nil })
		switch {
		case perr != nil:
			o.Fail(perr)
		case mapped == nil:
			o.Complete()
		default:
			o.Error(mapped)
		}
	})
}

// WrapError prefixes the upstream error with message, keeping it matchable
// with errors.Is.
func WrapError[T any](message string) core.Transformer[T, T] {
	return MapErrors[T](func(err error) error { return fmt.Errorf("%s: %w", message, err) })
}

// IgnoreErrors turns an upstream error into completion.
func IgnoreErrors[T any]() core.Transformer[T, T] {
	return onFailure[T](func(o *core.Operator[T, T], err error) {
		o.Logger().Debug().Err(err).Msg("ignoring upstream error")
		o.Complete()
	})
}

// OnErrorReturn emits value and completes when the upstream fails.
func OnErrorReturn[T any](value T) core.Transformer[T, T] {
	return onFailure[T](func(o *core.Operator[T, T], _ error) {
		o.Emit(value)
		o.Complete()
	})
}

// Recover hands the upstream error to fn, which returns a last value to
// emit before completing, or an error to fail with.
func Recover[T any](fn func(error) (T, error)) core.Transformer[T, T] {
	return CatchError(nil, fn)
}

// CatchError is Recover for errors matching predicate; other errors pass
// through. A nil predicate matches every error.
func CatchError[T any](predicate func(error) bool, handler func(error) (T, error)) core.Transformer[T, T] {
	return onFailure[T](func(o *core.Operator[T, T], err error) {
		if predicate != nil && !predicate(err) {
			o.Error(err)
			return
		}
		v, herr := core.Protect1(func() (T, error) { return handler(err) })
		if herr != nil {
			o.Fail(herr)
			return
		}
		o.Emit(v)
		o.Complete()
	})
}

// OnErrorResumeNext switches to the publisher returned by fn when the
// upstream fails, carrying the outstanding demand over. An error of the
// fallback is propagated.
func OnErrorResumeNext[T any](fn func(error) core.Publisher[T]) core.Transformer[T, T] {
	return resume(fn)
}

// When is OnErrorResumeNext for errors of type E, matched with errors.As.
// Other errors are propagated.
func When[E error, T any](fallback func(E) core.Publisher[T]) core.Transformer[T, T] {
	return resume(func(err error) core.Publisher[T] {
		var target E
		if !errors.As(err, &target) {
			return nil
		}
		return fallback(target)
	})
}

func onFailure[T any](failed func(o *core.Operator[T, T], err error)) core.Transformer[T, T] {
	return core.Lift[T, T](func(ctx context.Context, down core.Subscriber[T]) core.Subscriber[T] {
		o := core.NewOperator[T, T](ctx, down)
		o.Next = func(v T) { o.Emit(v) }
		o.Failed = func(err error) { failed(o, err) }
		return o
	})
}

// resume switches once to the publisher chosen for the upstream error. A
// nil choice propagates the error.
func resume[T any](choose func(error) core.Publisher[T]) core.Transformer[T, T] {
	return core.Lift[T, T](func(ctx context.Context, down core.Subscriber[T]) core.Subscriber[T] {
		r := newRelay(ctx, down)
		o := r.op
		resumed := false
		o.Failed = func(err error) {
			if resumed {
				o.Error(err)
				return
			}
			next, perr := core.Protect1(func() (core.Publisher[T], error) { return choose(err), nil })
			switch {
			case perr != nil:
				o.Fail(perr)
			case next == nil:
				o.Error(err)
			default:
				resumed = true
				o.Logger().Debug().Err(err).Msg("resuming with fallback")
				r.switchTo(next)
			}
		}
		return r.link()
	})
}
