package flowerrors

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/lguimbarda/min-rx/flow/core"
)

// RetryWhen resubscribes to the upstream when it fails, as decided by fn.
// fn receives the stream of upstream errors and returns a derived stream:
// each value it emits resubscribes with the demand still outstanding, an
// error fails the result, and completion completes it.
func RetryWhen[T, S any](fn func(errs core.Publisher[error]) core.Publisher[S]) core.Transformer[T, T] {
	return core.TransformFunc(func(root core.Publisher[T]) core.Publisher[T] {
		return core.PublisherFunc[T](func(ctx context.Context, down core.Subscriber[T]) {
			c := subscribeControlled(ctx, down, root, fn)
			if c == nil {
				return
			}
			c.op.Failed = c.await
			c.connect()
		})
	})
}

// Retry resubscribes up to n times after an error and propagates the error
// that follows. Retry(0) propagates the first error; a negative n retries
// without bound.
func Retry[T any](n int) core.Transformer[T, T] {
	return RetryIf[T](n, nil)
}

// RetryIf is Retry limited to errors matching predicate. Any other error is
// propagated at once.
func RetryIf[T any](n int, predicate func(error) bool) core.Transformer[T, T] {
	return RetryWhen[T](func(errs core.Publisher[error]) core.Publisher[error] {
		return limitErrors(bound(n), predicate).Apply(errs)
	})
}

func bound(n int) int64 {
	if n < 0 {
		return math.MaxInt64
	}
	return int64(n)
}

// limitErrors passes errors through until the limit is exceeded or one does
// not match predicate; that one fails the stream.
func limitErrors(limit int64, predicate func(error) bool) core.Transformer[error, error] {
	return core.Lift[error, error](func(ctx context.Context, down core.Subscriber[error]) core.Subscriber[error] {
		o := core.NewOperator[error, error](ctx, down)
		var seen int64
		o.Next = func(err error) {
			seen++
			if seen > limit {
				o.Fail(err)
				return
			}
			if predicate != nil {
				ok, perr := core.Protect1(func() (bool, error) { return predicate(err), nil })
				if perr != nil {
					o.Fail(perr)
					return
				}
				if !ok {
					o.Fail(err)
					return
				}
			}
			o.Emit(err)
		}
		return o
	})
}

// Backoff returns a RetryWhen function that resubscribes after the delay
// chosen by a policy, for at most maxRetries attempts (unbounded when
// negative). Every subscription gets a fresh policy from newPolicy; the
// error is propagated once the policy returns backoff.Stop. Delays run on
// the environment timer and are disarmed on cancel.
func Backoff(maxRetries int, newPolicy func() backoff.BackOff) func(core.Publisher[error]) core.Publisher[error] {
	limit := bound(maxRetries)
	delay := core.Lift[error, error](func(ctx context.Context, down core.Subscriber[error]) core.Subscriber[error] {
		o := core.NewOperator[error, error](ctx, down)
		policy := newPolicy()
		var (
			seen    int64
			pending core.Cancelable
		)
		o.Next = func(err error) {
			seen++
			if seen > limit {
				o.Fail(err)
				return
			}
			d := policy.NextBackOff()
			if d == backoff.Stop {
				o.Fail(err)
				return
			}
			o.Logger().Debug().Err(err).Dur("delay", d).Msg("retry scheduled")
			pending = o.Env().Timer.Schedule(d, func() {
				o.Do(func() {
					pending = nil
					o.Emit(err)
				})
			})
		}
		o.Release = func() {
			if pending != nil {
				pending.Cancel()
				pending = nil
			}
		}
		return o
	})
	return func(errs core.Publisher[error]) core.Publisher[error] {
		return delay.Apply(errs)
	}
}

// ExponentialBackoff is Backoff with delays doubling from initial up to
// maxDelay, without jitter.
func ExponentialBackoff(maxRetries int, initial, maxDelay time.Duration) func(core.Publisher[error]) core.Publisher[error] {
	return Backoff(maxRetries, func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = initial
		b.MaxInterval = maxDelay
		b.Multiplier = 2
		b.RandomizationFactor = 0
		b.Reset()
		return b
	})
}

// ConstantBackoff is Backoff with the same delay before every attempt.
func ConstantBackoff(maxRetries int, delay time.Duration) func(core.Publisher[error]) core.Publisher[error] {
	return Backoff(maxRetries, func() backoff.BackOff {
		return backoff.NewConstantBackOff(delay)
	})
}
