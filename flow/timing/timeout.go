package timing

import (
	"context"
	"errors"
	"time"

	"github.com/lguimbarda/min-rx/flow/core"
	"github.com/lguimbarda/min-rx/flow/flowerrors"
)

// Timeout fails with ErrTimeout when the upstream stays silent for d: the
// watchdog is armed at subscribe time and rearmed on every value, and the
// upstream is cancelled when it fires. d <= 0 disables the watchdog.
func Timeout[T any](d time.Duration) core.Transformer[T, T] {
	return core.Lift[T, T](func(ctx context.Context, down core.Subscriber[T]) core.Subscriber[T] {
		o := core.NewOperator[T, T](ctx, down)
		if d <= 0 {
			o.Next = func(v T) { o.Emit(v) }
			return o
		}
		w := &watchdog{timer: o.Env().Timer, d: d, do: o.Do}
		w.fire = func() {
			o.Logger().Debug().Dur("timeout", d).Msg("upstream timed out")
			o.Fail(ErrTimeout)
		}
		o.Next = func(v T) {
			w.arm()
			o.Emit(v)
		}
		o.Completed = func() {
			w.stop()
			o.Complete()
		}
		o.Release = w.stop
		o.Do(w.arm)
		return o
	})
}

// TimeoutFallback is Timeout that switches to fallback instead of failing.
// The outstanding demand carries over to fallback, which is not timed.
func TimeoutFallback[T any](d time.Duration, fallback core.Publisher[T]) core.Transformer[T, T] {
	return core.Through(Timeout[T](d), flowerrors.OnErrorResumeNext(func(err error) core.Publisher[T] {
		if errors.Is(err, ErrTimeout) {
			return fallback
		}
		return nil
	}))
}

// watchdog is a one-shot timer that can be rearmed; a fire that raced with
// a rearm is ignored. Everything but the timer callback runs in the
// operator's domain, and do brings the callback there.
type watchdog struct {
	timer core.Timer
	d     time.Duration
	do    func(func())
	fire  func()

	gen  uint64
	task core.Cancelable
}

func (w *watchdog) arm() {
	w.stop()
	mine := w.gen
	w.task = w.timer.Schedule(w.d, func() {
		w.do(func() {
			if mine != w.gen {
				return
			}
			w.task = nil
			w.fire()
		})
	})
}

func (w *watchdog) stop() {
	w.gen++
	if w.task != nil {
		w.task.Cancel()
		w.task = nil
	}
}
