package timing

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/lguimbarda/min-rx/flow/core"
)

// Throttle paces the upstream: values are requested one at a time, no
// faster than one per period after an initial burst, and only while the
// downstream has demand. Nothing is dropped; a slow request rate slows the
// upstream down. period <= 0 disables pacing.
func Throttle[T any](period time.Duration, burst int) core.Transformer[T, T] {
	return core.Lift[T, T](func(ctx context.Context, down core.Subscriber[T]) core.Subscriber[T] {
		o := core.NewOperator[T, T](ctx, down)
		o.Next = func(v T) { o.Emit(v) }
		if period <= 0 {
			return o
		}
		p := &pacer[T]{
			op:      o,
			limiter: rate.NewLimiter(rate.Every(period), max(burst, 1)),
			now:     clockOf(o.Env().Timer),
		}
		o.Requested = func(int64) { p.pump() }
		o.Next = func(v T) {
			p.inflight = false
			o.Emit(v)
			p.pump()
		}
		o.Release = p.stop
		return o
	})
}

type pacer[T any] struct {
	op       *core.Operator[T, T]
	limiter  *rate.Limiter
	now      func() time.Time
	inflight bool
	wait     core.Cancelable
}

// pump requests the next value once the limiter grants a token.
func (p *pacer[T]) pump() {
	o := p.op
	if p.inflight || p.wait != nil || o.Demand() == 0 || o.UpstreamDone() {
		return
	}
	at := p.now()
	delay := p.limiter.ReserveN(at, 1).DelayFrom(at)
	if delay <= 0 {
		p.request()
		return
	}
	p.wait = o.Env().Timer.Schedule(delay, func() {
		o.Do(func() {
			p.wait = nil
			p.request()
		})
	})
}

func (p *pacer[T]) request() {
	p.inflight = true
	p.op.RequestUpstream(1)
}

func (p *pacer[T]) stop() {
	if p.wait != nil {
		p.wait.Cancel()
		p.wait = nil
	}
}

// Debounce emits a value only once d has passed without a newer one; the
// pending value is flushed when the upstream completes. The upstream is
// read without backpressure since superseded values are dropped.
func Debounce[T any](d time.Duration) core.Transformer[T, T] {
	return core.Lift[T, T](func(ctx context.Context, down core.Subscriber[T]) core.Subscriber[T] {
		o := core.NewOperator[T, T](ctx, down)
		var (
			latest    T
			has       bool
			requested bool
		)
		flush := func() {
			if !has {
				return
			}
			v := latest
			var zero T
			latest, has = zero, false
			o.Emit(v)
		}
		w := &watchdog{timer: o.Env().Timer, d: d, do: o.Do, fire: flush}
		o.Requested = func(int64) {
			if !requested {
				requested = true
				o.RequestUpstream(core.Unbounded)
			}
		}
		o.Next = func(v T) {
			latest, has = v, true
			w.arm()
		}
		o.Completed = func() {
			w.stop()
			flush()
			o.Complete()
		}
		o.Release = w.stop
		return o
	})
}
