package timing

import (
	"context"
	"time"

	"github.com/lguimbarda/min-rx/flow/core"
)

// Interval emits 0, 1, 2, ... every period, starting one period after
// subscription. Ticks the subscriber has not requested are held up to the
// environment capacity, after which the stream fails with core.ErrOverflow.
// It never completes on its own.
func Interval(period time.Duration) core.Publisher[int64] {
	return core.PublisherFunc[int64](func(ctx context.Context, down core.Subscriber[int64]) {
		o := core.NewOperator[struct{}, int64](ctx, down)
		o.Requested = func(int64) {}
		var tick int64
		task := o.Env().Timer.ScheduleRepeating(period, func() {
			o.Do(func() {
				o.Emit(tick)
				tick++
			})
		})
		o.Release = func() { task.Cancel() }
		o.Start()
	})
}

// After emits 0 once delay has passed and completes.
func After(delay time.Duration) core.Publisher[int64] {
	return core.PublisherFunc[int64](func(ctx context.Context, down core.Subscriber[int64]) {
		o := core.NewOperator[struct{}, int64](ctx, down)
		o.Requested = func(int64) {}
		task := o.Env().Timer.Schedule(delay, func() {
			o.Do(func() {
				o.Emit(0)
				o.Complete()
			})
		})
		o.Release = func() { task.Cancel() }
		o.Start()
	})
}

// Timestamped pairs a value with the time it was received.
type Timestamped[T any] struct {
	Value     T
	Timestamp time.Time
}

// Timestamp wraps each value with the time it was received. Under a
// virtual timer the time is the Unix epoch plus the virtual elapsed time.
func Timestamp[T any]() core.Transformer[T, Timestamped[T]] {
	return core.Lift[T, Timestamped[T]](func(ctx context.Context, down core.Subscriber[Timestamped[T]]) core.Subscriber[T] {
		o := core.NewOperator[T, Timestamped[T]](ctx, down)
		now := clockOf(o.Env().Timer)
		o.Next = func(v T) {
			o.Emit(Timestamped[T]{Value: v, Timestamp: now()})
		}
		return o
	})
}

// TimeInterval pairs a value with the time since the previous one.
type TimeInterval[T any] struct {
	Value    T
	Interval time.Duration
}

// Elapsed wraps each value with the time since the previous value, or since
// subscription for the first one.
func Elapsed[T any]() core.Transformer[T, TimeInterval[T]] {
	return core.Lift[T, TimeInterval[T]](func(ctx context.Context, down core.Subscriber[TimeInterval[T]]) core.Subscriber[T] {
		o := core.NewOperator[T, TimeInterval[T]](ctx, down)
		now := clockOf(o.Env().Timer)
		last := now()
		o.Next = func(v T) {
			at := now()
			o.Emit(TimeInterval[T]{Value: v, Interval: at.Sub(last)})
			last = at
		}
		return o
	})
}

// Delay shifts every value by d, keeping their order. Completion waits for
// the delayed values; an error is delivered at once.
func Delay[T any](d time.Duration) core.Transformer[T, T] {
	return DelayWhen(func(T) time.Duration { return d })
}

// DelayWhen delays each value by the duration delayFn returns for it.
// Values are still emitted in arrival order: a value waits for the ones
// before it even when its own delay is shorter.
func DelayWhen[T any](delayFn func(T) time.Duration) core.Transformer[T, T] {
	return core.Lift[T, T](func(ctx context.Context, down core.Subscriber[T]) core.Subscriber[T] {
		o := core.NewOperator[T, T](ctx, down)
		l := &delayLine[T]{op: o}
		o.Next = func(v T) {
			d, err := core.Protect1(func() (time.Duration, error) { return delayFn(v), nil })
			if err != nil {
				o.Fail(err)
				return
			}
			l.add(v, d)
		}
		o.Completed = l.flush
		o.Release = l.stop
		return o
	})
}

type delayed[T any] struct {
	value T
	ready bool
	task  core.Cancelable
}

// delayLine releases values in arrival order once each one's timer fired.
type delayLine[T any] struct {
	op      *core.Operator[T, T]
	pending []*delayed[T]
}

func (l *delayLine[T]) add(v T, d time.Duration) {
	e := &delayed[T]{value: v}
	l.pending = append(l.pending, e)
	if d <= 0 {
		e.ready = true
		l.flush()
		return
	}
	e.task = l.op.Env().Timer.Schedule(d, func() {
		l.op.Do(func() {
			e.ready = true
			l.flush()
		})
	})
}

func (l *delayLine[T]) flush() {
	for len(l.pending) > 0 && l.pending[0].ready {
		e := l.pending[0]
		l.pending[0] = nil
		l.pending = l.pending[1:]
		l.op.Emit(e.value)
		if l.op.Terminated() {
			return
		}
	}
	if l.op.UpstreamDone() && len(l.pending) == 0 {
		l.op.Complete()
	}
}

func (l *delayLine[T]) stop() {
	for _, e := range l.pending {
		if e.task != nil {
			e.task.Cancel()
		}
	}
	l.pending = nil
}
