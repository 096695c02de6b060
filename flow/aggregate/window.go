package aggregate

import (
	"context"
	"sync"
	"time"

	"github.com/lguimbarda/min-rx/flow/core"
)

// SessionBuffer groups values into sessions: a session collects values until
// gap passes without a new one, then it is emitted as a slice. The open
// session is emitted when the stream completes.
func SessionBuffer[T any](gap time.Duration) core.Transformer[T, []T] {
	return core.Lift[T, []T](func(ctx context.Context, down core.Subscriber[[]T]) core.Subscriber[T] {
		d := effectiveBatchTimeout(ctx, gap)
		if d <= 0 {
			return core.Refuse[T](ctx, down, ErrInvalidTimeout)
		}
		b := newBatch[T, []T](ctx, down, batchParams{})
		timer := b.op.Env().Timer
		var values []T
		gen := 0
		b.add = func(v T, _ bool) error {
			values = append(values, v)
			if b.timer != nil {
				b.timer.Cancel()
			}
			gen++
			mine := gen
			b.timer = timer.Schedule(d, func() {
				b.op.Do(func() {
					if mine == gen {
						b.onTimer()
					}
				})
			})
			return nil
		}
		b.flush = func(flushCause) {
			out := values
			values = nil
			b.op.Emit(out)
		}
		b.drop = func(error) { values = nil }
		return b.op
	})
}

// BufferUntil collects values until boundary emits, then emits them as a
// slice. Boundary completion emits the last slice and completes the stream;
// a boundary error fails it. The boundary is subscribed on the first
// downstream request.
func BufferUntil[T, B any](boundary core.Publisher[B]) core.Transformer[T, []T] {
	return core.Lift[T, []T](func(ctx context.Context, down core.Subscriber[[]T]) core.Subscriber[T] {
		b := newBatch[T, []T](ctx, down, batchParams{})
		o := b.op
		var values []T
		b.add = func(v T, _ bool) error {
			values = append(values, v)
			return nil
		}
		b.flush = func(flushCause) {
			out := values
			values = nil
			o.Emit(out)
		}
		b.drop = func(error) { values = nil }

		edge := &boundaryObserver[B]{
			onNext:     func() { o.Do(b.onTimer) },
			onError:    func(err error) { o.Do(func() { b.fail(err) }) },
			onComplete: func() { o.Do(b.complete) },
		}
		subscribed := false
		o.Requested = func(int64) {
			if !subscribed {
				subscribed = true
				boundary.Subscribe(ctx, edge)
			}
			o.RequestUpstream(core.Unbounded)
		}
		release := o.Release
		o.Release = func() {
			release()
			edge.cancel()
		}
		return o
	})
}

// boundaryObserver requests everything from a boundary publisher and turns
// its signals into callbacks.
type boundaryObserver[B any] struct {
	onNext     func()
	onError    func(error)
	onComplete func()

	mu        sync.Mutex
	sub       core.Subscription
	cancelled bool
}

func (e *boundaryObserver[B]) OnSubscribe(s core.Subscription) {
	e.mu.Lock()
	if e.cancelled {
		e.mu.Unlock()
		s.Cancel()
		return
	}
	e.sub = s
	e.mu.Unlock()
	s.Request(core.Unbounded)
}

func (e *boundaryObserver[B]) OnNext(B)          { e.onNext() }
func (e *boundaryObserver[B]) OnError(err error) { e.onError(err) }
func (e *boundaryObserver[B]) OnComplete()       { e.onComplete() }

func (e *boundaryObserver[B]) cancel() {
	e.mu.Lock()
	if e.cancelled {
		e.mu.Unlock()
		return
	}
	e.cancelled = true
	sub := e.sub
	e.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}
