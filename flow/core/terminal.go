package core

import (
	"context"
	"iter"
	"sync"
)

// Terminal functions are sinks: they subscribe, drive demand and turn the
// stream into a plain Go value, such as a slice, the first value, or just an
// error for side-effect-only pipelines. Blocking sinks honour ctx: when it
// is done the subscription is cancelled and ctx.Err() is returned.

// consumer is a Subscriber built from callbacks that requests everything
// up front.
type consumer[T any] struct {
	mu         sync.Mutex
	sub        Subscription
	cancelled  bool
	finished   bool
	onNext     func(T)
	onError    func(error)
	onComplete func()
}

func (c *consumer[T]) OnSubscribe(s Subscription) {
	c.mu.Lock()
	if c.sub != nil || c.cancelled {
		c.mu.Unlock()
		s.Cancel()
		return
	}
	c.sub = s
	c.mu.Unlock()
	s.Request(Unbounded)
}

func (c *consumer[T]) OnNext(v T) {
	if c.onNext != nil {
		c.onNext(v)
	}
}

func (c *consumer[T]) OnError(err error) {
	if c.terminate() && c.onError != nil {
		c.onError(err)
	}
}

func (c *consumer[T]) OnComplete() {
	if c.terminate() && c.onComplete != nil {
		c.onComplete()
	}
}

func (c *consumer[T]) terminate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return false
	}
	c.finished = true
	return true
}

func (c *consumer[T]) cancel() {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return
	}
	c.cancelled = true
	s := c.sub
	c.mu.Unlock()
	if s != nil {
		s.Cancel()
	}
}

// Consume subscribes with unbounded demand and invokes the callbacks, any of
// which may be nil. The returned function cancels the subscription.
func Consume[T any](ctx context.Context, p Publisher[T], onNext func(T), onError func(error), onComplete func()) (cancel func()) {
	c := &consumer[T]{onNext: onNext, onError: onError, onComplete: onComplete}
	p.Subscribe(ctx, c)
	return c.cancel
}

// await subscribes a consumer and blocks until it terminates or ctx is done.
func await[T any](ctx context.Context, p Publisher[T], onNext func(T)) error {
	done := make(chan error, 1)
	cancel := Consume(ctx, p, onNext,
		func(err error) { done <- err },
		func() { done <- nil },
	)
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// Slice collects all stream values into a slice.
func Slice[T any](ctx context.Context, p Publisher[T]) ([]T, error) {
	var mu sync.Mutex
	var result []T
	err := await(ctx, p, func(v T) {
		mu.Lock()
		result = append(result, v)
		mu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	mu.Lock()
	defer mu.Unlock()
	return result, nil
}

// Run executes the stream for side effects only.
func Run[T any](ctx context.Context, p Publisher[T]) error {
	return await(ctx, p, nil)
}

// Collect gathers every signal, including the terminal one, into a slice.
func Collect[T any](ctx context.Context, p Publisher[T]) []Signal[T] {
	var mu sync.Mutex
	var signals []Signal[T]
	err := await(ctx, p, func(v T) {
		mu.Lock()
		signals = append(signals, Next(v))
		mu.Unlock()
	})
	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		return append(signals, Error[T](err))
	}
	return append(signals, Complete[T]())
}

// First returns the first value and cancels the rest of the stream.
func First[T any](ctx context.Context, p Publisher[T]) (T, error) {
	return Single(ctx, p).Await(ctx)
}

// Last returns the final value of the stream.
func Last[T any](ctx context.Context, p Publisher[T]) (T, error) {
	var mu sync.Mutex
	var last T
	seen := false
	err := await(ctx, p, func(v T) {
		mu.Lock()
		last, seen = v, true
		mu.Unlock()
	})
	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		var zero T
		return zero, err
	}
	if !seen {
		var zero T
		return zero, ErrEmpty
	}
	return last, nil
}

// All returns an iterator over the stream values. Values are pulled through
// a BlockingQueue with the given prefetch, so the producer is never more
// than prefetch values ahead of the loop. Breaking out of the loop cancels
// the subscription. A failure is yielded once as the final pair.
func All[T any](ctx context.Context, p Publisher[T], prefetch int) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		q := ToQueue(ctx, p, prefetch)
		defer q.Cancel()
		for {
			v, err := q.Pop(ctx)
			if err == ErrEndOfStream {
				return
			}
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}
