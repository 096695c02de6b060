package flow

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/lguimbarda/min-rx/flow/core"
)

// Just creates a Publisher that emits the given values and completes.
func Just[T any](values ...T) Publisher[T] {
	return FromSlice(values)
}

// FromSlice creates a Publisher that emits each element from the given slice.
// Each subscriber walks the slice from the start, pulling only what it requested.
func FromSlice[T any](items []T) Publisher[T] {
	return core.PullBounded(func(context.Context) (core.PullFunc[T], func() bool, func()) {
		i := 0
		next := func() (T, bool, error) {
			if i >= len(items) {
				var zero T
				return zero, false, nil
			}
			v := items[i]
			i++
			return v, true, nil
		}
		return next, func() bool { return i >= len(items) }, nil
	})
}

// FromSeq creates a Publisher from a Go 1.23+ iterator sequence.
// The iterator is resumed once per requested value and stopped when the
// subscription ends early.
func FromSeq[T any](seq iter.Seq[T]) Publisher[T] {
	return core.Pull(func(context.Context) (core.PullFunc[T], func()) {
		next, stop := iter.Pull(seq)
		return func() (T, bool, error) {
			v, ok := next()
			return v, ok, nil
		}, stop
	})
}

// Range creates a Publisher that emits integers from start (inclusive) to end (exclusive).
// If start >= end, an empty stream is returned.
func Range(start, end int) Publisher[int] {
	return core.PullBounded(func(context.Context) (core.PullFunc[int], func() bool, func()) {
		i := start
		next := func() (int, bool, error) {
			if i >= end {
				return 0, false, nil
			}
			v := i
			i++
			return v, true, nil
		}
		return next, func() bool { return i >= end }, nil
	})
}

// Repeat creates a Publisher that emits the same value n times.
// If n is negative, the stream repeats until cancelled.
func Repeat[T any](value T, n int) Publisher[T] {
	return core.PullBounded(func(context.Context) (core.PullFunc[T], func() bool, func()) {
		emitted := 0
		drained := func() bool { return n >= 0 && emitted >= n }
		next := func() (T, bool, error) {
			if drained() {
				var zero T
				return zero, false, nil
			}
			emitted++
			return value, true, nil
		}
		return next, drained, nil
	})
}

// Generate creates a Publisher that lazily generates values using fn.
// fn returns the next value and true to continue, or false to complete.
// A non-nil error terminates the stream with that error.
func Generate[T any](fn func() (T, bool, error)) Publisher[T] {
	return core.Pull(func(context.Context) (core.PullFunc[T], func()) {
		return core.PullFunc[T](fn), nil
	})
}

// Unfold creates a Publisher by unfolding a seed value. fn receives the
// current state and returns the value to emit, the next state and whether
// to continue.
func Unfold[T, S any](seed S, fn func(S) (T, S, bool, error)) Publisher[T] {
	return core.Pull(func(context.Context) (core.PullFunc[T], func()) {
		state := seed
		return func() (T, bool, error) {
			v, next, ok, err := fn(state)
			if err != nil || !ok {
				return v, false, err
			}
			state = next
			return v, true, nil
		}, nil
	})
}

// Empty creates a Publisher that completes immediately.
func Empty[T any]() Publisher[T] { return core.Empty[T]() }

// Fail creates a Publisher that terminates immediately with err.
func Fail[T any](err error) Publisher[T] { return core.Fail[T](err) }

// Never creates a Publisher that never signals until cancelled.
func Never[T any]() Publisher[T] { return core.Never[T]() }

// Defer creates a Publisher lazily, calling factory on each Subscribe.
func Defer[T any](factory func() Publisher[T]) Publisher[T] { return core.Defer(factory) }

// FromChan creates a Publisher that emits values received from ch. The
// stream completes when ch is closed. A reader goroutine receives from ch
// only while the subscriber has outstanding demand, so an unread channel
// keeps exerting backpressure on its writer. Because a channel can be read
// once, concurrent subscribers split its values between them.
func FromChan[T any](ch <-chan T) Publisher[T] {
	return core.PublisherFunc[T](func(ctx context.Context, s core.Subscriber[T]) {
		cs := &chanSubscription[T]{wake: make(chan struct{}, 1), done: make(chan struct{})}
		s.OnSubscribe(cs)
		go cs.run(ctx, ch, s)
	})
}

type chanSubscription[T any] struct {
	mu        sync.Mutex
	demand    core.Demand
	invalid   error
	cancelled bool
	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (c *chanSubscription[T]) Request(n int64) {
	c.mu.Lock()
	if n <= 0 {
		if c.invalid == nil {
			c.invalid = &core.ProtocolError{Reason: fmt.Sprintf("request(%d): demand must be positive", n)}
		}
	} else {
		c.demand.Add(n)
	}
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *chanSubscription[T]) Cancel() {
	c.mu.Lock()
	c.cancelled = true
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.done) })
}

// take blocks until a unit of demand is available. It reports false when the
// subscription was cancelled, or returns an error for an invalid request.
func (c *chanSubscription[T]) take(ctx context.Context) (bool, error) {
	for {
		c.mu.Lock()
		switch {
		case c.cancelled:
			c.mu.Unlock()
			return false, nil
		case c.invalid != nil:
			err := c.invalid
			c.mu.Unlock()
			return false, err
		case c.demand.Take():
			c.mu.Unlock()
			return true, nil
		}
		c.mu.Unlock()
		select {
		case <-c.wake:
		case <-c.done:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

func (c *chanSubscription[T]) run(ctx context.Context, ch <-chan T, s core.Subscriber[T]) {
	for {
		ok, err := c.take(ctx)
		if err != nil {
			s.OnError(err)
			return
		}
		if !ok {
			return
		}
		select {
		case v, open := <-ch:
			if !open {
				s.OnComplete()
				return
			}
			s.OnNext(v)
		case <-c.done:
			return
		case <-ctx.Done():
			s.OnError(ctx.Err())
			return
		}
	}
}
