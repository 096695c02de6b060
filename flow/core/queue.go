package core

import (
	"context"
	"errors"
	"sync"
)

// ErrEndOfStream is returned by BlockingQueue.Pop once the stream completed
// and every value was consumed.
var ErrEndOfStream = errors.New("end of stream")

// DefaultPrefetch is the demand a BlockingQueue keeps outstanding when no
// prefetch is given.
const DefaultPrefetch = 32

// BlockingQueue materializes a stream into a pollable queue. It is the only
// sink whose caller blocks: Pop waits until the producer pushes a value, the
// stream terminates, or the caller's context is done. The queue keeps at
// most prefetch values in flight and replenishes demand one value per Pop.
type BlockingQueue[T any] struct {
	mu        sync.Mutex
	sub       Subscription
	items     []T
	err       error
	done      bool
	cancelled bool
	prefetch  int64
	notify    chan struct{}
}

// ToQueue subscribes p and returns the queue it feeds. prefetch <= 0 uses
// DefaultPrefetch.
func ToQueue[T any](ctx context.Context, p Publisher[T], prefetch int) *BlockingQueue[T] {
	if prefetch <= 0 {
		prefetch = DefaultPrefetch
	}
	q := &BlockingQueue[T]{
		prefetch: int64(prefetch),
		notify:   make(chan struct{}, 1),
	}
	p.Subscribe(ctx, q)
	return q
}

func (q *BlockingQueue[T]) OnSubscribe(s Subscription) {
	q.mu.Lock()
	if q.sub != nil || q.cancelled {
		q.mu.Unlock()
		s.Cancel()
		return
	}
	q.sub = s
	q.mu.Unlock()
	s.Request(q.prefetch)
}

func (q *BlockingQueue[T]) OnNext(v T) {
	q.mu.Lock()
	if q.done || q.cancelled {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.wake()
}

func (q *BlockingQueue[T]) OnError(err error) {
	q.terminate(err)
}

func (q *BlockingQueue[T]) OnComplete() {
	q.terminate(nil)
}

func (q *BlockingQueue[T]) terminate(err error) {
	q.mu.Lock()
	if q.done {
		q.mu.Unlock()
		return
	}
	q.done = true
	q.err = err
	q.mu.Unlock()
	q.wake()
}

func (q *BlockingQueue[T]) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop blocks for the next value. It returns ErrEndOfStream after
// completion, the stream's error after a failure, ErrCancelled after
// Cancel, and ctx.Err() (cancelling the subscription) when ctx is done.
func (q *BlockingQueue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			s, done := q.sub, q.done
			q.mu.Unlock()
			if s != nil && !done {
				s.Request(1)
			}
			return v, nil
		}
		switch {
		case q.cancelled:
			q.mu.Unlock()
			return zero, ErrCancelled
		case q.done && q.err != nil:
			err := q.err
			q.mu.Unlock()
			return zero, err
		case q.done:
			q.mu.Unlock()
			return zero, ErrEndOfStream
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			q.Cancel()
			return zero, ctx.Err()
		}
	}
}

// TryPop returns the next value without blocking.
func (q *BlockingQueue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		var zero T
		return zero, false
	}
	v := q.items[0]
	q.items = q.items[1:]
	s, done := q.sub, q.done
	q.mu.Unlock()
	if s != nil && !done {
		s.Request(1)
	}
	return v, true
}

// Len returns the number of values waiting to be popped.
func (q *BlockingQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cancel cancels the subscription and wakes blocked callers. Values already
// queued are discarded.
func (q *BlockingQueue[T]) Cancel() {
	q.mu.Lock()
	if q.cancelled {
		q.mu.Unlock()
		return
	}
	q.cancelled = true
	q.items = nil
	s, done := q.sub, q.done
	q.mu.Unlock()
	if s != nil && !done {
		s.Cancel()
	}
	q.wake()
}
