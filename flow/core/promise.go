package core

import (
	"context"
	"sync"
)

// Promise is a one-shot sink holding the first value of a stream, or the
// reason there is none.
type Promise[T any] struct {
	mu    sync.Mutex
	sub   Subscription
	value T
	err   error
	done  chan struct{}
	fired bool
}

// Single subscribes p with a demand of one. The first value fulfils the
// promise and cancels the upstream; completion without a value rejects it
// with ErrEmpty; an error rejects it with that error.
func Single[T any](ctx context.Context, p Publisher[T]) *Promise[T] {
	pr := &Promise[T]{done: make(chan struct{})}
	p.Subscribe(ctx, pr)
	return pr
}

func (p *Promise[T]) OnSubscribe(s Subscription) {
	p.mu.Lock()
	if p.sub != nil || p.fired {
		p.mu.Unlock()
		s.Cancel()
		return
	}
	p.sub = s
	p.mu.Unlock()
	s.Request(1)
}

func (p *Promise[T]) OnNext(v T) {
	if p.settle(v, nil) {
		p.mu.Lock()
		s := p.sub
		p.mu.Unlock()
		if s != nil {
			s.Cancel()
		}
	}
}

func (p *Promise[T]) OnError(err error) {
	var zero T
	p.settle(zero, err)
}

func (p *Promise[T]) OnComplete() {
	var zero T
	p.settle(zero, ErrEmpty)
}

func (p *Promise[T]) settle(v T, err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fired {
		return false
	}
	p.fired = true
	p.value, p.err = v, err
	close(p.done)
	return true
}

// Done is closed once the promise is settled.
func (p *Promise[T]) Done() <-chan struct{} { return p.done }

// Await blocks until the promise is settled or ctx is done, in which case
// the subscription is cancelled.
func (p *Promise[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		p.Cancel()
		var zero T
		return zero, ctx.Err()
	}
}

// Get returns the settled result without blocking; ok is false while the
// promise is pending.
func (p *Promise[T]) Get() (value T, ok bool, err error) {
	select {
	case <-p.done:
		return p.value, true, p.err
	default:
		var zero T
		return zero, false, nil
	}
}

// Cancel rejects a pending promise with ErrCancelled and cancels the
// subscription.
func (p *Promise[T]) Cancel() {
	var zero T
	if p.settle(zero, ErrCancelled) {
		p.mu.Lock()
		s := p.sub
		p.mu.Unlock()
		if s != nil {
			s.Cancel()
		}
	}
}
