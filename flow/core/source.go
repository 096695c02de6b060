package core

import (
	"context"
	"sync/atomic"
)

// PullFunc produces the next value of a source. It returns ok=false once
// the source is exhausted; a non-nil error terminates the stream.
type PullFunc[T any] func() (value T, ok bool, err error)

// Pull creates a cold Publisher from a per-subscription pull function. open
// is called on every Subscribe and returns the pull function and an
// optional release function invoked once when the subscription ends for any
// reason. Values are pulled on the goroutine that requests them, exactly as
// many as were requested.
func Pull[T any](open func(ctx context.Context) (PullFunc[T], func())) Publisher[T] {
	return PublisherFunc[T](func(ctx context.Context, s Subscriber[T]) {
		next, release := open(ctx)
		ps := &pullSubscription[T]{down: s, next: next, release: release}
		ps.serial.Do(func() { s.OnSubscribe(ps) })
	})
}

// PullBounded is Pull for sources that can tell they are exhausted without
// pulling, such as slices and ranges. drained is consulted after every
// value and right after subscription, so the stream completes together
// with its last value instead of on the next request.
func PullBounded[T any](open func(ctx context.Context) (next PullFunc[T], drained func() bool, release func())) Publisher[T] {
	return PublisherFunc[T](func(ctx context.Context, s Subscriber[T]) {
		next, drained, release := open(ctx)
		ps := &pullSubscription[T]{down: s, next: next, drained: drained, release: release}
		ps.serial.Do(func() {
			s.OnSubscribe(ps)
			ps.checkDrained()
		})
	})
}

type pullSubscription[T any] struct {
	serial  Serializer
	down    Subscriber[T]
	next    PullFunc[T]
	drained func() bool
	release func()
	demand  Demand

	// cancelled is checked between pulls without entering the serial
	// domain, so that a synchronous Cancel issued by a downstream OnNext
	// stops an unbounded pull loop.
	cancelled atomic.Bool
	done      bool
	released  atomic.Bool
}

func (p *pullSubscription[T]) Request(n int64) {
	p.serial.Do(func() {
		if p.done || p.cancelled.Load() {
			return
		}
		if n <= 0 {
			p.terminate(Error[T](protocolErr("request(%d): demand must be positive", n)))
			return
		}
		p.demand.Add(n)
		p.pump()
	})
}

func (p *pullSubscription[T]) pump() {
	for p.demand.Get() > 0 && !p.done && !p.cancelled.Load() {
		v, ok, err := p.pull()
		if err != nil {
			p.terminate(Error[T](err))
			return
		}
		if !ok {
			p.terminate(Complete[T]())
			return
		}
		p.demand.Take()
		p.down.OnNext(v)
		if p.checkDrained() {
			return
		}
	}
}

// checkDrained completes the stream when a bounded source has nothing left.
func (p *pullSubscription[T]) checkDrained() bool {
	if p.drained == nil || p.done || p.cancelled.Load() {
		return false
	}
	empty, err := Protect1(func() (bool, error) { return p.drained(), nil })
	switch {
	case err != nil:
		p.terminate(Error[T](err))
	case empty:
		p.terminate(Complete[T]())
	default:
		return false
	}
	return true
}

func (p *pullSubscription[T]) pull() (v T, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewPanicError(r)
		}
	}()
	return p.next()
}

func (p *pullSubscription[T]) terminate(sig Signal[T]) {
	p.done = true
	p.free()
	sig.Deliver(p.down)
}

func (p *pullSubscription[T]) free() {
	if p.release != nil && p.released.CompareAndSwap(false, true) {
		p.release()
	}
}

func (p *pullSubscription[T]) Cancel() {
	if p.cancelled.CompareAndSwap(false, true) {
		p.serial.Do(p.free)
	}
}

// Empty completes immediately without values.
func Empty[T any]() Publisher[T] {
	return PublisherFunc[T](func(ctx context.Context, s Subscriber[T]) {
		s.OnSubscribe(noopSubscription{})
		s.OnComplete()
	})
}

// Fail terminates immediately with err.
func Fail[T any](err error) Publisher[T] {
	return PublisherFunc[T](func(ctx context.Context, s Subscriber[T]) {
		s.OnSubscribe(noopSubscription{})
		s.OnError(err)
	})
}

// Never subscribes and then stays silent until cancelled.
func Never[T any]() Publisher[T] {
	return PublisherFunc[T](func(ctx context.Context, s Subscriber[T]) {
		s.OnSubscribe(noopSubscription{})
	})
}

// Defer calls factory on every Subscribe and subscribes to the publisher
// it returns, so each subscriber gets fresh state.
func Defer[T any](factory func() Publisher[T]) Publisher[T] {
	return PublisherFunc[T](func(ctx context.Context, s Subscriber[T]) {
		p, err := Protect1(func() (Publisher[T], error) { return factory(), nil })
		if err != nil {
			Fail[T](err).Subscribe(ctx, s)
			return
		}
		p.Subscribe(ctx, s)
	})
}

type noopSubscription struct{}

func (noopSubscription) Request(int64) {}
func (noopSubscription) Cancel()       {}
