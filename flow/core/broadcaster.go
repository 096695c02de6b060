package core

import (
	"context"
	"slices"
	"sync"
)

// Broadcaster is a hot Publisher that multicasts the values pushed into it
// to every current subscriber, each at the pace of its own demand. Values
// a subscriber has not requested yet are held for it up to the environment
// capacity, beyond which that subscriber alone fails with ErrOverflow.
// Subscribers arriving after termination receive the terminal signal.
//
// A Broadcaster is also a Subscriber, so it can be attached to a cold
// Publisher to share it; it then requests everything from that upstream.
type Broadcaster[T any] struct {
	mu       sync.Mutex
	subs     []*broadcastSub[T]
	terminal *Signal[T]
	up       Subscription
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{}
}

// Subscribe implements Publisher.
func (b *Broadcaster[T]) Subscribe(ctx context.Context, s Subscriber[T]) {
	bs := &broadcastSub[T]{b: b, down: s, capacity: EnvironmentFrom(ctx).Capacity}
	b.mu.Lock()
	terminal := b.terminal
	if terminal == nil {
		b.subs = append(b.subs, bs)
	}
	b.mu.Unlock()

	bs.serial.Do(func() { s.OnSubscribe(bs) })
	if terminal != nil {
		bs.terminate(*terminal)
	}
}

// Next pushes v to every subscriber. It is a no-op after termination.
func (b *Broadcaster[T]) Next(v T) {
	b.mu.Lock()
	if b.terminal != nil {
		b.mu.Unlock()
		return
	}
	subs := slices.Clone(b.subs)
	b.mu.Unlock()
	for _, s := range subs {
		s.push(v)
	}
}

// Error terminates every subscriber with err.
func (b *Broadcaster[T]) Error(err error) {
	b.finish(Error[T](err))
}

// Complete terminates every subscriber normally.
func (b *Broadcaster[T]) Complete() {
	b.finish(Complete[T]())
}

func (b *Broadcaster[T]) finish(sig Signal[T]) {
	b.mu.Lock()
	if b.terminal != nil {
		b.mu.Unlock()
		return
	}
	b.terminal = &sig
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, s := range subs {
		s.terminate(sig)
	}
}

// Subscribers returns the number of live subscribers.
func (b *Broadcaster[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster[T]) remove(s *broadcastSub[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = slices.DeleteFunc(b.subs, func(x *broadcastSub[T]) bool { return x == s })
}

func (b *Broadcaster[T]) OnSubscribe(s Subscription) {
	b.mu.Lock()
	if b.up != nil || b.terminal != nil {
		b.mu.Unlock()
		s.Cancel()
		return
	}
	b.up = s
	b.mu.Unlock()
	s.Request(Unbounded)
}

func (b *Broadcaster[T]) OnNext(v T)        { b.Next(v) }
func (b *Broadcaster[T]) OnError(err error) { b.Error(err) }
func (b *Broadcaster[T]) OnComplete()       { b.Complete() }

type broadcastSub[T any] struct {
	b        *Broadcaster[T]
	down     Subscriber[T]
	serial   Serializer
	capacity int

	demand    Demand
	queue     []T
	terminal  *Signal[T]
	done      bool
	cancelled bool
}

func (s *broadcastSub[T]) push(v T) {
	s.serial.Do(func() {
		if s.done || s.cancelled {
			return
		}
		if len(s.queue) == 0 && s.demand.Take() {
			s.down.OnNext(v)
			return
		}
		if len(s.queue) >= s.capacity {
			s.fail(&OverflowError{Capacity: s.capacity})
			return
		}
		s.queue = append(s.queue, v)
	})
}

func (s *broadcastSub[T]) terminate(sig Signal[T]) {
	s.serial.Do(func() {
		if s.done || s.cancelled {
			return
		}
		if sig.IsError() {
			s.queue = nil
		}
		s.terminal = &sig
		s.drain()
	})
}

func (s *broadcastSub[T]) drain() {
	for len(s.queue) > 0 && !s.cancelled && s.demand.Take() {
		v := s.queue[0]
		s.queue = s.queue[1:]
		s.down.OnNext(v)
	}
	if len(s.queue) == 0 && s.terminal != nil && !s.done && !s.cancelled {
		s.done = true
		s.terminal.Deliver(s.down)
	}
}

func (s *broadcastSub[T]) fail(err error) {
	s.done = true
	s.queue = nil
	s.b.remove(s)
	s.down.OnError(err)
}

func (s *broadcastSub[T]) Request(n int64) {
	s.serial.Do(func() {
		if s.done || s.cancelled {
			return
		}
		if n <= 0 {
			s.fail(protocolErr("request(%d): demand must be positive", n))
			return
		}
		s.demand.Add(n)
		s.drain()
	})
}

func (s *broadcastSub[T]) Cancel() {
	s.serial.Do(func() {
		if s.cancelled {
			return
		}
		s.cancelled = true
		s.queue = nil
		s.b.remove(s)
	})
}
