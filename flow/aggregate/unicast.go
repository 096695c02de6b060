package aggregate

import (
	"context"
	"errors"

	"github.com/lguimbarda/min-rx/flow/core"
)

// ErrAlreadySubscribed is delivered to a second subscriber of a window or
// group, which can be consumed only once.
var ErrAlreadySubscribed = errors.New("aggregate: stream already has a subscriber")

// unicast is a hot, single-subscriber Publisher fed by a parent operator.
// Values pushed before the subscriber arrives, or beyond its demand, are
// held up to capacity; past that the subscriber fails with ErrOverflow.
type unicast[T any] struct {
	serial   core.Serializer
	capacity int
	onCancel func()

	down       core.Subscriber[T]
	demand     core.Demand
	queue      []T
	terminal   *core.Signal[T]
	done       bool
	cancelled  bool
	subscribed bool
}

func newUnicast[T any](capacity int, onCancel func()) *unicast[T] {
	return &unicast[T]{capacity: capacity, onCancel: onCancel}
}

func (u *unicast[T]) Subscribe(_ context.Context, s core.Subscriber[T]) {
	u.serial.Do(func() {
		if u.subscribed {
			s.OnSubscribe(rejected{})
			s.OnError(ErrAlreadySubscribed)
			return
		}
		u.subscribed = true
		u.down = s
		s.OnSubscribe(u)
		u.drain()
	})
}

func (u *unicast[T]) next(v T) {
	u.serial.Do(func() {
		if u.done || u.cancelled || u.terminal != nil {
			return
		}
		if u.down != nil && len(u.queue) == 0 && u.demand.Take() {
			u.down.OnNext(v)
			return
		}
		if len(u.queue) >= u.capacity {
			u.terminal = new(core.Signal[T])
			*u.terminal = core.Error[T](&core.OverflowError{Capacity: u.capacity})
			u.queue = nil
			u.drain()
			return
		}
		u.queue = append(u.queue, v)
	})
}

func (u *unicast[T]) complete() { u.finish(core.Complete[T]()) }

func (u *unicast[T]) fail(err error) { u.finish(core.Error[T](err)) }

func (u *unicast[T]) finish(sig core.Signal[T]) {
	u.serial.Do(func() {
		if u.terminal != nil || u.cancelled {
			return
		}
		if sig.IsError() {
			u.queue = nil
		}
		u.terminal = &sig
		u.drain()
	})
}

func (u *unicast[T]) drain() {
	if u.down == nil {
		return
	}
	for len(u.queue) > 0 && !u.cancelled && u.demand.Take() {
		v := u.queue[0]
		u.queue = u.queue[1:]
		u.down.OnNext(v)
	}
	if len(u.queue) == 0 && u.terminal != nil && !u.done && !u.cancelled {
		u.done = true
		u.terminal.Deliver(u.down)
	}
}

func (u *unicast[T]) Request(n int64) {
	u.serial.Do(func() {
		if u.done || u.cancelled {
			return
		}
		if n <= 0 {
			u.done = true
			u.queue = nil
			u.down.OnError(&core.ProtocolError{Reason: "request must be positive"})
			return
		}
		u.demand.Add(n)
		u.drain()
	})
}

func (u *unicast[T]) Cancel() {
	u.serial.Do(func() {
		if u.cancelled {
			return
		}
		u.cancelled = true
		u.queue = nil
		if u.onCancel != nil {
			u.onCancel()
		}
	})
}

type rejected struct{}

func (rejected) Request(int64) {}
func (rejected) Cancel()       {}
