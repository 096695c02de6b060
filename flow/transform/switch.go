package transform

import (
	"context"
	"sync"

	"github.com/lguimbarda/min-rx/flow/core"
)

// SwitchMap maps every value to a publisher and mirrors the most recent one.
// A new upstream value cancels the inner publisher before it. The stream
// completes when the upstream and the last inner publisher completed; an
// error from either fails it.
func SwitchMap[T, R any](fn func(T) (core.Publisher[R], error)) core.Transformer[T, R] {
	return core.Lift[T, R](func(ctx context.Context, down core.Subscriber[R]) core.Subscriber[T] {
		return newSwitcher(ctx, down, fn, false).op
	})
}

// ExhaustMap maps a value to a publisher only while no inner publisher is
// running; values arriving in the meantime are dropped.
func ExhaustMap[T, R any](fn func(T) (core.Publisher[R], error)) core.Transformer[T, R] {
	return core.Lift[T, R](func(ctx context.Context, down core.Subscriber[R]) core.Subscriber[T] {
		return newSwitcher(ctx, down, fn, true).op
	})
}

// switcher keeps at most one live inner publisher. Downstream demand goes to
// the current inner only; a fresh inner inherits whatever demand is still
// unmet. Signals from a replaced inner are dropped.
type switcher[T, R any] struct {
	ctx     context.Context
	op      *core.Operator[T, R]
	project func(T) (core.Publisher[R], error)
	exhaust bool

	cur       *switchInner[T, R]
	requested bool
}

func newSwitcher[T, R any](ctx context.Context, down core.Subscriber[R], project func(T) (core.Publisher[R], error), exhaust bool) *switcher[T, R] {
	s := &switcher[T, R]{
		ctx:     ctx,
		op:      core.NewOperator[T, R](ctx, down),
		project: project,
		exhaust: exhaust,
	}
	o := s.op
	o.Requested = func(n int64) {
		if !s.requested {
			s.requested = true
			o.RequestUpstream(core.Unbounded)
		}
		if s.cur != nil && !s.cur.done {
			s.cur.request(n)
		}
	}
	o.Next = s.next
	o.Completed = func() {
		if s.cur == nil || s.cur.done {
			o.Complete()
		}
	}
	o.Release = func() {
		if s.cur != nil {
			s.cur.cancel()
		}
	}
	return s
}

func (s *switcher[T, R]) next(v T) {
	if s.cur != nil && !s.cur.done {
		if s.exhaust {
			return
		}
		s.cur.cancel()
	}
	p, err := core.Protect1(func() (core.Publisher[R], error) { return s.project(v) })
	if err != nil {
		s.op.Fail(err)
		return
	}
	in := &switchInner[T, R]{s: s}
	s.cur = in
	in.request(s.op.Demand())
	p.Subscribe(s.ctx, in)
}

type switchInner[T, R any] struct {
	s *switcher[T, R]

	mu        sync.Mutex
	sub       core.Subscription
	cancelled bool

	pending int64
	done    bool
}

func (in *switchInner[T, R]) OnSubscribe(sub core.Subscription) {
	in.mu.Lock()
	if in.cancelled || in.sub != nil {
		in.mu.Unlock()
		sub.Cancel()
		return
	}
	in.sub = sub
	in.mu.Unlock()
	in.s.op.Do(func() {
		if n := in.pending; n > 0 && !in.done {
			in.pending = 0
			sub.Request(n)
		}
	})
}

func (in *switchInner[T, R]) OnNext(v R) {
	in.s.op.Do(func() {
		if in.s.cur != in || in.done {
			return
		}
		in.s.op.Emit(v)
	})
}

func (in *switchInner[T, R]) OnError(err error) {
	in.s.op.Do(func() {
		if in.s.cur != in || in.done {
			return
		}
		in.done = true
		in.s.op.Error(err)
	})
}

func (in *switchInner[T, R]) OnComplete() {
	in.s.op.Do(func() {
		if in.s.cur != in || in.done {
			return
		}
		in.done = true
		if in.s.op.UpstreamDone() {
			in.s.op.Complete()
		}
	})
}

// request runs in the operator's domain. Demand asked for before the inner
// subscribed is forwarded from OnSubscribe.
func (in *switchInner[T, R]) request(n int64) {
	if n <= 0 {
		return
	}
	in.mu.Lock()
	sub := in.sub
	in.mu.Unlock()
	if sub == nil {
		in.pending = core.AddCap(in.pending, n)
		return
	}
	sub.Request(n)
}

func (in *switchInner[T, R]) cancel() {
	in.mu.Lock()
	if in.cancelled {
		in.mu.Unlock()
		return
	}
	in.cancelled = true
	sub := in.sub
	in.mu.Unlock()
	in.done = true
	if sub != nil {
		sub.Cancel()
	}
}
