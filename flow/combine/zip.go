package combine

import (
	"context"
	"sync"

	"github.com/lguimbarda/min-rx/flow/core"
)

// Pair holds one value from each side of a Zip.
type Pair[A, B any] struct {
	First  A
	Second B
}

// Zip pairs the n-th value of a with the n-th value of b. It completes as
// soon as one side has completed and every value it produced was paired;
// the other side is then cancelled and its surplus values dropped.
func Zip[A, B any](a core.Publisher[A], b core.Publisher[B]) core.Publisher[Pair[A, B]] {
	return ZipWith(a, b, func(x A, y B) (Pair[A, B], error) {
		return Pair[A, B]{First: x, Second: y}, nil
	})
}

// ZipWith is Zip with a combiner. A combiner error fails the stream and
// cancels both sides.
func ZipWith[A, B, C any](a core.Publisher[A], b core.Publisher[B], combine func(A, B) (C, error)) core.Publisher[C] {
	return core.PublisherFunc[C](func(ctx context.Context, down core.Subscriber[C]) {
		z := newZipper(ctx, down, b, combine)
		a.Subscribe(ctx, z.op)
	})
}

// zipper reads side a as its operator upstream and side b through a second
// subscriber. Each output consumes one value of each side, so downstream
// demand is forwarded unchanged to both.
type zipper[A, B, C any] struct {
	ctx     context.Context
	op      *core.Operator[A, C]
	b       core.Publisher[B]
	side    *zipSide[A, B, C]
	combine func(A, B) (C, error)

	qa    []A
	qb    []B
	doneA bool
	doneB bool
}

func newZipper[A, B, C any](ctx context.Context, down core.Subscriber[C], b core.Publisher[B], combine func(A, B) (C, error)) *zipper[A, B, C] {
	z := &zipper[A, B, C]{ctx: ctx, op: core.NewOperator[A, C](ctx, down), b: b, combine: combine}
	z.side = &zipSide[A, B, C]{z: z}
	o := z.op
	subscribed := false
	o.Requested = func(n int64) {
		if !subscribed {
			subscribed = true
			z.b.Subscribe(z.ctx, z.side)
		}
		o.RequestUpstream(n)
		z.side.request(n)
		z.drain()
	}
	o.Next = func(v A) {
		z.qa = append(z.qa, v)
		z.drain()
	}
	o.Completed = func() {
		z.doneA = true
		z.drain()
	}
	o.Release = func() {
		z.side.cancel()
		z.qa, z.qb = nil, nil
	}
	return z
}

func (z *zipper[A, B, C]) drain() {
	for len(z.qa) > 0 && len(z.qb) > 0 && z.op.Demand() > 0 {
		x, y := z.qa[0], z.qb[0]
		z.qa, z.qb = z.qa[1:], z.qb[1:]
		out, err := core.Protect1(func() (C, error) { return z.combine(x, y) })
		if err != nil {
			z.op.Fail(err)
			return
		}
		z.op.Emit(out)
		if z.op.Terminated() {
			return
		}
	}
	if (z.doneA && len(z.qa) == 0) || (z.doneB && len(z.qb) == 0) {
		z.op.Complete()
	}
}

// zipSide subscribes to side b and feeds it into the zipper's domain.
type zipSide[A, B, C any] struct {
	z *zipper[A, B, C]

	mu        sync.Mutex
	sub       core.Subscription
	pending   int64
	cancelled bool

	outstanding int64
}

func (s *zipSide[A, B, C]) OnSubscribe(sub core.Subscription) {
	s.mu.Lock()
	if s.cancelled || s.sub != nil {
		s.mu.Unlock()
		sub.Cancel()
		return
	}
	s.sub = sub
	n := s.pending
	s.pending = 0
	s.mu.Unlock()
	if n > 0 {
		sub.Request(n)
	}
}

func (s *zipSide[A, B, C]) OnNext(v B) {
	s.z.op.Do(func() {
		if s.z.doneB {
			return
		}
		if s.outstanding <= 0 {
			s.z.op.Fail(&core.ProtocolError{Reason: "zip value received without outstanding demand"})
			return
		}
		s.outstanding--
		s.z.qb = append(s.z.qb, v)
		s.z.drain()
	})
}

func (s *zipSide[A, B, C]) OnError(err error) {
	s.z.op.Do(func() {
		if s.z.doneB {
			return
		}
		s.z.doneB = true
		s.z.op.Error(err)
	})
}

func (s *zipSide[A, B, C]) OnComplete() {
	s.z.op.Do(func() {
		if s.z.doneB {
			return
		}
		s.z.doneB = true
		s.z.drain()
	})
}

// request runs in the zipper's domain.
func (s *zipSide[A, B, C]) request(n int64) {
	if s.z.doneB {
		return
	}
	s.outstanding = core.AddCap(s.outstanding, n)
	s.mu.Lock()
	sub := s.sub
	if sub == nil {
		s.pending = core.AddCap(s.pending, n)
	}
	s.mu.Unlock()
	if sub != nil {
		sub.Request(n)
	}
}

func (s *zipSide[A, B, C]) cancel() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	sub := s.sub
	s.mu.Unlock()
	if sub != nil && !s.z.doneB {
		sub.Cancel()
	}
}
