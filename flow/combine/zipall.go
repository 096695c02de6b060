package combine

import (
	"context"
	"sync"

	"github.com/lguimbarda/min-rx/flow/core"
)

// ZipAll emits one row per round, holding the n-th value of every source in
// source order. It completes once any source has completed and all of its
// values were used; the remaining sources are then cancelled.
func ZipAll[T any](sources ...core.Publisher[T]) core.Publisher[[]T] {
	return ZipAllWith(func(row []T) ([]T, error) { return row, nil }, sources...)
}

// ZipAllWith is ZipAll with a combiner. The row passed to combine is not
// reused. A combiner error fails the stream and cancels every source.
func ZipAllWith[T, R any](combine func([]T) (R, error), sources ...core.Publisher[T]) core.Publisher[R] {
	if len(sources) == 0 {
		return core.Empty[R]()
	}
	return core.PublisherFunc[R](func(ctx context.Context, down core.Subscriber[R]) {
		j := &join[T, R]{op: core.NewOperator[struct{}, R](ctx, down), combine: combine}
		for _, src := range sources {
			j.lanes = append(j.lanes, &joinLane[T, R]{j: j, src: src})
		}
		subscribed := false
		j.op.Requested = func(n int64) {
			if !subscribed {
				subscribed = true
				for _, l := range j.lanes {
					l.src.Subscribe(ctx, l)
				}
			}
			for _, l := range j.lanes {
				l.request(n)
			}
			j.drain()
		}
		j.op.Release = func() {
			for _, l := range j.lanes {
				l.cancel()
				l.queue = nil
			}
		}
		j.op.Start()
	})
}

// join owns the lane queues; every field is touched in the operator's domain.
type join[T, R any] struct {
	op      *core.Operator[struct{}, R]
	lanes   []*joinLane[T, R]
	combine func([]T) (R, error)
}

func (j *join[T, R]) ready() bool {
	for _, l := range j.lanes {
		if len(l.queue) == 0 {
			return false
		}
	}
	return true
}

func (j *join[T, R]) drain() {
	for j.op.Demand() > 0 && j.ready() {
		row := make([]T, len(j.lanes))
		for i, l := range j.lanes {
			row[i] = l.queue[0]
			l.queue = l.queue[1:]
		}
		out, err := core.Protect1(func() (R, error) { return j.combine(row) })
		if err != nil {
			j.op.Fail(err)
			return
		}
		j.op.Emit(out)
		if j.op.Terminated() {
			return
		}
	}
	for _, l := range j.lanes {
		if l.done && len(l.queue) == 0 {
			j.op.Complete()
			return
		}
	}
}

// joinLane subscribes to one source of a ZipAll.
type joinLane[T, R any] struct {
	j   *join[T, R]
	src core.Publisher[T]

	mu        sync.Mutex
	sub       core.Subscription
	pending   int64
	cancelled bool

	queue       []T
	done        bool
	outstanding int64
}

func (l *joinLane[T, R]) OnSubscribe(sub core.Subscription) {
	l.mu.Lock()
	if l.cancelled || l.sub != nil {
		l.mu.Unlock()
		sub.Cancel()
		return
	}
	l.sub = sub
	n := l.pending
	l.pending = 0
	l.mu.Unlock()
	if n > 0 {
		sub.Request(n)
	}
}

func (l *joinLane[T, R]) OnNext(v T) {
	l.j.op.Do(func() {
		if l.done {
			return
		}
		if l.outstanding <= 0 {
			l.j.op.Fail(&core.ProtocolError{Reason: "zip value received without outstanding demand"})
			return
		}
		l.outstanding--
		l.queue = append(l.queue, v)
		l.j.drain()
	})
}

func (l *joinLane[T, R]) OnError(err error) {
	l.j.op.Do(func() {
		if l.done {
			return
		}
		l.done = true
		l.j.op.Error(err)
	})
}

func (l *joinLane[T, R]) OnComplete() {
	l.j.op.Do(func() {
		if l.done {
			return
		}
		l.done = true
		l.j.drain()
	})
}

// request runs in the operator's domain.
func (l *joinLane[T, R]) request(n int64) {
	if l.done {
		return
	}
	l.outstanding = core.AddCap(l.outstanding, n)
	l.mu.Lock()
	sub := l.sub
	if sub == nil {
		l.pending = core.AddCap(l.pending, n)
	}
	l.mu.Unlock()
	if sub != nil {
		sub.Request(n)
	}
}

func (l *joinLane[T, R]) cancel() {
	l.mu.Lock()
	if l.cancelled {
		l.mu.Unlock()
		return
	}
	l.cancelled = true
	sub := l.sub
	l.mu.Unlock()
	if sub != nil && !l.done {
		sub.Cancel()
	}
}
