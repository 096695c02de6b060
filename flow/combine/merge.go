// Package combine provides operators that join several publishers into one:
// merging, concatenation, dynamic flat-mapping, zipping and fan-out.
package combine

import (
	"context"
	"slices"
	"sync"

	"github.com/lguimbarda/min-rx/flow/core"
)

// Prefetch is the number of values requested from each inner source ahead
// of downstream demand. It is capped by the environment capacity.
const Prefetch = 32

// Merge combines sources into one stream, emitting values as they arrive
// from any of them. All sources are subscribed at once. The stream completes
// when every source completed; the first error cancels the others.
func Merge[T any](sources ...core.Publisher[T]) core.Publisher[T] {
	return FlatMap(identity[T], 0).Apply(publishers(sources))
}

// MergeWith merges the upstream with others.
func MergeWith[T any](others ...core.Publisher[T]) core.Transformer[T, T] {
	return core.TransformFunc(func(p core.Publisher[T]) core.Publisher[T] {
		return Merge(append([]core.Publisher[T]{p}, others...)...)
	})
}

// Concat emits every value of the first source, then of the second, and so
// on. A source is subscribed only after the previous one completed; unmet
// demand carries over to it.
func Concat[T any](sources ...core.Publisher[T]) core.Publisher[T] {
	return ConcatMap(identity[T]).Apply(publishers(sources))
}

// ConcatWith appends others after the upstream.
func ConcatWith[T any](others ...core.Publisher[T]) core.Transformer[T, T] {
	return core.TransformFunc(func(p core.Publisher[T]) core.Publisher[T] {
		return Concat(append([]core.Publisher[T]{p}, others...)...)
	})
}

// FlatMap maps every value to a Publisher and merges the results. At most
// maxConcurrency inner publishers are subscribed at a time; further values
// are requested from the upstream only when an inner publisher completes.
// maxConcurrency <= 0 means no bound.
func FlatMap[T, R any](fn func(T) (core.Publisher[R], error), maxConcurrency int) core.Transformer[T, R] {
	return core.Lift[T, R](func(ctx context.Context, down core.Subscriber[R]) core.Subscriber[T] {
		return newFanIn(ctx, down, fn, maxConcurrency).op
	})
}

// ConcatMap is FlatMap with one inner publisher at a time, which preserves
// the order of the upstream values.
func ConcatMap[T, R any](fn func(T) (core.Publisher[R], error)) core.Transformer[T, R] {
	return FlatMap(fn, 1)
}

func identity[T any](p core.Publisher[T]) (core.Publisher[T], error) { return p, nil }

func publishers[T any](sources []core.Publisher[T]) core.Publisher[core.Publisher[T]] {
	return core.PullBounded(func(context.Context) (core.PullFunc[core.Publisher[T]], func() bool, func()) {
		i := 0
		next := func() (core.Publisher[T], bool, error) {
			if i >= len(sources) {
				return nil, false, nil
			}
			i++
			return sources[i-1], true, nil
		}
		return next, func() bool { return i >= len(sources) }, nil
	})
}

// fanIn drives a dynamic set of inner publishers into one downstream. Each
// inner is read through a bounded queue with prefetch and replenishment;
// values are taken round-robin from the inner queues while downstream has
// demand, so nothing is ever held in the operator's own output queue.
type fanIn[T, R any] struct {
	ctx      context.Context
	op       *core.Operator[T, R]
	project  func(T) (core.Publisher[R], error)
	max      int64
	prefetch int64
	limit    int64

	inners    []*inner[T, R]
	rr        int
	requested bool
}

func newFanIn[T, R any](ctx context.Context, down core.Subscriber[R], project func(T) (core.Publisher[R], error), maxConcurrency int) *fanIn[T, R] {
	f := &fanIn[T, R]{
		ctx:     ctx,
		op:      core.NewOperator[T, R](ctx, down),
		project: project,
		max:     core.Unbounded,
	}
	if maxConcurrency > 0 {
		f.max = int64(maxConcurrency)
	}
	f.prefetch = min(Prefetch, int64(f.op.Env().Capacity))
	f.limit = max(1, f.prefetch/2)

	o := f.op
	o.Requested = func(int64) {
		if !f.requested {
			f.requested = true
			o.RequestUpstream(f.max)
		}
		f.drain()
	}
	o.Next = f.next
	o.Completed = f.reap
	o.Release = func() {
		for _, in := range f.inners {
			in.cancel()
		}
		f.inners = nil
	}
	return f
}

func (f *fanIn[T, R]) next(v T) {
	p, err := core.Protect1(func() (core.Publisher[R], error) { return f.project(v) })
	if err != nil {
		f.op.Fail(err)
		return
	}
	in := &inner[T, R]{f: f}
	f.inners = append(f.inners, in)
	p.Subscribe(f.ctx, in)
}

// drain emits queued inner values while downstream has demand.
func (f *fanIn[T, R]) drain() {
	for f.op.Demand() > 0 {
		in := f.ready()
		if in == nil {
			break
		}
		v := in.queue[0]
		var zero R
		in.queue[0] = zero
		in.queue = in.queue[1:]
		f.op.Emit(v)
		if f.op.Terminated() {
			return
		}
		in.consumed++
		if !in.done && in.consumed >= f.limit {
			n := in.consumed
			in.consumed = 0
			in.request(n)
		}
	}
	f.reap()
}

// ready picks the next inner with a queued value, round-robin.
func (f *fanIn[T, R]) ready() *inner[T, R] {
	n := len(f.inners)
	for i := range n {
		idx := (f.rr + i) % n
		if len(f.inners[idx].queue) > 0 {
			f.rr = idx + 1
			return f.inners[idx]
		}
	}
	return nil
}

// reap drops drained inners, asks the upstream for a replacement when the
// concurrency is bounded, and completes once nothing is left.
func (f *fanIn[T, R]) reap() {
	if f.op.Terminated() {
		return
	}
	before := len(f.inners)
	f.inners = slices.DeleteFunc(f.inners, func(in *inner[T, R]) bool {
		return in.done && len(in.queue) == 0
	})
	if freed := before - len(f.inners); freed > 0 && f.max != core.Unbounded {
		f.op.RequestUpstream(int64(freed))
	}
	if f.op.UpstreamDone() && len(f.inners) == 0 {
		f.op.Complete()
	}
}

// inner subscribes to one inner publisher. Its subscription is guarded by
// a mutex because the inner may subscribe from another goroutine while the
// operator releases; everything else runs in the operator's domain.
type inner[T, R any] struct {
	f *fanIn[T, R]

	mu        sync.Mutex
	sub       core.Subscription
	cancelled bool

	queue       []R
	outstanding int64
	consumed    int64
	done        bool
}

func (in *inner[T, R]) OnSubscribe(s core.Subscription) {
	in.mu.Lock()
	if in.cancelled || in.sub != nil {
		in.mu.Unlock()
		s.Cancel()
		return
	}
	in.sub = s
	in.mu.Unlock()
	in.f.op.Do(func() { in.request(in.f.prefetch) })
}

func (in *inner[T, R]) OnNext(v R) {
	in.f.op.Do(func() {
		if in.done {
			return
		}
		if in.outstanding <= 0 {
			in.f.op.Fail(&core.ProtocolError{Reason: "inner value received without outstanding demand"})
			return
		}
		in.outstanding--
		in.queue = append(in.queue, v)
		in.f.drain()
	})
}

func (in *inner[T, R]) OnError(err error) {
	in.f.op.Do(func() {
		if in.done {
			return
		}
		in.done = true
		in.f.op.Error(err)
	})
}

func (in *inner[T, R]) OnComplete() {
	in.f.op.Do(func() {
		if in.done {
			return
		}
		in.done = true
		in.f.drain()
	})
}

func (in *inner[T, R]) request(n int64) {
	in.outstanding += n
	in.mu.Lock()
	sub := in.sub
	in.mu.Unlock()
	if sub != nil {
		sub.Request(n)
	}
}

func (in *inner[T, R]) cancel() {
	in.mu.Lock()
	if in.cancelled {
		in.mu.Unlock()
		return
	}
	in.cancelled = true
	sub := in.sub
	in.mu.Unlock()
	in.queue = nil
	if sub != nil && !in.done {
		sub.Cancel()
	}
}
