package combine

import (
	"context"
	"sync"

	"github.com/lguimbarda/min-rx/flow/core"
)

// FanOut splits a stream into n outputs that all receive every value. The
// source is subscribed once, when the last of the n outputs is subscribed,
// with that subscriber's context; it is read without backpressure and each
// output holds what its subscriber has not requested yet, failing with
// core.ErrOverflow past the environment capacity.
func FanOut[T any](n int, source core.Publisher[T]) []core.Publisher[T] {
	return newFanOut(n, source, nil)
}

// FanOutWith is FanOut with a router choosing the output of every value.
// Values routed outside 0..n-1 are dropped. Terminal signals reach every
// output.
func FanOutWith[T any](n int, router func(T) int, source core.Publisher[T]) []core.Publisher[T] {
	return newFanOut(n, source, router)
}

// FanIn merges streams; it is Merge under the name that pairs with FanOut.
func FanIn[T any](streams ...core.Publisher[T]) core.Publisher[T] {
	return Merge(streams...)
}

// Tee creates two outputs that both receive every value.
func Tee[T any](source core.Publisher[T]) (core.Publisher[T], core.Publisher[T]) {
	outputs := FanOut(2, source)
	return outputs[0], outputs[1]
}

// PartitionStream routes values matching predicate to the first output and
// the rest to the second.
func PartitionStream[T any](predicate func(T) bool, source core.Publisher[T]) (matched, unmatched core.Publisher[T]) {
	outputs := FanOutWith(2, func(v T) int {
		if predicate(v) {
			return 0
		}
		return 1
	}, source)
	return outputs[0], outputs[1]
}

type fanOut[T any] struct {
	source core.Publisher[T]
	route  func(T) int
	outs   []*core.Broadcaster[T]

	mu         sync.Mutex
	subscribed int
	connected  bool
}

func newFanOut[T any](n int, source core.Publisher[T], route func(T) int) []core.Publisher[T] {
	if n <= 0 {
		return nil
	}
	f := &fanOut[T]{source: source, route: route, outs: make([]*core.Broadcaster[T], n)}
	outputs := make([]core.Publisher[T], n)
	for i := range n {
		f.outs[i] = core.NewBroadcaster[T]()
		outputs[i] = outlet[T]{f: f, i: i}
	}
	return outputs
}

type outlet[T any] struct {
	f *fanOut[T]
	i int
}

func (o outlet[T]) Subscribe(ctx context.Context, s core.Subscriber[T]) {
	o.f.outs[o.i].Subscribe(ctx, s)
	o.f.mu.Lock()
	o.f.subscribed++
	connect := !o.f.connected && o.f.subscribed >= len(o.f.outs)
	if connect {
		o.f.connected = true
	}
	o.f.mu.Unlock()
	if connect {
		o.f.source.Subscribe(ctx, &router[T]{f: o.f})
	}
}

// router is the single subscriber of the fan-out source.
type router[T any] struct {
	f   *fanOut[T]
	sub core.Subscription
}

func (r *router[T]) OnSubscribe(s core.Subscription) {
	r.sub = s
	s.Request(core.Unbounded)
}

func (r *router[T]) OnNext(v T) {
	if r.f.route == nil {
		for _, b := range r.f.outs {
			b.Next(v)
		}
		return
	}
	i, err := core.Protect1(func() (int, error) { return r.f.route(v), nil })
	if err != nil {
		r.sub.Cancel()
		r.OnError(err)
		return
	}
	if i >= 0 && i < len(r.f.outs) {
		r.f.outs[i].Next(v)
	}
}

func (r *router[T]) OnError(err error) {
	for _, b := range r.f.outs {
		b.Error(err)
	}
}

func (r *router[T]) OnComplete() {
	for _, b := range r.f.outs {
		b.Complete()
	}
}
