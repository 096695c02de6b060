package filter

import (
	"context"
	"sync"

	"github.com/lguimbarda/min-rx/flow/core"
)

// TakeUntil passes values until notifier emits or completes, then
// completes and cancels both. A notifier error fails the stream.
func TakeUntil[T, N any](notifier core.Publisher[N]) core.Transformer[T, T] {
	return core.Lift[T, T](func(ctx context.Context, down core.Subscriber[T]) core.Subscriber[T] {
		o := core.NewOperator[T, T](ctx, down)
		o.Next = func(v T) { o.Emit(v) }
		gate := &gate[N]{
			open: func() { o.Do(o.Complete) },
			fail: func(err error) { o.Do(func() { o.Error(err) }) },
		}
		o.Release = gate.cancel
		notifier.Subscribe(ctx, gate)
		return o
	})
}

// SkipUntil drops values until notifier emits, then passes everything. A
// notifier that completes without emitting keeps the gate shut; a notifier
// error fails the stream.
func SkipUntil[T, N any](notifier core.Publisher[N]) core.Transformer[T, T] {
	return core.Lift[T, T](func(ctx context.Context, down core.Subscriber[T]) core.Subscriber[T] {
		o := core.NewOperator[T, T](ctx, down)
		passing := false
		o.Next = func(v T) {
			if !passing {
				o.RequestUpstream(1)
				return
			}
			o.Emit(v)
		}
		gate := &gate[N]{
			open:  func() { o.Do(func() { passing = true }) },
			fail:  func(err error) { o.Do(func() { o.Error(err) }) },
			quiet: true,
		}
		o.Release = gate.cancel
		notifier.Subscribe(ctx, gate)
		return o
	})
}

// gate subscribes to a notifier and reports its first signal once. With
// quiet set, completion without a value is not reported.
type gate[N any] struct {
	open  func()
	fail  func(error)
	quiet bool

	mu   sync.Mutex
	sub  core.Subscription
	done bool
}

func (g *gate[N]) OnSubscribe(s core.Subscription) {
	g.mu.Lock()
	if g.done || g.sub != nil {
		g.mu.Unlock()
		s.Cancel()
		return
	}
	g.sub = s
	g.mu.Unlock()
	s.Request(1)
}

func (g *gate[N]) OnNext(N) {
	if g.finish(true) {
		g.open()
	}
}

func (g *gate[N]) OnError(err error) {
	if g.finish(false) {
		g.fail(err)
	}
}

func (g *gate[N]) OnComplete() {
	if g.finish(false) && !g.quiet {
		g.open()
	}
}

// finish marks the gate done and reports whether this was the first
// signal; with cancel set the notifier subscription is cancelled too.
func (g *gate[N]) finish(cancel bool) bool {
	g.mu.Lock()
	if g.done {
		g.mu.Unlock()
		return false
	}
	g.done = true
	sub := g.sub
	g.mu.Unlock()
	if cancel && sub != nil {
		sub.Cancel()
	}
	return true
}

func (g *gate[N]) cancel() {
	g.finish(true)
}
