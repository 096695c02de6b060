// Package observe provides stages that watch a stream without changing it:
// logging, metrics, side-effect taps and lifecycle callbacks. Unlike the
// context hooks of core.Observe, the stages here are bound to one place in
// the pipeline.
package observe

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/lguimbarda/min-rx/flow/core"
)

// Watch creates a pass-through stage that reports every signal, request and
// cancel to the hooks returned by setup. setup runs once per subscription,
// so per-subscription state can live in its closure. A panicking hook is
// logged and otherwise ignored.
func Watch[T any](setup func(ctx context.Context) core.Hooks[T]) core.Transformer[T, T] {
	return core.Lift[T, T](func(ctx context.Context, down core.Subscriber[T]) core.Subscriber[T] {
		return &relay[T]{down: down, hooks: setup(ctx), log: zerolog.Ctx(ctx)}
	})
}

// relay forwards calls between two subscribers unchanged, running its hooks
// first. It adds no demand accounting of its own.
type relay[T any] struct {
	down  core.Subscriber[T]
	up    core.Subscription
	hooks core.Hooks[T]
	log   *zerolog.Logger
}

func (p *relay[T]) guard(fn func()) {
	if err := core.Protect(func() error { fn(); return nil }); err != nil {
		p.log.Warn().Err(err).Msg("observer hook panicked")
	}
}

func (p *relay[T]) OnSubscribe(s core.Subscription) {
	p.up = s
	if p.hooks.OnSubscribe != nil {
		p.guard(p.hooks.OnSubscribe)
	}
	p.down.OnSubscribe(p)
}

func (p *relay[T]) OnNext(v T) {
	if p.hooks.OnNext != nil {
		p.guard(func() { p.hooks.OnNext(v) })
	}
	p.down.OnNext(v)
}

func (p *relay[T]) OnError(err error) {
	if p.hooks.OnError != nil {
		p.guard(func() { p.hooks.OnError(err) })
	}
	p.down.OnError(err)
}

func (p *relay[T]) OnComplete() {
	if p.hooks.OnComplete != nil {
		p.guard(p.hooks.OnComplete)
	}
	p.down.OnComplete()
}

func (p *relay[T]) Request(n int64) {
	if p.hooks.OnRequest != nil {
		p.guard(func() { p.hooks.OnRequest(n) })
	}
	p.up.Request(n)
}

func (p *relay[T]) Cancel() {
	if p.hooks.OnCancel != nil {
		p.guard(p.hooks.OnCancel)
	}
	p.up.Cancel()
}
