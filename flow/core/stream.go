// Package core defines the reactive building blocks of min-rx: publishers,
// subscribers and subscriptions, the demand bookkeeping that enforces
// backpressure, and the Operator helper every stage in a pipeline is built
// on.
//
// A pipeline is cold: nothing happens until a terminal sink subscribes and
// requests. Demand then travels upstream stage by stage while values travel
// downstream, never more than were requested.
package core

import (
	"context"
)

// Subscription is the request/cancel contract between a subscriber and its
// immediate upstream.
type Subscription interface {
	// Request authorizes the upstream to send n more values. n must be > 0;
	// Unbounded disables backpressure.
	Request(n int64)
	// Cancel stops the upstream. It is idempotent.
	Cancel()
}

// Subscriber receives the signals of one subscription. OnSubscribe is
// called exactly once before any other method, and at most one of
// OnError/OnComplete is ever called.
type Subscriber[T any] interface {
	OnSubscribe(Subscription)
	OnNext(T)
	OnError(error)
	OnComplete()
}

// Publisher is a source of values delivered according to the demand of its
// subscribers. Subscribe returns immediately; delivery may happen later and
// on another goroutine.
// Publisher answers the question: "What will produce the stream's data?".
type Publisher[T any] interface {
	Subscribe(context.Context, Subscriber[T])
}

// PublisherFunc adapts a plain function to the Publisher interface.
type PublisherFunc[T any] func(context.Context, Subscriber[T])

func (f PublisherFunc[T]) Subscribe(ctx context.Context, s Subscriber[T]) {
	f(ctx, s)
}

// Transformer turns a Publisher of IN into a Publisher of OUT. Transformers
// compose into pipelines.
// They answer the question: "What operations are applied to the stream's data?".
type Transformer[IN, OUT any] interface {
	Apply(Publisher[IN]) Publisher[OUT]
}

// Lift is an operator factory: given the subscribe context and the
// downstream subscriber it returns the subscriber that will be attached
// upstream. A new operator instance is created on every subscription.
type Lift[IN, OUT any] func(ctx context.Context, downstream Subscriber[OUT]) Subscriber[IN]

func (l Lift[IN, OUT]) Apply(upstream Publisher[IN]) Publisher[OUT] {
	return PublisherFunc[OUT](func(ctx context.Context, s Subscriber[OUT]) {
		upstream.Subscribe(ctx, l(ctx, s))
	})
}

// Apply reads left to right: Apply(p, t) == t.Apply(p).
func Apply[IN, OUT any](p Publisher[IN], t Transformer[IN, OUT]) Publisher[OUT] {
	return t.Apply(p)
}

// Pipe applies same-typed transformers in order.
func Pipe[T any](p Publisher[T], transformers ...Transformer[T, T]) Publisher[T] {
	for _, t := range transformers {
		p = t.Apply(p)
	}
	return p
}

// Through chains two transformers into one.
func Through[IN, MID, OUT any](t1 Transformer[IN, MID], t2 Transformer[MID, OUT]) Transformer[IN, OUT] {
	return transformerFunc[IN, OUT](func(p Publisher[IN]) Publisher[OUT] {
		return t2.Apply(t1.Apply(p))
	})
}

// Chain composes same-typed transformers left to right. With no arguments
// it is the identity.
func Chain[T any](transformers ...Transformer[T, T]) Transformer[T, T] {
	return transformerFunc[T, T](func(p Publisher[T]) Publisher[T] {
		return Pipe(p, transformers...)
	})
}

type transformerFunc[IN, OUT any] func(Publisher[IN]) Publisher[OUT]

func (f transformerFunc[IN, OUT]) Apply(p Publisher[IN]) Publisher[OUT] { return f(p) }

// TransformFunc adapts a function to the Transformer interface.
func TransformFunc[IN, OUT any](fn func(Publisher[IN]) Publisher[OUT]) Transformer[IN, OUT] {
	return transformerFunc[IN, OUT](fn)
}

// Refuse fails down with err and returns a Subscriber that cancels any
// upstream attached to it. Operator factories use it to reject arguments
// that can only be validated at subscribe time.
func Refuse[IN, OUT any](ctx context.Context, down Subscriber[OUT], err error) Subscriber[IN] {
	Fail[OUT](err).Subscribe(ctx, down)
	return refused[IN]{}
}

type refused[T any] struct{}

func (refused[T]) OnSubscribe(s Subscription) { s.Cancel() }
func (refused[T]) OnNext(T)                   {}
func (refused[T]) OnError(error)              {}
func (refused[T]) OnComplete()                {}
