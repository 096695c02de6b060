// Package flow provides a reactive, backpressure-aware stream processing
// framework for building pipelines in Go.
//
// This package is the primary user-facing API. Most users only need this
// package plus the operator packages (aggregate, combine, filter,
// flowerrors, timing, observe). The flow/core subpackage contains the
// low-level protocol and the Operator helper used to write new operators.
package flow

import (
	"context"
	"iter"

	"github.com/lguimbarda/min-rx/flow/core"
)

// Type aliases for core stream abstractions.
// These allow users to work with the framework without importing core directly.
type (
	// Publisher is a cold source of values delivered on demand.
	Publisher[T any] = core.Publisher[T]

	// Subscriber receives the signals of one subscription.
	Subscriber[T any] = core.Subscriber[T]

	// Subscription is the request/cancel contract with an upstream.
	Subscription = core.Subscription

	// Transformer transforms a Publisher of IN into a Publisher of OUT.
	Transformer[IN, OUT any] = core.Transformer[IN, OUT]

	// Signal is a Next, Error or Complete signal.
	Signal[T any] = core.Signal[T]

	// Mapper transforms individual items (1:1 cardinality) and implements Transformer.
	Mapper[IN, OUT any] = core.Mapper[IN, OUT]

	// FlatMapper transforms individual items (1:N cardinality) and implements Transformer.
	FlatMapper[IN, OUT any] = core.FlatMapper[IN, OUT]

	// Environment carries the lane, timer and capacity a pipeline runs with.
	Environment = core.Environment

	// BlockingQueue is a pollable sink.
	BlockingQueue[T any] = core.BlockingQueue[T]

	// Promise is a one-shot sink for a single value.
	Promise[T any] = core.Promise[T]
)

// Unbounded is the request that disables backpressure.
const Unbounded = core.Unbounded

// ErrEndOfStream is returned by BlockingQueue.Pop after completion.
var ErrEndOfStream = core.ErrEndOfStream

// WithEnvironment attaches env to ctx for every pipeline subscribed with it.
func WithEnvironment(ctx context.Context, env Environment) context.Context {
	return core.WithEnvironment(ctx, env)
}

// Mapper/FlatMapper constructors.

// Map creates a Mapper from a simple transformation function.
func Map[IN, OUT any](mapFunc func(IN) (OUT, error)) Mapper[IN, OUT] {
	return core.Map(mapFunc)
}

// FlatMap creates a FlatMapper from a function returning a slice.
func FlatMap[IN, OUT any](flatMapFunc func(IN) ([]OUT, error)) FlatMapper[IN, OUT] {
	return core.FlatMap(flatMapFunc)
}

// Split flattens each slice into its elements.
func Split[T any]() FlatMapper[[]T, T] {
	return core.Split[T]()
}

// Terminal operations.

// Slice collects all stream values into a slice.
func Slice[T any](ctx context.Context, in Publisher[T]) ([]T, error) {
	return core.Slice(ctx, in)
}

// First returns the first value from the stream.
func First[T any](ctx context.Context, in Publisher[T]) (T, error) {
	return core.First(ctx, in)
}

// Last returns the final value from the stream.
func Last[T any](ctx context.Context, in Publisher[T]) (T, error) {
	return core.Last(ctx, in)
}

// Run executes the stream for side effects only.
func Run[T any](ctx context.Context, in Publisher[T]) error {
	return core.Run(ctx, in)
}

// Collect gathers all signals, the terminal one included, into a slice.
func Collect[T any](ctx context.Context, in Publisher[T]) []Signal[T] {
	return core.Collect(ctx, in)
}

// All returns an iterator over the stream, pulling at most prefetch values ahead.
func All[T any](ctx context.Context, in Publisher[T], prefetch int) iter.Seq2[T, error] {
	return core.All(ctx, in, prefetch)
}

// ToQueue materializes the stream into a blocking queue.
func ToQueue[T any](ctx context.Context, in Publisher[T], prefetch int) *BlockingQueue[T] {
	return core.ToQueue(ctx, in, prefetch)
}

// Single returns a promise for the first value of the stream.
func Single[T any](ctx context.Context, in Publisher[T]) *Promise[T] {
	return core.Single(ctx, in)
}

// Consume subscribes with unbounded demand and returns a cancel function.
func Consume[T any](ctx context.Context, in Publisher[T], onNext func(T), onError func(error), onComplete func()) func() {
	return core.Consume(ctx, in, onNext, onError, onComplete)
}
