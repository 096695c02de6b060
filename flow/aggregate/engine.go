// Package aggregate provides operators that accumulate values into batches,
// windows, samples, folds and keyed groups.
package aggregate

import (
	"context"
	"errors"
	"time"

	"github.com/lguimbarda/min-rx/flow/core"
)

var (
	// ErrInvalidSize is delivered when a batch size resolves to zero or less.
	ErrInvalidSize = errors.New("aggregate: size must be > 0")

	// ErrInvalidTimeout is delivered when a timed variant has no timeout.
	ErrInvalidTimeout = errors.New("aggregate: timeout must be > 0")
)

// AggregateConfig provides configuration for aggregate transformers.
type AggregateConfig struct {
	// BatchSize specifies the default batch size for batching operations.
	// A value of 0 or negative will use the function-level default.
	BatchSize int

	// BatchTimeout specifies the default timeout for timed operations.
	// A value of 0 or negative will use the function-level default.
	BatchTimeout time.Duration
}

// WithBatchSize returns a functional option that sets the batch size.
func WithBatchSize(size int) func(*AggregateConfig) {
	return func(c *AggregateConfig) {
		c.BatchSize = size
	}
}

// WithBatchTimeout returns a functional option that sets the batch timeout.
func WithBatchTimeout(timeout time.Duration) func(*AggregateConfig) {
	return func(c *AggregateConfig) {
		c.BatchTimeout = timeout
	}
}

// NewConfig builds an AggregateConfig from options.
func NewConfig(opts ...func(*AggregateConfig)) *AggregateConfig {
	cfg := &AggregateConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// effectiveBatchSize returns the batch size to use. An explicit size > 0
// takes precedence over the context config. Zero means neither set one.
func effectiveBatchSize(ctx context.Context, size int) int {
	if size > 0 {
		return size
	}
	if cfg, ok := core.GetConfig[*AggregateConfig](ctx); ok && cfg.BatchSize > 0 {
		return cfg.BatchSize
	}
	return 0
}

// effectiveBatchTimeout is effectiveBatchSize for the timeout.
func effectiveBatchTimeout(ctx context.Context, timeout time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	if cfg, ok := core.GetConfig[*AggregateConfig](ctx); ok && cfg.BatchTimeout > 0 {
		return cfg.BatchTimeout
	}
	return 0
}

// flushCause tells a variant why its batch is being flushed.
type flushCause uint8

const (
	bySize flushCause = iota
	byTimer
	byCompletion
	// byDemand flushes a partial batch because upstream owes nothing more.
	byDemand
)

// demandMode says how downstream demand translates to upstream demand.
type demandMode uint8

const (
	// perBatch requests size inputs per requested output, or everything
	// when there is no size bound.
	perBatch demandMode = iota
	// perValue forwards demand one to one.
	perValue
)

// batchParams configures the engine. size 0 means no size bound, timeout 0
// no timer.
type batchParams struct {
	size    int
	timeout time.Duration
	demand  demandMode
}

// batch is the state machine behind every batching operator. It counts the
// values accumulated in the current batch and flushes on, in order of
// priority: the size bound being reached, the flush timer firing (empty
// batches are never flushed), upstream completion (partial batch flushed,
// then Complete). Upstream error drops the batch and propagates. What
// accumulating, flushing and dropping mean is up to the variant.
//
// Everything, timer fires included, runs in the operator's serial domain.
type batch[T, OUT any] struct {
	op    *core.Operator[T, OUT]
	size  int
	count int
	timer core.Cancelable

	// add accumulates v; first is set for the first value of a batch.
	add func(v T, first bool) error
	// flush emits the accumulation, if the variant emits on flush, and
	// resets it.
	flush func(cause flushCause)
	// drop discards the accumulation. err is the upstream failure, or nil
	// when the operator was cancelled.
	drop func(err error)
}

// newBatch creates the engine around a fresh operator. The variant must set
// add, and may set flush and drop, before returning the operator.
func newBatch[T, OUT any](ctx context.Context, down core.Subscriber[OUT], p batchParams) *batch[T, OUT] {
	b := &batch[T, OUT]{op: core.NewOperator[T, OUT](ctx, down), size: p.size}
	o := b.op
	o.Next = b.next
	o.Completed = b.complete
	o.Failed = b.fail
	o.Release = b.release
	if p.demand == perBatch {
		o.Requested = func(n int64) {
			if b.size > 0 {
				o.RequestUpstream(core.MulCap(n, int64(b.size)))
				return
			}
			o.RequestUpstream(core.Unbounded)
		}
	}
	if p.timeout > 0 {
		b.timer = o.Env().Timer.ScheduleRepeating(p.timeout, func() {
			o.Do(b.onTimer)
		})
	}
	return b
}

func (b *batch[T, OUT]) next(v T) {
	first := b.count == 0
	b.count++
	if err := core.Protect(func() error { return b.add(v, first) }); err != nil {
		b.fail(err)
		return
	}
	if b.size > 0 && b.count >= b.size {
		b.emit(bySize)
	}
}

func (b *batch[T, OUT]) emit(cause flushCause) {
	b.count = 0
	if b.flush != nil {
		b.flush(cause)
	}
}

func (b *batch[T, OUT]) onTimer() {
	if b.count > 0 {
		b.emit(byTimer)
	}
}

func (b *batch[T, OUT]) complete() {
	if b.count > 0 {
		b.emit(byCompletion)
	}
	b.op.Complete()
}

func (b *batch[T, OUT]) fail(err error) {
	b.count = 0
	if b.drop != nil {
		b.drop(err)
	}
	b.op.Error(err)
}

// release runs once when the operator terminates or is cancelled.
func (b *batch[T, OUT]) release() {
	if b.timer != nil {
		b.timer.Cancel()
		b.timer = nil
	}
	if b.count > 0 && b.drop != nil {
		b.drop(nil)
	}
	b.count = 0
}

// resolveSize resolves the size for size-bounded variants.
func resolveSize(ctx context.Context, size int) (int, error) {
	n := effectiveBatchSize(ctx, size)
	if n <= 0 {
		return 0, ErrInvalidSize
	}
	return n, nil
}
