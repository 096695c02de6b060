package flowerrors

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/lguimbarda/min-rx/flow/core"
)

// The observers below attach to a context as core.Hooks and see failures
// passing through a core.Observe stage. They never change the stream.
// Placed inside a retried pipeline they see the error of every attempt.

// ErrorCounter counts errors that match a predicate.
type ErrorCounter struct {
	predicate func(error) bool
	count     atomic.Int64
}

// Count returns the number of errors counted.
func (c *ErrorCounter) Count() int64 {
	return c.count.Load()
}

// WithErrorCounter attaches an error counting hook for type T and returns
// the counter. A nil predicate counts every error.
func WithErrorCounter[T any](ctx context.Context, predicate func(error) bool) (context.Context, *ErrorCounter) {
	if predicate == nil {
		predicate = func(error) bool { return true }
	}
	counter := &ErrorCounter{predicate: predicate}
	ctx = core.WithHooks(ctx, core.Hooks[T]{
		OnError: func(err error) {
			if counter.predicate(err) {
				counter.count.Add(1)
			}
		},
	})
	return ctx, counter
}

// ErrorCollector keeps errors for later inspection.
type ErrorCollector struct {
	mu        sync.Mutex
	errors    []error
	predicate func(error) bool
	maxErrors int
}

// ErrorCollectorOption configures an ErrorCollector.
type ErrorCollectorOption func(*ErrorCollector)

// WithPredicate filters which errors to collect.
func WithPredicate(predicate func(error) bool) ErrorCollectorOption {
	return func(c *ErrorCollector) {
		c.predicate = predicate
	}
}

// WithMaxErrors keeps only the first max errors. Zero keeps all of them.
func WithMaxErrors(max int) ErrorCollectorOption {
	return func(c *ErrorCollector) {
		c.maxErrors = max
	}
}

// Errors returns a copy of the collected errors.
func (c *ErrorCollector) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.errors...)
}

// Count returns the number of collected errors.
func (c *ErrorCollector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errors)
}

func (c *ErrorCollector) add(err error) {
	if !c.predicate(err) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxErrors > 0 && len(c.errors) >= c.maxErrors {
		return
	}
	c.errors = append(c.errors, err)
}

// WithErrorCollector attaches an error collecting hook for type T and
// returns the collector.
func WithErrorCollector[T any](ctx context.Context, opts ...ErrorCollectorOption) (context.Context, *ErrorCollector) {
	collector := &ErrorCollector{predicate: func(error) bool { return true }}
	for _, opt := range opts {
		opt(collector)
	}
	return core.WithHooks(ctx, core.Hooks[T]{OnError: collector.add}), collector
}

// OnErrorDo attaches an error handler hook for type T.
func OnErrorDo[T any](ctx context.Context, handler func(error)) context.Context {
	return core.WithHooks(ctx, core.Hooks[T]{OnError: handler})
}

// Tripwire trips after threshold consecutive failures, where a delivered
// value resets the streak. Its Allow method fits RetryIf, so retrying stops
// once the wire has tripped.
type Tripwire struct {
	threshold int64
	streak    atomic.Int64
	tripped   atomic.Bool
	onTrip    func()
}

// Tripped reports whether the threshold was reached.
func (t *Tripwire) Tripped() bool {
	return t.tripped.Load()
}

// Streak returns the current number of consecutive failures.
func (t *Tripwire) Streak() int64 {
	return t.streak.Load()
}

// Allow reports whether a retry may follow; it ignores the error itself.
func (t *Tripwire) Allow(error) bool {
	return !t.Tripped()
}

// Reset re-arms the wire.
func (t *Tripwire) Reset() {
	t.streak.Store(0)
	t.tripped.Store(false)
}

// WithTripwire attaches a Tripwire hook for type T. onTrip, if not nil, runs
// once when the wire trips.
func WithTripwire[T any](ctx context.Context, threshold int, onTrip func()) (context.Context, *Tripwire) {
	t := &Tripwire{threshold: int64(max(threshold, 1)), onTrip: onTrip}
	ctx = core.WithHooks(ctx, core.Hooks[T]{
		OnError: func(error) {
			if t.tripped.Load() {
				return
			}
			if t.streak.Add(1) >= t.threshold && t.tripped.CompareAndSwap(false, true) && t.onTrip != nil {
				t.onTrip()
			}
		},
		OnNext: func(T) {
			t.streak.Store(0)
		},
	})
	return ctx, t
}
