package observe

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/lguimbarda/min-rx/flow/core"
)

// Instrument names created by Meter, prefixed with the stage name.
const (
	MetricValues      = ".values"
	MetricErrors      = ".errors"
	MetricCompletions = ".completions"
	MetricCancels     = ".cancels"
	MetricRequests    = ".request.size"
)

// Meter records the traffic of this stage as OpenTelemetry instruments:
// counters for values, errors, completions and cancels, and a histogram of
// request sizes. Unbounded requests are recorded as -1. Every measurement
// carries a stream attribute set to name.
func Meter[T any](meter metric.Meter, name string) (core.Transformer[T, T], error) {
	values, err := meter.Int64Counter(name+MetricValues, metric.WithDescription("values delivered"))
	if err != nil {
		return nil, fmt.Errorf("observe: create %s counter: %w", MetricValues, err)
	}
	errs, err := meter.Int64Counter(name+MetricErrors, metric.WithDescription("streams failed"))
	if err != nil {
		return nil, fmt.Errorf("observe: create %s counter: %w", MetricErrors, err)
	}
	completions, err := meter.Int64Counter(name+MetricCompletions, metric.WithDescription("streams completed"))
	if err != nil {
		return nil, fmt.Errorf("observe: create %s counter: %w", MetricCompletions, err)
	}
	cancels, err := meter.Int64Counter(name+MetricCancels, metric.WithDescription("subscriptions cancelled"))
	if err != nil {
		return nil, fmt.Errorf("observe: create %s counter: %w", MetricCancels, err)
	}
	requests, err := meter.Int64Histogram(name+MetricRequests, metric.WithDescription("size of downstream requests"))
	if err != nil {
		return nil, fmt.Errorf("observe: create %s histogram: %w", MetricRequests, err)
	}

	attrs := metric.WithAttributes(attribute.String("stream", name))
	return Watch(func(ctx context.Context) core.Hooks[T] {
		return core.Hooks[T]{
			OnRequest: func(n int64) {
				if n == core.Unbounded {
					n = -1
				}
				requests.Record(ctx, n, attrs)
			},
			OnNext:     func(T) { values.Add(ctx, 1, attrs) },
			OnError:    func(error) { errs.Add(ctx, 1, attrs) },
			OnComplete: func() { completions.Add(ctx, 1, attrs) },
			OnCancel:   func() { cancels.Add(ctx, 1, attrs) },
		}
	}), nil
}
