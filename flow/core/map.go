package core

import (
	"context"
)

// Mapper transforms individual values (1:1 cardinality). It is the lowest
// level of abstraction in a pipeline and answers the question: "What is
// done to each value?". A returned error, or a panic, terminates the
// stream with that error and cancels the upstream.
type Mapper[IN, OUT any] func(IN) (OUT, error)

// Map creates a Mapper from a transformation function.
func Map[IN, OUT any](mapFunc func(IN) (OUT, error)) Mapper[IN, OUT] {
	return Mapper[IN, OUT](mapFunc)
}

// Apply implements Transformer.
func (m Mapper[IN, OUT]) Apply(p Publisher[IN]) Publisher[OUT] {
	return Lift[IN, OUT](func(ctx context.Context, down Subscriber[OUT]) Subscriber[IN] {
		hooks := newHookInvoker[OUT](ctx)
		o := NewOperator[IN, OUT](ctx, down)
		o.Next = func(v IN) {
			out, err := Protect1(func() (OUT, error) { return m(v) })
			if err != nil {
				hooks.invokeError(err)
				o.Fail(err)
				return
			}
			hooks.invokeNext(out)
			o.Emit(out)
		}
		if hooks.hasAny() {
			o.Completed = func() {
				hooks.invokeComplete()
				o.Complete()
			}
			o.Failed = func(err error) {
				hooks.invokeError(err)
				o.Error(err)
			}
		}
		return o
	}).Apply(p)
}

// FlatMapper transforms individual values into zero or more values (1:N
// cardinality). Expansion happens one input at a time: the next input is
// requested only once the previous expansion has been delivered.
type FlatMapper[IN, OUT any] func(IN) ([]OUT, error)

// FlatMap creates a FlatMapper from a function returning a slice.
func FlatMap[IN, OUT any](flatMapFunc func(IN) ([]OUT, error)) FlatMapper[IN, OUT] {
	return FlatMapper[IN, OUT](flatMapFunc)
}

// Split flattens each slice into its elements, honouring downstream demand
// within a slice. Empty slices produce nothing.
func Split[T any]() FlatMapper[[]T, T] {
	return FlatMap(func(items []T) ([]T, error) { return items, nil })
}

// Apply implements Transformer.
func (fm FlatMapper[IN, OUT]) Apply(p Publisher[IN]) Publisher[OUT] {
	return Lift[IN, OUT](func(ctx context.Context, down Subscriber[OUT]) Subscriber[IN] {
		o := NewOperator[IN, OUT](ctx, down)
		var backlog []OUT

		// deliver hands expansion values downstream as demand allows and
		// pulls the next input when the expansion is exhausted.
		deliver := func() {
			for len(backlog) > 0 && o.Demand() > 0 && !o.Terminated() {
				v := backlog[0]
				backlog = backlog[1:]
				o.Emit(v)
			}
			if o.Terminated() {
				return
			}
			if len(backlog) == 0 {
				if o.UpstreamDone() {
					o.Complete()
					return
				}
				if o.Demand() > 0 && o.UpstreamDemand() == 0 {
					o.RequestUpstream(1)
				}
			}
		}

		o.Next = func(v IN) {
			outs, err := Protect1(func() ([]OUT, error) { return fm(v) })
			if err != nil {
				o.Fail(err)
				return
			}
			backlog = outs
			deliver()
		}
		o.Requested = func(int64) { deliver() }
		o.Completed = func() {
			if len(backlog) == 0 {
				o.Complete()
			}
		}
		o.Release = func() { backlog = nil }
		return o
	}).Apply(p)
}

// Cast converts values with a type assertion. A failed assertion is an
// error.
func Cast[IN, OUT any]() Mapper[IN, OUT] {
	return Map(func(v IN) (OUT, error) {
		out, ok := any(v).(OUT)
		if !ok {
			var zero OUT
			return zero, &CastError{Value: v, Target: zero}
		}
		return out, nil
	})
}
