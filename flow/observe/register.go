package observe

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/lguimbarda/min-rx/flow/core"
)

// The helpers below attach typed hooks to a context. They take effect at
// every core.Observe stage of type T subscribed under that context.
//
//	ctx = observe.WithValueHook(ctx, func(v int) { fmt.Println("value:", v) })
//	ctx = observe.WithErrorHook[int](ctx, func(err error) { log.Print(err) })
//	core.Slice(ctx, core.Observe[int]().Apply(p))

// WithValueHook attaches a value hook for type T.
func WithValueHook[T any](ctx context.Context, callback func(T)) context.Context {
	return core.WithHooks(ctx, core.Hooks[T]{OnNext: callback})
}

// WithErrorHook attaches an error hook for type T.
func WithErrorHook[T any](ctx context.Context, callback func(error)) context.Context {
	return core.WithHooks(ctx, core.Hooks[T]{OnError: callback})
}

// WithSubscribeHook attaches a subscription hook for type T.
func WithSubscribeHook[T any](ctx context.Context, callback func()) context.Context {
	return core.WithHooks(ctx, core.Hooks[T]{OnSubscribe: callback})
}

// WithCompleteHook attaches a completion hook for type T.
func WithCompleteHook[T any](ctx context.Context, callback func()) context.Context {
	return core.WithHooks(ctx, core.Hooks[T]{OnComplete: callback})
}

// WithRequestHook attaches a request hook for type T.
func WithRequestHook[T any](ctx context.Context, callback func(int64)) context.Context {
	return core.WithHooks(ctx, core.Hooks[T]{OnRequest: callback})
}

// WithCancelHook attaches a cancel hook for type T.
func WithCancelHook[T any](ctx context.Context, callback func()) context.Context {
	return core.WithHooks(ctx, core.Hooks[T]{OnCancel: callback})
}

// Counter counts values and errors.
type Counter struct {
	values atomic.Int64
	errors atomic.Int64
}

// Values returns the count of values.
func (c *Counter) Values() int64 { return c.values.Load() }

// Errors returns the count of errors.
func (c *Counter) Errors() int64 { return c.errors.Load() }

// Total returns values plus errors.
func (c *Counter) Total() int64 { return c.values.Load() + c.errors.Load() }

// WithCounter attaches counting hooks for type T and returns the counter.
func WithCounter[T any](ctx context.Context) (context.Context, *Counter) {
	counter := &Counter{}
	ctx = core.WithHooks(ctx, core.Hooks[T]{
		OnNext:  func(T) { counter.values.Add(1) },
		OnError: func(error) { counter.errors.Add(1) },
	})
	return ctx, counter
}

// WithLogging attaches hooks for type T that log every signal to l.
func WithLogging[T any](ctx context.Context, l zerolog.Logger) context.Context {
	return core.WithHooks(ctx, core.Hooks[T]{
		OnSubscribe: func() { l.Debug().Msg("stream subscribed") },
		OnNext:      func(v T) { l.Debug().Interface("value", v).Msg("value") },
		OnError:     func(err error) { l.Error().Err(err).Msg("stream failed") },
		OnComplete:  func() { l.Debug().Msg("stream completed") },
		OnCancel:    func() { l.Debug().Msg("stream cancelled") },
	})
}
