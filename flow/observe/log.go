package observe

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lguimbarda/min-rx/flow/core"
)

type logOptions struct {
	logger *zerolog.Logger
	level  zerolog.Level
	values bool
}

// LogOption configures Log.
type LogOption func(*logOptions)

// WithLogger logs to l instead of the logger in the subscribe context.
func WithLogger(l zerolog.Logger) LogOption {
	return func(o *logOptions) { o.logger = &l }
}

// WithLevel sets the level of signal events. Errors are always logged at
// error level.
func WithLevel(level zerolog.Level) LogOption {
	return func(o *logOptions) { o.level = level }
}

// WithoutValues leaves the value out of next events.
func WithoutValues() LogOption {
	return func(o *logOptions) { o.values = false }
}

// Log writes one event per signal, request and cancel passing this stage.
// Events carry the stage name and a subscription id, so interleaved
// subscriptions can be told apart. The logger comes from the subscribe
// context (zerolog.Ctx) unless WithLogger is given.
func Log[T any](name string, opts ...LogOption) core.Transformer[T, T] {
	cfg := logOptions{level: zerolog.DebugLevel, values: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return Watch(func(ctx context.Context) core.Hooks[T] {
		base := cfg.logger
		if base == nil {
			base = zerolog.Ctx(ctx)
		}
		l := base.With().Str("stage", name).Str("subscription", uuid.NewString()).Logger()
		event := func() *zerolog.Event { return l.WithLevel(cfg.level) }
		return core.Hooks[T]{
			OnSubscribe: func() { event().Msg("subscribed") },
			OnRequest: func(n int64) {
				if n == core.Unbounded {
					event().Str("n", "unbounded").Msg("request")
					return
				}
				event().Int64("n", n).Msg("request")
			},
			OnNext: func(v T) {
				e := event()
				if cfg.values {
					e = e.Interface("value", v)
				}
				e.Msg("next")
			},
			OnError:    func(err error) { l.Error().Err(err).Msg("error") },
			OnComplete: func() { event().Msg("complete") },
			OnCancel:   func() { event().Msg("cancel") },
		}
	})
}
