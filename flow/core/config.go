package core

import (
	"context"
)

// DefaultCapacity bounds the output an operator may hold back while its
// downstream has no demand.
const DefaultCapacity = 256

// Environment carries the collaborators a pipeline runs with. It is built
// by the composing application and attached to the subscribe context; the
// core never creates a process-wide one.
type Environment struct {
	// Lane runs deferred work. Nil means Immediate.
	Lane Lane
	// Timer schedules time-based flushes, timeouts and backoff. Nil means
	// SystemTimer.
	Timer Timer
	// Capacity bounds undelivered output per operator. Zero or negative
	// means DefaultCapacity.
	Capacity int
}

type environmentKey struct{}

// WithEnvironment attaches env to the context. Operators subscribed with
// the returned context use its lane, timer and capacity.
func WithEnvironment(ctx context.Context, env Environment) context.Context {
	return context.WithValue(ctx, environmentKey{}, env)
}

// EnvironmentFrom returns the environment in ctx with defaults filled in.
func EnvironmentFrom(ctx context.Context) Environment {
	env, _ := ctx.Value(environmentKey{}).(Environment)
	if env.Lane == nil {
		env.Lane = Immediate
	}
	if env.Timer == nil {
		env.Timer = SystemTimer
	}
	if env.Capacity <= 0 {
		env.Capacity = DefaultCapacity
	}
	return env
}

// TimerFrom is a shortcut for EnvironmentFrom(ctx).Timer.
func TimerFrom(ctx context.Context) Timer {
	return EnvironmentFrom(ctx).Timer
}

// configKey is a typed context key for config injection.
// Each config type gets its own unique key.
type configKey[C any] struct{}

// WithConfig attaches a configuration value to the context.
// The config is keyed by its type, so only one instance of each config type
// can be stored. Later calls with the same type will override earlier ones.
//
// Example:
//
//	ctx := core.WithConfig(ctx, &aggregate.AggregateConfig{BatchSize: 64})
func WithConfig[C any](ctx context.Context, cfg C) context.Context {
	return context.WithValue(ctx, configKey[C]{}, cfg)
}

// GetConfig retrieves a configuration of type C from the context.
// Returns the config and true if found, or zero value and false if not present.
func GetConfig[C any](ctx context.Context) (C, bool) {
	if cfg, ok := ctx.Value(configKey[C]{}).(C); ok {
		return cfg, true
	}
	return *new(C), false
}
