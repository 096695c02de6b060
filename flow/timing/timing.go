// Package timing provides time-driven sources and operators: intervals,
// timeouts, pacing, debouncing, delays, overflow strategies and timestamps.
// Every timer runs on the core.Environment timer of the subscribe context.
package timing

import (
	"context"
	"time"

	"github.com/lguimbarda/min-rx/flow/core"
)

// ErrTimeout is delivered when no signal arrived within a Timeout.
var ErrTimeout = timeoutError{}

type timeoutError struct{}

func (timeoutError) Error() string   { return "stream timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// TimingConfig provides configuration for timing transformers.
type TimingConfig struct {
	// BufferSize specifies the default bound of OnOverflowBuffer.
	// A value of 0 or negative falls back to the environment capacity.
	BufferSize int
}

// WithBufferSize returns a functional option that sets the buffer size.
func WithBufferSize(size int) func(*TimingConfig) {
	return func(c *TimingConfig) {
		c.BufferSize = size
	}
}

// effectiveBufferSize returns size when positive, then the TimingConfig in
// ctx, then the environment capacity.
func effectiveBufferSize(ctx context.Context, size int) int {
	if size > 0 {
		return size
	}
	if cfg, ok := core.GetConfig[*TimingConfig](ctx); ok && cfg.BufferSize > 0 {
		return cfg.BufferSize
	}
	return core.EnvironmentFrom(ctx).Capacity
}

// virtualClock is implemented by timers that keep their own time, such as
// sched.VirtualTimer.
type virtualClock interface {
	Now() time.Duration
}

// epoch anchors virtual time on the wall-clock scale.
var epoch = time.Unix(0, 0).UTC()

// clockOf returns the time source matching timer.
func clockOf(timer core.Timer) func() time.Time {
	if vc, ok := timer.(virtualClock); ok {
		return func() time.Time { return epoch.Add(vc.Now()) }
	}
	return time.Now
}
