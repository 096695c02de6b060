package timing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lguimbarda/min-rx/flow/core"
	"github.com/lguimbarda/min-rx/flow/flowtest"
	"github.com/lguimbarda/min-rx/flow/sched"
	"github.com/lguimbarda/min-rx/flow/timing"
)

func TestInterval(t *testing.T) {
	ctx, vt := virtualEnv()
	rec := flowtest.Subscribe(ctx, timing.Interval(10*time.Millisecond), 2)

	vt.Advance(9 * time.Millisecond)
	assert.Empty(t, rec.Values())
	vt.Advance(21 * time.Millisecond)
	assert.Equal(t, []int64{0, 1}, rec.Values())

	rec.Request(5)
	assert.Equal(t, []int64{0, 1, 2}, rec.Values(), "the held tick is delivered on request")
	rec.Cancel()
	assert.Zero(t, vt.Pending())
	rec.AssertClean(t)
}

func TestInterval_OverflowsWithoutDemand(t *testing.T) {
	vt := sched.NewVirtualTimer()
	ctx := core.WithEnvironment(context.Background(), core.Environment{Timer: vt, Capacity: 1})
	rec := flowtest.Subscribe(ctx, timing.Interval(time.Second), 0)

	vt.Advance(2 * time.Second)
	assert.ErrorIs(t, rec.Err(), core.ErrOverflow)
	assert.Zero(t, vt.Pending())
}

func TestAfter(t *testing.T) {
	ctx, vt := virtualEnv()
	rec := flowtest.Subscribe(ctx, timing.After(10*time.Millisecond), 1)

	vt.Advance(5 * time.Millisecond)
	assert.Empty(t, rec.Values())
	vt.Advance(5 * time.Millisecond)
	assert.Equal(t, []int64{0}, rec.Values())
	assert.True(t, rec.Completed())
	rec.AssertClean(t)
}

func TestTimestamp(t *testing.T) {
	ctx, vt := virtualEnv()
	src := flowtest.NewSource[string]()
	rec := flowtest.Subscribe(ctx, timing.Timestamp[string]().Apply(src), core.Unbounded)

	vt.Advance(3 * time.Second)
	src.Next("a")
	require.Len(t, rec.Values(), 1)
	got := rec.Values()[0]
	assert.Equal(t, "a", got.Value)
	assert.True(t, got.Timestamp.Equal(time.Unix(3, 0)))
}

func TestElapsed(t *testing.T) {
	ctx, vt := virtualEnv()
	src := flowtest.NewSource[string]()
	rec := flowtest.Subscribe(ctx, timing.Elapsed[string]().Apply(src), core.Unbounded)

	vt.Advance(2 * time.Millisecond)
	src.Next("a")
	vt.Advance(5 * time.Millisecond)
	src.Next("b")

	assert.Equal(t, []timing.TimeInterval[string]{
		{Value: "a", Interval: 2 * time.Millisecond},
		{Value: "b", Interval: 5 * time.Millisecond},
	}, rec.Values())
}

func TestDelay(t *testing.T) {
	ctx, vt := virtualEnv()
	src := flowtest.NewSource[int]()
	rec := flowtest.Subscribe(ctx, timing.Delay[int](10*time.Millisecond).Apply(src), core.Unbounded)

	src.Next(1)
	vt.Advance(5 * time.Millisecond)
	src.Next(2)
	src.Complete()
	assert.False(t, rec.Completed(), "completion waits for delayed values")

	vt.Advance(5 * time.Millisecond)
	assert.Equal(t, []int{1}, rec.Values())
	vt.Advance(5 * time.Millisecond)
	assert.Equal(t, []int{1, 2}, rec.Values())
	assert.True(t, rec.Completed())
	rec.AssertClean(t)
}

func TestDelayWhen_KeepsOrder(t *testing.T) {
	ctx, vt := virtualEnv()
	src := flowtest.NewSource[int]()
	byValue := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	rec := flowtest.Subscribe(ctx, timing.DelayWhen(byValue).Apply(src), core.Unbounded)

	src.Next(30, 10)
	vt.Advance(10 * time.Millisecond)
	assert.Empty(t, rec.Values())
	vt.Advance(20 * time.Millisecond)
	assert.Equal(t, []int{30, 10}, rec.Values())

	src.Next(5)
	rec.Cancel()
	assert.Zero(t, vt.Pending())
}
