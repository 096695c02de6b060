package parallel_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lguimbarda/min-rx/flow"
	"github.com/lguimbarda/min-rx/flow/core"
	"github.com/lguimbarda/min-rx/flow/flowtest"
	"github.com/lguimbarda/min-rx/flow/parallel"
	"github.com/lguimbarda/min-rx/flow/sched"
)

var boom = errors.New("boom")

func double(n int) (int, error) { return n * 2, nil }

func TestMap(t *testing.T) {
	tests := []struct {
		name    string
		input   []int
		workers int
		want    []int
	}{
		{"two workers", []int{1, 2, 3, 4, 5}, 2, []int{2, 4, 6, 8, 10}},
		{"more workers than values", []int{1, 2, 3}, 10, []int{2, 4, 6}},
		{"zero workers means one", []int{1, 2, 3}, 0, []int{2, 4, 6}},
		{"empty stream", nil, 4, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := core.Slice(context.Background(), parallel.Map(tt.workers, double).Apply(flow.FromSlice(tt.input)))
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestMap_BoundsInFlight(t *testing.T) {
	gate := make(chan struct{})
	var running, peak atomic.Int32
	fn := func(v int) (int, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-gate
		running.Add(-1)
		return v, nil
	}
	src := flowtest.NewSource[int]()
	rec := flowtest.Subscribe(context.Background(), parallel.Map(2, fn).Apply(src), core.Unbounded)
	assert.Equal(t, int64(2), src.Last().Requested())

	src.Next(1, 2)
	gate <- struct{}{}
	rec.AwaitCount(t, 1)
	require.Eventually(t, func() bool { return src.Last().Requested() == 3 }, time.Second, time.Millisecond)

	close(gate)
	src.Next(3)
	src.Complete()
	rec.AwaitTerminal(t)

	assert.ElementsMatch(t, []int{1, 2, 3}, rec.Values())
	assert.LessOrEqual(t, peak.Load(), int32(2))
	rec.AssertClean(t)
}

func TestMap_FollowsDownstreamDemand(t *testing.T) {
	src := flowtest.NewSource[int]()
	rec := flowtest.Subscribe(context.Background(), parallel.Map(4, double).Apply(src), 1)
	assert.Equal(t, int64(1), src.Last().Requested())

	src.Next(1)
	rec.AwaitCount(t, 1)
	assert.Equal(t, int64(1), src.Last().Requested(), "no demand left")

	rec.Request(10)
	require.Eventually(t, func() bool { return src.Last().Requested() == 5 }, time.Second, time.Millisecond)
}

func TestMap_ErrorFails(t *testing.T) {
	fn := func(v int) (int, error) {
		if v == 3 {
			return 0, boom
		}
		return v, nil
	}
	_, err := core.Slice(context.Background(), parallel.Map(2, fn).Apply(flow.Just(1, 2, 3, 4)))
	assert.ErrorIs(t, err, boom)
}

func TestMap_PanicFails(t *testing.T) {
	fn := func(int) (int, error) { panic("worker") }
	_, err := core.Slice(context.Background(), parallel.Map(2, fn).Apply(flow.Just(1)))
	var perr core.ErrPanic
	assert.ErrorAs(t, err, &perr)
}

func TestOrdered(t *testing.T) {
	fn := func(v int) (int, error) {
		time.Sleep(time.Duration(5-v) * time.Millisecond)
		return v * 10, nil
	}
	got, err := core.Slice(context.Background(), parallel.Ordered(5, fn).Apply(flow.Just(1, 2, 3, 4)))
	require.NoError(t, err)
	assert.Equal(t, []int{10, 20, 30, 40}, got)
}

func TestAsyncMapOrdered_ErrorInPosition(t *testing.T) {
	fn := func(_ context.Context, v int) (int, error) {
		if v == 2 {
			return 0, boom
		}
		time.Sleep(2 * time.Millisecond)
		return v, nil
	}
	rec := flowtest.Subscribe(context.Background(), parallel.AsyncMapOrdered(3, fn).Apply(flow.Just(1, 2, 3)), core.Unbounded)
	rec.AwaitTerminal(t)
	assert.Equal(t, []int{1}, rec.Values())
	assert.ErrorIs(t, rec.Err(), boom)
}

func TestFlatMap(t *testing.T) {
	fn := func(v int) ([]int, error) { return []int{v, v}, nil }
	got, err := core.Slice(context.Background(), parallel.FlatMap(3, fn).Apply(flow.Just(1, 2, 3)))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 1, 2, 2, 3, 3}, got)
}

func TestAsyncMap_CancelStopsWork(t *testing.T) {
	entered := make(chan struct{})
	var stopped atomic.Bool
	fn := func(ctx context.Context, v int) (int, error) {
		close(entered)
		<-ctx.Done()
		stopped.Store(true)
		return 0, ctx.Err()
	}
	rec := flowtest.Subscribe(context.Background(), parallel.AsyncMap(1, fn).Apply(flow.Just(1)), 1)
	<-entered
	rec.Cancel()

	require.Eventually(t, stopped.Load, time.Second, time.Millisecond)
	assert.False(t, rec.Terminated())
}

func TestMap_OnPoolLane(t *testing.T) {
	pool := sched.NewPool(context.Background(), 3, 0)
	defer func() { require.NoError(t, pool.Close()) }()
	ctx := core.WithEnvironment(context.Background(), core.Environment{Lane: pool})

	got, err := core.Slice(ctx, parallel.Map(3, double).Apply(flow.Range(0, 50)))
	require.NoError(t, err)
	assert.Len(t, got, 50)
}
