package aggregate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lguimbarda/min-rx/flow"
	"github.com/lguimbarda/min-rx/flow/aggregate"
	"github.com/lguimbarda/min-rx/flow/core"
	"github.com/lguimbarda/min-rx/flow/flowtest"
)

func sum(acc, v int) (int, error) { return acc + v, nil }

func zero() int { return 0 }

func TestReduce(t *testing.T) {
	ctx := context.Background()

	got, err := core.Slice(ctx, aggregate.Reduce(zero, sum).Apply(flow.Range(1, 5)))
	require.NoError(t, err)
	assert.Equal(t, []int{10}, got)

	got, err = core.Slice(ctx, aggregate.Reduce(zero, sum).Apply(flow.Empty[int]()))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReduce_ErrorCancelsUpstream(t *testing.T) {
	boom := errors.New("boom")
	src := flowtest.NewSource[int]()
	failAt3 := func(acc, v int) (int, error) {
		if v == 3 {
			return 0, boom
		}
		return acc + v, nil
	}
	rec := flowtest.Subscribe(context.Background(), aggregate.Reduce(zero, failAt3).Apply(src), 1)

	src.Next(1, 2, 3)

	assert.ErrorIs(t, rec.Err(), boom)
	assert.Empty(t, rec.Values())
	assert.True(t, src.Last().Cancelled())
}

func TestReduceTimeout_SupplierPerBatch(t *testing.T) {
	supplied := 0
	supplier := func() int {
		supplied++
		return 100
	}
	got, err := core.Slice(context.Background(),
		aggregate.ReduceTimeout(2, 0, supplier, sum).Apply(flow.Range(1, 6)))
	require.NoError(t, err)
	assert.Equal(t, []int{103, 107, 105}, got)
	assert.Equal(t, 3, supplied)
}

func TestReduceTimeout_Timer(t *testing.T) {
	ctx, vt := virtualEnv()
	src := flowtest.NewSource[int]()
	rec := flowtest.Subscribe(ctx, aggregate.ReduceTimeout(0, time.Second, zero, sum).Apply(src), core.Unbounded)

	src.Next(1, 2)
	vt.Advance(time.Second)
	vt.Advance(time.Second)
	src.Next(5)
	src.Complete()

	assert.Equal(t, []int{3, 5}, rec.Values())
	assert.True(t, rec.Completed())
}

func TestFold(t *testing.T) {
	concat := func(acc string, v int) string { return acc + string(rune('a'+v)) }

	got, err := core.Slice(context.Background(), aggregate.Fold(">", concat).Apply(flow.Range(0, 3)))
	require.NoError(t, err)
	assert.Equal(t, []string{">abc"}, got)

	got, err = core.Slice(context.Background(), aggregate.Fold(">", concat).Apply(flow.Empty[int]()))
	require.NoError(t, err)
	assert.Equal(t, []string{">"}, got)
}

func TestScan(t *testing.T) {
	got, err := core.Slice(context.Background(), aggregate.Scan(0, sum).Apply(flow.Range(1, 4)))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 6}, got)
}

func TestScan_ForwardsDemandOneToOne(t *testing.T) {
	src := flowtest.NewSource[int]()
	rec := flowtest.Subscribe(context.Background(), aggregate.Scan(0, sum).Apply(src), 2)

	assert.Equal(t, int64(2), src.Last().Requested())
	src.Next(5, 6)
	assert.Equal(t, []int{5, 11}, rec.Values())
	rec.AssertClean(t)
}

func TestMovingBuffer(t *testing.T) {
	got, err := core.Slice(context.Background(), aggregate.MovingBuffer[int](3).Apply(flow.Range(1, 6)))
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1}, {1, 2}, {1, 2, 3}, {2, 3, 4}, {3, 4, 5}}, got)

	_, err = core.Slice(context.Background(), aggregate.MovingBuffer[int](0).Apply(flow.Range(1, 6)))
	assert.ErrorIs(t, err, aggregate.ErrInvalidSize)
}

func TestCountAndToList(t *testing.T) {
	ctx := context.Background()

	n, err := core.First(ctx, aggregate.Count[string]().Apply(flow.Just("a", "b", "c")))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = core.First(ctx, aggregate.Count[string]().Apply(flow.Empty[string]()))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	list, err := core.First(ctx, aggregate.ToList[int]().Apply(flow.Range(0, 3)))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, list)

	list, err = core.First(ctx, aggregate.ToList[int]().Apply(flow.Empty[int]()))
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestNumeric(t *testing.T) {
	ctx := context.Background()
	less := func(a, b int) bool { return a < b }
	values := func() flow.Publisher[int] { return flow.Just(4, 1, 7, 3) }

	s, err := core.First(ctx, aggregate.Sum[int]().Apply(values()))
	require.NoError(t, err)
	assert.Equal(t, 15, s)

	avg, err := core.First(ctx, aggregate.Average[int]().Apply(values()))
	require.NoError(t, err)
	assert.InDelta(t, 3.75, avg, 1e-9)

	lo, err := core.First(ctx, aggregate.Min(less).Apply(values()))
	require.NoError(t, err)
	assert.Equal(t, 1, lo)

	hi, err := core.First(ctx, aggregate.Max(less).Apply(values()))
	require.NoError(t, err)
	assert.Equal(t, 7, hi)

	// Min over the same transformer twice must not share state.
	minT := aggregate.Min(less)
	a, _ := core.Slice(ctx, minT.Apply(flow.Just(5, 6)))
	b, _ := core.Slice(ctx, minT.Apply(flow.Just(9, 8)))
	assert.Equal(t, []int{5}, a)
	assert.Equal(t, []int{8}, b)

	empty, err := core.Slice(ctx, aggregate.Max(less).Apply(flow.Empty[int]()))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPredicates(t *testing.T) {
	even := func(v int) bool { return v%2 == 0 }
	tests := []struct {
		name  string
		op    core.Transformer[int, bool]
		input []int
		want  bool
	}{
		{"all true", aggregate.All(even), []int{2, 4}, true},
		{"all false", aggregate.All(even), []int{2, 3}, false},
		{"all empty", aggregate.All(even), nil, true},
		{"any true", aggregate.Any(even), []int{1, 2}, true},
		{"any false", aggregate.Any(even), []int{1, 3}, false},
		{"any empty", aggregate.Any(even), nil, false},
		{"none true", aggregate.None(even), []int{1, 3}, true},
		{"none false", aggregate.None(even), []int{1, 2}, false},
		{"none empty", aggregate.None(even), nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := core.Slice(context.Background(), tt.op.Apply(flow.FromSlice(tt.input)))
			require.NoError(t, err)
			assert.Equal(t, []bool{tt.want}, got)
		})
	}
}

func TestAny_ShortCircuits(t *testing.T) {
	src := flowtest.NewSource[int]()
	rec := flowtest.Subscribe(context.Background(), aggregate.Any(func(v int) bool { return v > 1 }).Apply(src), 1)

	src.Next(1, 2)

	assert.Equal(t, []bool{true}, rec.Values())
	assert.True(t, rec.Completed())
	assert.True(t, src.Last().Cancelled())
	rec.AssertClean(t)
}
