package filter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lguimbarda/min-rx/flow"
	"github.com/lguimbarda/min-rx/flow/core"
	"github.com/lguimbarda/min-rx/flow/filter"
	"github.com/lguimbarda/min-rx/flow/flowtest"
)

func TestTake(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want []int
	}{
		{"prefix", 3, []int{0, 1, 2}},
		{"longer than stream", 10, []int{0, 1, 2, 3, 4}},
		{"zero", 0, nil},
		{"negative", -1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := core.Slice(context.Background(), filter.Take[int](tt.n).Apply(flow.Range(0, 5)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTake_BoundsUpstreamDemand(t *testing.T) {
	src := flowtest.NewSource[int]()
	rec := flowtest.Subscribe(context.Background(), filter.Take[int](2).Apply(src), core.Unbounded)
	assert.Equal(t, int64(2), src.Last().Requested())

	src.Next(1, 2)
	assert.Equal(t, []int{1, 2}, rec.Values())
	assert.True(t, rec.Completed())
	assert.True(t, src.Last().Cancelled())
	rec.AssertClean(t)
}

func TestFirst(t *testing.T) {
	got, err := core.Slice(context.Background(), filter.First[int]().Apply(flow.Range(7, 100)))
	require.NoError(t, err)
	assert.Equal(t, []int{7}, got)
}

func TestTakeWhile(t *testing.T) {
	src := flowtest.NewSource[int]()
	rec := flowtest.Subscribe(context.Background(), filter.TakeWhile(func(v int) bool { return v < 3 }).Apply(src), core.Unbounded)

	src.Next(1, 2, 3)
	assert.Equal(t, []int{1, 2}, rec.Values())
	assert.True(t, rec.Completed())
	assert.True(t, src.Last().Cancelled())
}

func TestSkip(t *testing.T) {
	src := flowtest.NewSource[int]()
	rec := flowtest.Subscribe(context.Background(), filter.Skip[int](2).Apply(src), 1)
	assert.Equal(t, int64(3), src.Last().Requested(), "the skipped values are requested up front")

	src.Next(1, 2, 3)
	assert.Equal(t, []int{3}, rec.Values())

	rec.Request(1)
	assert.Equal(t, int64(4), src.Last().Requested())
	rec.AssertClean(t)
}

func TestSkipWhile(t *testing.T) {
	got, err := core.Slice(context.Background(),
		filter.SkipWhile(func(v int) bool { return v < 3 }).Apply(flow.Just(1, 2, 3, 1, 4)))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 4}, got)
}

func TestElementAt(t *testing.T) {
	src := flowtest.NewSource[int]()
	rec := flowtest.Subscribe(context.Background(), filter.ElementAt[int](2).Apply(src), core.Unbounded)
	assert.Equal(t, int64(3), src.Last().Requested())

	src.Next(10, 11, 12)
	assert.Equal(t, []int{12}, rec.Values())
	assert.True(t, rec.Completed())
	assert.True(t, src.Last().Cancelled())

	_, err := core.Slice(context.Background(), filter.ElementAt[int](5).Apply(flow.Range(0, 3)))
	assert.ErrorIs(t, err, filter.ErrNoElement)
}

func TestLast(t *testing.T) {
	tests := []struct {
		name string
		n    int
		in   []int
		want []int
	}{
		{"tail", 2, []int{1, 2, 3, 4, 5}, []int{4, 5}},
		{"wrapped ring", 3, []int{1, 2, 3, 4}, []int{2, 3, 4}},
		{"short stream", 5, []int{1, 2}, []int{1, 2}},
		{"zero", 0, []int{1, 2}, nil},
		{"empty", 2, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := core.Slice(context.Background(), filter.Last[int](tt.n).Apply(flow.Just(tt.in...)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLast_FollowsDemand(t *testing.T) {
	src := flowtest.NewSource[int]()
	rec := flowtest.Subscribe(context.Background(), filter.Last[int](3).Apply(src), 1)
	assert.Equal(t, core.Unbounded, src.Last().Requested())

	src.Next(1, 2, 3, 4)
	src.Complete()
	assert.Equal(t, []int{2}, rec.Values())
	assert.False(t, rec.Completed())

	rec.Request(5)
	assert.Equal(t, []int{2, 3, 4}, rec.Values())
	assert.True(t, rec.Completed())
	rec.AssertClean(t)
}
