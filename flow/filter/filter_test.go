package filter_test

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lguimbarda/min-rx/flow"
	"github.com/lguimbarda/min-rx/flow/core"
	"github.com/lguimbarda/min-rx/flow/filter"
	"github.com/lguimbarda/min-rx/flow/flowtest"
)

func even(v int) bool { return v%2 == 0 }

func TestFilter(t *testing.T) {
	tests := []struct {
		name string
		op   core.Transformer[int, int]
		want []int
	}{
		{"filter", filter.Filter(even), []int{0, 2, 4}},
		{"exclude", filter.Exclude(even), []int{1, 3, 5}},
		{"none", filter.Filter(func(int) bool { return false }), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := core.Slice(context.Background(), tt.op.Apply(flow.Range(0, 6)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilter_ReplacesDroppedDemand(t *testing.T) {
	src := flowtest.NewSource[int]()
	rec := flowtest.Subscribe(context.Background(), filter.Filter(even).Apply(src), 2)
	require.Equal(t, int64(2), src.Last().Requested())

	src.Next(1, 3)
	assert.Equal(t, int64(4), src.Last().Requested())
	src.Next(2, 4)
	assert.Equal(t, []int{2, 4}, rec.Values())
	assert.Equal(t, int64(4), src.Last().Requested(), "no request beyond the downstream demand")
	rec.AssertClean(t)
}

func TestFilter_PredicatePanic(t *testing.T) {
	src := flowtest.NewSource[int]()
	rec := flowtest.Subscribe(context.Background(), filter.Filter(func(int) bool { panic("bad") }).Apply(src), 1)

	src.Next(1)
	var perr core.ErrPanic
	assert.ErrorAs(t, rec.Err(), &perr)
	assert.True(t, src.Last().Cancelled())
	rec.AssertClean(t)
}

func TestMapWhere(t *testing.T) {
	parse := filter.MapWhere(func(s string) (int, bool) {
		n, err := strconv.Atoi(s)
		return n, err == nil
	})
	got, err := core.Slice(context.Background(), parse.Apply(flow.Just("1", "x", "3", "")))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, got)
}

func TestFilter_PassesErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := core.Slice(context.Background(), filter.Filter(even).Apply(flow.Fail[int](boom)))
	assert.ErrorIs(t, err, boom)
}
