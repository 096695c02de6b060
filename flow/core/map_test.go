package core_test

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lguimbarda/min-rx/flow"
	"github.com/lguimbarda/min-rx/flow/core"
	"github.com/lguimbarda/min-rx/flow/flowtest"
)

func TestMapper(t *testing.T) {
	tests := []struct {
		name    string
		input   []int
		mapper  core.Mapper[int, string]
		want    []string
		wantErr bool
	}{
		{
			name:   "itoa",
			input:  []int{1, 2, 3},
			mapper: core.Map(func(i int) (string, error) { return strconv.Itoa(i), nil }),
			want:   []string{"1", "2", "3"},
		},
		{
			name:   "empty",
			input:  nil,
			mapper: core.Map(func(i int) (string, error) { return "x", nil }),
			want:   nil,
		},
		{
			name:  "error stops the stream",
			input: []int{1, 2, 3},
			mapper: core.Map(func(i int) (string, error) {
				if i == 2 {
					return "", errors.New("two")
				}
				return strconv.Itoa(i), nil
			}),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := core.Slice(context.Background(), tt.mapper.Apply(flow.FromSlice(tt.input)))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMapper_ErrorCancelsUpstream(t *testing.T) {
	src := flowtest.NewSource[int]()
	boom := errors.New("boom")
	m := core.Map(func(i int) (int, error) { return 0, boom })
	rec := flowtest.Subscribe(context.Background(), m.Apply(src), 5)

	src.Next(1)

	assert.ErrorIs(t, rec.Err(), boom)
	assert.True(t, src.Last().Cancelled())
	assert.Empty(t, rec.Values())
}

func TestMapper_PanicBecomesError(t *testing.T) {
	m := core.Map(func(i int) (int, error) { panic("kaboom") })
	_, err := core.Slice(context.Background(), m.Apply(flow.Just(1)))

	var perr core.ErrPanic
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "kaboom", perr.Value)
}

func TestFlatMapper(t *testing.T) {
	fm := core.FlatMap(func(s string) ([]rune, error) { return []rune(s), nil })
	got, err := core.Slice(context.Background(), fm.Apply(flow.Just("ab", "", "cde")))
	require.NoError(t, err)
	assert.Equal(t, []rune("abcde"), got)
}

func TestFlatMapper_RespectsDemand(t *testing.T) {
	src := flowtest.NewSource[int]()
	fm := core.FlatMap(func(n int) ([]int, error) {
		out := make([]int, n)
		for i := range out {
			out[i] = n
		}
		return out, nil
	})
	rec := flowtest.Subscribe(context.Background(), fm.Apply(src), 2)

	require.Equal(t, int64(1), src.Last().Requested())
	src.Next(3)
	assert.Equal(t, []int{3, 3}, rec.Values())
	assert.Equal(t, int64(1), src.Last().Requested(), "must not pull while expansion is pending")

	rec.Request(2)
	assert.Equal(t, []int{3, 3, 3}, rec.Values())
	assert.Equal(t, int64(2), src.Last().Requested())

	src.Next(1)
	src.Complete()
	assert.Equal(t, []int{3, 3, 3, 1}, rec.Values())
	assert.True(t, rec.Completed())
	rec.AssertClean(t)
}

func TestSplit(t *testing.T) {
	got, err := core.Slice(context.Background(), core.Split[int]().Apply(flow.Just([]int{1, 2}, nil, []int{3})))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)

	src := flowtest.NewSource[[]string]()
	rec := flowtest.Subscribe(context.Background(), core.Split[string]().Apply(src), 1)
	src.Next([]string{"a", "b", "c"})
	assert.Equal(t, []string{"a"}, rec.Values())
	rec.Request(5)
	assert.Equal(t, []string{"a", "b", "c"}, rec.Values())
	src.Complete()
	assert.True(t, rec.Completed())
	rec.AssertClean(t)
}

func TestCast(t *testing.T) {
	got, err := core.Slice(context.Background(), core.Cast[any, int]().Apply(flow.Just[any](1, 2)))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got)

	_, err = core.Slice(context.Background(), core.Cast[any, int]().Apply(flow.Just[any]("x")))
	var cerr *core.CastError
	assert.ErrorAs(t, err, &cerr)
}

func TestMapper_InvokesHooks(t *testing.T) {
	var seen []string
	completed := false
	ctx := core.WithHooks(context.Background(), core.Hooks[string]{
		OnNext:     func(s string) { seen = append(seen, s) },
		OnComplete: func() { completed = true },
	})
	m := core.Map(func(i int) (string, error) { return strconv.Itoa(i * 10), nil })

	got, err := core.Slice(ctx, m.Apply(flow.Just(1, 2)))
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "20"}, got)
	assert.Equal(t, got, seen)
	assert.True(t, completed)
}
