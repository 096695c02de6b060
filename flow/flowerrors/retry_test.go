package flowerrors_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lguimbarda/min-rx/flow"
	"github.com/lguimbarda/min-rx/flow/combine"
	"github.com/lguimbarda/min-rx/flow/core"
	"github.com/lguimbarda/min-rx/flow/flowerrors"
	"github.com/lguimbarda/min-rx/flow/flowtest"
	"github.com/lguimbarda/min-rx/flow/sched"
)

var boom = errors.New("boom")

// flaky emits values and then fails on its first failures subscriptions,
// and emits values and completes afterwards. It reports how many times it
// was subscribed.
func flaky(failures int, values ...int) (core.Publisher[int], *int) {
	subscriptions := 0
	return flow.Defer(func() core.Publisher[int] {
		subscriptions++
		if subscriptions <= failures {
			return combine.Concat(flow.Just(values...), flow.Fail[int](boom))
		}
		return flow.Just(values...)
	}), &subscriptions
}

// drain reads p to its end, keeping the values that preceded an error.
func drain[T any](p core.Publisher[T]) ([]T, error) {
	rec := flowtest.Subscribe(context.Background(), p, core.Unbounded)
	return rec.Values(), rec.Err()
}

func TestRetry(t *testing.T) {
	tests := []struct {
		name          string
		retries       int
		failures      int
		want          []int
		wantErr       error
		subscriptions int
	}{
		{"recovers", 2, 2, []int{1, 2, 1, 2, 1, 2}, nil, 3},
		{"exhausted", 1, 5, []int{1, 2, 1, 2}, boom, 2},
		{"zero propagates at once", 0, 5, []int{1, 2}, boom, 1},
		{"unbounded", -1, 4, []int{1, 2, 1, 2, 1, 2, 1, 2, 1, 2}, nil, 5},
		{"no failure", 3, 0, []int{1, 2}, nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, subscriptions := flaky(tt.failures, 1, 2)
			got, err := drain(flowerrors.Retry[int](tt.retries).Apply(src))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.subscriptions, *subscriptions)
		})
	}
}

func TestRetry_CarriesDemandAndDropsStaleSignals(t *testing.T) {
	src := flowtest.NewSource[int]()
	rec := flowtest.Subscribe(context.Background(), flowerrors.Retry[int](1).Apply(src), 5)
	require.Equal(t, int64(5), src.Last().Requested())

	src.Next(1, 2)
	src.Error(boom)
	require.Equal(t, 2, src.Subscriptions())
	assert.Equal(t, int64(3), src.Last().Requested())

	// The first subscription was never cancelled, so it receives these too;
	// the controller drops them as stale.
	src.Next(3)
	src.Complete()

	assert.Equal(t, []int{1, 2, 3}, rec.Values())
	assert.True(t, rec.Completed())
	rec.AssertClean(t)
}

func TestRetry_CancelReachesCurrentUpstream(t *testing.T) {
	src := flowtest.NewSource[int]()
	rec := flowtest.Subscribe(context.Background(), flowerrors.Retry[int](3).Apply(src), 1)
	src.Error(boom)
	require.Equal(t, 2, src.Subscriptions())

	rec.Cancel()
	assert.True(t, src.Last().Cancelled())
	assert.False(t, src.Sub(0).Cancelled(), "a failed upstream is not cancelled")
}

func TestRetryIf(t *testing.T) {
	fatal := errors.New("fatal")
	subscriptions := 0
	src := flow.Defer(func() core.Publisher[int] {
		subscriptions++
		if subscriptions == 1 {
			return flow.Fail[int](boom)
		}
		return flow.Fail[int](fatal)
	})
	retryable := func(err error) bool { return errors.Is(err, boom) }

	_, err := core.Slice(context.Background(), flowerrors.RetryIf[int](5, retryable).Apply(src))
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 2, subscriptions)
}

func TestRetryWhen_DerivedErrorIsFatal(t *testing.T) {
	src, subscriptions := flaky(3, 1)
	giveUp := func(errs core.Publisher[error]) core.Publisher[error] {
		return core.Map(func(err error) (error, error) {
			return nil, fmt.Errorf("gave up: %w", err)
		}).Apply(errs)
	}

	got, err := drain(flowerrors.RetryWhen[int](giveUp).Apply(src))
	assert.Equal(t, []int{1}, got)
	assert.ErrorIs(t, err, boom)
	assert.EqualError(t, err, "gave up: boom")
	assert.Equal(t, 1, *subscriptions)
}

func TestRetryWhen_DerivedCompletionCompletes(t *testing.T) {
	src, subscriptions := flaky(3, 1)
	stop := func(errs core.Publisher[error]) core.Publisher[struct{}] {
		return core.Lift[error, struct{}](func(ctx context.Context, down core.Subscriber[struct{}]) core.Subscriber[error] {
			o := core.NewOperator[error, struct{}](ctx, down)
			o.Next = func(error) { o.Complete() }
			return o
		}).Apply(errs)
	}

	got, err := core.Slice(context.Background(), flowerrors.RetryWhen[int](stop).Apply(src))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, got)
	assert.Equal(t, 1, *subscriptions)
}

func TestRetryWhen_DerivedFailsBeforeFirstSubscription(t *testing.T) {
	src := flowtest.NewSource[int]()
	refuse := func(core.Publisher[error]) core.Publisher[int] { return flow.Fail[int](boom) }

	rec := flowtest.Subscribe(context.Background(), flowerrors.RetryWhen[int](refuse).Apply(src), 1)
	assert.ErrorIs(t, rec.Err(), boom)
	assert.True(t, src.Last().Cancelled())
	rec.AssertClean(t)
}

func TestExponentialBackoff(t *testing.T) {
	vt := sched.NewVirtualTimer()
	ctx := core.WithEnvironment(context.Background(), core.Environment{Timer: vt})
	src := flowtest.NewSource[int]()
	retry := flowerrors.RetryWhen[int](flowerrors.ExponentialBackoff(2, 10*time.Millisecond, time.Second))
	rec := flowtest.Subscribe(ctx, retry.Apply(src), core.Unbounded)

	src.Error(boom)
	assert.Equal(t, 1, vt.Pending())
	vt.Advance(9 * time.Millisecond)
	assert.Equal(t, 1, src.Subscriptions())
	vt.Advance(time.Millisecond)
	require.Equal(t, 2, src.Subscriptions())

	src.Error(boom)
	vt.Advance(19 * time.Millisecond)
	assert.Equal(t, 2, src.Subscriptions())
	vt.Advance(time.Millisecond)
	require.Equal(t, 3, src.Subscriptions())

	src.Error(boom)
	assert.ErrorIs(t, rec.Err(), boom)
	assert.Zero(t, vt.Pending())
	rec.AssertClean(t)
}

func TestBackoff_CancelDisarmsTimer(t *testing.T) {
	vt := sched.NewVirtualTimer()
	ctx := core.WithEnvironment(context.Background(), core.Environment{Timer: vt})
	src := flowtest.NewSource[int]()
	rec := flowtest.Subscribe(ctx, flowerrors.RetryWhen[int](flowerrors.ConstantBackoff(-1, time.Second)).Apply(src), 1)

	src.Error(boom)
	require.Equal(t, 1, vt.Pending())
	rec.Cancel()
	assert.Zero(t, vt.Pending())

	vt.Advance(time.Minute)
	assert.Equal(t, 1, src.Subscriptions())
}

func TestRepeat(t *testing.T) {
	ctx := context.Background()
	got, err := core.Slice(ctx, flowerrors.Repeat[int](2).Apply(flow.Just(1, 2)))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 1, 2, 1, 2}, got)

	got, err = core.Slice(ctx, flowerrors.Repeat[int](0).Apply(flow.Just(1, 2)))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got)
}

func TestRepeat_ErrorsAreNotRepeated(t *testing.T) {
	src, subscriptions := flaky(5, 1)
	got, err := drain(flowerrors.Repeat[int](3).Apply(src))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{1}, got)
	assert.Equal(t, 1, *subscriptions)
}

func TestRepeat_UnboundedFollowsDemand(t *testing.T) {
	rec := flowtest.Subscribe(context.Background(), flowerrors.Repeat[int](-1).Apply(flow.Just(1, 2)), 3)
	assert.Equal(t, []int{1, 2, 1}, rec.Values())
	assert.False(t, rec.Terminated())

	rec.Request(2)
	assert.Equal(t, []int{1, 2, 1, 2, 1}, rec.Values())
	rec.Cancel()
	rec.AssertClean(t)
}

func TestRepeatWhen_SeesCompletionTimes(t *testing.T) {
	var seen []time.Time
	once := func(completions core.Publisher[time.Time]) core.Publisher[time.Time] {
		return core.Map(func(at time.Time) (time.Time, error) {
			seen = append(seen, at)
			if len(seen) > 1 {
				return at, errors.New("enough")
			}
			return at, nil
		}).Apply(completions)
	}

	got, err := drain(flowerrors.RepeatWhen[int](once).Apply(flow.Just(7)))
	assert.EqualError(t, err, "enough")
	assert.Equal(t, []int{7, 7}, got)
	assert.Len(t, seen, 2)
}
