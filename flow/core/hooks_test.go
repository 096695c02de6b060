package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lguimbarda/min-rx/flow"
	"github.com/lguimbarda/min-rx/flow/core"
	"github.com/lguimbarda/min-rx/flow/flowtest"
)

func TestObserve_InvokesEveryHook(t *testing.T) {
	var events []string
	ctx := core.WithHooks(context.Background(), core.Hooks[int]{
		OnSubscribe: func() { events = append(events, "subscribe") },
		OnRequest:   func(n int64) { events = append(events, "request") },
		OnNext:      func(int) { events = append(events, "next") },
		OnComplete:  func() { events = append(events, "complete") },
	})

	rec := flowtest.Subscribe(ctx, core.Observe[int]().Apply(flow.Just(1, 2)), 5)
	rec.AwaitTerminal(t)

	assert.Equal(t, []string{"subscribe", "request", "next", "next", "complete"}, events)
}

func TestObserve_ErrorAndCancel(t *testing.T) {
	var gotErr error
	cancelled := 0
	ctx := core.WithHooks(context.Background(), core.Hooks[int]{
		OnError:  func(err error) { gotErr = err },
		OnCancel: func() { cancelled++ },
	})

	boom := errors.New("boom")
	_, err := core.Slice(ctx, core.Observe[int]().Apply(flow.Fail[int](boom)))
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, gotErr, boom)

	src := flowtest.NewSource[int]()
	rec := flowtest.Subscribe(ctx, core.Observe[int]().Apply(src), 1)
	rec.Cancel()
	assert.Equal(t, 1, cancelled)
	assert.True(t, src.Last().Cancelled())
}

func TestObserve_NoHooksIsTransparent(t *testing.T) {
	got, err := core.Slice(context.Background(), core.Observe[int]().Apply(flow.Just(1, 2, 3)))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestWithHooks_FIFOOrder(t *testing.T) {
	var order []int
	ctx := context.Background()
	for i := range 3 {
		ctx = core.WithHooks(ctx, core.Hooks[string]{
			OnNext: func(string) { order = append(order, i) },
		})
	}

	_, err := core.Slice(ctx, core.Observe[string]().Apply(flow.Just("x")))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestWithHooks_TypeScoped(t *testing.T) {
	intCalls, strCalls := 0, 0
	ctx := core.WithHooks(context.Background(), core.Hooks[int]{OnNext: func(int) { intCalls++ }})
	ctx = core.WithHooks(ctx, core.Hooks[string]{OnNext: func(string) { strCalls++ }})

	_, err := core.Slice(ctx, core.Observe[int]().Apply(flow.Just(1, 2)))
	require.NoError(t, err)
	assert.Equal(t, 2, intCalls)
	assert.Zero(t, strCalls)
}

func TestSafeHooks_RecoversPanics(t *testing.T) {
	var recovered []any
	ctx := core.WithSafeHooks(context.Background(), core.Hooks[int]{
		OnNext: func(v int) {
			if v == 2 {
				panic("bad hook")
			}
		},
	}, func(r any) { recovered = append(recovered, r) })

	got, err := core.Slice(ctx, core.Observe[int]().Apply(flow.Just(1, 2, 3)))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Equal(t, []any{"bad hook"}, recovered)
}

func TestSafeHooks_NilHandler(t *testing.T) {
	safe := core.NewSafeHooks(core.Hooks[int]{OnComplete: func() { panic("x") }}, nil)
	assert.NotPanics(t, func() { safe.OnComplete() })
	assert.Nil(t, safe.OnNext)
}
