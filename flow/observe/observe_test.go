package observe_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lguimbarda/min-rx/flow"
	"github.com/lguimbarda/min-rx/flow/core"
	"github.com/lguimbarda/min-rx/flow/flowtest"
	"github.com/lguimbarda/min-rx/flow/observe"
)

var boom = errors.New("boom")

func TestTap(t *testing.T) {
	var seen []int
	got, err := core.Slice(context.Background(), observe.Tap(func(v int) { seen = append(seen, v) }).Apply(flow.Just(1, 2, 3)))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Equal(t, got, seen)
}

func TestTap_PanicFailsStream(t *testing.T) {
	src := flowtest.NewSource[int]()
	rec := flowtest.Subscribe(context.Background(), observe.Tap(func(int) { panic("tap") }).Apply(src), 1)

	src.Next(1)
	var perr core.ErrPanic
	assert.ErrorAs(t, rec.Err(), &perr)
	assert.Empty(t, rec.Values())
	assert.True(t, src.Last().Cancelled())
	rec.AssertClean(t)
}

func TestWatch_HookPanicIsIgnored(t *testing.T) {
	watch := observe.Watch(func(context.Context) core.Hooks[int] {
		return core.Hooks[int]{OnNext: func(int) { panic("hook") }}
	})
	got, err := core.Slice(context.Background(), watch.Apply(flow.Just(1, 2)))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got)
}

func TestSpy(t *testing.T) {
	var signals []string
	spy := observe.Spy(func(s core.Signal[int]) { signals = append(signals, s.String()) })

	_, _ = core.Slice(context.Background(), spy.Apply(flow.Just(1, 2)))
	assert.Equal(t, []string{"next(1)", "next(2)", "complete"}, signals)

	signals = nil
	_, _ = core.Slice(context.Background(), spy.Apply(flow.Fail[int](boom)))
	assert.Equal(t, []string{"error(boom)"}, signals)
}

func TestMetrics(t *testing.T) {
	var reports []observe.StreamMetrics
	metrics := observe.Metrics[int](func(m observe.StreamMetrics) { reports = append(reports, m) })

	_, err := core.Slice(context.Background(), metrics.Apply(flow.Just(1, 2, 3)))
	require.NoError(t, err)
	require.Len(t, reports, 1)
	m := reports[0]
	assert.Equal(t, int64(3), m.ValueCount)
	assert.Equal(t, core.Unbounded, m.Requested)
	assert.True(t, m.Completed)
	assert.False(t, m.Cancelled)
	assert.False(t, m.StartTime.After(m.FirstItemTime))
	assert.False(t, m.LastItemTime.After(m.EndTime))
	assert.LessOrEqual(t, m.MinLatency, m.MaxLatency)
}

func TestMetrics_Cancel(t *testing.T) {
	var reports []observe.StreamMetrics
	src := flowtest.NewSource[int]()
	rec := flowtest.Subscribe(context.Background(),
		observe.Metrics[int](func(m observe.StreamMetrics) { reports = append(reports, m) }).Apply(src), 2)

	src.Next(1)
	rec.Cancel()
	rec.Cancel()

	require.Len(t, reports, 1, "reported once")
	assert.True(t, reports[0].Cancelled)
	assert.Equal(t, int64(1), reports[0].ValueCount)
	assert.Equal(t, int64(2), reports[0].Requested)
	assert.Zero(t, reports[0].MinLatency)
}

func TestMetrics_Error(t *testing.T) {
	var got observe.StreamMetrics
	_, err := core.Slice(context.Background(),
		observe.Metrics[int](func(m observe.StreamMetrics) { got = m }).Apply(flow.Fail[int](boom)))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), got.ErrorCount)
	assert.False(t, got.Completed)
}

func TestMeterLive(t *testing.T) {
	live := &observe.LiveMetrics{}
	assert.Zero(t, live.TotalItems())
	assert.Zero(t, live.Duration())

	meter := observe.MeterLive[int](live)
	_, _ = core.Slice(context.Background(), meter.Apply(flow.Just(1, 2, 3)))
	_, _ = core.Slice(context.Background(), meter.Apply(flow.Fail[int](boom)))

	assert.Equal(t, int64(3), live.ValueCount())
	assert.Equal(t, int64(1), live.ErrorCount())
	assert.Equal(t, int64(4), live.TotalItems())
	assert.Equal(t, core.Unbounded, live.Requested())
	assert.False(t, live.StartTime().IsZero())
}

func TestProgress(t *testing.T) {
	var reports []observe.ProgressReport
	progress := observe.Progress[int](4, 0, func(r observe.ProgressReport) { reports = append(reports, r) })

	_, err := core.Slice(context.Background(), progress.Apply(flow.Just(1, 2)))
	require.NoError(t, err)
	require.Len(t, reports, 1, "without an interval only the final report is made")
	assert.True(t, reports[0].Final)
	assert.Equal(t, int64(2), reports[0].Processed)
	assert.InDelta(t, 50.0, reports[0].Percent, 0.001)
}

func TestProgress_UnknownTotal(t *testing.T) {
	var last observe.ProgressReport
	_, _ = core.Slice(context.Background(),
		observe.Progress[int](-1, 0, func(r observe.ProgressReport) { last = r }).Apply(flow.Range(0, 10)))
	assert.Equal(t, int64(10), last.Processed)
	assert.Equal(t, time.Duration(-1), last.Remaining)
	assert.Zero(t, last.Percent)
}

func TestRateMeter(t *testing.T) {
	meter := observe.NewRateMeter(time.Minute)
	_, _ = core.Slice(context.Background(), observe.MeterRate[int](meter).Apply(flow.Range(0, 10)))
	time.Sleep(time.Millisecond)

	assert.Equal(t, int64(10), meter.TotalCount())
	assert.Positive(t, meter.Rate())
	assert.Zero(t, observe.NewRateMeter(time.Second).Rate())
}

func TestHistogram(t *testing.T) {
	histogram := observe.NewHistogram[string]()
	_, err := core.Slice(context.Background(),
		observe.MeterHistogram(histogram).Apply(flow.Just("a", "b", "a", "c", "a")))
	require.NoError(t, err)

	assert.Equal(t, int64(3), histogram.Count("a"))
	assert.Equal(t, int64(1), histogram.Count("b"))
	assert.Equal(t, int64(5), histogram.Total())
	assert.Equal(t, map[string]int64{"a": 3, "b": 1, "c": 1}, histogram.Counts())
}

func TestStreamMetricsDuration(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := observe.StreamMetrics{StartTime: start, EndTime: start.Add(100 * time.Millisecond)}
	assert.Equal(t, 100*time.Millisecond, m.Duration())
}
