package observe

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lguimbarda/min-rx/flow/core"
)

// Tap runs fn for every value before passing it on. A panic in fn fails the
// stream and cancels the upstream.
func Tap[T any](fn func(T)) core.Transformer[T, T] {
	return core.Lift[T, T](func(ctx context.Context, down core.Subscriber[T]) core.Subscriber[T] {
		o := core.NewOperator[T, T](ctx, down)
		o.Next = func(v T) {
			if err := core.Protect(func() error { fn(v); return nil }); err != nil {
				o.Fail(err)
				return
			}
			o.Emit(v)
		}
		return o
	})
}

// Spy hands every signal, terminal ones included, to inspector.
func Spy[T any](inspector func(core.Signal[T])) core.Transformer[T, T] {
	return Watch(func(context.Context) core.Hooks[T] {
		return core.Hooks[T]{
			OnNext:     func(v T) { inspector(core.Next(v)) },
			OnError:    func(err error) { inspector(core.Error[T](err)) },
			OnComplete: func() { inspector(core.Complete[T]()) },
		}
	})
}

// StreamMetrics holds statistics about one subscription.
type StreamMetrics struct {
	// Counts
	ValueCount int64
	ErrorCount int64
	Requested  int64 // saturates at core.Unbounded
	Completed  bool
	Cancelled  bool

	// Timing
	StartTime     time.Time
	EndTime       time.Time
	FirstItemTime time.Time
	LastItemTime  time.Time

	// Throughput
	ItemsPerSecond float64

	// Latency between values
	MinLatency time.Duration
	MaxLatency time.Duration
	AvgLatency time.Duration
}

// Duration is the time between subscription and the end of the stream.
func (m StreamMetrics) Duration() time.Duration {
	return m.EndTime.Sub(m.StartTime)
}

// Metrics collects StreamMetrics for every subscription and hands them to
// onDone once the stream terminates or is cancelled.
func Metrics[T any](onDone func(StreamMetrics)) core.Transformer[T, T] {
	return Watch(func(context.Context) core.Hooks[T] {
		c := &collector{m: StreamMetrics{MinLatency: time.Duration(math.MaxInt64)}}
		finish := func(update func(*StreamMetrics)) func() {
			return func() {
				if m, ok := c.finish(update); ok && onDone != nil {
					onDone(m)
				}
			}
		}
		return core.Hooks[T]{
			OnSubscribe: c.start,
			OnRequest:   c.request,
			OnNext:      func(T) { c.value() },
			OnError: func(error) {
				finish(func(m *StreamMetrics) { m.ErrorCount++ })()
			},
			OnComplete: finish(func(m *StreamMetrics) { m.Completed = true }),
			OnCancel:   finish(func(m *StreamMetrics) { m.Cancelled = true }),
		}
	})
}

type collector struct {
	mu           sync.Mutex
	m            StreamMetrics
	totalLatency time.Duration
	done         bool
}

func (c *collector) start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m.StartTime = time.Now()
}

func (c *collector) request(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m.Requested = core.AddCap(c.m.Requested, n)
}

func (c *collector) value() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if c.m.ValueCount == 0 {
		c.m.FirstItemTime = now
	} else {
		latency := now.Sub(c.m.LastItemTime)
		c.m.MinLatency = min(c.m.MinLatency, latency)
		c.m.MaxLatency = max(c.m.MaxLatency, latency)
		c.totalLatency += latency
	}
	c.m.LastItemTime = now
	c.m.ValueCount++
}

// finish applies update and seals the metrics; it reports false after the
// first call.
func (c *collector) finish(update func(*StreamMetrics)) (StreamMetrics, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return StreamMetrics{}, false
	}
	c.done = true
	update(&c.m)
	c.m.EndTime = time.Now()
	if c.m.ValueCount > 1 {
		c.m.AvgLatency = c.totalLatency / time.Duration(c.m.ValueCount-1)
	} else {
		c.m.MinLatency = 0
	}
	if d := c.m.Duration().Seconds(); d > 0 {
		c.m.ItemsPerSecond = float64(c.m.ValueCount) / d
	}
	return c.m, true
}

// LiveMetrics holds counters that can be read while the stream runs. One
// LiveMetrics may be shared by several subscriptions.
type LiveMetrics struct {
	valueCount   atomic.Int64
	errorCount   atomic.Int64
	requested    atomic.Int64
	cancelCount  atomic.Int64
	startTime    atomic.Int64 // Unix nano
	lastItemTime atomic.Int64 // Unix nano
}

// TotalItems returns the number of values and errors seen.
func (m *LiveMetrics) TotalItems() int64 { return m.ValueCount() + m.ErrorCount() }

// ValueCount returns the number of values.
func (m *LiveMetrics) ValueCount() int64 { return m.valueCount.Load() }

// ErrorCount returns the number of errors.
func (m *LiveMetrics) ErrorCount() int64 { return m.errorCount.Load() }

// Requested returns the total demand signalled, saturated at core.Unbounded.
func (m *LiveMetrics) Requested() int64 { return m.requested.Load() }

// Cancels returns the number of cancellations.
func (m *LiveMetrics) Cancels() int64 { return m.cancelCount.Load() }

// StartTime returns when the first subscription started.
func (m *LiveMetrics) StartTime() time.Time {
	return time.Unix(0, m.startTime.Load())
}

// LastItemTime returns when the last value passed.
func (m *LiveMetrics) LastItemTime() time.Time {
	return time.Unix(0, m.lastItemTime.Load())
}

// Duration returns how long the stream has been running.
func (m *LiveMetrics) Duration() time.Duration {
	start := m.startTime.Load()
	if start == 0 {
		return 0
	}
	return time.Since(time.Unix(0, start))
}

// ItemsPerSecond returns the current throughput.
func (m *LiveMetrics) ItemsPerSecond() float64 {
	d := m.Duration().Seconds()
	if d <= 0 {
		return 0
	}
	return float64(m.ValueCount()) / d
}

func (m *LiveMetrics) addRequest(n int64) {
	for {
		cur := m.requested.Load()
		if m.requested.CompareAndSwap(cur, core.AddCap(cur, n)) {
			return
		}
	}
}

// MeterLive updates metrics as signals pass.
func MeterLive[T any](metrics *LiveMetrics) core.Transformer[T, T] {
	return Watch(func(context.Context) core.Hooks[T] {
		return core.Hooks[T]{
			OnSubscribe: func() { metrics.startTime.CompareAndSwap(0, time.Now().UnixNano()) },
			OnRequest:   metrics.addRequest,
			OnNext: func(T) {
				metrics.valueCount.Add(1)
				metrics.lastItemTime.Store(time.Now().UnixNano())
			},
			OnError:  func(error) { metrics.errorCount.Add(1) },
			OnCancel: func() { metrics.cancelCount.Add(1) },
		}
	})
}

// ProgressReport holds information for progress reporting.
type ProgressReport struct {
	Processed int64
	Total     int64 // -1 if unknown
	Percent   float64
	Elapsed   time.Duration
	Remaining time.Duration // estimated, -1 if unknown
	Final     bool
}

// Progress reports how many values passed. onProgress is called at most
// once per interval while values flow, and a final time when the stream
// terminates or is cancelled. Pass total -1 when the length is unknown.
func Progress[T any](total int64, interval time.Duration, onProgress func(ProgressReport)) core.Transformer[T, T] {
	return Watch(func(context.Context) core.Hooks[T] {
		var (
			mu         sync.Mutex
			processed  int64
			start      time.Time
			lastReport time.Time
			done       bool
		)
		report := func(final bool) {
			elapsed := time.Since(start)
			r := ProgressReport{Processed: processed, Total: total, Elapsed: elapsed, Remaining: -1, Final: final}
			if total > 0 {
				r.Percent = float64(processed) / float64(total) * 100
				if processed > 0 && elapsed > 0 {
					rate := float64(processed) / elapsed.Seconds()
					r.Remaining = time.Duration(float64(total-processed) / rate * float64(time.Second))
				}
			}
			onProgress(r)
		}
		end := func() {
			mu.Lock()
			defer mu.Unlock()
			if !done {
				done = true
				report(true)
			}
		}
		return core.Hooks[T]{
			OnSubscribe: func() {
				mu.Lock()
				defer mu.Unlock()
				start = time.Now()
				lastReport = start
			},
			OnNext: func(T) {
				mu.Lock()
				defer mu.Unlock()
				processed++
				if interval > 0 && time.Since(lastReport) >= interval {
					report(false)
					lastReport = time.Now()
				}
			},
			OnError:    func(error) { end() },
			OnComplete: end,
			OnCancel:   end,
		}
	})
}

// RateMeter tracks the rate of items per second over a sliding window.
type RateMeter struct {
	mu         sync.Mutex
	window     time.Duration
	counts     []int64
	times      []time.Time
	totalCount int64
}

// NewRateMeter creates a rate meter over the given window.
func NewRateMeter(window time.Duration) *RateMeter {
	return &RateMeter{window: window}
}

// Add records count items.
func (r *RateMeter) Add(count int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.counts = append(r.counts, count)
	r.times = append(r.times, now)
	r.totalCount += count

	cutoff := now.Add(-r.window)
	for len(r.times) > 0 && r.times[0].Before(cutoff) {
		r.totalCount -= r.counts[0]
		r.counts = r.counts[1:]
		r.times = r.times[1:]
	}
}

// Rate returns the current rate per second.
func (r *RateMeter) Rate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.times) == 0 {
		return 0
	}
	d := time.Since(r.times[0]).Seconds()
	if d <= 0 {
		return 0
	}
	return float64(r.totalCount) / d
}

// TotalCount returns the count within the window.
func (r *RateMeter) TotalCount() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalCount
}

// MeterRate adds every value to meter.
func MeterRate[T any](meter *RateMeter) core.Transformer[T, T] {
	return Watch(func(context.Context) core.Hooks[T] {
		return core.Hooks[T]{OnNext: func(T) { meter.Add(1) }}
	})
}

// Histogram tracks the distribution of values.
type Histogram[T comparable] struct {
	mu     sync.RWMutex
	counts map[T]int64
	total  int64
}

// NewHistogram creates an empty histogram.
func NewHistogram[T comparable]() *Histogram[T] {
	return &Histogram[T]{counts: make(map[T]int64)}
}

// Add records a value.
func (h *Histogram[T]) Add(value T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counts[value]++
	h.total++
}

// Count returns the count for value.
func (h *Histogram[T]) Count(value T) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.counts[value]
}

// Total returns the number of values recorded.
func (h *Histogram[T]) Total() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// Counts returns a copy of all counts.
func (h *Histogram[T]) Counts() map[T]int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[T]int64, len(h.counts))
	for k, v := range h.counts {
		out[k] = v
	}
	return out
}

// MeterHistogram records every value in histogram.
func MeterHistogram[T comparable](histogram *Histogram[T]) core.Transformer[T, T] {
	return Watch(func(context.Context) core.Hooks[T] {
		return core.Hooks[T]{OnNext: histogram.Add}
	})
}
