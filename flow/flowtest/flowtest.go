// Package flowtest provides test doubles for exercising publishers and
// operators: a Recorder subscriber that checks the request protocol while it
// records signals, and a Source publisher driven by hand.
package flowtest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lguimbarda/min-rx/flow/core"
)

// DefaultWait bounds every Await helper.
const DefaultWait = 2 * time.Second

// Recorder is a Subscriber that records what it receives. It counts its own
// requests and flags any value delivered beyond them, any signal after a
// terminal one and any second OnSubscribe as a violation.
type Recorder[T any] struct {
	mu         sync.Mutex
	sub        core.Subscription
	initial    int64
	requested  int64
	values     []T
	err        error
	completed  bool
	subscribed int
	violations []string

	changed  chan struct{}
	terminal chan struct{}
}

// NewRecorder creates a Recorder that requests initial values on subscribe.
// Zero requests nothing; core.Unbounded disables backpressure.
func NewRecorder[T any](initial int64) *Recorder[T] {
	return &Recorder[T]{
		initial:  initial,
		changed:  make(chan struct{}, 1),
		terminal: make(chan struct{}),
	}
}

// Subscribe subscribes a new Recorder to p.
func Subscribe[T any](ctx context.Context, p core.Publisher[T], initial int64) *Recorder[T] {
	r := NewRecorder[T](initial)
	p.Subscribe(ctx, r)
	return r
}

func (r *Recorder[T]) OnSubscribe(s core.Subscription) {
	r.mu.Lock()
	r.subscribed++
	if r.subscribed > 1 {
		r.violate("OnSubscribe called %d times", r.subscribed)
		r.mu.Unlock()
		return
	}
	r.sub = s
	r.mu.Unlock()
	if r.initial > 0 {
		r.Request(r.initial)
	}
}

func (r *Recorder[T]) OnNext(v T) {
	r.mu.Lock()
	if r.isTerminated() {
		r.violate("OnNext(%v) after terminal signal", v)
	}
	if r.requested != core.Unbounded {
		if r.requested <= 0 {
			r.violate("OnNext(%v) without outstanding demand", v)
		} else {
			r.requested--
		}
	}
	r.values = append(r.values, v)
	r.mu.Unlock()
	r.notify()
}

func (r *Recorder[T]) OnError(err error) {
	r.mu.Lock()
	if r.isTerminated() {
		r.violate("OnError(%v) after terminal signal", err)
		r.mu.Unlock()
		return
	}
	r.err = err
	close(r.terminal)
	r.mu.Unlock()
	r.notify()
}

func (r *Recorder[T]) OnComplete() {
	r.mu.Lock()
	if r.isTerminated() {
		r.violate("OnComplete after terminal signal")
		r.mu.Unlock()
		return
	}
	r.completed = true
	close(r.terminal)
	r.mu.Unlock()
	r.notify()
}

func (r *Recorder[T]) isTerminated() bool {
	return r.err != nil || r.completed
}

func (r *Recorder[T]) violate(format string, args ...any) {
	r.violations = append(r.violations, fmt.Sprintf(format, args...))
}

func (r *Recorder[T]) notify() {
	select {
	case r.changed <- struct{}{}:
	default:
	}
}

// Request asks the subscription for n more values.
func (r *Recorder[T]) Request(n int64) {
	r.mu.Lock()
	s := r.sub
	if n > 0 {
		r.requested = core.AddCap(r.requested, n)
	}
	r.mu.Unlock()
	if s != nil {
		s.Request(n)
	}
}

// Cancel cancels the subscription.
func (r *Recorder[T]) Cancel() {
	r.mu.Lock()
	s := r.sub
	r.mu.Unlock()
	if s != nil {
		s.Cancel()
	}
}

// Values returns a copy of the values received so far.
func (r *Recorder[T]) Values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.values...)
}

// Err returns the error received, if any.
func (r *Recorder[T]) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Completed reports whether OnComplete was received.
func (r *Recorder[T]) Completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}

// Terminated reports whether a terminal signal was received.
func (r *Recorder[T]) Terminated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isTerminated()
}

// Subscribed reports whether OnSubscribe was received.
func (r *Recorder[T]) Subscribed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subscribed > 0
}

// Violations returns the protocol violations observed.
func (r *Recorder[T]) Violations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.violations...)
}

// AssertClean fails t if any protocol violation was observed.
func (r *Recorder[T]) AssertClean(t testing.TB) {
	t.Helper()
	if v := r.Violations(); len(v) > 0 {
		t.Errorf("protocol violations: %v", v)
	}
}

// AwaitTerminal waits for a terminal signal.
func (r *Recorder[T]) AwaitTerminal(t testing.TB) {
	t.Helper()
	select {
	case <-r.terminal:
	case <-time.After(DefaultWait):
		t.Fatalf("no terminal signal after %v (values: %v)", DefaultWait, r.Values())
	}
}

// AwaitCount waits until at least n values were received.
func (r *Recorder[T]) AwaitCount(t testing.TB, n int) {
	t.Helper()
	deadline := time.After(DefaultWait)
	for {
		r.mu.Lock()
		got := len(r.values)
		done := r.isTerminated()
		r.mu.Unlock()
		if got >= n {
			return
		}
		if done {
			t.Fatalf("terminated with %d values, wanted %d", got, n)
		}
		select {
		case <-r.changed:
		case <-deadline:
			t.Fatalf("got %d values after %v, wanted %d", got, DefaultWait, n)
		}
	}
}

// Source is a Publisher driven by hand. It accepts any number of
// subscribers, records their requests and cancellations, and delivers the
// values pushed with Next to every live subscriber without checking demand,
// which lets tests provoke protocol violations on purpose.
type Source[T any] struct {
	mu   sync.Mutex
	subs []*SourceSubscription[T]
}

// NewSource creates an empty Source.
func NewSource[T any]() *Source[T] {
	return &Source[T]{}
}

// SourceSubscription is one subscription to a Source.
type SourceSubscription[T any] struct {
	mu        sync.Mutex
	down      core.Subscriber[T]
	requested int64
	requests  []int64
	cancels   int
}

func (s *SourceSubscription[T]) Request(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, n)
	if n > 0 {
		s.requested = core.AddCap(s.requested, n)
	}
}

func (s *SourceSubscription[T]) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
}

// Requested returns the total demand received, saturated at core.Unbounded.
func (s *SourceSubscription[T]) Requested() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requested
}

// Requests returns every individual Request argument.
func (s *SourceSubscription[T]) Requests() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.requests...)
}

// Cancels returns how many times Cancel was called.
func (s *SourceSubscription[T]) Cancels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels
}

// Cancelled reports whether Cancel was called at least once.
func (s *SourceSubscription[T]) Cancelled() bool { return s.Cancels() > 0 }

func (p *Source[T]) Subscribe(_ context.Context, s core.Subscriber[T]) {
	sub := &SourceSubscription[T]{down: s}
	p.mu.Lock()
	p.subs = append(p.subs, sub)
	p.mu.Unlock()
	s.OnSubscribe(sub)
}

// Subscriptions returns the number of subscriptions made so far.
func (p *Source[T]) Subscriptions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Sub returns the i-th subscription.
func (p *Source[T]) Sub(i int) *SourceSubscription[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subs[i]
}

// Last returns the most recent subscription, or nil.
func (p *Source[T]) Last() *SourceSubscription[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.subs) == 0 {
		return nil
	}
	return p.subs[len(p.subs)-1]
}

func (p *Source[T]) live() []*SourceSubscription[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*SourceSubscription[T]
	for _, s := range p.subs {
		if !s.Cancelled() {
			out = append(out, s)
		}
	}
	return out
}

// Next delivers values to every live subscriber.
func (p *Source[T]) Next(values ...T) {
	for _, s := range p.live() {
		for _, v := range values {
			s.down.OnNext(v)
		}
	}
}

// Error delivers err to every live subscriber.
func (p *Source[T]) Error(err error) {
	for _, s := range p.live() {
		s.down.OnError(err)
	}
}

// Complete completes every live subscriber.
func (p *Source[T]) Complete() {
	for _, s := range p.live() {
		s.down.OnComplete()
	}
}
