package core

import (
	"context"

	"github.com/rs/zerolog"
)

// Operator is the shared machinery of a pipeline stage. It mediates exactly
// one upstream Subscription and one downstream Subscriber, and takes care
// of the parts every stage has in common:
//
//   - demand bookkeeping in both directions, saturating at Unbounded;
//   - the terminal-once rule, in both directions;
//   - detection of protocol violations (values without demand);
//   - holding back output while downstream has no demand, bounded by the
//     environment capacity;
//   - idempotent cancellation and a single release of resources.
//
// Every event (upstream signal, downstream request or cancel, timer fire)
// runs inside the operator's Serializer, so variant code never needs a lock.
//
// Variants plug in through the Next/Completed/Failed/Requested/Release
// fields. A nil Completed or Failed propagates the signal unchanged; a nil
// Requested forwards the remaining demand upstream one to one. Requested
// also runs after the upstream terminated, for variants that hold other
// sources; RequestUpstream is a no-op by then.
type Operator[IN, OUT any] struct {
	Next      func(IN)
	Completed func()
	Failed    func(error)
	Requested func(n int64)
	Release   func()

	ctx      context.Context
	env      Environment
	log      *zerolog.Logger
	serial   Serializer
	down     Subscriber[OUT]
	capacity int

	up          Subscription
	upDemand    Demand
	upPending   int64
	upDone      bool
	upCancelled bool

	demand Demand
	queue  []OUT

	started    bool
	completing bool
	finished   bool
	cancelled  bool
	released   bool
}

// NewOperator creates an operator delivering to down. ctx is the subscribe
// context; its Environment and logger are used by the operator.
func NewOperator[IN, OUT any](ctx context.Context, down Subscriber[OUT]) *Operator[IN, OUT] {
	env := EnvironmentFrom(ctx)
	return &Operator[IN, OUT]{
		ctx:      ctx,
		env:      env,
		log:      zerolog.Ctx(ctx),
		down:     down,
		capacity: env.Capacity,
	}
}

// Context returns the subscribe context.
func (o *Operator[IN, OUT]) Context() context.Context { return o.ctx }

// Env returns the environment the operator runs with.
func (o *Operator[IN, OUT]) Env() Environment { return o.env }

// Logger returns the context logger.
func (o *Operator[IN, OUT]) Logger() *zerolog.Logger { return o.log }

// Do runs fn inside the operator's serial domain unless the operator has
// already delivered a terminal signal or been cancelled.
func (o *Operator[IN, OUT]) Do(fn func()) {
	o.serial.Do(func() {
		if o.finished || o.cancelled {
			return
		}
		fn()
	})
}

// Run is Do without the termination check, for callers that must react to
// a late signal themselves, such as cancelling a subscription that arrived
// after the operator terminated.
func (o *Operator[IN, OUT]) Run(fn func()) {
	o.serial.Do(fn)
}

// Upstream side: the operator is a Subscriber[IN].

func (o *Operator[IN, OUT]) OnSubscribe(s Subscription) {
	o.serial.Do(func() { o.HandleSubscribe(s) })
}

func (o *Operator[IN, OUT]) OnNext(v IN) {
	o.serial.Do(func() { o.HandleNext(v) })
}

func (o *Operator[IN, OUT]) OnError(err error) {
	o.serial.Do(func() { o.HandleError(err) })
}

func (o *Operator[IN, OUT]) OnComplete() {
	o.serial.Do(o.HandleComplete)
}

// HandleSubscribe is OnSubscribe for callers already inside the domain.
func (o *Operator[IN, OUT]) HandleSubscribe(s Subscription) {
	if o.cancelled || o.finished {
		s.Cancel()
		return
	}
	if o.up != nil {
		o.log.Warn().Msg("rejecting second upstream subscription")
		s.Cancel()
		return
	}
	o.up = s
	o.upCancelled = false
	o.Start()
	if o.upPending > 0 {
		n := o.upPending
		o.upPending = 0
		s.Request(n)
	}
}

// HandleNext is OnNext for callers already inside the domain.
func (o *Operator[IN, OUT]) HandleNext(v IN) {
	if o.upDone || o.finished || o.cancelled {
		o.log.Debug().Msg("dropping value received after termination")
		return
	}
	if !o.upDemand.Take() {
		o.Fail(protocolErr("value received without outstanding demand"))
		return
	}
	o.Next(v)
}

// HandleError is OnError for callers already inside the domain.
func (o *Operator[IN, OUT]) HandleError(err error) {
	if o.upDone {
		o.log.Warn().Err(err).Msg("dropping error received after a terminal signal")
		return
	}
	o.upDone = true
	if o.finished || o.cancelled {
		return
	}
	if o.Failed != nil {
		o.Failed(err)
		return
	}
	o.Error(err)
}

// HandleComplete is OnComplete for callers already inside the domain.
func (o *Operator[IN, OUT]) HandleComplete() {
	if o.upDone {
		o.log.Warn().Msg("dropping completion received after a terminal signal")
		return
	}
	o.upDone = true
	if o.finished || o.cancelled {
		return
	}
	if o.Completed != nil {
		o.Completed()
		return
	}
	o.Complete()
}

// Downstream side: the operator is the downstream's Subscription.

func (o *Operator[IN, OUT]) Request(n int64) {
	o.serial.Do(func() { o.handleRequest(n) })
}

func (o *Operator[IN, OUT]) Cancel() {
	o.serial.Do(o.handleCancel)
}

func (o *Operator[IN, OUT]) handleRequest(n int64) {
	if o.finished || o.cancelled {
		return
	}
	if n <= 0 {
		o.Fail(protocolErr("request(%d): demand must be positive", n))
		return
	}
	o.demand.Add(n)
	sent := o.drain()
	if o.finished {
		return
	}
	rem := n
	if n != Unbounded {
		rem = n - sent
	}
	if rem <= 0 {
		return
	}
	if o.Requested != nil {
		o.Requested(rem)
		return
	}
	o.RequestUpstream(rem)
}

func (o *Operator[IN, OUT]) handleCancel() {
	if o.cancelled {
		return
	}
	o.cancelled = true
	o.queue = nil
	o.CancelUpstream()
	o.release()
}

// Start delivers OnSubscribe downstream if that has not happened yet.
// Operators without a single upstream (merge, sources) call it themselves.
func (o *Operator[IN, OUT]) Start() {
	if o.started {
		return
	}
	o.started = true
	o.down.OnSubscribe(o)
}

// Emit delivers v downstream, or holds it back until demand arrives. It
// reports false when v was not accepted (terminated, or capacity exceeded).
func (o *Operator[IN, OUT]) Emit(v OUT) bool {
	if o.finished || o.cancelled || o.completing {
		return false
	}
	if len(o.queue) == 0 && o.demand.Take() {
		o.down.OnNext(v)
		return true
	}
	if len(o.queue) >= o.capacity {
		o.Fail(&OverflowError{Capacity: o.capacity})
		return false
	}
	o.queue = append(o.queue, v)
	return true
}

func (o *Operator[IN, OUT]) drain() int64 {
	var sent int64
	for len(o.queue) > 0 && !o.cancelled && o.demand.Take() {
		v := o.queue[0]
		var zero OUT
		o.queue[0] = zero
		o.queue = o.queue[1:]
		o.down.OnNext(v)
		sent++
	}
	if len(o.queue) == 0 {
		o.queue = nil
		if o.completing {
			o.completing = false
			o.finish()
			o.down.OnComplete()
		}
	}
	return sent
}

// Complete delivers Complete downstream once held-back output is drained.
func (o *Operator[IN, OUT]) Complete() {
	if o.finished || o.cancelled || o.completing {
		return
	}
	o.Start()
	o.CancelUpstream()
	if len(o.queue) > 0 {
		o.completing = true
		return
	}
	o.finish()
	o.down.OnComplete()
}

// Error delivers err downstream immediately, discarding held-back output,
// and cancels the upstream if it is still live.
func (o *Operator[IN, OUT]) Error(err error) {
	if o.finished || o.cancelled {
		return
	}
	o.Start()
	o.queue = nil
	o.completing = false
	o.CancelUpstream()
	o.finish()
	o.down.OnError(err)
}

// Fail is Error for failures raised by the operator itself, such as a user
// function returning an error.
func (o *Operator[IN, OUT]) Fail(err error) {
	o.Error(err)
}

func (o *Operator[IN, OUT]) finish() {
	o.finished = true
	o.release()
}

func (o *Operator[IN, OUT]) release() {
	if o.released {
		return
	}
	o.released = true
	if o.Release != nil {
		o.Release()
	}
}

// RequestUpstream asks the upstream for n more values. Before the upstream
// has subscribed the request is recorded and forwarded on OnSubscribe.
func (o *Operator[IN, OUT]) RequestUpstream(n int64) {
	if n <= 0 || o.upDone || o.upCancelled {
		return
	}
	o.upDemand.Add(n)
	if o.up == nil {
		o.upPending = AddCap(o.upPending, n)
		return
	}
	o.up.Request(n)
}

// CancelUpstream cancels the current upstream subscription once.
func (o *Operator[IN, OUT]) CancelUpstream() {
	if o.upCancelled || o.upDone {
		o.upCancelled = true
		return
	}
	o.upCancelled = true
	if o.up != nil {
		o.up.Cancel()
	}
}

// Detach cancels and forgets the current upstream so that a new one can be
// attached with HandleSubscribe. It returns the downstream demand that is
// still outstanding, which the caller replays on the new upstream.
func (o *Operator[IN, OUT]) Detach() int64 {
	if o.up != nil && !o.upDone && !o.upCancelled {
		o.up.Cancel()
	}
	o.up = nil
	o.upDone = false
	o.upCancelled = false
	o.upPending = 0
	o.upDemand.Reset()
	return o.demand.Get()
}

// Demand returns the downstream demand not yet satisfied.
func (o *Operator[IN, OUT]) Demand() int64 { return o.demand.Get() }

// UpstreamDemand returns what was requested upstream and not yet received.
func (o *Operator[IN, OUT]) UpstreamDemand() int64 { return o.upDemand.Get() }

// Pending returns the number of values held back for lack of demand.
func (o *Operator[IN, OUT]) Pending() int { return len(o.queue) }

// Terminated reports whether a terminal signal was delivered downstream or
// the downstream cancelled.
func (o *Operator[IN, OUT]) Terminated() bool { return o.finished || o.cancelled }

// Cancelled reports whether the downstream cancelled.
func (o *Operator[IN, OUT]) Cancelled() bool { return o.cancelled }

// UpstreamDone reports whether the upstream delivered a terminal signal.
func (o *Operator[IN, OUT]) UpstreamDone() bool { return o.upDone }
