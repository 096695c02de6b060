package flowerrors

import (
	"context"
	"sync"

	"github.com/lguimbarda/min-rx/flow/core"
)

// relay lets one operator read from a sequence of upstreams. Every
// attachment is a generation; signals from an older generation are dropped,
// so a swap is atomic with respect to values still in flight.
type relay[T any] struct {
	ctx context.Context
	op  *core.Operator[T, T]
	gen uint64
}

func newRelay[T any](ctx context.Context, down core.Subscriber[T]) *relay[T] {
	r := &relay[T]{ctx: ctx, op: core.NewOperator[T, T](ctx, down)}
	r.op.Next = func(v T) { r.op.Emit(v) }
	return r
}

// link returns the subscriber for the current generation.
func (r *relay[T]) link() core.Subscriber[T] {
	return &link[T]{r: r, gen: r.gen}
}

// retire makes every signal of the current generation stale.
func (r *relay[T]) retire() { r.gen++ }

// switchTo forgets the current upstream and subscribes p, replaying the
// downstream demand that is still outstanding. It runs in the domain.
func (r *relay[T]) switchTo(p core.Publisher[T]) {
	carry := r.op.Detach()
	r.retire()
	r.op.RequestUpstream(carry)
	p.Subscribe(r.ctx, r.link())
}

type link[T any] struct {
	r   *relay[T]
	gen uint64
}

func (l *link[T]) live() bool { return l.gen == l.r.gen }

func (l *link[T]) OnSubscribe(s core.Subscription) {
	l.r.op.Run(func() {
		if !l.live() {
			s.Cancel()
			return
		}
		l.r.op.HandleSubscribe(s)
	})
}

func (l *link[T]) OnNext(v T) {
	l.r.op.Do(func() {
		if l.live() {
			l.r.op.HandleNext(v)
		}
	})
}

func (l *link[T]) OnError(err error) {
	l.r.op.Do(func() {
		if l.live() {
			l.r.op.HandleError(err)
		}
	})
}

func (l *link[T]) OnComplete() {
	l.r.op.Do(func() {
		if l.live() {
			l.r.op.HandleComplete()
		}
	})
}

// controller drives RetryWhen and RepeatWhen. A terminal signal of the
// current upstream is pushed as a trigger of type E; the derived publisher
// built from the trigger stream answers with a value to resubscribe the
// root, an error to fail, or completion to complete.
type controller[T, E, S any] struct {
	*relay[T]
	root     core.Publisher[T]
	trigger  *core.Broadcaster[E]
	answers  *answers[T, E, S]
	awaiting bool
	attempts int
}

func subscribeControlled[T, E, S any](ctx context.Context, down core.Subscriber[T], root core.Publisher[T], fn func(core.Publisher[E]) core.Publisher[S]) *controller[T, E, S] {
	trigger := core.NewBroadcaster[E]()
	derived, err := core.Protect1(func() (core.Publisher[S], error) { return fn(trigger), nil })
	if err != nil {
		core.Fail[T](err).Subscribe(ctx, down)
		return nil
	}
	c := &controller[T, E, S]{relay: newRelay(ctx, down), root: root, trigger: trigger}
	c.answers = &answers[T, E, S]{c: c}
	c.op.Release = func() {
		c.retire()
		c.answers.cancel()
	}
	derived.Subscribe(ctx, c.answers)
	return c
}

// connect subscribes the root for the first time.
func (c *controller[T, E, S]) connect() {
	c.root.Subscribe(c.ctx, c.link())
}

// await parks the controller until the derived publisher answers.
func (c *controller[T, E, S]) await(trigger E) {
	c.awaiting = true
	c.retire()
	c.trigger.Next(trigger)
}

func (c *controller[T, E, S]) resubscribe() {
	if !c.awaiting {
		return
	}
	c.awaiting = false
	c.attempts++
	c.op.Logger().Debug().Int("attempt", c.attempts).Msg("resubscribing upstream")
	c.switchTo(c.root)
}

// answers observes the derived publisher one value at a time.
type answers[T, E, S any] struct {
	c *controller[T, E, S]

	mu        sync.Mutex
	sub       core.Subscription
	cancelled bool
}

func (a *answers[T, E, S]) OnSubscribe(s core.Subscription) {
	a.mu.Lock()
	if a.cancelled || a.sub != nil {
		a.mu.Unlock()
		s.Cancel()
		return
	}
	a.sub = s
	a.mu.Unlock()
	s.Request(1)
}

func (a *answers[T, E, S]) OnNext(S) {
	a.c.op.Do(a.c.resubscribe)
	a.mu.Lock()
	sub, cancelled := a.sub, a.cancelled
	a.mu.Unlock()
	if sub != nil && !cancelled {
		sub.Request(1)
	}
}

func (a *answers[T, E, S]) OnError(err error) {
	a.done()
	a.c.op.Do(func() { a.c.op.Error(err) })
}

func (a *answers[T, E, S]) OnComplete() {
	a.done()
	a.c.op.Do(a.c.op.Complete)
}

func (a *answers[T, E, S]) done() {
	a.mu.Lock()
	a.cancelled = true
	a.mu.Unlock()
}

func (a *answers[T, E, S]) cancel() {
	a.mu.Lock()
	if a.cancelled {
		a.mu.Unlock()
		return
	}
	a.cancelled = true
	sub := a.sub
	a.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}
