package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// DispatchOn moves delivery of every signal, OnSubscribe included, onto
// lane. Signals keep their arrival order even when the lane itself does not
// guarantee ordering: they are queued in FIFO order and each submitted task
// delivers the oldest queued signal inside a Serializer. Requests and cancellation are
// forwarded upstream on the caller's goroutine.
func DispatchOn[T any](lane Lane) Transformer[T, T] {
	return Lift[T, T](func(ctx context.Context, down Subscriber[T]) Subscriber[T] {
		return &dispatcher[T]{down: down, lane: lane, log: zerolog.Ctx(ctx)}
	})
}

type dispatcher[T any] struct {
	down   Subscriber[T]
	lane   Lane
	log    *zerolog.Logger
	serial Serializer

	mu      sync.Mutex
	up      Subscription
	pending []func()
	closed  bool

	// started is only touched inside serial.
	started bool
}

func (d *dispatcher[T]) OnSubscribe(s Subscription) {
	d.mu.Lock()
	d.up = s
	d.pending = append(d.pending, d.start)
	d.mu.Unlock()
	d.submit(d.deliverOne)
}

func (d *dispatcher[T]) start() {
	if !d.started {
		d.started = true
		d.down.OnSubscribe(d)
	}
}

func (d *dispatcher[T]) OnNext(v T) { d.push(Next(v)) }

func (d *dispatcher[T]) OnError(err error) { d.push(Error[T](err)) }

func (d *dispatcher[T]) OnComplete() { d.push(Complete[T]()) }

func (d *dispatcher[T]) push(sig Signal[T]) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if sig.IsTerminal() {
		d.closed = true
	}
	d.pending = append(d.pending, func() { sig.Deliver(d.down) })
	d.mu.Unlock()
	d.submit(d.deliverOne)
}

func (d *dispatcher[T]) deliverOne() {
	d.mu.Lock()
	if len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	task := d.pending[0]
	d.pending = d.pending[1:]
	d.mu.Unlock()
	task()
}

func (d *dispatcher[T]) submit(task func()) {
	err := d.lane.Submit(func() { d.serial.Do(task) })
	if err == nil {
		return
	}
	d.log.Warn().Err(err).Msg("lane rejected task, failing the stream")
	d.mu.Lock()
	alreadyClosed := d.closed
	d.closed = true
	d.pending = nil
	up := d.up
	d.mu.Unlock()
	if up != nil {
		up.Cancel()
	}
	if !alreadyClosed {
		d.serial.Do(func() {
			d.start()
			d.down.OnError(err)
		})
	}
}

func (d *dispatcher[T]) Request(n int64) {
	d.mu.Lock()
	up := d.up
	d.mu.Unlock()
	up.Request(n)
}

func (d *dispatcher[T]) Cancel() {
	d.mu.Lock()
	d.closed = true
	d.pending = nil
	up := d.up
	d.mu.Unlock()
	up.Cancel()
}
