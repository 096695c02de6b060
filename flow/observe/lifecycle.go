package observe

import (
	"context"
	"sync"

	"github.com/lguimbarda/min-rx/flow/core"
)

// Termination tells how a subscription ended.
type Termination uint8

const (
	Completed Termination = iota
	Failed
	Cancelled
)

func (t Termination) String() string {
	switch t {
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// DoOnSubscribe runs fn when the upstream subscription is established.
func DoOnSubscribe[T any](fn func()) core.Transformer[T, T] {
	return Watch(func(context.Context) core.Hooks[T] {
		return core.Hooks[T]{OnSubscribe: fn}
	})
}

// DoOnRequest runs fn with every downstream request.
func DoOnRequest[T any](fn func(n int64)) core.Transformer[T, T] {
	return Watch(func(context.Context) core.Hooks[T] {
		return core.Hooks[T]{OnRequest: fn}
	})
}

// DoOnCancel runs fn when the downstream cancels.
func DoOnCancel[T any](fn func()) core.Transformer[T, T] {
	return Watch(func(context.Context) core.Hooks[T] {
		return core.Hooks[T]{OnCancel: fn}
	})
}

// DoOnComplete runs fn when the stream completes.
func DoOnComplete[T any](fn func()) core.Transformer[T, T] {
	return Watch(func(context.Context) core.Hooks[T] {
		return core.Hooks[T]{OnComplete: fn}
	})
}

// DoOnError runs fn with the error that fails the stream.
func DoOnError[T any](fn func(error)) core.Transformer[T, T] {
	return Watch(func(context.Context) core.Hooks[T] {
		return core.Hooks[T]{OnError: fn}
	})
}

// DoFinally runs fn once per subscription, after completion, failure or
// the first cancel, whichever comes first.
func DoFinally[T any](fn func(Termination)) core.Transformer[T, T] {
	return Watch(func(context.Context) core.Hooks[T] {
		var once sync.Once
		end := func(t Termination) func() {
			return func() { once.Do(func() { fn(t) }) }
		}
		return core.Hooks[T]{
			OnError:    func(error) { end(Failed)() },
			OnComplete: end(Completed),
			OnCancel:   end(Cancelled),
		}
	})
}
