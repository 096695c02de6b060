package core

import (
	"context"
)

// Hooks holds typed observation callbacks for a stream.
// All fields are optional - nil means no observation for that event.
// Hooks are invoked synchronously inside the observing operator, so they
// should be fast to avoid stalling the pipeline.
type Hooks[T any] struct {
	OnSubscribe func()      // Upstream subscription established
	OnRequest   func(int64) // Downstream requested n values
	OnNext      func(T)     // Value delivered
	OnError     func(error) // Stream failed
	OnComplete  func()      // Stream completed
	OnCancel    func()      // Downstream cancelled
}

// hooksKey is unexported to prevent collisions with user context keys.
type hooksKey[T any] struct{}

// hooksContainer holds multiple hook sets for FIFO invocation.
type hooksContainer[T any] struct {
	hookSets []*Hooks[T]
}

// WithHooks attaches typed hooks to the context.
// Multiple calls to WithHooks compose in FIFO order - hooks from earlier
// calls are invoked before hooks from later calls.
//
// Example:
//
//	ctx := core.WithHooks(ctx, core.Hooks[int]{
//	    OnNext: func(v int) { log.Printf("value: %d", v) },
//	})
func WithHooks[T any](ctx context.Context, hooks Hooks[T]) context.Context {
	if ctx == nil {
		panic("nil context")
	}

	existing := getHooksContainer[T](ctx)
	if existing == nil {
		return context.WithValue(ctx, hooksKey[T]{}, &hooksContainer[T]{
			hookSets: []*Hooks[T]{&hooks},
		})
	}

	newContainer := &hooksContainer[T]{
		hookSets: make([]*Hooks[T], len(existing.hookSets)+1),
	}
	copy(newContainer.hookSets, existing.hookSets)
	newContainer.hookSets[len(existing.hookSets)] = &hooks

	return context.WithValue(ctx, hooksKey[T]{}, newContainer)
}

// getHooksContainer retrieves the hooks container from context.
// Returns nil if no hooks are registered for type T.
func getHooksContainer[T any](ctx context.Context) *hooksContainer[T] {
	if ctx == nil {
		return nil
	}
	if c, ok := ctx.Value(hooksKey[T]{}).(*hooksContainer[T]); ok {
		return c
	}
	return nil
}

// hookInvoker wraps a hooks container for efficient invocation.
// It caches whether specific hook types exist to avoid repeated nil checks.
type hookInvoker[T any] struct {
	container    *hooksContainer[T]
	hasSubscribe bool
	hasRequest   bool
	hasNext      bool
	hasError     bool
	hasComplete  bool
	hasCancel    bool
}

// newHookInvoker creates a hook invoker for the given context. It should be
// called once per subscription to cache hook existence flags.
func newHookInvoker[T any](ctx context.Context) *hookInvoker[T] {
	container := getHooksContainer[T](ctx)
	if container == nil {
		return &hookInvoker[T]{}
	}

	invoker := &hookInvoker[T]{container: container}
	for _, h := range container.hookSets {
		invoker.hasSubscribe = invoker.hasSubscribe || h.OnSubscribe != nil
		invoker.hasRequest = invoker.hasRequest || h.OnRequest != nil
		invoker.hasNext = invoker.hasNext || h.OnNext != nil
		invoker.hasError = invoker.hasError || h.OnError != nil
		invoker.hasComplete = invoker.hasComplete || h.OnComplete != nil
		invoker.hasCancel = invoker.hasCancel || h.OnCancel != nil
	}
	return invoker
}

func (h *hookInvoker[T]) invokeSubscribe() {
	if !h.hasSubscribe {
		return
	}
	for _, hooks := range h.container.hookSets {
		if hooks.OnSubscribe != nil {
			hooks.OnSubscribe()
		}
	}
}

func (h *hookInvoker[T]) invokeRequest(n int64) {
	if !h.hasRequest {
		return
	}
	for _, hooks := range h.container.hookSets {
		if hooks.OnRequest != nil {
			hooks.OnRequest(n)
		}
	}
}

func (h *hookInvoker[T]) invokeNext(value T) {
	if !h.hasNext {
		return
	}
	for _, hooks := range h.container.hookSets {
		if hooks.OnNext != nil {
			hooks.OnNext(value)
		}
	}
}

func (h *hookInvoker[T]) invokeError(err error) {
	if !h.hasError {
		return
	}
	for _, hooks := range h.container.hookSets {
		if hooks.OnError != nil {
			hooks.OnError(err)
		}
	}
}

func (h *hookInvoker[T]) invokeComplete() {
	if !h.hasComplete {
		return
	}
	for _, hooks := range h.container.hookSets {
		if hooks.OnComplete != nil {
			hooks.OnComplete()
		}
	}
}

func (h *hookInvoker[T]) invokeCancel() {
	if !h.hasCancel {
		return
	}
	for _, hooks := range h.container.hookSets {
		if hooks.OnCancel != nil {
			hooks.OnCancel()
		}
	}
}

// hasAny returns true if there are any hooks registered.
func (h *hookInvoker[T]) hasAny() bool {
	return h.container != nil
}

// Observe creates a pass-through Transformer that invokes the hooks
// registered in the subscribe context for type T on every signal, request
// and cancel.
func Observe[T any]() Transformer[T, T] {
	return Lift[T, T](func(ctx context.Context, down Subscriber[T]) Subscriber[T] {
		hooks := newHookInvoker[T](ctx)
		if !hooks.hasAny() {
			return down
		}
		return &observer[T]{down: down, hooks: hooks}
	})
}

// observer sits between two subscribers without an Operator of its own:
// it adds no demand accounting and relays every call synchronously.
type observer[T any] struct {
	down  Subscriber[T]
	up    Subscription
	hooks *hookInvoker[T]
}

func (ob *observer[T]) OnSubscribe(s Subscription) {
	ob.up = s
	ob.hooks.invokeSubscribe()
	ob.down.OnSubscribe(ob)
}

func (ob *observer[T]) OnNext(v T) {
	ob.hooks.invokeNext(v)
	ob.down.OnNext(v)
}

func (ob *observer[T]) OnError(err error) {
	ob.hooks.invokeError(err)
	ob.down.OnError(err)
}

func (ob *observer[T]) OnComplete() {
	ob.hooks.invokeComplete()
	ob.down.OnComplete()
}

func (ob *observer[T]) Request(n int64) {
	ob.hooks.invokeRequest(n)
	ob.up.Request(n)
}

func (ob *observer[T]) Cancel() {
	ob.hooks.invokeCancel()
	ob.up.Cancel()
}

// SafeHooks wraps Hooks[T] to recover from panics in hook functions.
// Use this when hooks are user-provided and panics should not crash the pipeline.
type SafeHooks[T any] struct {
	Hooks[T]
	panicHandler func(any)
}

// NewSafeHooks creates SafeHooks from regular Hooks.
// If panicHandler is nil, panics are silently recovered.
func NewSafeHooks[T any](hooks Hooks[T], panicHandler func(any)) SafeHooks[T] {
	if panicHandler == nil {
		panicHandler = func(any) {}
	}

	safe := SafeHooks[T]{panicHandler: panicHandler}
	guard := func(fn func()) {
		defer func() {
			if r := recover(); r != nil {
				safe.panicHandler(r)
			}
		}()
		fn()
	}

	if hooks.OnSubscribe != nil {
		original := hooks.OnSubscribe
		safe.OnSubscribe = func() { guard(original) }
	}
	if hooks.OnRequest != nil {
		original := hooks.OnRequest
		safe.OnRequest = func(n int64) { guard(func() { original(n) }) }
	}
	if hooks.OnNext != nil {
		original := hooks.OnNext
		safe.OnNext = func(v T) { guard(func() { original(v) }) }
	}
	if hooks.OnError != nil {
		original := hooks.OnError
		safe.OnError = func(err error) { guard(func() { original(err) }) }
	}
	if hooks.OnComplete != nil {
		original := hooks.OnComplete
		safe.OnComplete = func() { guard(original) }
	}
	if hooks.OnCancel != nil {
		original := hooks.OnCancel
		safe.OnCancel = func() { guard(original) }
	}

	return safe
}

// WithSafeHooks is a convenience function that wraps hooks with panic recovery
// before attaching them to the context.
func WithSafeHooks[T any](ctx context.Context, hooks Hooks[T], panicHandler func(any)) context.Context {
	safe := NewSafeHooks(hooks, panicHandler)
	return WithHooks(ctx, safe.Hooks)
}
