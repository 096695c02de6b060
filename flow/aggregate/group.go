package aggregate

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/lguimbarda/min-rx/flow/core"
)

// Group is the sub-stream of values sharing one key. It is a hot Publisher
// that accepts a single subscriber; values arriving before the subscriber
// requests them are held up to the environment capacity.
type Group[K comparable, T any] struct {
	key    K
	stream *unicast[T]
}

// Key returns the key shared by every value of the group.
func (g *Group[K, T]) Key() K { return g.key }

// Subscribe attaches the group's only subscriber. Later subscribers fail
// with ErrAlreadySubscribed.
func (g *Group[K, T]) Subscribe(ctx context.Context, s core.Subscriber[T]) {
	g.stream.Subscribe(ctx, s)
}

// GroupBy splits the stream by keyFn. A Group is emitted when the first
// value of its key arrives and lives until the stream terminates: groups
// complete when the upstream completes and fail when it fails. Cancelling a
// group's subscription drops its later values without affecting the others.
//
// GroupBy requests everything from the upstream once downstream asks for
// the first group, because a value for an existing group does not consume
// downstream demand.
func GroupBy[T any, K comparable](keyFn func(T) K) core.Transformer[T, *Group[K, T]] {
	return groupBy(keyFn)
}

func groupBy[T any, K comparable](keyFn func(T) K) core.Lift[T, *Group[K, T]] {
	return core.Lift[T, *Group[K, T]](func(ctx context.Context, down core.Subscriber[*Group[K, T]]) core.Subscriber[T] {
		o := core.NewOperator[T, *Group[K, T]](ctx, down)
		capacity := o.Env().Capacity
		groups := make(map[K]*Group[K, T])

		o.Requested = func(int64) { o.RequestUpstream(core.Unbounded) }
		o.Next = func(v T) {
			k, err := core.Protect1(func() (K, error) { return keyFn(v), nil })
			if err != nil {
				o.Fail(err)
				return
			}
			g, ok := groups[k]
			if !ok {
				g = &Group[K, T]{key: k, stream: newUnicast[T](capacity, nil)}
				groups[k] = g
				if !o.Emit(g) {
					return
				}
				o.Logger().Debug().Str("key", fmt.Sprint(k)).Int("groups", len(groups)).Msg("opened group")
			}
			g.stream.next(v)
		}
		o.Completed = func() {
			for _, g := range groups {
				g.stream.complete()
			}
			o.Complete()
		}
		o.Failed = func(err error) {
			for _, g := range groups {
				g.stream.fail(err)
			}
			o.Error(err)
		}
		o.Release = func() {
			for _, g := range groups {
				g.stream.complete()
			}
			clear(groups)
		}
		return o
	})
}

// Partition routes every value to one of n groups keyed 0..n-1 by
// keyFn(v) mod n. A nil keyFn uses HashKey. Like GroupBy, a partition is
// emitted when its first value arrives.
func Partition[T any](n int, keyFn func(T) int) core.Transformer[T, *Group[int, T]] {
	if keyFn == nil {
		keyFn = HashKey[T]
	}
	route := func(v T) int {
		k := keyFn(v) % n
		if k < 0 {
			k += n
		}
		return k
	}
	return core.Lift[T, *Group[int, T]](func(ctx context.Context, down core.Subscriber[*Group[int, T]]) core.Subscriber[T] {
		if n <= 0 {
			return core.Refuse[T](ctx, down, ErrInvalidSize)
		}
		return groupBy(route)(ctx, down)
	})
}

// HashKey hashes the default string form of v with FNV-1a.
func HashKey[T any](v T) int {
	h := fnv.New32a()
	fmt.Fprint(h, v)
	return int(h.Sum32() & 0x7fffffff)
}
