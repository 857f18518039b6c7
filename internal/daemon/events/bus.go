package events

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"

	ferrors "git.home.luguber.info/inful/ghsync/internal/foundation/errors"
)

// Bus is a typed, in-process fan-out of daemon events.
//
// Publish blocks until every matching subscriber accepted the event or ctx is
// done, so a slow consumer applies backpressure to the sync queue. Close closes
// every subscription channel. Nothing here is durable; the sync journal in
// internal/eventstore is the persistent record.
type Bus struct {
	mu     sync.RWMutex
	subs   map[reflect.Type]map[uint64]*subscription
	nextID atomic.Uint64
	closed atomic.Bool
	once   sync.Once
}

type subscription struct {
	deliver func(ctx context.Context, evt any) error
	done    func()
}

func NewBus() *Bus {
	return &Bus{subs: make(map[reflect.Type]map[uint64]*subscription)}
}

// Subscribe returns a channel receiving events of type T and an unsubscribe
// func. When T is an interface every event implementing it is delivered.
func Subscribe[T any](b *Bus, buffer int) (<-chan T, func()) {
	key := reflect.TypeFor[T]()
	ch := make(chan T, buffer)

	var closeOnce sync.Once
	closeCh := func() { closeOnce.Do(func() { close(ch) }) }

	if b.closed.Load() {
		closeCh()
		return ch, func() {}
	}

	sub := &subscription{
		deliver: func(ctx context.Context, evt any) error {
			v, ok := evt.(T)
			if !ok {
				return ferrors.InternalError("event type mismatch").
					WithContext("expected", key.String()).
					WithContext("actual", reflect.TypeOf(evt).String()).
					Build()
			}
			select {
			case ch <- v:
				return nil
			case <-ctx.Done():
				return ferrors.WrapError(ctx.Err(), ferrors.CategoryDaemon, "event publish canceled").
					WithContext("event_type", key.String()).
					Build()
			}
		},
		done: closeCh,
	}

	id := b.nextID.Add(1)
	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		closeCh()
		return ch, func() {}
	}
	if b.subs[key] == nil {
		b.subs[key] = make(map[uint64]*subscription)
	}
	b.subs[key][id] = sub
	b.mu.Unlock()

	var unsubOnce sync.Once
	return ch, func() {
		unsubOnce.Do(func() {
			b.mu.Lock()
			if set, ok := b.subs[key]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(b.subs, key)
				}
			}
			b.mu.Unlock()
			closeCh()
		})
	}
}

// SubscriberCount returns the number of active subscriptions for T.
func SubscriberCount[T any](b *Bus) int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[reflect.TypeFor[T]()])
}

// Publish delivers evt to all matching subscribers.
func (b *Bus) Publish(ctx context.Context, evt any) error {
	if evt == nil {
		return ferrors.ValidationError("event cannot be nil").Build()
	}
	if ctx == nil {
		return ferrors.ValidationError("context cannot be nil").Build()
	}
	if b.closed.Load() {
		return ferrors.DaemonError("event bus is closed").Build()
	}

	for _, s := range b.targets(reflect.TypeOf(evt)) {
		if err := s.deliver(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) targets(evtType reflect.Type) []*subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*subscription
	for key, set := range b.subs {
		if key != evtType && (key.Kind() != reflect.Interface || !evtType.Implements(key)) {
			continue
		}
		for _, s := range set {
			out = append(out, s)
		}
	}
	return out
}

// Close closes the bus and all subscription channels. Safe to call twice.
func (b *Bus) Close() {
	b.once.Do(func() {
		b.closed.Store(true)
		b.mu.Lock()
		all := b.subs
		b.subs = make(map[reflect.Type]map[uint64]*subscription)
		b.mu.Unlock()
		for _, set := range all {
			for _, s := range set {
				s.done()
			}
		}
	})
}
