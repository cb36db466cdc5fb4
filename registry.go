package xevent

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// subscription binds a subscriber value to one of its handler methods.
type subscription struct {
	id         string
	subscriber any
	method     *SubscriberMethod
	// active is cleared on unregister so queued deliveries are dropped.
	active atomic.Bool
}

func newSubscription(subscriber any, m *SubscriberMethod) *subscription {
	s := &subscription{
		id:         uuid.NewString(),
		subscriber: subscriber,
		method:     m,
	}
	s.active.Store(true)
	return s
}

// registry maps event types to priority-ordered subscriptions and subscribers to their
// bound event types. Per-type slices are copy-on-write so readers can iterate snapshots.
type registry struct {
	mu           sync.RWMutex
	byEventType  map[reflect.Type][]*subscription
	bySubscriber map[any][]reflect.Type
}

func newRegistry() *registry {
	return &registry{
		byEventType:  make(map[reflect.Type][]*subscription),
		bySubscriber: make(map[any][]reflect.Type),
	}
}

// add binds every method of subscriber or nothing at all.
func (r *registry) add(subscriber any, methods []*SubscriberMethod) ([]*subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bound := r.bySubscriber[subscriber]
	for _, m := range methods {
		for _, t := range bound {
			if t == m.EventType {
				return nil, &DuplicateSubscriptionError{
					SubscriberType: reflect.TypeOf(subscriber),
					EventType:      m.EventType,
				}
			}
		}
	}

	added := make([]*subscription, 0, len(methods))
	for _, m := range methods {
		sub := newSubscription(subscriber, m)
		r.byEventType[m.EventType] = insertByPriority(r.byEventType[m.EventType], sub)
		if !containsType(bound, m.EventType) {
			bound = append(bound, m.EventType)
		}
		added = append(added, sub)
	}
	r.bySubscriber[subscriber] = bound
	return added, nil
}

// insertByPriority returns a new slice with sub placed after every entry of equal or higher priority.
func insertByPriority(subs []*subscription, sub *subscription) []*subscription {
	pos := len(subs)
	for i, s := range subs {
		if sub.method.Priority > s.method.Priority {
			pos = i
			break
		}
	}
	out := make([]*subscription, 0, len(subs)+1)
	out = append(out, subs[:pos]...)
	out = append(out, sub)
	out = append(out, subs[pos:]...)
	return out
}

// remove unbinds subscriber entirely and deactivates its subscriptions. It reports whether
// the subscriber was registered.
func (r *registry) remove(subscriber any) ([]*subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	types, ok := r.bySubscriber[subscriber]
	if !ok {
		return nil, false
	}
	var removed []*subscription
	for _, t := range types {
		subs := r.byEventType[t]
		kept := make([]*subscription, 0, len(subs))
		for _, s := range subs {
			if s.subscriber == subscriber {
				s.active.Store(false)
				removed = append(removed, s)
				continue
			}
			kept = append(kept, s)
		}
		if len(kept) == 0 {
			delete(r.byEventType, t)
		} else {
			r.byEventType[t] = kept
		}
	}
	delete(r.bySubscriber, subscriber)
	return removed, true
}

// subscriptionsFor returns an immutable snapshot for t.
func (r *registry) subscriptionsFor(t reflect.Type) []*subscription {
	r.mu.RLock()
	subs := r.byEventType[t]
	r.mu.RUnlock()
	return subs
}

func (r *registry) isRegistered(subscriber any) bool {
	r.mu.RLock()
	_, ok := r.bySubscriber[subscriber]
	r.mu.RUnlock()
	return ok
}

func (r *registry) hasSubscriptions(t reflect.Type) bool {
	r.mu.RLock()
	n := len(r.byEventType[t])
	r.mu.RUnlock()
	return n > 0
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, subs := range r.byEventType {
		n += len(subs)
	}
	return n
}

func containsType(types []reflect.Type, t reflect.Type) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}
