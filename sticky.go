package xevent

import (
	"reflect"
	"sync"
)

// stickyStore keeps the most recent sticky event per exact type.
type stickyStore struct {
	mu     sync.RWMutex
	events map[reflect.Type]any
}

func newStickyStore() *stickyStore {
	return &stickyStore{events: make(map[reflect.Type]any)}
}

func (s *stickyStore) put(event any) {
	s.mu.Lock()
	s.events[reflect.TypeOf(event)] = event
	s.mu.Unlock()
}

func (s *stickyStore) get(t reflect.Type) (any, bool) {
	s.mu.RLock()
	e, ok := s.events[t]
	s.mu.RUnlock()
	return e, ok
}

func (s *stickyStore) remove(t reflect.Type) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[t]
	if ok {
		delete(s.events, t)
	}
	return e, ok
}

// removeValue deletes the entry for event's type only if it still holds an equal value.
func (s *stickyStore) removeValue(event any) bool {
	t := reflect.TypeOf(event)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.events[t]
	if !ok || !sameEvent(cur, event) {
		return false
	}
	delete(s.events, t)
	return true
}

func (s *stickyStore) clear() {
	s.mu.Lock()
	s.events = make(map[reflect.Type]any)
	s.mu.Unlock()
}

func (s *stickyStore) snapshot() map[reflect.Type]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[reflect.Type]any, len(s.events))
	for t, e := range s.events {
		out[t] = e
	}
	return out
}

// sameEvent compares with == where the dynamic type allows it, deep equality otherwise.
func sameEvent(a, b any) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta != nil && ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
