package xevent

import (
	"context"
	"reflect"
)

// MethodInfo describes one handler of a precomputed index entry. Invoke calls the handler
// without reflection; subscriber is the registered value and event the (projected) event.
type MethodInfo struct {
	Name      string
	EventType reflect.Type
	Mode      ThreadMode
	Priority  int
	Sticky    bool
	Invoke    func(ctx context.Context, subscriber, event any) error
}

// SubscriberInfo is a precomputed description of a subscriber type's handlers.
type SubscriberInfo struct {
	Type    reflect.Type
	Methods []MethodInfo
	// CheckEmbedded marks an entry that lists only the type's own handlers. Handlers promoted
	// from embedded types are then discovered by reflection.
	CheckEmbedded bool
}

// SubscriberInfoIndex supplies precomputed handler tables, usually generated at build time.
type SubscriberInfoIndex interface {
	SubscriberInfo(t reflect.Type) (*SubscriberInfo, bool)
}

// MapIndex is a SubscriberInfoIndex backed by a map, convenient for generated or hand-written tables.
type MapIndex map[reflect.Type]*SubscriberInfo

func (m MapIndex) SubscriberInfo(t reflect.Type) (*SubscriberInfo, bool) {
	info, ok := m[t]
	return info, ok && info != nil
}

// Add stores info under its Type and returns the index for chaining.
func (m MapIndex) Add(info *SubscriberInfo) MapIndex {
	if info != nil && info.Type != nil {
		m[info.Type] = info
	}
	return m
}

// IndexFunc adapts a function to SubscriberInfoIndex.
type IndexFunc func(t reflect.Type) (*SubscriberInfo, bool)

func (f IndexFunc) SubscriberInfo(t reflect.Type) (*SubscriberInfo, bool) { return f(t) }
