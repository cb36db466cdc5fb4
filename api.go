package xevent

import (
	"context"
	"reflect"
)

// API represents the complete xevent surface.
type API interface {
	Register(ctx context.Context, subscriber any) error
	Unregister(subscriber any)
	IsRegistered(subscriber any) bool
	Post(ctx context.Context, event any) error
	PostSticky(ctx context.Context, event any) error
	StickyEvent(t reflect.Type) (any, bool)
	RemoveStickyEvent(t reflect.Type) (any, bool)
	RemoveStickyEventValue(event any) bool
	RemoveAllStickyEvents()
	CancelEventDelivery(ctx context.Context, event any) error
	HasSubscriberForEvent(t reflect.Type) bool
	IsMainThread(ctx context.Context) bool
	ClearCaches()
	Close(ctx context.Context) error
	GetMetrics() Metrics
	ObserverStats() PoolStats
	Health(ctx context.Context) HealthStatus
	AddObserver(obs Observer)
	RemoveObserver(obs Observer)
}
