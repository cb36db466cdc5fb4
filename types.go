package xevent

import (
	"context"
	"time"
)

// Invocation describes one handler call. Event is the value handed to the handler, which
// differs from Posted when the handler is bound to an embedded type of the posted event.
type Invocation struct {
	Event          any
	Posted         any
	Subscriber     any
	Method         *SubscriberMethod
	SubscriptionID string
}

// Handler performs an Invocation. The innermost Handler calls the subscriber method.
type Handler func(ctx context.Context, inv *Invocation) error

// Interceptor composes cross-cutting concerns around handler invocation.
type Interceptor func(next Handler) Handler

// BusEventKind enumerates dispatcher lifecycle events reported to observers.
type BusEventKind string

const (
	EventPosted       BusEventKind = "posted"
	EventDelivered    BusEventKind = "delivered"
	EventFailed       BusEventKind = "failed"
	EventNoSubscriber BusEventKind = "no_subscriber"
	EventCanceled     BusEventKind = "canceled"
	EventRegistered   BusEventKind = "registered"
	EventUnregistered BusEventKind = "unregistered"
)

// BusEvent carries telemetry for observers.
type BusEvent struct {
	Kind           BusEventKind
	EventType      string
	Subscriber     string
	Method         string
	Mode           ThreadMode
	SubscriptionID string
	Duration       time.Duration
	Err            error
}

// Observer receives dispatcher lifecycle events. Implementations should be non-blocking.
type Observer interface {
	OnBusEvent(e BusEvent)
}

// PoolStats reports the observer dispatch queue.
type PoolStats struct {
	Dropped   uint64 // found the queue full
	Processed uint64
	Queued    int
	Workers   int
}

// Metrics defines observable telemetry for the bus.
type Metrics struct {
	Posted            uint64
	Delivered         uint64
	Failed            uint64
	NoSubscriber      uint64
	Canceled          uint64
	Subscriptions     int
	PendingMain       int
	PendingBackground int
	PendingAsync      int
	EventsDropped     uint64
	AvgDeliveryTimeMs float64
}

// HealthStatus indicates bus health for probes.
type HealthStatus struct {
	Status    string // "healthy", "degraded", "unhealthy"
	Metrics   Metrics
	Timestamp time.Time
	Message   string
}

// HealthChecker provides health status for production monitoring.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}
