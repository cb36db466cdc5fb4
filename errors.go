package xevent

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	ErrNilEvent                    = errors.New("xevent: nil event")
	ErrNilSubscriber               = errors.New("xevent: nil subscriber")
	ErrInvalidSubscriber           = errors.New("xevent: subscriber must be a comparable value")
	ErrBusClosed                   = errors.New("xevent: bus is closed")
	ErrDefaultBusExists            = errors.New("xevent: default bus already installed")
	ErrHandlerPanic                = errors.New("xevent: handler panic")
	ErrObserverPoolShutdownTimeout = errors.New("xevent: observer pool shutdown timeout")
	ErrExecutorRejected            = errors.New("xevent: executor rejected task")
)

// BindingError reports a handler method that cannot be bound to an event type.
type BindingError struct {
	Type   reflect.Type
	Method string
	Reason string
}

func (e *BindingError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("xevent: cannot bind subscriber %v: %s", e.Type, e.Reason)
	}
	return fmt.Sprintf("xevent: cannot bind %v.%s: %s", e.Type, e.Method, e.Reason)
}

// DuplicateSubscriptionError is returned when a subscriber is already bound to an event type.
type DuplicateSubscriptionError struct {
	SubscriberType reflect.Type
	EventType      reflect.Type
}

func (e *DuplicateSubscriptionError) Error() string {
	return fmt.Sprintf("xevent: subscriber %v already registered to event %v", e.SubscriberType, e.EventType)
}

// IllegalStateError is returned by operations invoked outside the state they require.
type IllegalStateError struct {
	Op     string
	Reason string
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("xevent: %s: %s", e.Op, e.Reason)
}

// DeliveryFailure wraps an error returned or a panic raised by a handler.
type DeliveryFailure struct {
	Event      any
	Subscriber any
	Method     string
	Mode       ThreadMode
	Err        error
}

func (e *DeliveryFailure) Error() string {
	return fmt.Sprintf("xevent: %T.%s failed on %T (%s): %v", e.Subscriber, e.Method, e.Event, e.Mode, e.Err)
}

func (e *DeliveryFailure) Unwrap() error { return e.Err }

// panicError converts a recovered value to an error wrapping ErrHandlerPanic.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("%w: %w", ErrHandlerPanic, err)
	}
	return fmt.Errorf("%w: %v", ErrHandlerPanic, r)
}
