package xevent

import "reflect"

// SubscriberExceptionEvent is posted when a handler fails and SendSubscriberExceptionEvent is on.
type SubscriberExceptionEvent struct {
	Bus               *Bus
	Err               error
	CausingEvent      any
	CausingSubscriber any
}

// NoSubscriberEvent is posted when an event matched no subscription and SendNoSubscriberEvent is on.
type NoSubscriberEvent struct {
	Bus           *Bus
	OriginalEvent any
}

var (
	subscriberExceptionEventType = reflect.TypeFor[SubscriberExceptionEvent]()
	noSubscriberEventType        = reflect.TypeFor[NoSubscriberEvent]()
	anyType                      = reflect.TypeFor[any]()
)

// isInternalEvent reports whether t is one of the bus-generated diagnostic events.
func isInternalEvent(t reflect.Type) bool {
	return t == subscriberExceptionEventType || t == noSubscriberEventType
}
