package xevent

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

var _ API = (*Bus)(nil)
var _ HealthChecker = (*Bus)(nil)

// Bus dispatches posted events to registered subscribers.
type Bus struct {
	eventInheritance             bool
	logSubscriberExceptions      bool
	logNoSubscriberMessages      bool
	sendSubscriberExceptionEvent bool
	sendNoSubscriberEvent        bool
	throwSubscriberException     bool

	clock      xclock.Clock
	logger     *xlog.Logger
	handler    Handler
	mainThread MainThread
	executor   Executor
	ownedPool  *ants.Pool

	finder    *methodFinder
	hierarchy *typeHierarchy
	registry  *registry
	sticky    *stickyStore
	pending   pendingPool

	main       *mainPoster
	background *backgroundPoster
	async      *asyncPoster

	observers *observerHub

	metrics   *busMetrics
	closed    atomic.Bool
	closeOnce sync.Once
}

const defaultCloseTimeout = 5 * time.Second

// busMetrics uses lock-free atomics.
type busMetrics struct {
	posted       atomic.Uint64
	delivered    atomic.Uint64
	failed       atomic.Uint64
	noSubscriber atomic.Uint64
	canceled     atomic.Uint64
	deliveryNs   atomic.Int64
}

// Register binds every handler method of subscriber. Subscribers are identified by value
// equality, so they must be comparable; pointers are the usual choice. Sticky handlers
// immediately receive matching sticky events; their delivery errors are returned after the
// registration has taken effect.
func (b *Bus) Register(ctx context.Context, subscriber any) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	if subscriber == nil {
		return ErrNilSubscriber
	}
	t := reflect.TypeOf(subscriber)
	if !t.Comparable() {
		return fmt.Errorf("%w: %v", ErrInvalidSubscriber, t)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	methods, err := b.finder.find(subscriber)
	if err != nil {
		return err
	}
	for _, m := range methods {
		b.hierarchy.bindInterface(m.EventType)
	}
	subs, err := b.registry.add(subscriber, methods)
	if err != nil {
		return err
	}
	for _, s := range subs {
		b.notify(b.busEvent(EventRegistered, s, nil))
	}
	return b.deliverSticky(ctx, subs)
}

func (b *Bus) deliverSticky(ctx context.Context, subs []*subscription) error {
	var (
		sticky map[reflect.Type]any
		main   bool
		errs   []error
	)
	for _, sub := range subs {
		if !sub.method.Sticky {
			continue
		}
		if sticky == nil {
			sticky = b.sticky.snapshot()
			main = b.isMainThread(ctx)
		}
		for t, event := range sticky {
			for _, a := range b.hierarchy.assignableTypes(t) {
				if a.typ != sub.method.EventType {
					continue
				}
				if arg, ok := a.value(event); ok {
					if err := b.postToSubscription(ctx, sub, event, arg, main); err != nil {
						errs = append(errs, err)
					}
				}
				break
			}
		}
	}
	return errors.Join(errs...)
}

// Unregister removes every subscription of subscriber. Deliveries already queued for it are dropped.
func (b *Bus) Unregister(subscriber any) {
	if subscriber == nil {
		return
	}
	if !reflect.TypeOf(subscriber).Comparable() {
		b.logger.Warn().Str("subscriber", fmt.Sprintf("%T", subscriber)).Msg("xevent: cannot unregister non-comparable subscriber")
		return
	}
	removed, ok := b.registry.remove(subscriber)
	if !ok {
		b.logger.Warn().Str("subscriber", fmt.Sprintf("%T", subscriber)).Msg("xevent: subscriber to unregister was not registered before")
		return
	}
	for _, s := range removed {
		b.notify(b.busEvent(EventUnregistered, s, nil))
	}
}

// IsRegistered reports whether subscriber currently has subscriptions.
func (b *Bus) IsRegistered(subscriber any) bool {
	if subscriber == nil || !reflect.TypeOf(subscriber).Comparable() {
		return false
	}
	return b.registry.isRegistered(subscriber)
}

// HasSubscriberForEvent reports whether an event of type t would reach at least one subscription.
func (b *Bus) HasSubscriberForEvent(t reflect.Type) bool {
	if t == nil {
		return false
	}
	for _, a := range b.hierarchy.assignableTypes(t) {
		if b.registry.hasSubscriptions(a.typ) {
			return true
		}
	}
	return false
}

// Post delivers event to every matching subscription. A Post made from a handler with the
// handler's context is queued and delivered after the current event has reached all of its
// subscribers. Post returns an error only for invalid input or a fatal delivery failure
// (see ThrowSubscriberException); a fatal failure discards the events still queued.
func (b *Bus) Post(ctx context.Context, event any) error {
	if event == nil {
		return ErrNilEvent
	}
	if b.closed.Load() {
		return ErrBusClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	st := b.postingStateFrom(ctx)
	if st == nil {
		st = &postingState{}
		ctx = b.withPostingState(ctx, st)
	}
	if !st.push(event) {
		return nil
	}
	st.setMain(b.isMainThread(ctx))

	done := false
	defer func() {
		if !done {
			st.abort()
		}
	}()
	for {
		next, ok := st.pop()
		if !ok {
			done = true
			return nil
		}
		if err := b.postSingle(ctx, st, next); err != nil {
			st.abort()
			done = true
			return err
		}
	}
}

// PostSticky stores event as the sticky event of its type, then posts it.
func (b *Bus) PostSticky(ctx context.Context, event any) error {
	if event == nil {
		return ErrNilEvent
	}
	if b.closed.Load() {
		return ErrBusClosed
	}
	b.sticky.put(event)
	return b.Post(ctx, event)
}

// StickyEvent returns the most recent sticky event of exactly type t.
func (b *Bus) StickyEvent(t reflect.Type) (any, bool) {
	return b.sticky.get(t)
}

// StickyEventOf is the typed form of Bus.StickyEvent.
func StickyEventOf[T any](b *Bus) (T, bool) {
	var zero T
	e, ok := b.sticky.get(reflect.TypeFor[T]())
	if !ok {
		return zero, false
	}
	v, ok := e.(T)
	return v, ok
}

// RemoveStickyEvent removes and returns the sticky event of type t.
func (b *Bus) RemoveStickyEvent(t reflect.Type) (any, bool) {
	return b.sticky.remove(t)
}

// RemoveStickyEventValue removes the sticky event of event's type if it equals event.
func (b *Bus) RemoveStickyEventValue(event any) bool {
	if event == nil {
		return false
	}
	return b.sticky.removeValue(event)
}

// RemoveAllStickyEvents clears the sticky store.
func (b *Bus) RemoveAllStickyEvents() {
	b.sticky.clear()
}

// CancelEventDelivery stops event from reaching the remaining subscriptions of the type
// currently being delivered. Only a posting mode handler may call it, with its own context,
// for the event it is handling.
func (b *Bus) CancelEventDelivery(ctx context.Context, event any) error {
	if event == nil {
		return ErrNilEvent
	}
	if ctx == nil {
		return &IllegalStateError{Op: "cancel event delivery", Reason: "only allowed from a handler on the posting call chain"}
	}
	st := b.postingStateFrom(ctx)
	if st == nil {
		return &IllegalStateError{Op: "cancel event delivery", Reason: "only allowed from a handler on the posting call chain"}
	}
	return st.cancel(event)
}

// ClearCaches drops the memoized handler descriptors and event type hierarchies.
func (b *Bus) ClearCaches() {
	b.finder.clear()
	b.hierarchy.clear()
}

// IsMainThread reports whether ctx belongs to work on the main goroutine. Deliveries the bus
// runs on its workers report false even when their context was derived from the main goroutine's.
func (b *Bus) IsMainThread(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	return b.isMainThread(ctx)
}

// Executor returns the executor running ASYNC deliveries and the background worker.
func (b *Bus) Executor() Executor { return b.executor }

// Logger returns the bus logger.
func (b *Bus) Logger() *xlog.Logger { return b.logger }

func (b *Bus) postSingle(ctx context.Context, st *postingState, event any) error {
	b.metrics.posted.Add(1)
	et := reflect.TypeOf(event)
	b.notify(BusEvent{Kind: EventPosted, EventType: et.String()})

	found := false
	for _, a := range b.hierarchy.assignableTypes(et) {
		subs := b.registry.subscriptionsFor(a.typ)
		if len(subs) == 0 {
			continue
		}
		found = true
		arg, ok := a.value(event)
		if !ok {
			continue
		}
		if err := b.postToSubscriptions(ctx, st, subs, event, arg); err != nil {
			return err
		}
	}
	if !found {
		return b.noSubscriber(ctx, event, et)
	}
	return nil
}

func (b *Bus) postToSubscriptions(ctx context.Context, st *postingState, subs []*subscription, event, arg any) error {
	main := st.isMain()
	for _, sub := range subs {
		st.begin(event, arg, sub)
		err := b.postToSubscription(ctx, sub, event, arg, main)
		canceled := st.end()
		if err != nil {
			return err
		}
		if canceled {
			b.metrics.canceled.Add(1)
			b.notify(b.busEvent(EventCanceled, sub, nil))
			break
		}
	}
	return nil
}

func (b *Bus) postToSubscription(ctx context.Context, sub *subscription, event, arg any, main bool) error {
	switch sub.method.Mode {
	case Posting:
		return b.invoke(ctx, sub, event, arg)
	case Main:
		if main || b.main == nil {
			return b.invoke(ctx, sub, event, arg)
		}
		b.main.enqueue(ctx, sub, event, arg)
	case MainOrdered:
		if b.main == nil {
			return b.invoke(ctx, sub, event, arg)
		}
		b.main.enqueue(ctx, sub, event, arg)
	case Background:
		return b.background.dispatch(ctx, sub, event, arg, !main)
	case Async:
		b.async.enqueue(ctx, sub, event, arg)
	default:
		return fmt.Errorf("xevent: unknown thread mode %s", sub.method.Mode)
	}
	return nil
}

// invoke calls the handler unless the subscription was unregistered meanwhile. The returned
// error is non-nil only when the failure must propagate.
func (b *Bus) invoke(ctx context.Context, sub *subscription, event, arg any) error {
	if !sub.active.Load() {
		return nil
	}
	inv := &Invocation{
		Event:          arg,
		Posted:         event,
		Subscriber:     sub.subscriber,
		Method:         sub.method,
		SubscriptionID: sub.id,
	}

	start := b.clock.Now()
	err := b.call(b.handlerContext(ctx), inv)
	d := b.clock.Since(start)
	b.recordDeliveryTime(d.Nanoseconds())

	if err == nil {
		b.metrics.delivered.Add(1)
		ev := b.busEvent(EventDelivered, sub, nil)
		ev.Duration = d
		b.notify(ev)
		return nil
	}
	b.metrics.failed.Add(1)
	ev := b.busEvent(EventFailed, sub, err)
	ev.Duration = d
	b.notify(ev)
	return b.handleFailure(ctx, sub, event, err)
}

func (b *Bus) call(ctx context.Context, inv *Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return b.handler(ctx, inv)
}

// invokePending runs a queued delivery on a poster goroutine. host is the context the
// goroutine's owner handed out, if any.
func (b *Bus) invokePending(host context.Context, pp *pendingPost) {
	ctx, sub, event, arg := withHost(pp.ctx, host), pp.sub, pp.event, pp.arg
	b.pending.release(pp)
	if err := b.invoke(ctx, sub, event, arg); err != nil {
		b.logger.Error().
			Err(err).
			Str("mode", sub.method.Mode.String()).
			Str("method", sub.method.String()).
			Msg("xevent: fatal delivery failure")
	}
}

func (b *Bus) handleFailure(ctx context.Context, sub *subscription, event any, cause error) error {
	failure := &DeliveryFailure{
		Event:      event,
		Subscriber: sub.subscriber,
		Method:     sub.method.Name,
		Mode:       sub.method.Mode,
		Err:        cause,
	}

	if see, ok := event.(SubscriberExceptionEvent); ok {
		if b.logSubscriberExceptions {
			b.logger.Error().
				Err(cause).
				Str("method", sub.method.String()).
				Msg("xevent: SubscriberExceptionEvent handler failed")
			if see.Err != nil {
				b.logger.Error().
					Err(see.Err).
					Str("causing_event", fmt.Sprintf("%T", see.CausingEvent)).
					Str("causing_subscriber", fmt.Sprintf("%T", see.CausingSubscriber)).
					Msg("xevent: initial subscriber failure")
			}
		}
		if b.throwSubscriberException {
			return failure
		}
		return nil
	}

	if b.logSubscriberExceptions {
		b.logger.Warn().
			Err(cause).
			Str("event", fmt.Sprintf("%T", event)).
			Str("method", sub.method.String()).
			Str("mode", sub.method.Mode.String()).
			Msg("xevent: could not dispatch event")
	}
	if b.sendSubscriberExceptionEvent && b.HasSubscriberForEvent(subscriberExceptionEventType) {
		return b.Post(ctx, SubscriberExceptionEvent{
			Bus:               b,
			Err:               failure,
			CausingEvent:      event,
			CausingSubscriber: sub.subscriber,
		})
	}
	if b.throwSubscriberException {
		return failure
	}
	return nil
}

func (b *Bus) noSubscriber(ctx context.Context, event any, et reflect.Type) error {
	b.metrics.noSubscriber.Add(1)
	b.notify(BusEvent{Kind: EventNoSubscriber, EventType: et.String()})
	if b.logNoSubscriberMessages {
		b.logger.Debug().Str("event", et.String()).Msg("xevent: no subscribers registered for event")
	}
	if b.sendNoSubscriberEvent && !isInternalEvent(et) {
		return b.Post(ctx, NoSubscriberEvent{Bus: b, OriginalEvent: event})
	}
	return nil
}

// GetMetrics returns current bus metrics.
func (b *Bus) GetMetrics() Metrics {
	m := Metrics{
		Posted:            b.metrics.posted.Load(),
		Delivered:         b.metrics.delivered.Load(),
		Failed:            b.metrics.failed.Load(),
		NoSubscriber:      b.metrics.noSubscriber.Load(),
		Canceled:          b.metrics.canceled.Load(),
		Subscriptions:     b.registry.count(),
		PendingBackground: b.background.pendingLen(),
		PendingAsync:      b.async.pendingLen(),
		AvgDeliveryTimeMs: float64(b.metrics.deliveryNs.Load()) / 1e6,
	}
	if b.main != nil {
		m.PendingMain = b.main.pendingLen()
	}
	m.EventsDropped = b.observers.stats().Dropped
	return m
}

// ObserverStats reports the observer dispatch queue.
func (b *Bus) ObserverStats() PoolStats {
	return b.observers.stats()
}

// Health reports bus health: unhealthy once closed, degraded above a 5% failure rate.
func (b *Bus) Health(ctx context.Context) HealthStatus {
	if b.closed.Load() {
		return HealthStatus{
			Status:    "unhealthy",
			Timestamp: b.clock.Now(),
			Message:   "bus is closed",
		}
	}

	metrics := b.GetMetrics()
	status := "healthy"
	if attempts := metrics.Delivered + metrics.Failed; metrics.Failed > 0 && attempts > 0 {
		if float64(metrics.Failed)/float64(attempts) > 0.05 {
			status = "degraded"
		}
	}

	return HealthStatus{
		Status:    status,
		Metrics:   metrics,
		Timestamp: b.clock.Now(),
	}
}

// Close stops accepting registrations and posts, drains the observer queue and releases the
// executor if the bus created it. Without a deadline on ctx it waits at most 5s. Close is
// idempotent.
func (b *Bus) Close(ctx context.Context) error {
	var errs []error

	b.closeOnce.Do(func() {
		b.closed.Store(true)

		if ctx == nil {
			ctx = context.Background()
		}
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, defaultCloseTimeout)
			defer cancel()
		}

		if err := b.observers.close(ctx); err != nil {
			b.logger.Warn().Err(err).Msg("xevent: observer queue not drained")
			errs = append(errs, err)
		}

		if b.ownedPool != nil {
			dl, _ := ctx.Deadline()
			if err := b.ownedPool.ReleaseTimeout(time.Until(dl)); err != nil {
				b.logger.Error().Err(err).Msg("xevent: executor release failed")
				errs = append(errs, err)
			}
		}
	})

	return errors.Join(errs...)
}

// AddObserver registers an observer (thread-safe).
func (b *Bus) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	b.observers.add(obs)
}

// RemoveObserver removes an observer.
func (b *Bus) RemoveObserver(obs Observer) {
	if obs == nil {
		return
	}
	b.observers.remove(obs)
}

// notify hands e to the observers without blocking delivery.
func (b *Bus) notify(e BusEvent) {
	if b.closed.Load() {
		return
	}
	b.observers.publish(e)
}

func (b *Bus) busEvent(kind BusEventKind, sub *subscription, err error) BusEvent {
	return BusEvent{
		Kind:           kind,
		EventType:      sub.method.EventType.String(),
		Subscriber:     sub.method.Owner.String(),
		Method:         sub.method.Name,
		Mode:           sub.method.Mode,
		SubscriptionID: sub.id,
		Err:            err,
	}
}

// recordDeliveryTime keeps an exponential moving average of handler durations.
func (b *Bus) recordDeliveryTime(ns int64) {
	const alpha = 0.2
	current := b.metrics.deliveryNs.Load()
	if current == 0 {
		b.metrics.deliveryNs.Store(ns)
		return
	}
	b.metrics.deliveryNs.Store(int64(float64(ns)*alpha + float64(current)*(1-alpha)))
}
