package xevent

import (
	"github.com/trickstertwo/xlog"
)

// ObserverFunc is an Adapter that lets a plain function satisfy Observer.
type ObserverFunc func(e BusEvent)

func (f ObserverFunc) OnBusEvent(e BusEvent) { f(e) }

// LoggingObserver is an Adapter that emits BusEvents via xlog.
type LoggingObserver struct {
	Logger *xlog.Logger
}

func (o LoggingObserver) OnBusEvent(e BusEvent) {
	if o.Logger == nil {
		return
	}
	lg := o.Logger.With(
		xlog.Str("kind", string(e.Kind)),
		xlog.Str("event_type", e.EventType),
		xlog.Str("subscriber", e.Subscriber),
		xlog.Str("method", e.Method),
		xlog.Str("subscription_id", e.SubscriptionID),
	)
	switch e.Kind {
	case EventFailed:
		lg.Warn().Err(e.Err).Str("mode", e.Mode.String()).Msg("xevent event")
	default:
		if e.Duration > 0 {
			lg = lg.With(xlog.Dur("duration", e.Duration))
		}
		lg.Debug().Msg("xevent event")
	}
}
