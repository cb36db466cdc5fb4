package xevent

import (
	"context"

	"github.com/trickstertwo/xlog"
)

// RecoveryInterceptor converts handler panics into errors wrapping ErrHandlerPanic.
func RecoveryInterceptor() Interceptor {
	return func(next Handler) Handler {
		return func(ctx context.Context, inv *Invocation) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = panicError(r)
				}
			}()
			return next(ctx, inv)
		}
	}
}

// LoggingInterceptor logs every invocation at debug level and failures at warn level.
func LoggingInterceptor(l *xlog.Logger) Interceptor {
	return func(next Handler) Handler {
		if l == nil {
			return next
		}
		return func(ctx context.Context, inv *Invocation) error {
			err := next(ctx, inv)
			if err != nil {
				l.Warn().
					Str("method", inv.Method.String()).
					Str("mode", inv.Method.Mode.String()).
					Err(err).
					Msg("xevent: handler returned error")
				return err
			}
			l.Debug().
				Str("method", inv.Method.String()).
				Str("mode", inv.Method.Mode.String()).
				Msg("xevent: handler invoked")
			return nil
		}
	}
}

// Chain composes interceptors around a handler in order; the first interceptor is outermost.
func Chain(h Handler, interceptors ...Interceptor) Handler {
	if len(interceptors) == 0 {
		return h
	}
	wrapped := h
	for i := len(interceptors) - 1; i >= 0; i-- {
		if interceptors[i] == nil {
			continue
		}
		wrapped = interceptors[i](wrapped)
	}
	return wrapped
}

// invokeMethod is the innermost Handler.
func invokeMethod(ctx context.Context, inv *Invocation) error {
	return inv.Method.invoke(ctx, inv.Subscriber, inv.Event)
}
