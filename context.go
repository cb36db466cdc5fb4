package xevent

import (
	"context"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// ctxKey is the base for string context keys in xevent (prevents collisions).
type ctxKey string

const (
	loggerCtxKey ctxKey = "xevent:logger"
	clockCtxKey  ctxKey = "xevent:clock"
)

// postingKey and threadKey are scoped per bus so several buses can share a call chain.
type postingKey struct{ bus *Bus }

type threadKey struct{ bus *Bus }

type threadKind uint8

const (
	threadUnknown threadKind = iota
	threadMain
	threadWorker
)

func (b *Bus) postingStateFrom(ctx context.Context) *postingState {
	st, _ := ctx.Value(postingKey{b}).(*postingState)
	return st
}

func (b *Bus) withPostingState(ctx context.Context, st *postingState) context.Context {
	return context.WithValue(ctx, postingKey{b}, st)
}

// isMainThread prefers the bus's own marker for goroutines it runs work on and asks the
// gateway otherwise. Without a gateway there is no main goroutine.
func (b *Bus) isMainThread(ctx context.Context) bool {
	if b.mainThread == nil {
		return false
	}
	switch k, _ := ctx.Value(threadKey{b}).(threadKind); k {
	case threadMain:
		return true
	case threadWorker:
		return false
	}
	return b.mainThread.IsMainThread(ctx)
}

// detach derives the context handed to queued deliveries: it survives the poster's
// cancellation, drops the poster's posting state and records which goroutine kind runs it.
func (b *Bus) detach(ctx context.Context, kind threadKind) context.Context {
	ctx = context.WithoutCancel(ctx)
	ctx = context.WithValue(ctx, postingKey{b}, (*postingState)(nil))
	return context.WithValue(ctx, threadKey{b}, kind)
}

// hostedContext is a queued delivery's context running on a host goroutine: values resolve
// from the poster's context first, then from the host's.
type hostedContext struct {
	context.Context
	host context.Context
}

func (c hostedContext) Value(key any) any {
	if v := c.Context.Value(key); v != nil {
		return v
	}
	return c.host.Value(key)
}

func withHost(ctx, host context.Context) context.Context {
	if host == nil {
		return ctx
	}
	return hostedContext{Context: ctx, host: host}
}

func injectLogger(ctx context.Context, l *xlog.Logger) context.Context {
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerCtxKey, l)
}

// LoggerFromContext returns the bus logger handed to handlers.
func LoggerFromContext(ctx context.Context) (*xlog.Logger, bool) {
	if v := ctx.Value(loggerCtxKey); v != nil {
		if l, ok := v.(*xlog.Logger); ok && l != nil {
			return l, true
		}
	}
	return nil, false
}

func injectClock(ctx context.Context, c xclock.Clock) context.Context {
	if c == nil {
		return ctx
	}
	return context.WithValue(ctx, clockCtxKey, c)
}

// ClockFromContext returns the bus clock handed to handlers.
func ClockFromContext(ctx context.Context) (xclock.Clock, bool) {
	if v := ctx.Value(clockCtxKey); v != nil {
		if c, ok := v.(xclock.Clock); ok && c != nil {
			return c, true
		}
	}
	return nil, false
}

// BusFromContext returns the bus delivering the current handler invocation.
func BusFromContext(ctx context.Context) (*Bus, bool) {
	b, _ := ctx.Value(busCtxKey{}).(*Bus)
	return b, b != nil
}

type busCtxKey struct{}

// handlerContext attaches the values handlers may look up.
func (b *Bus) handlerContext(ctx context.Context) context.Context {
	if existing, ok := BusFromContext(ctx); ok && existing == b {
		return ctx
	}
	ctx = context.WithValue(ctx, busCtxKey{}, b)
	ctx = injectLogger(ctx, b.logger)
	return injectClock(ctx, b.clock)
}
