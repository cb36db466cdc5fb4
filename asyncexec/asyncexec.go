// Package asyncexec runs fallible work on a pool and reports failures as events on a bus.
package asyncexec

import (
	"context"
	"errors"
	"fmt"

	"github.com/trickstertwo/xevent"
	"github.com/trickstertwo/xlog"
)

// ErrTaskPanic wraps panics raised by executed work.
var ErrTaskPanic = errors.New("asyncexec: task panic")

// FailureEvent is posted when executed work fails, unless a custom factory is configured.
type FailureEvent struct {
	Err error
	// Scope is the value given to WithScope, letting receivers tell executors apart.
	Scope any
}

// Poster is the part of the bus the executor needs.
type Poster interface {
	Post(ctx context.Context, event any) error
}

// Executor submits work to a pool and posts a failure event when the work returns an error.
type Executor struct {
	bus     Poster
	pool    xevent.Executor
	scope   any
	failure func(err error, scope any) any
	logger  *xlog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithPool sets the pool work runs on (default: the bus executor).
func WithPool(p xevent.Executor) Option {
	return func(e *Executor) { e.pool = p }
}

// WithScope tags failure events with scope.
func WithScope(scope any) Option {
	return func(e *Executor) { e.scope = scope }
}

// WithFailureEvent replaces the FailureEvent factory.
func WithFailureEvent(fn func(err error, scope any) any) Option {
	return func(e *Executor) {
		if fn != nil {
			e.failure = fn
		}
	}
}

// WithLogger sets the logger used when posting a failure event fails.
func WithLogger(l *xlog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// New creates an Executor posting to bus. A nil bus uses xevent.Default().
func New(bus *xevent.Bus, opts ...Option) *Executor {
	if bus == nil {
		bus = xevent.Default()
	}
	e := &Executor{
		bus:    bus,
		pool:   bus.Executor(),
		logger: bus.Logger(),
		failure: func(err error, scope any) any {
			return FailureEvent{Err: err, Scope: scope}
		},
	}
	for _, o := range opts {
		if o != nil {
			o(e)
		}
	}
	if e.logger == nil {
		e.logger = xlog.Default()
	}
	return e
}

// Execute runs fn on the pool. It returns an error only when the pool rejects the task;
// failures of fn itself are posted as events.
func (e *Executor) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithoutCancel(ctx)
	if err := e.pool.Submit(func() { e.run(ctx, fn) }); err != nil {
		return fmt.Errorf("%w: %w", xevent.ErrExecutorRejected, err)
	}
	return nil
}

func (e *Executor) run(ctx context.Context, fn func(ctx context.Context) error) {
	err := safeRun(ctx, fn)
	if err == nil {
		return
	}
	if perr := e.bus.Post(ctx, e.failure(err, e.scope)); perr != nil {
		e.logger.Error().Err(err).Msg("asyncexec: original failure")
		e.logger.Error().Err(perr).Msg("asyncexec: could not post failure event")
	}
}

func safeRun(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()
	return fn(ctx)
}
