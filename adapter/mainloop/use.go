package mainloop

import (
	"fmt"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xevent"
	"github.com/trickstertwo/xlog"
)

// Use builds a Bus whose main thread is a new Loop and installs the bus as the process-wide
// default. The caller runs the returned loop, usually from main.
//
// Example:
//
//	bus, loop := mainloop.Use(mainloop.Config{Name: "ui"},
//	    mainloop.WithLogger(logger),
//	    mainloop.WithObserver(observer),
//	)
func Use(cfg Config, opts ...Option) (*xevent.Bus, *Loop) {
	cfg = cfg.withDefaults()
	s := &settings{bb: xevent.NewBusBuilder()}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}

	loop := New(cfg, s.logger)
	s.bb.WithMainThread(loop).WithMaxMainThreadDrain(cfg.MaxDrain)
	if s.logger != nil {
		s.bb.WithLogger(s.logger)
	}

	bus, err := s.bb.Build()
	if err != nil {
		panic(fmt.Errorf("mainloop.Use: %w", err))
	}

	xevent.SetDefault(bus)
	return bus, loop
}

type settings struct {
	bb     *xevent.BusBuilder
	logger *xlog.Logger
}

// Option configures the bus built by Use.
type Option func(*settings)

// WithLogger injects a custom xlog logger for the bus and the loop.
func WithLogger(l *xlog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithClock injects a custom xclock clock.
func WithClock(c xclock.Clock) Option {
	return func(s *settings) { s.bb.WithClock(c) }
}

// WithConfig applies bus options.
func WithConfig(cfg xevent.Config) Option {
	return func(s *settings) { s.bb.WithConfig(cfg) }
}

// WithIndex adds precomputed subscriber indexes.
func WithIndex(idx ...xevent.SubscriberInfoIndex) Option {
	return func(s *settings) { s.bb.WithIndex(idx...) }
}

// WithExecutor sets the executor for ASYNC and BACKGROUND deliveries.
func WithExecutor(e xevent.Executor) Option {
	return func(s *settings) { s.bb.WithExecutor(e) }
}

// WithInterceptor adds invocation interceptors.
func WithInterceptor(ic ...xevent.Interceptor) Option {
	return func(s *settings) { s.bb.WithInterceptor(ic...) }
}

// WithObserver attaches observers for lifecycle events.
func WithObserver(obs ...xevent.Observer) Option {
	return func(s *settings) { s.bb.WithObserver(obs...) }
}

// WithObserverPool configures the async observer pool.
func WithObserverPool(workers, bufferSize int) Option {
	return func(s *settings) { s.bb.WithObserverPool(workers, bufferSize) }
}
