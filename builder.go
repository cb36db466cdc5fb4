package xevent

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// BusBuilder constructs Bus instances.
type BusBuilder struct {
	cfg          Config
	mainThread   MainThread
	indexes      []SubscriberInfoIndex
	skipVerify   []reflect.Type
	executor     Executor
	interceptors []Interceptor
	observers    []Observer
	logger       *xlog.Logger
	clock        xclock.Clock
}

// NewBusBuilder returns a builder initialized with Defaults().
func NewBusBuilder() *BusBuilder {
	return &BusBuilder{cfg: Defaults()}
}

// WithConfig replaces every option that Config carries.
func (bb *BusBuilder) WithConfig(cfg Config) *BusBuilder {
	bb.cfg = cfg
	return bb
}

// WithEventInheritance toggles delivery to handlers of embedded and interface types (default: true).
func (bb *BusBuilder) WithEventInheritance(on bool) *BusBuilder {
	bb.cfg.EventInheritance = on
	return bb
}

func (bb *BusBuilder) WithLogSubscriberExceptions(on bool) *BusBuilder {
	bb.cfg.LogSubscriberExceptions = on
	return bb
}

func (bb *BusBuilder) WithLogNoSubscriberMessages(on bool) *BusBuilder {
	bb.cfg.LogNoSubscriberMessages = on
	return bb
}

func (bb *BusBuilder) WithSendSubscriberExceptionEvent(on bool) *BusBuilder {
	bb.cfg.SendSubscriberExceptionEvent = on
	return bb
}

func (bb *BusBuilder) WithSendNoSubscriberEvent(on bool) *BusBuilder {
	bb.cfg.SendNoSubscriberEvent = on
	return bb
}

// WithThrowSubscriberException makes unabsorbed handler failures fatal: Post returns them.
func (bb *BusBuilder) WithThrowSubscriberException(on bool) *BusBuilder {
	bb.cfg.ThrowSubscriberException = on
	return bb
}

// WithIgnoreGeneratedIndex forces reflection even when indexes are configured.
func (bb *BusBuilder) WithIgnoreGeneratedIndex(on bool) *BusBuilder {
	bb.cfg.IgnoreGeneratedIndex = on
	return bb
}

// WithSkipMethodVerificationFor lets subscribers of the given types carry OnEvent* methods
// that are not handlers. Such methods are ignored instead of failing registration; annotated
// methods are still verified.
func (bb *BusBuilder) WithSkipMethodVerificationFor(types ...reflect.Type) *BusBuilder {
	bb.skipVerify = append(bb.skipVerify, types...)
	return bb
}

// WithMainThread sets the gateway used by MAIN and MAIN_ORDERED handlers.
func (bb *BusBuilder) WithMainThread(mt MainThread) *BusBuilder {
	bb.mainThread = mt
	return bb
}

// WithMaxMainThreadDrain bounds a single main goroutine turn (default: 10ms).
func (bb *BusBuilder) WithMaxMainThreadDrain(d time.Duration) *BusBuilder {
	if d > 0 {
		bb.cfg.MaxMainThreadDrain = d
	}
	return bb
}

// WithIndex appends precomputed indexes, queried in order.
func (bb *BusBuilder) WithIndex(idx ...SubscriberInfoIndex) *BusBuilder {
	for _, i := range idx {
		if i != nil {
			bb.indexes = append(bb.indexes, i)
		}
	}
	return bb
}

// WithExecutor supplies the executor for ASYNC deliveries and the background worker.
// Without one the bus creates and owns an ants pool sized by Config.AsyncPoolSize.
func (bb *BusBuilder) WithExecutor(e Executor) *BusBuilder {
	bb.executor = e
	return bb
}

func (bb *BusBuilder) WithInterceptor(ic ...Interceptor) *BusBuilder {
	if len(ic) == 0 {
		return bb
	}
	bb.interceptors = append(bb.interceptors, ic...)
	return bb
}

func (bb *BusBuilder) WithObserver(obs ...Observer) *BusBuilder {
	for _, o := range obs {
		if o != nil {
			bb.observers = append(bb.observers, o)
		}
	}
	return bb
}

// WithObserverPool sizes the asynchronous observer pool.
func (bb *BusBuilder) WithObserverPool(workers, bufferSize int) *BusBuilder {
	bb.cfg.ObserverWorkers = workers
	bb.cfg.ObserverBufferSize = bufferSize
	return bb
}

func (bb *BusBuilder) WithLogger(l *xlog.Logger) *BusBuilder {
	bb.logger = l
	return bb
}

func (bb *BusBuilder) WithClock(c xclock.Clock) *BusBuilder {
	bb.clock = c
	return bb
}

func (bb *BusBuilder) Build() (*Bus, error) {
	if err := bb.cfg.Validate(); err != nil {
		return nil, err
	}

	clk := bb.clock
	if clk == nil {
		clk = xclock.Default()
	}
	lg := bb.logger
	if lg == nil {
		lg = xlog.Default()
	}

	b := &Bus{
		eventInheritance:             bb.cfg.EventInheritance,
		logSubscriberExceptions:      bb.cfg.LogSubscriberExceptions,
		logNoSubscriberMessages:      bb.cfg.LogNoSubscriberMessages,
		sendSubscriberExceptionEvent: bb.cfg.SendSubscriberExceptionEvent,
		sendNoSubscriberEvent:        bb.cfg.SendNoSubscriberEvent,
		throwSubscriberException:     bb.cfg.ThrowSubscriberException,
		clock:                        clk,
		logger:                       lg,
		mainThread:                   bb.mainThread,
		executor:                     bb.executor,
		finder:                       newMethodFinder(bb.indexes, bb.cfg.IgnoreGeneratedIndex, bb.skipVerify...),
		hierarchy:                    newTypeHierarchy(bb.cfg.EventInheritance),
		registry:                     newRegistry(),
		sticky:                       newStickyStore(),
		metrics:                      &busMetrics{},
	}

	if b.executor == nil {
		pool, err := ants.NewPool(bb.cfg.AsyncPoolSize,
			ants.WithPanicHandler(func(p any) {
				lg.Error().Str("panic", fmt.Sprint(p)).Msg("xevent: executor task panicked")
			}),
			ants.WithLogger(antsLogger{lg}),
		)
		if err != nil {
			return nil, fmt.Errorf("xevent: create executor: %w", err)
		}
		b.executor = pool
		b.ownedPool = pool
	}

	// Recovery always runs innermost so interceptors observe panics as errors.
	b.handler = Chain(RecoveryInterceptor()(invokeMethod), bb.interceptors...)

	if b.mainThread != nil {
		b.main = newMainPoster(b, b.mainThread, bb.cfg.MaxMainThreadDrain)
	}
	b.background = newBackgroundPoster(b)
	b.async = newAsyncPoster(b)

	b.observers = newObserverHub(lg, bb.cfg.ObserverWorkers, bb.cfg.ObserverBufferSize)
	for _, o := range bb.observers {
		b.AddObserver(o)
	}

	return b, nil
}

// InstallDefault builds the bus and installs it as the process-wide default. It fails with
// ErrDefaultBusExists when a default was already built or installed.
func (bb *BusBuilder) InstallDefault() (*Bus, error) {
	defaultBusMu.Lock()
	defer defaultBusMu.Unlock()
	if defaultBus != nil {
		return nil, ErrDefaultBusExists
	}
	b, err := bb.Build()
	if err != nil {
		return nil, err
	}
	defaultBus = b
	return b, nil
}

// New constructs a Bus via Builder and returns a close func for convenience.
func New(init func(b *BusBuilder)) (*Bus, func() error, error) {
	bb := NewBusBuilder()
	if init != nil {
		init(bb)
	}
	bus, err := bb.Build()
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() error { return bus.Close(context.Background()) }
	return bus, closeFn, nil
}

// antsLogger routes pool diagnostics to xlog.
type antsLogger struct{ l *xlog.Logger }

func (a antsLogger) Printf(format string, args ...any) {
	a.l.Warn().Msg("xevent: executor: " + fmt.Sprintf(format, args...))
}
