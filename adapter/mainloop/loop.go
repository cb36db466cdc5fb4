package mainloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xevent"
	"github.com/trickstertwo/xlog"
)

var (
	ErrClosed          = errors.New("mainloop: loop is closed")
	ErrAlreadyRunning  = errors.New("mainloop: loop is already running")
	ErrShutdownTimeout = errors.New("mainloop: shutdown timeout")
)

var _ xevent.MainThread = (*Loop)(nil)

type loopKey struct{}

// Loop is a FIFO work queue executed by whichever goroutine calls Run.
type Loop struct {
	cfg    Config
	logger *xlog.Logger

	mu    sync.Mutex
	queue []func(context.Context)

	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	running atomic.Bool
	closed  atomic.Bool
	stopped sync.Once

	metrics *loopMetrics
}

type loopMetrics struct {
	enqueued atomic.Uint64
	executed atomic.Uint64
	panics   atomic.Uint64
}

// New creates a Loop. A nil logger uses xlog.Default().
func New(cfg Config, logger *xlog.Logger) *Loop {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = xlog.Default()
	}
	return &Loop{
		cfg:     cfg,
		logger:  logger,
		queue:   make([]func(context.Context), 0, cfg.QueueSize),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		metrics: &loopMetrics{},
	}
}

// IsMainThread reports whether ctx was handed out by this loop or derived from one that was.
func (l *Loop) IsMainThread(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	owner, _ := ctx.Value(loopKey{}).(*Loop)
	return owner == l
}

// Enqueue schedules fn on the loop. It never blocks.
func (l *Loop) Enqueue(fn func(ctx context.Context)) error {
	if fn == nil {
		return nil
	}
	if l.closed.Load() {
		return ErrClosed
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.metrics.enqueued.Add(1)

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Call runs fn on the loop and waits for it to return.
func (l *Loop) Call(ctx context.Context, fn func(ctx context.Context)) error {
	if l.IsMainThread(ctx) {
		fn(ctx)
		return nil
	}
	finished := make(chan struct{})
	if err := l.Enqueue(func(c context.Context) {
		defer close(finished)
		fn(c)
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes queued work on the calling goroutine until ctx is done or Close is called.
// Work still queued at Close is executed before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(l.done)

	runCtx := context.WithValue(ctx, loopKey{}, l)
	l.logger.Debug().Str("loop", l.cfg.Name).Msg("mainloop: running")
	for {
		if l.runBatch(runCtx) {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stop:
			for l.runBatch(runCtx) {
			}
			l.logger.Debug().Str("loop", l.cfg.Name).Msg("mainloop: stopped")
			return nil
		case <-l.wake:
		}
	}
}

// Start runs the loop on a new goroutine.
func (l *Loop) Start(ctx context.Context) {
	go func() {
		if err := l.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Warn().Err(err).Str("loop", l.cfg.Name).Msg("mainloop: run ended")
		}
	}()
}

// runBatch executes the work queued so far and reports whether there was any.
func (l *Loop) runBatch(ctx context.Context) bool {
	l.mu.Lock()
	batch := l.queue
	l.queue = make([]func(context.Context), 0, max(len(batch), l.cfg.QueueSize))
	l.mu.Unlock()

	for _, fn := range batch {
		l.exec(ctx, fn)
	}
	return len(batch) > 0
}

func (l *Loop) exec(ctx context.Context, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			l.metrics.panics.Add(1)
			l.logger.Error().Str("loop", l.cfg.Name).Str("panic", fmt.Sprint(r)).Msg("mainloop: task panicked")
		}
	}()
	fn(ctx)
	l.metrics.executed.Add(1)
}

// Close stops accepting work and waits up to timeout for Run to finish the queue.
func (l *Loop) Close(timeout time.Duration) error {
	if l.closed.Swap(true) {
		return nil
	}
	l.stopped.Do(func() { close(l.stop) })
	if !l.running.Load() {
		return nil
	}
	select {
	case <-l.done:
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

// Stats is loop telemetry.
type Stats struct {
	Enqueued uint64
	Executed uint64
	Panics   uint64
	Pending  int
}

// Stats returns current loop metrics.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	pending := len(l.queue)
	l.mu.Unlock()
	return Stats{
		Enqueued: l.metrics.enqueued.Load(),
		Executed: l.metrics.executed.Load(),
		Panics:   l.metrics.panics.Load(),
		Pending:  pending,
	}
}
