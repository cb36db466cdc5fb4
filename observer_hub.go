package xevent

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/trickstertwo/xlog"
)

// observerHub owns the bus observers and fans BusEvents out to them on its own goroutines,
// so a slow observer never delays delivery. Events that find the queue full are dropped.
type observerHub struct {
	logger *xlog.Logger

	mu        sync.Mutex
	observers atomic.Pointer[[]Observer]

	// sendMu orders publish against close so nothing is sent on a closed queue.
	sendMu sync.RWMutex
	closed bool
	queue  chan BusEvent

	workers int
	running atomic.Int32
	done    chan struct{}

	dropped   atomic.Uint64
	processed atomic.Uint64
}

func newObserverHub(logger *xlog.Logger, workers, bufferSize int) *observerHub {
	if workers < 1 {
		workers = 4
	}
	if bufferSize < 1 {
		bufferSize = 1024
	}
	h := &observerHub{
		logger:  logger,
		queue:   make(chan BusEvent, bufferSize),
		workers: workers,
		done:    make(chan struct{}),
	}
	h.running.Store(int32(workers))
	for i := 0; i < workers; i++ {
		go h.run()
	}
	return h
}

func (h *observerHub) snapshot() []Observer {
	if p := h.observers.Load(); p != nil {
		return *p
	}
	return nil
}

func (h *observerHub) add(obs Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cur := h.snapshot()
	next := make([]Observer, 0, len(cur)+1)
	next = append(append(next, cur...), obs)
	h.observers.Store(&next)
}

// remove drops the first observer equal to obs. Non-comparable observers cannot be removed.
func (h *observerHub) remove(obs Observer) {
	if !reflect.TypeOf(obs).Comparable() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	cur := h.snapshot()
	for i, o := range cur {
		if reflect.TypeOf(o) == reflect.TypeOf(obs) && o == obs {
			next := make([]Observer, 0, len(cur)-1)
			next = append(append(next, cur[:i]...), cur[i+1:]...)
			h.observers.Store(&next)
			return
		}
	}
}

// publish queues e without blocking. With no observers registered nothing is queued.
func (h *observerHub) publish(e BusEvent) {
	if len(h.snapshot()) == 0 {
		return
	}
	h.sendMu.RLock()
	defer h.sendMu.RUnlock()
	if h.closed {
		return
	}
	select {
	case h.queue <- e:
	default:
		h.dropped.Add(1)
	}
}

// run hands each event to the observers registered at the time it is dequeued.
func (h *observerHub) run() {
	defer func() {
		if h.running.Add(-1) == 0 {
			close(h.done)
		}
	}()
	for e := range h.queue {
		for _, obs := range h.snapshot() {
			h.deliver(obs, e)
		}
		h.processed.Add(1)
	}
}

func (h *observerHub) deliver(obs Observer, e BusEvent) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn().
				Str("observer", fmt.Sprintf("%T", obs)).
				Str("kind", string(e.Kind)).
				Str("panic", fmt.Sprint(r)).
				Msg("xevent: observer panicked")
		}
	}()
	obs.OnBusEvent(e)
}

// close stops intake and waits until the queued events are handed out or ctx is done.
func (h *observerHub) close(ctx context.Context) error {
	h.sendMu.Lock()
	if !h.closed {
		h.closed = true
		close(h.queue)
	}
	h.sendMu.Unlock()

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %d events not dispatched: %w", ErrObserverPoolShutdownTimeout, len(h.queue), ctx.Err())
	}
}

func (h *observerHub) stats() PoolStats {
	return PoolStats{
		Dropped:   h.dropped.Load(),
		Processed: h.processed.Load(),
		Queued:    len(h.queue),
		Workers:   h.workers,
	}
}
