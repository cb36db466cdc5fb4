package xevent

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MainThread is the gateway to the host's main goroutine.
type MainThread interface {
	// IsMainThread reports whether ctx belongs to work running on the main goroutine.
	IsMainThread(ctx context.Context) bool
	// Enqueue schedules fn on the main goroutine. Work must run in FIFO order.
	Enqueue(fn func(ctx context.Context)) error
}

// mainPoster queues MAIN and MAIN_ORDERED deliveries and drains them on the main goroutine
// in time-boxed turns.
type mainPoster struct {
	bus      *Bus
	gateway  MainThread
	maxDrain time.Duration

	mu     sync.Mutex
	queue  pendingQueue
	active bool
}

func newMainPoster(b *Bus, gateway MainThread, maxDrain time.Duration) *mainPoster {
	return &mainPoster{bus: b, gateway: gateway, maxDrain: maxDrain}
}

func (p *mainPoster) enqueue(ctx context.Context, sub *subscription, event, arg any) {
	pp := p.bus.pending.obtain(p.bus.detach(ctx, threadMain), event, arg, sub)

	p.mu.Lock()
	p.queue.push(pp)
	schedule := !p.active
	p.active = true
	p.mu.Unlock()

	if schedule {
		p.schedule()
	}
}

// schedule hands a drain turn to the gateway. When the gateway refuses, the queued
// deliveries are dropped since nothing would ever run them.
func (p *mainPoster) schedule() {
	err := p.gateway.Enqueue(p.drain)
	if err == nil {
		return
	}
	p.mu.Lock()
	p.active = false
	dropped := 0
	for pp := p.queue.pop(); pp != nil; pp = p.queue.pop() {
		p.bus.pending.release(pp)
		dropped++
	}
	p.mu.Unlock()
	p.bus.logger.Error().
		Err(err).
		Str("dropped", strconv.Itoa(dropped)).
		Msg("xevent: main thread gateway rejected drain, queued deliveries dropped")
}

// drain delivers queued posts until the queue is empty or the turn exceeds maxDrain,
// in which case it re-arms itself for a later turn.
func (p *mainPoster) drain(host context.Context) {
	start := p.bus.clock.Now()
	for {
		p.mu.Lock()
		pp := p.queue.pop()
		if pp == nil {
			p.active = false
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		p.bus.invokePending(host, pp)

		if p.bus.clock.Since(start) >= p.maxDrain {
			p.schedule()
			return
		}
	}
}

func (p *mainPoster) pendingLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.len()
}
