package xevent

import (
	"context"
	"sync"
)

// Executor runs tasks on other goroutines. *ants.Pool satisfies it.
type Executor interface {
	Submit(task func()) error
}

// asyncPoster hands each ASYNC delivery to the executor.
type asyncPoster struct {
	bus *Bus

	mu    sync.Mutex
	queue pendingQueue
}

func newAsyncPoster(b *Bus) *asyncPoster {
	return &asyncPoster{bus: b}
}

func (p *asyncPoster) enqueue(ctx context.Context, sub *subscription, event, arg any) {
	pp := p.bus.pending.obtain(p.bus.detach(ctx, threadWorker), event, arg, sub)
	p.mu.Lock()
	p.queue.push(pp)
	p.mu.Unlock()

	if err := p.bus.executor.Submit(p.run); err != nil {
		p.bus.logger.Warn().Err(err).Msg("xevent: executor rejected async delivery, using a dedicated goroutine")
		go p.run()
	}
}

func (p *asyncPoster) run() {
	p.mu.Lock()
	pp := p.queue.pop()
	p.mu.Unlock()
	if pp == nil {
		p.bus.logger.Error().Msg("xevent: no pending async post available")
		return
	}
	p.bus.invokePending(nil, pp)
}

func (p *asyncPoster) pendingLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.len()
}
