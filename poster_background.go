package xevent

import (
	"context"
	"sync"
)

// backgroundPoster runs BACKGROUND deliveries one at a time. A post from outside the main
// goroutine runs inline when no delivery is running and nothing is queued; everything else
// is queued and drained by a single worker on the executor.
type backgroundPoster struct {
	bus *Bus

	mu      sync.Mutex
	queue   pendingQueue
	running bool
}

func newBackgroundPoster(b *Bus) *backgroundPoster {
	return &backgroundPoster{bus: b}
}

func (p *backgroundPoster) dispatch(ctx context.Context, sub *subscription, event, arg any, allowInline bool) error {
	p.mu.Lock()
	if allowInline && !p.running && p.queue.empty() {
		p.running = true
		p.mu.Unlock()
		defer p.release()
		return p.bus.invoke(ctx, sub, event, arg)
	}

	p.queue.push(p.bus.pending.obtain(p.bus.detach(ctx, threadWorker), event, arg, sub))
	start := !p.running
	p.running = true
	p.mu.Unlock()

	if start {
		p.startWorker()
	}
	return nil
}

// release ends an inline delivery and hands queued work to the worker.
func (p *backgroundPoster) release() {
	p.mu.Lock()
	if p.queue.empty() {
		p.running = false
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.startWorker()
}

func (p *backgroundPoster) startWorker() {
	if err := p.bus.executor.Submit(p.run); err != nil {
		p.bus.logger.Warn().Err(err).Msg("xevent: executor rejected background worker, using a dedicated goroutine")
		go p.run()
	}
}

func (p *backgroundPoster) run() {
	for {
		p.mu.Lock()
		pp := p.queue.pop()
		if pp == nil {
			p.running = false
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		p.bus.invokePending(nil, pp)
	}
}

func (p *backgroundPoster) pendingLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.len()
}
