package xevent

import (
	"context"
	"sync"
)

const maxPendingPoolSize = 10000

// pendingPost is a queued delivery. Nodes are recycled through pendingPool.
type pendingPost struct {
	ctx   context.Context
	event any
	arg   any
	sub   *subscription
	next  *pendingPost
}

// pendingPool is a bounded free list of pendingPost nodes. A miss allocates.
type pendingPool struct {
	mu   sync.Mutex
	head *pendingPost
	size int
}

func (p *pendingPool) obtain(ctx context.Context, event, arg any, sub *subscription) *pendingPost {
	p.mu.Lock()
	pp := p.head
	if pp != nil {
		p.head = pp.next
		p.size--
	}
	p.mu.Unlock()

	if pp == nil {
		pp = &pendingPost{}
	}
	pp.ctx = ctx
	pp.event = event
	pp.arg = arg
	pp.sub = sub
	pp.next = nil
	return pp
}

func (p *pendingPool) release(pp *pendingPost) {
	pp.ctx = nil
	pp.event = nil
	pp.arg = nil
	pp.sub = nil

	p.mu.Lock()
	if p.size < maxPendingPoolSize {
		pp.next = p.head
		p.head = pp
		p.size++
	}
	p.mu.Unlock()
}

// pendingQueue is a FIFO of pendingPost nodes. Callers provide synchronization.
type pendingQueue struct {
	head, tail *pendingPost
	n          int
}

func (q *pendingQueue) push(pp *pendingPost) {
	pp.next = nil
	if q.tail != nil {
		q.tail.next = pp
	} else {
		q.head = pp
	}
	q.tail = pp
	q.n++
}

func (q *pendingQueue) pop() *pendingPost {
	pp := q.head
	if pp == nil {
		return nil
	}
	q.head = pp.next
	if q.head == nil {
		q.tail = nil
	}
	pp.next = nil
	q.n--
	return pp
}

func (q *pendingQueue) empty() bool { return q.head == nil }

func (q *pendingQueue) len() int { return q.n }
