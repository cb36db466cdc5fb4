package xevent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingPool_ReusesAndBoundsFreeList(t *testing.T) {
	var pool pendingPool
	ctx := context.Background()

	first := pool.obtain(ctx, msg{}, msg{}, nil)
	pool.release(first)
	assert.Nil(t, first.event)
	assert.Same(t, first, pool.obtain(ctx, other{}, other{}, nil))

	nodes := make([]*pendingPost, maxPendingPoolSize+5)
	for i := range nodes {
		nodes[i] = pool.obtain(ctx, i, i, nil)
	}
	for _, n := range nodes {
		pool.release(n)
	}
	assert.Equal(t, maxPendingPoolSize, pool.size)
}

func TestPendingQueue_FIFO(t *testing.T) {
	var q pendingQueue
	assert.True(t, q.empty())
	assert.Nil(t, q.pop())

	for i := 0; i < 3; i++ {
		q.push(&pendingPost{event: i})
	}
	assert.Equal(t, 3, q.len())

	for i := 0; i < 3; i++ {
		pp := q.pop()
		require.NotNil(t, pp)
		assert.Equal(t, i, pp.event)
	}
	assert.True(t, q.empty())
	assert.Equal(t, 0, q.len())

	q.push(&pendingPost{event: "again"})
	assert.Equal(t, "again", q.pop().event)
}

type sliceEvent struct{ IDs []int }

func TestStickyStore_ValueRemovalUsesEquality(t *testing.T) {
	s := newStickyStore()
	s.put(sliceEvent{IDs: []int{1, 2}})

	assert.False(t, s.removeValue(sliceEvent{IDs: []int{3}}))
	assert.True(t, s.removeValue(sliceEvent{IDs: []int{1, 2}}))
	assert.Empty(t, s.snapshot())

	p := &Base{ID: 1}
	s.put(p)
	assert.False(t, s.removeValue(&Base{ID: 1}), "pointers compare by identity")
	assert.True(t, s.removeValue(p))
}
