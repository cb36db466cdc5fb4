package xevent

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type msg struct {
	Text   string
	Cancel bool
}

type other struct{ N int }

type Base struct{ ID int }

type Derived struct {
	Base
	Extra string
}

type Deep struct {
	Derived
	Level int
}

type WithPtr struct {
	*Base
}

type Named interface{ Name() string }

type Person struct{ N string }

func (p Person) Name() string { return p.N }

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.calls = append(r.calls, s)
	r.mu.Unlock()
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newTestBus(t *testing.T, init func(bb *BusBuilder)) *Bus {
	t.Helper()
	bb := NewBusBuilder().WithLogNoSubscriberMessages(false)
	if init != nil {
		init(bb)
	}
	b, err := bb.Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	return b
}

// manualMain is a MainThread whose queue runs only when the test calls runAll.
type manualMain struct {
	mu       sync.Mutex
	tasks    []func(context.Context)
	enqueued int
	reject   error
}

type manualMainKey struct{}

func (m *manualMain) IsMainThread(ctx context.Context) bool {
	return ctx.Value(manualMainKey{}) != nil
}

func (m *manualMain) Enqueue(fn func(context.Context)) error {
	m.mu.Lock()
	if m.reject != nil {
		m.mu.Unlock()
		return m.reject
	}
	m.tasks = append(m.tasks, fn)
	m.enqueued++
	m.mu.Unlock()
	return nil
}

func (m *manualMain) mainContext() context.Context {
	return context.WithValue(context.Background(), manualMainKey{}, true)
}

// runAll executes queued work, including work enqueued while running, until the queue is empty.
func (m *manualMain) runAll() {
	ctx := m.mainContext()
	for {
		m.mu.Lock()
		if len(m.tasks) == 0 {
			m.mu.Unlock()
			return
		}
		fn := m.tasks[0]
		m.tasks = m.tasks[1:]
		m.mu.Unlock()
		fn(ctx)
	}
}

func (m *manualMain) setReject(err error) {
	m.mu.Lock()
	m.reject = err
	m.mu.Unlock()
}

func (m *manualMain) enqueueCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enqueued
}
