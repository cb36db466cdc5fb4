package mainloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xevent"
)

func startLoop(t *testing.T, cfg Config) *Loop {
	t.Helper()
	l := New(cfg, nil)
	errc := make(chan error, 1)
	go func() { errc <- l.Run(context.Background()) }()
	require.NoError(t, l.Call(context.Background(), func(context.Context) {}))
	t.Cleanup(func() {
		require.NoError(t, l.Close(time.Second))
		require.NoError(t, <-errc)
	})
	return l
}

func TestLoop_RunsWorkInOrderOnTheLoop(t *testing.T) {
	l := startLoop(t, Config{Name: "test"})

	var got []int
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Enqueue(func(context.Context) { got = append(got, i) }))
	}

	var onLoop bool
	require.NoError(t, l.Call(context.Background(), func(ctx context.Context) { onLoop = l.IsMainThread(ctx) }))
	assert.True(t, onLoop)
	assert.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}

	assert.False(t, l.IsMainThread(context.Background()))
	assert.False(t, New(Config{}, nil).IsMainThread(context.WithValue(context.Background(), loopKey{}, l)))
}

func TestLoop_RunTwice(t *testing.T) {
	l := startLoop(t, Config{})
	assert.ErrorIs(t, l.Run(context.Background()), ErrAlreadyRunning)
}

func TestLoop_CloseDrainsQueuedWork(t *testing.T) {
	l := New(Config{}, nil)
	errc := make(chan error, 1)
	go func() { errc <- l.Run(context.Background()) }()
	require.NoError(t, l.Call(context.Background(), func(context.Context) {}))

	block := make(chan struct{})
	require.NoError(t, l.Enqueue(func(context.Context) { <-block }))
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Enqueue(func(context.Context) {}))
	}
	close(block)

	require.NoError(t, l.Close(time.Second))
	require.NoError(t, <-errc)
	assert.EqualValues(t, 5, l.Stats().Executed)
	assert.Zero(t, l.Stats().Pending)

	assert.ErrorIs(t, l.Enqueue(func(context.Context) {}), ErrClosed)
	require.NoError(t, l.Close(time.Second))
}

func TestLoop_PanicsAreContained(t *testing.T) {
	l := startLoop(t, Config{})
	require.NoError(t, l.Enqueue(func(context.Context) { panic("task") }))

	ran := false
	require.NoError(t, l.Call(context.Background(), func(context.Context) { ran = true }))
	assert.True(t, ran)
	assert.EqualValues(t, 1, l.Stats().Panics)
}

func TestLoop_CallHonorsContext(t *testing.T) {
	l := New(Config{}, nil) // never run
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Call(ctx, func(context.Context) {}), context.DeadlineExceeded)
}

func TestConfigFromMap(t *testing.T) {
	cfg := ConfigFromMap(map[string]any{
		"name":       "ui",
		"queue_size": 64.0,
		"max_drain":  "5ms",
	})
	assert.Equal(t, Config{Name: "ui", QueueSize: 64, MaxDrain: 5 * time.Millisecond}, cfg)

	assert.Equal(t, Defaults(), ConfigFromMap(nil))
	assert.Equal(t, 1, ConfigFromMap(map[string]any{"queue_size": -3}).QueueSize)
	assert.Equal(t, Defaults(), Config{}.withDefaults())
}

type eventA struct{}
type eventB struct{}
type eventC struct{}

type uiSubscriber struct {
	bus  *xevent.Bus
	loop *Loop
	seen chan string
}

func (u *uiSubscriber) SubscriberAnnotations() map[string]xevent.Subscribe {
	return map[string]xevent.Subscribe{
		"OnEventA": {Mode: xevent.Main},
		"OnEventB": {Mode: xevent.MainOrdered},
		"OnEventC": {Mode: xevent.Background},
	}
}

func (u *uiSubscriber) report(ctx context.Context, name string) {
	if u.bus.IsMainThread(ctx) && u.loop.IsMainThread(ctx) {
		u.seen <- name + ":loop"
		return
	}
	u.seen <- name + ":other"
}

func (u *uiSubscriber) OnEventA(ctx context.Context, e eventA) { u.report(ctx, "a") }
func (u *uiSubscriber) OnEventB(ctx context.Context, e eventB) { u.report(ctx, "b") }
func (u *uiSubscriber) OnEventC(ctx context.Context, e eventC) { u.report(ctx, "c") }

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery")
		return ""
	}
}

func TestUse_DeliversMainModesOnTheLoop(t *testing.T) {
	bus, loop := Use(Config{Name: "ui"}, WithConfig(xevent.Defaults()))
	t.Cleanup(func() { _ = bus.Close(context.Background()) })
	assert.Same(t, bus, xevent.Default())

	errc := make(chan error, 1)
	go func() { errc <- loop.Run(context.Background()) }()
	t.Cleanup(func() {
		require.NoError(t, loop.Close(time.Second))
		require.NoError(t, <-errc)
	})

	sub := &uiSubscriber{bus: bus, loop: loop, seen: make(chan string, 8)}
	require.NoError(t, bus.Register(context.Background(), sub))

	var afterA, afterB int
	require.NoError(t, loop.Call(context.Background(), func(ctx context.Context) {
		_ = bus.Post(ctx, eventA{})
		afterA = len(sub.seen)
		_ = bus.Post(ctx, eventB{})
		afterB = len(sub.seen)
	}))
	assert.Equal(t, 1, afterA, "MAIN runs inline on the loop")
	assert.Equal(t, 1, afterB, "MAIN_ORDERED is queued even on the loop")
	assert.Equal(t, "a:loop", receive(t, sub.seen))
	assert.Equal(t, "b:loop", receive(t, sub.seen))

	require.NoError(t, bus.Post(context.Background(), eventA{}))
	assert.Equal(t, "a:loop", receive(t, sub.seen))

	require.NoError(t, loop.Call(context.Background(), func(ctx context.Context) {
		_ = bus.Post(ctx, eventC{})
	}))
	assert.Equal(t, "c:other", receive(t, sub.seen))
}
