package xevent

import (
	"context"
	"fmt"
	"sync"
)

var (
	defaultBus   *Bus
	defaultBusMu sync.Mutex
)

// Default returns the process-wide default Bus, building one from Defaults() on first use.
func Default() *Bus {
	defaultBusMu.Lock()
	defer defaultBusMu.Unlock()

	if defaultBus != nil {
		return defaultBus
	}

	bus, err := NewBusBuilder().Build()
	if err != nil {
		panic(fmt.Sprintf("xevent: failed to initialize default bus: %v", err))
	}
	defaultBus = bus
	return defaultBus
}

// SetDefault replaces the process-wide default Bus.
func SetDefault(b *Bus) {
	if b == nil {
		panic("xevent: SetDefault called with nil Bus")
	}
	defaultBusMu.Lock()
	defaultBus = b
	defaultBusMu.Unlock()
}

// Register registers subscriber on the default bus.
func Register(ctx context.Context, subscriber any) error {
	return Default().Register(ctx, subscriber)
}

// Unregister unregisters subscriber from the default bus.
func Unregister(subscriber any) {
	Default().Unregister(subscriber)
}

// Post posts event on the default bus.
func Post(ctx context.Context, event any) error {
	return Default().Post(ctx, event)
}

// PostSticky posts a sticky event on the default bus.
func PostSticky(ctx context.Context, event any) error {
	return Default().PostSticky(ctx, event)
}
