// Package lifecycle ties subscriber registration to a component's lifecycle.
package lifecycle

import (
	"context"
	"errors"
	"sync"
)

// Registrar is the part of the bus a Binding needs. *xevent.Bus satisfies it.
type Registrar interface {
	Register(ctx context.Context, subscriber any) error
	Unregister(subscriber any)
	IsRegistered(subscriber any) bool
}

// Binding registers a subscriber when its component starts and unregisters it when the
// component stops. Start and Stop are idempotent.
type Binding struct {
	bus        Registrar
	subscriber any

	mu    sync.Mutex
	bound bool
}

// Bind creates a Binding for subscriber on bus. Nothing is registered until Start.
func Bind(bus Registrar, subscriber any) *Binding {
	return &Binding{bus: bus, subscriber: subscriber}
}

// Start registers the subscriber.
func (b *Binding) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bound {
		return nil
	}
	if err := b.bus.Register(ctx, b.subscriber); err != nil {
		// Sticky delivery errors are reported after registration took effect.
		if b.bus.IsRegistered(b.subscriber) {
			b.bound = true
		}
		return err
	}
	b.bound = true
	return nil
}

// Stop unregisters the subscriber.
func (b *Binding) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.bound {
		return
	}
	b.bus.Unregister(b.subscriber)
	b.bound = false
}

// Active reports whether the subscriber is registered through this binding.
func (b *Binding) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bound
}

// Group starts and stops several bindings together.
type Group struct {
	bindings []*Binding
}

// NewGroup binds every subscriber to bus.
func NewGroup(bus Registrar, subscribers ...any) *Group {
	g := &Group{bindings: make([]*Binding, 0, len(subscribers))}
	for _, s := range subscribers {
		g.bindings = append(g.bindings, Bind(bus, s))
	}
	return g
}

// Start starts every binding in order. When a registration is rejected the bindings started
// so far are stopped again. Errors from sticky deliveries do not roll back and are returned
// together once every binding started.
func (g *Group) Start(ctx context.Context) error {
	var delivery []error
	for i, b := range g.bindings {
		err := b.Start(ctx)
		if err == nil {
			continue
		}
		if b.Active() {
			delivery = append(delivery, err)
			continue
		}
		for j := i - 1; j >= 0; j-- {
			g.bindings[j].Stop()
		}
		return err
	}
	return errors.Join(delivery...)
}

// Stop stops every binding in reverse order.
func (g *Group) Stop() {
	for i := len(g.bindings) - 1; i >= 0; i-- {
		g.bindings[i].Stop()
	}
}

// Close stops the group. It always returns nil.
func (g *Group) Close() error {
	g.Stop()
	return nil
}
