// Package events provides listener registries keyed by event name.
//
// Plugins and the renderer communicate only through a Dispatcher: the renderer
// triggers named events and activated plugins subscribe to them.
package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Listener handles a triggered event. The payload type depends on the event name.
type Listener func(ctx context.Context, payload any) error

// ListenerID identifies a registration so it can be removed with Off
type ListenerID uint64

type registration struct {
	id       ListenerID
	priority int
	seq      uint64
	listener Listener
}

// Dispatcher holds the listener registries
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[string][]registration
	next      uint64
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		listeners: make(map[string][]registration),
	}
}

// On registers a listener for the named event. Listeners with a higher
// priority run first; equal priorities run in registration order.
func (d *Dispatcher) On(name string, listener Listener, priority int) ListenerID {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.next++
	reg := registration{
		id:       ListenerID(d.next),
		priority: priority,
		seq:      d.next,
		listener: listener,
	}

	regs := append(d.listeners[name], reg)
	sort.SliceStable(regs, func(i, j int) bool {
		if regs[i].priority != regs[j].priority {
			return regs[i].priority > regs[j].priority
		}
		return regs[i].seq < regs[j].seq
	})
	d.listeners[name] = regs

	return reg.id
}

// Off removes a registration. It reports whether the listener was found.
func (d *Dispatcher) Off(name string, id ListenerID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	regs := d.listeners[name]
	for i, reg := range regs {
		if reg.id == id {
			d.listeners[name] = append(regs[:i:i], regs[i+1:]...)
			return true
		}
	}
	return false
}

// Count returns the number of listeners registered for an event
func (d *Dispatcher) Count(name string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.listeners[name])
}

// Trigger calls every listener registered for name. All listeners run even
// when one fails; the failures are joined into the returned error.
func (d *Dispatcher) Trigger(ctx context.Context, name string, payload any) error {
	d.mu.RLock()
	regs := make([]registration, len(d.listeners[name]))
	copy(regs, d.listeners[name])
	d.mu.RUnlock()

	var errs []error
	for _, reg := range regs {
		if err := reg.listener(ctx, payload); err != nil {
			errs = append(errs, fmt.Errorf("%s listener %d: %w", name, reg.id, err))
		}
	}

	return errors.Join(errs...)
}
