package resolver

import (
	"sync"
	"time"
)

// Registry is the long-lived, concurrency-safe Resolver implementation.
// It outlives individual renders; render-scoped state only borrows it.
type Registry struct {
	components map[string]*ClientComponent
	mutex      sync.RWMutex
	watchers   []chan Event
}

// Event represents a change in the registry.
type Event struct {
	Type      EventType
	Component *ClientComponent
	Timestamp time.Time
}

// EventType represents the type of registry event.
type EventType int

const (
	EventTypeAdded EventType = iota
	EventTypeUpdated
	EventTypeRemoved
)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		components: make(map[string]*ClientComponent),
		watchers:   make([]chan Event, 0),
	}
}

// Register adds or updates a component.
func (r *Registry) Register(component *ClientComponent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	eventType := EventTypeAdded
	if _, exists := r.components[component.ID]; exists {
		eventType = EventTypeUpdated
	}

	r.components[component.ID] = component

	r.notify(Event{Type: eventType, Component: component, Timestamp: time.Now()})
}

// Resolve implements Resolver.
func (r *Registry) Resolve(id string) (*ClientComponent, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	component, exists := r.components[id]

	return component, exists
}

// GetAll returns a snapshot of all registered components.
func (r *Registry) GetAll() map[string]*ClientComponent {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make(map[string]*ClientComponent, len(r.components))
	for id, component := range r.components {
		result[id] = component
	}

	return result
}

// Remove removes a component.
func (r *Registry) Remove(id string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	component, exists := r.components[id]
	if !exists {
		return
	}

	delete(r.components, id)

	r.notify(Event{Type: EventTypeRemoved, Component: component, Timestamp: time.Now()})
}

// Watch returns a channel that receives registry events.
func (r *Registry) Watch() <-chan Event {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch := make(chan Event, 100)
	r.watchers = append(r.watchers, ch)

	return ch
}

// UnWatch removes a watcher channel and closes it.
func (r *Registry) UnWatch(ch <-chan Event) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, watcher := range r.watchers {
		if watcher == ch {
			close(watcher)
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
			break
		}
	}
}

// Count returns the number of registered components.
func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.components)
}

// notify must be called with the write lock held.
func (r *Registry) notify(event Event) {
	for _, watcher := range r.watchers {
		select {
		case watcher <- event:
		default:
			// Skip if channel is full
		}
	}
}
