// Package eventbus is the in-process fan-out bus shared by the model layer.
package eventbus

import (
	"fmt"
	"sync"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/google/uuid"
)

type Listener interface {
	OnEvent(ev domain.Event) error
}

type ListenerFunc func(ev domain.Event) error

func (f ListenerFunc) OnEvent(ev domain.Event) error { return f(ev) }

type SubscriptionID string

type entry struct {
	id       SubscriptionID
	listener Listener
}

// Registry maps each event kind to an ordered list of listeners. Subscriber
// slices are copy-on-write so Publish never observes a half updated list.
type Registry struct {
	name      string
	listeners map[domain.EventKind][]entry
	mutex     sync.RWMutex
	log       logger.Logger
}

func NewRegistry(name string, log logger.Logger) *Registry {
	return &Registry{
		name:      name,
		listeners: make(map[domain.EventKind][]entry),
		log:       log,
	}
}

func (r *Registry) Subscribe(kind domain.EventKind, l Listener) SubscriptionID {
	id := SubscriptionID(uuid.NewString())

	r.mutex.Lock()
	defer r.mutex.Unlock()

	current := r.listeners[kind]
	next := make([]entry, len(current), len(current)+1)
	copy(next, current)
	r.listeners[kind] = append(next, entry{id: id, listener: l})

	return id
}

// SubscribeAll registers l on every kind given and returns one id per kind.
func (r *Registry) SubscribeAll(l Listener, kinds ...domain.EventKind) map[domain.EventKind]SubscriptionID {
	ids := make(map[domain.EventKind]SubscriptionID, len(kinds))
	for _, kind := range kinds {
		ids[kind] = r.Subscribe(kind, l)
	}
	return ids
}

// Unsubscribe is a no-op for unknown ids.
func (r *Registry) Unsubscribe(kind domain.EventKind, id SubscriptionID) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	current := r.listeners[kind]
	next := make([]entry, 0, len(current))
	for _, e := range current {
		if e.id != id {
			next = append(next, e)
		}
	}
	if len(next) == 0 {
		delete(r.listeners, kind)
		return
	}
	r.listeners[kind] = next
}

func (r *Registry) SubscriberCount(kind domain.EventKind) int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.listeners[kind])
}

// Publish delivers ev synchronously to every listener of its kind in
// subscription order. A failing listener does not stop the others.
func (r *Registry) Publish(ev domain.Event) {
	r.mutex.RLock()
	listeners := r.listeners[ev.Kind()]
	r.mutex.RUnlock()

	for _, e := range listeners {
		if err := r.deliver(e, ev); err != nil {
			r.log.Error("Listener failed", "registry", r.name, "kind", ev.Kind(),
				"subscription", e.id, "error", err)
		}
	}
}

func (r *Registry) deliver(e entry, ev domain.Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("listener panic: %v", rec)
		}
	}()
	return e.listener.OnEvent(ev)
}
