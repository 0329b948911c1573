// Package bridge mirrors the process event registry to remote subscribers.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/internal/eventbus"
	"auction-engine/pkg/logger"

	"github.com/google/uuid"
)

// RemoteListener is a handle registered by another process. Deliver must
// honour ctx.
type RemoteListener interface {
	Deliver(ctx context.Context, ev domain.Event) error
}

type SubscriberID string

type Options struct {
	OutboxSize      int
	DeliveryTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		OutboxSize:      256,
		DeliveryTimeout: 5 * time.Second,
	}
}

type subscriber struct {
	id       SubscriberID
	listener RemoteListener
	kinds    map[domain.EventKind]bool
	outbox   chan domain.Event
	stop     chan struct{}
	stopOnce sync.Once
	exited   chan struct{}
}

func (s *subscriber) halt() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Bridge fans events of one area out to remote listeners. Each listener has
// its own FIFO outbox and delivery goroutine, so a slow or dead listener
// never holds up the publisher or the other listeners.
type Bridge struct {
	area Area
	opts Options
	log  logger.Logger

	mutex       sync.RWMutex
	subscribers map[SubscriberID]*subscriber
	byKind      map[domain.EventKind][]*subscriber
	attached    map[domain.EventKind]eventbus.SubscriptionID
	registry    *eventbus.Registry
	closed      bool
}

func New(area Area, opts Options, log logger.Logger) *Bridge {
	defaults := DefaultOptions()
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = defaults.OutboxSize
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = defaults.DeliveryTimeout
	}
	return &Bridge{
		area:        area,
		opts:        opts,
		log:         log.With("area", area.Name),
		subscribers: make(map[SubscriberID]*subscriber),
		byKind:      make(map[domain.EventKind][]*subscriber),
	}
}

func (b *Bridge) Area() Area {
	return b.area
}

// Attach subscribes the bridge to every kind of its area on reg.
func (b *Bridge) Attach(reg *eventbus.Registry) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.registry = reg
	b.attached = reg.SubscribeAll(b, b.area.Kinds...)
}

func (b *Bridge) AddListener(l RemoteListener, kinds ...domain.EventKind) (SubscriberID, error) {
	if l == nil {
		return "", domain.NewValidationError("listener is required")
	}
	if len(kinds) == 0 {
		return "", domain.NewValidationError("at least one channel is required")
	}
	for _, k := range kinds {
		if !b.area.Serves(k) {
			return "", domain.NewValidationError("channel %s is not served by %s", k, b.area.Name)
		}
	}

	s := &subscriber{
		id:       SubscriberID(uuid.NewString()),
		listener: l,
		kinds:    make(map[domain.EventKind]bool, len(kinds)),
		outbox:   make(chan domain.Event, b.opts.OutboxSize),
		stop:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	for _, k := range kinds {
		s.kinds[k] = true
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.closed {
		return "", domain.NewStateError("bridge %s is closed", b.area.Name)
	}

	b.subscribers[s.id] = s
	for k := range s.kinds {
		b.byKind[k] = appendCopy(b.byKind[k], s)
	}
	go b.drain(s)

	b.log.Debug("Remote listener added", "subscriber", s.id, "channels", kinds)
	return s.id, nil
}

// RemoveListener drops the given channels of a subscriber, or every channel
// when none are given. Unknown ids and channels are ignored.
func (b *Bridge) RemoveListener(id SubscriberID, kinds ...domain.EventKind) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	s, ok := b.subscribers[id]
	if !ok {
		return nil
	}

	if len(kinds) == 0 {
		for k := range s.kinds {
			kinds = append(kinds, k)
		}
	}
	for _, k := range kinds {
		if !s.kinds[k] {
			continue
		}
		delete(s.kinds, k)
		b.byKind[k] = removeCopy(b.byKind[k], s)
		if len(b.byKind[k]) == 0 {
			delete(b.byKind, k)
		}
	}

	if len(s.kinds) == 0 {
		delete(b.subscribers, id)
		s.halt()
		b.log.Debug("Remote listener removed", "subscriber", id)
	}
	return nil
}

// OnEvent queues ev for every listener of its kind and returns immediately.
func (b *Bridge) OnEvent(ev domain.Event) error {
	b.mutex.RLock()
	targets := b.byKind[ev.Kind()]
	b.mutex.RUnlock()

	for _, s := range targets {
		select {
		case s.outbox <- ev:
		default:
			b.log.Warn("Outbox full, dropping event", "subscriber", s.id, "kind", ev.Kind())
		}
	}
	return nil
}

// Holds reports whether id is still registered on any channel.
func (b *Bridge) Holds(id SubscriberID) bool {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	_, ok := b.subscribers[id]
	return ok
}

func (b *Bridge) SubscriberCount(kind domain.EventKind) int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.byKind[kind])
}

// Close detaches the bridge and stops every delivery goroutine.
func (b *Bridge) Close() {
	b.mutex.Lock()
	if b.closed {
		b.mutex.Unlock()
		return
	}
	b.closed = true
	for k, id := range b.attached {
		b.registry.Unsubscribe(k, id)
	}
	subs := make([]*subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s)
	}
	b.subscribers = make(map[SubscriberID]*subscriber)
	b.byKind = make(map[domain.EventKind][]*subscriber)
	b.mutex.Unlock()

	for _, s := range subs {
		s.halt()
		<-s.exited
	}
	b.log.Info("Bridge closed", "listeners", len(subs))
}

func (b *Bridge) drain(s *subscriber) {
	defer close(s.exited)
	for {
		select {
		case <-s.stop:
			return
		case ev := <-s.outbox:
			if err := b.deliver(s, ev); err != nil {
				fault := &domain.TransportFault{Op: fmt.Sprintf("deliver %s", ev.Kind()), Err: err}
				b.log.Warn("Remote delivery failed", "subscriber", s.id, "error", fault)
			}
		}
	}
}

func (b *Bridge) deliver(s *subscriber, ev domain.Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("listener panic: %v", rec)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), b.opts.DeliveryTimeout)
	defer cancel()
	return s.listener.Deliver(ctx, ev)
}

func appendCopy(list []*subscriber, s *subscriber) []*subscriber {
	next := make([]*subscriber, len(list), len(list)+1)
	copy(next, list)
	return append(next, s)
}

func removeCopy(list []*subscriber, s *subscriber) []*subscriber {
	next := make([]*subscriber, 0, len(list))
	for _, e := range list {
		if e != s {
			next = append(next, e)
		}
	}
	return next
}
