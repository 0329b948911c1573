package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"auction-engine/internal/bridge"
	"auction-engine/internal/cache"
	"auction-engine/internal/domain"
	ws "auction-engine/internal/infrastructure/websocket"
	"auction-engine/pkg/logger"

	"github.com/gorilla/websocket"
)

// EventHandler consumes one decoded event from a stream.
type EventHandler func(ev domain.Event) error

// EventStream opens subscriptions on the server's /events/{area} endpoint.
// When a registry is given, each area's address is looked up under the area
// name first and eventsURL is the fallback.
type EventStream struct {
	eventsURL string
	registry  domain.ServiceRegistry
	dialer    *websocket.Dialer
	log       logger.Logger
}

func NewEventStream(eventsURL string, registry domain.ServiceRegistry, log logger.Logger) *EventStream {
	return &EventStream{
		eventsURL: strings.TrimRight(eventsURL, "/"),
		registry:  registry,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:       log.With("component", "event_stream"),
	}
}

func (s *EventStream) resolve(ctx context.Context, area bridge.Area) (string, error) {
	if s.registry == nil {
		return s.eventsURL, nil
	}
	address, err := s.registry.Lookup(ctx, area.Name)
	if domain.IsNotFound(err) {
		return s.eventsURL, nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(address, "/"), nil
}

// Subscription is one open socket registered for some kinds of an area.
type Subscription struct {
	id   string
	area bridge.Area
	conn *websocket.Conn
	log  logger.Logger

	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	err       error
}

func (s *Subscription) ID() string { return s.id }

func (s *Subscription) Area() bridge.Area { return s.area }

// Done is closed when the read loop exits.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err is the reason the read loop exited, valid after Done is closed.
func (s *Subscription) Err() error {
	<-s.done
	return s.err
}

// Close unsubscribes and closes the socket. The server drops the
// subscription on disconnect regardless of whether the unsubscribe lands.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		if werr := s.conn.WriteJSON(ws.ClientMessage{Type: ws.TypeUnsubscribe, SubscriberID: s.id}); werr != nil {
			s.log.Debug("Unsubscribe not sent", "error", werr)
		}
		err = s.conn.Close()
	})
	return err
}

// Subscribe dials the area and registers for kinds, every kind of the area
// when none are given. Events are passed to handler from a single goroutine
// in arrival order until ctx is done or the socket closes.
func (s *EventStream) Subscribe(ctx context.Context, area bridge.Area, handler EventHandler,
	kinds ...domain.EventKind) (*Subscription, error) {
	base, err := s.resolve(ctx, area)
	if err != nil {
		return nil, err
	}
	conn, _, err := s.dialer.DialContext(ctx, base+"/events/"+area.Key, nil)
	if err != nil {
		return nil, &domain.TransportFault{Op: "dial " + area.Key, Err: err}
	}

	id, err := handshake(conn, kinds)
	if err != nil {
		conn.Close()
		return nil, err
	}

	sub := &Subscription{
		id:   id,
		area: area,
		conn: conn,
		log:  s.log.With("area", area.Key, "subscriber", id),
		done: make(chan struct{}),
	}
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	go sub.read(ctx, handler)

	sub.log.Info("Subscribed to events")
	return sub, nil
}

func handshake(conn *websocket.Conn, kinds []domain.EventKind) (string, error) {
	deadline := time.Now().Add(10 * time.Second)
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return "", err
	}
	if err := conn.WriteJSON(ws.ClientMessage{Type: ws.TypeSubscribe, Channels: kinds}); err != nil {
		return "", &domain.TransportFault{Op: "subscribe", Err: err}
	}

	if err := conn.SetReadDeadline(deadline); err != nil {
		return "", err
	}
	defer conn.SetReadDeadline(time.Time{})

	var reply ws.ServerMessage
	if err := conn.ReadJSON(&reply); err != nil {
		return "", &domain.TransportFault{Op: "subscribe", Err: err}
	}
	switch reply.Type {
	case ws.TypeSubscribed:
		return reply.SubscriberID, nil
	case ws.TypeError:
		return "", domain.NewValidationError("%s", reply.Message)
	default:
		return "", &domain.TransportFault{Op: "subscribe", Err: fmt.Errorf("unexpected reply %q", reply.Type)}
	}
}

func (s *Subscription) read(ctx context.Context, handler EventHandler) {
	defer close(s.done)

	for {
		var msg ws.ServerMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if s.closing.Load() || ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				s.err = &domain.TransportFault{Op: "read " + s.area.Key, Err: err}
			}
			return
		}

		switch msg.Type {
		case ws.TypeEvent:
			ev, err := domain.DecodeEvent(msg.Event)
			if err != nil {
				s.log.Error("Failed to decode event", "error", err)
				continue
			}
			if err := handler(ev); err != nil {
				s.log.Warn("Event handler failed", "kind", ev.Kind(), "error", err)
			}
		case ws.TypeError:
			s.log.Warn("Server reported an error", "message", msg.Message)
		}
	}
}

// Follow loads views and keeps them current from every area. The returned
// subscriptions stop with ctx.
func (s *EventStream) Follow(ctx context.Context, views *cache.Views) ([]*Subscription, error) {
	apply := func(ev domain.Event) error {
		return views.Apply(ctx, ev)
	}

	var subs []*Subscription
	for _, area := range bridge.Areas() {
		sub, err := s.Subscribe(ctx, area, apply)
		if err != nil {
			for _, open := range subs {
				open.Close()
			}
			return nil, err
		}
		subs = append(subs, sub)
	}

	// Loading after subscribing means no event between the two is missed.
	if err := views.Load(ctx); err != nil {
		s.log.Warn("Initial load incomplete", "stale", views.StaleLists(), "error", err)
	}
	return subs, nil
}
