package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"auction-engine/internal/bridge"
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection is one client socket bound to a single area. It is the remote
// listener for every subscription the client opens on that socket.
type Connection struct {
	id           string
	conn         *websocket.Conn
	area         bridge.Area
	writeTimeout time.Duration
	writeMutex   sync.Mutex
	log          logger.Logger

	mutex         sync.Mutex
	subscriptions map[bridge.SubscriberID]bool
}

func NewConnection(conn *websocket.Conn, area bridge.Area, writeTimeout time.Duration, log logger.Logger) *Connection {
	id := uuid.NewString()
	return &Connection{
		id:            id,
		conn:          conn,
		area:          area,
		writeTimeout:  writeTimeout,
		log:           log.With("connection_id", id, "area", area.Key),
		subscriptions: make(map[bridge.SubscriberID]bool),
	}
}

func (c *Connection) ID() string {
	return c.id
}

// Send writes one message. gorilla connections allow a single concurrent
// writer, so writes are serialized here.
func (c *Connection) Send(msg ServerMessage) error {
	return c.send(time.Now().Add(c.writeTimeout), msg)
}

func (c *Connection) send(deadline time.Time, msg ServerMessage) error {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

// Deliver implements bridge.RemoteListener.
func (c *Connection) Deliver(ctx context.Context, ev domain.Event) error {
	data, err := domain.EncodeEvent(ev)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.send(deadline, ServerMessage{Type: TypeEvent, Event: data}); err != nil {
		return fmt.Errorf("write %s to %s: %w", ev.Kind(), c.id, err)
	}
	return nil
}

func (c *Connection) track(id bridge.SubscriberID) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.subscriptions[id] = true
}

func (c *Connection) untrack(id bridge.SubscriberID) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.subscriptions, id)
}

func (c *Connection) owns(id bridge.SubscriberID) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.subscriptions[id]
}

// Subscriptions returns the subscriber ids opened on this socket.
func (c *Connection) Subscriptions() []bridge.SubscriberID {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	ids := make([]bridge.SubscriberID, 0, len(c.subscriptions))
	for id := range c.subscriptions {
		ids = append(ids, id)
	}
	return ids
}

func (c *Connection) Close() error {
	return c.conn.Close()
}
