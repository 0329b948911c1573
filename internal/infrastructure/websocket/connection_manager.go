package websocket

import (
	"sync"

	"auction-engine/internal/bridge"
	"auction-engine/pkg/logger"
)

// ConnectionManager tracks open sockets so their subscriptions can be
// released on disconnect and shutdown.
type ConnectionManager struct {
	connections map[string]*managedConn // connectionID -> connection
	mutex       sync.RWMutex
	log         logger.Logger
}

type managedConn struct {
	conn   *Connection
	bridge *bridge.Bridge
}

func NewConnectionManager(log logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*managedConn),
		log:         log,
	}
}

func (cm *ConnectionManager) RegisterConnection(conn *Connection, b *bridge.Bridge) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	cm.connections[conn.ID()] = &managedConn{conn: conn, bridge: b}
	cm.log.Info("Connection registered", "connection_id", conn.ID(), "area", b.Area().Key)
}

// UnregisterConnection removes every subscription the connection holds.
func (cm *ConnectionManager) UnregisterConnection(conn *Connection) {
	cm.mutex.Lock()
	mc, exists := cm.connections[conn.ID()]
	delete(cm.connections, conn.ID())
	cm.mutex.Unlock()

	if !exists {
		return
	}

	for _, id := range conn.Subscriptions() {
		if err := mc.bridge.RemoveListener(id); err != nil {
			cm.log.Error("Failed to remove listener", "connection_id", conn.ID(), "subscriber", id, "error", err)
		}
		conn.untrack(id)
	}
	cm.log.Info("Connection unregistered", "connection_id", conn.ID())
}

func (cm *ConnectionManager) Count() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.connections)
}

// CloseAll closes every socket. The read loops then unregister them.
func (cm *ConnectionManager) CloseAll() {
	cm.mutex.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for _, mc := range cm.connections {
		conns = append(conns, mc.conn)
	}
	cm.mutex.RUnlock()

	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			cm.log.Error("Failed to close connection", "connection_id", conn.ID(), "error", err)
		}
	}
	cm.log.Info("Connections closed", "count", len(conns))
}
