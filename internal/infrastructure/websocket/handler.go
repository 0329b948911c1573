package websocket

import (
	"net/http"
	"time"

	"auction-engine/internal/bridge"
	"auction-engine/pkg/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const maxMessageSize = 64 * 1024

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Clients are other processes, not browsers
	},
}

// Handler upgrades /events/{area} requests and turns client subscribe
// messages into bridge registrations.
type Handler struct {
	bridges      map[string]*bridge.Bridge
	connManager  *ConnectionManager
	writeTimeout time.Duration
	log          logger.Logger
}

func NewHandler(bridges []*bridge.Bridge, connManager *ConnectionManager, writeTimeout time.Duration,
	log logger.Logger) *Handler {
	byKey := make(map[string]*bridge.Bridge, len(bridges))
	for _, b := range bridges {
		byKey[b.Area().Key] = b
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Handler{
		bridges:      byKey,
		connManager:  connManager,
		writeTimeout: writeTimeout,
		log:          log,
	}
}

func (h *Handler) Routes(router *mux.Router) {
	router.HandleFunc("/events/{area}", h.HandleConnection).Methods(http.MethodGet)
}

func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	area := mux.Vars(r)["area"]
	b, ok := h.bridges[area]
	if !ok {
		http.Error(w, "unknown area", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	wsConn := NewConnection(conn, b.Area(), h.writeTimeout, h.log)
	h.connManager.RegisterConnection(wsConn, b)

	go h.handleMessages(wsConn, b)
}

func (h *Handler) handleMessages(conn *Connection, b *bridge.Bridge) {
	defer func() {
		h.connManager.UnregisterConnection(conn)
		conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := conn.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Error("Failed to read message", "connection_id", conn.ID(), "error", err)
			}
			return
		}

		switch msg.Type {
		case TypeSubscribe:
			h.handleSubscribe(conn, b, msg)
		case TypeUnsubscribe:
			h.handleUnsubscribe(conn, b, msg)
		case TypePing:
			h.reply(conn, ServerMessage{Type: TypePong})
		default:
			h.reply(conn, ServerMessage{Type: TypeError, Message: "unknown message type " + msg.Type})
		}
	}
}

func (h *Handler) handleSubscribe(conn *Connection, b *bridge.Bridge, msg ClientMessage) {
	channels := msg.Channels
	if len(channels) == 0 {
		channels = b.Area().Kinds
	}

	id, err := b.AddListener(conn, channels...)
	if err != nil {
		h.reply(conn, ServerMessage{Type: TypeError, Message: err.Error()})
		return
	}
	conn.track(id)
	h.reply(conn, ServerMessage{Type: TypeSubscribed, SubscriberID: string(id), Channels: channels})
}

func (h *Handler) handleUnsubscribe(conn *Connection, b *bridge.Bridge, msg ClientMessage) {
	id := bridge.SubscriberID(msg.SubscriberID)
	if id == "" {
		h.reply(conn, ServerMessage{Type: TypeError, Message: "subscriber_id is required"})
		return
	}

	// Only ids opened on this socket may be removed through it.
	if conn.owns(id) {
		if err := b.RemoveListener(id, msg.Channels...); err != nil {
			h.reply(conn, ServerMessage{Type: TypeError, Message: err.Error()})
			return
		}
		if !b.Holds(id) {
			conn.untrack(id)
		}
	}
	h.reply(conn, ServerMessage{Type: TypeUnsubscribed, SubscriberID: msg.SubscriberID, Channels: msg.Channels})
}

func (h *Handler) reply(conn *Connection, msg ServerMessage) {
	if err := conn.Send(msg); err != nil {
		h.log.Warn("Failed to send reply", "connection_id", conn.ID(), "type", msg.Type, "error", err)
	}
}
