package websocket

import (
	"encoding/json"

	"auction-engine/internal/domain"
)

// Client to server message types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
)

// Server to client message types.
const (
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeEvent        = "event"
	TypeError        = "error"
	TypePong         = "pong"
)

type ClientMessage struct {
	Type         string             `json:"type"`
	Channels     []domain.EventKind `json:"channels,omitempty"`
	SubscriberID string             `json:"subscriber_id,omitempty"`
}

type ServerMessage struct {
	Type         string             `json:"type"`
	SubscriberID string             `json:"subscriber_id,omitempty"`
	Channels     []domain.EventKind `json:"channels,omitempty"`
	// Event holds an encoded domain.Envelope.
	Event   json.RawMessage `json:"event,omitempty"`
	Message string          `json:"message,omitempty"`
}
