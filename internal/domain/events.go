package domain

import (
	"encoding/json"
	"fmt"
)

// EventKind identifies the channel an event travels on. The string value is
// the wire name.
type EventKind string

const (
	KindAuctionCreated     EventKind = "Auction"
	KindBidPlaced          EventKind = "Bid"
	KindAuctionClosed      EventKind = "End"
	KindAccountEdited      EventKind = "Edit"
	KindAccountBanned      EventKind = "Ban"
	KindAccountDeleted     EventKind = "DeleteAccount"
	KindAuctionDeleted     EventKind = "DeleteAuction"
	KindNotificationPosted EventKind = "Notification"
	KindCountdownTick      EventKind = "Time"
)

// AllKinds lists every kind in a stable order.
var AllKinds = []EventKind{
	KindAuctionCreated,
	KindBidPlaced,
	KindAuctionClosed,
	KindAccountEdited,
	KindAccountBanned,
	KindAccountDeleted,
	KindAuctionDeleted,
	KindNotificationPosted,
	KindCountdownTick,
}

func ParseEventKind(s string) (EventKind, error) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown event kind %q", s)
}

// Event is implemented only by the payload types in this file.
type Event interface {
	Kind() EventKind
	sealed()
}

type AuctionCreated struct {
	Auction Auction `json:"auction"`
}

type BidPlaced struct {
	Bid            Bid    `json:"bid"`
	PreviousBidder string `json:"previous_bidder,omitempty"`
}

type AuctionClosed struct {
	AuctionID int64 `json:"auction_id"`
	FinalBid  *Bid  `json:"final_bid,omitempty"`
}

type AccountEdited struct {
	OldEmail string `json:"old_email"`
	NewEmail string `json:"new_email"`
}

type AccountBanned struct {
	Email string `json:"email"`
}

type AccountDeleted struct {
	Email string `json:"email"`
}

type AuctionDeleted struct {
	AuctionID int64 `json:"auction_id"`
}

type NotificationPosted struct {
	Notification Notification `json:"notification"`
}

type CountdownTick struct {
	AuctionID        int64 `json:"auction_id"`
	RemainingSeconds int64 `json:"remaining_seconds"`
}

func (AuctionCreated) Kind() EventKind     { return KindAuctionCreated }
func (BidPlaced) Kind() EventKind          { return KindBidPlaced }
func (AuctionClosed) Kind() EventKind      { return KindAuctionClosed }
func (AccountEdited) Kind() EventKind      { return KindAccountEdited }
func (AccountBanned) Kind() EventKind      { return KindAccountBanned }
func (AccountDeleted) Kind() EventKind     { return KindAccountDeleted }
func (AuctionDeleted) Kind() EventKind     { return KindAuctionDeleted }
func (NotificationPosted) Kind() EventKind { return KindNotificationPosted }
func (CountdownTick) Kind() EventKind      { return KindCountdownTick }

func (AuctionCreated) sealed()     {}
func (BidPlaced) sealed()          {}
func (AuctionClosed) sealed()      {}
func (AccountEdited) sealed()      {}
func (AccountBanned) sealed()      {}
func (AccountDeleted) sealed()     {}
func (AuctionDeleted) sealed()     {}
func (NotificationPosted) sealed() {}
func (CountdownTick) sealed()      {}

// Envelope is the wire form of an Event.
type Envelope struct {
	Kind    EventKind       `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func EncodeEvent(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", ev.Kind(), err)
	}
	return json.Marshal(Envelope{Kind: ev.Kind(), Payload: payload})
}

func DecodeEvent(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return env.Event()
}

// Event decodes the payload into the concrete type selected by Kind.
func (e Envelope) Event() (Event, error) {
	var (
		ev  Event
		err error
	)
	switch e.Kind {
	case KindAuctionCreated:
		var p AuctionCreated
		err = json.Unmarshal(e.Payload, &p)
		ev = p
	case KindBidPlaced:
		var p BidPlaced
		err = json.Unmarshal(e.Payload, &p)
		ev = p
	case KindAuctionClosed:
		var p AuctionClosed
		err = json.Unmarshal(e.Payload, &p)
		ev = p
	case KindAccountEdited:
		var p AccountEdited
		err = json.Unmarshal(e.Payload, &p)
		ev = p
	case KindAccountBanned:
		var p AccountBanned
		err = json.Unmarshal(e.Payload, &p)
		ev = p
	case KindAccountDeleted:
		var p AccountDeleted
		err = json.Unmarshal(e.Payload, &p)
		ev = p
	case KindAuctionDeleted:
		var p AuctionDeleted
		err = json.Unmarshal(e.Payload, &p)
		ev = p
	case KindNotificationPosted:
		var p NotificationPosted
		err = json.Unmarshal(e.Payload, &p)
		ev = p
	case KindCountdownTick:
		var p CountdownTick
		err = json.Unmarshal(e.Payload, &p)
		ev = p
	default:
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Kind, err)
	}
	return ev, nil
}
