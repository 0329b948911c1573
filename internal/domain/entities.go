package domain

import (
	"time"
)

// ModeratorEmail is the single privileged identity. It may ban users and delete
// auctions but can never sell or bid.
const ModeratorEmail = "admin"

type Auction struct {
	ID            int64         `json:"id"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	ReservePrice  int64         `json:"reserve_price"`
	BuyoutPrice   int64         `json:"buyout_price"`
	MinIncrement  int64         `json:"min_increment"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	CurrentBid    int64         `json:"current_bid"`
	CurrentBidder string        `json:"current_bidder,omitempty"`
	Seller        string        `json:"seller"`
	Status        AuctionStatus `json:"status"`
	ImagePath     string        `json:"image_path,omitempty"`
}

// HasBids reports whether any bid has been accepted. A bid holder is set by
// every accepted bid, whatever its amount.
func (a Auction) HasBids() bool {
	return a.CurrentBidder != ""
}

// FinalBid returns the winning bid of the auction, or nil when nobody bid.
func (a Auction) FinalBid() *Bid {
	if a.CurrentBidder == "" {
		return nil
	}
	return &Bid{AuctionID: a.ID, Bidder: a.CurrentBidder, Amount: a.CurrentBid}
}

type AuctionStatus int

const (
	StatusOngoing AuctionStatus = iota
	StatusClosed
)

func (s AuctionStatus) String() string {
	switch s {
	case StatusOngoing:
		return "ongoing"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ListingDraft carries the seller supplied fields of a new auction.
type ListingDraft struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	ReservePrice int64  `json:"reserve_price"`
	BuyoutPrice  int64  `json:"buyout_price"`
	MinIncrement int64  `json:"min_increment"`
	ImagePath    string `json:"image_path,omitempty"`
}

type Bid struct {
	ID        int64     `json:"id"`
	AuctionID int64     `json:"auction_id"`
	Bidder    string    `json:"bidder"`
	Amount    int64     `json:"amount"`
	PlacedAt  time.Time `json:"placed_at"`
}

type Notification struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
	Receiver  string    `json:"receiver"`
}
