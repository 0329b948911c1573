package services

import (
	"context"
	"sync"

	"auction-engine/internal/domain"
	"auction-engine/internal/eventbus"
	"auction-engine/pkg/logger"
)

// BidStore is the part of the persistence port a live auction commits through.
type BidStore interface {
	SaveBid(ctx context.Context, bidder string, amount int64, auctionID int64) (domain.Bid, error)
	SaveBuyout(ctx context.Context, bidder string, amount int64, auctionID int64) (domain.Bid, error)
	MarkClosed(ctx context.Context, auctionID int64) error
}

// LiveAuction is the in-memory owner of one auction's mutable state. Every
// read-validate-persist-mutate-emit sequence runs under mutex, so a
// scheduler close and a concurrent bid can never interleave.
type LiveAuction struct {
	mutex  sync.Mutex
	state  domain.Auction
	store  BidStore
	events *eventbus.Registry
	log    logger.Logger
}

func NewLiveAuction(auction domain.Auction, store BidStore, log logger.Logger) *LiveAuction {
	return &LiveAuction{
		state:  auction,
		store:  store,
		events: eventbus.NewRegistry("auction", log),
		log:    log.With("auction_id", auction.ID),
	}
}

func (a *LiveAuction) ID() int64 {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.state.ID
}

// Events is the auction's own registry. Listeners run while the auction lock
// is held and must not call back into the auction.
func (a *LiveAuction) Events() *eventbus.Registry {
	return a.events
}

func (a *LiveAuction) Snapshot() domain.Auction {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.state
}

func (a *LiveAuction) PlaceBid(ctx context.Context, bidder string, amount int64) (domain.Bid, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if err := domain.ValidateBid(a.state, bidder, amount); err != nil {
		return domain.Bid{}, err
	}

	bid, err := a.store.SaveBid(ctx, bidder, amount, a.state.ID)
	if err != nil {
		return domain.Bid{}, domain.Persistence("save bid", err)
	}

	previous := a.state.CurrentBidder
	a.state.CurrentBid = bid.Amount
	a.state.CurrentBidder = bid.Bidder

	a.log.Info("Bid accepted", "bidder", bidder, "amount", amount)
	a.events.Publish(domain.BidPlaced{Bid: bid, PreviousBidder: previous})
	return bid, nil
}

// Buyout commits a bid at the buyout price and closes the auction in one step.
func (a *LiveAuction) Buyout(ctx context.Context, bidder string) (domain.Bid, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	amount, err := domain.ValidateBuyout(a.state, bidder)
	if err != nil {
		return domain.Bid{}, err
	}

	bid, err := a.store.SaveBuyout(ctx, bidder, amount, a.state.ID)
	if err != nil {
		return domain.Bid{}, domain.Persistence("save buyout", err)
	}

	a.state.CurrentBid = bid.Amount
	a.state.CurrentBidder = bid.Bidder
	a.state.Status = domain.StatusClosed

	a.log.Info("Auction bought out", "bidder", bidder, "amount", amount)
	a.events.Publish(domain.BidPlaced{Bid: bid})
	a.events.Publish(domain.AuctionClosed{AuctionID: a.state.ID, FinalBid: &bid})
	return bid, nil
}

// Close is idempotent. When the store cannot record the transition the
// auction stays ongoing and the error is returned so the caller can retry.
func (a *LiveAuction) Close(ctx context.Context) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.state.Status == domain.StatusClosed {
		return nil
	}

	if err := a.store.MarkClosed(ctx, a.state.ID); err != nil {
		return domain.Persistence("mark closed", err)
	}
	a.state.Status = domain.StatusClosed

	a.log.Info("Auction closed", "winner", a.state.CurrentBidder, "amount", a.state.CurrentBid)
	a.events.Publish(domain.AuctionClosed{AuctionID: a.state.ID, FinalBid: a.state.FinalBid()})
	return nil
}

// RenameIdentity rewrites references to an account whose email changed.
func (a *LiveAuction) RenameIdentity(oldEmail, newEmail string) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.state.Seller == oldEmail {
		a.state.Seller = newEmail
	}
	if a.state.CurrentBidder == oldEmail {
		a.state.CurrentBidder = newEmail
	}
}

func (a *LiveAuction) IsClosed() bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.state.Status == domain.StatusClosed
}
