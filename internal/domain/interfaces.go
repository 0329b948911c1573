package domain

import (
	"context"
	"time"
)

// Repository interfaces
type AuctionRepository interface {
	SaveAuction(ctx context.Context, auction Auction) (Auction, error)
	GetAuctionByID(ctx context.Context, auctionID int64) (Auction, error)
	MarkClosed(ctx context.Context, auctionID int64) error
	// SaveBid re-validates the bid against the persisted row before storing it.
	SaveBid(ctx context.Context, bidder string, amount int64, auctionID int64) (Bid, error)
	// SaveBuyout stores the bid and closes the auction atomically.
	SaveBuyout(ctx context.Context, bidder string, amount int64, auctionID int64) (Bid, error)
	DeleteAuction(ctx context.Context, auctionID int64) error
	GetOngoing(ctx context.Context) ([]Auction, error)
	GetCreatedBy(ctx context.Context, seller string) ([]Auction, error)
	GetBidsBy(ctx context.Context, bidder string) ([]Auction, error)
	GetAll(ctx context.Context) ([]Auction, error)
}

type UserRepository interface {
	IsBanned(ctx context.Context, email string) (bool, error)
	Ban(ctx context.Context, email string) error
	// RenameUser moves every reference of oldEmail to newEmail.
	RenameUser(ctx context.Context, oldEmail, newEmail string) error
	// DeleteUser removes the user together with the auctions they sell and
	// returns the ids of the removed auctions.
	DeleteUser(ctx context.Context, email string) ([]int64, error)
}

type NotificationRepository interface {
	SaveNotification(ctx context.Context, n Notification) (Notification, error)
	GetNotifications(ctx context.Context, receiver string) ([]Notification, error)
}

// Store bundles the persistence ports used by the server model layer.
type Store interface {
	AuctionRepository
	UserRepository
	NotificationRepository
}

// ServiceRegistry maps a service name to the address it is reachable at.
type ServiceRegistry interface {
	Register(ctx context.Context, name, address string) error
	Lookup(ctx context.Context, name string) (string, error)
	Deregister(ctx context.Context, name string) error
}

// Clock abstracts wall-clock time for the scheduler and tests.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
