// Package memory is a concurrency-safe in-memory implementation of domain.Store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"auction-engine/internal/domain"
)

var _ domain.Store = (*Store)(nil)

type Store struct {
	mu            sync.RWMutex
	auctions      map[int64]domain.Auction
	bids          map[int64][]domain.Bid // key: auctionID
	notifications map[string][]domain.Notification
	banned        map[string]bool
	nextAuctionID int64
	nextBidID     int64
	nextNoteID    int64
	now           func() time.Time
}

func NewStore() *Store {
	return &Store{
		auctions:      make(map[int64]domain.Auction),
		bids:          make(map[int64][]domain.Bid),
		notifications: make(map[string][]domain.Notification),
		banned:        make(map[string]bool),
		now:           time.Now,
	}
}

func (s *Store) SaveAuction(ctx context.Context, auction domain.Auction) (domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextAuctionID++
	auction.ID = s.nextAuctionID
	s.auctions[auction.ID] = auction
	return auction, nil
}

func (s *Store) GetAuctionByID(ctx context.Context, auctionID int64) (domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	auction, ok := s.auctions[auctionID]
	if !ok {
		return domain.Auction{}, domain.NewNotFound("auction", auctionID)
	}
	return auction, nil
}

func (s *Store) MarkClosed(ctx context.Context, auctionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	auction, ok := s.auctions[auctionID]
	if !ok {
		return domain.NewNotFound("auction", auctionID)
	}
	auction.Status = domain.StatusClosed
	s.auctions[auctionID] = auction
	return nil
}

// SaveBid re-runs the bid rules against the stored auction before recording.
func (s *Store) SaveBid(ctx context.Context, bidder string, amount int64, auctionID int64) (domain.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	auction, ok := s.auctions[auctionID]
	if !ok {
		return domain.Bid{}, domain.NewNotFound("auction", auctionID)
	}
	if err := domain.ValidateBid(auction, bidder, amount); err != nil {
		return domain.Bid{}, err
	}

	return s.recordBid(auction, bidder, amount, false), nil
}

func (s *Store) SaveBuyout(ctx context.Context, bidder string, amount int64, auctionID int64) (domain.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	auction, ok := s.auctions[auctionID]
	if !ok {
		return domain.Bid{}, domain.NewNotFound("auction", auctionID)
	}
	price, err := domain.ValidateBuyout(auction, bidder)
	if err != nil {
		return domain.Bid{}, err
	}
	if amount != price {
		return domain.Bid{}, domain.NewValidationError("buyout amount %d does not match the buyout price %d", amount, price)
	}

	return s.recordBid(auction, bidder, amount, true), nil
}

func (s *Store) recordBid(auction domain.Auction, bidder string, amount int64, closing bool) domain.Bid {
	s.nextBidID++
	bid := domain.Bid{
		ID:        s.nextBidID,
		AuctionID: auction.ID,
		Bidder:    bidder,
		Amount:    amount,
		PlacedAt:  s.now(),
	}
	s.bids[auction.ID] = append(s.bids[auction.ID], bid)

	auction.CurrentBid = amount
	auction.CurrentBidder = bidder
	if closing {
		auction.Status = domain.StatusClosed
	}
	s.auctions[auction.ID] = auction
	return bid
}

func (s *Store) DeleteAuction(ctx context.Context, auctionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.auctions[auctionID]; !ok {
		return domain.NewNotFound("auction", auctionID)
	}
	delete(s.auctions, auctionID)
	delete(s.bids, auctionID)
	return nil
}

func (s *Store) GetOngoing(ctx context.Context) ([]domain.Auction, error) {
	return s.filter(func(a domain.Auction) bool { return a.Status == domain.StatusOngoing }), nil
}

func (s *Store) GetCreatedBy(ctx context.Context, seller string) ([]domain.Auction, error) {
	return s.filter(func(a domain.Auction) bool { return a.Seller == seller }), nil
}

func (s *Store) GetBidsBy(ctx context.Context, bidder string) ([]domain.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Auction
	for id, bids := range s.bids {
		for _, b := range bids {
			if b.Bidder == bidder {
				result = append(result, s.auctions[id])
				break
			}
		}
	}
	sortByID(result)
	return result, nil
}

func (s *Store) GetAll(ctx context.Context) ([]domain.Auction, error) {
	return s.filter(func(domain.Auction) bool { return true }), nil
}

func (s *Store) filter(keep func(domain.Auction) bool) []domain.Auction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Auction
	for _, a := range s.auctions {
		if keep(a) {
			result = append(result, a)
		}
	}
	sortByID(result)
	return result
}

func sortByID(auctions []domain.Auction) {
	sort.Slice(auctions, func(i, j int) bool { return auctions[i].ID < auctions[j].ID })
}

func (s *Store) IsBanned(ctx context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.banned[email], nil
}

func (s *Store) Ban(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banned[email] = true
	return nil
}

func (s *Store) RenameUser(ctx context.Context, oldEmail, newEmail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.knows(newEmail) {
		return domain.NewValidationError("email %s is already in use", newEmail)
	}

	for id, a := range s.auctions {
		if a.Seller == oldEmail {
			a.Seller = newEmail
		}
		if a.CurrentBidder == oldEmail {
			a.CurrentBidder = newEmail
		}
		s.auctions[id] = a
	}
	for id, bids := range s.bids {
		for i := range bids {
			if bids[i].Bidder == oldEmail {
				bids[i].Bidder = newEmail
			}
		}
		s.bids[id] = bids
	}
	if notes, ok := s.notifications[oldEmail]; ok {
		for i := range notes {
			notes[i].Receiver = newEmail
		}
		s.notifications[newEmail] = notes
		delete(s.notifications, oldEmail)
	}
	if s.banned[oldEmail] {
		s.banned[newEmail] = true
		delete(s.banned, oldEmail)
	}
	return nil
}

// knows reports whether the email appears anywhere in the store.
func (s *Store) knows(email string) bool {
	if s.banned[email] || len(s.notifications[email]) > 0 {
		return true
	}
	for _, a := range s.auctions {
		if a.Seller == email || a.CurrentBidder == email {
			return true
		}
	}
	return false
}

func (s *Store) DeleteUser(ctx context.Context, email string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []int64
	for id, a := range s.auctions {
		if a.Seller == email {
			removed = append(removed, id)
			delete(s.auctions, id)
			delete(s.bids, id)
		}
	}
	delete(s.notifications, email)
	delete(s.banned, email)

	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	return removed, nil
}

func (s *Store) SaveNotification(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	if n.Receiver == "" {
		return domain.Notification{}, fmt.Errorf("save notification: receiver is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextNoteID++
	n.ID = s.nextNoteID
	s.notifications[n.Receiver] = append(s.notifications[n.Receiver], n)
	return n, nil
}

func (s *Store) GetNotifications(ctx context.Context, receiver string) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Notification(nil), s.notifications[receiver]...), nil
}

// BidsFor returns the recorded bids of an auction. Intended for tests.
func (s *Store) BidsFor(auctionID int64) []domain.Bid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Bid(nil), s.bids[auctionID]...)
}
