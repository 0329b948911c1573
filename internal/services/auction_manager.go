package services

import (
	"context"
	"sync"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/internal/eventbus"
	"auction-engine/pkg/logger"
)

// AuctionScheduler is the part of the expiration scheduler the manager drives.
type AuctionScheduler interface {
	Schedule(auctionID int64, endTime time.Time)
	Cancel(auctionID int64)
}

// AuctionManager is the server model layer for auctions. It owns every live
// auction of the process and relays their events into the shared registry.
type AuctionManager struct {
	store     domain.Store
	events    *eventbus.Registry
	scheduler AuctionScheduler
	clock     domain.Clock
	log       logger.Logger

	auctions      map[int64]*liveEntry
	auctionsMutex sync.RWMutex
}

type liveEntry struct {
	auction *LiveAuction
	relay   *auctionRelay
}

func NewAuctionManager(store domain.Store, events *eventbus.Registry, clock domain.Clock,
	log logger.Logger) *AuctionManager {
	return &AuctionManager{
		store:    store,
		events:   events,
		clock:    clock,
		log:      log,
		auctions: make(map[int64]*liveEntry),
	}
}

func (am *AuctionManager) SetScheduler(scheduler AuctionScheduler) {
	am.scheduler = scheduler
}

// Events is the process-wide registry the bridges subscribe to.
func (am *AuctionManager) Events() *eventbus.Registry {
	return am.events
}

func (am *AuctionManager) StartAuction(ctx context.Context, seller string, draft domain.ListingDraft,
	duration time.Duration) (domain.Auction, error) {
	if err := domain.ValidateListing(seller, draft, duration); err != nil {
		return domain.Auction{}, err
	}
	if err := am.ensureNotBanned(ctx, seller); err != nil {
		return domain.Auction{}, err
	}

	now := am.clock.Now()
	auction, err := am.store.SaveAuction(ctx, domain.Auction{
		Title:        draft.Title,
		Description:  draft.Description,
		ReservePrice: draft.ReservePrice,
		BuyoutPrice:  draft.BuyoutPrice,
		MinIncrement: draft.MinIncrement,
		StartTime:    now,
		EndTime:      now.Add(duration),
		Seller:       seller,
		Status:       domain.StatusOngoing,
		ImagePath:    draft.ImagePath,
	})
	if err != nil {
		return domain.Auction{}, domain.Persistence("save auction", err)
	}

	am.adopt(auction)
	am.log.Info("Auction started", "auction_id", auction.ID, "seller", seller, "end_time", auction.EndTime)
	am.events.Publish(domain.AuctionCreated{Auction: auction})
	return auction, nil
}

func (am *AuctionManager) PlaceBid(ctx context.Context, bidder string, auctionID int64, amount int64) (domain.Bid, error) {
	if bidder == "" {
		return domain.Bid{}, domain.NewValidationError("bidder is required")
	}
	if err := am.ensureNotBanned(ctx, bidder); err != nil {
		return domain.Bid{}, err
	}

	live, err := am.live(ctx, auctionID)
	if err != nil {
		return domain.Bid{}, err
	}
	return live.PlaceBid(ctx, bidder, amount)
}

func (am *AuctionManager) Buyout(ctx context.Context, bidder string, auctionID int64) (domain.Bid, error) {
	if bidder == "" {
		return domain.Bid{}, domain.NewValidationError("bidder is required")
	}
	if err := am.ensureNotBanned(ctx, bidder); err != nil {
		return domain.Bid{}, err
	}

	live, err := am.live(ctx, auctionID)
	if err != nil {
		return domain.Bid{}, err
	}
	return live.Buyout(ctx, bidder)
}

// ExpireAuction is the scheduler's terminal transition. Auctions the process
// no longer holds are already closed or deleted.
func (am *AuctionManager) ExpireAuction(ctx context.Context, auctionID int64) error {
	am.auctionsMutex.RLock()
	entry, ok := am.auctions[auctionID]
	am.auctionsMutex.RUnlock()
	if !ok {
		return nil
	}
	return entry.auction.Close(ctx)
}

// PublishCountdown forwards a scheduler tick to the process registry.
func (am *AuctionManager) PublishCountdown(auctionID int64, remainingSeconds int64) error {
	am.events.Publish(domain.CountdownTick{AuctionID: auctionID, RemainingSeconds: remainingSeconds})
	return nil
}

func (am *AuctionManager) DeleteAuction(ctx context.Context, actor string, auctionID int64) error {
	if actor != domain.ModeratorEmail {
		return domain.NewStateError("only the moderator can delete auctions")
	}

	auction, err := am.GetAuction(ctx, auctionID)
	if err != nil {
		return err
	}

	if err := am.store.DeleteAuction(ctx, auctionID); err != nil {
		return domain.Persistence("delete auction", err)
	}
	am.release(auctionID)

	am.log.Info("Auction deleted", "auction_id", auctionID, "actor", actor)
	am.events.Publish(domain.AuctionDeleted{AuctionID: auctionID})

	am.notify(ctx, auction.Seller, deletedMessage(auction))
	if auction.CurrentBidder != auction.Seller {
		am.notify(ctx, auction.CurrentBidder, deletedMessage(auction))
	}
	return nil
}

// GetAuction prefers the live copy, which may be ahead of the store only by
// the commit currently in flight.
func (am *AuctionManager) GetAuction(ctx context.Context, auctionID int64) (domain.Auction, error) {
	am.auctionsMutex.RLock()
	entry, ok := am.auctions[auctionID]
	am.auctionsMutex.RUnlock()
	if ok {
		return entry.auction.Snapshot(), nil
	}

	auction, err := am.store.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return domain.Auction{}, domain.Persistence("get auction", err)
	}
	return auction, nil
}

func (am *AuctionManager) GetOngoing(ctx context.Context) ([]domain.Auction, error) {
	auctions, err := am.store.GetOngoing(ctx)
	return auctions, domain.Persistence("get ongoing", err)
}

func (am *AuctionManager) GetCreatedBy(ctx context.Context, seller string) ([]domain.Auction, error) {
	auctions, err := am.store.GetCreatedBy(ctx, seller)
	return auctions, domain.Persistence("get created", err)
}

func (am *AuctionManager) GetBidsBy(ctx context.Context, bidder string) ([]domain.Auction, error) {
	auctions, err := am.store.GetBidsBy(ctx, bidder)
	return auctions, domain.Persistence("get bids", err)
}

func (am *AuctionManager) GetAll(ctx context.Context, actor string) ([]domain.Auction, error) {
	if actor != domain.ModeratorEmail {
		return nil, domain.NewStateError("only the moderator can list every auction")
	}
	auctions, err := am.store.GetAll(ctx)
	return auctions, domain.Persistence("get all", err)
}

func (am *AuctionManager) GetNotifications(ctx context.Context, receiver string) ([]domain.Notification, error) {
	notifications, err := am.store.GetNotifications(ctx, receiver)
	return notifications, domain.Persistence("get notifications", err)
}

// LoadOngoing adopts every ongoing auction of the store the process does not
// hold yet and returns how many were adopted.
func (am *AuctionManager) LoadOngoing(ctx context.Context) (int, error) {
	auctions, err := am.store.GetOngoing(ctx)
	if err != nil {
		return 0, domain.Persistence("load ongoing", err)
	}

	adopted := 0
	for _, auction := range auctions {
		if am.holds(auction.ID) {
			continue
		}
		am.adopt(auction)
		adopted++
	}
	if adopted > 0 {
		am.log.Info("Loaded ongoing auctions", "count", adopted)
	}
	return adopted, nil
}

// RenameIdentity moves an account's references in every live auction.
func (am *AuctionManager) RenameIdentity(oldEmail, newEmail string) {
	// Auction locks are never taken while holding auctionsMutex.
	am.auctionsMutex.RLock()
	entries := make([]*liveEntry, 0, len(am.auctions))
	for _, entry := range am.auctions {
		entries = append(entries, entry)
	}
	am.auctionsMutex.RUnlock()

	for _, entry := range entries {
		entry.auction.RenameIdentity(oldEmail, newEmail)
		entry.relay.rename(oldEmail, newEmail)
	}
}

// Forget drops live auctions removed from the store by another operation,
// such as an account deletion.
func (am *AuctionManager) Forget(auctionIDs ...int64) {
	for _, id := range auctionIDs {
		am.release(id)
	}
}

func (am *AuctionManager) Held() int {
	am.auctionsMutex.RLock()
	defer am.auctionsMutex.RUnlock()
	return len(am.auctions)
}

func (am *AuctionManager) holds(auctionID int64) bool {
	am.auctionsMutex.RLock()
	defer am.auctionsMutex.RUnlock()
	_, ok := am.auctions[auctionID]
	return ok
}

func (am *AuctionManager) live(ctx context.Context, auctionID int64) (*LiveAuction, error) {
	am.auctionsMutex.RLock()
	entry, ok := am.auctions[auctionID]
	am.auctionsMutex.RUnlock()
	if ok {
		return entry.auction, nil
	}

	auction, err := am.store.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return nil, domain.Persistence("get auction", err)
	}
	if auction.Status != domain.StatusOngoing {
		return nil, domain.NewStateError("auction %d is %s", auction.ID, auction.Status)
	}
	return am.adopt(auction), nil
}

func (am *AuctionManager) adopt(auction domain.Auction) *LiveAuction {
	am.auctionsMutex.Lock()
	if entry, ok := am.auctions[auction.ID]; ok {
		am.auctionsMutex.Unlock()
		return entry.auction
	}

	live := NewLiveAuction(auction, am.store, am.log)
	relay := &auctionRelay{am: am, auctionID: auction.ID, title: auction.Title, seller: auction.Seller}
	live.Events().Subscribe(domain.KindBidPlaced, relay)
	live.Events().Subscribe(domain.KindAuctionClosed, relay)
	am.auctions[auction.ID] = &liveEntry{auction: live, relay: relay}
	am.auctionsMutex.Unlock()

	if am.scheduler != nil {
		am.scheduler.Schedule(auction.ID, auction.EndTime)
	}
	return live
}

func (am *AuctionManager) release(auctionID int64) {
	am.auctionsMutex.Lock()
	delete(am.auctions, auctionID)
	am.auctionsMutex.Unlock()

	if am.scheduler != nil {
		am.scheduler.Cancel(auctionID)
	}
}

func (am *AuctionManager) ensureNotBanned(ctx context.Context, email string) error {
	banned, err := am.store.IsBanned(ctx, email)
	if err != nil {
		return domain.Persistence("check ban", err)
	}
	if banned {
		return domain.NewStateError("account %s is banned", email)
	}
	return nil
}

// auctionRelay forwards one live auction's events to the process registry.
// It runs under the auction lock, so it keeps the fields it needs itself
// instead of reading them back from the auction.
type auctionRelay struct {
	am        *AuctionManager
	auctionID int64
	title     string

	mutex  sync.Mutex
	seller string
}

func (r *auctionRelay) rename(oldEmail, newEmail string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.seller == oldEmail {
		r.seller = newEmail
	}
}

func (r *auctionRelay) sellerEmail() string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.seller
}

func (r *auctionRelay) OnEvent(ev domain.Event) error {
	ctx := context.Background()
	auction := domain.Auction{ID: r.auctionID, Title: r.title, Seller: r.sellerEmail()}

	switch e := ev.(type) {
	case domain.BidPlaced:
		r.am.events.Publish(e)
		if e.PreviousBidder != "" && e.PreviousBidder != e.Bid.Bidder {
			r.am.notify(ctx, e.PreviousBidder, outbidMessage(auction, e.Bid))
		}
	case domain.AuctionClosed:
		r.am.release(r.auctionID)
		r.am.events.Publish(e)
		if e.FinalBid != nil {
			r.am.notify(ctx, e.FinalBid.Bidder, winnerMessage(auction, *e.FinalBid))
			r.am.notify(ctx, auction.Seller, soldMessage(auction, *e.FinalBid))
		} else {
			r.am.notify(ctx, auction.Seller, unsoldMessage(auction))
		}
	}
	return nil
}
