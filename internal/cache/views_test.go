package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend answers from an in-test auction table. fail makes every call
// return an error.
type fakeBackend struct {
	mutex         sync.Mutex
	auctions      map[int64]domain.Auction
	bidders       map[int64][]string
	notifications map[string][]domain.Notification
	fail          bool
	calls         int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		auctions:      make(map[int64]domain.Auction),
		bidders:       make(map[int64][]string),
		notifications: make(map[string][]domain.Notification),
	}
}

var errBackendDown = errors.New("backend down")

func (b *fakeBackend) put(a domain.Auction) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.auctions[a.ID] = a
	if a.CurrentBidder != "" {
		b.bidders[a.ID] = append(b.bidders[a.ID], a.CurrentBidder)
	}
}

func (b *fakeBackend) setFail(fail bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.fail = fail
}

func (b *fakeBackend) callCount() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.calls
}

func (b *fakeBackend) query(keep func(domain.Auction) bool) ([]domain.Auction, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.calls++
	if b.fail {
		return nil, errBackendDown
	}
	var result []domain.Auction
	for _, a := range b.auctions {
		if keep(a) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (b *fakeBackend) GetAuction(ctx context.Context, auctionID int64) (domain.Auction, error) {
	found, err := b.query(func(a domain.Auction) bool { return a.ID == auctionID })
	if err != nil {
		return domain.Auction{}, err
	}
	if len(found) == 0 {
		return domain.Auction{}, domain.NewNotFound("auction", auctionID)
	}
	return found[0], nil
}

func (b *fakeBackend) GetOngoing(ctx context.Context) ([]domain.Auction, error) {
	return b.query(func(a domain.Auction) bool { return a.Status == domain.StatusOngoing })
}

func (b *fakeBackend) GetCreatedBy(ctx context.Context, seller string) ([]domain.Auction, error) {
	return b.query(func(a domain.Auction) bool { return a.Seller == seller })
}

func (b *fakeBackend) GetBidsBy(ctx context.Context, bidder string) ([]domain.Auction, error) {
	return b.query(func(a domain.Auction) bool {
		for _, who := range b.bidders[a.ID] {
			if who == bidder {
				return true
			}
		}
		return false
	})
}

func (b *fakeBackend) GetAll(ctx context.Context, actor string) ([]domain.Auction, error) {
	if actor != domain.ModeratorEmail {
		return nil, domain.NewStateError("only the moderator may list every auction")
	}
	return b.query(func(domain.Auction) bool { return true })
}

func (b *fakeBackend) GetNotifications(ctx context.Context, receiver string) ([]domain.Notification, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.calls++
	if b.fail {
		return nil, errBackendDown
	}
	return append([]domain.Notification(nil), b.notifications[receiver]...), nil
}

func auction(id int64, seller, bidder string, bid int64) domain.Auction {
	return domain.Auction{
		ID:            id,
		Title:         "Lot number",
		ReservePrice:  100,
		BuyoutPrice:   500,
		MinIncrement:  10,
		Seller:        seller,
		CurrentBid:    bid,
		CurrentBidder: bidder,
		Status:        domain.StatusOngoing,
	}
}

func loadedViews(t *testing.T, identity string, backend *fakeBackend) *Views {
	t.Helper()
	v := NewViews(NewSession(identity), backend, logger.NewNop())
	require.NoError(t, v.Load(context.Background()))
	return v
}

func ids(auctions []domain.Auction) []int64 {
	out := make([]int64, 0, len(auctions))
	for _, a := range auctions {
		out = append(out, a.ID)
	}
	return out
}

func TestViews_Load(t *testing.T) {
	backend := newFakeBackend()
	backend.put(auction(1, "alice", "", 0))
	backend.put(auction(2, "bob", "alice", 120))
	backend.notifications["alice"] = []domain.Notification{{ID: 1, Receiver: "alice", Content: "hi"}}

	v := loadedViews(t, "alice", backend)
	assert.Equal(t, []int64{1, 2}, ids(v.Ongoing()))
	assert.Equal(t, []int64{1}, ids(v.Created()))
	assert.Equal(t, []int64{2}, ids(v.Bids()))
	assert.Empty(t, v.All(), "all is moderator only")
	assert.Len(t, v.Notifications(), 1)
	assert.False(t, v.Stale())

	mod := loadedViews(t, domain.ModeratorEmail, backend)
	assert.Equal(t, []int64{1, 2}, ids(mod.All()))
}

func TestViews_BidPatchesEveryCopy(t *testing.T) {
	backend := newFakeBackend()
	backend.put(auction(1, "alice", "", 0))
	v := loadedViews(t, "alice", backend)

	bid := domain.Bid{AuctionID: 1, Bidder: "bob", Amount: 150}
	require.NoError(t, v.Apply(context.Background(), domain.BidPlaced{Bid: bid}))

	for name, list := range map[string][]domain.Auction{"ongoing": v.Ongoing(), "created": v.Created()} {
		require.Len(t, list, 1, name)
		assert.Equal(t, int64(150), list[0].CurrentBid, name)
		assert.Equal(t, "bob", list[0].CurrentBidder, name)
	}
	assert.Empty(t, v.Bids())
}

func TestViews_OwnBidFetchesOnce(t *testing.T) {
	backend := newFakeBackend()
	backend.put(auction(1, "bob", "", 0))
	v := loadedViews(t, "alice", backend)
	require.Empty(t, v.Bids())

	before := backend.callCount()
	bid := domain.Bid{AuctionID: 1, Bidder: "alice", Amount: 100}
	require.NoError(t, v.Apply(context.Background(), domain.BidPlaced{Bid: bid}))
	require.Len(t, v.Bids(), 1)
	assert.Equal(t, int64(100), v.Bids()[0].CurrentBid, "fetched copy is patched with the triggering bid")
	assert.Equal(t, before+1, backend.callCount())

	// Already present: patched, not fetched again.
	require.NoError(t, v.Apply(context.Background(), domain.BidPlaced{Bid: domain.Bid{AuctionID: 1, Bidder: "carol", Amount: 120}}))
	require.NoError(t, v.Apply(context.Background(), domain.BidPlaced{Bid: domain.Bid{AuctionID: 1, Bidder: "alice", Amount: 140}}))
	assert.Equal(t, before+1, backend.callCount())
	assert.Equal(t, int64(140), v.Bids()[0].CurrentBid)
}

func TestViews_EndClosesAndRemovesFromOngoing(t *testing.T) {
	backend := newFakeBackend()
	backend.put(auction(1, "alice", "", 0))
	backend.put(auction(2, "alice", "", 0))
	v := loadedViews(t, "alice", backend)

	final := &domain.Bid{AuctionID: 1, Bidder: "b2", Amount: 115}
	require.NoError(t, v.Apply(context.Background(), domain.AuctionClosed{AuctionID: 1, FinalBid: final}))

	assert.Equal(t, []int64{2}, ids(v.Ongoing()))
	closed, ok := v.Auction(1)
	require.True(t, ok)
	assert.Equal(t, domain.StatusClosed, closed.Status)
	assert.Equal(t, int64(115), closed.CurrentBid)
	assert.Equal(t, "b2", closed.CurrentBidder)

	require.NoError(t, v.Apply(context.Background(), domain.AuctionClosed{AuctionID: 2}))
	unsold, ok := v.Auction(2)
	require.True(t, ok)
	assert.Equal(t, domain.StatusClosed, unsold.Status)
	assert.Zero(t, unsold.CurrentBid)
}

func TestViews_AuctionCreated(t *testing.T) {
	backend := newFakeBackend()
	v := loadedViews(t, "alice", backend)
	mod := loadedViews(t, domain.ModeratorEmail, backend)

	mine := domain.AuctionCreated{Auction: auction(5, "alice", "", 0)}
	theirs := domain.AuctionCreated{Auction: auction(6, "bob", "", 0)}
	for _, views := range []*Views{v, mod} {
		require.NoError(t, views.Apply(context.Background(), mine))
		require.NoError(t, views.Apply(context.Background(), theirs))
		require.NoError(t, views.Apply(context.Background(), theirs))
	}

	assert.Equal(t, []int64{5, 6}, ids(v.Ongoing()))
	assert.Equal(t, []int64{5}, ids(v.Created()))
	assert.Empty(t, v.All())
	assert.Equal(t, []int64{5, 6}, ids(mod.All()))
}

func TestViews_IdentityEventsRefetch(t *testing.T) {
	tests := []struct {
		name  string
		event domain.Event
	}{
		{name: "edit", event: domain.AccountEdited{OldEmail: "carol", NewEmail: "dave"}},
		{name: "ban", event: domain.AccountBanned{Email: "carol"}},
		{name: "delete_account", event: domain.AccountDeleted{Email: "carol"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			backend := newFakeBackend()
			backend.put(auction(1, "alice", "carol", 120))
			v := loadedViews(t, "alice", backend)

			// Server side changes the session never saw as patches.
			changed := auction(1, "alice", "dave", 120)
			backend.put(changed)
			backend.put(auction(2, "alice", "", 0))

			require.NoError(t, v.Apply(context.Background(), tc.event))

			fresh, err := backend.GetOngoing(context.Background())
			require.NoError(t, err)
			assert.Equal(t, fresh, v.Ongoing())
			created, err := backend.GetCreatedBy(context.Background(), "alice")
			require.NoError(t, err)
			assert.Equal(t, created, v.Created())
			assert.False(t, v.Stale())
		})
	}
}

func TestViews_EditOfSessionUser(t *testing.T) {
	backend := newFakeBackend()
	backend.put(auction(1, "alice", "", 0))
	v := loadedViews(t, "alice", backend)

	backend.put(auction(1, "alice2", "", 0))
	require.NoError(t, v.Apply(context.Background(), domain.AccountEdited{OldEmail: "alice", NewEmail: "alice2"}))

	assert.Equal(t, "alice2", v.Session().Identity())
	require.Len(t, v.Created(), 1)
	assert.Equal(t, "alice2", v.Created()[0].Seller)
}

func TestViews_FailedRefetchKeepsStaleContent(t *testing.T) {
	backend := newFakeBackend()
	backend.put(auction(1, "alice", "", 0))
	v := loadedViews(t, "alice", backend)

	backend.put(auction(2, "alice", "", 0))
	backend.setFail(true)
	err := v.Apply(context.Background(), domain.AccountBanned{Email: "mallory"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errBackendDown)

	assert.True(t, v.Stale())
	assert.ElementsMatch(t, []string{ListOngoing, ListCreated, ListBids, ListNotifications}, v.StaleLists(),
		"all is never fetched for a regular user")
	assert.Equal(t, []int64{1}, ids(v.Ongoing()), "old content survives")

	backend.setFail(false)
	require.NoError(t, v.RefreshStale(context.Background()))
	assert.False(t, v.Stale())
	assert.Equal(t, []int64{1, 2}, ids(v.Ongoing()))
}

func TestViews_DeleteAuctionRemovesEverywhere(t *testing.T) {
	backend := newFakeBackend()
	backend.put(auction(1, "alice", "carol", 120))
	backend.put(auction(2, "bob", "", 0))
	mod := loadedViews(t, domain.ModeratorEmail, backend)
	require.Len(t, mod.All(), 2)

	require.NoError(t, mod.Apply(context.Background(), domain.AuctionDeleted{AuctionID: 1}))
	assert.Equal(t, []int64{2}, ids(mod.Ongoing()))
	assert.Equal(t, []int64{2}, ids(mod.All()))
	assert.Empty(t, mod.Created())
	assert.Empty(t, mod.Bids())
}

func TestViews_NotificationsAndTicks(t *testing.T) {
	backend := newFakeBackend()
	backend.put(auction(1, "bob", "", 0))
	v := loadedViews(t, "alice", backend)

	var ticks []domain.CountdownTick
	v.OnCountdown(func(tick domain.CountdownTick) { ticks = append(ticks, tick) })

	require.NoError(t, v.Apply(context.Background(), domain.NotificationPosted{
		Notification: domain.Notification{ID: 9, Receiver: "alice", Content: "outbid"},
	}))
	require.NoError(t, v.Apply(context.Background(), domain.NotificationPosted{
		Notification: domain.Notification{ID: 10, Receiver: "bob", Content: "sold"},
	}))
	require.NoError(t, v.Apply(context.Background(), domain.CountdownTick{AuctionID: 1, RemainingSeconds: 42}))

	require.Len(t, v.Notifications(), 1)
	assert.Equal(t, "outbid", v.Notifications()[0].Content)
	require.Len(t, ticks, 1)
	assert.Equal(t, int64(42), ticks[0].RemainingSeconds)
	assert.Equal(t, []int64{1}, ids(v.Ongoing()))
}

func TestViews_ReadsReturnCopies(t *testing.T) {
	backend := newFakeBackend()
	backend.put(auction(1, "bob", "", 0))
	v := loadedViews(t, "alice", backend)

	ongoing := v.Ongoing()
	ongoing[0].CurrentBid = 999
	assert.Zero(t, v.Ongoing()[0].CurrentBid)
}

func TestViews_BidBeforeCreationIsKept(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	v := loadedViews(t, "alice", backend)

	// The bid stream overtook the listing stream.
	require.NoError(t, v.Apply(ctx, domain.BidPlaced{Bid: domain.Bid{AuctionID: 7, Bidder: "bob", Amount: 120}}))
	require.NoError(t, v.Apply(ctx, domain.BidPlaced{Bid: domain.Bid{AuctionID: 7, Bidder: "carol", Amount: 140}}))
	require.Empty(t, v.Ongoing())

	require.NoError(t, v.Apply(ctx, domain.AuctionCreated{Auction: auction(7, "alice", "", 0)}))
	for name, list := range map[string][]domain.Auction{"ongoing": v.Ongoing(), "created": v.Created()} {
		require.Len(t, list, 1, name)
		assert.Equal(t, int64(140), list[0].CurrentBid, name)
		assert.Equal(t, "carol", list[0].CurrentBidder, name)
	}

	// Consumed once: a second listing of the same id is not patched again.
	require.NoError(t, v.Apply(ctx, domain.AuctionDeleted{AuctionID: 7}))
	require.NoError(t, v.Apply(ctx, domain.AuctionCreated{Auction: auction(7, "alice", "", 0)}))
	require.Len(t, v.Ongoing(), 1)
	assert.Zero(t, v.Ongoing()[0].CurrentBid)
}

func TestViews_EarlyBidDroppedOnClose(t *testing.T) {
	ctx := context.Background()
	v := loadedViews(t, "alice", newFakeBackend())

	require.NoError(t, v.Apply(ctx, domain.BidPlaced{Bid: domain.Bid{AuctionID: 8, Bidder: "bob", Amount: 120}}))
	require.NoError(t, v.Apply(ctx, domain.AuctionClosed{AuctionID: 8}))
	require.NoError(t, v.Apply(ctx, domain.AuctionCreated{Auction: auction(8, "dave", "", 0)}))

	require.Len(t, v.Ongoing(), 1)
	assert.Zero(t, v.Ongoing()[0].CurrentBid)
}
