package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/internal/eventbus"
	"auction-engine/internal/infrastructure/memory"
	"auction-engine/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type eventLog struct {
	mu     sync.Mutex
	events []domain.Event
}

func (l *eventLog) OnEvent(ev domain.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) kinds() []domain.EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	kinds := make([]domain.EventKind, 0, len(l.events))
	for _, ev := range l.events {
		kinds = append(kinds, ev.Kind())
	}
	return kinds
}

func (l *eventLog) ofKind(kind domain.EventKind) []domain.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Event
	for _, ev := range l.events {
		if ev.Kind() == kind {
			out = append(out, ev)
		}
	}
	return out
}

func watch(reg *eventbus.Registry, kinds ...domain.EventKind) *eventLog {
	l := &eventLog{}
	if len(kinds) == 0 {
		kinds = domain.AllKinds
	}
	reg.SubscribeAll(l, kinds...)
	return l
}

func newLive(t *testing.T) (*LiveAuction, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	a, err := store.SaveAuction(context.Background(), domain.Auction{
		Title:        "Mechanical keyboard",
		Description:  "Hot-swappable, brown switches, lightly used.",
		ReservePrice: 100,
		BuyoutPrice:  500,
		MinIncrement: 10,
		Seller:       "s",
		Status:       domain.StatusOngoing,
	})
	require.NoError(t, err)
	return NewLiveAuction(a, store, logger.NewNop()), store
}

func TestLiveAuction_BidSequence(t *testing.T) {
	ctx := context.Background()
	live, _ := newLive(t)
	events := watch(live.Events())

	_, err := live.PlaceBid(ctx, "b1", 100)
	require.NoError(t, err)

	_, err = live.PlaceBid(ctx, "b2", 105)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)

	bid, err := live.PlaceBid(ctx, "b2", 115)
	require.NoError(t, err)
	assert.Equal(t, int64(115), bid.Amount)

	snap := live.Snapshot()
	assert.Equal(t, int64(115), snap.CurrentBid)
	assert.Equal(t, "b2", snap.CurrentBidder)

	bids := events.ofKind(domain.KindBidPlaced)
	require.Len(t, bids, 2)
	assert.Equal(t, "", bids[0].(domain.BidPlaced).PreviousBidder)
	assert.Equal(t, "b1", bids[1].(domain.BidPlaced).PreviousBidder)
}

func TestLiveAuction_ConcurrentBidsOneWins(t *testing.T) {
	ctx := context.Background()
	live, store := newLive(t)
	_, err := live.PlaceBid(ctx, "b0", 100)
	require.NoError(t, err)

	bidders := []string{"b1", "b2", "b3", "b4", "b5", "b6", "b7", "b8"}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	start := make(chan struct{})
	for _, b := range bidders {
		wg.Add(1)
		go func(bidder string) {
			defer wg.Done()
			<-start
			// Each amount clears the increment against the state before the race.
			_, err := live.PlaceBid(ctx, bidder, 115)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted++
				return
			}
			var ve *domain.ValidationError
			if errors.As(err, &ve) {
				rejected++
			}
		}(b)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, len(bidders)-1, rejected)
	assert.Len(t, store.BidsFor(live.ID()), 2)
	assert.Equal(t, int64(115), live.Snapshot().CurrentBid)
}

func TestLiveAuction_ClosedIsTerminal(t *testing.T) {
	ctx := context.Background()
	live, store := newLive(t)
	events := watch(live.Events())

	_, err := live.PlaceBid(ctx, "b1", 120)
	require.NoError(t, err)

	require.NoError(t, live.Close(ctx))
	require.NoError(t, live.Close(ctx))

	ends := events.ofKind(domain.KindAuctionClosed)
	require.Len(t, ends, 1)
	final := ends[0].(domain.AuctionClosed).FinalBid
	require.NotNil(t, final)
	assert.Equal(t, "b1", final.Bidder)

	var se *domain.StateError
	_, err = live.PlaceBid(ctx, "b2", 1000)
	require.ErrorAs(t, err, &se)
	_, err = live.Buyout(ctx, "b2")
	require.ErrorAs(t, err, &se)

	stored, err := store.GetAuctionByID(ctx, live.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, stored.Status)
}

func TestLiveAuction_Buyout(t *testing.T) {
	ctx := context.Background()
	live, _ := newLive(t)
	events := watch(live.Events())

	bid, err := live.Buyout(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), bid.Amount)

	snap := live.Snapshot()
	assert.Equal(t, domain.StatusClosed, snap.Status)
	assert.Equal(t, "b1", snap.CurrentBidder)
	assert.Equal(t, []domain.EventKind{domain.KindBidPlaced, domain.KindAuctionClosed}, events.kinds())

	// The scheduler's own close after a buyout must not fire again.
	require.NoError(t, live.Close(ctx))
	assert.Len(t, events.ofKind(domain.KindAuctionClosed), 1)
}

func TestLiveAuction_BuyoutAfterBidRejected(t *testing.T) {
	ctx := context.Background()
	live, _ := newLive(t)

	_, err := live.PlaceBid(ctx, "b1", 100)
	require.NoError(t, err)

	_, err = live.Buyout(ctx, "b2")
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, domain.StatusOngoing, live.Snapshot().Status)
}

func TestLiveAuction_ModeratorAndSellerRejected(t *testing.T) {
	ctx := context.Background()
	live, _ := newLive(t)
	before := live.Snapshot()

	_, err := live.PlaceBid(ctx, domain.ModeratorEmail, 200)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Reason, "moderator")

	_, err = live.PlaceBid(ctx, "s", 200)
	require.ErrorAs(t, err, &ve)

	assert.Equal(t, before, live.Snapshot())
}

type failingStore struct {
	*memory.Store
	failBids  bool
	failClose bool
}

func (f *failingStore) SaveBid(ctx context.Context, bidder string, amount int64, auctionID int64) (domain.Bid, error) {
	if f.failBids {
		return domain.Bid{}, errors.New("connection reset")
	}
	return f.Store.SaveBid(ctx, bidder, amount, auctionID)
}

func (f *failingStore) MarkClosed(ctx context.Context, auctionID int64) error {
	if f.failClose {
		return errors.New("connection reset")
	}
	return f.Store.MarkClosed(ctx, auctionID)
}

func TestLiveAuction_PersistenceFailureCommitsNothing(t *testing.T) {
	ctx := context.Background()
	base, store := newLive(t)
	fs := &failingStore{Store: store, failBids: true, failClose: true}
	live := NewLiveAuction(base.Snapshot(), fs, logger.NewNop())
	events := watch(live.Events())

	_, err := live.PlaceBid(ctx, "b1", 100)
	var pf *domain.PersistenceFault
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, int64(0), live.Snapshot().CurrentBid)

	err = live.Close(ctx)
	require.ErrorAs(t, err, &pf)
	assert.False(t, live.IsClosed())
	assert.Empty(t, events.kinds())

	fs.failClose = false
	require.NoError(t, live.Close(ctx))
	assert.True(t, live.IsClosed())
	assert.Equal(t, []domain.EventKind{domain.KindAuctionClosed}, events.kinds())
}

func TestLiveAuction_RenameIdentity(t *testing.T) {
	ctx := context.Background()
	live, _ := newLive(t)
	_, err := live.PlaceBid(ctx, "b1", 100)
	require.NoError(t, err)

	live.RenameIdentity("b1", "b1-new")
	live.RenameIdentity("s", "s-new")

	snap := live.Snapshot()
	assert.Equal(t, "b1-new", snap.CurrentBidder)
	assert.Equal(t, "s-new", snap.Seller)
}

func TestLiveAuction_NoReserveRejectsZeroAndLateBuyout(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	a, err := store.SaveAuction(ctx, domain.Auction{
		Title:        "Paperback lot",
		Description:  "Twelve novels, mixed condition, no reserve.",
		ReservePrice: 0,
		BuyoutPrice:  500,
		MinIncrement: 10,
		Seller:       "s",
		Status:       domain.StatusOngoing,
	})
	require.NoError(t, err)
	live := NewLiveAuction(a, store, logger.NewNop())

	var ve *domain.ValidationError
	_, err = live.PlaceBid(ctx, "b1", 0)
	require.ErrorAs(t, err, &ve)

	_, err = live.PlaceBid(ctx, "b1", 1)
	require.NoError(t, err)

	_, err = live.PlaceBid(ctx, "b2", 1)
	require.ErrorAs(t, err, &ve)

	_, err = live.Buyout(ctx, "b2")
	require.ErrorAs(t, err, &ve)

	snap := live.Snapshot()
	assert.Equal(t, domain.StatusOngoing, snap.Status)
	assert.Equal(t, "b1", snap.CurrentBidder)
	assert.Equal(t, int64(1), snap.CurrentBid)
}
