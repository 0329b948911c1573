package mysql

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"auction-engine/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getMySQLStore(t *testing.T) (*Store, *sql.DB) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/auctions?parseTime=true"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	db, err := Open(ctx, dsn, PoolOptions{MaxOpenConns: 4, MaxIdleConns: 2, ConnMaxLifetime: time.Minute})
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	require.NoError(t, Migrate(context.Background(), db))
	return NewStore(db), db
}

// uniqueEmail keeps runs against a shared database independent.
func uniqueEmail(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8] + "@example.com"
}

func seedAuction(t *testing.T, s *Store, seller string) domain.Auction {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	a, err := s.SaveAuction(context.Background(), domain.Auction{
		Title:        "Vintage camera",
		Description:  "A working rangefinder from 1962",
		ReservePrice: 100,
		BuyoutPrice:  500,
		MinIncrement: 10,
		StartTime:    now,
		EndTime:      now.Add(time.Minute),
		Seller:       seller,
	})
	require.NoError(t, err)
	return a
}

func TestStore_AuctionRoundTrip(t *testing.T) {
	s, db := getMySQLStore(t)
	defer db.Close()
	ctx := context.Background()

	seller := uniqueEmail("seller")
	a := seedAuction(t, s, seller)
	require.NotZero(t, a.ID)

	stored, err := s.GetAuctionByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Title, stored.Title)
	assert.Equal(t, domain.StatusOngoing, stored.Status)

	created, err := s.GetCreatedBy(ctx, seller)
	require.NoError(t, err)
	require.Len(t, created, 1)

	require.NoError(t, s.MarkClosed(ctx, a.ID))
	require.NoError(t, s.MarkClosed(ctx, a.ID))
	stored, err = s.GetAuctionByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, stored.Status)

	require.NoError(t, s.DeleteAuction(ctx, a.ID))
	_, err = s.GetAuctionByID(ctx, a.ID)
	assert.True(t, domain.IsNotFound(err))
	assert.True(t, domain.IsNotFound(s.DeleteAuction(ctx, a.ID)))
}

func TestStore_SaveBidRevalidates(t *testing.T) {
	s, db := getMySQLStore(t)
	defer db.Close()
	ctx := context.Background()

	seller := uniqueEmail("seller")
	b1, b2 := uniqueEmail("b1"), uniqueEmail("b2")
	a := seedAuction(t, s, seller)

	_, err := s.SaveBid(ctx, b1, 99, a.ID)
	assert.True(t, domain.IsCallerError(err))

	bid, err := s.SaveBid(ctx, b1, 100, a.ID)
	require.NoError(t, err)
	assert.NotZero(t, bid.ID)

	_, err = s.SaveBid(ctx, b2, 110, a.ID)
	assert.True(t, domain.IsCallerError(err))
	_, err = s.SaveBid(ctx, b2, 111, a.ID)
	require.NoError(t, err)

	stored, err := s.GetAuctionByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(111), stored.CurrentBid)
	assert.Equal(t, b2, stored.CurrentBidder)

	history, err := s.BidHistory(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, b1, history[0].Bidder)

	bidOn, err := s.GetBidsBy(ctx, b1)
	require.NoError(t, err)
	require.Len(t, bidOn, 1)
	assert.Equal(t, a.ID, bidOn[0].ID)
}

func TestStore_SaveBuyoutCloses(t *testing.T) {
	s, db := getMySQLStore(t)
	defer db.Close()
	ctx := context.Background()

	a := seedAuction(t, s, uniqueEmail("seller"))
	buyer := uniqueEmail("buyer")

	_, err := s.SaveBuyout(ctx, buyer, 400, a.ID)
	assert.True(t, domain.IsCallerError(err))

	_, err = s.SaveBuyout(ctx, buyer, 500, a.ID)
	require.NoError(t, err)

	stored, err := s.GetAuctionByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, stored.Status)
	assert.Equal(t, int64(500), stored.CurrentBid)

	_, err = s.SaveBid(ctx, uniqueEmail("late"), 600, a.ID)
	var stateErr *domain.StateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestStore_Users(t *testing.T) {
	s, db := getMySQLStore(t)
	defer db.Close()
	ctx := context.Background()

	seller := uniqueEmail("seller")
	a := seedAuction(t, s, seller)
	_, err := s.SaveNotification(ctx, domain.Notification{Receiver: seller, Content: "hello"})
	require.NoError(t, err)

	banned, err := s.IsBanned(ctx, seller)
	require.NoError(t, err)
	assert.False(t, banned)
	require.NoError(t, s.Ban(ctx, seller))
	require.NoError(t, s.Ban(ctx, seller))
	banned, err = s.IsBanned(ctx, seller)
	require.NoError(t, err)
	assert.True(t, banned)

	renamed := uniqueEmail("renamed")
	require.NoError(t, s.RenameUser(ctx, seller, renamed))
	stored, err := s.GetAuctionByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, renamed, stored.Seller)
	banned, err = s.IsBanned(ctx, renamed)
	require.NoError(t, err)
	assert.True(t, banned)
	notes, err := s.GetNotifications(ctx, renamed)
	require.NoError(t, err)
	require.Len(t, notes, 1)

	other := uniqueEmail("other")
	seedAuction(t, s, other)
	assert.True(t, domain.IsCallerError(s.RenameUser(ctx, renamed, other)))

	removed, err := s.DeleteUser(ctx, renamed)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID}, removed)
	_, err = s.GetAuctionByID(ctx, a.ID)
	assert.True(t, domain.IsNotFound(err))
	notes, err = s.GetNotifications(ctx, renamed)
	require.NoError(t, err)
	assert.Empty(t, notes)
}
