package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestEventRelay_RoundTrip(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	name := "test-" + uuid.NewString()
	relay := NewEventRelay(client, name)
	assert.Equal(t, name+":events", relay.Channel())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan domain.Event, 1)
	ready := make(chan struct{})
	done := make(chan error, 1)
	sub := NewEventSubscriber(client, logger.NewNop())
	go func() {
		done <- sub.Subscribe(ctx, []string{name}, func(ev domain.Event) error {
			received <- ev
			return nil
		}, ready)
	}()

	select {
	case <-ready:
	case <-time.After(3 * time.Second):
		t.Fatal("subscription was not confirmed")
	}

	bid := domain.Bid{ID: 7, AuctionID: 3, Bidder: "b1", Amount: 115}
	require.NoError(t, relay.Deliver(ctx, domain.BidPlaced{Bid: bid, PreviousBidder: "b0"}))

	select {
	case ev := <-received:
		placed, ok := ev.(domain.BidPlaced)
		require.True(t, ok, "got %T", ev)
		assert.Equal(t, int64(115), placed.Bid.Amount)
		assert.Equal(t, "b0", placed.PreviousBidder)
	case <-time.After(3 * time.Second):
		t.Fatal("event was not received")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestServiceRegistry_Lifecycle(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	registry := NewServiceRegistry(client, 3*time.Second, logger.NewNop())
	name := "auctions-" + uuid.NewString()

	_, err := registry.Lookup(ctx, name)
	assert.True(t, domain.IsNotFound(err))

	require.NoError(t, registry.Register(ctx, name, "ws://localhost:8080"))
	address, err := registry.Lookup(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080", address)

	// The heartbeat keeps the entry past its first TTL.
	time.Sleep(4 * time.Second)
	address, err = registry.Lookup(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080", address)

	require.NoError(t, registry.Deregister(ctx, name))
	_, err = registry.Lookup(ctx, name)
	assert.True(t, domain.IsNotFound(err))

	// Second deregister is a no-op.
	assert.NoError(t, registry.Deregister(ctx, name))
}

func TestServiceRegistry_CloseReleasesAll(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	registry := NewServiceRegistry(client, 5*time.Second, logger.NewNop())
	names := []string{"a-" + uuid.NewString(), "b-" + uuid.NewString()}
	for _, name := range names {
		require.NoError(t, registry.Register(ctx, name, "addr-"+name))
	}

	require.NoError(t, registry.Close(ctx))
	for _, name := range names {
		_, err := registry.Lookup(ctx, name)
		assert.True(t, domain.IsNotFound(err), name)
	}
}
