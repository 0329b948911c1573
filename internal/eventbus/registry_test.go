package eventbus

import (
	"errors"
	"sync"
	"testing"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) OnEvent(ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestRegistry_PublishInSubscriptionOrder(t *testing.T) {
	reg := NewRegistry("test", logger.NewNop())

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		reg.Subscribe(domain.KindBidPlaced, ListenerFunc(func(ev domain.Event) error {
			order = append(order, i)
			return nil
		}))
	}

	reg.Publish(domain.BidPlaced{Bid: domain.Bid{AuctionID: 1, Amount: 100}})
	require.Equal(t, []int{0, 1, 2}, order)
}

func TestRegistry_NoChannelCrossing(t *testing.T) {
	reg := NewRegistry("test", logger.NewNop())
	bids := &recorder{}
	ends := &recorder{}
	reg.Subscribe(domain.KindBidPlaced, bids)
	reg.Subscribe(domain.KindAuctionClosed, ends)

	reg.Publish(domain.AuctionClosed{AuctionID: 1})
	reg.Publish(domain.BidPlaced{Bid: domain.Bid{AuctionID: 1}})
	reg.Publish(domain.BidPlaced{Bid: domain.Bid{AuctionID: 1}})

	require.Equal(t, 2, bids.count())
	require.Equal(t, 1, ends.count())
	for _, ev := range bids.events {
		assert.Equal(t, domain.KindBidPlaced, ev.Kind())
	}
	assert.Equal(t, domain.KindAuctionClosed, ends.events[0].Kind())
}

func TestRegistry_FailingListenerIsolated(t *testing.T) {
	reg := NewRegistry("test", logger.NewNop())
	after := &recorder{}

	reg.Subscribe(domain.KindBidPlaced, ListenerFunc(func(domain.Event) error {
		return errors.New("boom")
	}))
	reg.Subscribe(domain.KindBidPlaced, ListenerFunc(func(domain.Event) error {
		panic("listener exploded")
	}))
	reg.Subscribe(domain.KindBidPlaced, after)

	require.NotPanics(t, func() {
		reg.Publish(domain.BidPlaced{})
	})
	require.Equal(t, 1, after.count())
}

func TestRegistry_UnsubscribeIsIdempotent(t *testing.T) {
	reg := NewRegistry("test", logger.NewNop())
	rec := &recorder{}
	id := reg.Subscribe(domain.KindAuctionCreated, rec)

	reg.Unsubscribe(domain.KindAuctionCreated, id)
	reg.Unsubscribe(domain.KindAuctionCreated, id)
	reg.Unsubscribe(domain.KindBidPlaced, "unknown")

	reg.Publish(domain.AuctionCreated{})
	require.Equal(t, 0, rec.count())
	require.Equal(t, 0, reg.SubscriberCount(domain.KindAuctionCreated))
}

func TestRegistry_ConcurrentPublishAndSubscribe(t *testing.T) {
	reg := NewRegistry("test", logger.NewNop())
	stable := &recorder{}
	reg.Subscribe(domain.KindBidPlaced, stable)

	const publishers = 20
	const perPublisher = 50

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				reg.Publish(domain.BidPlaced{Bid: domain.Bid{AuctionID: int64(p), Amount: int64(i)}})
			}
		}(p)
	}

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := reg.Subscribe(domain.KindBidPlaced, ListenerFunc(func(domain.Event) error { return nil }))
			reg.Unsubscribe(domain.KindBidPlaced, id)
		}(i)
	}
	wg.Wait()

	require.Equal(t, publishers*perPublisher, stable.count(), "stable listener missed events")
	require.Equal(t, 1, reg.SubscriberCount(domain.KindBidPlaced))
}
