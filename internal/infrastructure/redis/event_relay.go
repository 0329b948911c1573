package redis

import (
	"context"
	"fmt"

	"auction-engine/internal/domain"

	"github.com/go-redis/redis/v8"
)

// ChannelFor is the pub/sub channel carrying the events of a registry name.
func ChannelFor(registryName string) string {
	return registryName + ":events"
}

// EventRelay is a bridge listener that republishes events on a Redis channel,
// for consumers that would rather read pub/sub than hold a socket.
type EventRelay struct {
	client  *redis.Client
	channel string
}

func NewEventRelay(client *redis.Client, registryName string) *EventRelay {
	return &EventRelay{client: client, channel: ChannelFor(registryName)}
}

func (r *EventRelay) Channel() string {
	return r.channel
}

func (r *EventRelay) Deliver(ctx context.Context, ev domain.Event) error {
	data, err := domain.EncodeEvent(ev)
	if err != nil {
		return err
	}

	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s on %s: %w", ev.Kind(), r.channel, err)
	}
	return nil
}
