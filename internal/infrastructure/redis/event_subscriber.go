package redis

import (
	"context"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// EventHandler consumes one decoded event.
type EventHandler func(ev domain.Event) error

type EventSubscriber struct {
	client *redis.Client
	log    logger.Logger
}

func NewEventSubscriber(client *redis.Client, log logger.Logger) *EventSubscriber {
	return &EventSubscriber{
		client: client,
		log:    log,
	}
}

// Subscribe blocks, feeding events from the channels of the given registry
// names to handler until ctx is done. ready, when not nil, is closed once the
// subscription is confirmed by the server.
func (r *EventSubscriber) Subscribe(ctx context.Context, registryNames []string, handler EventHandler,
	ready chan<- struct{}) error {
	channels := make([]string, 0, len(registryNames))
	for _, name := range registryNames {
		channels = append(channels, ChannelFor(name))
	}

	pubsub := r.client.Subscribe(ctx, channels...)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()
	r.log.Info("Subscribed to event channels", "channels", channels)

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			ev, err := domain.DecodeEvent([]byte(msg.Payload))
			if err != nil {
				r.log.Error("Failed to decode event", "channel", msg.Channel, "error", err)
				continue
			}

			if err := handler(ev); err != nil {
				r.log.Error("Failed to handle event", "kind", ev.Kind(), "error", err)
			}

		case <-ctx.Done():
			r.log.Info("Event subscriber stopped")
			return ctx.Err()
		}
	}
}
