package chathub

import (
	"context"
	"encoding/json"

	"topicchat/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the Redis channel events travel on between instances.
const DefaultChannel = "random_chat:events"

// RedisBroker fans events out over Redis Pub/Sub so that a user connected to
// one instance hears about things that happened on another.
type RedisBroker struct {
	Client  *redis.Client
	Channel string
	Log     *zap.Logger
}

// NewRedisBroker returns a broker on channel, or DefaultChannel when empty.
func NewRedisBroker(client *redis.Client, channel string, logger *zap.Logger) *RedisBroker {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBroker{Client: client, Channel: channel, Log: logger.Named("broker")}
}

// Publish sends evt to every subscribed instance.
func (b *RedisBroker) Publish(ctx context.Context, evt models.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.Client.Publish(ctx, b.Channel, data).Err()
}

// Subscribe listens on the channel until ctx is cancelled. The returned
// channel is closed when the subscription ends.
func (b *RedisBroker) Subscribe(ctx context.Context) (<-chan models.Event, error) {
	pubsub := b.Client.Subscribe(ctx, b.Channel)
	// Чекаємо підтвердження підписки, щоб не загубити перші події
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	out := make(chan models.Event, deliverBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var evt models.Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					b.Log.Warn("Error unmarshalling Redis message", zap.Error(err))
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
