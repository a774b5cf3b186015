package redis

import (
	"context"
	"log/slog"

	"github.com/tdeu/truthmarket/internal/domain"
)

const busPrefix = "truthmarket:events:"

// EventBus implements domain.EventBus over Redis pub/sub. Delivery is
// fire-and-forget: subscribers that miss an event still converge on the next
// interval pass, so lost messages cost latency, not correctness.
type EventBus struct {
	client *Client
	logger *slog.Logger
}

// NewEventBus creates an EventBus on the shared client.
func NewEventBus(client *Client, logger *slog.Logger) *EventBus {
	return &EventBus{
		client: client,
		logger: logger.With(slog.String("component", "event_bus")),
	}
}

// Publish sends payload to every subscriber of the channel.
func (b *EventBus) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.rdb.Publish(ctx, busPrefix+channel, payload).Err()
}

// Subscribe returns a channel of payloads published to the named channel.
// The channel closes when ctx is canceled.
func (b *EventBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	sub := b.client.rdb.Subscribe(ctx, busPrefix+channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
					b.logger.Warn("event dropped, subscriber backlogged",
						slog.String("channel", channel))
				}
			}
		}
	}()
	return out, nil
}

var _ domain.EventBus = (*EventBus)(nil)
