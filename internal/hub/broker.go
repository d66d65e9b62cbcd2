package hub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	LocalBrokerType = "local"
	RedisBrokerType = "redis"

	DefaultRedisChannel = "axisgate:hub"
)

// BrokerMessage is a push addressed to a room, already encoded for the wire.
type BrokerMessage struct {
	Room    string          `json:"room"`
	Payload json.RawMessage `json:"payload"`
}

// Broker carries pushes between gateway processes so a publish reaches the
// room wherever its connections live.
type Broker interface {
	Publish(ctx context.Context, msg BrokerMessage) error

	// Subscribe starts receiving. The subscription is active when it returns;
	// the channel is closed once ctx is done.
	Subscribe(ctx context.Context) (<-chan BrokerMessage, error)

	Close() error
}

type RedisBroker struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func NewRedisBroker(client *redis.Client, channel string, logger *zap.Logger) *RedisBroker {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisBroker{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

func (b *RedisBroker) Publish(ctx context.Context, msg BrokerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode broker message: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context) (<-chan BrokerMessage, error) {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan BrokerMessage)
	go func() {
		defer close(out)
		defer sub.Close()

		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				var msg BrokerMessage
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					b.logger.Warn("Dropping malformed broker message", zap.Error(err))
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
