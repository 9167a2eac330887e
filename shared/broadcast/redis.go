package broadcast

import (
	"context"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"factory-digital-twin/shared/events"
	"factory-digital-twin/shared/logx"
)

// RedisPublisher routes events through redis pub/sub so that every service
// replica sees them. Replicas feed the messages into their local hub through
// a Bridge; the publisher itself never touches the hub, which keeps each
// message from being delivered twice.
type RedisPublisher struct {
	redis *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) (*RedisPublisher, error) {
	if rdb == nil {
		return nil, errors.New("redis client is nil")
	}
	return &RedisPublisher{redis: rdb}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, msg events.Message) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	return p.redis.Publish(ctx, channel, payload).Err()
}

// Bridge subscribes to redis channels and replays every message into the
// local hub, where stream handlers pick them up.
type Bridge struct {
	redis    *redis.Client
	hub      *Hub
	logger   logx.Logger
	channels []string
}

func NewBridge(rdb *redis.Client, hub *Hub, logger logx.Logger, channels ...string) (*Bridge, error) {
	if rdb == nil {
		return nil, errors.New("redis client is nil")
	}
	if hub == nil {
		return nil, errors.New("hub is nil")
	}
	if len(channels) == 0 {
		channels = []string{events.ChannelIncidents, events.ChannelFactories, events.ChannelCameras}
	}
	return &Bridge{
		redis:    rdb,
		hub:      hub,
		logger:   logger,
		channels: channels,
	}, nil
}

// Run blocks until ctx is cancelled. go-redis reconnects the subscription
// itself on transient failures.
func (b *Bridge) Run(ctx context.Context) error {
	pubsub := b.redis.Subscribe(ctx, b.channels...)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	b.logger.Info(ctx, "bridge_started", "redis event bridge subscribed",
		slog.Any("channels", b.channels),
	)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis subscription channel closed")
			}
			b.hub.PublishRaw(msg.Channel, []byte(msg.Payload))
		}
	}
}
