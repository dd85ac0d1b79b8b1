package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cloudx-io/nftauction/auctionapi"
	"github.com/cloudx-io/nftauction/core"
)

// ChannelPrefix is followed by the auction id, or "registry".
const ChannelPrefix = "auction_events:"

// Channel returns the pub/sub channel an event is published on.
func Channel(e core.Event) string {
	return ChannelPrefix + scope(e)
}

// RedisSink publishes envelopes on Redis pub/sub for live subscribers.
// Delivery is best effort; subscribers that are not connected miss events.
type RedisSink struct {
	client *redis.Client
}

// NewRedisSink connects and pings the server.
func NewRedisSink(addr, password string, db int) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisSink{client: client}, nil
}

func (*RedisSink) Name() string { return "redis" }

// Publish sends the envelope as JSON.
func (s *RedisSink) Publish(ctx context.Context, env auctionapi.EventEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := s.client.Publish(ctx, Channel(env.Event), data).Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
