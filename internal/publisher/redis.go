package publisher

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/pdkslab/pdksgate/internal/gate/types"
)

const DefaultRedisChannel = "pdks:access-events"

// Redis publishes events on a pub/sub channel for dashboards that keep a
// live subscription open.
type Redis struct {
	client  *redis.Client
	channel string
}

func NewRedis(addr, password string, db int, channel string) *Redis {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Redis{client: rdb, channel: channel}
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Publish(ctx context.Context, ev types.AccessEvent) error {
	payload, err := encode(ev)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe returns a channel of raw event messages. The subscription ends
// when ctx is cancelled.
func (r *Redis) Subscribe(ctx context.Context) <-chan *redis.Message {
	pubsub := r.client.Subscribe(ctx, r.channel)
	go func() {
		<-ctx.Done()
		_ = pubsub.Close()
	}()
	return pubsub.Channel()
}

func (r *Redis) Close() {
	_ = r.client.Close()
}
