package ingest

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings so a bad address fails at startup.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return rdb, nil
}

// RedisSource reads signal payloads published on a pub/sub channel.
type RedisSource struct {
	pubsub *redis.PubSub
	ch     <-chan *redis.Message
}

func SubscribeRedis(ctx context.Context, rdb *redis.Client, channel string) (*RedisSource, error) {
	pubsub := rdb.Subscribe(ctx, channel)
	// wait for the subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}
	return &RedisSource{pubsub: pubsub, ch: pubsub.Channel()}, nil
}

func (s *RedisSource) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-s.ch:
		if !ok {
			return nil, ErrClosed
		}
		return []byte(msg.Payload), nil
	}
}

func (s *RedisSource) Close() error { return s.pubsub.Close() }
