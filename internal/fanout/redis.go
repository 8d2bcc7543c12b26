package fanout

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"
)

const DefaultChannelPrefix = "digiturno:"

// ConnectRedis accepts either a redis:// URL or a bare host:port.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// RedisPublisher shares events between API instances. Every instance
// publishes to Redis and runs Relay to feed its own connected clients.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

func (p *RedisPublisher) Publish(ctx context.Context, env Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel(env.Scope), data).Err()
}

// Relay forwards every envelope seen on the prefix to local until ctx is done.
func (p *RedisPublisher) Relay(ctx context.Context, local Publisher) error {
	pubsub := p.client.PSubscribe(ctx, p.prefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			env, err := DecodeEnvelope([]byte(msg.Payload))
			if err != nil {
				log.Printf("relay decode failed channel=%s err=%v", msg.Channel, err)
				continue
			}
			if err := local.Publish(ctx, env); err != nil {
				log.Printf("relay publish failed scope=%s event=%s err=%v", env.Scope, env.Event, err)
			}
		}
	}
}

func (p *RedisPublisher) channel(scope string) string {
	return p.prefix + scope
}
