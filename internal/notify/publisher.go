package notify

import (
	"context"

	"github.com/redis/go-redis/v9"
)

type redisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) Publisher {
	return &redisPublisher{client: client}
}

func (p *redisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}
