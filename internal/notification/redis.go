package notification

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
)

// RedisPublisher pushes messages onto a redis list named after the topic, which the redis queue
// driver drains from the other end.
type RedisPublisher struct {
	client goredis.Cmdable
}

// NewRedisPublisher wraps a redis client.
func NewRedisPublisher(client goredis.Cmdable) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (r *RedisPublisher) Publish(ctx context.Context, topic string, message []byte) (string, error) {
	if err := r.client.LPush(ctx, topic, message).Err(); err != nil {
		return "", err
	}
	return newMessageID(), nil
}
