package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// requeueScript moves deliveries whose visibility deadline has passed from the processing list back
// to the consuming end of the queue.
// KEYS: queue, processing, inflight, receipts. ARGV: now in unix milliseconds.
var requeueScript = goredis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[3], '-inf', ARGV[1])
for _, receipt in ipairs(expired) do
  local body = redis.call('HGET', KEYS[4], receipt)
  if body and redis.call('LREM', KEYS[2], 1, body) > 0 then
    redis.call('RPUSH', KEYS[1], body)
  end
  redis.call('ZREM', KEYS[3], receipt)
  redis.call('HDEL', KEYS[4], receipt)
end
return #expired
`)

// ackScript drops one delivery from the processing list and forgets its receipt.
// KEYS: processing, inflight, receipts. ARGV: receipt.
var ackScript = goredis.NewScript(`
local body = redis.call('HGET', KEYS[3], ARGV[1])
if body then
  redis.call('LREM', KEYS[1], 1, body)
end
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
if body then return 1 end
return 0
`)

// RedisQueue consumes a redis list fed by RedisPublisher. Received bodies move to <name>:processing
// and stay hidden for the visibility timeout; a delivery not deleted by then is pushed back to the
// consuming end and received again.
type RedisQueue struct {
	client     goredis.Cmdable
	name       string
	processing string
	inflight   string
	receipts   string
	visibility time.Duration

	now func() time.Time
}

// NewRedisQueue consumes the list called name.
func NewRedisQueue(client goredis.Cmdable, name string, visibility time.Duration) *RedisQueue {
	return &RedisQueue{
		client:     client,
		name:       name,
		processing: name + ":processing",
		inflight:   name + ":inflight",
		receipts:   name + ":receipts",
		visibility: visibility,
		now:        time.Now,
	}
}

func (r *RedisQueue) Name() string {
	return r.name
}

// Receive blocks up to wait for the first message, then drains without blocking until max.
// A wait of zero or less never blocks.
func (r *RedisQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max <= 0 {
		max = 1
	}
	if err := r.requeueExpired(ctx); err != nil {
		return nil, err
	}

	var first string
	var err error
	if wait > 0 {
		first, err = r.client.BLMove(ctx, r.name, r.processing, "RIGHT", "LEFT", wait).Result()
	} else {
		first, err = r.client.LMove(ctx, r.name, r.processing, "RIGHT", "LEFT").Result()
	}
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	bodies := []string{first}
	for len(bodies) < max {
		body, err := r.client.LMove(ctx, r.name, r.processing, "RIGHT", "LEFT").Result()
		if errors.Is(err, goredis.Nil) {
			break
		}
		if err != nil {
			return nil, err
		}
		bodies = append(bodies, body)
	}

	return r.track(ctx, bodies)
}

// Delete acknowledges a delivery. Deleting a delivery that was already redelivered is a no-op.
func (r *RedisQueue) Delete(ctx context.Context, msg Message) error {
	return ackScript.Run(ctx, r.client, []string{r.processing, r.inflight, r.receipts}, msg.ReceiptHandle).Err()
}

func (r *RedisQueue) requeueExpired(ctx context.Context) error {
	keys := []string{r.name, r.processing, r.inflight, r.receipts}
	return requeueScript.Run(ctx, r.client, keys, r.now().UnixMilli()).Err()
}

// track records a receipt and deadline for every body moved to the processing list.
func (r *RedisQueue) track(ctx context.Context, bodies []string) ([]Message, error) {
	receivedAt := r.now().UTC()
	deadline := float64(receivedAt.Add(r.visibility).UnixMilli())

	messages := make([]Message, 0, len(bodies))
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, body := range bodies {
			receipt := uuid.NewString()
			pipe.ZAdd(ctx, r.inflight, goredis.Z{Score: deadline, Member: receipt})
			pipe.HSet(ctx, r.receipts, receipt, body)
			messages = append(messages, Message{
				ID:            receipt,
				Body:          []byte(body),
				ReceiptHandle: receipt,
				ReceivedAt:    receivedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}
