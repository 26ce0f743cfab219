package order

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/orderdesk/internal/entity"
)

const scanBatchSize = 100

// RedisRepository stores each order as a hash at `<prefix><orderId>`.
type RedisRepository struct {
	client *goredis.Client
	prefix string
}

// NewRedisRepository builds a repository over an existing client.
func NewRedisRepository(client *goredis.Client, prefix string) *RedisRepository {
	return &RedisRepository{client: client, prefix: prefix}
}

func (r *RedisRepository) key(id string) string {
	return r.prefix + id
}

// Put replaces the hash in one transaction so readers never see a half-written record.
func (r *RedisRepository) Put(ctx context.Context, order *entity.Order) error {
	if err := validateForPut(order); err != nil {
		return err
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Put", trace.WithAttributes(
		attribute.String("order.id", order.OrderID),
		attribute.String("store.driver", "redis"),
	))
	defer span.End()

	key := r.key(order.OrderID)
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, order.ToRecord())
		return nil
	})
	if err != nil {
		recordSpanError(span, err, "hset failed")
		return err
	}
	return nil
}

// GetByID loads the hash; an empty hash means the key does not exist.
func (r *RedisRepository) GetByID(ctx context.Context, id string) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("store.driver", "redis"),
	))
	defer span.End()

	record, err := r.client.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		recordSpanError(span, err, "hgetall failed")
		return nil, err
	}
	if len(record) == 0 {
		return nil, ErrNotFound
	}
	order, err := entity.OrderFromRecord(record)
	if err != nil {
		recordSpanError(span, err, "decode failed")
		return nil, err
	}
	return order, nil
}

// ScanAll iterates hash keys under the prefix with SCAN MATCH TYPE hash. Keys deleted between the
// SCAN and the HGETALL are skipped.
func (r *RedisRepository) ScanAll(ctx context.Context) ([]entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ScanAll", trace.WithAttributes(
		attribute.String("store.driver", "redis"),
	))
	defer span.End()

	orders := make([]entity.Order, 0)
	iter := r.client.ScanType(ctx, 0, r.prefix+"*", scanBatchSize, "hash").Iterator()
	for iter.Next(ctx) {
		record, err := r.client.HGetAll(ctx, iter.Val()).Result()
		if err != nil {
			recordSpanError(span, err, "hgetall failed")
			return nil, err
		}
		if len(record) == 0 {
			continue
		}
		order, err := entity.OrderFromRecord(record)
		if err != nil {
			recordSpanError(span, err, "decode failed")
			return nil, fmt.Errorf("decode %s: %w", iter.Val(), err)
		}
		orders = append(orders, *order)
	}
	if err := iter.Err(); err != nil {
		recordSpanError(span, err, "scan failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	return orders, nil
}
