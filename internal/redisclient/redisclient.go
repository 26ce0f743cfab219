package redisclient

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
)

// Module provides the shared redis client used by the store, cache, queue and publisher drivers.
var Module = fx.Provide(New)

// New builds the client. go-redis dials lazily, so the client is cheap when no component selects
// redis; the connection is only verified when one does.
func New(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) *goredis.Client {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !cfg.UsesRedis() {
				return nil
			}
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("ping redis: %w", err)
			}
			logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return client
}
