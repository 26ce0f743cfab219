package order

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/database"
)

// Module provides the configured order repository to Fx.
var Module = fx.Provide(NewRepository)

// Params defines dependencies for constructing a Repository.
type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Logger    *zap.Logger
	Redis     *goredis.Client
}

// NewRepository selects the store driver. The sql driver owns its connection pools so the
// database is only dialled when it is the selected backend.
func NewRepository(p Params) (Repository, error) {
	switch p.Config.Store.Driver {
	case "redis":
		p.Logger.Info("order store: redis", zap.String("prefix", p.Config.Store.RedisPrefix))
		return NewRedisRepository(p.Redis, p.Config.Store.RedisPrefix), nil
	case "sql":
		conns, err := database.New(p.Lifecycle, p.Config, p.Logger)
		if err != nil {
			return nil, err
		}
		p.Logger.Info("order store: sql", zap.String("driver", p.Config.Database.Driver))
		return NewSQLRepository(conns), nil
	case "memory":
		p.Logger.Warn("order store: memory; orders are lost on restart")
		return NewMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", p.Config.Store.Driver)
	}
}
