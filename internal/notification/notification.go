package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/awsclient"
	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/messaging"
)

// Publisher sends a message to a topic and returns the broker's message id.
// Callers on the order path treat every error as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, topic string, message []byte) (string, error)
}

// Module provides the configured publisher to Fx.
var Module = fx.Provide(NewPublisher)

// Params defines dependencies for constructing a Publisher.
type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Logger    *zap.Logger
	Redis     *goredis.Client
}

// NewPublisher selects the driver named by NOTIFY_DRIVER.
func NewPublisher(p Params) (Publisher, error) {
	switch p.Config.Notification.Driver {
	case "noop":
		p.Logger.Info("notifications disabled; using noop publisher")
		return NoopPublisher{}, nil
	case "kafka":
		writer := messaging.NewWriter(p.Config.Kafka, p.Logger)
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				p.Logger.Info("closing kafka writer")
				return writer.Close()
			},
		})
		return NewKafkaPublisher(writer), nil
	case "sns":
		awsCfg, err := awsclient.Load(context.Background(), p.Config.AWS)
		if err != nil {
			return nil, err
		}
		return NewSNSPublisher(awsCfg, p.Config.AWS), nil
	case "redis":
		return NewRedisPublisher(p.Redis), nil
	default:
		return nil, fmt.Errorf("unsupported notification driver: %s", p.Config.Notification.Driver)
	}
}

// NoopPublisher drops every message.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, []byte) (string, error) {
	return "", nil
}

func newMessageID() string {
	return uuid.NewString()
}
