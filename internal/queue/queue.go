package queue

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/awsclient"
	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/messaging"
)

// Message is one delivery received from a queue. ReceiptHandle identifies the delivery for Delete.
type Message struct {
	ID            string
	Body          []byte
	ReceiptHandle string
	Attributes    map[string]string
	ReceivedAt    time.Time

	raw any
}

// Queue is a pull-based queue with explicit acknowledgement.
// A received message that is never deleted is redelivered.
type Queue interface {
	Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error)
	Delete(ctx context.Context, msg Message) error
	Name() string
}

// Module provides the configured queue to Fx.
var Module = fx.Provide(NewQueue)

// Params defines dependencies for constructing a Queue.
type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Logger    *zap.Logger
	Redis     *goredis.Client
}

// NewQueue selects the driver named by QUEUE_DRIVER.
func NewQueue(p Params) (Queue, error) {
	cfg := p.Config.Queue
	switch cfg.Driver {
	case "noop":
		return NoopQueue{}, nil
	case "sqs":
		awsCfg, err := awsclient.Load(context.Background(), p.Config.AWS)
		if err != nil {
			return nil, err
		}
		return NewSQSQueue(awsCfg, p.Config.AWS, cfg.Name), nil
	case "kafka":
		q := NewKafkaQueue(func() kafkaReader {
			return messaging.NewReader(p.Config.Kafka, cfg.Name, p.Logger)
		}, cfg.Name, p.Logger)
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				p.Logger.Info("closing kafka reader", zap.String("topic", cfg.Name))
				return q.Close()
			},
		})
		return q, nil
	case "redis":
		return NewRedisQueue(p.Redis, cfg.Name, cfg.VisibilityTimeout), nil
	default:
		return nil, fmt.Errorf("unsupported queue driver: %s", cfg.Driver)
	}
}

// NoopQueue never yields messages.
type NoopQueue struct{}

func (NoopQueue) Receive(context.Context, int, time.Duration) ([]Message, error) {
	return nil, nil
}

func (NoopQueue) Delete(context.Context, Message) error {
	return nil
}

func (NoopQueue) Name() string {
	return "noop"
}
