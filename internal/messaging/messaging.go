// Package messaging holds the kafka-go plumbing shared by the kafka publisher and the kafka queue.
package messaging

import (
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
)

// NewWriter builds a synchronous writer. The topic is set per message so one writer serves any topic.
func NewWriter(cfg config.Kafka, logger *zap.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.ConnectTimeout,
		Transport: &kafka.Transport{
			ClientID:    cfg.ClientID,
			DialTimeout: cfg.ConnectTimeout,
		},
		Logger:      Logger(logger),
		ErrorLogger: ErrorLogger(logger),
	}
}

// NewReader builds a consumer-group reader on topic. Commits are explicit (CommitInterval 0) unless
// configured otherwise.
func NewReader(cfg config.Kafka, topic string, logger *zap.Logger) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.ConsumerGroup,
		Topic:          topic,
		MinBytes:       cfg.MinBytes,
		MaxBytes:       cfg.MaxBytes,
		MaxWait:        time.Second,
		CommitInterval: cfg.CommitInterval,
		Dialer: &kafka.Dialer{
			Timeout:  cfg.ConnectTimeout,
			ClientID: cfg.ClientID,
		},
		Logger:      Logger(logger),
		ErrorLogger: ErrorLogger(logger),
	})
}

// Headers flattens kafka headers into a map; nil when there are none.
func Headers(headers []kafka.Header) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		m[h.Key] = string(h.Value)
	}
	return m
}

type kafkaLogger struct {
	logger *zap.SugaredLogger
	error  bool
}

// Logger adapts zap to kafka-go's debug logger.
func Logger(logger *zap.Logger) kafka.Logger {
	return kafkaLogger{logger: logger.Named("kafka").Sugar()}
}

// ErrorLogger adapts zap to kafka-go's error logger.
func ErrorLogger(logger *zap.Logger) kafka.Logger {
	return kafkaLogger{logger: logger.Named("kafka").Sugar(), error: true}
}

func (k kafkaLogger) Printf(msg string, args ...interface{}) {
	if k.error {
		k.logger.Errorf(msg, args...)
		return
	}
	k.logger.Debugf(msg, args...)
}
