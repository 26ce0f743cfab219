package notification

import (
	"context"

	"github.com/segmentio/kafka-go"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher writes each message to the topic keyed by a generated id, which is also
// returned as the message id.
type KafkaPublisher struct {
	writer kafkaWriter
}

// NewKafkaPublisher wraps a kafka-go writer.
func NewKafkaPublisher(writer kafkaWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (k *KafkaPublisher) Publish(ctx context.Context, topic string, message []byte) (string, error) {
	id := newMessageID()
	err := k.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(id),
		Value: message,
		Headers: []kafka.Header{
			{Key: "message-id", Value: []byte(id)},
		},
	})
	if err != nil {
		return "", err
	}
	return id, nil
}
