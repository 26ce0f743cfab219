package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/messaging"
)

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaQueue reads a topic through a consumer group.
//
// Offsets are cumulative, so Delete only commits the highest offset of each partition below which
// every delivery has been deleted. A delivery left undeleted holds back the commits after it, and
// the next Receive reopens the reader so fetching resumes at the committed offset: the undeleted
// message and anything after it are redelivered. Callers finish one batch before receiving the next.
type KafkaQueue struct {
	open   func() kafkaReader
	topic  string
	logger *zap.Logger

	mu         sync.Mutex
	reader     kafkaReader
	generation int
	pending    map[int][]*kafkaDelivery
}

type kafkaDelivery struct {
	msg     kafka.Message
	deleted bool
}

// kafkaReceipt ties a message to the reader generation that fetched it.
type kafkaReceipt struct {
	msg        kafka.Message
	generation int
}

// NewKafkaQueue opens a consumer-group reader through open, which is called again on every rewind.
func NewKafkaQueue(open func() kafkaReader, topic string, logger *zap.Logger) *KafkaQueue {
	return &KafkaQueue{
		open:    open,
		topic:   topic,
		logger:  logger,
		reader:  open(),
		pending: make(map[int][]*kafkaDelivery),
	}
}

func (k *KafkaQueue) Name() string {
	return k.topic
}

// Receive fetches up to max messages, returning early once wait elapses.
func (k *KafkaQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max <= 0 {
		max = 1
	}
	reader := k.rewindIfOutstanding()

	fetchCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	var fetched []kafka.Message
	var fetchErr error
	for len(fetched) < max {
		m, err := reader.FetchMessage(fetchCtx)
		if err != nil {
			if ctx.Err() != nil && len(fetched) == 0 {
				return nil, ctx.Err()
			}
			if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
				fetchErr = fmt.Errorf("fetch from %s: %w", k.topic, err)
			}
			break
		}
		fetched = append(fetched, m)
	}

	messages := make([]Message, 0, len(fetched))
	receivedAt := time.Now().UTC()
	k.mu.Lock()
	for _, m := range fetched {
		k.pending[m.Partition] = append(k.pending[m.Partition], &kafkaDelivery{msg: m})
		messages = append(messages, Message{
			ID:            messageID(m),
			Body:          m.Value,
			ReceiptHandle: fmt.Sprintf("%d:%d", m.Partition, m.Offset),
			Attributes:    messaging.Headers(m.Headers),
			ReceivedAt:    receivedAt,
			raw:           kafkaReceipt{msg: m, generation: k.generation},
		})
	}
	k.mu.Unlock()
	return messages, fetchErr
}

// Delete acknowledges a delivery and commits whatever prefix of its partition is now complete.
// Deliveries handed out before a rewind are ignored; they come back with the rewound reader.
func (k *KafkaQueue) Delete(ctx context.Context, msg Message) error {
	receipt, ok := msg.raw.(kafkaReceipt)
	if !ok {
		return fmt.Errorf("message %s was not received from kafka", msg.ID)
	}

	k.mu.Lock()
	if receipt.generation != k.generation {
		k.mu.Unlock()
		return nil
	}
	commit, ok := k.acknowledge(receipt.msg)
	reader := k.reader
	k.mu.Unlock()
	if !ok {
		return nil
	}

	if err := reader.CommitMessages(ctx, commit); err != nil {
		return fmt.Errorf("commit %s: %w", msg.ID, err)
	}
	return nil
}

// Close closes the current reader.
func (k *KafkaQueue) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.reader.Close()
}

// acknowledge marks m deleted and pops the completed prefix of its partition, returning the last
// message of that prefix. Must hold k.mu.
func (k *KafkaQueue) acknowledge(m kafka.Message) (kafka.Message, bool) {
	deliveries := k.pending[m.Partition]
	found := false
	for _, d := range deliveries {
		if d.msg.Offset == m.Offset {
			d.deleted = true
			found = true
			break
		}
	}
	if !found {
		return kafka.Message{}, false
	}

	done := 0
	for done < len(deliveries) && deliveries[done].deleted {
		done++
	}
	if done == 0 {
		return kafka.Message{}, false
	}
	last := deliveries[done-1].msg
	if done == len(deliveries) {
		delete(k.pending, m.Partition)
	} else {
		k.pending[m.Partition] = deliveries[done:]
	}
	return last, true
}

// rewindIfOutstanding reopens the reader when an earlier delivery was never deleted.
func (k *KafkaQueue) rewindIfOutstanding() kafkaReader {
	k.mu.Lock()
	defer k.mu.Unlock()

	outstanding := 0
	for _, deliveries := range k.pending {
		outstanding += len(deliveries)
	}
	if outstanding == 0 {
		return k.reader
	}

	k.logger.Warn("rewinding kafka reader to committed offsets",
		zap.String("topic", k.topic),
		zap.Int("outstanding", outstanding),
	)
	if err := k.reader.Close(); err != nil {
		k.logger.Warn("failed to close kafka reader", zap.String("topic", k.topic), zap.Error(err))
	}
	k.reader = k.open()
	k.generation++
	k.pending = make(map[int][]*kafkaDelivery)
	return k.reader
}

func messageID(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == "message-id" {
			return string(h.Value)
		}
	}
	if len(m.Key) > 0 {
		return string(m.Key)
	}
	return m.Topic + "/" + strconv.Itoa(m.Partition) + "/" + strconv.FormatInt(m.Offset, 10)
}
