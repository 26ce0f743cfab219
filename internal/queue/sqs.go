package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/Additional-Code/orderdesk/internal/awsclient"
	"github.com/Additional-Code/orderdesk/internal/config"
)

const (
	sqsMaxMessages = 10
	sqsMaxWait     = 20 * time.Second
)

type sqsAPI interface {
	GetQueueUrl(ctx context.Context, in *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSQueue long-polls an SQS queue. name may be a queue URL or a queue name resolved on first use.
type SQSQueue struct {
	client sqsAPI
	name   string

	mu  sync.Mutex
	url string
}

// NewSQSQueue builds the SQS client with the shared AWS settings.
func NewSQSQueue(awsCfg aws.Config, settings config.AWS, name string) *SQSQueue {
	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		o.BaseEndpoint = awsclient.BaseEndpoint(settings)
	})
	return newSQSQueue(client, name)
}

func newSQSQueue(client sqsAPI, name string) *SQSQueue {
	q := &SQSQueue{client: client, name: name}
	if strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://") {
		q.url = name
	}
	return q
}

func (q *SQSQueue) Name() string {
	return q.name
}

func (q *SQSQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	url, err := q.queueURL(ctx)
	if err != nil {
		return nil, err
	}
	if max <= 0 || max > sqsMaxMessages {
		max = sqsMaxMessages
	}
	if wait < 0 {
		wait = 0
	}
	if wait > sqsMaxWait {
		wait = sqsMaxWait
	}

	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(url),
		MaxNumberOfMessages:   int32(max),
		WaitTimeSeconds:       int32(wait / time.Second),
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return nil, fmt.Errorf("receive from %s: %w", q.name, err)
	}

	now := time.Now().UTC()
	messages := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		var attrs map[string]string
		if len(m.MessageAttributes) > 0 {
			attrs = make(map[string]string, len(m.MessageAttributes))
			for k, v := range m.MessageAttributes {
				attrs[k] = aws.ToString(v.StringValue)
			}
		}
		messages = append(messages, Message{
			ID:            aws.ToString(m.MessageId),
			Body:          []byte(aws.ToString(m.Body)),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Attributes:    attrs,
			ReceivedAt:    now,
		})
	}
	return messages, nil
}

func (q *SQSQueue) Delete(ctx context.Context, msg Message) error {
	url, err := q.queueURL(ctx)
	if err != nil {
		return err
	}
	if _, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(url),
		ReceiptHandle: aws.String(msg.ReceiptHandle),
	}); err != nil {
		return fmt.Errorf("delete %s from %s: %w", msg.ID, q.name, err)
	}
	return nil
}

func (q *SQSQueue) queueURL(ctx context.Context) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.url != "" {
		return q.url, nil
	}
	out, err := q.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(q.name)})
	if err != nil {
		return "", fmt.Errorf("resolve queue url for %s: %w", q.name, err)
	}
	q.url = aws.ToString(out.QueueUrl)
	return q.url, nil
}
