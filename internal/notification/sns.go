package notification

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/Additional-Code/orderdesk/internal/awsclient"
	"github.com/Additional-Code/orderdesk/internal/config"
)

// SNSPublisher publishes to an SNS topic; topic is the topic ARN.
type SNSPublisher struct {
	client *sns.Client
}

// NewSNSPublisher builds the SNS client with the shared AWS settings.
func NewSNSPublisher(awsCfg aws.Config, settings config.AWS) *SNSPublisher {
	return &SNSPublisher{
		client: sns.NewFromConfig(awsCfg, func(o *sns.Options) {
			o.BaseEndpoint = awsclient.BaseEndpoint(settings)
		}),
	}
}

func (s *SNSPublisher) Publish(ctx context.Context, topic string, message []byte) (string, error) {
	out, err := s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(topic),
		Message:  aws.String(string(message)),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
}
