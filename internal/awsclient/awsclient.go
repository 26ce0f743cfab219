// Package awsclient loads the shared AWS SDK configuration used by the S3, SNS and SQS drivers.
package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/Additional-Code/orderdesk/internal/config"
)

// Load resolves region and credentials. Static keys win over the default chain so LocalStack
// setups work with dummy credentials.
func Load(ctx context.Context, cfg config.AWS) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// BaseEndpoint returns the endpoint override for service options, or nil for the AWS default.
func BaseEndpoint(cfg config.AWS) *string {
	if cfg.Endpoint == "" {
		return nil
	}
	return aws.String(cfg.Endpoint)
}
