package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/awsclient"
	"github.com/Additional-Code/orderdesk/internal/config"
)

var s3Tracer = otel.Tracer("github.com/Additional-Code/orderdesk/objectstore")

// S3Store stores objects in an S3 (or S3-compatible) bucket.
type S3Store struct {
	client  *s3.Client
	bucket  string
	region  string
	baseURL string
	logger  *zap.Logger
}

// NewS3Store builds the client. With an endpoint override (LocalStack, MinIO) object URLs are
// path-style below that endpoint unless a public base URL is configured.
func NewS3Store(awsCfg aws.Config, awsSettings config.AWS, cfg config.ObjectStore, logger *zap.Logger) *S3Store {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = awsclient.BaseEndpoint(awsSettings)
		o.UsePathStyle = cfg.PathStyle
	})

	baseURL := cfg.PublicBaseURL
	if baseURL == "" && awsSettings.Endpoint != "" {
		baseURL = awsSettings.Endpoint + "/" + cfg.Bucket
	}

	return &S3Store{
		client:  client,
		bucket:  cfg.Bucket,
		region:  awsSettings.Region,
		baseURL: baseURL,
		logger:  logger,
	}
}

func (s *S3Store) Container() string {
	return s.bucket
}

// EnsureContainer checks the bucket with HeadBucket and creates it on a not-found answer.
// Losing a creation race to another caller counts as success.
func (s *S3Store) EnsureContainer(ctx context.Context, name string) error {
	ctx, span := s3Tracer.Start(ctx, "ObjectStore.EnsureContainer", trace.WithAttributes(attribute.String("bucket", name)))
	defer span.End()

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)})
	if err == nil {
		s.logger.Debug("bucket exists", zap.String("bucket", name))
		return nil
	}
	if !isNotFound(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "head bucket failed")
		return fmt.Errorf("head bucket %s: %w", name, err)
	}

	s.logger.Warn("bucket not found; creating", zap.String("bucket", name))
	input := &s3.CreateBucketInput{Bucket: aws.String(name)}
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		if isAlreadyCreated(err) {
			s.logger.Info("bucket created concurrently", zap.String("bucket", name))
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "create bucket failed")
		return fmt.Errorf("create bucket %s: %w", name, err)
	}

	s.logger.Info("bucket created", zap.String("bucket", name))
	return nil
}

func (s *S3Store) Upload(ctx context.Context, obj Object) (string, error) {
	data, err := readBody(obj)
	if err != nil {
		return "", err
	}

	key := NewKey(obj.Name)
	ctx, span := s3Tracer.Start(ctx, "ObjectStore.Upload", trace.WithAttributes(
		attribute.String("bucket", s.bucket),
		attribute.String("object.key", key),
		attribute.Int("object.size", len(data)),
	))
	defer span.End()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentTypeOrDefault(obj.ContentType)),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "put object failed")
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	s.logger.Info("object uploaded",
		zap.String("bucket", s.bucket),
		zap.String("key", key),
		zap.Int("size", len(data)),
	)
	return key, nil
}

func (s *S3Store) Download(ctx context.Context, key string) ([]byte, error) {
	ctx, span := s3Tracer.Start(ctx, "ObjectStore.Download", trace.WithAttributes(
		attribute.String("bucket", s.bucket),
		attribute.String("object.key", key),
	))
	defer span.End()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) || isNotFound(err) {
			return nil, ErrObjectNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "get object failed")
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

func (s *S3Store) URL(key string) string {
	return objectURL(s.baseURL, s.bucket, s.region, key)
}

// objectURL composes a resolvable URL: below baseURL when set, otherwise virtual-hosted AWS style.
func objectURL(baseURL, bucket, region, key string) string {
	escaped := escapeKey(key)
	if baseURL != "" {
		return strings.TrimRight(baseURL, "/") + "/" + escaped
	}
	if region == "" {
		region = "us-east-1"
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, escaped)
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func unescapeKey(escaped string) (string, error) {
	return url.PathUnescape(escaped)
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchBucket", "NoSuchKey":
			return true
		}
	}
	return false
}

func isAlreadyCreated(err error) bool {
	var owned *types.BucketAlreadyOwnedByYou
	var exists *types.BucketAlreadyExists
	return errors.As(err, &owned) || errors.As(err, &exists)
}
