package awsclient

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/orderdesk/internal/config"
)

func TestBaseEndpoint(t *testing.T) {
	assert.Nil(t, BaseEndpoint(config.AWS{}))
	assert.Equal(t, "http://localhost:4566", aws.ToString(BaseEndpoint(config.AWS{Endpoint: "http://localhost:4566"})))
}

func TestLoadUsesStaticCredentials(t *testing.T) {
	cfg, err := Load(context.Background(), config.AWS{Region: "eu-west-1", AccessKeyID: "test", SecretAccessKey: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.Region)

	creds, err := cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test", creds.AccessKeyID)
	assert.Equal(t, "secret", creds.SecretAccessKey)
}
