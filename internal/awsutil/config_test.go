package awsutil

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Endpoint(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	cfg, err := Load(context.Background(), "eu-west-1", "http://localstack:4566")
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "http://localstack:4566", aws.ToString(cfg.BaseEndpoint))

	cfg, err = Load(context.Background(), "eu-west-1", "")
	require.NoError(t, err)
	assert.Nil(t, cfg.BaseEndpoint)

	c := NewClients(cfg)
	assert.NotNil(t, c.DynamoDB)
	assert.NotNil(t, c.S3)
	assert.NotNil(t, c.SQS)
}
