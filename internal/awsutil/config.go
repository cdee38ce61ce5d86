// Package awsutil loads the AWS SDK configuration and builds the service
// clients the Lambda binaries share.
package awsutil

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Load loads the AWS configuration. A non-empty endpoint (e.g.
// http://localstack:4566) is used as the base endpoint of every client.
func Load(ctx context.Context, region, endpoint string) (aws.Config, error) {
	cfg, err := awsCfg.LoadDefaultConfig(ctx, awsCfg.WithRegion(region))
	if err != nil {
		return aws.Config{}, err
	}
	if endpoint != "" {
		cfg.BaseEndpoint = aws.String(endpoint)
	}
	return cfg, nil
}

// Clients bundles the service clients built from one configuration.
type Clients struct {
	DynamoDB *dynamodb.Client
	S3       *s3.Client
	SQS      *sqs.Client
}

// NewClients builds every client from cfg. S3 uses path-style addressing
// when a custom endpoint is set, which local emulators require.
func NewClients(cfg aws.Config) Clients {
	custom := cfg.BaseEndpoint != nil
	return Clients{
		DynamoDB: dynamodb.NewFromConfig(cfg),
		S3: s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.UsePathStyle = custom
		}),
		SQS: sqs.NewFromConfig(cfg),
	}
}
