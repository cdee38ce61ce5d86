package queue

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/oklog/ulid/v2"
)

// maxBatch is the SendMessageBatch entry limit.
const maxBatch = 10

// SQSAPI is the subset of the SQS client used for publishing.
type SQSAPI interface {
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
}

// SQSPublisher publishes to one queue in batches of ten.
type SQSPublisher struct {
	Client   SQSAPI
	QueueURL string
}

var _ Publisher = (*SQSPublisher)(nil)

// Publish sends items in chunks; per-entry failures are mapped back to
// their items by batch entry id.
func (p *SQSPublisher) Publish(ctx context.Context, items []WorkItem) []error {
	errs := make([]error, len(items))
	for start := 0; start < len(items); start += maxBatch {
		end := min(start+maxBatch, len(items))
		p.sendChunk(ctx, items[start:end], errs[start:end])
	}
	return errs
}

func (p *SQSPublisher) sendChunk(ctx context.Context, items []WorkItem, errs []error) {
	entries := make([]types.SendMessageBatchRequestEntry, 0, len(items))
	index := make(map[string]int, len(items))
	for i, it := range items {
		body, err := it.Encode()
		if err != nil {
			errs[i] = err
			continue
		}
		id := ulid.Make().String()
		index[id] = i
		entries = append(entries, types.SendMessageBatchRequestEntry{
			Id:          aws.String(id),
			MessageBody: aws.String(string(body)),
		})
	}
	if len(entries) == 0 {
		return
	}

	out, err := p.Client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
		QueueUrl: aws.String(p.QueueURL),
		Entries:  entries,
	})
	if err != nil {
		fill(errs, fmt.Errorf("send message batch: %w", err))
		return
	}
	for _, f := range out.Failed {
		i, ok := index[aws.ToString(f.Id)]
		if !ok {
			continue
		}
		errs[i] = fmt.Errorf("send message %s: %s (%s)", items[i].FileKey, aws.ToString(f.Message), aws.ToString(f.Code))
	}
}
