package processor

import (
	"context"
	"sync"

	"github.com/aws/aws-lambda-go/events"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/logging"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/queue"
)

// HandleSQS processes a batch concurrently and reports the records to
// redeliver. Malformed bodies and poison items are acknowledged.
func (p *Processor) HandleSQS(ctx context.Context, ev events.SQSEvent) events.SQSEventResponse {
	retry := make([]bool, len(ev.Records))
	var wg sync.WaitGroup
	for i, rec := range ev.Records {
		wg.Add(1)
		go func(i int, rec events.SQSMessage) {
			defer wg.Done()
			ctx := logging.WithRequestID(ctx, rec.MessageId)
			item, err := queue.Decode([]byte(rec.Body))
			if err != nil {
				logging.FromContext(ctx, p.Log).WithError(err).Error("dropping malformed message")
				return
			}
			_, err = p.Process(ctx, item)
			retry[i] = IsRetriable(err)
		}(i, rec)
	}
	wg.Wait()

	var resp events.SQSEventResponse
	for i, r := range retry {
		if r {
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: ev.Records[i].MessageId})
		}
	}
	return resp
}
