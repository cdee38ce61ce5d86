// Package queue carries work items from the ingestion bridge to the meal
// processor. Delivery is at-least-once on every backend.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// WorkItem is the only payload on the queue.
type WorkItem struct {
	FileKey string `json:"fileKey"`
}

// ErrMalformed marks a message body that is not a WorkItem.
var ErrMalformed = errors.New("malformed work item")

// Encode renders the message body.
func (w WorkItem) Encode() ([]byte, error) { return json.Marshal(w) }

// Decode parses a message body.
func Decode(body []byte) (WorkItem, error) {
	var w WorkItem
	if err := json.Unmarshal(body, &w); err != nil {
		return WorkItem{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return w, nil
}

// Publisher enqueues work items. The returned slice has one entry per
// item, nil when that item was accepted, so one failure never hides
// another item's success.
type Publisher interface {
	Publish(ctx context.Context, items []WorkItem) []error
}

// fill sets every still-nil entry of errs to err.
func fill(errs []error, err error) {
	for i := range errs {
		if errs[i] == nil {
			errs[i] = err
		}
	}
}
