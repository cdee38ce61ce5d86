package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// KafkaWriter is the subset of *kafka.Writer used for publishing.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher publishes work items keyed by file key, so redeliveries
// of one upload land on the same partition.
type KafkaPublisher struct {
	Writer KafkaWriter
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaWriter returns a synchronous writer for topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

// Publish writes every item in one call and maps kafka.WriteErrors back to
// the items.
func (p *KafkaPublisher) Publish(ctx context.Context, items []WorkItem) []error {
	errs := make([]error, len(items))
	msgs := make([]kafka.Message, 0, len(items))
	pos := make([]int, 0, len(items))
	for i, it := range items {
		body, err := it.Encode()
		if err != nil {
			errs[i] = err
			continue
		}
		msgs = append(msgs, kafka.Message{Key: []byte(it.FileKey), Value: body})
		pos = append(pos, i)
	}
	if len(msgs) == 0 {
		return errs
	}

	err := p.Writer.WriteMessages(ctx, msgs...)
	if err == nil {
		return errs
	}
	var werrs kafka.WriteErrors
	if errors.As(err, &werrs) && len(werrs) == len(msgs) {
		for j, e := range werrs {
			if e != nil {
				errs[pos[j]] = fmt.Errorf("write message %s: %w", items[pos[j]].FileKey, e)
			}
		}
		return errs
	}
	for _, i := range pos {
		errs[i] = fmt.Errorf("write messages: %w", err)
	}
	return errs
}

// KafkaReader is the subset of *kafka.Reader the consumer uses.
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaReader returns a consumer-group reader that commits only when
// told to.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10 << 20,
	})
}

// Handler processes one work item. msgID identifies the delivery in logs.
type Handler func(ctx context.Context, msgID string, item WorkItem) error

// Backoff bounds for redelivering a retriable failure.
const (
	MinBackoff = time.Second
	MaxBackoff = 30 * time.Second
)

// KafkaConsumer drives a Handler from a reader. A message is committed
// once the handler succeeds or fails permanently; retriable failures are
// handed the same message again after a backoff and stay uncommitted, so a
// restart or rebalance redelivers them too.
type KafkaConsumer struct {
	Reader    KafkaReader
	Handle    Handler
	Retriable func(error) bool
	Log       logrus.FieldLogger

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Run consumes until ctx is canceled. It returns nil on cancellation.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.Log.WithError(err).Warn("kafka fetch")
			if err := c.wait(ctx, MinBackoff); err != nil {
				return nil
			}
			continue
		}
		if !c.deliver(ctx, msg) {
			return nil
		}
	}
}

// deliver handles msg until it can be committed. It reports false when ctx
// ended first.
func (c *KafkaConsumer) deliver(ctx context.Context, msg kafka.Message) bool {
	id := fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	log := c.Log.WithField("message_id", id)

	item, err := Decode(msg.Value)
	if err != nil {
		log.WithError(err).Error("dropping malformed message")
		return c.commit(ctx, log, msg)
	}

	backoff := MinBackoff
	for {
		err := c.Handle(ctx, id, item)
		if err == nil || !c.Retriable(err) {
			if err != nil {
				log.WithError(err).WithField("file_key", item.FileKey).Warn("dropping message after permanent failure")
			}
			return c.commit(ctx, log, msg)
		}
		log.WithError(err).WithField("retry_in", backoff.String()).Warn("retriable failure, redelivering")
		if err := c.wait(ctx, backoff); err != nil {
			return false
		}
		backoff = min(backoff*2, MaxBackoff)
	}
}

func (c *KafkaConsumer) commit(ctx context.Context, log logrus.FieldLogger, msg kafka.Message) bool {
	if err := c.Reader.CommitMessages(ctx, msg); err != nil {
		if ctx.Err() != nil {
			return false
		}
		log.WithError(err).Warn("kafka commit")
	}
	return true
}

func (c *KafkaConsumer) wait(ctx context.Context, d time.Duration) error {
	if c.sleep != nil {
		return c.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
