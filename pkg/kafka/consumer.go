package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Record is a consumed Kafka record
type Record = kgo.Record

// ConsumerConfig holds Kafka consumer-group configuration
type ConsumerConfig struct {
	Brokers          []string
	GroupID          string
	Topics           []string
	ClientID         string
	SessionTimeout   time.Duration
	RebalanceTimeout time.Duration
}

// Consumer wraps a franz-go consumer-group client with explicit commits.
// Offsets are committed only after records are handled, giving at-least-once
// delivery; handlers must be idempotent.
type Consumer struct {
	client *kgo.Client
}

// NewConsumer creates a new consumer-group consumer
func NewConsumer(ctx context.Context, cfg *ConsumerConfig) (*Consumer, error) {
	if cfg == nil || len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("kafka consumer group is required")
	}
	if len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("kafka topics are required")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	if cfg.SessionTimeout > 0 {
		opts = append(opts, kgo.SessionTimeout(cfg.SessionTimeout))
	}
	if cfg.RebalanceTimeout > 0 {
		opts = append(opts, kgo.RebalanceTimeout(cfg.RebalanceTimeout))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach kafka brokers: %w", err)
	}

	return &Consumer{client: client}, nil
}

// Poll fetches the next batch of records. It blocks until records arrive,
// the context is cancelled, or the client is closed.
func (c *Consumer) Poll(ctx context.Context) ([]*Record, error) {
	fetches := c.client.PollFetches(ctx)
	if fetches.IsClientClosed() {
		return nil, fmt.Errorf("kafka consumer closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var fetchErr error
	fetches.EachError(func(topic string, partition int32, err error) {
		if fetchErr == nil {
			fetchErr = fmt.Errorf("fetch error on %s/%d: %w", topic, partition, err)
		}
	})
	if fetchErr != nil {
		return nil, fetchErr
	}

	return fetches.Records(), nil
}

// CommitRecords commits the offsets of the given records
func (c *Consumer) CommitRecords(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}
	return c.client.CommitRecords(ctx, records...)
}

// Close leaves the group and closes the consumer
func (c *Consumer) Close() {
	c.client.Close()
}
