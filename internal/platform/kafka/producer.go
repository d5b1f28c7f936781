// Package kafka publishes relayed outbox entries to the audit topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"healthtrack/internal/platform/config"
	audit "healthtrack/pkg/platform/audit"
)

// Producer writes outbox entries to one topic, keyed by aggregate ID so all
// events for a principal land on the same partition in order.
type Producer struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewProducer connects to the brokers in cfg.
func NewProducer(cfg config.KafkaConfig, logger *slog.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.AuditTopic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: create client: %w", err)
	}
	return &Producer{client: client, topic: cfg.AuditTopic, logger: logger}, nil
}

// EnsureTopic creates the audit topic if it does not exist yet.
func (p *Producer) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	admin := kadm.NewClient(p.client)
	resp, err := admin.CreateTopic(ctx, partitions, replicationFactor, nil, p.topic)
	if err != nil {
		return fmt.Errorf("kafka: create topic %s: %w", p.topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("kafka: create topic %s: %w", p.topic, resp.Err)
	}
	if resp.Err == nil && p.logger != nil {
		p.logger.InfoContext(ctx, "kafka topic created", "topic", p.topic, "partitions", partitions)
	}
	return nil
}

// Publish sends entry synchronously and returns once the broker acknowledged.
func (p *Producer) Publish(ctx context.Context, entry audit.OutboxEntry) error {
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(entry.AggregateID),
		Value: entry.Payload,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(entry.EventType)},
			{Key: "outbox_id", Value: []byte(entry.ID.String())},
		},
		Timestamp: entry.CreatedAt,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("kafka: produce %s: %w", entry.ID, err)
	}
	return nil
}

// Health pings the cluster.
func (p *Producer) Health(ctx context.Context) error {
	return p.client.Ping(ctx)
}

func (p *Producer) Close() {
	p.client.Close()
}
