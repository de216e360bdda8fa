// Package kafka publishes outbox events with franz-go.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nikolayk812/orderflow/internal/domain"
	"github.com/twmb/franz-go/pkg/kgo"
)

const HeaderEventType = "event_type"

// recordProducer is the part of *kgo.Client the producer uses.
type recordProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Producer struct {
	client recordProducer
	topic  string
	close  func()
	logger *slog.Logger
}

// NewProducer connects to brokers. Records are keyed by order id so the
// events of one order keep their order within a partition.
func NewProducer(brokers []string, topic string, logger *slog.Logger) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("no kafka brokers")
	}
	if topic == "" {
		return nil, errors.New("topic is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("kgo.NewClient: %w", err)
	}

	return &Producer{
		client: client,
		topic:  topic,
		close:  client.Close,
		logger: logger,
	}, nil
}

// Ping checks that at least one broker is reachable.
func (p *Producer) Ping(ctx context.Context) error {
	c, ok := p.client.(*kgo.Client)
	if !ok {
		return nil
	}
	return c.Ping(ctx)
}

func (p *Producer) Publish(ctx context.Context, eventType domain.EventType, key string, payload []byte) error {
	record := buildRecord(p.topic, eventType, key, payload)

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("client.ProduceSync: %w", err)
	}

	p.logger.DebugContext(ctx, "event published",
		slog.String("topic", p.topic),
		slog.String("event_type", string(eventType)),
		slog.String("key", key))

	return nil
}

func (p *Producer) Close() {
	if p.close != nil {
		p.close()
	}
}

func buildRecord(topic string, eventType domain.EventType, key string, payload []byte) *kgo.Record {
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: HeaderEventType, Value: []byte(eventType)},
		},
	}
}
