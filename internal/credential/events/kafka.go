package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"soulcert/pkg/platform/circuit"
	"soulcert/pkg/platform/sentinel"
)

// Producer is the slice of kgo.Client the Kafka publisher needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Kafka publishes Issued notifications to a topic keyed by record ID. A
// circuit breaker stops hammering an unreachable cluster; while it is open
// publishes fail fast with sentinel.ErrUnavailable.
type Kafka struct {
	producer Producer
	topic    string
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

type KafkaOption func(*Kafka)

func WithBreaker(b *circuit.Breaker) KafkaOption {
	return func(k *Kafka) {
		if b != nil {
			k.breaker = b
		}
	}
}

func WithKafkaLogger(logger *slog.Logger) KafkaOption {
	return func(k *Kafka) {
		if logger != nil {
			k.logger = logger
		}
	}
}

func NewKafka(producer Producer, topic string, opts ...KafkaOption) *Kafka {
	k := &Kafka{
		producer: producer,
		topic:    topic,
		breaker:  circuit.New("kafka-issued"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func (k *Kafka) PublishIssued(ctx context.Context, event Issued) error {
	if !k.breaker.Allow() {
		return fmt.Errorf("publish issued %d: %w", event.RecordID, sentinel.ErrUnavailable)
	}

	value, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("encode issued event: %w", err)
	}
	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(event.RecordID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte("credential.issued")},
		},
	}

	if err := k.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		if _, change := k.breaker.RecordFailure(); change.Opened {
			k.logger.WarnContext(ctx, "kafka publisher circuit opened",
				"breaker", k.breaker.Name(),
				"topic", k.topic,
				"error", err,
			)
		}
		return fmt.Errorf("produce issued %d: %w", event.RecordID, err)
	}

	if _, change := k.breaker.RecordSuccess(); change.Closed {
		k.logger.InfoContext(ctx, "kafka publisher circuit closed",
			"breaker", k.breaker.Name(),
			"topic", k.topic,
		)
	}
	return nil
}
