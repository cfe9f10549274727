// internal/service/inventory/infrastructure/kafka_event_publisher.go
package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"qcom/internal/pkg/mq"
	"qcom/internal/service/inventory/domain"
)

// eventEnvelope 是对外发布事件的统一信封
type eventEnvelope struct {
	EventID     string       `json:"eventId"`
	EventType   string       `json:"eventType"`
	AggregateID string       `json:"aggregateId"`
	Timestamp   string       `json:"timestamp"`
	Source      string       `json:"source"`
	Version     string       `json:"version"`
	Payload     domain.Event `json:"payload"`
}

// KafkaEventPublisher 是 domain.EventPublisher 的 Kafka 实现。
// 事件按聚合 ID 做 key，保证单个预占单的事件分区内有序。
type KafkaEventPublisher struct {
	writer *kafka.Writer
	source string
	logger zerolog.Logger
}

func NewKafkaEventPublisher(brokers []string, source string, logger zerolog.Logger) *KafkaEventPublisher {
	return &KafkaEventPublisher{
		writer: mq.NewWriter(brokers),
		source: source,
		logger: logger.With().Str("component", "kafka-publisher").Logger(),
	}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, event domain.Event) error {
	envelope := eventEnvelope{
		EventID:     event.Meta().EventID,
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.Meta().OccurredAt.UTC().Format(time.RFC3339),
		Source:      p.source,
		Version:     "1.0",
		Payload:     event,
	}
	value, err := json.Marshal(envelope)
	if err != nil {
		return errors.Wrap(err, "marshal event envelope")
	}
	if err := mq.ProduceMessage(ctx, p.writer, event.Topic(), []byte(event.AggregateID()), value); err != nil {
		return errors.Wrapf(err, "produce to %s", event.Topic())
	}
	return nil
}

func (p *KafkaEventPublisher) Close() error {
	return p.writer.Close()
}

// CompositeEventPublisher 把同一事件扇出给多个下游（Kafka 总线、
// websocket 实时通道等）。单个下游失败记日志，不影响其他下游。
type CompositeEventPublisher struct {
	publishers []domain.EventPublisher
	logger     zerolog.Logger
}

func NewCompositeEventPublisher(logger zerolog.Logger, publishers ...domain.EventPublisher) *CompositeEventPublisher {
	return &CompositeEventPublisher{publishers: publishers, logger: logger}
}

func (p *CompositeEventPublisher) Publish(ctx context.Context, event domain.Event) error {
	for _, pub := range p.publishers {
		if err := pub.Publish(ctx, event); err != nil {
			p.logger.Warn().Err(err).Str("topic", event.Topic()).Msg("downstream publisher failed")
		}
	}
	return nil
}
