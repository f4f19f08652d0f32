// Package messaging 领域事件发布实现
package messaging

import (
	"context"

	"github.com/wyfcoding/amlcase/internal/sar/domain"
	"github.com/wyfcoding/amlcase/pkg/logger"
	"github.com/wyfcoding/amlcase/pkg/mq"
)

// KafkaEventPublisher 通过 Kafka 发布领域事件
type KafkaEventPublisher struct {
	producer *mq.KafkaProducer
	topic    string
}

func NewKafkaEventPublisher(producer *mq.KafkaProducer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

type eventEnvelope struct {
	EventName  string             `json:"event_name"`
	OccurredAt string             `json:"occurred_at"`
	Payload    domain.DomainEvent `json:"payload"`
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, event domain.DomainEvent) error {
	envelope := eventEnvelope{
		EventName:  event.EventName(),
		OccurredAt: event.OccurredAt().Format("2006-01-02T15:04:05Z07:00"),
		Payload:    event,
	}
	return p.producer.SendMessage(ctx, p.topic, event.Key(), envelope)
}

// NoopEventPublisher 未配置消息队列时的空实现
type NoopEventPublisher struct{}

func NewNoopEventPublisher() *NoopEventPublisher {
	return &NoopEventPublisher{}
}

func (p *NoopEventPublisher) Publish(ctx context.Context, event domain.DomainEvent) error {
	logger.Debug(ctx, "event dropped (no publisher configured)", "event", event.EventName())
	return nil
}
