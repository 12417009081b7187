package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher emits order lifecycle events to downstream consumers
type Publisher interface {
	Publish(ctx context.Context, key string, event *domain.OutboxEvent) error
	Close() error
}

// Message is the envelope written to the topic
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OrderID    string          `json:"orderId"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

// NewKafkaPublisher creates a publisher writing to the configured topic
func NewKafkaPublisher(cfg config.KafkaConfig, logger *zap.Logger) Publisher {
	return &kafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
		logger: logger,
	}
}

// Publish writes event keyed by key so events of one order stay on one partition
func (p *kafkaPublisher) Publish(ctx context.Context, key string, event *domain.OutboxEvent) error {
	value, err := json.Marshal(Message{
		ID:         event.ID.String(),
		Type:       string(event.Type),
		OrderID:    event.AggregateID.String(),
		Payload:    event.Payload,
		OccurredAt: event.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to write message to kafka", zap.String("event_type", string(event.Type)), zap.Error(err))
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	p.logger.Debug("Event published", zap.String("event_type", string(event.Type)), zap.String("key", key))
	return nil
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops every event. It is used when no brokers are configured.
type NopPublisher struct {
	Logger *zap.Logger
}

func (n NopPublisher) Publish(ctx context.Context, key string, event *domain.OutboxEvent) error {
	if n.Logger != nil {
		n.Logger.Debug("No event brokers configured, dropping event", zap.String("event_type", string(event.Type)))
	}
	return nil
}

func (NopPublisher) Close() error { return nil }
