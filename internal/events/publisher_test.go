package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"storefront/internal/domain"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (c *captureWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error { return nil }

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &captureWriter{}
	p := &kafkaPublisher{writer: w, logger: zap.NewNop()}

	order := &domain.Order{ID: uuid.New(), OrderNumber: "ORD-20240315-A1B2C3", Status: domain.OrderStatusConfirmed, Total: decimal.NewFromInt(510)}
	event, err := domain.NewOutboxEvent(domain.EventOrderConfirmed, order)
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), order.ID.String(), event))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, order.ID.String(), string(msg.Key))
	assert.Equal(t, []kafka.Header{{Key: "event-type", Value: []byte("order.confirmed")}}, msg.Headers)

	var got Message
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	want := Message{
		ID:         event.ID.String(),
		Type:       "order.confirmed",
		OrderID:    order.ID.String(),
		Payload:    event.Payload,
		OccurredAt: event.CreatedAt,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}

	var payload domain.OrderEventPayload
	require.NoError(t, json.Unmarshal(got.Payload, &payload))
	assert.Equal(t, "510.00", payload.Total)
}

func TestKafkaPublisher_WrapsWriteErrors(t *testing.T) {
	p := &kafkaPublisher{writer: &captureWriter{err: errors.New("leader not available")}, logger: zap.NewNop()}
	event := &domain.OutboxEvent{ID: uuid.New(), Type: domain.EventShipmentCreated, Payload: json.RawMessage(`{}`)}

	err := p.Publish(context.Background(), "k", event)
	assert.ErrorContains(t, err, "failed to publish shipment.created")
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), "k", &domain.OutboxEvent{}))
	assert.NoError(t, p.Close())
}
