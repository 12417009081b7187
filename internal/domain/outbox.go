package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names an outbox event
type EventType string

const (
	EventOrderCreated           EventType = "order.created"
	EventOrderConfirmed         EventType = "order.confirmed"
	EventShipmentRequested      EventType = "shipment.requested"
	EventShipmentCreated        EventType = "shipment.created"
	EventOrderConfirmationEmail EventType = "email.order_confirmation"
)

// OutboxEvent is a side effect recorded in the same transaction as the state change
// that triggered it and delivered afterwards by the dispatcher.
type OutboxEvent struct {
	ID            uuid.UUID       `json:"id"`
	AggregateID   uuid.UUID       `json:"aggregateId"`
	Type          EventType       `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	Attempts      int             `json:"attempts"`
	LastError     *string         `json:"lastError,omitempty"`
	NextAttemptAt time.Time       `json:"nextAttemptAt"`
	ProcessedAt   *time.Time      `json:"processedAt,omitempty"`
	FailedAt      *time.Time      `json:"failedAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// OrderEventPayload is the payload carried by order lifecycle events
type OrderEventPayload struct {
	OrderID        uuid.UUID     `json:"orderId"`
	OrderNumber    string        `json:"orderNumber"`
	Status         OrderStatus   `json:"status"`
	PaymentStatus  PaymentStatus `json:"paymentStatus"`
	Total          string        `json:"total"`
	TrackingNumber *string       `json:"trackingNumber,omitempty"`
	ShipmentID     *int64        `json:"shipmentId,omitempty"`
	PickupLocation string        `json:"pickupLocation,omitempty"`
}

// NewOutboxEvent builds a pending event for the given order
func NewOutboxEvent(eventType EventType, order *Order) (*OutboxEvent, error) {
	payload, err := json.Marshal(OrderEventPayload{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Status:         order.Status,
		PaymentStatus:  order.PaymentStatus,
		Total:          order.Total.StringFixed(2),
		TrackingNumber: order.TrackingNumber,
		ShipmentID:     order.ExternalShipmentID,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &OutboxEvent{
		ID:            uuid.New(),
		AggregateID:   order.ID,
		Type:          eventType,
		Payload:       payload,
		NextAttemptAt: now,
		CreatedAt:     now,
	}, nil
}

// WithPickupLocation records the warehouse the shipment should be picked up from
func (e *OutboxEvent) WithPickupLocation(location string) error {
	payload, err := e.DecodePayload()
	if err != nil {
		return err
	}
	payload.PickupLocation = location
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	e.Payload = raw
	return nil
}

// DecodePayload parses the order payload of the event
func (e *OutboxEvent) DecodePayload() (*OrderEventPayload, error) {
	var payload OrderEventPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return &payload, nil
}
