package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"
	"storefront/internal/shiprocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	standardDeliveryDays = 7
	deliveryDateLayout   = "Monday, 2 January 2006"
)

var ErrNoTrackingData = errors.New("No tracking data found for this shipment ID")

// ShipmentTracking is the raw provider payload for a shipment
type ShipmentTracking struct {
	ShipmentID         int64           `json:"shipmentId"`
	ShiprocketTracking json.RawMessage `json:"shiprocketTracking"`
}

// TrackedProduct is the product reference shown next to a tracked line
type TrackedProduct struct {
	ID        uuid.UUID     `json:"id"`
	Name      string        `json:"name"`
	Slug      string        `json:"slug"`
	MainImage *domain.Image `json:"mainImage"`
}

// TrackedItem is one line of a tracked order
type TrackedItem struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Total    decimal.Decimal `json:"total"`
	Product  TrackedProduct  `json:"product"`
}

// TrackedCustomer identifies who placed a tracked order
type TrackedCustomer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsGuest bool   `json:"isGuest"`
}

// OrderTracking is the order status view returned by the tracking endpoint
type OrderTracking struct {
	ID                   uuid.UUID            `json:"id"`
	OrderNumber          string               `json:"orderNumber"`
	Status               domain.OrderStatus   `json:"status"`
	PaymentStatus        domain.PaymentStatus `json:"paymentStatus"`
	PaymentMethod        domain.PaymentMethod `json:"paymentMethod"`
	Subtotal             decimal.Decimal      `json:"subtotal"`
	Shipping             decimal.Decimal      `json:"shipping"`
	Tax                  decimal.Decimal      `json:"tax"`
	Discount             decimal.Decimal      `json:"discount"`
	Total                decimal.Decimal      `json:"total"`
	CreatedAt            time.Time            `json:"createdAt"`
	UpdatedAt            time.Time            `json:"updatedAt"`
	ShippedAt            *time.Time           `json:"shippedAt"`
	DeliveredAt          *time.Time           `json:"deliveredAt"`
	TrackingNumber       *string              `json:"trackingNumber"`
	Notes                *string              `json:"notes"`
	EstimatedDelivery    string               `json:"estimatedDelivery"`
	ShippingAddress      json.RawMessage      `json:"shippingAddress"`
	BillingAddress       json.RawMessage      `json:"billingAddress,omitempty"`
	CourierName          *string              `json:"courierName,omitempty"`
	ShiprocketOrderID    *int64               `json:"shiprocketOrderId"`
	ShiprocketShipmentID *int64               `json:"shiprocketShipmentId"`
	ChannelOrderID       *string              `json:"channelOrderId"`
	Items                []TrackedItem        `json:"items"`
	Customer             TrackedCustomer      `json:"customer"`
	ShiprocketTracking   json.RawMessage      `json:"shiprocketTracking,omitempty"`
}

// TrackingService defines the interface for order and shipment tracking
type TrackingService interface {
	TrackShipment(ctx context.Context, shipmentID int64) (*ShipmentTracking, error)
	TrackOrder(ctx context.Context, orderNumber string) (*OrderTracking, error)
}

type trackingService struct {
	orderRepo repository.OrderRepository
	provider  shiprocket.API
	channelID string
	logger    *zap.Logger
}

// NewTrackingService creates a new instance of TrackingService
func NewTrackingService(orderRepo repository.OrderRepository, provider shiprocket.API, channelID string, logger *zap.Logger) TrackingService {
	return &trackingService{
		orderRepo: orderRepo,
		provider:  provider,
		channelID: channelID,
		logger:    logger,
	}
}

// TrackShipment returns the provider's tracking payload for a shipment
func (s *trackingService) TrackShipment(ctx context.Context, shipmentID int64) (*ShipmentTracking, error) {
	raw, err := s.provider.Track(ctx, shiprocket.TrackQuery{ShipmentID: shipmentID, ChannelID: s.channelID})
	if err != nil {
		s.logger.Error("Shipment tracking failed", zap.Int64("shipment_id", shipmentID), zap.Error(err))
		return nil, &ProviderError{Op: "track shipment", Err: err}
	}
	if isEmptyPayload(raw) {
		return nil, ErrNoTrackingData
	}
	return &ShipmentTracking{ShipmentID: shipmentID, ShiprocketTracking: raw}, nil
}

// TrackOrder returns the stored order with live provider tracking merged in when it can
// be fetched. A tracking failure never fails the lookup.
func (s *trackingService) TrackOrder(ctx context.Context, orderNumber string) (*OrderTracking, error) {
	order, err := s.orderRepo.FindByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	view := trackingView(order)

	if order.ExternalShipmentID != nil || (order.TrackingNumber != nil && *order.TrackingNumber != "") {
		query := shiprocket.TrackQuery{
			ChannelOrderID: order.OrderNumber,
			ChannelID:      s.channelID,
		}
		if order.ExternalShipmentID != nil {
			query.ShipmentID = *order.ExternalShipmentID
		}
		if order.TrackingNumber != nil && !strings.HasPrefix(*order.TrackingNumber, domain.SyntheticTrackingPrefix) {
			query.AWBCode = *order.TrackingNumber
		}

		raw, err := s.provider.Track(ctx, query)
		switch {
		case err != nil:
			s.logger.Warn("Live tracking unavailable", zap.String("order_number", order.OrderNumber), zap.Error(err))
		case !isEmptyPayload(raw):
			view.ShiprocketTracking = raw
		}
	}

	return view, nil
}

func trackingView(order *domain.Order) *OrderTracking {
	view := &OrderTracking{
		ID:                   order.ID,
		OrderNumber:          order.OrderNumber,
		Status:               order.Status,
		PaymentStatus:        order.PaymentStatus,
		PaymentMethod:        order.PaymentMethod,
		Subtotal:             order.Subtotal,
		Shipping:             order.Shipping,
		Tax:                  order.Tax,
		Discount:             order.Discount,
		Total:                order.Total,
		CreatedAt:            order.CreatedAt,
		UpdatedAt:            order.UpdatedAt,
		ShippedAt:            order.ShippedAt,
		DeliveredAt:          order.DeliveredAt,
		TrackingNumber:       order.TrackingNumber,
		Notes:                order.Notes,
		EstimatedDelivery:    EstimatedDelivery(order.CreatedAt),
		ShippingAddress:      order.ShippingAddress,
		BillingAddress:       order.BillingAddress,
		CourierName:          order.ShippingCourierName,
		ShiprocketOrderID:    order.ExternalOrderID,
		ShiprocketShipmentID: order.ExternalShipmentID,
		ChannelOrderID:       order.ChannelOrderID,
		Items:                make([]TrackedItem, 0, len(order.Items)),
		Customer: TrackedCustomer{
			Name:    order.CustomerName(),
			Email:   order.CustomerEmail(),
			IsGuest: order.UserID == nil,
		},
	}

	for _, item := range order.Items {
		view.Items = append(view.Items, TrackedItem{
			ID:       item.ID,
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
			Total:    item.Total,
			Product: TrackedProduct{
				ID:        item.ProductID,
				Name:      item.Snapshot.Name,
				Slug:      item.Snapshot.Slug,
				MainImage: item.Snapshot.MainImage,
			},
		})
	}
	return view
}

// EstimatedDelivery is the latest standard delivery date for an order placed at createdAt
func EstimatedDelivery(createdAt time.Time) string {
	return createdAt.AddDate(0, 0, standardDeliveryDays).Format(deliveryDateLayout)
}

func isEmptyPayload(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	switch string(trimmed) {
	case "", "null", "{}", "[]", `""`:
		return true
	}
	return false
}
