package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/domain"
	"storefront/internal/repository"
	"storefront/internal/shiprocket"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrShipmentExists         = errors.New("Order already has a shipment created")
	ErrShipmentInProgress     = errors.New("Shipment creation is already in progress for this order")
	ErrNoShipmentInProgress   = errors.New("Order has no shipment in progress")
	ErrInvalidShippingAddress = errors.New("Invalid shipping address format")
	ErrShipmentNotReturned    = errors.New("Failed to create order in Shiprocket")
)

var validate = validator.New()

// CreateShipmentInput is the admin request to ship an order
type CreateShipmentInput struct {
	OrderID        uuid.UUID `json:"orderId" validate:"required"`
	PickupLocation string    `json:"pickupLocation,omitempty" validate:"max=100"`
}

// RecordShipmentInput is an operator's record of a shipment the provider already holds
type RecordShipmentInput struct {
	OrderID           uuid.UUID `json:"orderId" validate:"required"`
	ShipmentID        int64     `json:"shipmentId" validate:"gt=0"`
	ShiprocketOrderID int64     `json:"shiprocketOrderId,omitempty" validate:"gte=0"`
	AWBCode           string    `json:"awbCode,omitempty"`
	ChannelOrderID    string    `json:"channelOrderId,omitempty"`
}

// ShipmentResult describes a shipment created with the provider
type ShipmentResult struct {
	OrderID           uuid.UUID `json:"orderId"`
	OrderNumber       string    `json:"orderNumber"`
	ShipmentID        int64     `json:"shipmentId"`
	ShiprocketOrderID int64     `json:"shiprocketOrderId"`
	AWBCode           string    `json:"awbCode,omitempty"`
	ChannelOrderID    string    `json:"channelOrderId,omitempty"`
	TrackingNumber    string    `json:"trackingNumber"`
	Status            string    `json:"status,omitempty"`
}

// RatesResult is the courier quote list for a route
type RatesResult struct {
	AvailableCourierCompanies   []shiprocket.CourierCompany `json:"available_courier_companies"`
	RecommendedCourierCompanyID int                         `json:"recommended_courier_company_id"`
	RecommendedCourier          *shiprocket.CourierCompany  `json:"recommended_courier,omitempty"`
}

// ShippingService defines the interface for shipment creation and rate checks
type ShippingService interface {
	CreateShipment(ctx context.Context, input CreateShipmentInput) (*ShipmentResult, error)
	CheckRates(ctx context.Context, params shiprocket.ServiceabilityParams) (*RatesResult, error)
	RecordShipment(ctx context.Context, input RecordShipmentInput) (*ShipmentResult, error)
	ReleaseShipment(ctx context.Context, orderID uuid.UUID) error
}

type shippingService struct {
	orderRepo      repository.OrderRepository
	provider       shiprocket.API
	pickupLocation string
	pickupPostcode string
	logger         *zap.Logger
}

// NewShippingService creates a new instance of ShippingService
func NewShippingService(
	orderRepo repository.OrderRepository,
	provider shiprocket.API,
	pickupLocation string,
	pickupPostcode string,
	logger *zap.Logger,
) ShippingService {
	if pickupLocation == "" {
		pickupLocation = "Primary"
	}
	return &shippingService{
		orderRepo:      orderRepo,
		provider:       provider,
		pickupLocation: pickupLocation,
		pickupPostcode: pickupPostcode,
		logger:         logger,
	}
}

// CreateShipment registers the order with the logistics provider. The order is claimed
// atomically before the provider is called, so concurrent calls for one order produce a
// single shipment. The claim is released when mapping or the provider call fails.
func (s *shippingService) CreateShipment(ctx context.Context, input CreateShipmentInput) (*ShipmentResult, error) {
	order, err := s.orderRepo.FindByID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if err := shipmentGuard(order); err != nil {
		return nil, err
	}

	address, err := order.DecodeShippingAddress()
	if err != nil {
		s.logger.Warn("Stored shipping address is unreadable", zap.String("order_id", order.ID.String()), zap.Error(err))
		return nil, ErrInvalidShippingAddress
	}

	claimed, err := s.orderRepo.ClaimShipment(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrShipmentInProgress
	}

	pickup := input.PickupLocation
	if pickup == "" {
		pickup = s.pickupLocation
	}

	created, err := s.submit(ctx, order, address, pickup)
	if err != nil {
		s.release(ctx, order.ID)
		return nil, err
	}

	result, err := s.complete(ctx, order, created)
	if err != nil {
		// The provider already holds the shipment; the claim stays so it is not created twice.
		s.logger.Error("Failed to record created shipment",
			zap.String("order_id", order.ID.String()),
			zap.Int64("shipment_id", created.ShipmentID),
			zap.Int64("shiprocket_order_id", created.OrderID),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("Shipment created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("shipment_id", result.ShipmentID),
		zap.String("tracking_number", result.TrackingNumber),
	)
	return result, nil
}

// RecordShipment stores a shipment the provider created for an order stuck in CREATING
func (s *shippingService) RecordShipment(ctx context.Context, input RecordShipmentInput) (*ShipmentResult, error) {
	if err := validate.Struct(input); err != nil {
		return nil, invalidf("Shipment ID must be a positive number")
	}

	order, err := s.orderRepo.FindByID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if err := requireInProgress(order); err != nil {
		return nil, err
	}

	result, err := s.complete(ctx, order, &shiprocket.CreatedOrder{
		OrderID:        input.ShiprocketOrderID,
		ShipmentID:     input.ShipmentID,
		AWBCode:        input.AWBCode,
		ChannelOrderID: input.ChannelOrderID,
	})
	if err != nil {
		if errors.Is(err, repository.ErrShipmentNotClaimed) {
			return nil, ErrNoShipmentInProgress
		}
		return nil, err
	}

	s.logger.Info("Shipment recorded manually",
		zap.String("order_id", order.ID.String()),
		zap.Int64("shipment_id", result.ShipmentID),
		zap.String("tracking_number", result.TrackingNumber),
	)
	return result, nil
}

// ReleaseShipment returns an order stuck in CREATING to NONE so shipment creation can run
// again. Only use it when the provider holds no shipment for the order.
func (s *shippingService) ReleaseShipment(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if err := requireInProgress(order); err != nil {
		return err
	}
	if err := s.orderRepo.ReleaseShipmentClaim(ctx, order.ID); err != nil {
		return err
	}

	s.logger.Warn("Shipment claim released manually", zap.String("order_id", order.ID.String()))
	return nil
}

// shipmentGuard rejects orders that are shipped or being shipped
func shipmentGuard(order *domain.Order) error {
	if order.TrackingNumber != nil && *order.TrackingNumber != "" {
		return ErrShipmentExists
	}
	switch order.ShipmentState {
	case domain.ShipmentStateCreated:
		return ErrShipmentExists
	case domain.ShipmentStateCreating:
		return ErrShipmentInProgress
	}
	return nil
}

// requireInProgress accepts only orders holding a CREATING claim
func requireInProgress(order *domain.Order) error {
	switch err := shipmentGuard(order); {
	case errors.Is(err, ErrShipmentExists):
		return err
	case err == nil:
		return ErrNoShipmentInProgress
	}
	return nil
}

// complete writes the provider identifiers to a claimed order together with the
// shipment.created event
func (s *shippingService) complete(ctx context.Context, order *domain.Order, created *shiprocket.CreatedOrder) (*ShipmentResult, error) {
	shipmentID := created.ShipmentID
	if shipmentID == 0 {
		shipmentID = created.OrderID
	}
	trackingNumber := created.AWBCode
	if trackingNumber == "" {
		trackingNumber = domain.SyntheticTrackingNumber(shipmentID)
	}

	record := repository.ShipmentRecord{
		TrackingNumber: trackingNumber,
		ShipmentID:     shipmentID,
	}
	if created.OrderID != 0 {
		record.ExternalOrderID = &created.OrderID
	}
	if created.ChannelOrderID != "" {
		record.ChannelOrderID = &created.ChannelOrderID
	}
	if created.CourierName != "" {
		record.CourierName = &created.CourierName
	}

	order.TrackingNumber = &trackingNumber
	order.ExternalShipmentID = &shipmentID
	order.ExternalOrderID = record.ExternalOrderID
	order.ChannelOrderID = record.ChannelOrderID
	order.ShipmentState = domain.ShipmentStateCreated
	order.Status = domain.OrderStatusProcessing

	event, err := domain.NewOutboxEvent(domain.EventShipmentCreated, order)
	if err != nil {
		return nil, fmt.Errorf("failed to build shipment event: %w", err)
	}

	if err := s.orderRepo.CompleteShipment(ctx, order.ID, record, []*domain.OutboxEvent{event}); err != nil {
		return nil, err
	}

	return &ShipmentResult{
		OrderID:           order.ID,
		OrderNumber:       order.OrderNumber,
		ShipmentID:        shipmentID,
		ShiprocketOrderID: created.OrderID,
		AWBCode:           created.AWBCode,
		ChannelOrderID:    created.ChannelOrderID,
		TrackingNumber:    trackingNumber,
		Status:            created.Status,
	}, nil
}

func (s *shippingService) submit(ctx context.Context, order *domain.Order, address *domain.Address, pickup string) (*shiprocket.CreatedOrder, error) {
	payload := shiprocket.BuildOrderPayload(order, address, pickup)
	if err := shiprocket.ValidateOrderPayload(payload); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	created, err := s.provider.CreateOrder(ctx, payload)
	if err != nil {
		s.logger.Error("Shiprocket order creation failed", zap.String("order_id", order.ID.String()), zap.Error(err))
		return nil, &ProviderError{Op: "create shipment", Err: err}
	}
	if created.ShipmentID == 0 && created.OrderID == 0 {
		return nil, &ProviderError{Op: "create shipment", Err: ErrShipmentNotReturned}
	}
	return created, nil
}

func (s *shippingService) release(ctx context.Context, orderID uuid.UUID) {
	if err := s.orderRepo.ReleaseShipmentClaim(context.WithoutCancel(ctx), orderID); err != nil {
		s.logger.Error("Failed to release shipment claim", zap.String("order_id", orderID.String()), zap.Error(err))
	}
}

// CheckRates returns courier quotes between the pickup and delivery postcodes
func (s *shippingService) CheckRates(ctx context.Context, params shiprocket.ServiceabilityParams) (*RatesResult, error) {
	if params.PickupPostcode == "" {
		params.PickupPostcode = s.pickupPostcode
	}
	if err := validate.Struct(params); err != nil {
		return nil, invalidf("Pickup and delivery postcodes must be 6 digits")
	}

	quotes, err := s.provider.CheckServiceability(ctx, params)
	if err != nil {
		s.logger.Error("Serviceability check failed",
			zap.String("pickup_postcode", params.PickupPostcode),
			zap.String("delivery_postcode", params.DeliveryPostcode),
			zap.Error(err),
		)
		return nil, &ProviderError{Op: "check rates", Err: err}
	}

	result := &RatesResult{
		AvailableCourierCompanies:   quotes.AvailableCourierCompanies,
		RecommendedCourierCompanyID: quotes.RecommendedCourierCompanyID,
	}
	if result.AvailableCourierCompanies == nil {
		result.AvailableCourierCompanies = []shiprocket.CourierCompany{}
	}
	for i := range result.AvailableCourierCompanies {
		if result.AvailableCourierCompanies[i].CourierCompanyID == quotes.RecommendedCourierCompanyID {
			result.RecommendedCourier = &result.AvailableCourierCompanies[i]
			break
		}
	}
	return result, nil
}
