package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/domain"
	"storefront/internal/payment"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidSignature     = errors.New("Invalid payment signature")
	ErrPaymentOrderMismatch = errors.New("payment does not match order")
)

// VerifyPaymentInput is the gateway callback relayed by the checkout page
type VerifyPaymentInput struct {
	RazorpayOrderID   string    `json:"razorpay_order_id" validate:"required"`
	RazorpayPaymentID string    `json:"razorpay_payment_id" validate:"required"`
	RazorpaySignature string    `json:"razorpay_signature" validate:"required"`
	OrderID           uuid.UUID `json:"orderId" validate:"required"`
}

// VerifyPaymentResult is the order state after verification
type VerifyPaymentResult struct {
	OrderID       uuid.UUID            `json:"orderId"`
	OrderNumber   string               `json:"orderNumber"`
	Status        domain.OrderStatus   `json:"status"`
	PaymentStatus domain.PaymentStatus `json:"paymentStatus"`
}

// PaymentService defines the interface for payment confirmation
type PaymentService interface {
	VerifyPayment(ctx context.Context, input VerifyPaymentInput) (*VerifyPaymentResult, error)
}

type paymentService struct {
	orderRepo      repository.OrderRepository
	secret         string
	pickupLocation string
	kicker         Kicker
	logger         *zap.Logger
}

// NewPaymentService creates a new instance of PaymentService
func NewPaymentService(
	orderRepo repository.OrderRepository,
	secret string,
	pickupLocation string,
	kicker Kicker,
	logger *zap.Logger,
) PaymentService {
	return &paymentService{
		orderRepo:      orderRepo,
		secret:         secret,
		pickupLocation: pickupLocation,
		kicker:         kicker,
		logger:         logger,
	}
}

// VerifyPayment checks the gateway signature and confirms the order. Shipment creation
// and the confirmation email are queued as separate outbox events in the same
// transaction, so neither can block or undo the confirmation. Repeated callbacks for a
// completed order return its current state.
func (s *paymentService) VerifyPayment(ctx context.Context, input VerifyPaymentInput) (*VerifyPaymentResult, error) {
	if !payment.VerifySignature(s.secret, input.RazorpayOrderID, input.RazorpayPaymentID, input.RazorpaySignature) {
		s.logger.Warn("Payment signature mismatch",
			zap.String("order_id", input.OrderID.String()),
			zap.String("razorpay_order_id", input.RazorpayOrderID),
		)
		return nil, ErrInvalidSignature
	}

	order, err := s.orderRepo.FindByID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}

	if order.PaymentMethod != domain.PaymentMethodRazorpay || order.RazorpayOrderID == nil {
		s.logger.Warn("Payment submitted for an order without a gateway order",
			zap.String("order_id", order.ID.String()),
			zap.String("payment_method", string(order.PaymentMethod)),
			zap.String("received", input.RazorpayOrderID),
		)
		return nil, ErrPaymentOrderMismatch
	}
	if *order.RazorpayOrderID != input.RazorpayOrderID {
		s.logger.Warn("Payment references a different gateway order",
			zap.String("order_id", order.ID.String()),
			zap.String("expected", *order.RazorpayOrderID),
			zap.String("received", input.RazorpayOrderID),
		)
		return nil, ErrPaymentOrderMismatch
	}

	if order.PaymentStatus == domain.PaymentStatusCompleted {
		s.logger.Info("Payment already confirmed", zap.String("order_id", order.ID.String()))
		return verifyResult(order), nil
	}

	order.PaymentStatus = domain.PaymentStatusCompleted
	order.Status = domain.OrderStatusConfirmed
	order.RazorpayOrderID = &input.RazorpayOrderID
	order.RazorpayPaymentID = &input.RazorpayPaymentID
	order.RazorpaySignature = &input.RazorpaySignature

	events, err := s.confirmationEvents(order)
	if err != nil {
		return nil, err
	}

	if err := s.orderRepo.ConfirmPayment(ctx, order, events); err != nil {
		if errors.Is(err, repository.ErrPaymentAlreadyCompleted) {
			current, findErr := s.orderRepo.FindByID(ctx, order.ID)
			if findErr != nil {
				return nil, findErr
			}
			return verifyResult(current), nil
		}
		return nil, err
	}

	if s.kicker != nil {
		s.kicker.Kick()
	}

	s.logger.Info("Payment verified",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("razorpay_payment_id", input.RazorpayPaymentID),
	)
	return verifyResult(order), nil
}

func (s *paymentService) confirmationEvents(order *domain.Order) ([]*domain.OutboxEvent, error) {
	types := []domain.EventType{
		domain.EventOrderConfirmed,
		domain.EventShipmentRequested,
		domain.EventOrderConfirmationEmail,
	}

	events := make([]*domain.OutboxEvent, 0, len(types))
	for _, t := range types {
		event, err := domain.NewOutboxEvent(t, order)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s event: %w", t, err)
		}
		if t == domain.EventShipmentRequested && s.pickupLocation != "" {
			if err := event.WithPickupLocation(s.pickupLocation); err != nil {
				return nil, err
			}
		}
		events = append(events, event)
	}
	return events, nil
}

func verifyResult(order *domain.Order) *VerifyPaymentResult {
	return &VerifyPaymentResult{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
	}
}
