package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"storefront/internal/domain"
	"storefront/internal/payment"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	orderNumberAttempts = 5
	orderNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	orderNumberSuffix   = 6
)

// Kicker wakes the outbox dispatcher after new events were committed
type Kicker interface {
	Kick()
}

// CustomerInfo identifies the buyer
type CustomerInfo struct {
	FullName string `json:"fullName" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"required,min=10,max=15"`
}

// CreateOrderInput is the checkout payload
type CreateOrderInput struct {
	Items             []domain.OrderLine   `json:"items" validate:"required,min=1,dive"`
	CustomerInfo      CustomerInfo         `json:"customerInfo"`
	ShippingAddress   domain.Address       `json:"shippingAddress"`
	BillingAddress    *domain.Address      `json:"billingAddress,omitempty" validate:"omitempty"`
	PaymentMethod     domain.PaymentMethod `json:"paymentMethod" validate:"required,oneof=razorpay cod"`
	ShippingCost      decimal.Decimal      `json:"shippingCost"`
	CourierID         *int                 `json:"courierId,omitempty"`
	CourierName       *string              `json:"courierName,omitempty" validate:"omitempty,max=100"`
	EstimatedDelivery *string              `json:"estimatedDelivery,omitempty" validate:"omitempty,max=100"`
	OrderNotes        *string              `json:"orderNotes,omitempty" validate:"omitempty,max=500"`
	UserID            *string              `json:"-"`
}

// OrderItemSummary is the per-line part of the creation response
type OrderItemSummary struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Total    decimal.Decimal `json:"total"`
}

// CreateOrderResult is returned to the checkout page
type CreateOrderResult struct {
	ID              uuid.UUID            `json:"id"`
	OrderNumber     string               `json:"orderNumber"`
	Total           decimal.Decimal      `json:"total"`
	RazorpayOrderID *string              `json:"razorpayOrderId"`
	PaymentMethod   domain.PaymentMethod `json:"paymentMethod"`
	Items           []OrderItemSummary   `json:"items"`
}

// OrderService defines the interface for order creation
type OrderService interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error)
}

type orderService struct {
	productRepo repository.ProductRepository
	orderRepo   repository.OrderRepository
	gateway     payment.Gateway
	currency    string
	kicker      Kicker
	logger      *zap.Logger
	now         func() time.Time
	newNumber   func(time.Time) (string, error)
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(
	productRepo repository.ProductRepository,
	orderRepo repository.OrderRepository,
	gateway payment.Gateway,
	currency string,
	kicker Kicker,
	logger *zap.Logger,
) OrderService {
	if currency == "" {
		currency = "INR"
	}
	return &orderService{
		productRepo: productRepo,
		orderRepo:   orderRepo,
		gateway:     gateway,
		currency:    currency,
		kicker:      kicker,
		logger:      logger,
		now:         time.Now,
		newNumber:   GenerateOrderNumber,
	}
}

// CreateOrder resolves every line against the catalog, computes the totals from the
// submitted unit prices, opens a gateway order for online payments and stores the order
// with its items and an order.created event in one transaction.
func (s *orderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	if input.ShippingCost.IsNegative() {
		return nil, invalidf("Shipping cost must not be negative")
	}
	if !domain.FitsMoneyScale(input.ShippingCost) {
		return nil, invalidf("Shipping cost must have at most %d decimal places", domain.MoneyScale)
	}

	now := s.now().UTC()
	order := &domain.Order{
		ID:                        uuid.New(),
		Status:                    domain.OrderStatusPending,
		PaymentStatus:             domain.PaymentStatusPending,
		PaymentMethod:             input.PaymentMethod,
		Shipping:                  input.ShippingCost,
		Tax:                       decimal.Zero,
		Discount:                  decimal.Zero,
		Notes:                     input.OrderNotes,
		ShippingCourierID:         input.CourierID,
		ShippingCourierName:       input.CourierName,
		ShippingEstimatedDelivery: input.EstimatedDelivery,
		ShipmentState:             domain.ShipmentStateNone,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}

	if input.UserID != nil && *input.UserID != "" {
		order.UserID = input.UserID
	} else {
		order.GuestEmail = &input.CustomerInfo.Email
		order.GuestName = &input.CustomerInfo.FullName
	}

	var err error
	if order.ShippingAddress, err = json.Marshal(input.ShippingAddress); err != nil {
		return nil, fmt.Errorf("failed to encode shipping address: %w", err)
	}
	if input.BillingAddress != nil {
		if order.BillingAddress, err = json.Marshal(input.BillingAddress); err != nil {
			return nil, fmt.Errorf("failed to encode billing address: %w", err)
		}
	}

	subtotal := decimal.Zero
	for _, line := range input.Items {
		item, err := s.buildItem(ctx, order.ID, line, now)
		if err != nil {
			return nil, err
		}
		subtotal = subtotal.Add(item.Total)
		order.Items = append(order.Items, *item)
	}
	order.Subtotal = subtotal
	order.Recalculate()

	if err := s.persist(ctx, order, input.CustomerInfo.Email); err != nil {
		return nil, err
	}

	if s.kicker != nil {
		s.kicker.Kick()
	}

	s.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("total", order.Total.StringFixed(2)),
		zap.String("payment_method", string(order.PaymentMethod)),
	)

	result := &CreateOrderResult{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		Total:           order.Total,
		RazorpayOrderID: order.RazorpayOrderID,
		PaymentMethod:   order.PaymentMethod,
		Items:           make([]OrderItemSummary, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		result.Items = append(result.Items, OrderItemSummary{
			ID:       item.ID,
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
			Total:    item.Total,
		})
	}
	return result, nil
}

// persist assigns an order number, opens the gateway order and writes the order. A taken
// order number is regenerated.
func (s *orderService) persist(ctx context.Context, order *domain.Order, customerEmail string) error {
	for attempt := 1; attempt <= orderNumberAttempts; attempt++ {
		number, err := s.newNumber(order.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to generate order number: %w", err)
		}
		order.OrderNumber = number

		if order.PaymentMethod == domain.PaymentMethodRazorpay {
			gwOrder, err := s.gateway.CreateOrder(ctx, payment.ToMinorUnits(order.Total), s.currency, number, map[string]string{
				"orderId":       number,
				"customerEmail": customerEmail,
			})
			if err != nil {
				s.logger.Error("Failed to create payment gateway order", zap.String("order_number", number), zap.Error(err))
				return &ProviderError{Op: "create payment order", Err: err}
			}
			order.RazorpayOrderID = &gwOrder.ID
		}

		event, err := domain.NewOutboxEvent(domain.EventOrderCreated, order)
		if err != nil {
			return fmt.Errorf("failed to build order event: %w", err)
		}

		err = s.orderRepo.Create(ctx, order, []*domain.OutboxEvent{event})
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrOrderNumberTaken) {
			return err
		}
		s.logger.Warn("Order number collision, regenerating", zap.String("order_number", number), zap.Int("attempt", attempt))
	}
	return fmt.Errorf("failed to allocate a unique order number after %d attempts", orderNumberAttempts)
}

func (s *orderService) buildItem(ctx context.Context, orderID uuid.UUID, line domain.OrderLine, now time.Time) (*domain.OrderItem, error) {
	if !line.Price.IsPositive() {
		return nil, invalidf("Item price must be greater than 0")
	}
	if !domain.FitsMoneyScale(line.Price) {
		return nil, invalidf("Item price must have at most %d decimal places", domain.MoneyScale)
	}

	product, err := s.productRepo.FindByID(ctx, line.ProductID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, invalidf("Product not found: %s", line.ProductID)
		}
		return nil, err
	}

	var variant *domain.ProductVariant
	if line.VariantID != nil {
		variant = product.FindVariant(*line.VariantID)
		if variant == nil || !variant.Active {
			return nil, invalidf("Variant not found: %s", *line.VariantID)
		}
	}

	var bundle *domain.ProductBundle
	if line.BundleID != nil {
		if variant == nil {
			return nil, invalidf("Bundle requires a variant to be specified")
		}
		bundle = variant.FindBundle(*line.BundleID)
		if bundle == nil || !bundle.Active {
			return nil, invalidf("Bundle not found: %s", *line.BundleID)
		}
	}

	expected := product.Price
	name := product.Name
	if variant != nil {
		expected = variant.Price
		name += " - " + variant.Name
	}
	if bundle != nil {
		expected = bundle.SellingPrice
		name += " (" + bundle.Label + ")"
	}
	if !expected.Equal(line.Price) {
		s.logger.Warn("Submitted price differs from catalog price",
			zap.String("product_id", product.ID.String()),
			zap.String("submitted", line.Price.StringFixed(2)),
			zap.String("catalog", expected.StringFixed(2)),
		)
	}

	snapshot := domain.ItemSnapshot{
		ID:          product.ID,
		Name:        product.Name,
		Slug:        product.Slug,
		Price:       line.Price,
		VariantID:   line.VariantID,
		BundleID:    line.BundleID,
		Category:    product.Category,
		MainImage:   product.MainImage,
		Excerpt:     product.Excerpt,
		Description: product.Description,
	}
	if variant != nil {
		snapshot.Variant = &domain.VariantSnapshot{ID: variant.ID, Name: variant.Name, Price: variant.Price}
	}
	if bundle != nil {
		snapshot.Bundle = &domain.BundleSnapshot{
			ID:            bundle.ID,
			Label:         bundle.Label,
			Quantity:      bundle.Quantity,
			SellingPrice:  bundle.SellingPrice,
			OriginalPrice: bundle.OriginalPrice,
			SavingsAmount: bundle.SavingsAmount,
		}
	}

	return &domain.OrderItem{
		ID:        uuid.New(),
		OrderID:   orderID,
		ProductID: product.ID,
		VariantID: line.VariantID,
		BundleID:  line.BundleID,
		Name:      name,
		Price:     line.Price,
		Quantity:  line.Quantity,
		Total:     line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))),
		Snapshot:  snapshot,
		CreatedAt: now,
	}, nil
}

// GenerateOrderNumber returns ORD-YYYYMMDD-XXXXXX with a random alphanumeric suffix
func GenerateOrderNumber(now time.Time) (string, error) {
	suffix := make([]byte, orderNumberSuffix)
	base := big.NewInt(int64(len(orderNumberAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", err
		}
		suffix[i] = orderNumberAlphabet[n.Int64()]
	}
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix), nil
}
