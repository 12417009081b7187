package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfilment status of an order
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// PaymentStatus is the payment status of an order
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// PaymentMethod identifies how the customer pays
type PaymentMethod string

const (
	PaymentMethodRazorpay PaymentMethod = "razorpay"
	PaymentMethodCOD      PaymentMethod = "cod"
)

// ShipmentState tracks shipment creation with the logistics provider
type ShipmentState string

const (
	ShipmentStateNone     ShipmentState = "NONE"
	ShipmentStateCreating ShipmentState = "CREATING"
	ShipmentStateCreated  ShipmentState = "CREATED"
)

// SyntheticTrackingPrefix marks tracking numbers assigned before the provider issued an AWB
const SyntheticTrackingPrefix = "SR-"

// Address is a postal address stored on an order as a JSON document
type Address struct {
	FullName     string `json:"fullName" validate:"required,max=100"`
	Email        string `json:"email" validate:"required,email"`
	Phone        string `json:"phone" validate:"required,min=10,max=15"`
	AddressLine1 string `json:"addressLine1" validate:"required,max=200"`
	AddressLine2 string `json:"addressLine2,omitempty" validate:"max=200"`
	City         string `json:"city" validate:"required,max=100"`
	State        string `json:"state" validate:"required,max=100"`
	PostalCode   string `json:"postalCode" validate:"required,len=6,number"`
	Country      string `json:"country,omitempty" validate:"max=100"`
}

// OrderLine is one requested line of a checkout. Price is the unit price the customer
// was shown, which is the bundle selling price when a bundle is selected.
type OrderLine struct {
	ProductID uuid.UUID       `json:"productId" validate:"required"`
	VariantID *uuid.UUID      `json:"variantId,omitempty"`
	BundleID  *uuid.UUID      `json:"bundleId,omitempty"`
	Quantity  int             `json:"quantity" validate:"required,min=1"`
	Price     decimal.Decimal `json:"price"`
}

// Order is a customer order with its monetary summary and shipping state
type Order struct {
	ID                        uuid.UUID       `json:"id"`
	OrderNumber               string          `json:"orderNumber"`
	UserID                    *string         `json:"userId,omitempty"`
	GuestEmail                *string         `json:"guestEmail,omitempty"`
	GuestName                 *string         `json:"guestName,omitempty"`
	Status                    OrderStatus     `json:"status"`
	PaymentStatus             PaymentStatus   `json:"paymentStatus"`
	PaymentMethod             PaymentMethod   `json:"paymentMethod"`
	Subtotal                  decimal.Decimal `json:"subtotal"`
	Tax                       decimal.Decimal `json:"tax"`
	Shipping                  decimal.Decimal `json:"shipping"`
	Discount                  decimal.Decimal `json:"discount"`
	Total                     decimal.Decimal `json:"total"`
	RazorpayOrderID           *string         `json:"razorpayOrderId,omitempty"`
	RazorpayPaymentID         *string         `json:"razorpayPaymentId,omitempty"`
	RazorpaySignature         *string         `json:"-"`
	ShippingAddress           json.RawMessage `json:"shippingAddress"`
	BillingAddress            json.RawMessage `json:"billingAddress,omitempty"`
	Notes                     *string         `json:"notes,omitempty"`
	ShippingCourierID         *int            `json:"shippingCourierId,omitempty"`
	ShippingCourierName       *string         `json:"shippingCourierName,omitempty"`
	ShippingEstimatedDelivery *string         `json:"shippingEstimatedDelivery,omitempty"`
	TrackingNumber            *string         `json:"trackingNumber,omitempty"`
	ShipmentState             ShipmentState   `json:"shipmentState"`
	ExternalShipmentID        *int64          `json:"externalShipmentId,omitempty"`
	ExternalOrderID           *int64          `json:"externalOrderId,omitempty"`
	ChannelOrderID            *string         `json:"channelOrderId,omitempty"`
	Items                     []OrderItem     `json:"items,omitempty"`
	ShippedAt                 *time.Time      `json:"shippedAt,omitempty"`
	DeliveredAt               *time.Time      `json:"deliveredAt,omitempty"`
	CreatedAt                 time.Time       `json:"createdAt"`
	UpdatedAt                 time.Time       `json:"updatedAt"`
}

// OrderItem is a denormalized order line with a point-in-time snapshot
type OrderItem struct {
	ID        uuid.UUID       `json:"id"`
	OrderID   uuid.UUID       `json:"orderId"`
	ProductID uuid.UUID       `json:"productId"`
	VariantID *uuid.UUID      `json:"variantId,omitempty"`
	BundleID  *uuid.UUID      `json:"bundleId,omitempty"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Total     decimal.Decimal `json:"total"`
	Snapshot  ItemSnapshot    `json:"productSnapshot"`
	// ProductSKU is loaded from the live product row when available
	ProductSKU *string   `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ItemSnapshot freezes the product, variant and bundle as they were at purchase time
type ItemSnapshot struct {
	ID          uuid.UUID        `json:"id"`
	Name        string           `json:"name"`
	Slug        string           `json:"slug"`
	Price       decimal.Decimal  `json:"price"`
	VariantID   *uuid.UUID       `json:"variantId"`
	BundleID    *uuid.UUID       `json:"bundleId"`
	Variant     *VariantSnapshot `json:"variant"`
	Bundle      *BundleSnapshot  `json:"bundle"`
	Category    *Category        `json:"category,omitempty"`
	MainImage   *Image           `json:"mainImage"`
	Excerpt     string           `json:"excerpt,omitempty"`
	Description string           `json:"description,omitempty"`
}

type VariantSnapshot struct {
	ID    uuid.UUID       `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type BundleSnapshot struct {
	ID            uuid.UUID       `json:"id"`
	Label         string          `json:"label"`
	Quantity      int             `json:"quantity"`
	SellingPrice  decimal.Decimal `json:"sellingPrice"`
	OriginalPrice decimal.Decimal `json:"originalPrice"`
	SavingsAmount decimal.Decimal `json:"savingsAmount"`
}

// MoneyScale is the number of decimal places stored for monetary columns
const MoneyScale = 2

// FitsMoneyScale reports whether d is representable in a monetary column without rounding
func FitsMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Round(MoneyScale))
}

// Recalculate sets Total from the other monetary fields
func (o *Order) Recalculate() {
	o.Total = o.Subtotal.Add(o.Tax).Add(o.Shipping).Sub(o.Discount)
}

// DecodeShippingAddress parses the stored shipping address document
func (o *Order) DecodeShippingAddress() (*Address, error) {
	if len(o.ShippingAddress) == 0 {
		return nil, fmt.Errorf("shipping address is empty")
	}
	var addr Address
	if err := json.Unmarshal(o.ShippingAddress, &addr); err != nil {
		return nil, err
	}
	return &addr, nil
}

// CustomerEmail returns the address the order confirmation goes to
func (o *Order) CustomerEmail() string {
	if o.GuestEmail != nil && *o.GuestEmail != "" {
		return *o.GuestEmail
	}
	if addr, err := o.DecodeShippingAddress(); err == nil {
		return addr.Email
	}
	return ""
}

// CustomerName returns the name the order confirmation is addressed to
func (o *Order) CustomerName() string {
	if o.GuestName != nil && *o.GuestName != "" {
		return *o.GuestName
	}
	if addr, err := o.DecodeShippingAddress(); err == nil {
		return addr.FullName
	}
	return ""
}

// SyntheticTrackingNumber is the placeholder tracking number used until an AWB is assigned
func SyntheticTrackingNumber(shipmentID int64) string {
	return fmt.Sprintf("%s%d", SyntheticTrackingPrefix, shipmentID)
}
