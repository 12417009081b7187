package shiprocket

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"storefront/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Package defaults used until products carry their own dimensions
const (
	DefaultLength    = 10.0
	DefaultBreadth   = 10.0
	DefaultHeight    = 5.0
	WeightPerUnitKg  = 0.5
	MinimumWeightKg  = 0.1
	DefaultCountry   = "India"
	DefaultISDCode   = "+91"
	PaymentCOD       = "COD"
	PaymentPrepaid   = "Prepaid"
	orderDateLayout  = "2006-01-02"
	phoneDigitsKept  = 10
	skuFallbackLabel = "PROD-"
)

var validate = validator.New()

// BuildOrderPayload maps a stored order and its decoded shipping address onto the adhoc
// order format.
func BuildOrderPayload(order *domain.Order, address *domain.Address, pickupLocation string) *OrderPayload {
	firstName, lastName := splitName(address.FullName)

	units := 0
	items := make([]OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		units += item.Quantity
		items = append(items, OrderItem{
			Name:         item.Name,
			SKU:          itemSKU(item),
			Units:        item.Quantity,
			SellingPrice: item.Price.InexactFloat64(),
		})
	}

	paymentMethod := PaymentPrepaid
	if order.PaymentMethod == domain.PaymentMethodCOD {
		paymentMethod = PaymentCOD
	}

	country := address.Country
	if country == "" {
		country = DefaultCountry
	}

	return &OrderPayload{
		OrderID:             order.OrderNumber,
		OrderDate:           order.CreatedAt.UTC().Format(orderDateLayout),
		PickupLocation:      pickupLocation,
		BillingCustomerName: firstName,
		BillingLastName:     lastName,
		BillingAddress:      address.AddressLine1,
		BillingAddress2:     address.AddressLine2,
		BillingISDCode:      DefaultISDCode,
		BillingCity:         address.City,
		BillingPincode:      address.PostalCode,
		BillingState:        address.State,
		BillingCountry:      country,
		BillingEmail:        address.Email,
		BillingPhone:        NormalizePhone(address.Phone),
		ShippingIsBilling:   true,
		OrderItems:          items,
		PaymentMethod:       paymentMethod,
		ShippingCharges:     order.Shipping.InexactFloat64(),
		TotalDiscount:       order.Discount.InexactFloat64(),
		SubTotal:            order.Subtotal.InexactFloat64(),
		Length:              DefaultLength,
		Breadth:             DefaultBreadth,
		Height:              DefaultHeight,
		Weight:              PackageWeight(units),
	}
}

// PackageWeight is the shipped weight in kg for the given number of units
func PackageWeight(units int) float64 {
	return math.Max(float64(units)*WeightPerUnitKg, MinimumWeightKg)
}

// NormalizePhone keeps the last ten digits of phone
func NormalizePhone(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	if len(digits) > phoneDigitsKept {
		digits = digits[len(digits)-phoneDigitsKept:]
	}
	return digits
}

func splitName(fullName string) (string, string) {
	parts := strings.FieldsFunc(fullName, unicode.IsSpace)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func itemSKU(item domain.OrderItem) string {
	if item.ProductSKU != nil && *item.ProductSKU != "" {
		return *item.ProductSKU
	}
	if item.ProductID != uuid.Nil {
		return skuFallbackLabel + item.ProductID.String()
	}
	return skuFallbackLabel + item.ID.String()
}

// ValidateOrderPayload reports every problem with payload at once
func ValidateOrderPayload(payload *OrderPayload) error {
	var errs error
	add := func(msg string) { errs = multierr.Append(errs, errors.New(msg)) }

	required := []struct {
		value, msg string
	}{
		{payload.OrderID, "Order ID is required"},
		{payload.BillingCustomerName, "Billing customer name is required"},
		{payload.BillingAddress, "Billing address is required"},
		{payload.BillingCity, "Billing city is required"},
		{payload.BillingPincode, "Billing pincode is required"},
		{payload.BillingState, "Billing state is required"},
		{payload.BillingEmail, "Billing email is required"},
		{payload.BillingPhone, "Billing phone is required"},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			add(r.msg)
		}
	}

	if len(payload.OrderItems) == 0 {
		add("At least one order item is required")
	}
	for i, item := range payload.OrderItems {
		if item.Name == "" {
			add(fmt.Sprintf("Item %d: Name is required", i+1))
		}
		if item.SKU == "" {
			add(fmt.Sprintf("Item %d: SKU is required", i+1))
		}
		if item.Units < 1 {
			add(fmt.Sprintf("Item %d: Units must be at least 1", i+1))
		}
		if item.SellingPrice <= 0 {
			add(fmt.Sprintf("Item %d: Selling price must be greater than 0", i+1))
		}
	}

	if payload.BillingPhone != "" && validate.Var(payload.BillingPhone, "len=10,number") != nil {
		add("Billing phone must be exactly 10 digits")
	}
	if payload.BillingEmail != "" && validate.Var(payload.BillingEmail, "email") != nil {
		add("Invalid billing email format")
	}
	if payload.BillingPincode != "" && validate.Var(payload.BillingPincode, "len=6,number") != nil {
		add("Billing pincode must be exactly 6 digits")
	}
	if validate.Var(payload.OrderDate, "required,datetime=2006-01-02") != nil {
		add("Order date must be in YYYY-MM-DD format")
	}

	if errs == nil {
		return nil
	}

	messages := make([]string, 0)
	for _, err := range multierr.Errors(errs) {
		messages = append(messages, err.Error())
	}
	return &ValidationError{Problems: messages}
}

// ValidationError lists every rejected field of a payload
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "Validation failed: " + strings.Join(e.Problems, ", ")
}
