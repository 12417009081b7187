package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder(t *testing.T, productID uuid.UUID, subtotal decimal.Decimal) *domain.Order {
	t.Helper()
	now := time.Now().UTC()
	address, err := json.Marshal(domain.Address{
		FullName:     "Asha Rao",
		Email:        "asha@example.com",
		Phone:        "9876543210",
		AddressLine1: "12 MG Road",
		City:         "Bengaluru",
		State:        "Karnataka",
		PostalCode:   "560001",
		Country:      "India",
	})
	require.NoError(t, err)

	gatewayOrder := "order_" + uuid.NewString()[:12]
	order := &domain.Order{
		ID:              uuid.New(),
		OrderNumber:     "ORD-" + now.Format("20060102") + "-" + uuid.NewString()[:6],
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusPending,
		PaymentMethod:   domain.PaymentMethodRazorpay,
		Subtotal:        subtotal,
		Shipping:        decimal.NewFromInt(60),
		RazorpayOrderID: &gatewayOrder,
		ShippingAddress: address,
		ShipmentState:   domain.ShipmentStateNone,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	order.Recalculate()

	order.Items = []domain.OrderItem{{
		ID:        uuid.New(),
		ProductID: productID,
		Name:      "Roasted Makhana - 100g",
		Price:     subtotal,
		Quantity:  1,
		Total:     subtotal,
		Snapshot:  domain.ItemSnapshot{ID: productID, Name: "Roasted Makhana", Price: subtotal},
		CreatedAt: now,
	}}
	return order
}

func createTestOrder(t *testing.T) *domain.Order {
	t.Helper()
	ctx := context.Background()
	category := createTestCategory(t)
	product := newTestProduct(category.ID, "Roasted Makhana", decimal.NewFromInt(450))
	require.NoError(t, NewProductRepository(testDB).Create(ctx, product))

	order := newTestOrder(t, product.ID, decimal.NewFromInt(450))
	created, err := domain.NewOutboxEvent(domain.EventOrderCreated, order)
	require.NoError(t, err)
	require.NoError(t, NewOrderRepository(testDB).Create(ctx, order, []*domain.OutboxEvent{created}))
	return order
}

// Feature: storefront, Property: order totals survive a round trip through storage
func TestProperty_OrderTotalsPersist(t *testing.T) {
	orderRepo := NewOrderRepository(testDB)
	category := createTestCategory(t)
	product := newTestProduct(category.ID, "Makhana", decimal.NewFromInt(100))
	require.NoError(t, NewProductRepository(testDB).Create(context.Background(), product))

	properties := gopter.NewProperties(nil)

	properties.Property("total equals subtotal + tax + shipping - discount after reload", prop.ForAll(
		func(cents int64) bool {
			ctx := context.Background()
			order := newTestOrder(t, product.ID, decimal.New(cents, -2))

			if err := orderRepo.Create(ctx, order, nil); err != nil {
				t.Logf("FAIL: Failed to create order: %v", err)
				return false
			}

			found, err := orderRepo.FindByNumber(ctx, order.OrderNumber)
			if err != nil {
				t.Logf("FAIL: Failed to find order: %v", err)
				return false
			}

			expected := found.Subtotal.Add(found.Tax).Add(found.Shipping).Sub(found.Discount)
			if !found.Total.Equal(expected) || !found.Total.Equal(order.Total) {
				t.Logf("FAIL: total %s, expected %s", found.Total, expected)
				return false
			}

			return len(found.Items) == 1 && found.Items[0].Snapshot.Name == "Roasted Makhana"
		},
		gen.Int64Range(100, 10000000),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestOrderRepository_CreateWritesItemsAndEventsAtomically(t *testing.T) {
	ctx := context.Background()
	order := createTestOrder(t)

	found, err := NewOrderRepository(testDB).FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, found.Total.Equal(decimal.NewFromInt(510)), "total was %s", found.Total)
	require.Len(t, found.Items, 1)

	addr, err := found.DecodeShippingAddress()
	require.NoError(t, err)
	assert.Equal(t, "560001", addr.PostalCode)

	events, err := NewOutboxRepository(testDB).ListByAggregate(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventOrderCreated, events[0].Type)

	// A duplicate order number rolls back items and events too
	dup := newTestOrder(t, order.Items[0].ProductID, decimal.NewFromInt(10))
	dup.OrderNumber = order.OrderNumber
	event, err := domain.NewOutboxEvent(domain.EventOrderCreated, dup)
	require.NoError(t, err)

	err = NewOrderRepository(testDB).Create(ctx, dup, []*domain.OutboxEvent{event})
	assert.ErrorIs(t, err, ErrOrderNumberTaken)

	events, err = NewOutboxRepository(testDB).ListByAggregate(ctx, dup.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestOrderRepository_ConfirmPaymentOnce(t *testing.T) {
	ctx := context.Background()
	orderRepo := NewOrderRepository(testDB)
	order := createTestOrder(t)

	paymentID := "pay_" + uuid.NewString()[:10]
	signature := "sig"
	order.PaymentStatus = domain.PaymentStatusCompleted
	order.Status = domain.OrderStatusConfirmed
	order.RazorpayPaymentID = &paymentID
	order.RazorpaySignature = &signature

	var events []*domain.OutboxEvent
	for _, typ := range []domain.EventType{domain.EventOrderConfirmed, domain.EventShipmentRequested, domain.EventOrderConfirmationEmail} {
		event, err := domain.NewOutboxEvent(typ, order)
		require.NoError(t, err)
		events = append(events, event)
	}

	require.NoError(t, orderRepo.ConfirmPayment(ctx, order, events))
	assert.ErrorIs(t, orderRepo.ConfirmPayment(ctx, order, nil), ErrPaymentAlreadyCompleted)

	found, err := orderRepo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, found.PaymentStatus)
	assert.Equal(t, domain.OrderStatusConfirmed, found.Status)
	assert.Equal(t, paymentID, *found.RazorpayPaymentID)

	stored, err := NewOutboxRepository(testDB).ListByAggregate(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 4)

	missing := *order
	missing.ID = uuid.New()
	assert.ErrorIs(t, orderRepo.ConfirmPayment(ctx, &missing, nil), ErrOrderNotFound)
}

func TestOrderRepository_ConcurrentShipmentClaimHasOneWinner(t *testing.T) {
	ctx := context.Background()
	orderRepo := NewOrderRepository(testDB)
	order := createTestOrder(t)

	const callers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := orderRepo.ClaimShipment(ctx, order.ID)
			if err != nil {
				t.Errorf("ClaimShipment failed: %v", err)
				return
			}
			if won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)

	shipmentID := int64(987654)
	externalOrderID := int64(123)
	record := ShipmentRecord{
		TrackingNumber:  domain.SyntheticTrackingNumber(shipmentID),
		ShipmentID:      shipmentID,
		ExternalOrderID: &externalOrderID,
	}
	created, err := domain.NewOutboxEvent(domain.EventShipmentCreated, order)
	require.NoError(t, err)
	require.NoError(t, orderRepo.CompleteShipment(ctx, order.ID, record, []*domain.OutboxEvent{created}))

	found, err := orderRepo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "SR-987654", *found.TrackingNumber)
	assert.Equal(t, shipmentID, *found.ExternalShipmentID)
	assert.Equal(t, domain.ShipmentStateCreated, found.ShipmentState)
	assert.Equal(t, domain.OrderStatusProcessing, found.Status)

	won, err := orderRepo.ClaimShipment(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, won, "an order with a tracking number must not be claimable")

	err = orderRepo.CompleteShipment(ctx, order.ID, record, nil)
	assert.True(t, errors.Is(err, ErrShipmentNotClaimed))
}

func TestOrderRepository_ReleaseShipmentClaim(t *testing.T) {
	ctx := context.Background()
	orderRepo := NewOrderRepository(testDB)
	order := createTestOrder(t)

	won, err := orderRepo.ClaimShipment(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, won)

	require.NoError(t, orderRepo.ReleaseShipmentClaim(ctx, order.ID))

	won, err = orderRepo.ClaimShipment(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, won, "a released claim can be taken again")

	_, err = orderRepo.FindByNumber(ctx, "ORD-00000000-NOPE00")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
