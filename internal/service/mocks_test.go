package service

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"

	"storefront/internal/domain"
	"storefront/internal/payment"
	"storefront/internal/repository"
	"storefront/internal/shiprocket"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var testLogger = zap.NewNop()

// Mock repositories for testing
type mockCategoryRepository struct {
	mu         sync.Mutex
	categories map[uuid.UUID]*domain.Category
}

func newMockCategoryRepository() *mockCategoryRepository {
	return &mockCategoryRepository{categories: make(map[uuid.UUID]*domain.Category)}
}

func (m *mockCategoryRepository) Create(ctx context.Context, category *domain.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if c.Name == category.Name {
			return repository.ErrCategoryAlreadyExists
		}
	}
	m.categories[category.ID] = category
	return nil
}

func (m *mockCategoryRepository) List(ctx context.Context) ([]*domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	return out, nil
}

func (m *mockCategoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok {
		return nil, repository.ErrCategoryNotFound
	}
	return c, nil
}

func (m *mockCategoryRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if c.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

type mockProductRepository struct {
	mu       sync.Mutex
	products map[uuid.UUID]*domain.Product
	filtered repository.ProductFilter
	total    int
}

func newMockProductRepository() *mockProductRepository {
	return &mockProductRepository{products: make(map[uuid.UUID]*domain.Product)}
}

func (m *mockProductRepository) Create(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[product.ID] = product
	return nil
}

func (m *mockProductRepository) Update(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[product.ID]; !ok {
		return repository.ErrProductNotFound
	}
	m.products[product.ID] = product
	return nil
}

func (m *mockProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return repository.ErrProductNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *mockProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return p, nil
}

func (m *mockProductRepository) FindBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.Slug == slug {
			return p, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (m *mockProductRepository) SlugExists(ctx context.Context, slug string, excludeID *uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.Slug == slug && (excludeID == nil || p.ID != *excludeID) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockProductRepository) SKUExists(ctx context.Context, sku string, excludeID *uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.SKU != nil && *p.SKU == sku && (excludeID == nil || p.ID != *excludeID) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockProductRepository) Filter(ctx context.Context, filter repository.ProductFilter) ([]*domain.Product, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filtered = filter
	out := make([]*domain.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	total := m.total
	if total == 0 {
		total = len(out)
	}
	return out, total, nil
}

type mockOrderRepository struct {
	mu          sync.Mutex
	orders      map[uuid.UUID]*domain.Order
	events      []*domain.OutboxEvent
	takenNumber map[string]bool
	confirmErr  error
	completeErr error
	releases    int
}

func newMockOrderRepository() *mockOrderRepository {
	return &mockOrderRepository{
		orders:      make(map[uuid.UUID]*domain.Order),
		takenNumber: make(map[string]bool),
	}
}

func (m *mockOrderRepository) Create(ctx context.Context, order *domain.Order, events []*domain.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.takenNumber[order.OrderNumber] {
		return repository.ErrOrderNumberTaken
	}
	m.takenNumber[order.OrderNumber] = true
	stored := *order
	m.orders[order.ID] = &stored
	m.events = append(m.events, events...)
	return nil
}

func (m *mockOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	copied := *o
	return &copied, nil
}

func (m *mockOrderRepository) FindByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.OrderNumber == orderNumber {
			copied := *o
			return &copied, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (m *mockOrderRepository) ConfirmPayment(ctx context.Context, order *domain.Order, events []*domain.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.confirmErr != nil {
		return m.confirmErr
	}
	stored, ok := m.orders[order.ID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if stored.PaymentStatus == domain.PaymentStatusCompleted {
		return repository.ErrPaymentAlreadyCompleted
	}
	stored.PaymentStatus = order.PaymentStatus
	stored.Status = order.Status
	stored.RazorpayOrderID = order.RazorpayOrderID
	stored.RazorpayPaymentID = order.RazorpayPaymentID
	stored.RazorpaySignature = order.RazorpaySignature
	m.events = append(m.events, events...)
	return nil
}

func (m *mockOrderRepository) ClaimShipment(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.orders[id]
	if !ok || stored.TrackingNumber != nil || stored.ShipmentState != domain.ShipmentStateNone {
		return false, nil
	}
	stored.ShipmentState = domain.ShipmentStateCreating
	return true, nil
}

func (m *mockOrderRepository) ReleaseShipmentClaim(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stored, ok := m.orders[id]; ok && stored.ShipmentState == domain.ShipmentStateCreating {
		stored.ShipmentState = domain.ShipmentStateNone
	}
	m.releases++
	return nil
}

func (m *mockOrderRepository) CompleteShipment(ctx context.Context, id uuid.UUID, record repository.ShipmentRecord, events []*domain.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeErr != nil {
		return m.completeErr
	}
	stored, ok := m.orders[id]
	if !ok || stored.ShipmentState != domain.ShipmentStateCreating {
		return repository.ErrShipmentNotClaimed
	}
	tracking := record.TrackingNumber
	shipmentID := record.ShipmentID
	stored.TrackingNumber = &tracking
	stored.ExternalShipmentID = &shipmentID
	stored.ExternalOrderID = record.ExternalOrderID
	stored.ChannelOrderID = record.ChannelOrderID
	stored.ShipmentState = domain.ShipmentStateCreated
	stored.Status = domain.OrderStatusProcessing
	m.events = append(m.events, events...)
	return nil
}

func (m *mockOrderRepository) put(order *domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
	m.takenNumber[order.OrderNumber] = true
}

func (m *mockOrderRepository) eventTypes() []domain.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]domain.EventType, 0, len(m.events))
	for _, e := range m.events {
		types = append(types, e.Type)
	}
	return types
}

type mockGateway struct {
	mu       sync.Mutex
	calls    []int64
	receipts []string
	err      error
}

func (m *mockGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (*payment.GatewayOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.calls = append(m.calls, amountMinor)
	m.receipts = append(m.receipts, receipt)
	return &payment.GatewayOrder{
		ID:       "order_" + receipt,
		Amount:   amountMinor,
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}, nil
}

type mockShiprocket struct {
	mu          sync.Mutex
	createCalls int32
	created     *shiprocket.CreatedOrder
	createErr   error
	payloads    []*shiprocket.OrderPayload
	track       json.RawMessage
	trackErr    error
	queries     []shiprocket.TrackQuery
	rates       *shiprocket.Serviceability
	ratesErr    error
	ratesParams shiprocket.ServiceabilityParams
}

func (m *mockShiprocket) CreateOrder(ctx context.Context, payload *shiprocket.OrderPayload) (*shiprocket.CreatedOrder, error) {
	atomic.AddInt32(&m.createCalls, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, payload)
	if m.createErr != nil {
		return nil, m.createErr
	}
	created := *m.created
	return &created, nil
}

func (m *mockShiprocket) Track(ctx context.Context, query shiprocket.TrackQuery) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)
	return m.track, m.trackErr
}

func (m *mockShiprocket) CheckServiceability(ctx context.Context, params shiprocket.ServiceabilityParams) (*shiprocket.Serviceability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ratesParams = params
	if m.ratesErr != nil {
		return nil, m.ratesErr
	}
	return m.rates, nil
}

func (m *mockShiprocket) ListOrders(ctx context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"data":[]}`), nil
}

type mockImageStore struct {
	uploaded []string
	deleted  []string
	err      error
}

func (m *mockImageStore) Upload(ctx context.Context, body io.Reader, filename, contentType string) (*domain.Image, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.uploaded = append(m.uploaded, filename)
	return &domain.Image{URL: "https://cdn.example.com/products/" + filename, PublicID: "products/" + filename}, nil
}

func (m *mockImageStore) Delete(ctx context.Context, publicID string) error {
	m.deleted = append(m.deleted, publicID)
	return m.err
}

type countingKicker struct {
	kicks atomic.Int32
}

func (k *countingKicker) Kick() {
	k.kicks.Add(1)
}
