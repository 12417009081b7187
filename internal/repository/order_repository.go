package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"storefront/internal/database"
	"storefront/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrOrderNumberTaken        = errors.New("order number already exists")
	ErrPaymentAlreadyCompleted = errors.New("payment already completed")
	ErrShipmentNotClaimed      = errors.New("shipment claim not held")
)

// ShipmentRecord is what the logistics provider returned for a created shipment
type ShipmentRecord struct {
	TrackingNumber  string
	ShipmentID      int64
	ExternalOrderID *int64
	ChannelOrderID  *string
	CourierName     *string
}

// OrderRepository defines the interface for order data access
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order, events []*domain.OutboxEvent) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	ConfirmPayment(ctx context.Context, order *domain.Order, events []*domain.OutboxEvent) error
	ClaimShipment(ctx context.Context, id uuid.UUID) (bool, error)
	ReleaseShipmentClaim(ctx context.Context, id uuid.UUID) error
	CompleteShipment(ctx context.Context, id uuid.UUID, record ShipmentRecord, events []*domain.OutboxEvent) error
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

const orderSelect = `
	SELECT id, order_number, user_id, guest_email, guest_name, status, payment_status, payment_method,
	       subtotal, tax, shipping, discount, total, razorpay_order_id, razorpay_payment_id,
	       razorpay_signature, shipping_address, billing_address, notes, shipping_courier_id,
	       shipping_courier_name, shipping_estimated_delivery, tracking_number, shipment_state,
	       external_shipment_id, external_order_id, channel_order_id, shipped_at, delivered_at,
	       created_at, updated_at
	FROM orders
`

// Create inserts the order, its items and the given outbox events in one transaction
func (r *orderRepository) Create(ctx context.Context, order *domain.Order, events []*domain.OutboxEvent) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		query := `
			INSERT INTO orders (id, order_number, user_id, guest_email, guest_name, status, payment_status,
				payment_method, subtotal, tax, shipping, discount, total, razorpay_order_id,
				shipping_address, billing_address, notes, shipping_courier_id, shipping_courier_name,
				shipping_estimated_delivery, shipment_state, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		`
		_, err := tx.ExecContext(ctx, query,
			order.ID,
			order.OrderNumber,
			order.UserID,
			order.GuestEmail,
			order.GuestName,
			order.Status,
			order.PaymentStatus,
			order.PaymentMethod,
			order.Subtotal,
			order.Tax,
			order.Shipping,
			order.Discount,
			order.Total,
			order.RazorpayOrderID,
			[]byte(order.ShippingAddress),
			nullableJSON(order.BillingAddress),
			order.Notes,
			order.ShippingCourierID,
			order.ShippingCourierName,
			order.ShippingEstimatedDelivery,
			order.ShipmentState,
			order.CreatedAt,
			order.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err, "orders_order_number_key") {
				return ErrOrderNumberTaken
			}
			return fmt.Errorf("failed to create order: %w", err)
		}

		for i := range order.Items {
			item := &order.Items[i]
			item.OrderID = order.ID
			snapshot, err := json.Marshal(item.Snapshot)
			if err != nil {
				return fmt.Errorf("failed to encode item snapshot: %w", err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO order_items (id, order_id, product_id, variant_id, bundle_id, name, price,
					quantity, total, product_snapshot, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				item.ID, item.OrderID, item.ProductID, item.VariantID, item.BundleID, item.Name,
				item.Price, item.Quantity, item.Total, snapshot, item.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}
		}

		return insertOutboxEvents(ctx, tx, events)
	})
}

// FindByID retrieves an order with its items
func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.findOne(ctx, orderSelect+` WHERE id = $1`, id)
}

// FindByNumber retrieves an order by its human readable number
func (r *orderRepository) FindByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return r.findOne(ctx, orderSelect+` WHERE order_number = $1`, orderNumber)
}

func (r *orderRepository) findOne(ctx context.Context, query string, arg any) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}

	if order.Items, err = r.loadItems(ctx, order.ID); err != nil {
		return nil, err
	}
	return order, nil
}

// ConfirmPayment marks the order paid and writes events in one transaction. It returns
// ErrPaymentAlreadyCompleted when the payment was confirmed by an earlier call.
func (r *orderRepository) ConfirmPayment(ctx context.Context, order *domain.Order, events []*domain.OutboxEvent) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET payment_status = $2, status = $3, razorpay_order_id = $4,
			    razorpay_payment_id = $5, razorpay_signature = $6
			WHERE id = $1 AND payment_status <> 'COMPLETED'`,
			order.ID,
			order.PaymentStatus,
			order.Status,
			order.RazorpayOrderID,
			order.RazorpayPaymentID,
			order.RazorpaySignature,
		)
		if err != nil {
			return fmt.Errorf("failed to confirm payment: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check order: %w", err)
			}
			if !exists {
				return ErrOrderNotFound
			}
			return ErrPaymentAlreadyCompleted
		}

		return insertOutboxEvents(ctx, tx, events)
	})
}

// ClaimShipment moves the order into the CREATING state. It returns false when the order
// already has a tracking number or another caller holds the claim.
func (r *orderRepository) ClaimShipment(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET shipment_state = 'CREATING'
		WHERE id = $1 AND tracking_number IS NULL AND shipment_state = 'NONE'`, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim shipment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// ReleaseShipmentClaim returns a CREATING order to NONE after a failed attempt
func (r *orderRepository) ReleaseShipmentClaim(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE orders SET shipment_state = 'NONE'
		WHERE id = $1 AND shipment_state = 'CREATING'`, id)
	if err != nil {
		return fmt.Errorf("failed to release shipment claim: %w", err)
	}
	return nil
}

// CompleteShipment stores the provider identifiers on a claimed order and writes events
// in one transaction.
func (r *orderRepository) CompleteShipment(ctx context.Context, id uuid.UUID, record ShipmentRecord, events []*domain.OutboxEvent) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET tracking_number = $2, external_shipment_id = $3, external_order_id = $4,
			    channel_order_id = $5, shipping_courier_name = COALESCE($6, shipping_courier_name),
			    shipment_state = 'CREATED', status = 'PROCESSING'
			WHERE id = $1 AND shipment_state = 'CREATING'`,
			id,
			record.TrackingNumber,
			record.ShipmentID,
			record.ExternalOrderID,
			record.ChannelOrderID,
			record.CourierName,
		)
		if err != nil {
			return fmt.Errorf("failed to complete shipment: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return ErrShipmentNotClaimed
		}

		return insertOutboxEvents(ctx, tx, events)
	})
}

func (r *orderRepository) loadItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT oi.id, oi.order_id, oi.product_id, oi.variant_id, oi.bundle_id, oi.name, oi.price,
		       oi.quantity, oi.total, oi.product_snapshot, oi.created_at, p.sku
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1
		ORDER BY oi.created_at ASC, oi.id ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	items := []domain.OrderItem{}
	for rows.Next() {
		var item domain.OrderItem
		var snapshot []byte
		err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.VariantID, &item.BundleID, &item.Name,
			&item.Price, &item.Quantity, &item.Total, &snapshot, &item.CreatedAt, &item.ProductSKU,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		if err := json.Unmarshal(snapshot, &item.Snapshot); err != nil {
			return nil, fmt.Errorf("failed to decode item snapshot: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order items: %w", err)
	}

	return items, nil
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	order := &domain.Order{}
	var shippingAddress, billingAddress []byte

	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.UserID,
		&order.GuestEmail,
		&order.GuestName,
		&order.Status,
		&order.PaymentStatus,
		&order.PaymentMethod,
		&order.Subtotal,
		&order.Tax,
		&order.Shipping,
		&order.Discount,
		&order.Total,
		&order.RazorpayOrderID,
		&order.RazorpayPaymentID,
		&order.RazorpaySignature,
		&shippingAddress,
		&billingAddress,
		&order.Notes,
		&order.ShippingCourierID,
		&order.ShippingCourierName,
		&order.ShippingEstimatedDelivery,
		&order.TrackingNumber,
		&order.ShipmentState,
		&order.ExternalShipmentID,
		&order.ExternalOrderID,
		&order.ChannelOrderID,
		&order.ShippedAt,
		&order.DeliveredAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.ShippingAddress = shippingAddress
	if len(billingAddress) > 0 {
		order.BillingAddress = billingAddress
	}
	return order, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
