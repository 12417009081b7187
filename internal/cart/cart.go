// Package cart holds the shopper's selection for one browser session until checkout.
// Nothing here is persisted; a cart becomes an order through CheckoutLines, whose output
// is the items payload of POST /api/orders/create. The API and storectl binaries do not
// import it; it is meant for storefront clients written in Go.
package cart

import (
	"sync"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Key identifies a cart line by product, variant and bundle
type Key struct {
	ProductID uuid.UUID
	VariantID uuid.UUID
	BundleID  uuid.UUID
}

// NewKey builds a key. A nil variant or bundle is stored as uuid.Nil.
func NewKey(productID uuid.UUID, variantID, bundleID *uuid.UUID) Key {
	k := Key{ProductID: productID}
	if variantID != nil {
		k.VariantID = *variantID
	}
	if bundleID != nil {
		k.BundleID = *bundleID
	}
	return k
}

// Product is what the storefront knows about a product when it is added
type Product struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	Price     decimal.Decimal
	Excerpt   string
	MainImage *domain.Image
	Category  *domain.Category
	VariantID *uuid.UUID
	BundleID  *uuid.UUID
}

// Key returns the cart key of p
func (p Product) Key() Key {
	return NewKey(p.ID, p.VariantID, p.BundleID)
}

// Item is one cart line
type Item struct {
	Product  Product
	Quantity int
	AddedAt  time.Time
}

// Subtotal is the unit price times the quantity
func (i Item) Subtotal() decimal.Decimal {
	return i.Product.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is safe for concurrent use. Items keep insertion order.
type Cart struct {
	mu    sync.RWMutex
	items []Item
	now   func() time.Time
}

// New returns an empty cart
func New() *Cart {
	return &Cart{now: time.Now}
}

// Add puts quantity units of p in the cart, merging with an existing line of the same key.
// Non-positive quantities count as one.
func (c *Cart) Add(p Product, quantity int) {
	if quantity < 1 {
		quantity = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.indexOf(p.Key()); i >= 0 {
		c.items[i].Quantity += quantity
		return
	}
	c.items = append(c.items, Item{Product: p, Quantity: quantity, AddedAt: c.now()})
}

// Remove drops the line with key k
func (c *Cart) Remove(k Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.indexOf(k); i >= 0 {
		c.items = append(c.items[:i], c.items[i+1:]...)
	}
}

// UpdateQuantity sets the quantity of a line. Zero or less removes it.
func (c *Cart) UpdateQuantity(k Key, quantity int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(k)
	if i < 0 {
		return
	}
	if quantity <= 0 {
		c.items = append(c.items[:i], c.items[i+1:]...)
		return
	}
	c.items[i].Quantity = quantity
}

// Clear empties the cart
func (c *Cart) Clear() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}

// Get returns the line with key k
func (c *Cart) Get(k Key) (Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if i := c.indexOf(k); i >= 0 {
		return c.items[i], true
	}
	return Item{}, false
}

// Contains reports whether a line with key k exists
func (c *Cart) Contains(k Key) bool {
	_, ok := c.Get(k)
	return ok
}

// Items returns a copy of the cart lines
func (c *Cart) Items() []Item {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// ItemCount is the total number of units across lines
func (c *Cart) ItemCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, it := range c.items {
		n += it.Quantity
	}
	return n
}

// TotalPrice is the sum of line subtotals
func (c *Cart) TotalPrice() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := decimal.Zero
	for _, it := range c.items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// CheckoutLines converts the cart into order creation lines
func (c *Cart) CheckoutLines() []domain.OrderLine {
	c.mu.RLock()
	defer c.mu.RUnlock()

	lines := make([]domain.OrderLine, 0, len(c.items))
	for _, it := range c.items {
		lines = append(lines, domain.OrderLine{
			ProductID: it.Product.ID,
			VariantID: it.Product.VariantID,
			BundleID:  it.Product.BundleID,
			Quantity:  it.Quantity,
			Price:     it.Product.Price,
		})
	}
	return lines
}

func (c *Cart) indexOf(k Key) int {
	for i, it := range c.items {
		if it.Product.Key() == k {
			return i
		}
	}
	return -1
}
