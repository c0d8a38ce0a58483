package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog
type Product struct {
	ID          int64           `db:"id" json:"id"`
	SKU         string          `db:"sku" json:"sku"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Stock       int             `db:"stock" json:"stock"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// CartItem is one (user, product) row of a cart
type CartItem struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	AddedAt   time.Time `db:"added_at" json:"added_at"`
}

// CartLine is a cart item joined with the current product snapshot
type CartLine struct {
	CartItem
	ProductName  string          `db:"product_name" json:"product_name"`
	UnitPrice    decimal.Decimal `db:"unit_price" json:"unit_price"`
	ProductStock int             `db:"product_stock" json:"product_stock"`
}

// Subtotal returns the line price at the current catalog price
func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartTotal sums the subtotals of the given lines
func CartTotal(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Order represents a committed customer order.
// UserID becomes nil when the owning account is deleted.
type Order struct {
	ID             int64           `db:"id" json:"id"`
	UserID         *int64          `db:"user_id" json:"user_id"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	Address        string          `db:"address" json:"address"`
	Status         OrderStatus     `db:"status" json:"status"`
	ConfirmCode    string          `db:"confirm_code" json:"-"`
	IdempotencyKey *string         `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// OwnedBy reports whether the order belongs to userID
func (o *Order) OwnedBy(userID int64) bool {
	return o.UserID != nil && *o.UserID == userID
}

// OrderItem represents items in an order.
// UnitPrice and ProductName are frozen at commit time.
type OrderItem struct {
	ID          int64           `db:"id" json:"id"`
	OrderID     int64           `db:"order_id" json:"order_id"`
	ProductID   *int64          `db:"product_id" json:"product_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	Quantity    int             `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
}

// Subtotal returns UnitPrice * Quantity
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
