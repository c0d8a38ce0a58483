package service

import (
	"context"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
)

// Both *store.Store and *store.MemoryStore implement Repository.
var (
	_ Repository = (*store.Store)(nil)
	_ Repository = (*store.MemoryStore)(nil)
)

// CatalogRepository is the product side of the store
type CatalogRepository interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProducts(ctx context.Context) ([]models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id int64) error
}

// CartRepository holds the per-user staging area
type CartRepository interface {
	GetCartItem(ctx context.Context, userID, productID int64) (*models.CartItem, error)
	GetCartLine(ctx context.Context, userID, itemID int64) (*models.CartLine, error)
	CreateCartItem(ctx context.Context, item *models.CartItem) error
	UpdateCartItemQuantity(ctx context.Context, itemID int64, quantity int) error
	DeleteCartItem(ctx context.Context, userID, itemID int64) error
	ListCartLines(ctx context.Context, userID int64) ([]models.CartLine, error)
	ClearCart(ctx context.Context, userID int64) error
}

// OrderRepository holds committed orders
type OrderRepository interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error)
	ListOrders(ctx context.Context, statuses []models.OrderStatus) ([]models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	SetConfirmCode(ctx context.Context, orderID int64, code string) error
	CompareAndSetOrderStatus(ctx context.Context, orderID int64, from, to models.OrderStatus) (bool, error)
}

// EventLog deduplicates consumed events
type EventLog interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// TxRunner opens a transaction scope
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx store.Tx) error) error
}

// Repository is everything the services need from persistence
type Repository interface {
	CatalogRepository
	CartRepository
	OrderRepository
	EventLog
	TxRunner
	Ping(ctx context.Context) error
	Close() error
}

// EventPublisher publishes order domain events
type EventPublisher interface {
	PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
}
