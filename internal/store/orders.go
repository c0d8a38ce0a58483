package store

import (
	"context"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
)

func createOrder(ctx context.Context, q sqlx.QueryerContext, order *models.Order) error {
	query := `
		INSERT INTO orders (user_id, total_amount, address, status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, confirm_code, created_at, updated_at`

	err := sqlx.GetContext(ctx, q, order, query,
		order.UserID, order.TotalAmount, order.Address, order.Status, order.IdempotencyKey)
	return classifyError(err)
}

func createOrderItem(ctx context.Context, q sqlx.QueryerContext, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := sqlx.GetContext(ctx, q, &item.ID, query,
		item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice)
	return classifyError(err)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "order %d", id)
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves the user's order carrying key.
// It returns nil, nil when the user has no order with the key.
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE user_id = $1 AND idempotency_key = $2", userID, key)
	if err != nil {
		if err = notFound(err, "order"); isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetOrdersByUserID retrieves orders for a user, newest first
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC", userID)
	return orders, err
}

// ListOrders retrieves all orders, newest first, optionally filtered by status
func (s *Store) ListOrders(ctx context.Context, statuses []models.OrderStatus) ([]models.Order, error) {
	orders := []models.Order{}
	if len(statuses) == 0 {
		err := s.db.SelectContext(ctx, &orders, "SELECT * FROM orders ORDER BY created_at DESC, id DESC")
		return orders, err
	}

	values := make([]string, len(statuses))
	for i, st := range statuses {
		values[i] = string(st)
	}

	query, args, err := sqlx.In("SELECT * FROM orders WHERE status IN (?) ORDER BY created_at DESC, id DESC", values)
	if err != nil {
		return nil, err
	}
	err = s.db.SelectContext(ctx, &orders, s.db.Rebind(query), args...)
	return orders, err
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// SetConfirmCode stores the shipment confirmation token on an order
func (s *Store) SetConfirmCode(ctx context.Context, orderID int64, code string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET confirm_code = $1, updated_at = NOW() WHERE id = $2", code, orderID)
	if err != nil {
		return classifyError(err)
	}
	return expectAffected(res, "order %d", orderID)
}

// CompareAndSetOrderStatus moves an order from one status to another.
// It returns false when the order's status was no longer `from`.
func (s *Store) CompareAndSetOrderStatus(ctx context.Context, orderID int64, from, to models.OrderStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		to, orderID, from)
	if err != nil {
		return false, classifyError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
