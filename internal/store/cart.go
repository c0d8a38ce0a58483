package store

import (
	"context"

	"checkout-service/internal/models"
)

const cartLineQuery = `
	SELECT c.id, c.user_id, c.product_id, c.quantity, c.added_at,
	       p.name AS product_name, p.price AS unit_price, p.stock AS product_stock
	FROM cart_items c
	JOIN products p ON p.id = c.product_id`

// GetCartItem retrieves the user's row for a product
func (s *Store) GetCartItem(ctx context.Context, userID, productID int64) (*models.CartItem, error) {
	var item models.CartItem
	err := s.db.GetContext(ctx, &item,
		"SELECT * FROM cart_items WHERE user_id = $1 AND product_id = $2", userID, productID)
	if err != nil {
		return nil, notFound(err, "cart item for product %d", productID)
	}
	return &item, nil
}

// GetCartLine retrieves one of the user's cart rows with its product snapshot
func (s *Store) GetCartLine(ctx context.Context, userID, itemID int64) (*models.CartLine, error) {
	var line models.CartLine
	err := s.db.GetContext(ctx, &line,
		cartLineQuery+" WHERE c.user_id = $1 AND c.id = $2", userID, itemID)
	if err != nil {
		return nil, notFound(err, "cart item %d", itemID)
	}
	return &line, nil
}

// CreateCartItem inserts a new cart row
func (s *Store) CreateCartItem(ctx context.Context, item *models.CartItem) error {
	query := `
		INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		RETURNING id, added_at`

	err := s.db.GetContext(ctx, item, query, item.UserID, item.ProductID, item.Quantity)
	return classifyError(err)
}

// UpdateCartItemQuantity sets the quantity of one cart row
func (s *Store) UpdateCartItemQuantity(ctx context.Context, itemID int64, quantity int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE cart_items SET quantity = $1 WHERE id = $2", quantity, itemID)
	if err != nil {
		return classifyError(err)
	}
	return expectAffected(res, "cart item %d", itemID)
}

// DeleteCartItem removes one of the user's cart rows
func (s *Store) DeleteCartItem(ctx context.Context, userID, itemID int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cart_items WHERE id = $1 AND user_id = $2", itemID, userID)
	if err != nil {
		return classifyError(err)
	}
	return expectAffected(res, "cart item %d", itemID)
}

// ListCartLines lists the user's cart joined with current product data
func (s *Store) ListCartLines(ctx context.Context, userID int64) ([]models.CartLine, error) {
	lines := []models.CartLine{}
	err := s.db.SelectContext(ctx, &lines, cartLineQuery+" WHERE c.user_id = $1 ORDER BY c.id", userID)
	return lines, err
}

// ClearCart deletes all of the user's cart rows
func (s *Store) ClearCart(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = $1", userID)
	return classifyError(err)
}
