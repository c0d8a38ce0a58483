package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// Tx is the unit of work handed to WithTx.
// Every write made through it lands atomically when the callback returns nil,
// and none of them is visible when it returns an error.
type Tx interface {
	// LockCart locks and returns the user's cart rows ordered by id
	LockCart(ctx context.Context, userID int64) ([]models.CartItem, error)
	// LockProductsForUpdate locks the given products in ascending id order
	// and returns the locked snapshot keyed by id. Missing ids are absent.
	LockProductsForUpdate(ctx context.Context, ids []int64) (map[int64]*models.Product, error)
	UpdateStock(ctx context.Context, productID int64, stock int) error
	// SaveProduct overwrites the mutable fields of a product locked by this Tx
	SaveProduct(ctx context.Context, p *models.Product) error
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	ClearCart(ctx context.Context, userID int64) error
	DetachOrders(ctx context.Context, userID int64) error
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// SortedUniqueIDs returns ids deduplicated in ascending order, the canonical
// lock acquisition order shared by every transaction.
func SortedUniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// WithTx runs fn inside a database transaction with a bounded lock wait
func (s *Store) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classifyError(err)
	}
	defer tx.Rollback()

	if s.lockTimeout > 0 {
		// SET does not take bind parameters
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return classifyError(err)
		}
	}

	if err := fn(&sqlTx{tx: tx}); err != nil {
		return err
	}

	return classifyError(tx.Commit())
}

type sqlTx struct {
	tx *sqlx.Tx
}

func (t *sqlTx) LockCart(ctx context.Context, userID int64) ([]models.CartItem, error) {
	items := []models.CartItem{}
	err := t.tx.SelectContext(ctx, &items,
		"SELECT * FROM cart_items WHERE user_id = $1 ORDER BY id FOR UPDATE", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock cart: %w", classifyError(err))
	}
	return items, nil
}

func (t *sqlTx) LockProductsForUpdate(ctx context.Context, ids []int64) (map[int64]*models.Product, error) {
	ids = SortedUniqueIDs(ids)
	locked := make(map[int64]*models.Product, len(ids))
	if len(ids) == 0 {
		return locked, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?) ORDER BY id FOR UPDATE", ids)
	if err != nil {
		return nil, err
	}

	var products []models.Product
	if err := t.tx.SelectContext(ctx, &products, t.tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to lock products: %w", classifyError(err))
	}

	for i := range products {
		locked[products[i].ID] = &products[i]
	}
	return locked, nil
}

func (t *sqlTx) UpdateStock(ctx context.Context, productID int64, stock int) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE products SET stock = $1, updated_at = NOW() WHERE id = $2", stock, productID)
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", classifyError(err))
	}
	return expectAffected(res, "product %d", productID)
}

func (t *sqlTx) SaveProduct(ctx context.Context, p *models.Product) error {
	query := `
		UPDATE products
		SET sku = $1, name = $2, description = $3, price = $4, stock = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at`

	err := t.tx.GetContext(ctx, &p.UpdatedAt, query,
		p.SKU, p.Name, p.Description, p.Price, p.Stock, p.ID)
	if err != nil {
		return notFound(err, "product %d", p.ID)
	}
	return nil
}

func (t *sqlTx) CreateOrder(ctx context.Context, order *models.Order) error {
	return createOrder(ctx, t.tx, order)
}

func (t *sqlTx) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	return createOrderItem(ctx, t.tx, item)
}

func (t *sqlTx) ClearCart(ctx context.Context, userID int64) error {
	_, err := t.tx.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = $1", userID)
	return classifyError(err)
}

func (t *sqlTx) DetachOrders(ctx context.Context, userID int64) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE orders SET user_id = NULL, updated_at = NOW() WHERE user_id = $1", userID)
	return classifyError(err)
}
