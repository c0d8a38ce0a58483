package service

import (
	"context"
	"fmt"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
)

// StockLedger performs check-and-decrement on products locked by the
// surrounding transaction. It never takes locks itself.
type StockLedger struct{}

// NewStockLedger creates a new stock ledger
func NewStockLedger() *StockLedger {
	return &StockLedger{}
}

// Reserve takes quantity units from a locked product. The snapshot is updated
// in place so later reservations in the same transaction see the new level.
func (l *StockLedger) Reserve(ctx context.Context, tx store.Tx, product *models.Product, quantity int) error {
	if quantity < 1 {
		return invalidInput("reserve quantity must be at least 1, got %d", quantity)
	}
	if product.Stock < quantity {
		return &InsufficientStockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Available:   product.Stock,
			Requested:   quantity,
		}
	}

	if err := tx.UpdateStock(ctx, product.ID, product.Stock-quantity); err != nil {
		return fmt.Errorf("failed to reserve stock for product %d: %w", product.ID, err)
	}
	product.Stock -= quantity
	return nil
}

// Release returns quantity units to a locked product
func (l *StockLedger) Release(ctx context.Context, tx store.Tx, product *models.Product, quantity int) error {
	if quantity < 1 {
		return invalidInput("release quantity must be at least 1, got %d", quantity)
	}

	if err := tx.UpdateStock(ctx, product.ID, product.Stock+quantity); err != nil {
		return fmt.Errorf("failed to release stock for product %d: %w", product.ID, err)
	}
	product.Stock += quantity
	return nil
}
