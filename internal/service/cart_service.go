package service

import (
	"context"
	"errors"
	"fmt"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartService manages the per-user staging area. Stock checks here are
// advisory; checkout enforces them under lock.
type CartService struct {
	catalog CatalogRepository
	carts   CartRepository
	logger  *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(catalog CatalogRepository, carts CartRepository) *CartService {
	return &CartService{
		catalog: catalog,
		carts:   carts,
		logger:  util.GetLogger(),
	}
}

// CartView is a cart with its total at current prices
type CartView struct {
	Items []models.CartLine `json:"items"`
	Total decimal.Decimal   `json:"total"`
}

// CartUpdate is returned after changing one line
type CartUpdate struct {
	Line      models.CartLine `json:"item"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	CartTotal decimal.Decimal `json:"total"`
}

// Add puts delta units of a product in the user's cart, incrementing an existing line
func (s *CartService) Add(ctx context.Context, userID, productID int64, delta int) (*models.CartLine, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Add")
	defer span.End()

	if delta < 1 {
		return nil, invalidInput("quantity must be at least 1, got %d", delta)
	}

	product, err := s.catalog.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	item, err := s.carts.GetCartItem(ctx, userID, productID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if delta > product.Stock {
			util.StockConflictsTotal.WithLabelValues("cart").Inc()
			return nil, fmt.Errorf("%s: %w", product.Name, ErrOutOfStock)
		}

		item = &models.CartItem{UserID: userID, ProductID: productID, Quantity: delta}
		err = s.carts.CreateCartItem(ctx, item)
		if err == nil {
			return s.carts.GetCartLine(ctx, userID, item.ID)
		}
		if !errors.Is(err, store.ErrDuplicateKey) {
			return nil, fmt.Errorf("failed to add cart item: %w", err)
		}

		// a concurrent add created the row first
		if item, err = s.carts.GetCartItem(ctx, userID, productID); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	newQty := item.Quantity + delta
	if newQty > product.Stock {
		util.StockConflictsTotal.WithLabelValues("cart").Inc()
		return nil, &InsufficientStockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Available:   product.Stock,
			Requested:   newQty,
		}
	}

	if err := s.carts.UpdateCartItemQuantity(ctx, item.ID, newQty); err != nil {
		return nil, fmt.Errorf("failed to update cart item: %w", err)
	}

	s.logger.Debug("Cart item incremented",
		zap.Int64("user_id", userID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", newQty))

	return s.carts.GetCartLine(ctx, userID, item.ID)
}

// SetQuantity replaces the quantity of one of the user's lines.
// Quantities above current stock are rejected without mutation; quantities
// below one are clamped to one.
func (s *CartService) SetQuantity(ctx context.Context, userID, itemID int64, quantity int) (*CartUpdate, error) {
	ctx, span := util.StartSpan(ctx, "CartService.SetQuantity")
	defer span.End()

	line, err := s.carts.GetCartLine(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}

	if quantity > line.ProductStock {
		util.StockConflictsTotal.WithLabelValues("cart").Inc()
		return nil, &OverstockError{ProductID: line.ProductID, Max: line.ProductStock}
	}
	if quantity < 1 {
		quantity = 1
	}

	if err := s.carts.UpdateCartItemQuantity(ctx, itemID, quantity); err != nil {
		return nil, fmt.Errorf("failed to update cart item: %w", err)
	}
	line.Quantity = quantity

	total, err := s.Total(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &CartUpdate{Line: *line, Subtotal: line.Subtotal(), CartTotal: total}, nil
}

// Remove deletes one of the user's lines
func (s *CartService) Remove(ctx context.Context, userID, itemID int64) error {
	return s.carts.DeleteCartItem(ctx, userID, itemID)
}

// List returns the user's lines ordered by id
func (s *CartService) List(ctx context.Context, userID int64) ([]models.CartLine, error) {
	return s.carts.ListCartLines(ctx, userID)
}

// View returns the user's lines and their total
func (s *CartService) View(ctx context.Context, userID int64) (*CartView, error) {
	lines, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &CartView{Items: lines, Total: models.CartTotal(lines)}, nil
}

// Total sums the user's lines at current prices
func (s *CartService) Total(ctx context.Context, userID int64) (decimal.Decimal, error) {
	lines, err := s.List(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return models.CartTotal(lines), nil
}

// Clear empties the user's cart
func (s *CartService) Clear(ctx context.Context, userID int64) error {
	return s.carts.ClearCart(ctx, userID)
}
