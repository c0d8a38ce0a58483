package service

import (
	"context"
	"fmt"
	"strings"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type catalogStore interface {
	CatalogRepository
	TxRunner
}

// CatalogService is the administrative side of the product catalog.
// Stock set here is a direct overwrite, not a ledger movement.
type CatalogService struct {
	catalog catalogStore
	logger  *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(catalog catalogStore) *CatalogService {
	return &CatalogService{
		catalog: catalog,
		logger:  util.GetLogger(),
	}
}

// ProductInput creates a product
type ProductInput struct {
	SKU         string          `json:"sku"`
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
}

// ProductPatch updates the fields that are set
type ProductPatch struct {
	SKU         *string          `json:"sku"`
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock"`
}

func validateProduct(p *models.Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return invalidInput("product name is required")
	}
	if p.Price.IsNegative() {
		return invalidInput("price must not be negative")
	}
	if p.Stock < 0 {
		return invalidInput("stock must not be negative")
	}
	return nil
}

// CreateProduct adds a product to the catalog
func (s *CatalogService) CreateProduct(ctx context.Context, in *ProductInput) (*models.Product, error) {
	p := &models.Product{
		SKU:         in.SKU,
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price.Round(2),
		Stock:       in.Stock,
	}
	if err := validateProduct(p); err != nil {
		return nil, err
	}

	if err := s.catalog.CreateProduct(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("Product created", zap.Int64("product_id", p.ID), zap.String("name", p.Name))
	return p, nil
}

// GetProduct returns a product by id
func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return s.catalog.GetProductByID(ctx, id)
}

// ListProducts returns the whole catalog ordered by id
func (s *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	products, err := s.catalog.GetProducts(ctx)
	if products == nil {
		products = []models.Product{}
	}
	return products, err
}

// UpdateProduct applies a patch to the product read under its row lock, so a
// checkout committing meanwhile is never overwritten. Setting Stock
// overwrites the level.
func (s *CatalogService) UpdateProduct(ctx context.Context, id int64, patch *ProductPatch) (*models.Product, error) {
	var updated *models.Product

	err := s.catalog.WithTx(ctx, func(tx store.Tx) error {
		locked, err := tx.LockProductsForUpdate(ctx, []int64{id})
		if err != nil {
			return err
		}
		p, ok := locked[id]
		if !ok {
			return fmt.Errorf("product %d: %w", id, store.ErrNotFound)
		}

		if patch.SKU != nil {
			p.SKU = *patch.SKU
		}
		if patch.Name != nil {
			p.Name = *patch.Name
		}
		if patch.Description != nil {
			p.Description = *patch.Description
		}
		if patch.Price != nil {
			p.Price = patch.Price.Round(2)
		}
		if patch.Stock != nil {
			p.Stock = *patch.Stock
		}
		if err := validateProduct(p); err != nil {
			return err
		}

		if err := tx.SaveProduct(ctx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetStock overwrites a product's stock level
func (s *CatalogService) SetStock(ctx context.Context, id int64, stock int) (*models.Product, error) {
	return s.UpdateProduct(ctx, id, &ProductPatch{Stock: &stock})
}

// SetPrice changes a product's price. Committed order items keep their frozen price.
func (s *CatalogService) SetPrice(ctx context.Context, id int64, price decimal.Decimal) (*models.Product, error) {
	return s.UpdateProduct(ctx, id, &ProductPatch{Price: &price})
}

// DeleteProduct removes a product; cart lines go with it, order items keep their copy
func (s *CatalogService) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.catalog.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Product deleted", zap.Int64("product_id", id))
	return nil
}
