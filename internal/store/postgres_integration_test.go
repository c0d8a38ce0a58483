//go:build integration

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("checkout"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := NewStore(dsn, 200*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate())
	return s
}

func TestIntegration_CheckoutTransaction(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	p := &models.Product{SKU: "W-1", Name: "Widget", Price: decimal.RequireFromString("12.50"), Stock: 3}
	require.NoError(t, s.CreateProduct(ctx, p))
	require.NoError(t, s.CreateCartItem(ctx, &models.CartItem{UserID: 1, ProductID: p.ID, Quantity: 2}))

	userID := int64(1)
	key := "key-1"
	order := &models.Order{UserID: &userID, TotalAmount: decimal.RequireFromString("25.00"),
		Status: models.OrderStatusPaid, IdempotencyKey: &key}

	err := s.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.LockCart(ctx, userID); err != nil {
			return err
		}
		locked, err := tx.LockProductsForUpdate(ctx, []int64{p.ID})
		if err != nil {
			return err
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		item := &models.OrderItem{OrderID: order.ID, ProductID: &p.ID, ProductName: p.Name, Quantity: 2, UnitPrice: p.Price}
		if err := tx.CreateOrderItem(ctx, item); err != nil {
			return err
		}
		if err := tx.UpdateStock(ctx, p.ID, locked[p.ID].Stock-2); err != nil {
			return err
		}
		return tx.ClearCart(ctx, userID)
	})
	require.NoError(t, err)

	got, err := s.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stock)

	saved, err := s.GetOrderByIdempotencyKey(ctx, userID, key)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.True(t, saved.TotalAmount.Equal(decimal.RequireFromString("25.00")))

	dup := &models.Order{UserID: &userID, Status: models.OrderStatusPaid, IdempotencyKey: &key}
	err = s.WithTx(ctx, func(tx Tx) error { return tx.CreateOrder(ctx, dup) })
	assert.ErrorIs(t, err, ErrDuplicateKey)

	otherUser := int64(2)
	other := &models.Order{UserID: &otherUser, Status: models.OrderStatusPaid, IdempotencyKey: &key}
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error { return tx.CreateOrder(ctx, other) }))

	lines, err := s.ListCartLines(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestIntegration_LockTimeout(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	p := &models.Product{SKU: "W-2", Name: "Gadget", Price: decimal.NewFromInt(5), Stock: 1}
	require.NoError(t, s.CreateProduct(ctx, p))

	held := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.WithTx(ctx, func(tx Tx) error {
			_, err := tx.LockProductsForUpdate(ctx, []int64{p.ID})
			close(held)
			<-release
			return err
		})
	}()
	<-held

	err := s.WithTx(ctx, func(tx Tx) error {
		_, err := tx.LockProductsForUpdate(ctx, []int64{p.ID})
		return err
	})
	close(release)
	wg.Wait()

	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestIntegration_DeleteProductKeepsOrderItems(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	p := &models.Product{SKU: "W-3", Name: "Gizmo", Price: decimal.NewFromInt(7), Stock: 4}
	require.NoError(t, s.CreateProduct(ctx, p))

	order := &models.Order{Status: models.OrderStatusPaid, TotalAmount: decimal.NewFromInt(7)}
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		return tx.CreateOrderItem(ctx, &models.OrderItem{OrderID: order.ID, ProductID: &p.ID,
			ProductName: p.Name, Quantity: 1, UnitPrice: p.Price})
	}))

	require.NoError(t, s.DeleteProduct(ctx, p.ID))

	items, err := s.GetOrderItemsByOrderID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].ProductID)
	assert.Equal(t, "Gizmo", items[0].ProductName)
}
