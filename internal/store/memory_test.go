package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedProduct(t *testing.T, s *MemoryStore, name string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{SKU: name, Name: name, Price: decimal.RequireFromString("10.00"), Stock: stock}
	require.NoError(t, s.CreateProduct(context.Background(), p))
	return p
}

func TestMemoryStore_CartLines(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Second)
	p := seedProduct(t, s, "widget", 5)

	item := &models.CartItem{UserID: 1, ProductID: p.ID, Quantity: 2}
	require.NoError(t, s.CreateCartItem(ctx, item))
	assert.NotZero(t, item.ID)

	err := s.CreateCartItem(ctx, &models.CartItem{UserID: 1, ProductID: p.ID, Quantity: 1})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	err = s.CreateCartItem(ctx, &models.CartItem{UserID: 1, ProductID: 999, Quantity: 1})
	assert.ErrorIs(t, err, ErrNotFound)

	lines, err := s.ListCartLines(ctx, 1)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "widget", lines[0].ProductName)
	assert.Equal(t, 5, lines[0].ProductStock)

	_, err = s.GetCartLine(ctx, 2, item.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.DeleteProduct(ctx, p.ID))
	lines, err = s.ListCartLines(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestMemoryStore_TxRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Second)
	p := seedProduct(t, s, "widget", 5)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.UpdateStock(ctx, p.ID, 1))
		require.NoError(t, tx.CreateOrder(ctx, &models.Order{Status: models.OrderStatusPaid}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)

	orders, err := s.ListOrders(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestMemoryStore_TxCommitAppliesWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Second)
	p := seedProduct(t, s, "widget", 5)
	require.NoError(t, s.CreateCartItem(ctx, &models.CartItem{UserID: 1, ProductID: p.ID, Quantity: 2}))

	userID := int64(1)
	var orderID int64
	err := s.WithTx(ctx, func(tx Tx) error {
		items, err := tx.LockCart(ctx, userID)
		require.NoError(t, err)
		require.Len(t, items, 1)

		locked, err := tx.LockProductsForUpdate(ctx, []int64{p.ID, p.ID})
		require.NoError(t, err)
		require.Contains(t, locked, p.ID)

		order := &models.Order{UserID: &userID, Status: models.OrderStatusPaid}
		require.NoError(t, tx.CreateOrder(ctx, order))
		orderID = order.ID
		require.NoError(t, tx.CreateOrderItem(ctx, &models.OrderItem{OrderID: order.ID, ProductID: &p.ID, Quantity: 2}))
		require.NoError(t, tx.UpdateStock(ctx, p.ID, locked[p.ID].Stock-2))
		return tx.ClearCart(ctx, userID)
	})
	require.NoError(t, err)

	got, _ := s.GetProductByID(ctx, p.ID)
	assert.Equal(t, 3, got.Stock)

	items, err := s.GetOrderItemsByOrderID(ctx, orderID)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	lines, _ := s.ListCartLines(ctx, userID)
	assert.Empty(t, lines)
}

func TestMemoryStore_LockTimeout(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(20 * time.Millisecond)
	p := seedProduct(t, s, "widget", 5)

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.WithTx(ctx, func(tx Tx) error {
			_, err := tx.LockProductsForUpdate(ctx, []int64{p.ID})
			close(held)
			<-done
			return err
		})
	}()
	<-held

	err := s.WithTx(ctx, func(tx Tx) error {
		_, err := tx.LockProductsForUpdate(ctx, []int64{p.ID})
		return err
	})
	close(done)
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestMemoryStore_DuplicateIdempotencyKeyOnCommit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Second)
	key := "checkout-1"

	create := func(userID int64) error {
		return s.WithTx(ctx, func(tx Tx) error {
			k := key
			return tx.CreateOrder(ctx, &models.Order{UserID: &userID, Status: models.OrderStatusPaid, IdempotencyKey: &k})
		})
	}
	require.NoError(t, create(1))
	assert.ErrorIs(t, create(1), ErrDuplicateKey)
	require.NoError(t, create(2), "keys are scoped per user")

	found, err := s.GetOrderByIdempotencyKey(ctx, 1, key)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.OwnedBy(1))

	other, err := s.GetOrderByIdempotencyKey(ctx, 2, key)
	require.NoError(t, err)
	require.NotNil(t, other)
	assert.NotEqual(t, found.ID, other.ID)

	missing, err := s.GetOrderByIdempotencyKey(ctx, 3, key)
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStore_CompareAndSetOrderStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Second)

	order := &models.Order{Status: models.OrderStatusPaid}
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error { return tx.CreateOrder(ctx, order) }))

	ok, err := s.CompareAndSetOrderStatus(ctx, order.ID, models.OrderStatusPaid, models.OrderStatusShipped)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CompareAndSetOrderStatus(ctx, order.ID, models.OrderStatusPaid, models.OrderStatusCancelled)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_DetachOrders(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Second)
	userID := int64(9)

	order := &models.Order{UserID: &userID, Status: models.OrderStatusPaid}
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error { return tx.CreateOrder(ctx, order) }))
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error { return tx.DetachOrders(ctx, userID) }))

	got, err := s.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Nil(t, got.UserID)

	orders, _ := s.GetOrdersByUserID(ctx, userID)
	assert.Empty(t, orders)
}
