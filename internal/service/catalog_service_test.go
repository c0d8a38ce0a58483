package service

import (
	"context"
	"sync"
	"testing"

	"checkout-service/internal/models"
	"checkout-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.catalog.CreateProduct(ctx, &ProductInput{Name: "", Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.catalog.CreateProduct(ctx, &ProductInput{Name: "X", Price: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	p := env.product("X", "1.00", 1)
	_, err = env.catalog.SetStock(ctx, p.ID, -1)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 1, env.stock(p.ID))
}

func TestCatalogDeleteKeepsOrderHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := env.product("Vase", "30.00", 2)
	env.addToCart(1, p.ID, 1)
	res, err := env.checkout.Checkout(ctx, &CheckoutRequest{UserID: 1, Address: "x"})
	require.NoError(t, err)
	env.addToCart(2, p.ID, 1)

	require.NoError(t, env.catalog.DeleteProduct(ctx, p.ID))

	_, err = env.catalog.GetProduct(ctx, p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	lines, _ := env.carts.List(ctx, 2)
	assert.Empty(t, lines)

	details, err := env.lifecycle.GetOrderAdmin(ctx, res.Order.ID)
	require.NoError(t, err)
	require.Len(t, details.Items, 1)
	assert.Nil(t, details.Items[0].ProductID)
	assert.Equal(t, "Vase", details.Items[0].ProductName)
}

func TestAccountDetachUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	order := env.placeOrder(1)
	p := env.product("Spare", "1.00", 1)
	env.addToCart(1, p.ID, 1)

	require.NoError(t, env.accounts.DetachUser(ctx, 1))

	lines, _ := env.carts.List(ctx, 1)
	assert.Empty(t, lines)

	got, err := env.lifecycle.GetOrderAdmin(ctx, order.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Order.UserID)

	_, err = env.lifecycle.GetOrder(ctx, 1, order.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// lockHookTx runs before once, right before the products are locked
type lockHookTx struct {
	store.Tx
	before func()
}

func (t *lockHookTx) LockProductsForUpdate(ctx context.Context, ids []int64) (map[int64]*models.Product, error) {
	if t.before != nil {
		hook := t.before
		t.before = nil
		hook()
	}
	return t.Tx.LockProductsForUpdate(ctx, ids)
}

func TestSetPrice_KeepsCheckoutCommittedMeanwhile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := env.product("Lamp", "10.00", 5)
	env.addToCart(1, p.ID, 3)

	env.store.wrapTx = func(tx store.Tx) store.Tx {
		return &lockHookTx{Tx: tx, before: func() {
			_, err := env.checkout.Checkout(ctx, &CheckoutRequest{UserID: 1, Address: "x"})
			require.NoError(t, err)
		}}
	}

	updated, err := env.catalog.SetPrice(ctx, p.ID, decimal.RequireFromString("12.00"))
	require.NoError(t, err)

	assert.Equal(t, 2, updated.Stock)
	assert.Equal(t, 2, env.stock(p.ID))

	saved, err := env.catalog.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, saved.Price.Equal(decimal.RequireFromString("12.00")))
}

func TestSetPrice_ConcurrentWithCheckouts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const buyers = 20
	p := env.product("Ticket", "5.00", 2*buyers)
	for u := int64(1); u <= buyers; u++ {
		env.addToCart(u, p.ID, 2)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for u := int64(1); u <= buyers; u++ {
		wg.Add(2)
		go func(u int64) {
			defer wg.Done()
			if _, err := env.checkout.Checkout(ctx, &CheckoutRequest{UserID: u, Address: "x"}); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(u)
		go func(u int64) {
			defer wg.Done()
			_, err := env.catalog.SetPrice(ctx, p.ID, decimal.NewFromInt(u))
			assert.NoError(t, err)
		}(u)
	}
	wg.Wait()

	assert.Equal(t, buyers, succeeded)
	assert.Equal(t, 0, env.stock(p.ID))
}
