package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusPending, OrderStatusPaid, true},
		{OrderStatusPaid, OrderStatusShipped, true},
		{OrderStatusPaid, OrderStatusCancelled, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusShipped, OrderStatusPaid, false},
		{OrderStatusPaid, OrderStatusPaid, false},
		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusPaid, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range AllOrderStatuses() {
		terminal := s == OrderStatusDelivered || s == OrderStatusCancelled
		assert.Equal(t, terminal, s.Terminal(), string(s))
		if terminal {
			for _, to := range AllOrderStatuses() {
				assert.False(t, CanTransition(s, to))
			}
		}
	}
}

func TestParseOrderStatus(t *testing.T) {
	st, err := ParseOrderStatus("shipped")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusShipped, st)

	_, err = ParseOrderStatus("completed")
	assert.Error(t, err)
	assert.False(t, OrderStatus("SHIPPED").Valid())
}

func TestRealizedSaleStatuses(t *testing.T) {
	assert.True(t, IsRealizedSale(OrderStatusPaid))
	assert.True(t, IsRealizedSale(OrderStatusShipped))
	assert.True(t, IsRealizedSale(OrderStatusDelivered))
	assert.False(t, IsRealizedSale(OrderStatusPending))
	assert.False(t, IsRealizedSale(OrderStatusCancelled))
}

func TestCartTotal(t *testing.T) {
	lines := []CartLine{
		{CartItem: CartItem{Quantity: 2}, UnitPrice: decimal.RequireFromString("10.00")},
		{CartItem: CartItem{Quantity: 1}, UnitPrice: decimal.RequireFromString("5.00")},
	}

	assert.True(t, decimal.RequireFromString("25.00").Equal(CartTotal(lines)))
	assert.True(t, CartTotal(nil).IsZero())
}
