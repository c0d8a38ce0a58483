package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"checkout-service/internal/broker"
	"checkout-service/internal/models"
	"checkout-service/internal/service"
	"checkout-service/internal/store"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSource struct {
	msgs   []kafka.Message
	errs   []error
	closed bool
}

func (s *sliceSource) StartConsuming(ctx context.Context, handler broker.MessageHandler) error {
	for _, m := range s.msgs {
		s.errs = append(s.errs, handler(ctx, m))
	}
	return nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

func shipmentMessage(t *testing.T, eventID string, orderID int64, code string) kafka.Message {
	t.Helper()
	b, err := json.Marshal(models.ShipmentConfirmedEvent{
		BaseEvent:   models.BaseEvent{EventID: eventID, EventType: models.EventTypeShipmentConfirmed, Timestamp: time.Now()},
		OrderID:     orderID,
		ConfirmCode: code,
	})
	require.NoError(t, err)
	return kafka.Message{Value: b}
}

func TestShipmentWorker_AppliesConfirmations(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore(time.Second)

	p := &models.Product{Name: "Crate", Price: decimal.NewFromInt(9), Stock: 2}
	require.NoError(t, st.CreateProduct(ctx, p))
	require.NoError(t, st.CreateCartItem(ctx, &models.CartItem{UserID: 1, ProductID: p.ID, Quantity: 1}))

	checkout := service.NewCheckoutService(st, service.NewStockLedger(), nil, nil, "http://localhost")
	res, err := checkout.Checkout(ctx, &service.CheckoutRequest{UserID: 1, Address: "dock 4"})
	require.NoError(t, err)

	order, err := st.GetOrderByID(ctx, res.Order.ID)
	require.NoError(t, err)

	src := &sliceSource{msgs: []kafka.Message{
		shipmentMessage(t, "e-1", order.ID, "wrong"),
		shipmentMessage(t, "e-2", order.ID, order.ConfirmCode),
		shipmentMessage(t, "e-2", order.ID, order.ConfirmCode),
	}}

	w := NewShipmentWorker(src, service.NewLifecycleService(st, nil))
	require.NoError(t, w.Start(ctx))

	for _, err := range src.errs {
		assert.NoError(t, err)
	}

	got, err := st.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, got.Status)

	require.NoError(t, w.Stop())
	assert.True(t, src.closed)
}

type flakyShipments struct {
	failures int
	calls    []string
}

func (f *flakyShipments) HandleShipmentConfirmed(ctx context.Context, event *models.ShipmentConfirmedEvent) error {
	f.calls = append(f.calls, event.EventID)
	if f.failures > 0 {
		f.failures--
		return errors.New("database is restarting")
	}
	return nil
}

func TestShipmentWorker_RetriesFailedConfirmationInPlace(t *testing.T) {
	src := &sliceSource{msgs: []kafka.Message{
		shipmentMessage(t, "e-1", 1, "abc"),
		shipmentMessage(t, "e-2", 2, "def"),
	}}
	shipments := &flakyShipments{failures: 2}

	w := NewShipmentWorker(src, shipments)
	w.retry = broker.RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
	require.NoError(t, w.Start(context.Background()))

	require.Len(t, src.errs, 2)
	for _, err := range src.errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, []string{"e-1", "e-1", "e-1", "e-2"}, shipments.calls)
}
