package broker

import (
	"context"
	"encoding/json"
	"testing"

	"checkout-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryProducer struct {
	keys   []string
	events []interface{}
}

func (m *memoryProducer) PublishEvent(ctx context.Context, key string, event interface{}) error {
	m.keys = append(m.keys, key)
	m.events = append(m.events, event)
	return nil
}

func TestEventPublisher_KeysByOrder(t *testing.T) {
	p := &memoryProducer{}
	ep := NewEventPublisher(p)
	ctx := context.Background()

	require.NoError(t, ep.PublishOrderPaid(ctx, &models.OrderPaidEvent{OrderID: 7, TotalAmount: decimal.NewFromInt(25)}))
	require.NoError(t, ep.PublishOrderStatusChanged(ctx, &models.OrderStatusChangedEvent{OrderID: 7}))

	assert.Equal(t, []string{"order-7", "order-7"}, p.keys)
}

func TestEventHandler_RoutesShipmentConfirmed(t *testing.T) {
	eh := NewEventHandler()

	var got *models.ShipmentConfirmedEvent
	eh.OnShipmentConfirmed(func(ctx context.Context, e *models.ShipmentConfirmedEvent) error {
		got = e
		return nil
	})

	payload, err := json.Marshal(models.ShipmentConfirmedEvent{
		BaseEvent:   models.BaseEvent{EventID: "e-1", EventType: models.EventTypeShipmentConfirmed},
		OrderID:     42,
		ConfirmCode: "abc",
	})
	require.NoError(t, err)

	require.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: payload}))
	require.NotNil(t, got)
	assert.Equal(t, int64(42), got.OrderID)
	assert.Equal(t, "abc", got.ConfirmCode)
}

func TestEventHandler_IgnoresUnknownTypes(t *testing.T) {
	eh := NewEventHandler()
	called := false
	eh.OnShipmentConfirmed(func(ctx context.Context, e *models.ShipmentConfirmedEvent) error {
		called = true
		return nil
	})

	err := eh.HandleMessage(context.Background(), kafka.Message{Value: []byte(`{"event_type":"SOMETHING_ELSE"}`)})
	assert.NoError(t, err)
	assert.False(t, called)

	err = eh.HandleMessage(context.Background(), kafka.Message{Value: []byte(`not json`)})
	assert.Error(t, err)
}

func TestHeaderCarrier(t *testing.T) {
	msg := &kafka.Message{}
	carrier := headerCarrier{msg: msg}

	carrier.Set("traceparent", "00-a-b-01")
	carrier.Set("traceparent", "00-c-d-01")
	carrier.Set("baggage", "k=v")

	assert.Equal(t, "00-c-d-01", carrier.Get("traceparent"))
	assert.Equal(t, "", carrier.Get("missing"))
	assert.ElementsMatch(t, []string{"traceparent", "baggage"}, carrier.Keys())
	assert.Len(t, msg.Headers, 2)
}

func TestEventType(t *testing.T) {
	assert.Equal(t, models.EventTypeOrderPaid,
		eventType(&models.OrderPaidEvent{BaseEvent: models.BaseEvent{EventType: models.EventTypeOrderPaid}}))
	assert.Equal(t, "", eventType(&models.Notification{}))
}
