package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher is the write side of a topic
type Publisher interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing order domain events
type EventPublisher struct {
	producer Publisher
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer Publisher) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

// PublishOrderPaid publishes OrderPaid event
func (ep *EventPublisher) PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderStatusChanged publishes OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// EventHandler routes incoming events by type
type EventHandler struct {
	onShipmentConfirmed func(context.Context, *models.ShipmentConfirmedEvent) error
	logger              *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnShipmentConfirmed registers a handler for ShipmentConfirmed events
func (eh *EventHandler) OnShipmentConfirmed(handler func(context.Context, *models.ShipmentConfirmedEvent) error) {
	eh.onShipmentConfirmed = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("%w: base event: %w", ErrMalformed, err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeShipmentConfirmed:
		if eh.onShipmentConfirmed != nil {
			var event models.ShipmentConfirmedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: ShipmentConfirmed event: %w", ErrMalformed, err)
			}
			return eh.onShipmentConfirmed(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
