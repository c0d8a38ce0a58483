package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPaid          = "ORDER_PAID"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeShipmentConfirmed  = "SHIPMENT_CONFIRMED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type, used as a message header
func (e BaseEvent) Type() string { return e.EventType }

// OrderPaidEvent published when checkout commits an order
type OrderPaidEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	UserID      int64           `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent published on every lifecycle transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID int64       `json:"order_id"`
	From    OrderStatus `json:"from"`
	To      OrderStatus `json:"to"`
	Trigger string      `json:"trigger"`
}

// ShipmentConfirmedEvent is consumed from the shipment topic.
// It carries the same token as the emailed confirmation link.
type ShipmentConfirmedEvent struct {
	BaseEvent
	OrderID     int64  `json:"order_id"`
	ConfirmCode string `json:"confirm_code"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Notification is the payload handed to the notification gateway
type Notification struct {
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
