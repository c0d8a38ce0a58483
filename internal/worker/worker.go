package worker

import (
	"context"

	"checkout-service/internal/broker"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Source delivers messages to a handler until ctx is done
type Source interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// ShipmentHandler applies shipment confirmations
type ShipmentHandler interface {
	HandleShipmentConfirmed(ctx context.Context, event *models.ShipmentConfirmedEvent) error
}

// ShipmentWorker consumes shipment confirmations from the carrier topic
type ShipmentWorker struct {
	source       Source
	eventHandler *broker.EventHandler
	retry        broker.RetryPolicy
	logger       *zap.Logger
}

// NewShipmentWorker creates a new shipment worker
func NewShipmentWorker(source Source, lifecycle ShipmentHandler) *ShipmentWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnShipmentConfirmed(lifecycle.HandleShipmentConfirmed)

	return &ShipmentWorker{
		source:       source,
		eventHandler: eventHandler,
		retry:        broker.DefaultRetryPolicy(),
		logger:       util.GetLogger(),
	}
}

// Handle processes one message
func (w *ShipmentWorker) Handle(ctx context.Context, msg kafka.Message) error {
	return w.eventHandler.HandleMessage(ctx, msg)
}

// Start consumes until ctx is done. A failing confirmation is retried in
// place, so later confirmations wait behind it.
func (w *ShipmentWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting shipment worker")
	return w.source.StartConsuming(ctx, broker.WithRetry(w.Handle, w.retry))
}

// Stop stops the worker
func (w *ShipmentWorker) Stop() error {
	w.logger.Info("Stopping shipment worker")
	return w.source.Close()
}
