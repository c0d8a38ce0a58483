package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transition triggers, carried on ORDER_STATUS_CHANGED events
const (
	TriggerOwner    = "owner"
	TriggerToken    = "token"
	TriggerOverride = "override"
)

const maxTokenAttempts = 3

type lifecycleRepository interface {
	OrderRepository
	EventLog
}

// LifecycleService drives orders through the status transition table
type LifecycleService struct {
	repo      lifecycleRepository
	publisher EventPublisher
	logger    *zap.Logger
}

// NewLifecycleService creates a new lifecycle service
func NewLifecycleService(repo lifecycleRepository, publisher EventPublisher) *LifecycleService {
	return &LifecycleService{
		repo:      repo,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// OrderDetails is an order with its frozen items
type OrderDetails struct {
	Order *models.Order      `json:"order"`
	Items []models.OrderItem `json:"items"`
}

// OrderFilter narrows the administrative order listing
type OrderFilter struct {
	Statuses []models.OrderStatus
	// Realized restricts the listing to statuses that count as a sale
	Realized bool
}

// GetOrder returns one of the user's orders. Orders of other users are not found.
func (s *LifecycleService) GetOrder(ctx context.Context, userID, orderID int64) (*OrderDetails, error) {
	order, err := s.ownedOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	return s.details(ctx, order)
}

// ListOrders returns the user's orders, newest first
func (s *LifecycleService) ListOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.repo.GetOrdersByUserID(ctx, userID)
}

// GetOrderAdmin returns any order
func (s *LifecycleService) GetOrderAdmin(ctx context.Context, orderID int64) (*OrderDetails, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.details(ctx, order)
}

// ListAllOrders returns all orders matching the filter, newest first
func (s *LifecycleService) ListAllOrders(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	statuses := filter.Statuses
	if filter.Realized {
		statuses = realizedAmong(statuses)
		if len(statuses) == 0 {
			return []models.Order{}, nil
		}
	}
	for _, st := range statuses {
		if !st.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, st)
		}
	}
	return s.repo.ListOrders(ctx, statuses)
}

func realizedAmong(statuses []models.OrderStatus) []models.OrderStatus {
	if len(statuses) == 0 {
		return models.RealizedSaleStatuses()
	}
	out := []models.OrderStatus{}
	for _, st := range statuses {
		if models.IsRealizedSale(st) {
			out = append(out, st)
		}
	}
	return out
}

// ConfirmShipment lets the owner mark a paid order as shipped
func (s *LifecycleService) ConfirmShipment(ctx context.Context, userID, orderID int64) (order *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "LifecycleService.ConfirmShipment")
	defer func() { util.EndSpan(span, err) }()

	order, err = s.ownedOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status != models.OrderStatusPaid || !models.CanTransition(order.Status, models.OrderStatusShipped) {
		return nil, &InvalidTransitionError{OrderID: order.ID, From: order.Status, To: models.OrderStatusShipped}
	}

	if err := s.transition(ctx, order, models.OrderStatusShipped, TriggerOwner); err != nil {
		return nil, err
	}
	return order, nil
}

// ConfirmShipmentByCode marks the order shipped when code matches its
// confirmation token, whatever status the order is in. The token is the
// authority, so the transition table does not apply. Confirming an already
// shipped order succeeds without a write.
func (s *LifecycleService) ConfirmShipmentByCode(ctx context.Context, orderID int64, code string) (order *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "LifecycleService.ConfirmShipmentByCode")
	defer func() { util.EndSpan(span, err) }()

	order, err = s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if order.ConfirmCode == "" || subtle.ConstantTimeCompare([]byte(order.ConfirmCode), []byte(code)) != 1 {
		s.logger.Warn("Shipment confirmation rejected", zap.Int64("order_id", orderID))
		return nil, ErrInvalidToken
	}

	// a status write racing with this one moves the observed status; re-read and retry
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		if order.Status == models.OrderStatusShipped {
			return order, nil
		}
		if order.Status.Terminal() {
			s.logger.Warn("Shipment confirmed on a closed order",
				zap.Int64("order_id", orderID),
				zap.String("from", string(order.Status)))
		}

		err = s.transition(ctx, order, models.OrderStatusShipped, TriggerToken)
		var transErr *InvalidTransitionError
		if !errors.As(err, &transErr) {
			if err != nil {
				return nil, err
			}
			return order, nil
		}

		if order, err = s.repo.GetOrderByID(ctx, orderID); err != nil {
			return nil, err
		}
	}

	return nil, &InvalidTransitionError{OrderID: orderID, From: order.Status, To: models.OrderStatusShipped}
}

// OverrideStatus is the administrative escape hatch: it sets any status
// regardless of the transition table, except that terminal statuses are final.
func (s *LifecycleService) OverrideStatus(ctx context.Context, orderID int64, status models.OrderStatus) (order *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "LifecycleService.OverrideStatus")
	defer func() { util.EndSpan(span, err) }()

	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	order, err = s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status == status {
		return order, nil
	}
	if order.Status.Terminal() {
		return nil, &InvalidTransitionError{OrderID: order.ID, From: order.Status, To: status}
	}

	s.logger.Warn("Order status overridden",
		zap.Int64("order_id", orderID),
		zap.String("from", string(order.Status)),
		zap.String("to", string(status)))

	if err := s.transition(ctx, order, status, TriggerOverride); err != nil {
		return nil, err
	}
	return order, nil
}

// HandleShipmentConfirmed applies a shipment confirmation consumed from the broker.
// Rejected tokens and illegal transitions are recorded and dropped.
func (s *LifecycleService) HandleShipmentConfirmed(ctx context.Context, event *models.ShipmentConfirmedEvent) error {
	ctx, span := util.StartSpan(ctx, "LifecycleService.HandleShipmentConfirmed")
	defer span.End()

	processed, err := s.repo.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		s.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		util.EventsConsumedTotal.WithLabelValues(event.EventType, "duplicate").Inc()
		return nil
	}

	result := "applied"
	_, err = s.ConfirmShipmentByCode(ctx, event.OrderID, event.ConfirmCode)
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrInvalidTransition):
		result = "rejected"
		s.logger.Warn("Shipment confirmation event rejected",
			zap.String("event_id", event.EventID),
			zap.Int64("order_id", event.OrderID),
			zap.Error(err))
	default:
		util.EventsConsumedTotal.WithLabelValues(event.EventType, "error").Inc()
		return err
	}

	if err := s.repo.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		s.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	util.EventsConsumedTotal.WithLabelValues(event.EventType, result).Inc()
	return nil
}

// transition writes the new status only if the order still has the observed one
func (s *LifecycleService) transition(ctx context.Context, order *models.Order, to models.OrderStatus, trigger string) error {
	from := order.Status
	ok, err := s.repo.CompareAndSetOrderStatus(ctx, order.ID, from, to)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if !ok {
		current := from
		if latest, err := s.repo.GetOrderByID(ctx, order.ID); err == nil {
			current = latest.Status
		}
		return &InvalidTransitionError{OrderID: order.ID, From: current, To: to}
	}

	order.Status = to
	order.UpdatedAt = time.Now()
	util.OrderTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()

	s.logger.Info("Order status changed",
		zap.Int64("order_id", order.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("trigger", trigger))

	if s.publisher != nil {
		event := &models.OrderStatusChangedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderStatusChanged,
				Timestamp: time.Now(),
			},
			OrderID: order.ID,
			From:    from,
			To:      to,
			Trigger: trigger,
		}
		if err := s.publisher.PublishOrderStatusChanged(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
		}
	}
	return nil
}

func (s *LifecycleService) ownedOrder(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.OwnedBy(userID) {
		return nil, fmt.Errorf("order %d: %w", orderID, store.ErrNotFound)
	}
	return order, nil
}

func (s *LifecycleService) details(ctx context.Context, order *models.Order) (*OrderDetails, error) {
	items, err := s.repo.GetOrderItemsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return &OrderDetails{Order: order, Items: items}, nil
}
