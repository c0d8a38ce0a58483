package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/notify"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CheckoutService turns a user's cart into a committed order
type CheckoutService struct {
	repo      Repository
	ledger    *StockLedger
	publisher EventPublisher
	notifier  notify.Sender
	baseURL   string
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	repo Repository,
	ledger *StockLedger,
	publisher EventPublisher,
	notifier notify.Sender,
	publicBaseURL string,
) *CheckoutService {
	return &CheckoutService{
		repo:      repo,
		ledger:    ledger,
		publisher: publisher,
		notifier:  notifier,
		baseURL:   strings.TrimRight(publicBaseURL, "/"),
		logger:    util.GetLogger(),
	}
}

// CheckoutRequest represents a request to check out a cart
type CheckoutRequest struct {
	UserID         int64  `json:"-"`
	Address        string `json:"address" binding:"required"`
	NotifyEmail    string `json:"notify_email,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// CheckoutResult is the committed order
type CheckoutResult struct {
	Order    *models.Order      `json:"order"`
	Items    []models.OrderItem `json:"items"`
	Replayed bool               `json:"replayed"`
}

// Checkout validates the cart, reserves stock and commits the order as one unit.
// Confirmation code, event and notification are attempted after commit and
// never fail the checkout.
func (s *CheckoutService) Checkout(ctx context.Context, req *CheckoutRequest) (result *CheckoutResult, err error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer func() { util.EndSpan(span, err) }()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
		util.CheckoutsTotal.WithLabelValues(checkoutOutcome(result, err)).Inc()
	}()

	if strings.TrimSpace(req.Address) == "" {
		return nil, invalidInput("address is required")
	}

	if req.IdempotencyKey != "" {
		if replay, err := s.replay(ctx, req.UserID, req.IdempotencyKey); err != nil || replay != nil {
			return replay, err
		}
	}

	lines, err := s.repo.ListCartLines(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	for _, line := range lines {
		if line.Quantity > line.ProductStock {
			util.StockConflictsTotal.WithLabelValues("precheck").Inc()
			return nil, &InsufficientStockError{
				ProductID:   line.ProductID,
				ProductName: line.ProductName,
				Available:   line.ProductStock,
				Requested:   line.Quantity,
			}
		}
	}

	order, items, err := s.commit(ctx, req)
	if err != nil {
		// a concurrent request with the same key won the race
		if req.IdempotencyKey != "" && (errors.Is(err, store.ErrDuplicateKey) || errors.Is(err, ErrEmptyCart)) {
			if replay, rerr := s.replay(ctx, req.UserID, req.IdempotencyKey); rerr == nil && replay != nil {
				return replay, nil
			}
		}
		if errors.Is(err, store.ErrLockTimeout) {
			util.LockTimeoutsTotal.Inc()
		}
		return nil, err
	}

	s.logger.Info("Order committed",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", req.UserID),
		zap.String("total", order.TotalAmount.StringFixed(2)))

	s.afterCommit(context.WithoutCancel(ctx), order, items, req.NotifyEmail)

	return &CheckoutResult{Order: order, Items: items}, nil
}

// commit runs the locked section: cart rows, then products in ascending id
// order, re-check, order + items, stock decrement, cart clear.
func (s *CheckoutService) commit(ctx context.Context, req *CheckoutRequest) (*models.Order, []models.OrderItem, error) {
	var (
		order *models.Order
		items []models.OrderItem
	)

	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		cart, err := tx.LockCart(ctx, req.UserID)
		if err != nil {
			return err
		}
		// a concurrent checkout of the same cart committed first
		if len(cart) == 0 {
			return ErrEmptyCart
		}

		ids := make([]int64, len(cart))
		for i, item := range cart {
			ids[i] = item.ProductID
		}

		locked, err := tx.LockProductsForUpdate(ctx, ids)
		if err != nil {
			return err
		}

		total := decimal.Zero
		for _, item := range cart {
			p, ok := locked[item.ProductID]
			if !ok {
				return fmt.Errorf("product %d: %w", item.ProductID, store.ErrNotFound)
			}
			if item.Quantity > p.Stock {
				util.StockConflictsTotal.WithLabelValues("locked").Inc()
				return &InsufficientStockError{
					ProductID:   p.ID,
					ProductName: p.Name,
					Available:   p.Stock,
					Requested:   item.Quantity,
				}
			}
			total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}

		userID := req.UserID
		order = &models.Order{
			UserID:      &userID,
			TotalAmount: total,
			Address:     req.Address,
			Status:      models.OrderStatusPaid,
		}
		if req.IdempotencyKey != "" {
			key := req.IdempotencyKey
			order.IdempotencyKey = &key
		}

		if err := tx.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		items = make([]models.OrderItem, 0, len(cart))
		for _, item := range cart {
			p := locked[item.ProductID]
			productID := p.ID
			orderItem := models.OrderItem{
				OrderID:     order.ID,
				ProductID:   &productID,
				ProductName: p.Name,
				Quantity:    item.Quantity,
				UnitPrice:   p.Price,
			}
			if err := tx.CreateOrderItem(ctx, &orderItem); err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}
			if err := s.ledger.Reserve(ctx, tx, p, item.Quantity); err != nil {
				return err
			}
			items = append(items, orderItem)
		}

		return tx.ClearCart(ctx, req.UserID)
	})
	if err != nil {
		return nil, nil, err
	}

	return order, items, nil
}

// replay returns the user's order committed earlier under key, or nil.
// Keys are scoped per user: another user's key never matches.
func (s *CheckoutService) replay(ctx context.Context, userID int64, key string) (*CheckoutResult, error) {
	existing, err := s.repo.GetOrderByIdempotencyKey(ctx, userID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existing == nil {
		return nil, nil
	}

	s.logger.Info("Duplicate checkout request detected",
		zap.Int64("user_id", userID),
		zap.String("idempotency_key", key),
		zap.Int64("order_id", existing.ID))

	items, err := s.repo.GetOrderItemsByOrderID(ctx, existing.ID)
	if err != nil {
		return nil, err
	}
	return &CheckoutResult{Order: existing, Items: items, Replayed: true}, nil
}

func (s *CheckoutService) afterCommit(ctx context.Context, order *models.Order, items []models.OrderItem, email string) {
	code := NewConfirmCode()
	if err := s.repo.SetConfirmCode(ctx, order.ID, code); err != nil {
		util.PostCommitFailuresTotal.WithLabelValues("confirm_code").Inc()
		s.logger.Error("Failed to store confirm code", zap.Int64("order_id", order.ID), zap.Error(err))
		code = ""
	} else {
		order.ConfirmCode = code
	}

	if s.publisher != nil {
		if err := s.publisher.PublishOrderPaid(ctx, orderPaidEvent(order, items)); err != nil {
			util.PostCommitFailuresTotal.WithLabelValues("event").Inc()
			s.logger.Error("Failed to publish OrderPaid event", zap.Int64("order_id", order.ID), zap.Error(err))
		}
	}

	if s.notifier == nil || email == "" || code == "" {
		return
	}

	subject := fmt.Sprintf("Order #%d confirmed", order.ID)
	body := fmt.Sprintf("Thank you for your order of %s.\nConfirm delivery at %s\n",
		order.TotalAmount.StringFixed(2), s.ConfirmURL(order.ID, code))
	if err := s.notifier.Send(ctx, email, subject, body); err != nil {
		util.PostCommitFailuresTotal.WithLabelValues("notification").Inc()
		s.logger.Error("Failed to send order notification", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

// ConfirmURL builds the shipment confirmation link for an order
func (s *CheckoutService) ConfirmURL(orderID int64, code string) string {
	return fmt.Sprintf("%s/api/v1/orders/%d/confirm/%s", s.baseURL, orderID, code)
}

// NewConfirmCode returns a random 32 character hex token
func NewConfirmCode() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func orderPaidEvent(order *models.Order, items []models.OrderItem) *models.OrderPaidEvent {
	data := make([]models.OrderItemData, 0, len(items))
	for _, it := range items {
		var productID int64
		if it.ProductID != nil {
			productID = *it.ProductID
		}
		data = append(data, models.OrderItemData{
			ProductID: productID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	var userID int64
	if order.UserID != nil {
		userID = *order.UserID
	}

	return &models.OrderPaidEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPaid,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		UserID:      userID,
		TotalAmount: order.TotalAmount,
		Items:       data,
	}
}

func checkoutOutcome(result *CheckoutResult, err error) string {
	var stockErr *InsufficientStockError
	switch {
	case err == nil && result != nil && result.Replayed:
		return "replayed"
	case err == nil:
		return "committed"
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.As(err, &stockErr):
		return "insufficient_stock"
	case errors.Is(err, store.ErrLockTimeout):
		return "lock_timeout"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}
