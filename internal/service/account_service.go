package service

import (
	"context"
	"fmt"

	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// AccountService handles the order-side effects of deleting a user
type AccountService struct {
	tx     TxRunner
	logger *zap.Logger
}

// NewAccountService creates a new account service
func NewAccountService(tx TxRunner) *AccountService {
	return &AccountService{tx: tx, logger: util.GetLogger()}
}

// DetachUser empties the user's cart and orphans their orders in one
// transaction. Orders themselves are kept.
func (s *AccountService) DetachUser(ctx context.Context, userID int64) error {
	ctx, span := util.StartSpan(ctx, "AccountService.DetachUser")
	defer span.End()

	err := s.tx.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.ClearCart(ctx, userID); err != nil {
			return err
		}
		return tx.DetachOrders(ctx, userID)
	})
	if err != nil {
		return fmt.Errorf("failed to detach user %d: %w", userID, err)
	}

	s.logger.Info("User detached from orders", zap.Int64("user_id", userID))
	return nil
}
