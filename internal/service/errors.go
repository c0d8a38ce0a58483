package service

import (
	"errors"
	"fmt"

	"checkout-service/internal/models"
)

var (
	// ErrEmptyCart is returned when checking out a cart with no lines
	ErrEmptyCart = errors.New("cart is empty")
	// ErrOutOfStock is returned when adding a new cart line for more than is in stock
	ErrOutOfStock = errors.New("product out of stock")
	// ErrInvalidTransition is wrapped by every *InvalidTransitionError
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidToken is returned when a shipment confirmation code does not match
	ErrInvalidToken = errors.New("invalid confirmation code")
	// ErrInvalidStatus is returned for status values outside the enumeration
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrInvalidInput is returned for malformed requests
	ErrInvalidInput = errors.New("invalid input")
)

// InsufficientStockError reports the product whose stock cannot cover a request
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: requested %d, available %d",
		e.ProductName, e.Requested, e.Available)
}

// OverstockError is returned when a cart quantity exceeds what is in stock
type OverstockError struct {
	ProductID int64
	Max       int
}

func (e *OverstockError) Error() string {
	return fmt.Sprintf("quantity exceeds available stock, max %d", e.Max)
}

// InvalidTransitionError reports a rejected status change
type InvalidTransitionError struct {
	OrderID int64
	From    models.OrderStatus
	To      models.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %d: cannot move from %s to %s", e.OrderID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
