package api

import (
	"errors"
	"net/http"

	"checkout-service/internal/service"
	"checkout-service/internal/store"
	"checkout-service/internal/verification"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeError maps domain errors onto HTTP responses
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		stockErr *service.InsufficientStockError
		overErr  *service.OverstockError
		transErr *service.InvalidTransitionError
	)

	switch {
	case errors.As(err, &stockErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":      "Insufficient stock",
			"details":    err.Error(),
			"product_id": stockErr.ProductID,
			"product":    stockErr.ProductName,
			"available":  stockErr.Available,
			"requested":  stockErr.Requested,
		})
	case errors.As(err, &overErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":      "Quantity exceeds available stock",
			"details":    err.Error(),
			"product_id": overErr.ProductID,
			"max":        overErr.Max,
		})
	case errors.As(err, &transErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Invalid status transition",
			"details": err.Error(),
			"from":    transErr.From,
			"to":      transErr.To,
		})
	case errors.Is(err, service.ErrOutOfStock):
		c.JSON(http.StatusConflict, gin.H{"error": "Out of stock", "details": err.Error()})
	case errors.Is(err, store.ErrDuplicateKey):
		c.JSON(http.StatusConflict, gin.H{"error": "Conflict", "details": err.Error()})
	case errors.Is(err, service.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cart is empty"})
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, verification.ErrInvalidSubject):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found", "details": err.Error()})
	case errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, verification.ErrInvalidCode),
		errors.Is(err, verification.ErrCodeExpired):
		c.JSON(http.StatusForbidden, gin.H{"error": "Invalid or expired code"})
	case errors.Is(err, verification.ErrCooldown):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests", "details": err.Error()})
	case errors.Is(err, store.ErrLockTimeout):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Busy, try again"})
	default:
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}
