package api

import (
	"net/http"

	"checkout-service/internal/service"

	"github.com/gin-gonic/gin"
)

// checkout handles order creation from the user's cart
func (h *Handler) checkout(c *gin.Context) {
	userID, ok := idParam(c, "userID")
	if !ok {
		return
	}

	var req service.CheckoutRequest
	if !bindJSON(c, &req) {
		return
	}
	req.UserID = userID

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	res, err := h.svc.Checkout.Checkout(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

func (h *Handler) listOrders(c *gin.Context) {
	userID, ok := idParam(c, "userID")
	if !ok {
		return
	}

	orders, err := h.svc.Orders.ListOrders(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getOrder(c *gin.Context) {
	userID, ok := idParam(c, "userID")
	if !ok {
		return
	}
	orderID, ok := idParam(c, "id")
	if !ok {
		return
	}

	details, err := h.svc.Orders.GetOrder(c.Request.Context(), userID, orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, details)
}

func (h *Handler) confirmShipment(c *gin.Context) {
	userID, ok := idParam(c, "userID")
	if !ok {
		return
	}
	orderID, ok := idParam(c, "id")
	if !ok {
		return
	}

	order, err := h.svc.Orders.ConfirmShipment(c.Request.Context(), userID, orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// confirmShipmentByCode is the target of the emailed confirmation link
func (h *Handler) confirmShipmentByCode(c *gin.Context) {
	orderID, ok := idParam(c, "id")
	if !ok {
		return
	}

	order, err := h.svc.Orders.ConfirmShipmentByCode(c.Request.Context(), orderID, c.Param("code"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id": order.ID,
		"status":   order.Status,
	})
}
