package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type addCartItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	// Quantity defaults to 1
	Quantity *int `json:"quantity"`
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

func (h *Handler) getCart(c *gin.Context) {
	userID, ok := idParam(c, "userID")
	if !ok {
		return
	}

	view, err := h.svc.Carts.View(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *Handler) addCartItem(c *gin.Context) {
	userID, ok := idParam(c, "userID")
	if !ok {
		return
	}

	var req addCartItemRequest
	if !bindJSON(c, &req) {
		return
	}

	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	line, err := h.svc.Carts.Add(c.Request.Context(), userID, req.ProductID, qty)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, line)
}

func (h *Handler) setCartItemQuantity(c *gin.Context) {
	userID, ok := idParam(c, "userID")
	if !ok {
		return
	}
	itemID, ok := idParam(c, "itemID")
	if !ok {
		return
	}

	var req setQuantityRequest
	if !bindJSON(c, &req) {
		return
	}

	upd, err := h.svc.Carts.SetQuantity(c.Request.Context(), userID, itemID, *req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, upd)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	userID, ok := idParam(c, "userID")
	if !ok {
		return
	}
	itemID, ok := idParam(c, "itemID")
	if !ok {
		return
	}

	if err := h.svc.Carts.Remove(c.Request.Context(), userID, itemID); err != nil {
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) clearCart(c *gin.Context) {
	userID, ok := idParam(c, "userID")
	if !ok {
		return
	}

	if err := h.svc.Carts.Clear(c.Request.Context(), userID); err != nil {
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteUser(c *gin.Context) {
	userID, ok := idParam(c, "userID")
	if !ok {
		return
	}

	if err := h.svc.Accounts.DetachUser(c.Request.Context(), userID); err != nil {
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
