package api

import (
	"net/http"
	"strconv"
	"strings"

	"checkout-service/internal/models"
	"checkout-service/internal/service"

	"github.com/gin-gonic/gin"
)

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.svc.Catalog.ListProducts(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	p, err := h.svc.Catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.ProductInput
	if !bindJSON(c, &req) {
		return
	}

	p, err := h.svc.Catalog.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req service.ProductPatch
	if !bindJSON(c, &req) {
		return
	}

	p, err := h.svc.Catalog.UpdateProduct(c.Request.Context(), id, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.svc.Catalog.DeleteProduct(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// listAllOrders accepts ?status=paid,shipped and ?realized=true
func (h *Handler) listAllOrders(c *gin.Context) {
	var filter service.OrderFilter

	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, models.OrderStatus(strings.TrimSpace(s)))
		}
	}
	if raw := c.Query("realized"); raw != "" {
		realized, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid realized flag"})
			return
		}
		filter.Realized = realized
	}

	orders, err := h.svc.Orders.ListAllOrders(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getOrderAdmin(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	details, err := h.svc.Orders.GetOrderAdmin(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *Handler) overrideOrderStatus(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req statusRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.svc.Orders.OverrideStatus(c.Request.Context(), id, models.OrderStatus(req.Status))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
