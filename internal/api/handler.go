package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"checkout-service/internal/service"
	"checkout-service/internal/util"
	"checkout-service/internal/verification"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by the readiness endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the operations exposed over HTTP.
// Verification may be nil when Redis is disabled.
type Services struct {
	Catalog      *service.CatalogService
	Carts        *service.CartService
	Checkout     *service.CheckoutService
	Orders       *service.LifecycleService
	Accounts     *service.AccountService
	Verification *verification.Service
}

// Handler contains HTTP handlers
type Handler struct {
	svc    Services
	checks map[string]Pinger
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, checks map[string]Pinger) *Handler {
	return &Handler{
		svc:    svc,
		checks: checks,
		logger: util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)

		v1.GET("/orders/:id/confirm/:code", h.confirmShipmentByCode)

		v1.POST("/verification-codes", h.issueVerificationCode)
		v1.POST("/verification-codes/verify", h.verifyCode)

		users := v1.Group("/users/:userID")
		{
			users.DELETE("", h.deleteUser)

			users.GET("/cart", h.getCart)
			users.DELETE("/cart", h.clearCart)
			users.POST("/cart/items", h.addCartItem)
			users.PUT("/cart/items/:itemID", h.setCartItemQuantity)
			users.DELETE("/cart/items/:itemID", h.removeCartItem)

			users.POST("/checkout", h.checkout)

			users.GET("/orders", h.listOrders)
			users.GET("/orders/:id", h.getOrder)
			users.POST("/orders/:id/confirm-shipment", h.confirmShipment)
		}

		admin := v1.Group("/admin")
		{
			admin.POST("/products", h.createProduct)
			admin.PUT("/products/:id", h.updateProduct)
			admin.DELETE("/products/:id", h.deleteProduct)

			admin.GET("/orders", h.listAllOrders)
			admin.GET("/orders/:id", h.getOrderAdmin)
			admin.PUT("/orders/:id/status", h.overrideOrderStatus)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			deps[name] = err.Error()
			continue
		}
		deps[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}

	c.JSON(status, gin.H{
		"status":       state,
		"dependencies": deps,
		"time":         time.Now().Unix(),
	})
}

// idParam parses a positive integer path parameter, answering 400 otherwise
func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid " + name,
		})
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return false
	}
	return true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
