package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront-checkout/internal/service"
	"storefront-checkout/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configure the HTTP surface.
type Options struct {
	FrontendURL string
	// JWTSecret enables bearer token checks on checkout when set.
	JWTSecret  string
	AdminToken string
}

// Handler contains HTTP handlers
type Handler struct {
	checkout *service.CheckoutService
	orders   *service.OrderService
	payments *service.PaymentService
	db       Pinger
	opts     Options
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(checkout *service.CheckoutService, orders *service.OrderService, payments *service.PaymentService, db Pinger, opts Options) *Handler {
	return &Handler{
		checkout: checkout,
		orders:   orders,
		payments: payments,
		db:       db,
		opts:     opts,
		logger:   util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/payment", bearerAuth(h.opts.JWTSecret), h.createPayment)
	router.POST("/confirmacion", h.confirmation)
	router.GET("/respuesta", h.paymentReturn)

	orders := router.Group("/orders")
	{
		orders.GET("/:id", bearerAuth(h.opts.JWTSecret), h.getOrder)
		orders.GET("/:id/payment", bearerAuth(h.opts.JWTSecret), h.getPayment)
		orders.DELETE("/:id", adminOnly(h.opts.AdminToken), h.purgeOrder)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings the database
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unavailable",
				"time":   time.Now().Unix(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func orderIDParam(c *gin.Context) (int64, bool) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || orderID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid_order_id",
		})
		return 0, false
	}
	return orderID, true
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	order, items, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !h.ownedBy(c, order.UserID) {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"items": items,
	})
}

// getPayment returns the payment recorded for an order
func (h *Handler) getPayment(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	payment, err := h.orders.GetPayment(c.Request.Context(), orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !h.ownedBy(c, payment.UserID) {
		return
	}

	c.JSON(http.StatusOK, payment)
}

// ownedBy writes 403 unless the bearer subject, when there is one, owns the
// record.
func (h *Handler) ownedBy(c *gin.Context, userID string) bool {
	if sub := tokenSubject(c); sub != "" && sub != userID {
		h.writeError(c, &service.AuthorizationError{Reason: "order belongs to another user"})
		return false
	}
	return true
}

func (h *Handler) purgeOrder(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	if err := h.orders.PurgeOrder(c.Request.Context(), orderID); err != nil {
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
