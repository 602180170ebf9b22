package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services are the domain services the HTTP layer exposes.
type Services struct {
	Addresses *service.AddressService
	Orders    *service.OrderService
	Queries   *service.OrderQueryService
	Returns   *service.ReturnService
	Company   *service.CompanyService
	Locations *service.LocationService
	Stock     *service.StockCache
}

// Pinger is a dependency checked by /ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	Services
	readiness map[string]Pinger
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler. readiness names the dependencies
// /ready pings.
func NewHandler(svcs Services, readiness map[string]Pinger) *Handler {
	return &Handler{
		Services:  svcs,
		readiness: readiness,
		logger:    util.Named("http"),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(tracingMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	customer := v1.Group("", requireUser())
	{
		customer.GET("/addresses", h.listAddresses)
		customer.POST("/addresses", h.createAddress)
		customer.PUT("/addresses/:id", h.updateAddress)
		customer.DELETE("/addresses/:id", h.deleteAddress)
		customer.POST("/addresses/:id/preferred", h.setPreferredAddress)

		customer.GET("/orders", h.listOrders)
		customer.POST("/orders", h.placeOrder)
		customer.GET("/orders/:id", h.getOrder)
		customer.POST("/orders/:id/cancel", h.cancelOrder)

		customer.GET("/returns", h.listReturns)
		customer.GET("/returns/search-order", h.searchReturnableItems)
		customer.POST("/returns", h.createReturn)

		customer.PUT("/account/company", h.updateCompanyInfo)
	}

	locations := v1.Group("/locations")
	{
		locations.GET("/countries", h.listCountries)
		locations.GET("/countries/default", h.defaultCountry)
		locations.GET("/countries/:id/states", h.listStates)
		locations.GET("/states/:id/cities", h.listCities)
	}

	v1.GET("/products/:id/stock", h.productStock)

	admin := v1.Group("/admin", requireAdmin())
	{
		admin.GET("/returns", h.adminListReturns)
		admin.GET("/returns/:id", h.adminGetReturn)
		admin.PUT("/returns/:id/status", h.adminUpdateReturnStatus)
		admin.PUT("/returns/:id/refund", h.adminUpdateRefund)
		admin.PUT("/returns/:id/restock", h.adminUpdateRestock)
		admin.GET("/orders/:id", h.adminGetOrder)
		admin.PUT("/orders/:id/status", h.adminUpdateOrderStatus)
		admin.POST("/orders/:id/paid", h.adminMarkOrderPaid)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.readiness))
	ready := true
	for name, p := range h.readiness {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = "down"
			ready = false
			continue
		}
		checks[name] = "up"
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
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

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
