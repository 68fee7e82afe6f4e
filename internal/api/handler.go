package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"cart-sync/internal/cartsync"
	"cart-sync/internal/models"
	"cart-sync/internal/service"
	"cart-sync/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const contextUserID = "userID"

// CartService is the persistence surface the handlers drive
type CartService interface {
	GetCart(ctx context.Context, userID string) (models.Snapshot, error)
	ReplaceCart(ctx context.Context, userID string, snapshot models.Snapshot, idempotencyKey string) (*service.ReplaceResult, error)
	GetSummary(ctx context.Context, userID string) (models.ProfileSummary, error)
}

// Pinger is a dependency checked by the readiness endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	cartService CartService
	deps        map[string]Pinger
	logger      *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(cartService CartService, deps map[string]Pinger) *Handler {
	return &Handler{
		cartService: cartService,
		deps:        deps,
		logger:      util.ComponentLogger("api"),
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

	v1 := router.Group("/api/v1", requireUser())
	{
		v1.GET("/cart", h.getCart)
		v1.PUT("/cart", h.replaceCart)
		v1.GET("/profile/summary", h.getSummary)
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

	failed := gin.H{}
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// getCart returns the caller's snapshot
func (h *Handler) getCart(c *gin.Context) {
	snapshot, err := h.cartService.GetCart(c.Request.Context(), c.GetString(contextUserID))
	if err != nil {
		h.fail(c, err, "Failed to load cart")
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// replaceCart stores the full snapshot sent by the client
func (h *Handler) replaceCart(c *gin.Context) {
	var req models.Snapshot

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	result, err := h.cartService.ReplaceCart(
		c.Request.Context(),
		c.GetString(contextUserID),
		req,
		c.GetHeader(cartsync.HeaderIdempotencyKey),
	)
	if err != nil {
		h.fail(c, err, "Failed to store cart")
		return
	}

	if !result.Duplicate {
		c.Header(cartsync.HeaderCartVersion, strconv.FormatInt(result.Version, 10))
	}
	c.JSON(http.StatusOK, result.Snapshot)
}

// getSummary returns the caller's profile summary
func (h *Handler) getSummary(c *gin.Context) {
	summary, err := h.cartService.GetSummary(c.Request.Context(), c.GetString(contextUserID))
	if err != nil {
		h.fail(c, err, "Failed to load summary")
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *Handler) fail(c *gin.Context, err error, message string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrCartLocked):
		status = http.StatusConflict
	case errors.Is(err, service.ErrMissingUser):
		status = http.StatusUnauthorized
	default:
		h.logger.Error(message,
			zap.String("path", c.FullPath()),
			zap.String("user_id", c.GetString(contextUserID)),
			zap.Error(err))
	}

	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}

// requireUser rejects requests without an identity header
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(cartsync.HeaderUserID)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing " + cartsync.HeaderUserID + " header",
			})
			return
		}
		c.Set(contextUserID, userID)
		c.Next()
	}
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
