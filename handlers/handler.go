package handlers

import (
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mehra/filevault-backend/access"
	"github.com/mehra/filevault-backend/anomaly"
	"github.com/mehra/filevault-backend/apierror"
	"github.com/mehra/filevault-backend/audit"
	"github.com/mehra/filevault-backend/auth"
	"github.com/mehra/filevault-backend/auth/middleware"
	"github.com/mehra/filevault-backend/capability"
	"github.com/mehra/filevault-backend/config"
	"github.com/mehra/filevault-backend/issuer"
	"github.com/mehra/filevault-backend/metrics"
	"github.com/mehra/filevault-backend/ratelimit"
	"github.com/mehra/filevault-backend/storage"
)

type Handler struct {
	cfg      config.Config
	store    storage.Store
	engine   *access.Engine
	codec    *capability.Codec
	issuer   *issuer.Service
	detector *anomaly.Detector
	sink     *audit.Sink
	limiter  ratelimit.Limiter
	tokens   *auth.Manager
	logger   *log.Logger
}

func New(
	cfg config.Config,
	store storage.Store,
	engine *access.Engine,
	codec *capability.Codec,
	issuerService *issuer.Service,
	detector *anomaly.Detector,
	sink *audit.Sink,
	limiter ratelimit.Limiter,
	tokens *auth.Manager,
	logger *log.Logger,
) *Handler {
	return &Handler{
		cfg:      cfg,
		store:    store,
		engine:   engine,
		codec:    codec,
		issuer:   issuerService,
		detector: detector,
		sink:     sink,
		limiter:  limiter,
		tokens:   tokens,
		logger:   logger,
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	apiErr := apierror.From(err)
	if apiErr.Code == apierror.CodeInternal {
		h.logger.Error("request failed", "path", c.FullPath(), "err", err)
	}
	c.JSON(apiErr.HTTPStatus(), gin.H{"error": apiErr.Message})
}

// RateLimit enforces one fixed-window budget and always sets the
// X-RateLimit-* headers, allowed or not.
func (h *Handler) RateLimit(purpose string, budget config.RateBudget, key func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := h.limiter.CheckAndConsume(ratelimit.Key(purpose, key(c)), budget.Max, budget.Window)

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			metrics.RateLimitDenials.WithLabelValues(purpose).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// KeyByIP buckets a budget by client address.
func KeyByIP(c *gin.Context) string {
	return c.ClientIP()
}

// KeyByUser buckets by authenticated user, falling back to the address for
// anonymous callers.
func KeyByUser(c *gin.Context) string {
	if userID, ok := c.Get(middleware.UserIDKey); ok {
		return userID.(uuid.UUID).String()
	}
	return c.ClientIP()
}
