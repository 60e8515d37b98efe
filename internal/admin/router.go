package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"switchyard/internal/logger"
	"switchyard/pkg/health"
	"switchyard/pkg/middleware"
	"switchyard/pkg/ratelimit"
	"switchyard/pkg/tracing"
)

type RouterConfig struct {
	ServiceName string
	Tracing     bool
	// RateLimit limits every route when set.
	RateLimit *ratelimit.RateLimitConfig
	Health    *health.CheckerRegistry
	Logger    logger.Logger
	// Done stops background work owned by the router.
	Done <-chan struct{}
}

// NewRouter builds the gin engine serving /health, /metrics and, when h is
// not nil, the API and its swagger UI.
func NewRouter(cfg RouterConfig, h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if cfg.Tracing {
		router.Use(tracing.GinMiddleware(cfg.ServiceName))
	}

	router.Use(middleware.RecoveryMiddleware(cfg.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(cfg.Logger))

	if cfg.RateLimit != nil {
		router.Use(ratelimit.RateLimitMiddleware(*cfg.RateLimit, cfg.Done))
		cfg.Logger.Infow("Rate limiting enabled", "rps", cfg.RateLimit.RPS, "burst", cfg.RateLimit.Burst)
	}

	if h != nil {
		h.RegisterRoutes(router)
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registry := cfg.Health
	if registry == nil {
		registry = health.NewCheckerRegistry()
	}
	router.GET("/health", func(c *gin.Context) {
		res := registry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if res.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, res)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
