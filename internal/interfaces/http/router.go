// Package http assembles the gin engine and server of the MMP HTTP API.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-MMP/internal/interfaces/http/handlers"
	"github.com/turtacn/KeyIP-MMP/internal/interfaces/http/middleware"
)

const rateLimitCleanup = 5 * time.Minute

// RouterConfig holds the handlers and cross-cutting settings of the API.
// Health is required; every other dependency is optional.  Worker
// processes leave Run unset and serve probes only.
type RouterConfig struct {
	Mode   string
	Logger logging.Logger

	Health *handlers.HealthHandler
	Run    *handlers.RunHandler
	Query  *handlers.QueryHandler

	// MetricsHandler is mounted on /metrics when set.  Recorder receives
	// per-request observations.
	MetricsHandler http.Handler
	Recorder       middleware.HTTPRecorder

	MaxBodySize    int64
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewRouter builds the gin engine.  Optional query routes are mounted only
// when the backing sink is configured.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Recovery(logger))
	if cfg.Recorder != nil {
		r.Use(middleware.Metrics(cfg.Recorder))
	}
	r.Use(middleware.RequestLogging(logger, middleware.DefaultLoggingConfig()))

	r.GET("/healthz", cfg.Health.Liveness)
	r.GET("/readyz", cfg.Health.Readiness)
	if cfg.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	api := r.Group("/api/v1/mmp")
	if cfg.RateLimitRPS > 0 {
		limiter := middleware.NewTokenBucketLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, rateLimitCleanup)
		api.Use(middleware.RateLimit(limiter, middleware.RateLimitConfig{}, logger))
	}
	if cfg.Run != nil {
		api.POST("/runs", middleware.BodyLimit(cfg.MaxBodySize), cfg.Run.CreateRun)
	}

	if q := cfg.Query; q != nil {
		if q.Reports != nil {
			api.GET("/runs/:run_id/reports", q.GetRunReports)
		}
		if q.Ranker != nil {
			api.GET("/transforms/top", q.TopTransforms)
		}
		if q.Searcher != nil {
			api.GET("/transforms/search", q.SearchTransforms)
		}
		if q.Fingerprints != nil {
			api.POST("/fingerprints/similar", middleware.BodyLimit(cfg.MaxBodySize), q.SimilarFingerprints)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.ErrorResponse{Code: "COMMON_005", Message: "resource not found"})
	})
	return r
}
