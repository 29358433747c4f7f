// Package router assembles the local sync API served to the UI shell.
package router

import (
	"time"

	"github.com/erp/client/internal/infrastructure/logger"
	"github.com/erp/client/internal/interfaces/http/handler"
	"github.com/erp/client/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Config controls the middleware stack of the local API
type Config struct {
	APIVersion       string
	ServiceName      string
	TracingEnabled   bool
	CORSAllowOrigins []string
	MaxBodySize      int64 // zero means 1MB
}

// Handlers are the route handlers mounted by New
type Handlers struct {
	Entities *handler.EntityHandler
	Sync     *handler.SyncHandler
}

// New builds the gin engine with all routes under /api/<version>
func New(cfg Config, h Handlers, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v1"
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 1 << 20
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.CORSAllowOrigins

	engine := gin.New()
	engine.Use(
		logger.Recovery(log),
		middleware.RequestID(),
		logger.GinMiddleware(log),
		middleware.Tracing(cfg.ServiceName, cfg.TracingEnabled),
		middleware.SpanEnricher(),
		middleware.CORSWithConfig(cors),
		middleware.BodyLimit(cfg.MaxBodySize),
	)

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	api := engine.Group("/api/" + cfg.APIVersion)

	if h.Entities != nil {
		entities := api.Group("/entities/:entity")
		entities.GET("", h.Entities.List)
		entities.POST("", h.Entities.Create)
		entities.GET("/stream", h.Entities.Stream)
		entities.GET("/:id", h.Entities.Get)
		entities.PUT("/:id", h.Entities.Update)
		entities.DELETE("/:id", h.Entities.Delete)
	}

	if h.Sync != nil {
		sync := api.Group("/sync")
		sync.GET("/status", h.Sync.Status)
		sync.GET("/stream", h.Sync.Stream)
		sync.POST("/flush", h.Sync.Flush)
		sync.GET("/pending", h.Sync.Pending)
		sync.DELETE("/pending/:id", h.Sync.Discard)

		api.POST("/connectivity", h.Sync.SetConnectivity)
		api.GET("/offline/can/:action", h.Sync.CanPerform)
	}

	return engine
}
