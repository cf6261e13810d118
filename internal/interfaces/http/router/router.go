// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"inknote-ai-api/internal/config"
	"inknote-ai-api/internal/interfaces/http/handler"
	"inknote-ai-api/internal/interfaces/http/middleware"
)

// Handlers 路由依赖的全部处理器
type Handlers struct {
	Health  *handler.HealthHandler
	Project *handler.ProjectHandler
	Unit    *handler.UnitHandler
	Style   *handler.StyleHandler
	Credit  *handler.CreditHandler
}

// New 构建 gin 引擎并注册全部路由
func New(cfg *config.Config, handlers *Handlers, limiter middleware.RateLimiter) *gin.Engine {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestID())
	if cfg.Observability.Tracing.Enabled {
		engine.Use(middleware.Trace(cfg.App.Name))
		engine.Use(middleware.TraceContext())
	}
	engine.Use(middleware.Metrics())
	engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: cfg.Security.CORS.AllowedHeaders,
	}))
	engine.Use(middleware.Auth(middleware.AuthConfig{
		Secret:    cfg.Security.JWT.Secret,
		Issuer:    cfg.Security.JWT.Issuer,
		SkipPaths: middleware.DefaultSkipPaths,
		Enabled:   cfg.Security.JWT.Enabled,
	}))
	engine.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Enabled:           cfg.Security.RateLimit.Enabled,
		RequestsPerSecond: cfg.Security.RateLimit.RequestsPerSecond,
		Burst:             cfg.Security.RateLimit.Burst,
	}, limiter))

	registerRoutes(engine, cfg, handlers)

	return engine
}

func registerRoutes(engine *gin.Engine, cfg *config.Config, h *Handlers) {
	engine.GET("/health", h.Health.Health)
	engine.GET("/ready", h.Health.Ready)
	engine.GET("/live", h.Health.Live)

	if cfg.Observability.Metrics.Enabled {
		path := cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		engine.GET(path, gin.WrapH(promhttp.Handler()))
	}

	v1 := engine.Group("/v1")
	{
		v1.GET("/styles", h.Style.List)

		projects := v1.Group("/projects")
		{
			projects.POST("", h.Project.Create)
			projects.GET("", h.Project.List)
			projects.GET("/:pid", h.Project.Get)
			projects.DELETE("/:pid", h.Project.Delete)
			projects.POST("/:pid/generate", h.Project.Generate)
			projects.GET("/:pid/progress", h.Project.Progress)
		}

		units := v1.Group("/units")
		{
			units.GET("/:uid", h.Unit.Get)
			units.POST("/:uid/regenerate", h.Unit.Regenerate)
			units.POST("/:uid/regenerate/custom", h.Unit.RegenerateCustom)
		}

		credits := v1.Group("/credits")
		{
			credits.GET("/balance", h.Credit.Balance)
			credits.POST("/grant", h.Credit.Grant)
		}
	}
}
