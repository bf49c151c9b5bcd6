package router

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/mealtracker/backend/internal/domain/identity"
	"github.com/mealtracker/backend/internal/infrastructure/auth"
	"github.com/mealtracker/backend/internal/infrastructure/config"
	"github.com/mealtracker/backend/internal/infrastructure/logger"
	"github.com/mealtracker/backend/internal/interfaces/http/handler"
	"github.com/mealtracker/backend/internal/interfaces/http/middleware"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// EngineConfig holds everything needed to assemble the HTTP engine
type EngineConfig struct {
	ServiceName      string
	HTTP             config.HTTPConfig
	SwaggerEnabled   bool
	TracingEnabled   bool
	ProfilingEnabled bool
	// Meter enables HTTP metrics when set
	Meter  metric.Meter
	Logger *zap.Logger

	JWTService  *auth.JWTService
	Revocations auth.RevocationList

	Products handler.ProductService
	Outbox   handler.OutboxService
	System   *handler.SystemHandler
}

// NewEngine builds the gin engine with the middleware chain and every route.
//
// Middleware order:
//  1. RequestID - correlation id for logs, traces and error bodies
//  2. Recovery - turn panics into 500
//  3. Tracing - server span per request
//  4. Logger - one access log line per request
//  5. Secure, CORS, BodyLimit
//  6. Metrics and profiling labels
//
// Routes under /api/v1 additionally resolve the caller's principal.
func NewEngine(cfg EngineConfig) (*gin.Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: cfg.ServiceName,
		Enabled:     cfg.TracingEnabled,
	}))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfigFrom(cfg.HTTP)))
	if cfg.HTTP.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	}
	if cfg.Meter != nil {
		httpMetrics, err := middleware.HTTPMetrics(cfg.Meter)
		if err != nil {
			return nil, fmt.Errorf("http metrics: %w", err)
		}
		engine.Use(httpMetrics)
	}
	if cfg.ProfilingEnabled {
		profiling := middleware.DefaultProfilingConfig()
		profiling.Enabled = true
		engine.Use(middleware.Profiling(profiling))
	}

	if cfg.System != nil {
		engine.GET("/health", cfg.System.Health)
		engine.GET("/ready", cfg.System.Ready)
	}
	if cfg.SwaggerEnabled {
		engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r := NewRouter(engine, WithAPIVersion("v1"))
	r.Use(
		middleware.PrincipalResolver(middleware.PrincipalResolverConfig{
			JWTService:  cfg.JWTService,
			Revocations: cfg.Revocations,
			Logger:      log,
		}),
		middleware.SpanEnricher(),
	)

	if cfg.Products != nil {
		r.Register(productRoutes(handler.NewProductHandler(cfg.Products)))
	}
	if cfg.Outbox != nil {
		r.Register(outboxRoutes(handler.NewOutboxHandler(cfg.Outbox)))
	}
	r.Setup()

	return engine, nil
}

func productRoutes(h *handler.ProductHandler) *DomainGroup {
	products := NewDomainGroup("products", "/products")
	products.POST("", h.CreateGlobal)
	products.POST("/custom", h.CreateCustom)
	products.GET("", h.Search)
	products.GET("/:id", h.GetByID)
	products.PUT("/:id", h.Update)
	products.DELETE("/:id", h.Delete)
	return products
}

func outboxRoutes(h *handler.OutboxHandler) *DomainGroup {
	system := NewDomainGroup("system", "/system")
	outbox := system.Group("outbox", "/outbox").Use(middleware.RequireRole(identity.RoleAdmin))
	outbox.GET("/stats", h.GetStats)
	outbox.GET("/dead", h.GetDeadLetterEntries)
	outbox.POST("/dead/retry-all", h.RetryAllDeadEntries)
	outbox.GET("/:id", h.GetEntry)
	outbox.POST("/:id/retry", h.RetryDeadEntry)
	return system
}
