package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	catalogapp "github.com/mealtracker/backend/internal/application/catalog"
	eventapp "github.com/mealtracker/backend/internal/application/event"
	snapshotapp "github.com/mealtracker/backend/internal/application/snapshot"
	"github.com/mealtracker/backend/internal/domain/shared"
	"github.com/mealtracker/backend/internal/infrastructure/auth"
	"github.com/mealtracker/backend/internal/infrastructure/cache"
	"github.com/mealtracker/backend/internal/infrastructure/config"
	"github.com/mealtracker/backend/internal/infrastructure/event"
	"github.com/mealtracker/backend/internal/infrastructure/logger"
	"github.com/mealtracker/backend/internal/infrastructure/migration"
	"github.com/mealtracker/backend/internal/infrastructure/persistence"
	"github.com/mealtracker/backend/internal/infrastructure/telemetry"
	"github.com/mealtracker/backend/internal/interfaces/http/handler"
	"github.com/mealtracker/backend/internal/interfaces/http/middleware"
	"github.com/mealtracker/backend/internal/interfaces/http/router"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/mealtracker/backend/docs"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

//	@title			Catalog API
//	@version		1.0
//	@description	Product catalog for the meal tracker: global and private products, search and snapshot replication.

//	@contact.name	API Support
//	@contact.url	https://github.com/mealtracker/backend

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output}
	log := logger.New(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// OTLP log export tees into the same logger
	logProvider, err := telemetry.NewLoggerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize log exporter", zap.Error(err))
	}
	if core := logProvider.ZapCore(logger.ParseLevel(cfg.Log.Level)); core != nil {
		log = logger.New(logCfg, core)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting catalog service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	tracerProvider, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	meter := meterProvider.Meter(cfg.Telemetry.ServiceName)

	profiler, err := telemetry.NewProfiler(cfg.Profiling, cfg.Telemetry.ServiceName, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}

	if cfg.Database.MigrateOnStart {
		if err := runMigrations(&cfg.Database, log); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := telemetry.RegisterDBTracing(db.DB, cfg.Telemetry, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	if sqlDB, err := db.DB.DB(); err == nil {
		if _, err := telemetry.RegisterDBPoolMetrics(meter, sqlDB); err != nil {
			log.Warn("Failed to register database pool metrics", zap.Error(err))
		}
	}
	log.Info("Database connected successfully")

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.String("addr", cfg.Redis.Addr()), zap.Error(err))
		}
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	// Product cache
	cacheMetrics, err := telemetry.NewCacheMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create cache metrics", zap.Error(err))
	}
	var cacheClient redis.UniversalClient
	if redisClient != nil {
		cacheClient = redisClient
	}
	productCache, tieredCache, err := cache.NewProductCache(cfg.Cache, cacheClient, log, cacheMetrics)
	if err != nil {
		log.Fatal("Failed to create product cache", zap.Error(err))
	}

	// Events
	eventSerializer := event.NewEventSerializer()
	event.RegisterCatalogEvents(eventSerializer)
	outboxRepo := event.NewGormOutboxRepository(db.DB)
	outboxPublisher := event.NewOutboxPublisher(outboxRepo, eventSerializer, log,
		event.WithMaxRetries(cfg.Event.MaxRetries))
	eventBus := event.NewInMemoryEventBus(log)

	catalogMetrics, err := telemetry.NewCatalogMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create catalog metrics", zap.Error(err))
	}

	productRepo := persistence.NewGormProductRepository(db.DB)
	productRepo.SetOutboxEventSaver(outboxPublisher)
	productService := catalogapp.NewProductService(
		productRepo,
		productCache,
		log,
		catalogapp.WithRecorder(catalogMetrics),
		catalogapp.WithLimits(cfg.Catalog.MaxCustomProducts, cfg.Catalog.SearchPageSize),
	)

	if err := subscribeSnapshotHandlers(cfg, eventBus, db, cacheClient, catalogMetrics, log); err != nil {
		log.Fatal("Failed to subscribe snapshot handlers", zap.Error(err))
	}

	var outboxProcessor *event.OutboxProcessor
	if cfg.Event.ProcessorEnabled {
		outboxProcessor = event.NewOutboxProcessor(outboxRepo, eventBus, eventSerializer, event.OutboxProcessorConfig{
			BatchSize:         cfg.Event.BatchSize,
			PollInterval:      cfg.Event.PollInterval,
			Concurrency:       cfg.Event.Concurrency,
			ProcessingTimeout: cfg.Event.ProcessingTimeout,
			CleanupEnabled:    cfg.Event.CleanupEnabled,
			CleanupRetention:  cfg.Event.CleanupRetention,
			CleanupInterval:   time.Hour,
		}, log)
		outboxProcessor.SetFailureRecorder(catalogMetrics)
	} else {
		log.Warn("Outbox processor disabled; snapshot replication will not run on this instance")
	}

	// HTTP
	var revocations auth.RevocationList = auth.NewInMemoryRevocationList()
	if redisClient != nil {
		revocations = auth.NewRedisRevocationList(redisClient)
	}

	systemHandler := handler.NewSystemHandler(cfg.App.Name, version).
		AddCheck("database", db.Ping)
	if redisClient != nil {
		systemHandler.AddCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	if err := middleware.SetupValidator(); err != nil {
		log.Fatal("Failed to configure request validation", zap.Error(err))
	}

	var httpMeter metric.Meter
	if cfg.Telemetry.MetricsEnabled {
		httpMeter = meter
	}
	engine, err := router.NewEngine(router.EngineConfig{
		ServiceName:      cfg.Telemetry.ServiceName,
		HTTP:             cfg.HTTP,
		SwaggerEnabled:   cfg.Swagger.Enabled,
		TracingEnabled:   tracerProvider.IsEnabled(),
		ProfilingEnabled: profiler.IsEnabled(),
		Meter:            httpMeter,
		Logger:           log,
		JWTService:       auth.NewJWTService(cfg.JWT),
		Revocations:      revocations,
		Products:         productService,
		Outbox:           eventapp.NewOutboxService(outboxRepo, log),
		System:           systemHandler,
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	if outboxProcessor != nil {
		if err := outboxProcessor.Start(ctx); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if tieredCache != nil {
		g.Go(func() error {
			err := tieredCache.StartInvalidationSubscription(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				// peers keep working; this instance only serves staler L1 entries
				log.Error("Cache invalidation subscription ended", zap.Error(err))
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Server forced to shutdown", zap.Error(err))
		}
		if outboxProcessor != nil {
			if err := outboxProcessor.Stop(shutdownCtx); err != nil {
				log.Error("Failed to stop outbox processor", zap.Error(err))
			}
		}
		if err := eventBus.Stop(shutdownCtx); err != nil {
			log.Error("Failed to stop event bus", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("Server error", zap.Error(err))
	}

	shutdownTelemetry(cfg.HTTP.ShutdownTimeout, log, tracerProvider, meterProvider, logProvider)
	if err := profiler.Stop(); err != nil {
		log.Error("Failed to stop profiler", zap.Error(err))
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error("Error closing redis", zap.Error(err))
		}
	}
	if err := db.Close(); err != nil {
		log.Error("Error closing database", zap.Error(err))
	}
	log.Info("Server exited gracefully")
}

// runMigrations applies the embedded migrations on a dedicated connection;
// the migrator closes the connection it is given.
func runMigrations(cfg *config.DatabaseConfig, log *zap.Logger) error {
	sqlDB, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return err
	}
	m, err := migration.New(sqlDB, log)
	if err != nil {
		_ = sqlDB.Close()
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Failed to close migrator", zap.Error(err))
		}
	}()
	return m.Up()
}

func subscribeSnapshotHandlers(
	cfg *config.Config,
	bus *event.InMemoryEventBus,
	db *persistence.Database,
	client redis.UniversalClient,
	recorder snapshotapp.SkipRecorder,
	log *zap.Logger,
) error {
	store, err := cache.NewIdempotencyStoreFactory(cfg.Event,
		cache.WithLogger(log),
		cache.WithRedisClient(client),
	).CreateStore()
	if err != nil {
		return err
	}

	idempotency := shared.IdempotencyConfig{
		Enabled: cfg.Event.IdempotencyEnabled,
		TTL:     cfg.Event.IdempotencyTTL,
	}
	for _, h := range snapshotapp.Handlers(persistence.NewGormProductSnapshotRepository(db.DB), recorder, log) {
		wrapped := event.NewIdempotentHandler("snapshot."+h.EventTypes()[0], h, store, log,
			event.WithIdempotencyConfig(idempotency))
		bus.Subscribe(wrapped, wrapped.EventTypes()...)
	}
	return nil
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

func shutdownTelemetry(timeout time.Duration, log *zap.Logger, providers ...shutdowner) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, p := range providers {
		if err := p.Shutdown(ctx); err != nil {
			log.Warn("Telemetry shutdown failed", zap.Error(err))
		}
	}
}
