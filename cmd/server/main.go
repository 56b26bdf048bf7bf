package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	numberingapp "github.com/invoicehub/backend/internal/application/numbering"
	"github.com/invoicehub/backend/internal/infrastructure/cache"
	"github.com/invoicehub/backend/internal/infrastructure/config"
	"github.com/invoicehub/backend/internal/infrastructure/logger"
	"github.com/invoicehub/backend/internal/infrastructure/persistence"
	"github.com/invoicehub/backend/internal/infrastructure/telemetry"
	"github.com/invoicehub/backend/internal/interfaces/http/handler"
	"github.com/invoicehub/backend/internal/interfaces/http/middleware"
	"github.com/invoicehub/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

//	@title			InvoiceHub Backend API
//	@version		1.0
//	@description	Multi-tenant document numbering service

//	@contact.name	API Support
//	@contact.url	https://github.com/invoicehub/backend
//	@contact.email	support@invoicehub.example.com

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting InvoiceHub Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Initialize metrics
	meterProvider, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.ExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	numberingMetrics, err := telemetry.NewNumberingMetrics(telemetry.NumberingMetricsConfig{
		Meter:  meterProvider.Meter("numbering"),
		Logger: log,
	})
	if err != nil {
		log.Fatal("Failed to initialize numbering metrics", zap.Error(err))
	}

	// Database query and pool metrics
	dbMetrics, err := telemetry.NewDBMetrics(meterProvider.Meter("database"), telemetry.DefaultDBMetricsConfig(), log)
	if err != nil {
		log.Fatal("Failed to initialize database metrics", zap.Error(err))
	}
	if sqlDB, err := db.DB.DB(); err == nil {
		dbMetrics.SetSQLDB(sqlDB)
		dbMetrics.StartPoolStatsCollection(context.Background())
		defer dbMetrics.Stop()
	}
	if err := db.DB.Use(telemetry.NewDBMetricsPlugin(dbMetrics, log)); err != nil {
		log.Warn("Failed to register database metrics plugin", zap.Error(err))
	}

	// Allocation cache for idempotent number allocation. When Redis is
	// required the server refuses to start without it rather than serving
	// idempotency from process-local memory.
	cacheFactory := cache.NewAllocationCacheFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(!cfg.Numbering.RedisRequired),
	)
	allocationCache, err := cacheFactory.CreateCache()
	if err != nil {
		log.Fatal("Failed to create allocation cache", zap.Error(err))
	}
	defer func() {
		if err := allocationCache.Close(); err != nil {
			log.Error("Error closing allocation cache", zap.Error(err))
		}
	}()

	// Initialize repositories
	sequenceRepo := persistence.NewGormSequenceRepository(db.DB)
	documentRepo := persistence.NewGormDocumentRepository(db.DB)

	// Initialize application services
	reconcileService := numberingapp.NewReconcileService(sequenceRepo, documentRepo, log)
	allocatorService := numberingapp.NewAllocatorService(
		sequenceRepo,
		log,
		numberingapp.AllocatorConfig{
			MaxAttempts:    cfg.Numbering.MaxAttempts,
			BaseBackoff:    cfg.Numbering.BaseBackoff,
			MaxBackoff:     cfg.Numbering.MaxBackoff,
			FallbackRange:  cfg.Numbering.FallbackRange,
			IdempotencyTTL: cfg.Numbering.IdempotencyTTL,
		},
		numberingapp.WithReconciler(reconcileService),
		numberingapp.WithAllocationCache(allocationCache),
		numberingapp.WithAllocatorMetrics(numberingMetrics),
	)
	catalogService := numberingapp.NewCatalogService(sequenceRepo)
	bootstrapService := numberingapp.NewBootstrapService(sequenceRepo, log)

	// Initialize HTTP handlers
	sequenceHandler := handler.NewSequenceHandler(catalogService, bootstrapService)
	numberingHandler := handler.NewNumberingHandler(allocatorService, reconcileService)
	systemHandler := handler.NewSystemHandler()

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	// Initialize router with custom middleware
	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Security - Add security headers
	// 5. CORS - Handle cross-origin requests
	// 6. BodyLimit - Limit request body size
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	// Configure CORS from config
	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	// Body size limit
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, log))

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	// Every numbering operation is tenant-scoped; reject requests without a
	// valid tenant header before they reach a handler
	tenantConfig := middleware.TenantMiddlewareConfig{
		SkipPaths: []string{
			"/health",
			"/api/v1/ping",
			"/api/v1/system/ping",
			"/api/v1/system/info",
		},
		Required: true,
		Logger:   log,
	}
	r.Use(middleware.TenantMiddlewareWithConfig(tenantConfig))

	// Numbering domain (sequence catalog, allocation, reconciliation)
	numberingRoutes := router.NewDomainGroup("numbering", "/numbering")
	numberingRoutes.GET("/sequences", sequenceHandler.List)
	numberingRoutes.GET("/sequences/:id", sequenceHandler.GetByID)
	numberingRoutes.PATCH("/sequences/:id", sequenceHandler.Update)
	numberingRoutes.DELETE("/sequences/:id", sequenceHandler.Delete)
	numberingRoutes.POST("/sequences/defaults", sequenceHandler.Bootstrap)
	numberingRoutes.POST("/:documentType/next", numberingHandler.AllocateNext)
	numberingRoutes.POST("/:documentType/reconcile", numberingHandler.Reconcile)

	// System routes
	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)

	// Register all domain groups
	r.Register(numberingRoutes).
		Register(systemRoutes)

	// Setup routes
	r.Setup()

	// Also keep a simple ping at root API level for basic health checks
	engine.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database, _ *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
