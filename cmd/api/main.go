package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/calificaprofe/calificaprofe-api/config"
	"github.com/calificaprofe/calificaprofe-api/internal/cache"
	"github.com/calificaprofe/calificaprofe-api/internal/database/postgres"
	"github.com/calificaprofe/calificaprofe-api/internal/handlers"
	"github.com/calificaprofe/calificaprofe-api/internal/middleware"
	"github.com/calificaprofe/calificaprofe-api/internal/repository"
	"github.com/calificaprofe/calificaprofe-api/internal/services"
	"github.com/calificaprofe/calificaprofe-api/internal/session"
	"github.com/calificaprofe/calificaprofe-api/pkg/circuitbreaker"
	"github.com/calificaprofe/calificaprofe-api/pkg/db"
	"github.com/calificaprofe/calificaprofe-api/pkg/httpclient"
	"github.com/calificaprofe/calificaprofe-api/pkg/jwt"
	"github.com/calificaprofe/calificaprofe-api/pkg/logger"
	"github.com/calificaprofe/calificaprofe-api/pkg/metrics"
	"github.com/calificaprofe/calificaprofe-api/pkg/profiling"
	"github.com/calificaprofe/calificaprofe-api/pkg/supabase"
	"github.com/calificaprofe/calificaprofe-api/pkg/tracing"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// newDataSource builds the configured teacher/profile source
func newDataSource(ctx context.Context, cfg *config.Config, client *supabase.Client) (repository.DataSource, func(), error) {
	noop := func() {}

	switch cfg.Remote.DataSource {
	case config.DataSourcePostgres:
		pool, err := db.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to initialize database connection pool: %w", err)
		}
		return repository.NewPostgresDataSource(postgres.NewClient(pool)), pool.Close, nil

	case config.DataSourceMemory:
		source, err := repository.LoadMemoryDataSource(cfg.Remote.MemorySeedFile)
		if err != nil {
			return nil, noop, err
		}
		return source, noop, nil

	default:
		return repository.NewRESTDataSource(client), noop, nil
	}
}

// registerAPIRoutes registers the versioned API routes
func registerAPIRoutes(
	group *gin.RouterGroup,
	controller *session.Controller,
	generalRateLimiter, authRateLimiter *middleware.RateLimiter,
	sessionHandler *handlers.SessionHandler,
	authHandler *handlers.AuthHandler,
	teacherHandler *handlers.TeacherHandler,
) {
	group.GET("/session", generalRateLimiter.Middleware(), sessionHandler.GetSession)
	group.GET("/session/stream", generalRateLimiter.Middleware(), sessionHandler.StreamSession)

	auth := group.Group("/auth")
	auth.Use(authRateLimiter.Middleware(), middleware.BodySizeLimitMiddleware(16*1024))
	auth.POST("/login", authHandler.Login)
	auth.POST("/register", authHandler.Register)
	auth.POST("/logout", authHandler.Logout)

	// Listing routes are only served to a confirmed session
	teachers := group.Group("/teachers")
	teachers.Use(generalRateLimiter.Middleware(), middleware.SessionGuardMiddleware(controller.Snapshot))
	teachers.GET("", teacherHandler.GetTeachers)
	teachers.GET("/stream", teacherHandler.StreamTeachers)
	teachers.GET("/filters", teacherHandler.GetFilters)
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	err = logger.Initialize(logger.Config{
		Level:       cfg.Logging.Level,
		LogDir:      cfg.Logging.Dir,
		Environment: cfg.Server.AppEnv,
		ServiceName: cfg.Observability.ServiceName,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting CalificaProfe API",
		zap.String("version", cfg.Observability.ServiceVersion),
		zap.String("environment", cfg.Server.AppEnv),
		zap.String("data_source", cfg.Remote.DataSource),
		zap.String("cache_driver", cfg.Cache.Driver),
	)

	rootCtx, stopRoot := context.WithCancel(context.Background())
	defer stopRoot()

	// Initialize distributed tracing
	tracerShutdown, err := tracing.InitTracer(cfg.Observability, cfg.Server.AppEnv)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tracerShutdown(ctx); shutdownErr != nil {
			logger.Error("Failed to shutdown tracer", zap.Error(shutdownErr))
		}
	}()

	// Continuous profiling is optional
	stopProfiling, err := profiling.Start(cfg.Profiling, cfg.Observability, cfg.Server.AppEnv)
	if err != nil {
		logger.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer stopProfiling()

	// Start infrastructure metrics collection
	metrics.RecordInfrastructureMetrics()

	// Local cache shared by listing pages, filter options, identity and session
	store, err := cache.NewStore(rootCtx, cfg.Cache)
	if err != nil {
		logger.Fatal("Failed to initialize local cache", zap.Error(err))
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("Failed to close local cache", zap.Error(closeErr))
		}
	}()

	// Hosted auth/database client
	client := supabase.NewClient(cfg.Remote.URL, cfg.Remote.AnonKey, httpclient.NewStandardClient(cfg.Remote.RequestTimeout))
	auth := supabase.NewAuth(client, supabase.AuthOptions{
		Storage:       cache.NewSessionCache(store),
		Verifier:      jwt.NewVerifier(cfg.Remote.JWTSecret),
		RefreshMargin: cfg.Session.TokenRefreshMargin,
	})

	source, closeSource, err := newDataSource(rootCtx, cfg, client)
	if err != nil {
		logger.Fatal("Failed to initialize data source", zap.Error(err))
	}
	defer closeSource()

	if cfg.Breaker.Enabled {
		source = repository.NewBreakerDataSource(source, circuitbreaker.FromSettings(cfg.Remote.DataSource, cfg.Breaker))
	}

	// Initialize services
	listingService := services.NewListingService(
		source,
		cache.NewListingCache(store, cfg.Cache.Duration, nil),
		services.ListingOptionsFromConfig(cfg.Listing),
	)
	controller := session.NewController(auth, source, cache.NewIdentityCache(store), session.OptionsFromConfig(cfg.Session))

	// The controller subscribes before auth starts so INITIAL_SESSION is not missed
	controller.Start(rootCtx)
	auth.Start(rootCtx)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(func() bool {
		select {
		case <-controller.Ready():
			return true
		default:
			return false
		}
	}, controller.Snapshot)
	sessionHandler := handlers.NewSessionHandler(controller)
	authHandler := handlers.NewAuthHandler(controller)
	teacherHandler := handlers.NewTeacherHandler(listingService, cfg.Listing.DefaultPageSize)

	// Set up Gin router
	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Observability.ServiceName)) // OpenTelemetry tracing
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.ObservabilityMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	allowedOrigins := cfg.Server.AllowedOrigins
	if cfg.IsDevelopment() {
		allowedOrigins = append(allowedOrigins, "http://localhost:5173", "http://127.0.0.1:5173")
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID", "traceparent", "tracestate"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	generalRateLimiter := middleware.NewRateLimiter(rootCtx, 50, 100) // 50 req/sec, burst of 100
	authRateLimiter := middleware.NewRateLimiter(rootCtx, 0.2, 5)     // 1 req/5s, burst of 5 (credential stuffing)

	// Utility endpoints (not versioned - operational endpoints)
	api := router.Group("/api")
	api.GET("/healthcheck", generalRateLimiter.Middleware(), healthHandler.Healthcheck)
	api.GET("/metrics", generalRateLimiter.Middleware(), gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	registerAPIRoutes(v1, controller, generalRateLimiter, authRateLimiter, sessionHandler, authHandler, teacherHandler)

	// Loopback by default: one process serves one local user session
	srv := &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	controller.Stop()
	auth.Stop()
	stopRoot()

	logger.Info("Server exited")
}
