package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rental-platform/rental-service/pkg/contracts/openapi"
	"github.com/rental-platform/rental-service/pkg/idempotency"
	"github.com/rental-platform/rental-service/pkg/kafka"
	"github.com/rental-platform/rental-service/pkg/logging"
	"github.com/rental-platform/rental-service/pkg/metrics"
	"github.com/rental-platform/rental-service/pkg/middleware"
	"github.com/rental-platform/rental-service/pkg/mongodb"
	"github.com/rental-platform/rental-service/pkg/tracing"

	"github.com/rental-platform/rental-service/internal/api/handlers"
	"github.com/rental-platform/rental-service/internal/application"
)

const serviceName = "rental-service"

func main() {
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting rental-service API")

	config := loadConfig()
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize OpenTelemetry tracing
	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = config.OTLPEndpoint
	tracingConfig.Environment = config.Environment
	tracingConfig.Enabled = config.TracingEnabled

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		// Continue without tracing
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", tracingConfig.OTLPEndpoint)
	}

	m := metrics.New(metrics.DefaultConfig(serviceName))
	logger.Info("Metrics initialized")

	backend, err := openBackend(ctx, config, m, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize storage", "backend", config.StorageBackend)
		os.Exit(1)
	}
	defer backend.Close()
	logger.Info("Storage initialized", "backend", config.StorageBackend)

	exec := application.NewExecutor(backend.uow, config.MaxWriteAttempts, m, logger)
	transactionService := application.NewTransactionApplicationService(exec, m, logger)
	returnService := application.NewReturnApplicationService(exec, m, logger)
	inventoryService := application.NewInventoryApplicationService(exec, m, logger)

	router := gin.New()

	// Standard middleware (recovery, request ID, correlation, logging, error handling)
	middlewareConfig := middleware.DefaultConfig(serviceName, logger.Logger)
	middlewareConfig.RequestTimeout = config.RequestTimeout
	middlewareConfig.TrustedProxies = config.TrustedProxies
	middlewareConfig.CORSOrigins = config.CORSOrigins
	middleware.Setup(router, middlewareConfig)

	router.Use(middleware.MetricsMiddleware(m))
	router.Use(middleware.TracingMiddleware(middleware.DefaultTracingConfig(serviceName)))

	idempotencyConfig := idempotency.DefaultConfig(serviceName, backend.keys)
	idempotencyConfig.RequireKey = config.RequireIdempotencyKey
	idempotencyConfig.UserIDExtractor = middleware.GetActorID
	idempotencyConfig.Metrics = idempotency.NewMetrics(m.Registry())
	idempotencyConfig.Logger = logger.Logger
	router.Use(idempotency.Middleware(idempotencyConfig))

	// Health check endpoints
	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, backend.ready))
	router.GET("/metrics", middleware.MetricsEndpoint(m))
	router.GET("/openapi.yaml", openapi.ServeDocument())
	router.GET("/circuit-breakers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": serviceName, "breakers": backend.breakers.Status()})
	})
	router.GET("/outbox", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": serviceName, "relay": backend.relayStatus()})
	})

	api := router.Group("/api/v1")
	if config.ValidateRequests {
		validator, err := openapi.New()
		if err != nil {
			logger.WithError(err).Error("Failed to load API document")
			os.Exit(1)
		}
		api.Use(openapi.RequestValidation(validator))
		logger.Info("Request validation enabled")
	}
	handlers.NewTransactionHandlers(transactionService, logger).RegisterRoutes(api)
	handlers.NewReturnHandlers(returnService, logger).RegisterRoutes(api)
	handlers.NewInventoryHandlers(inventoryService, logger).RegisterRoutes(api)

	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
		}
	}()
	logger.Info("Server started", "addr", config.ServerAddr)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
}

// Config holds application configuration
type Config struct {
	ServerAddr            string
	Environment           string
	StorageBackend        string
	ReferenceDataFile     string
	MaxWriteAttempts      int
	RequestTimeout        time.Duration
	TrustedProxies        []string
	CORSOrigins           []string
	RequireIdempotencyKey bool
	ValidateRequests      bool
	ValidateEvents        bool
	TracingEnabled        bool
	OTLPEndpoint          string
	OutboxPollInterval    time.Duration
	MongoDB               *mongodb.Config
	Kafka                 *kafka.Config
}

func loadConfig() *Config {
	mongoConfig := mongodb.DefaultConfig()
	mongoConfig.URI = getEnv("MONGODB_URI", "mongodb://localhost:27017")
	mongoConfig.Database = getEnv("MONGODB_DATABASE", "rental_db")
	mongoConfig.ReplicaSet = getEnv("MONGODB_REPLICA_SET", "")
	mongoConfig.Username = getEnv("MONGODB_USERNAME", "")
	mongoConfig.Password = getEnv("MONGODB_PASSWORD", "")

	kafkaConfig := kafka.DefaultConfig()
	kafkaConfig.Brokers = splitList(getEnv("KAFKA_BROKERS", "localhost:9092"))
	kafkaConfig.ClientID = serviceName

	return &Config{
		ServerAddr:            getEnv("SERVER_ADDR", ":8080"),
		Environment:           getEnv("ENVIRONMENT", "development"),
		StorageBackend:        getEnv("STORAGE_BACKEND", backendMongoDB),
		ReferenceDataFile:     getEnv("REFERENCE_DATA_FILE", ""),
		MaxWriteAttempts:      getEnvInt("MAX_WRITE_ATTEMPTS", 3),
		RequestTimeout:        getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		TrustedProxies:        splitList(getEnv("TRUSTED_PROXIES", "")),
		CORSOrigins:           splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),
		RequireIdempotencyKey: getEnv("REQUIRE_IDEMPOTENCY_KEY", "false") == "true",
		ValidateRequests:      getEnv("OPENAPI_VALIDATION", "false") == "true",
		ValidateEvents:        getEnv("EVENT_VALIDATION", "false") == "true",
		TracingEnabled:        getEnv("TRACING_ENABLED", "true") == "true",
		OTLPEndpoint:          getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OutboxPollInterval:    getEnvDuration("OUTBOX_POLL_INTERVAL", time.Second),
		MongoDB:               mongoConfig,
		Kafka:                 kafkaConfig,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
