package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	callHandler "inspectcall-backend/internal/handler/http/call"
	deviceHandler "inspectcall-backend/internal/handler/http/device"
	mediaHandler "inspectcall-backend/internal/handler/http/media"
	userHandler "inspectcall-backend/internal/handler/http/user"
	wsHandler "inspectcall-backend/internal/handler/ws"
	"inspectcall-backend/internal/middleware"
	"inspectcall-backend/internal/repository/cockroach"
	redisRepo "inspectcall-backend/internal/repository/redis"
	"inspectcall-backend/internal/service/location"
	"inspectcall-backend/internal/service/media"
	"inspectcall-backend/internal/service/session"
	"inspectcall-backend/internal/service/signaling"
	userService "inspectcall-backend/internal/service/user"
	"inspectcall-backend/pkg/config"
	"inspectcall-backend/pkg/constants"
	"inspectcall-backend/pkg/database"
	"inspectcall-backend/pkg/jwt"
	"inspectcall-backend/pkg/logger"
	"inspectcall-backend/pkg/metrics"
	"inspectcall-backend/pkg/push"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("invalid configuration: %v", err))
	}

	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// CockroachDB, with exponential backoff; the registry cannot run
	// without it
	db, err := connectCockroach(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to CockroachDB", zap.Error(err))
	}
	defer db.Close()
	logger.Info("connected to CockroachDB",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database))

	redisDB, err := database.NewRedisDB(&database.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
		Timeout:  cfg.Redis.Timeout,
	})
	if err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer redisDB.Close()
	logger.Info("connected to Redis", zap.String("host", cfg.Redis.Host))

	// Repositories
	userRepo := cockroach.NewUserRepository(db.Pool)
	callRepo := cockroach.NewCallRepository(db.Pool)
	mediaRepo := cockroach.NewMediaRepository(db.Pool)
	locationRepo := redisRepo.NewLocationRepository(redisDB.Client)
	deviceTokenRepo := redisRepo.NewDeviceTokenRepository(redisDB.Client)

	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName)

	// Push notifications for call invites
	pushProvider, err := push.NewProvider(&cfg.Push)
	if err != nil {
		logger.Fatal("failed to initialize push provider", zap.Error(err))
	}
	pushSvc := push.NewService(pushProvider, deviceTokenRepo)

	// Services
	tracker := location.NewTracker(locationRepo, appMetrics)
	registry := session.NewRegistry(callRepo, userRepo, tracker, pushSvc)

	objectStore, err := media.NewMinIOStore(
		cfg.MinIO.Endpoint,
		cfg.MinIO.AccessKey,
		cfg.MinIO.SecretKey,
		cfg.MinIO.Bucket,
		cfg.MinIO.UseSSL,
	)
	if err != nil {
		logger.Fatal("failed to initialize object storage", zap.Error(err))
	}
	mediaSvc := media.NewService(mediaRepo, registry, objectStore, appMetrics)

	router := signaling.NewRouter(registry, mediaSvc, appMetrics)
	hub := wsHandler.NewSignalingHub(redisDB.Client, registry, router, appMetrics)

	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry, cfg.JWT.RefreshTokenExpiry)
	userSvc := userService.NewService(userRepo, jwtManager)

	// Handlers
	userHdlr := userHandler.NewHandler(userSvc)
	callHdlr := callHandler.NewHandler(registry, tracker)
	mediaHdlr := mediaHandler.NewHandler(mediaSvc, registry)
	deviceHdlr := deviceHandler.NewHandler(deviceTokenRepo)

	// HTTP surface
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.SetTrustedProxies(nil)

	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestLogger())
	engine.Use(middleware.CORSMiddleware())
	engine.Use(prometheusMiddleware.Handler())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": cfg.Server.ServiceName,
			"time":    time.Now().UTC(),
		})
	})
	engine.GET("/metrics", middleware.MetricsHandler(appMetrics))

	// Public routes
	engine.POST("/v1/users", userHdlr.Register)
	engine.POST("/v1/auth/login", userHdlr.Login)

	// Authenticated routes
	auth := middleware.AuthMiddleware(jwtManager)

	users := engine.Group("/v1/users", auth)
	{
		users.GET("/:id", userHdlr.GetProfile)
		users.GET("/:id/calls", callHdlr.ListUserCalls)
	}

	calls := engine.Group("/v1/calls", auth)
	{
		calls.POST("", callHdlr.CreateCall)
		calls.GET("/:id", callHdlr.GetCall)
		calls.POST("/:id/end", callHdlr.EndCall)
		calls.PUT("/:id/location", callHdlr.UpdateLocation)
		calls.GET("/:id/location", callHdlr.GetLocation)

		calls.POST("/:id/images", mediaHdlr.RecordImage)
		calls.GET("/:id/images", mediaHdlr.ListImages)
		calls.POST("/:id/recordings", mediaHdlr.RecordVideo)
		calls.GET("/:id/recordings", mediaHdlr.ListRecordings)
		calls.POST("/:id/captures/upload-url", mediaHdlr.GenerateUploadURL)
		calls.GET("/:id/captures/download-url", mediaHdlr.GenerateDownloadURL)
	}

	devices := engine.Group("/v1/devices", auth)
	{
		devices.POST("", deviceHdlr.RegisterToken)
		devices.DELETE("", deviceHdlr.UnregisterToken)
	}

	// WebSocket signaling endpoint
	engine.GET("/v1/signaling", auth, hub.ServeWS)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: engine,
	}

	go func() {
		logger.Info("signaling service starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("environment", cfg.Server.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("signaling service stopped")
}

// connectCockroach dials the database with exponential backoff. Startup
// ordering in compose environments makes the first attempts racy.
func connectCockroach(ctx context.Context, cfg *config.Config) (*database.CockroachDB, error) {
	dbConfig := &database.CockroachConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
	}

	const maxRetries = 5
	baseDelay := 1 * time.Second
	maxDelay := 30 * time.Second

	var db *database.CockroachDB
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		db, err = database.NewCockroachDB(ctx, dbConfig)
		if err == nil {
			return db, nil
		}

		if attempt == maxRetries {
			break
		}

		delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt-1)))
		if delay > maxDelay {
			delay = maxDelay
		}
		logger.Warn("CockroachDB connection failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, err
}
