package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-demo/lanchat/internal/blob"
	"github.com/go-demo/lanchat/internal/config"
	"github.com/go-demo/lanchat/internal/handler"
	"github.com/go-demo/lanchat/internal/middleware"
	"github.com/go-demo/lanchat/internal/pkg/utils"
	"github.com/go-demo/lanchat/internal/repository"
	"github.com/go-demo/lanchat/internal/scheduler"
	"github.com/go-demo/lanchat/internal/service"
	"github.com/go-demo/lanchat/internal/store"
	"github.com/go-demo/lanchat/internal/ws"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// @title           LAN Chat API
// @version         1.0
// @description     LAN-local real-time chat server with durable and ephemeral rooms

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log.Level)
	defer logger.Sync()

	logger.Info("Starting lanchat server",
		zap.String("mode", cfg.Server.Mode),
		zap.Int("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Driver),
	)

	gin.SetMode(cfg.Server.Mode)

	// Durable partition document store
	collections, err := newCollectionStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open document store", zap.Error(err))
	}

	// Redis is optional; without it the hub runs single-node and the rate
	// limiter falls back to in-memory token buckets
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
	}

	jwtManager := utils.NewJWTManager(cfg.JWT.Secret, cfg.JWT.TokenTTL, cfg.JWT.Issuer)

	// Repositories: one durable and one ephemeral partition each
	rooms := repository.NewRooms(
		repository.NewDurableRoomRepository(collections, logger),
		repository.NewEphemeralRoomRepository(),
	)
	messages := repository.NewMessages(
		repository.NewDurableMessageRepository(collections, logger),
		repository.NewEphemeralMessageRepository(),
	)

	sched := scheduler.New(logger)
	defer sched.Stop()

	blobs := blob.NewLocalStore(cfg.Store.BlobDir, "/uploads/", logger)

	lifecycle := service.LifecycleConfig{
		EmptyRoomWindow: cfg.Lifecycle.EmptyRoomWindow,
		BurnWindow:      cfg.Lifecycle.BurnWindow,
		BurnReadWindow:  cfg.Lifecycle.BurnReadWindow,
	}

	messageService := service.NewMessageService(rooms, messages, sched, blobs, lifecycle, logger)
	roomService := service.NewRoomService(rooms, messageService, sched, lifecycle, logger)

	hub := ws.NewHub(roomService, messageService, redisClient, logger)
	messageService.SetBroadcaster(hub)
	roomService.SetBroadcaster(hub)
	go hub.Run()

	// Safety-net sweep for deadlines whose timers were lost across restarts
	cleanup := service.NewCleanupService(rooms, roomService, messageService, cfg.Lifecycle.SweepInterval, logger)
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go cleanup.Run(sweepCtx)

	roomHandler := handler.NewRoomHandler(roomService)
	wsHandler := ws.NewHandler(hub, jwtManager, logger)

	router := setupRouter(cfg, logger, jwtManager, redisClient, roomHandler, wsHandler)

	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Server is running",
			zap.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// newCollectionStore selects the durable partition's backend.
func newCollectionStore(cfg *config.Config, logger *zap.Logger) (store.Collection, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgresStore(cfg.Database.GetDSN())
	case "file":
		return store.NewFileStore(cfg.Store.DataDir)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}

	return logger
}

func setupRouter(
	cfg *config.Config,
	logger *zap.Logger,
	jwtManager *utils.JWTManager,
	redisClient *redis.Client,
	roomHandler *handler.RoomHandler,
	wsHandler *ws.Handler,
) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Static files for uploads
	router.Static("/uploads", cfg.Store.BlobDir)

	// WebSocket endpoint
	router.GET("/ws", wsHandler.ServeWS)

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(middleware.APIRateLimit(redisClient))
	{
		rooms := v1.Group("/rooms")
		rooms.Use(middleware.Auth(jwtManager))
		{
			rooms.GET("", roomHandler.List)
			rooms.POST("", roomHandler.Create)
			rooms.GET("/:id", roomHandler.GetByID)
			rooms.DELETE("/:id", roomHandler.Delete)
			rooms.GET("/:id/dashboard", roomHandler.GetDashboard)
		}

		wsStats := v1.Group("/ws")
		wsStats.Use(middleware.Auth(jwtManager))
		{
			wsStats.GET("/stats", wsHandler.GetStats)
			wsStats.GET("/online", wsHandler.GetOnlineUsers)
			wsStats.GET("/online/:user_id", wsHandler.IsUserOnline)
		}
	}

	return router
}
