package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"ctonjob/internal/api"
	"ctonjob/internal/auth"
	"ctonjob/internal/config"
	"ctonjob/internal/database"
	"ctonjob/internal/events"
	"ctonjob/internal/ratelimit"
	"ctonjob/internal/storage"
	"ctonjob/internal/upload"
)

func main() {
	// .env 仅用于本地开发，缺失时忽略
	_ = godotenv.Load()

	cfg := config.MustLoad()
	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("api bootstrapping",
		slog.String("db_host", cfg.Database.Host),
		slog.Int("db_port", cfg.Database.Port),
		slog.String("db_name", cfg.Database.Name),
		slog.String("approval_mode", cfg.Recruiter.ApprovalMode),
	)

	db, err := database.InitDatabase(cfg.Database, cfg.Log.Level)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}
	logger.Info("database migrated")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	if err := storageClient.EnsureBuckets(ctx, cfg.MinIO.AutoCreateBucket); err != nil {
		log.Fatalf("ensure buckets: %v", err)
	}

	privatePEM, err := os.ReadFile(cfg.Auth.PrivateKeyPath)
	if err != nil {
		log.Fatalf("read jwt private key: %v", err)
	}
	publicPEM, err := os.ReadFile(cfg.Auth.PublicKeyPath)
	if err != nil {
		log.Fatalf("read jwt public key: %v", err)
	}
	authService, err := auth.NewAuthService(privatePEM, publicPEM, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}

	var scanner upload.Scanner
	if cfg.Clamd.Address != "" {
		scanner = upload.NewClamdScanner(cfg.Clamd.Address)
		logger.Info("clamd scanning enabled", slog.String("address", cfg.Clamd.Address))
	}

	limiter, err := ratelimit.New(cfg.RateLimit, redisClient)
	if err != nil {
		log.Fatalf("init rate limiter: %v", err)
	}
	if mem, ok := limiter.(*ratelimit.MemoryLimiter); ok {
		go mem.RunJanitor(ctx, time.Minute, time.Hour)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error("close asynq client failed", slog.Any("error", err))
		}
	}()

	bus := events.NewBus()
	subscribers := events.NewSubscribers(events.NewRedisNotifier(redisClient), asynqClient, logger)
	if err := subscribers.Register(bus); err != nil {
		log.Fatalf("register event subscribers: %v", err)
	}

	router := api.NewRouter(cfg, logger)
	api.RegisterRoutes(router, api.Deps{
		Config:    cfg,
		DB:        db,
		Redis:     redisClient,
		Auth:      authService,
		Store:     storageClient,
		Validator: upload.NewValidator(scanner),
		Limiter:   limiter,
		Events:    bus,
		Logger:    logger,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start api server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down api")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", slog.Any("error", err))
	}
	// 等待异步事件处理完，避免丢失已入队前的邮件任务
	bus.Wait()
}
