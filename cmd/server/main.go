package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/imgtranslate/api/internal/client"
	"github.com/imgtranslate/api/internal/config"
	"github.com/imgtranslate/api/internal/handler"
	"github.com/imgtranslate/api/internal/server"
	"github.com/imgtranslate/api/internal/service"
	"github.com/imgtranslate/api/internal/storage"
	ws "github.com/imgtranslate/api/internal/websocket"
	"github.com/imgtranslate/api/internal/worker"
	"github.com/imgtranslate/api/pkg/logging"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(logging.New(cfg.Server.LogLevel, cfg.Server.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open history database
	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open history database", "path", cfg.Database.Path, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// Async batches need Redis; synchronous routes work without it
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.Warn("redis not available, async batches disabled until it is", "addr", cfg.Redis.Addr, "error", err)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	// Initialize provider client
	gemini := client.NewGeminiClient(&cfg.Gemini)
	if !gemini.IsConfigured() {
		slog.Warn("GEMINI_API_KEY not set, translations will fail until it is configured")
	}

	// Initialize services
	translateService := service.NewTranslateService(gemini, store)
	historyService := service.NewHistoryService(store)
	jobService := service.NewJobService(redisClient, asynqClient, historyService,
		time.Duration(cfg.Worker.JobTTLHours)*time.Hour, gemini.MaxItemDuration())

	app := server.New(server.Options{
		BodyLimitMB: cfg.Server.BodyLimitMB,
		AccessLog:   true,
	}, server.Routes{
		Translate: handler.NewTranslateHandler(translateService, jobService, validate),
		History:   handler.NewHistoryHandler(historyService),
		Jobs:      handler.NewJobHandler(jobService),
		Health: handler.NewHealthHandler(gemini, store, handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})),
		Hub: hub,
	})

	// Start Asynq worker server
	workerServer := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Queues: map[string]int{
			service.QueueBatches: 1,
		},
		LogLevel: asynqLogLevel(cfg.Server.LogLevel),
	})

	batchWorker := worker.NewBatchWorker(translateService, jobService, hub)
	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeBatch, batchWorker.ProcessTask)

	if err := workerServer.Start(mux); err != nil {
		slog.Warn("asynq worker not started", "error", err)
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		slog.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	slog.Info("server starting", "addr", addr, "env", cfg.Server.Env, "model", cfg.Gemini.Model)
	if err := app.Listen(addr); err != nil {
		slog.Error("server error", "error", err)
	}

	// Let an in-flight batch reach its next item boundary
	workerServer.Shutdown()
}

func asynqLogLevel(level string) asynq.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return asynq.DebugLevel
	case "warn":
		return asynq.WarnLevel
	case "error":
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}
