// Package main API Gateway 服务入口
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"inknote-ai-api/internal/application/designer"
	"inknote-ai-api/internal/application/organizer"
	"inknote-ai-api/internal/application/painter"
	"inknote-ai-api/internal/application/pipeline"
	"inknote-ai-api/internal/application/quota"
	"inknote-ai-api/internal/config"
	"inknote-ai-api/internal/infrastructure/eino/callback"
	"inknote-ai-api/internal/infrastructure/imagegen"
	"inknote-ai-api/internal/infrastructure/llm"
	"inknote-ai-api/internal/infrastructure/messaging"
	"inknote-ai-api/internal/infrastructure/persistence/postgres"
	redisinfra "inknote-ai-api/internal/infrastructure/persistence/redis"
	"inknote-ai-api/internal/interfaces/http/handler"
	"inknote-ai-api/internal/interfaces/http/router"
	"inknote-ai-api/internal/workflow/chain"
	"inknote-ai-api/pkg/logger"
	"inknote-ai-api/pkg/tracer"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx := context.Background()
	log := logger.FromContext(ctx)
	log.Info("starting api-gateway",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// 初始化 Eino 全局 callbacks（指标/追踪/用量流水）
	callback.Init(quota.NewLLMUsageRecorder())

	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatal(ctx, "failed to init postgres", err)
	}
	defer func() { _ = pgClient.Close() }()

	redisClient, err := redisinfra.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Fatal(ctx, "failed to init redis", err)
	}
	defer func() { _ = redisClient.Close() }()

	projectRepo := postgres.NewProjectRepository(pgClient)
	unitRepo := postgres.NewUnitRepository(pgClient)

	producer := messaging.NewProducer(redisClient.Redis(), int64(cfg.Messaging.RedisStream.MaxLen))
	progressStore := redisinfra.NewProgressStore(redisClient)
	creditLedger := redisinfra.NewCreditLedger(redisClient)
	rateLimiter := redisinfra.NewRateLimiter(redisClient)

	// 同步重绘走网关内的流水线，整本生成则交给 note-worker
	einoFactory := llm.NewEinoFactory(cfg)
	organizeChain := chain.NewOrganizeChain(einoFactory)
	org := organizer.New(organizeChain, cfg.Pipeline.MaxInputRunes)
	pnt := painter.New(imagegen.NewFactory(&cfg.ImageGen),
		painter.WithPollPolicy(cfg.ImageGen.PollInterval, cfg.ImageGen.PollMaxAttempts),
		painter.WithRetryLimit(cfg.ImageGen.RetryLimit),
		painter.WithPlaceholder(cfg.Pipeline.PlaceholderImages),
	)
	orchestrator := pipeline.NewOrchestrator(org, pnt, creditLedger, cfg.Pipeline.UnitCreditCost)

	handlers := &router.Handlers{
		Health:  handler.NewHealthHandler(pgClient, redisClient),
		Project: handler.NewProjectHandler(cfg, projectRepo, unitRepo, producer, progressStore),
		Unit:    handler.NewUnitHandler(cfg, unitRepo, projectRepo, orchestrator, producer),
		Style:   handler.NewStyleHandler(),
		Credit:  handler.NewCreditHandler(creditLedger),
	}
	log.Info("style catalog loaded", "styles", len(designer.ListStyles()))

	engine := router.New(cfg, handlers, rateLimiter)

	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      engine,
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server exited")
}
