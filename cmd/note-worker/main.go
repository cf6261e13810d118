// Package main 笔记生成任务执行器入口（note-worker）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"inknote-ai-api/internal/application/notegen"
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
	"inknote-ai-api/internal/workflow/chain"
	"inknote-ai-api/pkg/logger"
	"inknote-ai-api/pkg/tracer"
)

// 死信队列积压告警阈值
const dlqAlertThreshold = 100

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx := context.Background()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "note-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(ctx) }()

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

	txMgr := postgres.NewTxManager(pgClient)
	projectRepo := postgres.NewProjectRepository(pgClient)
	unitRepo := postgres.NewUnitRepository(pgClient)
	progressStore := redisinfra.NewProgressStore(redisClient)
	creditLedger := redisinfra.NewCreditLedger(redisClient)

	einoFactory := llm.NewEinoFactory(cfg)
	organizeChain := chain.NewOrganizeChain(einoFactory)
	org := organizer.New(organizeChain, cfg.Pipeline.MaxInputRunes)
	pnt := painter.New(imagegen.NewFactory(&cfg.ImageGen),
		painter.WithPollPolicy(cfg.ImageGen.PollInterval, cfg.ImageGen.PollMaxAttempts),
		painter.WithRetryLimit(cfg.ImageGen.RetryLimit),
		painter.WithPlaceholder(cfg.Pipeline.PlaceholderImages),
	)
	orchestrator := pipeline.NewOrchestrator(org, pnt, creditLedger, cfg.Pipeline.UnitCreditCost)

	svc := notegen.NewService(orchestrator, projectRepo, unitRepo, txMgr, progressStore)

	consumer := messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamNoteGen,
		Group:         messaging.ConsumerGroupNoteWorker,
		ConsumerName:  hostnameConsumerName(),
		BlockTimeout:  cfg.Messaging.RedisStream.BlockTimeout,
		ClaimInterval: cfg.Messaging.RedisStream.ClaimInterval,
		RetryLimit:    cfg.Messaging.RedisStream.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    cfg.Messaging.RedisStream.RetryBackoff.Initial,
			Max:        cfg.Messaging.RedisStream.RetryBackoff.Max,
			Multiplier: cfg.Messaging.RedisStream.RetryBackoff.Multiplier,
		},
	})

	consumer.RegisterHandler(messaging.MsgTypeNoteGen, svc.HandleNoteGen)
	consumer.RegisterHandler(messaging.MsgTypeUnitRegen, svc.HandleUnitRegen)

	if err := consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}
	go consumer.MonitorDLQ(ctx, dlqAlertThreshold)

	log := logger.FromContext(ctx)
	log.Info("note-worker started", "consumer", hostnameConsumerName())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("note-worker shutting down")
	consumer.Stop()
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
