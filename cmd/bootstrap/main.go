// Package main 系统初始化入口：建表并为开发用户发放初始信用点
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"inknote-ai-api/internal/config"
	"inknote-ai-api/internal/domain/entity"
	"inknote-ai-api/internal/infrastructure/persistence/postgres"
	redisinfra "inknote-ai-api/internal/infrastructure/persistence/redis"
)

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting system bootstrap...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	pgClient, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		log.Fatalf("failed to init postgres: %v", err)
	}
	defer func() { _ = pgClient.Close() }()

	fmt.Println("Running database migrations...")
	if err := pgClient.AutoMigrate(
		&entity.NoteProject{},
		&entity.NoteUnit{},
	); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}
	fmt.Println("Migrations applied.")

	// BOOTSTRAP_USER_ID 非空时为该用户发放初始信用点，方便本地联调
	seedUser := os.Getenv("BOOTSTRAP_USER_ID")
	if seedUser != "" {
		redisClient, err := redisinfra.NewClient(&cfg.Cache.Redis)
		if err != nil {
			log.Fatalf("failed to init redis: %v", err)
		}
		defer func() { _ = redisClient.Close() }()

		ledger := redisinfra.NewCreditLedger(redisClient)
		balance, err := ledger.Grant(ctx, seedUser, 100)
		if err != nil {
			log.Fatalf("failed to grant credits: %v", err)
		}
		fmt.Printf("Granted credits to %s, balance is now %d\n", seedUser, balance)
	}

	fmt.Println("Bootstrap completed.")
}
