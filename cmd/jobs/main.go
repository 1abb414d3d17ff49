package main

import (
	"context"
	"fmt"
	"os"

	"marketplace-order-service/config"
	"marketplace-order-service/internal/pkg/database"
	"marketplace-order-service/internal/pkg/logger"
	"marketplace-order-service/internal/repository"
	"marketplace-order-service/internal/service"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const staleBatch = 500

func main() {
	_ = godotenv.Load()

	isDev := os.Getenv("ENV") == "development"
	if err := logger.Init(isDev); err != nil {
		panic(err)
	}
	defer logger.Sync()

	if len(os.Args) < 2 {
		fmt.Println("Usage: go run cmd/jobs/main.go [stock|stale|all]")
		fmt.Println("  stock - retry pending and failed stock adjustments")
		fmt.Println("  stale - cancel unpaid orders older than PENDING_ORDER_TTL")
		fmt.Println("  all   - run both jobs")
		os.Exit(1)
	}

	log := logger.L()
	cfg := config.Load(log)

	db := database.ConnectDB(&cfg.DB.Config, log)
	defer database.CloseDB(db, log)

	store := service.NewStore(repository.New(db))
	stock := service.NewStockAdjuster(store, service.StockConfig{MaxAttempts: cfg.Jobs.StockMaxAttempts}, nil, log)
	orders := service.NewOrderService(store, service.Options{}, log)

	ctx := context.Background()

	runStock := func() {
		log.Info("running stock adjustment retry")
		rep, err := stock.ProcessPending(ctx)
		if err != nil {
			log.Fatal("failed to process stock adjustments", zap.Error(err))
		}
		log.Info("stock adjustments processed", zap.Int("applied", rep.Applied), zap.Int("failed", rep.Failed))
	}
	runStale := func() {
		log.Info("running stale order cancellation")
		n, err := orders.CancelStalePending(ctx, cfg.Jobs.PendingOrderTTL, staleBatch)
		if err != nil {
			log.Fatal("failed to cancel stale orders", zap.Error(err))
		}
		log.Info("stale orders cancelled", zap.Int("count", n))
	}

	switch os.Args[1] {
	case "stock":
		runStock()
	case "stale":
		runStale()
	default:
		runStock()
		runStale()
	}

	log.Info("jobs completed successfully")
}
