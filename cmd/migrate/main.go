package main

import (
	"context"
	"os"

	"marketplace-order-service/config"
	"marketplace-order-service/internal/migrate"
	"marketplace-order-service/internal/pkg/database"
	"marketplace-order-service/internal/pkg/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	isDev := os.Getenv("ENV") == "development"
	if err := logger.Init(isDev); err != nil {
		panic(err)
	}

	defer logger.Sync()

	log := logger.L()

	cfg := config.Load(log)

	db := database.ConnectDBForMigration(&cfg.DB.Config, log)
	defer database.CloseDB(db, log)

	opts := migrate.DefaultMigrateOptions()
	// Каталогом владеет отдельный сервис; локально таблицы создаём сами.
	opts.CreateCatalogTables = os.Getenv("MIGRATE_CATALOG") != "false"

	if err := migrate.MigrateOrderDB(context.Background(), db, log, opts); err != nil {
		log.Fatal("Ошибка при выполнении миграции", zap.Error(err))
	}

	log.Info("Миграция успешно завершена")
}
