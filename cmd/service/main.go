package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace-order-service/config"
	_ "marketplace-order-service/docs"
	"marketplace-order-service/internal/cache"
	"marketplace-order-service/internal/catalog"
	"marketplace-order-service/internal/metrics"
	"marketplace-order-service/internal/pkg/database"
	"marketplace-order-service/internal/pkg/logger"
	"marketplace-order-service/internal/producer"
	"marketplace-order-service/internal/repository"
	"marketplace-order-service/internal/scheduler"
	"marketplace-order-service/internal/service"
	httptransport "marketplace-order-service/internal/transport/http"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// @Title Marketplace Orders API
// @Version 1.0
// @Description Оформление и сопровождение заказов маркетплейса очков
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	_ = godotenv.Load()
	isDev := os.Getenv("ENV") == "development"
	if err := logger.Init(isDev); err != nil {
		panic(err)
	}

	defer logger.Sync()

	log := logger.L()

	cfg := config.Load(log)

	if err := catalog.Validate(); err != nil {
		log.Fatal("Некорректный реестр семейств товаров", zap.Error(err))
	}

	db := database.ConnectDB(&cfg.DB.Config, log)
	defer database.CloseDB(db, log)

	repos := repository.New(db)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := repos.Catalog.ValidateSchema(startupCtx); err != nil {
		startupCancel()
		log.Fatal("Схема каталога не соответствует реестру семейств", zap.Error(err))
	}
	startupCancel()

	store := service.NewStore(repos)
	promMetrics := metrics.New()

	var dedupe service.WebhookDeduper
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.LockTTL, log)
		if err != nil {
			log.Fatal("Не удалось подключиться к Redis", zap.Error(err))
		}
		defer redisClient.Close()
		dedupe = redisClient
	} else {
		log.Info("Redis отключён, дедупликация вебхуков только через БД")
	}

	var events service.EventBus
	if cfg.Kafka.Enabled {
		p := producer.NewOrderEventProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrders, log)
		defer p.Close()
		events = p
		log.Info("Публикация событий в Kafka включена", zap.String("topic", cfg.Kafka.TopicOrders))
	}

	stock := service.NewStockAdjuster(store, service.StockConfig{MaxAttempts: cfg.Jobs.StockMaxAttempts}, promMetrics, log)
	orders := service.NewOrderService(store, service.Options{Events: events, Metrics: promMetrics}, log)
	webhook := service.NewPaymentWebhook(store,
		service.PaymentWebhookConfig{Provider: cfg.Payment.Provider, Secret: cfg.Payment.WebhookSecret},
		service.WebhookOptions{Dedupe: dedupe, Stock: stock, Events: events, Metrics: promMetrics},
		log)

	jobs := scheduler.NewScheduler(stock, orders, scheduler.Config{
		StockInterval: cfg.Jobs.StockRetryInterval,
		PendingTTL:    cfg.Jobs.PendingOrderTTL,
	}, log)
	jobsCtx, jobsCancel := context.WithCancel(context.Background())
	defer jobsCancel()
	jobs.Start(jobsCtx)

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("Не удалось получить sql.DB", zap.Error(err))
	}
	r := httptransport.Router(httptransport.Deps{
		Orders:  orders,
		Webhook: webhook,
		Auth:    httptransport.NewTokenVerifier(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience),
		Metrics: promMetrics.Handler(),
		Health:  sqlDB.PingContext,
	}, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("Запуск HTTP сервера", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP сервер завершился с ошибкой", zap.Error(err))
		}
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			log.Fatal("failed to listen", zap.Error(err))
		}
		grpcServer = grpc.NewServer()

		healthSrv := health.NewServer()
		healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		grpc_health_v1.RegisterHealthServer(grpcServer, healthSrv)
		reflection.Register(grpcServer)

		go func() {
			log.Info("Запуск gRPC health сервера", zap.String("addr", lis.Addr().String()))
			if err := grpcServer.Serve(lis); err != nil {
				log.Error("gRPC сервер завершился с ошибкой", zap.Error(err))
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Остановка сервиса...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Ошибка остановки HTTP сервера", zap.Error(err))
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	// Останавливаем планировщик и ждём фоновые корректировки остатков
	jobs.Stop()
	jobsCancel()
	webhook.Wait()

	log.Info("Сервис остановлен")
}
