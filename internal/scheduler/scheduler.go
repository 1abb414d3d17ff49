package scheduler

import (
	"context"
	"sync"
	"time"

	"marketplace-order-service/internal/service"

	"go.uber.org/zap"
)

type StockSweeper interface {
	ProcessPending(ctx context.Context) (service.StockReport, error)
}

type StaleOrderCanceller interface {
	CancelStalePending(ctx context.Context, ttl time.Duration, limit int) (int, error)
}

type Config struct {
	StockInterval   time.Duration
	PendingInterval time.Duration
	PendingTTL      time.Duration
	PendingBatch    int
}

type Scheduler struct {
	stock   StockSweeper
	orders  StaleOrderCanceller
	cfg     Config
	log     *zap.Logger
	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

func NewScheduler(stock StockSweeper, orders StaleOrderCanceller, cfg Config, log *zap.Logger) *Scheduler {
	if cfg.StockInterval <= 0 {
		cfg.StockInterval = time.Minute
	}
	if cfg.PendingInterval <= 0 {
		cfg.PendingInterval = time.Hour
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 48 * time.Hour
	}
	if cfg.PendingBatch <= 0 {
		cfg.PendingBatch = 500
	}
	return &Scheduler{
		stock:  stock,
		orders: orders,
		cfg:    cfg,
		log:    log,
		stopCh: make(chan struct{}),
	}
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("Запуск планировщика фоновых задач",
		zap.Duration("stock_interval", s.cfg.StockInterval),
		zap.Duration("pending_ttl", s.cfg.PendingTTL))

	s.wg.Add(2)
	go s.loop(ctx, "stock_retry", s.cfg.StockInterval, s.retryStock)
	go s.loop(ctx, "stale_orders", s.cfg.PendingInterval, s.cancelStale)
}

// Stop останавливает планировщик и ждёт завершения задач
func (s *Scheduler) Stop() {
	s.stopped.Do(func() {
		s.log.Info("Остановка планировщика")
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, name string, every time.Duration, job func(context.Context)) {
	defer s.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	// Выполняем сразу при старте
	job(ctx)

	for {
		select {
		case <-ticker.C:
			job(ctx)
		case <-s.stopCh:
			s.log.Info("Задача остановлена", zap.String("job", name))
			return
		case <-ctx.Done():
			s.log.Info("Задача отменена", zap.String("job", name))
			return
		}
	}
}

func (s *Scheduler) retryStock(ctx context.Context) {
	rep, err := s.stock.ProcessPending(ctx)
	if err != nil {
		s.log.Error("Ошибка повторной корректировки остатков", zap.Error(err))
		return
	}
	if rep.Applied > 0 || rep.Failed > 0 {
		s.log.Info("Повторная корректировка остатков",
			zap.Int("applied", rep.Applied),
			zap.Int("failed", rep.Failed),
			zap.Int("skipped", rep.Skipped))
	}
}

func (s *Scheduler) cancelStale(ctx context.Context) {
	n, err := s.orders.CancelStalePending(ctx, s.cfg.PendingTTL, s.cfg.PendingBatch)
	if err != nil {
		s.log.Error("Ошибка отмены неоплаченных заказов", zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("Отменены неоплаченные заказы", zap.Int("count", n))
	}
}

// RunOnceNow выполняет все задачи немедленно
func (s *Scheduler) RunOnceNow(ctx context.Context) {
	s.retryStock(ctx)
	s.cancelStale(ctx)
}
