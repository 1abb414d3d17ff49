package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"marketplace-order-service/internal/catalog"
	"marketplace-order-service/internal/models"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

type Direction int

const (
	Decrease Direction = -1
	Increase Direction = 1
)

// AdjustItem identifies the stock counter to change and by how much.
type AdjustItem struct {
	ProductID uuid.UUID
	VariantID uuid.UUID
	Family    catalog.Family
	Quantity  int
}

type StockReport struct {
	Applied int
	Failed  int
	Skipped int
}

type StockConfig struct {
	MaxAttempts int
	Concurrency int
	BatchSize   int
}

// StockAdjuster applies queued stock adjustments. Each queued row is
// applied and marked in its own transaction, so a row changes stock at
// most once and one failing row never blocks the others.
type StockAdjuster struct {
	store   Store
	cfg     StockConfig
	metrics Metrics
	now     func() time.Time
	log     *zap.Logger
	sweep   singleflight.Group
}

func NewStockAdjuster(store Store, cfg StockConfig, metrics Metrics, log *zap.Logger) *StockAdjuster {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	return &StockAdjuster{store: store, cfg: cfg, metrics: metricsOrNop(metrics), now: time.Now, log: log}
}

// Adjust changes one stock counter atomically outside the queue.
func (a *StockAdjuster) Adjust(ctx context.Context, item AdjustItem, dir Direction) error {
	return adjustWith(ctx, a.store.Catalog(), item, dir)
}

func adjustWith(ctx context.Context, cat CatalogRepo, item AdjustItem, dir Direction) error {
	if _, ok := catalog.Lookup(item.Family); !ok {
		return ErrUnknownFamily
	}
	if item.Quantity <= 0 {
		return nil
	}
	key := VariantKey{ProductID: item.ProductID, VariantID: item.VariantID}
	ok, err := cat.AdjustStock(ctx, item.Family, key, int(dir)*item.Quantity)
	if err != nil {
		return fmt.Errorf("adjust stock: %w", err)
	}
	if ok {
		return nil
	}
	exists, err := cat.Exists(ctx, item.Family, key)
	if err != nil {
		return fmt.Errorf("check variant: %w", err)
	}
	if !exists {
		return ErrVariantNotFound
	}
	return ErrInsufficientStock
}

// ProcessOrders applies the open adjustments of the given orders.
func (a *StockAdjuster) ProcessOrders(ctx context.Context, orderIDs []uuid.UUID) (StockReport, error) {
	if len(orderIDs) == 0 {
		return StockReport{}, nil
	}
	rows, err := a.store.StockAdjustments().ListOpen(ctx, orderIDs, a.cfg.MaxAttempts, 0)
	if err != nil {
		return StockReport{}, internalErr("stock_list_failed", err)
	}
	return a.process(ctx, rows), nil
}

// ProcessPending retries open adjustments of any order. Concurrent calls
// share one sweep.
func (a *StockAdjuster) ProcessPending(ctx context.Context) (StockReport, error) {
	v, err, _ := a.sweep.Do("pending", func() (any, error) {
		rows, err := a.store.StockAdjustments().ListOpen(ctx, nil, a.cfg.MaxAttempts, a.cfg.BatchSize)
		if err != nil {
			return StockReport{}, internalErr("stock_list_failed", err)
		}
		return a.process(ctx, rows), nil
	})
	if err != nil {
		return StockReport{}, err
	}
	return v.(StockReport), nil
}

func (a *StockAdjuster) process(ctx context.Context, rows []models.StockAdjustment) StockReport {
	if len(rows) == 0 {
		return StockReport{}
	}
	ctx, span := startSpan(ctx, "AdjustStock", attribute.Int("stock.rows", len(rows)))
	defer span.End()

	var applied, failed, skipped atomic.Int64
	var g errgroup.Group
	g.SetLimit(a.cfg.Concurrency)
	for _, row := range rows {
		row := row
		g.Go(func() error {
			done, err := a.applyOne(ctx, row)
			switch {
			case err != nil:
				failed.Add(1)
			case done:
				applied.Add(1)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	rep := StockReport{Applied: int(applied.Load()), Failed: int(failed.Load()), Skipped: int(skipped.Load())}
	span.SetAttributes(
		attribute.Int("stock.applied", rep.Applied),
		attribute.Int("stock.failed", rep.Failed),
	)
	return rep
}

// applyOne reports false without error when another worker owns the row
// or it was already applied.
func (a *StockAdjuster) applyOne(ctx context.Context, row models.StockAdjustment) (bool, error) {
	err := a.applyInTx(ctx, row.ID)
	if errors.Is(err, errAlreadyHandled) {
		return false, nil
	}
	if err == nil {
		a.metrics.StockAdjusted("applied")
		return true, nil
	}

	a.metrics.StockAdjusted("failed")
	a.log.Error("Не удалось скорректировать остаток",
		zap.String("adjustment_id", row.ID.String()),
		zap.String("order_id", row.OrderID.String()),
		zap.String("product_id", row.ProductID.String()),
		zap.String("variant_id", row.VariantID.String()),
		zap.String("family", row.Family),
		zap.Int("delta", row.Delta),
		zap.Error(err))
	if mErr := a.store.StockAdjustments().MarkFailed(ctx, row.ID, err.Error()); mErr != nil {
		a.log.Error("Не удалось отметить корректировку как неудачную",
			zap.String("adjustment_id", row.ID.String()), zap.Error(mErr))
	}
	return false, err
}

var errAlreadyHandled = errors.New("stock adjustment already handled")

func (a *StockAdjuster) applyInTx(ctx context.Context, id uuid.UUID) error {
	tx, err := a.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil {
			a.log.Warn("Ошибка отката транзакции", zap.Error(rbErr))
		}
	}()

	row, err := tx.StockAdjustments().Claim(ctx, id)
	if err != nil {
		return err
	}
	if row == nil {
		return errAlreadyHandled
	}

	family, err := catalog.ParseFamily(row.Family)
	if err != nil {
		return ErrUnknownFamily
	}
	dir, qty := Increase, row.Delta
	if row.Delta < 0 {
		dir, qty = Decrease, -row.Delta
	}
	item := AdjustItem{ProductID: row.ProductID, VariantID: row.VariantID, Family: family, Quantity: qty}
	if err := adjustWith(ctx, tx.Catalog(), item, dir); err != nil {
		return err
	}
	if err := tx.StockAdjustments().MarkApplied(ctx, row.ID, a.now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}
