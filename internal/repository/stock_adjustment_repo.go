package repository

import (
	"context"
	"errors"
	"time"

	"marketplace-order-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StockAdjustmentRepo interface {
	// Enqueue skips rows whose (order item, reason) pair already exists.
	Enqueue(ctx context.Context, rows []models.StockAdjustment) (int64, error)
	// ListOpen returns pending or failed rows below maxAttempts. When
	// orderIDs is empty every order is considered.
	ListOpen(ctx context.Context, orderIDs []uuid.UUID, maxAttempts, limit int) ([]models.StockAdjustment, error)
	// Claim locks an open row for the current transaction. Rows held by
	// another worker or already applied yield nil.
	Claim(ctx context.Context, id uuid.UUID) (*models.StockAdjustment, error)
	MarkApplied(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	// Supersede closes the open rows of an order for one reason. A row
	// locked by a worker is waited for and left alone once applied.
	Supersede(ctx context.Context, orderID uuid.UUID, reason models.StockReason) (int64, error)
	ListApplied(ctx context.Context, orderID uuid.UUID, reason models.StockReason) ([]models.StockAdjustment, error)
}

type stockAdjustmentRepo struct{ db *gorm.DB }

func NewStockAdjustmentRepo(db *gorm.DB) StockAdjustmentRepo { return &stockAdjustmentRepo{db: db} }

var openStatuses = []models.StockAdjustmentStatus{models.StockAdjustmentPending, models.StockAdjustmentFailed}

func (r *stockAdjustmentRepo) Enqueue(ctx context.Context, rows []models.StockAdjustment) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_item_id"}, {Name: "reason"}},
			DoNothing: true,
		}).
		Create(&rows)
	return tx.RowsAffected, tx.Error
}

func (r *stockAdjustmentRepo) ListOpen(ctx context.Context, orderIDs []uuid.UUID, maxAttempts, limit int) ([]models.StockAdjustment, error) {
	q := r.db.WithContext(ctx).Where("status IN ?", openStatuses)
	if len(orderIDs) > 0 {
		q = q.Where("order_id IN ?", orderIDs)
	}
	if maxAttempts > 0 {
		q = q.Where("attempts < ?", maxAttempts)
	}
	if limit <= 0 {
		limit = 500
	}
	var list []models.StockAdjustment
	err := q.Order("created_at ASC, id ASC").Limit(limit).Find(&list).Error
	return list, err
}

func (r *stockAdjustmentRepo) Claim(ctx context.Context, id uuid.UUID) (*models.StockAdjustment, error) {
	var row models.StockAdjustment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("id = ? AND status IN ?", id, openStatuses).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *stockAdjustmentRepo) MarkApplied(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.StockAdjustment{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     models.StockAdjustmentApplied,
			"applied_at": at,
			"last_error": nil,
			"attempts":   gorm.Expr("attempts + 1"),
		}).Error
}

func (r *stockAdjustmentRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return r.db.WithContext(ctx).Model(&models.StockAdjustment{}).
		Where("id = ? AND status IN ?", id, openStatuses).
		Updates(map[string]any{
			"status":     models.StockAdjustmentFailed,
			"last_error": reason,
			"attempts":   gorm.Expr("attempts + 1"),
		}).Error
}

func (r *stockAdjustmentRepo) Supersede(ctx context.Context, orderID uuid.UUID, reason models.StockReason) (int64, error) {
	tx := r.db.WithContext(ctx).Model(&models.StockAdjustment{}).
		Where("order_id = ? AND reason = ? AND status IN ?", orderID, reason, openStatuses).
		Update("status", models.StockAdjustmentSuperseded)
	return tx.RowsAffected, tx.Error
}

func (r *stockAdjustmentRepo) ListApplied(ctx context.Context, orderID uuid.UUID, reason models.StockReason) ([]models.StockAdjustment, error) {
	var list []models.StockAdjustment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND reason = ? AND status = ?", orderID, reason, models.StockAdjustmentApplied).
		Order("created_at ASC, id ASC").
		Find(&list).Error
	return list, err
}
