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

type OrderListFilter struct {
	UserID   *uuid.UUID
	VendorID *uuid.UUID
	Status   *models.OrderStatus
	Limit    int
	Offset   int
}

// StatusChange is a conditional status update: it applies only while the
// order is still in From.
type StatusChange struct {
	From         models.OrderStatus
	To           models.OrderStatus
	TrackingID   *string
	CancelReason *string
}

type OrderRepo interface {
	// CreateBatch inserts the orders together with their items.
	CreateBatch(ctx context.Context, orders []*models.Order) error
	CodeExists(ctx context.Context, code string) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// LockByIDsForUser returns the user's orders among ids, row-locked.
	LockByIDsForUser(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) ([]models.Order, error)
	List(ctx context.Context, f OrderListFilter) ([]*models.Order, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, ch StatusChange) (bool, error)
	// MarkProcessing moves pending orders among ids to processing and
	// returns the ids it changed.
	MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)
	LinkPayment(ctx context.Context, paymentID uuid.UUID, orderIDs []uuid.UUID) error
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]models.Order, error)
}

type orderRepo struct{ db *gorm.DB }

func NewOrderRepo(db *gorm.DB) OrderRepo { return &orderRepo{db: db} }

func (r *orderRepo) CreateBatch(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(orders).Error
}

func (r *orderRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&models.Order{}).Where("code = ?", code).Count(&cnt).Error
	return cnt > 0, err
}

func (r *orderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var ord models.Order
	err := r.db.WithContext(ctx).Preload("Items").Preload("Payments").First(&ord, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ord, nil
}

func (r *orderRepo) LockByIDsForUser(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) ([]models.Order, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var list []models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ? AND user_id = ?", ids, userID).
		Order("id").
		Preload("Items").
		Find(&list).Error
	return list, err
}

func (r *orderRepo) List(ctx context.Context, f OrderListFilter) ([]*models.Order, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{})

	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.VendorID != nil {
		q = q.Where("vendor_id = ?", *f.VendorID)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var list []*models.Order
	err := q.Order("created_at DESC").Limit(f.Limit).Offset(f.Offset).Preload("Items").Find(&list).Error
	return list, total, err
}

func (r *orderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, ch StatusChange) (bool, error) {
	upd := map[string]any{"status": ch.To}
	if ch.TrackingID != nil {
		upd["tracking_id"] = *ch.TrackingID
	}
	if ch.CancelReason != nil {
		upd["cancel_reason"] = *ch.CancelReason
	}
	tx := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, ch.From).
		Updates(upd)
	return tx.RowsAffected > 0, tx.Error
}

func (r *orderRepo) MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []struct{ ID uuid.UUID }
	err := r.db.WithContext(ctx).Raw(`
UPDATE orders
SET status = ?, updated_at = now()
WHERE id IN ? AND status = ?
RETURNING id
`, models.OrderStatusProcessing, ids, models.OrderStatusPending).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ID)
	}
	return out, nil
}

func (r *orderRepo) LinkPayment(ctx context.Context, paymentID uuid.UUID, orderIDs []uuid.UUID) error {
	if len(orderIDs) == 0 {
		return nil
	}
	links := make([]models.OrderPayment, 0, len(orderIDs))
	for _, id := range orderIDs {
		links = append(links, models.OrderPayment{OrderID: id, PaymentID: paymentID})
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error
}

func (r *orderRepo) ListStalePending(ctx context.Context, before time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var list []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.OrderStatusPending, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}
