package repository

import (
	"context"
	"errors"
	"strings"

	"marketplace-order-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CouponRepo interface {
	Create(ctx context.Context, c *models.Coupon) error
	// GetByCode matches case-insensitively.
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
	// LockByID takes a row lock for the rest of the transaction.
	LockByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	// CountUsageByUser and CountUsage count distinct checkouts whose
	// non-cancelled orders carry the code.
	CountUsageByUser(ctx context.Context, code string, userID uuid.UUID) (int64, error)
	CountUsage(ctx context.Context, code string) (int64, error)
}

type couponRepo struct{ db *gorm.DB }

func NewCouponRepo(db *gorm.DB) CouponRepo { return &couponRepo{db: db} }

func (r *couponRepo) Create(ctx context.Context, c *models.Coupon) error {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *couponRepo) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var c models.Coupon
	err := r.db.WithContext(ctx).Where("lower(code) = lower(?)", strings.TrimSpace(code)).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *couponRepo) LockByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	var c models.Coupon
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *couponRepo) usage(ctx context.Context, code string) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Order{}).
		Where("upper(coupon_code) = upper(?)", strings.TrimSpace(code)).
		Where("status <> ?", models.OrderStatusCancelled)
}

func (r *couponRepo) CountUsageByUser(ctx context.Context, code string, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.usage(ctx, code).Where("user_id = ?", userID).Distinct("checkout_id").Count(&n).Error
	return n, err
}

func (r *couponRepo) CountUsage(ctx context.Context, code string) (int64, error) {
	var n int64
	err := r.usage(ctx, code).Distinct("checkout_id").Count(&n).Error
	return n, err
}
