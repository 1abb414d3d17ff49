package repository

import (
	"context"
	"errors"

	"marketplace-order-service/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentRepo interface {
	// CreateIfAbsent inserts the record unless the provider payment id is
	// already stored. It reports whether a row was written.
	CreateIfAbsent(ctx context.Context, p *models.PaymentRecord) (bool, error)
	GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.PaymentRecord, error)
}

type paymentRepo struct{ db *gorm.DB }

func NewPaymentRepo(db *gorm.DB) PaymentRepo { return &paymentRepo{db: db} }

func (r *paymentRepo) CreateIfAbsent(ctx context.Context, p *models.PaymentRecord) (bool, error) {
	tx := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_payment_id"}},
			DoNothing: true,
		}).
		Create(p)
	return tx.RowsAffected == 1, tx.Error
}

func (r *paymentRepo) GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.PaymentRecord, error) {
	var p models.PaymentRecord
	err := r.db.WithContext(ctx).Preload("Orders").
		First(&p, "provider_payment_id = ?", providerPaymentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
