package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var ErrTxDone = errors.New("repository: transaction already finished")

type Repository struct {
	DB               *gorm.DB
	Users            UserRepo
	Carts            CartRepo
	Catalog          CatalogRepo
	Coupons          CouponRepo
	Orders           OrderRepo
	Payments         PaymentRepo
	StockAdjustments StockAdjustmentRepo
}

func buildRepository(db *gorm.DB) *Repository {
	return &Repository{
		DB:               db,
		Users:            NewUserRepo(db),
		Carts:            NewCartRepo(db),
		Catalog:          NewCatalogRepo(db),
		Coupons:          NewCouponRepo(db),
		Orders:           NewOrderRepo(db),
		Payments:         NewPaymentRepo(db),
		StockAdjustments: NewStockAdjustmentRepo(db),
	}
}

func New(db *gorm.DB) *Repository { return buildRepository(db) }

// Tx is a repository set bound to one database transaction. Callers defer
// Rollback right after Begin and call Commit on success; Rollback after a
// successful Commit is a no-op.
type Tx struct {
	*Repository
	tx   *gorm.DB
	done bool
}

func (r *Repository) Begin(ctx context.Context) (*Tx, error) {
	tx := r.DB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &Tx{
		Repository: buildRepository(tx),
		tx:         tx,
	}, nil
}

func (t *Tx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	return t.tx.Commit().Error
}

func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback().Error
}
