package service

import (
	"context"

	"marketplace-order-service/internal/repository"
)

// NewStore adapts the gorm repositories to the service ports.
func NewStore(r *repository.Repository) Store { return repoStore{r: r} }

type repoStore struct{ r *repository.Repository }

func (s repoStore) Users() UserRepo                       { return s.r.Users }
func (s repoStore) Carts() CartRepo                       { return s.r.Carts }
func (s repoStore) Catalog() CatalogRepo                  { return s.r.Catalog }
func (s repoStore) Coupons() CouponRepo                   { return s.r.Coupons }
func (s repoStore) Orders() OrderRepo                     { return s.r.Orders }
func (s repoStore) Payments() PaymentRepo                 { return s.r.Payments }
func (s repoStore) StockAdjustments() StockAdjustmentRepo { return s.r.StockAdjustments }

func (s repoStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.r.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return repoTx{repoStore: repoStore{r: tx.Repository}, tx: tx}, nil
}

type repoTx struct {
	repoStore
	tx *repository.Tx
}

func (t repoTx) Commit() error   { return t.tx.Commit() }
func (t repoTx) Rollback() error { return t.tx.Rollback() }
