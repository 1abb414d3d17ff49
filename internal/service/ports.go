package service

import (
	"context"
	"time"

	"marketplace-order-service/internal/catalog"
	"marketplace-order-service/internal/models"
	"marketplace-order-service/internal/repository"

	"github.com/google/uuid"
)

// Aliases keep repository value types usable in the ports below so the
// gorm repositories satisfy them directly.
type (
	VariantKey      = repository.VariantKey
	CatalogItem     = repository.CatalogItem
	OrderListFilter = repository.OrderListFilter
	StatusChange    = repository.StatusChange
)

type UserRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type CartRepo interface {
	ItemsByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error)
	ClearByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

type CatalogRepo interface {
	Resolve(ctx context.Context, f catalog.Family, keys []VariantKey) (map[VariantKey]CatalogItem, error)
	AdjustStock(ctx context.Context, f catalog.Family, key VariantKey, delta int) (bool, error)
	Exists(ctx context.Context, f catalog.Family, key VariantKey) (bool, error)
}

type CouponRepo interface {
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	CountUsageByUser(ctx context.Context, code string, userID uuid.UUID) (int64, error)
	CountUsage(ctx context.Context, code string) (int64, error)
}

type OrderRepo interface {
	CreateBatch(ctx context.Context, orders []*models.Order) error
	CodeExists(ctx context.Context, code string) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockByIDsForUser(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) ([]models.Order, error)
	List(ctx context.Context, f OrderListFilter) ([]*models.Order, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, ch StatusChange) (bool, error)
	MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)
	LinkPayment(ctx context.Context, paymentID uuid.UUID, orderIDs []uuid.UUID) error
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]models.Order, error)
}

type PaymentRepo interface {
	CreateIfAbsent(ctx context.Context, p *models.PaymentRecord) (bool, error)
	GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.PaymentRecord, error)
}

type StockAdjustmentRepo interface {
	Enqueue(ctx context.Context, rows []models.StockAdjustment) (int64, error)
	ListOpen(ctx context.Context, orderIDs []uuid.UUID, maxAttempts, limit int) ([]models.StockAdjustment, error)
	Claim(ctx context.Context, id uuid.UUID) (*models.StockAdjustment, error)
	MarkApplied(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	Supersede(ctx context.Context, orderID uuid.UUID, reason models.StockReason) (int64, error)
	ListApplied(ctx context.Context, orderID uuid.UUID, reason models.StockReason) ([]models.StockAdjustment, error)
}

// Repos is the set of stores, either autocommit or bound to a transaction.
type Repos interface {
	Users() UserRepo
	Carts() CartRepo
	Catalog() CatalogRepo
	Coupons() CouponRepo
	Orders() OrderRepo
	Payments() PaymentRepo
	StockAdjustments() StockAdjustmentRepo
}

type Store interface {
	Repos
	Begin(ctx context.Context) (Tx, error)
}

// Tx must be finished with Commit or Rollback. Rollback after Commit is a
// no-op so it can always be deferred.
type Tx interface {
	Repos
	Commit() error
	Rollback() error
}

// WebhookDeduper is a short-lived in-flight lock per payment. The delivery
// that acquired a key releases it when it finishes, committed or not; the
// TTL only bounds a crashed holder. Whether a payment was already recorded
// is decided by storage alone.
type WebhookDeduper interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Metrics receives business counters. A nil Metrics is replaced by a no-op.
type Metrics interface {
	CheckoutCompleted(orders int, d time.Duration)
	CheckoutFailed(kind Kind)
	WebhookProcessed(outcome string)
	StockAdjusted(outcome string)
}

type nopMetrics struct{}

func (nopMetrics) CheckoutCompleted(int, time.Duration) {}
func (nopMetrics) CheckoutFailed(Kind)                  {}
func (nopMetrics) WebhookProcessed(string)              {}
func (nopMetrics) StockAdjusted(string)                 {}

func metricsOrNop(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
