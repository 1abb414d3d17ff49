package service

import (
	"context"
	"time"

	"marketplace-order-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const maxCodeAttempts = 5

// Checkout is everything the persister writes for one checkout.
type Checkout struct {
	CheckoutID      uuid.UUID
	ShippingAddress models.Address
	Drafts          []DraftOrder
	Coupon          *VerifiedCoupon
}

type CreatedOrder struct {
	OrderID     uuid.UUID       `json:"order_id"`
	Code        string          `json:"code"`
	VendorID    uuid.UUID       `json:"vendor_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Discount    decimal.Decimal `json:"discount"`
}

type OrderPersister struct {
	store Store
	codes CodeGenerator
	now   func() time.Time
	log   *zap.Logger
}

func NewOrderPersister(store Store, codes CodeGenerator, now func() time.Time, log *zap.Logger) *OrderPersister {
	if codes == nil {
		codes = NewOrderCode
	}
	if now == nil {
		now = time.Now
	}
	return &OrderPersister{store: store, codes: codes, now: now, log: log}
}

// Persist writes all draft orders of a checkout in one transaction. When a
// coupon is attached its row is locked and usage limits are checked again
// against committed orders. It does not touch the cart or stock.
func (p *OrderPersister) Persist(ctx context.Context, userID uuid.UUID, in Checkout) (_ []CreatedOrder, err error) {
	ctx, span := startSpan(ctx, "PersistOrders",
		attribute.String("user.id", userID.String()),
		attribute.Int("orders", len(in.Drafts)))
	defer func() { endSpan(span, err) }()

	if len(in.Drafts) == 0 {
		return nil, ErrEmptyCart
	}

	tx, err := p.store.Begin(ctx)
	if err != nil {
		return nil, internalErr("transaction_failed", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil {
			p.log.Warn("Ошибка отката транзакции", zap.Error(rbErr))
		}
	}()

	user, err := tx.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, internalErr("transaction_failed", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if in.Coupon != nil {
		if err := p.recheckCoupon(ctx, tx, in, userID); err != nil {
			return nil, err
		}
	}

	checkoutID := in.CheckoutID
	if checkoutID == uuid.Nil {
		checkoutID = uuid.New()
	}
	now := p.now().UTC()
	used := make(map[string]struct{}, len(in.Drafts))
	orders := make([]*models.Order, 0, len(in.Drafts))
	for _, d := range in.Drafts {
		code, err := p.uniqueCode(ctx, tx.Orders(), now, used)
		if err != nil {
			return nil, err
		}
		orders = append(orders, buildOrder(d, code, checkoutID, userID, in.ShippingAddress, now))
	}

	if err := tx.Orders().CreateBatch(ctx, orders); err != nil {
		return nil, internalErr("transaction_failed", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, internalErr("transaction_failed", err)
	}

	out := make([]CreatedOrder, 0, len(orders))
	for _, o := range orders {
		out = append(out, CreatedOrder{
			OrderID:     o.ID,
			Code:        o.Code,
			VendorID:    o.VendorID,
			TotalAmount: o.TotalAmount,
			Discount:    o.Discount,
		})
	}
	p.log.Info("Заказы созданы",
		zap.String("user_id", userID.String()),
		zap.String("checkout_id", checkoutID.String()),
		zap.Int("orders", len(out)))
	return out, nil
}

func (p *OrderPersister) recheckCoupon(ctx context.Context, tx Tx, in Checkout, userID uuid.UUID) error {
	c, err := tx.Coupons().LockByID(ctx, in.Coupon.ID)
	if err != nil {
		return internalErr("transaction_failed", err)
	}
	if c == nil {
		return ErrCouponNotFound
	}
	if !c.IsActive {
		return ErrCouponInactive
	}
	if !c.ExpiresAt.After(p.now()) {
		return ErrCouponExpired
	}
	return checkUsage(ctx, tx.Coupons(), c, userID)
}

func (p *OrderPersister) uniqueCode(ctx context.Context, orders OrderRepo, now time.Time, used map[string]struct{}) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := p.codes(now)
		if err != nil {
			return "", internalErr("order_code_failed", err)
		}
		if _, dup := used[code]; dup {
			continue
		}
		exists, err := orders.CodeExists(ctx, code)
		if err != nil {
			return "", internalErr("transaction_failed", err)
		}
		if !exists {
			used[code] = struct{}{}
			return code, nil
		}
	}
	return "", newError(KindInternal, "order_code_exhausted", "could not allocate an order code")
}

func buildOrder(d DraftOrder, code string, checkoutID, userID uuid.UUID, addr models.Address, now time.Time) *models.Order {
	id := uuid.New()
	items := make([]models.OrderItem, len(d.Items))
	for i, it := range d.Items {
		it.ID = uuid.New()
		it.OrderID = id
		it.CreatedAt = now
		items[i] = it
	}
	return &models.Order{
		ID:              id,
		Code:            code,
		CheckoutID:      checkoutID,
		UserID:          userID,
		VendorID:        d.VendorID,
		Status:          models.OrderStatusPending,
		ShippingAddress: datatypes.NewJSONType(addr),
		Subtotal:        d.Subtotal,
		Discount:        d.Discount,
		TotalAmount:     d.Total,
		CouponCode:      d.CouponCode,
		CreatedAt:       now,
		UpdatedAt:       now,
		Items:           items,
	}
}
