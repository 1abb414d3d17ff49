package service

import (
	"context"
	"strings"
	"time"

	"marketplace-order-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const ReasonPaymentTimeout = "payment_timeout"

type CreateOrderInput struct {
	ShippingAddress *models.Address
	CouponCode      string
}

type ListFilter struct {
	Status *models.OrderStatus
	Limit  int
	Offset int
}

type UpdateStatusInput struct {
	Status     models.OrderStatus
	TrackingID string
	Reason     string
}

type VendorAllocation struct {
	VendorID   uuid.UUID       `json:"vendor_id"`
	VendorName string          `json:"vendor_name"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Discount   decimal.Decimal `json:"discount"`
	Total      decimal.Decimal `json:"total"`
}

type CouponPreview struct {
	Code      string             `json:"code"`
	CartTotal decimal.Decimal    `json:"cart_total"`
	Discount  decimal.Decimal    `json:"discount"`
	Total     decimal.Decimal    `json:"total"`
	Vendors   []VendorAllocation `json:"vendors"`
}

type Options struct {
	Events  EventBus
	Metrics Metrics
	Now     func() time.Time
	Codes   CodeGenerator
}

// OrderService runs checkout and order lifecycle operations for the
// authenticated caller found in ctx.
type OrderService struct {
	store     Store
	cart      *CartReader
	coupons   *CouponVerifier
	persister *OrderPersister
	events    EventBus
	metrics   Metrics
	now       func() time.Time
	log       *zap.Logger
}

func NewOrderService(store Store, opts Options, log *zap.Logger) *OrderService {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &OrderService{
		store:     store,
		cart:      NewCartReader(store, log),
		coupons:   NewCouponVerifier(store, now),
		persister: NewOrderPersister(store, opts.Codes, now, log),
		events:    opts.Events,
		metrics:   metricsOrNop(opts.Metrics),
		now:       now,
		log:       log,
	}
}

func validAddress(a *models.Address) bool {
	if a == nil {
		return false
	}
	for _, v := range []string{a.FullName, a.Line1, a.City, a.PostalCode, a.Country} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

func cartTotal(items []ResolvedCartItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(toOrderItem(it).LineTotal)
	}
	return total
}

// priceCart reads the cart and applies an optional coupon.
func (s *OrderService) priceCart(ctx context.Context, userID uuid.UUID, code string) ([]ResolvedCartItem, *VerifiedCoupon, []DraftOrder, error) {
	items, err := s.cart.ReadCart(ctx, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(items) == 0 {
		return nil, nil, nil, ErrEmptyCart
	}

	var vc *VerifiedCoupon
	if strings.TrimSpace(code) != "" {
		vc, err = s.coupons.Verify(ctx, code, userID, cartTotal(items))
		if err != nil {
			return nil, nil, nil, err
		}
		if vc.Scope == models.CouponScopeVendor && !hasVendor(items, vc) {
			return nil, nil, nil, ErrCouponNotApplicable
		}
	}
	return items, vc, Split(items, vc), nil
}

func hasVendor(items []ResolvedCartItem, vc *VerifiedCoupon) bool {
	for _, it := range items {
		if vc.AppliesTo(it.VendorID) {
			return true
		}
	}
	return false
}

// CreateOrder turns the caller's cart into one order per vendor.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (_ []CreatedOrder, err error) {
	start := s.now()
	userID, _, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}
	ctx, span := startSpan(ctx, "CreateOrder", attribute.String("user.id", userID.String()))
	defer func() {
		endSpan(span, err)
		if err != nil {
			s.metrics.CheckoutFailed(KindOf(err))
		}
	}()

	if !validAddress(in.ShippingAddress) {
		return nil, ErrAddressRequired
	}

	_, vc, drafts, err := s.priceCart(ctx, userID, in.CouponCode)
	if err != nil {
		return nil, err
	}

	checkoutID := uuid.New()
	created, err := s.persister.Persist(ctx, userID, Checkout{
		CheckoutID:      checkoutID,
		ShippingAddress: *in.ShippingAddress,
		Drafts:          drafts,
		Coupon:          vc,
	})
	if err != nil {
		return nil, err
	}

	s.metrics.CheckoutCompleted(len(created), s.now().Sub(start))
	s.publishCreated(ctx, userID, checkoutID, drafts, created)
	return created, nil
}

func (s *OrderService) publishCreated(ctx context.Context, userID, checkoutID uuid.UUID, drafts []DraftOrder, created []CreatedOrder) {
	if s.events == nil {
		return
	}
	now := s.now().UTC()
	for i, c := range created {
		d := drafts[i]
		ev := OrderCreatedEvent{
			OrderID:     c.OrderID,
			Code:        c.Code,
			CheckoutID:  checkoutID,
			UserID:      userID,
			VendorID:    c.VendorID,
			Subtotal:    d.Subtotal,
			Discount:    d.Discount,
			TotalAmount: d.Total,
			CreatedAt:   now,
		}
		if d.CouponCode != nil {
			ev.CouponCode = *d.CouponCode
		}
		for _, it := range d.Items {
			ev.Items = append(ev.Items, OrderItemEvent{
				ProductID: it.ProductID,
				VariantID: it.VariantID,
				Family:    it.Family,
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice,
				LineTotal: it.LineTotal,
			})
		}
		if err := s.events.PublishOrderCreated(ctx, ev); err != nil {
			s.log.Error("Не удалось опубликовать событие создания заказа",
				zap.String("order_id", c.OrderID.String()), zap.Error(err))
		}
	}
}

// PreviewCoupon verifies code against the caller's cart without persisting.
func (s *OrderService) PreviewCoupon(ctx context.Context, code string) (*CouponPreview, error) {
	userID, _, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}
	items, vc, drafts, err := s.priceCart(ctx, userID, code)
	if err != nil {
		return nil, err
	}
	if vc == nil {
		return nil, ErrCouponNotFound
	}

	p := &CouponPreview{Code: vc.Code, CartTotal: cartTotal(items), Discount: decimal.Zero, Total: decimal.Zero}
	for _, d := range drafts {
		p.Discount = p.Discount.Add(d.Discount)
		p.Total = p.Total.Add(d.Total)
		p.Vendors = append(p.Vendors, VendorAllocation{
			VendorID:   d.VendorID,
			VendorName: d.VendorName,
			Subtotal:   d.Subtotal,
			Discount:   d.Discount,
			Total:      d.Total,
		})
	}
	return p, nil
}

// canSee hides orders of other customers and vendors behind not-found.
func canSee(ctx context.Context, o *models.Order, userID uuid.UUID, role Role) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleVendor:
		vid, ok := VendorIDFromContext(ctx)
		return ok && o.VendorID == vid
	default:
		return o.UserID == userID
	}
}

func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	userID, role, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}
	o, err := s.store.Orders().GetByID(ctx, id)
	if err != nil {
		return nil, internalErr("order_read_failed", err)
	}
	if o == nil || !canSee(ctx, o, userID, role) {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (s *OrderService) ListOrders(ctx context.Context, f ListFilter) ([]*models.Order, int64, error) {
	userID, role, err := requireAuth(ctx)
	if err != nil {
		return nil, 0, err
	}
	if f.Status != nil && !f.Status.Valid() {
		return nil, 0, ErrInvalidStatus
	}
	rf := OrderListFilter{Status: f.Status, Limit: f.Limit, Offset: f.Offset}
	switch role {
	case RoleAdmin:
	case RoleVendor:
		vid, ok := VendorIDFromContext(ctx)
		if !ok {
			return nil, 0, ErrForbidden
		}
		rf.VendorID = &vid
	default:
		rf.UserID = &userID
	}
	list, total, err := s.store.Orders().List(ctx, rf)
	if err != nil {
		return nil, 0, internalErr("order_read_failed", err)
	}
	return list, total, nil
}

// UpdateStatus moves an order along the lifecycle. Vendors manage their own
// orders, admins any order, and customers may only cancel their own
// pending orders. Cancelling a paid order queues a restock.
func (s *OrderService) UpdateStatus(ctx context.Context, id uuid.UUID, in UpdateStatusInput) (_ *models.Order, err error) {
	userID, role, err := requireAuth(ctx)
	if err != nil {
		return nil, err
	}
	ctx, span := startSpan(ctx, "UpdateOrderStatus",
		attribute.String("order.id", id.String()),
		attribute.String("order.status", string(in.Status)))
	defer func() { endSpan(span, err) }()

	if !in.Status.Valid() {
		return nil, ErrInvalidStatus
	}

	o, err := s.store.Orders().GetByID(ctx, id)
	if err != nil {
		return nil, internalErr("order_read_failed", err)
	}
	if o == nil || !canSee(ctx, o, userID, role) {
		return nil, ErrOrderNotFound
	}
	if role == RoleCustomer && !(o.Status == models.OrderStatusPending && in.Status == models.OrderStatusCancelled) {
		return nil, ErrForbidden
	}
	// Payment confirmation owns pending -> processing; only admins override it.
	if in.Status == models.OrderStatusProcessing && role != RoleAdmin {
		return nil, ErrForbidden
	}
	if !o.Status.CanTransitionTo(in.Status) {
		return nil, ErrInvalidTransition
	}

	ch := StatusChange{From: o.Status, To: in.Status}
	if in.Status == models.OrderStatusShipped {
		tracking := strings.TrimSpace(in.TrackingID)
		if tracking == "" {
			return nil, ErrTrackingRequired
		}
		ch.TrackingID = &tracking
	}
	if in.Status == models.OrderStatusCancelled {
		reason := strings.TrimSpace(in.Reason)
		if reason == "" {
			reason = "cancelled_by_" + strings.ToLower(strings.TrimPrefix(string(role), "ROLE_"))
		}
		ch.CancelReason = &reason
	}

	if err := s.applyStatusChange(ctx, o, ch); err != nil {
		return nil, err
	}

	updated, err := s.store.Orders().GetByID(ctx, id)
	if err != nil {
		return nil, internalErr("order_read_failed", err)
	}
	s.publishStatusChanged(ctx, o, ch)
	return updated, nil
}

func (s *OrderService) applyStatusChange(ctx context.Context, o *models.Order, ch StatusChange) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return internalErr("transaction_failed", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Warn("Ошибка отката транзакции", zap.Error(rbErr))
		}
	}()

	ok, err := tx.Orders().UpdateStatus(ctx, o.ID, ch)
	if err != nil {
		return internalErr("transaction_failed", err)
	}
	if !ok {
		return ErrInvalidTransition
	}
	if ch.From == models.OrderStatusProcessing && ch.To == models.OrderStatusCancelled {
		if err := queueRestock(ctx, tx, o.ID); err != nil {
			return internalErr("transaction_failed", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return internalErr("transaction_failed", err)
	}
	s.log.Info("Статус заказа изменён",
		zap.String("order_id", o.ID.String()),
		zap.String("from", string(ch.From)),
		zap.String("to", string(ch.To)))
	return nil
}

// queueRestock closes the payment decrements of a cancelled order that
// were never taken and queues increases for the ones that were.
func queueRestock(ctx context.Context, tx Tx, orderID uuid.UUID) error {
	if _, err := tx.StockAdjustments().Supersede(ctx, orderID, models.StockReasonPayment); err != nil {
		return err
	}
	taken, err := tx.StockAdjustments().ListApplied(ctx, orderID, models.StockReasonPayment)
	if err != nil {
		return err
	}
	_, err = tx.StockAdjustments().Enqueue(ctx, restockRows(taken))
	return err
}

func (s *OrderService) publishStatusChanged(ctx context.Context, o *models.Order, ch StatusChange) {
	if s.events == nil {
		return
	}
	ev := OrderStatusChangedEvent{
		OrderID:   o.ID,
		UserID:    o.UserID,
		VendorID:  o.VendorID,
		From:      string(ch.From),
		To:        string(ch.To),
		ChangedAt: s.now().UTC(),
	}
	if ch.TrackingID != nil {
		ev.TrackingID = *ch.TrackingID
	}
	if ch.CancelReason != nil {
		ev.Reason = *ch.CancelReason
	}
	if err := s.events.PublishOrderStatusChanged(ctx, ev); err != nil {
		s.log.Error("Не удалось опубликовать смену статуса", zap.String("order_id", o.ID.String()), zap.Error(err))
	}
}

// CancelStalePending cancels unpaid orders older than ttl so they stop
// counting toward coupon usage. It returns the number cancelled.
func (s *OrderService) CancelStalePending(ctx context.Context, ttl time.Duration, limit int) (int, error) {
	stale, err := s.store.Orders().ListStalePending(ctx, s.now().Add(-ttl), limit)
	if err != nil {
		return 0, internalErr("order_read_failed", err)
	}
	reason := ReasonPaymentTimeout
	cancelled := 0
	for i := range stale {
		o := &stale[i]
		ch := StatusChange{From: models.OrderStatusPending, To: models.OrderStatusCancelled, CancelReason: &reason}
		ok, err := s.store.Orders().UpdateStatus(ctx, o.ID, ch)
		if err != nil {
			return cancelled, internalErr("order_update_failed", err)
		}
		if !ok {
			continue
		}
		cancelled++
		s.publishStatusChanged(ctx, o, ch)
	}
	return cancelled, nil
}
