package service_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"marketplace-order-service/internal/catalog"
	"marketplace-order-service/internal/models"
	"marketplace-order-service/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// fakeStore is an in-memory Store. Writes made through a Tx are journaled
// and only applied on Commit, so rolled back work leaves no trace.
type fakeStore struct {
	mu          sync.Mutex
	users       map[uuid.UUID]*models.User
	carts       map[uuid.UUID][]models.CartItem
	catalog     map[catalog.Family]map[service.VariantKey]*catalogEntry
	coupons     map[string]*models.Coupon
	orders      map[uuid.UUID]*models.Order
	payments    map[string]*models.PaymentRecord
	links       []models.OrderPayment
	adjustments []*models.StockAdjustment

	commits   int
	rollbacks int

	CreateBatchErr error
}

type catalogEntry struct {
	item   service.CatalogItem
	active bool
	stock  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[uuid.UUID]*models.User{},
		carts:    map[uuid.UUID][]models.CartItem{},
		catalog:  map[catalog.Family]map[service.VariantKey]*catalogEntry{},
		coupons:  map[string]*models.Coupon{},
		orders:   map[uuid.UUID]*models.Order{},
		payments: map[string]*models.PaymentRecord{},
	}
}

// apply runs op now outside a transaction or at commit inside one.
// Callers hold s.mu.
func (s *fakeStore) apply(tx *fakeTx, op func()) {
	if tx == nil {
		op()
		return
	}
	tx.ops = append(tx.ops, op)
}

func (s *fakeStore) Users() service.UserRepo       { return fakeUsers{s: s} }
func (s *fakeStore) Carts() service.CartRepo       { return fakeCarts{s: s} }
func (s *fakeStore) Catalog() service.CatalogRepo  { return fakeCatalog{s: s} }
func (s *fakeStore) Coupons() service.CouponRepo   { return fakeCoupons{s: s} }
func (s *fakeStore) Orders() service.OrderRepo     { return fakeOrders{s: s} }
func (s *fakeStore) Payments() service.PaymentRepo { return fakePayments{s: s} }
func (s *fakeStore) StockAdjustments() service.StockAdjustmentRepo {
	return fakeAdjustments{s: s}
}

func (s *fakeStore) Begin(ctx context.Context) (service.Tx, error) {
	return &fakeTx{s: s}, nil
}

type fakeTx struct {
	s    *fakeStore
	ops  []func()
	done bool
}

func (t *fakeTx) Users() service.UserRepo       { return fakeUsers{s: t.s} }
func (t *fakeTx) Carts() service.CartRepo       { return fakeCarts{s: t.s, tx: t} }
func (t *fakeTx) Catalog() service.CatalogRepo  { return fakeCatalog{s: t.s, tx: t} }
func (t *fakeTx) Coupons() service.CouponRepo   { return fakeCoupons{s: t.s} }
func (t *fakeTx) Orders() service.OrderRepo     { return fakeOrders{s: t.s, tx: t} }
func (t *fakeTx) Payments() service.PaymentRepo { return fakePayments{s: t.s, tx: t} }
func (t *fakeTx) StockAdjustments() service.StockAdjustmentRepo {
	return fakeAdjustments{s: t.s, tx: t}
}

func (t *fakeTx) Commit() error {
	if t.done {
		return errors.New("tx already finished")
	}
	t.done = true
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, op := range t.ops {
		op()
	}
	t.s.commits++
	return nil
}

func (t *fakeTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.s.mu.Lock()
	t.s.rollbacks++
	t.s.mu.Unlock()
	return nil
}

type fakeUsers struct{ s *fakeStore }

func (r fakeUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

type fakeCarts struct {
	s  *fakeStore
	tx *fakeTx
}

func (r fakeCarts) ItemsByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]models.CartItem(nil), r.s.carts[userID]...), nil
}

func (r fakeCarts) ClearByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := int64(len(r.s.carts[userID]))
	r.s.apply(r.tx, func() { delete(r.s.carts, userID) })
	return n, nil
}

type fakeCatalog struct {
	s  *fakeStore
	tx *fakeTx
}

func (r fakeCatalog) Resolve(ctx context.Context, f catalog.Family, keys []service.VariantKey) (map[service.VariantKey]service.CatalogItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := map[service.VariantKey]service.CatalogItem{}
	for _, k := range keys {
		if e, ok := r.s.catalog[f][k]; ok && e.active {
			item := e.item
			item.Stock = e.stock
			out[k] = item
		}
	}
	return out, nil
}

func (r fakeCatalog) AdjustStock(ctx context.Context, f catalog.Family, key service.VariantKey, delta int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.catalog[f][key]
	if !ok || e.stock+delta < 0 {
		return false, nil
	}
	r.s.apply(r.tx, func() { e.stock += delta })
	return true, nil
}

func (r fakeCatalog) Exists(ctx context.Context, f catalog.Family, key service.VariantKey) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.catalog[f][key]
	return ok, nil
}

type fakeCoupons struct{ s *fakeStore }

func (r fakeCoupons) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.coupons[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r fakeCoupons) LockByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.coupons {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r fakeCoupons) countUsage(code string, userID *uuid.UUID) int64 {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	checkouts := map[uuid.UUID]struct{}{}
	for _, o := range r.s.orders {
		if o.CouponCode == nil || !strings.EqualFold(*o.CouponCode, code) || o.Status == models.OrderStatusCancelled {
			continue
		}
		if userID != nil && o.UserID != *userID {
			continue
		}
		checkouts[o.CheckoutID] = struct{}{}
	}
	return int64(len(checkouts))
}

func (r fakeCoupons) CountUsageByUser(ctx context.Context, code string, userID uuid.UUID) (int64, error) {
	return r.countUsage(code, &userID), nil
}

func (r fakeCoupons) CountUsage(ctx context.Context, code string) (int64, error) {
	return r.countUsage(code, nil), nil
}

type fakeOrders struct {
	s  *fakeStore
	tx *fakeTx
}

func copyOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	return &cp
}

func (r fakeOrders) CreateBatch(ctx context.Context, orders []*models.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.CreateBatchErr != nil {
		return r.s.CreateBatchErr
	}
	for _, o := range orders {
		cp := copyOrder(o)
		r.s.apply(r.tx, func() { r.s.orders[cp.ID] = cp })
	}
	return nil
}

func (r fakeOrders) CodeExists(ctx context.Context, code string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.orders {
		if o.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (r fakeOrders) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, nil
	}
	return copyOrder(o), nil
}

func (r fakeOrders) LockByIDsForUser(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) ([]models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Order
	for _, id := range ids {
		if o, ok := r.s.orders[id]; ok && o.UserID == userID {
			out = append(out, *copyOrder(o))
		}
	}
	return out, nil
}

func (r fakeOrders) List(ctx context.Context, f service.OrderListFilter) ([]*models.Order, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Order
	for _, o := range r.s.orders {
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		if f.VendorID != nil && o.VendorID != *f.VendorID {
			continue
		}
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		out = append(out, copyOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, int64(len(out)), nil
}

func (r fakeOrders) UpdateStatus(ctx context.Context, id uuid.UUID, ch service.StatusChange) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok || o.Status != ch.From {
		return false, nil
	}
	r.s.apply(r.tx, func() {
		o.Status = ch.To
		if ch.TrackingID != nil {
			t := *ch.TrackingID
			o.TrackingID = &t
		}
		if ch.CancelReason != nil {
			c := *ch.CancelReason
			o.CancelReason = &c
		}
	})
	return true, nil
}

func (r fakeOrders) MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var changed []uuid.UUID
	for _, id := range ids {
		o, ok := r.s.orders[id]
		if !ok || o.Status != models.OrderStatusPending {
			continue
		}
		changed = append(changed, id)
		r.s.apply(r.tx, func() { o.Status = models.OrderStatusProcessing })
	}
	return changed, nil
}

func (r fakeOrders) LinkPayment(ctx context.Context, paymentID uuid.UUID, orderIDs []uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range orderIDs {
		link := models.OrderPayment{OrderID: id, PaymentID: paymentID}
		r.s.apply(r.tx, func() { r.s.links = append(r.s.links, link) })
	}
	return nil
}

func (r fakeOrders) ListStalePending(ctx context.Context, before time.Time, limit int) ([]models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Order
	for _, o := range r.s.orders {
		if o.Status == models.OrderStatusPending && o.CreatedAt.Before(before) {
			out = append(out, *copyOrder(o))
		}
	}
	return out, nil
}

type fakePayments struct {
	s  *fakeStore
	tx *fakeTx
}

func (r fakePayments) CreateIfAbsent(ctx context.Context, p *models.PaymentRecord) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.payments[p.ProviderPaymentID]; ok {
		return false, nil
	}
	cp := *p
	r.s.apply(r.tx, func() { r.s.payments[cp.ProviderPaymentID] = &cp })
	return true, nil
}

func (r fakePayments) GetByProviderPaymentID(ctx context.Context, id string) (*models.PaymentRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

type fakeAdjustments struct {
	s  *fakeStore
	tx *fakeTx
}

func (r fakeAdjustments) find(id uuid.UUID) *models.StockAdjustment {
	for _, a := range r.s.adjustments {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (r fakeAdjustments) Enqueue(ctx context.Context, rows []models.StockAdjustment) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, row := range rows {
		dup := false
		for _, a := range r.s.adjustments {
			if a.OrderItemID == row.OrderItemID && a.Reason == row.Reason {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		cp := row
		if cp.ID == uuid.Nil {
			cp.ID = uuid.New()
		}
		cp.CreatedAt = time.Now()
		n++
		r.s.apply(r.tx, func() { r.s.adjustments = append(r.s.adjustments, &cp) })
	}
	return n, nil
}

func (r fakeAdjustments) ListOpen(ctx context.Context, orderIDs []uuid.UUID, maxAttempts, limit int) ([]models.StockAdjustment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := map[uuid.UUID]bool{}
	for _, id := range orderIDs {
		want[id] = true
	}
	var out []models.StockAdjustment
	for _, a := range r.s.adjustments {
		if !isOpen(a) {
			continue
		}
		if maxAttempts > 0 && a.Attempts >= maxAttempts {
			continue
		}
		if len(want) > 0 && !want[a.OrderID] {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (r fakeAdjustments) Claim(ctx context.Context, id uuid.UUID) (*models.StockAdjustment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a := r.find(id)
	if a == nil || !isOpen(a) {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r fakeAdjustments) MarkApplied(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a := r.find(id)
	if a == nil {
		return errors.New("adjustment not found")
	}
	r.s.apply(r.tx, func() {
		a.Status = models.StockAdjustmentApplied
		a.Attempts++
		a.AppliedAt = &at
	})
	return nil
}

func (r fakeAdjustments) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a := r.find(id)
	if a == nil {
		return errors.New("adjustment not found")
	}
	if !isOpen(a) {
		return nil
	}
	r.s.apply(r.tx, func() {
		a.Status = models.StockAdjustmentFailed
		a.Attempts++
		a.LastError = &reason
	})
	return nil
}

func (r fakeAdjustments) Supersede(ctx context.Context, orderID uuid.UUID, reason models.StockReason) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, a := range r.s.adjustments {
		if a.OrderID != orderID || a.Reason != reason || !isOpen(a) {
			continue
		}
		n++
		r.s.apply(r.tx, func() { a.Status = models.StockAdjustmentSuperseded })
	}
	return n, nil
}

func (r fakeAdjustments) ListApplied(ctx context.Context, orderID uuid.UUID, reason models.StockReason) ([]models.StockAdjustment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.StockAdjustment
	for _, a := range r.s.adjustments {
		if a.OrderID == orderID && a.Reason == reason && a.Status == models.StockAdjustmentApplied {
			out = append(out, *a)
		}
	}
	return out, nil
}

func isOpen(a *models.StockAdjustment) bool {
	return a.Status == models.StockAdjustmentPending || a.Status == models.StockAdjustmentFailed
}

// Seeding helpers.

func (s *fakeStore) addUser() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.users[id] = &models.User{ID: id, Name: "Asha", Email: id.String() + "@example.com"}
	return id
}

func (s *fakeStore) addVariant(f catalog.Family, vendorID uuid.UUID, vendorName, price string, stock int) service.VariantKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := service.VariantKey{ProductID: uuid.New(), VariantID: uuid.New()}
	if f == catalog.FamilyAccessory {
		key.VariantID = key.ProductID
	}
	if s.catalog[f] == nil {
		s.catalog[f] = map[service.VariantKey]*catalogEntry{}
	}
	s.catalog[f][key] = &catalogEntry{
		item: service.CatalogItem{
			ProductID:   key.ProductID,
			VariantID:   key.VariantID,
			VendorID:    vendorID,
			VendorName:  vendorName,
			Name:        "Product " + key.ProductID.String()[:4],
			ProductCode: "P-" + key.ProductID.String()[:4],
			Price:       decimal.RequireFromString(price),
		},
		active: true,
		stock:  stock,
	}
	return key
}

func (s *fakeStore) deactivate(f catalog.Family, key service.VariantKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog[f][key].active = false
}

func (s *fakeStore) stockOf(f catalog.Family, key service.VariantKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog[f][key].stock
}

func (s *fakeStore) setStock(f catalog.Family, key service.VariantKey, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog[f][key].stock = stock
}

func (s *fakeStore) addToCart(userID uuid.UUID, f catalog.Family, key service.VariantKey, qty int, lens *models.LensPackage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := models.CartItem{
		ID:        uuid.New(),
		ProductID: key.ProductID,
		VariantID: key.VariantID,
		Family:    string(f),
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString("1"),
		AddedAt:   time.Now(),
	}
	if lens != nil {
		j := datatypes.NewJSONType(*lens)
		item.LensPackage = &j
	}
	s.carts[userID] = append(s.carts[userID], item)
}

func (s *fakeStore) addCoupon(c models.Coupon) *models.Coupon {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Code = strings.ToUpper(c.Code)
	s.coupons[c.Code] = &c
	return &c
}

func (s *fakeStore) putOrder(o *models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = copyOrder(o)
}

func (s *fakeStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *fakeStore) order(id uuid.UUID) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *copyOrder(s.orders[id])
}

func (s *fakeStore) cartSize(userID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.carts[userID])
}

func (s *fakeStore) adjustmentsSnapshot() []models.StockAdjustment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.StockAdjustment, 0, len(s.adjustments))
	for _, a := range s.adjustments {
		out = append(out, *a)
	}
	return out
}

// fakeEvents records published events.
type fakeEvents struct {
	mu      sync.Mutex
	created []service.OrderCreatedEvent
	paid    []service.OrderPaidEvent
	status  []service.OrderStatusChangedEvent
}

func (e *fakeEvents) PublishOrderCreated(ctx context.Context, ev service.OrderCreatedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created = append(e.created, ev)
	return nil
}

func (e *fakeEvents) PublishOrderPaid(ctx context.Context, ev service.OrderPaidEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paid = append(e.paid, ev)
	return nil
}

func (e *fakeEvents) PublishOrderStatusChanged(ctx context.Context, ev service.OrderStatusChangedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = append(e.status, ev)
	return nil
}

// fakeMetrics counts calls by label.
type fakeMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeMetrics() *fakeMetrics { return &fakeMetrics{counts: map[string]int{}} }

func (m *fakeMetrics) inc(k string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[k]++
}

func (m *fakeMetrics) get(k string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[k]
}

func (m *fakeMetrics) CheckoutCompleted(orders int, d time.Duration) { m.inc("checkout_completed") }
func (m *fakeMetrics) CheckoutFailed(kind service.Kind)             { m.inc("checkout_failed:" + string(kind)) }
func (m *fakeMetrics) WebhookProcessed(outcome string)              { m.inc("webhook:" + outcome) }
func (m *fakeMetrics) StockAdjusted(outcome string)                 { m.inc("stock:" + outcome) }

// authCtx returns a context carrying the caller identity.
func authCtx(userID uuid.UUID, role service.Role) context.Context {
	ctx := service.WithUserID(context.Background(), userID)
	return service.WithRole(ctx, role)
}

func vendorCtx(vendorID uuid.UUID) context.Context {
	ctx := authCtx(vendorID, service.RoleVendor)
	return service.WithVendorID(ctx, vendorID)
}
