package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"marketplace-order-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	EventOrderPaid = "order.paid"

	WebhookProcessed = "processed"
	WebhookIgnored   = "ignored"
	WebhookDuplicate = "duplicate"

	stockJobTimeout = 2 * time.Minute
)

type WebhookResult struct {
	Status    string      `json:"status"`
	PaymentID uuid.UUID   `json:"payment_id,omitempty"`
	OrderIDs  []uuid.UUID `json:"order_ids,omitempty"`
}

// StockProcessor applies queued stock adjustments of the given orders.
type StockProcessor interface {
	ProcessOrders(ctx context.Context, orderIDs []uuid.UUID) (StockReport, error)
}

type PaymentWebhookConfig struct {
	Provider string
	Secret   string
}

// PaymentWebhook reconciles gateway payment confirmations with orders.
type PaymentWebhook struct {
	store    Store
	provider string
	secret   []byte
	dedupe   WebhookDeduper
	stock    StockProcessor
	events   EventBus
	metrics  Metrics
	now      func() time.Time
	log      *zap.Logger

	wg sync.WaitGroup
}

type WebhookOptions struct {
	Dedupe  WebhookDeduper
	Stock   StockProcessor
	Events  EventBus
	Metrics Metrics
	Now     func() time.Time
}

func NewPaymentWebhook(store Store, cfg PaymentWebhookConfig, opts WebhookOptions, log *zap.Logger) *PaymentWebhook {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &PaymentWebhook{
		store:    store,
		provider: cfg.Provider,
		secret:   []byte(cfg.Secret),
		dedupe:   opts.Dedupe,
		stock:    opts.Stock,
		events:   opts.Events,
		metrics:  metricsOrNop(opts.Metrics),
		now:      now,
		log:      log,
	}
}

// Wait blocks until post-commit stock jobs started by Handle have finished.
func (h *PaymentWebhook) Wait() { h.wg.Wait() }

// VerifySignature checks the hex HMAC-SHA256 of body.
func (h *PaymentWebhook) VerifySignature(body []byte, signature string) bool {
	if len(h.secret) == 0 || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type paymentEntity struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Method   string `json:"method"`
	Notes    struct {
		OrderIDs json.RawMessage `json:"order_ids"`
		UserID   string          `json:"user_id"`
	} `json:"notes"`
}

// paymentConfirmation is the validated content of an order.paid event.
type paymentConfirmation struct {
	ProviderPaymentID string
	ProviderOrderID   string
	EventID           string
	Signature         string
	UserID            uuid.UUID
	OrderIDs          []uuid.UUID
	Amount            decimal.Decimal
	Currency          string
	Method            string
}

// Handle verifies, filters and reconciles one webhook delivery. Only a
// verified order.paid event has side effects.
func (h *PaymentWebhook) Handle(ctx context.Context, body []byte, signature, eventID string) (res WebhookResult, err error) {
	ctx, span := startSpan(ctx, "PaymentWebhook", attribute.String("payment.provider", h.provider))
	defer func() {
		span.SetAttributes(attribute.String("webhook.status", res.Status))
		endSpan(span, err)
		if err != nil {
			h.metrics.WebhookProcessed(string(KindOf(err)))
		} else {
			h.metrics.WebhookProcessed(res.Status)
		}
	}()

	if !h.VerifySignature(body, signature) {
		h.log.Warn("Неверная подпись вебхука оплаты", zap.String("event_id", eventID))
		return WebhookResult{}, ErrInvalidSignature
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return WebhookResult{}, ErrWebhookPayload
	}
	if env.Event != EventOrderPaid {
		h.log.Info("Событие вебхука пропущено", zap.String("event", env.Event))
		return WebhookResult{Status: WebhookIgnored}, nil
	}

	pc, err := extractConfirmation(env.Payload.Payment.Entity)
	if err != nil {
		return WebhookResult{}, err
	}
	pc.EventID = eventID
	pc.Signature = signature
	span.SetAttributes(attribute.String("payment.id", pc.ProviderPaymentID))

	if h.dedupe != nil {
		lockKey := "webhook:payment:" + pc.ProviderPaymentID
		acquired, derr := h.dedupe.Acquire(ctx, lockKey)
		switch {
		case derr != nil:
			h.log.Warn("Кэш дедупликации недоступен, продолжаем через БД", zap.Error(derr))
		case !acquired:
			h.log.Info("Оплата уже обрабатывается другой доставкой",
				zap.String("provider_payment_id", pc.ProviderPaymentID))
			return WebhookResult{}, ErrWebhookInFlight
		default:
			defer h.releaseLock(ctx, lockKey)
		}
	}

	res, paidOrders, err := h.reconcile(ctx, pc)
	if err != nil || res.Status == WebhookDuplicate {
		return res, err
	}

	h.log.Info("Оплата подтверждена",
		zap.String("provider_payment_id", pc.ProviderPaymentID),
		zap.String("payment_id", res.PaymentID.String()),
		zap.Int("orders", len(res.OrderIDs)))

	h.afterCommit(ctx, pc, res, paidOrders)
	return res, nil
}

// releaseLock frees the in-flight key even when the delivery's context
// is already cancelled.
func (h *PaymentWebhook) releaseLock(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := h.dedupe.Release(ctx, key); err != nil {
		h.log.Warn("Не удалось снять ключ дедупликации", zap.String("key", key), zap.Error(err))
	}
}

func extractConfirmation(e paymentEntity) (paymentConfirmation, error) {
	pc := paymentConfirmation{
		ProviderPaymentID: strings.TrimSpace(e.ID),
		ProviderOrderID:   e.OrderID,
		Amount:            decimal.New(e.Amount, -2),
		Currency:          strings.ToUpper(strings.TrimSpace(e.Currency)),
		Method:            e.Method,
	}
	if pc.ProviderPaymentID == "" || len(pc.Currency) != 3 || e.Amount < 0 {
		return pc, ErrWebhookMetadata
	}

	uid, err := uuid.Parse(strings.TrimSpace(e.Notes.UserID))
	if err != nil || uid == uuid.Nil {
		return pc, ErrWebhookMetadata
	}
	pc.UserID = uid

	ids, err := parseOrderIDs(e.Notes.OrderIDs)
	if err != nil || len(ids) == 0 {
		return pc, ErrWebhookMetadata
	}
	pc.OrderIDs = ids
	return pc, nil
}

// parseOrderIDs accepts a comma separated string or a JSON array of
// strings. Duplicates are removed, order is kept.
func parseOrderIDs(raw json.RawMessage) ([]uuid.UUID, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var parts []string
	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		parts = strings.Split(joined, ",")
	} else if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]struct{}, len(parts))
	ids := make([]uuid.UUID, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := uuid.Parse(p)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func (h *PaymentWebhook) reconcile(ctx context.Context, pc paymentConfirmation) (WebhookResult, []models.Order, error) {
	tx, err := h.store.Begin(ctx)
	if err != nil {
		return WebhookResult{}, nil, internalErr("transaction_failed", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil {
			h.log.Warn("Ошибка отката транзакции", zap.Error(rbErr))
		}
	}()

	existing, err := tx.Payments().GetByProviderPaymentID(ctx, pc.ProviderPaymentID)
	if err != nil {
		return WebhookResult{}, nil, internalErr("transaction_failed", err)
	}
	if existing != nil {
		return WebhookResult{Status: WebhookDuplicate, PaymentID: existing.ID}, nil, nil
	}

	orders, err := tx.Orders().LockByIDsForUser(ctx, pc.OrderIDs, pc.UserID)
	if err != nil {
		return WebhookResult{}, nil, internalErr("transaction_failed", err)
	}
	if len(orders) != len(pc.OrderIDs) {
		h.log.Warn("Заказы из вебхука не совпадают с заказами пользователя",
			zap.String("provider_payment_id", pc.ProviderPaymentID),
			zap.Int("expected", len(pc.OrderIDs)),
			zap.Int("found", len(orders)))
		return WebhookResult{}, nil, ErrOrdersMismatch
	}

	due := decimal.Zero
	for _, o := range orders {
		due = due.Add(o.TotalAmount)
	}
	if !due.Equal(pc.Amount) {
		h.log.Warn("Сумма оплаты не совпадает с суммой заказов",
			zap.String("provider_payment_id", pc.ProviderPaymentID),
			zap.String("paid", pc.Amount.StringFixed(2)),
			zap.String("due", due.StringFixed(2)))
	}

	rec := &models.PaymentRecord{
		ID:                uuid.New(),
		Provider:          h.provider,
		ProviderPaymentID: pc.ProviderPaymentID,
		ProviderOrderID:   pc.ProviderOrderID,
		ProviderEventID:   pc.EventID,
		UserID:            pc.UserID,
		Amount:            pc.Amount,
		Currency:          pc.Currency,
		Method:            pc.Method,
		Status:            models.PaymentSuccessful,
		Signature:         pc.Signature,
		CreatedAt:         h.now().UTC(),
	}
	created, err := tx.Payments().CreateIfAbsent(ctx, rec)
	if err != nil {
		return WebhookResult{}, nil, internalErr("transaction_failed", err)
	}
	if !created {
		return WebhookResult{Status: WebhookDuplicate}, nil, nil
	}

	if err := tx.Orders().LinkPayment(ctx, rec.ID, pc.OrderIDs); err != nil {
		return WebhookResult{}, nil, internalErr("transaction_failed", err)
	}

	changed, err := tx.Orders().MarkProcessing(ctx, pc.OrderIDs)
	if err != nil {
		return WebhookResult{}, nil, internalErr("transaction_failed", err)
	}
	if len(changed) != len(orders) {
		h.log.Warn("Часть оплаченных заказов не в статусе pending",
			zap.String("provider_payment_id", pc.ProviderPaymentID),
			zap.Int("changed", len(changed)),
			zap.Int("orders", len(orders)))
	}

	paid := ordersByID(orders, changed)
	if _, err := tx.StockAdjustments().Enqueue(ctx, stockRows(paid)); err != nil {
		return WebhookResult{}, nil, internalErr("transaction_failed", err)
	}

	if _, err := tx.Carts().ClearByUser(ctx, pc.UserID); err != nil {
		return WebhookResult{}, nil, internalErr("transaction_failed", err)
	}

	if err := tx.Commit(); err != nil {
		return WebhookResult{}, nil, internalErr("transaction_failed", err)
	}
	return WebhookResult{Status: WebhookProcessed, PaymentID: rec.ID, OrderIDs: pc.OrderIDs}, paid, nil
}

// afterCommit runs stock adjustment in the background and publishes the
// paid event. Neither can undo the recorded payment.
func (h *PaymentWebhook) afterCommit(ctx context.Context, pc paymentConfirmation, res WebhookResult, paid []models.Order) {
	if h.stock != nil && len(paid) > 0 {
		ids := make([]uuid.UUID, len(paid))
		for i, o := range paid {
			ids[i] = o.ID
		}
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stockJobTimeout)
			defer cancel()
			if _, err := h.stock.ProcessOrders(jobCtx, ids); err != nil {
				h.log.Error("Ошибка корректировки остатков после оплаты",
					zap.String("payment_id", res.PaymentID.String()), zap.Error(err))
			}
		}()
	}

	if h.events != nil {
		ev := OrderPaidEvent{
			PaymentID:         res.PaymentID,
			ProviderPaymentID: pc.ProviderPaymentID,
			UserID:            pc.UserID,
			OrderIDs:          res.OrderIDs,
			Amount:            pc.Amount,
			Currency:          pc.Currency,
			PaidAt:            h.now().UTC(),
		}
		if err := h.events.PublishOrderPaid(ctx, ev); err != nil {
			h.log.Error("Не удалось опубликовать событие оплаты", zap.Error(err))
		}
	}
}

func ordersByID(orders []models.Order, ids []uuid.UUID) []models.Order {
	want := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make([]models.Order, 0, len(ids))
	for _, o := range orders {
		if _, ok := want[o.ID]; ok {
			out = append(out, o)
		}
	}
	return out
}

// stockRows builds one payment decrement per order line.
func stockRows(orders []models.Order) []models.StockAdjustment {
	var rows []models.StockAdjustment
	for _, o := range orders {
		for _, it := range o.Items {
			if it.Quantity <= 0 {
				continue
			}
			rows = append(rows, models.StockAdjustment{
				OrderID:     o.ID,
				OrderItemID: it.ID,
				Reason:      models.StockReasonPayment,
				ProductID:   it.ProductID,
				VariantID:   it.VariantID,
				Family:      it.Family,
				Delta:       -it.Quantity,
				Status:      models.StockAdjustmentPending,
			})
		}
	}
	return rows
}

// restockRows reverses applied payment decrements.
func restockRows(taken []models.StockAdjustment) []models.StockAdjustment {
	rows := make([]models.StockAdjustment, 0, len(taken))
	for _, a := range taken {
		rows = append(rows, models.StockAdjustment{
			OrderID:     a.OrderID,
			OrderItemID: a.OrderItemID,
			Reason:      models.StockReasonCancellation,
			ProductID:   a.ProductID,
			VariantID:   a.VariantID,
			Family:      a.Family,
			Delta:       -a.Delta,
			Status:      models.StockAdjustmentPending,
		})
	}
	return rows
}
