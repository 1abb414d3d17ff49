package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderItemEvent struct {
	ProductID uuid.UUID       `json:"product_id"`
	VariantID uuid.UUID       `json:"variant_id"`
	Family    string          `json:"family"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type OrderCreatedEvent struct {
	OrderID     uuid.UUID        `json:"order_id"`
	Code        string           `json:"code"`
	CheckoutID  uuid.UUID        `json:"checkout_id"`
	UserID      uuid.UUID        `json:"user_id"`
	VendorID    uuid.UUID        `json:"vendor_id"`
	Items       []OrderItemEvent `json:"items"`
	Subtotal    decimal.Decimal  `json:"subtotal"`
	Discount    decimal.Decimal  `json:"discount"`
	TotalAmount decimal.Decimal  `json:"total_amount"`
	CouponCode  string           `json:"coupon_code,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

type OrderPaidEvent struct {
	PaymentID         uuid.UUID       `json:"payment_id"`
	ProviderPaymentID string          `json:"provider_payment_id"`
	UserID            uuid.UUID       `json:"user_id"`
	OrderIDs          []uuid.UUID     `json:"order_ids"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	PaidAt            time.Time       `json:"paid_at"`
}

type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	UserID     uuid.UUID `json:"user_id"`
	VendorID   uuid.UUID `json:"vendor_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	TrackingID string    `json:"tracking_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	ChangedAt  time.Time `json:"changed_at"`
}

// EventBus publishes order lifecycle events after commit. A nil EventBus
// disables publishing.
type EventBus interface {
	PublishOrderCreated(ctx context.Context, e OrderCreatedEvent) error
	PublishOrderPaid(ctx context.Context, e OrderPaidEvent) error
	PublishOrderStatusChanged(ctx context.Context, e OrderStatusChangedEvent) error
}
