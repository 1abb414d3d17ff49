package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name      string    `gorm:"type:text;not null"`
	Email     string    `gorm:"type:text;not null;uniqueIndex"`
	Phone     string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (User) TableName() string { return "users" }

type Vendor struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	BusinessName string    `gorm:"type:text;not null"`
	CreatedAt    time.Time `gorm:"not null;default:now()"`
}

func (Vendor) TableName() string { return "vendors" }

type Address struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// LensPackage is the optional lens/prescription add-on attached to a frame
// or sunglass line.
type LensPackage struct {
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Prescription map[string]any  `json:"prescription,omitempty"`
}

type Cart struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex"`
	Items     []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time  `gorm:"not null;default:now()"`
	UpdatedAt time.Time  `gorm:"not null;default:now()"`
}

func (Cart) TableName() string { return "carts" }

// CartItem keeps the display snapshot captured when the item was added.
type CartItem struct {
	ID          uuid.UUID                        `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CartID      uuid.UUID                        `gorm:"type:uuid;not null;index"`
	ProductID   uuid.UUID                        `gorm:"type:uuid;not null"`
	VariantID   uuid.UUID                        `gorm:"type:uuid;not null"`
	Family      string                           `gorm:"type:text;not null"`
	Quantity    int                              `gorm:"not null"`
	Name        string                           `gorm:"type:text"`
	Brand       string                           `gorm:"type:text"`
	ProductCode string                           `gorm:"type:text"`
	Image       string                           `gorm:"type:text"`
	VendorName  string                           `gorm:"type:text"`
	UnitPrice   decimal.Decimal                  `gorm:"type:numeric(12,2);not null;default:0"`
	LensPackage *datatypes.JSONType[LensPackage] `gorm:"type:jsonb"`
	AddedAt     time.Time                        `gorm:"not null;default:now()"`
}

func (CartItem) TableName() string { return "cart_items" }

type Order struct {
	ID              uuid.UUID                   `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Code            string                      `gorm:"type:text;not null;uniqueIndex"`
	CheckoutID      uuid.UUID                   `gorm:"type:uuid;not null;index"`
	UserID          uuid.UUID                   `gorm:"type:uuid;not null;index"`
	VendorID        uuid.UUID                   `gorm:"type:uuid;not null;index"`
	Status          OrderStatus                 `gorm:"type:text;not null;default:'pending';index"`
	ShippingAddress datatypes.JSONType[Address] `gorm:"type:jsonb;not null"`
	Subtotal        decimal.Decimal             `gorm:"type:numeric(12,2);not null;default:0"`
	Discount        decimal.Decimal             `gorm:"type:numeric(12,2);not null;default:0"`
	TotalAmount     decimal.Decimal             `gorm:"type:numeric(12,2);not null;default:0"`
	CouponCode      *string                     `gorm:"type:text;index"`
	TrackingID      *string                     `gorm:"type:text"`
	CancelReason    *string                     `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:now();index"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`

	Items    []OrderItem    `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payments []OrderPayment `gorm:"foreignKey:OrderID"`
}

func (Order) TableName() string { return "orders" }

// OrderItem is written once at checkout and never updated.
type OrderItem struct {
	ID           uuid.UUID                        `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID      uuid.UUID                        `gorm:"type:uuid;not null;index"`
	ProductID    uuid.UUID                        `gorm:"type:uuid;not null"`
	VariantID    uuid.UUID                        `gorm:"type:uuid;not null"`
	Family       string                           `gorm:"type:text;not null"`
	VendorID     uuid.UUID                        `gorm:"type:uuid;not null"`
	VendorName   string                           `gorm:"type:text"`
	Name         string                           `gorm:"type:text"`
	Brand        string                           `gorm:"type:text"`
	ProductCode  string                           `gorm:"type:text"`
	Image        string                           `gorm:"type:text"`
	UnitPrice    decimal.Decimal                  `gorm:"type:numeric(12,2);not null"`
	Quantity     int                              `gorm:"not null"`
	PackagePrice decimal.Decimal                  `gorm:"type:numeric(12,2);not null;default:0"`
	LensPackage  *datatypes.JSONType[LensPackage] `gorm:"type:jsonb"`
	LineTotal    decimal.Decimal                  `gorm:"type:numeric(12,2);not null"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (OrderItem) TableName() string { return "order_items" }

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFlat       DiscountType = "flat"
)

type CouponScope string

const (
	CouponScopeGlobal CouponScope = "global"
	CouponScopeVendor CouponScope = "vendor"
)

type Coupon struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Code           string          `gorm:"type:text;not null"`
	DiscountType   DiscountType    `gorm:"type:text;not null"`
	Value          decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Scope          CouponScope     `gorm:"type:text;not null;default:'global'"`
	VendorID       *uuid.UUID      `gorm:"type:uuid;index"`
	MinOrderAmount decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	UsageLimit     int             `gorm:"not null;default:0"`
	PerUserLimit   int             `gorm:"not null;default:0"`
	ExpiresAt      time.Time       `gorm:"not null"`
	IsActive       bool            `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (Coupon) TableName() string { return "coupons" }

type PaymentStatus string

const (
	PaymentInitiated  PaymentStatus = "initiated"
	PaymentSuccessful PaymentStatus = "successful"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

type PaymentRecord struct {
	ID                uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Provider          string          `gorm:"type:text;not null"`
	ProviderPaymentID string          `gorm:"type:text;not null;uniqueIndex:ux_payment_records_provider_payment"`
	ProviderOrderID   string          `gorm:"type:text"`
	ProviderEventID   string          `gorm:"type:text"`
	UserID            uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount            decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Currency          string          `gorm:"type:char(3);not null"`
	Method            string          `gorm:"type:text"`
	Status            PaymentStatus   `gorm:"type:text;not null"`
	Signature         string          `gorm:"type:text;not null"`

	CreatedAt time.Time `gorm:"not null;default:now()"`

	Orders []OrderPayment `gorm:"foreignKey:PaymentID"`
}

func (PaymentRecord) TableName() string { return "payment_records" }

type OrderPayment struct {
	OrderID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	PaymentID uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (OrderPayment) TableName() string { return "order_payments" }

type StockReason string

const (
	StockReasonPayment      StockReason = "payment"
	StockReasonCancellation StockReason = "cancellation"
)

type StockAdjustmentStatus string

const (
	StockAdjustmentPending StockAdjustmentStatus = "pending"
	StockAdjustmentApplied StockAdjustmentStatus = "applied"
	StockAdjustmentFailed  StockAdjustmentStatus = "failed"

	// StockAdjustmentSuperseded closes a row that must never be applied,
	// such as the decrement of an order cancelled before it was taken.
	StockAdjustmentSuperseded StockAdjustmentStatus = "superseded"
)

// StockAdjustment is one queued counter change for one order line.
type StockAdjustment struct {
	ID          uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID     uuid.UUID             `gorm:"type:uuid;not null;index"`
	OrderItemID uuid.UUID             `gorm:"type:uuid;not null;uniqueIndex:ux_stock_adjustments_item_reason"`
	Reason      StockReason           `gorm:"type:text;not null;uniqueIndex:ux_stock_adjustments_item_reason"`
	ProductID   uuid.UUID             `gorm:"type:uuid;not null"`
	VariantID   uuid.UUID             `gorm:"type:uuid;not null"`
	Family      string                `gorm:"type:text;not null"`
	Delta       int                   `gorm:"not null"`
	Status      StockAdjustmentStatus `gorm:"type:text;not null;default:'pending';index"`
	Attempts    int                   `gorm:"not null;default:0"`
	LastError   *string               `gorm:"type:text"`
	AppliedAt   *time.Time

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (StockAdjustment) TableName() string { return "stock_adjustments" }
