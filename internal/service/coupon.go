package service

import (
	"context"
	"strings"
	"time"

	"marketplace-order-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

var hundred = decimal.NewFromInt(100)

// VerifiedCoupon is a coupon that passed eligibility checks for one user
// and cart amount. For global coupons Discount is the whole-cart discount;
// vendor coupons defer the computation to DiscountFor.
type VerifiedCoupon struct {
	ID       uuid.UUID
	Code     string
	Type     models.DiscountType
	Value    decimal.Decimal
	Scope    models.CouponScope
	VendorID *uuid.UUID
	Discount decimal.Decimal
}

// DiscountFor applies the coupon formula to amount.
func (c *VerifiedCoupon) DiscountFor(amount decimal.Decimal) decimal.Decimal {
	return computeDiscount(c.Type, c.Value, amount)
}

// AppliesTo reports whether a vendor-scoped coupon targets vendorID.
func (c *VerifiedCoupon) AppliesTo(vendorID uuid.UUID) bool {
	return c.Scope == models.CouponScopeVendor && c.VendorID != nil && *c.VendorID == vendorID
}

func computeDiscount(t models.DiscountType, value, amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() || !value.IsPositive() {
		return decimal.Zero
	}
	var d decimal.Decimal
	switch t {
	case models.DiscountPercentage:
		d = amount.Mul(value).Div(hundred)
	case models.DiscountFlat:
		d = decimal.Min(amount, value)
	default:
		return decimal.Zero
	}
	return decimal.Min(d.Round(2), amount)
}

func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type CouponVerifier struct {
	coupons CouponRepo
	now     func() time.Time
}

func NewCouponVerifier(repos Repos, now func() time.Time) *CouponVerifier {
	if now == nil {
		now = time.Now
	}
	return &CouponVerifier{coupons: repos.Coupons(), now: now}
}

// Verify checks code for userID against a cart amount. Checks run in a
// fixed order and the first failure is returned.
func (v *CouponVerifier) Verify(ctx context.Context, code string, userID uuid.UUID, amount decimal.Decimal) (_ *VerifiedCoupon, err error) {
	code = NormalizeCouponCode(code)
	ctx, span := startSpan(ctx, "VerifyCoupon", attribute.String("coupon.code", code))
	defer func() { endSpan(span, err) }()

	if code == "" {
		return nil, ErrCouponNotFound
	}
	c, err := v.coupons.GetByCode(ctx, code)
	if err != nil {
		return nil, internalErr("coupon_lookup_failed", err)
	}
	if c == nil {
		return nil, ErrCouponNotFound
	}
	if err := checkCoupon(c, v.now(), amount); err != nil {
		return nil, err
	}
	if err := checkUsage(ctx, v.coupons, c, userID); err != nil {
		return nil, err
	}

	vc := &VerifiedCoupon{
		ID:       c.ID,
		Code:     NormalizeCouponCode(c.Code),
		Type:     c.DiscountType,
		Value:    c.Value,
		Scope:    c.Scope,
		VendorID: c.VendorID,
		Discount: decimal.Zero,
	}
	if c.Scope != models.CouponScopeVendor {
		vc.Discount = vc.DiscountFor(amount)
	}
	return vc, nil
}

// checkCoupon covers the static rules: active flag, expiry and minimum.
func checkCoupon(c *models.Coupon, now time.Time, amount decimal.Decimal) error {
	if !c.IsActive {
		return ErrCouponInactive
	}
	if !c.ExpiresAt.After(now) {
		return ErrCouponExpired
	}
	if amount.LessThan(c.MinOrderAmount) {
		return ErrCouponBelowMinimum
	}
	return nil
}

// checkUsage compares committed usage with the coupon limits. A limit of
// zero means unlimited.
func checkUsage(ctx context.Context, coupons CouponRepo, c *models.Coupon, userID uuid.UUID) error {
	if c.PerUserLimit > 0 {
		n, err := coupons.CountUsageByUser(ctx, c.Code, userID)
		if err != nil {
			return internalErr("coupon_usage_failed", err)
		}
		if n >= int64(c.PerUserLimit) {
			return ErrCouponUserLimitReached
		}
	}
	if c.UsageLimit > 0 {
		n, err := coupons.CountUsage(ctx, c.Code)
		if err != nil {
			return internalErr("coupon_usage_failed", err)
		}
		if n >= int64(c.UsageLimit) {
			return ErrCouponGlobalLimitReached
		}
	}
	return nil
}
