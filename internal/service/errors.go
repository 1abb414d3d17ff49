package service

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the transport layer.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindCoupon       Kind = "coupon"
	KindSignature    Kind = "signature"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

// Error carries a stable machine code and a message safe to show to
// clients. Err holds the cause and is never exposed over the wire.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so wrapped copies of a sentinel still compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrUnauthorized = newError(KindUnauthorized, "unauthorized", "authentication required")
	ErrForbidden    = newError(KindForbidden, "forbidden", "operation not allowed")

	ErrEmptyCart        = newError(KindValidation, "empty_cart", "cart is empty")
	ErrAddressRequired  = newError(KindValidation, "address_required", "shipping address is required")
	ErrInvalidStatus    = newError(KindValidation, "invalid_status", "unknown order status")
	ErrTrackingRequired = newError(KindValidation, "tracking_required", "tracking id is required to ship an order")
	ErrUserNotFound     = newError(KindNotFound, "user_not_found", "user not found")
	ErrOrderNotFound    = newError(KindNotFound, "order_not_found", "order not found")

	ErrCouponNotFound           = newError(KindCoupon, "coupon_not_found", "coupon not found")
	ErrCouponInactive           = newError(KindCoupon, "coupon_inactive", "coupon is not active")
	ErrCouponExpired            = newError(KindCoupon, "coupon_expired", "coupon has expired")
	ErrCouponBelowMinimum       = newError(KindCoupon, "coupon_below_minimum", "order amount is below the coupon minimum")
	ErrCouponUserLimitReached   = newError(KindCoupon, "coupon_user_limit_reached", "coupon usage limit reached for this user")
	ErrCouponGlobalLimitReached = newError(KindCoupon, "coupon_global_limit_reached", "coupon usage limit reached")
	ErrCouponNotApplicable      = newError(KindCoupon, "coupon_not_applicable", "coupon does not apply to any item in the cart")

	ErrInvalidSignature = newError(KindSignature, "invalid_signature", "webhook signature verification failed")
	ErrWebhookPayload   = newError(KindValidation, "webhook_payload", "webhook payload is malformed")
	ErrWebhookMetadata  = newError(KindValidation, "webhook_metadata", "webhook payload is missing order metadata")
	ErrOrdersMismatch   = newError(KindConflict, "orders_mismatch", "payment references orders that do not belong to the user")
	ErrWebhookInFlight  = newError(KindConflict, "webhook_in_flight", "payment confirmation is already being processed")

	ErrInvalidTransition = newError(KindConflict, "invalid_transition", "order status transition not allowed")
	ErrVariantNotFound   = newError(KindNotFound, "variant_not_found", "product variant not found")
	ErrInsufficientStock = newError(KindConflict, "insufficient_stock", "insufficient stock")
	ErrUnknownFamily     = newError(KindValidation, "unknown_family", "unknown product family")
)

// internalErr hides storage detail behind a generic message.
func internalErr(code string, err error) error {
	return &Error{Kind: KindInternal, Code: code, Message: "internal error", Err: err}
}

// KindOf reports the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}
