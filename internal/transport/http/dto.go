package httptransport

import (
	"time"

	"marketplace-order-service/internal/models"
	"marketplace-order-service/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BaseError универсальный формат ошибки API
type BaseError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details string       `json:"details,omitempty"`
	Fields  []FieldError `json:"fields,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Tag     string `json:"tag,omitempty"`
}

func NewValidationError(msg string, fields []FieldError) BaseError {
	return BaseError{Code: "validation_error", Message: msg, Fields: fields}
}

func NewUnauthorizedError(msg string) BaseError {
	return BaseError{Code: "unauthorized", Message: msg}
}

func NewInternalError() BaseError {
	return BaseError{Code: "internal_error", Message: "internal server error"}
}

type AddressDTO struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func (a *AddressDTO) toModel() *models.Address {
	if a == nil {
		return nil
	}
	m := models.Address(*a)
	return &m
}

type CreateOrderRequest struct {
	ShippingAddress *AddressDTO `json:"shipping_address"`
	CouponCode      string      `json:"coupon_code"`
}

type CreateOrderResponse struct {
	Orders []service.CreatedOrder `json:"orders"`
}

type CouponPreviewRequest struct {
	CouponCode string `json:"coupon_code" binding:"required"`
}

type UpdateStatusRequest struct {
	Status     string `json:"status" binding:"required"`
	TrackingID string `json:"tracking_id"`
	Reason     string `json:"reason"`
}

type OrderItemResponse struct {
	ID           uuid.UUID           `json:"id"`
	ProductID    uuid.UUID           `json:"product_id"`
	VariantID    uuid.UUID           `json:"variant_id"`
	Family       string              `json:"family"`
	Name         string              `json:"name"`
	Brand        string              `json:"brand,omitempty"`
	ProductCode  string              `json:"product_code,omitempty"`
	Image        string              `json:"image,omitempty"`
	UnitPrice    decimal.Decimal     `json:"unit_price"`
	Quantity     int                 `json:"quantity"`
	PackagePrice decimal.Decimal     `json:"package_price"`
	LensPackage  *models.LensPackage `json:"lens_package,omitempty"`
	LineTotal    decimal.Decimal     `json:"line_total"`
}

type OrderResponse struct {
	ID              uuid.UUID           `json:"id"`
	Code            string              `json:"code"`
	CheckoutID      uuid.UUID           `json:"checkout_id"`
	UserID          uuid.UUID           `json:"user_id"`
	VendorID        uuid.UUID           `json:"vendor_id"`
	Status          string              `json:"status"`
	ShippingAddress models.Address      `json:"shipping_address"`
	Subtotal        decimal.Decimal     `json:"subtotal"`
	Discount        decimal.Decimal     `json:"discount"`
	TotalAmount     decimal.Decimal     `json:"total_amount"`
	CouponCode      *string             `json:"coupon_code,omitempty"`
	TrackingID      *string             `json:"tracking_id,omitempty"`
	CancelReason    *string             `json:"cancel_reason,omitempty"`
	Items           []OrderItemResponse `json:"items"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

type ListOrdersResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int64           `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

func toOrderResponse(o *models.Order) OrderResponse {
	resp := OrderResponse{
		ID:              o.ID,
		Code:            o.Code,
		CheckoutID:      o.CheckoutID,
		UserID:          o.UserID,
		VendorID:        o.VendorID,
		Status:          string(o.Status),
		ShippingAddress: o.ShippingAddress.Data(),
		Subtotal:        o.Subtotal,
		Discount:        o.Discount,
		TotalAmount:     o.TotalAmount,
		CouponCode:      o.CouponCode,
		TrackingID:      o.TrackingID,
		CancelReason:    o.CancelReason,
		Items:           make([]OrderItemResponse, 0, len(o.Items)),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for _, it := range o.Items {
		item := OrderItemResponse{
			ID:           it.ID,
			ProductID:    it.ProductID,
			VariantID:    it.VariantID,
			Family:       it.Family,
			Name:         it.Name,
			Brand:        it.Brand,
			ProductCode:  it.ProductCode,
			Image:        it.Image,
			UnitPrice:    it.UnitPrice,
			Quantity:     it.Quantity,
			PackagePrice: it.PackagePrice,
			LineTotal:    it.LineTotal,
		}
		if it.LensPackage != nil {
			pkg := it.LensPackage.Data()
			item.LensPackage = &pkg
		}
		resp.Items = append(resp.Items, item)
	}
	return resp
}
