package httptransport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"marketplace-order-service/internal/models"
	"marketplace-order-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type OrderAPI interface {
	CreateOrder(ctx context.Context, in service.CreateOrderInput) ([]service.CreatedOrder, error)
	PreviewCoupon(ctx context.Context, code string) (*service.CouponPreview, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, f service.ListFilter) ([]*models.Order, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, in service.UpdateStatusInput) (*models.Order, error)
}

type WebhookAPI interface {
	Handle(ctx context.Context, body []byte, signature, eventID string) (service.WebhookResult, error)
}

type OrderHandler struct {
	orders OrderAPI
	log    *zap.Logger
}

func NewOrderHandler(orders OrderAPI, log *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, log: log}
}

// Create godoc
// @Summary Оформление заказа из корзины
// @Description Делит корзину по продавцам и создаёт по заказу на каждого
// @Tags orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param order body CreateOrderRequest true "Адрес доставки и купон"
// @Success 201 {object} CreateOrderResponse
// @Failure 400 {object} BaseError "Неверные данные или пустая корзина"
// @Failure 401 {object} BaseError
// @Failure 500 {object} BaseError
// @Router /api/v1/orders [post]
func (h *OrderHandler) Create(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Некорректный запрос на оформление заказа", zap.Error(err))
		c.JSON(http.StatusBadRequest, NewValidationError("invalid request body", nil))
		return
	}

	created, err := h.orders.CreateOrder(c.Request.Context(), service.CreateOrderInput{
		ShippingAddress: req.ShippingAddress.toModel(),
		CouponCode:      req.CouponCode,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, CreateOrderResponse{Orders: created})
}

// PreviewCoupon godoc
// @Summary Предпросмотр скидки по купону
// @Tags orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param coupon body CouponPreviewRequest true "Код купона"
// @Success 200 {object} service.CouponPreview
// @Failure 400 {object} BaseError
// @Router /api/v1/orders/coupon-preview [post]
func (h *OrderHandler) PreviewCoupon(c *gin.Context) {
	var req CouponPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewValidationError("invalid request body",
			[]FieldError{{Field: "coupon_code", Message: "coupon code is required", Tag: "required"}}))
		return
	}
	p, err := h.orders.PreviewCoupon(c.Request.Context(), req.CouponCode)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Get godoc
// @Summary Заказ по идентификатору
// @Tags orders
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID заказа"
// @Success 200 {object} OrderResponse
// @Failure 404 {object} BaseError
// @Router /api/v1/orders/{id} [get]
func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := h.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(o))
}

// List godoc
// @Summary Список заказов
// @Description Покупатель видит свои заказы, продавец заказы своего магазина
// @Tags orders
// @Produce json
// @Security BearerAuth
// @Param status query string false "Статус"
// @Param limit query int false "Размер страницы"
// @Param offset query int false "Смещение"
// @Success 200 {object} ListOrdersResponse
// @Router /api/v1/orders [get]
func (h *OrderHandler) List(c *gin.Context) {
	var f service.ListFilter
	if s := c.Query("status"); s != "" {
		st := models.OrderStatus(s)
		f.Status = &st
	}
	var fields []FieldError
	f.Limit, fields = queryInt(c, "limit", fields)
	f.Offset, fields = queryInt(c, "offset", fields)
	if len(fields) > 0 {
		c.JSON(http.StatusBadRequest, NewValidationError("invalid query", fields))
		return
	}

	list, total, err := h.orders.ListOrders(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	resp := ListOrdersResponse{Orders: make([]OrderResponse, 0, len(list)), Total: total, Limit: f.Limit, Offset: f.Offset}
	for _, o := range list {
		resp.Orders = append(resp.Orders, toOrderResponse(o))
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateStatus godoc
// @Summary Смена статуса заказа
// @Tags orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "ID заказа"
// @Param status body UpdateStatusRequest true "Новый статус"
// @Success 200 {object} OrderResponse
// @Failure 403 {object} BaseError
// @Failure 409 {object} BaseError "Недопустимый переход"
// @Router /api/v1/orders/{id}/status [patch]
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewValidationError("invalid request body",
			[]FieldError{{Field: "status", Message: "status is required", Tag: "required"}}))
		return
	}
	o, err := h.orders.UpdateStatus(c.Request.Context(), id, service.UpdateStatusInput{
		Status:     models.OrderStatus(req.Status),
		TrackingID: req.TrackingID,
		Reason:     req.Reason,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(o))
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, NewValidationError("invalid order id",
			[]FieldError{{Field: "id", Message: "must be a UUID", Tag: "uuid"}}))
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, fields []FieldError) (int, []FieldError) {
	raw := c.Query(name)
	if raw == "" {
		return 0, fields
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, append(fields, FieldError{Field: name, Message: "must be a non-negative integer", Tag: "min"})
	}
	return n, fields
}

type WebhookHandler struct {
	webhook WebhookAPI
	log     *zap.Logger
}

func NewWebhookHandler(webhook WebhookAPI, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{webhook: webhook, log: log}
}

// Payment godoc
// @Summary Вебхук платёжного шлюза
// @Tags payments
// @Accept json
// @Produce json
// @Param X-Razorpay-Signature header string true "HMAC-SHA256 подпись тела"
// @Success 200 {object} service.WebhookResult
// @Failure 400 {object} BaseError "Неверная подпись"
// @Failure 409 {object} BaseError "Оплата уже обрабатывается, повторите позже"
// @Router /api/v1/payments/webhook [post]
func (h *WebhookHandler) Payment(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, BaseError{Code: "payload_too_large", Message: "request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, NewValidationError("unreadable request body", nil))
		return
	}

	res, err := h.webhook.Handle(c.Request.Context(), body,
		c.GetHeader("X-Razorpay-Signature"),
		c.GetHeader("X-Razorpay-Event-Id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
