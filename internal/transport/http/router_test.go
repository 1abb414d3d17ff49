package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"marketplace-order-service/internal/models"
	"marketplace-order-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

func init() { gin.SetMode(gin.TestMode) }

type mockOrders struct {
	CreateOrderFunc   func(ctx context.Context, in service.CreateOrderInput) ([]service.CreatedOrder, error)
	PreviewCouponFunc func(ctx context.Context, code string) (*service.CouponPreview, error)
	GetOrderFunc      func(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListOrdersFunc    func(ctx context.Context, f service.ListFilter) ([]*models.Order, int64, error)
	UpdateStatusFunc  func(ctx context.Context, id uuid.UUID, in service.UpdateStatusInput) (*models.Order, error)
}

func (m *mockOrders) CreateOrder(ctx context.Context, in service.CreateOrderInput) ([]service.CreatedOrder, error) {
	return m.CreateOrderFunc(ctx, in)
}

func (m *mockOrders) PreviewCoupon(ctx context.Context, code string) (*service.CouponPreview, error) {
	return m.PreviewCouponFunc(ctx, code)
}

func (m *mockOrders) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return m.GetOrderFunc(ctx, id)
}

func (m *mockOrders) ListOrders(ctx context.Context, f service.ListFilter) ([]*models.Order, int64, error) {
	return m.ListOrdersFunc(ctx, f)
}

func (m *mockOrders) UpdateStatus(ctx context.Context, id uuid.UUID, in service.UpdateStatusInput) (*models.Order, error) {
	return m.UpdateStatusFunc(ctx, id, in)
}

type mockWebhook struct {
	HandleFunc func(ctx context.Context, body []byte, signature, eventID string) (service.WebhookResult, error)
}

func (m *mockWebhook) Handle(ctx context.Context, body []byte, signature, eventID string) (service.WebhookResult, error) {
	return m.HandleFunc(ctx, body, signature, eventID)
}

const testSecret = "jwt-test-secret"

type harness struct {
	router  *gin.Engine
	orders  *mockOrders
	webhook *mockWebhook
	auth    *TokenVerifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		orders:  &mockOrders{},
		webhook: &mockWebhook{},
		auth:    NewTokenVerifier(testSecret, "auth-service", "marketplace"),
	}
	h.router = Router(Deps{
		Orders:  h.orders,
		Webhook: h.webhook,
		Auth:    h.auth,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
	}, zap.NewNop())
	return h
}

func (h *harness) token(t *testing.T, c Claims) string {
	t.Helper()
	tok, err := h.auth.Sign(c, time.Hour)
	require.NoError(t, err)
	return tok
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) BaseError {
	t.Helper()
	var e BaseError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func sampleOrder() *models.Order {
	code := "SAVE10"
	return &models.Order{
		ID:              uuid.New(),
		Code:            "ORD-20250314-ABC123",
		UserID:          uuid.New(),
		VendorID:        uuid.New(),
		Status:          models.OrderStatusPending,
		ShippingAddress: datatypes.NewJSONType(models.Address{City: "Pune"}),
		TotalAmount:     decimal.RequireFromString("720"),
		CouponCode:      &code,
		Items: []models.OrderItem{{
			ID:        uuid.New(),
			Family:    "frame",
			Quantity:  2,
			UnitPrice: decimal.RequireFromString("400"),
			LineTotal: decimal.RequireFromString("800"),
		}},
	}
}

func TestAuth_RejectsMissingAndInvalidTokens(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/api/v1/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Code)

	rec = h.do(http.MethodGet, "/api/v1/orders", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other := NewTokenVerifier("another-secret", "auth-service", "marketplace")
	forged, err := other.Sign(Claims{UserID: uuid.New(), Role: service.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	rec = h.do(http.MethodGet, "/api/v1/orders", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := h.auth.Sign(Claims{UserID: uuid.New()}, -time.Minute)
	require.NoError(t, err)
	rec = h.do(http.MethodGet, "/api/v1/orders", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateOrder(t *testing.T) {
	h := newHarness(t)
	user := uuid.New()
	orderID := uuid.New()
	h.orders.CreateOrderFunc = func(ctx context.Context, in service.CreateOrderInput) ([]service.CreatedOrder, error) {
		uid, ok := service.UserIDFromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, user, uid)
		role, _ := service.RoleFromContext(ctx)
		assert.Equal(t, service.RoleCustomer, role)
		require.NotNil(t, in.ShippingAddress)
		assert.Equal(t, "Pune", in.ShippingAddress.City)
		assert.Equal(t, "SAVE10", in.CouponCode)
		return []service.CreatedOrder{{OrderID: orderID, Code: "ORD-20250314-ABC123", TotalAmount: decimal.RequireFromString("720")}}, nil
	}

	rec := h.do(http.MethodPost, "/api/v1/orders", h.token(t, Claims{UserID: user, Role: service.RoleCustomer}), map[string]any{
		"shipping_address": map[string]string{"full_name": "A", "line1": "1 Main", "city": "Pune", "postal_code": "411001", "country": "IN"},
		"coupon_code":      "SAVE10",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		Orders []struct {
			OrderID     uuid.UUID `json:"order_id"`
			Code        string    `json:"code"`
			TotalAmount string    `json:"total_amount"`
		} `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Orders, 1)
	assert.Equal(t, orderID, resp.Orders[0].OrderID)
	assert.Equal(t, "720", resp.Orders[0].TotalAmount)
}

func TestCreateOrder_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{service.ErrEmptyCart, http.StatusBadRequest, "empty_cart"},
		{service.ErrCouponExpired, http.StatusBadRequest, "coupon_expired"},
		{service.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
		{service.ErrForbidden, http.StatusForbidden, "forbidden"},
		{service.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{&service.Error{Kind: service.KindInternal, Code: "transaction_failed", Message: "internal error", Err: errors.New("pq: deadlock detected")}, http.StatusInternalServerError, "internal_error"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			h := newHarness(t)
			h.orders.CreateOrderFunc = func(ctx context.Context, in service.CreateOrderInput) ([]service.CreatedOrder, error) {
				return nil, tc.err
			}
			rec := h.do(http.MethodPost, "/api/v1/orders", h.token(t, Claims{UserID: uuid.New()}), map[string]any{})
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decodeError(t, rec).Code)
			assert.NotContains(t, rec.Body.String(), "deadlock")
		})
	}
}

func TestCreateOrder_MalformedBody(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+h.token(t, Claims{UserID: uuid.New()}))
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeError(t, rec).Code)
}

func TestPreviewCoupon(t *testing.T) {
	h := newHarness(t)
	h.orders.PreviewCouponFunc = func(ctx context.Context, code string) (*service.CouponPreview, error) {
		assert.Equal(t, "SAVE10", code)
		return &service.CouponPreview{Code: code, Discount: decimal.RequireFromString("100")}, nil
	}
	tok := h.token(t, Claims{UserID: uuid.New()})

	rec := h.do(http.MethodPost, "/api/v1/orders/coupon-preview", tok, map[string]string{"coupon_code": "SAVE10"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"discount":"100"`)

	rec = h.do(http.MethodPost, "/api/v1/orders/coupon-preview", tok, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOrder(t *testing.T) {
	h := newHarness(t)
	o := sampleOrder()
	h.orders.GetOrderFunc = func(ctx context.Context, id uuid.UUID) (*models.Order, error) {
		if id != o.ID {
			return nil, service.ErrOrderNotFound
		}
		return o, nil
	}
	tok := h.token(t, Claims{UserID: o.UserID})

	rec := h.do(http.MethodGet, "/api/v1/orders/"+o.ID.String(), tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, o.Code, resp.Code)
	assert.Equal(t, "Pune", resp.ShippingAddress.City)
	require.Len(t, resp.Items, 1)
	assert.True(t, resp.Items[0].LineTotal.Equal(decimal.RequireFromString("800")))

	rec = h.do(http.MethodGet, "/api/v1/orders/"+uuid.NewString(), tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodGet, "/api/v1/orders/42", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListOrders_Query(t *testing.T) {
	h := newHarness(t)
	h.orders.ListOrdersFunc = func(ctx context.Context, f service.ListFilter) ([]*models.Order, int64, error) {
		require.NotNil(t, f.Status)
		assert.Equal(t, models.OrderStatusShipped, *f.Status)
		assert.Equal(t, 10, f.Limit)
		assert.Equal(t, 20, f.Offset)
		return []*models.Order{sampleOrder()}, 31, nil
	}
	tok := h.token(t, Claims{UserID: uuid.New()})

	rec := h.do(http.MethodGet, "/api/v1/orders?status=shipped&limit=10&offset=20", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ListOrdersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 31, resp.Total)
	assert.Len(t, resp.Orders, 1)

	rec = h.do(http.MethodGet, "/api/v1/orders?limit=-1&offset=x", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, decodeError(t, rec).Fields, 2)
}

func TestUpdateStatus_VendorContext(t *testing.T) {
	h := newHarness(t)
	vendor := uuid.New()
	o := sampleOrder()
	h.orders.UpdateStatusFunc = func(ctx context.Context, id uuid.UUID, in service.UpdateStatusInput) (*models.Order, error) {
		vid, ok := service.VendorIDFromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, vendor, vid)
		assert.Equal(t, models.OrderStatusShipped, in.Status)
		assert.Equal(t, "TRK1", in.TrackingID)
		o.Status = in.Status
		return o, nil
	}
	tok := h.token(t, Claims{UserID: uuid.New(), Role: service.RoleVendor, VendorID: vendor})

	rec := h.do(http.MethodPatch, "/api/v1/orders/"+o.ID.String()+"/status", tok, map[string]string{"status": "shipped", "tracking_id": "TRK1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status":"shipped"`)

	rec = h.do(http.MethodPatch, "/api/v1/orders/"+o.ID.String()+"/status", tok, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentWebhook(t *testing.T) {
	h := newHarness(t)
	paymentID := uuid.New()
	h.webhook.HandleFunc = func(ctx context.Context, body []byte, signature, eventID string) (service.WebhookResult, error) {
		if signature != "good" {
			return service.WebhookResult{}, service.ErrInvalidSignature
		}
		assert.JSONEq(t, `{"event":"order.paid"}`, string(body))
		assert.Equal(t, "evt_1", eventID)
		return service.WebhookResult{Status: service.WebhookProcessed, PaymentID: paymentID}, nil
	}

	send := func(sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(`{"event":"order.paid"}`))
		req.Header.Set("X-Razorpay-Signature", sig)
		req.Header.Set("X-Razorpay-Event-Id", "evt_1")
		rec := httptest.NewRecorder()
		h.router.ServeHTTP(rec, req)
		return rec
	}

	rec := send("good")
	require.Equal(t, http.StatusOK, rec.Code)
	var res service.WebhookResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, service.WebhookProcessed, res.Status)
	assert.Equal(t, paymentID, res.PaymentID)

	rec = send("bad")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_signature", decodeError(t, rec).Code)
}

func TestPaymentWebhook_BodyTooLarge(t *testing.T) {
	h := newHarness(t)
	h.webhook.HandleFunc = func(ctx context.Context, body []byte, signature, eventID string) (service.WebhookResult, error) {
		t.Fatal("oversized body must not reach the handler")
		return service.WebhookResult{}, nil
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(make([]byte, maxWebhookBody+1)))
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())

	down := Router(Deps{
		Orders:  h.orders,
		Webhook: h.webhook,
		Auth:    h.auth,
		Health:  func(ctx context.Context) error { return errors.New("db down") },
	}, zap.NewNop())
	rec = httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestExtractBearerToken(t *testing.T) {
	cases := map[string]struct {
		in    string
		token string
		ok    bool
	}{
		"plain":       {"Bearer abc.def.ghi", "abc.def.ghi", true},
		"lower":       {"bearer abc", "abc", true},
		"quoted":      {`Bearer "abc.def"`, "abc.def", true},
		"trailing":    {"Bearer abc, extra", "abc", true},
		"basic":       {"Basic dXNlcg==", "", false},
		"empty":       {"", "", false},
		"scheme only": {"Bearer", "", false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			token, ok := ExtractBearerToken(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.token, token)
		})
	}
}

func TestTokenVerifier_RoleDefaultsToCustomer(t *testing.T) {
	v := NewTokenVerifier(testSecret, "", "")
	user := uuid.New()
	tok, err := v.Sign(Claims{UserID: user}, time.Hour)
	require.NoError(t, err)

	c, err := v.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, user, c.UserID)
	assert.Equal(t, service.RoleCustomer, c.Role)
	assert.Equal(t, uuid.Nil, c.VendorID)

	bad, err := v.Sign(Claims{UserID: user, Role: "ROLE_ROOT"}, time.Hour)
	require.NoError(t, err)
	_, err = v.Parse(bad)
	assert.Error(t, err)
}

func TestSwaggerUI(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/swagger/index.html", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "swagger-ui")
}
