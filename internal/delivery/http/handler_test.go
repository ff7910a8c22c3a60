package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	delivery "github.com/egannguyen/go-kafka-ecommerce/storefront/internal/delivery/http"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/entity"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/metrics"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/notification"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/payment"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/profile"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/repository/sqlite"
	"github.com/egannguyen/go-kafka-ecommerce/storefront/internal/service"
)

const domain = "shop.test"

var now = time.Date(2025, time.September, 17, 12, 0, 0, 0, time.UTC)

type stubGateway struct{ err error }

func (g *stubGateway) CreatePaymentURL(ctx context.Context, req payment.Request) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return "https://pay.test/" + req.OrderIDs[0], nil
}

type nopDispatcher struct{}

func (nopDispatcher) Enqueue(context.Context, string, entity.Event) {}

func (nopDispatcher) SendEmail(context.Context, []notification.Recipient, int64, any) {}

type stubProfiles struct{}

func (stubProfiles) GetUserProfile(ctx context.Context, domain, email string) (*profile.UserProfile, error) {
	return &profile.UserProfile{Email: email, Name: "Alice"}, nil
}

func (stubProfiles) FindByDomain(ctx context.Context, domain string) (*profile.TenantProfile, error) {
	return &profile.TenantProfile{Domain: domain}, nil
}

type server struct {
	*httptest.Server
	gateway *stubGateway
}

func newServer(t *testing.T) *server {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Products().Create(ctx, &entity.Product{
		ID: "p1", Domain: domain, Name: "Tee", Price: decimal.NewFromInt(100), Quantity: 5,
	}))
	require.NoError(t, store.Vouchers().Create(ctx, &entity.Voucher{
		ID: "v1", Domain: domain, Name: "Ten", Code: "TEN",
		DiscountPercent: decimal.NewFromInt(10), MaxDiscount: decimal.NewFromInt(50), MinAppValue: decimal.Zero,
		StartAt: now.AddDate(0, 0, -1), ExpireAt: now.AddDate(0, 0, 1), CreatedAt: now,
	}))

	clock := func() time.Time { return now }
	reg := prometheus.NewRegistry()
	orderMetrics := metrics.NewOrderMetrics(reg)
	gateway := &stubGateway{}
	ledger := service.NewStockLedger(store.Products())
	vouchers := service.NewVoucherApplier(store.Vouchers(), clock)

	orders := service.NewOrderService(service.OrderDeps{
		Orders:   store.Orders(),
		Ledger:   ledger,
		Vouchers: vouchers,
		Payment:  gateway,
		Users:    stubProfiles{},
		Tenants:  stubProfiles{},
		Events:   nopDispatcher{},
		Metrics:  orderMetrics,
		Now:      clock,
	}, service.OrderConfig{})
	reports := service.NewReportService(store.Orders(), clock, nil)
	inventory := service.NewInventoryService(store.InventoryForms(), ledger, nopDispatcher{}, orderMetrics, clock)

	handler := delivery.NewHandler(orders, reports, vouchers, inventory)
	router := delivery.NewRouter(handler, metrics.NewServerMetrics(reg), metrics.HandlerFor(reg), store.DB().PingContext)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &server{Server: srv, gateway: gateway}
}

type caller struct {
	email string
	role  entity.Role
}

var (
	alice = caller{"alice@mail.test", entity.RoleUser}
	owner = caller{"owner@shop.test", entity.RoleTenant}
)

func (s *server) do(t *testing.T, who *caller, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if who != nil {
		req.Header.Set(delivery.HeaderUserEmail, who.email)
		req.Header.Set(delivery.HeaderUserDomain, domain)
		req.Header.Set(delivery.HeaderUserRole, string(who.role))
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func errorOf(t *testing.T, body []byte) delivery.ErrorResponse {
	t.Helper()
	var e delivery.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	return e
}

var orderBody = map[string]any{
	"items":          []map[string]any{{"product_id": "p1", "quantity": 2}},
	"payment_method": "vnpay",
	"address":        "1 Main St",
}

func TestRequiresPrincipal(t *testing.T) {
	srv := newServer(t)

	resp, body := srv.do(t, nil, http.MethodGet, "/api/orders", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthenticated", errorOf(t, body).Error)

	resp, _ = srv.do(t, &caller{"x@mail.test", "ROOT"}, http.MethodGet, "/api/orders", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	srv := newServer(t)

	resp, body := srv.do(t, &alice, http.MethodPost, "/api/orders", orderBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var created service.CreateOrderResult
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "https://pay.test/"+created.OrderID, created.PaymentURL)

	resp, body = srv.do(t, &alice, http.MethodGet, "/api/orders/"+created.OrderID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var order entity.Order
	require.NoError(t, json.Unmarshal(body, &order))
	assert.Equal(t, entity.StagePending, order.Stage)
	assert.True(t, order.TotalPrice.Equal(decimal.NewFromInt(200)))

	resp, body = srv.do(t, &alice, http.MethodGet, "/api/orders?stage=pending", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var orders []entity.Order
	require.NoError(t, json.Unmarshal(body, &orders))
	assert.Len(t, orders, 1)

	resp, body = srv.do(t, &alice, http.MethodPatch, "/api/orders/"+created.OrderID+"/stage", delivery.UpdateStageRequest{Stage: "shipping"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "permission_denied", errorOf(t, body).Error)

	resp, body = srv.do(t, &owner, http.MethodPatch, "/api/orders/"+created.OrderID+"/stage", delivery.UpdateStageRequest{Stage: "lost"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_argument", errorOf(t, body).Error)

	resp, body = srv.do(t, &alice, http.MethodPost, "/api/orders/"+created.OrderID+"/cancel", delivery.CancelOrderRequest{NoteCancel: "too slow"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &order))
	assert.Equal(t, entity.StageCancelled, order.Stage)
	assert.Equal(t, "too slow", order.NoteCancel)

	resp, body = srv.do(t, &alice, http.MethodPost, "/api/orders/"+created.OrderID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_cancelled", errorOf(t, body).Error)

	resp, _ = srv.do(t, &alice, http.MethodGet, "/api/orders/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateOrderErrorMapping(t *testing.T) {
	srv := newServer(t)

	tooMany := map[string]any{"items": []map[string]any{{"product_id": "p1", "quantity": 9}}}
	resp, body := srv.do(t, &alice, http.MethodPost, "/api/orders", tooMany)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "out_of_stock", errorOf(t, body).Error)

	resp, body = srv.do(t, &alice, http.MethodPost, "/api/orders", map[string]any{"items": []any{}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_argument", errorOf(t, body).Error)

	resp, body = srv.do(t, &alice, http.MethodPost, "/api/orders", "not an object")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_json", errorOf(t, body).Error)

	srv.gateway.err = errors.Join(entity.ErrUpstreamUnavailable, errors.New("payment service down"))
	resp, body = srv.do(t, &alice, http.MethodPost, "/api/orders", orderBody)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	e := errorOf(t, body)
	assert.Equal(t, "payment_unavailable", e.Error)
	assert.NotEmpty(t, e.OrderID)

	resp, _ = srv.do(t, &alice, http.MethodGet, "/api/orders/"+e.OrderID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTenantEndpoints(t *testing.T) {
	srv := newServer(t)

	resp, body := srv.do(t, &alice, http.MethodPost, "/api/orders", orderBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created service.CreateOrderResult
	require.NoError(t, json.Unmarshal(body, &created))

	resp, _ = srv.do(t, &owner, http.MethodPatch, "/api/orders/"+created.OrderID+"/stage", delivery.UpdateStageRequest{Stage: "completed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = srv.do(t, &owner, http.MethodGet, "/api/tenant/orders", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var orders []entity.Order
	require.NoError(t, json.Unmarshal(body, &orders))
	assert.Len(t, orders, 1)

	resp, _ = srv.do(t, &alice, http.MethodGet, "/api/tenant/orders", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = srv.do(t, &owner, http.MethodGet, "/api/tenant/reports/order-value?type=MONTH", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var report struct {
		Report []struct {
			Type       string `json:"type"`
			TotalOrder int    `json:"total_order"`
		} `json:"report"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(body, &report))
	require.Len(t, report.Report, 1)
	assert.Equal(t, "WEEK_3", report.Report[0].Type)
	assert.Equal(t, 1, report.Total)

	resp, _ = srv.do(t, &owner, http.MethodGet, "/api/tenant/reports/order-value?type=DECADE", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = srv.do(t, &owner, http.MethodPost, "/api/tenant/reports/users", delivery.UsersReportRequest{Emails: []string{alice.email}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var users delivery.UsersReportResponse
	require.NoError(t, json.Unmarshal(body, &users))
	assert.Equal(t, []entity.UserOrderCount{{Email: alice.email, TotalOrder: 1}}, users.ReportOrders)
}

func TestVoucherEndpoints(t *testing.T) {
	srv := newServer(t)

	resp, body := srv.do(t, &alice, http.MethodGet, "/api/vouchers/code/TEN", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var v entity.Voucher
	require.NoError(t, json.Unmarshal(body, &v))
	assert.Equal(t, "v1", v.ID)

	resp, _ = srv.do(t, &alice, http.MethodGet, "/api/vouchers/code/NOPE", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = srv.do(t, &alice, http.MethodGet, "/api/vouchers", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []entity.Voucher
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, 1)
}

func TestInventoryEndpoints(t *testing.T) {
	srv := newServer(t)

	resp, body := srv.do(t, &owner, http.MethodPost, "/api/inventory/forms", delivery.CreateFormRequest{
		Type:     entity.InventoryImport,
		Products: []entity.InventoryLine{{ProductID: "p1", Quantity: 5}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var form entity.InventoryForm
	require.NoError(t, json.Unmarshal(body, &form))

	resp, body = srv.do(t, &owner, http.MethodPut, "/api/inventory/forms/"+form.ID, delivery.UpdateFormRequest{
		Description: "fixed",
		Products:    []entity.InventoryLine{{ProductID: "p1", Quantity: 2}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = srv.do(t, &owner, http.MethodGet, "/api/inventory/forms?type=import", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var forms []entity.InventoryForm
	require.NoError(t, json.Unmarshal(body, &forms))
	require.Len(t, forms, 1)
	assert.Equal(t, "fixed", forms[0].Description)

	resp, body = srv.do(t, &owner, http.MethodPost, "/api/inventory/adjust", delivery.AdjustStockRequest{
		Deltas: []entity.StockDelta{{ProductID: "p1", Quantity: -100}},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "insufficient_stock", errorOf(t, body).Error)

	resp, _ = srv.do(t, &owner, http.MethodPost, "/api/inventory/adjust", delivery.AdjustStockRequest{
		Deltas: []entity.StockDelta{{ProductID: "p1", Quantity: -7}},
	})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = srv.do(t, &alice, http.MethodDelete, "/api/inventory/forms/"+form.ID, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = srv.do(t, &owner, http.MethodDelete, "/api/inventory/forms/"+form.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestOperationalEndpoints(t *testing.T) {
	srv := newServer(t)

	resp, body := srv.do(t, nil, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, _ = srv.do(t, nil, http.MethodOptions, "/api/orders", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, body = srv.do(t, nil, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `storefront_http_requests_total{handler="GET /healthz",status="200"} 1`), string(body))
}
