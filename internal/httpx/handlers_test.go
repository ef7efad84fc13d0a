package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/renu-clearing/internal/failure"
	"github.com/ariefcatur/renu-clearing/internal/lifecycle"
	"github.com/ariefcatur/renu-clearing/internal/metrics"
	"github.com/ariefcatur/renu-clearing/internal/orders"
	"github.com/ariefcatur/renu-clearing/internal/redisx"
)

type MockLifecycle struct {
	CreateOrderFunc func(ctx context.Context, venueID int64, items []orders.Item) (*orders.Order, error)
	PaymentLinkFunc func(ctx context.Context, orderID int64) (string, error)
	CallbackFunc    func(ctx context.Context, cb lifecycle.Callback) error
	alerts          []string
}

func (m *MockLifecycle) CreateOrder(ctx context.Context, venueID int64, items []orders.Item) (*orders.Order, error) {
	return m.CreateOrderFunc(ctx, venueID, items)
}

func (m *MockLifecycle) RequestPaymentLink(ctx context.Context, orderID int64) (string, error) {
	return m.PaymentLinkFunc(ctx, orderID)
}

func (m *MockLifecycle) HandlePaymentCallback(ctx context.Context, cb lifecycle.Callback) error {
	return m.CallbackFunc(ctx, cb)
}

func (m *MockLifecycle) Alert(_ context.Context, _ int64, err error) {
	m.alerts = append(m.alerts, string(failure.KindOf(err)))
}

type MockRepo struct {
	GetOrderFunc func(ctx context.Context, id int64) (*orders.Order, error)
}

func (m *MockRepo) GetOrder(ctx context.Context, id int64) (*orders.Order, error) {
	return m.GetOrderFunc(ctx, id)
}

type mapCache struct {
	m   map[int64]redisx.CachedStatus
	gen map[int64]string
}

func (c *mapCache) Get(_ context.Context, id int64) (redisx.CachedStatus, bool, error) {
	st, ok := c.m[id]
	return st, ok, nil
}

func (c *mapCache) Generation(_ context.Context, id int64) (string, error) {
	return c.gen[id], nil
}

func (c *mapCache) Put(_ context.Context, st redisx.CachedStatus, gen string) (bool, error) {
	if c.gen[st.OrderID] != gen {
		return false, nil
	}
	c.m[st.OrderID] = st
	return true, nil
}

func (c *mapCache) invalidate(id int64) {
	delete(c.m, id)
	c.gen[id] += "x"
}

func newTestRouter(lc *MockLifecycle, repo *MockRepo, cache *mapCache) http.Handler {
	reg := prometheus.NewRegistry()
	r := NewRouter(metrics.NewServerMetrics(reg, "api"), metrics.HandlerFor(reg))
	(&PaymentsHandler{Lifecycle: lc, Service: "test"}).Register(r)
	oh := &OrdersHandler{Lifecycle: lc, Repo: repo, Service: "test"}
	if cache != nil {
		oh.Cache = cache
	}
	oh.Register(r)
	return r
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

const okCallback = `{"transaction":{"status_code":"000","uid":"99","more_info":"42"}}`

func TestCallback_Success(t *testing.T) {
	var got lifecycle.Callback
	lc := &MockLifecycle{CallbackFunc: func(_ context.Context, cb lifecycle.Callback) error {
		got = cb
		return nil
	}}
	rec := do(newTestRouter(lc, nil, nil), http.MethodPost, "/api/payments/callback", okCallback)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	assert.Equal(t, lifecycle.Callback{OrderID: 42, TxID: "99", StatusCode: "000"}, got)
}

func TestCallback_Failure(t *testing.T) {
	lc := &MockLifecycle{CallbackFunc: func(context.Context, lifecycle.Callback) error {
		return &failure.ReportOrderFailed{Provider: "Dorix", OrderID: 42, Message: "closed"}
	}}
	rec := do(newTestRouter(lc, nil, nil), http.MethodPost, "/api/payments/callback", okCallback)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body errorResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, failure.KindReportOrderFailed, body.Error.Kind)
	assert.Contains(t, body.Error.Message, "closed")
}

func TestCallback_InvalidBody(t *testing.T) {
	lc := &MockLifecycle{CallbackFunc: func(context.Context, lifecycle.Callback) error {
		t.Fatal("lifecycle must not run")
		return nil
	}}
	rec := do(newTestRouter(lc, nil, nil), http.MethodPost, "/api/payments/callback", `{"transaction":{}}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, []string{string(failure.KindRecordInvalid)}, lc.alerts)
}

func TestCallback_MethodNotAllowed(t *testing.T) {
	rec := do(newTestRouter(&MockLifecycle{}, nil, nil), http.MethodGet, "/api/payments/callback", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}

func TestCreateOrder(t *testing.T) {
	lc := &MockLifecycle{CreateOrderFunc: func(_ context.Context, venueID int64, items []orders.Item) (*orders.Order, error) {
		return &orders.Order{ID: 42, VenueID: venueID, State: orders.StateInit, Items: items}, nil
	}}
	body := `{"venue_id":7,"items":[{"item_id":1,"name":"Sabich","quantity":2,"price":1300,
		"modifiers":[{"type":"oneOf","name":"Size","choice":"L","price":200}]}]}`
	rec := do(newTestRouter(lc, nil, nil), http.MethodPost, "/api/orders", body)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp CreateOrderResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(42), resp.OrderID)
	assert.Equal(t, int64(3000), resp.Total)
	assert.Equal(t, "ILS", resp.Currency)

	rec = do(newTestRouter(lc, nil, nil), http.MethodPost, "/api/orders", `{"venue_id":7,"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentLink_ErrorStatus(t *testing.T) {
	cases := map[string]struct {
		err  error
		code int
	}{
		"open breaker":  {&failure.BreakerOpen{Provider: "Payplus"}, http.StatusServiceUnavailable},
		"not found":     {&failure.RecordNotFound{Entity: "order", ID: "42"}, http.StatusNotFound},
		"mismatch":      {&failure.ProviderMismatch{Expected: "PAY_PLUS", Actual: "CREDIT_GUARD"}, http.StatusUnprocessableEntity},
		"gateway error": {&failure.ResponseCode{Provider: "CreditGuard", Code: "036"}, http.StatusBadGateway},
	}
	for name, tc := range cases {
		lc := &MockLifecycle{PaymentLinkFunc: func(context.Context, int64) (string, error) { return "", tc.err }}
		rec := do(newTestRouter(lc, nil, nil), http.MethodPost, "/api/orders/42/payment-link", "")
		assert.Equal(t, tc.code, rec.Code, name)
	}

	lc := &MockLifecycle{PaymentLinkFunc: func(_ context.Context, id int64) (string, error) { return "https://pay/42", nil }}
	rec := do(newTestRouter(lc, nil, nil), http.MethodPost, "/api/orders/42/payment-link", "")
	assert.JSONEq(t, `{"order_id":42,"url":"https://pay/42"}`, rec.Body.String())
}

func TestGetOrder_CacheThenDB(t *testing.T) {
	calls := 0
	repo := &MockRepo{GetOrderFunc: func(_ context.Context, id int64) (*orders.Order, error) {
		calls++
		return &orders.Order{ID: id, State: orders.StateConfirmed, TxID: "99", UpdatedAt: time.Unix(0, 0).UTC()}, nil
	}}
	cache := &mapCache{m: map[int64]redisx.CachedStatus{}, gen: map[int64]string{}}
	h := newTestRouter(&MockLifecycle{}, repo, cache)

	for i := 0; i < 2; i++ {
		rec := do(h, http.MethodGet, "/api/orders/42", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var st redisx.CachedStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
		assert.Equal(t, "CONFIRMED", st.State)
	}
	assert.Equal(t, 1, calls)

	rec := do(h, http.MethodGet, "/api/orders/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOrder_TransitionDuringReadIsNotCached(t *testing.T) {
	cache := &mapCache{m: map[int64]redisx.CachedStatus{}, gen: map[int64]string{}}
	state := orders.StateUnconfirmed
	repo := &MockRepo{GetOrderFunc: func(_ context.Context, id int64) (*orders.Order, error) {
		o := &orders.Order{ID: id, State: state, TxID: "99"}
		// the POS confirms while this row is on its way back
		state = orders.StateConfirmed
		cache.invalidate(id)
		return o, nil
	}}
	h := newTestRouter(&MockLifecycle{}, repo, cache)

	rec := do(h, http.MethodGet, "/api/orders/42", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"UNCONFIRMED"`)
	assert.Empty(t, cache.m)

	repo.GetOrderFunc = func(_ context.Context, id int64) (*orders.Order, error) {
		return &orders.Order{ID: id, State: state, TxID: "99"}, nil
	}
	rec = do(h, http.MethodGet, "/api/orders/42", "")
	assert.Contains(t, rec.Body.String(), `"CONFIRMED"`)
	assert.Equal(t, "CONFIRMED", cache.m[42].State)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestRouter(&MockLifecycle{}, nil, nil)
	assert.Equal(t, "ok", do(h, http.MethodGet, "/healthz", "").Body.String())
	assert.Contains(t, do(h, http.MethodGet, "/metrics", "").Body.String(), "renu_api_http_requests_total")
}
