package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/renu-clearing/internal/failure"
	"github.com/ariefcatur/renu-clearing/internal/logging"
	"github.com/ariefcatur/renu-clearing/internal/money"
	"github.com/ariefcatur/renu-clearing/internal/orders"
	"github.com/ariefcatur/renu-clearing/internal/redisx"
)

type Orders interface {
	CreateOrder(ctx context.Context, venueID int64, items []orders.Item) (*orders.Order, error)
	RequestPaymentLink(ctx context.Context, orderID int64) (string, error)
}

type OrderReader interface {
	GetOrder(ctx context.Context, id int64) (*orders.Order, error)
}

type StatusCache interface {
	Get(ctx context.Context, orderID int64) (redisx.CachedStatus, bool, error)
	Generation(ctx context.Context, orderID int64) (string, error)
	Put(ctx context.Context, st redisx.CachedStatus, gen string) (bool, error)
}

type OrdersHandler struct {
	Lifecycle Orders
	Repo      OrderReader
	Cache     StatusCache // optional
	Service   string
}

type CreateOrderReq struct {
	VenueID int64         `json:"venue_id"`
	Items   []orders.Item `json:"items"`
}

type CreateOrderResp struct {
	OrderID  int64        `json:"order_id"`
	State    orders.State `json:"state"`
	Total    int64        `json:"total"` // minor units
	Currency string       `json:"currency"`
}

type PaymentLinkResp struct {
	OrderID int64  `json:"order_id"`
	URL     string `json:"url"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/api/orders", h.createOrder)
	r.Post("/api/orders/{id}/payment-link", h.paymentLink)
	r.Get("/api/orders/{id}", h.getOrder)
}

func orderID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *OrdersHandler) fail(w http.ResponseWriter, id int64, step string, err error) {
	logging.Log(logging.Fields{Service: h.Service, OrderID: id, Step: step, Status: string(failure.KindOf(err)), Message: err.Error()})
	writeJSON(w, statusFor(err), errorResponse(err))
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.VenueID <= 0 || len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Lifecycle.CreateOrder(ctx, req.VenueID, req.Items)
	if err != nil {
		if failure.KindOf(err) == failure.KindRecordInvalid {
			writeJSON(w, http.StatusBadRequest, errorResponse(err))
			return
		}
		h.fail(w, 0, "create_order", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateOrderResp{OrderID: o.ID, State: o.State, Total: o.Total(), Currency: money.Currency})
}

func (h *OrdersHandler) paymentLink(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 12*time.Second)
	defer cancel()

	link, err := h.Lifecycle.RequestPaymentLink(ctx, id)
	if err != nil {
		h.fail(w, id, "payment_link", err)
		return
	}
	writeJSON(w, http.StatusOK, PaymentLinkResp{OrderID: id, URL: link})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) cache; the generation is taken before the DB read so a concurrent
	// transition keeps this reader from caching the older row
	gen, cacheOK := "", false
	if h.Cache != nil {
		if st, hit, err := h.Cache.Get(ctx, id); err == nil && hit {
			writeJSON(w, http.StatusOK, st)
			return
		}
		var err error
		gen, err = h.Cache.Generation(ctx, id)
		cacheOK = err == nil
	}

	// 2) fallback DB
	o, err := h.Repo.GetOrder(ctx, id)
	if err != nil {
		h.fail(w, id, "get_order", err)
		return
	}
	st := redisx.CachedStatus{OrderID: o.ID, State: string(o.State), TxID: o.TxID, UpdatedAt: o.UpdatedAt}
	if cacheOK {
		_, _ = h.Cache.Put(ctx, st, gen)
	}
	writeJSON(w, http.StatusOK, st)
}
