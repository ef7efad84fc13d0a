package httpx

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/renu-clearing/internal/failure"
	"github.com/ariefcatur/renu-clearing/internal/lifecycle"
	"github.com/ariefcatur/renu-clearing/internal/logging"
)

const maxCallbackBody = 1 << 20

type Payments interface {
	HandlePaymentCallback(ctx context.Context, cb lifecycle.Callback) error
	Alert(ctx context.Context, orderID int64, err error)
}

// PaymentsHandler receives the clearing provider's payment notification.
type PaymentsHandler struct {
	Lifecycle Payments
	Service   string
}

type callbackResp struct {
	Success bool `json:"success"`
}

func (h *PaymentsHandler) Register(r chi.Router) {
	r.HandleFunc("/api/payments/callback", h.callback)
}

// callback answers 200 only when the order reached its post-payment state;
// anything else is a 500 so the provider redelivers.
func (h *PaymentsHandler) callback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	start := time.Now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBody))
	if err != nil {
		h.Lifecycle.Alert(r.Context(), 0, err)
		h.fail(w, 0, "", start, err)
		return
	}
	cb, err := lifecycle.ParseCallback(body)
	if err != nil {
		h.Lifecycle.Alert(r.Context(), 0, err)
		h.fail(w, 0, "", start, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 14*time.Second)
	defer cancel()

	if err := h.Lifecycle.HandlePaymentCallback(ctx, cb); err != nil {
		h.fail(w, cb.OrderID, cb.TxID, start, err)
		return
	}
	logging.Log(logging.Fields{
		Service:    h.Service,
		OrderID:    cb.OrderID,
		TxID:       cb.TxID,
		Step:       "payment_callback",
		Status:     "ok",
		DurationMS: time.Since(start).Milliseconds(),
	})
	writeJSON(w, http.StatusOK, callbackResp{Success: true})
}

func (h *PaymentsHandler) fail(w http.ResponseWriter, orderID int64, txID string, start time.Time, err error) {
	logging.Log(logging.Fields{
		Service:    h.Service,
		OrderID:    orderID,
		TxID:       txID,
		Step:       "payment_callback",
		Status:     string(failure.KindOf(err)),
		DurationMS: time.Since(start).Milliseconds(),
		Message:    err.Error(),
	})
	writeJSON(w, http.StatusInternalServerError, errorResponse(err))
}
