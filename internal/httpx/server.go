package httpx

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ariefcatur/renu-clearing/internal/failure"
	"github.com/ariefcatur/renu-clearing/internal/metrics"
)

func NewRouter(m *metrics.ServerMetrics, metricsHandler http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	if m != nil {
		r.Use(m.Middleware)
	}
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Kind    failure.Kind `json:"kind"`
	Message string       `json:"message"`
}

type errorResp struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

func errorResponse(err error) errorResp {
	return errorResp{Error: errorBody{Kind: failure.KindOf(err), Message: err.Error()}}
}

// statusFor maps an error kind to the HTTP status of the order endpoints.
func statusFor(err error) int {
	switch failure.KindOf(err) {
	case failure.KindRecordNotFound:
		return http.StatusNotFound
	case failure.KindRecordInvalid:
		return http.StatusConflict
	case failure.KindMissingConfig, failure.KindProviderMismatch:
		return http.StatusUnprocessableEntity
	case failure.KindBreakerOpen:
		return http.StatusServiceUnavailable
	case failure.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}
