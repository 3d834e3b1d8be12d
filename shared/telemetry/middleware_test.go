package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func testTelemetry() *Telemetry {
	return &Telemetry{
		tracer: otel.Tracer("test"),
		meter:  otel.Meter("test"),
		config: Config{ServiceName: "orders-service"},
	}
}

func TestMiddlewareInjectsTelemetryIntoRequestContext(t *testing.T) {
	tel := testTelemetry()

	var seen *Telemetry
	router := chi.NewRouter()
	router.Use(Middleware(tel))
	router.Get("/api/v1/orders/{orderID}/checkout-status", func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/abc/checkout-status", nil))

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Same(t, tel, seen)
}

func TestMiddlewarePreservesHandlerStatus(t *testing.T) {
	router := chi.NewRouter()
	router.Use(Middleware(testTelemetry()))
	router.Post("/api/v1/orders/checkout", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders/checkout", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{http.StatusContinue, "1xx"},
		{http.StatusAccepted, "2xx"},
		{http.StatusMovedPermanently, "3xx"},
		{http.StatusConflict, "4xx"},
		{http.StatusBadGateway, "5xx"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusClass(tt.code))
	}
}
