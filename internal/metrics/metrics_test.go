package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareRecordsStatusAndRoute(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/widgets/{id}", http.MethodGet, "200"))

	h := Middleware("/widgets/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/widgets/42", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/widgets/{id}", http.MethodGet, "200"))
	if after != before+1 {
		t.Fatalf("expected HTTPRequestsTotal to increment by 1, got %v -> %v", before, after)
	}
}

func TestMiddlewareDefaultsStatusToOKWhenUnwritten(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/implicit-ok", http.MethodGet, "200"))

	h := Middleware("/implicit-ok", func(w http.ResponseWriter, r *http.Request) {
		// never calls WriteHeader; net/http defaults to 200
	})
	req := httptest.NewRequest(http.MethodGet, "/implicit-ok", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/implicit-ok", http.MethodGet, "200"))
	if after != before+1 {
		t.Fatalf("expected a 200 to be recorded, got %v -> %v", before, after)
	}
}

func TestMiddlewareRecordsNonOKStatus(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/missing", http.MethodGet, "404"))

	h := Middleware("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/missing", http.MethodGet, "404"))
	if after != before+1 {
		t.Fatalf("expected a 404 to be recorded, got %v -> %v", before, after)
	}
}

func TestHandlerServesPrometheusFormat(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct == "" {
		t.Error("expected a Content-Type header on the metrics response")
	}
}
